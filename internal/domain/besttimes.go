package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
)

// DifficultyTime is one difficulty column of a map. Time is nil while the
// player has no record for it.
type DifficultyTime struct {
	Difficulty string
	Time       *RaceTime
}

// MapTimes holds a map's difficulties in document order.
type MapTimes struct {
	Map          string
	Difficulties []DifficultyTime
}

// BestTimes is a player's map -> difficulty -> time table. Unlike a Go map it
// keeps key order, so documents are written back in the order they were read
// (or in canonical order after OrderBestTimes).
type BestTimes struct {
	maps []MapTimes
}

// Maps returns the map rows in order. The slice must not be modified.
func (b BestTimes) Maps() []MapTimes {
	return b.maps
}

// Len returns the number of maps in the table.
func (b BestTimes) Len() int {
	return len(b.maps)
}

func (b BestTimes) mapIndex(m string) int {
	for i := range b.maps {
		if b.maps[i].Map == m {
			return i
		}
	}
	return -1
}

// Has reports whether the table has a row for map m and difficulty d,
// whether or not it holds a time.
func (b BestTimes) Has(m, d string) bool {
	i := b.mapIndex(m)
	if i < 0 {
		return false
	}
	for _, dt := range b.maps[i].Difficulties {
		if dt.Difficulty == d {
			return true
		}
	}
	return false
}

// Get returns the stored time for m/d, or nil.
func (b BestTimes) Get(m, d string) *RaceTime {
	i := b.mapIndex(m)
	if i < 0 {
		return nil
	}
	for _, dt := range b.maps[i].Difficulties {
		if dt.Difficulty == d {
			return dt.Time
		}
	}
	return nil
}

// Lookup finds m/d ignoring case, the way leaderboard queries match keys.
func (b BestTimes) Lookup(m, d string) *RaceTime {
	for _, mt := range b.maps {
		if !strings.EqualFold(mt.Map, m) {
			continue
		}
		for _, dt := range mt.Difficulties {
			if strings.EqualFold(dt.Difficulty, d) {
				return dt.Time
			}
		}
		return nil
	}
	return nil
}

// Set stores t under m/d, creating the map and difficulty rows when missing.
// A nil t records "no time yet". The receiver is not modified.
func (b BestTimes) Set(m, d string, t *RaceTime) BestTimes {
	out := b.Clone()
	out.put(m, d, t)
	return out
}

func (b *BestTimes) addMap(m string) int {
	if i := b.mapIndex(m); i >= 0 {
		return i
	}
	b.maps = append(b.maps, MapTimes{Map: m})
	return len(b.maps) - 1
}

func (b *BestTimes) put(m, d string, t *RaceTime) {
	row := &b.maps[b.addMap(m)]
	for j := range row.Difficulties {
		if row.Difficulties[j].Difficulty == d {
			row.Difficulties[j].Time = t
			return
		}
	}
	row.Difficulties = append(row.Difficulties, DifficultyTime{Difficulty: d, Time: t})
}

// Ensure creates an empty m/d row if the table lacks one.
func (b BestTimes) Ensure(m, d string) BestTimes {
	if b.Has(m, d) {
		return b
	}
	return b.Set(m, d, nil)
}

// Clone returns a deep copy.
func (b BestTimes) Clone() BestTimes {
	out := BestTimes{maps: make([]MapTimes, len(b.maps))}
	for i, mt := range b.maps {
		diffs := make([]DifficultyTime, len(mt.Difficulties))
		for j, dt := range mt.Difficulties {
			diffs[j] = DifficultyTime{Difficulty: dt.Difficulty}
			if dt.Time != nil {
				t := *dt.Time
				diffs[j].Time = &t
			}
		}
		out.maps[i] = MapTimes{Map: mt.Map, Difficulties: diffs}
	}
	return out
}

// OrderBestTimes returns t with maps in priority order (unknown maps after,
// alphabetically) and difficulties Easy, Medium, Hard, then alphabetically.
// Keys and values are unchanged.
func OrderBestTimes(t BestTimes) BestTimes {
	out := t.Clone()
	sort.SliceStable(out.maps, func(i, j int) bool {
		return lessByPriority(out.maps[i].Map, out.maps[j].Map, mapPriority)
	})
	for i := range out.maps {
		diffs := out.maps[i].Difficulties
		sort.SliceStable(diffs, func(a, b int) bool {
			return lessByPriority(diffs[a].Difficulty, diffs[b].Difficulty, difficultyPriority)
		})
	}
	return out
}

func lessByPriority(a, b string, priority func(string) int) bool {
	pa, pb := priority(a), priority(b)
	switch {
	case pa >= 0 && pb >= 0:
		return pa < pb
	case pa >= 0:
		return true
	case pb >= 0:
		return false
	default:
		return a < b
	}
}

// MarshalJSON writes the table as a nested object in table order.
func (b BestTimes) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, mt := range b.maps {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(mt.Map)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteString(":{")
		for j, dt := range mt.Difficulties {
			if j > 0 {
				buf.WriteByte(',')
			}
			dkey, err := json.Marshal(dt.Difficulty)
			if err != nil {
				return nil, err
			}
			buf.Write(dkey)
			buf.WriteByte(':')
			if dt.Time == nil {
				buf.WriteString("null")
				continue
			}
			val, err := dt.Time.MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(val)
		}
		buf.WriteByte('}')
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a nested object, keeping key order. Repeated keys
// overwrite the earlier value in place.
func (b *BestTimes) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("%w: bestTimes is not valid JSON", ErrInvalidRequest)
	}
	root := gjson.ParseBytes(data)
	if root.Type == gjson.Null {
		*b = BestTimes{}
		return nil
	}
	if !root.IsObject() {
		return fmt.Errorf("%w: bestTimes must be an object", ErrInvalidRequest)
	}

	var out BestTimes
	var parseErr error
	root.ForEach(func(mapKey, diffs gjson.Result) bool {
		m := mapKey.String()
		out.addMap(m)
		if !diffs.IsObject() {
			return true
		}
		diffs.ForEach(func(diffKey, value gjson.Result) bool {
			if value.Type == gjson.Null {
				out.put(m, diffKey.String(), nil)
				return true
			}
			var t RaceTime
			if err := t.UnmarshalJSON([]byte(value.Raw)); err != nil {
				parseErr = fmt.Errorf("bestTimes.%s.%s: %w", m, diffKey.String(), err)
				return false
			}
			out.put(m, diffKey.String(), &t)
			return true
		})
		return parseErr == nil
	})
	if parseErr != nil {
		return parseErr
	}
	*b = out
	return nil
}
