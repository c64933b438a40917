package ranking

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sgracers-leaderboard/internal/domain"
)

// BoardResult is the outcome of one leaderboard request.
type BoardResult struct {
	Map        string
	Difficulty string
	Result     domain.Result[[]domain.LeaderboardEntry]
}

// Aggregation holds the boards of a batch in request order.
type Aggregation struct {
	Boards []BoardResult
}

// Get returns the result stored under m/d.
func (a Aggregation) Get(m, d string) (domain.Result[[]domain.LeaderboardEntry], bool) {
	for i := len(a.Boards) - 1; i >= 0; i-- {
		if a.Boards[i].Map == m && a.Boards[i].Difficulty == d {
			return a.Boards[i].Result, true
		}
	}
	return domain.Result[[]domain.LeaderboardEntry]{}, false
}

// MarshalJSON writes {"<map>": {"<difficulty>": board | {"error": ...}}}.
func (a Aggregation) MarshalJSON() ([]byte, error) {
	return marshalNested(len(a.Boards), func(i int) (string, string, any) {
		b := a.Boards[i]
		return b.Map, b.Difficulty, b.Result
	}, nil)
}

// Flat returns the same results keyed by "<map>-<difficulty>".
func (a Aggregation) Flat() FlatAggregation {
	return FlatAggregation(a)
}

// FlatAggregation marshals as {"<map>-<difficulty>": board}.
type FlatAggregation Aggregation

func (f FlatAggregation) MarshalJSON() ([]byte, error) {
	var keys []string
	values := make(map[string]json.RawMessage)
	for _, b := range f.Boards {
		raw, err := json.Marshal(b.Result)
		if err != nil {
			return nil, err
		}
		k := domain.Category(b.Map, b.Difficulty)
		if _, ok := values[k]; !ok {
			keys = append(keys, k)
		}
		values[k] = raw
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, _ := json.Marshal(k)
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(values[k])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Aggregate resolves every request against records. A request that cannot
// be resolved gets an error result in its own slot; the rest of the batch is
// unaffected.
func Aggregate(records []domain.PlayerRecord, reqs []domain.LeaderboardRequest) Aggregation {
	catalog := mapCatalog(records)
	agg := Aggregation{Boards: make([]BoardResult, 0, len(reqs))}
	for _, req := range reqs {
		agg.Boards = append(agg.Boards, resolve(records, catalog, req))
	}
	return agg
}

func resolve(records []domain.PlayerRecord, catalog map[string]struct{}, req domain.LeaderboardRequest) BoardResult {
	m, mapOK := domain.NormalizeMap(req.Map)
	d, diffOK := domain.NormalizeDifficulty(req.Difficulty)
	res := BoardResult{Map: m, Difficulty: d}
	if !mapOK {
		res.Map = req.Map
	}
	if !diffOK {
		res.Difficulty = req.Difficulty
	}

	if !mapOK || !diffOK {
		res.Result = domain.Failed[[]domain.LeaderboardEntry](
			fmt.Errorf("%w: map and difficulty are required", domain.ErrMissingFields))
		return res
	}
	if _, seen := catalog[strings.ToLower(m)]; !seen && !domain.IsKnownMap(m) {
		res.Result = domain.Failed[[]domain.LeaderboardEntry](
			fmt.Errorf("%w: %s", domain.ErrUnknownMap, req.Map))
		return res
	}

	board, err := Truncate(Board(records, m, d), req.Length)
	if err != nil {
		res.Result = domain.Failed[[]domain.LeaderboardEntry](err)
		return res
	}
	if board == nil {
		board = []domain.LeaderboardEntry{}
	}
	res.Result = domain.Ok(board)
	return res
}

func mapCatalog(records []domain.PlayerRecord) map[string]struct{} {
	catalog := make(map[string]struct{})
	for _, r := range records {
		for _, mt := range r.BestTimes.Maps() {
			catalog[strings.ToLower(mt.Map)] = struct{}{}
		}
	}
	return catalog
}

// marshalNested writes n items as a two-level object keyed by map and
// difficulty, in first-seen order. prefix fields are written first.
func marshalNested(n int, item func(int) (string, string, any), prefix [][2]any) ([]byte, error) {
	type row struct {
		diffs  []string
		values map[string]json.RawMessage
	}
	var maps []string
	rows := make(map[string]*row)
	for i := 0; i < n; i++ {
		m, d, v := item(i)
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		r, ok := rows[m]
		if !ok {
			r = &row{values: make(map[string]json.RawMessage)}
			rows[m] = r
			maps = append(maps, m)
		}
		if _, ok := r.values[d]; !ok {
			r.diffs = append(r.diffs, d)
		}
		r.values[d] = raw
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	writeKey := func(k string) {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		kb, _ := json.Marshal(k)
		buf.Write(kb)
		buf.WriteByte(':')
	}
	for _, p := range prefix {
		raw, err := json.Marshal(p[1])
		if err != nil {
			return nil, err
		}
		writeKey(p[0].(string))
		buf.Write(raw)
	}
	for _, m := range maps {
		writeKey(m)
		buf.WriteByte('{')
		r := rows[m]
		for j, d := range r.diffs {
			if j > 0 {
				buf.WriteByte(',')
			}
			kb, _ := json.Marshal(d)
			buf.Write(kb)
			buf.WriteByte(':')
			buf.Write(r.values[d])
		}
		buf.WriteByte('}')
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
