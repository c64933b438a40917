package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// DefaultLength is the number of entries returned when a request omits one.
const DefaultLength = 10

// CompositeUserID identifies a player across platforms.
type CompositeUserID struct {
	FriendID   string `json:"friendId,omitempty"`
	Platform   string `json:"platform"`
	PlatformID string `json:"platformId"`
}

// LeaderboardEntry is one player's time on a single map/difficulty board.
type LeaderboardEntry struct {
	CompositeUserID CompositeUserID `json:"compositeUserId"`
	Value           RaceTime        `json:"value"`
	DisplayName     string          `json:"displayName,omitempty"`
}

// EntryFromRecord builds the board entry for a record's time t.
func EntryFromRecord(r PlayerRecord, t RaceTime) LeaderboardEntry {
	return LeaderboardEntry{
		CompositeUserID: CompositeUserID{
			PlatformID: r.PlatformID,
			Platform:   r.Platform,
		},
		Value:       t,
		DisplayName: r.DisplayName,
	}
}

// Length is the number of entries a board request wants. The zero value
// means DefaultLength.
type Length struct {
	n       int
	all     bool
	invalid bool
}

// AllEntries requests the whole board.
var AllEntries = Length{all: true}

// TopN requests the first n entries. n must be positive.
func TopN(n int) Length {
	if n <= 0 {
		return Length{invalid: true}
	}
	return Length{n: n}
}

// ParseLength reads a query-string length. It is lenient: blank, malformed
// and non-positive values fall back to DefaultLength.
func ParseLength(s string) Length {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "all") {
		return AllEntries
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return Length{}
	}
	return Length{n: n}
}

// Limit returns how many entries of a board of size total to keep.
func (l Length) Limit(total int) (int, error) {
	switch {
	case l.invalid:
		return 0, ErrInvalidLength
	case l.all:
		return total, nil
	}
	n := l.n
	if n == 0 {
		n = DefaultLength
	}
	return min(n, total), nil
}

// All reports whether the whole board is requested.
func (l Length) All() bool { return l.all }

// MarshalJSON writes "all" or the entry count.
func (l Length) MarshalJSON() ([]byte, error) {
	if l.all {
		return []byte(`"all"`), nil
	}
	n := l.n
	if n == 0 {
		n = DefaultLength
	}
	return []byte(strconv.Itoa(n)), nil
}

// UnmarshalJSON accepts a number, a numeric string, "all" or null. A zero
// count also means the whole board.
func (l *Length) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*l = Length{}
		return nil
	}
	var s string
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" || s == "undefined" {
			*l = Length{}
			return nil
		}
		if strings.EqualFold(s, "all") {
			*l = AllEntries
			return nil
		}
	} else {
		s = string(data)
	}
	n, err := strconv.Atoi(s)
	switch {
	case err != nil:
		*l = Length{invalid: true}
	case n == 0:
		*l = AllEntries
	default:
		*l = TopN(n)
	}
	return nil
}

// LeaderboardRequest asks for one map/difficulty board.
type LeaderboardRequest struct {
	Map        string `json:"map"`
	Difficulty string `json:"difficulty"`
	Length     Length `json:"length"`
}

// Category is the "<Map>-<Difficulty>" key used by flat results.
func Category(m, d string) string {
	return m + "-" + d
}

// SplitCategory splits "Impact-Hard" into map and difficulty. A bare map
// gets fallback as its difficulty.
func SplitCategory(category, fallback string) (string, string) {
	if m, d, ok := strings.Cut(category, "-"); ok {
		return m, d
	}
	return category, fallback
}

// SnapshotKey returns the document key of a denormalized board.
func SnapshotKey(m, d string) string {
	return fmt.Sprintf("leaderboards/%s_%s.json", m, d)
}

// SnapshotKeyForCategory maps a "Map-Difficulty" category to its document.
func SnapshotKeyForCategory(category string) string {
	return "leaderboards/" + strings.ReplaceAll(category, "-", "_") + ".json"
}

// RecordKey returns the document key of a player's PB record.
func RecordKey(platformID string) string {
	return "pbs/" + platformID + ".json"
}

// Document key layout.
const (
	RecordPrefix      = "pbs/"
	SnapshotPrefix    = "leaderboards/"
	IdentityMapKey    = "pbs/platformUserIdKey.json"
	documentExtension = ".json"
)

// IsDocumentKey reports whether key names a JSON document.
func IsDocumentKey(key string) bool {
	return strings.HasSuffix(key, documentExtension)
}
