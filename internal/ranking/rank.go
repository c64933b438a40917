// Package ranking builds leaderboards from personal-best records.
package ranking

import (
	"cmp"
	"slices"

	"github.com/sgracers-leaderboard/internal/domain"
)

type keyedEntry struct {
	entry domain.LeaderboardEntry
	ms    int64
	valid bool
}

// Rank returns entries ordered fastest first. The sort is stable, so equal
// times keep their input order. Times that cannot be parsed go last.
// Later entries for a platform id already on the board are dropped.
func Rank(entries []domain.LeaderboardEntry) []domain.LeaderboardEntry {
	keyed := make([]keyedEntry, len(entries))
	for i, e := range entries {
		ms, ok := e.Value.Millis()
		keyed[i] = keyedEntry{entry: e, ms: ms, valid: ok}
	}

	slices.SortStableFunc(keyed, func(a, b keyedEntry) int {
		switch {
		case a.valid && b.valid:
			return cmp.Compare(a.ms, b.ms)
		case a.valid:
			return -1
		case b.valid:
			return 1
		default:
			return 0
		}
	})

	out := make([]domain.LeaderboardEntry, 0, len(keyed))
	seen := make(map[string]struct{}, len(keyed))
	for _, k := range keyed {
		id := k.entry.CompositeUserID.PlatformID
		if id != "" {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
		}
		out = append(out, k.entry)
	}
	return out
}

// Truncate keeps the first entries allowed by length.
func Truncate(entries []domain.LeaderboardEntry, length domain.Length) ([]domain.LeaderboardEntry, error) {
	n, err := length.Limit(len(entries))
	if err != nil {
		return nil, err
	}
	return entries[:n], nil
}

// Collect gathers the m/d entries of records in record order. Map and
// difficulty keys match case-insensitively; empty and zero times are skipped.
func Collect(records []domain.PlayerRecord, m, d string) []domain.LeaderboardEntry {
	var entries []domain.LeaderboardEntry
	for _, r := range records {
		t := r.BestTimes.Lookup(m, d)
		if t == nil || t.IsZero() {
			continue
		}
		entries = append(entries, domain.EntryFromRecord(r, *t))
	}
	return entries
}

// Board collects and ranks the full m/d board.
func Board(records []domain.PlayerRecord, m, d string) []domain.LeaderboardEntry {
	return Rank(Collect(records, m, d))
}
