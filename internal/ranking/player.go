package ranking

import (
	"github.com/sgracers-leaderboard/internal/domain"
)

// Standing is a player's place on one board.
type Standing struct {
	Position     *int             `json:"position"`
	TotalPlayers int              `json:"totalPlayers"`
	Time         *domain.RaceTime `json:"time"`
}

// StandingResult is the standing for one requested board.
type StandingResult struct {
	Map        string
	Difficulty string
	Result     domain.Result[Standing]
}

// PlayerSummary is a player's standing across several boards. PlatformID and
// DisplayName are filled from the first board the player appears on when the
// caller did not supply them.
type PlayerSummary struct {
	PlatformID  *string
	DisplayName *string
	Boards      []StandingResult
}

// MarshalJSON writes {"platformId", "displayName", "<map>": {"<difficulty>": standing}}.
func (s PlayerSummary) MarshalJSON() ([]byte, error) {
	prefix := [][2]any{
		{"platformId", s.PlatformID},
		{"displayName", s.DisplayName},
	}
	return marshalNested(len(s.Boards), func(i int) (string, string, any) {
		b := s.Boards[i]
		return b.Map, b.Difficulty, b.Result
	}, prefix)
}

// ProjectPlayer finds who on each requested board. Request lengths are
// ignored: positions are taken from the full board.
func ProjectPlayer(records []domain.PlayerRecord, who domain.PlayerIdentity, reqs []domain.LeaderboardRequest) PlayerSummary {
	full := make([]domain.LeaderboardRequest, len(reqs))
	for i, r := range reqs {
		r.Length = domain.AllEntries
		full[i] = r
	}
	agg := Aggregate(records, full)

	summary := PlayerSummary{
		PlatformID:  optional(who.PlatformID),
		DisplayName: optional(who.DisplayName),
		Boards:      make([]StandingResult, 0, len(agg.Boards)),
	}

	for _, b := range agg.Boards {
		sr := StandingResult{Map: b.Map, Difficulty: b.Difficulty}
		if !b.Result.IsOK() {
			sr.Result = domain.Failed[Standing](b.Result.Err)
			summary.Boards = append(summary.Boards, sr)
			continue
		}

		board := b.Result.Value
		standing := Standing{TotalPlayers: len(board)}
		for i, e := range board {
			if !who.Matches(e) {
				continue
			}
			pos := i + 1
			t := e.Value
			standing.Position = &pos
			standing.Time = &t
			if summary.DisplayName == nil && e.DisplayName != "" {
				summary.DisplayName = optional(e.DisplayName)
			}
			if summary.PlatformID == nil {
				summary.PlatformID = optional(e.CompositeUserID.PlatformID)
			}
			break
		}
		sr.Result = domain.Ok(standing)
		summary.Boards = append(summary.Boards, sr)
	}
	return summary
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
