package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/sgracers-leaderboard/internal/domain"
	"github.com/sgracers-leaderboard/internal/ranking"
	"github.com/sgracers-leaderboard/internal/store"
)

// GetLeaderboard builds one ranked board from the PB records.
func (s *LeaderboardService) GetLeaderboard(ctx context.Context, req domain.LeaderboardRequest) ([]domain.LeaderboardEntry, error) {
	if strings.TrimSpace(req.Map) == "" || strings.TrimSpace(req.Difficulty) == "" {
		return nil, fmt.Errorf("%w: Need either map + difficulty, category, or leaderboards array", domain.ErrMissingFields)
	}
	agg, err := s.GetLeaderboards(ctx, []domain.LeaderboardRequest{req})
	if err != nil {
		return nil, err
	}
	res := agg.Boards[0].Result
	if !res.IsOK() {
		return nil, res.Err
	}
	return res.Value, nil
}

// GetLeaderboards builds several boards in one pass over the records. A
// request that cannot be served gets an error entry; the others are
// unaffected.
func (s *LeaderboardService) GetLeaderboards(ctx context.Context, reqs []domain.LeaderboardRequest) (ranking.Aggregation, error) {
	if len(reqs) == 0 {
		return ranking.Aggregation{}, fmt.Errorf("%w: leaderboards parameter must be a non-empty array", domain.ErrInvalidRequest)
	}
	records, err := s.loadRecords(ctx)
	if err != nil {
		return ranking.Aggregation{}, err
	}

	agg := ranking.Aggregate(records, reqs)
	for _, b := range agg.Boards {
		s.metrics.BoardServed(b.Result.IsOK())
		if !b.Result.IsOK() {
			s.logger.Debug("leaderboard request failed", "map", b.Map, "difficulty", b.Difficulty, "error", b.Result.Err)
		}
	}
	return agg, nil
}

// GetPlayerSummary reports a player's position on each requested board.
func (s *LeaderboardService) GetPlayerSummary(ctx context.Context, who domain.PlayerIdentity, reqs []domain.LeaderboardRequest) (ranking.PlayerSummary, error) {
	if who.IsZero() {
		return ranking.PlayerSummary{}, fmt.Errorf("%w: Either displayName or platformId is required", domain.ErrMissingFields)
	}
	if len(reqs) == 0 {
		return ranking.PlayerSummary{}, fmt.Errorf("%w: Missing leaderboards parameter", domain.ErrMissingFields)
	}
	records, err := s.loadRecords(ctx)
	if err != nil {
		return ranking.PlayerSummary{}, err
	}
	return ranking.ProjectPlayer(records, who, reqs), nil
}

// GetSnapshot returns the first entries of a stored board snapshot as raw
// JSON. category is "Map-Difficulty".
func (s *LeaderboardService) GetSnapshot(ctx context.Context, category string) ([]byte, error) {
	category = strings.TrimSpace(category)
	if category == "" || strings.ContainsAny(category, "/\\") || strings.Contains(category, "..") {
		return nil, fmt.Errorf("%w: Invalid parameters", domain.ErrInvalidRequest)
	}

	key := domain.SnapshotKeyForCategory(category)
	doc, err := s.store.Get(ctx, key)
	if store.IsNotFound(err) {
		return nil, fmt.Errorf("%w: %s", domain.ErrLeaderboardNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}

	content := store.StripBOM(doc.Content)
	if !gjson.ValidBytes(content) {
		return nil, fmt.Errorf("%w: Invalid leaderboard data in %s", domain.ErrInternalError, key)
	}
	root := gjson.ParseBytes(content)
	if !root.IsArray() {
		return content, nil
	}
	return firstElements(root, s.config.SnapshotLimit), nil
}

// firstElements re-encodes the first n elements of a JSON array, compacted.
func firstElements(arr gjson.Result, n int) []byte {
	var b strings.Builder
	b.WriteByte('[')
	i := 0
	arr.ForEach(func(_, v gjson.Result) bool {
		if i == n {
			return false
		}
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(compact(v.Raw))
		i++
		return true
	})
	b.WriteByte(']')
	return []byte(b.String())
}

// GetFriendLeaderboard returns the whole board for category/difficulty with
// each entry's friend id filled in.
func (s *LeaderboardService) GetFriendLeaderboard(ctx context.Context, category, difficulty string) ([]domain.LeaderboardEntry, error) {
	if strings.TrimSpace(category) == "" || strings.TrimSpace(difficulty) == "" {
		return nil, fmt.Errorf("%w: Missing category or difficulty", domain.ErrMissingFields)
	}

	board, err := s.GetLeaderboard(ctx, domain.LeaderboardRequest{Map: category, Difficulty: difficulty, Length: domain.AllEntries})
	if err != nil {
		s.logger.Warn("friend leaderboard unavailable", "category", category, "difficulty", difficulty, "error", err)
		return nil, fmt.Errorf("%w: %w", domain.ErrLeaderboardNotFound, err)
	}

	if s.ids != nil {
		if err := s.ids.Ensure(ctx); err != nil {
			s.logger.Warn("identity mapping unavailable", "error", err)
		}
	}
	out := make([]domain.LeaderboardEntry, len(board))
	for i, e := range board {
		e.CompositeUserID.FriendID = s.friendID(e.CompositeUserID.PlatformID)
		out[i] = e
	}
	return out, nil
}

func (s *LeaderboardService) friendID(platformID string) string {
	if s.ids != nil {
		if id, ok := s.ids.Lookup(platformID); ok {
			return id
		}
	}
	return s.config.DefaultFriendID
}

func compact(raw string) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(raw)); err != nil {
		return raw
	}
	return buf.String()
}
