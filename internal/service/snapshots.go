package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/sgracers-leaderboard/internal/domain"
	"github.com/sgracers-leaderboard/internal/ranking"
	"github.com/sgracers-leaderboard/internal/store"
)

// snapshotWrite renders board as the m/d snapshot document, expecting the
// version currently stored.
func (s *LeaderboardService) snapshotWrite(ctx context.Context, m, d string, board []domain.LeaderboardEntry) (store.Write, error) {
	key := domain.SnapshotKey(m, d)
	version := ""
	doc, err := s.store.Get(ctx, key)
	switch {
	case err == nil:
		version = doc.Version
	case !store.IsNotFound(err):
		return store.Write{}, fmt.Errorf("reading snapshot %s: %w", key, err)
	}

	if board == nil {
		board = []domain.LeaderboardEntry{}
	}
	content, err := encodeDocument(board)
	if err != nil {
		return store.Write{}, fmt.Errorf("encoding snapshot %s: %w", key, err)
	}
	return store.Write{Key: key, Content: content, ExpectedVersion: version}, nil
}

// RebuildResult reports a snapshot rebuild.
type RebuildResult struct {
	Boards    int    `json:"boards"`
	Changed   int    `json:"changed"`
	CommitURL string `json:"commitUrl,omitempty"`
}

// RebuildSnapshots regenerates every board snapshot from the PB records and
// commits the ones whose content changed.
func (s *LeaderboardService) RebuildSnapshots(ctx context.Context) (*RebuildResult, error) {
	start := time.Now()
	defer s.metrics.SnapshotRebuild(start)

	result := &RebuildResult{}
	info, err := s.commitWithRetry(ctx, "rebuilding snapshots", func(ctx context.Context) (string, []store.Write, error) {
		records, err := s.loadRecords(ctx)
		if err != nil {
			return "", nil, err
		}

		boards := boardKeys(records)
		result.Boards = len(boards)
		var writes []store.Write
		for _, b := range boards {
			w, err := s.snapshotWrite(ctx, b[0], b[1], ranking.Board(records, b[0], b[1]))
			if err != nil {
				return "", nil, err
			}
			if w.ExpectedVersion != "" && s.unchanged(ctx, w) {
				continue
			}
			writes = append(writes, w)
		}
		result.Changed = len(writes)
		if len(writes) == 0 {
			return "", nil, errNoChanges
		}
		return fmt.Sprintf("Rebuilt %d leaderboard snapshot(s)", len(writes)), writes, nil
	})
	if errors.Is(err, errNoChanges) {
		s.logger.Info("snapshots up to date", "boards", result.Boards)
		return result, nil
	}
	if err != nil {
		return nil, err
	}
	result.CommitURL = info.URL
	s.logger.Info("snapshots rebuilt", "boards", result.Boards, "changed", result.Changed, "duration", time.Since(start))
	return result, nil
}

func (s *LeaderboardService) unchanged(ctx context.Context, w store.Write) bool {
	doc, err := s.store.Get(ctx, w.Key)
	if err != nil {
		return false
	}
	return compact(string(store.StripBOM(doc.Content))) == compact(string(w.Content))
}

// boardKeys lists every map/difficulty pair with at least one time, in
// canonical order.
func boardKeys(records []domain.PlayerRecord) [][2]string {
	var table domain.BestTimes
	for _, r := range records {
		for _, mt := range r.BestTimes.Maps() {
			for _, dt := range mt.Difficulties {
				if dt.Time == nil || dt.Time.IsZero() {
					continue
				}
				table = table.Ensure(mt.Map, dt.Difficulty)
			}
		}
	}
	var keys [][2]string
	for _, mt := range domain.OrderBestTimes(table).Maps() {
		for _, dt := range mt.Difficulties {
			keys = append(keys, [2]string{mt.Map, dt.Difficulty})
		}
	}
	return keys
}

// RenameResult reports a display name change.
type RenameResult struct {
	Success           bool   `json:"success"`
	Message           string `json:"message"`
	UpdatedFilesCount int    `json:"updatedFilesCount"`
	RecordUpdated     bool   `json:"recordUpdated"`
	CommitURL         string `json:"commitUrl,omitempty"`
}

// RenamePlayer sets a player's display name in every snapshot that lists
// them and in their PB record, in one commit.
func (s *LeaderboardService) RenamePlayer(ctx context.Context, platformID, newName string) (*RenameResult, error) {
	platformID = strings.TrimSpace(platformID)
	newName = strings.TrimSpace(newName)
	if platformID == "" || newName == "" {
		return nil, domain.ErrMissingFields
	}

	result := &RenameResult{}
	info, err := s.commitWithRetry(ctx, "renaming player", func(ctx context.Context) (string, []store.Write, error) {
		writes, err := s.renameInSnapshots(ctx, platformID, newName)
		if err != nil {
			return "", nil, err
		}
		result.UpdatedFilesCount = len(writes)

		rec, err := s.readRecord(ctx, platformID, "")
		if err != nil {
			return "", nil, err
		}
		result.RecordUpdated = rec.exists
		if rec.exists && rec.record.DisplayName != newName {
			rec.record.DisplayName = newName
			w, err := rec.write()
			if err != nil {
				return "", nil, err
			}
			writes = append(writes, w)
		}

		if result.UpdatedFilesCount == 0 && !rec.exists {
			return "", nil, fmt.Errorf("%w: User not found in any leaderboard", domain.ErrPlayerNotFound)
		}
		if len(writes) == 0 {
			return "", nil, errNoChanges
		}
		return fmt.Sprintf("Updated display name for user %s to %q", platformID, newName), writes, nil
	})
	if err != nil && !errors.Is(err, errNoChanges) {
		return nil, err
	}

	result.Success = true
	result.Message = fmt.Sprintf("Display name updated in %d leaderboard(s)", result.UpdatedFilesCount)
	if info != nil {
		result.CommitURL = info.URL
	}
	s.logger.Info("player renamed", "platform_id", platformID, "snapshots", result.UpdatedFilesCount, "record", result.RecordUpdated)
	return result, nil
}

// renameInSnapshots patches the player's entry in each snapshot that
// contains them. Only the displayName value changes.
func (s *LeaderboardService) renameInSnapshots(ctx context.Context, platformID, newName string) ([]store.Write, error) {
	docs, err := store.ListDocuments(ctx, s.store, domain.SnapshotPrefix)
	if err != nil {
		return nil, err
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Key < docs[j].Key })

	var writes []store.Write
	for _, doc := range docs {
		content := store.StripBOM(doc.Content)
		if !gjson.ValidBytes(content) {
			s.logger.Warn("skipping unreadable snapshot", "key", doc.Key)
			continue
		}

		idx, i := -1, 0
		gjson.ParseBytes(content).ForEach(func(_, entry gjson.Result) bool {
			if entry.Get("compositeUserId.platformId").String() == platformID {
				idx = i
				return false
			}
			i++
			return true
		})
		if idx < 0 {
			continue
		}

		updated, err := sjson.SetBytes(content, fmt.Sprintf("%d.displayName", idx), newName)
		if err != nil {
			return nil, fmt.Errorf("patching %s: %w", doc.Key, err)
		}
		writes = append(writes, store.Write{Key: doc.Key, Content: updated, ExpectedVersion: doc.Version})
	}
	return writes, nil
}
