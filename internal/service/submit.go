package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sgracers-leaderboard/internal/domain"
	"github.com/sgracers-leaderboard/internal/ranking"
	"github.com/sgracers-leaderboard/internal/store"
)

// Submission result messages.
const (
	MessageNewRecord      = "New personal best recorded!"
	MessageImproved       = "Personal best updated!"
	MessageExistingFaster = "Existing time is faster"
)

// SubmitResult is the outcome of a time submission.
type SubmitResult struct {
	Success            bool
	Message            string
	Map                string
	Difficulty         string
	Previous           *int64
	Submitted          int64
	DisplayName        string
	DisplayNameUpdated bool
	Position           int
	CommitURL          string
}

// MarshalJSON writes the accepted or rejected response shape.
func (r SubmitResult) MarshalJSON() ([]byte, error) {
	if r.Success {
		return json.Marshal(struct {
			Success            bool   `json:"success"`
			Message            string `json:"message"`
			OldTime            *int64 `json:"oldTime"`
			NewTime            int64  `json:"newTime"`
			DisplayName        string `json:"displayName"`
			DisplayNameUpdated bool   `json:"displayNameUpdated"`
			CommitURL          string `json:"commitUrl,omitempty"`
		}{true, r.Message, r.Previous, r.Submitted, r.DisplayName, r.DisplayNameUpdated, r.CommitURL})
	}
	return json.Marshal(struct {
		Success            bool   `json:"success"`
		Message            string `json:"message"`
		CurrentPb          *int64 `json:"currentPb"`
		SubmittedTime      int64  `json:"submittedTime"`
		DisplayName        string `json:"displayName"`
		DisplayNameUpdated bool   `json:"displayNameUpdated"`
	}{false, r.Message, r.Previous, r.Submitted, r.DisplayName, r.DisplayNameUpdated})
}

// SubmitTime records a run if it beats the player's personal best. Steam
// submissions must carry a valid auth ticket.
func (s *LeaderboardService) SubmitTime(ctx context.Context, sub domain.Submission) (*SubmitResult, error) {
	return s.submit(ctx, sub, true)
}

// SubmitTimeBatch records submissions from a trusted internal source. Ticket
// checks are skipped. Failures are logged and do not stop the batch.
func (s *LeaderboardService) SubmitTimeBatch(ctx context.Context, subs []domain.Submission) error {
	for _, sub := range subs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := s.submit(ctx, sub, false); err != nil {
			s.logger.Error("failed to submit time in batch",
				"platform_id", sub.PlatformID,
				"map", sub.Map,
				"difficulty", sub.Difficulty,
				"error", err,
			)
		}
	}
	return nil
}

func (s *LeaderboardService) submit(ctx context.Context, raw domain.Submission, verify bool) (*SubmitResult, error) {
	sub, err := raw.Normalize()
	if err != nil {
		return nil, err
	}

	steam := domain.IsSteam(sub.Platform)
	if steam && verify {
		if err := s.authenticate(ctx, sub); err != nil {
			return nil, err
		}
	}

	persona := ""
	if steam && s.verifier != nil {
		name, err := s.verifier.PersonaName(ctx, sub.PlatformID)
		if err != nil {
			s.logger.Warn("persona lookup failed", "platform_id", sub.PlatformID, "error", err)
		}
		persona = name
	}

	var result *SubmitResult
	info, err := s.commitWithRetry(ctx, "submitting time", func(ctx context.Context) (string, []store.Write, error) {
		r, message, writes, err := s.planSubmission(ctx, sub, persona)
		result = r
		return message, writes, err
	})
	if errors.Is(err, errNoChanges) {
		err = nil
	}
	if err != nil {
		return nil, err
	}
	if info != nil && result.Success {
		result.CommitURL = info.URL
	}

	s.afterSubmit(ctx, sub, result)
	return result, nil
}

func (s *LeaderboardService) authenticate(ctx context.Context, sub domain.Submission) error {
	if sub.AuthTicket == "" {
		s.metrics.SteamCheck("missing")
		return fmt.Errorf("%w: Steam auth ticket required", domain.ErrAuthRequired)
	}
	if s.verifier == nil {
		s.metrics.SteamCheck("unavailable")
		return fmt.Errorf("%w: no ticket verifier configured", domain.ErrUnauthorized)
	}
	ok, err := s.verifier.VerifyTicket(ctx, sub.PlatformID, sub.AuthTicket)
	if err != nil {
		s.metrics.SteamCheck("error")
		s.logger.Error("steam ticket validation failed", "platform_id", sub.PlatformID, "error", err)
		return fmt.Errorf("%w: Invalid Steam authentication ticket", domain.ErrUnauthorized)
	}
	if !ok {
		s.metrics.SteamCheck("invalid")
		return fmt.Errorf("%w: Invalid Steam authentication ticket", domain.ErrUnauthorized)
	}
	s.metrics.SteamCheck("valid")
	return nil
}

// planSubmission reads the current record and decides what to write.
func (s *LeaderboardService) planSubmission(ctx context.Context, sub domain.Submission, persona string) (*SubmitResult, string, []store.Write, error) {
	stored, err := s.readRecord(ctx, sub.PlatformID, sub.Platform)
	if err != nil {
		return nil, "", nil, err
	}
	rec := &stored.record

	nameUpdated := false
	if persona != "" && persona != rec.DisplayName {
		s.logger.Info("display name changed", "platform_id", sub.PlatformID, "from", rec.DisplayName, "to", persona)
		rec.DisplayName = persona
		nameUpdated = true
	}

	eval := domain.EvaluateSubmission(rec.BestTimes, sub.Map, sub.Difficulty, sub.TimeMs)
	result := &SubmitResult{
		Map:                sub.Map,
		Difficulty:         sub.Difficulty,
		Previous:           eval.Previous,
		Submitted:          sub.TimeMs,
		DisplayName:        rec.DisplayName,
		DisplayNameUpdated: nameUpdated,
	}

	if !eval.IsNewRecord {
		result.Message = MessageExistingFaster
		if !nameUpdated {
			return result, "", nil, errNoChanges
		}
		rec.BestTimes = domain.OrderBestTimes(eval.Table)
		w, err := stored.write()
		if err != nil {
			return nil, "", nil, err
		}
		return result, fmt.Sprintf("%s - Updated display name", rec.DisplayName), []store.Write{w}, nil
	}

	result.Success = true
	result.Message = MessageImproved
	if eval.Previous == nil {
		result.Message = MessageNewRecord
	}
	rec.BestTimes = eval.Table

	w, err := stored.write()
	if err != nil {
		return nil, "", nil, err
	}
	writes := []store.Write{w}

	if s.config.SnapshotsOnSubmit {
		sw, pos, err := s.snapshotAfterSubmit(ctx, *rec, sub.Map, sub.Difficulty)
		if err != nil {
			return nil, "", nil, err
		}
		writes = append(writes, sw)
		result.Position = pos
	}

	message := fmt.Sprintf("%s - %ss %s %s", rec.DisplayName, domain.FormatSeconds(sub.TimeMs), sub.Map, sub.Difficulty)
	return result, message, writes, nil
}

// snapshotAfterSubmit rebuilds the m/d snapshot with rec's new table and
// returns the write plus rec's position on the board.
func (s *LeaderboardService) snapshotAfterSubmit(ctx context.Context, rec domain.PlayerRecord, m, d string) (store.Write, int, error) {
	records, err := s.loadRecords(ctx)
	if err != nil {
		return store.Write{}, 0, err
	}
	replaced := false
	for i := range records {
		if records[i].PlatformID == rec.PlatformID {
			records[i] = rec
			replaced = true
		}
	}
	if !replaced {
		records = append(records, rec)
	}

	board := ranking.Board(records, m, d)
	w, err := s.snapshotWrite(ctx, m, d, board)
	if err != nil {
		return store.Write{}, 0, err
	}
	pos := 0
	for i, e := range board {
		if e.CompositeUserID.PlatformID == rec.PlatformID {
			pos = i + 1
			break
		}
	}
	return w, pos, nil
}

func (s *LeaderboardService) afterSubmit(ctx context.Context, sub domain.Submission, result *SubmitResult) {
	outcome := domain.OutcomeRejected
	switch {
	case result.Success && result.Previous == nil:
		outcome = domain.OutcomeNewRecord
	case result.Success:
		outcome = domain.OutcomeImproved
	}
	s.metrics.Submission(string(outcome))

	if result.Success && s.publisher != nil {
		s.publisher.PublishRecord(domain.RecordUpdate{
			Map:         sub.Map,
			Difficulty:  sub.Difficulty,
			PlatformID:  sub.PlatformID,
			DisplayName: result.DisplayName,
			TimeMs:      sub.TimeMs,
			PreviousMs:  result.Previous,
			Position:    result.Position,
			Timestamp:   time.Now(),
		})
	}

	if s.audit != nil {
		event := domain.SubmissionEvent{
			PlatformID: sub.PlatformID,
			Platform:   sub.Platform,
			Map:        sub.Map,
			Difficulty: sub.Difficulty,
			TimeMs:     sub.TimeMs,
			Outcome:    outcome,
			Metadata:   map[string]interface{}{"displayNameUpdated": result.DisplayNameUpdated},
			Timestamp:  time.Now(),
		}
		if err := s.audit.RecordEvent(ctx, event); err != nil {
			s.logger.Warn("failed to record submission event", "error", err)
		}
	}
}
