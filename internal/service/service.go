package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sgracers-leaderboard/internal/config"
	"github.com/sgracers-leaderboard/internal/domain"
	"github.com/sgracers-leaderboard/internal/identity"
	"github.com/sgracers-leaderboard/internal/metrics"
	"github.com/sgracers-leaderboard/internal/store"
)

// TicketVerifier checks platform session tickets and looks up display names.
type TicketVerifier interface {
	VerifyTicket(ctx context.Context, platformID, ticket string) (bool, error)
	PersonaName(ctx context.Context, platformID string) (string, error)
}

// EventRecorder stores submission audit events.
type EventRecorder interface {
	RecordEvent(ctx context.Context, event domain.SubmissionEvent) error
}

// RecordPublisher announces new personal bests.
type RecordPublisher interface {
	PublishRecord(update domain.RecordUpdate)
}

// Config holds the service settings.
type Config struct {
	MaxCommitAttempts int
	SnapshotsOnSubmit bool
	SnapshotLimit     int
	DefaultFriendID   string
}

// ConfigFrom extracts the service settings from the application config.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		MaxCommitAttempts: cfg.Store.MaxCommitAttempts,
		SnapshotsOnSubmit: cfg.Snapshots.Enabled && cfg.Snapshots.UpdateOnSubmit,
		SnapshotLimit:     cfg.Snapshots.DefaultLimit,
		DefaultFriendID:   cfg.Identity.DefaultFriendID,
	}
}

// LeaderboardService provides business logic for leaderboard operations
type LeaderboardService struct {
	store     store.Store
	ids       *identity.Cache
	verifier  TicketVerifier
	audit     EventRecorder
	publisher RecordPublisher
	metrics   *metrics.Metrics
	config    Config
	logger    *slog.Logger
}

// Option configures optional collaborators.
type Option func(*LeaderboardService)

// WithVerifier enables ticket checks and display name refresh for Steam.
func WithVerifier(v TicketVerifier) Option {
	return func(s *LeaderboardService) { s.verifier = v }
}

// WithAudit records every processed submission.
func WithAudit(r EventRecorder) Option {
	return func(s *LeaderboardService) { s.audit = r }
}

// WithPublisher announces new records.
func WithPublisher(p RecordPublisher) Option {
	return func(s *LeaderboardService) { s.publisher = p }
}

// WithMetrics records service metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *LeaderboardService) { s.metrics = m }
}

// NewLeaderboardService creates a new leaderboard service
func NewLeaderboardService(
	st store.Store,
	ids *identity.Cache,
	cfg Config,
	logger *slog.Logger,
	opts ...Option,
) *LeaderboardService {
	if cfg.MaxCommitAttempts <= 0 {
		cfg.MaxCommitAttempts = 3
	}
	if cfg.SnapshotLimit <= 0 {
		cfg.SnapshotLimit = domain.DefaultLength
	}
	s := &LeaderboardService{
		store:  st,
		ids:    ids,
		config: cfg,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// errNoChanges tells commitWithRetry there is nothing to write.
var errNoChanges = errors.New("no changes")

// commitWithRetry builds and commits a change, rebuilding it from fresh
// reads whenever the store reports a version conflict.
func (s *LeaderboardService) commitWithRetry(
	ctx context.Context,
	op string,
	build func(ctx context.Context) (string, []store.Write, error),
) (*store.CommitInfo, error) {
	for attempt := 1; attempt <= s.config.MaxCommitAttempts; attempt++ {
		message, writes, err := build(ctx)
		if err != nil {
			return nil, err
		}

		start := time.Now()
		info, err := s.store.Commit(ctx, message, writes...)
		s.metrics.ObserveStore("commit", start)
		switch {
		case err == nil:
			s.metrics.CommitAttempt("ok")
			return info, nil
		case store.IsConflict(err):
			s.metrics.CommitAttempt("conflict")
			s.logger.Warn("commit conflict, retrying", "operation", op, "attempt", attempt, "error", err)
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
		default:
			s.metrics.CommitAttempt("error")
			return nil, fmt.Errorf("%s: committing: %w", op, err)
		}
	}
	return nil, fmt.Errorf("%s: %w: gave up after %d attempts", op, domain.ErrVersionConflict, s.config.MaxCommitAttempts)
}

// encodeDocument renders v the way documents are stored: two-space indent.
func encodeDocument(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}
