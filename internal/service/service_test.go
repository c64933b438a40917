package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sgracers-leaderboard/internal/domain"
	"github.com/sgracers-leaderboard/internal/identity"
	"github.com/sgracers-leaderboard/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeVerifier struct {
	validTickets map[string]string
	personas     map[string]string
	err          error
}

func (f *fakeVerifier) VerifyTicket(_ context.Context, platformID, ticket string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.validTickets[ticket] == platformID, nil
}

func (f *fakeVerifier) PersonaName(_ context.Context, platformID string) (string, error) {
	return f.personas[platformID], nil
}

type recordingPublisher struct {
	mu      sync.Mutex
	updates []domain.RecordUpdate
}

func (p *recordingPublisher) PublishRecord(u domain.RecordUpdate) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates = append(p.updates, u)
}

type recordingAudit struct {
	events []domain.SubmissionEvent
}

func (a *recordingAudit) RecordEvent(_ context.Context, e domain.SubmissionEvent) error {
	a.events = append(a.events, e)
	return nil
}

// racingStore lets a hook run before each commit, simulating a concurrent
// writer.
type racingStore struct {
	*store.MemoryStore
	beforeCommit func(attempt int)
	attempts     int
}

func (r *racingStore) Commit(ctx context.Context, message string, writes ...store.Write) (*store.CommitInfo, error) {
	r.attempts++
	if r.beforeCommit != nil {
		r.beforeCommit(r.attempts)
	}
	return r.MemoryStore.Commit(ctx, message, writes...)
}

func newTestService(t *testing.T, st store.Store, cfg Config, opts ...Option) *LeaderboardService {
	t.Helper()
	return NewLeaderboardService(st, identity.NewCache(st, testLogger()), cfg, testLogger(), opts...)
}

func seed(t *testing.T, st store.Store, key string, v any) {
	t.Helper()
	var content []byte
	switch c := v.(type) {
	case string:
		content = []byte(c)
	case []byte:
		content = c
	default:
		var err error
		content, err = json.Marshal(v)
		require.NoError(t, err)
	}
	_, err := st.Commit(context.Background(), "seed "+key, store.Write{Key: key, Content: content, ExpectedVersion: store.AnyVersion})
	require.NoError(t, err)
}

func seedRecord(t *testing.T, st store.Store, id, name string, times map[[2]string]int64) {
	t.Helper()
	var bt domain.BestTimes
	for k, ms := range times {
		tm := domain.MillisTime(ms)
		bt = bt.Set(k[0], k[1], &tm)
	}
	seed(t, st, domain.RecordKey(id), domain.PlayerRecord{
		PlatformID:  id,
		Platform:    "steam",
		DisplayName: name,
		BestTimes:   domain.OrderBestTimes(bt),
	})
}

func readRecordDoc(t *testing.T, st store.Store, id string) domain.PlayerRecord {
	t.Helper()
	var rec domain.PlayerRecord
	_, err := store.GetJSON(context.Background(), st, domain.RecordKey(id), &rec)
	require.NoError(t, err)
	return rec
}

func millis(t *testing.T, rt *domain.RaceTime) int64 {
	t.Helper()
	require.NotNil(t, rt)
	ms, ok := rt.Millis()
	require.True(t, ok)
	return ms
}

var errSteamDown = errors.New("steam down")
