package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sgracers-leaderboard/internal/service"
)

// Rebuilder regenerates the leaderboard snapshots.
type Rebuilder interface {
	RebuildSnapshots(ctx context.Context) (*service.RebuildResult, error)
}

// Reloader refreshes a cached document.
type Reloader interface {
	Load(ctx context.Context) error
}

// SnapshotWorker periodically rebuilds the board snapshots from the PB
// records and reloads the identity mapping.
type SnapshotWorker struct {
	rebuilder       Rebuilder
	identity        Reloader
	rebuildInterval time.Duration
	reloadInterval  time.Duration
	logger          *slog.Logger
	stopCh          chan struct{}
	doneCh          chan struct{}
	mu              sync.Mutex
	running         bool
}

// NewSnapshotWorker creates a new snapshot worker. A zero interval disables
// that job; identity may be nil.
func NewSnapshotWorker(
	rebuilder Rebuilder,
	identity Reloader,
	rebuildInterval, reloadInterval time.Duration,
	logger *slog.Logger,
) *SnapshotWorker {
	return &SnapshotWorker{
		rebuilder:       rebuilder,
		identity:        identity,
		rebuildInterval: rebuildInterval,
		reloadInterval:  reloadInterval,
		logger:          logger,
	}
}

// Start begins the background jobs. A stopped worker can be started again.
func (w *SnapshotWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	stop, done := w.stopCh, w.doneCh
	w.mu.Unlock()

	w.logger.Info("snapshot worker started",
		"rebuild_interval", w.rebuildInterval,
		"reload_interval", w.reloadInterval,
	)

	go w.run(ctx, stop, done)
	return nil
}

// Stop stops the background jobs and waits for a running cycle to finish.
func (w *SnapshotWorker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	stop, done := w.stopCh, w.doneCh
	w.mu.Unlock()

	close(stop)
	<-done

	w.logger.Info("snapshot worker stopped")
	return nil
}

// tickerChan returns a ticker channel, or nil (never fires) for a zero
// interval.
func tickerChan(d time.Duration) (<-chan time.Time, func()) {
	if d <= 0 {
		return nil, func() {}
	}
	t := time.NewTicker(d)
	return t.C, t.Stop
}

func (w *SnapshotWorker) run(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	rebuild, stopRebuild := tickerChan(w.rebuildInterval)
	defer stopRebuild()
	reload, stopReload := tickerChan(w.reloadInterval)
	defer stopReload()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-rebuild:
			w.rebuildAll(ctx)
		case <-reload:
			w.reloadIdentity(ctx)
		}
	}
}

func (w *SnapshotWorker) rebuildAll(ctx context.Context) {
	w.logger.Info("starting snapshot rebuild")
	startTime := time.Now()

	result, err := w.rebuilder.RebuildSnapshots(ctx)
	if err != nil {
		w.logger.Error("snapshot rebuild failed", "error", err, "duration", time.Since(startTime))
		return
	}
	w.logger.Info("snapshot rebuild completed",
		"duration", time.Since(startTime),
		"boards", result.Boards,
		"changed", result.Changed,
	)
}

func (w *SnapshotWorker) reloadIdentity(ctx context.Context) {
	if w.identity == nil {
		return
	}
	if err := w.identity.Load(ctx); err != nil {
		w.logger.Warn("identity mapping reload failed", "error", err)
	}
}

// IsRunning returns whether the worker is currently running
func (w *SnapshotWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// RunOnce reloads the identity mapping and rebuilds snapshots immediately.
func (w *SnapshotWorker) RunOnce(ctx context.Context) {
	w.reloadIdentity(ctx)
	w.rebuildAll(ctx)
}
