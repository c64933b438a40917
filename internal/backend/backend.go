// Package backend opens the document store selected in the configuration.
package backend

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sgracers-leaderboard/internal/config"
	"github.com/sgracers-leaderboard/internal/github"
	"github.com/sgracers-leaderboard/internal/postgres"
	"github.com/sgracers-leaderboard/internal/redis"
	"github.com/sgracers-leaderboard/internal/store"
)

// Backend is an open document store plus the optional audit log.
type Backend struct {
	Store store.Store
	// Audit is set when PostgreSQL is configured, either as the store or
	// alongside another backend.
	Audit *postgres.Repository

	ping    func(ctx context.Context) error
	closers []func()
}

// Open connects to the configured store backend. PostgreSQL migrations run
// whenever a PostgreSQL connection is opened.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Backend, error) {
	b := &Backend{}

	if cfg.Store.Backend == config.BackendPostgres || cfg.Postgres.Enabled {
		logger.Info("connecting to PostgreSQL", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
		repo, err := postgres.NewRepository(&cfg.Postgres, logger)
		if err != nil {
			return nil, fmt.Errorf("opening postgres: %w", err)
		}
		b.closers = append(b.closers, repo.Close)
		if err := repo.RunMigrations(ctx); err != nil {
			b.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
		b.Audit = repo
	}

	switch cfg.Store.Backend {
	case config.BackendGitHub:
		gh, err := github.NewStore(&cfg.GitHub, logger)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("opening github store: %w", err)
		}
		b.Store, b.ping = gh, gh.Ping
		logger.Info("using GitHub document store", "owner", cfg.GitHub.Owner, "repo", cfg.GitHub.Repo, "branch", cfg.GitHub.Branch)

	case config.BackendRedis:
		logger.Info("connecting to Redis", "addr", cfg.Redis.Addr)
		rs, err := redis.NewDocumentStore(&cfg.Redis, logger)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("opening redis: %w", err)
		}
		b.closers = append(b.closers, func() { _ = rs.Close() })
		b.Store, b.ping = rs, rs.Ping

	case config.BackendPostgres:
		b.Store, b.ping = b.Audit, b.Audit.Ping

	case config.BackendFile:
		fs, err := store.NewFileStore(cfg.Store.Dir, logger)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("opening file store: %w", err)
		}
		b.Store = fs
		logger.Info("using file document store", "dir", cfg.Store.Dir)

	default:
		b.Close()
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	return b, nil
}

// Ping reports whether the store is reachable.
func (b *Backend) Ping(ctx context.Context) error {
	if b.ping == nil {
		_, err := b.Store.List(ctx, "")
		return err
	}
	return b.ping(ctx)
}

// Close releases every connection, newest first.
func (b *Backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
	b.closers = nil
}
