package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sgracers-leaderboard/internal/config"
	"github.com/sgracers-leaderboard/internal/domain"
	"github.com/sgracers-leaderboard/internal/store"
)

// Repository provides PostgreSQL-based document storage and the
// submission audit log
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ store.Store = (*Repository)(nil)

// NewRepository creates a new PostgreSQL repository
func NewRepository(cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Repository{
		pool:   pool,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

// Ping checks the connection.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// RunMigrations executes database migrations
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			key VARCHAR(512) PRIMARY KEY,
			content BYTEA NOT NULL,
			version VARCHAR(64) NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS document_commits (
			id VARCHAR(64) PRIMARY KEY,
			message TEXT NOT NULL,
			keys TEXT[] NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS submission_events (
			id BIGSERIAL PRIMARY KEY,
			platform_id VARCHAR(64) NOT NULL,
			platform VARCHAR(32) NOT NULL,
			map VARCHAR(64) NOT NULL,
			difficulty VARCHAR(32) NOT NULL,
			time_ms BIGINT NOT NULL,
			outcome VARCHAR(20) NOT NULL,
			metadata JSONB,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_key_prefix ON documents(key text_pattern_ops)`,
		`CREATE INDEX IF NOT EXISTS idx_submission_events_player ON submission_events(platform_id, created_at DESC)`,
	}

	for _, migration := range migrations {
		_, err := r.pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}

// Get reads a document.
func (r *Repository) Get(ctx context.Context, key string) (*store.Document, error) {
	doc := store.Document{Key: key}
	err := r.pool.QueryRow(ctx, `SELECT content, version FROM documents WHERE key = $1`, key).
		Scan(&doc.Content, &doc.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", store.ErrDocumentNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("getting document: %w", err)
	}
	return &doc, nil
}

// List returns the keys under prefix, sorted.
func (r *Repository) List(ctx context.Context, prefix string) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT key FROM documents WHERE key LIKE $1 || '%' ORDER BY key`, escapeLike(prefix))
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	keys, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scanning document keys: %w", err)
	}
	return keys, nil
}

// Commit applies writes in one transaction. Existing rows are locked and
// their versions checked before anything is written.
func (r *Repository) Commit(ctx context.Context, message string, writes ...store.Write) (*store.CommitInfo, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	version := uuid.NewString()
	keys := make([]string, 0, len(writes))
	now := time.Now()

	for _, w := range writes {
		var current string
		err := tx.QueryRow(ctx, `SELECT version FROM documents WHERE key = $1 FOR UPDATE`, w.Key).Scan(&current)
		exists := err == nil
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("locking %s: %w", w.Key, err)
		}
		if err := store.CheckVersion(w, current, exists); err != nil {
			return nil, err
		}

		switch {
		case exists || w.ExpectedVersion == store.AnyVersion:
			_, err = tx.Exec(ctx, `
				INSERT INTO documents (key, content, version, updated_at)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (key) DO UPDATE SET content = $2, version = $3, updated_at = $4
			`, w.Key, w.Content, version, now)
			if err != nil {
				return nil, fmt.Errorf("writing %s: %w", w.Key, err)
			}
		default:
			res, err := tx.Exec(ctx, `
				INSERT INTO documents (key, content, version, updated_at)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (key) DO NOTHING
			`, w.Key, w.Content, version, now)
			if err != nil {
				return nil, fmt.Errorf("inserting %s: %w", w.Key, err)
			}
			if res.RowsAffected() == 0 {
				return nil, fmt.Errorf("%w: %s created concurrently", store.ErrVersionConflict, w.Key)
			}
		}
		keys = append(keys, w.Key)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO document_commits (id, message, keys, created_at) VALUES ($1, $2, $3, $4)`,
		version, message, keys, now)
	if err != nil {
		return nil, fmt.Errorf("recording commit: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return &store.CommitInfo{SHA: version}, nil
}

// RecordEvent records a submission event for auditing
func (r *Repository) RecordEvent(ctx context.Context, event domain.SubmissionEvent) error {
	var metadataJSON []byte
	var err error
	if event.Metadata != nil {
		metadataJSON, err = json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("marshaling metadata: %w", err)
		}
	}

	query := `
		INSERT INTO submission_events (platform_id, platform, map, difficulty, time_ms, outcome, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = r.pool.Exec(ctx, query,
		event.PlatformID,
		event.Platform,
		event.Map,
		event.Difficulty,
		event.TimeMs,
		string(event.Outcome),
		metadataJSON,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("recording event: %w", err)
	}
	return nil
}

// RecentEvents returns a player's latest submission events, newest first.
func (r *Repository) RecentEvents(ctx context.Context, platformID string, limit int) ([]domain.SubmissionEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT platform_id, platform, map, difficulty, time_ms, outcome, created_at
		FROM submission_events
		WHERE platform_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, platformID, limit)
	if err != nil {
		return nil, fmt.Errorf("getting submission events: %w", err)
	}
	defer rows.Close()

	var events []domain.SubmissionEvent
	for rows.Next() {
		var e domain.SubmissionEvent
		var outcome string
		if err := rows.Scan(&e.PlatformID, &e.Platform, &e.Map, &e.Difficulty, &e.TimeMs, &outcome, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		e.Outcome = domain.SubmissionOutcome(outcome)
		events = append(events, e)
	}
	return events, rows.Err()
}

func escapeLike(s string) string {
	out := make([]rune, 0, len(s))
	for _, c := range s {
		if c == '%' || c == '_' || c == '\\' {
			out = append(out, '\\')
		}
		out = append(out, c)
	}
	return string(out)
}
