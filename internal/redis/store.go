package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/sgracers-leaderboard/internal/config"
	"github.com/sgracers-leaderboard/internal/store"
)

// DocumentStore keeps documents in Redis hashes with optimistic
// WATCH/MULTI commits.
type DocumentStore struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

var _ store.Store = (*DocumentStore)(nil)

// NewDocumentStore creates a new Redis document store
func NewDocumentStore(cfg *config.RedisConfig, logger *slog.Logger) (*DocumentStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return NewDocumentStoreWithClient(client, cfg.KeyPrefix, logger), nil
}

// NewDocumentStoreWithClient wraps an existing client.
func NewDocumentStoreWithClient(client *redis.Client, prefix string, logger *slog.Logger) *DocumentStore {
	return &DocumentStore{client: client, prefix: prefix, logger: logger}
}

// Close closes the Redis connection
func (s *DocumentStore) Close() error {
	return s.client.Close()
}

// Ping checks the connection.
func (s *DocumentStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// docKey returns the Redis hash holding a document
func (s *DocumentStore) docKey(key string) string {
	return s.prefix + "doc:" + key
}

// indexKey returns the set of all document keys
func (s *DocumentStore) indexKey() string {
	return s.prefix + "keys"
}

// Get reads a document.
func (s *DocumentStore) Get(ctx context.Context, key string) (*store.Document, error) {
	vals, err := s.client.HMGet(ctx, s.docKey(key), "content", "version").Result()
	if err != nil {
		return nil, fmt.Errorf("getting document %s: %w", key, err)
	}
	content, ok := vals[0].(string)
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrDocumentNotFound, key)
	}
	version, _ := vals[1].(string)
	return &store.Document{Key: key, Content: []byte(content), Version: version}, nil
}

// List returns the keys under prefix, sorted.
func (s *DocumentStore) List(ctx context.Context, prefix string) ([]string, error) {
	members, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	var keys []string
	for _, m := range members {
		if strings.HasPrefix(m, prefix) {
			keys = append(keys, m)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Commit watches every written document, checks expected versions and
// applies all writes in one MULTI block. A concurrent change to any watched
// key aborts the transaction.
func (s *DocumentStore) Commit(ctx context.Context, message string, writes ...store.Write) (*store.CommitInfo, error) {
	keys := make([]string, len(writes))
	for i, w := range writes {
		keys[i] = s.docKey(w.Key)
	}
	version := uuid.NewString()

	txf := func(tx *redis.Tx) error {
		for _, w := range writes {
			current, err := tx.HGet(ctx, s.docKey(w.Key), "version").Result()
			exists := err == nil
			if err != nil && !errors.Is(err, redis.Nil) {
				return fmt.Errorf("reading version of %s: %w", w.Key, err)
			}
			if err := store.CheckVersion(w, current, exists); err != nil {
				return err
			}
		}

		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, w := range writes {
				pipe.HSet(ctx, s.docKey(w.Key), "content", w.Content, "version", version)
				pipe.SAdd(ctx, s.indexKey(), w.Key)
			}
			return nil
		})
		return err
	}

	err := s.client.Watch(ctx, txf, keys...)
	if errors.Is(err, redis.TxFailedErr) {
		return nil, fmt.Errorf("%w: concurrent write", store.ErrVersionConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("committing documents: %w", err)
	}

	s.logger.Debug("committed documents", "message", message, "writes", len(writes), "version", version)
	return &store.CommitInfo{SHA: version}, nil
}

