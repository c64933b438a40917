package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// FileStore keeps documents as files under a directory. A document's
// version is the SHA-256 of its content.
type FileStore struct {
	dir    string
	logger *slog.Logger
	mu     sync.Mutex
}

// NewFileStore creates a store rooted at dir, creating it if needed.
func NewFileStore(dir string, logger *slog.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating store dir: %w", err)
	}
	return &FileStore{dir: dir, logger: logger}, nil
}

func contentVersion(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, filepath.FromSlash(key))
}

// Get reads a document.
func (s *FileStore) Get(ctx context.Context, key string) (*Document, error) {
	if err := validKey(key); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	return &Document{Key: key, Content: data, Version: contentVersion(data)}, nil
}

// List returns the keys under prefix, sorted.
func (s *FileStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(s.dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		rel, err := filepath.Rel(s.dir, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking store dir: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Commit checks every write's expected version, then writes all files.
func (s *FileStore) Commit(ctx context.Context, message string, writes ...Write) (*CommitInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, w := range writes {
		if err := validKey(w.Key); err != nil {
			return nil, err
		}
		current, err := s.Get(ctx, w.Key)
		exists := err == nil
		if err != nil && !IsNotFound(err) {
			return nil, err
		}
		version := ""
		if exists {
			version = current.Version
		}
		if err := CheckVersion(w, version, exists); err != nil {
			return nil, err
		}
	}

	for _, w := range writes {
		if err := s.writeFile(w.Key, w.Content); err != nil {
			return nil, err
		}
	}

	info := &CommitInfo{SHA: uuid.NewString()}
	s.logger.Info("committed documents", "message", message, "writes", len(writes), "commit", info.SHA)
	return info, nil
}

func (s *FileStore) writeFile(key string, content []byte) error {
	p := s.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("creating dir for %s: %w", key, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), ".tmp-*")
	if err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return fmt.Errorf("replacing %s: %w", key, err)
	}
	return nil
}
