package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-process Store. Versions are commit sequence numbers.
type MemoryStore struct {
	mu      sync.RWMutex
	docs    map[string]Document
	commits []string
	seq     int
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]Document)}
}

// Get reads a document.
func (s *MemoryStore) Get(ctx context.Context, key string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, key)
	}
	doc.Content = append([]byte(nil), doc.Content...)
	return &doc, nil
}

// List returns the keys under prefix, sorted.
func (s *MemoryStore) List(ctx context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for k := range s.docs {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Commit applies writes atomically.
func (s *MemoryStore) Commit(ctx context.Context, message string, writes ...Write) (*CommitInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, w := range writes {
		if err := validKey(w.Key); err != nil {
			return nil, err
		}
		cur, exists := s.docs[w.Key]
		if err := CheckVersion(w, cur.Version, exists); err != nil {
			return nil, err
		}
	}

	s.seq++
	version := fmt.Sprintf("v%d", s.seq)
	for _, w := range writes {
		s.docs[w.Key] = Document{
			Key:     w.Key,
			Content: append([]byte(nil), w.Content...),
			Version: version,
		}
	}
	s.commits = append(s.commits, message)
	return &CommitInfo{SHA: version}, nil
}

// Commits returns the messages of applied commits, oldest first.
func (s *MemoryStore) Commits() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.commits...)
}
