// Package identity maps platform user ids to friend ids.
package identity

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/sgracers-leaderboard/internal/domain"
	"github.com/sgracers-leaderboard/internal/store"
)

// Cache holds the platform id -> user id mapping document in memory. It is
// loaded on first use and stays until Invalidate or the next Load.
type Cache struct {
	store  store.Store
	logger *slog.Logger

	mu     sync.RWMutex
	ids    map[string]string
	loaded bool
}

// NewCache creates an empty cache reading from s.
func NewCache(s store.Store, logger *slog.Logger) *Cache {
	return &Cache{store: s, logger: logger}
}

// Load reads the mapping document, replacing the cached mapping. A missing
// document loads as an empty mapping.
func (c *Cache) Load(ctx context.Context) error {
	ids := make(map[string]string)

	doc, err := c.store.Get(ctx, domain.IdentityMapKey)
	switch {
	case store.IsNotFound(err):
		c.logger.Warn("identity mapping document missing", "key", domain.IdentityMapKey)
	case err != nil:
		return fmt.Errorf("loading identity mapping: %w", err)
	default:
		content := store.StripBOM(doc.Content)
		if !gjson.ValidBytes(content) {
			return fmt.Errorf("loading identity mapping: %w: invalid JSON", domain.ErrInvalidRequest)
		}
		parseMappings(gjson.ParseBytes(content), ids)
	}

	c.mu.Lock()
	c.ids = ids
	c.loaded = true
	c.mu.Unlock()

	c.logger.Info("identity mapping loaded", "entries", len(ids))
	return nil
}

// parseMappings accepts an array of entries or an object whose values are
// entries. Entries without both ids are skipped.
func parseMappings(root gjson.Result, into map[string]string) {
	root.ForEach(func(_, entry gjson.Result) bool {
		platformID := strings.TrimSpace(entry.Get("platformUserId").String())
		userID := strings.TrimSpace(entry.Get("userId").String())
		if platformID != "" && userID != "" {
			into[platformID] = userID
		}
		return true
	})
}

// Ensure loads the mapping if it has not been loaded yet.
func (c *Cache) Ensure(ctx context.Context) error {
	if c.Loaded() {
		return nil
	}
	return c.Load(ctx)
}

// Invalidate drops the cached mapping.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.ids = nil
	c.loaded = false
	c.mu.Unlock()
}

// Loaded reports whether a mapping is cached.
func (c *Cache) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

// Lookup returns the user id for a platform id.
func (c *Cache) Lookup(platformID string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.ids[strings.TrimSpace(platformID)]
	return id, ok
}

// Len returns the number of cached mappings.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.ids)
}
