// Package store defines the versioned document store that holds player
// records and leaderboard snapshots.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sgracers-leaderboard/internal/domain"
)

// ErrDocumentNotFound is returned by Get for a missing key.
var ErrDocumentNotFound = errors.New("document not found")

// ErrVersionConflict is returned by Commit when a write's expected version
// no longer matches the stored document.
var ErrVersionConflict = domain.ErrVersionConflict

// AnyVersion as a Write's ExpectedVersion overwrites whatever is stored.
const AnyVersion = "*"

// Document is a stored JSON document and the version it was read at.
type Document struct {
	Key     string
	Content []byte
	Version string
}

// Write replaces one document as part of a commit. An empty
// ExpectedVersion requires that the document does not exist yet.
type Write struct {
	Key             string
	Content         []byte
	ExpectedVersion string
}

// CommitInfo identifies an applied commit.
type CommitInfo struct {
	SHA string
	URL string
}

// Store is a versioned key/value store of JSON documents. A commit applies
// all of its writes or none.
type Store interface {
	Get(ctx context.Context, key string) (*Document, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Commit(ctx context.Context, message string, writes ...Write) (*CommitInfo, error)
}

// IsNotFound reports whether err means the document is missing.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrDocumentNotFound)
}

// IsConflict reports whether err is a version conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}

// GetJSON reads key and decodes it into v. It returns the document version.
func GetJSON(ctx context.Context, s Store, key string, v any) (string, error) {
	doc, err := s.Get(ctx, key)
	if err != nil {
		return "", err
	}
	if err := json.Unmarshal(StripBOM(doc.Content), v); err != nil {
		return "", fmt.Errorf("decoding %s: %w", key, err)
	}
	return doc.Version, nil
}

// ListDocuments returns the JSON documents under prefix, sorted by key.
// Documents that disappear between List and Get are skipped.
func ListDocuments(ctx context.Context, s Store, prefix string) ([]*Document, error) {
	keys, err := s.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", prefix, err)
	}
	docs := make([]*Document, 0, len(keys))
	for _, key := range keys {
		if !domain.IsDocumentKey(key) {
			continue
		}
		doc, err := s.Get(ctx, key)
		if IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", key, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// StripBOM removes a leading UTF-8 byte order mark.
func StripBOM(b []byte) []byte {
	if len(b) >= 3 && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		return b[3:]
	}
	return b
}

// CheckVersion validates one write against the currently stored version.
// exists is false when the key is absent.
func CheckVersion(w Write, current string, exists bool) error {
	switch {
	case w.ExpectedVersion == AnyVersion:
		return nil
	case w.ExpectedVersion == "" && exists:
		return fmt.Errorf("%w: %s already exists", ErrVersionConflict, w.Key)
	case w.ExpectedVersion != "" && !exists:
		return fmt.Errorf("%w: %s was removed", ErrVersionConflict, w.Key)
	case w.ExpectedVersion != "" && w.ExpectedVersion != current:
		return fmt.Errorf("%w: %s", ErrVersionConflict, w.Key)
	}
	return nil
}

func validKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "..") {
		return fmt.Errorf("%w: bad document key %q", domain.ErrInvalidRequest, key)
	}
	return nil
}
