package github

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/google/go-github/v66/github"

	"github.com/sgracers-leaderboard/internal/store"
)

// Get reads a file at the branch head.
func (s *Store) Get(ctx context.Context, key string) (*store.Document, error) {
	file, dir, _, err := s.client.Repositories.GetContents(ctx, s.owner, s.repo, key,
		&github.RepositoryContentGetOptions{Ref: s.branch})
	if statusOf(err) == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", store.ErrDocumentNotFound, key)
	}
	if err != nil {
		return nil, upstream("reading "+key, err)
	}
	if file == nil || dir != nil {
		return nil, fmt.Errorf("%w: %s is a directory", store.ErrDocumentNotFound, key)
	}

	sha := file.GetSHA()
	if file.GetEncoding() != "base64" {
		// Files over 1MB come back without inline content.
		raw, _, err := s.client.Git.GetBlobRaw(ctx, s.owner, s.repo, sha)
		if err != nil {
			return nil, upstream("reading blob "+sha, err)
		}
		return &store.Document{Key: key, Content: raw, Version: sha}, nil
	}

	content, err := file.GetContent()
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", key, err)
	}
	return &store.Document{Key: key, Content: []byte(content), Version: sha}, nil
}

// List returns the file paths under prefix at the branch head, sorted.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	_, treeSHA, err := s.head(ctx)
	if err != nil {
		return nil, err
	}
	blobs, err := s.blobs(ctx, treeSHA)
	if err != nil {
		return nil, err
	}
	var keys []string
	for path := range blobs {
		if strings.HasPrefix(path, prefix) {
			keys = append(keys, path)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Commit verifies each write against the branch head, then creates blobs,
// a tree on top of the head tree and a commit, and moves the branch without
// forcing. A head that moved in between is reported as a version conflict.
func (s *Store) Commit(ctx context.Context, message string, writes ...store.Write) (*store.CommitInfo, error) {
	headSHA, treeSHA, err := s.head(ctx)
	if err != nil {
		return nil, err
	}
	current, err := s.blobs(ctx, treeSHA)
	if err != nil {
		return nil, err
	}
	for _, w := range writes {
		sha, exists := current[w.Key]
		if err := store.CheckVersion(w, sha, exists); err != nil {
			return nil, err
		}
	}

	entries := make([]*github.TreeEntry, 0, len(writes))
	for _, w := range writes {
		blob, _, err := s.client.Git.CreateBlob(ctx, s.owner, s.repo, &github.Blob{
			Content:  github.String(base64.StdEncoding.EncodeToString(w.Content)),
			Encoding: github.String("base64"),
		})
		if err != nil {
			return nil, upstream("creating blob for "+w.Key, err)
		}
		entries = append(entries, &github.TreeEntry{
			Path: github.String(w.Key),
			Mode: github.String("100644"),
			Type: github.String("blob"),
			SHA:  blob.SHA,
		})
	}

	tree, _, err := s.client.Git.CreateTree(ctx, s.owner, s.repo, treeSHA, entries)
	if err != nil {
		return nil, upstream("creating tree", err)
	}

	commit, _, err := s.client.Git.CreateCommit(ctx, s.owner, s.repo, &github.Commit{
		Message: github.String(message),
		Tree:    &github.Tree{SHA: tree.SHA},
		Parents: []*github.Commit{{SHA: github.String(headSHA)}},
	}, nil)
	if err != nil {
		return nil, upstream("creating commit", err)
	}
	commitSHA := commit.GetSHA()

	_, _, err = s.client.Git.UpdateRef(ctx, s.owner, s.repo, &github.Reference{
		Ref:    github.String("heads/" + s.branch),
		Object: &github.GitObject{SHA: github.String(commitSHA)},
	}, false)
	if status := statusOf(err); status == http.StatusUnprocessableEntity || status == http.StatusConflict {
		return nil, fmt.Errorf("%w: branch %s moved during commit", store.ErrVersionConflict, s.branch)
	}
	if err != nil {
		return nil, upstream("updating branch", err)
	}

	commitURL := commit.GetHTMLURL()
	if commitURL == "" {
		commitURL = fmt.Sprintf("https://github.com/%s/%s/commit/%s", s.owner, s.repo, commitSHA)
	}
	s.logger.Info("committed to github", "message", message, "commit", commitSHA, "writes", len(writes))
	return &store.CommitInfo{SHA: commitSHA, URL: commitURL}, nil
}
