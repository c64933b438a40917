// Package github stores documents in a GitHub repository through the Git
// Data API. Every Commit becomes one git commit on the configured branch.
package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-github/v66/github"
	"golang.org/x/oauth2"

	"github.com/sgracers-leaderboard/internal/config"
	"github.com/sgracers-leaderboard/internal/domain"
	"github.com/sgracers-leaderboard/internal/store"
)

// Store is a store.Store backed by a GitHub repository. Versions are blob
// SHAs.
type Store struct {
	client *github.Client
	owner  string
	repo   string
	branch string
	logger *slog.Logger
}

var _ store.Store = (*Store)(nil)

// NewStore creates a GitHub store. Requests are authenticated with the
// configured token when one is set.
func NewStore(cfg *config.GitHubConfig, logger *slog.Logger) (*Store, error) {
	httpClient := &http.Client{Timeout: cfg.Timeout}
	if cfg.Token != "" {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)
		httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token}))
		httpClient.Timeout = cfg.Timeout
	}

	client := github.NewClient(httpClient)
	if cfg.BaseURL != "" {
		base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("parsing github base url: %w", err)
		}
		client.BaseURL = base
	}

	return &Store{
		client: client,
		owner:  cfg.Owner,
		repo:   cfg.Repo,
		branch: cfg.Branch,
		logger: logger,
	}, nil
}

// statusOf returns the HTTP status of a failed API call, or 0.
func statusOf(err error) int {
	var apiErr *github.ErrorResponse
	if errors.As(err, &apiErr) && apiErr.Response != nil {
		return apiErr.Response.StatusCode
	}
	return 0
}

func upstream(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrUpstream, op, err)
}

// head returns the branch's commit SHA and that commit's tree SHA.
func (s *Store) head(ctx context.Context) (commitSHA, treeSHA string, err error) {
	ref, _, err := s.client.Git.GetRef(ctx, s.owner, s.repo, "heads/"+s.branch)
	if err != nil {
		return "", "", upstream("reading branch", err)
	}
	commitSHA = ref.GetObject().GetSHA()

	commit, _, err := s.client.Git.GetCommit(ctx, s.owner, s.repo, commitSHA)
	if err != nil {
		return "", "", upstream("reading head commit", err)
	}
	return commitSHA, commit.GetTree().GetSHA(), nil
}

// Ping checks that the branch can be read.
func (s *Store) Ping(ctx context.Context) error {
	_, _, err := s.head(ctx)
	return err
}

// blobs returns path -> blob SHA for every file in tree.
func (s *Store) blobs(ctx context.Context, treeSHA string) (map[string]string, error) {
	tree, _, err := s.client.Git.GetTree(ctx, s.owner, s.repo, treeSHA, true)
	if err != nil {
		return nil, upstream("reading tree", err)
	}
	if tree.GetTruncated() {
		s.logger.Warn("github tree listing truncated", "tree", treeSHA)
	}
	out := make(map[string]string, len(tree.Entries))
	for _, entry := range tree.Entries {
		if entry.GetType() == "blob" {
			out[entry.GetPath()] = entry.GetSHA()
		}
	}
	return out, nil
}
