package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_AppliesDefaultsAndExpandsEnv(t *testing.T) {
	t.Setenv("LB_GITHUB_TOKEN", "secret-token")
	path := writeConfig(t, `
github:
  owner: sgracers
  repo: leaderboard-data
  token: ${LB_GITHUB_TOKEN}
store:
  max_commit_attempts: 5
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "secret-token", cfg.GitHub.Token)
	assert.Equal(t, BackendGitHub, cfg.Store.Backend)
	assert.Equal(t, 5, cfg.Store.MaxCommitAttempts)
	assert.Equal(t, "main", cfg.GitHub.Branch)
	assert.Equal(t, "677620", cfg.Steam.AppID)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Minute, cfg.Snapshots.RebuildInterval)
}

func TestLoad_RejectsIncompleteBackend(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "github without repo", body: "github:\n  owner: someone\n"},
		{name: "file without dir", body: "store:\n  backend: file\n"},
		{name: "unknown backend", body: "store:\n  backend: s3\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.True(t, cfg.Snapshots.Enabled)
	assert.Equal(t, 3, cfg.Store.MaxCommitAttempts)
	assert.Equal(t, "6f8a00c365494faab7893d0610a4f7c7", cfg.Identity.DefaultFriendID)
}

func TestConnectionString(t *testing.T) {
	c := PostgresConfig{User: "lb", Password: "pw", Host: "db", Port: 5432, Database: "races"}
	assert.Equal(t, "postgres://lb:pw@db:5432/races?sslmode=disable", c.ConnectionString())
}
