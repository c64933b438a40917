package steam

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/sgracers-leaderboard/internal/config"
	"github.com/sgracers-leaderboard/internal/domain"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(&config.SteamConfig{
		APIKey:            "key",
		AppID:             "677620",
		BaseURL:           srv.URL,
		Timeout:           2 * time.Second,
		RequestsPerSecond: 100,
		Burst:             10,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestVerifyTicket(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ISteamUserAuth/AuthenticateUserTicket/v1/", r.URL.Path)
		assert.Equal(t, "677620", r.URL.Query().Get("appid"))
		assert.Equal(t, "key", r.URL.Query().Get("key"))
		switch r.URL.Query().Get("ticket") {
		case "good":
			fmt.Fprint(w, `{"response":{"params":{"result":"OK","steamid":"7656"}}}`)
		case "other":
			fmt.Fprint(w, `{"response":{"params":{"result":"OK","steamid":"9999"}}}`)
		case "down":
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			fmt.Fprint(w, `{"response":{"error":{"errorcode":101,"errordesc":"Invalid ticket"}}}`)
		}
	})
	ctx := context.Background()

	ok, err := client.VerifyTicket(ctx, "7656", "good")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = client.VerifyTicket(ctx, "7656", "other")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = client.VerifyTicket(ctx, "7656", "bad")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = client.VerifyTicket(ctx, "7656", "")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = client.VerifyTicket(ctx, "7656", "down")
	assert.ErrorIs(t, err, domain.ErrUpstream)
}

func TestPersonaName(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ISteamUser/GetPlayerSummaries/v2/", r.URL.Path)
		if r.URL.Query().Get("steamids") == "7656" {
			fmt.Fprint(w, `{"response":{"players":[{"steamid":"7656","personaname":"Speedy"}]}}`)
			return
		}
		fmt.Fprint(w, `{"response":{"players":[]}}`)
	})

	name, err := client.PersonaName(context.Background(), "7656")
	require.NoError(t, err)
	assert.Equal(t, "Speedy", name)

	name, err = client.PersonaName(context.Background(), "1")
	require.NoError(t, err)
	assert.Empty(t, name)
}

func TestClient_RespectsContextWhileThrottled(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"response":{"players":[]}}`)
	})
	client.limiter = rate.NewLimiter(rate.Limit(0.001), 1)

	_, err := client.PersonaName(context.Background(), "1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = client.PersonaName(ctx, "1")
	assert.Error(t, err)
}
