package websocket

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sgracers-leaderboard/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startHub(t *testing.T, origins []string) (*Hub, string) {
	t.Helper()
	hub := NewHub(testLogger(), origins)
	go hub.Run()
	t.Cleanup(hub.Stop)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, testLogger(), w, r)
	}))
	t.Cleanup(srv.Close)
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestHub_PublishRecordRoutesByCategory(t *testing.T) {
	hub, url := startHub(t, nil)
	everything := dial(t, url)
	impactOnly := dial(t, url)
	require.Eventually(t, func() bool { return hub.GetTotalConnections() == 2 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, impactOnly.WriteJSON(ClientMessage{Type: MessageTypeSubscribe, Category: "impact_hard"}))
	ack := readMessage(t, impactOnly)
	assert.Equal(t, MessageTypeSubscribed, ack.Type)
	assert.Equal(t, "Impact-Hard", ack.Category)
	require.Eventually(t, func() bool { return hub.GetSubscriberCount("Impact-Hard") == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.PublishRecord(domain.RecordUpdate{Map: "Crag", Difficulty: "Easy", PlatformID: "1", TimeMs: 9000})
	msg := readMessage(t, everything)
	assert.Equal(t, MessageTypeRecordUpdate, msg.Type)
	assert.Equal(t, "Crag-Easy", msg.Category)

	hub.PublishRecord(domain.RecordUpdate{Map: "Impact", Difficulty: "Hard", PlatformID: "2", TimeMs: 12000})
	assert.Equal(t, "Impact-Hard", readMessage(t, everything).Category)
	assert.Equal(t, "Impact-Hard", readMessage(t, impactOnly).Category, "subscribed client skips other categories")

	assert.Equal(t, map[string]int{"Impact-Hard": 1}, hub.Categories())
}

func TestHub_ClientProtocol(t *testing.T) {
	hub, url := startHub(t, nil)
	conn := dial(t, url)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MessageTypePing}))
	assert.Equal(t, MessageTypePong, readMessage(t, conn).Type)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MessageTypeSubscribe, Category: "Impact"}))
	assert.Equal(t, MessageTypeError, readMessage(t, conn).Type)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	assert.Equal(t, MessageTypeError, readMessage(t, conn).Type)

	conn.Close()
	require.Eventually(t, func() bool { return hub.GetTotalConnections() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_RejectsUnknownOrigin(t *testing.T) {
	_, url := startHub(t, []string{"https://sgracers.example"})

	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("Origin", "https://sgracers.example")
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	conn.Close()
}

func TestNormalizeCategory(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"Impact-Hard", "Impact-Hard", true},
		{"impact_hard", "Impact-Hard", true},
		{"karman station-medium", "Karman_Station-Medium", true},
		{"Karman_Station_Easy", "Karman_Station-Easy", true},
		{"Impact", "", false},
		{"-Hard", "", false},
	}
	for _, tt := range tests {
		got, ok := NormalizeCategory(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
