package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sgracers-leaderboard/internal/domain"
	"github.com/sgracers-leaderboard/internal/identity"
	"github.com/sgracers-leaderboard/internal/metrics"
	"github.com/sgracers-leaderboard/internal/service"
	"github.com/sgracers-leaderboard/internal/store"
)

const steamID = "76561198000000042"

type stubVerifier struct{}

func (stubVerifier) VerifyTicket(_ context.Context, platformID, ticket string) (bool, error) {
	return platformID == steamID && ticket == "good-ticket", nil
}

func (stubVerifier) PersonaName(_ context.Context, platformID string) (string, error) {
	return "Racer", nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	store   *store.MemoryStore
	handler http.Handler
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	st := store.NewMemoryStore()
	logger := testLogger()
	svc := service.NewLeaderboardService(st, identity.NewCache(st, logger),
		service.Config{DefaultFriendID: "default-friend"}, logger,
		service.WithVerifier(stubVerifier{}))
	return &fixture{store: st, handler: NewHandler(svc, nil, logger, opts...).Router()}
}

func (f *fixture) seed(t *testing.T, key, content string) {
	t.Helper()
	_, err := f.store.Commit(context.Background(), "seed", store.Write{Key: key, Content: []byte(content), ExpectedVersion: store.AnyVersion})
	require.NoError(t, err)
}

func (f *fixture) seedPlayers(t *testing.T) {
	f.seed(t, domain.RecordKey("p1"), `{"userId":"p1","platform":"steam","displayName":"One","bestTimes":{"Impact":{"Hard":12000}}}`)
	f.seed(t, domain.RecordKey("p2"), `{"userId":"p2","platform":"steam","displayName":"Two","bestTimes":{"Impact":{"Hard":"0:11.500"},"Crag":{"Easy":9000}}}`)
}

func (f *fixture) do(t *testing.T, method, target, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestUpdatePB(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/update-pb",
		`{"platform":"steam","platformuserid":"`+steamID+`","map":"impact","difficulty":"hard","timems":"12500"}`,
		"Authorization", "Bearer good-ticket")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"success":true,"message":"New personal best recorded!","oldTime":null,"newTime":12500,"displayName":"Racer","displayNameUpdated":true}`, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/update-pb",
		`{"platform":"steam","platformUserId":"`+steamID+`","map":"Impact","difficulty":"Hard","timeMs":13000}`,
		"Authorization", "good-ticket")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":false,"message":"Existing time is faster","currentPb":12500,"submittedTime":13000,"displayName":"Racer","displayNameUpdated":false}`, rec.Body.String())
}

func TestUpdatePB_Errors(t *testing.T) {
	f := newFixture(t)
	body := `{"platform":"steam","platformUserId":"` + steamID + `","map":"Impact","difficulty":"Hard","timeMs":12000}`

	tests := []struct {
		name       string
		method     string
		body       string
		header     []string
		wantStatus int
		wantError  string
	}{
		{name: "no ticket", method: http.MethodPost, body: body, wantStatus: http.StatusUnauthorized, wantError: "Authentication required"},
		{name: "bad ticket", method: http.MethodPost, body: body, header: []string{"Authorization", "Token nope"}, wantStatus: http.StatusUnauthorized, wantError: "Authentication failed"},
		{name: "invalid json", method: http.MethodPost, body: `{"platform":`, wantStatus: http.StatusBadRequest, wantError: "Invalid JSON"},
		{name: "missing fields", method: http.MethodPost, body: `{"platform":"oculus"}`, wantStatus: http.StatusBadRequest},
		{name: "wrong method", method: http.MethodGet, wantStatus: http.StatusMethodNotAllowed, wantError: "Method not allowed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, tt.method, "/api/update-pb", tt.body, tt.header...)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, resp.Error)
			} else {
				assert.NotEmpty(t, resp.Error)
			}
		})
	}
	assert.Empty(t, f.store.Commits())
}

func TestGenerateLeaderboard(t *testing.T) {
	f := newFixture(t)
	f.seedPlayers(t)

	rec := f.do(t, http.MethodGet, "/api/generate-leaderboard?map=impact&difficulty=hard&length=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"compositeUserId":{"platform":"steam","platformId":"p2"},"value":"0:11.500","displayName":"Two"}]`, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/generate-leaderboard?category=Crag-Easy", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"compositeUserId":{"platform":"steam","platformId":"p2"},"value":9000,"displayName":"Two"}]`, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/generate-leaderboard",
		`{"leaderboards":[{"map":"Impact","difficulty":"Hard","length":"all"},{"map":"Crag","difficulty":"Easy","length":1},{"map":"Nowhere","difficulty":"Easy"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var nested map[string]map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &nested))
	assert.Contains(t, string(nested["Impact"]["Hard"]), `"p1"`)
	assert.Contains(t, string(nested["Crag"]["Easy"]), `"p2"`)
	assert.Contains(t, string(nested["Nowhere"]["Easy"]), `"error"`)

	q := url.Values{"leaderboards": {`[{"map":"Crag","difficulty":"Easy"}]`}, "format": {"flat"}}
	rec = f.do(t, http.MethodGet, "/api/generate-leaderboard?"+q.Encode(), "")
	require.Equal(t, http.StatusOK, rec.Code)
	var flat map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &flat))
	assert.Contains(t, flat, "Crag-Easy")

	rec = f.do(t, http.MethodGet, "/api/generate-leaderboard?map=Impact", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLeaderboardData(t *testing.T) {
	f := newFixture(t)
	f.seedPlayers(t)

	rec := f.do(t, http.MethodPost, "/api/leaderboard-data",
		`{"platformId":"p1","leaderboards":[{"map":"Impact","difficulty":"Hard"},{"map":"Crag","difficulty":"Easy"}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{
		"platformId": "p1",
		"displayName": "One",
		"Impact": {"Hard": {"position": 2, "totalPlayers": 2, "time": 12000}},
		"Crag": {"Easy": {"position": null, "totalPlayers": 1, "time": null}}
	}`, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/leaderboard-data?leaderboards=[]", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/leaderboard-data?displayName=One&leaderboards=notjson", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateUsername(t *testing.T) {
	f := newFixture(t)
	f.seedPlayers(t)

	rec := f.do(t, http.MethodPost, "/api/update-username", `{"platformUserId":"ghost","newDisplayName":"Boo"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"success":false,"message":"User not found in any leaderboard"}`, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/update-username", `{"platformUserId":"p1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/update-username", `{"platformUserId":"p1","newDisplayName":"Uno"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var res service.RenameResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.Success)
	assert.True(t, res.RecordUpdated)
}

func TestSnapshot(t *testing.T) {
	f := newFixture(t)
	f.seed(t, domain.SnapshotKey("Impact", "Hard"), "\ufeff[{\"displayName\": \"A\"}, {\"displayName\": \"B\"}]")

	rec := f.do(t, http.MethodGet, "/api/leaderboard?type=RACE&category=Impact-Hard", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `[{"displayName":"A"},{"displayName":"B"}]`, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/leaderboard?type=RACE&category=Silo-Hard", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/leaderboard?type=TIME&category=Impact-Hard", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFriendLeaderboard(t *testing.T) {
	f := newFixture(t)
	f.seedPlayers(t)
	f.seed(t, domain.IdentityMapKey, `{"p1":{"platformUserId":"p1","userId":"friend-1"}}`)

	rec := f.do(t, http.MethodPost, "/api/friend-lb", `{"category":"Impact","difficulty":"Hard"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var board []domain.LeaderboardEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &board))
	require.Len(t, board, 2)
	assert.Equal(t, "default-friend", board[0].CompositeUserID.FriendID)
	assert.Equal(t, "friend-1", board[1].CompositeUserID.FriendID)

	rec = f.do(t, http.MethodPost, "/api/friend-lb", `{"category":"Nowhere","difficulty":"Hard"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/friend-lb", `{"category":"Impact"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/friend-lb", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRateLimitOnWrites(t *testing.T) {
	f := newFixture(t, WithRateLimit(NewIPRateLimiter(0.001, 1)))

	body := `{"platformUserId":"ghost","newDisplayName":"Boo"}`
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/api/update-username", body).Code)
	rec := f.do(t, http.MethodPost, "/api/update-username", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.JSONEq(t, `{"error":"Too many requests"}`, rec.Body.String())

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/generate-leaderboard?map=Impact&difficulty=Hard", "").Code,
		"reads are not limited")
}

func TestOperationalEndpoints(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics.New(reg)
	f := newFixture(t,
		WithMetrics(reg),
		WithReadiness(func(context.Context) error { return errors.New("store down") }),
	)

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, f.do(t, http.MethodGet, "/ready", "").Code)

	rec := f.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodOptions, "/api/update-pb", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/nothing", "").Code)
}

func TestAuthTicket(t *testing.T) {
	for header, want := range map[string]string{
		"Bearer abc":  "abc",
		"Token  abc ": "abc",
		" abc ":       "abc",
		"":            "",
	} {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("Authorization", header)
		assert.Equal(t, want, authTicket(req), header)
	}
}
