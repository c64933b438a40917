package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sgracers-leaderboard/internal/domain"
)

// decodeBody reads a JSON request body into v. An empty body leaves v
// untouched. It writes a 400 and returns false on malformed input.
func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		h.logger.Debug("invalid request body", "path", r.URL.Path, "error", err)
		h.writeError(w, http.StatusBadRequest, "Invalid JSON")
		return false
	}
	return true
}

// authTicket extracts the session ticket from the Authorization header,
// accepting "Bearer <t>", "Token <t>" or the bare ticket.
func authTicket(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	for _, scheme := range []string{"Bearer ", "Token "} {
		if strings.HasPrefix(header, scheme) {
			return strings.TrimSpace(header[len(scheme):])
		}
	}
	return header
}

// UpdatePB records a finished run.
func (h *Handler) UpdatePB(w http.ResponseWriter, r *http.Request) {
	var sub domain.Submission
	if !h.decodeBody(w, r, &sub) {
		return
	}
	sub.AuthTicket = authTicket(r)

	result, err := h.service.SubmitTime(r.Context(), sub)
	if err != nil {
		h.writeServiceError(w, r, "update-pb", err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// boardParams are the generate-leaderboard inputs from either the query
// string or a JSON body.
type boardParams struct {
	Map          string
	Difficulty   string
	Category     string
	Length       domain.Length
	Leaderboards []domain.LeaderboardRequest
	Flat         bool
}

func (h *Handler) readBoardParams(w http.ResponseWriter, r *http.Request) (boardParams, bool) {
	if r.Method == http.MethodGet {
		q := r.URL.Query()
		return boardParams{
			Map:          q.Get("map"),
			Difficulty:   q.Get("difficulty"),
			Category:     q.Get("category"),
			Length:       domain.ParseLength(q.Get("length")),
			Leaderboards: h.parseBoardList(json.RawMessage(q.Get("leaderboards"))),
			Flat:         q.Get("format") == "flat",
		}, true
	}

	var body struct {
		Map          string          `json:"map"`
		Difficulty   string          `json:"difficulty"`
		Category     string          `json:"category"`
		Length       json.RawMessage `json:"length"`
		Leaderboards json.RawMessage `json:"leaderboards"`
		Format       string          `json:"format"`
	}
	if !h.decodeBody(w, r, &body) {
		return boardParams{}, false
	}
	return boardParams{
		Map:          body.Map,
		Difficulty:   body.Difficulty,
		Category:     body.Category,
		Length:       lengthParam(body.Length),
		Leaderboards: h.parseBoardList(body.Leaderboards),
		Flat:         body.Format == "flat",
	}, true
}

// lengthParam reads a top-level length, which may be a number or a string.
// Anything unusable means the default.
func lengthParam(raw json.RawMessage) domain.Length {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return domain.ParseLength(s)
	}
	return domain.ParseLength(string(raw))
}

// parseBoardList accepts a request array or a string holding one. Input
// that does not parse is ignored so single-board parameters still apply.
func (h *Handler) parseBoardList(raw json.RawMessage) []domain.LeaderboardRequest {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err == nil {
		raw = json.RawMessage(encoded)
	}
	var reqs []domain.LeaderboardRequest
	if err := json.Unmarshal(raw, &reqs); err != nil {
		h.logger.Warn("ignoring unparseable leaderboards parameter", "error", err)
		return nil
	}
	return reqs
}

// GenerateLeaderboard serves one board (map + difficulty, or category) or a
// batch of boards (leaderboards).
func (h *Handler) GenerateLeaderboard(w http.ResponseWriter, r *http.Request) {
	p, ok := h.readBoardParams(w, r)
	if !ok {
		return
	}

	if len(p.Leaderboards) > 0 {
		agg, err := h.service.GetLeaderboards(r.Context(), p.Leaderboards)
		if err != nil {
			h.writeServiceError(w, r, "generate-leaderboard", err)
			return
		}
		if p.Flat {
			h.writeJSON(w, http.StatusOK, agg.Flat())
			return
		}
		h.writeJSON(w, http.StatusOK, agg)
		return
	}

	req := domain.LeaderboardRequest{Map: p.Map, Difficulty: p.Difficulty, Length: p.Length}
	if p.Category != "" {
		fallback := p.Difficulty
		if fallback == "" {
			fallback = string(domain.DifficultyMedium)
		}
		req.Map, req.Difficulty = domain.SplitCategory(p.Category, fallback)
		req.Length = domain.TopN(domain.DefaultLength)
	}

	board, err := h.service.GetLeaderboard(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, "generate-leaderboard", err)
		return
	}
	h.writeJSON(w, http.StatusOK, board)
}

// LeaderboardData reports a player's standing on several boards.
func (h *Handler) LeaderboardData(w http.ResponseWriter, r *http.Request) {
	var (
		who  domain.PlayerIdentity
		reqs []domain.LeaderboardRequest
	)

	if r.Method == http.MethodGet {
		q := r.URL.Query()
		who = domain.PlayerIdentity{DisplayName: q.Get("displayName"), PlatformID: q.Get("platformId")}
		if raw := q.Get("leaderboards"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &reqs); err != nil {
				h.writeError(w, http.StatusBadRequest, "Invalid leaderboards parameter")
				return
			}
		}
	} else {
		var body struct {
			domain.PlayerIdentity
			Leaderboards []domain.LeaderboardRequest `json:"leaderboards"`
		}
		if !h.decodeBody(w, r, &body) {
			return
		}
		who, reqs = body.PlayerIdentity, body.Leaderboards
	}

	summary, err := h.service.GetPlayerSummary(r.Context(), who, reqs)
	if err != nil {
		h.writeServiceError(w, r, "leaderboard-data", err)
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}

// UpdateUsername renames a player everywhere they appear.
func (h *Handler) UpdateUsername(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PlatformUserID string `json:"platformUserId"`
		NewDisplayName string `json:"newDisplayName"`
	}
	if !h.decodeBody(w, r, &body) {
		return
	}

	result, err := h.service.RenamePlayer(r.Context(), body.PlatformUserID, body.NewDisplayName)
	switch {
	case errors.Is(err, domain.ErrMissingFields):
		h.writeError(w, http.StatusBadRequest, "Missing required fields")
	case errors.Is(err, domain.ErrPlayerNotFound):
		h.writeJSON(w, http.StatusNotFound, map[string]interface{}{
			"success": false,
			"message": "User not found in any leaderboard",
		})
	case err != nil:
		h.writeServiceError(w, r, "update-username", err)
	default:
		h.writeJSON(w, http.StatusOK, result)
	}
}

// Snapshot serves the top of a stored board snapshot.
func (h *Handler) Snapshot(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	category := q.Get("category")
	if q.Get("type") != "RACE" || category == "" {
		h.writeError(w, http.StatusBadRequest, "Invalid parameters")
		return
	}

	data, err := h.service.GetSnapshot(r.Context(), category)
	switch {
	case errors.Is(err, domain.ErrLeaderboardNotFound):
		h.writeJSON(w, http.StatusNotFound, ErrorResponse{
			Error:   "Leaderboard not found",
			Message: fmt.Sprintf("No snapshot for %s", category),
		})
	case errors.Is(err, domain.ErrInternalError):
		h.logger.Error("invalid snapshot", "category", category, "error", err)
		h.writeError(w, http.StatusInternalServerError, "Invalid leaderboard data")
	case err != nil:
		h.writeServiceError(w, r, "leaderboard", err)
	default:
		h.writeRaw(w, data)
	}
}

// FriendLeaderboard serves a whole board in the in-game friend format.
func (h *Handler) FriendLeaderboard(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Category   string `json:"category"`
		Difficulty string `json:"difficulty"`
	}
	if !h.decodeBody(w, r, &body) {
		return
	}
	if body.Category == "" || body.Difficulty == "" {
		h.writeError(w, http.StatusBadRequest, "Missing category or difficulty")
		return
	}

	board, err := h.service.GetFriendLeaderboard(r.Context(), body.Category, body.Difficulty)
	if errors.Is(err, domain.ErrLeaderboardNotFound) {
		h.writeError(w, http.StatusNotFound, "Leaderboard not found")
		return
	}
	if err != nil {
		h.writeServiceError(w, r, "friend-lb", err)
		return
	}
	h.writeJSON(w, http.StatusOK, board)
}
