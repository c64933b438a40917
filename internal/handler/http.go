package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sgracers-leaderboard/internal/domain"
	"github.com/sgracers-leaderboard/internal/service"
	"github.com/sgracers-leaderboard/internal/websocket"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Handler provides HTTP handlers for the leaderboard API
type Handler struct {
	service  *service.LeaderboardService
	hub      *websocket.Hub
	gatherer prometheus.Gatherer
	limiter  *IPRateLimiter
	origins  []string
	ready    func(ctx context.Context) error
	logger   *slog.Logger
}

// Option configures optional handler features.
type Option func(*Handler)

// WithMetrics serves gatherer on /metrics.
func WithMetrics(gatherer prometheus.Gatherer) Option {
	return func(h *Handler) { h.gatherer = gatherer }
}

// WithRateLimit throttles write endpoints per client IP.
func WithRateLimit(l *IPRateLimiter) Option {
	return func(h *Handler) { h.limiter = l }
}

// WithAllowedOrigins restricts CORS to origins. Without it any origin is
// allowed.
func WithAllowedOrigins(origins []string) Option {
	return func(h *Handler) { h.origins = origins }
}

// WithReadiness makes /ready report the result of check.
func WithReadiness(check func(ctx context.Context) error) Option {
	return func(h *Handler) { h.ready = check }
}

// NewHandler creates a new HTTP handler. hub may be nil when the live feed
// is disabled.
func NewHandler(svc *service.LeaderboardService, hub *websocket.Hub, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		service: svc,
		hub:     hub,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// APIResponse wraps the operational endpoints' payloads.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ErrorResponse is the body of a failed leaderboard API call.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware(h.origins))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		h.writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "Not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		h.writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "Method not allowed"})
	})

	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)
	if h.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}
	if h.hub != nil {
		r.Get("/ws", h.HandleWebSocket)
		r.Get("/api/ws/stats", h.GetWebSocketStats)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/generate-leaderboard", h.GenerateLeaderboard)
		r.Post("/generate-leaderboard", h.GenerateLeaderboard)
		r.Get("/leaderboard-data", h.LeaderboardData)
		r.Post("/leaderboard-data", h.LeaderboardData)
		r.Get("/leaderboard", h.Snapshot)
		r.Post("/friend-lb", h.FriendLeaderboard)

		r.Group(func(r chi.Router) {
			if h.limiter != nil {
				r.Use(RateLimitMiddleware(h.limiter))
			}
			r.Post("/update-pb", h.UpdatePB)
			r.Post("/update-username", h.UpdateUsername)
		})
	})

	return r
}

// corsMiddleware adds CORS headers. With no configured origins every origin
// is allowed.
func corsMiddleware(allowed []string) func(http.Handler) http.Handler {
	origins := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		origins[o] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			switch {
			case len(origins) == 0:
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case origin != "":
				if _, ok := origins[origin]; ok {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Add("Vary", "Origin")
				}
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

// writeRaw writes an already encoded JSON body.
func (h *Handler) writeRaw(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, data interface{}) {
	h.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeError writes an error body with the given status.
func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, ErrorResponse{Error: msg})
}

// writeServiceError maps a service error onto a status code and body.
// Unexpected errors are logged and hidden from the client.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	switch status {
	case http.StatusUnauthorized:
		body := ErrorResponse{Error: "Authentication failed", Message: detail(err, domain.ErrUnauthorized)}
		if errors.Is(err, domain.ErrAuthRequired) {
			body = ErrorResponse{Error: "Authentication required", Message: detail(err, domain.ErrAuthRequired)}
		}
		h.writeJSON(w, status, body)
	case http.StatusInternalServerError:
		h.logger.Error("request failed",
			"operation", op,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
		h.writeError(w, status, "Internal server error")
	default:
		h.writeError(w, status, err.Error())
	}
}

func statusFor(err error) int {
	switch {
	case domain.IsAuthError(err):
		return http.StatusUnauthorized
	case domain.IsValidationError(err):
		return http.StatusBadRequest
	case domain.IsNotFoundError(err):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// detail returns the text wrapped around sentinel, e.g. "Steam auth ticket
// required" for "authentication required: Steam auth ticket required".
func detail(err, sentinel error) string {
	msg := err.Error()
	if i := strings.Index(msg, sentinel.Error()+": "); i >= 0 {
		return msg[i+len(sentinel.Error())+2:]
	}
	return ""
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWs(h.hub, h.logger, w, r)
}

// GetWebSocketStats returns WebSocket connection statistics
func (h *Handler) GetWebSocketStats(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]interface{}{
		"total_connections": h.hub.GetTotalConnections(),
		"categories":        h.hub.Categories(),
	})
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "healthy"})
}

// ReadyCheck reports whether the document store is reachable.
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := h.ready(ctx); err != nil {
			h.logger.Warn("readiness check failed", "error", err)
			h.writeJSON(w, http.StatusServiceUnavailable, APIResponse{Success: false, Error: "not ready"})
			return
		}
	}
	h.writeSuccess(w, map[string]string{"status": "ready"})
}
