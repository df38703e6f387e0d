package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"questlog/internal/auth"
	"questlog/internal/campaign"
	"questlog/internal/metrics"
	"questlog/internal/relation"
	"questlog/internal/store"
)

// Limits bounds request body sizes.
type Limits struct {
	MaxBodyBytes  int64
	MaxImageBytes int64
}

// Server exposes the campaign and auth services over HTTP.
type Server struct {
	campaign *campaign.Service
	auth     *auth.Service
	logger   *slog.Logger
	limits   Limits
}

func NewServer(camp *campaign.Service, authSvc *auth.Service, logger *slog.Logger, limits Limits) *Server {
	if limits.MaxBodyBytes <= 0 {
		limits.MaxBodyBytes = 1 << 20
	}
	if limits.MaxImageBytes <= 0 {
		limits.MaxImageBytes = 5 << 20
	}
	return &Server{
		campaign: camp,
		auth:     authSvc,
		logger:   logger,
		limits:   limits,
	}
}

// Handler returns an http.Handler with all routes registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("POST /api/signup", s.handleSignup)
	mux.HandleFunc("POST /api/login", s.handleLogin)

	mux.HandleFunc("GET /api/games", s.authed(s.handleListGames))
	mux.HandleFunc("POST /api/games", s.authed(s.handleCreateGame))
	mux.HandleFunc("GET /api/games/{id}", s.authed(s.handleGetGame))

	mux.HandleFunc("GET /api/game-content", s.authed(s.handleListContent))
	mux.HandleFunc("GET /api/game-content/{type}/{id}", s.authed(s.handleGetContent))
	mux.HandleFunc("POST /api/game-content", s.authed(s.handleCreateContent))
	mux.HandleFunc("PATCH /api/game-content", s.authed(s.handleUpdateContent))
	mux.HandleFunc("DELETE /api/game-content", s.authed(s.handleDeleteContent))
	mux.HandleFunc("POST /api/game-content/connect", s.authed(s.handleConnect))
	mux.HandleFunc("POST /api/game-content/disconnect", s.authed(s.handleDisconnect))
	mux.HandleFunc("POST /api/game-content/mark-dead", s.authed(s.handleMarkDead))

	mux.HandleFunc("GET /api/game-content/notes", s.authed(s.handleListNotes))
	mux.HandleFunc("POST /api/game-content/notes", s.authed(s.handleCreateNote))
	mux.HandleFunc("PUT /api/game-content/notes", s.authed(s.handleUpdateNote))
	mux.HandleFunc("DELETE /api/game-content/notes", s.authed(s.handleDeleteNote))

	mux.HandleFunc("POST /api/relationships", s.authed(s.handleApplyRelationship))

	mux.HandleFunc("GET /api/sessions", s.authed(s.handleListSessions))
	mux.HandleFunc("POST /api/sessions", s.authed(s.handleSaveSession))
	mux.HandleFunc("GET /api/sessions/{id}", s.authed(s.handleGetSession))
	mux.HandleFunc("PATCH /api/sessions/{id}", s.authed(s.handlePatchSession))
	mux.HandleFunc("DELETE /api/sessions/{id}", s.authed(s.handleDeleteSession))
	mux.HandleFunc("POST /api/sessions/{id}/notes", s.authed(s.handleAppendSessionNote))

	mux.HandleFunc("GET /api/scenes/{id}/image", s.authed(s.handleGetSceneImage))
	mux.HandleFunc("POST /api/scenes/{id}/image", s.authed(s.handleSetSceneImage))

	return s.instrument(mux)
}

// --- middleware ---

type userKey struct{}

// authed requires a valid bearer token and stores its claims on the context.
func (s *Server) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			s.writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		claims, err := s.auth.Verify(token)
		if err != nil {
			s.writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), userKey{}, claims)))
	}
}

func userID(r *http.Request) string {
	claims, _ := r.Context().Value(userKey{}).(auth.Claims)
	return claims.ID
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// instrument counts requests by matched route pattern and status code.
func (s *Server) instrument(mux *http.ServeMux) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		mux.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
	})
}

// --- helpers ---

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decodeBody reads a size-limited JSON body into v.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.limits.MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// writeJSON encodes v as JSON and writes it to w with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encErr := json.NewEncoder(w).Encode(v); encErr != nil {
		s.logger.Error("failed to encode response", "error", encErr)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// fail maps a service error onto a status code. Server errors are logged
// and replaced by a generic message.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		s.writeError(w, status, "internal error")
		return
	}
	s.writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, campaign.ErrInvalidInput),
		errors.Is(err, relation.ErrUnknownRelationship),
		errors.Is(err, relation.ErrInvalidParam),
		errors.Is(err, auth.ErrMissingFields):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, campaign.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, campaign.ErrNotFound), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, auth.ErrEmailTaken):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func success() map[string]bool {
	return map[string]bool{"success": true}
}

// Shutdown gracefully shuts down an http.Server with the given timeout.
func Shutdown(srv *http.Server, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return srv.Shutdown(ctx)
}
