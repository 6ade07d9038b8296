// Package httpapi exposes the coaching loop over HTTP. Every endpoint
// renders the same reply model the CLI and TUI consume, so a turn looks
// identical no matter which surface drove it.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/abhisek/coach/internal/orchestrator"
	"github.com/abhisek/coach/internal/store"
)

// maxBodyBytes caps request bodies. Turn utterances are chat-sized;
// anything near this limit is not a legitimate request.
const maxBodyBytes = 1 << 20

// Server handles the session API on top of an orchestrator.
type Server struct {
	coach *orchestrator.Orchestrator
	log   *slog.Logger
}

// New returns a Server. A nil logger falls back to slog.Default.
func New(coach *orchestrator.Orchestrator, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{coach: coach, log: log}
}

// Handler assembles the routed handler with request logging applied.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.logRequests)
	s.RegisterRoutes(r)
	return r
}

// RegisterRoutes attaches every endpoint to the router.
func (s *Server) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/healthz", s.Health).Methods("GET")

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/sessions", s.CreateSession).Methods("POST")
	api.HandleFunc("/sessions", s.ListSessions).Methods("GET")
	api.HandleFunc("/sessions/{id}", s.GetSession).Methods("GET")
	api.HandleFunc("/sessions/{id}/turns", s.PostTurn).Methods("POST")
	api.HandleFunc("/sessions/{id}/plan", s.GetPlan).Methods("GET")
}

// Health reports liveness.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	s.writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start).Round(time.Millisecond).String(),
		)
	})
}

// statusRecorder remembers the status code for the request log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

func (s *Server) writeJSONResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error("encode response", "error", err)
	}
}

func (s *Server) writeErrorResponse(w http.ResponseWriter, status int, message string) {
	s.writeJSONResponse(w, status, map[string]string{"error": message})
}

// writeStoreError maps repository errors onto status codes: a missing
// session is 404, a version conflict 409, anything else a logged 500.
func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.writeErrorResponse(w, http.StatusNotFound, "session not found")
	case errors.Is(err, store.ErrStaleTurn):
		s.writeErrorResponse(w, http.StatusConflict, "session changed mid-turn, reload and resend")
	default:
		s.log.Error("request failed", "error", err)
		s.writeErrorResponse(w, http.StatusInternalServerError, "internal error")
	}
}
