package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/abhisek/coach/internal/orchestrator"
	"github.com/abhisek/coach/internal/router"
	"github.com/abhisek/coach/internal/session"
)

type createSessionRequest struct {
	Topic string `json:"topic"`
}

type turnRequest struct {
	Utterance string `json:"utterance"`
}

// sessionSummaryView is one row of the session listing.
type sessionSummaryView struct {
	ID        string        `json:"id"`
	Topic     string        `json:"topic,omitempty"`
	Phase     session.Phase `json:"phase"`
	Week      int           `json:"week"`
	Version   int64         `json:"version"`
	Archived  bool          `json:"archived,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// sessionDetail is the state view of one session: the turn render model
// without a fresh message, plus the row metadata. Pending quiz answers
// never appear here; the payload carries the learner-facing quiz view.
type sessionDetail struct {
	SessionID string                `json:"session_id"`
	Topic     string                `json:"topic,omitempty"`
	Phase     session.Phase         `json:"phase"`
	Week      int                   `json:"week"`
	Version   int64                 `json:"version"`
	CreatedAt time.Time             `json:"created_at"`
	UpdatedAt time.Time             `json:"updated_at"`
	Payload   *orchestrator.Payload `json:"payload,omitempty"`
	Allowed   []router.Intent       `json:"allowed_intents,omitempty"`
	Fatal     bool                  `json:"fatal,omitempty"`
}

func newSessionDetail(doc *session.Document) sessionDetail {
	snap := orchestrator.Snapshot(doc)
	return sessionDetail{
		SessionID: doc.Session.ID,
		Topic:     doc.Session.Topic,
		Phase:     doc.Session.Phase,
		Week:      doc.Session.CurrentWeek,
		Version:   doc.Version,
		CreatedAt: doc.Session.CreatedAt,
		UpdatedAt: doc.Session.LastActiveAt,
		Payload:   snap.Payload,
		Allowed:   snap.Allowed,
		Fatal:     snap.Fatal,
	}
}

// CreateSession starts a fresh session. The topic is optional, and so is
// the body itself; the first plan request can supply a topic instead.
func (s *Server) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := s.decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	doc, err := s.coach.StartSession(r.Context(), req.Topic)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	s.writeJSONResponse(w, http.StatusCreated, newSessionDetail(doc))
}

// ListSessions returns session summaries, newest activity first. Archived
// rows are included when ?archived=true.
func (s *Server) ListSessions(w http.ResponseWriter, r *http.Request) {
	archived, _ := strconv.ParseBool(r.URL.Query().Get("archived"))

	sums, err := s.coach.List(r.Context(), archived)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	out := make([]sessionSummaryView, 0, len(sums))
	for _, sum := range sums {
		out = append(out, sessionSummaryView{
			ID:        sum.ID,
			Topic:     sum.Topic,
			Phase:     sum.Phase,
			Week:      sum.Week,
			Version:   sum.Version,
			Archived:  sum.Archived,
			CreatedAt: sum.CreatedAt,
			UpdatedAt: sum.UpdatedAt,
		})
	}

	s.writeJSONResponse(w, http.StatusOK, out)
}

// GetSession returns the state view for one session.
func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	doc, err := s.coach.Load(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, newSessionDetail(doc))
}

// PostTurn runs one coaching turn and returns its reply. A version
// conflict maps to 409 so the client can reload and resend.
func (s *Server) PostTurn(w http.ResponseWriter, r *http.Request) {
	var req turnRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if strings.TrimSpace(req.Utterance) == "" {
		s.writeErrorResponse(w, http.StatusBadRequest, "utterance is required")
		return
	}

	reply, err := s.coach.Turn(r.Context(), mux.Vars(r)["id"], req.Utterance)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, reply)
}

// GetPlan returns the session's learning plan.
func (s *Server) GetPlan(w http.ResponseWriter, r *http.Request) {
	doc, err := s.coach.Load(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if doc.Plan == nil {
		s.writeErrorResponse(w, http.StatusNotFound, "session has no plan yet")
		return
	}

	s.writeJSONResponse(w, http.StatusOK, doc.Plan)
}
