package store

import (
	"context"
	"errors"
	"time"

	"github.com/abhisek/coach/internal/session"
)

// ErrNotFound is returned when no session exists for the given id.
var ErrNotFound = errors.New("session not found")

// ErrStaleTurn is returned by CommitTurn when the document's version no
// longer matches the stored row: a concurrent turn committed first. The
// caller reloads and replays the turn against the fresh document.
var ErrStaleTurn = errors.New("stale turn: document version conflict")

// QueryOpts configures event queries with filtering and pagination.
type QueryOpts struct {
	Limit  int       // max results (0 = unlimited)
	After  int64     // sequence > After
	Before int64     // sequence < Before
	From   time.Time // timestamp >= From
	To     time.Time // timestamp <= To
}

// SessionSummary is the listing view of a session row. The denormalized
// columns avoid unmarshaling documents just to print a table.
type SessionSummary struct {
	ID        string
	Topic     string
	Phase     session.Phase
	Week      int
	Version   int64
	Archived  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SessionRepo persists session documents with optimistic concurrency.
// Get returns the document with its current version; CommitTurn writes it
// back only if that version is still current, bumping it by one.
type SessionRepo interface {
	// Create inserts a fresh document at version 1.
	Create(ctx context.Context, doc *session.Document) error

	// Get loads the document for id, or ErrNotFound.
	Get(ctx context.Context, id string) (*session.Document, error)

	// List returns summaries ordered by last activity, newest first.
	// Archived sessions are excluded unless includeArchived is set.
	List(ctx context.Context, includeArchived bool) ([]SessionSummary, error)

	// CommitTurn writes doc back if doc.Version is still current,
	// then increments doc.Version in place. Returns ErrStaleTurn on a
	// version conflict and ErrNotFound if the row is gone.
	CommitTurn(ctx context.Context, doc *session.Document) error

	// Archive marks the session archived; it stops showing in listings
	// but remains loadable. Sessions are never deleted.
	Archive(ctx context.Context, id string) error
}

// TurnEventData captures one orchestrated turn for the audit trail.
type TurnEventData struct {
	SessionID   string
	TurnIndex   int64
	Intent      string
	PhaseBefore string
	PhaseAfter  string
	Fatal       bool
	Error       string
}

// TurnEvent is a stored turn audit record.
type TurnEvent struct {
	ID        int64
	Timestamp time.Time
	TurnEventData
}

// LLMRequestEventData captures the data for a single LLM request event.
type LLMRequestEventData struct {
	SessionID    string
	Provider     string
	Model        string
	Purpose      string
	InputTokens  int
	OutputTokens int
	LatencyMs    int64
	Success      bool
	ErrorMessage string
	RequestBody  string
	ResponseBody string
}

// LLMEvent is a stored LLM request record.
type LLMEvent struct {
	ID        int64
	Timestamp time.Time
	LLMRequestEventData
}

// LLMUsageStat aggregates token usage for one purpose.
type LLMUsageStat struct {
	Purpose      string
	Calls        int
	InputTokens  int
	OutputTokens int
	AvgLatencyMs int64
}

// LLMModelUsage aggregates token usage for one model.
type LLMModelUsage struct {
	Model        string
	Calls        int
	InputTokens  int
	OutputTokens int
}

// EventRepo provides append and query access to the audit logs. Every
// event carries a globally unique, monotonically increasing sequence
// shared across both tables, so cross-type ordering is total.
type EventRepo interface {
	// AppendLLMRequest records an LLM API call event.
	AppendLLMRequest(ctx context.Context, data LLMRequestEventData) error

	// QueryLLMEvents returns LLM events, newest first.
	QueryLLMEvents(ctx context.Context, opts QueryOpts) ([]LLMEvent, error)

	// GetLLMEvent returns the event with the given sequence, or nil.
	GetLLMEvent(ctx context.Context, id int64) (*LLMEvent, error)

	// LLMUsageByPurpose aggregates usage grouped by purpose.
	LLMUsageByPurpose(ctx context.Context) ([]LLMUsageStat, error)

	// LLMUsageByModel aggregates usage grouped by model.
	LLMUsageByModel(ctx context.Context) ([]LLMModelUsage, error)

	// AppendTurn records a completed orchestrator turn.
	AppendTurn(ctx context.Context, data TurnEventData) error

	// QueryTurnEvents returns turn events for a session, oldest first.
	QueryTurnEvents(ctx context.Context, sessionID string, opts QueryOpts) ([]TurnEvent, error)
}
