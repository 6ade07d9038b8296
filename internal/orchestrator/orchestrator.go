// Package orchestrator runs the coaching loop. Each turn screens the
// utterance, classifies its intent, walks the session state machine,
// invokes whichever agent role the transition names, and commits the
// mutated session document back in a single optimistic write.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/abhisek/coach/internal/agent"
	"github.com/abhisek/coach/internal/assessor"
	"github.com/abhisek/coach/internal/guard"
	"github.com/abhisek/coach/internal/llm"
	"github.com/abhisek/coach/internal/memory"
	"github.com/abhisek/coach/internal/planner"
	"github.com/abhisek/coach/internal/progress"
	"github.com/abhisek/coach/internal/router"
	"github.com/abhisek/coach/internal/search"
	"github.com/abhisek/coach/internal/session"
	"github.com/abhisek/coach/internal/store"
	"github.com/abhisek/coach/internal/tutor"
)

const (
	// maxAvoidQuestions bounds the dedup list sent to the Assessor.
	maxAvoidQuestions = 30

	// reviewFocusSkills bounds how many mistake-bank skills a targeted
	// review lesson covers at once.
	reviewFocusSkills = 5
)

// Config carries the orchestration tunables.
type Config struct {
	// QuizItems is how many items the Assessor is asked for per quiz.
	QuizItems int

	// PlanWeeks is the default plan length requested from the Planner.
	PlanWeeks int

	// Progress tunes skill aggregation, including the pass threshold
	// the quiz gate uses.
	Progress progress.Config
}

// DefaultConfig returns the standard tuning.
func DefaultConfig() Config {
	return Config{
		QuizItems: assessor.DefaultItems,
		PlanWeeks: planner.DefaultWeeks,
		Progress:  progress.DefaultConfig(),
	}
}

// Deps are the collaborators an Orchestrator coordinates. Sessions,
// Events and Provider are required. A nil Registry gets the built-in
// personas, a nil Guard the default blocklist, and a nil Search leaves
// prompts without curriculum references rather than failing.
type Deps struct {
	Sessions store.SessionRepo
	Events   store.EventRepo
	Provider llm.Provider
	Registry *agent.Registry
	Guard    *guard.Guard
	Search   search.Provider
	Logger   *slog.Logger
}

// Orchestrator owns the turn loop for every session in the process.
// Turns on the same session are serialized in-process; across processes
// the document version check rejects the loser of a race.
type Orchestrator struct {
	sessions store.SessionRepo
	events   store.EventRepo
	provider llm.Provider
	registry *agent.Registry
	guard    *guard.Guard
	search   search.Provider
	tracker  *progress.Tracker
	cfg      Config
	log      *slog.Logger

	now func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// DefaultRegistry returns a registry preloaded with the built-in persona
// for every role the orchestrator invokes.
func DefaultRegistry() (*agent.Registry, error) {
	return agent.NewRegistry(
		planner.DefaultPersona(),
		tutor.DefaultPersona(),
		tutor.DefaultAnswerPersona(),
		assessor.DefaultPersona(),
	)
}

// New wires an Orchestrator from its dependencies.
func New(deps Deps, cfg Config) (*Orchestrator, error) {
	if deps.Sessions == nil || deps.Events == nil {
		return nil, fmt.Errorf("orchestrator: session and event repos are required")
	}
	if deps.Provider == nil {
		return nil, fmt.Errorf("orchestrator: an llm provider is required")
	}
	if deps.Registry == nil {
		reg, err := DefaultRegistry()
		if err != nil {
			return nil, fmt.Errorf("orchestrator: default personas: %w", err)
		}
		deps.Registry = reg
	}
	if deps.Guard == nil {
		deps.Guard = guard.New()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if cfg.QuizItems <= 0 {
		cfg.QuizItems = assessor.DefaultItems
	}
	if cfg.PlanWeeks <= 0 {
		cfg.PlanWeeks = planner.DefaultWeeks
	}
	if cfg.Progress == (progress.Config{}) {
		cfg.Progress = progress.DefaultConfig()
	}
	return &Orchestrator{
		sessions: deps.Sessions,
		events:   deps.Events,
		provider: deps.Provider,
		registry: deps.Registry,
		guard:    deps.Guard,
		search:   deps.Search,
		tracker:  progress.NewTracker(cfg.Progress),
		cfg:      cfg,
		log:      deps.Logger,
		now:      time.Now,
		locks:    make(map[string]*sync.Mutex),
	}, nil
}

// StartSession creates a fresh onboarding session. The topic may be
// empty; the router captures one from the first plan request.
func (o *Orchestrator) StartSession(ctx context.Context, topic string) (*session.Document, error) {
	doc := session.NewDocument(strings.TrimSpace(topic), o.now())
	if err := o.sessions.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	o.log.Info("session started", "session", doc.Session.ID, "topic", doc.Session.Topic)
	return doc, nil
}

// Load returns the current document for a session id.
func (o *Orchestrator) Load(ctx context.Context, id string) (*session.Document, error) {
	return o.sessions.Get(ctx, id)
}

// List returns session summaries, newest activity first.
func (o *Orchestrator) List(ctx context.Context, includeArchived bool) ([]store.SessionSummary, error) {
	return o.sessions.List(ctx, includeArchived)
}

// Archive hides a session from listings without deleting it.
func (o *Orchestrator) Archive(ctx context.Context, id string) error {
	return o.sessions.Archive(ctx, id)
}

// Turn runs one full orchestration turn against the session. Exactly one
// document commit happens per accepted turn; a version conflict surfaces
// as store.ErrStaleTurn and leaves no trace, so the caller can simply ask
// for the message again. Agent trouble never surfaces as an error: the
// turn commits the exchange with an apologetic coach message and, for
// invalid agent output, a failure-streak increment that marks the session
// fatal at the cap.
func (o *Orchestrator) Turn(ctx context.Context, sessionID, utterance string) (*Reply, error) {
	unlock := o.lockSession(sessionID)
	defer unlock()

	doc, err := o.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	ctx = llm.WithSession(ctx, sessionID)
	now := o.now()
	phaseBefore := doc.Session.Phase

	// A fatal session answers every turn with the same notice and never
	// reaches an agent again. Nothing to persist either.
	if doc.Session.Fatal() {
		return o.reply(doc, &outcome{message: msgFatal}), nil
	}

	masked, ok := o.guard.ScreenInput(utterance)
	if !ok {
		doc.AppendChat(session.ChatUser, guard.MaskPII(utterance), now)
		return o.finish(ctx, doc, "blocked", phaseBefore, &outcome{message: guard.RefusalMessage}, now)
	}

	doc.AppendChat(session.ChatUser, masked, now)
	for _, insight := range memory.HarvestInsights(doc, masked) {
		doc.AddInsight(insight)
	}
	memory.UpdateSummary(doc)

	dec := router.Classify(masked, router.State{
		Phase:       doc.Session.Phase,
		HasPlan:     doc.Plan != nil,
		PendingQuiz: doc.PendingQuiz != nil,
		QuizItems:   pendingItems(doc),
	})
	o.log.Debug("turn classified",
		"session", sessionID,
		"intent", dec.Intent,
		"confidence", dec.Confidence,
		"phase", phaseBefore)

	out, err := o.dispatch(ctx, doc, dec, now)
	switch {
	case err == nil:
		if out.agentRan {
			doc.Session.ResetFailures()
		}

	case agent.IsInvalidOutput(err):
		// Invalid agent output after its one corrective retry. Count it;
		// the streak survives the commit, and at the cap the session
		// stops reaching agents entirely.
		msg := msgAgentRetry
		if doc.Session.RecordFailure(err.Error()) {
			msg = msgFatal
			o.log.Error("session fatal", "session", sessionID, "error", err)
		}
		out = &outcome{message: msg, turnErr: err.Error()}

	default:
		// Transport-class trouble: provider down, rate limited, context
		// canceled. Retrying is harmless, so the streak is untouched, but
		// the exchange still commits so the transcript stays faithful.
		o.log.Warn("turn failed", "session", sessionID, "intent", dec.Intent, "error", err)
		out = &outcome{message: msgProviderTrouble, turnErr: err.Error()}
	}

	return o.finish(ctx, doc, string(dec.Intent), phaseBefore, out, now)
}

// finish appends the coach message, commits the document, records the
// audit event, and builds the reply. The commit is the turn's single
// write: if it reports a stale version the whole turn evaporates.
func (o *Orchestrator) finish(ctx context.Context, doc *session.Document, intent string, phaseBefore session.Phase, out *outcome, now time.Time) (*Reply, error) {
	if out.message != "" {
		doc.AppendChat(session.ChatCoach, o.guard.ScrubOutput(out.message), now)
	}
	doc.Session.Touch(now)

	turnIndex := doc.Version
	if err := o.sessions.CommitTurn(ctx, doc); err != nil {
		return nil, err
	}

	audit := store.TurnEventData{
		SessionID:   doc.Session.ID,
		TurnIndex:   turnIndex,
		Intent:      intent,
		PhaseBefore: string(phaseBefore),
		PhaseAfter:  string(doc.Session.Phase),
		Fatal:       doc.Session.Fatal(),
		Error:       out.turnErr,
	}
	if err := o.events.AppendTurn(ctx, audit); err != nil {
		o.log.Warn("turn audit append failed", "session", doc.Session.ID, "error", err)
	}

	r := o.reply(doc, out)
	r.Intent = intent
	return r, nil
}

func (o *Orchestrator) reply(doc *session.Document, out *outcome) *Reply {
	return &Reply{
		SessionID: doc.Session.ID,
		Phase:     doc.Session.Phase,
		Week:      doc.Session.CurrentWeek,
		Message:   out.message,
		Payload:   out.payload,
		Allowed:   AllowedIntents(doc),
		Fatal:     doc.Session.Fatal(),
	}
}

// lockSession serializes turns per session id within this process.
// The map only grows, but one mutex per touched session is cheap for
// the session counts a single coach process sees.
func (o *Orchestrator) lockSession(id string) func() {
	o.mu.Lock()
	m, ok := o.locks[id]
	if !ok {
		m = &sync.Mutex{}
		o.locks[id] = m
	}
	o.mu.Unlock()
	m.Lock()
	return m.Unlock
}

func pendingItems(doc *session.Document) int {
	if doc.PendingQuiz == nil {
		return 0
	}
	return len(doc.PendingQuiz.Items)
}
