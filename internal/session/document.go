package session

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/abhisek/coach/internal/progress"
	"github.com/abhisek/coach/internal/quiz"
)

// MaxInsights caps the learner-insight list; the oldest entries drop first.
const MaxInsights = 100

// Document is the full persisted state for one session: the per-session
// record the memory store keys by session id and versions with a monotonic
// turn counter. A turn loads the document, mutates it in memory, and commits
// the whole thing back in one compare-and-swap write.
type Document struct {
	// Version is the store's optimistic-concurrency counter. Managed by
	// the store on load/commit, never serialized into the document body.
	Version int64 `json:"-"`

	Session  Session         `json:"session"`
	Plan     *LearningPlan   `json:"plan,omitempty"`
	Segments []*ChatSegment  `json:"segments"`
	Progress *progress.State `json:"progress"`

	// PendingQuiz is the generated, unanswered assessment, if any.
	PendingQuiz *quiz.Quiz `json:"pending_quiz,omitempty"`

	// Attempts is the graded quiz history, oldest first.
	Attempts []*quiz.Attempt `json:"attempts"`

	// Insights are short learner observations (struggles, preferences)
	// harvested from utterances and fed back into prompts.
	Insights []string `json:"insights,omitempty"`
}

// NewDocument creates the document for a fresh session.
func NewDocument(topic string, now time.Time) *Document {
	return &Document{
		Session: Session{
			ID:           uuid.NewString(),
			Topic:        topic,
			CurrentWeek:  1,
			Phase:        PhaseOnboarding,
			CreatedAt:    now,
			LastActiveAt: now,
		},
		Progress: progress.NewState(),
	}
}

// Segment returns the transcript segment for the given week, creating it
// on first use. Creation is only legal for the current week.
func (d *Document) Segment(week int) *ChatSegment {
	for _, s := range d.Segments {
		if s.Week == week {
			return s
		}
	}
	seg := &ChatSegment{Week: week}
	d.Segments = append(d.Segments, seg)
	return seg
}

// AppendChat appends a turn to the current week's segment. Past weeks are
// frozen by construction: there is no way to address them here.
func (d *Document) AppendChat(role ChatRole, text string, now time.Time) {
	seg := d.Segment(d.Session.CurrentWeek)
	seg.Turns = append(seg.Turns, ChatTurn{Role: role, Text: text, At: now})
}

// SetPlan installs the first plan, or applies a replacement honoring
// completed-week immutability when a plan already exists.
func (d *Document) SetPlan(p *LearningPlan) error {
	if d.Plan == nil {
		if err := p.Validate(); err != nil {
			return err
		}
		d.Plan = p
		return nil
	}
	return d.Plan.Replace(p)
}

// AdvanceWeek marks the current week completed and moves to the next one.
// current_week never exceeds the plan length: advancing from the final
// week is refused (completion is a phase change, not a week change).
func (d *Document) AdvanceWeek() error {
	if d.Plan == nil {
		return fmt.Errorf("no plan to advance through")
	}
	w := d.Plan.Week(d.Session.CurrentWeek)
	if w == nil {
		return fmt.Errorf("current week %d not in plan", d.Session.CurrentWeek)
	}
	if d.Session.CurrentWeek >= d.Plan.FinalWeek() {
		return fmt.Errorf("already on the final week")
	}
	w.Completed = true
	d.Session.CurrentWeek++
	return nil
}

// CompleteFinalWeek marks the final week done without moving current_week.
func (d *Document) CompleteFinalWeek() error {
	if d.Plan == nil {
		return fmt.Errorf("no plan to complete")
	}
	if d.Session.CurrentWeek != d.Plan.FinalWeek() {
		return fmt.Errorf("week %d is not the final week", d.Session.CurrentWeek)
	}
	d.Plan.Week(d.Session.CurrentWeek).Completed = true
	return nil
}

// RecordAttempt appends a graded attempt to the history and clears the
// pending quiz it answered.
func (d *Document) RecordAttempt(a *quiz.Attempt) {
	d.Attempts = append(d.Attempts, a)
	if d.PendingQuiz != nil && d.PendingQuiz.ID == a.QuizID {
		d.PendingQuiz = nil
	}
}

// LatestAttempt returns the most recent graded attempt, or nil.
func (d *Document) LatestAttempt() *quiz.Attempt {
	if len(d.Attempts) == 0 {
		return nil
	}
	return d.Attempts[len(d.Attempts)-1]
}

// WeekPassed reports whether week n has a passing attempt at threshold.
func (d *Document) WeekPassed(n int, threshold float64) bool {
	for _, a := range d.Attempts {
		if a.Kind == quiz.KindWeek && a.Week == n && a.Passed(threshold) {
			return true
		}
	}
	return false
}

// AddInsight appends a learner insight, dropping the oldest past the cap
// and skipping consecutive duplicates.
func (d *Document) AddInsight(insight string) {
	if insight == "" {
		return
	}
	if n := len(d.Insights); n > 0 && d.Insights[n-1] == insight {
		return
	}
	d.Insights = append(d.Insights, insight)
	if len(d.Insights) > MaxInsights {
		d.Insights = d.Insights[len(d.Insights)-MaxInsights:]
	}
}
