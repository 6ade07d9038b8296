package orchestrator

import (
	"fmt"
	"strings"

	"github.com/abhisek/coach/internal/progress"
	"github.com/abhisek/coach/internal/quiz"
	"github.com/abhisek/coach/internal/router"
	"github.com/abhisek/coach/internal/session"
	"github.com/abhisek/coach/internal/tutor"
)

// Reply is the per-turn render model shared by every surface: the CLI
// prints it, the HTTP API serializes it, the TUI draws it. Message is the
// coach's conversational text; Payload carries whatever structured artifact
// the turn produced.
type Reply struct {
	SessionID string        `json:"session_id"`
	Phase     session.Phase `json:"phase"`
	Week      int           `json:"week"`
	Intent    string        `json:"intent,omitempty"`
	Message   string        `json:"message"`
	Payload   *Payload      `json:"payload,omitempty"`

	// Allowed lists the intents that make sense next, for surfaces
	// that render hints or quick-reply buttons.
	Allowed []router.Intent `json:"allowed_intents,omitempty"`

	// Fatal marks a session that has hit the failure cap; every further
	// turn returns the same notice without reaching an agent.
	Fatal bool `json:"fatal,omitempty"`
}

// Payload is the structured artifact of a turn. At most the fields the
// turn actually produced are set; a graded submission carries both the
// attempt and the progress report.
type Payload struct {
	Plan    *session.LearningPlan `json:"plan,omitempty"`
	Lesson  *tutor.Lesson         `json:"lesson,omitempty"`
	Quiz    *QuizView             `json:"quiz,omitempty"`
	Attempt *quiz.Attempt         `json:"attempt,omitempty"`
	Report  *progress.Report      `json:"report,omitempty"`
}

// QuizView is the learner-facing projection of a pending quiz: questions
// and options only. Expected answers and rubrics stay server-side until
// grading turns them into attempt explanations.
type QuizView struct {
	ID    string         `json:"id"`
	Kind  quiz.Kind      `json:"kind"`
	Week  int            `json:"week"`
	Topic string         `json:"topic,omitempty"`
	Items []QuizItemView `json:"items"`
}

// QuizItemView is one question as shown to the learner.
type QuizItemView struct {
	Number   int         `json:"number"`
	Question string      `json:"question"`
	Format   quiz.Format `json:"format"`
	Options  []string    `json:"options,omitempty"`
}

// NewQuizView strips a quiz down to what the learner may see.
func NewQuizView(q *quiz.Quiz) *QuizView {
	v := &QuizView{
		ID:    q.ID,
		Kind:  q.Kind,
		Week:  q.Week,
		Topic: q.Topic,
		Items: make([]QuizItemView, 0, len(q.Items)),
	}
	for i, it := range q.Items {
		v.Items = append(v.Items, QuizItemView{
			Number:   i + 1,
			Question: it.Question,
			Format:   it.Format,
			Options:  it.Options,
		})
	}
	return v
}

// Snapshot renders a document as a reply with no fresh message, for
// surfaces that show session state between turns. The payload carries the
// plan and the learner-facing view of any pending quiz.
func Snapshot(doc *session.Document) *Reply {
	r := &Reply{
		SessionID: doc.Session.ID,
		Phase:     doc.Session.Phase,
		Week:      doc.Session.CurrentWeek,
		Allowed:   AllowedIntents(doc),
		Fatal:     doc.Session.Fatal(),
	}
	payload := &Payload{Plan: doc.Plan}
	if doc.PendingQuiz != nil {
		payload.Quiz = NewQuizView(doc.PendingQuiz)
	}
	if payload.Plan != nil || payload.Quiz != nil {
		r.Payload = payload
	}
	return r
}

// AllowedIntents lists the intents a surface should offer next for the
// document's current state.
func AllowedIntents(doc *session.Document) []router.Intent {
	if doc.Session.Fatal() {
		return nil
	}
	switch doc.Session.Phase {
	case session.PhaseOnboarding, session.PhasePlanning:
		return []router.Intent{router.IntentNewPlan, router.IntentGeneralQuestion}
	case session.PhaseAssessing, session.PhaseQuizzing:
		return []router.Intent{router.IntentAnswerSubmission, router.IntentTakeQuiz, router.IntentGeneralQuestion}
	case session.PhaseLearning:
		out := []router.Intent{router.IntentStartLesson, router.IntentTakeQuiz}
		if doc.Progress != nil && len(doc.Progress.Bank) > 0 {
			out = append(out, router.IntentReviewRequest)
		}
		return append(out, router.IntentAdvanceWeek, router.IntentGeneralQuestion)
	case session.PhaseReviewing:
		return []router.Intent{router.IntentReviewRequest, router.IntentStartLesson, router.IntentTakeQuiz, router.IntentGeneralQuestion}
	case session.PhaseCompleted:
		return []router.Intent{router.IntentNewPlan, router.IntentReviewRequest, router.IntentGeneralQuestion}
	}
	return nil
}

// Canned coach lines. Everything generative comes from the agents; these
// cover refusals, nudges and status notices the orchestrator answers
// directly.
const (
	msgAskTopic          = "What would you like to learn? Tell me a topic and I'll start with a short diagnostic quiz."
	msgFinishDiagnostic  = "Let's finish the diagnostic first - answer the questions above, or give me a new topic to start over."
	msgFinishQuizFirst   = "There's a quiz waiting - answer it first, or say \"quiz me again\" for fresh questions."
	msgNoPendingQuiz     = "No quiz is waiting for answers right now. Say \"quiz me\" when you're ready for one."
	msgNoPlanYet         = "We don't have a plan yet. Tell me what you'd like to learn and we'll set one up."
	msgQuizReplaced      = "Fresh questions coming up. The earlier ones are off the table."
	msgInconclusive      = "I couldn't grade any of those answers, so this attempt doesn't count. Let's go back over the material - say \"quiz me\" for a fresh attempt when you're ready."
	msgAnswerCount       = "That quiz has %d questions but I only caught %d answers. Number them like \"1. B 2. 3/4\" so nothing gets lost."
	msgAdvanceRefused    = "Not yet - pass the week %d quiz first. Say \"quiz me\" when you're ready."
	msgOneWeekAtATime    = "One week at a time - you're on week %d right now."
	msgAdvanceReviewing  = "Let's patch the weak spots before moving on. Say \"review\" for a targeted lesson, then retake the quiz."
	msgReviewNudge       = "Say \"review\" for a targeted lesson before retaking the quiz."
	msgBankEmpty         = "Your mistake bank is empty - nothing to review. Keep going with lessons, or take a quiz."
	msgFinalWeekPassed   = "You passed the final week's quiz! Say \"continue\" to wrap up the plan."
	msgCompletedAll      = "That's the whole plan done - congratulations! Tell me a new topic whenever you want to keep going."
	msgAlreadyCompleted  = "This plan is already wrapped up. Tell me a new topic to start another."
	msgPlanNext          = "Say \"start lesson\" when you're ready for week %d."
	msgWeekAdvanced      = "Week %d unlocked: %s. Say \"start lesson\" to dig in."
	msgDiagnosticIntro   = "Let's see where you stand with %s. Answer this diagnostic and I'll build your plan around the results."
	msgQuizIntro         = "Quiz time - week %d, %s."
	msgDiagnosticNoGrade = "I couldn't grade the diagnostic answers, so we'll start from the fundamentals."
	msgPlanRetryLater    = "Your diagnostic is graded, but I couldn't draft a valid plan from it. Say \"plan\" and I'll try again."
	msgAgentRetry        = "I had trouble putting together a valid response there. Please send that again."
	msgProviderTrouble   = "I couldn't reach the language model just now. Nothing was lost - try again in a moment."
	msgFatal             = "I've hit repeated internal errors, so I've paused this session for an operator to look at. Your progress is saved."
)

// formatQuiz renders a quiz as the coach would speak it: numbered
// questions with lettered options and a reminder of the answer format.
func formatQuiz(q *quiz.Quiz) string {
	var b strings.Builder
	for i, it := range q.Items {
		fmt.Fprintf(&b, "%d. %s\n", i+1, it.Question)
		if it.Format == quiz.FormatMultipleChoice {
			for j, opt := range it.Options {
				fmt.Fprintf(&b, "   %c) %s\n", rune('A'+j), opt)
			}
		}
	}
	b.WriteString("\nReply with numbered answers, like \"1. B 2. 3/4\".")
	return b.String()
}

// formatLesson renders a lesson for the transcript.
func formatLesson(l *tutor.Lesson) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Lesson: %s\n\n%s\n\nWorked example:\n%s\n\nPractice problems:\n", l.Topic, l.Overview, l.WorkedExample)
	for i, p := range l.PracticeProblems {
		fmt.Fprintf(&b, "%d. %s\n", i+1, p)
	}
	return strings.TrimRight(b.String(), "\n")
}

// formatPlan renders the weekly outline with completion markers.
func formatPlan(p *session.LearningPlan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n%s\n\n", p.Title, p.Summary)
	for _, w := range p.Weeks {
		mark := " "
		if w.Completed {
			mark = "x"
		}
		fmt.Fprintf(&b, "[%s] Week %d: %s - %s\n", mark, w.Number, w.Topic, w.Goal)
	}
	return strings.TrimRight(b.String(), "\n")
}
