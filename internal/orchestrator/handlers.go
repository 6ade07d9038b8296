package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/abhisek/coach/internal/agent"
	"github.com/abhisek/coach/internal/assessor"
	"github.com/abhisek/coach/internal/memory"
	"github.com/abhisek/coach/internal/planner"
	"github.com/abhisek/coach/internal/progress"
	"github.com/abhisek/coach/internal/quiz"
	"github.com/abhisek/coach/internal/router"
	"github.com/abhisek/coach/internal/session"
	"github.com/abhisek/coach/internal/tutor"
)

// outcome is a handler's contribution to the turn: the coach message, any
// structured payload, and whether a generative agent call succeeded (which
// resets the failure streak). turnErr annotates the audit event for turns
// that recovered from an error internally.
type outcome struct {
	message  string
	payload  *Payload
	agentRan bool
	turnErr  string
}

func canned(msg string) *outcome { return &outcome{message: msg} }

// dispatch routes a classified utterance to its phase-aware handler.
// Handlers mutate the document in memory only; the caller owns the commit.
// Mutations that would be destructive on a failed turn (dropping a plan,
// replacing a pending quiz) happen strictly after the agent delivers.
func (o *Orchestrator) dispatch(ctx context.Context, doc *session.Document, dec router.Decision, now time.Time) (*outcome, error) {
	// The planning phase exists to retry a failed plan: any plan-seeking
	// intent funnels back into the Planner until a plan lands.
	if doc.Session.Phase == session.PhasePlanning && planSeeking(dec.Intent) {
		return o.runPlanner(ctx, doc)
	}

	switch dec.Intent {
	case router.IntentNewPlan:
		return o.handleNewPlan(ctx, doc, dec, now)
	case router.IntentStartLesson:
		return o.handleStartLesson(ctx, doc)
	case router.IntentTakeQuiz:
		return o.handleTakeQuiz(ctx, doc, now)
	case router.IntentAnswerSubmission:
		return o.handleAnswers(ctx, doc, dec, now)
	case router.IntentReviewRequest:
		return o.handleReview(ctx, doc)
	case router.IntentAdvanceWeek:
		return o.handleAdvance(doc, dec)
	default:
		return o.handleQuestion(ctx, doc, dec)
	}
}

func planSeeking(in router.Intent) bool {
	switch in {
	case router.IntentNewPlan, router.IntentStartLesson, router.IntentTakeQuiz,
		router.IntentReviewRequest, router.IntentAdvanceWeek:
		return true
	}
	return false
}

// handleNewPlan starts or restarts the assess-then-plan cycle. A fresh
// topic anywhere means a fresh diagnostic; a plan request on the current
// topic mid-plan is a replacement, which the Planner handles with the
// existing plan as prior so completed weeks survive verbatim.
func (o *Orchestrator) handleNewPlan(ctx context.Context, doc *session.Document, dec router.Decision, now time.Time) (*outcome, error) {
	topic := dec.Slots.Topic
	cur := doc.Session.Topic

	switch doc.Session.Phase {
	case session.PhaseOnboarding:
		if topic == "" {
			topic = cur
		}
		if topic == "" {
			return canned(msgAskTopic), nil
		}
		return o.startDiagnostic(ctx, doc, topic, false, now)

	case session.PhaseAssessing:
		if topic != "" && !strings.EqualFold(topic, cur) {
			return o.startDiagnostic(ctx, doc, topic, true, now)
		}
		return canned(msgFinishDiagnostic), nil

	case session.PhaseCompleted:
		if topic == "" {
			topic = cur
		}
		return o.startDiagnostic(ctx, doc, topic, true, now)

	default: // learning, quizzing, reviewing
		if topic != "" && !strings.EqualFold(topic, cur) {
			return o.startDiagnostic(ctx, doc, topic, true, now)
		}
		return o.runPlanner(ctx, doc)
	}
}

// startDiagnostic generates a diagnostic quiz for the topic and moves the
// session into the assessing phase. With reset set, the previous plan and
// week position are dropped too; all of it only once the Assessor has
// actually delivered, so a failed turn changes nothing but the streak.
func (o *Orchestrator) startDiagnostic(ctx context.Context, doc *session.Document, topic string, reset bool, now time.Time) (*outcome, error) {
	p, err := o.registry.Get(assessor.Role)
	if err != nil {
		return nil, err
	}

	sl := memory.Build(ctx, doc, assessor.Role, o.search)
	if topic != doc.Session.Topic {
		// The diagnostic targets the requested topic, not whatever the
		// document still carries from the previous plan.
		sl.Topic = topic
		sl.PlanTitle, sl.WeekTopic, sl.WeekGoal = "", "", ""
		sl.Week = 1
	}

	q, err := assessor.Generate(ctx, o.provider, p, assessor.Input{
		Slice:          sl,
		Kind:           quiz.KindDiagnostic,
		Items:          o.cfg.QuizItems,
		AvoidQuestions: askedQuestions(doc),
	})
	if err != nil {
		return nil, err
	}

	doc.Session.Topic = topic
	if reset {
		doc.Plan = nil
		doc.Session.CurrentWeek = 1
	}
	doc.PendingQuiz = q
	doc.Session.Phase = session.PhaseAssessing

	return &outcome{
		agentRan: true,
		message:  fmt.Sprintf(msgDiagnosticIntro, topic) + "\n\n" + formatQuiz(q),
		payload:  &Payload{Quiz: NewQuizView(q)},
	}, nil
}

// runPlanner asks the Planner for a plan and installs it. The current
// plan, when present, rides along as the prior so completed weeks come
// back unchanged; SetPlan enforces that they actually did.
func (o *Orchestrator) runPlanner(ctx context.Context, doc *session.Document) (*outcome, error) {
	p, err := o.registry.Get(planner.Role)
	if err != nil {
		return nil, err
	}

	plan, err := planner.Generate(ctx, o.provider, p, planner.Input{
		Slice:      memory.Build(ctx, doc, planner.Role, o.search),
		Weeks:      o.cfg.PlanWeeks,
		Diagnostic: diagnosticSummary(doc),
		Prior:      doc.Plan,
	})
	if err != nil {
		return nil, err
	}
	if err := doc.SetPlan(plan); err != nil {
		return nil, &agent.ValidationError{Role: planner.Role, Message: "plan conflicts with completed weeks", Err: err}
	}
	if doc.Session.CurrentWeek < 1 || doc.Session.CurrentWeek > doc.Plan.FinalWeek() {
		doc.Session.CurrentWeek = 1
	}
	doc.PendingQuiz = nil
	doc.Session.Phase = session.PhaseLearning

	return &outcome{
		agentRan: true,
		message:  formatPlan(doc.Plan) + "\n\n" + fmt.Sprintf(msgPlanNext, doc.Session.CurrentWeek),
		payload:  &Payload{Plan: doc.Plan},
	}, nil
}

// handleAnswers grades the pending quiz and walks the post-grade
// transition: diagnostics flow straight into planning, week quizzes gate
// advancement on the score and the mistake bank.
func (o *Orchestrator) handleAnswers(ctx context.Context, doc *session.Document, dec router.Decision, now time.Time) (*outcome, error) {
	q := doc.PendingQuiz
	if q == nil {
		return canned(msgNoPendingQuiz), nil
	}

	attempt, err := quiz.GradeAttempt(q, dec.Slots.Answers, now)
	if err != nil {
		var count *quiz.ErrAnswerCount
		if errors.As(err, &count) {
			// A miscounted submission is the learner's to fix, not a
			// failure: the quiz stays pending.
			return canned(fmt.Sprintf(msgAnswerCount, count.Want, count.Got)), nil
		}
		return nil, err
	}

	diagnostic := doc.Session.Phase == session.PhaseAssessing

	doc.RecordAttempt(attempt)
	report, err := o.tracker.Ingest(doc.Progress, attempt, now)
	if err != nil {
		return nil, err
	}

	// A quiz answered without a plan behind it can only inform planning.
	if diagnostic || doc.Plan == nil {
		return o.planAfterDiagnostic(ctx, doc, attempt, report)
	}

	// An all-ungraded attempt is inconclusive: no advancement, no review
	// detour, and the skill state saw nothing it could score.
	if attempt.Inconclusive() {
		doc.Session.Phase = session.PhaseLearning
		return &outcome{
			message: msgInconclusive,
			payload: &Payload{Attempt: attempt},
		}, nil
	}

	passed := attempt.Passed(o.cfg.Progress.PassThreshold)
	blocked := doc.Progress.BankForSkills(attemptSkills(attempt))

	switch {
	case passed && !blocked && doc.Session.CurrentWeek == doc.Plan.FinalWeek():
		if err := doc.CompleteFinalWeek(); err != nil {
			return nil, err
		}
		doc.Session.Phase = session.PhaseLearning
		return &outcome{
			message: report.Summary + "\n\n" + msgFinalWeekPassed,
			payload: &Payload{Attempt: attempt, Report: report},
		}, nil

	case passed && !blocked:
		if err := doc.AdvanceWeek(); err != nil {
			return nil, err
		}
		doc.Session.Phase = session.PhaseLearning
		next := doc.Plan.Week(doc.Session.CurrentWeek)
		return &outcome{
			message: report.Summary + "\n\n" + fmt.Sprintf(msgWeekAdvanced, next.Number, next.Topic),
			payload: &Payload{Attempt: attempt, Report: report},
		}, nil

	default:
		doc.Session.Phase = session.PhaseReviewing
		return &outcome{
			message: report.Summary + "\n\n" + msgReviewNudge,
			payload: &Payload{Attempt: attempt, Report: report},
		}, nil
	}
}

// planAfterDiagnostic is the assess-to-plan pass-through: the diagnostic
// just graded, skills are updated, and the Planner runs in the same turn.
// A planner failure keeps the graded attempt and skill updates - they
// commit either way - and parks the session in the planning phase with
// the failure counted, so a later "plan" retries without regrading.
func (o *Orchestrator) planAfterDiagnostic(ctx context.Context, doc *session.Document, attempt *quiz.Attempt, report *progress.Report) (*outcome, error) {
	lead := report.Summary
	if attempt.Inconclusive() {
		lead = msgDiagnosticNoGrade
	}

	out, err := o.runPlanner(ctx, doc)
	if err == nil {
		out.message = lead + "\n\n" + out.message
		out.payload.Attempt = attempt
		out.payload.Report = report
		return out, nil
	}

	doc.Session.Phase = session.PhasePlanning
	partial := &Payload{Attempt: attempt, Report: report}

	if agent.IsInvalidOutput(err) {
		msg := lead + "\n\n" + msgPlanRetryLater
		if doc.Session.RecordFailure(err.Error()) {
			msg = msgFatal
			o.log.Error("session fatal", "session", doc.Session.ID, "error", err)
		}
		return &outcome{message: msg, payload: partial, turnErr: err.Error()}, nil
	}

	o.log.Warn("plan after diagnostic failed", "session", doc.Session.ID, "error", err)
	return &outcome{
		message: lead + "\n\n" + msgProviderTrouble,
		payload: partial,
		turnErr: err.Error(),
	}, nil
}

// handleTakeQuiz generates a week quiz, or regenerates whatever quiz is
// already pending. Questions the session has seen ride along as a dedup
// list so a retake is never a memory test.
func (o *Orchestrator) handleTakeQuiz(ctx context.Context, doc *session.Document, now time.Time) (*outcome, error) {
	switch doc.Session.Phase {
	case session.PhaseOnboarding:
		return canned(msgAskTopic), nil
	case session.PhaseCompleted:
		return canned(msgAlreadyCompleted), nil
	case session.PhaseAssessing:
		out, err := o.startDiagnostic(ctx, doc, doc.Session.Topic, false, now)
		if err != nil {
			return nil, err
		}
		out.message = msgQuizReplaced + "\n\n" + out.message
		return out, nil
	}

	if doc.Plan == nil {
		return canned(msgNoPlanYet), nil
	}

	p, err := o.registry.Get(assessor.Role)
	if err != nil {
		return nil, err
	}
	q, err := assessor.Generate(ctx, o.provider, p, assessor.Input{
		Slice:          memory.Build(ctx, doc, assessor.Role, o.search),
		Kind:           quiz.KindWeek,
		Items:          o.cfg.QuizItems,
		AvoidQuestions: askedQuestions(doc),
	})
	if err != nil {
		return nil, err
	}

	replaced := doc.PendingQuiz != nil
	doc.PendingQuiz = q
	doc.Session.Phase = session.PhaseQuizzing

	msg := fmt.Sprintf(msgQuizIntro, q.Week, q.Topic) + "\n\n" + formatQuiz(q)
	if replaced {
		msg = msgQuizReplaced + "\n\n" + msg
	}
	return &outcome{
		agentRan: true,
		message:  msg,
		payload:  &Payload{Quiz: NewQuizView(q)},
	}, nil
}

// handleStartLesson asks the Tutor for the current week's lesson. From
// the reviewing phase the lesson targets the mistake bank and drops the
// session back into learning.
func (o *Orchestrator) handleStartLesson(ctx context.Context, doc *session.Document) (*outcome, error) {
	switch doc.Session.Phase {
	case session.PhaseOnboarding:
		return canned(msgAskTopic), nil
	case session.PhaseAssessing, session.PhaseQuizzing:
		return canned(msgFinishQuizFirst), nil
	case session.PhaseCompleted:
		return canned(msgAlreadyCompleted), nil
	case session.PhaseReviewing:
		out, err := o.teachWeek(ctx, doc, doc.Progress.WeakSkills(reviewFocusSkills))
		if err != nil {
			return nil, err
		}
		doc.Session.Phase = session.PhaseLearning
		return out, nil
	}
	if doc.Plan == nil {
		return canned(msgNoPlanYet), nil
	}
	return o.teachWeek(ctx, doc, nil)
}

// handleReview serves a lesson targeted at the mistake bank. Unlike a
// plain lesson it never advances the phase from learning; from reviewing
// it transitions back to learning like any review lesson does.
func (o *Orchestrator) handleReview(ctx context.Context, doc *session.Document) (*outcome, error) {
	switch doc.Session.Phase {
	case session.PhaseOnboarding:
		return canned(msgAskTopic), nil
	case session.PhaseAssessing, session.PhaseQuizzing:
		return canned(msgFinishQuizFirst), nil
	}

	weak := doc.Progress.WeakSkills(reviewFocusSkills)
	if len(weak) == 0 {
		if doc.Session.Phase == session.PhaseCompleted {
			return canned(msgAlreadyCompleted), nil
		}
		return canned(msgBankEmpty), nil
	}

	out, err := o.teachWeek(ctx, doc, weak)
	if err != nil {
		return nil, err
	}
	if doc.Session.Phase == session.PhaseReviewing {
		doc.Session.Phase = session.PhaseLearning
	}
	return out, nil
}

// teachWeek invokes the Tutor for the current week. focus overrides the
// lesson's skill targeting; nil targets whatever the mistake bank holds.
func (o *Orchestrator) teachWeek(ctx context.Context, doc *session.Document, focus []string) (*outcome, error) {
	p, err := o.registry.Get(tutor.Role)
	if err != nil {
		return nil, err
	}

	sl := memory.Build(ctx, doc, tutor.Role, o.search)
	if focus == nil {
		focus = sl.WeakSkills
	}
	lesson, err := tutor.GenerateLesson(ctx, o.provider, p, tutor.Input{
		Slice:       sl,
		FocusSkills: focus,
	})
	if err != nil {
		return nil, err
	}
	return &outcome{
		agentRan: true,
		message:  formatLesson(lesson),
		payload:  &Payload{Lesson: lesson},
	}, nil
}

// handleAdvance moves to the next week, but only past a passed quiz.
// Completion is a phase change on the final week, not a week change.
func (o *Orchestrator) handleAdvance(doc *session.Document, dec router.Decision) (*outcome, error) {
	switch doc.Session.Phase {
	case session.PhaseOnboarding:
		return canned(msgAskTopic), nil
	case session.PhaseAssessing, session.PhaseQuizzing:
		return canned(msgFinishQuizFirst), nil
	case session.PhaseReviewing:
		return canned(msgAdvanceReviewing), nil
	case session.PhaseCompleted:
		return canned(msgAlreadyCompleted), nil
	}

	if doc.Plan == nil {
		return canned(msgNoPlanYet), nil
	}

	wk := doc.Session.CurrentWeek
	if target := dec.Slots.Week; target > 0 && target != wk && target != wk+1 {
		return canned(fmt.Sprintf(msgOneWeekAtATime, wk)), nil
	}
	if !doc.WeekPassed(wk, o.cfg.Progress.PassThreshold) {
		return canned(fmt.Sprintf(msgAdvanceRefused, wk)), nil
	}

	if wk == doc.Plan.FinalWeek() {
		if err := doc.CompleteFinalWeek(); err != nil {
			return nil, err
		}
		doc.Session.Phase = session.PhaseCompleted
		return &outcome{message: msgCompletedAll}, nil
	}

	// Week quizzes normally advance at grading time; reaching here means
	// the pass happened without one (a replayed plan, say), so advance now.
	if err := doc.AdvanceWeek(); err != nil {
		return nil, err
	}
	next := doc.Plan.Week(doc.Session.CurrentWeek)
	return &outcome{message: fmt.Sprintf(msgWeekAdvanced, next.Number, next.Topic)}, nil
}

// handleQuestion answers anything conversational with the Tutor's plain
// answer persona. The phase never changes: questions are always safe.
func (o *Orchestrator) handleQuestion(ctx context.Context, doc *session.Document, dec router.Decision) (*outcome, error) {
	if doc.Session.Phase == session.PhaseCompleted {
		return canned(msgCompletedAll), nil
	}

	p, err := o.registry.Get(tutor.AnswerRole)
	if err != nil {
		return nil, err
	}
	answer, err := tutor.Answer(ctx, o.provider, p, tutor.Input{
		Slice:    memory.Build(ctx, doc, tutor.Role, o.search),
		Question: dec.Slots.Raw,
	})
	if err != nil {
		return nil, err
	}
	return &outcome{agentRan: true, message: answer}, nil
}

// askedQuestions collects every question the session has already seen,
// newest last, capped for prompt size.
func askedQuestions(doc *session.Document) []string {
	var out []string
	for _, a := range doc.Attempts {
		for _, it := range a.Items {
			out = append(out, it.Question)
		}
	}
	if doc.PendingQuiz != nil {
		for _, it := range doc.PendingQuiz.Items {
			out = append(out, it.Question)
		}
	}
	if len(out) > maxAvoidQuestions {
		out = out[len(out)-maxAvoidQuestions:]
	}
	return out
}

// diagnosticSummary renders the latest attempt's per-skill scores for the
// Planner prompt, weakest first.
func diagnosticSummary(doc *session.Document) string {
	a := doc.LatestAttempt()
	if a == nil {
		return ""
	}
	scores := a.SkillScores()
	ids := make([]string, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if scores[ids[i]] != scores[ids[j]] {
			return scores[ids[i]] < scores[ids[j]]
		}
		return ids[i] < ids[j]
	})
	var b strings.Builder
	for _, id := range ids {
		fmt.Fprintf(&b, "%s: %.2f\n", id, scores[id])
	}
	return strings.TrimRight(b.String(), "\n")
}

// attemptSkills returns the skills the attempt actually scored.
func attemptSkills(a *quiz.Attempt) []string {
	scores := a.SkillScores()
	out := make([]string, 0, len(scores))
	for id := range scores {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
