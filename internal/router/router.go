// Package router classifies raw user utterances into the closed intent
// set the orchestrator dispatches on. Classification is deterministic:
// keyword triggers with light typo tolerance, biased by the session's
// current phase when an utterance is ambiguous. Unparseable input always
// degrades to a general question, never an error.
package router

import (
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/abhisek/coach/internal/session"
)

// Intent is one of the closed set of user intentions.
type Intent string

const (
	IntentNewPlan          Intent = "new_plan"
	IntentStartLesson      Intent = "start_lesson"
	IntentTakeQuiz         Intent = "take_quiz"
	IntentAnswerSubmission Intent = "answer_submission"
	IntentReviewRequest    Intent = "review_request"
	IntentGeneralQuestion  Intent = "general_question"
	IntentAdvanceWeek      Intent = "advance_week"
)

// Intents lists every intent, in display order.
var Intents = []Intent{
	IntentNewPlan,
	IntentStartLesson,
	IntentTakeQuiz,
	IntentAnswerSubmission,
	IntentReviewRequest,
	IntentGeneralQuestion,
	IntentAdvanceWeek,
}

// Slots carries the parameters extracted alongside an intent.
type Slots struct {
	// Raw is the original utterance, always present.
	Raw string

	// Topic is the sanitized topic for plan, lesson and quiz intents.
	Topic string

	// Answers are the extracted submissions for answer_submission.
	Answers []string

	// Week is an explicit week number in the utterance, 0 when absent.
	Week int
}

// State is the router's view of the session, enough for phase bias.
type State struct {
	Phase       session.Phase
	HasPlan     bool
	PendingQuiz bool
	// QuizItems is the pending quiz's item count, 0 when none.
	QuizItems int
}

// Decision is a classified utterance.
type Decision struct {
	Intent     Intent
	Slots      Slots
	Confidence float64
}

// Confidence below this threshold falls back to general_question.
const minConfidence = 0.5

// Trigger keyword sets, ported from the coach's conversational grammar.
var (
	quizKeywords    = []string{"quiz", "quizzes", "assess", "assessment", "test me", "test my"}
	planPhrases     = []string{"new plan", "add plan", "create plan", "start path", "add path", "learning path", "new path", "create path"}
	planBareWords   = []string{"learn", "plan", "study", "curriculum"}
	reviewKeywords  = []string{"review", "go over", "revisit", "mistakes", "weak areas", "explain again"}
	lessonKeywords  = []string{"start", "teach", "begin", "lesson", "explain", "learn"}
	advanceKeywords = []string{"continue", "next", "move on", "proceed", "advance"}
	finishKeywords  = []string{"finished", "done", "complete", "i'm done", "i am done"}
	affirmatives    = []string{"yes", "yeah", "yep", "sure", "ok", "okay", "let's", "lets", "ready", "go ahead", "sounds good"}
	questionLeads   = []string{"what", "why", "how", "when", "who", "where", "which"}

	// topicSwitchLeads announce a topic change outright. They read as a
	// plan request even when a plan already exists.
	topicSwitchLeads = []string{"switch to", "change topic to", "change to", "start over with"}
)

// Classify maps an utterance to an intent plus slots. The phase in st
// biases ambiguous input; a pending quiz makes answer submission the
// default reading of anything that isn't clearly another intent.
func Classify(utterance string, st State) Decision {
	raw := utterance
	trimmed := strings.ToLower(strings.TrimSpace(utterance))
	slots := Slots{Raw: raw}

	if trimmed == "" {
		return Decision{Intent: IntentGeneralQuestion, Slots: slots, Confidence: 0}
	}

	awaitingAnswers := st.PendingQuiz &&
		(st.Phase == session.PhaseAssessing || st.Phase == session.PhaseQuizzing)

	// An answer-shaped utterance during a pending quiz is unambiguous.
	if awaitingAnswers {
		if answers, ok := ExtractAnswers(raw, st.QuizItems); ok {
			slots.Answers = answers
			return Decision{Intent: IntentAnswerSubmission, Slots: slots, Confidence: 0.95}
		}
	}

	scores := map[Intent]float64{}

	if matchAny(trimmed, quizKeywords) {
		scores[IntentTakeQuiz] = 0.9
	}
	if matchAny(trimmed, planPhrases) || combinedPlanRequest(trimmed) || leadsWithAny(trimmed, topicSwitchLeads) {
		scores[IntentNewPlan] = 0.9
	} else if !st.HasPlan && matchAny(trimmed, planBareWords) {
		scores[IntentNewPlan] = 0.75
	}
	if matchAny(trimmed, reviewKeywords) {
		scores[IntentReviewRequest] = 0.85
	}
	if matchAny(trimmed, lessonKeywords) {
		scores[IntentStartLesson] = 0.8
	}
	if matchAny(trimmed, advanceKeywords) || matchAny(trimmed, finishKeywords) {
		scores[IntentAdvanceWeek] = 0.8
	}
	if strings.Contains(trimmed, "next week") ||
		strings.Contains(trimmed, "what's next") || strings.Contains(trimmed, "whats next") {
		scores[IntentAdvanceWeek] = 0.9
	}
	if leadsWithAny(trimmed, questionLeads) {
		scores[IntentGeneralQuestion] = 0.85
	} else if strings.HasSuffix(trimmed, "?") && len(scores) == 0 {
		// A trailing "?" is weak evidence; it only decides when nothing
		// else matched ("teach me fractions?" is still a lesson request).
		scores[IntentGeneralQuestion] = 0.85
	}
	if matchAny(trimmed, affirmatives) {
		exp := expectedIntent(st)
		if scores[exp] < 0.7 {
			scores[exp] = 0.7
		}
	}

	intent, score := pick(scores, st)

	// During a pending quiz, anything that didn't clearly ask for
	// something else is read as an answer attempt.
	if awaitingAnswers && (score < 0.8 || intent == IntentAnswerSubmission) {
		slots.Answers = []string{strings.TrimSpace(raw)}
		return Decision{Intent: IntentAnswerSubmission, Slots: slots, Confidence: 0.7}
	}

	if score < minConfidence {
		return Decision{Intent: IntentGeneralQuestion, Slots: slots, Confidence: score}
	}

	// Without a plan there is nothing to teach or quiz yet; topic-bearing
	// requests funnel into plan creation, which starts with a diagnostic.
	if !st.HasPlan && (intent == IntentStartLesson || intent == IntentTakeQuiz) {
		intent = IntentNewPlan
	}

	switch intent {
	case IntentNewPlan, IntentStartLesson, IntentTakeQuiz:
		slots.Topic = SanitizeTopic(raw)
	case IntentAdvanceWeek:
		slots.Week = ParseWeek(trimmed)
	}

	return Decision{Intent: intent, Slots: slots, Confidence: score}
}

// pick returns the best-scoring intent, preferring the phase-expected
// intent on ties. Iteration over the fixed Intents order keeps the
// result deterministic.
func pick(scores map[Intent]float64, st State) (Intent, float64) {
	exp := expectedIntent(st)
	best, bestScore := IntentGeneralQuestion, 0.0
	for _, in := range Intents {
		s, hit := scores[in]
		if !hit {
			continue
		}
		if s > bestScore || (s == bestScore && preferred(in, best, exp)) {
			best, bestScore = in, s
		}
	}
	return best, bestScore
}

// preferred resolves exact score ties: the phase-expected intent wins,
// then general_question (deferring ambiguous input to the tutor), then
// whichever matched first in the fixed Intents order.
func preferred(in, best, exp Intent) bool {
	if best == exp {
		return false
	}
	return in == exp || in == IntentGeneralQuestion
}

// expectedIntent is the input each phase most plausibly receives, used
// to resolve bare affirmatives and score ties.
func expectedIntent(st State) Intent {
	switch st.Phase {
	case session.PhaseAssessing, session.PhaseQuizzing:
		if st.PendingQuiz {
			return IntentAnswerSubmission
		}
		return IntentTakeQuiz
	case session.PhaseLearning:
		return IntentStartLesson
	case session.PhaseReviewing:
		return IntentReviewRequest
	default:
		// Onboarding, planning and completed sessions expect plan work.
		return IntentNewPlan
	}
}

// combinedPlanRequest catches "add/create/new/make/build ... plan/path/
// course" phrasings that the fixed phrase list misses.
func combinedPlanRequest(s string) bool {
	verb := strings.Contains(s, "add") || strings.Contains(s, "create") ||
		strings.Contains(s, "new") || strings.Contains(s, "make") ||
		strings.Contains(s, "build") || strings.Contains(s, "another")
	noun := strings.Contains(s, "path") || strings.Contains(s, "plan") || strings.Contains(s, "course")
	return verb && noun
}

// matchAny reports whether s contains any keyword. Multi-word keywords
// match as substrings; single words match whole tokens, tolerating
// small typos in longer ones (edit distance 1 at five letters, 2
// beyond) so "asses me" still reads as an assessment request.
func matchAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.ContainsRune(k, ' ') {
			if strings.Contains(s, k) {
				return true
			}
			continue
		}
		maxDist := 0
		if len(k) >= 5 {
			maxDist = 1
		}
		if len(k) >= 6 {
			maxDist = 2
		}
		for _, tok := range strings.Fields(s) {
			tok = strings.Trim(tok, ".,!?;:\"'")
			if tok == k {
				return true
			}
			if maxDist == 0 || len(tok) < 4 || abs(len(tok)-len(k)) > maxDist {
				continue
			}
			if fuzzy.LevenshteinDistance(tok, k) <= maxDist {
				return true
			}
		}
	}
	return false
}

func leadsWithAny(s string, leads []string) bool {
	for _, l := range leads {
		if strings.HasPrefix(s, l+" ") || s == l {
			return true
		}
	}
	return false
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
