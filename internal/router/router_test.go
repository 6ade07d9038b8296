package router

import (
	"reflect"
	"testing"

	"github.com/abhisek/coach/internal/session"
)

func TestClassifyIntents(t *testing.T) {
	learning := State{Phase: session.PhaseLearning, HasPlan: true}
	onboarding := State{Phase: session.PhaseOnboarding}

	tests := []struct {
		name      string
		utterance string
		st        State
		want      Intent
		wantTopic string
	}{
		{"quiz request", "quiz me on fractions", learning, IntentTakeQuiz, "Fractions"},
		{"quiz typo", "asses me on decimals", learning, IntentTakeQuiz, ""},
		{"plan phrase", "create a new learning path for rust", onboarding, IntentNewPlan, "Rust"},
		{"plan with opener", "I'd like a new plan for statistics", onboarding, IntentNewPlan, "Statistics"},
		{"plan replacement", "make me a plan", learning, IntentNewPlan, ""},
		{"topic switch", "switch to rust", learning, IntentNewPlan, "Rust"},
		{"bare learn request", "I want to learn about machine learning", onboarding, IntentNewPlan, "Machine Learning"},
		{"lesson with plan", "teach me fractions", learning, IntentStartLesson, "Fractions"},
		{"learn with plan", "I want to learn about decimals", learning, IntentStartLesson, "Decimals"},
		{"review request", "let's review my mistakes", learning, IntentReviewRequest, ""},
		{"advance", "continue", learning, IntentAdvanceWeek, ""},
		{"advance next week", "let's move to the next week", learning, IntentAdvanceWeek, ""},
		{"question", "what is a derivative?", learning, IntentGeneralQuestion, ""},
		{"question suffix only", "fractions?", learning, IntentGeneralQuestion, ""},
		{"smalltalk", "hello there", onboarding, IntentGeneralQuestion, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.utterance, tt.st)
			if got.Intent != tt.want {
				t.Fatalf("Classify(%q) = %q, want %q", tt.utterance, got.Intent, tt.want)
			}
			if tt.wantTopic != "" && got.Slots.Topic != tt.wantTopic {
				t.Errorf("Classify(%q) topic = %q, want %q", tt.utterance, got.Slots.Topic, tt.wantTopic)
			}
		})
	}
}

func TestClassifyPlanlessRedirect(t *testing.T) {
	onboarding := State{Phase: session.PhaseOnboarding}

	got := Classify("teach me fractions", onboarding)
	if got.Intent != IntentNewPlan {
		t.Fatalf("got %q without a plan, want %q", got.Intent, IntentNewPlan)
	}
	if got.Slots.Topic != "Fractions" {
		t.Errorf("topic = %q, want %q", got.Slots.Topic, "Fractions")
	}

	// A topic-less quiz request still funnels into planning, with the
	// topic left open for the orchestrator to ask about.
	got = Classify("quiz me", onboarding)
	if got.Intent != IntentNewPlan {
		t.Fatalf("got %q without a plan, want %q", got.Intent, IntentNewPlan)
	}
	if got.Slots.Topic != "" {
		t.Errorf("topic = %q, want empty", got.Slots.Topic)
	}
}

func TestClassifyAffirmativePhaseBias(t *testing.T) {
	tests := []struct {
		name string
		st   State
		want Intent
	}{
		{"onboarding", State{Phase: session.PhaseOnboarding}, IntentNewPlan},
		{"learning", State{Phase: session.PhaseLearning, HasPlan: true}, IntentStartLesson},
		{"reviewing", State{Phase: session.PhaseReviewing, HasPlan: true}, IntentReviewRequest},
		{"quizzing no pending", State{Phase: session.PhaseQuizzing, HasPlan: true}, IntentTakeQuiz},
		{"quizzing pending", State{Phase: session.PhaseQuizzing, HasPlan: true, PendingQuiz: true, QuizItems: 3}, IntentAnswerSubmission},
		{"assessing pending", State{Phase: session.PhaseAssessing, PendingQuiz: true, QuizItems: 1}, IntentAnswerSubmission},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify("yes", tt.st)
			if got.Intent != tt.want {
				t.Fatalf("Classify(\"yes\") in %s = %q, want %q", tt.st.Phase, got.Intent, tt.want)
			}
			if got.Slots.Topic != "" {
				t.Errorf("bare affirmative produced topic %q, want empty", got.Slots.Topic)
			}
		})
	}
}

func TestClassifyPendingQuiz(t *testing.T) {
	pending := func(items int) State {
		return State{Phase: session.PhaseQuizzing, HasPlan: true, PendingQuiz: true, QuizItems: items}
	}

	tests := []struct {
		name        string
		utterance   string
		items       int
		wantAnswers []string
		wantConf    float64
	}{
		{"comma list", "a, b, c", 3, []string{"a", "b", "c"}, 0.95},
		{"numbered list", "1. 12 2) x=4 3: paris", 3, []string{"12", "x=4", "paris"}, 0.95},
		{"letter run", "abc", 3, []string{"a", "b", "c"}, 0.95},
		{"prefixed pair", "my answers are a and b", 2, []string{"a", "b"}, 0.95},
		{"single letter", "b", 1, []string{"b"}, 0.95},
		{"single number", "42", 1, []string{"42"}, 0.95},
		{"free text single", "the mitochondria makes energy", 1, []string{"the mitochondria makes energy"}, 0.7},
		{"count mismatch", "b", 3, []string{"b"}, 0.7},
		{"affirmative as attempt", "yes", 3, []string{"yes"}, 0.7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.utterance, pending(tt.items))
			if got.Intent != IntentAnswerSubmission {
				t.Fatalf("Classify(%q) = %q, want %q", tt.utterance, got.Intent, IntentAnswerSubmission)
			}
			if !reflect.DeepEqual(got.Slots.Answers, tt.wantAnswers) {
				t.Errorf("answers = %v, want %v", got.Slots.Answers, tt.wantAnswers)
			}
			if got.Confidence != tt.wantConf {
				t.Errorf("confidence = %v, want %v", got.Confidence, tt.wantConf)
			}
		})
	}
}

func TestClassifyPendingQuizEscape(t *testing.T) {
	st := State{Phase: session.PhaseQuizzing, HasPlan: true, PendingQuiz: true, QuizItems: 3}

	got := Classify("quiz me again", st)
	if got.Intent != IntentTakeQuiz {
		t.Errorf("got %q, want %q", got.Intent, IntentTakeQuiz)
	}

	got = Classify("i want to review my mistakes", st)
	if got.Intent != IntentReviewRequest {
		t.Errorf("got %q, want %q", got.Intent, IntentReviewRequest)
	}
}

func TestClassifyEmptyInput(t *testing.T) {
	got := Classify("   ", State{Phase: session.PhaseLearning, HasPlan: true})
	if got.Intent != IntentGeneralQuestion {
		t.Errorf("got %q, want %q", got.Intent, IntentGeneralQuestion)
	}
	if got.Confidence != 0 {
		t.Errorf("confidence = %v, want 0", got.Confidence)
	}
}

func TestClassifyWeekSlot(t *testing.T) {
	st := State{Phase: session.PhaseLearning, HasPlan: true}
	got := Classify("move on to week 3", st)
	if got.Intent != IntentAdvanceWeek {
		t.Fatalf("got %q, want %q", got.Intent, IntentAdvanceWeek)
	}
	if got.Slots.Week != 3 {
		t.Errorf("week = %d, want 3", got.Slots.Week)
	}
}

func TestSanitizeTopic(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"i want to learn about machine learning", "Machine Learning"},
		{"Teach me about SQL", "SQL"},
		{"could you teach me fractions", "Fractions"},
		{"yes, create a plan for linear algebra", "Linear Algebra"},
		{"please teach me about the pythagorean theorem", "The Pythagorean Theorem"},
		{"what is photosynthesis?", "Photosynthesis"},
		{"quiz me on ai", "AI"},
		{"tax law", "Tax Law"},
		{"make me a plan", ""},
		{"i want a new plan", ""},
		{"switch to rust", "Rust"},
		{"yes", ""},
		{"quiz me", ""},
		{"", ""},
	}

	for _, tt := range tests {
		if got := SanitizeTopic(tt.raw); got != tt.want {
			t.Errorf("SanitizeTopic(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestExtractAnswers(t *testing.T) {
	tests := []struct {
		raw   string
		items int
		want  []string
		ok    bool
	}{
		{"a, b, c", 3, []string{"a", "b", "c"}, true},
		{"a; b\nc", 3, []string{"a", "b", "c"}, true},
		{"10 20 30", 3, []string{"10", "20", "30"}, true},
		{"1. true 2. false", 2, []string{"true", "false"}, true},
		{"abc", 3, []string{"a", "b", "c"}, true},
		{"answer: supply and demand", 1, []string{"supply and demand"}, true},
		{"answers: 4, 9", 3, []string{"4", "9"}, true},
		{"b", 1, []string{"b"}, true},
		{"yes", 3, nil, false},
		{"b", 3, nil, false},
		{"1. b", 2, nil, false},
		{"quiz me again", 3, nil, false},
		{"", 3, nil, false},
	}

	for _, tt := range tests {
		got, ok := ExtractAnswers(tt.raw, tt.items)
		if ok != tt.ok {
			t.Errorf("ExtractAnswers(%q, %d) ok = %v, want %v", tt.raw, tt.items, ok, tt.ok)
			continue
		}
		if tt.ok && !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ExtractAnswers(%q, %d) = %v, want %v", tt.raw, tt.items, got, tt.want)
		}
	}
}

func TestParseWeek(t *testing.T) {
	tests := []struct {
		s    string
		want int
	}{
		{"move on to week 3", 3},
		{"week12", 12},
		{"Week 2 please", 2},
		{"week zero", 0},
		{"next please", 0},
		{"", 0},
	}

	for _, tt := range tests {
		if got := ParseWeek(tt.s); got != tt.want {
			t.Errorf("ParseWeek(%q) = %d, want %d", tt.s, got, tt.want)
		}
	}
}
