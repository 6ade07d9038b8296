package assessor

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/abhisek/coach/internal/agent"
	"github.com/abhisek/coach/internal/llm"
	"github.com/abhisek/coach/internal/memory"
	"github.com/abhisek/coach/internal/quiz"
)

const validQuizJSON = `{
	"kind": "week",
	"items": [
		{"question": "What is 1/4 + 1/6?",
		 "skill_id": "fractions-add", "format": "short_answer",
		 "options": [], "expected": "5/12",
		 "rubric": "Accept any form equal to 5/12"},
		{"question": "Which fraction equals 0.75?",
		 "skill_id": "fractions-decimal", "format": "multiple_choice",
		 "options": ["3/4", "4/3", "7/5", "1/4"], "expected": "3/4",
		 "rubric": ""}
	]
}`

func TestGenerateQuiz(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{Content: json.RawMessage(validQuizJSON)})
	in := Input{
		Slice: memory.Slice{
			Topic:      "Fractions",
			Week:       2,
			WeekTopic:  "Adding fractions",
			WeakSkills: []string{"fractions-add"},
		},
		Kind: quiz.KindWeek,
	}

	q, err := Generate(context.Background(), mock, DefaultPersona(), in)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if q.ID == "" {
		t.Error("quiz has no id")
	}
	if q.Kind != quiz.KindWeek {
		t.Errorf("kind = %q", q.Kind)
	}
	if q.Week != 2 {
		t.Errorf("week = %d", q.Week)
	}
	if q.Topic != "Adding fractions" {
		t.Errorf("topic = %q", q.Topic)
	}
	if len(q.Items) != 2 {
		t.Fatalf("items = %d", len(q.Items))
	}
	if q.Items[1].Format != quiz.FormatMultipleChoice {
		t.Errorf("item 2 format = %q", q.Items[1].Format)
	}
	if got := q.Skills(); len(got) != 2 {
		t.Errorf("skills = %v", got)
	}

	req := mock.Calls[0]
	if req.Schema == nil || req.Schema.Name != "quiz" {
		t.Fatalf("request schema = %+v", req.Schema)
	}
	user := req.Messages[0].Content
	for _, want := range []string{
		"Quiz kind: week",
		"Items: 5",
		"Topic: Adding fractions",
		"Known weak skills: fractions-add",
		"None",
	} {
		if !strings.Contains(user, want) {
			t.Errorf("user prompt missing %q:\n%s", want, user)
		}
	}
}

func TestGeneratePromptCarriesDedup(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{Content: json.RawMessage(validQuizJSON)})
	in := Input{
		Slice:          memory.Slice{Topic: "Fractions"},
		Kind:           quiz.KindWeek,
		AvoidQuestions: []string{"What is 2/3 + 1/3?"},
	}

	if _, err := Generate(context.Background(), mock, DefaultPersona(), in); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	user := mock.Calls[0].Messages[0].Content
	if !strings.Contains(user, "- What is 2/3 + 1/3?") {
		t.Errorf("user prompt missing dedup list:\n%s", user)
	}
	if strings.Contains(user, "None") {
		t.Errorf("dedup list should replace None:\n%s", user)
	}
}

func TestGenerateRejectsStructurallyBrokenQuiz(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no items", `{"kind": "week", "items": []}`},
		{"empty question", `{"kind": "week", "items": [
			{"question": " ", "skill_id": "s", "format": "short_answer",
			 "options": [], "expected": "x", "rubric": ""}]}`},
		{"missing skill", `{"kind": "week", "items": [
			{"question": "q", "skill_id": "", "format": "short_answer",
			 "options": [], "expected": "x", "rubric": ""}]}`},
		{"no expected", `{"kind": "week", "items": [
			{"question": "q", "skill_id": "s", "format": "short_answer",
			 "options": [], "expected": "", "rubric": "r"}]}`},
		{"mc without options", `{"kind": "week", "items": [
			{"question": "q", "skill_id": "s", "format": "multiple_choice",
			 "options": ["only one"], "expected": "only one", "rubric": ""}]}`},
		{"mc expected not an option", `{"kind": "week", "items": [
			{"question": "q", "skill_id": "s", "format": "multiple_choice",
			 "options": ["a", "b", "c", "d"], "expected": "e", "rubric": ""}]}`},
		{"unknown format", `{"kind": "week", "items": [
			{"question": "q", "skill_id": "s", "format": "essay",
			 "options": [], "expected": "x", "rubric": ""}]}`},
		{"duplicate within quiz", `{"kind": "week", "items": [
			{"question": "What is 2+2?", "skill_id": "s", "format": "short_answer",
			 "options": [], "expected": "4", "rubric": ""},
			{"question": "what is  2+2?", "skill_id": "s", "format": "short_answer",
			 "options": [], "expected": "4", "rubric": ""}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := llm.NewMockProvider(llm.MockResponse{Content: json.RawMessage(tt.body)})
			_, err := Generate(context.Background(), mock, DefaultPersona(),
				Input{Slice: memory.Slice{Topic: "Math"}, Kind: quiz.KindWeek})

			var verr *agent.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("err = %v, want *agent.ValidationError", err)
			}
			if verr.Role != Role {
				t.Errorf("role = %q", verr.Role)
			}
		})
	}
}

func TestGenerateRejectsRepeatedQuestion(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{Content: json.RawMessage(validQuizJSON)})
	in := Input{
		Slice:          memory.Slice{Topic: "Fractions"},
		Kind:           quiz.KindWeek,
		AvoidQuestions: []string{"what is 1/4 + 1/6?"},
	}

	_, err := Generate(context.Background(), mock, DefaultPersona(), in)
	var verr *agent.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want *agent.ValidationError", err)
	}
	if !strings.Contains(verr.Message, "repeats") {
		t.Errorf("message = %q", verr.Message)
	}
}

func TestGenerateDiagnosticUsesSessionTopic(t *testing.T) {
	body := `{"kind": "diagnostic", "items": [
		{"question": "q1", "skill_id": "loops", "format": "short_answer",
		 "options": [], "expected": "x", "rubric": ""}]}`
	mock := llm.NewMockProvider(llm.MockResponse{Content: json.RawMessage(body)})

	q, err := Generate(context.Background(), mock, DefaultPersona(),
		Input{Slice: memory.Slice{Topic: "Python", Week: 1}, Kind: quiz.KindDiagnostic, Items: 1})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if q.Kind != quiz.KindDiagnostic {
		t.Errorf("kind = %q", q.Kind)
	}
	if q.Topic != "Python" {
		t.Errorf("topic = %q", q.Topic)
	}

	user := mock.Calls[0].Messages[0].Content
	if !strings.Contains(user, "Quiz kind: diagnostic") {
		t.Errorf("prompt missing kind:\n%s", user)
	}
	if !strings.Contains(user, "Items: 1") {
		t.Errorf("prompt missing item count:\n%s", user)
	}
}
