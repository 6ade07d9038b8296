package planner

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/abhisek/coach/internal/agent"
	"github.com/abhisek/coach/internal/llm"
	"github.com/abhisek/coach/internal/memory"
	"github.com/abhisek/coach/internal/search"
	"github.com/abhisek/coach/internal/session"
)

const validPlanJSON = `{
	"title": "Rust in Four Weeks",
	"summary": "From ownership basics to a small CLI project.",
	"weeks": [
		{"topic": "Rust Basics", "goal": "Read and write simple programs",
		 "activities": ["Reading", "Exercises"],
		 "assessment": {"type": "quiz", "details": "Syntax and ownership quiz"}},
		{"topic": "Collections and Errors", "goal": "Use Vec, HashMap and Result",
		 "activities": ["Exercises", "Small katas"],
		 "assessment": {"type": "quiz", "details": "Collections quiz"}},
		{"topic": "Traits", "goal": "Model behavior with traits",
		 "activities": ["Reading", "Project work"],
		 "assessment": {"type": "exercise", "details": "Trait refactoring exercise"}},
		{"topic": "CLI Project", "goal": "Ship a small CLI tool",
		 "activities": ["Capstone project"],
		 "assessment": {"type": "project", "details": "Capstone review"}}
	]
}`

func TestGeneratePlan(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{Content: json.RawMessage(validPlanJSON)})
	in := Input{
		Slice: memory.Slice{Topic: "Rust", WeakSkills: []string{"ownership"}},
	}

	plan, err := Generate(context.Background(), mock, DefaultPersona(), in)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if plan.Title != "Rust in Four Weeks" {
		t.Errorf("title = %q", plan.Title)
	}
	if len(plan.Weeks) != 4 {
		t.Fatalf("weeks = %d, want 4", len(plan.Weeks))
	}
	for i, w := range plan.Weeks {
		if w.Number != i+1 {
			t.Errorf("week[%d].Number = %d, want %d", i, w.Number, i+1)
		}
	}
	if plan.Weeks[2].Assessment.Type != session.AssessmentExercise {
		t.Errorf("week 3 assessment = %q", plan.Weeks[2].Assessment.Type)
	}
	if err := plan.Validate(); err != nil {
		t.Errorf("generated plan invalid: %v", err)
	}

	req := mock.Calls[0]
	if req.Schema == nil || req.Schema.Name != "learning-plan" {
		t.Fatalf("request schema = %+v", req.Schema)
	}
	user := req.Messages[0].Content
	if !strings.Contains(user, "Topic: Rust") {
		t.Errorf("user prompt missing topic:\n%s", user)
	}
	if !strings.Contains(user, "Requested weeks: 4") {
		t.Errorf("user prompt missing defaulted week count:\n%s", user)
	}
	if !strings.Contains(user, "ownership") {
		t.Errorf("user prompt missing weak skills:\n%s", user)
	}
}

func TestGeneratePromptCarriesContext(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{Content: json.RawMessage(validPlanJSON)})

	prior := &session.LearningPlan{
		Title:   "Old Plan",
		Summary: "old",
		Weeks: []session.Week{
			{Number: 1, Topic: "Rust Basics", Goal: "basics", Completed: true,
				Assessment: session.Assessment{Type: session.AssessmentQuiz}},
			{Number: 2, Topic: "Traits", Goal: "traits",
				Assessment: session.Assessment{Type: session.AssessmentQuiz}},
		},
	}
	in := Input{
		Slice: memory.Slice{
			Topic:     "Rust",
			Insights:  []string{"User preference: likes small exercises"},
			Standards: []search.Result{{Title: "CS.PROG.1", Snippet: "Decompose problems into functions"}},
		},
		Weeks:      6,
		Diagnostic: "ownership: 0.25\nsyntax: 1.00",
		Prior:      prior,
	}

	if _, err := Generate(context.Background(), mock, DefaultPersona(), in); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	user := mock.Calls[0].Messages[0].Content
	for _, want := range []string{
		"Requested weeks: 6",
		"ownership: 0.25",
		"likes small exercises",
		"CS.PROG.1",
		"Week 1: Rust Basics - basics [completed]",
		"Week 2: Traits - traits",
	} {
		if !strings.Contains(user, want) {
			t.Errorf("user prompt missing %q:\n%s", want, user)
		}
	}
	if strings.Contains(user, "Traits - traits [completed]") {
		t.Errorf("future week marked completed:\n%s", user)
	}
}

func TestGenerateRejectsInvalidPlan(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no weeks", `{"title": "T", "summary": "S", "weeks": []}`},
		{"empty topic", `{"title": "T", "summary": "S", "weeks": [
			{"topic": "  ", "goal": "g", "activities": ["a"],
			 "assessment": {"type": "quiz", "details": "d"}}]}`},
		{"bad assessment", `{"title": "T", "summary": "S", "weeks": [
			{"topic": "Basics", "goal": "g", "activities": ["a"],
			 "assessment": {"type": "oral-exam", "details": "d"}}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := llm.NewMockProvider(llm.MockResponse{Content: json.RawMessage(tt.body)})
			_, err := Generate(context.Background(), mock, DefaultPersona(), Input{Slice: memory.Slice{Topic: "Rust"}})

			var verr *agent.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("err = %v, want *agent.ValidationError", err)
			}
			if verr.Role != Role {
				t.Errorf("role = %q", verr.Role)
			}
			if !agent.IsInvalidOutput(err) {
				t.Error("validation error not counted as invalid output")
			}
		})
	}
}

func TestGenerateTransportErrorPassesThrough(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{Err: &llm.ErrProviderUnavailable{}})
	_, err := Generate(context.Background(), mock, DefaultPersona(), Input{Slice: memory.Slice{Topic: "Rust"}})
	if err == nil {
		t.Fatal("expected error")
	}
	if agent.IsInvalidOutput(err) {
		t.Errorf("transport error misclassified as invalid output: %v", err)
	}
}

func TestFallbackPlan(t *testing.T) {
	plan := Fallback("Rust")
	if err := plan.Validate(); err != nil {
		t.Fatalf("fallback plan invalid: %v", err)
	}
	if len(plan.Weeks) != 4 {
		t.Fatalf("weeks = %d, want 4", len(plan.Weeks))
	}
	if plan.Weeks[0].Topic != "Rust Basics" {
		t.Errorf("week 1 topic = %q", plan.Weeks[0].Topic)
	}
	if plan.FinalWeek() != 4 {
		t.Errorf("final week = %d", plan.FinalWeek())
	}
}
