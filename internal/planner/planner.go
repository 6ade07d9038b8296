// Package planner turns a learner's goal and diagnosed skill gaps into a
// multi-week learning plan through the planner persona. It only generates
// and validates; the orchestrator owns persistence.
package planner

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/abhisek/coach/internal/agent"
	"github.com/abhisek/coach/internal/llm"
	"github.com/abhisek/coach/internal/memory"
	"github.com/abhisek/coach/internal/session"
)

// Role is the planner's registry key and LLM purpose tag.
const Role = "planner"

// DefaultWeeks is the plan length used when the learner does not ask for
// a specific duration.
const DefaultWeeks = 4

const systemPrompt = `You are a curriculum planner for a personal learning coach. You turn a learner's goal and diagnosed skill gaps into a focused multi-week study plan.

Rules:
- Produce exactly the requested number of weeks, ordered from fundamentals to advanced material.
- Each week covers one focused topic with a single concrete goal and 2-4 activities a self-directed learner can do alone.
- Weak skills from the diagnostic results get explicit coverage in the earliest sensible week.
- Assessment type is "quiz" for knowledge checks, "exercise" for guided practice, "project" for applied work. Most weeks should end in a quiz.
- When an existing plan is shown, keep every week marked [completed] exactly as it is and only redesign the remaining weeks.
- Keep titles, goals and activities short and concrete. Plain ASCII text only.`

const userTemplate = `Topic: {{.Topic}}
Requested weeks: {{.Weeks}}
{{- if .ShortSummary}}
Recent requests: {{.ShortSummary}}
{{- end}}
{{- if .Diagnostic}}

Diagnostic results:
{{.Diagnostic}}
{{- end}}
{{- if .WeakSkills}}
Weak skills: {{join .WeakSkills ", "}}
{{- end}}
{{- if .Insights}}

Learner notes:
{{- range .Insights}}
- {{.}}
{{- end}}
{{- end}}
{{- if .Standards}}

Curriculum references:
{{- range .Standards}}
- {{.Title}}: {{.Snippet}}
{{- end}}
{{- end}}
{{- if .Prior}}

Existing plan (weeks marked [completed] are immutable):
{{- range .Prior.Weeks}}
Week {{.Number}}: {{.Topic}} - {{.Goal}}{{if .Completed}} [completed]{{end}}
{{- end}}
{{- end}}`

// Input carries everything the planner prompts are filled with.
type Input struct {
	memory.Slice

	// Weeks is the requested plan length.
	Weeks int

	// Diagnostic summarizes the graded diagnostic attempt, one line per
	// skill. Empty before any assessment has been taken.
	Diagnostic string

	// Prior is the existing plan when the learner asks for a replacement.
	// Completed weeks must be carried through unchanged.
	Prior *session.LearningPlan
}

// DefaultPersona returns the built-in planner persona. Prompt overrides
// may replace the templates but never the schema.
func DefaultPersona() *agent.Persona {
	return &agent.Persona{
		Role:        Role,
		Description: "Designs multi-week learning plans from the topic and diagnosed gaps",
		System:      systemPrompt,
		User:        userTemplate,
		Schema:      PlanSchema,
		MaxTokens:   2048,
		Temperature: 0.7,
	}
}

// planOutput is the raw LLM response before conversion.
type planOutput struct {
	Title   string       `json:"title"`
	Summary string       `json:"summary"`
	Weeks   []weekOutput `json:"weeks"`
}

type weekOutput struct {
	Topic      string   `json:"topic"`
	Goal       string   `json:"goal"`
	Activities []string `json:"activities"`
	Assessment struct {
		Type    string `json:"type"`
		Details string `json:"details"`
	} `json:"assessment"`
}

// Generate produces a validated learning plan for the input. A reply that
// decodes but fails plan validation returns *agent.ValidationError so the
// orchestrator can count it toward the failure cap.
func Generate(ctx context.Context, provider llm.Provider, p *agent.Persona, in Input) (*session.LearningPlan, error) {
	if in.Weeks <= 0 {
		in.Weeks = DefaultWeeks
	}

	content, err := agent.Invoke(ctx, provider, p, in)
	if err != nil {
		return nil, err
	}

	var raw planOutput
	if err := json.Unmarshal(content, &raw); err != nil {
		return nil, &agent.ValidationError{Role: Role, Message: "undecodable plan JSON", Err: err}
	}

	plan := &session.LearningPlan{
		Title:   raw.Title,
		Summary: raw.Summary,
		Weeks:   make([]session.Week, 0, len(raw.Weeks)),
	}
	for i, w := range raw.Weeks {
		plan.Weeks = append(plan.Weeks, session.Week{
			Number:     i + 1,
			Topic:      w.Topic,
			Goal:       w.Goal,
			Activities: w.Activities,
			Assessment: session.Assessment{
				Type:    session.AssessmentType(w.Assessment.Type),
				Details: w.Assessment.Details,
			},
		})
	}

	if err := plan.Validate(); err != nil {
		return nil, &agent.ValidationError{Role: Role, Message: "plan failed validation", Err: err}
	}
	return plan, nil
}

// Fallback returns a deterministic starter plan for a topic, used when no
// completion provider is configured. The shape mirrors what the planner
// produces for a brand-new learner.
func Fallback(topic string) *session.LearningPlan {
	if topic == "" {
		topic = "General Topic"
	}
	return &session.LearningPlan{
		Title:   fmt.Sprintf("%s in Four Weeks", topic),
		Summary: fmt.Sprintf("A four-week plan to learn %s.", topic),
		Weeks: []session.Week{
			{
				Number: 1, Topic: topic + " Basics",
				Goal:       fmt.Sprintf("Understand the key concepts of %s", topic),
				Activities: []string{"Reading", "Video", "Worked examples"},
				Assessment: session.Assessment{Type: session.AssessmentQuiz, Details: "Short quiz on the basics"},
			},
			{
				Number: 2, Topic: "Intermediate " + topic,
				Goal:       fmt.Sprintf("Practice and apply %s", topic),
				Activities: []string{"Exercises", "Small project"},
				Assessment: session.Assessment{Type: session.AssessmentExercise, Details: "Guided exercise set"},
			},
			{
				Number: 3, Topic: "Advanced " + topic,
				Goal:       fmt.Sprintf("Build a real-world example using %s", topic),
				Activities: []string{"Capstone project"},
				Assessment: session.Assessment{Type: session.AssessmentProject, Details: "Capstone project review"},
			},
			{
				Number: 4, Topic: fmt.Sprintf("Revision and Assessment for %s", topic),
				Goal:       "Consolidate and test knowledge",
				Activities: []string{"Review", "Practice quiz"},
				Assessment: session.Assessment{Type: session.AssessmentQuiz, Details: "Final week quiz"},
			},
		},
	}
}
