// Package tutor generates lessons and plain conversational answers
// through the tutor personas.
package tutor

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/abhisek/coach/internal/agent"
	"github.com/abhisek/coach/internal/llm"
	"github.com/abhisek/coach/internal/memory"
)

const (
	// Role is the lesson persona's registry key and LLM purpose tag.
	Role = "tutor"

	// AnswerRole is the plain-answer persona's registry key. It is a
	// separate persona so its prompts can be overridden independently.
	AnswerRole = "tutor-answer"
)

const lessonSystemPrompt = `You are an expert, encouraging tutor for a self-directed adult learner. You create short, self-contained lessons the learner can follow without external resources.

Rules:
- Explain the concept clearly in the overview: key ideas, rules, common pitfalls. 4-8 sentences.
- Show one complete worked example with numbered steps. Pick a representative problem and show every step.
- Create 2-4 practice problems solvable using only the overview and worked example, easiest first.
- When weak skills are listed, address them directly: the lesson exists to fix them.
- Use plain ASCII text for all content. No LaTeX, no Unicode symbols.`

const lessonUserTemplate = `Lesson topic: {{if .WeekTopic}}{{.WeekTopic}}{{else}}{{.Topic}}{{end}}
{{- if .WeekGoal}}
Week goal: {{.WeekGoal}}
{{- end}}
{{- if .PlanTitle}}
Week {{.Week}} of the plan "{{.PlanTitle}}".
{{- end}}
{{- if .FocusSkills}}

Target these weak skills:
{{- range .FocusSkills}}
- {{.}}
{{- end}}
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
{{- if .RecentTurns}}

Recent conversation:
{{- range .RecentTurns}}
{{.}}
{{- end}}
{{- end}}`

const answerSystemPrompt = `You are a friendly learning coach answering a quick question from your learner. Answer directly and concretely in a short plain-text paragraph. If the question is unrelated to learning, answer briefly and steer back to the current topic.`

const answerUserTemplate = `{{if .WeekTopic}}Current week topic: {{.WeekTopic}}
{{end}}{{if .ShortSummary}}Conversation so far: {{.ShortSummary}}
{{end}}{{if .RecentTurns}}Recent conversation:
{{range .RecentTurns}}{{.}}
{{end}}{{end}}Question: {{.Question}}`

// Lesson is the tutor's structured lesson output.
type Lesson struct {
	Topic            string   `json:"topic"`
	Overview         string   `json:"overview"`
	WorkedExample    string   `json:"worked_example"`
	PracticeProblems []string `json:"practice_problems"`
}

// Input carries the fields the tutor prompts are filled with.
type Input struct {
	memory.Slice

	// FocusSkills targets a review lesson at mistake-bank skills.
	// Empty for a regular week lesson.
	FocusSkills []string

	// Question is the learner's utterance on plain-answer turns.
	Question string
}

// DefaultPersona returns the built-in lesson persona.
func DefaultPersona() *agent.Persona {
	return &agent.Persona{
		Role:        Role,
		Description: "Teaches the current week's topic with worked examples and practice problems",
		System:      lessonSystemPrompt,
		User:        lessonUserTemplate,
		Schema:      LessonSchema,
		MaxTokens:   3072,
		Temperature: 0.7,
	}
}

// DefaultAnswerPersona returns the built-in plain-answer persona.
func DefaultAnswerPersona() *agent.Persona {
	return &agent.Persona{
		Role:        AnswerRole,
		Description: "Answers free-form learner questions without changing session state",
		System:      answerSystemPrompt,
		User:        answerUserTemplate,
		Schema:      AnswerSchema,
		MaxTokens:   1024,
		Temperature: 0.6,
	}
}

// GenerateLesson produces a validated lesson for the input.
func GenerateLesson(ctx context.Context, provider llm.Provider, p *agent.Persona, in Input) (*Lesson, error) {
	content, err := agent.Invoke(ctx, provider, p, in)
	if err != nil {
		return nil, err
	}

	var lesson Lesson
	if err := json.Unmarshal(content, &lesson); err != nil {
		return nil, &agent.ValidationError{Role: Role, Message: "undecodable lesson JSON", Err: err}
	}

	if strings.TrimSpace(lesson.Overview) == "" {
		return nil, &agent.ValidationError{Role: Role, Message: "lesson overview is empty"}
	}
	if strings.TrimSpace(lesson.WorkedExample) == "" {
		return nil, &agent.ValidationError{Role: Role, Message: "lesson worked example is empty"}
	}
	if len(lesson.PracticeProblems) == 0 {
		return nil, &agent.ValidationError{Role: Role, Message: "lesson has no practice problems"}
	}
	if strings.TrimSpace(lesson.Topic) == "" {
		if in.WeekTopic != "" {
			lesson.Topic = in.WeekTopic
		} else {
			lesson.Topic = in.Topic
		}
	}
	return &lesson, nil
}

// Answer produces a plain conversational answer to the learner's question.
func Answer(ctx context.Context, provider llm.Provider, p *agent.Persona, in Input) (string, error) {
	content, err := agent.Invoke(ctx, provider, p, in)
	if err != nil {
		return "", err
	}

	var out struct {
		Answer string `json:"answer"`
	}
	if err := json.Unmarshal(content, &out); err != nil {
		return "", &agent.ValidationError{Role: AnswerRole, Message: "undecodable answer JSON", Err: err}
	}
	if strings.TrimSpace(out.Answer) == "" {
		return "", &agent.ValidationError{Role: AnswerRole, Message: "answer is empty"}
	}
	return out.Answer, nil
}
