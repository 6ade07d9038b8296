// Package assessor generates diagnostic and end-of-week quizzes through
// the assessor persona. Grading is deterministic and lives in the quiz
// package; this package only writes the questions.
package assessor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/abhisek/coach/internal/agent"
	"github.com/abhisek/coach/internal/llm"
	"github.com/abhisek/coach/internal/memory"
	"github.com/abhisek/coach/internal/quiz"
)

// Role is the assessor's registry key and LLM purpose tag.
const Role = "assessor"

// DefaultItems is the quiz length used when the caller does not choose one.
const DefaultItems = 5

const systemPrompt = `You are an assessor for a personal learning coach. You write short quizzes that reveal what a learner actually knows.

Rules:
- Write exactly the requested number of items, each testing one atomic skill.
- Tag every item with a short lowercase skill_id slug (e.g. "loops", "fractions-add"). Reuse the same slug for items testing the same skill, and reuse skill ids listed in the request when they fit.
- Diagnostic quizzes probe prerequisites and spread across distinct skills, easy to moderately hard. Week quizzes test only this week's material.
- Use "multiple_choice" for recognition and concepts: exactly 4 options, one correct, distractors reflecting common mistakes. Set expected to the exact text of the correct option and leave rubric empty.
- Use "short_answer" for recall and computation: set expected to the canonical answer and rubric to one line saying what a correct answer must contain. Leave options empty.
- Do not repeat any question from the "already asked" list.
- Plain ASCII text only.`

const userTemplate = `Quiz kind: {{.Kind}}
Items: {{.Items}}
Topic: {{if .WeekTopic}}{{.WeekTopic}}{{else}}{{.Topic}}{{end}}
{{- if .WeekGoal}}
Week goal: {{.WeekGoal}}
{{- end}}
{{- if .WeakSkills}}
Known weak skills: {{join .WeakSkills ", "}}
{{- end}}
{{- if .Standards}}

Curriculum references:
{{- range .Standards}}
- {{.Title}}: {{.Snippet}}
{{- end}}
{{- end}}

Already asked this session:
{{- if .AvoidQuestions}}
{{- range .AvoidQuestions}}
- {{.}}
{{- end}}
{{- else}}
None
{{- end}}`

// Input carries the fields the assessor prompt is filled with.
type Input struct {
	memory.Slice

	Kind  quiz.Kind
	Items int

	// AvoidQuestions lists question texts already asked this session so a
	// regenerated quiz does not repeat them.
	AvoidQuestions []string
}

// DefaultPersona returns the built-in assessor persona.
func DefaultPersona() *agent.Persona {
	return &agent.Persona{
		Role:        Role,
		Description: "Writes diagnostic and end-of-week quizzes with per-item skill tags",
		System:      systemPrompt,
		User:        userTemplate,
		Schema:      QuizSchema,
		MaxTokens:   2048,
		Temperature: 0.8,
	}
}

// quizOutput is the raw LLM response before conversion.
type quizOutput struct {
	Kind  string       `json:"kind"`
	Items []itemOutput `json:"items"`
}

type itemOutput struct {
	Question string   `json:"question"`
	SkillID  string   `json:"skill_id"`
	Format   string   `json:"format"`
	Options  []string `json:"options"`
	Expected string   `json:"expected"`
	Rubric   string   `json:"rubric"`
}

// Generate produces a validated quiz. Kind and week come from the input,
// not the model echo, so the orchestrator's request is authoritative.
func Generate(ctx context.Context, provider llm.Provider, p *agent.Persona, in Input) (*quiz.Quiz, error) {
	if in.Items <= 0 {
		in.Items = DefaultItems
	}

	content, err := agent.Invoke(ctx, provider, p, in)
	if err != nil {
		return nil, err
	}

	var raw quizOutput
	if err := json.Unmarshal(content, &raw); err != nil {
		return nil, &agent.ValidationError{Role: Role, Message: "undecodable quiz JSON", Err: err}
	}

	topic := in.WeekTopic
	if topic == "" {
		topic = in.Topic
	}
	q := &quiz.Quiz{
		ID:    uuid.NewString(),
		Kind:  in.Kind,
		Week:  in.Week,
		Topic: topic,
		Items: make([]quiz.Item, 0, len(raw.Items)),
	}
	for _, it := range raw.Items {
		q.Items = append(q.Items, quiz.Item{
			Question: it.Question,
			SkillID:  it.SkillID,
			Format:   quiz.Format(it.Format),
			Options:  it.Options,
			Expected: it.Expected,
			Rubric:   it.Rubric,
		})
	}

	if err := validateQuiz(q, in.AvoidQuestions); err != nil {
		return nil, err
	}
	return q, nil
}

// validateQuiz checks the structural contract every generated quiz must
// meet before it can be stored as the pending assessment.
func validateQuiz(q *quiz.Quiz, avoid []string) error {
	if len(q.Items) == 0 {
		return &agent.ValidationError{Role: Role, Message: "quiz has no items"}
	}

	asked := make(map[string]bool, len(avoid))
	for _, text := range avoid {
		asked[normalizeQuestion(text)] = true
	}

	for i, it := range q.Items {
		n := i + 1
		if strings.TrimSpace(it.Question) == "" {
			return &agent.ValidationError{Role: Role, Message: fmt.Sprintf("item %d has an empty question", n)}
		}
		if strings.TrimSpace(it.SkillID) == "" {
			return &agent.ValidationError{Role: Role, Message: fmt.Sprintf("item %d has no skill_id", n)}
		}
		if strings.TrimSpace(it.Expected) == "" {
			return &agent.ValidationError{Role: Role, Message: fmt.Sprintf("item %d has no expected answer", n)}
		}

		switch it.Format {
		case quiz.FormatMultipleChoice:
			if len(it.Options) < 2 {
				return &agent.ValidationError{Role: Role, Message: fmt.Sprintf("item %d has %d options; multiple choice needs at least 2", n, len(it.Options))}
			}
			if !containsFold(it.Options, it.Expected) {
				return &agent.ValidationError{Role: Role, Message: fmt.Sprintf("item %d expected answer is not among its options", n)}
			}
		case quiz.FormatShortAnswer:
			// expected alone is gradable; rubric is optional refinement
		default:
			return &agent.ValidationError{Role: Role, Message: fmt.Sprintf("item %d has unknown format %q", n, it.Format)}
		}

		key := normalizeQuestion(it.Question)
		if asked[key] {
			return &agent.ValidationError{Role: Role, Message: fmt.Sprintf("item %d repeats an already-asked question", n)}
		}
		asked[key] = true
	}
	return nil
}

func containsFold(options []string, want string) bool {
	want = strings.TrimSpace(want)
	for _, o := range options {
		if strings.EqualFold(strings.TrimSpace(o), want) {
			return true
		}
	}
	return false
}

func normalizeQuestion(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}
