package assessor

import "github.com/abhisek/coach/internal/llm"

// QuizSchema defines the JSON schema for assessor quiz responses.
var QuizSchema = &llm.Schema{
	Name:        "quiz",
	Description: "A short quiz with per-item skill tags and expected answers",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"kind": map[string]any{
				"type":        "string",
				"enum":        []any{"diagnostic", "week"},
				"description": "diagnostic probes prior knowledge before planning; week checks this week's material",
			},
			"items": map[string]any{
				"type":        "array",
				"description": "Quiz items in presentation order",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"question": map[string]any{
							"type":        "string",
							"description": "Self-contained question text, plain ASCII",
						},
						"skill_id": map[string]any{
							"type":        "string",
							"description": "Short lowercase slug for the atomic skill tested, e.g. \"fractions-add\"",
						},
						"format": map[string]any{
							"type":        "string",
							"enum":        []any{"multiple_choice", "short_answer"},
							"description": "How the learner answers",
						},
						"options": map[string]any{
							"type": "array",
							"items": map[string]any{
								"type": "string",
							},
							"description": "Exactly 4 options for multiple_choice, one correct. Empty array for short_answer.",
						},
						"expected": map[string]any{
							"type":        "string",
							"description": "The correct answer. For multiple_choice: the exact text of the correct option.",
						},
						"rubric": map[string]any{
							"type":        "string",
							"description": "For short_answer: one line saying what a correct answer must contain. Empty for multiple_choice.",
						},
					},
					"required":             []any{"question", "skill_id", "format", "options", "expected", "rubric"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []any{"kind", "items"},
		"additionalProperties": false,
	},
}
