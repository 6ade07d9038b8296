package planner

import "github.com/abhisek/coach/internal/llm"

// PlanSchema defines the JSON schema for planner responses. Week numbers
// are deliberately absent: they are assigned from array order, so a
// schema-valid reply can never violate week contiguity.
var PlanSchema = &llm.Schema{
	Name:        "learning-plan",
	Description: "A multi-week learning plan with ordered weeks",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"title": map[string]any{
				"type":        "string",
				"description": "Short plan title, e.g. \"Python in Four Weeks\"",
			},
			"summary": map[string]any{
				"type":        "string",
				"description": "One or two sentences describing the arc of the plan",
			},
			"weeks": map[string]any{
				"type":        "array",
				"description": "Ordered weeks, fundamentals first. Week numbers are implicit in the order.",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"topic": map[string]any{
							"type":        "string",
							"description": "The single focused topic this week covers",
						},
						"goal": map[string]any{
							"type":        "string",
							"description": "One concrete outcome the learner should reach by the end of the week",
						},
						"activities": map[string]any{
							"type": "array",
							"items": map[string]any{
								"type": "string",
							},
							"description": "2-4 activities a self-directed learner can do alone",
						},
						"assessment": map[string]any{
							"type": "object",
							"properties": map[string]any{
								"type": map[string]any{
									"type":        "string",
									"enum":        []any{"quiz", "project", "exercise"},
									"description": "How the week is assessed",
								},
								"details": map[string]any{
									"type":        "string",
									"description": "One line describing the assessment",
								},
							},
							"required":             []any{"type", "details"},
							"additionalProperties": false,
						},
					},
					"required":             []any{"topic", "goal", "activities", "assessment"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []any{"title", "summary", "weeks"},
		"additionalProperties": false,
	},
}
