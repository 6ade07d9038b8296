package tutor

import "github.com/abhisek/coach/internal/llm"

// LessonSchema defines the JSON schema for tutor lesson responses.
var LessonSchema = &llm.Schema{
	Name:        "lesson",
	Description: "A self-contained lesson with a worked example and practice problems",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"topic": map[string]any{
				"type":        "string",
				"description": "The topic the lesson covers",
			},
			"overview": map[string]any{
				"type":        "string",
				"description": "Clear explanation of the concept: key ideas, rules, common pitfalls",
			},
			"worked_example": map[string]any{
				"type":        "string",
				"description": "One complete example worked step by step, plain ASCII",
			},
			"practice_problems": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "string",
				},
				"description": "2-4 practice problems solvable using only the overview and worked example, easiest first",
			},
		},
		"required":             []any{"topic", "overview", "worked_example", "practice_problems"},
		"additionalProperties": false,
	},
}

// AnswerSchema defines the JSON schema for plain conversational answers.
var AnswerSchema = &llm.Schema{
	Name:        "plain-answer",
	Description: "A direct conversational answer to the learner's question",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"answer": map[string]any{
				"type":        "string",
				"description": "The answer as a short plain-text paragraph",
			},
		},
		"required":             []any{"answer"},
		"additionalProperties": false,
	},
}
