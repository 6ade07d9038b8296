package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/abhisek/coach/internal/llm"
)

// SchemaError indicates the model could not produce schema-valid output
// even after the corrective retry. The orchestrator counts these toward
// the session's consecutive-failure cap.
type SchemaError struct {
	Role     string
	Attempts int
	Content  json.RawMessage
	Err      error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s agent returned invalid output after %d attempts: %v", e.Role, e.Attempts, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// correctiveInstruction is the second-attempt user message. The model is
// shown its own invalid reply first, so the instruction can stay short.
const correctiveInstruction = "Your previous reply was not valid for the required JSON schema. " +
	"Respond again with ONLY a single valid JSON object matching the schema. No prose, no markdown fences."

// Invoke renders the persona's prompts with data, calls the provider, and
// returns the schema-validated JSON content. A reply that fails schema
// validation earns exactly one corrective round-trip that includes the
// invalid reply; a second failure returns *SchemaError. Transport errors
// pass through wrapped (the provider stack already retries those).
func Invoke(ctx context.Context, provider llm.Provider, p *Persona, data any) (json.RawMessage, error) {
	ctx = llm.WithPurpose(ctx, p.Role)

	system, user, err := p.Render(data)
	if err != nil {
		return nil, err
	}

	req := llm.Request{
		System: system,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: user},
		},
		Schema:      p.Schema,
		MaxTokens:   p.MaxTokens,
		Temperature: p.Temperature,
	}

	resp, err := provider.Generate(ctx, req)
	if err == nil {
		return resp.Content, nil
	}

	var invalid *llm.ErrInvalidResponse
	if !errors.As(err, &invalid) {
		return nil, fmt.Errorf("%s generation: %w", p.Role, err)
	}

	retry := req
	retry.Messages = make([]llm.Message, 0, len(req.Messages)+2)
	retry.Messages = append(retry.Messages, req.Messages...)
	if len(invalid.Content) > 0 {
		retry.Messages = append(retry.Messages, llm.Message{Role: llm.RoleAssistant, Content: string(invalid.Content)})
	}
	retry.Messages = append(retry.Messages, llm.Message{Role: llm.RoleUser, Content: correctiveInstruction})

	resp, err = provider.Generate(ctx, retry)
	if err == nil {
		return resp.Content, nil
	}
	if errors.As(err, &invalid) {
		return nil, &SchemaError{Role: p.Role, Attempts: 2, Content: invalid.Content, Err: err}
	}
	return nil, fmt.Errorf("%s corrective retry: %w", p.Role, err)
}
