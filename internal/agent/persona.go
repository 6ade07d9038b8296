// Package agent provides the uniform invocation pipeline the orchestrator
// uses to talk to its role agents (planner, tutor, assessor). Personas are
// data: prompt templates, a response schema and generation parameters. The
// pipeline fills the templates, calls the provider, and gives the model one
// corrective round-trip when its reply fails schema validation.
package agent

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/abhisek/coach/internal/llm"
)

// Persona describes one role agent. The zero value is not usable; register
// personas through a Registry, which compiles the templates.
type Persona struct {
	// Role is the persona's identity ("planner", "tutor", "assessor").
	// It doubles as the LLM purpose tag and the override file basename.
	Role string

	// Description says what the persona is for, shown by `coach llm`
	// style introspection surfaces.
	Description string

	// System and User are text/template sources. User is filled with the
	// per-invocation request data; System usually has no placeholders but
	// may reference stable fields.
	System string
	User   string

	// Schema, when set, constrains and validates the model's reply.
	Schema *llm.Schema

	MaxTokens   int
	Temperature float64

	sysTmpl  *template.Template
	userTmpl *template.Template
}

var tmplFuncs = template.FuncMap{
	"join": strings.Join,
}

// compile parses both templates. Called by the registry on registration
// and on every override reload, so a broken override never replaces a
// working persona.
func (p *Persona) compile() error {
	sys, err := template.New(p.Role + ".system").Funcs(tmplFuncs).Parse(p.System)
	if err != nil {
		return fmt.Errorf("parse %s system template: %w", p.Role, err)
	}
	user, err := template.New(p.Role + ".user").Funcs(tmplFuncs).Parse(p.User)
	if err != nil {
		return fmt.Errorf("parse %s user template: %w", p.Role, err)
	}
	p.sysTmpl, p.userTmpl = sys, user
	return nil
}

// Render fills both prompts with the request data.
func (p *Persona) Render(data any) (system, user string, err error) {
	if p.sysTmpl == nil || p.userTmpl == nil {
		if err := p.compile(); err != nil {
			return "", "", err
		}
	}
	var sysBuf, userBuf strings.Builder
	if err := p.sysTmpl.Execute(&sysBuf, data); err != nil {
		return "", "", fmt.Errorf("render %s system prompt: %w", p.Role, err)
	}
	if err := p.userTmpl.Execute(&userBuf, data); err != nil {
		return "", "", fmt.Errorf("render %s user prompt: %w", p.Role, err)
	}
	return sysBuf.String(), userBuf.String(), nil
}
