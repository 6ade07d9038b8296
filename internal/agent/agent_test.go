package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/abhisek/coach/internal/llm"
)

func testPersona() *Persona {
	return &Persona{
		Role:        "tester",
		System:      "You teach {{.Topic}}.",
		User:        "Cover: {{join .Items \", \"}}",
		Schema:      &llm.Schema{Name: "tester-output", Definition: map[string]any{"type": "object"}},
		MaxTokens:   256,
		Temperature: 0.4,
	}
}

type testData struct {
	Topic string
	Items []string
}

func TestInvokeRendersTemplates(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{Content: json.RawMessage(`{"ok":true}`)})
	p := testPersona()

	got, err := Invoke(context.Background(), mock, p, testData{Topic: "fractions", Items: []string{"halves", "thirds"}})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if string(got) != `{"ok":true}` {
		t.Errorf("content = %s, want {\"ok\":true}", got)
	}

	req := mock.Calls[0]
	if req.System != "You teach fractions." {
		t.Errorf("system = %q", req.System)
	}
	if len(req.Messages) != 1 || req.Messages[0].Content != "Cover: halves, thirds" {
		t.Errorf("messages = %+v", req.Messages)
	}
	if req.Schema == nil || req.Schema.Name != "tester-output" {
		t.Errorf("schema not forwarded: %+v", req.Schema)
	}
	if req.MaxTokens != 256 || req.Temperature != 0.4 {
		t.Errorf("params not forwarded: max=%d temp=%v", req.MaxTokens, req.Temperature)
	}
}

func TestInvokeCorrectiveRetry(t *testing.T) {
	bad := &llm.ErrInvalidResponse{
		Content: json.RawMessage(`{"weeks": "four"}`),
		Err:     errors.New("schema validation failed"),
	}
	mock := llm.NewMockProvider(
		llm.MockResponse{Err: bad},
		llm.MockResponse{Content: json.RawMessage(`{"weeks":[]}`)},
	)

	got, err := Invoke(context.Background(), mock, testPersona(), testData{Topic: "x"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if string(got) != `{"weeks":[]}` {
		t.Errorf("content = %s", got)
	}
	if mock.CallCount() != 2 {
		t.Fatalf("calls = %d, want 2", mock.CallCount())
	}

	retry := mock.Calls[1]
	if len(retry.Messages) != 3 {
		t.Fatalf("retry messages = %d, want 3", len(retry.Messages))
	}
	if retry.Messages[1].Role != llm.RoleAssistant || retry.Messages[1].Content != `{"weeks": "four"}` {
		t.Errorf("invalid reply not echoed back: %+v", retry.Messages[1])
	}
	if retry.Messages[2].Role != llm.RoleUser || !strings.Contains(retry.Messages[2].Content, "JSON") {
		t.Errorf("corrective instruction missing: %+v", retry.Messages[2])
	}
}

func TestInvokeSchemaErrorAfterRetry(t *testing.T) {
	bad := &llm.ErrInvalidResponse{Content: json.RawMessage(`nope`), Err: errors.New("invalid JSON")}
	mock := llm.NewMockProvider(llm.MockResponse{Err: bad}, llm.MockResponse{Err: bad})

	_, err := Invoke(context.Background(), mock, testPersona(), testData{})
	var schemaErr *SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("got %T (%v), want *SchemaError", err, err)
	}
	if schemaErr.Role != "tester" || schemaErr.Attempts != 2 {
		t.Errorf("SchemaError = %+v", schemaErr)
	}
	if mock.CallCount() != 2 {
		t.Errorf("calls = %d, want 2", mock.CallCount())
	}
}

func TestInvokeTransportErrorNoRetry(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{Err: &llm.ErrProviderUnavailable{}})

	_, err := Invoke(context.Background(), mock, testPersona(), testData{})
	if err == nil {
		t.Fatal("want error")
	}
	var schemaErr *SchemaError
	if errors.As(err, &schemaErr) {
		t.Errorf("transport error misclassified as SchemaError")
	}
	if mock.CallCount() != 1 {
		t.Errorf("calls = %d, want 1 (no corrective retry for transport errors)", mock.CallCount())
	}
}

func TestInvokeRenderError(t *testing.T) {
	p := &Persona{Role: "broken", System: "ok", User: "{{.Missing.Field}}"}
	mock := llm.NewMockProvider()

	_, err := Invoke(context.Background(), mock, p, testData{})
	if err == nil {
		t.Fatal("want render error")
	}
	if mock.CallCount() != 0 {
		t.Errorf("provider called despite render failure")
	}
}

func TestRegistryOverrides(t *testing.T) {
	reg, err := NewRegistry(testPersona())
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	dir := t.TempDir()
	override := `{"user": "Override for {{.Topic}}", "max_tokens": 512}`
	if err := os.WriteFile(filepath.Join(dir, "tester.json"), []byte(override), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := reg.LoadOverrides(dir); err != nil {
		t.Fatalf("LoadOverrides: %v", err)
	}

	p, err := reg.Get("tester")
	if err != nil {
		t.Fatal(err)
	}
	_, user, err := p.Render(testData{Topic: "sql"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if user != "Override for sql" {
		t.Errorf("user = %q", user)
	}
	if p.System != "You teach {{.Topic}}." {
		t.Errorf("system should keep default, got %q", p.System)
	}
	if p.MaxTokens != 512 {
		t.Errorf("max tokens = %d, want 512", p.MaxTokens)
	}
	if p.Schema == nil || p.Schema.Name != "tester-output" {
		t.Errorf("schema must survive overrides: %+v", p.Schema)
	}
}

func TestRegistryRejectsBrokenOverride(t *testing.T) {
	reg, err := NewRegistry(testPersona())
	if err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	files := map[string]string{
		"tester.json":  `{"user": "{{ .Unclosed"}`,
		"unknown.json": `{"user": "who am i"}`,
		"garbage.json": `not json`,
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	if err := reg.LoadOverrides(dir); err != nil {
		t.Fatalf("LoadOverrides should skip bad files, got %v", err)
	}
	p, err := reg.Get("tester")
	if err != nil {
		t.Fatal(err)
	}
	if p.User != "Cover: {{join .Items \", \"}}" {
		t.Errorf("broken override replaced persona: %q", p.User)
	}
}

func TestRegistryUnknownRole(t *testing.T) {
	reg, err := NewRegistry(testPersona())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := reg.Get("planner"); err == nil {
		t.Error("want error for unregistered role")
	}
}

func TestRegistryDuplicateRole(t *testing.T) {
	if _, err := NewRegistry(testPersona(), testPersona()); err == nil {
		t.Error("want error for duplicate role")
	}
}

func TestIsInvalidOutput(t *testing.T) {
	schemaErr := &SchemaError{Role: "tester", Attempts: 2, Err: errors.New("bad")}
	validationErr := &ValidationError{Role: "tester", Message: "empty overview"}

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"schema error", schemaErr, true},
		{"wrapped schema error", fmt.Errorf("turn failed: %w", schemaErr), true},
		{"validation error", validationErr, true},
		{"wrapped validation error", fmt.Errorf("turn failed: %w", validationErr), true},
		{"transport error", &llm.ErrProviderUnavailable{}, false},
		{"plain error", errors.New("boom"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsInvalidOutput(tt.err); got != tt.want {
				t.Errorf("IsInvalidOutput(%v) = %t, want %t", tt.err, got, tt.want)
			}
		})
	}
}

func TestRegistryWatchReloads(t *testing.T) {
	reg, err := NewRegistry(testPersona())
	if err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	if err := reg.Watch(dir); err != nil {
		t.Skipf("fsnotify unavailable: %v", err)
	}
	defer reg.Close()

	body := `{"user": "watched"}`
	if err := os.WriteFile(filepath.Join(dir, "tester.json"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		p, err := reg.Get("tester")
		if err != nil {
			t.Fatal(err)
		}
		if p.User == "watched" {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("override was not applied by the watcher")
}
