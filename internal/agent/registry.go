package agent

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// PromptsDirEnv names the directory holding persona overrides. Each file
// is <role>.json and replaces the prompts of an already-registered role.
const PromptsDirEnv = "COACH_PROMPTS_DIR"

// OverridesDirFromEnv returns the configured override directory, or ""
// when prompt overrides are not in use.
func OverridesDirFromEnv() string {
	return os.Getenv(PromptsDirEnv)
}

// Registry holds the active personas by role. Built-in personas are
// registered at startup; an override directory can replace their prompt
// text at runtime without a restart.
type Registry struct {
	mu       sync.RWMutex
	personas map[string]*Persona

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewRegistry compiles and registers the given personas.
func NewRegistry(defaults ...*Persona) (*Registry, error) {
	r := &Registry{personas: make(map[string]*Persona, len(defaults))}
	for _, p := range defaults {
		if p.Role == "" {
			return nil, fmt.Errorf("persona with empty role")
		}
		if _, dup := r.personas[p.Role]; dup {
			return nil, fmt.Errorf("duplicate persona role %q", p.Role)
		}
		if err := p.compile(); err != nil {
			return nil, err
		}
		r.personas[p.Role] = p
	}
	return r, nil
}

// Get returns the active persona for a role.
func (r *Registry) Get(role string) (*Persona, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.personas[role]
	if !ok {
		return nil, fmt.Errorf("unknown persona role %q", role)
	}
	return p, nil
}

// Roles lists the registered roles in sorted order.
func (r *Registry) Roles() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	roles := make([]string, 0, len(r.personas))
	for role := range r.personas {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	return roles
}

// personaOverride is the on-disk override shape. Zero-valued fields keep
// the registered persona's value; the schema is never overridable.
type personaOverride struct {
	System      string  `json:"system"`
	User        string  `json:"user"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

// LoadOverrides applies every <role>.json in dir. Files naming unknown
// roles are skipped with a warning; a broken file never unseats the
// persona already in place.
func (r *Registry) LoadOverrides(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read prompt overrides: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		if err := r.applyFile(filepath.Join(dir, e.Name())); err != nil {
			slog.Warn("prompt override rejected", "file", e.Name(), "error", err)
		}
	}
	return nil
}

func (r *Registry) applyFile(path string) error {
	role := strings.TrimSuffix(filepath.Base(path), ".json")

	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var ov personaOverride
	if err := json.Unmarshal(raw, &ov); err != nil {
		return fmt.Errorf("parse override: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	base, ok := r.personas[role]
	if !ok {
		return fmt.Errorf("no registered persona for role %q", role)
	}

	next := &Persona{
		Role:        base.Role,
		Description: base.Description,
		System:      base.System,
		User:        base.User,
		Schema:      base.Schema,
		MaxTokens:   base.MaxTokens,
		Temperature: base.Temperature,
	}
	if ov.System != "" {
		next.System = ov.System
	}
	if ov.User != "" {
		next.User = ov.User
	}
	if ov.MaxTokens > 0 {
		next.MaxTokens = ov.MaxTokens
	}
	if ov.Temperature > 0 {
		next.Temperature = ov.Temperature
	}
	if err := next.compile(); err != nil {
		return err
	}

	r.personas[role] = next
	slog.Info("prompt override applied", "role", role)
	return nil
}

// Watch reloads overrides as files in dir change, until Close is called.
// Reload failures are logged and the previous persona keeps serving.
func (r *Registry) Watch(dir string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch prompt overrides: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	r.watcher = watcher
	r.done = make(chan struct{})

	go func() {
		for {
			select {
			case <-r.done:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
					continue
				}
				if !strings.HasSuffix(event.Name, ".json") {
					continue
				}
				if err := r.applyFile(event.Name); err != nil {
					slog.Warn("prompt override rejected", "file", filepath.Base(event.Name), "error", err)
				}
			case <-watcher.Errors:
				// Keep watching; a missed event only delays a reload.
			}
		}
	}()

	return nil
}

// Close stops the override watcher, if one is running.
func (r *Registry) Close() {
	if r.done != nil {
		close(r.done)
		r.done = nil
	}
	if r.watcher != nil {
		r.watcher.Close()
		r.watcher = nil
	}
}
