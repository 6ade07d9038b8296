package session

import "time"

// FatalFailureCap is the number of consecutive schema-validation failures
// for the same pending request after which the session is marked fatal
// and stops invoking agents.
const FatalFailureCap = 3

// Session identifies one learner and their position in the curriculum.
// Owned exclusively by the orchestrator; persisted in the memory store;
// created on first interaction and archived rather than deleted.
type Session struct {
	ID           string    `json:"id"`
	Topic        string    `json:"topic"`
	CurrentWeek  int       `json:"current_week"`
	Phase        Phase     `json:"current_phase"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
	Archived     bool      `json:"archived,omitempty"`

	// FailStreak counts consecutive schema-validation failures for the
	// pending request. Reset on any successful agent invocation.
	FailStreak int `json:"fail_streak,omitempty"`

	// FatalError is set when FailStreak reaches FatalFailureCap. A fatal
	// session answers every turn with this message until an operator
	// intervenes; the phase it failed in is preserved.
	FatalError string `json:"fatal_error,omitempty"`

	// ShortSummary is a rolling digest of recent conversation, rebuilt
	// each turn and fed to agent prompts as cheap context.
	ShortSummary string `json:"short_summary,omitempty"`
}

// Fatal reports whether the session requires operator intervention.
func (s *Session) Fatal() bool {
	return s.FatalError != ""
}

// RecordFailure bumps the failure streak and trips the fatal error once
// the cap is reached. Returns true if the session just became fatal.
func (s *Session) RecordFailure(reason string) bool {
	s.FailStreak++
	if s.FailStreak >= FatalFailureCap && s.FatalError == "" {
		s.FatalError = reason
		return true
	}
	return false
}

// ResetFailures clears the failure streak after a successful invocation.
func (s *Session) ResetFailures() {
	s.FailStreak = 0
}

// Touch updates the activity timestamp.
func (s *Session) Touch(now time.Time) {
	s.LastActiveAt = now
}
