package progress

import (
	"sort"
	"time"
)

// Trend classifies the direction of a skill's latest score change.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendDeclining Trend = "declining"
	TrendStable    Trend = "stable"
)

// SkillRecord is the running mastery record for one skill within a session.
// Mutated only by Tracker.Ingest.
type SkillRecord struct {
	SkillID      string    `json:"skill_id"`
	Score        float64   `json:"score"`
	PrevScore    float64   `json:"prev_score"`
	Confidence   float64   `json:"confidence"`
	AttemptCount int       `json:"attempt_count"`
	LastSeenWeek int       `json:"last_seen_week"`
	Trend        Trend     `json:"trend"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// MistakeBankEntry marks a skill currently below the review threshold.
// It exists iff the latest score is under the threshold with enough
// confidence, and is consumed by the Tutor and Planner to bias content.
type MistakeBankEntry struct {
	SkillID string    `json:"skill_id"`
	Score   float64   `json:"score"`
	Week    int       `json:"week"`
	AddedAt time.Time `json:"added_at"`
}

// State is the skill-tracking slice of a learner's persisted document.
type State struct {
	// Skills maps skill id to its running record.
	Skills map[string]*SkillRecord `json:"skills"`

	// Bank is the mistake bank, keyed by skill id.
	Bank map[string]*MistakeBankEntry `json:"bank"`

	// Ingested records quiz-attempt ids already folded into Skills,
	// guarding against duplicate submissions.
	Ingested map[string]bool `json:"ingested_attempts"`
}

// NewState returns an empty skill-tracking state.
func NewState() *State {
	return &State{
		Skills:   make(map[string]*SkillRecord),
		Bank:     make(map[string]*MistakeBankEntry),
		Ingested: make(map[string]bool),
	}
}

// WeakSkills returns mistake-bank skill ids ordered weakest first,
// capped at limit (0 = no cap).
func (s *State) WeakSkills(limit int) []string {
	ids := make([]string, 0, len(s.Bank))
	for id := range s.Bank {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := s.Bank[ids[i]], s.Bank[ids[j]]
		if a.Score != b.Score {
			return a.Score < b.Score
		}
		return a.SkillID < b.SkillID
	})
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids
}

// BankContains reports whether a skill is in the mistake bank.
func (s *State) BankContains(skillID string) bool {
	_, ok := s.Bank[skillID]
	return ok
}

// BankForSkills reports whether any of the given skills is in the bank.
func (s *State) BankForSkills(skillIDs []string) bool {
	for _, id := range skillIDs {
		if s.BankContains(id) {
			return true
		}
	}
	return false
}
