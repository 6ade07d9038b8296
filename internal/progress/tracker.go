package progress

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/abhisek/coach/internal/quiz"
)

// ErrDuplicateAttempt signals that an attempt id was already ingested.
// The caller treats the ingest as a no-op; nothing is double-counted.
type ErrDuplicateAttempt struct {
	AttemptID string
}

func (e *ErrDuplicateAttempt) Error() string {
	return fmt.Sprintf("attempt %s already ingested", e.AttemptID)
}

// SkillChange describes one skill's movement from a single ingest.
type SkillChange struct {
	SkillID string  `json:"skill_id"`
	Old     float64 `json:"old"`
	New     float64 `json:"new"`
	Trend   Trend   `json:"trend"`
	InBank  bool    `json:"in_bank"`
}

// Report is the deterministic progress summary produced by an ingest.
// It is the Progress role's structured output: unlike the generative
// agents it is computed locally, never by the completion provider.
type Report struct {
	AttemptID string        `json:"attempt_id"`
	Week      int           `json:"week"`
	Score     float64       `json:"score"`
	Passed    bool          `json:"passed"`
	Changes   []SkillChange `json:"changes"`
	WeakAreas []string      `json:"weak_areas"`
	Summary   string        `json:"summary"`
}

// Tracker applies graded attempts to the skill state.
type Tracker struct {
	cfg Config
}

// NewTracker creates a Tracker with the given tuning.
func NewTracker(cfg Config) *Tracker {
	return &Tracker{cfg: cfg}
}

// Ingest folds a graded attempt into the skill state: EWMA score update,
// attempt count, confidence, trend, and mistake-bank membership per skill.
// Re-ingesting an attempt id returns ErrDuplicateAttempt and mutates nothing.
func (t *Tracker) Ingest(state *State, attempt *quiz.Attempt, now time.Time) (*Report, error) {
	if state.Ingested[attempt.ID] {
		return nil, &ErrDuplicateAttempt{AttemptID: attempt.ID}
	}

	skillScores := attempt.SkillScores()
	ids := lo.Keys(skillScores)
	sort.Strings(ids)

	report := &Report{
		AttemptID: attempt.ID,
		Week:      attempt.Week,
		Score:     attempt.Score,
		Passed:    attempt.Passed(t.cfg.PassThreshold),
		Changes:   make([]SkillChange, 0, len(ids)),
	}

	for _, id := range ids {
		observed := skillScores[id]
		rec, exists := state.Skills[id]
		if !exists {
			rec = &SkillRecord{SkillID: id}
			state.Skills[id] = rec
		}

		old := rec.Score
		if exists {
			rec.Score = t.cfg.Alpha*observed + (1-t.cfg.Alpha)*old
		} else {
			// First observation stands on its own rather than blending
			// with a phantom prior of zero.
			rec.Score = observed
		}
		rec.PrevScore = old
		rec.AttemptCount++
		rec.Confidence = math.Min(1, float64(rec.AttemptCount)/3)
		rec.LastSeenWeek = attempt.Week
		rec.Trend = t.trend(exists, old, rec.Score)
		rec.UpdatedAt = now

		inBank := t.updateBank(state, rec, attempt.Week, now)
		report.Changes = append(report.Changes, SkillChange{
			SkillID: id,
			Old:     old,
			New:     rec.Score,
			Trend:   rec.Trend,
			InBank:  inBank,
		})
	}

	state.Ingested[attempt.ID] = true
	report.WeakAreas = state.WeakSkills(0)
	report.Summary = t.summarize(report)
	return report, nil
}

func (t *Tracker) trend(hadPrior bool, old, new float64) Trend {
	if !hadPrior {
		return TrendStable
	}
	switch delta := new - old; {
	case delta > t.cfg.TrendDeadBand:
		return TrendImproving
	case delta < -t.cfg.TrendDeadBand:
		return TrendDeclining
	default:
		return TrendStable
	}
}

// updateBank maintains the invariant: an entry exists iff the latest score
// is below ReviewThreshold with confidence at or above MinConfidence.
func (t *Tracker) updateBank(state *State, rec *SkillRecord, week int, now time.Time) bool {
	if rec.Score < t.cfg.ReviewThreshold && rec.Confidence >= t.cfg.MinConfidence {
		entry, ok := state.Bank[rec.SkillID]
		if !ok {
			entry = &MistakeBankEntry{SkillID: rec.SkillID, AddedAt: now}
			state.Bank[rec.SkillID] = entry
		}
		entry.Score = rec.Score
		entry.Week = week
		return true
	}
	delete(state.Bank, rec.SkillID)
	return false
}

func (t *Tracker) summarize(r *Report) string {
	improving := lo.CountBy(r.Changes, func(c SkillChange) bool { return c.Trend == TrendImproving })
	declining := lo.CountBy(r.Changes, func(c SkillChange) bool { return c.Trend == TrendDeclining })

	var b strings.Builder
	fmt.Fprintf(&b, "Quiz score %.0f%%.", r.Score*100)
	if r.Passed {
		b.WriteString(" Passed.")
	}
	if improving > 0 {
		fmt.Fprintf(&b, " %d skill(s) improving.", improving)
	}
	if declining > 0 {
		fmt.Fprintf(&b, " %d skill(s) declining.", declining)
	}
	if len(r.WeakAreas) > 0 {
		fmt.Fprintf(&b, " Needs review: %s.", strings.Join(r.WeakAreas, ", "))
	} else {
		b.WriteString(" No skills need review.")
	}
	return b.String()
}
