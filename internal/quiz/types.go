package quiz

import (
	"sort"
	"time"
)

// Kind distinguishes the two assessment flavors the coach issues.
type Kind string

const (
	// KindDiagnostic is the onboarding assessment used to seed the plan.
	KindDiagnostic Kind = "diagnostic"
	// KindWeek is the end-of-week quiz gating advancement.
	KindWeek Kind = "week"
)

// Format is the answer format of a single quiz item.
type Format string

const (
	FormatMultipleChoice Format = "multiple_choice"
	FormatShortAnswer    Format = "short_answer"
)

// Item is one question in a pending quiz.
type Item struct {
	Question string   `json:"question"`
	SkillID  string   `json:"skill_id"`
	Format   Format   `json:"format"`
	Options  []string `json:"options,omitempty"`
	Expected string   `json:"expected"`
	Rubric   string   `json:"rubric,omitempty"`
}

// Quiz is a generated, not-yet-answered assessment. It lives on the session
// document until the learner submits answers, at which point grading turns
// it into an immutable Attempt.
type Quiz struct {
	ID    string `json:"id"`
	Kind  Kind   `json:"kind"`
	Week  int    `json:"week"`
	Topic string `json:"topic,omitempty"`
	Items []Item `json:"items"`
}

// Skills returns the distinct skill ids covered by the quiz, sorted.
func (q *Quiz) Skills() []string {
	seen := make(map[string]bool, len(q.Items))
	for _, it := range q.Items {
		seen[it.SkillID] = true
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// AttemptItem is one graded (question, answer) pair inside an Attempt.
type AttemptItem struct {
	Question    string  `json:"question"`
	SkillID     string  `json:"skill_id"`
	Submitted   string  `json:"submitted"`
	Expected    string  `json:"expected"`
	Correct     bool    `json:"correct"`
	Score       float64 `json:"score"`
	Explanation string  `json:"explanation"`
	Ungraded    bool    `json:"ungraded,omitempty"`
}

// Attempt is the immutable record of one graded quiz submission.
// Its ID is the duplicate-ingestion guard key for progress updates.
type Attempt struct {
	ID       string        `json:"id"`
	QuizID   string        `json:"quiz_id"`
	Kind     Kind          `json:"kind"`
	Week     int           `json:"week"`
	Items    []AttemptItem `json:"items"`
	Score    float64       `json:"score"`
	Graded   int           `json:"graded"`
	GradedAt time.Time     `json:"graded_at"`
}

// Passed reports whether the mean graded score clears the threshold.
// An attempt with no gradable items never passes.
func (a *Attempt) Passed(threshold float64) bool {
	return a.Graded > 0 && a.Score >= threshold
}

// Inconclusive reports whether every item failed grading.
func (a *Attempt) Inconclusive() bool {
	return a.Graded == 0
}

// SkillScores returns the mean graded score per skill. Skills whose items
// were all ungraded are omitted entirely so they never feed score updates.
func (a *Attempt) SkillScores() map[string]float64 {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, it := range a.Items {
		if it.Ungraded {
			continue
		}
		sums[it.SkillID] += it.Score
		counts[it.SkillID]++
	}
	out := make(map[string]float64, len(sums))
	for id, sum := range sums {
		out[id] = sum / float64(counts[id])
	}
	return out
}

// MissedSkills returns the skills scoring below the threshold on this
// attempt, weakest first, capped at limit (0 = no cap).
func (a *Attempt) MissedSkills(threshold float64, limit int) []string {
	scores := a.SkillScores()
	var missed []string
	for id, s := range scores {
		if s < threshold {
			missed = append(missed, id)
		}
	}
	sort.Slice(missed, func(i, j int) bool {
		if scores[missed[i]] != scores[missed[j]] {
			return scores[missed[i]] < scores[missed[j]]
		}
		return missed[i] < missed[j]
	})
	if limit > 0 && len(missed) > limit {
		missed = missed[:limit]
	}
	return missed
}
