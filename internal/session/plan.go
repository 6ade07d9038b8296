package session

import (
	"fmt"
	"strings"
)

// AssessmentType is the kind of end-of-week assessment a plan week carries.
type AssessmentType string

const (
	AssessmentQuiz     AssessmentType = "quiz"
	AssessmentProject  AssessmentType = "project"
	AssessmentExercise AssessmentType = "exercise"
)

// Valid reports whether t is a known assessment type.
func (t AssessmentType) Valid() bool {
	switch t {
	case AssessmentQuiz, AssessmentProject, AssessmentExercise:
		return true
	}
	return false
}

// Assessment describes how a week is assessed.
type Assessment struct {
	Type    AssessmentType `json:"type"`
	Details string         `json:"details,omitempty"`
}

// Week is one curriculum week inside a LearningPlan.
type Week struct {
	Number     int        `json:"week_number"`
	Topic      string     `json:"topic"`
	Goal       string     `json:"goal"`
	Activities []string   `json:"activities"`
	Assessment Assessment `json:"assessment"`

	// Completed flips when the week's quiz is passed. Completed weeks
	// are immutable: plan updates must carry them through unchanged.
	Completed bool `json:"completed,omitempty"`
}

// LearningPlan is the multi-week curriculum produced by the planner.
type LearningPlan struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
	Weeks   []Week `json:"weeks"`
}

// Validate checks structural invariants: at least one week, week numbers
// contiguous from 1, non-empty topics, known assessment types.
func (p *LearningPlan) Validate() error {
	if len(p.Weeks) == 0 {
		return fmt.Errorf("plan has no weeks")
	}
	for i, w := range p.Weeks {
		if w.Number != i+1 {
			return fmt.Errorf("week %d has number %d; weeks must be contiguous from 1", i+1, w.Number)
		}
		if strings.TrimSpace(w.Topic) == "" {
			return fmt.Errorf("week %d has an empty topic", w.Number)
		}
		if !w.Assessment.Type.Valid() {
			return fmt.Errorf("week %d has unknown assessment type %q", w.Number, w.Assessment.Type)
		}
	}
	return nil
}

// Week returns the week with the given number, or nil.
func (p *LearningPlan) Week(n int) *Week {
	if n < 1 || n > len(p.Weeks) {
		return nil
	}
	return &p.Weeks[n-1]
}

// FinalWeek returns the last week number.
func (p *LearningPlan) FinalWeek() int {
	return len(p.Weeks)
}

// Replace applies an updated plan on top of p, enforcing completed-week
// immutability: every completed week in p must appear in next with
// identical content. Future weeks may be freely edited.
func (p *LearningPlan) Replace(next *LearningPlan) error {
	if err := next.Validate(); err != nil {
		return err
	}
	for _, old := range p.Weeks {
		if !old.Completed {
			continue
		}
		nw := next.Week(old.Number)
		if nw == nil {
			return fmt.Errorf("completed week %d missing from updated plan", old.Number)
		}
		if !weeksEqual(old, *nw) {
			return fmt.Errorf("completed week %d is immutable", old.Number)
		}
		nw.Completed = true
	}
	p.Title = next.Title
	p.Summary = next.Summary
	p.Weeks = next.Weeks
	return nil
}

func weeksEqual(a, b Week) bool {
	if a.Number != b.Number || a.Topic != b.Topic || a.Goal != b.Goal {
		return false
	}
	if a.Assessment != b.Assessment {
		return false
	}
	if len(a.Activities) != len(b.Activities) {
		return false
	}
	for i := range a.Activities {
		if a.Activities[i] != b.Activities[i] {
			return false
		}
	}
	return true
}
