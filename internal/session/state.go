package session

// Phase is the orchestrator's position in the per-week
// assess / plan / learn / quiz / review cycle.
type Phase string

const (
	PhaseOnboarding Phase = "onboarding"
	PhaseAssessing  Phase = "assessing"
	PhasePlanning   Phase = "planning"
	PhaseLearning   Phase = "learning"
	PhaseQuizzing   Phase = "quizzing"
	PhaseReviewing  Phase = "reviewing"
	PhaseCompleted  Phase = "completed"
)

var knownPhases = map[Phase]bool{
	PhaseOnboarding: true,
	PhaseAssessing:  true,
	PhasePlanning:   true,
	PhaseLearning:   true,
	PhaseQuizzing:   true,
	PhaseReviewing:  true,
	PhaseCompleted:  true,
}

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	return knownPhases[p]
}

// Terminal reports whether the plan is finished.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted
}

func (p Phase) String() string {
	return string(p)
}
