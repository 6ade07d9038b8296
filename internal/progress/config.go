package progress

// Config holds the skill-aggregation tunables. The defaults are the values
// the rest of the system is calibrated against; see DESIGN.md for how they
// were chosen.
type Config struct {
	// Alpha is the EWMA weight on new evidence: new = α·report + (1-α)·old.
	Alpha float64

	// ReviewThreshold is the score below which a skill enters the mistake bank.
	ReviewThreshold float64

	// MinConfidence is the confidence floor for mistake-bank membership.
	MinConfidence float64

	// PassThreshold is the mean quiz score required to advance a week.
	PassThreshold float64

	// TrendDeadBand is the score delta below which a skill counts as stable.
	TrendDeadBand float64
}

// DefaultConfig returns the standard tuning.
func DefaultConfig() Config {
	return Config{
		Alpha:           0.3,
		ReviewThreshold: 0.6,
		MinConfidence:   0.3,
		PassThreshold:   0.7,
		TrendDeadBand:   0.01,
	}
}
