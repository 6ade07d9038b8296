package quiz

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lithammer/fuzzysearch/fuzzy"
)

// Grading bands for short free-text answers. An exact or numerically
// equivalent match always scores 1.0; otherwise string similarity decides
// between full credit, partial credit and no credit.
const (
	fuzzyCorrectRatio = 0.85
	fuzzyPartialRatio = 0.60
	partialScore      = 0.5
)

// Result is the outcome of grading one submitted answer.
type Result struct {
	Correct     bool
	Score       float64
	Explanation string
}

// ErrGradingMismatch indicates the grader received a malformed pair and the
// item cannot be scored. The item is marked ungraded, never silently zeroed.
type ErrGradingMismatch struct {
	Reason string
}

func (e *ErrGradingMismatch) Error() string {
	return fmt.Sprintf("grading mismatch: %s", e.Reason)
}

// ErrAnswerCount indicates a submission with the wrong number of answers.
type ErrAnswerCount struct {
	Want int
	Got  int
}

func (e *ErrAnswerCount) Error() string {
	return fmt.Sprintf("expected %d answers, got %d", e.Want, e.Got)
}

// Grade scores a single submitted answer against an item. It is fully
// deterministic: the same inputs always produce the same Result. Objective
// (multiple-choice) items reduce to normalized option matching; short
// answers get exact, numeric-equivalence and fuzzy comparison in that order.
func Grade(submitted string, item Item) (Result, error) {
	expected := strings.TrimSpace(item.Expected)
	if expected == "" {
		return Result{}, &ErrGradingMismatch{Reason: "item has no expected answer"}
	}
	submitted = strings.TrimSpace(submitted)

	if item.Format == FormatMultipleChoice {
		return gradeMultipleChoice(submitted, expected, item)
	}
	return gradeShortAnswer(submitted, expected), nil
}

// gradeMultipleChoice accepts the option letter (A-D), the 1-based option
// index, or the option text, compared case-insensitively. The expected
// answer may likewise be a letter or the option text.
func gradeMultipleChoice(submitted, expected string, item Item) (Result, error) {
	if len(item.Options) == 0 {
		return Result{}, &ErrGradingMismatch{Reason: "multiple-choice item has no options"}
	}

	subIdx, subOK := optionIndex(submitted, item.Options)
	expIdx, expOK := optionIndex(expected, item.Options)
	if !expOK {
		return Result{}, &ErrGradingMismatch{Reason: fmt.Sprintf("expected answer %q matches no option", expected)}
	}
	if !subOK {
		return Result{
			Correct:     false,
			Score:       0,
			Explanation: fmt.Sprintf("%q is not one of the options; the correct answer was %s", submitted, optionLabel(expIdx, item.Options)),
		}, nil
	}

	if subIdx == expIdx {
		return Result{Correct: true, Score: 1, Explanation: "correct"}, nil
	}
	return Result{
		Correct:     false,
		Score:       0,
		Explanation: fmt.Sprintf("the correct answer was %s", optionLabel(expIdx, item.Options)),
	}, nil
}

// optionIndex resolves an answer string to a 0-based option index.
func optionIndex(answer string, options []string) (int, bool) {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return 0, false
	}

	// Single letter: A, b), C.
	letter := strings.ToUpper(strings.TrimRight(answer, ".)"))
	if len(letter) == 1 && letter[0] >= 'A' && letter[0] <= 'Z' {
		idx := int(letter[0] - 'A')
		if idx < len(options) {
			return idx, true
		}
	}

	// 1-based index.
	if n, err := strconv.Atoi(answer); err == nil && n >= 1 && n <= len(options) {
		return n - 1, true
	}

	// Option text, normalized.
	na := normalizeText(answer)
	for i, opt := range options {
		if normalizeText(opt) == na {
			return i, true
		}
	}
	return 0, false
}

func optionLabel(idx int, options []string) string {
	return fmt.Sprintf("%c) %s", 'A'+idx, options[idx])
}

// gradeShortAnswer applies the graded bands: exact or numerically equivalent
// answers score 1.0, near matches 1.0, loose matches 0.5, the rest 0.
func gradeShortAnswer(submitted, expected string) Result {
	if submitted == "" {
		return Result{Correct: false, Score: 0, Explanation: "no answer given"}
	}

	ns, ne := normalizeText(submitted), normalizeText(expected)
	if ns == ne {
		return Result{Correct: true, Score: 1, Explanation: "correct"}
	}

	if sv, ok := numericValue(ns); ok {
		if ev, ok := numericValue(ne); ok {
			if math.Abs(sv-ev) < 1e-9 {
				return Result{Correct: true, Score: 1, Explanation: "correct (equivalent value)"}
			}
			return Result{Correct: false, Score: 0, Explanation: fmt.Sprintf("expected %s", expected)}
		}
	}

	switch ratio := similarity(ns, ne); {
	case ratio >= fuzzyCorrectRatio:
		return Result{Correct: true, Score: 1, Explanation: "correct (close match)"}
	case ratio >= fuzzyPartialRatio:
		return Result{Correct: false, Score: partialScore, Explanation: fmt.Sprintf("partially correct; expected %s", expected)}
	default:
		return Result{Correct: false, Score: 0, Explanation: fmt.Sprintf("expected %s", expected)}
	}
}

// normalizeText lowercases, collapses whitespace and strips trailing
// sentence punctuation so cosmetic differences never change a grade.
func normalizeText(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Join(strings.Fields(s), " ")
	return strings.TrimRight(s, ".!?")
}

// numericValue parses integers, decimals, percentages ("50%" → 0.5),
// comma-grouped numbers ("1,000") and simple fractions ("3/4").
func numericValue(s string) (float64, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0, false
	}

	if strings.HasSuffix(s, "%") {
		f, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(s, "%")), 64)
		if err != nil {
			return 0, false
		}
		return f / 100, true
	}

	if num, den, err := parseFraction(s); err == nil {
		if den == 0 {
			return 0, false
		}
		return float64(num) / float64(den), true
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// parseFraction parses "a/b" into numerator and denominator.
func parseFraction(s string) (int64, int64, error) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("not a fraction: %q", s)
	}
	num, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid numerator: %w", err)
	}
	den, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid denominator: %w", err)
	}
	return num, den, nil
}

// similarity is 1 - d/len where d is the Levenshtein distance and len the
// longer of the two strings, mirroring a sequence-match ratio in [0,1].
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	longest := max(len([]rune(a)), len([]rune(b)))
	if longest == 0 {
		return 0
	}
	d := fuzzy.LevenshteinDistance(a, b)
	return 1 - float64(d)/float64(longest)
}

// GradeAttempt grades a full submission against the pending quiz and returns
// the immutable Attempt. Items the grader cannot score (ErrGradingMismatch)
// are marked ungraded and excluded from the mean; any other per-item failure
// is impossible by construction. The answer count must match the item count.
func GradeAttempt(q *Quiz, answers []string, now time.Time) (*Attempt, error) {
	if len(answers) != len(q.Items) {
		return nil, &ErrAnswerCount{Want: len(q.Items), Got: len(answers)}
	}

	attempt := &Attempt{
		ID:       uuid.NewString(),
		QuizID:   q.ID,
		Kind:     q.Kind,
		Week:     q.Week,
		Items:    make([]AttemptItem, len(q.Items)),
		GradedAt: now,
	}

	var sum float64
	for i, item := range q.Items {
		ai := AttemptItem{
			Question:  item.Question,
			SkillID:   item.SkillID,
			Submitted: strings.TrimSpace(answers[i]),
			Expected:  item.Expected,
		}

		res, err := Grade(answers[i], item)
		if err != nil {
			ai.Ungraded = true
			ai.Explanation = err.Error()
		} else {
			ai.Correct = res.Correct
			ai.Score = res.Score
			ai.Explanation = res.Explanation
			sum += res.Score
			attempt.Graded++
		}
		attempt.Items[i] = ai
	}

	if attempt.Graded > 0 {
		attempt.Score = sum / float64(attempt.Graded)
	}
	return attempt, nil
}
