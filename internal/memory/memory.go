// Package memory assembles the context slice each agent prompt receives
// and maintains the document's rolling summary and learner insights. The
// slice is a read-only view over the session document; all writes flow
// back through the orchestrator's single commit.
package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/abhisek/coach/internal/search"
	"github.com/abhisek/coach/internal/session"
)

const (
	// summaryUtterances is how many recent user messages fold into the
	// rolling short summary.
	summaryUtterances = 3

	// summaryMaxRunes truncates each utterance before joining.
	summaryMaxRunes = 100

	// sliceInsights is how many recent insights a prompt receives.
	sliceInsights = 5

	// sliceTurns is how many recent transcript turns a prompt receives.
	sliceTurns = 6

	// sliceWeakSkills bounds the weak-area list in prompts.
	sliceWeakSkills = 3

	// sliceStandards bounds the curriculum references in prompts.
	sliceStandards = 3
)

// Slice is the per-role context bundle interpolated into an agent prompt.
// Fields irrelevant to a role stay zero.
type Slice struct {
	Topic        string
	Phase        string
	Week         int
	PlanTitle    string
	WeekTopic    string
	WeekGoal     string
	WeakSkills   []string
	ShortSummary string
	Insights     []string
	RecentTurns  []string
	Standards    []search.Result
}

// Build assembles the slice for one agent role. Planner sees the session
// topic and weak areas; Tutor and Assessor additionally see the current
// week's plan entry and recent conversation. Search degradation leaves
// Standards empty, never an error.
func Build(ctx context.Context, doc *session.Document, role string, sp search.Provider) Slice {
	s := Slice{
		Topic:        doc.Session.Topic,
		Phase:        string(doc.Session.Phase),
		Week:         doc.Session.CurrentWeek,
		ShortSummary: doc.Session.ShortSummary,
	}

	if doc.Progress != nil {
		s.WeakSkills = doc.Progress.WeakSkills(sliceWeakSkills)
	}
	if n := len(doc.Insights); n > 0 {
		start := n - sliceInsights
		if start < 0 {
			start = 0
		}
		s.Insights = doc.Insights[start:]
	}
	if doc.Plan != nil {
		s.PlanTitle = doc.Plan.Title
		if w := doc.Plan.Week(doc.Session.CurrentWeek); w != nil {
			s.WeekTopic = w.Topic
			s.WeekGoal = w.Goal
		}
	}

	switch role {
	case "planner":
		s.Standards = lookup(ctx, sp, doc.Session.Topic)
	case "tutor":
		s.RecentTurns = recentTurns(doc, sliceTurns)
		s.Standards = lookup(ctx, sp, firstNonEmpty(s.WeekTopic, doc.Session.Topic))
	case "assessor":
		s.Standards = lookup(ctx, sp, firstNonEmpty(s.WeekTopic, doc.Session.Topic))
	}

	return s
}

func lookup(ctx context.Context, sp search.Provider, query string) []search.Result {
	if sp == nil || query == "" {
		return nil
	}
	results, err := sp.Search(ctx, query)
	if err != nil {
		// Best-effort tool: degrade to no curriculum context.
		return nil
	}
	if len(results) > sliceStandards {
		results = results[:sliceStandards]
	}
	return results
}

// UpdateSummary recomputes the document's rolling short summary: the last
// three user utterances, truncated, joined with " | ".
func UpdateSummary(doc *session.Document) {
	var userTexts []string
	for _, seg := range doc.Segments {
		for _, t := range seg.Turns {
			if t.Role == session.ChatUser && strings.TrimSpace(t.Text) != "" {
				userTexts = append(userTexts, truncateRunes(strings.TrimSpace(t.Text), summaryMaxRunes))
			}
		}
	}
	if len(userTexts) > summaryUtterances {
		userTexts = userTexts[len(userTexts)-summaryUtterances:]
	}
	doc.Session.ShortSummary = strings.Join(userTexts, " | ")
}

// Struggle and preference keywords a user utterance is scanned for.
// Matches become insight lines fed back into later prompts.
var (
	struggleKeywords   = []string{"struggle", "struggling", "hard", "difficult", "cant", "can't", "frustrat"}
	preferenceKeywords = []string{"love", "like", "enjoy", "prefer"}
)

// HarvestInsights extracts rule-based insights from a user utterance and
// appends them to the document's capped insight list. Returns what was
// added, which may be empty.
func HarvestInsights(doc *session.Document, utterance string) []string {
	text := strings.TrimSpace(utterance)
	if text == "" {
		return nil
	}
	lower := strings.ToLower(text)

	var added []string
	if containsAny(lower, struggleKeywords) {
		added = append(added, fmt.Sprintf("User reported difficulty: %s", truncateRunes(text, summaryMaxRunes)))
	}
	if containsAny(lower, preferenceKeywords) {
		added = append(added, fmt.Sprintf("User preference: %s", truncateRunes(text, summaryMaxRunes)))
	}

	for _, in := range added {
		doc.AddInsight(in)
	}
	return added
}

func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

func recentTurns(doc *session.Document, n int) []string {
	var turns []session.ChatTurn
	for _, seg := range doc.Segments {
		if seg.Week == doc.Session.CurrentWeek {
			turns = seg.Turns
			break
		}
	}
	if len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	out := make([]string, 0, len(turns))
	for _, t := range turns {
		out = append(out, fmt.Sprintf("%s: %s", t.Role, truncateRunes(t.Text, summaryMaxRunes)))
	}
	return out
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
