package cmd

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/coach/internal/orchestrator"
	"github.com/abhisek/coach/internal/session"
	"github.com/abhisek/coach/internal/store"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show turn and usage statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		id, _ := cmd.Flags().GetString("session")

		st, err := openStore(cmd)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()

		if id != "" {
			return sessionStats(cmd.Context(), st, id)
		}
		return globalStats(cmd.Context(), st)
	},
}

func init() {
	statsCmd.Flags().String("session", "", "Limit statistics to one session")
}

// phaseOrder is the display order for phase breakdowns, matching the
// session lifecycle.
var phaseOrder = []session.Phase{
	session.PhaseOnboarding,
	session.PhaseAssessing,
	session.PhasePlanning,
	session.PhaseLearning,
	session.PhaseQuizzing,
	session.PhaseReviewing,
	session.PhaseCompleted,
}

func globalStats(ctx context.Context, st *store.Store) error {
	rows, err := st.SessionRepo().List(ctx, true)
	if err != nil {
		return err
	}

	var archived int
	var totalTurns int64
	phases := make(map[session.Phase]int)
	for _, s := range rows {
		if s.Archived {
			archived++
		}
		phases[s.Phase]++
		totalTurns += s.Version - 1
	}

	fmt.Printf("Sessions: %d (%d archived)\n", len(rows), archived)
	fmt.Printf("Turns:    %d\n", totalTurns)
	for _, p := range phaseOrder {
		if n := phases[p]; n > 0 {
			fmt.Printf("  %-11s  %d\n", p, n)
		}
	}

	usage, err := st.EventRepo().LLMUsageByPurpose(ctx)
	if err != nil {
		return err
	}
	var calls, in, out int
	for _, u := range usage {
		calls += u.Calls
		in += u.InputTokens
		out += u.OutputTokens
	}
	fmt.Printf("\nLLM calls: %d (%d tokens in, %d out)\n", calls, in, out)
	fmt.Println("Break it down with: coach llm stats")
	return nil
}

func sessionStats(ctx context.Context, st *store.Store, id string) error {
	doc, err := st.SessionRepo().Get(ctx, id)
	if err != nil {
		return err
	}

	events, err := st.EventRepo().QueryTurnEvents(ctx, id, store.QueryOpts{})
	if err != nil {
		return err
	}

	topic := doc.Session.Topic
	if topic == "" {
		topic = "(no topic yet)"
	}
	fmt.Printf("Session:  %s\n", doc.Session.ID)
	fmt.Printf("Topic:    %s\n", topic)
	fmt.Printf("Phase:    %s (week %d)\n", doc.Session.Phase, doc.Session.CurrentWeek)
	if doc.Session.Fatal() {
		fmt.Printf("Fatal:    %s\n", doc.Session.FatalError)
	}

	var failed int
	intents := make(map[string]int)
	for _, e := range events {
		intents[e.Intent]++
		if e.Error != "" {
			failed++
		}
	}
	fmt.Printf("Turns:    %d (%d with errors)\n", len(events), failed)

	if len(intents) > 0 {
		names := make([]string, 0, len(intents))
		for name := range intents {
			names = append(names, name)
		}
		sort.Slice(names, func(i, j int) bool {
			if intents[names[i]] != intents[names[j]] {
				return intents[names[i]] > intents[names[j]]
			}
			return names[i] < names[j]
		})
		fmt.Println("\nIntents")
		for _, name := range names {
			fmt.Printf("  %-18s  %d\n", name, intents[name])
		}
	}

	if len(doc.Attempts) > 0 {
		threshold := orchestrator.DefaultConfig().Progress.PassThreshold
		fmt.Println("\nQuiz attempts")
		for _, a := range doc.Attempts {
			verdict := "fail"
			if a.Passed(threshold) {
				verdict = "pass"
			}
			if a.Inconclusive() {
				verdict = "inconclusive"
			}
			fmt.Printf("  %-10s  week %d  %3.0f%%  %s\n", a.Kind, a.Week, a.Score*100, verdict)
		}
	}

	if doc.Progress != nil && len(doc.Progress.Bank) > 0 {
		fmt.Printf("\nMistake bank: %s\n", strings.Join(doc.Progress.WeakSkills(0), ", "))
	}
	return nil
}
