package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/coach/internal/progress"
)

var skillsCmd = &cobra.Command{
	Use:   "skills",
	Short: "Show a session's skill records and mistake bank",
	RunE: func(cmd *cobra.Command, args []string) error {
		id, _ := cmd.Flags().GetString("session")

		st, err := openStore(cmd)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()

		doc, err := st.SessionRepo().Get(cmd.Context(), id)
		if err != nil {
			return err
		}
		if doc.Progress == nil || len(doc.Progress.Skills) == 0 {
			fmt.Println("No skill data yet. Take a quiz first.")
			return nil
		}

		records := make([]*progress.SkillRecord, 0, len(doc.Progress.Skills))
		for _, r := range doc.Progress.Skills {
			records = append(records, r)
		}
		// Weakest first, so what needs attention tops the table.
		sort.Slice(records, func(i, j int) bool {
			if records[i].Score != records[j].Score {
				return records[i].Score < records[j].Score
			}
			return records[i].SkillID < records[j].SkillID
		})

		fmt.Printf("%-28s  %5s  %5s  %-9s  %5s  %4s  %s\n",
			"SKILL", "SCORE", "PREV", "TREND", "TRIES", "WEEK", "BANK")
		fmt.Println(strings.Repeat("─", 76))

		for _, r := range records {
			bank := ""
			if doc.Progress.BankContains(r.SkillID) {
				bank = "yes"
			}
			skill := r.SkillID
			if len(skill) > 28 {
				skill = skill[:25] + "..."
			}
			fmt.Printf("%-28s  %5.2f  %5.2f  %-9s  %5d  %4d  %s\n",
				skill, r.Score, r.PrevScore, r.Trend, r.AttemptCount, r.LastSeenWeek, bank)
		}

		if weak := doc.Progress.WeakSkills(0); len(weak) > 0 {
			fmt.Printf("\nMistake bank (weakest first): %s\n", strings.Join(weak, ", "))
		} else {
			fmt.Println("\nMistake bank is empty.")
		}
		return nil
	},
}

func init() {
	skillsCmd.Flags().String("session", "", "Session id (required)")
	_ = skillsCmd.MarkFlagRequired("session")
}
