package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show a session's learning plan",
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
		if doc.Plan == nil {
			fmt.Println("No plan yet. Ask the coach for one: coach turn --session", id, `"make me a plan"`)
			return nil
		}

		p := doc.Plan
		fmt.Println(p.Title)
		if p.Summary != "" {
			fmt.Println(p.Summary)
		}
		for _, w := range p.Weeks {
			mark := " "
			if w.Completed {
				mark = "x"
			}
			current := ""
			if w.Number == doc.Session.CurrentWeek && !doc.Session.Phase.Terminal() {
				current = "  <- current"
			}
			fmt.Printf("\n[%s] Week %d: %s%s\n", mark, w.Number, w.Topic, current)
			fmt.Printf("    Goal: %s\n", w.Goal)
			for _, act := range w.Activities {
				fmt.Printf("    - %s\n", act)
			}
			if w.Assessment.Details != "" {
				fmt.Printf("    Assessment (%s): %s\n", w.Assessment.Type, w.Assessment.Details)
			} else {
				fmt.Printf("    Assessment: %s\n", w.Assessment.Type)
			}
		}
		return nil
	},
}

func init() {
	planCmd.Flags().String("session", "", "Session id (required)")
	_ = planCmd.MarkFlagRequired("session")
}
