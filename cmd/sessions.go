package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		includeArchived, _ := cmd.Flags().GetBool("archived")

		st, err := openStore(cmd)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()

		rows, err := st.SessionRepo().List(cmd.Context(), includeArchived)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			fmt.Println("No sessions yet. Start one with: coach chat")
			return nil
		}

		fmt.Printf("%-36s  %-20s  %-11s  %4s  %5s  %s\n",
			"ID", "TOPIC", "PHASE", "WEEK", "TURNS", "LAST ACTIVE")
		fmt.Println(strings.Repeat("─", 100))

		for _, s := range rows {
			topic := s.Topic
			if topic == "" {
				topic = "(no topic yet)"
			}
			if len(topic) > 20 {
				topic = topic[:17] + "..."
			}
			suffix := ""
			if s.Archived {
				suffix = "  archived"
			}
			fmt.Printf("%-36s  %-20s  %-11s  %4d  %5d  %s%s\n",
				s.ID, topic, s.Phase, s.Week, s.Version-1,
				s.UpdatedAt.Local().Format("2006-01-02 15:04"), suffix)
		}
		fmt.Printf("\n%d sessions\n", len(rows))
		return nil
	},
}

func init() {
	sessionsCmd.Flags().Bool("archived", false, "Include archived sessions")
}
