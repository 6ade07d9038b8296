package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/coach/internal/orchestrator"
)

var turnCmd = &cobra.Command{
	Use:   "turn <message...>",
	Short: "Send one message to a session and print the coach's reply",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		coach, st, err := buildCoach(ctx, cmd, newCLILogger(), false)
		if err != nil {
			return err
		}
		defer st.Close()

		id, _ := cmd.Flags().GetString("session")
		reply, err := coach.Turn(ctx, id, strings.Join(args, " "))
		if err != nil {
			return err
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(reply)
		}
		printReply(reply)
		return nil
	},
}

func init() {
	turnCmd.Flags().String("session", "", "Session id (required)")
	turnCmd.Flags().Bool("json", false, "Print the full render model as JSON")
	_ = turnCmd.MarkFlagRequired("session")
}

// printReply writes the reply as plain text. The message already carries
// the formatted plan, lesson, or quiz; only per-question grading needs
// rendering on top of it.
func printReply(r *orchestrator.Reply) {
	fmt.Println(r.Message)

	if r.Payload != nil && r.Payload.Attempt != nil {
		a := r.Payload.Attempt
		fmt.Println()
		for i, it := range a.Items {
			mark := "✗"
			switch {
			case it.Ungraded:
				mark = "?"
			case it.Correct:
				mark = "✓"
			case it.Score > 0:
				mark = "~"
			}
			fmt.Printf("%s %d. %s\n", mark, i+1, it.Question)
			if it.Explanation != "" && !it.Correct && !it.Ungraded {
				fmt.Printf("    %s\n", it.Explanation)
			}
		}
		fmt.Printf("\nScore: %.0f%% (%d of %d graded)\n", a.Score*100, a.Graded, len(a.Items))
	}

	fmt.Printf("\n[%s · week %d]\n", r.Phase, r.Week)
}
