package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Archive a session",
	Long: "Archiving hides a session from listings without deleting anything.\n" +
		"It stays loadable by id; nothing is ever deleted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		id, _ := cmd.Flags().GetString("session")
		skipConfirm, _ := cmd.Flags().GetBool("yes")

		st, err := openStore(cmd)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()

		doc, err := st.SessionRepo().Get(cmd.Context(), id)
		if err != nil {
			return err
		}

		if !skipConfirm {
			topic := doc.Session.Topic
			if topic == "" {
				topic = "no topic"
			}
			fmt.Printf("Archive session %s (%s, week %d)? [y/N]: ", doc.Session.ID, topic, doc.Session.CurrentWeek)
			line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
			switch strings.ToLower(strings.TrimSpace(line)) {
			case "y", "yes":
			default:
				fmt.Println("Canceled.")
				return nil
			}
		}

		if err := st.SessionRepo().Archive(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Println("Session archived. Load it by id any time; it no longer shows in listings.")
		return nil
	},
}

func init() {
	resetCmd.Flags().String("session", "", "Session id (required)")
	resetCmd.Flags().Bool("yes", false, "Skip confirmation")
	_ = resetCmd.MarkFlagRequired("session")
}
