package cmd

import (
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/coach/internal/tui"
)

var chatCmd = &cobra.Command{
	Use:   "chat [topic...]",
	Short: "Talk to the coach in an interactive terminal session",
	Long: "Chat opens the interactive coaching session. With no arguments it starts\n" +
		"a fresh session; pass a topic to seed it, or --session to resume one.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd, args)
	},
}

func init() {
	chatCmd.Flags().String("session", "", "Resume an existing session by id")
}

// runChat starts or resumes a session and hands it to the chat UI. Logs
// are dropped so nothing writes over the alternate screen; the event log
// in the store remains the debugging surface.
func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	coach, st, err := buildCoach(ctx, cmd, log, true)
	if err != nil {
		return err
	}
	defer st.Close()

	id, _ := cmd.Flags().GetString("session")
	if id == "" {
		doc, err := coach.StartSession(ctx, strings.Join(args, " "))
		if err != nil {
			return err
		}
		id = doc.Session.ID
	}
	return tui.Run(coach, id)
}
