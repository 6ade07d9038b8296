package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/coach/internal/agent"
	"github.com/abhisek/coach/internal/llm"
	"github.com/abhisek/coach/internal/orchestrator"
	"github.com/abhisek/coach/internal/search"
	"github.com/abhisek/coach/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "coach",
	Short: "AI learning coach in your terminal",
	Long: "Coach plans a multi-week curriculum for any topic you want to learn,\n" +
		"then tutors, quizzes, and tracks your weak spots week by week.",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd, args)
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("db", "", "Path to SQLite database file (overrides COACH_DB env var)")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(turnCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(skillsCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(llmCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(updateCmd)
}

// openStore opens the configured backend: the --db flag wins, then
// COACH_DATABASE_URL selects Postgres, then COACH_DB or the XDG default
// selects SQLite.
func openStore(cmd *cobra.Command) (*store.Store, error) {
	if p, _ := cmd.Flags().GetString("db"); p != "" {
		if err := store.EnsureDir(p); err != nil {
			return nil, err
		}
		return store.Open(p)
	}
	return store.OpenDefault()
}

// buildCoach opens the store and wires the orchestrator with the provider
// from the environment. When watchPrompts is set and COACH_PROMPTS_DIR
// points at a directory, persona overrides are loaded and hot-reloaded for
// the life of the process.
func buildCoach(ctx context.Context, cmd *cobra.Command, log *slog.Logger, watchPrompts bool) (*orchestrator.Orchestrator, *store.Store, error) {
	if log == nil {
		log = slog.Default()
	}

	st, err := openStore(cmd)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}

	provider, err := llm.NewProviderFromEnv(ctx, st.EventRepo())
	if err != nil {
		st.Close()
		return nil, nil, fmt.Errorf("LLM provider: %w", err)
	}

	registry, err := orchestrator.DefaultRegistry()
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	if dir := agent.OverridesDirFromEnv(); dir != "" {
		if err := registry.LoadOverrides(dir); err != nil {
			log.Warn("persona overrides not loaded", "dir", dir, "error", err)
		} else if watchPrompts {
			if err := registry.Watch(dir); err != nil {
				log.Warn("persona override watch failed", "dir", dir, "error", err)
			}
		}
	}

	coach, err := orchestrator.New(orchestrator.Deps{
		Sessions: st.SessionRepo(),
		Events:   st.EventRepo(),
		Provider: provider,
		Registry: registry,
		Search:   search.NewIndex(),
		Logger:   log,
	}, orchestrator.DefaultConfig())
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	return coach, st, nil
}

// newCLILogger returns the logger for one-shot commands: text on stderr,
// warnings only unless COACH_LOG_LEVEL lowers it.
func newCLILogger() *slog.Logger {
	lvl := slog.LevelWarn
	if v := os.Getenv("COACH_LOG_LEVEL"); v != "" {
		lvl = parseLogLevel(v)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// parseLogLevel maps a COACH_LOG_LEVEL value to a slog level. Unknown
// values fall back to info.
func parseLogLevel(v string) slog.Level {
	switch strings.ToLower(v) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
