package cmd

import (
	"errors"
	"fmt"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wizterm/wizterm/internal/bounds"
	"github.com/wizterm/wizterm/internal/layout"
	"github.com/wizterm/wizterm/internal/logging"
	"github.com/wizterm/wizterm/internal/mainloop"
	"github.com/wizterm/wizterm/internal/registry"
	"github.com/wizterm/wizterm/internal/session"
	"github.com/wizterm/wizterm/internal/workspace"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the workspace engine headlessly",
	Long: `Run restores the saved pane layout, spawns a shell session for every
terminal pane and keeps the layout persisted as sessions come and go.
It runs until interrupted. A UI host embeds the same engine through its
own frame scheduler instead of this command.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		app := GetApp()
		cfg := app.Config
		ctx, stop := signal.NotifyContext(app.Ctx(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		logger := logging.FromContext(ctx)

		if n, err := app.Records.MarkAllEnded(ctx); err != nil {
			logger.Warn().Err(err).Msg("mark stale sessions ended")
		} else if n > 0 {
			logger.Info().Int64("count", n).Msg("closed stale session records")
		}

		sessions := session.NewManager(cfg.Terminal.Shell, *logger)
		scheduler := mainloop.NewTickScheduler(0)
		defer scheduler.Stop()

		coord := workspace.New(workspace.Options{
			Sessions:  sessions,
			Registry:  registry.New(nil),
			Bounds:    bounds.NewStore(),
			Scheduler: scheduler,
			Layouts:   app.Layouts,
			Records:   app.Records,
			Logger:    *logger,
			MinShare:  cfg.Layout.MinShare,
			Shell:     cfg.Terminal.Shell,
		})

		sessions.OnOutput(func(sessionID string, _ []byte) {
			coord.HandleSessionOutput(sessionID)
		})
		sessions.OnExit(func(sessionID string, err error) {
			coord.HandleSessionExit(ctx, sessionID, exitCodeOf(err))
		})

		if err := coord.Restore(ctx); err != nil {
			return fmt.Errorf("restore layout: %w", err)
		}
		if coord.Tree().Root == nil {
			if _, err := coord.OpenTerminal(ctx, layout.EdgeEnd); err != nil {
				return fmt.Errorf("open initial terminal: %w", err)
			}
		}

		logger.Info().
			Uint64("tree_version", coord.Tree().Version).
			Msg("workspace running")

		<-ctx.Done()

		logger.Info().Msg("shutting down")
		coord.Shutdown(app.Ctx())
		return nil
	},
}

func exitCodeOf(err error) *int {
	if err == nil {
		code := 0
		return &code
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		return &code
	}
	return nil
}

func init() {
	rootCmd.AddCommand(runCmd)
}
