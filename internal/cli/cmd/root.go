// Package cmd provides the Cobra CLI commands for wizterm.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wizterm/wizterm/internal/cli"
)

var (
	app     *cli.App
	version = "dev"

	rootCmd = &cobra.Command{
		Use:   "wizterm",
		Short: "A multi-pane terminal/browser workspace",
		Long: `Wizterm keeps a splittable tree of terminal sessions and embedded
browser panes, with a live minimap of every pane in a secondary window.

The subcommands inspect and maintain the persisted state: the saved
pane layout, terminal session records, and preferences.`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			switch cmd.Name() {
			case "help", "completion", "version":
				return nil
			}

			var err error
			app, err = cli.NewApp()
			if err != nil {
				return fmt.Errorf("initialize app: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if app != nil {
				_ = app.Close()
			}
		},
	}
)

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// SetVersion records the build version shown by the version command.
func SetVersion(v string) {
	if v != "" {
		version = v
	}
}

// GetApp returns the initialized app (for use by subcommands).
func GetApp() *cli.App {
	return app
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the wizterm version",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("wizterm %s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
