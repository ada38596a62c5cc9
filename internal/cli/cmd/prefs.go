package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wizterm/wizterm/internal/persistence/sqlite"
)

var prefsCmd = &cobra.Command{
	Use:   "prefs",
	Short: "Show the saved terminal preferences",
	RunE:  runPrefs,
}

var prefsResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset terminal preferences to the defaults",
	RunE:  runPrefsReset,
}

func init() {
	prefsCmd.AddCommand(prefsResetCmd)
	rootCmd.AddCommand(prefsCmd)
}

func runPrefs(cmd *cobra.Command, _ []string) error {
	app := GetApp()
	if app == nil {
		return fmt.Errorf("app not initialized")
	}

	prefs, err := app.Prefs.Load(app.Ctx())
	if err != nil {
		return err
	}

	shell := prefs.ShellPath
	if shell == "" {
		shell = "(inherit $SHELL)"
	}
	cmd.Printf("font:            %s %d\n", prefs.FontFamily, prefs.FontSize)
	cmd.Printf("scrollback:      %d lines\n", prefs.Scrollback)
	cmd.Printf("cursor blink:    %t\n", prefs.CursorBlink)
	cmd.Printf("minimap refresh: %d ms\n", prefs.MinimapRefreshMS)
	cmd.Printf("shell:           %s\n", shell)
	return nil
}

func runPrefsReset(cmd *cobra.Command, _ []string) error {
	app := GetApp()
	if app == nil {
		return fmt.Errorf("app not initialized")
	}

	if err := app.Prefs.Save(app.Ctx(), sqlite.DefaultPreferences()); err != nil {
		return err
	}
	cmd.Println("preferences reset to defaults")
	return nil
}
