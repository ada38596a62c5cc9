package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var purgeDays int

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List terminal sessions with no recorded end",
	Long: `List terminal session records that are still marked active.

Rows stay active while the owning wizterm process runs; rows left
active by a crash are closed on the next start. Use 'sessions end-all'
to close them by hand and 'sessions purge' to delete old ended rows.`,
	RunE: runSessions,
}

var sessionsEndAllCmd = &cobra.Command{
	Use:   "end-all",
	Short: "Mark every active session record as ended",
	RunE:  runSessionsEndAll,
}

var sessionsPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete ended session records older than --days",
	RunE:  runSessionsPurge,
}

func init() {
	sessionsPurgeCmd.Flags().IntVar(&purgeDays, "days", 30, "delete ended records older than this many days")
	sessionsCmd.AddCommand(sessionsEndAllCmd)
	sessionsCmd.AddCommand(sessionsPurgeCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func runSessions(cmd *cobra.Command, _ []string) error {
	app := GetApp()
	if app == nil {
		return fmt.Errorf("app not initialized")
	}

	records, err := app.Records.ListActive(app.Ctx())
	if err != nil {
		return err
	}
	if len(records) == 0 {
		cmd.Println("no active sessions")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSHELL\tSTARTED")
	for _, rec := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\n", rec.ID, rec.Shell, rec.CreatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func runSessionsEndAll(cmd *cobra.Command, _ []string) error {
	app := GetApp()
	if app == nil {
		return fmt.Errorf("app not initialized")
	}

	n, err := app.Records.MarkAllEnded(app.Ctx())
	if err != nil {
		return err
	}
	cmd.Printf("marked %d session(s) ended\n", n)
	return nil
}

func runSessionsPurge(cmd *cobra.Command, _ []string) error {
	app := GetApp()
	if app == nil {
		return fmt.Errorf("app not initialized")
	}
	if purgeDays < 0 {
		return fmt.Errorf("--days must be >= 0")
	}

	cutoff := time.Now().AddDate(0, 0, -purgeDays)
	n, err := app.Records.CleanupEndedBefore(app.Ctx(), cutoff)
	if err != nil {
		return err
	}
	cmd.Printf("purged %d session record(s)\n", n)
	return nil
}
