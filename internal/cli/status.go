package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/MythicalCosmic/smart-pos/internal/wire"
)

// StatusCmd returns the status command.
func StatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show sync health for this branch",
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := wire.Engine().StatusReport(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to build status report: %w", err)
			}

			state := color.New(color.FgGreen).Sprint("ONLINE")
			if !report.Online {
				state = color.New(color.FgYellow).Sprint("OFFLINE")
			}
			fmt.Printf("Branch %s  %s  worker: %s\n", report.Branch, state, wire.SyncWorker().State())
			if !report.LastSuccessAt.IsZero() {
				fmt.Printf("Last successful sync: %s\n", report.LastSuccessAt.Local().Format("2006-01-02 15:04:05"))
			}
			fmt.Printf("Pending changes: %d", report.PendingTotal)
			if report.Quarantined > 0 {
				fmt.Printf("  %s: %d", color.New(color.FgRed).Sprint("quarantined"), report.Quarantined)
			}
			fmt.Println()

			if report.OpenSession != nil {
				fmt.Printf("Open session: %s (%s)\n", report.OpenSession.Cashier, report.OpenSession.ShiftRef)
			}

			if len(report.PerEntityType) > 0 {
				fmt.Println()
				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ENTITY TYPE\tPENDING\tACKED VERSION\tFAILURES\tLAST ATTEMPT")
				for _, st := range report.PerEntityType {
					attempt := "-"
					if !st.LastAttemptAt.IsZero() {
						attempt = st.LastAttemptAt.Local().Format("15:04:05")
					}
					fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%s\n",
						st.EntityType, report.PendingByType[st.EntityType],
						st.LastAckedVersion, st.ConsecutiveFailures, attempt)
				}
				w.Flush()
			}
			return nil
		},
	}
}

// ResyncCmd returns the resync command.
func ResyncCmd() *cobra.Command {
	var confirmed bool

	cmd := &cobra.Command{
		Use:   "resync [entity-type]",
		Short: "Reset sync state for an entity type",
		Long: `Drop queued changes and the status row for one entity type, and rewind
the branch's pull cursor. The next sync replays the cloud feed from the
start and rebuilds local state. Destructive: queued local changes for
the type are discarded.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirmed {
				return fmt.Errorf("resync discards queued changes for %q; re-run with --yes", args[0])
			}
			if err := wire.Engine().ForceResync(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("✓ Reset sync state for %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().BoolVar(&confirmed, "yes", false, "confirm the reset")
	return cmd
}
