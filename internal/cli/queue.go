package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/MythicalCosmic/smart-pos/internal/models"
	"github.com/MythicalCosmic/smart-pos/internal/wire"
)

// QueueCmd returns the queue command.
func QueueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect the local sync queue",
	}
	cmd.AddCommand(queueListCmd())
	cmd.AddCommand(queueQuarantineCmd())
	return cmd
}

func queueListCmd() *cobra.Command {
	var status string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued change records",
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := wire.QueueRepo().ListByStatus(cmd.Context(), models.ChangeStatus(status), limit)
			if err != nil {
				return fmt.Errorf("failed to list queue: %w", err)
			}
			if len(records) == 0 {
				fmt.Printf("No %s records.\n", status)
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tENTITY\tOP\tVERSION\tATTEMPTS\tLAST ERROR")
			for _, r := range records {
				fmt.Fprintf(w, "%s\t%s/%s\t%s\t%d\t%d\t%s\n",
					r.ID, r.EntityType, r.EntityID, r.Operation, r.Version, r.Attempts, r.LastError)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&status, "status", "pending", "status to list (pending, in_flight, failed, quarantined)")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum records to show")
	return cmd
}

func queueQuarantineCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "quarantine [change-id]",
		Short: "Move a stuck record to quarantine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := wire.QueueRepo().Quarantine(cmd.Context(), args[0], "quarantined by operator"); err != nil {
				return err
			}
			fmt.Printf("✓ Quarantined %s\n", args[0])
			return nil
		},
	}
}

// AuditCmd returns the audit command.
func AuditCmd() *cobra.Command {
	var entityType string
	var limit int

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show resolved conflicts",
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := wire.AuditRepo().List(cmd.Context(), entityType, limit)
			if err != nil {
				return fmt.Errorf("failed to list conflicts: %w", err)
			}
			if len(entries) == 0 {
				fmt.Println("No resolved conflicts.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RESOLVED\tENTITY\tWINNER\tLOSER\tREASON")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s/%s\t%s v%d\t%s v%d\t%s\n",
					e.ResolvedAt.Local().Format("01-02 15:04"),
					e.EntityType, e.EntityID,
					e.WinnerBranch, e.WinnerVersion,
					e.LoserBranch, e.LoserVersion,
					e.Reason)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&entityType, "type", "", "filter by entity type")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum entries to show")
	return cmd
}
