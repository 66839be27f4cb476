package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MythicalCosmic/smart-pos/internal/wire"
)

// DaemonCmd returns the daemon command: the branch-side sync loop.
func DaemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run the branch sync worker",
		Long: `Run the background sync worker for this branch. The worker pushes
queued changes to the cloud authority, pulls remote changes, and
reconciles conflicts. It keeps retrying with backoff while the
connection is down; terminal operation is never blocked on it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := wire.Config()
			if !cfg.Sync.Enabled {
				return fmt.Errorf("sync is disabled; set sync.enabled in the config")
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			worker := wire.SyncWorker()
			fmt.Printf("smartpos sync worker started for branch %s (%s)\n", cfg.BranchID, cfg.Sync.Transport)

			// First cycle immediately; the interval timer takes over after.
			worker.TriggerNow()
			worker.Run(ctx)
			worker.Wait()

			fmt.Println("sync worker stopped")
			return nil
		},
	}
}

// SyncCmd returns the sync command: one manual cycle, for operators and
// cron-style setups.
func SyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one sync cycle now",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := wire.Config()
			if !cfg.Sync.Enabled {
				return fmt.Errorf("sync is disabled; set sync.enabled in the config")
			}
			if err := wire.SyncWorker().RunCycle(cmd.Context()); err != nil {
				return fmt.Errorf("sync cycle failed: %w", err)
			}
			fmt.Println("✓ Sync cycle completed")
			return nil
		},
	}
}
