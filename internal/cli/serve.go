package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MythicalCosmic/smart-pos/internal/config"
	"github.com/MythicalCosmic/smart-pos/internal/wire"
)

// ServeCmd returns the serve command: the cloud authority endpoint.
func ServeCmd() *cobra.Command {
	var zmqAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the cloud authority sync endpoint",
		Long: `Run the cloud-side receiver. Branches push their change batches here
and pull the merged change feed. Requires mode: cloud and at least one
entry in cloud.allowed_branch_tokens.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := wire.Config()
			if cfg.Mode != config.ModeCloud {
				return fmt.Errorf("serve requires mode: cloud (got %q)", cfg.Mode)
			}
			if len(cfg.Cloud.AllowedBranchTokens) == 0 {
				return fmt.Errorf("no branch tokens configured; set cloud.allowed_branch_tokens")
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if zmqAddr != "" {
				go func() {
					if err := wire.ZMQServer().Serve(ctx, zmqAddr); err != nil {
						fmt.Printf("zmq endpoint failed: %v\n", err)
					}
				}()
			}

			srv := &http.Server{
				Addr:              cfg.Cloud.Listen,
				Handler:           wire.HTTPServer().Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()

			fmt.Printf("smartpos cloud endpoint listening on %s\n", cfg.Cloud.Listen)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			fmt.Println("cloud endpoint stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&zmqAddr, "zmq", "", "also serve ZeroMQ on this address (e.g. tcp://*:8744)")
	return cmd
}
