// Package cli contains the smartpos command surface.
package cli

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/MythicalCosmic/smart-pos/internal/config"
	"github.com/MythicalCosmic/smart-pos/internal/wire"
)

// configPath is the --config flag shared by every command.
var configPath string

// RootCmd builds the smartpos root command.
func RootCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "smartpos",
		Short:   "smartpos - offline-first restaurant POS sync engine",
		Version: version,
		Long: `smartpos keeps branch terminals selling through network outages and
reconciles their records with the cloud authority when connectivity returns.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// init writes the config; it must run before one exists.
			if cmd.Name() == "init" || cmd.Name() == "version" {
				return nil
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			wire.Configure(cfg, buildLogger(cfg))
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default smartpos.yaml)")

	cmd.AddCommand(InitCmd())
	cmd.AddCommand(DaemonCmd())
	cmd.AddCommand(ServeCmd())
	cmd.AddCommand(SyncCmd())
	cmd.AddCommand(StatusCmd())
	cmd.AddCommand(QueueCmd())
	cmd.AddCommand(AuditCmd())
	cmd.AddCommand(ResyncCmd())
	cmd.AddCommand(SessionCmd())

	return cmd
}

// buildLogger writes to stderr, plus a rotating file when configured.
// Long-running terminals rotate logs locally; disk on a POS box is small.
func buildLogger(cfg *config.Config) *log.Logger {
	var out io.Writer = os.Stderr
	if cfg.Log.File != "" {
		out = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   cfg.Log.File,
			MaxSize:    cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAge:     cfg.Log.MaxAgeDays,
			Compress:   true,
		})
	}
	return log.New(out, "", log.LstdFlags)
}

// InitCmd returns the init command.
func InitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default smartpos.yaml in the current directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath
			if path == "" {
				path = "smartpos.yaml"
			}
			if err := config.WriteDefault(path); err != nil {
				return err
			}
			fmt.Printf("✓ Wrote %s\n", path)
			fmt.Println("Set branch_id and sync.endpoint, then run `smartpos daemon`.")
			return nil
		},
	}
}
