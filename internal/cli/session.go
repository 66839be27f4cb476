package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MythicalCosmic/smart-pos/internal/wire"
)

// SessionCmd returns the session command.
func SessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage the terminal operating session",
	}
	cmd.AddCommand(sessionOpenCmd())
	cmd.AddCommand(sessionShowCmd())
	cmd.AddCommand(sessionCloseCmd())
	return cmd
}

func sessionOpenCmd() *cobra.Command {
	var shiftRef string

	cmd := &cobra.Command{
		Use:   "open [cashier]",
		Short: "Open a session for a cashier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := wire.Engine().OpenSession(cmd.Context(), args[0], shiftRef)
			if err != nil {
				return err
			}
			fmt.Printf("✓ Opened session %s for %s\n", session.ID, session.Cashier)
			return nil
		},
	}
	cmd.Flags().StringVar(&shiftRef, "shift", "", "shift reference")
	return cmd
}

func sessionShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the open session",
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := wire.Engine().CurrentSession(cmd.Context())
			if err != nil {
				return err
			}
			if session == nil {
				fmt.Println("No open session.")
				return nil
			}
			fmt.Printf("Session %s\n", session.ID)
			fmt.Printf("  Cashier: %s\n", session.Cashier)
			if session.ShiftRef != "" {
				fmt.Printf("  Shift:   %s\n", session.ShiftRef)
			}
			fmt.Printf("  Opened:  %s\n", session.OpenedAt.Local().Format("2006-01-02 15:04:05"))
			return nil
		},
	}
}

func sessionCloseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "close",
		Short: "Close the open session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := wire.Engine().CloseSession(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("✓ Session closed")
			return nil
		},
	}
}
