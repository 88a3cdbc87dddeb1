/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/allbin/go-serialhost/manager"
	"github.com/spf13/cobra"
)

// breakCmd represents the break command
var breakCmd = &cobra.Command{
	Use:   "break <port>",
	Short: "Hold the line in the break condition",
	Long: `Drive the transmit line to the break condition for --duration, then
release it. Some bootloaders and LIN/DMX devices use a break as a reset
or frame marker.

Examples:
  serialhost break /dev/ttyUSB0
  serialhost break /dev/ttyUSB0 --duration 500ms`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		portPath := args[0]
		duration, _ := cmd.Flags().GetDuration("duration")

		return withPort(cmd, portPath, func(ctx context.Context, mgr *manager.Manager) error {
			if err := mgr.SetBreak(ctx, portPath); err != nil {
				return err
			}

			timer := time.NewTimer(duration)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
			}

			if err := mgr.ClearBreak(context.WithoutCancel(ctx), portPath); err != nil {
				return err
			}
			fmt.Printf("Sent break on %s for %v\n", portPath, duration)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(breakCmd)

	breakCmd.Flags().Duration("duration", 250*time.Millisecond, "How long to hold the break")
}
