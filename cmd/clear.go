/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"fmt"

	serial "github.com/allbin/go-serialhost"
	"github.com/allbin/go-serialhost/manager"
	"github.com/spf13/cobra"
)

// clearCmd represents the clear command
var clearCmd = &cobra.Command{
	Use:   "clear <port> [input|output|all]",
	Short: "Discard the driver's buffered data",
	Long: `Discard data waiting in the driver's input queue, output queue or both.
The default is both.

Examples:
  serialhost clear /dev/ttyUSB0
  serialhost clear /dev/ttyUSB0 input`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		portPath := args[0]
		buffer := serial.ClearAll
		if len(args) == 2 {
			b, err := serial.ParseClearBuffer(args[1])
			if err != nil {
				return err
			}
			buffer = b
		}

		return withPort(cmd, portPath, func(ctx context.Context, mgr *manager.Manager) error {
			pending, err := mgr.BytesToRead(ctx, portPath)
			if err != nil {
				return err
			}
			if err := mgr.ClearBuffer(ctx, portPath, buffer); err != nil {
				return err
			}
			fmt.Printf("Cleared %s buffer on %s (%d bytes were waiting to be read)\n", buffer, portPath, pending)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(clearCmd)
}
