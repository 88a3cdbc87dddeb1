/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"fmt"

	"github.com/allbin/go-serialhost/internal/hostcmd"
	"github.com/allbin/go-serialhost/manager"
	"github.com/spf13/cobra"
)

// signalsCmd represents the signals command
var signalsCmd = &cobra.Command{
	Use:   "signals <port>",
	Short: "Display current modem signal states",
	Long: `Display the current state of all modem control signals.

Shows the state of CTS, DSR, RI, DCD, RTS, and DTR signals for the specified port,
and the number of bytes waiting in the driver's input and output queues.

Examples:
  serialhost signals /dev/ttyUSB0
  serialhost signals COM3

Signal meanings:
  CTS - Clear To Send (input)
  DSR - Data Set Ready (input)
  RI  - Ring Indicator (input)
  DCD - Data Carrier Detect (input)
  RTS - Request To Send (output)
  DTR - Data Terminal Ready (output)`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		portPath := args[0]

		return withPort(cmd, portPath, func(ctx context.Context, mgr *manager.Manager) error {
			signals, err := mgr.ModemSignals(ctx, portPath)
			if err != nil {
				return fmt.Errorf("failed to read modem signals: %w", err)
			}

			fmt.Printf("Modem Signals for %s:\n\n", portPath)
			fmt.Printf("  CTS (Clear To Send):       %s\n", hostcmd.FormatSignalState(signals.CTS))
			fmt.Printf("  DSR (Data Set Ready):      %s\n", hostcmd.FormatSignalState(signals.DSR))
			fmt.Printf("  RI  (Ring Indicator):      %s\n", hostcmd.FormatSignalState(signals.RI))
			fmt.Printf("  DCD (Data Carrier Detect): %s\n", hostcmd.FormatSignalState(signals.DCD))
			fmt.Printf("  RTS (Request To Send):     %s\n", hostcmd.FormatSignalState(signals.RTS))
			fmt.Printf("  DTR (Data Terminal Ready): %s\n", hostcmd.FormatSignalState(signals.DTR))

			toRead, err := mgr.BytesToRead(ctx, portPath)
			if err != nil {
				return err
			}
			toWrite, err := mgr.BytesToWrite(ctx, portPath)
			if err != nil {
				return err
			}
			fmt.Printf("\nQueued: %d to read, %d to write\n", toRead, toWrite)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(signalsCmd)
}
