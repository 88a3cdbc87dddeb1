/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"fmt"

	serial "github.com/allbin/go-serialhost"
	"github.com/allbin/go-serialhost/internal/hostcmd"
	"github.com/allbin/go-serialhost/manager"
	"github.com/spf13/cobra"
)

// rtsCmd represents the rts command
var rtsCmd = &cobra.Command{
	Use:   "rts <port> <state>",
	Short: "Control RTS (Request To Send) signal",
	Long: `Manually set the RTS (Request To Send) signal state.

The RTS signal can be used for software flow control or custom signaling.

Examples:
  serialhost rts /dev/ttyUSB0 high
  serialhost rts /dev/ttyUSB0 low
  serialhost rts /dev/ttyUSB0 on
  serialhost rts /dev/ttyUSB0 off

Valid states: high, low, on, off, true, false, 1, 0`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setLine(cmd, args[0], args[1], "RTS",
			(*manager.Manager).WriteRequestToSend,
			func(s serial.ModemSignals) bool { return s.RTS })
	},
}

// setLine drives an output line and reports the level read back
func setLine(cmd *cobra.Command, portPath, stateArg, name string,
	set func(*manager.Manager, context.Context, string, bool) error,
	pick func(serial.ModemSignals) bool,
) error {
	state, err := hostcmd.ParseSignalState(stateArg)
	if err != nil {
		return err
	}

	return withPort(cmd, portPath, func(ctx context.Context, mgr *manager.Manager) error {
		if err := set(mgr, ctx, portPath, state); err != nil {
			return fmt.Errorf("failed to set %s: %w", name, err)
		}

		current := state
		if signals, err := mgr.ModemSignals(ctx, portPath); err != nil {
			logger.Warn().Err(err).Msgf("Could not verify %s state", name)
		} else {
			current = pick(signals)
		}

		fmt.Printf("%s set to %s on %s\n", name, hostcmd.FormatSignalState(current), portPath)
		return nil
	})
}

func init() {
	rootCmd.AddCommand(rtsCmd)
}
