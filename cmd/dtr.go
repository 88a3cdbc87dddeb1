/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	serial "github.com/allbin/go-serialhost"
	"github.com/allbin/go-serialhost/manager"
	"github.com/spf13/cobra"
)

// dtrCmd represents the dtr command
var dtrCmd = &cobra.Command{
	Use:   "dtr <port> <state>",
	Short: "Control DTR (Data Terminal Ready) signal",
	Long: `Manually set the DTR (Data Terminal Ready) signal state.

The DTR signal indicates that the terminal is ready for communication.
Many boards wire DTR to their reset line.

Examples:
  serialhost dtr /dev/ttyUSB0 high
  serialhost dtr /dev/ttyUSB0 off

Valid states: high, low, on, off, true, false, 1, 0`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setLine(cmd, args[0], args[1], "DTR",
			(*manager.Manager).WriteDataTerminalReady,
			func(s serial.ModemSignals) bool { return s.DTR })
	},
}

func init() {
	rootCmd.AddCommand(dtrCmd)
}
