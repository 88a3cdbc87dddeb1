/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"

	"github.com/allbin/go-serialhost/internal/tui/components"
	"github.com/allbin/go-serialhost/internal/tui/models"
	"github.com/spf13/cobra"
)

var lineEndings = map[string]string{
	"none": "",
	"lf":   "\n",
	"cr":   "\r",
	"crlf": "\r\n",
}

// connectCmd represents the connect command
var connectCmd = &cobra.Command{
	Use:   "connect <port>",
	Short: "Connect to a serial port with bidirectional communication",
	Long: `Open a serial port in an interactive terminal.

Incoming data is shown as it arrives, like listen. Press i to type into
the send line and Enter to write it to the port; Tab switches the line
between ASCII and hex input and the arrow keys walk the send history.
Sent chunks are marked pending until the write completes.

Example usage:
  serialhost connect /dev/ttyUSB0
  serialhost connect /dev/ttyUSB0 --baud 9600 --line-ending crlf`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		lineEnding, _ := cmd.Flags().GetString("line-ending")
		ending, ok := lineEndings[lineEnding]
		if !ok {
			return fmt.Errorf("invalid line ending %q (valid: none, lf, cr, crlf)", lineEnding)
		}

		listen, err := listenFlags(cmd)
		if err != nil {
			return err
		}

		return runSessionTUI(cmd.Context(), args[0], models.Options{
			Interactive: true,
			LineEnding:  ending,
			Listen:      listen,
			Display: components.DisplayMode{
				ShowHex:        true,
				ShowASCII:      true,
				ShowTimestamps: true,
				ShowIndicators: true,
			},
		})
	},
}

func init() {
	rootCmd.AddCommand(connectCmd)

	addListenFlags(connectCmd)
	connectCmd.Flags().String("line-ending", "lf", "Appended to ASCII sends: none, lf, cr, crlf")
}
