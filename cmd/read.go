/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/allbin/go-serialhost/manager"
	"github.com/spf13/cobra"
)

// readCmd represents the read command
var readCmd = &cobra.Command{
	Use:   "read <port>",
	Short: "Perform one bounded read",
	Long: `Open the port, wait up to the read timeout for data and print what
arrived. Nothing is printed when the timeout expires first.

Examples:
  serialhost read /dev/ttyUSB0
  serialhost read /dev/ttyUSB0 --read-timeout 2s --size 64 --hex`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		portPath := args[0]
		size, _ := cmd.Flags().GetInt("size")
		timeout, _ := cmd.Flags().GetDuration("read-timeout")
		hexOut, _ := cmd.Flags().GetBool("hex")

		return withPort(cmd, portPath, func(ctx context.Context, mgr *manager.Manager) error {
			data, err := mgr.Read(ctx, portPath, manager.ReadOptions{Timeout: timeout, Size: size})
			if err != nil {
				return err
			}
			if len(data) == 0 {
				fmt.Fprintln(os.Stderr, "No data within the read timeout")
				return nil
			}
			if hexOut {
				fmt.Printf("% X\n", data)
				return nil
			}
			_, err = os.Stdout.Write(data)
			return err
		})
	},
}

func init() {
	rootCmd.AddCommand(readCmd)

	readCmd.Flags().Int("size", manager.DefaultChunkSize, "Largest number of bytes to read")
	readCmd.Flags().Duration("read-timeout", 0, "Timeout for this read (default: the port timeout)")
	readCmd.Flags().BoolP("hex", "x", false, "Print the bytes as hex")
}
