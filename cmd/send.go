/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/allbin/go-serialhost/internal/hostcmd"
	"github.com/allbin/go-serialhost/internal/logging"
	"github.com/allbin/go-serialhost/internal/tui/components"
	"github.com/allbin/go-serialhost/internal/tui/styles"
	"github.com/allbin/go-serialhost/manager"
	"github.com/spf13/cobra"
)

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send [data] <port>",
	Short: "Send data to a serial port",
	Long: `Send data to a serial port.

Data can be provided as:
- Command line argument: serialhost send "Hello World" /dev/ttyUSB0
- From stdin (pipe): echo "test data" | serialhost send /dev/ttyUSB0
- Interactive mode: serialhost send /dev/ttyUSB0 (prompts for input)

With --hex the data is read as hex bytes. With --reply the command waits
for one bounded read after the write and prints what came back.

Example usage:
  serialhost send "Hello World" /dev/ttyUSB0
  serialhost send "AT+GMR" /dev/ttyUSB0 --newline --reply
  serialhost send "02 06 00 03" /dev/ttyUSB0 --hex
  echo "test" | serialhost send /dev/ttyUSB0`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var data, portPath string
		if len(args) == 1 {
			portPath = args[0]
			input, err := readInput()
			if err != nil {
				return err
			}
			data = input
		} else {
			data, portPath = args[0], args[1]
		}

		addNewline, _ := cmd.Flags().GetBool("newline")
		hexMode, _ := cmd.Flags().GetBool("hex")
		timeout, _ := cmd.Flags().GetDuration("send-timeout")
		reply, _ := cmd.Flags().GetBool("reply")

		payload := []byte(data)
		if hexMode {
			decoded, err := hostcmd.ParseHex(data)
			if err != nil {
				return fmt.Errorf("invalid hex data: %w", err)
			}
			payload = decoded
		} else if addNewline {
			payload = append(payload, '\n')
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()
		return withPort(cmd, portPath, func(_ context.Context, mgr *manager.Manager) error {
			return sendData(ctx, mgr, portPath, payload, reply)
		})
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().BoolP("newline", "n", false, "Add newline character to the end of data")
	sendCmd.Flags().BoolP("hex", "x", false, "Interpret data as hexadecimal (e.g., '48656c6c6f' for 'Hello')")
	sendCmd.Flags().Duration("send-timeout", 5*time.Second, "Give up if the port is busy for this long")
	sendCmd.Flags().BoolP("reply", "r", false, "Read and print one reply after sending")
}

// readInput takes the data from a pipe, or prompts for it on a terminal
func readInput() (string, error) {
	stat, err := os.Stdin.Stat()
	if err != nil || stat.Mode()&os.ModeCharDevice != 0 {
		return promptForData(), nil
	}
	stdinData, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return strings.TrimRight(string(stdinData), "\r\n"), nil
}

func promptForData() string {
	fmt.Print(styles.InfoStyle.Render("Enter data to send: "))

	scanner := bufio.NewScanner(os.Stdin)
	if scanner.Scan() {
		return scanner.Text()
	}
	return ""
}

func sendData(ctx context.Context, mgr *manager.Manager, portPath string, data []byte, reply bool) error {
	fancy := logging.IsTerminal()
	status := func(mark, format string, args ...any) {
		if fancy {
			mark = styles.SuccessStyle.Render(mark)
		}
		fmt.Printf(mark+" "+format+"\n", args...)
	}

	n, err := mgr.Write(ctx, portPath, data)
	if err != nil {
		return fmt.Errorf("failed to send data: %w", err)
	}
	status("✓", "Sent %d bytes to %s", n, portPath)

	preview := components.Printable(data)
	if len(preview) > 50 {
		preview = preview[:50] + "..."
	}
	status("·", "Data: %s", preview)

	if !reply {
		return nil
	}
	answer, err := mgr.Read(ctx, portPath, manager.ReadOptions{})
	if err != nil {
		return fmt.Errorf("failed to read reply: %w", err)
	}
	if len(answer) == 0 {
		status("·", "No reply within the read timeout")
		return nil
	}
	status("✓", "Reply (%d bytes): %s", len(answer), components.Printable(answer))
	return nil
}
