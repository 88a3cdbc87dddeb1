/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	serial "github.com/allbin/go-serialhost"
	"github.com/allbin/go-serialhost/internal/hostcmd"
	"github.com/allbin/go-serialhost/manager"
	"github.com/spf13/cobra"
)

var (
	monitorSignals  []string
	monitorInterval time.Duration
)

// monitorCmd represents the monitor command
var monitorCmd = &cobra.Command{
	Use:   "monitor <port>",
	Short: "Monitor modem signal changes",
	Long: `Monitor modem control input lines and report when they change.

The lines are sampled every --interval. Press Ctrl+C to stop.

Examples:
  serialhost monitor /dev/ttyUSB0
  serialhost monitor /dev/ttyUSB0 --signals cts,dsr
  serialhost monitor /dev/ttyUSB0 --signals dcd --interval 10ms

Available signals: cts, dsr, ri, dcd`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		portPath := args[0]

		watched, err := parseSignalNames(monitorSignals)
		if err != nil {
			return err
		}
		if monitorInterval <= 0 {
			return fmt.Errorf("interval must be positive")
		}

		return withPort(cmd, portPath, func(ctx context.Context, mgr *manager.Manager) error {
			fmt.Printf("Monitoring signals on %s (signals: %s)\n", portPath, strings.Join(monitorSignals, ", "))
			fmt.Println("Press Ctrl+C to stop")

			last, err := mgr.ModemSignals(ctx, portPath)
			if err != nil {
				return fmt.Errorf("failed to read initial signals: %w", err)
			}
			printSignals("Initial state", last, watched)

			ticker := time.NewTicker(monitorInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					fmt.Println("\nStopping monitor...")
					return nil
				case <-ticker.C:
				}

				current, err := mgr.ModemSignals(ctx, portPath)
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					return fmt.Errorf("failed to read signals: %w", err)
				}
				if changed := changedSignals(last, current, watched); len(changed) > 0 {
					printSignals("Signal change detected", current, changed)
				}
				last = current
			}
		})
	},
}

// modemLine is one input line of ModemSignals
type modemLine struct {
	name string
	get  func(serial.ModemSignals) bool
}

var modemLines = map[string]modemLine{
	"cts": {"CTS", func(s serial.ModemSignals) bool { return s.CTS }},
	"dsr": {"DSR", func(s serial.ModemSignals) bool { return s.DSR }},
	"ri":  {"RI", func(s serial.ModemSignals) bool { return s.RI }},
	"dcd": {"DCD", func(s serial.ModemSignals) bool { return s.DCD }},
}

func parseSignalNames(names []string) ([]modemLine, error) {
	if len(names) == 0 {
		names = []string{"cts", "dsr", "ri", "dcd"}
	}
	lines := make([]modemLine, 0, len(names))
	for _, name := range names {
		line, ok := modemLines[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return nil, fmt.Errorf("unknown signal: %s (valid: cts, dsr, ri, dcd)", name)
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func changedSignals(before, after serial.ModemSignals, watched []modemLine) []modemLine {
	var changed []modemLine
	for _, line := range watched {
		if line.get(before) != line.get(after) {
			changed = append(changed, line)
		}
	}
	return changed
}

func printSignals(title string, signals serial.ModemSignals, lines []modemLine) {
	fmt.Printf("[%s] %s:\n", time.Now().Format("15:04:05"), title)
	for _, line := range lines {
		fmt.Printf("  %-4s %s\n", line.name+":", hostcmd.FormatSignalState(line.get(signals)))
	}
	fmt.Println()
}

func init() {
	rootCmd.AddCommand(monitorCmd)

	monitorCmd.Flags().StringSliceVarP(&monitorSignals, "signals", "s", []string{"cts", "dsr", "ri", "dcd"},
		"Signals to monitor (comma-separated: cts,dsr,ri,dcd)")
	monitorCmd.Flags().DurationVarP(&monitorInterval, "interval", "i", 50*time.Millisecond,
		"How often the lines are sampled")
}
