/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/allbin/go-serialhost/internal/logging"
	"github.com/allbin/go-serialhost/internal/tui/components"
	"github.com/allbin/go-serialhost/internal/tui/models"
	"github.com/allbin/go-serialhost/manager"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// listenCmd represents the listen command
var listenCmd = &cobra.Command{
	Use:   "listen <port>",
	Short: "Listen for data on a serial port with real-time display",
	Long: `Open a serial port, start a background listener on it and show every
chunk it reports.

On a terminal the data is shown in a full screen view with timestamps,
ASCII and hex display modes and RX/TX counters. When stdout is not a
terminal, or with --plain, each chunk is printed as one line instead.

Example usage:
  serialhost listen /dev/ttyUSB0
  serialhost listen /dev/ttyUSB0 --baud 9600
  serialhost listen COM3 --policy windowed --window 500ms
  serialhost listen /dev/ttyUSB0 --plain > log.txt`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		portPath := args[0]

		noTimestamps, _ := cmd.Flags().GetBool("no-timestamps")
		showIndicators, _ := cmd.Flags().GetBool("show-indicators")
		rawMode, _ := cmd.Flags().GetBool("raw")
		plain, _ := cmd.Flags().GetBool("plain")

		listen, err := listenFlags(cmd)
		if err != nil {
			return err
		}

		display := components.DisplayMode{
			ShowASCII:      true,
			ShowTimestamps: !noTimestamps && !rawMode,
			ShowIndicators: showIndicators && !rawMode,
		}

		if plain || !logging.IsTerminal() {
			return runListenPlain(cmd.Context(), portPath, display, listen)
		}
		return runSessionTUI(cmd.Context(), portPath, models.Options{Display: display, Listen: listen})
	},
}

func init() {
	rootCmd.AddCommand(listenCmd)

	addListenFlags(listenCmd)
	listenCmd.Flags().Bool("no-timestamps", false, "Hide timestamps from output")
	listenCmd.Flags().Bool("show-indicators", false, "Show RX/TX indicators")
	listenCmd.Flags().Bool("raw", false, "Raw output mode: no timestamps, no indicators")
	listenCmd.Flags().Bool("plain", false, "Print one line per chunk instead of the full screen view")
}

// addListenFlags registers the listener overrides shared by listen,
// connect and capture
func addListenFlags(cmd *cobra.Command) {
	cmd.Flags().String("policy", "", "Delivery policy: immediate, windowed (default from config)")
	cmd.Flags().Duration("window", 0, "Flush interval of the windowed policy")
	cmd.Flags().Int("chunk-size", 0, "Largest single read (default from config)")
	cmd.Flags().Duration("poll-interval", 0, "Pause between listener reads (default from config)")
}

func listenFlags(cmd *cobra.Command) (manager.ListenOptions, error) {
	policyName, _ := cmd.Flags().GetString("policy")
	window, _ := cmd.Flags().GetDuration("window")
	size, _ := cmd.Flags().GetInt("chunk-size")
	poll, _ := cmd.Flags().GetDuration("poll-interval")

	policy, err := manager.ParsePolicy(policyName)
	if err != nil {
		return manager.ListenOptions{}, err
	}
	return manager.ListenOptions{
		Size:         size,
		PollInterval: poll,
		Policy:       policy,
		Window:       window,
	}, nil
}

// runSessionTUI runs the full screen view for one port. Logging goes to
// the log file only; stderr belongs to the view.
func runSessionTUI(ctx context.Context, portPath string, opts models.Options) error {
	config, err := settings.PortConfig()
	if err != nil {
		return err
	}
	opts.Config = config

	relay := models.NewRelay(settings.EventPrefix, portPath)
	var quiet []manager.Option
	if settings.LogFile == "" {
		quiet = append(quiet, manager.WithLogger(zerolog.Nop()))
	}
	mgr, err := newManager(relay, quiet...)
	if err != nil {
		return err
	}
	defer mgr.CloseAll(context.WithoutCancel(ctx))

	m := models.NewSerialModel(ctx, mgr, portPath, opts)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))
	relay.Attach(p.Send)

	_, err = p.Run()
	if err != nil && ctx.Err() != nil {
		// interrupted
		return nil
	}
	return err
}

func runListenPlain(ctx context.Context, portPath string, display components.DisplayMode, listen manager.ListenOptions) error {
	formatter := components.NewDataFormatter(display)
	disconnected := make(chan string, 1)

	readEvent := manager.ReadEvent(settings.EventPrefix, portPath)
	disconnectEvent := manager.DisconnectEvent(settings.EventPrefix, portPath)
	sink := manager.SinkFunc(func(event string, payload any) error {
		switch event {
		case readEvent:
			data := payload.(manager.ReadData)
			_, err := fmt.Fprintln(os.Stdout, formatter.FormatMessage(components.DataReceivedMsg{
				Timestamp: time.Now(),
				Data:      data.Data,
			}))
			return err
		case disconnectEvent:
			select {
			case disconnected <- payload.(string):
			default:
			}
		}
		return nil
	})

	mgr, err := newManager(sink)
	if err != nil {
		return err
	}
	defer mgr.CloseAll(context.WithoutCancel(ctx))

	if err := mgr.Open(ctx, portPath); err != nil {
		return err
	}
	if err := mgr.StartListening(ctx, portPath, listen); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Listening on %s, press Ctrl+C to stop\n", portPath)

	select {
	case <-ctx.Done():
		return nil
	case msg := <-disconnected:
		return fmt.Errorf("%s", msg)
	}
}
