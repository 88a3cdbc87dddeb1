/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/allbin/go-serialhost/internal/hostcmd"
	"github.com/allbin/go-serialhost/manager"
	"github.com/spf13/cobra"
)

// captureCmd represents the capture command
var captureCmd = &cobra.Command{
	Use:   "capture <port> <output-file>",
	Short: "Capture serial data to a file",
	Long: `Capture incoming serial data to a file for later parsing.

A background listener collects the data and writes it to the output file,
batched by the windowed policy unless --policy says otherwise. With --json
every listener event is written as one JSON line instead of raw bytes.
Runs until interrupted (Ctrl+C) or the device disconnects.

The output file is opened in append mode, allowing you to resume captures
without overwriting existing data.

Example usage:
  serialhost capture /dev/ttyUSB0 data.log
  serialhost capture /dev/ttyUSB0 output.txt --baud 9600
  serialhost capture /dev/ttyUSB0 capture.log --console
  serialhost capture /dev/ttyUSB0 events.jsonl --json --window 1s`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		showConsole, _ := cmd.Flags().GetBool("console")
		jsonLines, _ := cmd.Flags().GetBool("json")

		listen, err := listenFlags(cmd)
		if err != nil {
			return err
		}
		if listen.Policy == manager.DeliverDefault {
			listen.Policy = manager.DeliverWindowed
		}

		return runCapture(cmd.Context(), args[0], args[1], listen, showConsole, jsonLines)
	},
}

func init() {
	rootCmd.AddCommand(captureCmd)

	addListenFlags(captureCmd)
	captureCmd.Flags().BoolP("console", "c", false, "Display incoming data on console while capturing")
	captureCmd.Flags().Bool("json", false, "Write listener events as JSON lines")
}

// captureSink writes read events to a file and reports the disconnect
type captureSink struct {
	readEvent       string
	disconnectEvent string
	out             io.Writer
	events          *hostcmd.Output
	console         io.Writer
	disconnected    chan string
}

func (s *captureSink) Emit(event string, payload any) error {
	switch event {
	case s.readEvent:
		data := payload.(manager.ReadData)
		if s.console != nil {
			s.console.Write(data.Data)
		}
		if s.events != nil {
			return s.events.Emit(event, payload)
		}
		_, err := s.out.Write(data.Data)
		return err

	case s.disconnectEvent:
		select {
		case s.disconnected <- payload.(string):
		default:
		}
		if s.events != nil {
			return s.events.Emit(event, payload)
		}
	}
	return nil
}

func runCapture(ctx context.Context, portPath, outputPath string, listen manager.ListenOptions, showConsole, jsonLines bool) error {
	file, err := os.OpenFile(outputPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open output file: %w", err)
	}
	defer file.Close()

	sink := &captureSink{
		readEvent:       manager.ReadEvent(settings.EventPrefix, portPath),
		disconnectEvent: manager.DisconnectEvent(settings.EventPrefix, portPath),
		out:             file,
		disconnected:    make(chan string, 1),
	}
	if jsonLines {
		sink.events = hostcmd.NewOutput(file)
	}
	if showConsole {
		sink.console = os.Stdout
	}

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

	fmt.Fprintf(os.Stderr, "Capturing data from %s to %s\n", portPath, outputPath)
	if showConsole {
		fmt.Fprintf(os.Stderr, "Console display enabled\n")
	}
	fmt.Fprintf(os.Stderr, "Press Ctrl+C to stop\n\n")

	startTime := time.Now()
	var result error
	select {
	case <-ctx.Done():
	case msg := <-sink.disconnected:
		result = fmt.Errorf("%s", msg)
	}

	// Stop the listener first so the byte count is final.
	if err := mgr.StopListening(context.WithoutCancel(ctx), portPath); err != nil {
		logger.Warn().Err(err).Str("port", portPath).Msg("Listener did not stop cleanly")
	}
	if stats, err := mgr.Stats(context.WithoutCancel(ctx), portPath); err == nil {
		fmt.Fprintf(os.Stderr, "\nCapture complete: %d bytes in %d events over %v\n",
			stats.BytesRead, stats.EventsEmitted, time.Since(startTime).Round(time.Millisecond))
	}
	return result
}
