/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/allbin/go-serialhost/internal/config"
	"github.com/allbin/go-serialhost/internal/hostcmd"
	"github.com/spf13/cobra"
)

// shellCmd represents the shell command
var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Run port commands from stdin as JSON lines",
	Long: `Read one command per line from stdin and write one JSON result per
command to stdout. Listener events are written to stdout as JSON lines
as they happen, so a host program can drive serialhost over a pipe.

The log level follows edits to the config file while the shell runs.

The help command lists every command. Example session:
  open /dev/ttyUSB0 9600
  listen /dev/ttyUSB0 250ms 1024 windowed
  write /dev/ttyUSB0 AT
  close-all`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out := hostcmd.NewOutput(os.Stdout)

		mgr, err := newManager(out)
		if err != nil {
			return err
		}
		defer func() {
			if err := mgr.CloseAll(context.WithoutCancel(ctx)); err != nil {
				logger.Error().Err(err).Msg("Failed to close ports")
			}
		}()

		if path := v.ConfigFileUsed(); path != "" {
			config.Watch(v, func(s config.Settings) {
				if err := logLevel.Set(s.LogLevel); err != nil {
					logger.Warn().Err(err).Msg("Ignoring log level from config")
					return
				}
				logger.Info().Str("level", s.LogLevel).Msg("Log level reloaded")
			}, func(err error) {
				logger.Warn().Err(err).Msg("Config reload failed")
			})
			logger.Debug().Str("file", path).Msg("Watching config file")
		}

		done := make(chan error, 1)
		go func() {
			done <- hostcmd.New(mgr).Serve(ctx, os.Stdin, out)
		}()

		select {
		case err := <-done:
			if err != nil {
				return fmt.Errorf("shell: %w", err)
			}
			return nil
		case <-ctx.Done():
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(shellCmd)
}
