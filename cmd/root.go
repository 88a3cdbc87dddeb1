/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	serial "github.com/allbin/go-serialhost"
	"github.com/allbin/go-serialhost/internal/config"
	"github.com/allbin/go-serialhost/internal/logging"
	"github.com/allbin/go-serialhost/manager"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile   string
	v         = viper.New()
	settings  config.Settings
	logger    = zerolog.Nop()
	logLevel  logging.Level
	logCloser io.Closer
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "serialhost",
	Short: "Serial port host with background listeners",
	Long: `serialhost opens, configures and listens on serial ports.

Every command works through the same port manager a host program embeds:
ports are opened by name, background listeners report incoming data as
named events, and the shell command exposes the full command set as
JSON lines for scripting.

Configuration is read from serialhost.{yaml,toml,json} in the user config
directory or the working directory, then SERIALHOST_* environment
variables, then flags.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if logCloser != nil {
		logCloser.Close()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	def := serial.DefaultConfig()
	flags := rootCmd.PersistentFlags()

	flags.StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/serialhost/serialhost.yaml)")
	flags.String("log-level", "info", "Log level: none, error, warn, info, debug")
	flags.String("log-file", "", "Write logs to this file, rotated, instead of stderr")
	flags.String("event-prefix", manager.DefaultEventPrefix, "Prefix of listener event names")

	flags.IntP("baud", "b", def.BaudRate, "Baud rate")
	flags.Int("data-bits", int(def.DataBits), "Data bits: 5, 6, 7, 8")
	flags.String("parity", def.Parity.String(), "Parity: none, odd, even")
	flags.Int("stop-bits", int(def.StopBits), "Stop bits: 1, 2")
	flags.StringP("flow-control", "f", def.FlowControl.String(), "Flow control: none, software, hardware")
	flags.Duration("timeout", def.Timeout, "Read timeout")
}

func setup(cmd *cobra.Command, _ []string) error {
	if err := config.BindFlags(v, cmd.Flags()); err != nil {
		return err
	}
	s, err := config.Load(v, cfgFile)
	if err != nil {
		return err
	}
	settings = s

	opts := settings.LoggingOptions()
	opts.Threshold = &logLevel
	l, closer, err := logging.New(opts)
	if err != nil {
		return err
	}
	logger, logCloser = l, closer
	return nil
}

// newManager builds a manager from the loaded settings
func newManager(sink manager.EventSink, opts ...manager.Option) (*manager.Manager, error) {
	portDefaults, err := settings.PortConfig()
	if err != nil {
		return nil, err
	}
	listenDefaults, err := settings.ListenOptions()
	if err != nil {
		return nil, err
	}

	base := []manager.Option{
		manager.WithLogger(logger),
		manager.WithEventPrefix(settings.EventPrefix),
		manager.WithLockTimeout(settings.LockTimeout),
		manager.WithPortDefaults(portDefaults),
		manager.WithListenDefaults(listenDefaults),
	}
	return manager.New(sink, append(base, opts...)...), nil
}

// withPort opens port for the duration of fn
func withPort(cmd *cobra.Command, port string, fn func(ctx context.Context, mgr *manager.Manager) error) error {
	mgr, err := newManager(nil)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if err := mgr.Open(ctx, port); err != nil {
		return err
	}
	defer func() {
		if err := mgr.Close(context.WithoutCancel(ctx), port); err != nil {
			logger.Warn().Err(err).Str("port", port).Msg("Failed to close port")
		}
	}()
	return fn(ctx, mgr)
}
