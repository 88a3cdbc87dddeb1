// Package config loads serialhost settings from a config file, the
// environment and command line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	serial "github.com/allbin/go-serialhost"
	"github.com/allbin/go-serialhost/internal/logging"
	"github.com/allbin/go-serialhost/manager"
	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	EnvPrefix = "SERIALHOST"
	fileName  = "serialhost"
)

type Settings struct {
	LogLevel      string        `mapstructure:"log_level" validate:"oneof=none error warn info debug"`
	LogFile       string        `mapstructure:"log_file"`
	LogMaxSizeMB  int           `mapstructure:"log_max_size_mb" validate:"gte=0"`
	LogMaxBackups int           `mapstructure:"log_max_backups" validate:"gte=0"`
	EventPrefix   string        `mapstructure:"event_prefix" validate:"required"`
	LockTimeout   time.Duration `mapstructure:"lock_timeout" validate:"gte=0"`

	Port   PortSettings   `mapstructure:"port"`
	Listen ListenSettings `mapstructure:"listen"`
}

// PortSettings are the defaults applied when a port is opened
type PortSettings struct {
	BaudRate    int           `mapstructure:"baud_rate" validate:"gt=0"`
	DataBits    int           `mapstructure:"data_bits" validate:"min=5,max=8"`
	Parity      string        `mapstructure:"parity" validate:"oneof=none odd even n o e"`
	StopBits    int           `mapstructure:"stop_bits" validate:"oneof=1 2"`
	FlowControl string        `mapstructure:"flow_control" validate:"oneof=none software hardware xonxoff rtscts"`
	Timeout     time.Duration `mapstructure:"timeout" validate:"gte=0"`
}

// ListenSettings are the defaults for background listeners. A negative
// poll interval disables the pause between reads.
type ListenSettings struct {
	ChunkSize    int           `mapstructure:"chunk_size" validate:"gt=0,max=65536"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Policy       string        `mapstructure:"policy" validate:"oneof=immediate windowed"`
	Window       time.Duration `mapstructure:"window" validate:"gte=0"`
}

// SetDefaults registers the default of every key on v
func SetDefaults(v *viper.Viper) {
	def := serial.DefaultConfig()

	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "")
	v.SetDefault("log_max_size_mb", 10)
	v.SetDefault("log_max_backups", 3)
	v.SetDefault("event_prefix", manager.DefaultEventPrefix)
	v.SetDefault("lock_timeout", time.Duration(0))

	v.SetDefault("port.baud_rate", def.BaudRate)
	v.SetDefault("port.data_bits", int(def.DataBits))
	v.SetDefault("port.parity", def.Parity.String())
	v.SetDefault("port.stop_bits", int(def.StopBits))
	v.SetDefault("port.flow_control", def.FlowControl.String())
	v.SetDefault("port.timeout", def.Timeout)

	v.SetDefault("listen.chunk_size", manager.DefaultChunkSize)
	v.SetDefault("listen.poll_interval", manager.DefaultPollInterval)
	v.SetDefault("listen.policy", manager.DeliverImmediate.String())
	v.SetDefault("listen.window", time.Duration(0))
}

// flagKeys maps persistent flag names to settings keys
var flagKeys = map[string]string{
	"log-level":    "log_level",
	"log-file":     "log_file",
	"event-prefix": "event_prefix",
	"baud":         "port.baud_rate",
	"data-bits":    "port.data_bits",
	"parity":       "port.parity",
	"stop-bits":    "port.stop_bits",
	"flow-control": "port.flow_control",
	"timeout":      "port.timeout",
}

// BindFlags binds every known flag present in flags to its settings key
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		flag := flags.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}
	return nil
}

// Load reads configFile, or serialhost.{yaml,toml,json} from the usual
// locations when it is empty, then the SERIALHOST_ environment. A missing
// default config file is not an error.
func Load(v *viper.Viper, configFile string) (Settings, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(fileName)
		for _, dir := range searchPaths() {
			v.AddConfigPath(dir)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return Settings{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	return Decode(v)
}

func searchPaths() []string {
	var dirs []string
	if dir, err := os.UserConfigDir(); err == nil {
		dirs = append(dirs, filepath.Join(dir, fileName))
	}
	return append(dirs, ".")
}

// Decode unmarshals and validates the current state of v
func Decode(v *viper.Viper) (Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every field against its constraints
func (s Settings) Validate() error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg := fmt.Sprintf("%s fails %q", fe.Namespace(), fe.Tag())
		if fe.Param() != "" {
			msg = fmt.Sprintf("%s fails %s=%s", fe.Namespace(), fe.Tag(), fe.Param())
		}
		msgs = append(msgs, fmt.Sprintf("%s (got %v)", msg, fe.Value()))
	}
	return fmt.Errorf("%w: %s", serial.ErrInvalidConfig, strings.Join(msgs, "; "))
}

// PortConfig converts the port defaults to a serial.Config
func (s Settings) PortConfig() (serial.Config, error) {
	p := s.Port
	parity, err := serial.ParseParity(p.Parity)
	if err != nil {
		return serial.Config{}, err
	}
	flow, err := serial.ParseFlowControl(p.FlowControl)
	if err != nil {
		return serial.Config{}, err
	}
	dataBits, err := serial.ParseDataBits(strconv.Itoa(p.DataBits))
	if err != nil {
		return serial.Config{}, err
	}
	stopBits, err := serial.ParseStopBits(strconv.Itoa(p.StopBits))
	if err != nil {
		return serial.Config{}, err
	}

	return serial.NewConfig(
		serial.WithBaudRate(p.BaudRate),
		serial.WithDataBits(dataBits),
		serial.WithParity(parity),
		serial.WithStopBits(stopBits),
		serial.WithFlowControl(flow),
		serial.WithTimeout(p.Timeout),
	)
}

// ListenOptions converts the listener defaults
func (s Settings) ListenOptions() (manager.ListenOptions, error) {
	policy, err := manager.ParsePolicy(s.Listen.Policy)
	if err != nil {
		return manager.ListenOptions{}, err
	}
	return manager.ListenOptions{
		Size:         s.Listen.ChunkSize,
		PollInterval: s.Listen.PollInterval,
		Policy:       policy,
		Window:       s.Listen.Window,
	}, nil
}

func (s Settings) LoggingOptions() logging.Options {
	return logging.Options{
		Level:      s.LogLevel,
		File:       s.LogFile,
		MaxSizeMB:  s.LogMaxSizeMB,
		MaxBackups: s.LogMaxBackups,
	}
}

// Watch calls onChange with the new settings whenever the config file
// changes. Changes that fail to decode or validate go to onError.
func Watch(v *viper.Viper, onChange func(Settings), onError func(error)) {
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		s, err := Decode(v)
		if err != nil {
			onError(fmt.Errorf("reloading %s: %w", e.Name, err))
			return
		}
		onChange(s)
	})
	v.WatchConfig()
}
