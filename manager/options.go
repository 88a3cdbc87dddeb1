package manager

import (
	"time"

	serial "github.com/allbin/go-serialhost"
	"github.com/rs/zerolog"
)

// Opener opens the OS handle for a port
type Opener func(name string, config serial.Config) (serial.Port, error)

func openSerial(name string, config serial.Config) (serial.Port, error) {
	return serial.Open(name, serial.WithConfig(config))
}

type Option func(*Manager)

func WithLogger(log zerolog.Logger) Option {
	return func(m *Manager) { m.log = log }
}

// WithOpener replaces the driver used by Open
func WithOpener(open Opener) Option {
	return func(m *Manager) { m.open = open }
}

// WithLockTimeout bounds how long a command waits for the registry lock.
// Zero waits until the command's context is done.
func WithLockTimeout(d time.Duration) Option {
	return func(m *Manager) { m.lockTimeout = d }
}

func WithEventPrefix(prefix string) Option {
	return func(m *Manager) { m.prefix = prefix }
}

// WithPortDefaults sets the configuration Open starts from
func WithPortDefaults(config serial.Config) Option {
	return func(m *Manager) { m.portDefaults = config }
}

// WithListenDefaults sets the values used for zero ListenOptions fields
func WithListenDefaults(opts ListenOptions) Option {
	return func(m *Manager) { m.listenDefaults = opts }
}

// WithPortKind restricts AvailablePorts to one connection class
func WithPortKind(kind serial.PortKind) Option {
	return func(m *Manager) { m.kind = kind }
}
