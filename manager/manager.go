// Package manager keeps the set of open serial ports for a host program.
//
// Every open port is a registry entry owning one serial.Port. A port may run
// one background listener at a time; the listener reads from a duplicate of
// the port's handle and reports what it reads to the host's EventSink under
// the names returned by ReadEvent and DisconnectEvent.
//
// Commands serialize on a single registry lock. Read and Write hold that
// lock while they block, so a slow read on one port delays commands on every
// other port by up to the read timeout. A foreground Read may run while a
// listener is active; the two consume the same input queue in no defined
// order.
package manager

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	serial "github.com/allbin/go-serialhost"
	"github.com/rs/zerolog"
)

// Manager is the command surface over the port registry
type Manager struct {
	reg  *registry
	sink EventSink
	log  zerolog.Logger
	open Opener

	lockTimeout    time.Duration
	prefix         string
	portDefaults   serial.Config
	listenDefaults ListenOptions
	kind           serial.PortKind

	available func(serial.PortKind) (map[string]map[string]string, error)
	probe     func(context.Context) (map[string]map[string]string, error)
}

// New returns an empty manager delivering listener events to sink. A nil
// sink discards events.
func New(sink EventSink, opts ...Option) *Manager {
	if sink == nil {
		sink = discardSink{}
	}
	m := &Manager{
		sink:           sink,
		log:            zerolog.Nop(),
		open:           openSerial,
		prefix:         DefaultEventPrefix,
		portDefaults:   serial.DefaultConfig(),
		listenDefaults: ListenOptions{PollInterval: DefaultPollInterval, Size: DefaultChunkSize},
		kind:           serial.KindUSB,
		available:      serial.AvailablePortsFiltered,
		probe:          serial.ProbePorts,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.reg = newRegistry(m.lockTimeout)
	return m
}

// EventPrefix returns the prefix used in event names
func (m *Manager) EventPrefix() string { return m.prefix }

// Open opens the port and registers it. opts are applied on top of the
// manager's port defaults.
func (m *Manager) Open(ctx context.Context, id string, opts ...serial.Option) error {
	config, err := serial.NewConfig(append([]serial.Option{serial.WithConfig(m.portDefaults)}, opts...)...)
	if err != nil {
		return portError("open", id, err)
	}

	err = m.reg.insert(ctx, id, func() (*record, error) {
		port, err := m.open(id, config)
		if err != nil {
			return nil, err
		}
		return &record{port: port, stats: newPortStats()}, nil
	})
	if err != nil {
		return portError("open", id, err)
	}

	m.log.Info().Str("port", id).Stringer("config", config).Msg("Serial port opened")
	return nil
}

// StartListening starts a background listener on the port. An active
// listener is stopped and joined first.
func (m *Manager) StartListening(ctx context.Context, id string, opts ListenOptions) error {
	if err := checkSize(opts.Size); err != nil {
		return portError("start listening", id, err)
	}
	err := m.reg.with(ctx, id, func(rec *record) error {
		var errs []error
		if old := rec.takeListener(); old != nil {
			if err := old.stop(); err != nil {
				errs = append(errs, err)
			}
		}
		if err := rec.joinRetired(); err != nil {
			errs = append(errs, err)
		}
		if err := errors.Join(errs...); err != nil {
			m.log.Error().Err(err).Str("port", id).Msg("Previous listener did not stop cleanly")
		}

		resolved := opts.resolve(m.listenDefaults, rec.port.Config().Timeout)

		handle, err := rec.port.Duplicate()
		if err != nil {
			return err
		}
		if handle.Config().Timeout != resolved.Timeout {
			if err := handle.SetTimeout(resolved.Timeout); err != nil {
				handle.Close()
				return err
			}
		}

		rec.listener = startListener(id, handle, resolved, m.sink, m.prefix, rec.stats, m.log)
		return nil
	})
	return portError("start listening", id, err)
}

// StopListening stops and joins the port's listener. Stopping a port that
// is not listening does nothing.
func (m *Manager) StopListening(ctx context.Context, id string) error {
	err := m.reg.with(ctx, id, func(rec *record) error {
		var errs []error
		if l := rec.takeListener(); l != nil {
			errs = append(errs, l.stop())
		}
		errs = append(errs, rec.joinRetired())
		return errors.Join(errs...)
	})
	return portError("stop listening", id, err)
}

// CancelRead signals the port's listener to stop and returns without
// waiting. The listener may still emit one event after CancelRead returns.
func (m *Manager) CancelRead(ctx context.Context, id string) error {
	err := m.reg.with(ctx, id, func(rec *record) error {
		if l := rec.takeListener(); l != nil {
			l.signal()
			rec.retired = append(rec.retired, l)
		}
		return nil
	})
	return portError("cancel read", id, err)
}

// ReadOptions overrides the port's settings for one Read
type ReadOptions struct {
	// Timeout replaces the port timeout for this read only
	Timeout time.Duration
	// Size is the largest number of bytes returned, DefaultChunkSize when zero
	Size int
}

// Read performs one bounded read. A read that times out returns an empty
// slice and no error. A timeout override that cannot be undone afterwards
// fails an otherwise successful read.
func (m *Manager) Read(ctx context.Context, id string, opts ReadOptions) ([]byte, error) {
	size := opts.Size
	if size <= 0 {
		size = DefaultChunkSize
	}
	if err := checkSize(size); err != nil {
		return nil, portError("read", id, err)
	}

	var data []byte
	err := m.reg.with(ctx, id, func(rec *record) (err error) {
		if opts.Timeout > 0 {
			prev := rec.port.Config().Timeout
			if prev != opts.Timeout {
				if err := rec.port.SetTimeout(opts.Timeout); err != nil {
					return err
				}
				defer func() {
					if rerr := rec.port.SetTimeout(prev); rerr != nil {
						m.log.Warn().Err(rerr).Str("port", id).Dur("timeout", prev).Msg("Failed to restore port timeout")
						if err == nil {
							err = fmt.Errorf("restoring timeout: %w", rerr)
						}
					}
				}()
			}
		}

		buf := make([]byte, size)
		n, rerr := rec.port.Read(buf)
		if errors.Is(rerr, serial.ErrTimeout) {
			data = []byte{}
			return nil
		}
		if rerr != nil {
			return rerr
		}
		rec.stats.bytesRead.Add(uint64(n))
		data = buf[:n]
		return nil
	})
	if err != nil {
		return nil, portError("read", id, err)
	}
	return data, nil
}

// ReadString is Read with the bytes decoded as UTF-8, replacing invalid
// sequences
func (m *Manager) ReadString(ctx context.Context, id string, opts ReadOptions) (string, error) {
	data, err := m.Read(ctx, id, opts)
	if err != nil {
		return "", err
	}
	return strings.ToValidUTF8(string(data), "�"), nil
}

// Write writes data to the port and returns the number of bytes written
func (m *Manager) Write(ctx context.Context, id string, data []byte) (int, error) {
	var n int
	err := m.reg.with(ctx, id, func(rec *record) error {
		var err error
		n, err = rec.port.Write(data)
		rec.stats.bytesWritten.Add(uint64(n))
		return err
	})
	return n, portError("write", id, err)
}

func (m *Manager) WriteString(ctx context.Context, id string, s string) (int, error) {
	return m.Write(ctx, id, []byte(s))
}

// Close stops the port's listener, removes the port and closes its handle.
// The port is removed even when its listener fails to join.
func (m *Manager) Close(ctx context.Context, id string) error {
	rec, err := m.reg.remove(ctx, id)
	if err != nil {
		return portError("close", id, err)
	}
	return portError("close", id, m.shutdown(id, rec))
}

// shutdown joins every listener of a removed record and closes its handle
func (m *Manager) shutdown(id string, rec *record) error {
	var errs []error
	if l := rec.takeListener(); l != nil {
		if err := l.stop(); err != nil {
			m.log.Error().Err(err).Str("port", id).Msg("Listener join failed")
			errs = append(errs, err)
		}
	}
	if err := rec.joinRetired(); err != nil {
		m.log.Error().Err(err).Str("port", id).Msg("Listener join failed")
		errs = append(errs, err)
	}
	if err := rec.port.Close(); err != nil {
		errs = append(errs, err)
	}

	m.log.Info().Str("port", id).Msg("Serial port closed")
	return errors.Join(errs...)
}

// ForceClose removes the port without waiting for its listener. The
// listener is signalled like Close does and exits on its own, so a read
// event already in flight may still arrive after ForceClose returns.
// Closing a port that is not open does nothing.
func (m *Manager) ForceClose(ctx context.Context, id string) error {
	rec, err := m.reg.remove(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return portError("force close", id, err)
	}

	if l := rec.takeListener(); l != nil {
		l.signal()
	}
	m.log.Info().Str("port", id).Msg("Serial port force closed")

	if err := rec.port.Close(); err != nil && !errors.Is(err, serial.ErrPortClosed) {
		return portError("force close", id, err)
	}
	return nil
}

// CloseAllError collects the per-port failures of CloseAll
type CloseAllError struct {
	Errs []error
}

func (e *CloseAllError) Error() string {
	msgs := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		msgs[i] = err.Error()
	}
	return "errors during close: " + strings.Join(msgs, ", ")
}

func (e *CloseAllError) Unwrap() []error { return e.Errs }

// CloseAll closes every managed port. The registry is always left empty;
// failures are collected into a *CloseAllError.
func (m *Manager) CloseAll(ctx context.Context) error {
	entries, err := m.reg.drain(ctx)
	if err != nil {
		return err
	}

	var errs []error
	for _, e := range entries {
		if err := m.shutdown(e.id, e.rec); err != nil {
			errs = append(errs, portError("close", e.id, err))
		}
	}
	if len(errs) > 0 {
		return &CloseAllError{Errs: errs}
	}
	return nil
}

// configure applies one setting to the port in place
func (m *Manager) configure(ctx context.Context, id, op string, apply func(serial.Port) error) error {
	err := m.reg.with(ctx, id, func(rec *record) error {
		return apply(rec.port)
	})
	if err == nil {
		m.log.Debug().Str("port", id).Str("op", op).Msg("Serial port reconfigured")
	}
	return portError(op, id, err)
}

func (m *Manager) SetBaudRate(ctx context.Context, id string, rate int) error {
	return m.configure(ctx, id, "set baud rate", func(p serial.Port) error { return p.SetBaudRate(rate) })
}

func (m *Manager) SetDataBits(ctx context.Context, id string, bits serial.DataBits) error {
	return m.configure(ctx, id, "set data bits", func(p serial.Port) error { return p.SetDataBits(bits) })
}

func (m *Manager) SetFlowControl(ctx context.Context, id string, fc serial.FlowControl) error {
	return m.configure(ctx, id, "set flow control", func(p serial.Port) error { return p.SetFlowControl(fc) })
}

func (m *Manager) SetParity(ctx context.Context, id string, parity serial.Parity) error {
	return m.configure(ctx, id, "set parity", func(p serial.Port) error { return p.SetParity(parity) })
}

func (m *Manager) SetStopBits(ctx context.Context, id string, bits serial.StopBits) error {
	return m.configure(ctx, id, "set stop bits", func(p serial.Port) error { return p.SetStopBits(bits) })
}

func (m *Manager) SetTimeout(ctx context.Context, id string, timeout time.Duration) error {
	return m.configure(ctx, id, "set timeout", func(p serial.Port) error { return p.SetTimeout(timeout) })
}

func (m *Manager) WriteRequestToSend(ctx context.Context, id string, level bool) error {
	return m.configure(ctx, id, "write request to send", func(p serial.Port) error { return p.SetRTS(level) })
}

func (m *Manager) WriteDataTerminalReady(ctx context.Context, id string, level bool) error {
	return m.configure(ctx, id, "write data terminal ready", func(p serial.Port) error { return p.SetDTR(level) })
}

func (m *Manager) ClearBuffer(ctx context.Context, id string, buffer serial.ClearBuffer) error {
	return m.configure(ctx, id, "clear buffer", func(p serial.Port) error { return p.Clear(buffer) })
}

func (m *Manager) SetBreak(ctx context.Context, id string) error {
	return m.configure(ctx, id, "set break", func(p serial.Port) error { return p.SetBreak() })
}

func (m *Manager) ClearBreak(ctx context.Context, id string) error {
	return m.configure(ctx, id, "clear break", func(p serial.Port) error { return p.ClearBreak() })
}

// ModemSignals reads every modem line of the port at once
func (m *Manager) ModemSignals(ctx context.Context, id string) (serial.ModemSignals, error) {
	var signals serial.ModemSignals
	err := m.reg.with(ctx, id, func(rec *record) error {
		var err error
		signals, err = rec.port.GetModemSignals()
		return err
	})
	return signals, portError("read modem signals", id, err)
}

func (m *Manager) readSignal(ctx context.Context, id, op string, pick func(serial.ModemSignals) bool) (bool, error) {
	var level bool
	err := m.reg.with(ctx, id, func(rec *record) error {
		signals, err := rec.port.GetModemSignals()
		level = pick(signals)
		return err
	})
	return level, portError(op, id, err)
}

func (m *Manager) ReadClearToSend(ctx context.Context, id string) (bool, error) {
	return m.readSignal(ctx, id, "read clear to send", func(s serial.ModemSignals) bool { return s.CTS })
}

func (m *Manager) ReadDataSetReady(ctx context.Context, id string) (bool, error) {
	return m.readSignal(ctx, id, "read data set ready", func(s serial.ModemSignals) bool { return s.DSR })
}

func (m *Manager) ReadRingIndicator(ctx context.Context, id string) (bool, error) {
	return m.readSignal(ctx, id, "read ring indicator", func(s serial.ModemSignals) bool { return s.RI })
}

func (m *Manager) ReadCarrierDetect(ctx context.Context, id string) (bool, error) {
	return m.readSignal(ctx, id, "read carrier detect", func(s serial.ModemSignals) bool { return s.DCD })
}

func (m *Manager) queueLength(ctx context.Context, id, op string, count func(serial.Port) (int, error)) (uint32, error) {
	var n int
	err := m.reg.with(ctx, id, func(rec *record) error {
		var err error
		n, err = count(rec.port)
		return err
	})
	if err != nil {
		return 0, portError(op, id, err)
	}
	return clampUint32(n), nil
}

func (m *Manager) BytesToRead(ctx context.Context, id string) (uint32, error) {
	return m.queueLength(ctx, id, "bytes to read", serial.Port.BytesToRead)
}

func (m *Manager) BytesToWrite(ctx context.Context, id string) (uint32, error) {
	return m.queueLength(ctx, id, "bytes to write", serial.Port.BytesToWrite)
}

func clampUint32(n int) uint32 {
	switch {
	case n < 0:
		return 0
	case uint64(n) > math.MaxUint32:
		return math.MaxUint32
	}
	return uint32(n)
}

// ManagedPorts returns the open port identifiers in sorted order
func (m *Manager) ManagedPorts(ctx context.Context) ([]string, error) {
	return m.reg.keys(ctx)
}

// Listening reports whether the port has an active listener
func (m *Manager) Listening(ctx context.Context, id string) (bool, error) {
	var active bool
	err := m.reg.with(ctx, id, func(rec *record) error {
		active = rec.listener != nil
		return nil
	})
	return active, portError("listening", id, err)
}

// Stats returns the counters of an open port
func (m *Manager) Stats(ctx context.Context, id string) (Stats, error) {
	var stats Stats
	err := m.reg.with(ctx, id, func(rec *record) error {
		stats = rec.stats.snapshot(id, rec.listener != nil)
		return nil
	})
	return stats, portError("stats", id, err)
}

// AvailablePorts lists the ports reported by the driver. Enumeration errors
// are logged and produce an empty result.
func (m *Manager) AvailablePorts(ctx context.Context) map[string]map[string]string {
	ports, err := m.available(m.kind)
	if err != nil {
		m.log.Warn().Err(err).Str("kind", string(m.kind)).Msg("Port enumeration failed")
		return map[string]map[string]string{}
	}
	return ports
}

// AvailablePortsDirect lists ports by probing the operating system with
// shell commands. Probe errors are logged and produce an empty result.
func (m *Manager) AvailablePortsDirect(ctx context.Context) map[string]map[string]string {
	ports, err := m.probe(ctx)
	if err != nil {
		m.log.Warn().Err(err).Msg("Port probe failed")
		return map[string]map[string]string{}
	}
	return ports
}
