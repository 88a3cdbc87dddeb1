package manager

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	serial "github.com/allbin/go-serialhost"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
)

// Policy selects how a listener turns reads into events
type Policy int

const (
	// DeliverDefault defers to the manager's listen defaults
	DeliverDefault Policy = iota
	// DeliverImmediate emits one event per non-empty read
	DeliverImmediate
	// DeliverWindowed accumulates reads and emits once per window
	DeliverWindowed
)

func (p Policy) String() string {
	switch p {
	case DeliverImmediate:
		return "immediate"
	case DeliverWindowed:
		return "windowed"
	default:
		return "default"
	}
}

func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(s) {
	case "", "default":
		return DeliverDefault, nil
	case "immediate":
		return DeliverImmediate, nil
	case "windowed", "window":
		return DeliverWindowed, nil
	}
	return DeliverDefault, fmt.Errorf("%w: delivery policy %q", serial.ErrInvalidConfig, s)
}

const (
	DefaultChunkSize    = 1024
	DefaultPollInterval = 200 * time.Millisecond

	// MaxChunkSize bounds the buffer of a single read
	MaxChunkSize = 1 << 20
)

func checkSize(size int) error {
	if size > MaxChunkSize {
		return fmt.Errorf("%w: read size %d exceeds %d", serial.ErrInvalidConfig, size, MaxChunkSize)
	}
	return nil
}

// ListenOptions configures a background listener. Zero fields take the
// manager's defaults.
type ListenOptions struct {
	// Timeout is the read timeout of the listener's handle. Zero keeps the
	// port's own timeout.
	Timeout time.Duration
	// Size is the largest single read
	Size int
	// PollInterval is the pause between reads. Negative disables it.
	PollInterval time.Duration
	Policy       Policy
	// Window is the flush interval of DeliverWindowed. Zero means Timeout.
	Window time.Duration
}

// resolve fills zero fields from defaults and then from the built-in values
func (o ListenOptions) resolve(defaults ListenOptions, portTimeout time.Duration) ListenOptions {
	if o.Timeout <= 0 {
		o.Timeout = defaults.Timeout
	}
	if o.Timeout <= 0 {
		o.Timeout = portTimeout
	}
	if o.Size <= 0 {
		o.Size = defaults.Size
	}
	if o.Size <= 0 {
		o.Size = DefaultChunkSize
	}
	if o.PollInterval == 0 {
		o.PollInterval = defaults.PollInterval
	}
	if o.PollInterval == 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.Policy == DeliverDefault {
		o.Policy = defaults.Policy
	}
	if o.Policy == DeliverDefault {
		o.Policy = DeliverImmediate
	}
	if o.Window <= 0 {
		o.Window = defaults.Window
	}
	if o.Window <= 0 {
		o.Window = o.Timeout
	}
	return o
}

// listener polls one duplicated handle and forwards what it reads to a sink.
// It owns the handle and closes it on exit.
type listener struct {
	id     uuid.UUID
	port   string
	handle serial.Port
	opts   ListenOptions
	sink   EventSink
	stats  *portStats
	log    zerolog.Logger

	readEvent       string
	disconnectEvent string

	mu      sync.Mutex
	cancel  chan struct{}
	dropped bool

	wg conc.WaitGroup
}

func startListener(port string, handle serial.Port, opts ListenOptions, sink EventSink, prefix string, stats *portStats, log zerolog.Logger) *listener {
	l := &listener{
		id:              uuid.New(),
		port:            port,
		handle:          handle,
		opts:            opts,
		sink:            sink,
		stats:           stats,
		readEvent:       ReadEvent(prefix, port),
		disconnectEvent: DisconnectEvent(prefix, port),
		cancel:          make(chan struct{}, 1),
	}
	l.log = log.With().Str("port", port).Str("listener", l.id.String()).Logger()

	stats.listenerStarts.Inc()
	l.wg.Go(l.run)
	return l
}

// signal asks the listener to exit quietly. A full slot means it has
// already been asked; a dropped channel means it is already exiting.
func (l *listener) signal() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.dropped {
		return
	}
	select {
	case l.cancel <- struct{}{}:
	default:
	}
}

// drop closes the cancel channel. The listener reports a disconnect and exits.
func (l *listener) drop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.dropped {
		l.dropped = true
		close(l.cancel)
	}
}

// join waits for the listener goroutine. A panic in the loop is recovered
// and reported as ErrJoinFailure.
func (l *listener) join() error {
	if r := l.wg.WaitAndRecover(); r != nil {
		l.log.Error().Interface("panic", r.Value).Msg("Listener panicked")
		return fmt.Errorf("%w: %v", ErrJoinFailure, r.Value)
	}
	return nil
}

func (l *listener) stop() error {
	l.signal()
	return l.join()
}

func (l *listener) run() {
	defer func() {
		if err := l.handle.Close(); err != nil && !errors.Is(err, serial.ErrPortClosed) {
			l.log.Debug().Err(err).Msg("Failed to close listener handle")
		}
		l.log.Debug().Msg("Listener stopped")
	}()

	l.log.Debug().
		Stringer("policy", l.opts.Policy).
		Int("size", l.opts.Size).
		Dur("timeout", l.opts.Timeout).
		Dur("poll_interval", l.opts.PollInterval).
		Msg("Listener started")

	buf := make([]byte, l.opts.Size)
	var pending []byte
	lastFlush := time.Now()

	for {
		if l.stopped(nil) {
			return
		}

		n, err := l.handle.Read(buf)
		if err != nil && !errors.Is(err, serial.ErrTimeout) {
			l.log.Warn().Err(err).Msg("Listener read failed")
			l.disconnect()
			return
		}

		if n > 0 {
			l.stats.bytesRead.Add(uint64(n))
			if l.opts.Policy == DeliverWindowed {
				pending = append(pending, buf[:n]...)
			} else {
				l.emit(bytes.Clone(buf[:n]))
			}
		}

		if l.opts.Policy == DeliverWindowed && time.Since(lastFlush) >= l.opts.Window {
			if len(pending) > 0 {
				l.emit(pending)
				pending = nil
			}
			lastFlush = time.Now()
		}

		if l.opts.PollInterval > 0 {
			timer := time.NewTimer(l.opts.PollInterval)
			done := l.stopped(timer.C)
			timer.Stop()
			if done {
				return
			}
		}
	}
}

// stopped reports whether the listener must exit. With a nil wake channel it
// polls; otherwise it waits until wake fires or a cancellation arrives.
func (l *listener) stopped(wake <-chan time.Time) bool {
	var signalled bool
	if wake == nil {
		select {
		case _, signalled = <-l.cancel:
		default:
			return false
		}
	} else {
		select {
		case _, signalled = <-l.cancel:
		case <-wake:
			return false
		}
	}

	if !signalled {
		l.disconnect()
	}
	return true
}

func (l *listener) emit(data []byte) {
	if err := l.sink.Emit(l.readEvent, ReadData{Data: data, Size: len(data)}); err != nil {
		l.stats.emitErrors.Inc()
		l.log.Warn().Err(err).Str("event", l.readEvent).Msg("Failed to emit read event")
		return
	}
	l.stats.eventsEmitted.Inc()
}

func (l *listener) disconnect() {
	l.stats.disconnects.Inc()
	l.log.Info().Msg("Serial port disconnected")
	if err := l.sink.Emit(l.disconnectEvent, disconnectMessage(l.port)); err != nil {
		l.stats.emitErrors.Inc()
		l.log.Warn().Err(err).Str("event", l.disconnectEvent).Msg("Failed to emit disconnect event")
		return
	}
	l.stats.eventsEmitted.Inc()
}
