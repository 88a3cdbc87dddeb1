// Package porttest provides an in-memory serial transport for tests.
//
// A Device is one simulated serial device with a single byte queue: bytes
// written through any handle, or pushed with Device.Push, become readable
// through every handle. Handles duplicated from each other share the device,
// mirroring how duplicated descriptors share one tty.
package porttest

import (
	"fmt"
	"sync"
	"time"

	serial "github.com/allbin/go-serialhost"
	"go.uber.org/atomic"
)

// Device is the shared state behind every handle on one simulated port
type Device struct {
	name string

	mu       sync.Mutex
	wake     chan struct{}
	queue    []byte
	written  []byte
	config   serial.Config
	signals  serial.ModemSignals
	breakOn  bool
	readErr  error
	writeErr error
	dupErr   error
	panicVal any

	readCalls   atomic.Int64
	writeCalls  atomic.Int64
	dupReads    atomic.Int64
	maxDupReads atomic.Int64
	openDups    atomic.Int64
	maxOpenDups atomic.Int64
	duplicates  atomic.Int64
}

// NewDevice returns an idle device with default settings
func NewDevice(name string) *Device {
	return &Device{
		name:   name,
		wake:   make(chan struct{}),
		config: serial.DefaultConfig(),
	}
}

// Open returns a new primary handle on the device configured with config
func (d *Device) Open(config serial.Config) *Loopback {
	d.mu.Lock()
	d.config = config
	d.mu.Unlock()
	return &Loopback{dev: d, timeout: config.Timeout}
}

// Push makes data readable, as if the remote end had sent it
func (d *Device) Push(data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queue = append(d.queue, data...)
	d.broadcast()
}

// broadcast wakes every blocked reader; d.mu must be held
func (d *Device) broadcast() {
	close(d.wake)
	d.wake = make(chan struct{})
}

// FailReads makes every subsequent Read return err; nil restores normal reads
func (d *Device) FailReads(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.readErr = err
	d.broadcast()
}

// Unplug simulates the device disappearing under open handles
func (d *Device) Unplug() {
	d.FailReads(serial.ErrDisconnected)
}

func (d *Device) FailWrites(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writeErr = err
}

func (d *Device) FailDuplicate(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dupErr = err
}

// PanicOnRead makes the next Read panic with v
func (d *Device) PanicOnRead(v any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.panicVal = v
	d.broadcast()
}

// SetInputSignals sets the lines a remote device would drive
func (d *Device) SetInputSignals(cts, dsr, ri, dcd bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.signals.CTS, d.signals.DSR, d.signals.RI, d.signals.DCD = cts, dsr, ri, dcd
}

// Config returns the device-level settings
func (d *Device) Config() serial.Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.config
}

func (d *Device) Signals() serial.ModemSignals {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.signals
}

func (d *Device) BreakOn() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.breakOn
}

// Written returns every byte written through any handle
func (d *Device) Written() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.written...)
}

func (d *Device) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// ReadCalls counts Read calls on all handles
func (d *Device) ReadCalls() int64 { return d.readCalls.Load() }

func (d *Device) WriteCalls() int64 { return d.writeCalls.Load() }

// MaxConcurrentDuplicateReads is the highest number of duplicated handles
// observed inside Read at the same time
func (d *Device) MaxConcurrentDuplicateReads() int64 { return d.maxDupReads.Load() }

// OpenDuplicates is the number of duplicated handles not yet closed
func (d *Device) OpenDuplicates() int64 { return d.openDups.Load() }

func (d *Device) MaxOpenDuplicates() int64 { return d.maxOpenDups.Load() }

// Duplicates counts successful Duplicate calls
func (d *Device) Duplicates() int64 { return d.duplicates.Load() }

func raise(max *atomic.Int64, v int64) {
	for {
		cur := max.Load()
		if v <= cur || max.CompareAndSwap(cur, v) {
			return
		}
	}
}

// Loopback is one handle on a Device
type Loopback struct {
	dev *Device

	mu      sync.Mutex
	timeout time.Duration
	closed  bool
	dup     bool
}

var _ serial.Port = (*Loopback)(nil)

func (l *Loopback) Device() *Device { return l.dev }

func (l *Loopback) Name() string { return l.dev.name }

func (l *Loopback) Config() serial.Config {
	config := l.dev.Config()
	l.mu.Lock()
	config.Timeout = l.timeout
	l.mu.Unlock()
	return config
}

func (l *Loopback) state() (time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return 0, serial.ErrPortClosed
	}
	return l.timeout, nil
}

// Read returns queued bytes, waiting up to the handle timeout for some to arrive
func (l *Loopback) Read(p []byte) (int, error) {
	timeout, err := l.state()
	if err != nil {
		return 0, err
	}

	d := l.dev
	d.readCalls.Inc()
	if l.dup {
		raise(&d.maxDupReads, d.dupReads.Inc())
		defer d.dupReads.Dec()
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		d.mu.Lock()
		if v := d.panicVal; v != nil {
			d.panicVal = nil
			d.mu.Unlock()
			panic(v)
		}
		if d.readErr != nil {
			err := d.readErr
			d.mu.Unlock()
			return 0, err
		}
		if len(d.queue) > 0 {
			n := copy(p, d.queue)
			d.queue = d.queue[n:]
			d.mu.Unlock()
			return n, nil
		}
		wake := d.wake
		d.mu.Unlock()

		select {
		case <-wake:
		case <-timer.C:
			return 0, serial.ErrTimeout
		}
	}
}

// Write loops the bytes back into the device queue
func (l *Loopback) Write(p []byte) (int, error) {
	if _, err := l.state(); err != nil {
		return 0, err
	}

	d := l.dev
	d.writeCalls.Inc()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.writeErr != nil {
		return 0, d.writeErr
	}
	d.written = append(d.written, p...)
	d.queue = append(d.queue, p...)
	d.broadcast()
	return len(p), nil
}

func (l *Loopback) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return serial.ErrPortClosed
	}
	l.closed = true
	if l.dup {
		l.dev.openDups.Dec()
	}
	return nil
}

// configure validates value with opt and stores the result on the device
func (l *Loopback) configure(opt serial.Option) error {
	if _, err := l.state(); err != nil {
		return err
	}
	d := l.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	config := d.config
	if err := opt(&config); err != nil {
		return err
	}
	d.config = config
	return nil
}

func (l *Loopback) SetBaudRate(rate int) error {
	return l.configure(serial.WithBaudRate(rate))
}

func (l *Loopback) SetDataBits(bits serial.DataBits) error {
	return l.configure(serial.WithDataBits(bits))
}

func (l *Loopback) SetFlowControl(fc serial.FlowControl) error {
	return l.configure(serial.WithFlowControl(fc))
}

func (l *Loopback) SetParity(parity serial.Parity) error {
	return l.configure(serial.WithParity(parity))
}

func (l *Loopback) SetStopBits(bits serial.StopBits) error {
	return l.configure(serial.WithStopBits(bits))
}

func (l *Loopback) SetTimeout(timeout time.Duration) error {
	if timeout < 0 {
		return serial.ErrInvalidConfig
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return serial.ErrPortClosed
	}
	l.timeout = timeout
	return nil
}

func (l *Loopback) SetRTS(state bool) error {
	if _, err := l.state(); err != nil {
		return err
	}
	l.dev.mu.Lock()
	l.dev.signals.RTS = state
	l.dev.mu.Unlock()
	return nil
}

func (l *Loopback) SetDTR(state bool) error {
	if _, err := l.state(); err != nil {
		return err
	}
	l.dev.mu.Lock()
	l.dev.signals.DTR = state
	l.dev.mu.Unlock()
	return nil
}

func (l *Loopback) GetModemSignals() (serial.ModemSignals, error) {
	if _, err := l.state(); err != nil {
		return serial.ModemSignals{}, err
	}
	return l.dev.Signals(), nil
}

func (l *Loopback) BytesToRead() (int, error) {
	if _, err := l.state(); err != nil {
		return 0, err
	}
	return l.dev.Pending(), nil
}

// BytesToWrite is always zero: writes complete immediately
func (l *Loopback) BytesToWrite() (int, error) {
	if _, err := l.state(); err != nil {
		return 0, err
	}
	return 0, nil
}

func (l *Loopback) Clear(buffer serial.ClearBuffer) error {
	if _, err := l.state(); err != nil {
		return err
	}
	switch buffer {
	case serial.ClearInput, serial.ClearAll:
		l.dev.mu.Lock()
		l.dev.queue = nil
		l.dev.mu.Unlock()
	case serial.ClearOutput:
	default:
		return serial.ErrInvalidConfig
	}
	return nil
}

func (l *Loopback) SetBreak() error {
	return l.setBreak(true)
}

func (l *Loopback) ClearBreak() error {
	return l.setBreak(false)
}

func (l *Loopback) setBreak(on bool) error {
	if _, err := l.state(); err != nil {
		return err
	}
	l.dev.mu.Lock()
	l.dev.breakOn = on
	l.dev.mu.Unlock()
	return nil
}

func (l *Loopback) Duplicate() (serial.Port, error) {
	timeout, err := l.state()
	if err != nil {
		return nil, err
	}

	d := l.dev
	d.mu.Lock()
	dupErr := d.dupErr
	d.mu.Unlock()
	if dupErr != nil {
		return nil, fmt.Errorf("failed to duplicate %s: %w", d.name, dupErr)
	}

	d.duplicates.Inc()
	raise(&d.maxOpenDups, d.openDups.Inc())
	return &Loopback{dev: d, timeout: timeout, dup: true}, nil
}
