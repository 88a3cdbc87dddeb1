//go:build !linux

package serial

import (
	"errors"
	"fmt"
	"sync"
	"time"

	bugst "go.bug.st/serial"
)

// device is one go.bug.st port shared by every handle duplicated from it.
// The library cannot dup a live descriptor, so handles share the device
// and serialize on its lock; the device closes with its last handle.
type device struct {
	mu   sync.Mutex
	dev  bugst.Port
	mode bugst.Mode
	refs int
	rts  bool
	dtr  bool
}

// port is the go.bug.st implementation of the Port interface
type port struct {
	mu     sync.RWMutex
	shared *device
	name   string
	config Config
	closed bool
}

// Ensure port implements Port interface at compile time
var _ Port = (*port)(nil)

func openPort(name string, config Config) (Port, error) {
	if config.FlowControl != FlowControlNone {
		return nil, fmt.Errorf("flow control %s: %w", config.FlowControl, ErrUnsupported)
	}

	mode := bugst.Mode{
		BaudRate: config.BaudRate,
		DataBits: int(config.DataBits),
		Parity:   toBugstParity(config.Parity),
		StopBits: toBugstStopBits(config.StopBits),
	}

	dev, err := bugst.Open(name, &mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", name, classifyOpenError(err))
	}

	return &port{
		shared: &device{dev: dev, mode: mode, refs: 1, rts: true, dtr: true},
		name:   name,
		config: config,
	}, nil
}

func classifyOpenError(err error) error {
	var portErr *bugst.PortError
	if !errors.As(err, &portErr) {
		return err
	}
	switch portErr.Code() {
	case bugst.PortNotFound:
		return fmt.Errorf("%w: %v", ErrDeviceNotFound, err)
	case bugst.PermissionDenied:
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	case bugst.PortBusy:
		return fmt.Errorf("%w: %v", ErrDeviceInUse, err)
	case bugst.InvalidSpeed:
		return fmt.Errorf("%w: %v", ErrInvalidBaudRate, err)
	default:
		return err
	}
}

func toBugstParity(p Parity) bugst.Parity {
	switch p {
	case ParityOdd:
		return bugst.OddParity
	case ParityEven:
		return bugst.EvenParity
	default:
		return bugst.NoParity
	}
}

func toBugstStopBits(s StopBits) bugst.StopBits {
	if s == StopBitsTwo {
		return bugst.TwoStopBits
	}
	return bugst.OneStopBit
}

func (p *port) Name() string {
	return p.name
}

func (p *port) Config() Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.config
}

func (p *port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPortClosed
	}
	p.closed = true

	p.shared.mu.Lock()
	defer p.shared.mu.Unlock()
	p.shared.refs--
	if p.shared.refs > 0 {
		return nil
	}
	return p.shared.dev.Close()
}

// Read waits up to the configured timeout for data
func (p *port) Read(buf []byte) (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return 0, ErrPortClosed
	}
	if len(buf) == 0 {
		return 0, nil
	}

	p.shared.mu.Lock()
	defer p.shared.mu.Unlock()

	if err := p.shared.dev.SetReadTimeout(p.config.Timeout); err != nil {
		return 0, err
	}
	n, err := p.shared.dev.Read(buf)
	if err != nil {
		return n, err
	}
	if n == 0 {
		return 0, ErrTimeout
	}
	return n, nil
}

func (p *port) Write(data []byte) (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return 0, ErrPortClosed
	}

	p.shared.mu.Lock()
	defer p.shared.mu.Unlock()
	return p.shared.dev.Write(data)
}

// setMode applies fn to the shared mode and pushes it to the device
func (p *port) setMode(fn func(*bugst.Mode)) error {
	p.shared.mu.Lock()
	defer p.shared.mu.Unlock()

	mode := p.shared.mode
	fn(&mode)
	if err := p.shared.dev.SetMode(&mode); err != nil {
		return err
	}
	p.shared.mode = mode
	return nil
}

func (p *port) SetBaudRate(rate int) error {
	if rate <= 0 {
		return ErrInvalidBaudRate
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPortClosed
	}
	if err := p.setMode(func(m *bugst.Mode) { m.BaudRate = rate }); err != nil {
		return err
	}
	p.config.BaudRate = rate
	return nil
}

func (p *port) SetDataBits(bits DataBits) error {
	if !bits.valid() {
		return ErrInvalidConfig
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPortClosed
	}
	if err := p.setMode(func(m *bugst.Mode) { m.DataBits = int(bits) }); err != nil {
		return err
	}
	p.config.DataBits = bits
	return nil
}

func (p *port) SetFlowControl(fc FlowControl) error {
	if !fc.valid() {
		return ErrInvalidConfig
	}
	if fc != FlowControlNone {
		return fmt.Errorf("flow control %s: %w", fc, ErrUnsupported)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPortClosed
	}
	p.config.FlowControl = fc
	return nil
}

func (p *port) SetParity(parity Parity) error {
	if !parity.valid() {
		return ErrInvalidConfig
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPortClosed
	}
	if err := p.setMode(func(m *bugst.Mode) { m.Parity = toBugstParity(parity) }); err != nil {
		return err
	}
	p.config.Parity = parity
	return nil
}

func (p *port) SetStopBits(bits StopBits) error {
	if !bits.valid() {
		return ErrInvalidConfig
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPortClosed
	}
	if err := p.setMode(func(m *bugst.Mode) { m.StopBits = toBugstStopBits(bits) }); err != nil {
		return err
	}
	p.config.StopBits = bits
	return nil
}

func (p *port) SetTimeout(timeout time.Duration) error {
	if timeout < 0 {
		return ErrInvalidConfig
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPortClosed
	}
	p.config.Timeout = timeout
	return nil
}

func (p *port) SetRTS(state bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPortClosed
	}

	p.shared.mu.Lock()
	defer p.shared.mu.Unlock()
	if err := p.shared.dev.SetRTS(state); err != nil {
		return err
	}
	p.shared.rts = state
	return nil
}

func (p *port) SetDTR(state bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPortClosed
	}

	p.shared.mu.Lock()
	defer p.shared.mu.Unlock()
	if err := p.shared.dev.SetDTR(state); err != nil {
		return err
	}
	p.shared.dtr = state
	return nil
}

// GetModemSignals reads the input lines; RTS and DTR report the last
// level set through any handle, since the driver cannot read them back
func (p *port) GetModemSignals() (ModemSignals, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ModemSignals{}, ErrPortClosed
	}

	p.shared.mu.Lock()
	defer p.shared.mu.Unlock()

	bits, err := p.shared.dev.GetModemStatusBits()
	if err != nil {
		return ModemSignals{}, err
	}
	return ModemSignals{
		CTS: bits.CTS,
		DSR: bits.DSR,
		RI:  bits.RI,
		DCD: bits.DCD,
		RTS: p.shared.rts,
		DTR: p.shared.dtr,
	}, nil
}

func (p *port) BytesToRead() (int, error) {
	return 0, ErrUnsupported
}

func (p *port) BytesToWrite() (int, error) {
	return 0, ErrUnsupported
}

func (p *port) Clear(buffer ClearBuffer) error {
	if !buffer.valid() {
		return ErrInvalidConfig
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPortClosed
	}

	p.shared.mu.Lock()
	defer p.shared.mu.Unlock()

	if buffer == ClearInput || buffer == ClearAll {
		if err := p.shared.dev.ResetInputBuffer(); err != nil {
			return err
		}
	}
	if buffer == ClearOutput || buffer == ClearAll {
		if err := p.shared.dev.ResetOutputBuffer(); err != nil {
			return err
		}
	}
	return nil
}

// SetBreak is unsupported: the driver only offers a timed break.
func (p *port) SetBreak() error {
	return ErrUnsupported
}

func (p *port) ClearBreak() error {
	return ErrUnsupported
}

// Duplicate returns another handle on the shared device.
func (p *port) Duplicate() (Port, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return nil, ErrPortClosed
	}

	p.shared.mu.Lock()
	p.shared.refs++
	p.shared.mu.Unlock()

	return &port{
		shared: p.shared,
		name:   p.name,
		config: p.config,
	}, nil
}
