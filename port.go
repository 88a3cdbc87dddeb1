package serial

import (
	"io"
	"time"
)

// Port represents a serial port connection interface
type Port interface {
	io.ReadWriteCloser

	// Name returns the device path the port was opened with.
	Name() string
	// Config returns the settings last applied through this handle.
	Config() Config

	SetBaudRate(rate int) error
	SetDataBits(bits DataBits) error
	SetFlowControl(fc FlowControl) error
	SetParity(parity Parity) error
	SetStopBits(bits StopBits) error
	SetTimeout(timeout time.Duration) error

	// Modem signal control and monitoring
	SetRTS(state bool) error
	SetDTR(state bool) error
	GetModemSignals() (ModemSignals, error)

	BytesToRead() (int, error)
	BytesToWrite() (int, error)
	Clear(buffer ClearBuffer) error

	// SetBreak holds the line in the break condition until ClearBreak.
	SetBreak() error
	ClearBreak() error

	// Duplicate returns an independent handle on the same open device.
	// Device settings changed through one handle are visible to the other;
	// the read timeout is per handle.
	Duplicate() (Port, error)
}

// ModemSignals represents modem control signal states
type ModemSignals struct {
	CTS bool // Clear To Send
	DSR bool // Data Set Ready
	RI  bool // Ring Indicator
	DCD bool // Data Carrier Detect
	RTS bool // Request To Send
	DTR bool // Data Terminal Ready
}

// Open opens a serial port with the given device path and options
func Open(device string, opts ...Option) (Port, error) {
	config, err := NewConfig(opts...)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return openPort(device, config)
}
