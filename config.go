package serial

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DataBits is the number of data bits per character
type DataBits int

const (
	DataBits5 DataBits = 5
	DataBits6 DataBits = 6
	DataBits7 DataBits = 7
	DataBits8 DataBits = 8
)

// StopBits is the number of stop bits per character
type StopBits int

const (
	StopBitsOne StopBits = 1
	StopBitsTwo StopBits = 2
)

// FlowControl represents the flow control mode
type FlowControl int

const (
	FlowControlNone     FlowControl = iota
	FlowControlSoftware             // XON/XOFF
	FlowControlHardware             // RTS/CTS
)

// Parity represents the parity mode
type Parity int

const (
	ParityNone Parity = iota
	ParityOdd
	ParityEven
)

// ClearBuffer selects which kernel buffer Clear discards
type ClearBuffer int

const (
	ClearInput ClearBuffer = iota
	ClearOutput
	ClearAll
)

// DefaultTimeout is the read timeout applied when none is configured.
const DefaultTimeout = 200 * time.Millisecond

// Config holds the configuration for a serial port
type Config struct {
	BaudRate    int
	DataBits    DataBits
	StopBits    StopBits
	Parity      Parity
	FlowControl FlowControl
	Timeout     time.Duration // Read timeout; zero makes Read return immediately
}

// Option is a functional option for configuring a serial port
type Option func(*Config) error

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() Config {
	return Config{
		BaudRate:    115200,
		DataBits:    DataBits8,
		StopBits:    StopBitsOne,
		Parity:      ParityNone,
		FlowControl: FlowControlNone,
		Timeout:     DefaultTimeout,
	}
}

// NewConfig applies opts on top of DefaultConfig.
func NewConfig(opts ...Option) (Config, error) {
	config := DefaultConfig()
	for _, opt := range opts {
		if err := opt(&config); err != nil {
			return Config{}, err
		}
	}
	return config, nil
}

// Validate reports whether every field holds a value a driver can apply.
func (c Config) Validate() error {
	if c.BaudRate <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidBaudRate, c.BaudRate)
	}
	if !c.DataBits.valid() {
		return fmt.Errorf("%w: data bits %d", ErrInvalidConfig, c.DataBits)
	}
	if !c.StopBits.valid() {
		return fmt.Errorf("%w: stop bits %d", ErrInvalidConfig, c.StopBits)
	}
	if !c.Parity.valid() {
		return fmt.Errorf("%w: parity %d", ErrInvalidConfig, c.Parity)
	}
	if !c.FlowControl.valid() {
		return fmt.Errorf("%w: flow control %d", ErrInvalidConfig, c.FlowControl)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("%w: negative timeout %v", ErrInvalidConfig, c.Timeout)
	}
	return nil
}

// String renders the frame settings the usual way, e.g. "115200 8N1".
func (c Config) String() string {
	return fmt.Sprintf("%d %d%s%d", c.BaudRate, c.DataBits, c.Parity.short(), c.StopBits)
}

// WithBaudRate sets the baud rate
func WithBaudRate(rate int) Option {
	return func(c *Config) error {
		if rate <= 0 {
			return ErrInvalidBaudRate
		}
		c.BaudRate = rate
		return nil
	}
}

// WithDataBits sets the number of data bits (5, 6, 7, or 8)
func WithDataBits(bits DataBits) Option {
	return func(c *Config) error {
		if !bits.valid() {
			return ErrInvalidConfig
		}
		c.DataBits = bits
		return nil
	}
}

// WithStopBits sets the number of stop bits (1 or 2)
func WithStopBits(bits StopBits) Option {
	return func(c *Config) error {
		if !bits.valid() {
			return ErrInvalidConfig
		}
		c.StopBits = bits
		return nil
	}
}

// WithParity sets the parity mode
func WithParity(parity Parity) Option {
	return func(c *Config) error {
		if !parity.valid() {
			return ErrInvalidConfig
		}
		c.Parity = parity
		return nil
	}
}

// WithFlowControl sets the flow control mode
func WithFlowControl(fc FlowControl) Option {
	return func(c *Config) error {
		if !fc.valid() {
			return ErrInvalidConfig
		}
		c.FlowControl = fc
		return nil
	}
}

// WithTimeout sets the read timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) error {
		if timeout < 0 {
			return ErrInvalidConfig
		}
		c.Timeout = timeout
		return nil
	}
}

// WithConfig replaces the whole configuration after validating it.
func WithConfig(config Config) Option {
	return func(c *Config) error {
		if err := config.Validate(); err != nil {
			return err
		}
		*c = config
		return nil
	}
}

func (d DataBits) valid() bool { return d >= DataBits5 && d <= DataBits8 }

func (s StopBits) valid() bool { return s == StopBitsOne || s == StopBitsTwo }

func (p Parity) valid() bool { return p >= ParityNone && p <= ParityEven }

func (f FlowControl) valid() bool { return f >= FlowControlNone && f <= FlowControlHardware }

func (c ClearBuffer) valid() bool { return c >= ClearInput && c <= ClearAll }

func (f FlowControl) String() string {
	switch f {
	case FlowControlNone:
		return "none"
	case FlowControlSoftware:
		return "software"
	case FlowControlHardware:
		return "hardware"
	default:
		return "unknown"
	}
}

func (p Parity) String() string {
	switch p {
	case ParityNone:
		return "none"
	case ParityOdd:
		return "odd"
	case ParityEven:
		return "even"
	default:
		return "unknown"
	}
}

func (p Parity) short() string {
	switch p {
	case ParityOdd:
		return "O"
	case ParityEven:
		return "E"
	default:
		return "N"
	}
}

func (c ClearBuffer) String() string {
	switch c {
	case ClearInput:
		return "input"
	case ClearOutput:
		return "output"
	case ClearAll:
		return "all"
	default:
		return "unknown"
	}
}

// ParseFlowControl accepts none, software (xonxoff) and hardware (rtscts).
func ParseFlowControl(s string) (FlowControl, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "off":
		return FlowControlNone, nil
	case "software", "xonxoff", "xon/xoff":
		return FlowControlSoftware, nil
	case "hardware", "rtscts", "rts/cts":
		return FlowControlHardware, nil
	default:
		return FlowControlNone, fmt.Errorf("%w: flow control %q (valid: none, software, hardware)", ErrInvalidConfig, s)
	}
}

// ParseParity accepts none, odd and even, or their first letter.
func ParseParity(s string) (Parity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "n":
		return ParityNone, nil
	case "odd", "o":
		return ParityOdd, nil
	case "even", "e":
		return ParityEven, nil
	default:
		return ParityNone, fmt.Errorf("%w: parity %q (valid: none, odd, even)", ErrInvalidConfig, s)
	}
}

func ParseDataBits(s string) (DataBits, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || !DataBits(n).valid() {
		return 0, fmt.Errorf("%w: data bits %q (valid: 5, 6, 7, 8)", ErrInvalidConfig, s)
	}
	return DataBits(n), nil
}

func ParseStopBits(s string) (StopBits, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || !StopBits(n).valid() {
		return 0, fmt.Errorf("%w: stop bits %q (valid: 1, 2)", ErrInvalidConfig, s)
	}
	return StopBits(n), nil
}

// ParseClearBuffer accepts input, output and all (or both).
func ParseClearBuffer(s string) (ClearBuffer, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "input", "in", "rx":
		return ClearInput, nil
	case "output", "out", "tx":
		return ClearOutput, nil
	case "", "all", "both":
		return ClearAll, nil
	default:
		return ClearAll, fmt.Errorf("%w: buffer %q (valid: input, output, all)", ErrInvalidConfig, s)
	}
}
