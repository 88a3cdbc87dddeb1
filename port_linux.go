//go:build linux

package serial

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// minWriteWait bounds how long Write waits for room in the output queue
// when the read timeout is shorter.
const minWriteWait = time.Second

// port is the termios implementation of the Port interface
type port struct {
	mu     sync.RWMutex
	fd     int
	name   string
	config Config
	closed bool
}

// Ensure port implements Port interface at compile time
var _ Port = (*port)(nil)

// getBaudRate converts an integer baud rate to the unix constant
func getBaudRate(rate int) (uint32, error) {
	switch rate {
	case 50:
		return unix.B50, nil
	case 75:
		return unix.B75, nil
	case 110:
		return unix.B110, nil
	case 134:
		return unix.B134, nil
	case 150:
		return unix.B150, nil
	case 200:
		return unix.B200, nil
	case 300:
		return unix.B300, nil
	case 600:
		return unix.B600, nil
	case 1200:
		return unix.B1200, nil
	case 1800:
		return unix.B1800, nil
	case 2400:
		return unix.B2400, nil
	case 4800:
		return unix.B4800, nil
	case 9600:
		return unix.B9600, nil
	case 19200:
		return unix.B19200, nil
	case 38400:
		return unix.B38400, nil
	case 57600:
		return unix.B57600, nil
	case 115200:
		return unix.B115200, nil
	case 230400:
		return unix.B230400, nil
	case 460800:
		return unix.B460800, nil
	case 500000:
		return unix.B500000, nil
	case 576000:
		return unix.B576000, nil
	case 921600:
		return unix.B921600, nil
	case 1000000:
		return unix.B1000000, nil
	case 1152000:
		return unix.B1152000, nil
	case 1500000:
		return unix.B1500000, nil
	case 2000000:
		return unix.B2000000, nil
	case 2500000:
		return unix.B2500000, nil
	case 3000000:
		return unix.B3000000, nil
	case 3500000:
		return unix.B3500000, nil
	case 4000000:
		return unix.B4000000, nil
	default:
		return 0, ErrInvalidBaudRate
	}
}

func openPort(device string, config Config) (Port, error) {
	fd, err := unix.Open(device, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", device, classifyOpenError(err))
	}

	// Refuse further open(2) calls on the tty while we hold it.
	if err := unix.IoctlSetInt(fd, unix.TIOCEXCL, 0); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("failed to lock %s: %w", device, err)
	}

	if err := configurePort(fd, config); err != nil {
		unix.Close(fd)
		return nil, err
	}

	return &port{
		fd:     fd,
		name:   device,
		config: config,
	}, nil
}

func classifyOpenError(err error) error {
	switch {
	case errors.Is(err, unix.ENOENT), errors.Is(err, unix.ENODEV), errors.Is(err, unix.ENXIO):
		return fmt.Errorf("%w: %v", ErrDeviceNotFound, err)
	case errors.Is(err, unix.EACCES), errors.Is(err, unix.EPERM):
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	case errors.Is(err, unix.EBUSY):
		return fmt.Errorf("%w: %v", ErrDeviceInUse, err)
	default:
		return err
	}
}

// configurePort puts the tty in raw mode and applies every field of config
func configurePort(fd int, config Config) error {
	termios, err := unix.IoctlGetTermios(fd, unix.TCGETS2)
	if err != nil {
		return fmt.Errorf("failed to get termios: %v", err)
	}

	termios.Cflag = unix.CREAD | unix.CLOCAL
	termios.Iflag = 0 // No input processing
	termios.Oflag = 0 // No output processing
	termios.Lflag = 0 // No line processing (raw mode)

	// Reads never block in the kernel; poll(2) provides the timeout.
	termios.Cc[unix.VMIN] = 0
	termios.Cc[unix.VTIME] = 0

	if err := setSpeed(termios, config.BaudRate); err != nil {
		return err
	}
	setDataBits(termios, config.DataBits)
	setStopBits(termios, config.StopBits)
	setParity(termios, config.Parity)
	setFlowControl(termios, config.FlowControl)

	if err := unix.IoctlSetTermios(fd, unix.TCSETS2, termios); err != nil {
		return fmt.Errorf("failed to set termios: %v", err)
	}
	return nil
}

// setSpeed uses the B* table where possible and BOTHER otherwise
func setSpeed(t *unix.Termios, rate int) error {
	if rate <= 0 {
		return ErrInvalidBaudRate
	}
	t.Cflag &^= unix.CBAUD | unix.CIBAUD
	if code, err := getBaudRate(rate); err == nil {
		t.Cflag |= code
	} else {
		t.Cflag |= unix.BOTHER
	}
	t.Ispeed = uint32(rate)
	t.Ospeed = uint32(rate)
	return nil
}

func setDataBits(t *unix.Termios, bits DataBits) {
	t.Cflag &^= unix.CSIZE
	switch bits {
	case DataBits5:
		t.Cflag |= unix.CS5
	case DataBits6:
		t.Cflag |= unix.CS6
	case DataBits7:
		t.Cflag |= unix.CS7
	default:
		t.Cflag |= unix.CS8
	}
}

func setStopBits(t *unix.Termios, bits StopBits) {
	if bits == StopBitsTwo {
		t.Cflag |= unix.CSTOPB
	} else {
		t.Cflag &^= unix.CSTOPB
	}
}

func setParity(t *unix.Termios, parity Parity) {
	t.Cflag &^= unix.PARENB | unix.PARODD
	t.Iflag &^= unix.INPCK
	switch parity {
	case ParityOdd:
		t.Cflag |= unix.PARENB | unix.PARODD
		t.Iflag |= unix.INPCK
	case ParityEven:
		t.Cflag |= unix.PARENB
		t.Iflag |= unix.INPCK
	}
}

func setFlowControl(t *unix.Termios, fc FlowControl) {
	t.Cflag &^= unix.CRTSCTS
	t.Iflag &^= unix.IXON | unix.IXOFF | unix.IXANY
	switch fc {
	case FlowControlHardware:
		t.Cflag |= unix.CRTSCTS
	case FlowControlSoftware:
		t.Iflag |= unix.IXON | unix.IXOFF
	}
}

// updateTermios reads the current settings from the device, applies fn and
// writes them back, so changes made through a duplicate are preserved
func (p *port) updateTermios(fn func(*unix.Termios) error) error {
	termios, err := unix.IoctlGetTermios(p.fd, unix.TCGETS2)
	if err != nil {
		return fmt.Errorf("failed to get termios: %w", err)
	}
	if err := fn(termios); err != nil {
		return err
	}
	if err := unix.IoctlSetTermios(p.fd, unix.TCSETS2, termios); err != nil {
		return fmt.Errorf("failed to set termios: %w", err)
	}
	return nil
}

func (p *port) Name() string {
	return p.name
}

func (p *port) Config() Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.config
}

// Close closes the serial port
func (p *port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPortClosed
	}

	err := unix.Close(p.fd)
	p.closed = true
	return err
}

// Read waits up to the configured timeout for data and returns what is
// available, or ErrTimeout when nothing arrived
func (p *port) Read(buf []byte) (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return 0, ErrPortClosed
	}
	if len(buf) == 0 {
		return 0, nil
	}

	deadline := time.Now().Add(p.config.Timeout)
	for {
		ready, err := p.poll(unix.POLLIN, time.Until(deadline))
		if err != nil {
			return 0, err
		}
		if !ready {
			return 0, ErrTimeout
		}

		n, err := unix.Read(p.fd, buf)
		switch {
		case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EINTR):
			continue
		case err != nil:
			return 0, err
		case n == 0:
			// Readable with nothing to read is a hangup.
			return 0, ErrDisconnected
		}
		return n, nil
	}
}

// poll waits for events on the descriptor. A hangup without pending input
// is reported as ErrDisconnected.
func (p *port) poll(events int16, wait time.Duration) (bool, error) {
	fds := []unix.PollFd{{Fd: int32(p.fd), Events: events}}
	for {
		ms := int(wait / time.Millisecond)
		if ms < 0 {
			ms = 0
		}
		n, err := unix.Poll(fds, ms)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("poll %s: %w", p.name, err)
		}
		if n == 0 {
			return false, nil
		}
		revents := fds[0].Revents
		if revents&events == 0 && revents&(unix.POLLHUP|unix.POLLERR|unix.POLLNVAL) != 0 {
			return false, ErrDisconnected
		}
		return true, nil
	}
}

// Write writes all of data, waiting for room in the output queue as needed
func (p *port) Write(data []byte) (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return 0, ErrPortClosed
	}

	wait := p.config.Timeout
	if wait < minWriteWait {
		wait = minWriteWait
	}

	written := 0
	for written < len(data) {
		n, err := unix.Write(p.fd, data[written:])
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
			ready, err := p.poll(unix.POLLOUT, wait)
			if err != nil {
				return written, err
			}
			if !ready {
				return written, fmt.Errorf("write %s: output queue full: %w", p.name, ErrTimeout)
			}
			continue
		}
		if err != nil {
			return written, err
		}
		written += n
	}
	return written, nil
}

func (p *port) SetBaudRate(rate int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPortClosed
	}
	if err := p.updateTermios(func(t *unix.Termios) error { return setSpeed(t, rate) }); err != nil {
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
	if err := p.updateTermios(func(t *unix.Termios) error { setDataBits(t, bits); return nil }); err != nil {
		return err
	}
	p.config.DataBits = bits
	return nil
}

func (p *port) SetFlowControl(fc FlowControl) error {
	if !fc.valid() {
		return ErrInvalidConfig
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPortClosed
	}
	if err := p.updateTermios(func(t *unix.Termios) error { setFlowControl(t, fc); return nil }); err != nil {
		return err
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
	if err := p.updateTermios(func(t *unix.Termios) error { setParity(t, parity); return nil }); err != nil {
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
	if err := p.updateTermios(func(t *unix.Termios) error { setStopBits(t, bits); return nil }); err != nil {
		return err
	}
	p.config.StopBits = bits
	return nil
}

// SetTimeout changes the read timeout of this handle only
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

// getModemStatus retrieves modem control signals using unix package
func getModemStatus(fd int) (int, error) {
	return unix.IoctlGetInt(fd, unix.TIOCMGET)
}

// setModemBit raises or lowers one TIOCM line
func setModemBit(fd int, bit int, state bool) error {
	if state {
		return unix.IoctlSetPointerInt(fd, unix.TIOCMBIS, bit)
	}
	return unix.IoctlSetPointerInt(fd, unix.TIOCMBIC, bit)
}

// SetRTS manually sets the RTS signal state
func (p *port) SetRTS(state bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPortClosed
	}
	return setModemBit(p.fd, unix.TIOCM_RTS, state)
}

// SetDTR manually sets the DTR signal state
func (p *port) SetDTR(state bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPortClosed
	}
	return setModemBit(p.fd, unix.TIOCM_DTR, state)
}

// GetModemSignals returns current state of all modem control signals
func (p *port) GetModemSignals() (ModemSignals, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ModemSignals{}, ErrPortClosed
	}

	status, err := getModemStatus(p.fd)
	if err != nil {
		return ModemSignals{}, err
	}

	return ModemSignals{
		CTS: status&unix.TIOCM_CTS != 0,
		DSR: status&unix.TIOCM_DSR != 0,
		RI:  status&unix.TIOCM_RI != 0,
		DCD: status&unix.TIOCM_CAR != 0,
		RTS: status&unix.TIOCM_RTS != 0,
		DTR: status&unix.TIOCM_DTR != 0,
	}, nil
}

// BytesToRead returns the number of bytes waiting in the input queue
func (p *port) BytesToRead() (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return 0, ErrPortClosed
	}
	return unix.IoctlGetInt(p.fd, unix.TIOCINQ)
}

// BytesToWrite returns the number of bytes not yet transmitted
func (p *port) BytesToWrite() (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return 0, ErrPortClosed
	}
	return unix.IoctlGetInt(p.fd, unix.TIOCOUTQ)
}

// Clear discards unread input, unwritten output, or both
func (p *port) Clear(buffer ClearBuffer) error {
	var selector int
	switch buffer {
	case ClearInput:
		selector = unix.TCIFLUSH
	case ClearOutput:
		selector = unix.TCOFLUSH
	case ClearAll:
		selector = unix.TCIOFLUSH
	default:
		return ErrInvalidConfig
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPortClosed
	}
	return unix.IoctlSetInt(p.fd, unix.TCFLSH, selector)
}

func (p *port) SetBreak() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPortClosed
	}
	return unix.IoctlSetInt(p.fd, unix.TIOCSBRK, 0)
}

func (p *port) ClearBreak() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPortClosed
	}
	return unix.IoctlSetInt(p.fd, unix.TIOCCBRK, 0)
}

// Duplicate dups the descriptor. Both handles refer to the same open file
// description, so termios state is shared while each keeps its own timeout.
func (p *port) Duplicate() (Port, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return nil, ErrPortClosed
	}

	fd, err := unix.FcntlInt(uintptr(p.fd), unix.F_DUPFD_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to duplicate %s: %w", p.name, err)
	}

	return &port{
		fd:     fd,
		name:   p.name,
		config: p.config,
	}, nil
}
