// Package serial provides serial port handles and port discovery for
// go-serialhost.
//
// On Linux the handle is implemented directly on termios2 and ioctl calls;
// on other platforms it wraps go.bug.st/serial.
//
// # Basic Usage
//
// Open a serial port with default configuration (115200 8N1, no flow control,
// 200ms read timeout):
//
//	port, err := serial.Open("/dev/ttyUSB0")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer port.Close()
//
//	n, err := port.Write([]byte("Hello"))
//	buffer := make([]byte, 256)
//	n, err = port.Read(buffer)
//	if errors.Is(err, serial.ErrTimeout) {
//	    // nothing arrived within the timeout
//	}
//
// # Configuration Options
//
//	port, err := serial.Open("/dev/ttyUSB0",
//	    serial.WithBaudRate(9600),
//	    serial.WithParity(serial.ParityEven),
//	    serial.WithFlowControl(serial.FlowControlHardware),
//	    serial.WithTimeout(time.Second),
//	)
//
// Every setting can also be changed on the open handle (SetBaudRate,
// SetParity, ...) without reopening.
//
// # Duplication
//
// Duplicate returns a second handle on the same open device, so a background
// reader can poll while the original handle is reconfigured or written to.
// On Linux this is a dup(2) of the descriptor. Elsewhere the handles share
// one driver port and take turns on it.
//
// # Port Discovery
//
//	ports, _ := serial.AvailablePorts()         // driver enumeration, USB only
//	probed, _ := serial.ProbePorts(ctx)         // platform tool scraping
//	paths, _ := serial.ListPorts()              // /dev scan
//	info, _ := serial.GetPortInfo("/dev/ttyUSB0")
//
// Discovered ports carry the attributes type, vid, pid, serial_number,
// manufacturer and product, each "Unknown" when it cannot be resolved.
package serial
