package serial

import "errors"

// Predefined error types for robust error handling
var (
	ErrDeviceNotFound   = errors.New("serial device not found")
	ErrPermissionDenied = errors.New("permission denied accessing serial device")
	ErrDeviceInUse      = errors.New("serial device already in use")
	ErrInvalidBaudRate  = errors.New("invalid baud rate")
	ErrInvalidConfig    = errors.New("invalid serial configuration")
	ErrPortClosed       = errors.New("serial port is closed")

	// ErrTimeout is returned by Read when no data arrived within the
	// handle's timeout. Polling loops treat it as "nothing yet".
	ErrTimeout = errors.New("serial read timed out")

	// ErrDisconnected is returned when the device hung up underneath an
	// open handle, typically an unplugged USB adapter.
	ErrDisconnected = errors.New("serial device disconnected")

	// ErrUnsupported is returned for operations the platform driver cannot perform.
	ErrUnsupported = errors.New("operation not supported by serial driver")
)
