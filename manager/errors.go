package manager

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound    = errors.New("serial port not found")
	ErrAlreadyOpen = errors.New("serial port is open")
	ErrLockFailure = errors.New("failed to acquire port registry lock")
	ErrJoinFailure = errors.New("listener did not stop cleanly")
)

// PortError records a failed command and the port it targeted
type PortError struct {
	Port string
	Op   string
	Err  error
}

func (e *PortError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Port, e.Err)
}

func (e *PortError) Unwrap() error { return e.Err }

// portError wraps err unless it already names the same port
func portError(op, id string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PortError
	if errors.As(err, &pe) && pe.Port == id {
		return err
	}
	return &PortError{Port: id, Op: op, Err: err}
}
