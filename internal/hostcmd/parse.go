package hostcmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	serial "github.com/allbin/go-serialhost"
	"github.com/allbin/go-serialhost/manager"
)

// ParseHex decodes space separated or contiguous hex bytes, with or without
// 0x prefixes
func ParseHex(s string) ([]byte, error) {
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "0x", "")
	s = strings.ReplaceAll(s, "0X", "")

	if len(s)%2 != 0 {
		return nil, fmt.Errorf("hex string must have even length")
	}

	out := make([]byte, 0, len(s)/2)
	for i := 0; i < len(s); i += 2 {
		b, err := strconv.ParseUint(s[i:i+2], 16, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid hex byte '%s'", s[i:i+2])
		}
		out = append(out, byte(b))
	}
	return out, nil
}

// ParseSignalState reads a line level
func ParseSignalState(state string) (bool, error) {
	switch strings.ToLower(state) {
	case "high", "on", "true", "1":
		return true, nil
	case "low", "off", "false", "0":
		return false, nil
	default:
		return false, fmt.Errorf("invalid state: %s (valid: high, low, on, off, true, false, 1, 0)", state)
	}
}

// FormatSignalState renders a line level
func FormatSignalState(state bool) string {
	if state {
		return "HIGH"
	}
	return "LOW"
}

// parseTimeout accepts a Go duration or a bare number of milliseconds
func parseTimeout(s string) (time.Duration, error) {
	if ms, err := strconv.Atoi(s); err == nil {
		if ms < 0 {
			return 0, fmt.Errorf("negative timeout %d", ms)
		}
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q", s)
	}
	if d < 0 {
		return 0, fmt.Errorf("negative timeout %v", d)
	}
	return d, nil
}

func parseSize(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	if n > manager.MaxChunkSize {
		return 0, fmt.Errorf("%w: size %d exceeds %d", serial.ErrInvalidConfig, n, manager.MaxChunkSize)
	}
	return n, nil
}
