package serial

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// Port type values only produced by ProbePorts
const (
	PortTypeCOM     = "COM"
	PortTypeVirtual = "Virtual"
)

// runCommand executes an external program and returns its stdout
var runCommand = func(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// readDevDir lists device node names; tests replace it
var readDevDir = func() ([]string, error) {
	entries, err := os.ReadDir("/dev")
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

// ProbePorts discovers ports by scraping platform tools instead of asking
// the driver layer. Each probe fails independently: results from the probes
// that worked are returned, and an error only when every probe failed.
func ProbePorts(ctx context.Context) (map[string]map[string]string, error) {
	return probePorts(ctx, runtime.GOOS)
}

type probe func(ctx context.Context, result map[string]map[string]string) error

func probePorts(ctx context.Context, goos string) (map[string]map[string]string, error) {
	var probes []probe
	switch goos {
	case "linux":
		probes = []probe{probeLsusb, probeDevDir(classifyLinuxDevName)}
	case "darwin":
		probes = []probe{probeSystemProfiler, probeDevDir(classifyDarwinDevName)}
	case "windows":
		probes = []probe{probeWmicUSB, probeWmicCOM}
	default:
		return nil, fmt.Errorf("probing ports on %s: %w", goos, ErrUnsupported)
	}

	result := make(map[string]map[string]string)
	var errs []error
	for _, p := range probes {
		if err := p(ctx, result); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == len(probes) {
		return nil, errors.Join(errs...)
	}
	return result, nil
}

func probeLsusb(ctx context.Context, result map[string]map[string]string) error {
	out, err := runCommand(ctx, "lsusb")
	if err != nil {
		return fmt.Errorf("lsusb: %w", err)
	}
	for _, line := range parseUSBListing(out) {
		result[line] = typeAttrs(PortTypeUSB)
	}
	return nil
}

func probeSystemProfiler(ctx context.Context, result map[string]map[string]string) error {
	out, err := runCommand(ctx, "system_profiler", "SPUSBDataType")
	if err != nil {
		return fmt.Errorf("system_profiler: %w", err)
	}
	for _, line := range parseUSBListing(out) {
		result[line] = typeAttrs(PortTypeUSB)
	}
	return nil
}

func probeDevDir(classify func(string) string) probe {
	return func(_ context.Context, result map[string]map[string]string) error {
		names, err := readDevDir()
		if err != nil {
			return fmt.Errorf("reading /dev: %w", err)
		}
		for _, name := range names {
			if portType := classify(name); portType != "" {
				result["/dev/"+name] = typeAttrs(portType)
			}
		}
		return nil
	}
}

func probeWmicUSB(ctx context.Context, result map[string]map[string]string) error {
	out, err := runCommand(ctx, "wmic", "path", "Win32_PnPEntity", "where",
		"PNPDeviceID like '%USB%' and Name like '%(COM%'", "get", "Name,DeviceID")
	if err != nil {
		return fmt.Errorf("wmic Win32_PnPEntity: %w", err)
	}
	for _, name := range parseWmicColumn(out, 1) {
		result[name] = typeAttrs(PortTypeUSB)
	}
	return nil
}

func probeWmicCOM(ctx context.Context, result map[string]map[string]string) error {
	out, err := runCommand(ctx, "wmic", "path", "Win32_SerialPort", "get", "DeviceID,Name")
	if err != nil {
		return fmt.Errorf("wmic Win32_SerialPort: %w", err)
	}
	for _, name := range parseWmicColumn(out, 0) {
		result[name] = typeAttrs(PortTypeCOM)
	}
	return nil
}

// typeAttrs is the attribute set of a probed port. Probes only learn the
// type; every other attribute stays Unknown.
func typeAttrs(portType string) map[string]string {
	attrs := unknownAttributes()
	attrs[AttrType] = portType
	return attrs
}

// parseUSBListing keeps the lines of lsusb or system_profiler output that
// mention a USB or serial device
func parseUSBListing(out []byte) []string {
	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.Contains(line, "Serial") || strings.Contains(line, "USB") {
			lines = append(lines, line)
		}
	}
	return lines
}

// parseWmicColumn skips the header row and returns the given
// whitespace-separated field of every row with at least two fields
func parseWmicColumn(out []byte, field int) []string {
	var names []string
	scanner := bufio.NewScanner(bytes.NewReader(out))
	header := true
	for scanner.Scan() {
		if header {
			header = false
			continue
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) < 2 || field >= len(parts) {
			continue
		}
		names = append(names, parts[field])
	}
	return names
}

// classifyDevName gives the port type of a /dev entry for PortInfo
func classifyDevName(name string) string {
	switch {
	case strings.HasPrefix(name, "ttyUSB"), strings.HasPrefix(name, "ttyACM"):
		return PortTypeUSB
	case strings.HasPrefix(name, "rfcomm"):
		return PortTypeBluetooth
	default:
		return PortTypeUnknown
	}
}

func classifyLinuxDevName(name string) string {
	switch {
	case strings.HasPrefix(name, "ttyUSB"):
		return PortTypeUSB
	case strings.HasPrefix(name, "ttyS"):
		return PortTypeCOM
	case strings.HasPrefix(name, "rfcomm"):
		return PortTypeBluetooth
	case strings.HasPrefix(name, "ttyACM"):
		return PortTypeVirtual
	default:
		return ""
	}
}

func classifyDarwinDevName(name string) string {
	if !strings.HasPrefix(name, "cu.") && !strings.HasPrefix(name, "tty.") {
		return ""
	}
	switch {
	case strings.Contains(name, "Bluetooth"):
		return PortTypeBluetooth
	case strings.HasPrefix(name, "cu."):
		return PortTypeUSB
	default:
		return PortTypeCOM
	}
}
