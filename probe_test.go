package serial

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// fakeCommands replaces runCommand and readDevDir for the duration of a test
func fakeCommands(t *testing.T, outputs map[string]string, devNames []string, devErr error) {
	t.Helper()
	oldRun, oldDev := runCommand, readDevDir
	runCommand = func(_ context.Context, name string, args ...string) ([]byte, error) {
		out, ok := outputs[name]
		if !ok {
			return nil, errors.New(name + ": executable file not found")
		}
		return []byte(out), nil
	}
	readDevDir = func() ([]string, error) { return devNames, devErr }
	t.Cleanup(func() {
		runCommand, readDevDir = oldRun, oldDev
	})
}

// probedAttrs is what a shell probe knows about a port: its type and nothing else
func probedAttrs(portType string) map[string]string {
	return map[string]string{
		AttrType:         portType,
		AttrVendorID:     PortTypeUnknown,
		AttrProductID:    PortTypeUnknown,
		AttrSerialNumber: PortTypeUnknown,
		AttrManufacturer: PortTypeUnknown,
		AttrProduct:      PortTypeUnknown,
	}
}

func TestProbePortsLinux(t *testing.T) {
	fakeCommands(t, map[string]string{
		"lsusb": "Bus 001 Device 002: ID 0403:6001 Future Technology Devices International, Ltd FT232 Serial (UART) IC\n" +
			"Bus 001 Device 001: ID 1d6b:0002 Linux Foundation 2.0 root hub\n",
	}, []string{"ttyUSB0", "ttyS0", "rfcomm0", "ttyACM0", "null", "tty1"}, nil)

	got, err := probePorts(context.Background(), "linux")
	if err != nil {
		t.Fatalf("probePorts failed: %v", err)
	}

	const ftdi = "Bus 001 Device 002: ID 0403:6001 Future Technology Devices International, Ltd FT232 Serial (UART) IC"
	want := map[string]map[string]string{
		ftdi:           probedAttrs(PortTypeUSB),
		"/dev/ttyUSB0": probedAttrs(PortTypeUSB),
		"/dev/ttyS0":   probedAttrs(PortTypeCOM),
		"/dev/rfcomm0": probedAttrs(PortTypeBluetooth),
		"/dev/ttyACM0": probedAttrs(PortTypeVirtual),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("probePorts(linux) mismatch (-want +got):\n%s", diff)
	}
}

func TestProbePortsPartialFailure(t *testing.T) {
	// lsusb missing: the /dev probe still reports
	fakeCommands(t, nil, []string{"ttyUSB3"}, nil)

	got, err := probePorts(context.Background(), "linux")
	if err != nil {
		t.Fatalf("probePorts failed: %v", err)
	}
	if _, ok := got["/dev/ttyUSB3"]; !ok || len(got) != 1 {
		t.Errorf("probePorts() = %v, want only /dev/ttyUSB3", got)
	}
}

func TestProbePortsAllFail(t *testing.T) {
	fakeCommands(t, nil, nil, errors.New("permission denied"))

	if _, err := probePorts(context.Background(), "linux"); err == nil {
		t.Error("Expected error when every probe fails")
	}
}

func TestProbePortsUnsupportedOS(t *testing.T) {
	if _, err := probePorts(context.Background(), "plan9"); !errors.Is(err, ErrUnsupported) {
		t.Errorf("probePorts(plan9) error = %v, want ErrUnsupported", err)
	}
}

func TestProbePortsDarwin(t *testing.T) {
	fakeCommands(t, map[string]string{
		"system_profiler": "USB:\n\n    USB 3.1 Bus:\n      Host Controller Driver: AppleT8103USBXHCI\n",
	}, []string{"cu.usbserial-A10", "tty.Bluetooth-Incoming-Port", "tty.debug", "disk0"}, nil)

	got, err := probePorts(context.Background(), "darwin")
	if err != nil {
		t.Fatalf("probePorts failed: %v", err)
	}

	checks := map[string]string{
		"/dev/cu.usbserial-A10":            PortTypeUSB,
		"/dev/tty.Bluetooth-Incoming-Port": PortTypeBluetooth,
		"/dev/tty.debug":                   PortTypeCOM,
		"USB:":                             PortTypeUSB,
		"USB 3.1 Bus:":                     PortTypeUSB,
	}
	for name, wantType := range checks {
		if diff := cmp.Diff(probedAttrs(wantType), got[name]); diff != "" {
			t.Errorf("%s attributes mismatch (-want +got):\n%s", name, diff)
		}
	}
	if _, ok := got["/dev/disk0"]; ok {
		t.Error("disk0 should not be reported as a serial port")
	}
}

func TestProbePortsWindows(t *testing.T) {
	fakeCommands(t, map[string]string{
		"wmic": "DeviceID  Name\nCOM3      USB-SERIAL CH340 (COM3)\n\n",
	}, nil, nil)

	got, err := probePorts(context.Background(), "windows")
	if err != nil {
		t.Fatalf("probePorts failed: %v", err)
	}

	// Both wmic queries see the same fake output: the PnP query takes the
	// second column and the serial port query the first.
	want := map[string]map[string]string{
		"COM3":       probedAttrs(PortTypeCOM),
		"USB-SERIAL": probedAttrs(PortTypeUSB),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("probePorts(windows) mismatch (-want +got):\n%s", diff)
	}
}

func TestParseWmicColumn(t *testing.T) {
	out := []byte("DeviceID  Name\r\nCOM1      Communications Port (COM1)\r\n\r\nCOM4\r\n")

	got := parseWmicColumn(out, 0)
	if diff := cmp.Diff([]string{"COM1"}, got); diff != "" {
		t.Errorf("parseWmicColumn() mismatch (-want +got):\n%s", diff)
	}
}

func TestParseUSBListing(t *testing.T) {
	out := "Bus 002 Device 003: ID 067b:2303 Prolific Technology, Inc. PL2303 Serial Port\n\nBus 002 Device 001: ID 1d6b:0003 Linux Foundation 3.0 root hub\n"

	got := parseUSBListing([]byte(out))
	if len(got) != 1 || !strings.Contains(got[0], "PL2303") {
		t.Errorf("parseUSBListing() = %v, want the PL2303 line only", got)
	}
}
