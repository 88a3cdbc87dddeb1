package serial

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.bug.st/serial/enumerator"
)

func withDetailedPorts(t *testing.T, details []*enumerator.PortDetails, err error) {
	t.Helper()
	old := detailedPortsList
	oldRoot := sysfsRoot
	detailedPortsList = func() ([]*enumerator.PortDetails, error) { return details, err }
	sysfsRoot = t.TempDir()
	t.Cleanup(func() {
		detailedPortsList = old
		sysfsRoot = oldRoot
	})
}

func TestAvailablePortsUSBOnly(t *testing.T) {
	withDetailedPorts(t, []*enumerator.PortDetails{
		{Name: "/dev/ttyS0"},
		{Name: "/dev/ttyUSB1", IsUSB: true, VID: "10c4", PID: "ea60", SerialNumber: "0001", Product: "CP2102"},
		{Name: "/dev/ttyUSB0", IsUSB: true, VID: "0403", PID: "6001"},
	}, nil)

	got, err := AvailablePorts()
	if err != nil {
		t.Fatalf("AvailablePorts failed: %v", err)
	}

	want := map[string]map[string]string{
		"/dev/ttyUSB0": {
			AttrType:         PortTypeUSB,
			AttrVendorID:     "1027",
			AttrProductID:    "24577",
			AttrSerialNumber: PortTypeUnknown,
			AttrManufacturer: PortTypeUnknown,
			AttrProduct:      PortTypeUnknown,
		},
		"/dev/ttyUSB1": {
			AttrType:         PortTypeUSB,
			AttrVendorID:     "4292",
			AttrProductID:    "60000",
			AttrSerialNumber: "0001",
			AttrManufacturer: PortTypeUnknown,
			AttrProduct:      "CP2102",
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("AvailablePorts() mismatch (-want +got):\n%s", diff)
	}
}

func TestAvailablePortsFiltered(t *testing.T) {
	withDetailedPorts(t, []*enumerator.PortDetails{
		{Name: "/dev/rfcomm0"},
		{Name: "/dev/ttyUSB0", IsUSB: true, VID: "0403", PID: "6001"},
		{Name: "COM7"},
	}, nil)

	tests := []struct {
		kind PortKind
		want []string
	}{
		{KindAll, []string{"/dev/rfcomm0", "/dev/ttyUSB0", "COM7"}},
		{KindUSB, []string{"/dev/ttyUSB0"}},
		{KindBluetooth, []string{"/dev/rfcomm0"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			got, err := AvailablePortsFiltered(tt.kind)
			if err != nil {
				t.Fatalf("AvailablePortsFiltered(%s) failed: %v", tt.kind, err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("AvailablePortsFiltered(%s) returned %d ports, want %d", tt.kind, len(got), len(tt.want))
			}
			for _, name := range tt.want {
				if _, ok := got[name]; !ok {
					t.Errorf("AvailablePortsFiltered(%s) missing %s", tt.kind, name)
				}
			}
		})
	}
}

func TestAvailablePortsError(t *testing.T) {
	wantErr := errors.New("enumeration failed")
	withDetailedPorts(t, nil, wantErr)

	if _, err := AvailablePorts(); !errors.Is(err, wantErr) {
		t.Errorf("AvailablePorts() error = %v, want %v", err, wantErr)
	}
}

func TestUSBIDDecimal(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"0403", "1027"},
		{"FFFF", "65535"},
		{"", PortTypeUnknown},
		{"zz", PortTypeUnknown},
	}
	for _, tt := range tests {
		if got := usbIDDecimal(tt.in); got != tt.want {
			t.Errorf("usbIDDecimal(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParsePortKind(t *testing.T) {
	if k, err := ParsePortKind("USB"); err != nil || k != KindUSB {
		t.Errorf("ParsePortKind(USB) = %v, %v", k, err)
	}
	if k, err := ParsePortKind(""); err != nil || k != KindAll {
		t.Errorf("ParsePortKind(\"\") = %v, %v", k, err)
	}
	if _, err := ParsePortKind("serial"); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("ParsePortKind(serial) error = %v, want ErrInvalidConfig", err)
	}
}
