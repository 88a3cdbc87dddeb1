package serial

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestListPorts(t *testing.T) {
	ports, err := ListPorts()
	if err != nil {
		t.Skipf("ListPorts unavailable: %v", err)
	}

	for _, port := range ports {
		if !strings.HasPrefix(port, "/dev/") {
			t.Errorf("Port path doesn't start with /dev/: %s", port)
		}
		if !isCharacterDevice(port) {
			t.Errorf("Port is not a character device: %s", port)
		}
	}

	for i := 1; i < len(ports); i++ {
		if ports[i-1] > ports[i] {
			t.Errorf("Ports are not sorted: %s > %s", ports[i-1], ports[i])
		}
	}
}

func TestListPortsInSkipsRegularFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"ttyUSB0", "ttyS1", "tty1"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatalf("Failed to create %s: %v", name, err)
		}
	}

	ports, err := listPortsIn(dir)
	if err != nil {
		t.Fatalf("listPortsIn failed: %v", err)
	}
	if len(ports) != 0 {
		t.Errorf("listPortsIn() = %v, want no ports for regular files", ports)
	}

	if _, err := listPortsIn(filepath.Join(dir, "missing")); err == nil {
		t.Error("Expected error for missing directory")
	}
}

func TestIsCharacterDevice(t *testing.T) {
	tests := []struct {
		path     string
		expected bool
	}{
		{"/dev/null", true},
		{"/dev/zero", true},
		{os.TempDir(), false},
		{"/nonexistent", false},
	}

	for _, test := range tests {
		result := isCharacterDevice(test.path)
		if result != test.expected {
			t.Errorf("isCharacterDevice(%s) = %v, expected %v", test.path, result, test.expected)
		}
	}
}

func TestIsSerialDeviceName(t *testing.T) {
	tests := []struct {
		name        string
		shouldMatch bool
	}{
		{"ttyUSB0", true},
		{"ttyUSB1", true},
		{"ttyACM0", true},
		{"ttyS0", true},
		{"ttyAMA0", true},
		{"rfcomm0", true},
		{"tty1", false},
		{"tty2", false},
		{"console", false},
		{"ptmx", false},
		{"ptyp0", false},
		{"random", false},
		{"urandom", false},
	}

	for _, tt := range tests {
		if got := isSerialDeviceName(tt.name); got != tt.shouldMatch {
			t.Errorf("isSerialDeviceName(%s) = %v, want %v", tt.name, got, tt.shouldMatch)
		}
	}
}

func TestGetPortDescription(t *testing.T) {
	tests := []struct {
		name     string
		expected string
	}{
		{"ttyUSB0", "USB Serial Port"},
		{"ttyACM0", "USB CDC/ACM Device"},
		{"ttyS0", "Standard Serial Port"},
		{"ttyAMA0", "ARM Serial Port"},
		{"ttymxc0", "i.MX Serial Port"},
		{"ttyO0", "OMAP Serial Port"},
		{"ttySAC0", "Samsung Serial Port"},
		{"ttyTHS0", "Tegra Serial Port"},
		{"rfcomm0", "Bluetooth Serial Port"},
		{"unknown", "Serial Port"},
	}

	for _, test := range tests {
		result := getPortDescription(test.name)
		if result != test.expected {
			t.Errorf("getPortDescription(%s) = %s, expected %s", test.name, result, test.expected)
		}
	}
}

func TestGetPortInfo(t *testing.T) {
	info, err := GetPortInfo("/dev/null")
	if err != nil {
		t.Skipf("GetPortInfo unavailable: %v", err)
	}

	if info.Name != "null" {
		t.Errorf("Expected name 'null', got '%s'", info.Name)
	}
	if info.Path != "/dev/null" {
		t.Errorf("Expected path '/dev/null', got '%s'", info.Path)
	}
	if info.Description == "" {
		t.Error("Description should not be empty")
	}

	_, err = GetPortInfo("/dev/nonexistent")
	if err != ErrDeviceNotFound {
		t.Errorf("Expected ErrDeviceNotFound, got %v", err)
	}
}

func TestReadSysfsFile(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name     string
		expected string
		setup    func(string) error
	}{
		{
			name:     "normal file",
			expected: "1234",
			setup: func(path string) error {
				return os.WriteFile(path, []byte("1234\n"), 0o644)
			},
		},
		{
			name:     "file with spaces",
			expected: "test value",
			setup: func(path string) error {
				return os.WriteFile(path, []byte("  test value  \n"), 0o644)
			},
		},
		{
			name:     "nonexistent file",
			expected: "",
			setup:    func(path string) error { return nil },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testFile := filepath.Join(tmpDir, tt.name)
			if err := tt.setup(testFile); err != nil {
				t.Fatalf("Setup failed: %v", err)
			}
			if result := readSysfsFile(testFile); result != tt.expected {
				t.Errorf("readSysfsFile() = %q, expected %q", result, tt.expected)
			}
		})
	}
}

// withSysfsFixture builds class/tty/ttyUSB0/device -> .../5-2.3.1:1.0/ttyUSB0
// with USB attributes on the 5-2.3.1 device directory
func withSysfsFixture(t *testing.T) {
	t.Helper()
	root := t.TempDir()

	devicePath := filepath.Join(root, "devices", "usb5", "5-2.3.1")
	interfacePath := filepath.Join(devicePath, "5-2.3.1:1.0")
	ttyPath := filepath.Join(interfacePath, "ttyUSB0")
	classTtyPath := filepath.Join(root, "class", "tty", "ttyUSB0")

	for _, dir := range []string{ttyPath, classTtyPath} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("Failed to create %s: %v", dir, err)
		}
	}

	deviceFiles := map[string]string{
		"idVendor":     "0403",
		"idProduct":    "6010",
		"serial":       "FT123456",
		"manufacturer": "FTDI",
		"product":      "FT2232C Dual USB-UART",
		"busnum":       "5",
		"devnum":       "7",
	}
	for filename, content := range deviceFiles {
		if err := os.WriteFile(filepath.Join(devicePath, filename), []byte(content+"\n"), 0o644); err != nil {
			t.Fatalf("Failed to write %s: %v", filename, err)
		}
	}
	if err := os.WriteFile(filepath.Join(interfacePath, "bInterfaceNumber"), []byte("00\n"), 0o644); err != nil {
		t.Fatalf("Failed to write interface number: %v", err)
	}
	if err := os.Symlink(ttyPath, filepath.Join(classTtyPath, "device")); err != nil {
		t.Fatalf("Failed to create symlink: %v", err)
	}

	old := sysfsRoot
	sysfsRoot = root
	t.Cleanup(func() { sysfsRoot = old })
}

func TestEnrichUSBInfo(t *testing.T) {
	withSysfsFixture(t)

	info := &PortInfo{Name: "ttyUSB0", Path: "/dev/ttyUSB0"}
	enrichUSBInfo(info)

	tests := []struct {
		name     string
		got      string
		expected string
	}{
		{"VendorID", info.VendorID, "0403"},
		{"ProductID", info.ProductID, "6010"},
		{"SerialNumber", info.SerialNumber, "FT123456"},
		{"InterfaceNumber", info.InterfaceNumber, "00"},
		{"BusNumber", info.BusNumber, "5"},
		{"DeviceNumber", info.DeviceNumber, "7"},
		{"Manufacturer", info.Manufacturer, "FTDI"},
		{"Product", info.Product, "FT2232C Dual USB-UART"},
		{"Type", info.Type, PortTypeUSB},
	}

	for _, tt := range tests {
		if tt.got != tt.expected {
			t.Errorf("%s = %q, expected %q", tt.name, tt.got, tt.expected)
		}
	}
}

func TestEnrichUSBInfoGracefulFailure(t *testing.T) {
	info := &PortInfo{Name: "ttyUSB999", Path: "/dev/ttyUSB999"}

	enrichUSBInfo(info)

	if info.VendorID != "" || info.ProductID != "" || info.SerialNumber != "" {
		t.Errorf("Expected empty USB fields, got %+v", info)
	}
}
