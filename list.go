package serial

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// sysfsRoot is where tty class links are resolved; tests point it at a fixture.
var sysfsRoot = "/sys"

var (
	// Regular expressions for different types of serial devices
	devicePatterns = []*regexp.Regexp{
		regexp.MustCompile(`^ttyUSB\d+$`), // USB serial adapters
		regexp.MustCompile(`^ttyACM\d+$`), // USB CDC/ACM devices
		regexp.MustCompile(`^ttyS\d+$`),   // Standard serial ports
		regexp.MustCompile(`^ttyAMA\d+$`), // ARM/Raspberry Pi serial
		regexp.MustCompile(`^ttymxc\d+$`), // i.MX serial ports
		regexp.MustCompile(`^ttyO\d+$`),   // OMAP serial ports
		regexp.MustCompile(`^ttySAC\d+$`), // Samsung serial ports
		regexp.MustCompile(`^ttyTHS\d+$`), // Tegra serial ports
		regexp.MustCompile(`^rfcomm\d+$`), // Bluetooth RFCOMM
	}

	// Exclude patterns for virtual terminals and other non-serial devices
	excludePatterns = []*regexp.Regexp{
		regexp.MustCompile(`^tty\d+$`),  // Virtual terminals (tty1, tty2, etc.)
		regexp.MustCompile(`^console$`), // Console
		regexp.MustCompile(`^ptmx$`),    // Pseudo-terminal multiplexer
		regexp.MustCompile(`^pty.*$`),   // Pseudo-terminals
		regexp.MustCompile(`^pts/.*$`),  // Pseudo-terminal slaves
	}
)

// ListPorts scans /dev for communication-capable serial devices,
// excluding virtual terminals
func ListPorts() ([]string, error) {
	return listPortsIn("/dev")
}

func listPortsIn(devDir string) ([]string, error) {
	entries, err := os.ReadDir(devDir)
	if err != nil {
		return nil, err
	}

	var ports []string
	for _, entry := range entries {
		name := entry.Name()
		if !isSerialDeviceName(name) {
			continue
		}

		fullPath := filepath.Join(devDir, name)
		if isCharacterDevice(fullPath) {
			ports = append(ports, fullPath)
		}
	}

	sort.Strings(ports)
	return ports, nil
}

// isSerialDeviceName applies the include and exclude patterns to a /dev entry
func isSerialDeviceName(name string) bool {
	for _, pattern := range excludePatterns {
		if pattern.MatchString(name) {
			return false
		}
	}
	for _, pattern := range devicePatterns {
		if pattern.MatchString(name) {
			return true
		}
	}
	return false
}

// isCharacterDevice checks if the given path is a character device
func isCharacterDevice(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

// PortInfo describes a serial device as seen through /dev and sysfs
type PortInfo struct {
	Name            string
	Path            string
	Description     string
	Type            string // PortTypeUSB, PortTypeBluetooth, PortTypePCI or PortTypeUnknown
	VendorID        string
	ProductID       string
	SerialNumber    string
	Manufacturer    string
	Product         string
	InterfaceNumber string
	BusNumber       string
	DeviceNumber    string
}

// GetPortInfo returns detailed information about a specific port
func GetPortInfo(portPath string) (*PortInfo, error) {
	if !isCharacterDevice(portPath) {
		return nil, ErrDeviceNotFound
	}

	name := filepath.Base(portPath)
	info := &PortInfo{
		Name:        name,
		Path:        portPath,
		Description: getPortDescription(name),
		Type:        classifyDevName(name),
	}

	if strings.HasPrefix(name, "ttyUSB") || strings.HasPrefix(name, "ttyACM") {
		enrichUSBInfo(info)
	} else if info.Type == PortTypeUnknown && sysfsSubsystem(name) == "pci" {
		info.Type = PortTypePCI
	}

	return info, nil
}

// getPortDescription provides human-readable descriptions for different port types
func getPortDescription(name string) string {
	switch {
	case strings.HasPrefix(name, "ttyUSB"):
		return "USB Serial Port"
	case strings.HasPrefix(name, "ttyACM"):
		return "USB CDC/ACM Device"
	case strings.HasPrefix(name, "ttyAMA"):
		return "ARM Serial Port"
	case strings.HasPrefix(name, "ttymxc"):
		return "i.MX Serial Port"
	case strings.HasPrefix(name, "ttySAC"):
		return "Samsung Serial Port"
	case strings.HasPrefix(name, "ttyTHS"):
		return "Tegra Serial Port"
	case strings.HasPrefix(name, "ttyO"):
		return "OMAP Serial Port"
	case strings.HasPrefix(name, "ttyS"):
		return "Standard Serial Port"
	case strings.HasPrefix(name, "rfcomm"):
		return "Bluetooth Serial Port"
	default:
		return "Serial Port"
	}
}

// enrichUSBInfo fills USB metadata by following /sys/class/tty/<name>/device
// to the interface directory and reading the attributes of its parent device
func enrichUSBInfo(info *PortInfo) {
	devicePath := filepath.Join(sysfsRoot, "class", "tty", info.Name, "device")
	resolvedPath, err := filepath.EvalSymlinks(devicePath)
	if err != nil {
		return
	}

	// ttyUSB devices have an extra tty directory below the interface.
	interfacePath := resolvedPath
	if readSysfsFile(filepath.Join(interfacePath, "bInterfaceNumber")) == "" {
		interfacePath = filepath.Dir(resolvedPath)
	}
	info.InterfaceNumber = readSysfsFile(filepath.Join(interfacePath, "bInterfaceNumber"))

	usbDevicePath := filepath.Dir(interfacePath)
	info.VendorID = readSysfsFile(filepath.Join(usbDevicePath, "idVendor"))
	info.ProductID = readSysfsFile(filepath.Join(usbDevicePath, "idProduct"))
	info.SerialNumber = readSysfsFile(filepath.Join(usbDevicePath, "serial"))
	info.Manufacturer = readSysfsFile(filepath.Join(usbDevicePath, "manufacturer"))
	info.Product = readSysfsFile(filepath.Join(usbDevicePath, "product"))
	info.BusNumber = readSysfsFile(filepath.Join(usbDevicePath, "busnum"))
	info.DeviceNumber = readSysfsFile(filepath.Join(usbDevicePath, "devnum"))
	if info.VendorID != "" {
		info.Type = PortTypeUSB
	}
}

// sysfsSubsystem returns the bus name of the tty's parent device, e.g. "pci"
func sysfsSubsystem(name string) string {
	link, err := filepath.EvalSymlinks(filepath.Join(sysfsRoot, "class", "tty", name, "device", "subsystem"))
	if err != nil {
		return ""
	}
	return filepath.Base(link)
}

// readSysfsFile returns the trimmed content of a sysfs attribute, or "" if unreadable
func readSysfsFile(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
