package serial

import (
	"sort"
	"strconv"
	"strings"

	"go.bug.st/serial/enumerator"
)

// Port type values reported in the "type" attribute
const (
	PortTypeUSB       = "USB"
	PortTypeBluetooth = "Bluetooth"
	PortTypePCI       = "PCI"
	PortTypeUnknown   = "Unknown"
)

// Attribute keys of a discovered port
const (
	AttrType         = "type"
	AttrVendorID     = "vid"
	AttrProductID    = "pid"
	AttrSerialNumber = "serial_number"
	AttrManufacturer = "manufacturer"
	AttrProduct      = "product"
)

// PortKind selects which connection classes AvailablePortsFiltered returns
type PortKind string

const (
	KindAll       PortKind = "all"
	KindUSB       PortKind = "usb"
	KindBluetooth PortKind = "bluetooth"
	KindPCI       PortKind = "pci"
)

// detailedPortsList is the enumerator entry point; tests replace it.
var detailedPortsList = enumerator.GetDetailedPortsList

// AvailablePorts returns the USB serial ports reported by the driver layer,
// keyed by port name. Every attribute is present and defaults to "Unknown".
func AvailablePorts() (map[string]map[string]string, error) {
	return AvailablePortsFiltered(KindUSB)
}

// AvailablePortsFiltered enumerates ports of the given kind
func AvailablePortsFiltered(kind PortKind) (map[string]map[string]string, error) {
	details, err := detailedPortsList()
	if err != nil {
		return nil, err
	}

	sort.Slice(details, func(i, j int) bool { return details[i].Name < details[j].Name })

	result := make(map[string]map[string]string, len(details))
	for _, d := range details {
		attrs := portAttributes(d)
		if !kind.matches(attrs[AttrType]) {
			continue
		}
		result[d.Name] = attrs
	}
	return result, nil
}

func (k PortKind) matches(portType string) bool {
	switch k {
	case "", KindAll:
		return true
	case KindUSB:
		return portType == PortTypeUSB
	case KindBluetooth:
		return portType == PortTypeBluetooth
	case KindPCI:
		return portType == PortTypePCI
	default:
		return false
	}
}

// ParsePortKind accepts all, usb, bluetooth and pci.
func ParsePortKind(s string) (PortKind, error) {
	switch k := PortKind(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return KindAll, nil
	case KindAll, KindUSB, KindBluetooth, KindPCI:
		return k, nil
	default:
		return "", ErrInvalidConfig
	}
}

// portAttributes maps enumerator details to the attribute set, enriching
// from sysfs where the enumerator leaves fields empty
func portAttributes(d *enumerator.PortDetails) map[string]string {
	attrs := unknownAttributes()

	switch {
	case d.IsUSB:
		attrs[AttrType] = PortTypeUSB
		attrs[AttrVendorID] = usbIDDecimal(d.VID)
		attrs[AttrProductID] = usbIDDecimal(d.PID)
		setIfKnown(attrs, AttrSerialNumber, d.SerialNumber)
		setIfKnown(attrs, AttrProduct, d.Product)
	case isBluetoothName(d.Name):
		attrs[AttrType] = PortTypeBluetooth
	}

	name := d.Name[strings.LastIndex(d.Name, "/")+1:]
	if attrs[AttrType] == PortTypeUSB {
		info := &PortInfo{Name: name, Path: d.Name}
		enrichUSBInfo(info)
		setIfKnown(attrs, AttrManufacturer, info.Manufacturer)
		if attrs[AttrProduct] == PortTypeUnknown {
			setIfKnown(attrs, AttrProduct, info.Product)
		}
		if attrs[AttrSerialNumber] == PortTypeUnknown {
			setIfKnown(attrs, AttrSerialNumber, info.SerialNumber)
		}
	} else if attrs[AttrType] == PortTypeUnknown && sysfsSubsystem(name) == "pci" {
		attrs[AttrType] = PortTypePCI
	}

	return attrs
}

func unknownAttributes() map[string]string {
	return map[string]string{
		AttrType:         PortTypeUnknown,
		AttrVendorID:     PortTypeUnknown,
		AttrProductID:    PortTypeUnknown,
		AttrSerialNumber: PortTypeUnknown,
		AttrManufacturer: PortTypeUnknown,
		AttrProduct:      PortTypeUnknown,
	}
}

func setIfKnown(attrs map[string]string, key, value string) {
	if value = strings.TrimSpace(value); value != "" {
		attrs[key] = value
	}
}

// usbIDDecimal renders a hex USB id ("0403") as its decimal value ("1027")
func usbIDDecimal(hexID string) string {
	v, err := strconv.ParseUint(strings.TrimSpace(hexID), 16, 16)
	if err != nil {
		return PortTypeUnknown
	}
	return strconv.FormatUint(v, 10)
}

func isBluetoothName(name string) bool {
	lower := strings.ToLower(name)
	return strings.Contains(lower, "rfcomm") || strings.Contains(lower, "bluetooth")
}
