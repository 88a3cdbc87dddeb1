/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"

	serial "github.com/allbin/go-serialhost"
	"github.com/allbin/go-serialhost/manager"
	"github.com/spf13/cobra"
)

// infoCmd represents the info command
var infoCmd = &cobra.Command{
	Use:   "info <port>",
	Short: "Display detailed information about a serial port",
	Long: `Display what sysfs and the driver layer know about a serial port.

Examples:
  serialhost info /dev/ttyUSB0
  serialhost info /dev/ttyACM0

For USB devices this shows vendor and product IDs, the serial number and
the interface, bus and device numbers.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		portPath := args[0]

		info, err := serial.GetPortInfo(portPath)
		if err != nil {
			return fmt.Errorf("failed to get port info: %w", err)
		}

		fmt.Printf("Port Information: %s\n\n", info.Path)
		fmt.Printf("  Name:        %s\n", info.Name)
		fmt.Printf("  Description: %s\n", info.Description)
		fmt.Printf("  Type:        %s\n", info.Type)

		if info.VendorID != "" || info.ProductID != "" {
			fmt.Println("\nUSB Device Information:")
			printField("Vendor ID", info.VendorID)
			printField("Product ID", info.ProductID)
			printField("Manufacturer", info.Manufacturer)
			printField("Product", info.Product)
			printField("Serial", info.SerialNumber)
			printField("Interface", info.InterfaceNumber)
			printField("Bus", info.BusNumber)
			printField("Device", info.DeviceNumber)
		}

		// The driver layer names ports by path on unix and COMn on Windows.
		mgr, err := newManager(nil, manager.WithPortKind(serial.KindAll))
		if err != nil {
			return err
		}
		ports := mgr.AvailablePorts(cmd.Context())
		attrs, ok := ports[portPath]
		if !ok {
			attrs, ok = ports[info.Name]
		}
		if ok {
			fmt.Println("\nDriver Attributes:")
			for _, key := range []string{serial.AttrType, serial.AttrVendorID, serial.AttrProductID, serial.AttrManufacturer, serial.AttrProduct, serial.AttrSerialNumber} {
				printField(key, attrs[key])
			}
		}
		return nil
	},
}

func printField(name, value string) {
	if value != "" {
		fmt.Printf("  %-13s %s\n", name+":", value)
	}
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
