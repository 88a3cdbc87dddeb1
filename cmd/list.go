/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"sort"

	serial "github.com/allbin/go-serialhost"
	"github.com/allbin/go-serialhost/internal/tui/colors"
	"github.com/allbin/go-serialhost/manager"
	"github.com/charmbracelet/lipgloss"
	"github.com/evertras/bubble-table/table"
	"github.com/spf13/cobra"
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List available serial ports",
	Long: `List the serial ports the driver layer reports, with their USB metadata.

By default only USB ports are shown. --filter selects another class and
--direct asks the platform tools instead (lsusb, system_profiler, wmic),
which only fills in the port type. --devices lists every serial device
node under /dev, whether or not the driver layer knows about it.

Example usage:
  serialhost list
  serialhost list --filter all --table
  serialhost list --direct`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, _ := cmd.Flags().GetString("filter")
		direct, _ := cmd.Flags().GetBool("direct")
		devices, _ := cmd.Flags().GetBool("devices")
		tableFormat, _ := cmd.Flags().GetBool("table")

		if devices {
			ports, err := serial.ListPorts()
			if err != nil {
				return fmt.Errorf("failed to list devices: %w", err)
			}
			for _, port := range ports {
				fmt.Println(port)
			}
			return nil
		}

		kind, err := serial.ParsePortKind(filter)
		if err != nil {
			return fmt.Errorf("invalid filter %q (valid: all, usb, bluetooth, pci)", filter)
		}
		mgr, err := newManager(nil, manager.WithPortKind(kind))
		if err != nil {
			return err
		}

		var ports map[string]map[string]string
		if direct {
			ports = mgr.AvailablePortsDirect(cmd.Context())
		} else {
			ports = mgr.AvailablePorts(cmd.Context())
		}

		if len(ports) == 0 {
			fmt.Println("No serial ports found")
			return nil
		}
		if tableFormat {
			fmt.Println(renderTable(ports))
		} else {
			renderSimple(ports)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().String("filter", string(serial.KindUSB), "Port class: all, usb, bluetooth, pci")
	listCmd.Flags().Bool("direct", false, "Query platform tools instead of the driver layer")
	listCmd.Flags().Bool("devices", false, "List serial device nodes under /dev")
	listCmd.Flags().BoolP("table", "t", false, "Display output in a styled table format")
}

func sortedNames(ports map[string]map[string]string) []string {
	names := make([]string, 0, len(ports))
	for name := range ports {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// renderSimple prints one port per line with its type and USB ids
func renderSimple(ports map[string]map[string]string) {
	for _, name := range sortedNames(ports) {
		attrs := ports[name]
		fmt.Printf("%s\t%s", name, attrs[serial.AttrType])
		if vid := attrs[serial.AttrVendorID]; vid != serial.PortTypeUnknown && vid != "" {
			fmt.Printf("\t%s:%s", vid, attrs[serial.AttrProductID])
		}
		if product := attrs[serial.AttrProduct]; product != serial.PortTypeUnknown && product != "" {
			fmt.Printf("\t%s", product)
		}
		fmt.Println()
	}
}

const (
	columnPort         = "port"
	columnType         = "type"
	columnVID          = "vid"
	columnPID          = "pid"
	columnManufacturer = "manufacturer"
	columnProduct      = "product"
	columnSerial       = "serial"
)

// renderTable renders the ports as a static table
func renderTable(ports map[string]map[string]string) string {
	columns := []table.Column{
		table.NewColumn(columnPort, "Port", 16),
		table.NewColumn(columnType, "Type", 10),
		table.NewColumn(columnVID, "VID", 7),
		table.NewColumn(columnPID, "PID", 7),
		table.NewColumn(columnManufacturer, "Manufacturer", 20),
		table.NewColumn(columnProduct, "Product", 24),
		table.NewColumn(columnSerial, "Serial", 16),
	}

	rows := make([]table.Row, 0, len(ports))
	for _, name := range sortedNames(ports) {
		attrs := ports[name]
		rows = append(rows, table.NewRow(table.RowData{
			columnPort:         name,
			columnType:         attrs[serial.AttrType],
			columnVID:          attrs[serial.AttrVendorID],
			columnPID:          attrs[serial.AttrProductID],
			columnManufacturer: attrs[serial.AttrManufacturer],
			columnProduct:      attrs[serial.AttrProduct],
			columnSerial:       attrs[serial.AttrSerialNumber],
		}))
	}

	t := table.New(columns).
		WithRows(rows).
		BorderRounded().
		HeaderStyle(lipgloss.NewStyle().Bold(true).Foreground(colors.Mauve)).
		WithBaseStyle(lipgloss.NewStyle().Foreground(colors.Text).BorderForeground(colors.Surface2).Align(lipgloss.Left))

	return fmt.Sprintf("Found %d serial port(s):\n\n%s", len(ports), t.View())
}
