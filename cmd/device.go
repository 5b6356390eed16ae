package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"school-device-issuance/internal/registry"
	"school-device-issuance/internal/storage"
)

var deviceCmd = &cobra.Command{
	Use:   "device",
	Short: "Manage the device registry",
	Long:  `Manage the device registry, including listing, adding and unbinding devices.`,
}

var deviceListCmd = &cobra.Command{
	Use:   "list [status]",
	Short: "List devices",
	Long:  `List devices by status. Valid statuses: Available, Assigned, Maintenance, WrittenOff. Defaults to all.`,
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		var filter storage.DeviceFilter
		if len(args) > 0 {
			status := storage.DeviceStatus(args[0])
			if !storage.ValidDeviceStatus(status) {
				slog.Error("Invalid status", "status", args[0])
				fmt.Println("Valid statuses: Available, Assigned, Maintenance, WrittenOff")
				os.Exit(1)
			}
			filter.Status = status
		}
		if school, _ := cmd.Flags().GetString("school"); school != "" {
			filter.SchoolCode = school
		}

		devices, err := provider.ListDevices(ctx, filter)
		if err != nil {
			slog.Error("Failed to list devices", "error", err)
			os.Exit(1)
		}

		if len(devices) == 0 {
			fmt.Println("No devices found")
			return
		}

		// Print table
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "SERIAL\tCATEGORY\tCONDITION\tSTATUS\tSCHOOL\tASSET TAG\tCREATED AT")
		for _, device := range devices {
			school := ""
			if device.SchoolCode != nil {
				school = *device.SchoolCode
			}
			tag := ""
			if device.AssetTag != nil {
				tag = *device.AssetTag
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				device.SerialNumber,
				device.Category,
				device.Condition,
				device.Status,
				school,
				tag,
				device.CreatedAt.Format("2006-01-02 15:04:05"),
			)
		}
		w.Flush()
	},
}

var deviceAddCmd = &cobra.Command{
	Use:   "add <serial> <category>",
	Short: "Register a new device",
	Long:  `Register a new device into the registry. Valid categories: Laptop, Desktop, Tablet, Projector, Printer.`,
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		brand, _ := cmd.Flags().GetString("brand")
		model, _ := cmd.Flags().GetString("model")
		condition, _ := cmd.Flags().GetString("condition")

		devices := registry.NewDevices(provider)
		device, err := devices.Create(ctx, registry.NewDeviceInput{
			SerialNumber: args[0],
			Category:     storage.DeviceCategory(args[1]),
			Brand:        brand,
			Model:        model,
			Condition:    storage.DeviceCondition(condition),
		})
		if err != nil {
			slog.Error("Failed to register device", "serial", args[0], "error", err)
			os.Exit(1)
		}

		fmt.Printf("Device %s registered (id %d)\n", device.SerialNumber, device.ID)
	},
}

var deviceUnbindCmd = &cobra.Command{
	Use:   "unbind <serial>",
	Short: "Release a device from its school",
	Long:  `Clear a device's school binding and asset tag and return it to the Available pool.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		serial := args[0]

		devices := registry.NewDevices(provider)
		device, err := devices.Update(ctx, serial, registry.UpdateDeviceInput{Unbind: true})
		if err != nil {
			slog.Error("Failed to unbind device", "serial", serial, "error", err)
			os.Exit(1)
		}

		fmt.Printf("Device %s released, status %s\n", device.SerialNumber, device.Status)
	},
}

func init() {
	deviceListCmd.Flags().StringP("school", "s", "", "Filter by school code")
	deviceAddCmd.Flags().String("brand", "", "Device brand")
	deviceAddCmd.Flags().String("model", "", "Device model")
	deviceAddCmd.Flags().String("condition", "New", "Device condition (New, Good, Fair, Poor)")

	deviceCmd.AddCommand(deviceListCmd)
	deviceCmd.AddCommand(deviceAddCmd)
	deviceCmd.AddCommand(deviceUnbindCmd)
	rootCmd.AddCommand(deviceCmd)
}
