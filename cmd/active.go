// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/adbhost/pkg/adb"
)

var activeSingle bool

var activeCmd = &cobra.Command{
	Use:   "active",
	Short: "Print the active device",
	Long: `Print the first ready device in listing order.

With --single, fail unless exactly one device is ready.`,
	Args: cobra.NoArgs,
	RunE: runActive,
}

func init() {
	rootCmd.AddCommand(activeCmd)
	activeCmd.Flags().BoolVar(&activeSingle, "single", false, "Fail when more than one device is ready")
}

func runActive(cmd *cobra.Command, args []string) error {
	srv, _, err := openServer(cfg)
	if err != nil {
		return err
	}

	var device adb.DeviceInfo
	if activeSingle {
		list, err := srv.ListDevicesContext(cmd.Context())
		if err != nil {
			return err
		}
		logWarnings(adb.DevicesCommand, list.Warnings)
		device, err = adb.RequireSingleDevice(list.Devices)
		if err != nil {
			return err
		}
	} else {
		device, err = srv.ActiveDeviceContext(cmd.Context())
		if err != nil {
			return err
		}
	}

	fmt.Fprintln(cmd.OutOrStdout(), adb.FormatDeviceLine(device))
	return nil
}
