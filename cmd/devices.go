// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/adbhost/pkg/adb"
)

var devicesFormat string

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List ready devices",
	Long: `Query the daemon with "devices -l" and print every device in the "device"
state. Offline, unauthorized and other states are left out.

Formats:
  text - aligned table (default)
  json - array of {"serial", "info"} objects
  cbor - the same structure, deterministic CBOR (stdout must be redirected)`,
	Args: cobra.NoArgs,
	RunE: runDevices,
}

func init() {
	rootCmd.AddCommand(devicesCmd)
	devicesCmd.Flags().StringVarP(&devicesFormat, "format", "f", formatText, "Output format (text, json, cbor)")
}

func runDevices(cmd *cobra.Command, args []string) error {
	srv, _, err := openServer(cfg)
	if err != nil {
		return err
	}

	list, err := srv.ListDevicesContext(cmd.Context())
	if err != nil {
		return err
	}
	logWarnings(adb.DevicesCommand, list.Warnings)

	return writeDevices(cmd.OutOrStdout(), devicesFormat, list.Devices, isTerminal(os.Stdout))
}
