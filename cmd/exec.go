// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/adbhost/pkg/adb"
)

var (
	execOutput bool
	execLength bool
	execSerial string
)

var execCmd = &cobra.Command{
	Use:   "exec <command>...",
	Short: "Run one raw host exchange",
	Long: `Send a single host request and print the decoded response.

Arguments are joined with spaces to form the request. By default only the
OKAY/FAIL banner is read; --output reads the rest of the stream and --length
treats it as a length-prefixed message.

Examples:
  adbhost exec host:kill
  adbhost exec --output --length host:version
  adbhost exec -s emulator-5554 --output --length host-serial:emulator-5554:get-state`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExec,
}

func init() {
	rootCmd.AddCommand(execCmd)
	execCmd.Flags().BoolVarP(&execOutput, "output", "o", false, "Read output after the OKAY banner")
	execCmd.Flags().BoolVarP(&execLength, "length", "l", false, "Output is length-prefixed")
	execCmd.Flags().StringVarP(&execSerial, "serial", "s", "", "Send through a device handle bound to this serial")
}

func runExec(cmd *cobra.Command, args []string) error {
	srv, _, err := openServer(cfg)
	if err != nil {
		return err
	}

	command := strings.Join(args, " ")
	opts := adb.ExecOptions{Output: execOutput, Length: execLength}

	var res adb.Result
	if execSerial != "" {
		res, err = srv.Device(execSerial).ExecContext(cmd.Context(), command, opts)
	} else {
		res, err = srv.ExecContext(cmd.Context(), command, opts)
	}
	if err != nil {
		return err
	}
	logWarnings(command, res.Warnings)

	return writeOutput(cmd.OutOrStdout(), res.Output)
}
