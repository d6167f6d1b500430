// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/adbhost/pkg/adb"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print client and daemon versions",
	Long: `Print the adbhost version and, if the daemon is reachable, its internal
protocol version. An unreachable daemon is reported but is not an error.`,
	Args: cobra.NoArgs,
	RunE: runVersion,
}

var killServerCmd = &cobra.Command{
	Use:   "kill-server",
	Short: "Ask the daemon to exit",
	Args:  cobra.NoArgs,
	RunE:  runKillServer,
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(killServerCmd)
}

func runVersion(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "adbhost %s\n", rootCmd.Version)

	srv, connInfo, err := openServer(cfg)
	if err != nil {
		return err
	}
	version, err := srv.Version(cmd.Context())
	if err != nil {
		fmt.Fprintf(out, "daemon:  unavailable (%s)\n", adb.FormatError(err))
		return nil
	}
	fmt.Fprintf(out, "daemon:  protocol %d (0x%04X) via %s\n", version, version, connInfo)
	return nil
}

func runKillServer(cmd *cobra.Command, args []string) error {
	srv, _, err := openServer(cfg)
	if err != nil {
		return err
	}
	return srv.Kill(cmd.Context())
}
