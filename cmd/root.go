// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"time"

	"github.com/spf13/cobra"
)

var (
	// Daemon endpoint flags
	serverHost   string
	serverPort   int
	readTimeout  time.Duration
	writeTimeout time.Duration

	// WebSocket bridge flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	configPath string
	logLevel   string

	// Resolved by PersistentPreRunE
	cfg Config
)

var rootCmd = &cobra.Command{
	Use:   "adbhost",
	Short: "ADB host protocol client",
	Long: `adbhost - A CLI tool for talking to the ADB host daemon over its smart-socket
protocol.

Provides commands for listing devices, running raw host exchanges, tracing the
wire format, and monitoring the device pool over time.

Connection modes:
  TCP:       --host 127.0.0.1 --port 5037 (or ADB_SERVER_SOCKET=tcp:host:port)
  WebSocket: --url ws://host/api/v1/bridge [--username user]

For WebSocket authentication, the password is read from the
ADBHOST_BRIDGE_PASSWORD environment variable, or prompted interactively if not
set. The --password flag is intentionally not provided to avoid leaking
credentials in shell history.

Settings are resolved as flags > config file (--config or ADBHOST_CONFIG) >
environment > defaults.

Exit codes:
  0 - Success
  1 - Daemon or protocol failure
  2 - Connection error`,
	Version:           "0.3.0",
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	// Daemon endpoint flags
	rootCmd.PersistentFlags().StringVarP(&serverHost, "host", "H", "127.0.0.1", "Daemon IP address")
	rootCmd.PersistentFlags().IntVarP(&serverPort, "port", "P", 5037, "Daemon TCP port")
	rootCmd.PersistentFlags().DurationVar(&readTimeout, "read-timeout", 2*time.Second, "Per-read timeout (0 disables)")
	rootCmd.PersistentFlags().DurationVar(&writeTimeout, "write-timeout", 2*time.Second, "Per-write timeout (0 disables)")

	// WebSocket bridge flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket bridge URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "TOML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (trace, debug, info, warn, error, disabled)")
}

// setup resolves configuration and logging before any subcommand runs
func setup(cmd *cobra.Command, args []string) error {
	resolved, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	cfg = resolved
	return setupLogging(cfg.LogLevel)
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
