// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// adbhost - ADB Host Protocol Client
//
// A CLI tool for talking to the ADB host daemon: listing devices, running
// raw host exchanges, tracing the wire format and monitoring the device
// pool.

package main

import (
	"fmt"
	"os"

	"github.com/Thermoquad/adbhost/cmd"
	"github.com/Thermoquad/adbhost/pkg/adb"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, adb.FormatError(err))
		os.Exit(cmd.ExitCode(err))
	}
}
