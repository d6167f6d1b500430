// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import "github.com/Thermoquad/adbhost/pkg/adb"

// Exit codes
const (
	ExitOK              = 0
	ExitFailure         = 1
	ExitConnectionError = 2
)

// ExitCode maps a command error to the process exit status.
func ExitCode(err error) int {
	switch adb.Classify(err) {
	case adb.KindNone:
		return ExitOK
	case adb.KindOffline, adb.KindConnection:
		return ExitConnectionError
	default:
		return ExitFailure
	}
}
