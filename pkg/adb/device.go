// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package adb

import "context"

// Device binds a serial number to a Server.
type Device struct {
	serial string
	server Server
}

// NewDevice creates a device handle.
func NewDevice(serial string, server Server) Device {
	return Device{serial: serial, server: server}
}

// Serial returns the bound serial number.
func (d Device) Serial() string {
	return d.serial
}

// Server returns the handle the device talks through.
func (d Device) Server() Server {
	return d.server
}

// Exec forwards to the server unchanged.
func (d Device) Exec(command string, hasOutput, hasLength bool) (string, error) {
	return d.server.Exec(command, hasOutput, hasLength)
}

// ExecContext forwards to the server unchanged.
func (d Device) ExecContext(ctx context.Context, command string, opts ExecOptions) (Result, error) {
	return d.server.ExecContext(ctx, command, opts)
}
