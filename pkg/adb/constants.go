// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package adb provides a reference Go implementation of the ADB host
// daemon's smart-socket protocol.
//
// A host exchange is one TCP connection carrying one request and one
// response. Requests are framed as four uppercase hex digits giving the
// command length followed by the command bytes. Responses open with a
// four byte banner (OKAY or FAIL), optionally followed by an error
// message, an output stream, and a nested length-prefixed message.
//
// This package provides framing, the response state machine, the device
// listing parser and a small Server handle that composes them.
package adb

import "time"

// Command is a four byte protocol tag.
type Command uint8

// Protocol tags. Only OKAY and FAIL are interpreted by the host exchange;
// the others belong to the sync sub-protocol.
const (
	CmdData Command = iota
	CmdDent
	CmdDone
	CmdFail
	CmdList
	CmdOkay
	CmdQuit
	CmdRecv
	CmdSend
	CmdStat
)

var commandCodes = [...][4]byte{
	CmdData: {'D', 'A', 'T', 'A'},
	CmdDent: {'D', 'E', 'N', 'T'},
	CmdDone: {'D', 'O', 'N', 'E'},
	CmdFail: {'F', 'A', 'I', 'L'},
	CmdList: {'L', 'I', 'S', 'T'},
	CmdOkay: {'O', 'K', 'A', 'Y'},
	CmdQuit: {'Q', 'U', 'I', 'T'},
	CmdRecv: {'R', 'E', 'C', 'V'},
	CmdSend: {'S', 'E', 'N', 'D'},
	CmdStat: {'S', 'T', 'A', 'T'},
}

// Commands lists every protocol tag in declaration order.
func Commands() []Command {
	cmds := make([]Command, len(commandCodes))
	for i := range commandCodes {
		cmds[i] = Command(i)
	}
	return cmds
}

// Code returns the tag bytes. It returns nil for an unknown command.
func (c Command) Code() []byte {
	if int(c) >= len(commandCodes) {
		return nil
	}
	code := commandCodes[c]
	return code[:]
}

// String returns the tag as text.
func (c Command) String() string {
	if int(c) >= len(commandCodes) {
		return "UNKNOWN"
	}
	return string(c.Code())
}

// Matches reports whether b starts with the tag.
func (c Command) Matches(b []byte) bool {
	code := c.Code()
	if code == nil || len(b) < len(code) {
		return false
	}
	return string(b[:len(code)]) == string(code)
}

// Framing limits
const (
	LengthPrefixSize = 4
	BannerSize       = 4
	MaxMessageLength = 0xFFFF

	// errorBufferSize caps the error message read after a FAIL banner.
	errorBufferSize = 1024
)

// Default daemon endpoint
const (
	DefaultHost         = "127.0.0.1"
	DefaultPort         = 5037
	DefaultReadTimeout  = 2 * time.Second
	DefaultWriteTimeout = 2 * time.Second
)

// Host service requests
const (
	DevicesCommand = "devices -l"
	VersionCommand = "host:version"
	KillCommand    = "host:kill"
)
