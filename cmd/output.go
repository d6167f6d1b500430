// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/Thermoquad/adbhost/pkg/adb"
)

// Output formats
const (
	formatText = "text"
	formatJSON = "json"
	formatCBOR = "cbor"
)

var errBinaryToTerminal = errors.New("refusing to write CBOR to a terminal (redirect stdout)")

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// writeDevices renders a device list in the requested format.
func writeDevices(w io.Writer, format string, devices []adb.DeviceInfo, tty bool) error {
	switch strings.ToLower(format) {
	case formatText, "":
		_, err := io.WriteString(w, adb.FormatDeviceTable(devices))
		return err
	case formatJSON:
		if devices == nil {
			devices = []adb.DeviceInfo{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(devices)
	case formatCBOR:
		if tty {
			return errBinaryToTerminal
		}
		data, err := adb.MarshalDeviceListCBOR(devices)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	default:
		return fmt.Errorf("unknown format %q (use text, json or cbor)", format)
	}
}

// writeOutput prints exchange output, ending it with a newline.
func writeOutput(w io.Writer, out string) error {
	if out == "" {
		return nil
	}
	if !strings.HasSuffix(out, "\n") {
		out += "\n"
	}
	_, err := io.WriteString(w, out)
	return err
}
