// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package adb

import (
	"fmt"
	"strings"
	"text/tabwriter"
)

// FormatDeviceLine renders a record as a listing line that ParseDeviceInfo
// accepts. Attributes are written in key order.
func FormatDeviceLine(d DeviceInfo) string {
	var b strings.Builder
	b.WriteString(d.Serial)
	b.WriteString("\t")
	b.WriteString(DeviceStateReady)
	for _, key := range d.Keys() {
		fmt.Fprintf(&b, " %s:%s", key, d.Info[key])
	}
	return b.String()
}

// FormatDeviceTable renders devices as an aligned table.
func FormatDeviceTable(devices []DeviceInfo) string {
	if len(devices) == 0 {
		return "(no devices)\n"
	}

	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SERIAL\tMODEL\tPRODUCT\tTRANSPORT")
	for _, d := range devices {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			d.Serial, orDash(d.Model()), orDash(d.Product()), orDash(d.TransportID()))
	}
	w.Flush()
	return b.String()
}

// FormatWire renders raw protocol bytes with non-printable bytes escaped.
func FormatWire(b []byte) string {
	var s strings.Builder
	for _, c := range b {
		switch {
		case c == '\n':
			s.WriteString(`\n`)
		case c == '\t':
			s.WriteString(`\t`)
		case c >= 0x20 && c < 0x7F:
			s.WriteByte(c)
		default:
			fmt.Fprintf(&s, `\x%02X`, c)
		}
	}
	return s.String()
}

// FormatError prefixes the error with its kind.
func FormatError(err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("[%s] %v", strings.ToUpper(Classify(err).String()), err)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func bestEffortString(b []byte) string {
	return strings.ToValidUTF8(string(b), "�")
}
