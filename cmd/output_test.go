// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/Thermoquad/adbhost/pkg/adb"
)

func testDevices() []adb.DeviceInfo {
	return adb.ParseDeviceList(lineEmulator + "\n" + linePhone + "\n")
}

func TestWriteDevices_Text(t *testing.T) {
	var buf bytes.Buffer
	if err := writeDevices(&buf, formatText, testDevices(), true); err != nil {
		t.Fatal(err)
	}
	if buf.String() != adb.FormatDeviceTable(testDevices()) {
		t.Errorf("text output = %q", buf.String())
	}
}

func TestWriteDevices_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := writeDevices(&buf, "JSON", testDevices(), true); err != nil {
		t.Fatal(err)
	}

	var decoded []adb.DeviceInfo
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON %q: %v", buf.String(), err)
	}
	if len(decoded) != 2 || !decoded[1].Equal(testDevices()[1]) {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestWriteDevices_JSONEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := writeDevices(&buf, formatJSON, nil, false); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(buf.String()) != "[]" {
		t.Errorf("empty list = %q, want []", buf.String())
	}
}

func TestWriteDevices_CBOR(t *testing.T) {
	var buf bytes.Buffer
	if err := writeDevices(&buf, formatCBOR, testDevices(), false); err != nil {
		t.Fatal(err)
	}
	decoded, err := adb.UnmarshalDeviceListCBOR(buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if len(decoded) != 2 || decoded[0].Serial != "emulator-5554" {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestWriteDevices_CBORToTerminal(t *testing.T) {
	var buf bytes.Buffer
	err := writeDevices(&buf, formatCBOR, testDevices(), true)
	if !errors.Is(err, errBinaryToTerminal) {
		t.Errorf("error = %v, want errBinaryToTerminal", err)
	}
	if buf.Len() != 0 {
		t.Error("nothing should be written to a terminal")
	}
}

func TestWriteDevices_UnknownFormat(t *testing.T) {
	if err := writeDevices(&bytes.Buffer{}, "yaml", nil, false); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestWriteOutput(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"1.0.41", "1.0.41\n"},
		{"a\nb\n", "a\nb\n"},
	}

	for _, tt := range tests {
		var buf bytes.Buffer
		if err := writeOutput(&buf, tt.in); err != nil {
			t.Fatal(err)
		}
		if buf.String() != tt.want {
			t.Errorf("writeOutput(%q) = %q, want %q", tt.in, buf.String(), tt.want)
		}
	}
}
