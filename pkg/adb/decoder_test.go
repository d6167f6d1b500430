// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package adb

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"testing"
)

func readResponse(t *testing.T, raw string, opts ExecOptions) (Response, error) {
	t.Helper()
	return NewResponseReader(strings.NewReader(raw), opts).ReadResponse()
}

func lengthPrefixed(body string) string {
	return fmt.Sprintf("%04X%s", len(body), body)
}

func TestResponseReader_Success(t *testing.T) {
	listing := "emulator-5554\tdevice product:sdk model:Pixel\n"

	tests := []struct {
		name     string
		raw      string
		opts     ExecOptions
		expected string
	}{
		{"okay without output", "OKAY", ExecOptions{}, ""},
		{"okay ignores trailing bytes", "OKAYtrailing junk", ExecOptions{}, ""},
		{"okay ignores trailing bytes with length flag", "OKAY0005hello", ExecOptions{Length: true}, ""},
		{"raw output", "OKAYhello world", ExecOptions{Output: true}, "hello world"},
		{"empty output", "OKAY", ExecOptions{Output: true}, ""},
		{"continuation banner stripped", "OKAYOKAYdata", ExecOptions{Output: true}, "data"},
		{"only one continuation banner stripped", "OKAYOKAYOKAYdata", ExecOptions{Output: true}, "OKAYdata"},
		{"length prefixed", "OKAY" + lengthPrefixed(listing), ExecOptions{Output: true, Length: true}, listing},
		{"length prefixed after continuation", "OKAYOKAY" + lengthPrefixed("0029"), ExecOptions{Output: true, Length: true}, "0029"},
		{"length prefixed empty body", "OKAY0000", ExecOptions{Output: true, Length: true}, ""},
		{"prefix kept without length flag", "OKAY0004abcd", ExecOptions{Output: true}, "0004abcd"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := readResponse(t, tt.raw, tt.opts)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(resp.Payload) != tt.expected {
				t.Errorf("payload = %q, want %q", resp.Payload, tt.expected)
			}
			if len(resp.Warnings) != 0 {
				t.Errorf("unexpected warnings: %v", resp.Warnings)
			}
		})
	}
}

func TestResponseReader_AdbError(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		opts     ExecOptions
		expected string
	}{
		{"fail banner", "FAIL0005hello", ExecOptions{}, "hello"},
		{"fail banner with output requested", "FAIL0014device 'x' not found", ExecOptions{Output: true, Length: true}, "device 'x' not found"},
		{"fail banner empty message", "FAIL0000", ExecOptions{}, ""},
		{"unknown banner read as failure", "WHAT0003bad", ExecOptions{}, "bad"},
		{"embedded fail", "OKAYFAIL0003bad", ExecOptions{Output: true}, "bad"},
		{"embedded fail with length flag", "OKAYFAIL0003bad", ExecOptions{Output: true, Length: true}, "bad"},
		{"embedded fail after continuation", "OKAYOKAYFAIL0003bad", ExecOptions{Output: true, Length: true}, "bad"},
		{"embedded fail ignores trailing bytes", "OKAYFAIL0003badtrailing", ExecOptions{Output: true}, "bad"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := readResponse(t, tt.raw, tt.opts)
			var adbErr *AdbError
			if !errors.As(err, &adbErr) {
				t.Fatalf("expected AdbError, got %v", err)
			}
			if adbErr.Message != tt.expected {
				t.Errorf("message = %q, want %q", adbErr.Message, tt.expected)
			}
		})
	}
}

func TestResponseReader_ErrorMessageCapped(t *testing.T) {
	long := strings.Repeat("e", 2048)
	raw := fmt.Sprintf("FAIL%04X%s", len(long), long)

	_, err := readResponse(t, raw, ExecOptions{})
	var adbErr *AdbError
	if !errors.As(err, &adbErr) {
		t.Fatalf("expected AdbError, got %v", err)
	}
	if len(adbErr.Message) != errorBufferSize {
		t.Errorf("message length = %d, want %d", len(adbErr.Message), errorBufferSize)
	}
}

func TestResponseReader_LengthMismatchWarning(t *testing.T) {
	resp, err := readResponse(t, "OKAY0005abc", ExecOptions{Output: true, Length: true})
	if err != nil {
		t.Fatalf("length mismatch must not fail: %v", err)
	}
	if string(resp.Payload) != "abc" {
		t.Errorf("payload = %q, want %q", resp.Payload, "abc")
	}
	if len(resp.Warnings) != 1 {
		t.Fatalf("expected 1 warning, got %d", len(resp.Warnings))
	}
	w := resp.Warnings[0]
	if w.Kind != WarnLengthMismatch || w.Declared != 5 || w.Actual != 3 {
		t.Errorf("unexpected warning: %+v", w)
	}
	if !strings.Contains(w.String(), "declared 5") {
		t.Errorf("warning text %q should mention the declared length", w.String())
	}
}

func TestResponseReader_DecodingErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		opts ExecOptions
		kind DecodeErrorKind
		rawC string // expected substring of DecodingError.Raw
	}{
		{"fail bad hex", "FAILzzzzmessage", ExecOptions{}, DecodeInvalidLength, "zzzz"},
		{"fail invalid utf8", "FAIL0002\xff\xfe", ExecOptions{}, DecodeInvalidUTF8, ""},
		{"output too short for prefix", "OKAYab", ExecOptions{Output: true, Length: true}, DecodeTruncated, "ab"},
		{"output empty with length flag", "OKAY", ExecOptions{Output: true, Length: true}, DecodeTruncated, ""},
		{"output bad hex", "OKAYzzzzabc", ExecOptions{Output: true, Length: true}, DecodeInvalidLength, "zzzz"},
		{"embedded fail truncated prefix", "OKAYFAIL00", ExecOptions{Output: true}, DecodeTruncated, "00"},
		{"embedded fail truncated message", "OKAYFAIL0009bad", ExecOptions{Output: true}, DecodeTruncated, ""},
		{"embedded fail bad hex", "OKAYFAILxyz1bad", ExecOptions{Output: true}, DecodeInvalidLength, ""},
		{"embedded fail invalid utf8", "OKAYFAIL0001\xff", ExecOptions{Output: true}, DecodeInvalidUTF8, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := readResponse(t, tt.raw, tt.opts)
			var decErr *DecodingError
			if !errors.As(err, &decErr) {
				t.Fatalf("expected DecodingError, got %v", err)
			}
			if decErr.Kind != tt.kind {
				t.Errorf("kind = %v, want %v", decErr.Kind, tt.kind)
			}
			if tt.rawC != "" && !strings.Contains(decErr.Raw, tt.rawC) {
				t.Errorf("raw = %q, want it to contain %q", decErr.Raw, tt.rawC)
			}
			if Classify(err) != KindDecoding {
				t.Errorf("Classify = %v, want %v", Classify(err), KindDecoding)
			}
		})
	}
}

func TestResponseReader_ConnectionErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		opts ExecOptions
		op   string
	}{
		{"empty stream", "", ExecOptions{}, "read banner"},
		{"short banner", "OK", ExecOptions{}, "read banner"},
		{"fail without length", "FAIL", ExecOptions{}, "read error length"},
		{"fail short message", "FAIL0004hel", ExecOptions{}, "read error message"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := readResponse(t, tt.raw, tt.opts)
			var connErr *ConnectionError
			if !errors.As(err, &connErr) {
				t.Fatalf("expected ConnectionError, got %v", err)
			}
			if connErr.Op != tt.op {
				t.Errorf("op = %q, want %q", connErr.Op, tt.op)
			}
		})
	}
}

// timeoutReader yields data once, then fails like an expired deadline.
type timeoutReader struct {
	data []byte
}

func (r *timeoutReader) Read(p []byte) (int, error) {
	if len(r.data) > 0 {
		n := copy(p, r.data)
		r.data = r.data[n:]
		return n, nil
	}
	return 0, os.ErrDeadlineExceeded
}

func TestResponseReader_OutputTimeoutIsFailure(t *testing.T) {
	r := &timeoutReader{data: []byte("OKAY0004abcd")}
	_, err := NewResponseReader(r, ExecOptions{Output: true, Length: true}).ReadResponse()

	var connErr *ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("expected ConnectionError, got %v", err)
	}
	if !errors.Is(err, os.ErrDeadlineExceeded) {
		t.Errorf("expected deadline cause to be preserved, got %v", err)
	}
}

func TestResponseReader_DoesNotReadPastBannerWithoutOutput(t *testing.T) {
	r := bytes.NewReader([]byte("OKAYleftover"))
	if _, err := NewResponseReader(r, ExecOptions{}).ReadResponse(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rest, _ := io.ReadAll(r)
	if string(rest) != "leftover" {
		t.Errorf("reader consumed past banner, leftover = %q", rest)
	}
}

func TestTransitionBanner(t *testing.T) {
	tests := []struct {
		banner   string
		opts     ExecOptions
		expected readState
	}{
		{"OKAY", ExecOptions{}, stateDone},
		{"OKAY", ExecOptions{Length: true}, stateDone},
		{"OKAY", ExecOptions{Output: true}, stateOutput},
		{"FAIL", ExecOptions{Output: true}, stateError},
		{"okay", ExecOptions{}, stateError},
	}

	for _, tt := range tests {
		got := transitionBanner([]byte(tt.banner), tt.opts)
		if got != tt.expected {
			t.Errorf("transitionBanner(%q, %+v) = %s, want %s", tt.banner, tt.opts, got, tt.expected)
		}
	}
}

func TestTransitionOutput(t *testing.T) {
	next, body, err := transitionOutput([]byte("OKAY0003abc"), ExecOptions{Output: true, Length: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next != stateLengthPrefixed || string(body) != "0003abc" {
		t.Errorf("got (%s, %q), want (%s, %q)", next, body, stateLengthPrefixed, "0003abc")
	}

	next, body, err = transitionOutput([]byte("plain"), ExecOptions{Output: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next != stateDone || string(body) != "plain" {
		t.Errorf("got (%s, %q), want (%s, %q)", next, body, stateDone, "plain")
	}

	_, _, err = transitionOutput([]byte("FAIL0002no"), ExecOptions{Output: true})
	var adbErr *AdbError
	if !errors.As(err, &adbErr) || adbErr.Message != "no" {
		t.Errorf("expected AdbError(no), got %v", err)
	}
}

func TestSplitLengthPrefixed(t *testing.T) {
	body, warning, err := splitLengthPrefixed([]byte("0003abc"))
	if err != nil || warning != nil || string(body) != "abc" {
		t.Errorf("exact length: got (%q, %v, %v)", body, warning, err)
	}

	body, warning, err = splitLengthPrefixed([]byte("0001abc"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(body) != "abc" {
		t.Errorf("body = %q, want whole remainder", body)
	}
	if warning == nil || warning.Declared != 1 || warning.Actual != 3 {
		t.Errorf("unexpected warning: %+v", warning)
	}
}
