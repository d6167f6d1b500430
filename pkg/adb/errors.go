// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package adb

import (
	"errors"
	"fmt"
)

var (
	ErrEncodingOverflow = errors.New("adb: command too long to frame")
	ErrOffline          = errors.New("adb: server offline")
	ErrNoDevices        = errors.New("adb: no devices")
	ErrMultipleDevices  = errors.New("adb: multiple devices")

	// Reserved for device-level helpers; the host exchange never returns them.
	ErrMissingPackage = errors.New("adb: missing package")
	ErrInvalidStorage = errors.New("adb: invalid storage")
)

// ConnectionError wraps a socket level failure (dial, read, write, timeout).
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("adb: %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

func newConnectionError(op string, err error) error {
	return &ConnectionError{Op: op, Err: err}
}

// DecodeErrorKind categorizes DecodingError.
type DecodeErrorKind int

const (
	// DecodeInvalidLength is a length prefix that is not four hex digits.
	DecodeInvalidLength DecodeErrorKind = iota
	// DecodeTruncated is a payload shorter than its framing requires.
	DecodeTruncated
	// DecodeInvalidUTF8 is a payload that is not valid UTF-8.
	DecodeInvalidUTF8
)

func (k DecodeErrorKind) String() string {
	switch k {
	case DecodeInvalidLength:
		return "invalid length"
	case DecodeTruncated:
		return "truncated"
	case DecodeInvalidUTF8:
		return "invalid utf-8"
	default:
		return "unknown"
	}
}

// DecodingError reports malformed response bytes. Raw holds the offending
// bytes as best-effort UTF-8 for diagnostics.
type DecodingError struct {
	Kind DecodeErrorKind
	Raw  string
	Err  error
}

func (e *DecodingError) Error() string {
	msg := fmt.Sprintf("adb: decode: %s", e.Kind)
	if e.Raw != "" {
		msg += fmt.Sprintf(" (raw %q)", e.Raw)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DecodingError) Unwrap() error {
	return e.Err
}

func newDecodingError(kind DecodeErrorKind, raw []byte, err error) error {
	return &DecodingError{Kind: kind, Raw: bestEffortString(raw), Err: err}
}

// AdbError carries a failure message reported by the daemon. The text is
// opaque and passed through untouched.
type AdbError struct {
	Message string
}

func (e *AdbError) Error() string {
	return fmt.Sprintf("adb: daemon error: %s", e.Message)
}

// ErrorKind is the coarse class of an error, used for statistics and exit codes.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindEncodingOverflow
	KindOffline
	KindConnection
	KindDecoding
	KindAdb
	KindNoDevices
	KindMultipleDevices
	KindOther
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "ok"
	case KindEncodingOverflow:
		return "encoding_overflow"
	case KindOffline:
		return "offline"
	case KindConnection:
		return "connection"
	case KindDecoding:
		return "decoding"
	case KindAdb:
		return "adb"
	case KindNoDevices:
		return "no_devices"
	case KindMultipleDevices:
		return "multiple_devices"
	default:
		return "other"
	}
}

// Classify maps err onto the error taxonomy. Offline is checked before the
// generic connection case since it is carried inside a ConnectionError.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindNone
	}

	var adbErr *AdbError
	var decErr *DecodingError
	var connErr *ConnectionError

	switch {
	case errors.Is(err, ErrEncodingOverflow):
		return KindEncodingOverflow
	case errors.Is(err, ErrOffline):
		return KindOffline
	case errors.As(err, &adbErr):
		return KindAdb
	case errors.As(err, &decErr):
		return KindDecoding
	case errors.As(err, &connErr):
		return KindConnection
	case errors.Is(err, ErrNoDevices):
		return KindNoDevices
	case errors.Is(err, ErrMultipleDevices):
		return KindMultipleDevices
	default:
		return KindOther
	}
}
