// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package adb

import (
	"fmt"
	"strconv"
)

// EncodeLength formats n as four uppercase, zero-padded hex digits.
func EncodeLength(n int) (string, error) {
	if n < 0 || n > MaxMessageLength {
		return "", fmt.Errorf("%w: %d bytes (max %d)", ErrEncodingOverflow, n, MaxMessageLength)
	}
	return fmt.Sprintf("%04X", n), nil
}

// EncodeMessage frames a host command for transmission: the hex length
// prefix followed by the raw command bytes. No terminator is appended.
func EncodeMessage(command string) ([]byte, error) {
	prefix, err := EncodeLength(len(command))
	if err != nil {
		return nil, err
	}

	msg := make([]byte, 0, LengthPrefixSize+len(command))
	msg = append(msg, prefix...)
	msg = append(msg, command...)
	return msg, nil
}

// DecodeLength parses a four digit hex length prefix.
func DecodeLength(b []byte) (int, error) {
	if len(b) != LengthPrefixSize {
		return 0, newDecodingError(DecodeInvalidLength, b,
			fmt.Errorf("expected %d hex digits, got %d bytes", LengthPrefixSize, len(b)))
	}
	n, err := strconv.ParseUint(string(b), 16, 16)
	if err != nil {
		return 0, newDecodingError(DecodeInvalidLength, b, err)
	}
	return int(n), nil
}

// DecodeMessage is the inverse of EncodeMessage. The declared length must
// match the remaining bytes exactly.
func DecodeMessage(wire []byte) (string, error) {
	if len(wire) < LengthPrefixSize {
		return "", newDecodingError(DecodeTruncated, wire, nil)
	}
	n, err := DecodeLength(wire[:LengthPrefixSize])
	if err != nil {
		return "", err
	}
	body := wire[LengthPrefixSize:]
	if n != len(body) {
		return "", newDecodingError(DecodeTruncated, wire,
			fmt.Errorf("declared %d bytes, got %d", n, len(body)))
	}
	return string(body), nil
}
