// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package adb

import (
	"fmt"
	"io"
	"unicode/utf8"
)

// Response reader states
type readState int

const (
	stateBanner readState = iota
	stateError
	stateOutput
	stateLengthPrefixed
	stateDone
)

func (s readState) String() string {
	switch s {
	case stateBanner:
		return "banner"
	case stateError:
		return "error"
	case stateOutput:
		return "output"
	case stateLengthPrefixed:
		return "length-prefixed"
	case stateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ExecOptions selects which response stages a request expects.
type ExecOptions struct {
	// Output reads the stream to EOF after an OKAY banner.
	Output bool
	// Length treats the output as a hex length followed by a message body.
	Length bool
}

// WarningKind categorizes non-fatal response anomalies.
type WarningKind int

const (
	// WarnLengthMismatch is a declared sub-message length that disagrees
	// with the number of bytes actually received.
	WarnLengthMismatch WarningKind = iota
)

// Warning is a non-fatal anomaly reported alongside a successful response.
type Warning struct {
	Kind     WarningKind
	Declared int
	Actual   int
}

func (w Warning) String() string {
	switch w.Kind {
	case WarnLengthMismatch:
		return fmt.Sprintf("length mismatch: declared %d bytes, received %d", w.Declared, w.Actual)
	default:
		return "unknown warning"
	}
}

// Response is the decoded result of one exchange.
type Response struct {
	Payload  []byte
	Warnings []Warning
}

// ResponseReader runs the host response state machine over a stream:
//
//	banner -> error message            (banner != OKAY)
//	banner -> done                     (OKAY, no output requested)
//	banner -> output -> done           (OKAY, output requested)
//	banner -> output -> length-prefixed -> done
//
// It never retries. Every I/O failure is returned as a ConnectionError.
type ResponseReader struct {
	r      io.Reader
	opts   ExecOptions
	state  readState
	output []byte
	resp   Response
}

// NewResponseReader creates a reader for one response on r.
func NewResponseReader(r io.Reader, opts ExecOptions) *ResponseReader {
	return &ResponseReader{r: r, opts: opts, state: stateBanner}
}

// ReadResponse drives the state machine to completion.
func (rr *ResponseReader) ReadResponse() (Response, error) {
	for rr.state != stateDone {
		next, err := rr.step()
		if err != nil {
			rr.state = stateDone
			return Response{}, err
		}
		rr.state = next
	}
	return rr.resp, nil
}

// step performs the I/O for the current state and returns the next state.
func (rr *ResponseReader) step() (readState, error) {
	switch rr.state {
	case stateBanner:
		banner := make([]byte, BannerSize)
		if _, err := io.ReadFull(rr.r, banner); err != nil {
			return stateDone, newConnectionError("read banner", err)
		}
		return transitionBanner(banner, rr.opts), nil

	case stateError:
		return stateDone, rr.readErrorMessage()

	case stateOutput:
		out, err := io.ReadAll(rr.r)
		if err != nil {
			return stateDone, newConnectionError("read output", err)
		}
		next, body, err := transitionOutput(out, rr.opts)
		if err != nil {
			return stateDone, err
		}
		rr.output = body
		if next == stateDone {
			rr.resp.Payload = body
		}
		return next, nil

	case stateLengthPrefixed:
		body, warning, err := splitLengthPrefixed(rr.output)
		if err != nil {
			return stateDone, err
		}
		rr.resp.Payload = body
		if warning != nil {
			rr.resp.Warnings = append(rr.resp.Warnings, *warning)
		}
		return stateDone, nil

	default:
		return stateDone, fmt.Errorf("adb: invalid reader state: %s", rr.state)
	}
}

// readErrorMessage reads the length-prefixed message that follows a
// non-OKAY banner. The message is capped at errorBufferSize bytes.
func (rr *ResponseReader) readErrorMessage() error {
	prefix := make([]byte, LengthPrefixSize)
	if _, err := io.ReadFull(rr.r, prefix); err != nil {
		return newConnectionError("read error length", err)
	}
	n, err := DecodeLength(prefix)
	if err != nil {
		return err
	}
	n = min(n, errorBufferSize)

	msg := make([]byte, n)
	if _, err := io.ReadFull(rr.r, msg); err != nil {
		return newConnectionError("read error message", err)
	}
	if !utf8.Valid(msg) {
		return newDecodingError(DecodeInvalidUTF8, msg, nil)
	}
	return &AdbError{Message: string(msg)}
}

// transitionBanner picks the state following the banner.
func transitionBanner(banner []byte, opts ExecOptions) readState {
	if !CmdOkay.Matches(banner) {
		return stateError
	}
	if opts.Output {
		return stateOutput
	}
	return stateDone
}

// transitionOutput inspects the drained output. A leading OKAY is a
// continuation banner and is stripped; a leading FAIL is an embedded
// failure even though the outer banner succeeded.
func transitionOutput(out []byte, opts ExecOptions) (readState, []byte, error) {
	if CmdOkay.Matches(out) {
		out = out[BannerSize:]
	}
	if CmdFail.Matches(out) {
		return stateDone, nil, embeddedFailure(out[BannerSize:])
	}
	if opts.Length {
		return stateLengthPrefixed, out, nil
	}
	return stateDone, out, nil
}

// embeddedFailure decodes the HHHH+message that follows an embedded FAIL.
func embeddedFailure(rest []byte) error {
	if len(rest) < LengthPrefixSize {
		return newDecodingError(DecodeTruncated, rest, nil)
	}
	n, err := DecodeLength(rest[:LengthPrefixSize])
	if err != nil {
		return err
	}
	body := rest[LengthPrefixSize:]
	if n > len(body) {
		return newDecodingError(DecodeTruncated, rest,
			fmt.Errorf("declared %d bytes, got %d", n, len(body)))
	}
	msg := body[:n]
	if !utf8.Valid(msg) {
		return newDecodingError(DecodeInvalidUTF8, msg, nil)
	}
	return &AdbError{Message: string(msg)}
}

// splitLengthPrefixed separates the declared length from the body. A
// mismatch between the two is reported as a warning; the body is returned
// either way.
func splitLengthPrefixed(out []byte) ([]byte, *Warning, error) {
	if len(out) < LengthPrefixSize {
		return nil, nil, newDecodingError(DecodeTruncated, out,
			fmt.Errorf("need %d bytes for length prefix, got %d", LengthPrefixSize, len(out)))
	}
	declared, err := DecodeLength(out[:LengthPrefixSize])
	if err != nil {
		return nil, nil, err
	}
	body := out[LengthPrefixSize:]
	if declared != len(body) {
		return body, &Warning{Kind: WarnLengthMismatch, Declared: declared, Actual: len(body)}, nil
	}
	return body, nil, nil
}
