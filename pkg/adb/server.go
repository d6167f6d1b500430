// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package adb

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"strings"
	"syscall"
	"time"
	"unicode/utf8"
)

// Server is a handle on the host daemon. It is an immutable value: copy it
// freely and use copies concurrently. Every call opens its own connection.
type Server struct {
	host         netip.Addr
	port         int
	readTimeout  time.Duration
	writeTimeout time.Duration
	dialer       Dialer
}

// DefaultServer returns a handle on 127.0.0.1:5037 with 2s read and write
// timeouts.
func DefaultServer() Server {
	return NewServer(netip.MustParseAddr(DefaultHost), DefaultPort, DefaultReadTimeout, DefaultWriteTimeout)
}

// NewServer creates a handle. A zero timeout disables that timeout. The
// endpoint is not validated until a call connects.
func NewServer(host netip.Addr, port int, readTimeout, writeTimeout time.Duration) Server {
	return Server{
		host:         host,
		port:         port,
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
	}
}

// WithDialer returns a copy of s that connects through d.
func (s Server) WithDialer(d Dialer) Server {
	s.dialer = d
	return s
}

// Dialer returns the transport used by Connect.
func (s Server) Dialer() Dialer {
	if s.dialer == nil {
		return TCPDialer{}
	}
	return s.dialer
}

func (s Server) Host() netip.Addr { return s.host }

func (s Server) Port() int { return s.port }

func (s Server) ReadTimeout() time.Duration { return s.readTimeout }

func (s Server) WriteTimeout() time.Duration { return s.writeTimeout }

// Address returns host:port.
func (s Server) Address() string {
	return net.JoinHostPort(s.host.String(), strconv.Itoa(s.port))
}

func (s Server) String() string {
	return s.Address()
}

// Connect opens a connection with the configured timeouts applied to each
// read and write. A refused dial is reported as ErrOffline.
func (s Server) Connect(ctx context.Context) (Conn, error) {
	conn, err := s.Dialer().Dial(ctx, s.Address())
	if err != nil {
		if errors.Is(err, syscall.ECONNREFUSED) {
			err = fmt.Errorf("%w: %w", ErrOffline, err)
		}
		return nil, newConnectionError("dial", err)
	}

	return &timeoutConn{Conn: conn, readTimeout: s.readTimeout, writeTimeout: s.writeTimeout}, nil
}

// Result is the decoded output of one exchange plus any non-fatal warnings.
type Result struct {
	Output   string
	Warnings []Warning
}

// ExecContext performs one request/response exchange. The context bounds
// the dial only; reads and writes are bounded by the server timeouts.
func (s Server) ExecContext(ctx context.Context, command string, opts ExecOptions) (Result, error) {
	msg, err := EncodeMessage(command)
	if err != nil {
		return Result{}, err
	}

	conn, err := s.Connect(ctx)
	if err != nil {
		return Result{}, err
	}
	defer conn.Close()

	if _, err := conn.Write(msg); err != nil {
		return Result{}, newConnectionError("write", err)
	}

	resp, err := NewResponseReader(conn, opts).ReadResponse()
	if err != nil {
		return Result{}, err
	}
	if !utf8.Valid(resp.Payload) {
		return Result{}, newDecodingError(DecodeInvalidUTF8, resp.Payload, nil)
	}

	return Result{Output: string(resp.Payload), Warnings: resp.Warnings}, nil
}

// Exec performs one exchange and returns its output. Warnings are dropped;
// use ExecContext to observe them.
func (s Server) Exec(command string, hasOutput, hasLength bool) (string, error) {
	res, err := s.ExecContext(context.Background(), command, ExecOptions{Output: hasOutput, Length: hasLength})
	if err != nil {
		return "", err
	}
	return res.Output, nil
}

// DeviceList is a parsed device listing and the warnings of the exchange
// that produced it.
type DeviceList struct {
	Devices  []DeviceInfo
	Warnings []Warning
}

// ListDevicesContext queries the daemon for ready devices, in listing order.
func (s Server) ListDevicesContext(ctx context.Context) (DeviceList, error) {
	res, err := s.ExecContext(ctx, DevicesCommand, ExecOptions{Output: true, Length: true})
	if err != nil {
		return DeviceList{}, err
	}
	return DeviceList{Devices: ParseDeviceList(res.Output), Warnings: res.Warnings}, nil
}

// ListDevices queries the daemon for ready devices, in listing order.
func (s Server) ListDevices() ([]DeviceInfo, error) {
	list, err := s.ListDevicesContext(context.Background())
	if err != nil {
		return nil, err
	}
	return list.Devices, nil
}

// ActiveDeviceContext returns the first ready device. Callers that need to
// reject ambiguous pools should use RequireSingleDevice on ListDevices.
func (s Server) ActiveDeviceContext(ctx context.Context) (DeviceInfo, error) {
	list, err := s.ListDevicesContext(ctx)
	if err != nil {
		return DeviceInfo{}, err
	}
	if len(list.Devices) == 0 {
		return DeviceInfo{}, ErrNoDevices
	}
	return list.Devices[0], nil
}

// ActiveDevice returns the first ready device, or ErrNoDevices.
func (s Server) ActiveDevice() (DeviceInfo, error) {
	return s.ActiveDeviceContext(context.Background())
}

// Device binds serial to this server.
func (s Server) Device(serial string) Device {
	return NewDevice(serial, s)
}

// Version asks the daemon for its internal protocol version. The daemon
// reports it as four hex digits, the same encoding as a length prefix.
func (s Server) Version(ctx context.Context) (int, error) {
	res, err := s.ExecContext(ctx, VersionCommand, ExecOptions{Output: true, Length: true})
	if err != nil {
		return 0, err
	}
	return DecodeLength([]byte(strings.TrimSpace(res.Output)))
}

// Kill asks the daemon to exit.
func (s Server) Kill(ctx context.Context) error {
	_, err := s.ExecContext(ctx, KillCommand, ExecOptions{})
	return err
}
