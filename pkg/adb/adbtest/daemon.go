// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package adbtest provides an in-process fake of the ADB host daemon for
// tests. It speaks only the framing layer: it reads one length-prefixed
// request per connection, writes whatever the handler returns and closes.
package adbtest

import (
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Thermoquad/adbhost/pkg/adb"
)

// Handler returns the raw response bytes for a request.
type Handler func(request string) []byte

// Daemon is a fake host daemon listening on a loopback port.
type Daemon struct {
	listener net.Listener
	handler  Handler

	mu       sync.Mutex
	requests []string

	wg sync.WaitGroup
}

// NewDaemon starts a fake daemon. It is shut down when the test ends.
func NewDaemon(tb testing.TB, handler Handler) *Daemon {
	tb.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		tb.Fatalf("failed to listen: %v", err)
	}

	d := &Daemon{listener: listener, handler: handler}
	d.wg.Add(1)
	go d.acceptLoop()

	tb.Cleanup(d.Close)
	return d
}

// Close stops accepting and waits for in-flight connections.
func (d *Daemon) Close() {
	d.listener.Close()
	d.wg.Wait()
}

// Address returns host:port of the listener.
func (d *Daemon) Address() string {
	return d.listener.Addr().String()
}

// Server returns a handle on the fake daemon.
func (d *Daemon) Server() adb.Server {
	addr := d.listener.Addr().(*net.TCPAddr).AddrPort()
	return adb.NewServer(addr.Addr(), int(addr.Port()), 2*time.Second, 2*time.Second)
}

// Requests returns the decoded requests received so far.
func (d *Daemon) Requests() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.requests...)
}

func (d *Daemon) acceptLoop() {
	defer d.wg.Done()
	for {
		conn, err := d.listener.Accept()
		if err != nil {
			return
		}
		d.wg.Add(1)
		go d.serve(conn)
	}
}

func (d *Daemon) serve(conn net.Conn) {
	defer d.wg.Done()
	defer conn.Close()

	prefix := make([]byte, adb.LengthPrefixSize)
	if _, err := io.ReadFull(conn, prefix); err != nil {
		return
	}
	n, err := strconv.ParseUint(string(prefix), 16, 16)
	if err != nil {
		return
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(conn, body); err != nil {
		return
	}

	request := string(body)
	d.mu.Lock()
	d.requests = append(d.requests, request)
	d.mu.Unlock()

	if d.handler == nil {
		return
	}
	if resp := d.handler(request); len(resp) > 0 {
		conn.Write(resp)
	}
}

// Okay returns an OKAY banner followed by payload verbatim.
func Okay(payload string) []byte {
	return []byte("OKAY" + payload)
}

// OkayLength returns an OKAY banner followed by a length-prefixed body.
func OkayLength(body string) []byte {
	return []byte(fmt.Sprintf("OKAY%04X%s", len(body), body))
}

// Fail returns a FAIL banner followed by a length-prefixed message.
func Fail(message string) []byte {
	return []byte(fmt.Sprintf("FAIL%04X%s", len(message), message))
}

// Devices returns a device listing response for the given lines.
func Devices(lines ...string) []byte {
	if len(lines) == 0 {
		return OkayLength("")
	}
	return OkayLength(strings.Join(lines, "\n") + "\n")
}
