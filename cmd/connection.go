// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/term"

	"github.com/Thermoquad/adbhost/pkg/adb"
)

const envBridgePassword = "ADBHOST_BRIDGE_PASSWORD"

// errConnectionClosed is returned when reading from a bridge that failed
var errConnectionClosed = errors.New("websocket connection closed")

// bridgeConn carries one daemon stream over a WebSocket. Each binary
// message is a chunk of the stream; a normal close frame is end of stream.
type bridgeConn struct {
	conn      *websocket.Conn
	buf       []byte
	bufOffset int
	eof       bool
	err       error
}

func (b *bridgeConn) Read(p []byte) (int, error) {
	if b.eof {
		return 0, io.EOF
	}
	if b.err != nil {
		return 0, errConnectionClosed
	}

	// If we have buffered data, return it first
	if b.bufOffset < len(b.buf) {
		n := copy(p, b.buf[b.bufOffset:])
		b.bufOffset += n
		return n, nil
	}

	for {
		messageType, data, err := b.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				b.eof = true
				return 0, io.EOF
			}
			b.err = err
			return 0, err
		}

		// Text frames are control chatter, not stream data
		if messageType != websocket.BinaryMessage || len(data) == 0 {
			continue
		}

		b.buf = data
		n := copy(p, b.buf)
		b.bufOffset = n
		return n, nil
	}
}

func (b *bridgeConn) Write(p []byte) (int, error) {
	if err := b.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (b *bridgeConn) Close() error {
	return b.conn.Close()
}

func (b *bridgeConn) SetReadDeadline(t time.Time) error {
	return b.conn.SetReadDeadline(t)
}

func (b *bridgeConn) SetWriteDeadline(t time.Time) error {
	return b.conn.SetWriteDeadline(t)
}

// BridgeDialer reaches the daemon through a WebSocket bridge. The bridge
// decides which daemon it connects to; the dialed address is only logged.
type BridgeDialer struct {
	URL           string
	Username      string
	Password      string
	SkipSSLVerify bool
}

// Dial opens one bridged stream.
func (d BridgeDialer) Dial(ctx context.Context, address string) (adb.Conn, error) {
	logger.Debug().Str("bridge", d.URL).Str("address", address).Msg("dialing bridge")
	return OpenBridgeConnection(ctx, d.URL, d.Username, d.Password, d.SkipSSLVerify)
}

// OpenBridgeConnection opens a WebSocket connection with HTTP Basic auth
func OpenBridgeConnection(ctx context.Context, wsURL, username, password string, skipSSLVerify bool) (adb.Conn, error) {
	// Parse and validate URL
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: skipSSLVerify,
		}
	}

	// Build HTTP headers with Basic auth
	headers := http.Header{}
	if username != "" && password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("HTTP %d: %w", resp.StatusCode, err)
		}
		// Refused by the bridge means the daemon behind it is unreachable
		// too; report it the same way as a refused TCP dial.
		if resp != nil && resp.StatusCode == http.StatusBadGateway {
			err = fmt.Errorf("%w: %w", syscall.ECONNREFUSED, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}

	return &bridgeConn{conn: conn}, nil
}

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	if pw := os.Getenv(envBridgePassword); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// openServer builds the daemon handle from the resolved config, routing it
// through the bridge when a URL is set. The string describes the route.
func openServer(c Config) (adb.Server, string, error) {
	srv := c.Server()
	if c.BridgeURL == "" {
		return srv, fmt.Sprintf("TCP: %s", srv.Address()), nil
	}

	password := ""
	if c.BridgeUsername != "" {
		var err error
		password, err = GetPassword()
		if err != nil {
			return adb.Server{}, "", err
		}
	}

	dialer := BridgeDialer{
		URL:           c.BridgeURL,
		Username:      c.BridgeUsername,
		Password:      password,
		SkipSSLVerify: c.BridgeNoSSLVerify,
	}
	return srv.WithDialer(dialer), fmt.Sprintf("WebSocket: %s", c.BridgeURL), nil
}
