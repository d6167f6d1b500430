// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/adbhost/pkg/adb"
)

var (
	traceOutput bool
	traceLength bool
	traceHex    bool
)

var traceCmd = &cobra.Command{
	Use:   "trace <command>...",
	Short: "Run one exchange and dump the raw wire traffic",
	Long: `Like exec, but print every byte sent to and received from the daemon,
tagged with an exchange ID, followed by the decoded result.

Non-printable bytes are escaped; use --hex for a full hex dump instead.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTrace,
}

func init() {
	rootCmd.AddCommand(traceCmd)
	traceCmd.Flags().BoolVarP(&traceOutput, "output", "o", false, "Read output after the OKAY banner")
	traceCmd.Flags().BoolVarP(&traceLength, "length", "l", false, "Output is length-prefixed")
	traceCmd.Flags().BoolVar(&traceHex, "hex", false, "Hex dump instead of escaped text")
}

// wireRecorder accumulates both directions of one exchange
type wireRecorder struct {
	mu       sync.Mutex
	sent     []byte
	received []byte
}

func (r *wireRecorder) record(dst *[]byte, p []byte) {
	r.mu.Lock()
	*dst = append(*dst, p...)
	r.mu.Unlock()
}

func (r *wireRecorder) Sent() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]byte(nil), r.sent...)
}

func (r *wireRecorder) Received() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]byte(nil), r.received...)
}

// recordingConn copies every byte that crosses the connection
type recordingConn struct {
	adb.Conn
	rec *wireRecorder
}

func (c *recordingConn) Read(p []byte) (int, error) {
	n, err := c.Conn.Read(p)
	if n > 0 {
		c.rec.record(&c.rec.received, p[:n])
	}
	return n, err
}

func (c *recordingConn) Write(p []byte) (int, error) {
	n, err := c.Conn.Write(p)
	if n > 0 {
		c.rec.record(&c.rec.sent, p[:n])
	}
	return n, err
}

// recordingDialer wraps every connection from base in a recordingConn
type recordingDialer struct {
	base adb.Dialer
	rec  *wireRecorder
}

func (d recordingDialer) Dial(ctx context.Context, address string) (adb.Conn, error) {
	conn, err := d.base.Dial(ctx, address)
	if err != nil {
		return nil, err
	}
	return &recordingConn{Conn: conn, rec: d.rec}, nil
}

// exchangeTrace is the printable record of one traced exchange
type exchangeTrace struct {
	ID       uuid.UUID
	Route    string
	Command  string
	Sent     []byte
	Received []byte
	Result   adb.Result
	Err      error
	Duration time.Duration
}

func traceExchange(ctx context.Context, srv adb.Server, route, command string, opts adb.ExecOptions) exchangeTrace {
	rec := &wireRecorder{}
	traced := srv.WithDialer(recordingDialer{base: srv.Dialer(), rec: rec})

	start := time.Now()
	res, err := traced.ExecContext(ctx, command, opts)
	return exchangeTrace{
		ID:       uuid.New(),
		Route:    route,
		Command:  command,
		Sent:     rec.Sent(),
		Received: rec.Received(),
		Result:   res,
		Err:      err,
		Duration: time.Since(start),
	}
}

func formatTraffic(prefix string, data []byte, hexDump bool) string {
	if len(data) == 0 {
		return prefix + " (nothing)\n"
	}
	if hexDump {
		var b strings.Builder
		fmt.Fprintf(&b, "%s %d bytes\n", prefix, len(data))
		for _, line := range strings.SplitAfter(strings.TrimSuffix(hex.Dump(data), "\n"), "\n") {
			b.WriteString("   ")
			b.WriteString(line)
		}
		b.WriteString("\n")
		return b.String()
	}
	return fmt.Sprintf("%s %s\n", prefix, adb.FormatWire(data))
}

func writeTrace(w io.Writer, t exchangeTrace, hexDump bool) {
	fmt.Fprintf(w, "exchange %s\n", t.ID)
	fmt.Fprintf(w, "route:    %s\n", t.Route)
	fmt.Fprintf(w, "duration: %v\n", t.Duration.Round(time.Microsecond))
	fmt.Fprint(w, formatTraffic(">>", t.Sent, hexDump))
	fmt.Fprint(w, formatTraffic("<<", t.Received, hexDump))

	if t.Err != nil {
		fmt.Fprintf(w, "result:   %s\n", adb.FormatError(t.Err))
		return
	}
	for _, warning := range t.Result.Warnings {
		fmt.Fprintf(w, "warning:  %s\n", warning)
	}
	fmt.Fprintf(w, "result:   %q\n", t.Result.Output)
}

func runTrace(cmd *cobra.Command, args []string) error {
	srv, route, err := openServer(cfg)
	if err != nil {
		return err
	}

	t := traceExchange(cmd.Context(), srv, route, strings.Join(args, " "), adb.ExecOptions{Output: traceOutput, Length: traceLength})
	writeTrace(cmd.OutOrStdout(), t, traceHex)
	return t.Err
}
