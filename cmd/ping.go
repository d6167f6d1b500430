// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/adbhost/pkg/adb"
)

var (
	pingCount    int
	pingInterval time.Duration
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Measure round trips to the daemon with host:version",
	Long: `Send host:version requests to the daemon and report the round trip time of
each, like ping(8). Works over TCP and over the WebSocket bridge.

This is useful for verifying:
  - The daemon is listening
  - The bridge (if any) is reachable and authenticated
  - The protocol version the daemon speaks

Exit codes:
  0 - All pings successful
  1 - One or more pings failed
  2 - Connection error on every ping`,
	Args: cobra.NoArgs,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVarP(&pingCount, "count", "n", 3, "Number of pings to send")
	pingCmd.Flags().DurationVar(&pingInterval, "interval", 100*time.Millisecond, "Delay between pings")
}

// pingSummary aggregates round trip times
type pingSummary struct {
	Sent     int
	Received int
	Min      time.Duration
	Max      time.Duration
	Total    time.Duration
	LastErr  error
}

func (s *pingSummary) add(rtt time.Duration, err error) {
	s.Sent++
	if err != nil {
		s.LastErr = err
		return
	}
	s.Received++
	s.Total += rtt
	if s.Received == 1 || rtt < s.Min {
		s.Min = rtt
	}
	if rtt > s.Max {
		s.Max = rtt
	}
}

func (s *pingSummary) Avg() time.Duration {
	if s.Received == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Received)
}

func (s *pingSummary) Loss() float64 {
	if s.Sent == 0 {
		return 0
	}
	return float64(s.Sent-s.Received) / float64(s.Sent) * 100
}

// Err reports the outcome: the last failure if nothing got through, a
// summary error if some pings failed, nil otherwise.
func (s *pingSummary) Err() error {
	switch {
	case s.Received == s.Sent:
		return nil
	case s.Received == 0:
		return s.LastErr
	default:
		return fmt.Errorf("%d of %d pings failed", s.Sent-s.Received, s.Sent)
	}
}

func (s *pingSummary) write(w io.Writer) {
	fmt.Fprintf(w, "\n--- Ping statistics ---\n")
	fmt.Fprintf(w, "%d pings sent, %d responses received, %.0f%% loss\n", s.Sent, s.Received, s.Loss())
	if s.Received > 0 {
		fmt.Fprintf(w, "rtt min/avg/max = %v/%v/%v\n",
			s.Min.Round(time.Microsecond), s.Avg().Round(time.Microsecond), s.Max.Round(time.Microsecond))
	}
}

func pingOnce(ctx context.Context, srv adb.Server) (int, time.Duration, error) {
	start := time.Now()
	version, err := srv.Version(ctx)
	return version, time.Since(start), err
}

func runPing(cmd *cobra.Command, args []string) error {
	if pingCount < 1 {
		return fmt.Errorf("--count must be at least 1")
	}

	srv, connInfo, err := openServer(cfg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "adbhost - Daemon Ping\n")
	fmt.Fprintf(out, "Connection: %s\n", connInfo)
	fmt.Fprintf(out, "Count: %d pings\n\n", pingCount)

	var summary pingSummary
	for i := 1; i <= pingCount; i++ {
		fmt.Fprintf(out, "Ping %d/%d: ", i, pingCount)

		version, rtt, err := pingOnce(cmd.Context(), srv)
		summary.add(rtt, err)
		if err != nil {
			fmt.Fprintf(out, "FAILED %s\n", adb.FormatError(err))
		} else {
			fmt.Fprintf(out, "version=%d rtt=%v\n", version, rtt.Round(time.Microsecond))
		}

		if i < pingCount {
			select {
			case <-cmd.Context().Done():
				summary.write(out)
				return cmd.Context().Err()
			case <-time.After(pingInterval):
			}
		}
	}

	summary.write(out)
	return summary.Err()
}
