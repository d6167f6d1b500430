// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/adbhost/pkg/adb"
	"github.com/Thermoquad/adbhost/pkg/monitor"
)

var (
	monitorInterval      time.Duration
	monitorStatsInterval time.Duration
	monitorShowAll       bool
	useTUI               bool
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Watch the device pool and report changes",
	Long: `Poll the daemon's device list and report devices as they attach, detach or
change attributes, with running statistics on poll outcomes.

Each poll is a single exchange; a failed poll is reported and the next tick
simply polls again.

By default only changes and failures are displayed. Use --show-all to log
every poll.`,
	Args: cobra.NoArgs,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().DurationVarP(&monitorInterval, "interval", "i", monitor.DefaultInterval, "Polling interval")
	monitorCmd.Flags().DurationVar(&monitorStatsInterval, "stats-interval", 10*time.Second, "Statistics print interval (text mode)")
	monitorCmd.Flags().BoolVar(&monitorShowAll, "show-all", false, "Log every poll, not just changes")
	monitorCmd.Flags().BoolVar(&useTUI, "tui", true, "Use terminal UI (false for text mode)")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	srv, connInfo, err := openServer(cfg)
	if err != nil {
		return err
	}

	interval := cfg.MonitorInterval
	if cmd.Flags().Changed("interval") {
		interval = monitorInterval
	}
	if interval <= 0 {
		return fmt.Errorf("--interval must be positive")
	}
	poller := &monitor.Poller{Lister: srv, Interval: interval}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if useTUI && isTerminal(os.Stdout) {
		return runMonitorTUI(ctx, poller, connInfo)
	}
	return runMonitorText(ctx, cmd.OutOrStdout(), poller, connInfo)
}

// runMonitorTUI drives the bubbletea model from a polling goroutine
func runMonitorTUI(ctx context.Context, poller *monitor.Poller, connInfo string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := initialMonitorModel(connInfo, poller.Interval, monitorShowAll)
	p := tea.NewProgram(m, tea.WithContext(ctx))

	go func() {
		poller.Run(ctx, func(snap monitor.Snapshot, events []monitor.Event) {
			p.Send(pollMsg{snapshot: snap, events: events})
		})
	}()

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

// runMonitorText prints events as lines and a statistics block periodically
func runMonitorText(ctx context.Context, w io.Writer, poller *monitor.Poller, connInfo string) error {
	fmt.Fprintf(w, "adbhost - Device Monitor\n")
	fmt.Fprintf(w, "Connection: %s\n", connInfo)
	fmt.Fprintf(w, "Interval: %v\n", poller.Interval)
	fmt.Fprintf(w, "Press Ctrl+C to exit\n\n")

	stats := monitor.NewStatistics()
	lastStats := time.Now()

	err := poller.Run(ctx, func(snap monitor.Snapshot, events []monitor.Event) {
		stats.Update(snap, events)
		writeSnapshot(w, snap, events, monitorShowAll)

		if monitorStatsInterval > 0 && time.Since(lastStats) >= monitorStatsInterval {
			lastStats = time.Now()
			fmt.Fprintln(w)
			fmt.Fprint(w, stats.String())
			fmt.Fprintln(w)
		}
	})

	fmt.Fprintln(w)
	fmt.Fprint(w, stats.String())
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// writeSnapshot renders one poll in text mode
func writeSnapshot(w io.Writer, snap monitor.Snapshot, events []monitor.Event, showAll bool) {
	timestamp := snap.Time.Format("15:04:05.000")

	if snap.Err != nil {
		fmt.Fprintf(w, "[%s] %s\n", timestamp, adb.FormatError(snap.Err))
		return
	}
	for _, warning := range snap.Warnings {
		fmt.Fprintf(w, "[%s] warning: %s\n", timestamp, warning)
	}
	for _, e := range events {
		fmt.Fprintf(w, "[%s] %s\n", timestamp, e)
	}
	if showAll && len(events) == 0 {
		fmt.Fprintf(w, "[%s] %d devices, no change (%v)\n", timestamp, len(snap.Devices), snap.Duration.Round(time.Microsecond))
	}
}
