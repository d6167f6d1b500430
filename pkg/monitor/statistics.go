// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package monitor polls a host daemon for its device listing and tracks
// what changed between polls.
package monitor

import (
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/adbhost/pkg/adb"
)

// Statistics tracks poll outcomes and error rates
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalPolls       uint64
	SuccessfulPolls  uint64
	OfflineErrors    uint64
	ConnectionErrors uint64
	DecodeErrors     uint64
	AdbErrors        uint64
	OtherErrors      uint64
	LengthMismatches uint64
	Events           uint64

	// Last observed
	Devices     int
	LastLatency time.Duration

	// Rates (calculated)
	PollRate  float64 // polls/sec
	ErrorRate float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Update records one poll and the events it produced
func (s *Statistics) Update(snap Snapshot, events []Event) {
	s.TotalPolls++
	s.LastUpdateTime = time.Now()
	s.LastLatency = snap.Duration

	if snap.Err != nil {
		switch adb.Classify(snap.Err) {
		case adb.KindOffline:
			s.OfflineErrors++
		case adb.KindConnection:
			s.ConnectionErrors++
		case adb.KindDecoding:
			s.DecodeErrors++
		case adb.KindAdb:
			s.AdbErrors++
		default:
			s.OtherErrors++
		}
		return
	}

	s.SuccessfulPolls++
	s.Devices = len(snap.Devices)
	s.Events += uint64(len(events))
	for _, w := range snap.Warnings {
		if w.Kind == adb.WarnLengthMismatch {
			s.LengthMismatches++
		}
	}
}

// Errors returns the number of failed polls
func (s *Statistics) Errors() uint64 {
	return s.OfflineErrors + s.ConnectionErrors + s.DecodeErrors + s.AdbErrors + s.OtherErrors
}

// CalculateRates calculates poll and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.PollRate = float64(s.TotalPolls) / elapsed
		s.ErrorRate = float64(s.Errors()) / elapsed
	}
}

func (s *Statistics) percent(n uint64) float64 {
	if s.TotalPolls == 0 {
		return 0
	}
	return float64(n) * 100.0 / float64(s.TotalPolls)
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	var b strings.Builder
	fmt.Fprintf(&b, "=== Statistics (%.0f seconds) ===\n", time.Since(s.StartTime).Seconds())
	fmt.Fprintf(&b, "Total Polls:     %8d\n", s.TotalPolls)
	fmt.Fprintf(&b, "Successful:      %8d (%.1f%%)\n", s.SuccessfulPolls, s.percent(s.SuccessfulPolls))

	if s.OfflineErrors > 0 {
		fmt.Fprintf(&b, "Offline:         %8d (%.1f%%)\n", s.OfflineErrors, s.percent(s.OfflineErrors))
	}
	if s.ConnectionErrors > 0 {
		fmt.Fprintf(&b, "Connection Errs: %8d (%.1f%%)\n", s.ConnectionErrors, s.percent(s.ConnectionErrors))
	}
	if s.DecodeErrors > 0 {
		fmt.Fprintf(&b, "Decode Errors:   %8d (%.1f%%)\n", s.DecodeErrors, s.percent(s.DecodeErrors))
	}
	if s.AdbErrors > 0 {
		fmt.Fprintf(&b, "Daemon Errors:   %8d (%.1f%%)\n", s.AdbErrors, s.percent(s.AdbErrors))
	}
	if s.OtherErrors > 0 {
		fmt.Fprintf(&b, "Other Errors:    %8d (%.1f%%)\n", s.OtherErrors, s.percent(s.OtherErrors))
	}
	if s.LengthMismatches > 0 {
		fmt.Fprintf(&b, "  Length Mismatch:  %5d\n", s.LengthMismatches)
	}

	fmt.Fprintf(&b, "Devices:         %8d\n", s.Devices)
	fmt.Fprintf(&b, "Events:          %8d\n", s.Events)
	fmt.Fprintf(&b, "Last Latency:    %8s\n", s.LastLatency.Round(time.Microsecond))
	fmt.Fprintf(&b, "Poll Rate:       %8.1f polls/sec\n", s.PollRate)
	fmt.Fprintf(&b, "Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	b.WriteString("================================\n")

	return b.String()
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}
