// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package monitor

import (
	"context"
	"time"

	"github.com/Thermoquad/adbhost/pkg/adb"
)

// DefaultInterval is the polling interval used when none is set.
const DefaultInterval = time.Second

// Lister is the part of adb.Server the poller needs.
type Lister interface {
	ListDevicesContext(ctx context.Context) (adb.DeviceList, error)
}

// Snapshot is the outcome of one poll.
type Snapshot struct {
	Time     time.Time
	Duration time.Duration
	Devices  []adb.DeviceInfo
	Warnings []adb.Warning
	Err      error
}

// Poller lists devices on a fixed interval. A failed poll is reported and
// the next tick polls again; nothing is retried within a tick.
type Poller struct {
	Lister   Lister
	Interval time.Duration
	Metrics  *Metrics
}

// Poll lists devices once.
func (p *Poller) Poll(ctx context.Context) Snapshot {
	start := time.Now()
	list, err := p.Lister.ListDevicesContext(ctx)
	snap := Snapshot{
		Time:     start,
		Duration: time.Since(start),
		Devices:  list.Devices,
		Warnings: list.Warnings,
		Err:      err,
	}
	p.Metrics.ObservePoll(snap)
	return snap
}

// Run polls immediately and then on every tick until ctx is done, calling
// fn with each snapshot and the events since the last successful poll.
// Failed polls carry no events and do not reset the baseline.
func (p *Poller) Run(ctx context.Context, fn func(Snapshot, []Event)) error {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var previous []adb.DeviceInfo
	for {
		snap := p.Poll(ctx)
		var events []Event
		if snap.Err == nil {
			events = Diff(previous, snap.Devices)
			previous = snap.Devices
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		fn(snap, events)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
