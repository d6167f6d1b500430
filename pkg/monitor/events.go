// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package monitor

import (
	"fmt"

	"github.com/Thermoquad/adbhost/pkg/adb"
)

// EventKind describes how a device changed between two listings.
type EventKind int

const (
	EventAttached EventKind = iota
	EventDetached
	EventChanged
)

func (k EventKind) String() string {
	switch k {
	case EventAttached:
		return "attached"
	case EventDetached:
		return "detached"
	case EventChanged:
		return "changed"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// MarshalText lets events encode their kind by name.
func (k EventKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Event is one device transition. Previous is set for EventChanged and
// EventDetached.
type Event struct {
	Kind     EventKind      `json:"kind"`
	Serial   string         `json:"serial"`
	Device   adb.DeviceInfo `json:"device"`
	Previous adb.DeviceInfo `json:"previous"`
}

func (e Event) String() string {
	switch e.Kind {
	case EventAttached:
		return fmt.Sprintf("+ %s", adb.FormatDeviceLine(e.Device))
	case EventDetached:
		return fmt.Sprintf("- %s", e.Serial)
	default:
		return fmt.Sprintf("~ %s", adb.FormatDeviceLine(e.Device))
	}
}

// Diff compares two listings keyed by serial. Detached devices are reported
// first in prev order, then attached and changed devices in curr order.
func Diff(prev, curr []adb.DeviceInfo) []Event {
	before := make(map[string]adb.DeviceInfo, len(prev))
	for _, d := range prev {
		before[d.Serial] = d
	}
	after := make(map[string]adb.DeviceInfo, len(curr))
	for _, d := range curr {
		after[d.Serial] = d
	}

	var events []Event
	for _, d := range prev {
		if _, ok := after[d.Serial]; ok {
			continue
		}
		if _, ok := before[d.Serial]; ok {
			events = append(events, Event{Kind: EventDetached, Serial: d.Serial, Previous: d})
			delete(before, d.Serial)
		}
	}
	for _, d := range curr {
		old, ok := before[d.Serial]
		switch {
		case !ok:
			events = append(events, Event{Kind: EventAttached, Serial: d.Serial, Device: d})
		case !old.Equal(d):
			events = append(events, Event{Kind: EventChanged, Serial: d.Serial, Device: d, Previous: old})
		}
		// a serial listed twice is compared against its first listing
		before[d.Serial] = d
	}
	return events
}
