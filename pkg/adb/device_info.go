// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package adb

import (
	"maps"
	"slices"
	"strings"
)

// DeviceStateReady is the only listing state accepted by the parser.
const DeviceStateReady = "device"

// DeviceInfo is one parsed line of the daemon's device listing.
type DeviceInfo struct {
	Serial string            `json:"serial" cbor:"serial"`
	Info   map[string]string `json:"info" cbor:"info"`
}

// NewDeviceInfo creates a device record.
func NewDeviceInfo(serial string, info map[string]string) DeviceInfo {
	if info == nil {
		info = map[string]string{}
	}
	return DeviceInfo{Serial: serial, Info: info}
}

// ParseDeviceInfo parses a listing line of the form
//
//	<serial> <state> [key:value ...]
//
// Lines whose state is not "device" (offline, unauthorized, ...) are
// rejected with ok=false. Attribute tokens without exactly one colon are
// dropped.
func ParseDeviceInfo(line string) (DeviceInfo, bool) {
	fields := strings.Fields(line)
	if len(fields) < 2 || fields[1] != DeviceStateReady {
		return DeviceInfo{}, false
	}

	info := make(map[string]string, len(fields)-2)
	for _, token := range fields[2:] {
		if strings.Count(token, ":") != 1 {
			continue
		}
		key, value, _ := strings.Cut(token, ":")
		info[key] = value
	}

	return DeviceInfo{Serial: fields[0], Info: info}, true
}

// ParseDeviceList parses every line of a listing, keeping listing order
// and skipping lines that do not describe a ready device.
func ParseDeviceList(text string) []DeviceInfo {
	devices := []DeviceInfo{}
	for _, line := range strings.Split(text, "\n") {
		if info, ok := ParseDeviceInfo(line); ok {
			devices = append(devices, info)
		}
	}
	return devices
}

// Keys returns the attribute keys in sorted order.
func (d DeviceInfo) Keys() []string {
	return slices.Sorted(maps.Keys(d.Info))
}

// Get returns a single attribute.
func (d DeviceInfo) Get(key string) (string, bool) {
	v, ok := d.Info[key]
	return v, ok
}

// Product returns the "product" attribute, if reported.
func (d DeviceInfo) Product() string {
	return d.Info["product"]
}

// Model returns the "model" attribute, if reported.
func (d DeviceInfo) Model() string {
	return d.Info["model"]
}

// TransportID returns the "transport_id" attribute, if reported.
func (d DeviceInfo) TransportID() string {
	return d.Info["transport_id"]
}

// Equal reports whether both records have the same serial and attributes.
func (d DeviceInfo) Equal(other DeviceInfo) bool {
	return d.Serial == other.Serial && maps.Equal(d.Info, other.Info)
}

// RequireSingleDevice returns the only device in the list, or
// ErrNoDevices / ErrMultipleDevices.
func RequireSingleDevice(devices []DeviceInfo) (DeviceInfo, error) {
	switch len(devices) {
	case 0:
		return DeviceInfo{}, ErrNoDevices
	case 1:
		return devices[0], nil
	default:
		return DeviceInfo{}, ErrMultipleDevices
	}
}
