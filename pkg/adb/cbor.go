// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package adb

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// cborEncMode sorts map keys so equal device lists encode identically.
var cborEncMode = func() cbor.EncMode {
	mode, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("adb: cbor enc mode: %v", err))
	}
	return mode
}()

// MarshalDeviceListCBOR encodes devices as a CBOR array of
// {"serial": ..., "info": {...}} maps.
func MarshalDeviceListCBOR(devices []DeviceInfo) ([]byte, error) {
	if devices == nil {
		devices = []DeviceInfo{}
	}
	data, err := cborEncMode.Marshal(devices)
	if err != nil {
		return nil, fmt.Errorf("failed to encode device list: %w", err)
	}
	return data, nil
}

// UnmarshalDeviceListCBOR decodes the output of MarshalDeviceListCBOR.
func UnmarshalDeviceListCBOR(data []byte) ([]DeviceInfo, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty CBOR payload")
	}
	var devices []DeviceInfo
	if err := cbor.Unmarshal(data, &devices); err != nil {
		return nil, fmt.Errorf("failed to decode CBOR: %w", err)
	}
	for i := range devices {
		if devices[i].Info == nil {
			devices[i].Info = map[string]string{}
		}
	}
	return devices, nil
}
