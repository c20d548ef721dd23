//go:build linux

package goble

import (
	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
)

// DeviceFactory creates the ble.Device backing a Platform (can be overridden in tests)
//
//nolint:revive // exported var is intentionally replaceable
var DeviceFactory = func() (ble.Device, error) {
	return linux.NewDevice()
}
