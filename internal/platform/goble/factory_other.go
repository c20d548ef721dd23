//go:build !darwin && !linux

package goble

import (
	"fmt"
	"runtime"

	"github.com/go-ble/ble"
	"github.com/srg/blelink/internal/device"
)

// DeviceFactory creates the ble.Device backing a Platform (can be overridden in tests)
//
//nolint:revive // exported var is intentionally replaceable
var DeviceFactory = func() (ble.Device, error) {
	return nil, fmt.Errorf("go-ble on %s: %w", runtime.GOOS, device.ErrUnsupported)
}
