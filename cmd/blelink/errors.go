package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/srg/blelink/internal/device"
)

// Command-level errors
var (
	// ErrDeviceNotSeen indicates the scan ended without admitting the requested address
	ErrDeviceNotSeen = errors.New("device not seen")

	// ErrConnectionLost indicates the link dropped while a command was waiting on it
	ErrConnectionLost = errors.New("connection lost")
)

// FormatUserError turns an error chain into a one-line message with a hint
// for the common failure kinds.
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}

	hint := ""
	switch {
	case errors.Is(err, device.ErrRadioUnsupported):
		hint = "no usable Bluetooth LE adapter was found; try --backend sim to run without hardware"
	case errors.Is(err, device.ErrRadioUnavailable):
		hint = "the Bluetooth adapter is turned off; enable it and retry"
	case errors.Is(err, device.ErrNotInitialized):
		hint = "the radio has not been initialized"
	case errors.Is(err, device.ErrAddressUnknown):
		hint = "the address has not been seen in the current scan; scan first or check the --prefix filter"
	case errors.Is(err, ErrDeviceNotSeen):
		hint = "the device did not advertise before the scan timed out; move closer or raise --duration"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, device.ErrTimeout):
		hint = "the operation timed out"
	case errors.Is(err, ErrConnectionLost):
		hint = "the peripheral went out of range or disconnected"
	}

	if hint == "" {
		return err.Error()
	}
	return fmt.Sprintf("%s (%s)", err.Error(), hint)
}
