package goble

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/srg/blelink/internal/device"
)

// NormalizeError maps known go-ble error strings to structured errors so
// callers can match them with errors.Is. The original error stays in the chain.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", device.ErrTimeout, err)
	}

	msg := err.Error()
	switch {
	case msg == "central manager has invalid state: have=4 want=5: is Bluetooth turned on?":
		return fmt.Errorf("%w: %w", device.ErrRadioUnavailable, err)
	case containsIgnoreCase(msg, "bluetooth is turned off"):
		return fmt.Errorf("%w: %w", device.ErrRadioUnavailable, err)
	case containsIgnoreCase(msg, "can't init hci"), containsIgnoreCase(msg, "no such device"):
		return fmt.Errorf("%w: %w", device.ErrRadioUnsupported, err)
	default:
		return err
	}
}

// containsIgnoreCase checks the substring case-insensitively
func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
