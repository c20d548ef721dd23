package device_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/srg/blelink/internal/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMatchesByKind(t *testing.T) {
	// GOAL: Verify structured errors match their sentinel regardless of op, message or cause
	//
	// TEST SCENARIO: Build errors of each kind → wrap them → errors.Is matches only the same kind

	cause := errors.New("radio said no")
	tests := []struct {
		err      error
		sentinel error
	}{
		{device.NewError(device.KindConnectFailed, "connect", cause), device.ErrConnectFailed},
		{device.NewError(device.KindDisconnectFailed, "disconnect", nil), device.ErrDisconnectFailed},
		{device.NewError(device.KindServiceDiscoveryFailed, "discover", cause), device.ErrServiceDiscoveryFailed},
		{device.InvalidStateError("connect", device.Connecting), device.ErrInvalidState},
		{fmt.Errorf("outer: %w", device.ErrAddressUnknown), device.ErrAddressUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.ErrorIs(t, tt.err, tt.sentinel, "error MUST match its own kind")
			assert.NotErrorIs(t, tt.err, device.ErrRadioUnavailable, "error MUST NOT match another kind")
		})
	}
}

func TestErrorMessage(t *testing.T) {
	err := device.InvalidStateError("connect", device.Connecting)
	assert.Equal(t, "connect: invalid state: connecting", err.Error())

	err = device.NewError(device.KindConnectFailed, "connect", errors.New("timeout"))
	assert.Equal(t, "connect: connect failed: timeout", err.Error())

	assert.Equal(t, "radio unavailable", device.ErrRadioUnavailable.Error())
}

func TestErrorUnwrapsCause(t *testing.T) {
	err := device.NewError(device.KindConnectFailed, "connect", device.ErrTimeout)

	assert.ErrorIs(t, err, device.ErrTimeout, "cause MUST be reachable through Unwrap")
	assert.Equal(t, device.KindConnectFailed, device.KindOf(fmt.Errorf("wrapped: %w", err)))
	assert.Equal(t, device.ErrorKind(""), device.KindOf(errors.New("plain")))
}

func TestNotFoundError(t *testing.T) {
	svcErr := &device.NotFoundError{Resource: "service", IDs: []string{"ffff"}}
	assert.Equal(t, `service "ffff" not found`, svcErr.Error())

	attrErr := &device.NotFoundError{Resource: "attribute", IDs: []string{"180f", "2a19"}}
	assert.Equal(t, `attribute "2a19" not found in service "180f"`, attrErr.Error())

	var target *device.NotFoundError
	wrapped := fmt.Errorf("lookup: %w", svcErr)
	require.ErrorAs(t, wrapped, &target)
	assert.Equal(t, "service", target.Resource)
	assert.ErrorIs(t, wrapped, device.ErrAttributeNotFound, "NotFoundError MUST match ErrAttributeNotFound")
}

func TestConnectionStateString(t *testing.T) {
	assert.Equal(t, "disconnected", device.Disconnected.String())
	assert.Equal(t, "connecting", device.Connecting.String())
	assert.Equal(t, "connected", device.Connected.String())
	assert.Equal(t, "disconnecting", device.Disconnecting.String())
	assert.Equal(t, "ConnectionState(9)", device.ConnectionState(9).String())
}

func TestPeripheralDisplayName(t *testing.T) {
	assert.Equal(t, "Widget-1", device.Peripheral{Address: "aa:bb", Name: "Widget-1"}.DisplayName())
	assert.Equal(t, "aa:bb", device.Peripheral{Address: "aa:bb"}.DisplayName())
}
