package sim

import (
	"time"

	"github.com/sirupsen/logrus"
)

// NewDemo returns a platform with a small neighbourhood of peripherals,
// used by the command line when no radio hardware is wanted.
func NewDemo(logger *logrus.Logger) *Platform {
	p := New(logger).
		WithLatency(40 * time.Millisecond).
		WithAdvertisingInterval(500 * time.Millisecond)

	p.WithPeripheral("d0:4a:1c:00:00:01", "Widget-1").
		WithRSSI(-48).
		WithService("1800", "2A00", "2A01").
		WithService("180F", "2A19").
		WithService("180D", "2A37", "2A38").
		WithPeripheral("d0:4a:1c:00:00:02", "Gadget-2").
		WithRSSI(-71).
		WithService("1800", "2A00").
		WithService("6e400001-b5a3-f393-e0a9-e50e24dcca9e",
			"6e400002-b5a3-f393-e0a9-e50e24dcca9e",
			"6e400003-b5a3-f393-e0a9-e50e24dcca9e").
		WithPeripheral("d0:4a:1c:00:00:03", "").
		WithRSSI(-90)

	return p
}
