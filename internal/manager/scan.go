package manager

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blelink/internal/device"
	"github.com/srg/blelink/internal/dispatch"
)

// StartScan clears the registry and (re)starts discovery.
//
// While connected, the connected record survives the clear and is announced
// once more before discovery starts. A scan already in progress is stopped
// first and restarted after the scan restart delay; advertisements still
// arriving from the stopped scan are dropped.
func (m *Manager) StartScan() error {
	const op = "start scan"
	if err := m.radio.Check(); err != nil {
		return &device.Error{Kind: device.KindOf(err), Op: op}
	}

	m.scanMu.Lock()
	defer m.scanMu.Unlock()

	connected, reannounce := m.connectedRecord()

	gen := m.registry.Clear()
	if reannounce {
		m.registry.Put(connected)
		m.dispatcher.Dispatch(dispatch.DiscoveredEvent(connected))
	}

	scanner := m.platform.Scanner()
	if m.scanning.Load() {
		if err := scanner.StopDiscovery(); err != nil {
			m.logger.WithError(err).Warn("Failed to stop running scan before restart")
		}
		m.scanning.Store(false)
		time.Sleep(m.opts.ScanRestartDelay)
	}

	handler := func(adv device.Advertisement) {
		m.handleAdvertisement(gen, adv)
	}
	if err := scanner.StartDiscovery(handler); err != nil {
		m.logger.WithError(err).Error("Failed to start discovery")
		return fmt.Errorf("%s: %w", op, err)
	}
	m.scanning.Store(true)

	fields := logrus.Fields{"reannounced": reannounce}
	if prefix, ok := m.registry.NameFilter(); ok {
		fields["name_filter"] = prefix
	}
	m.logger.WithFields(fields).Info("Scan started")
	return nil
}

// StopScan stops discovery if it is running
func (m *Manager) StopScan() error {
	if err := m.radio.Check(); err != nil {
		return &device.Error{Kind: device.KindOf(err), Op: "stop scan"}
	}
	return m.stopScan()
}

func (m *Manager) stopScan() error {
	m.scanMu.Lock()
	defer m.scanMu.Unlock()

	if !m.scanning.Load() {
		return nil
	}

	m.registry.Retire()
	m.scanning.Store(false)
	if err := m.platform.Scanner().StopDiscovery(); err != nil {
		m.logger.WithError(err).Error("Failed to stop discovery")
		return fmt.Errorf("stop scan: %w", err)
	}

	m.logger.WithField("device_count", m.registry.Len()).Info("Scan stopped")
	return nil
}

func (m *Manager) IsScanning() bool {
	return m.scanning.Load()
}

// SetNameFilter admits only devices whose name starts with prefix from now on.
// Records already admitted are kept until the next StartScan.
func (m *Manager) SetNameFilter(prefix string) {
	m.registry.SetNameFilter(prefix)
	m.logger.WithField("prefix", prefix).Debug("Name filter set")
}

func (m *Manager) ClearNameFilter() {
	m.registry.ClearNameFilter()
	m.logger.Debug("Name filter cleared")
}

// NameFilter returns the active name prefix filter, if any
func (m *Manager) NameFilter() (string, bool) {
	return m.registry.NameFilter()
}

// Peripherals returns the devices admitted since the last StartScan, in admission order
func (m *Manager) Peripherals() []device.Peripheral {
	return m.registry.Records()
}

func (m *Manager) connectedRecord() (device.Peripheral, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != device.Connected || m.active == nil {
		return device.Peripheral{}, false
	}
	if p, ok := m.registry.Get(m.active.address); ok {
		return p, true
	}
	return device.Peripheral{Address: m.active.address, Seen: time.Now()}, true
}

func (m *Manager) handleAdvertisement(gen uint64, adv device.Advertisement) {
	p := adv.Peripheral()
	if !m.registry.AdmitIn(gen, p) {
		if m.logger.IsLevelEnabled(logrus.TraceLevel) {
			m.logger.WithField("address", p.Address).Trace("Advertisement rejected")
		}
		return
	}

	m.logger.WithFields(logrus.Fields{
		"address": p.Address,
		"name":    p.Name,
		"rssi":    p.RSSI,
	}).Debug("Device discovered")
	m.dispatcher.Dispatch(dispatch.DiscoveredEvent(p))
}
