package manager

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blelink/internal/device"
	"github.com/srg/blelink/internal/dispatch"
	"github.com/srg/blelink/internal/groutine"
)

// Connect opens a session to a device admitted by the current scan.
//
// It returns once the open has been issued; the outcome is reported through
// Connected or Failed. Connecting to the address already connected is a no-op.
// Connecting to another address while connected drops the current link first
// (Disconnected is notified for it) and opens the new one after the session
// restart delay.
func (m *Manager) Connect(address string) error {
	const op = "connect"

	if err := m.radio.Check(); err != nil {
		return &device.Error{Kind: device.KindOf(err), Op: op}
	}
	if !m.registry.Contains(address) {
		m.logger.WithField("address", address).Debug("Connect rejected: address not discovered")
		return &device.Error{Kind: device.KindAddressUnknown, Op: op, Msg: address}
	}

	m.mu.Lock()
	switch m.state {
	case device.Connecting, device.Disconnecting:
		st := m.state
		m.mu.Unlock()
		m.logger.WithFields(logrus.Fields{"address": address, "state": st}).Debug("Connect rejected")
		return device.InvalidStateError(op, st)

	case device.Connected:
		if m.active.address == address {
			m.mu.Unlock()
			return nil
		}
		previous := m.active.address
		m.dropLocked()
		m.mu.Unlock()

		m.logger.WithFields(logrus.Fields{"from": previous, "to": address}).Info("Switching link")
		m.dispatcher.Dispatch(dispatch.DisconnectedEvent(previous))
		time.Sleep(m.opts.SessionRestartDelay)

		m.mu.Lock()
		if m.state != device.Disconnected {
			st := m.state
			m.mu.Unlock()
			return device.InvalidStateError(op, st)
		}
	}
	defer m.mu.Unlock()
	return m.openLocked(op, address)
}

// openLocked issues the session open from Disconnected. Callers hold mu.
func (m *Manager) openLocked(op, address string) error {
	m.directory.Clear()

	session, err := m.platform.Link().Open(address)
	if err != nil {
		m.logger.WithError(err).WithField("address", address).Error("Failed to open session")
		return &device.Error{Kind: device.KindConnectFailed, Op: op, Msg: address, Err: err}
	}

	m.active = &activeLink{address: address, session: session}
	m.state = device.Connecting
	m.logger.WithFields(logrus.Fields{
		"address": address,
		"session": session,
	}).Info("Connecting")
	return nil
}

// Disconnect tears down the connected link. It returns immediately; the
// outcome is reported through Disconnected or Failed. Disconnecting while a
// disconnect is already in flight is a no-op.
func (m *Manager) Disconnect() error {
	const op = "disconnect"

	if err := m.radio.Check(); err != nil {
		return &device.Error{Kind: device.KindOf(err), Op: op}
	}

	m.mu.Lock()
	switch m.state {
	case device.Disconnecting:
		m.mu.Unlock()
		return nil
	case device.Connected:
	default:
		st := m.state
		m.mu.Unlock()
		m.logger.WithField("state", st).Debug("Disconnect rejected")
		return device.InvalidStateError(op, st)
	}

	m.state = device.Disconnecting
	link := *m.active
	m.mu.Unlock()

	m.logger.WithField("address", link.address).Info("Disconnecting")
	groutine.Go(m.baseContext(), "link-disconnect", func(context.Context) {
		if err := m.platform.Link().Disconnect(link.session); err != nil {
			m.HandleLinkEvent(device.LinkEvent{
				Kind:    device.DisconnectResult,
				Session: link.session,
				Address: link.address,
				Err:     err,
			})
		}
	})
	return nil
}

// DiscoverServices requests the service tree of the connected peripheral.
// The result is reported through ServicesReady or Failed.
func (m *Manager) DiscoverServices() error {
	const op = "discover services"

	if err := m.radio.Check(); err != nil {
		return &device.Error{Kind: device.KindOf(err), Op: op}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != device.Connected {
		m.logger.WithField("state", m.state).Debug("Service discovery rejected")
		return device.InvalidStateError(op, m.state)
	}

	if err := m.platform.Link().DiscoverServices(m.active.session); err != nil {
		m.logger.WithError(err).WithField("address", m.active.address).Error("Service discovery request failed")
		return &device.Error{Kind: device.KindServiceDiscoveryFailed, Op: op, Msg: m.active.address, Err: err}
	}

	m.logger.WithField("address", m.active.address).Debug("Service discovery requested")
	return nil
}

// HandleLinkEvent reconciles one asynchronous link-layer result with the
// current state. Events for any session other than the active one, and events
// that do not apply to the current state, are ignored.
func (m *Manager) HandleLinkEvent(ev device.LinkEvent) {
	m.mu.Lock()
	events := m.reconcileLocked(ev)
	m.mu.Unlock()

	m.dispatcher.Dispatch(events...)
}

func (m *Manager) reconcileLocked(ev device.LinkEvent) []dispatch.Event {
	log := m.logger.WithFields(logrus.Fields{
		"event":   ev.Kind.String(),
		"session": ev.Session,
		"state":   m.state.String(),
	})

	if m.active == nil || ev.Session != m.active.session {
		log.Warn("Ignoring event for stale session")
		return nil
	}
	address := m.active.address

	switch ev.Kind {
	case device.ConnectResult:
		if m.state != device.Connecting {
			break
		}
		if ev.Success() {
			m.state = device.Connected
			log.WithField("address", address).Info("Connected")
			return []dispatch.Event{dispatch.ConnectedEvent(address)}
		}
		m.releaseLocked()
		log.WithError(ev.Err).WithField("address", address).Error("Connect failed")
		return []dispatch.Event{dispatch.FailedEvent(&device.Error{
			Kind: device.KindConnectFailed, Op: "connect", Msg: address, Err: ev.Err,
		})}

	case device.DisconnectResult:
		switch m.state {
		case device.Disconnecting:
			m.releaseLocked()
			if ev.Success() {
				log.WithField("address", address).Info("Disconnected")
				return []dispatch.Event{dispatch.DisconnectedEvent(address)}
			}
			log.WithError(ev.Err).WithField("address", address).Error("Disconnect failed")
			return []dispatch.Event{dispatch.FailedEvent(&device.Error{
				Kind: device.KindDisconnectFailed, Op: "disconnect", Msg: address, Err: ev.Err,
			})}

		case device.Connected, device.Connecting:
			if !ev.Success() {
				break
			}
			m.releaseLocked()
			log.WithField("address", address).Warn("Link lost")
			return []dispatch.Event{dispatch.DisconnectedEvent(address)}
		}

	case device.ServicesDiscovered:
		if m.state != device.Connected {
			break
		}
		if ev.Success() {
			m.directory.Replace(ev.Services)
			log.WithFields(logrus.Fields{
				"address":  address,
				"services": m.directory.Len(),
			}).Info("Services discovered")
			return []dispatch.Event{dispatch.ServicesReadyEvent(address)}
		}
		log.WithError(ev.Err).WithField("address", address).Error("Service discovery failed")
		return []dispatch.Event{dispatch.FailedEvent(&device.Error{
			Kind: device.KindServiceDiscoveryFailed, Op: "discover services", Msg: address, Err: ev.Err,
		})}
	}

	log.Debug("Ignoring event not valid in current state")
	return nil
}

// dropLocked disconnects and releases the active link without waiting for
// the link layer to confirm. Callers hold mu.
func (m *Manager) dropLocked() {
	if err := m.platform.Link().Disconnect(m.active.session); err != nil {
		m.logger.WithError(err).WithField("address", m.active.address).Warn("Disconnect before switch failed")
	}
	m.releaseLocked()
}

// releaseLocked closes the active session and returns to Disconnected.
// Callers hold mu.
func (m *Manager) releaseLocked() {
	if m.active != nil {
		if err := m.platform.Link().Close(m.active.session); err != nil {
			m.logger.WithError(err).WithField("address", m.active.address).Warn("Failed to close session")
		}
	}
	m.active = nil
	m.state = device.Disconnected
	m.directory.Clear()
}
