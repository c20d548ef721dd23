package tinygo

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/srg/blelink/internal/device"
	"github.com/srg/blelink/internal/groutine"
	"tinygo.org/x/bluetooth"
)

type tinyLink Platform

func (l *tinyLink) Events() <-chan device.LinkEvent {
	return l.events
}

// Open connects on its own goroutine; Adapter.Connect blocks with the
// library's own timeout and cannot be cancelled.
func (l *tinyLink) Open(address string) (device.Session, error) {
	p := (*Platform)(l)

	var addr bluetooth.Address
	addr.Set(address)

	p.mu.Lock()
	p.next++
	id := p.next
	p.sessions[id] = &session{address: address}
	p.mu.Unlock()

	p.logger.WithField("address", address).Debug("Connecting...")

	groutine.Go(p.ctx, "tinygo-connect", func(context.Context) {
		dev, err := p.adapter.Connect(addr, bluetooth.ConnectionParams{})

		p.mu.Lock()
		s, ok := p.sessions[id]
		if !ok || s.closed {
			p.mu.Unlock()
			if err == nil {
				_ = dev.Disconnect()
			}
			return
		}
		if err == nil {
			s.dev = &dev
		}
		p.mu.Unlock()

		ev := device.LinkEvent{Kind: device.ConnectResult, Session: id, Address: address}
		if err != nil {
			p.logger.WithError(err).WithField("address", address).Error("Failed to connect")
			ev.Err = err
		}
		p.emit(ev)
	})
	return id, nil
}

func (l *tinyLink) connected(id device.Session) (*session, error) {
	s, ok := l.sessions[id]
	if !ok || s.closed {
		return nil, fmt.Errorf("unknown session %d", id)
	}
	if s.dev == nil {
		return nil, fmt.Errorf("session %d is not connected", id)
	}
	return s, nil
}

func (l *tinyLink) Disconnect(id device.Session) error {
	p := (*Platform)(l)
	p.mu.Lock()
	s, err := l.connected(id)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	s.disconnecting = true
	dev, address := s.dev, s.address
	p.mu.Unlock()

	groutine.Go(p.ctx, "tinygo-disconnect", func(context.Context) {
		err := dev.Disconnect()
		if err != nil {
			p.logger.WithError(err).WithField("address", address).Warn("Disconnect failed")
		}
		p.emit(device.LinkEvent{Kind: device.DisconnectResult, Session: id, Address: address, Err: err})
	})
	return nil
}

func (l *tinyLink) Close(id device.Session) error {
	p := (*Platform)(l)
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.sessions[id]; ok {
		p.releaseLocked(id, s)
	}
	return nil
}

// releaseLocked drops the session, disconnecting a live device that was not
// already being disconnected. Callers hold mu.
func (p *Platform) releaseLocked(id device.Session, s *session) {
	s.closed = true
	if s.dev != nil && !s.disconnecting {
		dev := s.dev
		groutine.Go(p.ctx, "tinygo-release", func(context.Context) {
			_ = dev.Disconnect()
		})
	}
	delete(p.sessions, id)
}

func (l *tinyLink) DiscoverServices(id device.Session) error {
	p := (*Platform)(l)
	p.mu.Lock()
	s, err := l.connected(id)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	dev, address := s.dev, s.address
	p.mu.Unlock()

	groutine.Go(p.ctx, "tinygo-discover", func(context.Context) {
		services, err := discover(dev)
		if err != nil {
			p.logger.WithError(err).WithField("address", address).Error("Failed to discover services")
		} else {
			p.logger.WithFields(logrus.Fields{"address": address, "services": len(services)}).Debug("Services discovered")
		}
		p.emit(device.LinkEvent{
			Kind:     device.ServicesDiscovered,
			Session:  id,
			Address:  address,
			Err:      err,
			Services: services,
		})
	})
	return nil
}

func discover(dev *bluetooth.Device) ([]device.Service, error) {
	svcs, err := dev.DiscoverServices(nil)
	if err != nil {
		return nil, err
	}

	services := make([]device.Service, 0, len(svcs))
	for _, svc := range svcs {
		chars, err := svc.DiscoverCharacteristics(nil)
		if err != nil {
			return nil, fmt.Errorf("service %s: %w", svc.UUID().String(), err)
		}
		out := device.Service{ID: svc.UUID().String(), Attributes: make([]device.Attribute, 0, len(chars))}
		for _, c := range chars {
			out.Attributes = append(out.Attributes, device.Attribute{ID: c.UUID().String()})
		}
		services = append(services, out)
	}
	return services, nil
}
