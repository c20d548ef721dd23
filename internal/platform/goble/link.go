package goble

import (
	"context"
	"fmt"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/blelink/internal/device"
	"github.com/srg/blelink/internal/groutine"
)

type bleLink Platform

func (l *bleLink) Events() <-chan device.LinkEvent {
	return l.events
}

// Open dials address on its own goroutine; the outcome arrives as a ConnectResult
func (l *bleLink) Open(address string) (device.Session, error) {
	p := (*Platform)(l)

	dialCtx, cancel := context.WithTimeout(p.ctx, p.opts.ConnectTimeout)

	p.mu.Lock()
	p.next++
	id := p.next
	p.sessions[id] = &bleSession{address: address, cancelDial: cancel}
	p.mu.Unlock()

	p.logger.WithFields(logrus.Fields{
		"address": address,
		"timeout": p.opts.ConnectTimeout,
	}).Debug("Dialing BLE device...")

	groutine.Go(dialCtx, "ble-dial", func(ctx context.Context) {
		defer cancel()
		client, err := p.dev.Dial(ctx, ble.NewAddr(address))

		p.mu.Lock()
		s, ok := p.sessions[id]
		if !ok || s.closed {
			p.mu.Unlock()
			if client != nil {
				_ = client.CancelConnection()
			}
			return
		}
		if err == nil {
			s.client = client
		}
		p.mu.Unlock()

		if err != nil {
			p.logger.WithError(err).WithField("address", address).Error("Failed to dial BLE device")
			p.emit(device.LinkEvent{Kind: device.ConnectResult, Session: id, Address: address, Err: NormalizeError(err)})
			return
		}

		p.watchDisconnect(id, address, client)
		p.emit(device.LinkEvent{Kind: device.ConnectResult, Session: id, Address: address})
	})
	return id, nil
}

// watchDisconnect turns the client's disconnect signal into an unsolicited
// DisconnectResult. Clients without the signal (some linux builds) are not watched.
func (p *Platform) watchDisconnect(id device.Session, address string, client ble.Client) {
	watcher, ok := client.(interface{ Disconnected() <-chan struct{} })
	if !ok {
		p.logger.Debug("Client does not support Disconnected() channel")
		return
	}

	groutine.Go(p.ctx, "ble-connection-monitor", func(ctx context.Context) {
		select {
		case <-watcher.Disconnected():
		case <-ctx.Done():
			return
		}

		p.mu.Lock()
		s, ok := p.sessions[id]
		solicited := !ok || s.closed || s.disconnecting
		p.mu.Unlock()
		if solicited {
			return
		}

		p.logger.WithField("address", address).Warn("Peripheral reported disconnection")
		p.emit(device.LinkEvent{Kind: device.DisconnectResult, Session: id, Address: address})
	})
}

func (l *bleLink) session(id device.Session) (*bleSession, error) {
	s, ok := l.sessions[id]
	if !ok || s.closed {
		return nil, fmt.Errorf("unknown session %d", id)
	}
	return s, nil
}

func (l *bleLink) Disconnect(id device.Session) error {
	p := (*Platform)(l)
	p.mu.Lock()
	s, err := l.session(id)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	if s.client == nil {
		p.mu.Unlock()
		return fmt.Errorf("session %d is not connected", id)
	}
	s.disconnecting = true
	client, address := s.client, s.address
	p.mu.Unlock()

	groutine.Go(p.ctx, "ble-disconnect", func(context.Context) {
		err := client.CancelConnection()
		if err != nil {
			p.logger.WithError(err).WithField("address", address).Warn("BLE device disconnected with errors")
		}
		p.emit(device.LinkEvent{Kind: device.DisconnectResult, Session: id, Address: address, Err: NormalizeError(err)})
	})
	return nil
}

func (l *bleLink) Close(id device.Session) error {
	p := (*Platform)(l)
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.sessions[id]; ok {
		p.releaseLocked(id, s)
	}
	return nil
}

// releaseLocked cancels a pending dial or tears down a live client that was
// not already being disconnected. Callers hold mu.
func (p *Platform) releaseLocked(id device.Session, s *bleSession) {
	s.closed = true
	s.cancelDial()
	if s.client != nil && !s.disconnecting {
		client := s.client
		groutine.Go(p.ctx, "ble-release", func(context.Context) {
			_ = client.CancelConnection()
		})
	}
	delete(p.sessions, id)
}

// DiscoverServices walks services and their characteristics on a goroutine
func (l *bleLink) DiscoverServices(id device.Session) error {
	p := (*Platform)(l)
	p.mu.Lock()
	s, err := l.session(id)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	if s.client == nil {
		p.mu.Unlock()
		return fmt.Errorf("session %d is not connected", id)
	}
	client, address := s.client, s.address
	p.mu.Unlock()

	groutine.Go(p.ctx, "ble-discover", func(context.Context) {
		services, err := discover(client)
		if err != nil {
			p.logger.WithError(err).WithField("address", address).Error("Failed to discover services")
		}
		p.emit(device.LinkEvent{
			Kind:     device.ServicesDiscovered,
			Session:  id,
			Address:  address,
			Err:      NormalizeError(err),
			Services: services,
		})
	})
	return nil
}

func discover(client ble.Client) ([]device.Service, error) {
	bleServices, err := client.DiscoverServices(nil)
	if err != nil {
		return nil, err
	}

	services := make([]device.Service, 0, len(bleServices))
	for _, bleSvc := range bleServices {
		chars, err := client.DiscoverCharacteristics(nil, bleSvc)
		if err != nil {
			return nil, fmt.Errorf("service %s: %w", bleSvc.UUID, err)
		}
		services = append(services, convertService(bleSvc, chars))
	}
	return services, nil
}

func convertService(svc *ble.Service, chars []*ble.Characteristic) device.Service {
	out := device.Service{ID: svc.UUID.String(), Attributes: make([]device.Attribute, 0, len(chars))}
	for _, c := range chars {
		out.Attributes = append(out.Attributes, device.Attribute{ID: c.UUID.String()})
	}
	return out
}
