// Package tinygo implements the platform capabilities over tinygo.org/x/bluetooth:
// BlueZ over D-Bus on linux, CoreBluetooth on darwin and WinRT on windows.
package tinygo

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/blelink/internal/device"
	"github.com/srg/blelink/internal/groutine"
	"tinygo.org/x/bluetooth"
)

const DefaultEventBuffer = 64

type session struct {
	address       string
	dev           *bluetooth.Device
	disconnecting bool
	closed        bool
}

// Platform adapts a bluetooth.Adapter to device.Platform
type Platform struct {
	mu      sync.Mutex
	logger  *logrus.Logger
	adapter *bluetooth.Adapter
	enabled bool

	sessions map[device.Session]*session
	next     device.Session
	events   chan device.LinkEvent

	scanning bool
	scanDone chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
}

// New wraps bluetooth.DefaultAdapter. The adapter is powered on by the
// radio's RequestEnable.
func New(eventBuffer int, logger *logrus.Logger) *Platform {
	if logger == nil {
		logger = logrus.New()
	}
	if eventBuffer <= 0 {
		eventBuffer = DefaultEventBuffer
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Platform{
		logger:   logger,
		adapter:  bluetooth.DefaultAdapter,
		sessions: make(map[device.Session]*session),
		events:   make(chan device.LinkEvent, eventBuffer),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (p *Platform) Radio() device.Radio     { return (*tinyRadio)(p) }
func (p *Platform) Link() device.Link       { return (*tinyLink)(p) }
func (p *Platform) Scanner() device.Scanner { return (*tinyScanner)(p) }

// Close stops scanning and disconnects every session
func (p *Platform) Close() error {
	_ = p.Scanner().StopDiscovery()

	p.mu.Lock()
	for id, s := range p.sessions {
		p.releaseLocked(id, s)
	}
	p.mu.Unlock()

	p.cancel()
	return nil
}

// emit delivers ev unless the platform is closing. Never call with mu held.
func (p *Platform) emit(ev device.LinkEvent) {
	select {
	case p.events <- ev:
	case <-p.ctx.Done():
	}
}

// onConnectChange receives adapter-level connection changes; only
// unsolicited disconnects are of interest.
func (p *Platform) onConnectChange(dev bluetooth.Device, connected bool) {
	if connected {
		return
	}
	address := dev.Address.String()

	p.mu.Lock()
	var lost []device.Session
	for id, s := range p.sessions {
		if s.address == address && s.dev != nil && !s.disconnecting && !s.closed {
			s.disconnecting = true
			lost = append(lost, id)
		}
	}
	p.mu.Unlock()

	for _, id := range lost {
		p.logger.WithField("address", address).Warn("Peripheral reported disconnection")
		p.emit(device.LinkEvent{Kind: device.DisconnectResult, Session: id, Address: address})
	}
}

type tinyRadio Platform

func (r *tinyRadio) IsPresent() bool  { return r.adapter != nil }
func (r *tinyRadio) SupportsLE() bool { return true }

func (r *tinyRadio) IsEnabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enabled
}

func (r *tinyRadio) RequestEnable() error {
	p := (*Platform)(r)
	if err := p.adapter.Enable(); err != nil {
		p.logger.WithError(err).Error("Failed to enable adapter")
		return fmt.Errorf("%w: %w", device.ErrRadioUnavailable, err)
	}
	p.adapter.SetConnectHandler(p.onConnectChange)

	p.mu.Lock()
	p.enabled = true
	p.mu.Unlock()
	return nil
}

// RequestDisable is not offered by the library; adapters stay powered
func (r *tinyRadio) RequestDisable() error {
	return fmt.Errorf("disable radio: %w", device.ErrUnsupported)
}

type tinyScanner Platform

func (sc *tinyScanner) StartDiscovery(handler func(device.Advertisement)) error {
	p := (*Platform)(sc)
	p.mu.Lock()
	if p.scanning {
		p.mu.Unlock()
		return fmt.Errorf("scan already running")
	}
	done := make(chan struct{})
	p.scanning, p.scanDone = true, done
	p.mu.Unlock()

	groutine.Go(p.ctx, "tinygo-scan", func(context.Context) {
		defer close(done)
		err := p.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
			handler(device.Advertisement{
				Address: result.Address.String(),
				Name:    result.LocalName(),
				RSSI:    int(result.RSSI),
			})
		})
		if err != nil {
			p.logger.WithError(err).Error("Scan ended with error")
		}
		p.mu.Lock()
		if p.scanDone == done {
			p.scanning, p.scanDone = false, nil
		}
		p.mu.Unlock()
	})
	return nil
}

func (sc *tinyScanner) StopDiscovery() error {
	p := (*Platform)(sc)
	p.mu.Lock()
	done := p.scanDone
	running := p.scanning
	p.scanning, p.scanDone = false, nil
	p.mu.Unlock()

	if !running {
		return nil
	}
	if err := p.adapter.StopScan(); err != nil {
		return fmt.Errorf("stop scan: %w", err)
	}
	<-done
	return nil
}
