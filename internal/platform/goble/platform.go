// Package goble implements the platform capabilities over github.com/go-ble/ble:
// CoreBluetooth on darwin and raw HCI on linux.
package goble

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/blelink/internal/device"
	"github.com/srg/blelink/internal/groutine"
)

const (
	DefaultConnectTimeout = 30 * time.Second
	DefaultEventBuffer    = 64

	// scanStartGrace is how long StartDiscovery waits for the stack to reject a scan
	scanStartGrace = 100 * time.Millisecond
)

// Options configures the go-ble platform
type Options struct {
	ConnectTimeout time.Duration
	EventBuffer    int
}

type bleSession struct {
	address       string
	client        ble.Client
	cancelDial    context.CancelFunc
	disconnecting bool
	closed        bool
}

// Platform adapts a ble.Device to device.Platform
type Platform struct {
	mu     sync.Mutex
	logger *logrus.Logger
	dev    ble.Device
	opts   Options

	sessions map[device.Session]*bleSession
	next     device.Session
	events   chan device.LinkEvent

	scanCancel context.CancelFunc
	scanDone   chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
}

// New opens the local adapter through DeviceFactory
func New(opts *Options, logger *logrus.Logger) (*Platform, error) {
	if logger == nil {
		logger = logrus.New()
	}
	o := Options{ConnectTimeout: DefaultConnectTimeout, EventBuffer: DefaultEventBuffer}
	if opts != nil {
		if opts.ConnectTimeout > 0 {
			o.ConnectTimeout = opts.ConnectTimeout
		}
		if opts.EventBuffer > 0 {
			o.EventBuffer = opts.EventBuffer
		}
	}

	dev, err := DeviceFactory()
	if err != nil {
		logger.WithError(err).Error("Failed to create BLE device")
		return nil, fmt.Errorf("failed to create BLE device: %w", NormalizeError(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Platform{
		logger:   logger,
		dev:      dev,
		opts:     o,
		sessions: make(map[device.Session]*bleSession),
		events:   make(chan device.LinkEvent, o.EventBuffer),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

func (p *Platform) Radio() device.Radio     { return (*bleRadio)(p) }
func (p *Platform) Link() device.Link       { return (*bleLink)(p) }
func (p *Platform) Scanner() device.Scanner { return (*bleScanner)(p) }

// Close stops scanning, cancels every session and stops the device
func (p *Platform) Close() error {
	_ = p.Scanner().StopDiscovery()

	p.mu.Lock()
	for id, s := range p.sessions {
		p.releaseLocked(id, s)
	}
	p.mu.Unlock()

	p.cancel()
	if err := p.dev.Stop(); err != nil {
		return NormalizeError(err)
	}
	return nil
}

// emit delivers ev unless the platform is closing. Never call with mu held.
func (p *Platform) emit(ev device.LinkEvent) {
	select {
	case p.events <- ev:
	case <-p.ctx.Done():
	}
}

// go-ble gives no control over adapter power; a powered-off adapter shows up
// as ErrRadioUnavailable from Scan or Dial instead.
type bleRadio Platform

func (r *bleRadio) IsPresent() bool  { return r.dev != nil }
func (r *bleRadio) IsEnabled() bool  { return r.dev != nil }
func (r *bleRadio) SupportsLE() bool { return true }

func (r *bleRadio) RequestEnable() error {
	return fmt.Errorf("enable radio: %w", device.ErrUnsupported)
}

func (r *bleRadio) RequestDisable() error {
	return fmt.Errorf("disable radio: %w", device.ErrUnsupported)
}

type bleScanner Platform

func (s *bleScanner) StartDiscovery(handler func(device.Advertisement)) error {
	p := (*Platform)(s)
	p.mu.Lock()
	if p.scanCancel != nil {
		p.mu.Unlock()
		return fmt.Errorf("scan already running")
	}
	ctx, cancel := context.WithCancel(p.ctx)
	done := make(chan struct{})
	p.scanCancel, p.scanDone = cancel, done
	p.mu.Unlock()

	errCh := make(chan error, 1)
	groutine.Go(ctx, "ble-scan", func(ctx context.Context) {
		defer close(done)
		err := p.dev.Scan(ctx, false, func(adv ble.Advertisement) {
			handler(convertAdvertisement(adv))
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			errCh <- NormalizeError(err)
			p.clearScan(done)
		}
	})

	select {
	case err := <-errCh:
		p.logger.WithError(err).Error("BLE scan failed to start")
		return err
	case <-time.After(scanStartGrace):
		return nil
	}
}

func (p *Platform) clearScan(done chan struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.scanDone == done {
		p.scanCancel()
		p.scanCancel, p.scanDone = nil, nil
	}
}

func (s *bleScanner) StopDiscovery() error {
	p := (*Platform)(s)
	p.mu.Lock()
	cancel, done := p.scanCancel, p.scanDone
	p.scanCancel, p.scanDone = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

func convertAdvertisement(adv ble.Advertisement) device.Advertisement {
	return device.Advertisement{
		Address: adv.Addr().String(),
		Name:    adv.LocalName(),
		RSSI:    adv.RSSI(),
		Payload: adv.ManufacturerData(),
	}
}
