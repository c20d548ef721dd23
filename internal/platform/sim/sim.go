// Package sim is an in-memory platform with scriptable peripherals.
//
// Peripherals are declared with a fluent builder and advertised when
// discovery starts. Link results are delivered on the event channel after a
// configurable latency, and any step can be made to fail per address:
//
//	p := sim.New(logger).WithLatency(20 * time.Millisecond)
//	p.WithPeripheral("aa:bb:cc:00:00:01", "Widget-1").
//	    WithService("180F", "2A19").
//	    FailDiscovery(errors.New("att timeout"))
package sim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blelink/internal/device"
	"github.com/srg/blelink/internal/groutine"
)

const eventBuffer = 64

type session struct {
	address   string
	connected bool
}

// Platform implements device.Platform entirely in memory
type Platform struct {
	mu     sync.Mutex
	logger *logrus.Logger

	present bool
	enabled bool
	le      bool

	latency     time.Duration
	advInterval time.Duration

	peripherals []*PeripheralBuilder
	sessions    map[device.Session]*session
	nextSession device.Session

	scanGen  uint64
	handler  func(device.Advertisement)
	scanStop chan struct{}

	events chan device.LinkEvent
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a platform whose radio is present, enabled and LE capable
func New(logger *logrus.Logger) *Platform {
	if logger == nil {
		logger = logrus.New()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Platform{
		logger:   logger,
		present:  true,
		enabled:  true,
		le:       true,
		sessions: make(map[device.Session]*session),
		events:   make(chan device.LinkEvent, eventBuffer),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// WithLatency delays every link result and advertisement by d
func (p *Platform) WithLatency(d time.Duration) *Platform {
	p.mu.Lock()
	p.latency = d
	p.mu.Unlock()
	return p
}

// WithAdvertisingInterval makes every peripheral re-advertise every d while discovery runs.
// Zero advertises each peripheral once per scan.
func (p *Platform) WithAdvertisingInterval(d time.Duration) *Platform {
	p.mu.Lock()
	p.advInterval = d
	p.mu.Unlock()
	return p
}

// WithRadio sets the adapter flags
func (p *Platform) WithRadio(present, enabled, le bool) *Platform {
	p.mu.Lock()
	p.present, p.enabled, p.le = present, enabled, le
	p.mu.Unlock()
	return p
}

// WithPeripheral declares a peripheral and returns its builder
func (p *Platform) WithPeripheral(address, name string) *PeripheralBuilder {
	b := &PeripheralBuilder{platform: p, address: address, name: name, rssi: -60}
	p.mu.Lock()
	p.peripherals = append(p.peripherals, b)
	p.mu.Unlock()
	return b
}

func (p *Platform) peripheral(address string) *PeripheralBuilder {
	for _, b := range p.peripherals {
		if b.address == address {
			return b
		}
	}
	return nil
}

func (p *Platform) Radio() device.Radio     { return (*simRadio)(p) }
func (p *Platform) Link() device.Link       { return (*simLink)(p) }
func (p *Platform) Scanner() device.Scanner { return (*simScanner)(p) }

// Close stops discovery and any pending deliveries
func (p *Platform) Close() error {
	p.mu.Lock()
	p.stopScanLocked()
	p.mu.Unlock()
	p.cancel()
	return nil
}

// DropLink simulates the peripheral going away: every open session to
// address receives an unsolicited successful DisconnectResult.
func (p *Platform) DropLink(address string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, s := range p.sessions {
		if s.address == address && s.connected {
			s.connected = false
			p.emitLocked(device.LinkEvent{Kind: device.DisconnectResult, Session: id, Address: address})
		}
	}
}

// OpenSessions returns how many sessions are open (not yet closed)
func (p *Platform) OpenSessions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}

// emitLocked delivers ev after the configured latency without blocking the caller
func (p *Platform) emitLocked(ev device.LinkEvent) {
	delay := p.latency
	groutine.Go(p.ctx, "sim-link-event", func(ctx context.Context) {
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
		}
		select {
		case p.events <- ev:
		case <-ctx.Done():
		}
	})
}

type simRadio Platform

func (r *simRadio) IsPresent() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.present
}

func (r *simRadio) IsEnabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.present && r.enabled
}

func (r *simRadio) SupportsLE() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.le
}

func (r *simRadio) RequestEnable() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.present {
		return device.ErrRadioUnavailable
	}
	r.enabled = true
	r.logger.Debug("sim: radio enabled")
	return nil
}

func (r *simRadio) RequestDisable() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.present {
		return device.ErrRadioUnavailable
	}
	r.enabled = false
	(*Platform)(r).stopScanLocked()
	r.logger.Debug("sim: radio disabled")
	return nil
}

type simLink Platform

func (l *simLink) Events() <-chan device.LinkEvent {
	return l.events
}

func (l *simLink) Open(address string) (device.Session, error) {
	p := (*Platform)(l)
	p.mu.Lock()
	defer p.mu.Unlock()

	b := p.peripheral(address)
	if b != nil && b.openErr != nil {
		return 0, b.openErr
	}

	p.nextSession++
	id := p.nextSession
	p.sessions[id] = &session{address: address}

	ev := device.LinkEvent{Kind: device.ConnectResult, Session: id, Address: address}
	switch {
	case b == nil:
		ev.Err = fmt.Errorf("peripheral %s not in range: %w", address, device.ErrTimeout)
	case b.connectErr != nil:
		ev.Err = b.connectErr
	default:
		p.sessions[id].connected = true
	}
	p.logger.WithFields(logrus.Fields{"address": address, "session": id}).Debug("sim: open")
	p.emitLocked(ev)
	return id, nil
}

func (l *simLink) Close(s device.Session) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.sessions, s)
	return nil
}

func (l *simLink) Disconnect(s device.Session) error {
	p := (*Platform)(l)
	p.mu.Lock()
	defer p.mu.Unlock()

	sess, ok := p.sessions[s]
	if !ok {
		return fmt.Errorf("unknown session %d", s)
	}
	ev := device.LinkEvent{Kind: device.DisconnectResult, Session: s, Address: sess.address}
	if b := p.peripheral(sess.address); b != nil && b.disconnectErr != nil {
		ev.Err = b.disconnectErr
	}
	sess.connected = false
	p.emitLocked(ev)
	return nil
}

func (l *simLink) DiscoverServices(s device.Session) error {
	p := (*Platform)(l)
	p.mu.Lock()
	defer p.mu.Unlock()

	sess, ok := p.sessions[s]
	if !ok || !sess.connected {
		return fmt.Errorf("session %d is not connected", s)
	}
	ev := device.LinkEvent{Kind: device.ServicesDiscovered, Session: s, Address: sess.address}
	if b := p.peripheral(sess.address); b != nil {
		if b.discoveryErr != nil {
			ev.Err = b.discoveryErr
		} else {
			ev.Services = b.servicesCopy()
		}
	}
	p.emitLocked(ev)
	return nil
}

type simScanner Platform

func (sc *simScanner) StartDiscovery(handler func(device.Advertisement)) error {
	p := (*Platform)(sc)
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.present || !p.enabled {
		return device.ErrRadioUnavailable
	}
	p.stopScanLocked()

	p.scanGen++
	p.handler = handler
	stop := make(chan struct{})
	p.scanStop = stop

	ads := make([]device.Advertisement, 0, len(p.peripherals))
	for _, b := range p.peripherals {
		ads = append(ads, b.advertisement())
	}
	delay, interval := p.latency, p.advInterval

	groutine.Go(p.ctx, "sim-advertiser", func(ctx context.Context) {
		for {
			for _, adv := range ads {
				if delay > 0 {
					select {
					case <-time.After(delay):
					case <-stop:
						return
					case <-ctx.Done():
						return
					}
				}
				select {
				case <-stop:
					return
				case <-ctx.Done():
					return
				default:
				}
				handler(adv)
			}
			if interval <= 0 {
				return
			}
			select {
			case <-time.After(interval):
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
	})
	p.logger.WithField("peripherals", len(ads)).Debug("sim: discovery started")
	return nil
}

func (sc *simScanner) StopDiscovery() error {
	p := (*Platform)(sc)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopScanLocked()
	return nil
}

// Advertise delivers adv to the running discovery, if any
func (p *Platform) Advertise(adv device.Advertisement) {
	p.mu.Lock()
	handler := p.handler
	p.mu.Unlock()
	if handler != nil {
		handler(adv)
	}
}

func (p *Platform) stopScanLocked() {
	if p.scanStop != nil {
		close(p.scanStop)
		p.scanStop = nil
		p.handler = nil
		p.logger.Debug("sim: discovery stopped")
	}
}
