// Package manager owns the single-link central: the scan coordinator and the
// connection state machine.
//
// A Manager is explicitly constructed over one device.Platform. Commands are
// validated against the current state and radio readiness, issued to the link
// layer, and their asynchronous outcomes are reconciled by an event pump that
// drains Link.Events. Observers are notified after the state lock is released.
package manager

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blelink/internal/device"
	"github.com/srg/blelink/internal/directory"
	"github.com/srg/blelink/internal/dispatch"
	"github.com/srg/blelink/internal/groutine"
	"github.com/srg/blelink/internal/radio"
	"github.com/srg/blelink/internal/registry"
)

// MinQuiescenceDelay is the shortest wait allowed between stopping and
// restarting discovery, or between closing one session and opening the next.
const MinQuiescenceDelay = 50 * time.Millisecond

// Options configures a Manager
type Options struct {
	ScanRestartDelay    time.Duration // wait between StopDiscovery and StartDiscovery on a rescan
	SessionRestartDelay time.Duration // wait between closing a session and opening another
	NameFilter          string        // initial name prefix filter; empty means none
}

// DefaultOptions returns the default manager options
func DefaultOptions() *Options {
	return &Options{
		ScanRestartDelay:    MinQuiescenceDelay,
		SessionRestartDelay: MinQuiescenceDelay,
	}
}

type activeLink struct {
	address string
	session device.Session
}

// Manager coordinates scanning and the lifecycle of at most one link
type Manager struct {
	platform   device.Platform
	logger     *logrus.Logger
	opts       Options
	radio      *radio.Controller
	registry   *registry.Registry
	directory  *directory.Directory
	dispatcher *dispatch.Dispatcher

	// mu guards state, active and directory mutations
	mu     sync.Mutex
	state  device.ConnectionState
	active *activeLink

	// scanMu serializes StartScan and StopScan; the advertisement path never takes it
	scanMu   sync.Mutex
	scanning atomic.Bool

	pumpMu     sync.Mutex
	ctx        context.Context
	pumpCancel context.CancelFunc
	pumpDone   chan struct{}
}

// New creates a Manager over platform. A nil opts uses DefaultOptions; delays
// below MinQuiescenceDelay are raised to it.
func New(platform device.Platform, opts *Options, logger *logrus.Logger) (*Manager, error) {
	if platform == nil {
		return nil, fmt.Errorf("platform cannot be nil")
	}
	if logger == nil {
		logger = logrus.New()
	}
	if opts == nil {
		opts = DefaultOptions()
	}

	o := *opts
	if o.ScanRestartDelay < MinQuiescenceDelay {
		o.ScanRestartDelay = MinQuiescenceDelay
	}
	if o.SessionRestartDelay < MinQuiescenceDelay {
		o.SessionRestartDelay = MinQuiescenceDelay
	}

	m := &Manager{
		platform:   platform,
		logger:     logger,
		opts:       o,
		radio:      radio.NewController(logger),
		registry:   registry.New(),
		directory:  directory.New(),
		dispatcher: dispatch.NewDispatcher(logger),
		state:      device.Disconnected,
		ctx:        context.Background(),
	}
	if o.NameFilter != "" {
		m.registry.SetNameFilter(o.NameFilter)
	}
	return m, nil
}

// Initialize binds the radio controller to the platform radio
func (m *Manager) Initialize() error {
	if err := m.radio.Initialize(m.platform.Radio()); err != nil {
		m.logger.WithError(err).Error("Radio initialization failed")
		return err
	}
	return nil
}

// EnableRadio asks the platform to power the radio on
func (m *Manager) EnableRadio() error {
	return m.radio.Enable()
}

// DisableRadio asks the platform to power the radio off
func (m *Manager) DisableRadio() error {
	return m.radio.Disable()
}

func (m *Manager) IsRadioUsable() bool {
	return m.radio.IsUsable()
}

// SetObserver registers the single observer; nil clears it
func (m *Manager) SetObserver(obs device.Observer) {
	m.dispatcher.SetObserver(obs)
}

// Start launches the link event pump. Calling it again while running is a no-op.
func (m *Manager) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	m.pumpMu.Lock()
	defer m.pumpMu.Unlock()
	if m.pumpDone != nil {
		return
	}

	pumpCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.ctx = pumpCtx
	m.pumpCancel = cancel
	m.pumpDone = done

	events := m.platform.Link().Events()
	groutine.Go(pumpCtx, "link-events", func(ctx context.Context) {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					m.logger.Debug("Link event channel closed")
					return
				}
				m.HandleLinkEvent(ev)
			}
		}
	})
	m.logger.Debug("Link event pump started")
}

// Close stops scanning, releases any active session and stops the event pump.
// No notifications are emitted for the released session.
func (m *Manager) Close() error {
	if m.scanning.Load() {
		if err := m.stopScan(); err != nil {
			m.logger.WithError(err).Warn("Failed to stop scan on close")
		}
	}

	m.mu.Lock()
	if m.active != nil {
		m.logger.WithField("address", m.active.address).Info("Releasing link on close")
		m.releaseLocked()
	}
	m.mu.Unlock()

	m.pumpMu.Lock()
	cancel, done := m.pumpCancel, m.pumpDone
	m.pumpCancel, m.pumpDone = nil, nil
	m.pumpMu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	return nil
}

func (m *Manager) baseContext() context.Context {
	m.pumpMu.Lock()
	defer m.pumpMu.Unlock()
	return m.ctx
}

// State returns the current connection state
func (m *Manager) State() device.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ActiveAddress returns the address of the active link, if any
func (m *Manager) ActiveAddress() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return "", false
	}
	return m.active.address, true
}

// Services returns the service tree of the connected peripheral; empty until
// a discovery has succeeded on the current link.
func (m *Manager) Services() []device.Service {
	return m.directory.Services()
}

// Attributes returns the attributes of the service identified by serviceID
func (m *Manager) Attributes(serviceID string) ([]device.Attribute, error) {
	return m.directory.Attributes(serviceID)
}
