package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/srg/blelink/internal/device"
	"github.com/srg/blelink/internal/dispatch"
	"github.com/srg/blelink/internal/manager"
	"github.com/srg/blelink/internal/platform/goble"
	"github.com/srg/blelink/internal/platform/sim"
	"github.com/srg/blelink/internal/platform/tinygo"
	"github.com/srg/blelink/pkg/config"
)

// platformFactory opens the configured backend; tests replace it
var platformFactory = newPlatform

func newPlatform(cfg *config.Config, logger *logrus.Logger) (device.Platform, error) {
	switch cfg.Backend {
	case config.BackendGoBLE:
		return goble.New(&goble.Options{
			ConnectTimeout: cfg.ConnectTimeout,
			EventBuffer:    cfg.EventBuffer,
		}, logger)
	case config.BackendTinyGo:
		return tinygo.New(cfg.EventBuffer, logger), nil
	case config.BackendSim:
		return sim.NewDemo(logger), nil
	default:
		return nil, fmt.Errorf("unsupported backend %q", cfg.Backend)
	}
}

// session is one Manager over one platform, with its notifications
// delivered to events and optionally to a second observer.
type session struct {
	cfg      *config.Config
	logger   *logrus.Logger
	platform device.Platform
	mgr      *manager.Manager
	events   *dispatch.ChannelObserver
}

// openSession creates the platform and manager, powers the radio if needed and
// starts the link event pump. extra, if non-nil, receives every notification
// after events does.
func openSession(ctx context.Context, cfg *config.Config, logger *logrus.Logger, extra device.Observer) (*session, error) {
	platform, err := platformFactory(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s backend: %w", cfg.Backend, err)
	}

	mgr, err := manager.New(platform, cfg.ManagerOptions(), logger)
	if err != nil {
		_ = platform.Close()
		return nil, err
	}

	s := &session{
		cfg:      cfg,
		logger:   logger,
		platform: platform,
		mgr:      mgr,
		events:   dispatch.NewChannelObserver(cfg.EventBuffer),
	}
	if extra == nil {
		mgr.SetObserver(s.events)
	} else {
		mgr.SetObserver(teeObserver{s.events, extra})
	}

	if err := mgr.Initialize(); err != nil {
		s.Close()
		return nil, err
	}
	if !mgr.IsRadioUsable() {
		if err := mgr.EnableRadio(); err != nil {
			s.Close()
			return nil, err
		}
	}

	mgr.Start(ctx)
	return s, nil
}

// Close releases the manager, then the backend. The event ring is left open:
// a backend callback may still be delivering into it.
func (s *session) Close() {
	if err := s.mgr.Close(); err != nil {
		s.logger.WithError(err).Warn("Manager close failed")
	}
	if err := s.platform.Close(); err != nil {
		s.logger.WithError(err).Warn("Platform close failed")
	}
}

// waitFor reads events until match accepts one. A Failed event ends the wait
// with its error; an unexpected Disconnected for the awaited address ends it
// with ErrConnectionLost.
func (s *session) waitFor(ctx context.Context, address string, match func(dispatch.Event) bool) (dispatch.Event, error) {
	for {
		select {
		case <-ctx.Done():
			return dispatch.Event{}, ctx.Err()
		case ev, ok := <-s.events.Events():
			if !ok {
				return dispatch.Event{}, errors.New("event stream closed")
			}
			if match(ev) {
				return ev, nil
			}
			switch ev.Kind {
			case dispatch.Failed:
				return ev, ev.Err
			case dispatch.Disconnected:
				if address != "" && ev.Address == address {
					return ev, fmt.Errorf("%s: %w", address, ErrConnectionLost)
				}
			}
		}
	}
}

func isEvent(kind dispatch.EventKind, address string) func(dispatch.Event) bool {
	return func(ev dispatch.Event) bool {
		return ev.Kind == kind && (address == "" || ev.Address == address)
	}
}

// teeObserver delivers each notification to every observer in order
type teeObserver []device.Observer

func (t teeObserver) DeviceDiscovered(p device.Peripheral) {
	for _, o := range t {
		o.DeviceDiscovered(p)
	}
}

func (t teeObserver) Connected(address string) {
	for _, o := range t {
		o.Connected(address)
	}
}

func (t teeObserver) Disconnected(address string) {
	for _, o := range t {
		o.Disconnected(address)
	}
}

func (t teeObserver) ServicesReady(address string) {
	for _, o := range t {
		o.ServicesReady(address)
	}
}

func (t teeObserver) Failed(err error) {
	for _, o := range t {
		o.Failed(err)
	}
}
