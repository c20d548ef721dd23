// Package dispatch delivers manager notifications to a single registered observer.
package dispatch

import (
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/blelink/internal/device"
)

// Dispatcher holds one observer slot. Registration replaces the previous
// observer; a nil observer clears the slot. Delivery is synchronous and a
// panicking observer is logged, never propagated.
type Dispatcher struct {
	mu       sync.RWMutex
	observer device.Observer
	logger   *logrus.Logger
}

func NewDispatcher(logger *logrus.Logger) *Dispatcher {
	if logger == nil {
		logger = logrus.New()
	}
	return &Dispatcher{logger: logger}
}

// SetObserver registers obs, replacing any previous observer
func (d *Dispatcher) SetObserver(obs device.Observer) {
	d.mu.Lock()
	d.observer = obs
	d.mu.Unlock()
}

// Observer returns the registered observer, or nil
func (d *Dispatcher) Observer() device.Observer {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.observer
}

// Dispatch delivers events in order to the current observer
func (d *Dispatcher) Dispatch(events ...Event) {
	obs := d.Observer()
	if obs == nil {
		return
	}
	for _, ev := range events {
		d.deliver(obs, ev)
	}
}

func (d *Dispatcher) deliver(obs device.Observer, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.WithFields(logrus.Fields{
				"event": ev.Kind.String(),
				"panic": r,
			}).Error("Observer panicked")
		}
	}()
	ev.Deliver(obs)
}
