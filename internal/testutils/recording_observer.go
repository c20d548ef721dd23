package testutils

import (
	"sync"
	"time"

	"github.com/srg/blelink/internal/device"
	"github.com/srg/blelink/internal/dispatch"
)

// RecordingObserver records every notification in arrival order.
// It is safe for concurrent use.
type RecordingObserver struct {
	mu     sync.Mutex
	events []dispatch.Event
	notify chan struct{}
}

func NewRecordingObserver() *RecordingObserver {
	return &RecordingObserver{notify: make(chan struct{}, 1)}
}

func (r *RecordingObserver) record(ev dispatch.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()

	select {
	case r.notify <- struct{}{}:
	default:
	}
}

func (r *RecordingObserver) DeviceDiscovered(p device.Peripheral) {
	r.record(dispatch.DiscoveredEvent(p))
}

func (r *RecordingObserver) Connected(address string) {
	r.record(dispatch.ConnectedEvent(address))
}

func (r *RecordingObserver) Disconnected(address string) {
	r.record(dispatch.DisconnectedEvent(address))
}

func (r *RecordingObserver) ServicesReady(address string) {
	r.record(dispatch.ServicesReadyEvent(address))
}

func (r *RecordingObserver) Failed(err error) {
	r.record(dispatch.FailedEvent(err))
}

// Events returns a copy of everything recorded so far
func (r *RecordingObserver) Events() []dispatch.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]dispatch.Event, len(r.events))
	copy(out, r.events)
	return out
}

// Kinds returns the kinds of the recorded events
func (r *RecordingObserver) Kinds() []dispatch.EventKind {
	events := r.Events()
	out := make([]dispatch.EventKind, len(events))
	for i, ev := range events {
		out[i] = ev.Kind
	}
	return out
}

// OfKind returns the recorded events of the given kind
func (r *RecordingObserver) OfKind(kind dispatch.EventKind) []dispatch.Event {
	var out []dispatch.Event
	for _, ev := range r.Events() {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

// Reset forgets everything recorded so far
func (r *RecordingObserver) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

// WaitFor blocks until an event of the given kind is recorded or timeout elapses
func (r *RecordingObserver) WaitFor(kind dispatch.EventKind, timeout time.Duration) (dispatch.Event, bool) {
	deadline := time.After(timeout)
	for {
		if found := r.OfKind(kind); len(found) > 0 {
			return found[0], true
		}
		select {
		case <-r.notify:
		case <-deadline:
			return dispatch.Event{}, false
		}
	}
}
