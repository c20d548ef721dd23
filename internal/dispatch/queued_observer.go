package dispatch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hedzr/go-ringbuf/v2/mpmc"
	"github.com/sirupsen/logrus"
	"github.com/srg/blelink/internal/device"
	"github.com/srg/blelink/internal/groutine"
)

// MaxQueueSize guards against accidental misconfiguration
const MaxQueueSize uint32 = 64 * 1024

// QueuedObserver hands notifications to a wrapped observer on its own
// goroutine, so a slow observer never stalls the link-event pump.
//
// Events are buffered in an overlapped ring: when the wrapped observer falls
// behind by more than the queue size, the oldest events are overwritten.
// Order is preserved for the events that are delivered.
type QueuedObserver struct {
	target device.Observer
	buffer mpmc.RichOverlappedRingBuffer[Event]
	wake   chan struct{}
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
	closed atomic.Bool
	logger *logrus.Logger

	delivered   atomic.Int64
	overwritten atomic.Int64
}

// NewQueuedObserver starts the delivery goroutine for target
func NewQueuedObserver(ctx context.Context, target device.Observer, size uint32, logger *logrus.Logger) (*QueuedObserver, error) {
	if target == nil {
		return nil, fmt.Errorf("target observer cannot be nil")
	}
	if size == 0 {
		return nil, fmt.Errorf("queue size must be > 0")
	}
	if size > MaxQueueSize {
		return nil, fmt.Errorf("queue size %d exceeds maximum %d", size, MaxQueueSize)
	}
	if logger == nil {
		logger = logrus.New()
	}

	q := &QueuedObserver{
		target: target,
		buffer: mpmc.NewOverlappedRingBuffer[Event](size),
		wake:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		logger: logger,
	}
	groutine.Go(ctx, "dispatch-queue", q.run)
	return q, nil
}

func (q *QueuedObserver) run(ctx context.Context) {
	defer close(q.done)
	for {
		select {
		case <-q.wake:
			q.drain()
		case <-q.stop:
			q.drain()
			return
		case <-ctx.Done():
			q.drain()
			return
		}
	}
}

func (q *QueuedObserver) drain() {
	for !q.buffer.IsEmpty() {
		ev, err := q.buffer.Dequeue()
		if err != nil {
			return
		}
		q.deliver(ev)
	}
}

func (q *QueuedObserver) deliver(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.WithFields(logrus.Fields{
				"event": ev.Kind.String(),
				"panic": r,
			}).Error("Queued observer panicked")
		}
	}()
	ev.Deliver(q.target)
	q.delivered.Add(1)
}

func (q *QueuedObserver) enqueue(ev Event) {
	if q.closed.Load() {
		return
	}
	overwrites, err := q.buffer.EnqueueM(ev)
	if err != nil {
		q.logger.WithError(err).WithField("event", ev.Kind.String()).Warn("Dropping notification")
		return
	}
	if overwrites > 0 {
		q.overwritten.Add(int64(overwrites))
	}
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Close delivers whatever is still queued and stops the goroutine.
// Notifications arriving afterwards are dropped.
func (q *QueuedObserver) Close() {
	q.once.Do(func() {
		q.closed.Store(true)
		close(q.stop)
	})
	<-q.done
}

// Delivered returns how many notifications reached the wrapped observer
func (q *QueuedObserver) Delivered() int64 {
	return q.delivered.Load()
}

// Overwritten returns how many notifications were lost to queue overflow
func (q *QueuedObserver) Overwritten() int64 {
	return q.overwritten.Load()
}

func (q *QueuedObserver) DeviceDiscovered(p device.Peripheral) {
	q.enqueue(DiscoveredEvent(p))
}

func (q *QueuedObserver) Connected(address string) {
	q.enqueue(ConnectedEvent(address))
}

func (q *QueuedObserver) Disconnected(address string) {
	q.enqueue(DisconnectedEvent(address))
}

func (q *QueuedObserver) ServicesReady(address string) {
	q.enqueue(ServicesReadyEvent(address))
}

func (q *QueuedObserver) Failed(err error) {
	q.enqueue(FailedEvent(err))
}
