package dispatch

import "github.com/srg/blelink/internal/device"

// ChannelObserver turns notifications into Events on a bounded ring channel.
// When the consumer falls behind the oldest events are overwritten.
type ChannelObserver struct {
	ring *RingChannel[Event]
}

func NewChannelObserver(capacity int) *ChannelObserver {
	return &ChannelObserver{ring: NewRingChannel[Event](capacity)}
}

// Events returns the channel consumers read from
func (o *ChannelObserver) Events() <-chan Event {
	return o.ring.C()
}

// Dropped returns how many events were overwritten before being read
func (o *ChannelObserver) Dropped() int64 {
	return o.ring.Overwritten()
}

func (o *ChannelObserver) Close() {
	o.ring.Close()
}

func (o *ChannelObserver) DeviceDiscovered(p device.Peripheral) {
	o.ring.Send(DiscoveredEvent(p))
}

func (o *ChannelObserver) Connected(address string) {
	o.ring.Send(ConnectedEvent(address))
}

func (o *ChannelObserver) Disconnected(address string) {
	o.ring.Send(DisconnectedEvent(address))
}

func (o *ChannelObserver) ServicesReady(address string) {
	o.ring.Send(ServicesReadyEvent(address))
}

func (o *ChannelObserver) Failed(err error) {
	o.ring.Send(FailedEvent(err))
}
