package dispatch

import (
	"fmt"

	"github.com/srg/blelink/internal/device"
)

// EventKind names one of the five notifications
type EventKind int

const (
	DeviceDiscovered EventKind = iota
	Connected
	Disconnected
	ServicesReady
	Failed
)

func (k EventKind) String() string {
	switch k {
	case DeviceDiscovered:
		return "device_discovered"
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	case ServicesReady:
		return "services_ready"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is a notification captured as a value.
// Peripheral is set for DeviceDiscovered, Address for the connection
// notifications and Err for Failed.
type Event struct {
	Kind       EventKind
	Peripheral device.Peripheral
	Address    string
	Err        error
}

func DiscoveredEvent(p device.Peripheral) Event {
	return Event{Kind: DeviceDiscovered, Peripheral: p, Address: p.Address}
}

func ConnectedEvent(address string) Event {
	return Event{Kind: Connected, Address: address}
}

func DisconnectedEvent(address string) Event {
	return Event{Kind: Disconnected, Address: address}
}

func ServicesReadyEvent(address string) Event {
	return Event{Kind: ServicesReady, Address: address}
}

func FailedEvent(err error) Event {
	return Event{Kind: Failed, Err: err}
}

// Deliver calls the observer method matching the event kind
func (e Event) Deliver(obs device.Observer) {
	switch e.Kind {
	case DeviceDiscovered:
		obs.DeviceDiscovered(e.Peripheral)
	case Connected:
		obs.Connected(e.Address)
	case Disconnected:
		obs.Disconnected(e.Address)
	case ServicesReady:
		obs.ServicesReady(e.Address)
	case Failed:
		obs.Failed(e.Err)
	}
}

func (e Event) String() string {
	switch e.Kind {
	case DeviceDiscovered:
		return fmt.Sprintf("%s %s %q", e.Kind, e.Address, e.Peripheral.Name)
	case Failed:
		return fmt.Sprintf("%s %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s %s", e.Kind, e.Address)
	}
}
