package device

import (
	"fmt"
	"time"
)

// Peripheral is a device observed during a scan. Address is its only stable identity.
type Peripheral struct {
	Address string    `json:"address"`
	Name    string    `json:"name,omitempty"` // empty when the device advertised no name
	RSSI    int       `json:"rssi"`
	Seen    time.Time `json:"seen"`
}

// DisplayName returns the advertised name, falling back to the address
func (p Peripheral) DisplayName() string {
	if p.Name == "" {
		return p.Address
	}
	return p.Name
}

// ConnectionState is the lifecycle state of the single active link
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
	Disconnecting
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Disconnecting:
		return "disconnecting"
	default:
		return fmt.Sprintf("ConnectionState(%d)", int(s))
	}
}

// Session is an opaque link-layer session handle.
// Backends never reuse a value within one backend instance; zero is never issued.
type Session uint64

// Attribute is an individually addressable data point of a service
type Attribute struct {
	ID string `json:"id"`
}

// Service is a GATT service with its attributes in discovery order
type Service struct {
	ID         string      `json:"id"`
	Attributes []Attribute `json:"attributes"`
}

// Advertisement is a single observed advertising report
type Advertisement struct {
	Address string
	Name    string
	RSSI    int
	Payload []byte
}

// Peripheral converts the advertisement into a registry record
func (a Advertisement) Peripheral() Peripheral {
	return Peripheral{
		Address: a.Address,
		Name:    a.Name,
		RSSI:    a.RSSI,
		Seen:    time.Now(),
	}
}

// LinkEventKind identifies which asynchronous link-layer result an event carries
type LinkEventKind int

const (
	ConnectResult LinkEventKind = iota
	DisconnectResult
	ServicesDiscovered
)

func (k LinkEventKind) String() string {
	switch k {
	case ConnectResult:
		return "connect_result"
	case DisconnectResult:
		return "disconnect_result"
	case ServicesDiscovered:
		return "services_discovered"
	default:
		return fmt.Sprintf("LinkEventKind(%d)", int(k))
	}
}

// LinkEvent is delivered by a Link on its event channel.
// Err is nil on success. Services is only set for a successful ServicesDiscovered.
type LinkEvent struct {
	Kind     LinkEventKind
	Session  Session
	Address  string
	Err      error
	Services []Service
}

// Success reports whether the link layer signalled success
func (e LinkEvent) Success() bool {
	return e.Err == nil
}
