package device

// Radio is the local adapter's power and capability surface
type Radio interface {
	IsPresent() bool
	IsEnabled() bool
	RequestEnable() error
	RequestDisable() error
	SupportsLE() bool
}

// Link opens and drives GATT sessions.
//
// Open, Disconnect and DiscoverServices only issue requests; their outcomes
// arrive later on Events. Close releases a session synchronously and never
// produces an event.
type Link interface {
	Open(address string) (Session, error)
	Close(s Session) error
	Disconnect(s Session) error
	DiscoverServices(s Session) error
	Events() <-chan LinkEvent
}

// Scanner delivers advertisements while discovery is running.
// The handler may be called from a goroutine owned by the backend.
type Scanner interface {
	StartDiscovery(handler func(Advertisement)) error
	StopDiscovery() error
}

// Platform bundles the capabilities of one backend
type Platform interface {
	Radio() Radio
	Link() Link
	Scanner() Scanner
	Close() error
}

// Observer receives manager notifications.
//
// Calls are synchronous on the goroutine that caused them; implementations
// doing heavy work must hand off (see dispatch.QueuedObserver).
type Observer interface {
	DeviceDiscovered(p Peripheral)
	Connected(address string)
	Disconnected(address string)
	ServicesReady(address string)
	// Failed carries a *Error whose Kind is connect_failed,
	// disconnect_failed or service_discovery_failed.
	Failed(err error)
}

// ObserverFuncs adapts plain functions to Observer; nil fields are skipped
type ObserverFuncs struct {
	OnDeviceDiscovered func(p Peripheral)
	OnConnected        func(address string)
	OnDisconnected     func(address string)
	OnServicesReady    func(address string)
	OnFailed           func(err error)
}

func (f ObserverFuncs) DeviceDiscovered(p Peripheral) {
	if f.OnDeviceDiscovered != nil {
		f.OnDeviceDiscovered(p)
	}
}

func (f ObserverFuncs) Connected(address string) {
	if f.OnConnected != nil {
		f.OnConnected(address)
	}
}

func (f ObserverFuncs) Disconnected(address string) {
	if f.OnDisconnected != nil {
		f.OnDisconnected(address)
	}
}

func (f ObserverFuncs) ServicesReady(address string) {
	if f.OnServicesReady != nil {
		f.OnServicesReady(address)
	}
}

func (f ObserverFuncs) Failed(err error) {
	if f.OnFailed != nil {
		f.OnFailed(err)
	}
}
