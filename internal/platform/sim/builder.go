package sim

import "github.com/srg/blelink/internal/device"

// PeripheralBuilder configures one simulated peripheral
type PeripheralBuilder struct {
	platform *Platform
	address  string
	name     string
	rssi     int
	payload  []byte
	services []device.Service

	openErr       error
	connectErr    error
	disconnectErr error
	discoveryErr  error
}

// WithService adds a service with the given attribute identifiers
func (b *PeripheralBuilder) WithService(id string, attributes ...string) *PeripheralBuilder {
	svc := device.Service{ID: id, Attributes: make([]device.Attribute, 0, len(attributes))}
	for _, a := range attributes {
		svc.Attributes = append(svc.Attributes, device.Attribute{ID: a})
	}
	b.platform.mu.Lock()
	b.services = append(b.services, svc)
	b.platform.mu.Unlock()
	return b
}

func (b *PeripheralBuilder) WithRSSI(rssi int) *PeripheralBuilder {
	b.platform.mu.Lock()
	b.rssi = rssi
	b.platform.mu.Unlock()
	return b
}

func (b *PeripheralBuilder) WithPayload(payload []byte) *PeripheralBuilder {
	b.platform.mu.Lock()
	b.payload = append([]byte(nil), payload...)
	b.platform.mu.Unlock()
	return b
}

// FailOpen makes Link.Open return err synchronously
func (b *PeripheralBuilder) FailOpen(err error) *PeripheralBuilder {
	b.platform.mu.Lock()
	b.openErr = err
	b.platform.mu.Unlock()
	return b
}

// FailConnect makes the ConnectResult carry err
func (b *PeripheralBuilder) FailConnect(err error) *PeripheralBuilder {
	b.platform.mu.Lock()
	b.connectErr = err
	b.platform.mu.Unlock()
	return b
}

// FailDisconnect makes the DisconnectResult carry err
func (b *PeripheralBuilder) FailDisconnect(err error) *PeripheralBuilder {
	b.platform.mu.Lock()
	b.disconnectErr = err
	b.platform.mu.Unlock()
	return b
}

// FailDiscovery makes the ServicesDiscovered result carry err
func (b *PeripheralBuilder) FailDiscovery(err error) *PeripheralBuilder {
	b.platform.mu.Lock()
	b.discoveryErr = err
	b.platform.mu.Unlock()
	return b
}

// WithPeripheral declares the next peripheral on the same platform
func (b *PeripheralBuilder) WithPeripheral(address, name string) *PeripheralBuilder {
	return b.platform.WithPeripheral(address, name)
}

// Platform returns the platform the peripheral belongs to
func (b *PeripheralBuilder) Platform() *Platform {
	return b.platform
}

// advertisement and servicesCopy are called with platform.mu held
func (b *PeripheralBuilder) advertisement() device.Advertisement {
	return device.Advertisement{
		Address: b.address,
		Name:    b.name,
		RSSI:    b.rssi,
		Payload: append([]byte(nil), b.payload...),
	}
}

func (b *PeripheralBuilder) servicesCopy() []device.Service {
	out := make([]device.Service, len(b.services))
	for i, svc := range b.services {
		attrs := make([]device.Attribute, len(svc.Attributes))
		copy(attrs, svc.Attributes)
		out[i] = device.Service{ID: svc.ID, Attributes: attrs}
	}
	return out
}
