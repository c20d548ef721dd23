// Package mocks provides testify mocks of the platform capability interfaces.
package mocks

import (
	"github.com/srg/blelink/internal/device"
	"github.com/stretchr/testify/mock"
)

// MockRadio implements device.Radio for testing
type MockRadio struct {
	mock.Mock
}

func (m *MockRadio) IsPresent() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockRadio) IsEnabled() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockRadio) RequestEnable() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockRadio) RequestDisable() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockRadio) SupportsLE() bool {
	args := m.Called()
	return args.Bool(0)
}

// NewUsableRadio returns a MockRadio that is present, enabled and LE capable
func NewUsableRadio() *MockRadio {
	r := &MockRadio{}
	r.On("IsPresent").Return(true).Maybe()
	r.On("IsEnabled").Return(true).Maybe()
	r.On("SupportsLE").Return(true).Maybe()
	return r
}

// MockLink implements device.Link for testing.
// Events are not mocked: tests push into EventsCh directly.
type MockLink struct {
	mock.Mock
	EventsCh chan device.LinkEvent
}

func NewMockLink() *MockLink {
	return &MockLink{EventsCh: make(chan device.LinkEvent, 16)}
}

func (m *MockLink) Open(address string) (device.Session, error) {
	args := m.Called(address)
	return args.Get(0).(device.Session), args.Error(1)
}

func (m *MockLink) Close(s device.Session) error {
	args := m.Called(s)
	return args.Error(0)
}

func (m *MockLink) Disconnect(s device.Session) error {
	args := m.Called(s)
	return args.Error(0)
}

func (m *MockLink) DiscoverServices(s device.Session) error {
	args := m.Called(s)
	return args.Error(0)
}

func (m *MockLink) Events() <-chan device.LinkEvent {
	return m.EventsCh
}

// MockScanner implements device.Scanner for testing.
// The most recent discovery handler is kept in Handler so tests can feed advertisements.
type MockScanner struct {
	mock.Mock
	Handler func(device.Advertisement)
}

func (m *MockScanner) StartDiscovery(handler func(device.Advertisement)) error {
	args := m.Called(handler)
	if args.Error(0) == nil {
		m.Handler = handler
	}
	return args.Error(0)
}

func (m *MockScanner) StopDiscovery() error {
	args := m.Called()
	return args.Error(0)
}

// Advertise delivers an advertisement through the last registered handler
func (m *MockScanner) Advertise(address, name string) {
	if m.Handler != nil {
		m.Handler(device.Advertisement{Address: address, Name: name})
	}
}

// MockPlatform bundles the three mocks as a device.Platform
type MockPlatform struct {
	RadioMock   *MockRadio
	LinkMock    *MockLink
	ScannerMock *MockScanner
}

func NewMockPlatform() *MockPlatform {
	return &MockPlatform{
		RadioMock:   NewUsableRadio(),
		LinkMock:    NewMockLink(),
		ScannerMock: &MockScanner{},
	}
}

func (p *MockPlatform) Radio() device.Radio     { return p.RadioMock }
func (p *MockPlatform) Link() device.Link       { return p.LinkMock }
func (p *MockPlatform) Scanner() device.Scanner { return p.ScannerMock }
func (p *MockPlatform) Close() error            { return nil }
