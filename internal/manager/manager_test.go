package manager_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/srg/blelink/internal/device"
	"github.com/srg/blelink/internal/dispatch"
	"github.com/srg/blelink/internal/manager"
	"github.com/srg/blelink/internal/testutils"
	"github.com/srg/blelink/internal/testutils/mocks"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

const (
	widgetAddr = "aa:bb:cc:00:00:01"
	gadgetAddr = "aa:bb:cc:00:00:02"
)

type ManagerTestSuite struct {
	suite.Suite
	helper   *testutils.TestHelper
	platform *mocks.MockPlatform
	mgr      *manager.Manager
	observer *testutils.RecordingObserver
}

func (s *ManagerTestSuite) SetupTest() {
	s.helper = testutils.NewTestHelper(s.T())
	s.platform = mocks.NewMockPlatform()
	s.platform.ScannerMock.On("StartDiscovery", mock.Anything).Return(nil).Maybe()
	s.platform.ScannerMock.On("StopDiscovery").Return(nil).Maybe()
	s.platform.LinkMock.On("Close", mock.Anything).Return(nil).Maybe()

	mgr, err := manager.New(s.platform, nil, s.helper.Logger)
	s.Require().NoError(err)
	s.Require().NoError(mgr.Initialize())

	s.mgr = mgr
	s.observer = testutils.NewRecordingObserver()
	s.mgr.SetObserver(s.observer)
}

func (s *ManagerTestSuite) TearDownTest() {
	s.Require().NoError(s.mgr.Close())
}

// discover runs a scan that sees the given advertisements
func (s *ManagerTestSuite) discover(ads ...device.Advertisement) {
	s.Require().NoError(s.mgr.StartScan())
	for _, adv := range ads {
		s.platform.ScannerMock.Handler(adv)
	}
}

// connect drives the manager to Connected on session
func (s *ManagerTestSuite) connect(address string, session device.Session) {
	s.platform.LinkMock.On("Open", address).Return(session, nil).Once()
	s.Require().NoError(s.mgr.Connect(address))
	s.mgr.HandleLinkEvent(device.LinkEvent{Kind: device.ConnectResult, Session: session, Address: address})
	s.Require().Equal(device.Connected, s.mgr.State())
}

func (s *ManagerTestSuite) TestConnect() {
	// GOAL: Verify the connect path through Connecting to Connected
	//
	// TEST SCENARIO: Discover device → Connect → state Connecting → link reports success → state Connected and Connected(addr) notified

	s.discover(device.Advertisement{Address: widgetAddr, Name: "Widget-1"})
	s.platform.LinkMock.On("Open", widgetAddr).Return(device.Session(7), nil).Once()

	s.Require().NoError(s.mgr.Connect(widgetAddr))
	s.Equal(device.Connecting, s.mgr.State(), "Connect MUST return while the link is still connecting")
	addr, ok := s.mgr.ActiveAddress()
	s.True(ok)
	s.Equal(widgetAddr, addr)

	s.mgr.HandleLinkEvent(device.LinkEvent{Kind: device.ConnectResult, Session: 7, Address: widgetAddr})

	s.Equal(device.Connected, s.mgr.State())
	connected := s.observer.OfKind(dispatch.Connected)
	s.Require().Len(connected, 1, "Connected MUST be notified exactly once")
	s.Equal(widgetAddr, connected[0].Address)
}

func (s *ManagerTestSuite) TestConnectRejections() {
	// GOAL: Verify Connect refuses unknown addresses and concurrent lifecycle commands
	//
	// TEST SCENARIO: Unknown address → ErrAddressUnknown; connect while connecting → ErrInvalidState; no extra sessions opened

	s.Run("address never observed", func() {
		err := s.mgr.Connect("ff:ff:ff:ff:ff:ff")

		s.ErrorIs(err, device.ErrAddressUnknown, "unknown address MUST be rejected")
		s.platform.LinkMock.AssertNotCalled(s.T(), "Open", mock.Anything)
		s.Equal(device.Disconnected, s.mgr.State())
	})

	s.Run("address forgotten by a new scan", func() {
		s.discover(device.Advertisement{Address: widgetAddr, Name: "Widget-1"})
		s.discover()

		s.ErrorIs(s.mgr.Connect(widgetAddr), device.ErrAddressUnknown, "registry clear MUST forget addresses")
	})

	s.Run("while connecting", func() {
		s.discover(
			device.Advertisement{Address: widgetAddr, Name: "Widget-1"},
			device.Advertisement{Address: gadgetAddr, Name: "Gadget-2"},
		)
		s.platform.LinkMock.On("Open", widgetAddr).Return(device.Session(1), nil).Once()
		s.Require().NoError(s.mgr.Connect(widgetAddr))

		err := s.mgr.Connect(gadgetAddr)
		s.ErrorIs(err, device.ErrInvalidState)
		s.Equal("connect: invalid state: connecting", err.Error())
		s.ErrorIs(s.mgr.Connect(widgetAddr), device.ErrInvalidState, "same address MUST also be rejected while connecting")
		s.platform.LinkMock.AssertNumberOfCalls(s.T(), "Open", 1)
	})
}

func (s *ManagerTestSuite) TestConnectIsIdempotent() {
	// GOAL: Verify a second Connect to the connected address is a no-op
	//
	// TEST SCENARIO: Connect to widget → Connect again twice → nil each time → one session opened, one notification

	s.discover(device.Advertisement{Address: widgetAddr, Name: "Widget-1"})
	s.connect(widgetAddr, 3)

	s.NoError(s.mgr.Connect(widgetAddr))
	s.NoError(s.mgr.Connect(widgetAddr))

	s.platform.LinkMock.AssertNumberOfCalls(s.T(), "Open", 1)
	s.Len(s.observer.OfKind(dispatch.Connected), 1)
	s.Equal(device.Connected, s.mgr.State())
}

func (s *ManagerTestSuite) TestConnectFailure() {
	// GOAL: Verify failed connects return to Disconnected and release the session
	//
	// TEST SCENARIO: Async failure → Disconnected + Failed(ConnectFailed) + Close; sync Open error → error returned, still Disconnected

	s.Run("link reports failure", func() {
		s.discover(device.Advertisement{Address: widgetAddr, Name: "Widget-1"})
		s.platform.LinkMock.On("Open", widgetAddr).Return(device.Session(11), nil).Once()
		s.Require().NoError(s.mgr.Connect(widgetAddr))

		s.mgr.HandleLinkEvent(device.LinkEvent{
			Kind: device.ConnectResult, Session: 11, Address: widgetAddr, Err: errors.New("gatt 133"),
		})

		s.Equal(device.Disconnected, s.mgr.State(), "failed connect MUST land on Disconnected")
		_, ok := s.mgr.ActiveAddress()
		s.False(ok, "failed connect MUST release the active link")
		s.platform.LinkMock.AssertCalled(s.T(), "Close", device.Session(11))

		failed := s.observer.OfKind(dispatch.Failed)
		s.Require().Len(failed, 1)
		s.ErrorIs(failed[0].Err, device.ErrConnectFailed)
		s.Empty(s.observer.OfKind(dispatch.Connected), "Connected MUST NOT be notified on failure")
	})

	s.Run("open fails synchronously", func() {
		s.observer.Reset()
		s.platform.LinkMock.On("Open", widgetAddr).Return(device.Session(0), errors.New("busy")).Once()

		err := s.mgr.Connect(widgetAddr)

		s.ErrorIs(err, device.ErrConnectFailed)
		s.Contains(err.Error(), "busy")
		s.Equal(device.Disconnected, s.mgr.State())
		s.Empty(s.observer.Events(), "synchronous failures MUST NOT be notified")
	})
}

func (s *ManagerTestSuite) TestDisconnect() {
	// GOAL: Verify the disconnect path and its rejections
	//
	// TEST SCENARIO: Disconnect while Disconnected fails → connect → Disconnect → Disconnecting → link confirms → Disconnected notified

	s.Run("while disconnected", func() {
		err := s.mgr.Disconnect()

		s.ErrorIs(err, device.ErrInvalidState)
		s.Equal(device.Disconnected, s.mgr.State(), "rejected Disconnect MUST change nothing")
		s.Empty(s.observer.Events())
		s.platform.LinkMock.AssertNotCalled(s.T(), "Disconnect", mock.Anything)
	})

	s.Run("connected link", func() {
		s.discover(device.Advertisement{Address: widgetAddr, Name: "Widget-1"})
		s.connect(widgetAddr, 5)

		issued := make(chan struct{})
		s.platform.LinkMock.On("Disconnect", device.Session(5)).Return(nil).Once().Run(func(mock.Arguments) {
			close(issued)
		})

		s.Require().NoError(s.mgr.Disconnect())
		s.Equal(device.Disconnecting, s.mgr.State())
		s.NoError(s.mgr.Disconnect(), "Disconnect while disconnecting MUST be a no-op")

		select {
		case <-issued:
		case <-time.After(time.Second):
			s.FailNow("link disconnect was never issued")
		}

		s.mgr.HandleLinkEvent(device.LinkEvent{Kind: device.DisconnectResult, Session: 5, Address: widgetAddr})

		s.Equal(device.Disconnected, s.mgr.State())
		s.platform.LinkMock.AssertCalled(s.T(), "Close", device.Session(5))
		disconnected := s.observer.OfKind(dispatch.Disconnected)
		s.Require().Len(disconnected, 1)
		s.Equal(widgetAddr, disconnected[0].Address)
	})
}

func (s *ManagerTestSuite) TestDisconnectFailure() {
	// GOAL: Verify a failing link disconnect still releases the link
	//
	// TEST SCENARIO: Link Disconnect returns an error → reconciled as failure → Disconnected + Failed(DisconnectFailed)

	s.discover(device.Advertisement{Address: widgetAddr, Name: "Widget-1"})
	s.connect(widgetAddr, 9)
	s.platform.LinkMock.On("Disconnect", device.Session(9)).Return(errors.New("stack wedged")).Once()

	s.Require().NoError(s.mgr.Disconnect())

	ev, ok := s.observer.WaitFor(dispatch.Failed, time.Second)
	s.Require().True(ok, "disconnect failure MUST be notified")
	s.ErrorIs(ev.Err, device.ErrDisconnectFailed)
	s.Equal(device.Disconnected, s.mgr.State())
	s.Empty(s.observer.OfKind(dispatch.Disconnected))
	s.platform.LinkMock.AssertCalled(s.T(), "Close", device.Session(9))
}

func (s *ManagerTestSuite) TestDiscoverServices() {
	// GOAL: Verify service discovery gating, round trip and failure reporting
	//
	// TEST SCENARIO: Discover while Disconnected rejected → connect → discover → services reported in order → lookup by identifier

	s.Run("rejected while disconnected", func() {
		err := s.mgr.DiscoverServices()

		s.ErrorIs(err, device.ErrInvalidState)
		s.platform.LinkMock.AssertNotCalled(s.T(), "DiscoverServices", mock.Anything)
		s.Empty(s.observer.Events(), "rejected discovery MUST NOT notify")
	})

	s.Run("round trip", func() {
		s.discover(device.Advertisement{Address: widgetAddr, Name: "Widget-1"})
		s.connect(widgetAddr, 4)
		s.platform.LinkMock.On("DiscoverServices", device.Session(4)).Return(nil).Once()

		s.Require().NoError(s.mgr.DiscoverServices())
		s.Empty(s.mgr.Services(), "tree MUST stay empty until discovery completes")

		s.mgr.HandleLinkEvent(device.LinkEvent{
			Kind:    device.ServicesDiscovered,
			Session: 4,
			Address: widgetAddr,
			Services: []device.Service{
				{ID: "1800"},
				{ID: "180F", Attributes: []device.Attribute{{ID: "2A19"}}},
				{ID: "6e400001-b5a3-f393-e0a9-e50e24dcca9e"},
				{ID: "180F", Attributes: []device.Attribute{{ID: "2A1A"}}},
			},
		})

		services := s.mgr.Services()
		var ids []string
		for _, svc := range services {
			ids = append(ids, svc.ID)
		}
		s.Equal([]string{"1800", "180F", "6e400001-b5a3-f393-e0a9-e50e24dcca9e", "180F"}, ids, "services MUST keep reporting order, duplicates included")
		s.Equal([]device.Attribute{{ID: "2A1A"}}, services[3].Attributes, "repeated service MUST keep its own attributes")
		s.Len(s.observer.OfKind(dispatch.ServicesReady), 1)

		attrs, err := s.mgr.Attributes("0000180f-0000-1000-8000-00805f9b34fb")
		s.Require().NoError(err)
		s.Equal([]device.Attribute{{ID: "2A19"}}, attrs)

		_, err = s.mgr.Attributes("ffff")
		s.ErrorIs(err, device.ErrAttributeNotFound)
	})

	s.Run("link reports failure", func() {
		s.platform.LinkMock.On("DiscoverServices", device.Session(4)).Return(nil).Once()
		s.Require().NoError(s.mgr.DiscoverServices())

		s.mgr.HandleLinkEvent(device.LinkEvent{
			Kind: device.ServicesDiscovered, Session: 4, Address: widgetAddr, Err: errors.New("timeout"),
		})

		s.Equal(device.Connected, s.mgr.State(), "discovery failure MUST NOT drop the link")
		failed := s.observer.OfKind(dispatch.Failed)
		s.Require().Len(failed, 1)
		s.ErrorIs(failed[0].Err, device.ErrServiceDiscoveryFailed)
	})

	s.Run("request fails synchronously", func() {
		s.platform.LinkMock.On("DiscoverServices", device.Session(4)).Return(errors.New("not ready")).Once()

		err := s.mgr.DiscoverServices()
		s.ErrorIs(err, device.ErrServiceDiscoveryFailed)
		s.Equal(device.Connected, s.mgr.State())
	})

	s.Run("tree cleared on disconnect", func() {
		s.mgr.HandleLinkEvent(device.LinkEvent{Kind: device.DisconnectResult, Session: 4, Address: widgetAddr})

		s.Equal(device.Disconnected, s.mgr.State())
		s.Empty(s.mgr.Services(), "service tree MUST be empty once disconnected")
	})
}

func (s *ManagerTestSuite) TestStaleEventsIgnored() {
	// GOAL: Verify events carrying a session other than the active one change nothing
	//
	// TEST SCENARIO: Connecting on session 2 → events for session 1 → still Connecting, no notifications

	s.discover(device.Advertisement{Address: widgetAddr, Name: "Widget-1"})
	s.platform.LinkMock.On("Open", widgetAddr).Return(device.Session(2), nil).Once()
	s.Require().NoError(s.mgr.Connect(widgetAddr))
	s.observer.Reset()

	s.mgr.HandleLinkEvent(device.LinkEvent{Kind: device.ConnectResult, Session: 1, Address: widgetAddr})
	s.mgr.HandleLinkEvent(device.LinkEvent{Kind: device.DisconnectResult, Session: 1, Address: widgetAddr})
	s.mgr.HandleLinkEvent(device.LinkEvent{Kind: device.ServicesDiscovered, Session: 1, Services: []device.Service{{ID: "1800"}}})

	s.Equal(device.Connecting, s.mgr.State())
	s.Empty(s.observer.Events(), "stale events MUST NOT notify")
	s.Empty(s.mgr.Services())

	s.mgr.HandleLinkEvent(device.LinkEvent{Kind: device.ServicesDiscovered, Session: 2, Services: []device.Service{{ID: "1800"}}})
	s.Empty(s.mgr.Services(), "services MUST NOT be accepted before the link is connected")
}

func (s *ManagerTestSuite) TestLinkLost() {
	// GOAL: Verify an unsolicited disconnect while connected releases the link
	//
	// TEST SCENARIO: Connected → link reports disconnect → Disconnected(addr) notified, session closed

	s.discover(device.Advertisement{Address: widgetAddr, Name: "Widget-1"})
	s.connect(widgetAddr, 12)

	s.mgr.HandleLinkEvent(device.LinkEvent{Kind: device.DisconnectResult, Session: 12, Address: widgetAddr})

	s.Equal(device.Disconnected, s.mgr.State())
	s.Len(s.observer.OfKind(dispatch.Disconnected), 1)
	s.platform.LinkMock.AssertCalled(s.T(), "Close", device.Session(12))
}

func (s *ManagerTestSuite) TestSwitchAddress() {
	// GOAL: Verify connecting elsewhere while connected drops the old link first
	//
	// TEST SCENARIO: Connected to widget → Connect(gadget) → old session disconnected and closed → Disconnected(widget) → Connecting to gadget

	s.discover(
		device.Advertisement{Address: widgetAddr, Name: "Widget-1"},
		device.Advertisement{Address: gadgetAddr, Name: "Gadget-2"},
	)
	s.connect(widgetAddr, 20)
	s.platform.LinkMock.On("Disconnect", device.Session(20)).Return(nil).Once()
	s.platform.LinkMock.On("Open", gadgetAddr).Return(device.Session(21), nil).Once()

	start := time.Now()
	s.Require().NoError(s.mgr.Connect(gadgetAddr))

	s.GreaterOrEqual(time.Since(start), manager.MinQuiescenceDelay, "switch MUST wait for the stack to settle")
	s.Equal(device.Connecting, s.mgr.State())
	addr, _ := s.mgr.ActiveAddress()
	s.Equal(gadgetAddr, addr)
	s.platform.LinkMock.AssertCalled(s.T(), "Close", device.Session(20))

	s.Equal([]dispatch.EventKind{dispatch.Connected, dispatch.Disconnected}, s.observer.Kinds()[len(s.observer.Kinds())-2:])

	s.mgr.HandleLinkEvent(device.LinkEvent{Kind: device.DisconnectResult, Session: 20, Address: widgetAddr})
	s.Equal(device.Connecting, s.mgr.State(), "late confirmation for the old session MUST be ignored")
}

func (s *ManagerTestSuite) TestRescanWhileConnected() {
	// GOAL: Verify a rescan keeps and re-announces the connected device before anything new
	//
	// TEST SCENARIO: Connected to widget → StartScan → exactly one discovery for widget first → new advertisements follow → widget not duplicated

	s.discover(device.Advertisement{Address: widgetAddr, Name: "Widget-1"})
	s.connect(widgetAddr, 30)
	s.observer.Reset()

	s.Require().NoError(s.mgr.StartScan())
	s.platform.ScannerMock.Advertise(widgetAddr, "Widget-1")
	s.platform.ScannerMock.Advertise(gadgetAddr, "Gadget-2")

	events := s.observer.OfKind(dispatch.DeviceDiscovered)
	s.Require().Len(events, 2)
	s.Equal(widgetAddr, events[0].Address, "connected record MUST be announced first")
	s.Equal(gadgetAddr, events[1].Address)
	s.Len(s.mgr.Peripherals(), 2)
	s.NoError(s.mgr.Connect(widgetAddr), "connected address MUST remain known after rescan")
}

func (s *ManagerTestSuite) TestRescanDropsPreviousScanCallbacks() {
	// GOAL: Verify a callback of the previous scan cannot add a second announcement of the connected device
	//
	// TEST SCENARIO: Connected to widget → keep scan handler → StartScan → old handler delivers widget and gadget → one widget announcement, gadget not admitted

	s.discover(device.Advertisement{Address: widgetAddr, Name: "Widget-1"})
	s.connect(widgetAddr, 31)
	stale := s.platform.ScannerMock.Handler
	s.observer.Reset()

	s.Require().NoError(s.mgr.StartScan())
	stale(device.Advertisement{Address: widgetAddr, Name: "Widget-1"})
	stale(device.Advertisement{Address: gadgetAddr, Name: "Gadget-2"})

	events := s.observer.OfKind(dispatch.DeviceDiscovered)
	s.Require().Len(events, 1, "connected device MUST be announced exactly once")
	s.Equal(widgetAddr, events[0].Address)
	s.Equal([]string{widgetAddr}, addresses(s.mgr.Peripherals()))
}

func (s *ManagerTestSuite) TestFilterScenario() {
	// GOAL: Verify the name filter governs new advertisements and is kept across rescans
	//
	// TEST SCENARIO: Unfiltered scan admits Widget-1 → filter "Widget-" → rescan clears → Widget-1 re-admitted, Gadget-2 rejected

	s.discover(device.Advertisement{Address: widgetAddr, Name: "Widget-1"})
	s.Len(s.mgr.Peripherals(), 1)

	s.mgr.SetNameFilter("Widget-")
	s.discover(
		device.Advertisement{Address: widgetAddr, Name: "Widget-1"},
		device.Advertisement{Address: gadgetAddr, Name: "Gadget-2"},
	)

	peripherals := s.mgr.Peripherals()
	s.Require().Len(peripherals, 1)
	s.Equal("Widget-1", peripherals[0].Name)

	var names []string
	for _, ev := range s.observer.OfKind(dispatch.DeviceDiscovered) {
		names = append(names, ev.Peripheral.Name)
	}
	s.Equal([]string{"Widget-1", "Widget-1"}, names, "rejected advertisements MUST NOT be notified")

	s.mgr.ClearNameFilter()
	s.platform.ScannerMock.Advertise(gadgetAddr, "Gadget-2")
	s.Len(s.mgr.Peripherals(), 2, "cleared filter MUST apply to the running scan")
}

func (s *ManagerTestSuite) TestScanRestart() {
	// GOAL: Verify restarting a running scan waits, restarts discovery and drops stale advertisements
	//
	// TEST SCENARIO: StartScan → keep old handler → StartScan again → old handler delivers → nothing admitted

	s.Require().NoError(s.mgr.StartScan())
	stale := s.platform.ScannerMock.Handler

	start := time.Now()
	s.Require().NoError(s.mgr.StartScan())
	s.GreaterOrEqual(time.Since(start), manager.MinQuiescenceDelay)
	s.platform.ScannerMock.AssertNumberOfCalls(s.T(), "StopDiscovery", 1)
	s.platform.ScannerMock.AssertNumberOfCalls(s.T(), "StartDiscovery", 2)

	stale(device.Advertisement{Address: widgetAddr, Name: "Widget-1"})
	s.Empty(s.mgr.Peripherals(), "advertisements from a stopped scan MUST be dropped")

	current := s.platform.ScannerMock.Handler
	current(device.Advertisement{Address: gadgetAddr, Name: "Gadget-2"})
	s.Require().NoError(s.mgr.StopScan())
	s.False(s.mgr.IsScanning())
	current(device.Advertisement{Address: widgetAddr, Name: "Widget-1"})
	s.Equal([]string{gadgetAddr}, addresses(s.mgr.Peripherals()), "StopScan MUST keep records and drop later advertisements")
	s.NoError(s.mgr.StopScan(), "StopScan MUST be idempotent")
	s.platform.ScannerMock.AssertNumberOfCalls(s.T(), "StopDiscovery", 2)
}

func (s *ManagerTestSuite) TestRadioGate() {
	// GOAL: Verify every link-touching command fails fast when the radio is off
	//
	// TEST SCENARIO: Radio powered off → scan, connect, disconnect, discover → ErrRadioUnavailable, no platform calls

	r := &mocks.MockRadio{}
	r.On("IsPresent").Return(true)
	r.On("SupportsLE").Return(true)
	r.On("IsEnabled").Return(false)
	s.platform.RadioMock = r

	mgr, err := manager.New(s.platform, nil, s.helper.Logger)
	s.Require().NoError(err)

	s.ErrorIs(mgr.StartScan(), device.ErrNotInitialized, "commands before Initialize MUST fail")
	s.Require().NoError(mgr.Initialize())

	s.ErrorIs(mgr.StartScan(), device.ErrRadioUnavailable)
	s.ErrorIs(mgr.StopScan(), device.ErrRadioUnavailable)
	for op, err := range map[string]error{"start scan": mgr.StartScan(), "stop scan": mgr.StopScan(), "connect": mgr.Connect(widgetAddr)} {
		var structured *device.Error
		s.Require().ErrorAs(err, &structured, "%s MUST report a structured error", op)
		s.Equal(op, structured.Op)
		s.Equal(device.KindRadioUnavailable, structured.Kind)
	}
	s.ErrorIs(mgr.Connect(widgetAddr), device.ErrRadioUnavailable)
	s.ErrorIs(mgr.Disconnect(), device.ErrRadioUnavailable)
	s.ErrorIs(mgr.DiscoverServices(), device.ErrRadioUnavailable)
	s.False(mgr.IsRadioUsable())

	s.platform.ScannerMock.AssertNotCalled(s.T(), "StartDiscovery", mock.Anything)
	s.platform.LinkMock.AssertNotCalled(s.T(), "Open", mock.Anything)
}

func (s *ManagerTestSuite) TestEventPump() {
	// GOAL: Verify Start reconciles events arriving on the link event channel
	//
	// TEST SCENARIO: Start pump → Connect → push success on channel → Connected observed → Close stops pump

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.mgr.Start(ctx)
	s.mgr.Start(ctx)

	s.discover(device.Advertisement{Address: widgetAddr, Name: "Widget-1"})
	s.platform.LinkMock.On("Open", widgetAddr).Return(device.Session(40), nil).Once()
	s.Require().NoError(s.mgr.Connect(widgetAddr))

	s.platform.LinkMock.EventsCh <- device.LinkEvent{Kind: device.ConnectResult, Session: 40, Address: widgetAddr}

	ev, ok := s.observer.WaitFor(dispatch.Connected, time.Second)
	s.Require().True(ok, "pump MUST deliver link events")
	s.Equal(widgetAddr, ev.Address)
	s.Equal(device.Connected, s.mgr.State())

	s.Require().NoError(s.mgr.Close())
	s.Equal(device.Disconnected, s.mgr.State(), "Close MUST release the active link")
	s.platform.LinkMock.AssertCalled(s.T(), "Close", device.Session(40))
}

func (s *ManagerTestSuite) TestOptionsFloor() {
	mgr, err := manager.New(s.platform, &manager.Options{NameFilter: "Widget-"}, s.helper.Logger)
	s.Require().NoError(err)

	prefix, ok := mgr.NameFilter()
	s.True(ok)
	s.Equal("Widget-", prefix)

	_, err = manager.New(nil, nil, s.helper.Logger)
	s.Error(err)
}

func TestManagerTestSuite(t *testing.T) {
	suite.Run(t, new(ManagerTestSuite))
}

func addresses(peripherals []device.Peripheral) []string {
	out := make([]string, len(peripherals))
	for i, p := range peripherals {
		out[i] = p.Address
	}
	return out
}
