package sim_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/srg/blelink/internal/device"
	"github.com/srg/blelink/internal/platform/sim"
	"github.com/srg/blelink/internal/testutils"
	"github.com/stretchr/testify/suite"
)

type SimTestSuite struct {
	suite.Suite
	helper   *testutils.TestHelper
	platform *sim.Platform
}

func (s *SimTestSuite) SetupTest() {
	s.helper = testutils.NewTestHelper(s.T())
	s.platform = sim.New(s.helper.Logger)
	s.platform.WithPeripheral("aa:01", "Widget-1").
		WithService("180F", "2A19").
		WithService("180D", "2A37", "2A38").
		WithPeripheral("aa:02", "Gadget-2").
		FailConnect(errors.New("gatt 133"))
}

func (s *SimTestSuite) TearDownTest() {
	s.Require().NoError(s.platform.Close())
}

func (s *SimTestSuite) nextEvent() device.LinkEvent {
	select {
	case ev := <-s.platform.Link().Events():
		return ev
	case <-time.After(time.Second):
		s.FailNow("no link event delivered")
		return device.LinkEvent{}
	}
}

func (s *SimTestSuite) TestDiscovery() {
	// GOAL: Verify declared peripherals are advertised in declaration order
	//
	// TEST SCENARIO: StartDiscovery → both advertisements delivered → StopDiscovery

	var mu sync.Mutex
	var got []device.Advertisement
	done := make(chan struct{})

	s.Require().NoError(s.platform.Scanner().StartDiscovery(func(adv device.Advertisement) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, adv)
		if len(got) == 2 {
			close(done)
		}
	}))

	select {
	case <-done:
	case <-time.After(time.Second):
		s.FailNow("advertisements not delivered")
	}
	s.Require().NoError(s.platform.Scanner().StopDiscovery())

	mu.Lock()
	defer mu.Unlock()
	s.Equal("aa:01", got[0].Address)
	s.Equal("Widget-1", got[0].Name)
	s.Equal(-60, got[0].RSSI, "default RSSI MUST be applied")
	s.Equal("aa:02", got[1].Address)
}

func (s *SimTestSuite) TestDiscoveryNeedsPower() {
	s.platform.WithRadio(true, false, true)

	err := s.platform.Scanner().StartDiscovery(func(device.Advertisement) {})
	s.ErrorIs(err, device.ErrRadioUnavailable)

	s.Require().NoError(s.platform.Radio().RequestEnable())
	s.True(s.platform.Radio().IsEnabled())
	s.NoError(s.platform.Scanner().StartDiscovery(func(device.Advertisement) {}))
}

func (s *SimTestSuite) TestLinkLifecycle() {
	// GOAL: Verify open, discovery and disconnect produce results for the right session
	//
	// TEST SCENARIO: Open widget → ConnectResult ok → DiscoverServices → services in order → Disconnect → DisconnectResult ok

	link := s.platform.Link()
	session, err := link.Open("aa:01")
	s.Require().NoError(err)
	s.NotZero(session, "session zero MUST never be issued")

	ev := s.nextEvent()
	s.Equal(device.ConnectResult, ev.Kind)
	s.Equal(session, ev.Session)
	s.True(ev.Success())

	s.Require().NoError(link.DiscoverServices(session))
	ev = s.nextEvent()
	s.Equal(device.ServicesDiscovered, ev.Kind)
	s.Require().Len(ev.Services, 2)
	s.Equal("180F", ev.Services[0].ID)
	s.Equal([]device.Attribute{{ID: "2A37"}, {ID: "2A38"}}, ev.Services[1].Attributes)

	s.Require().NoError(link.Disconnect(session))
	ev = s.nextEvent()
	s.Equal(device.DisconnectResult, ev.Kind)
	s.True(ev.Success())

	s.Require().NoError(link.Close(session))
	s.Zero(s.platform.OpenSessions())
	s.Error(link.Disconnect(session), "closed session MUST be unknown")
}

func (s *SimTestSuite) TestFailureInjection() {
	// GOAL: Verify injected failures surface at the configured step
	//
	// TEST SCENARIO: Gadget fails connect → ConnectResult error; open failure → sync error; unknown address → timeout result

	link := s.platform.Link()

	session, err := link.Open("aa:02")
	s.Require().NoError(err)
	ev := s.nextEvent()
	s.Equal(session, ev.Session)
	s.EqualError(ev.Err, "gatt 133")

	s.Error(link.DiscoverServices(session), "discovery on a failed session MUST be refused")

	s.platform.WithPeripheral("aa:03", "Broken").FailOpen(errors.New("no resources"))
	_, err = link.Open("aa:03")
	s.EqualError(err, "no resources")

	_, err = link.Open("ff:ff")
	s.Require().NoError(err)
	ev = s.nextEvent()
	s.ErrorIs(ev.Err, device.ErrTimeout, "absent peripheral MUST time out")
}

func (s *SimTestSuite) TestSessionsAreUnique() {
	link := s.platform.Link()
	seen := map[device.Session]bool{}
	for i := 0; i < 5; i++ {
		id, err := link.Open("aa:01")
		s.Require().NoError(err)
		s.False(seen[id], "session IDs MUST never repeat")
		seen[id] = true
		s.Require().NoError(link.Close(id))
	}
}

func (s *SimTestSuite) TestDropLink() {
	link := s.platform.Link()
	session, err := link.Open("aa:01")
	s.Require().NoError(err)
	s.nextEvent()

	s.platform.DropLink("aa:01")

	ev := s.nextEvent()
	s.Equal(device.DisconnectResult, ev.Kind)
	s.Equal(session, ev.Session)
	s.True(ev.Success())
}

func TestSimTestSuite(t *testing.T) {
	suite.Run(t, new(SimTestSuite))
}
