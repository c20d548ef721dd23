package main

import (
	"bytes"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blelink/internal/device"
	"github.com/srg/blelink/internal/platform/sim"
	"github.com/srg/blelink/internal/testutils"
	"github.com/srg/blelink/pkg/config"
	"github.com/stretchr/testify/suite"
)

// Simulated peripheral addresses shared by the command tests
const (
	widgetAddr  = "aa:bb:cc:00:00:01"
	gadgetAddr  = "aa:bb:cc:00:00:02"
	unnamedAddr = "aa:bb:cc:00:00:03"
	brokenAddr  = "aa:bb:cc:00:00:04"
)

// errRefused is what the broken peripheral answers to a connect
var errRefused = errors.New("connection refused by peer")

// CommandTestSuite runs commands against a simulated backend.
// Every platformFactory call gets a fresh platform built by newPlatform.
type CommandTestSuite struct {
	suite.Suite
	helper *testutils.TestHelper

	// newPlatform builds the backend handed to the command; tests may replace it
	newPlatform func(logger *logrus.Logger) *sim.Platform
	platforms   []*sim.Platform

	restoreFactory func(*config.Config, *logrus.Logger) (device.Platform, error)
}

func (s *CommandTestSuite) SetupTest() {
	s.helper = testutils.NewTestHelper(s.T())
	s.newPlatform = defaultSimPlatform
	s.platforms = nil

	s.restoreFactory = platformFactory
	platformFactory = func(cfg *config.Config, logger *logrus.Logger) (device.Platform, error) {
		p := s.newPlatform(logger)
		s.platforms = append(s.platforms, p)
		return p, nil
	}
}

func (s *CommandTestSuite) TearDownTest() {
	platformFactory = s.restoreFactory
}

// defaultSimPlatform advertises a fixed set of peripherals in declaration order
func defaultSimPlatform(logger *logrus.Logger) *sim.Platform {
	p := sim.New(logger).WithLatency(5 * time.Millisecond)
	p.WithPeripheral(widgetAddr, "Widget-1").
		WithRSSI(-48).
		WithService("1800", "2a00", "2a01").
		WithService("180f", "2a19")
	p.WithPeripheral(gadgetAddr, "Gadget-2").WithRSSI(-61)
	p.WithPeripheral(unnamedAddr, "").WithRSSI(-75)
	return p
}

// ExecuteCommand runs the root command with args and returns stdout and stderr separately
func (s *CommandTestSuite) ExecuteCommand(args ...string) (string, string, error) {
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	cmd := newRootCmd()
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(append([]string{"--backend", config.BackendSim}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

// SimConfig returns a configuration selecting the simulated backend
func (s *CommandTestSuite) SimConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Backend = config.BackendSim
	cfg.ScanTimeout = 500 * time.Millisecond
	cfg.ConnectTimeout = 2 * time.Second
	return cfg
}
