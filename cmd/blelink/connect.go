package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/srg/blelink/internal/device"
	"github.com/srg/blelink/internal/dispatch"
)

func newConnectCmd() *cobra.Command {
	flags := &scanFlags{}

	cmd := &cobra.Command{
		Use:   "connect <address>",
		Short: "Connect to a peripheral and print its services",
		Long: `Scan until <address> is seen, connect to it, discover its GATT services,
print the service tree and disconnect.

The address is matched case-insensitively against scan results.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConnect(cmd, flags, args[0], false)
		},
	}
	addLinkFlags(cmd, flags)
	return cmd
}

func newServicesCmd() *cobra.Command {
	flags := &scanFlags{}

	cmd := &cobra.Command{
		Use:   "services <address>",
		Short: "Print the service tree of a peripheral",
		Long: `Same as connect, but prints only the service tree in the selected format.
Use --format json for machine-readable output.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConnect(cmd, flags, args[0], true)
		},
	}
	addLinkFlags(cmd, flags)
	return cmd
}

func addLinkFlags(cmd *cobra.Command, flags *scanFlags) {
	cmd.Flags().DurationVarP(&flags.duration, "duration", "d", 0, "How long to scan for the address (default from config, 10s)")
	cmd.Flags().StringVarP(&flags.prefix, "prefix", "p", "", "Name prefix filter applied while scanning")
	cmd.Flags().StringVarP(&flags.format, "format", "f", "", "Output format (table, json)")
}

func runConnect(cmd *cobra.Command, flags *scanFlags, address string, servicesOnly bool) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := flags.apply(cmd, cfg); err != nil {
		return err
	}

	cmd.SilenceUsage = true
	logger := configureLogger(cmd, cfg)
	out := cmd.OutOrStdout()
	progress := func(format string, args ...any) {
		if !servicesOnly {
			fmt.Fprintf(out, format+"\n", args...)
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openSession(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	spinner := startProgress(cmd.ErrOrStderr(), func(w io.Writer) *ProgressPrinter {
		return NewProgressPrinter(w, "Connecting to "+address, "Scanning")
	})
	defer spinner.Stop()

	target, err := scanFor(ctx, s, address)
	if err != nil {
		return err
	}
	spinner.SetPhase("Connecting")
	progress("Found %s", target)

	if err := s.mgr.Connect(target); err != nil {
		return err
	}
	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if _, err := s.waitFor(connectCtx, target, isEvent(dispatch.Connected, target)); err != nil {
		return fmt.Errorf("connect %s: %w", target, err)
	}
	spinner.SetPhase("Discovering services")
	progress("Connected to %s", target)

	if err := s.mgr.DiscoverServices(); err != nil {
		return err
	}
	if _, err := s.waitFor(connectCtx, target, isEvent(dispatch.ServicesReady, target)); err != nil {
		return fmt.Errorf("discover services on %s: %w", target, err)
	}
	spinner.Stop()

	if err := printServices(out, target, s.mgr.Services(), cfg.OutputFormat); err != nil {
		return err
	}

	if err := s.mgr.Disconnect(); err != nil {
		return err
	}
	if _, err := s.waitFor(connectCtx, "", isEvent(dispatch.Disconnected, target)); err != nil {
		return fmt.Errorf("disconnect %s: %w", target, err)
	}
	progress("Disconnected from %s", target)
	return nil
}

// scanFor scans until address is admitted and returns it in registry form
func scanFor(ctx context.Context, s *session, address string) (string, error) {
	if err := s.mgr.StartScan(); err != nil {
		return "", err
	}
	defer func() {
		if err := s.mgr.StopScan(); err != nil {
			s.logger.WithError(err).Warn("Failed to stop scan")
		}
	}()

	if known, ok := lookupAddress(s.mgr.Peripherals(), address); ok {
		return known, nil
	}

	scanCtx, cancel := context.WithTimeout(ctx, s.cfg.ScanTimeout)
	defer cancel()

	ev, err := s.waitFor(scanCtx, "", func(ev dispatch.Event) bool {
		return ev.Kind == dispatch.DeviceDiscovered && strings.EqualFold(ev.Address, address)
	})
	if errors.Is(err, context.DeadlineExceeded) {
		return "", fmt.Errorf("%s: %w", address, ErrDeviceNotSeen)
	}
	if err != nil {
		return "", err
	}
	return ev.Address, nil
}

// lookupAddress finds address among peripherals, ignoring case
func lookupAddress(peripherals []device.Peripheral, address string) (string, bool) {
	for _, p := range peripherals {
		if strings.EqualFold(p.Address, address) {
			return p.Address, true
		}
	}
	return "", false
}
