package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/blelink/pkg/config"
)

type scanFlags struct {
	duration time.Duration
	prefix   string
	format   string
}

// apply layers command flags over cfg and validates the result
func (f *scanFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	if f.duration > 0 {
		cfg.ScanTimeout = f.duration
	}
	if cmd.Flags().Changed("prefix") {
		cfg.NameFilter = f.prefix
	}
	if f.format != "" {
		cfg.OutputFormat = f.format
	}
	return cfg.Validate()
}

func newScanCmd() *cobra.Command {
	flags := &scanFlags{}

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan for BLE peripherals",
		Long: `Scan for Bluetooth Low Energy peripherals and print every address seen.

Each address is reported once per scan. With --prefix only peripherals whose
advertised name starts with the prefix are kept. The scan ends after
--duration or on Ctrl+C; results gathered so far are printed either way.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, flags)
		},
	}

	cmd.Flags().DurationVarP(&flags.duration, "duration", "d", 0, "Scan duration (default from config, 10s)")
	cmd.Flags().StringVarP(&flags.prefix, "prefix", "p", "", "Only keep peripherals whose name starts with this prefix")
	cmd.Flags().StringVarP(&flags.format, "format", "f", "", "Output format (table, json)")

	return cmd
}

func runScan(cmd *cobra.Command, flags *scanFlags) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := flags.apply(cmd, cfg); err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true
	logger := configureLogger(cmd, cfg)

	// Ctrl+C ends the scan early but still prints what was found
	sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openSession(sigCtx, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.mgr.StartScan(); err != nil {
		return err
	}

	progress := startProgress(cmd.ErrOrStderr(), func(w io.Writer) *ProgressPrinter {
		return NewCountdownProgressPrinter(w, "Scanning for BLE devices", "Scanning", cfg.ScanTimeout)
	})
	ctx, cancel := context.WithTimeout(sigCtx, cfg.ScanTimeout)
	defer cancel()
	<-ctx.Done()
	progress.Stop()

	if err := s.mgr.StopScan(); err != nil {
		logger.WithError(err).Warn("Failed to stop scan")
	}
	if sigCtx.Err() != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "Scan interrupted")
	}

	return printPeripherals(cmd.OutOrStdout(), s.mgr.Peripherals(), cfg.OutputFormat)
}
