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

	"github.com/chzyer/readline"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/blelink/internal/device"
	"github.com/srg/blelink/internal/dispatch"
	"github.com/srg/blelink/internal/groutine"
	"github.com/srg/blelink/internal/lua"
	"github.com/srg/blelink/internal/manager"
)

// scriptQueueSize bounds notifications waiting for the Lua handlers
const scriptQueueSize = 256

var shellCommands = []string{
	"enable", "disable", "scan", "stop", "filter", "devices",
	"connect", "disconnect", "discover", "services", "attrs", "state", "help", "exit",
}

func newShellCmd() *cobra.Command {
	var script string

	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Interactive session over a single link",
		Long: `Start an interactive prompt driving one connection manager.

Notifications (discoveries, connects, disconnects, failures) are printed as
they arrive. With --script, a Lua file is loaded whose on_discover,
on_connected, on_disconnected, on_services and on_error functions receive the
same notifications and may issue commands through the blelink table:

  function on_discover(p)
    if p.name == "Widget-1" then blelink.connect(p.address) end
  end`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShell(cmd, script)
		},
	}
	cmd.Flags().StringVarP(&script, "script", "s", "", "Lua script with notification handlers")
	return cmd
}

func runShell(cmd *cobra.Command, script string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	cmd.SilenceUsage = true

	items := make([]readline.PrefixCompleterInterface, len(shellCommands))
	for i, c := range shellCommands {
		items[i] = readline.PcItem(c)
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "blelink> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    readline.NewPrefixCompleter(items...),
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	logger := cfg.NewLogger()
	logger.SetOutput(rl.Stderr())

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM)
	defer stop()

	var engine *lua.Engine
	var observer device.Observer = newEventPrinter(rl.Stdout())
	if script != "" {
		engine = lua.NewEngine(logger)
		defer engine.Close()

		queued, err := dispatch.NewQueuedObserver(ctx, lua.NewScriptObserver(engine, logger), scriptQueueSize, logger)
		if err != nil {
			return err
		}
		defer queued.Close()
		observer = teeObserver{observer, queued}
	}

	s, err := openSession(ctx, cfg, logger, observer)
	if err != nil {
		return err
	}
	defer s.Close()

	if engine != nil {
		if err := startScript(ctx, engine, s.mgr, script, rl.Stdout(), logger); err != nil {
			return err
		}
	}

	sh := &shell{out: rl.Stdout(), mgr: s.mgr, format: cfg.OutputFormat}
	sh.printHelp()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line, err := rl.Readline()
		if err != nil {
			// EOF or interrupt
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			fmt.Fprintln(sh.out, "Exiting...")
			return nil
		}
		if sh.execute(line) {
			return nil
		}
	}
}

// startScript exposes the manager to Lua, forwards script output and runs the file
func startScript(ctx context.Context, engine *lua.Engine, mgr *manager.Manager, path string, out io.Writer, logger *logrus.Logger) error {
	if err := lua.RegisterAPI(engine, mgr); err != nil {
		return err
	}

	groutine.Go(ctx, "lua-output", func(ctx context.Context) {
		for {
			select {
			case <-ctx.Done():
				return
			case rec, ok := <-engine.Output():
				if !ok {
					return
				}
				fmt.Fprint(out, rec.Content)
				if !strings.HasSuffix(rec.Content, "\n") {
					fmt.Fprintln(out)
				}
			}
		}
	})

	if err := engine.LoadScriptFile(path); err != nil {
		return err
	}
	logger.WithField("script", path).Info("Lua script loaded")
	return nil
}

// shell executes one command line at a time against a manager
type shell struct {
	out    io.Writer
	mgr    *manager.Manager
	format string
}

// execute runs line and reports whether the shell should exit
func (sh *shell) execute(line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false
	}
	cmd, args := strings.ToLower(parts[0]), parts[1:]

	var err error
	switch cmd {
	case "help", "?":
		sh.printHelp()
	case "enable":
		err = sh.mgr.EnableRadio()
	case "disable":
		err = sh.mgr.DisableRadio()
	case "scan":
		err = sh.mgr.StartScan()
	case "stop":
		err = sh.mgr.StopScan()
	case "filter":
		sh.cmdFilter(args)
	case "devices", "ls":
		err = printPeripherals(sh.out, sh.mgr.Peripherals(), sh.format)
	case "connect":
		if len(args) != 1 {
			fmt.Fprintln(sh.out, "usage: connect <address>")
			return false
		}
		addr := args[0]
		if known, ok := lookupAddress(sh.mgr.Peripherals(), addr); ok {
			addr = known
		}
		err = sh.mgr.Connect(addr)
	case "disconnect":
		err = sh.mgr.Disconnect()
	case "discover":
		err = sh.mgr.DiscoverServices()
	case "services":
		addr, _ := sh.mgr.ActiveAddress()
		err = printServices(sh.out, addr, sh.mgr.Services(), sh.format)
	case "attrs":
		if len(args) != 1 {
			fmt.Fprintln(sh.out, "usage: attrs <service>")
			return false
		}
		var attrs []device.Attribute
		if attrs, err = sh.mgr.Attributes(args[0]); err == nil {
			printAttributes(sh.out, args[0], attrs)
		}
	case "state":
		sh.cmdState()
	case "exit", "quit", "q":
		fmt.Fprintln(sh.out, "Exiting...")
		return true
	default:
		fmt.Fprintf(sh.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}

	if err != nil {
		fmt.Fprintf(sh.out, "error: %s\n", FormatUserError(err))
	}
	return false
}

func (sh *shell) cmdFilter(args []string) {
	if len(args) == 0 {
		sh.mgr.ClearNameFilter()
		fmt.Fprintln(sh.out, "Name filter cleared")
		return
	}
	prefix := strings.Join(args, " ")
	sh.mgr.SetNameFilter(prefix)
	fmt.Fprintf(sh.out, "Name filter set to %q (applies to new advertisements)\n", prefix)
}

func (sh *shell) cmdState() {
	radio := "unusable"
	if sh.mgr.IsRadioUsable() {
		radio = "usable"
	}
	scanning := "idle"
	if sh.mgr.IsScanning() {
		scanning = "scanning"
	}
	filter := "none"
	if prefix, ok := sh.mgr.NameFilter(); ok {
		filter = fmt.Sprintf("%q", prefix)
	}

	state := sh.mgr.State().String()
	if addr, ok := sh.mgr.ActiveAddress(); ok {
		state = fmt.Sprintf("%s (%s)", state, addr)
	}
	fmt.Fprintf(sh.out, "radio: %s\nscan: %s\nfilter: %s\nlink: %s\ndevices: %d\n",
		radio, scanning, filter, state, len(sh.mgr.Peripherals()))
}

func (sh *shell) printHelp() {
	fmt.Fprintln(sh.out, `
blelink commands:
  Radio:
    enable             - Power the radio on
    disable            - Power the radio off
    state              - Show radio, scan and link state

  Discovery:
    scan               - Start (or restart) scanning; clears the device list
    stop               - Stop scanning
    filter [prefix]    - Set the name prefix filter, or clear it without argument
    devices            - List peripherals seen in the current scan

  Link:
    connect <address>  - Connect to a scanned peripheral
    disconnect         - Disconnect the active link
    discover           - Discover services of the connected peripheral
    services           - Print the discovered service tree
    attrs <service>    - List the attributes of one service

    help               - Show this help
    exit               - Leave the shell`)
}

// eventPrinter writes notifications as single lines
type eventPrinter struct {
	out io.Writer
	pal palette
}

// newEventPrinter colors output when the process stdout is a terminal;
// readline wraps stdout, so out itself is never an *os.File.
func newEventPrinter(out io.Writer) *eventPrinter {
	return &eventPrinter{out: out, pal: newPalette(os.Stdout)}
}

func (p *eventPrinter) DeviceDiscovered(per device.Peripheral) {
	fmt.Fprintf(p.out, "%s %s %s (%d dBm)\n", p.pal.event.Sprint("[discovered]"), per.Address, p.pal.name.Sprint(per.Name), per.RSSI)
}

func (p *eventPrinter) Connected(address string) {
	fmt.Fprintf(p.out, "%s %s\n", p.pal.event.Sprint("[connected]"), address)
}

func (p *eventPrinter) Disconnected(address string) {
	fmt.Fprintf(p.out, "%s %s\n", p.pal.event.Sprint("[disconnected]"), address)
}

func (p *eventPrinter) ServicesReady(address string) {
	fmt.Fprintf(p.out, "%s %s (type 'services' to list)\n", p.pal.event.Sprint("[services ready]"), address)
}

func (p *eventPrinter) Failed(err error) {
	fmt.Fprintf(p.out, "%s %s\n", p.pal.fail.Sprint("[failed]"), FormatUserError(err))
}
