package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/srg/blelink/internal/bledb"
	"github.com/srg/blelink/internal/device"
	"github.com/srg/blelink/pkg/config"
	"golang.org/x/term"
)

// palette colors table output, but only when writing to a terminal
type palette struct {
	header *color.Color
	name   *color.Color
	dim    *color.Color
	event  *color.Color
	fail   *color.Color
}

func newPalette(w io.Writer) palette {
	p := palette{
		header: color.New(color.Bold),
		name:   color.New(color.FgGreen),
		dim:    color.New(color.Faint),
		event:  color.New(color.FgCyan),
		fail:   color.New(color.FgRed),
	}
	enabled := isTerminal(w)
	for _, c := range []*color.Color{p.header, p.name, p.dim, p.event, p.fail} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// peripheralJSON is the stable JSON shape of a scan result
type peripheralJSON struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	RSSI    int    `json:"rssi"`
}

func printPeripherals(w io.Writer, peripherals []device.Peripheral, format string) error {
	if format == config.FormatJSON {
		out := make([]peripheralJSON, len(peripherals))
		for i, p := range peripherals {
			out[i] = peripheralJSON{Address: p.Address, Name: p.Name, RSSI: p.RSSI}
		}
		return writeJSON(w, out)
	}

	if len(peripherals) == 0 {
		fmt.Fprintln(w, "No devices discovered")
		return nil
	}

	pal := newPalette(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, pal.header.Sprint("ADDRESS\tNAME\tRSSI"))
	for _, p := range peripherals {
		name := pal.name.Sprint(p.Name)
		if p.Name == "" {
			name = pal.dim.Sprint("(unnamed)")
		}
		fmt.Fprintf(tw, "%s\t%s\t%d dBm\n", p.Address, name, p.RSSI)
	}
	return tw.Flush()
}

// serviceJSON is the stable JSON shape of a discovered service tree
type serviceJSON struct {
	Address  string           `json:"address"`
	Services []device.Service `json:"services"`
}

func printServices(w io.Writer, address string, services []device.Service, format string) error {
	if format == config.FormatJSON {
		return writeJSON(w, serviceJSON{Address: address, Services: services})
	}

	pal := newPalette(w)
	fmt.Fprintf(w, "%s %s\n", pal.header.Sprint("Services of"), address)
	if len(services) == 0 {
		fmt.Fprintln(w, "  (none)")
		return nil
	}
	for _, svc := range services {
		fmt.Fprintf(w, "  %s\n", labelled(pal.name.Sprint(svc.ID), bledb.LookupService(svc.ID), pal))
		for _, attr := range svc.Attributes {
			fmt.Fprintf(w, "    %s\n", labelled(attr.ID, bledb.LookupCharacteristic(attr.ID), pal))
		}
	}
	return nil
}

// labelled appends the assigned name of a well-known identifier
func labelled(id, name string, pal palette) string {
	if name == "" {
		return id
	}
	return id + "  " + pal.dim.Sprint(name)
}

func printAttributes(w io.Writer, serviceID string, attrs []device.Attribute) {
	ids := make([]string, len(attrs))
	for i, a := range attrs {
		ids[i] = a.ID
		if name := bledb.LookupCharacteristic(a.ID); name != "" {
			ids[i] = fmt.Sprintf("%s (%s)", a.ID, name)
		}
	}
	if len(ids) == 0 {
		fmt.Fprintf(w, "%s: (no attributes)\n", serviceID)
		return
	}
	fmt.Fprintf(w, "%s: %s\n", serviceID, strings.Join(ids, ", "))
}

func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
