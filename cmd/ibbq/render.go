package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/srg/ibbq/internal/driver"
	"github.com/srg/ibbq/internal/thermometer"
)

// telemetryRenderer prints driver events for a human. In live mode the probe
// readings share one line that is rewritten on every update; otherwise every
// update is its own line.
type telemetryRenderer struct {
	out  io.Writer
	live bool

	battery  *driver.BatteryUpdated
	lastLine string
	onLine   bool

	probeColor  *color.Color
	statusColor *color.Color
	errorColor  *color.Color
	hintColor   *color.Color
}

func newTelemetryRenderer(out io.Writer, live bool) *telemetryRenderer {
	return &telemetryRenderer{
		out:         out,
		live:        live,
		probeColor:  color.New(color.FgCyan, color.Bold),
		statusColor: color.New(color.FgYellow),
		errorColor:  color.New(color.FgRed),
		hintColor:   color.New(color.FgGreen, color.Bold),
	}
}

// Render prints one event.
func (r *telemetryRenderer) Render(ev driver.Event) {
	switch e := ev.(type) {
	case driver.DevicePaired:
		r.println(r.hintColor.Sprintf("Paired with thermometer %s", e.Address))
		r.println(fmt.Sprintf("Device ID for account linking: %s", e.Address))
	case driver.StatusChanged:
		r.println(r.statusColor.Sprintf("Status: %s -> %s", e.From, e.To))
	case driver.ErrorEvent:
		r.println(r.errorColor.Sprintf("Error (%s): %v", e.Kind, e.Err))
	case driver.TemperatureUpdated:
		r.readings(formatProbes(e, r.probeColor) + r.batterySuffix())
	case driver.BatteryUpdated:
		r.battery = &e
		if r.live && r.onLine {
			// refresh the live line with the new battery level
			line := r.lastLine
			if i := strings.LastIndex(line, "  battery "); i >= 0 {
				line = line[:i]
			}
			r.readings(line + r.batterySuffix())
			return
		}
		if !r.live {
			r.println(strings.TrimSpace(r.batterySuffix()))
		}
	}
}

func (r *telemetryRenderer) readings(line string) {
	r.lastLine = line
	if r.live {
		fmt.Fprint(r.out, clearLineSequence+line)
		r.onLine = true
		return
	}
	fmt.Fprintln(r.out, line)
}

func (r *telemetryRenderer) println(line string) {
	if r.onLine {
		fmt.Fprint(r.out, clearLineSequence)
		r.onLine = false
	}
	fmt.Fprintln(r.out, line)
	if r.live && r.lastLine != "" {
		fmt.Fprint(r.out, r.lastLine)
		r.onLine = true
	}
}

// Finish ends a pending live line.
func (r *telemetryRenderer) Finish() {
	if r.onLine {
		fmt.Fprintln(r.out)
		r.onLine = false
	}
}

func (r *telemetryRenderer) batterySuffix() string {
	if r.battery == nil {
		return ""
	}
	if !r.battery.Valid {
		return "  battery ?"
	}
	return fmt.Sprintf("  battery %.0f%%", r.battery.Percent)
}

func formatProbes(e driver.TemperatureUpdated, c *color.Color) string {
	parts := make([]string, 0, len(e.Probes))
	for _, p := range e.Probes {
		parts = append(parts, formatProbe(p, e.Unit.String(), c))
	}
	return strings.Join(parts, "  ")
}

func formatProbe(p thermometer.ProbeSnapshot, unit string, c *color.Color) string {
	label := fmt.Sprintf("P%d", p.Position)
	if p.Name != "" {
		label += " " + p.Name
	}
	if !p.Present || p.Temperature == nil {
		return label + " --"
	}
	return label + " " + c.Sprintf("%.1f°%s", *p.Temperature, unit)
}
