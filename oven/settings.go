package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"

	"github.com/itohio/gooven/pkg/link"
	"github.com/itohio/gooven/pkg/setpoint"
)

// showSettingsDialog displays the settings dialog.
func showSettingsDialog(state *appState) {
	tabs := container.NewAppTabs(
		createSetpointsTab(state),
		createSerialTab(state),
		createMockTab(state),
	)

	content := container.NewBorder(nil, nil, nil, nil, tabs)
	d := dialog.NewCustom("Settings", "Close", content, state.window)
	d.Resize(fyne.NewSize(600, 500))
	d.Show()
}

// setpointRow holds the entries of one channel.
type setpointRow struct {
	target, band, integral *widget.Entry
}

// createSetpointsTab edits targets, bands and integral times. Changes are saved to the
// setpoint file and apply on the next cycle.
func createSetpointsTab(state *appState) *container.TabItem {
	o := state.oven
	rows := make([]setpointRow, len(o.cfg.Channels))
	items := make([]*widget.FormItem, 0, 3*len(o.cfg.Channels))

	current, err := o.file.Setpoints(len(o.cfg.Channels))
	if err != nil {
		o.log.Warn().Err(err).Msg("setpoint file unreadable, form starts empty")
	}

	for i, ch := range o.cfg.Channels {
		sp, ok := current.Values[i]
		row := setpointRow{
			target:   widget.NewEntry(),
			band:     widget.NewEntry(),
			integral: widget.NewEntry(),
		}
		if ok {
			row.target.SetText(formatNumber(sp.Target))
		}
		row.band.SetText(formatNumber(orDefault(sp.Band, ch.Band)))
		row.integral.SetText(formatNumber(orDefault(sp.IntegralTime, ch.IntegralTime)))
		rows[i] = row

		items = append(items,
			&widget.FormItem{Text: ch.Name + " target (°C)", Widget: row.target},
			&widget.FormItem{Text: ch.Name + " band (°C)", Widget: row.band},
			&widget.FormItem{Text: ch.Name + " integral time (s)", Widget: row.integral},
		)
	}

	form := &widget.Form{
		Items: items,
		OnSubmit: func() {
			entries, err := parseSetpointRows(rows)
			if err != nil {
				dialog.ShowError(err, state.window)
				return
			}
			if err := o.file.Save(entries); err != nil {
				dialog.ShowError(fmt.Errorf("failed to save setpoints: %w", err), state.window)
			}
		},
	}

	return container.NewTabItem("Setpoints", container.NewVScroll(form))
}

// parseSetpointRows validates every row before anything is applied.
func parseSetpointRows(rows []setpointRow) ([]setpoint.Entry, error) {
	entries := make([]setpoint.Entry, len(rows))
	for i, row := range rows {
		var e setpoint.Entry
		var err error
		if e.Target, err = parseNumber(row.target.Text); err != nil {
			return nil, &setpoint.ParseError{Channel: i, Field: "target", Err: err}
		}
		if e.Band, err = parseNumber(row.band.Text); err != nil {
			return nil, &setpoint.ParseError{Channel: i, Field: "band", Err: err}
		}
		if e.IntegralTime, err = parseNumber(row.integral.Text); err != nil {
			return nil, &setpoint.ParseError{Channel: i, Field: "integral_time", Err: err}
		}
		if err := e.Validate(); err != nil {
			var perr *setpoint.ParseError
			if errors.As(err, &perr) {
				perr.Channel = i
			}
			return nil, err
		}
		if _, err := link.Encode(e.Target); err != nil {
			return nil, &setpoint.ParseError{Channel: i, Field: "target", Err: err}
		}
		entries[i] = e
	}
	return entries, nil
}

// createSerialTab selects the serial port. The change takes effect on the next start.
func createSerialTab(state *appState) *container.TabItem {
	cfg := state.oven.cfg

	ports, err := link.Ports()
	portOptions := []string{}
	if err == nil {
		for _, port := range ports {
			portOptions = append(portOptions, port.Name)
		}
	}
	if cfg.Serial.Port != "" && !contains(portOptions, cfg.Serial.Port) {
		portOptions = append(portOptions, cfg.Serial.Port)
	}

	portSelect := widget.NewSelect(portOptions, nil)
	portSelect.SetSelected(cfg.Serial.Port)

	baudEntry := widget.NewEntry()
	baudEntry.SetText(strconv.Itoa(cfg.Serial.BaudRate))

	timeoutEntry := widget.NewEntry()
	timeoutEntry.SetText(cfg.Serial.ReadTimeout.String())

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Serial Port", Widget: portSelect},
			{Text: "Baud Rate", Widget: baudEntry},
			{Text: "Read Timeout", Widget: timeoutEntry},
		},
		OnSubmit: func() {
			if portSelect.Selected != "" {
				cfg.Serial.Port = portSelect.Selected
			}
			if baud, err := strconv.Atoi(baudEntry.Text); err == nil && baud > 0 {
				cfg.Serial.BaudRate = baud
			}
			if d, err := time.ParseDuration(timeoutEntry.Text); err == nil && d > 0 {
				cfg.Serial.ReadTimeout = d
			}
			saveConfig(state)
		},
	}

	return container.NewTabItem("Serial", form)
}

// createMockTab edits the simulated controller. The change takes effect on the next start.
func createMockTab(state *appState) *container.TabItem {
	cfg := state.oven.cfg

	ambientEntry := widget.NewEntry()
	ambientEntry.SetText(formatNumber(cfg.Mock.Ambient))

	heatRateEntry := widget.NewEntry()
	heatRateEntry.SetText(formatNumber(cfg.Mock.HeatRate))

	lossRateEntry := widget.NewEntry()
	lossRateEntry.SetText(formatNumber(cfg.Mock.LossRate))

	noiseEntry := widget.NewEntry()
	noiseEntry.SetText(formatNumber(cfg.Mock.NoiseLevel))

	faultEntry := widget.NewEntry()
	faultEntry.SetText(strconv.Itoa(cfg.Mock.FaultEvery))

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Ambient (°C)", Widget: ambientEntry},
			{Text: "Heat Rate (°C/s)", Widget: heatRateEntry},
			{Text: "Loss Rate (1/s)", Widget: lossRateEntry},
			{Text: "Noise Level (°C)", Widget: noiseEntry},
			{Text: "Fault Every (cycles, 0=never)", Widget: faultEntry},
		},
		OnSubmit: func() {
			if v, err := parseNumber(ambientEntry.Text); err == nil {
				cfg.Mock.Ambient = v
			}
			if v, err := parseNumber(heatRateEntry.Text); err == nil {
				cfg.Mock.HeatRate = v
			}
			if v, err := parseNumber(lossRateEntry.Text); err == nil {
				cfg.Mock.LossRate = v
			}
			if v, err := parseNumber(noiseEntry.Text); err == nil {
				cfg.Mock.NoiseLevel = v
			}
			if v, err := strconv.Atoi(faultEntry.Text); err == nil && v >= 0 {
				cfg.Mock.FaultEvery = v
			}
			saveConfig(state)
		},
	}

	return container.NewTabItem("Mock", form)
}

func saveConfig(state *appState) {
	if err := state.oven.cfg.Save(state.oven.configPath); err != nil {
		dialog.ShowError(fmt.Errorf("failed to save config: %w", err), state.window)
		return
	}
	dialog.ShowInformation("Settings", "Saved. Restart to apply.", state.window)
}

func parseNumber(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func orDefault(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
