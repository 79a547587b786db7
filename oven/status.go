package main

import (
	"fmt"

	"fyne.io/fyne/v2/widget"

	"github.com/itohio/gooven/pkg/channel"
	"github.com/itohio/gooven/pkg/supervisor"
)

// channelImportance maps a channel to a button style: danger when its thermocouple is
// faulted, highlighted once it holds the band, neutral otherwise.
func channelImportance(s channel.Snapshot) widget.Importance {
	switch {
	case s.Faulted:
		return widget.DangerImportance
	case s.InBand():
		return widget.HighImportance
	default:
		return widget.MediumImportance
	}
}

// channelLabel is the status button text.
func channelLabel(s channel.Snapshot) string {
	if s.Faulted {
		return s.Name + ": fault"
	}
	if s.Target == channel.UnsetTarget {
		return fmt.Sprintf("%s: %s°C", s.Name, s.Temperature)
	}
	return fmt.Sprintf("%s: %s/%.1f°C", s.Name, s.Temperature, s.Target)
}

func sampleLabel(s *channel.SensorSnapshot) string {
	if s == nil || s.Faulted {
		return "Sample: fault"
	}
	return fmt.Sprintf("Sample: %s°C", s.Temperature)
}

// updateStatus refreshes the status buttons. Runs on the Fyne thread.
func updateStatus(state *appState, c supervisor.Cycle) {
	for i, ch := range c.Channels {
		if i >= len(state.statusBtn) {
			break
		}
		updateStatusButton(state.statusBtn[i], channelLabel(ch), channelImportance(ch))
	}
	if state.sampleLbl != nil {
		state.sampleLbl.SetText(sampleLabel(c.Sample))
	}
}

// updateStatusButton only refreshes when something changed.
func updateStatusButton(btn *widget.Button, text string, importance widget.Importance) {
	if btn.Text == text && btn.Importance == importance {
		return
	}
	btn.Text = text
	btn.Importance = importance
	btn.Refresh()
}
