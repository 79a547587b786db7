package main

import (
	"context"
	"sync/atomic"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"github.com/itohio/gooven/pkg/supervisor"
)

// appState holds the window state.
type appState struct {
	oven      *oven
	window    fyne.Window
	statusBtn []*widget.Button
	sampleLbl *widget.Label
}

// runWindow shows the plot window and runs the supervisor in the background. It returns
// when the window is closed, the context is cancelled or the supervisor fails.
func runWindow(ctx context.Context, o *oven) error {
	application := app.NewWithID("com.itohio.gooven")

	window := application.NewWindow("Oven Temperature Control")
	window.Resize(fyne.NewSize(o.cfg.Plot.Width, o.cfg.Plot.Height))
	window.CenterOnScreen()

	state := &appState{oven: o, window: window}

	plots := make([]fyne.CanvasObject, 0, len(o.plots.Plots()))
	for _, p := range o.plots.Plots() {
		plots = append(plots, p)
	}
	columns := 1
	if len(plots) > 1 {
		columns = 2
	}

	window.SetContent(container.NewBorder(
		createToolbar(state),
		nil,
		nil,
		nil,
		container.NewGridWithColumns(columns, plots...),
	))

	o.plots.OnUpdate(func(c supervisor.Cycle) {
		updateStatus(state, c)
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var closed atomic.Bool
	window.SetOnClosed(func() {
		closed.Store(true)
		cancel()
	})

	// Run returns on interrupt, fatal link errors or after the window was closed.
	done := make(chan error, 1)
	go func() {
		done <- o.supervisor.Run(ctx)
		if !closed.Load() {
			fyne.Do(application.Quit)
		}
	}()

	window.ShowAndRun()

	cancel()
	return <-done
}

// createToolbar creates the toolbar with the settings button and one status button per channel.
func createToolbar(state *appState) fyne.CanvasObject {
	settingsBtn := widget.NewButtonWithIcon("", theme.SettingsIcon(), func() {
		showSettingsDialog(state)
	})

	status := container.NewHBox()
	for _, ch := range state.oven.cfg.Channels {
		btn := widget.NewButtonWithIcon(ch.Name, theme.MediaRecordIcon(), func() {
			showSettingsDialog(state)
		})
		state.statusBtn = append(state.statusBtn, btn)
		status.Add(btn)
	}

	if state.oven.cfg.Loop.SampleSensor {
		state.sampleLbl = widget.NewLabel("Sample: -")
		status.Add(state.sampleLbl)
	}

	return container.NewBorder(
		nil,
		nil,
		container.NewHBox(settingsBtn),
		status,
		nil,
	)
}
