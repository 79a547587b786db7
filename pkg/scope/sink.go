package scope

import (
	"time"

	"fyne.io/fyne/v2"

	"github.com/itohio/gooven/pkg/supervisor"
)

var _ supervisor.Sink = (*Sink)(nil)

// Sink forwards every cycle to the plots. Updates run on the Fyne thread.
type Sink struct {
	dt       time.Duration
	channels []*PlotWidget
	sample   *PlotWidget
	do       func(func())
	onUpdate func(supervisor.Cycle)
}

// NewSink creates a plot per channel and one for the sample sensor when enabled.
func NewSink(names []string, sample bool, dt time.Duration) *Sink {
	s := &Sink{dt: dt, do: fyne.Do}
	for _, name := range names {
		s.channels = append(s.channels, New(name))
	}
	if sample {
		s.sample = New("Sample")
	}
	return s
}

// Plots returns every plot, channels first.
func (s *Sink) Plots() []*PlotWidget {
	plots := append([]*PlotWidget(nil), s.channels...)
	if s.sample != nil {
		plots = append(plots, s.sample)
	}
	return plots
}

// OnUpdate registers a callback run on the Fyne thread after the plots were updated.
// It must be set before the supervisor starts.
func (s *Sink) OnUpdate(fn func(supervisor.Cycle)) {
	s.onUpdate = fn
}

// Publish converts the cycle and schedules the widget updates.
func (s *Sink) Publish(c supervisor.Cycle) error {
	channels := make([]Series, 0, len(c.Channels))
	for i, ch := range c.Channels {
		if i < len(s.channels) {
			channels = append(channels, ChannelSeries(ch, s.dt))
		}
	}
	var sample *Series
	if s.sample != nil && c.Sample != nil {
		ss := SensorSeries(*c.Sample, s.dt)
		sample = &ss
	}

	s.do(func() {
		for i, series := range channels {
			s.channels[i].Update(series)
		}
		if sample != nil {
			s.sample.Update(*sample)
		}
		if s.onUpdate != nil {
			s.onUpdate(c)
		}
	})
	return nil
}
