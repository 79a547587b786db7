package scope

import (
	"time"

	"github.com/itohio/gooven/pkg/channel"
)

// Series is what one plot shows after a cycle.
type Series struct {
	Title     string
	Points    []channel.Point
	Latest    channel.Telemetry
	Faulted   bool
	HasTarget bool
	Target    float64
	Band      float64
	InBand    bool
	Span      time.Duration // full window length
}

// ChannelSeries builds the plot data of a heater channel.
func ChannelSeries(s channel.Snapshot, dt time.Duration) Series {
	return Series{
		Title:     s.Name,
		Points:    s.History,
		Latest:    s.Temperature,
		Faulted:   s.Faulted,
		HasTarget: s.Target != channel.UnsetTarget,
		Target:    s.Target,
		Band:      s.Band,
		InBand:    s.InBand(),
		Span:      time.Duration(s.Window) * dt,
	}
}

// SensorSeries builds the plot data of the sample thermocouple, which has no target.
func SensorSeries(s channel.SensorSnapshot, dt time.Duration) Series {
	return Series{
		Title:   s.Name,
		Points:  s.History,
		Latest:  s.Temperature,
		Faulted: s.Faulted,
		Span:    time.Duration(s.Window) * dt,
	}
}

// YRange returns the vertical axis range. When the recent history stays within the band
// the axis locks to target ± band/2, otherwise it fits the data with a 10% margin.
func YRange(s Series) (lo, hi float64) {
	if s.InBand && s.Band > 0 {
		return s.Target - s.Band/2, s.Target + s.Band/2
	}
	if len(s.Points) == 0 {
		return 0, 1
	}

	lo, hi = s.Points[0].Value, s.Points[0].Value
	for _, p := range s.Points[1:] {
		lo = min(lo, p.Value)
		hi = max(hi, p.Value)
	}

	span := hi - lo
	if span == 0 {
		span = 1
	}
	margin := span * 0.1
	return lo - margin, hi + margin
}

// XRange returns the horizontal axis range in cycle time. It starts at the oldest point
// and spans at least the full window so the trace grows from the left.
func XRange(s Series) (lo, hi time.Duration) {
	if len(s.Points) == 0 {
		return 0, max(s.Span, time.Second)
	}

	lo = s.Points[0].At
	hi = s.Points[len(s.Points)-1].At
	if hi-lo < s.Span {
		hi = lo + s.Span
	}
	if hi == lo {
		hi = lo + time.Second
	}
	return lo, hi
}
