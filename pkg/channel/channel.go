// Package channel holds the host-side state of each heater channel and of the
// auxiliary sample thermocouple.
package channel

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// UnsetTarget is the target before the operator source has been read.
const UnsetTarget = -1

var (
	errFaultToken = errors.New("controller reported nan")
	errNotFinite  = errors.New("reading is not finite")
)

// SensorFaultError reports a measurement line that could not be used.
type SensorFaultError struct {
	Sensor string
	Raw    string
	Err    error
}

func (e *SensorFaultError) Error() string {
	return fmt.Sprintf("sensor %s: unusable reading %q: %v", e.Sensor, e.Raw, e.Err)
}

func (e *SensorFaultError) Unwrap() error {
	return e.Err
}

// State is the per-channel supervision state.
type State int

const (
	// StateNormal means the last measurement was valid.
	StateNormal State = iota
	// StateFaulted means the last measurement was unusable.
	StateFaulted
)

func (s State) String() string {
	switch s {
	case StateNormal:
		return "normal"
	case StateFaulted:
		return "faulted"
	default:
		return "unknown"
	}
}

// Sensor is a thermocouple without a controller: the sample probe, and the
// measurement part of every heater channel.
type Sensor struct {
	Name        string
	Temperature Telemetry // latest reading, fault marker when unusable
	Faulted     bool      // reflects only the most recent reading
	History     *History
}

// NewSensor creates a sensor with a history of the given capacity.
func NewSensor(name string, window int) *Sensor {
	return &Sensor{
		Name:    name,
		History: NewHistory(window),
	}
}

// ApplyMeasurement parses a measurement line taken at the given cycle time.
// Unusable readings set Faulted and are never appended to the history.
func (s *Sensor) ApplyMeasurement(raw string, at time.Duration) error {
	v, err := parseReading(raw)
	if err != nil {
		s.Faulted = true
		s.Temperature = FaultMarker
		return &SensorFaultError{Sensor: s.Name, Raw: raw, Err: err}
	}

	s.Faulted = false
	s.Temperature = Valid(v)
	s.History.Append(at, v)
	return nil
}

// State returns StateFaulted when the last reading was unusable.
func (s *Sensor) State() State {
	if s.Faulted {
		return StateFaulted
	}
	return StateNormal
}

// Snapshot returns an immutable copy for sinks.
func (s *Sensor) Snapshot() SensorSnapshot {
	return SensorSnapshot{
		Name:        s.Name,
		Temperature: s.Temperature,
		Faulted:     s.Faulted,
		History:     s.History.Points(),
		Window:      s.History.Capacity(),
	}
}

// Settings is the parameter set the controller runs a channel with.
type Settings struct {
	Setpoint     float64 // °C
	Band         float64 // °C
	IntegralTime float64 // seconds
}

// Channel is one heater: operator settings, what was last sent to the controller,
// the measurement history and the controller's telemetry.
type Channel struct {
	Sensor

	Index        int
	Target       float64
	Band         float64
	IntegralTime float64

	Output       Telemetry
	Proportional Telemetry
	Integral     Telemetry

	sent Settings
}

// New creates a channel with the configured band and integral time. The target
// starts at UnsetTarget and nothing counts as sent, so the first cycle pushes.
func New(index int, name string, band, integralTime float64, window int) *Channel {
	return &Channel{
		Sensor:       *NewSensor(name, window),
		Index:        index,
		Target:       UnsetTarget,
		Band:         band,
		IntegralTime: integralTime,
		sent:         Settings{Setpoint: math.NaN(), Band: math.NaN(), IntegralTime: math.NaN()},
	}
}

// ApplyTelemetry overwrites output, proportional and integral terms. When the channel
// is faulted all three become the fault marker regardless of what was read.
func (c *Channel) ApplyTelemetry(output, proportional, integral string) {
	if c.Faulted {
		c.Output = FaultMarker
		c.Proportional = FaultMarker
		c.Integral = FaultMarker
		return
	}
	c.Output = ParseTelemetry(output)
	c.Proportional = ParseTelemetry(proportional)
	c.Integral = ParseTelemetry(integral)
}

// Settings returns the parameters the channel should run with.
func (c *Channel) Settings() Settings {
	return Settings{
		Setpoint:     c.Target,
		Band:         c.Band,
		IntegralTime: c.IntegralTime,
	}
}

// Sent returns the parameters last transmitted to the controller.
func (c *Channel) Sent() Settings {
	return c.sent
}

// MarkSent records s as transmitted.
func (c *Channel) MarkSent(s Settings) {
	c.sent = s
}

// Changed reports whether the desired settings differ from the transmitted ones.
func (c *Channel) Changed() bool {
	return c.Settings() != c.sent
}

// Snapshot returns an immutable copy for sinks.
func (c *Channel) Snapshot() Snapshot {
	return Snapshot{
		SensorSnapshot: c.Sensor.Snapshot(),
		Index:          c.Index,
		Target:         c.Target,
		Band:           c.Band,
		IntegralTime:   c.IntegralTime,
		Sent:           c.sent.Setpoint,
		Output:         c.Output,
		Proportional:   c.Proportional,
		Integral:       c.Integral,
	}
}

// SensorSnapshot is a copy of a sensor's state after a cycle.
type SensorSnapshot struct {
	Name        string
	Temperature Telemetry
	Faulted     bool
	History     []Point
	Window      int
}

// Snapshot is a copy of a channel's state after a cycle.
type Snapshot struct {
	SensorSnapshot

	Index        int
	Target       float64
	Band         float64
	IntegralTime float64
	Sent         float64

	Output       Telemetry
	Proportional Telemetry
	Integral     Telemetry
}

// InBand reports whether every value in the trailing quarter of the window lies within
// target ± band/2. Plots use it to lock the Y axis on the band.
func (s Snapshot) InBand() bool {
	if len(s.History) == 0 || s.Band <= 0 {
		return false
	}
	tail := s.History[len(s.History)-tailLen(len(s.History), s.Window):]
	lo, hi := s.Target-s.Band/2, s.Target+s.Band/2
	for _, p := range tail {
		if p.Value < lo || p.Value > hi {
			return false
		}
	}
	return true
}

// tailLen is a quarter of the window, at least one and at most n.
func tailLen(n, window int) int {
	q := window / 4
	if q < 1 {
		q = 1
	}
	if q > n {
		q = n
	}
	return q
}
