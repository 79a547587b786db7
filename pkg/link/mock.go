package link

import (
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/itohio/gooven/pkg/config"
)

// Mock simulates the oven controller for testing and development. It speaks the same
// line protocol as the real sketch: for every channel a measurement line followed by
// output, proportional and integral lines, then the sample thermocouple if enabled.
type Mock struct {
	cfg    config.MockConfig
	dt     time.Duration
	sample bool

	mu       sync.Mutex
	closed   bool
	channels []mockChannel
	sampleT  float64
	queue    []string
	cycle    int
	lastEmit time.Time
	frames   [][]byte
	sleep    func(time.Duration)
}

// mockChannel is the controller-side state of one heater.
type mockChannel struct {
	params       Params
	configured   bool
	temperature  float64
	proportional float64
	integral     float64
	output       float64
}

// NewMock creates a simulated controller with the given channel count and cycle interval.
// cfg is copied; later changes to it apply only to mocks created afterwards.
func NewMock(cfg *config.MockConfig, channels int, dt time.Duration, sampleSensor bool) *Mock {
	mc := config.MockConfig{
		Ambient:    22.0,
		HeatRate:   0.8,
		LossRate:   0.01,
		NoiseLevel: 0.05,
	}
	if cfg != nil {
		mc = *cfg
	}
	if dt <= 0 {
		dt = time.Second
	}

	m := &Mock{
		cfg:      mc,
		dt:       dt,
		sample:   sampleSensor,
		channels: make([]mockChannel, channels),
		sampleT:  mc.Ambient,
		sleep:    time.Sleep,
	}
	for i := range m.channels {
		m.channels[i].temperature = mc.Ambient
	}
	return m
}

// WriteCommand decodes a configuration frame. A frame for the wrong number of channels
// is rejected the way a real transport failure would be.
func (m *Mock) WriteCommand(payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return &WriteError{Err: ErrClosed}
	}

	params, err := ParseFrame(payload)
	if err != nil {
		return &WriteError{Err: err}
	}
	if len(params) != len(m.channels) {
		return &WriteError{Err: fmt.Errorf("frame carries %d channels, controller has %d", len(params), len(m.channels))}
	}

	for i, p := range params {
		m.channels[i].params = p
		m.channels[i].configured = true
	}
	m.frames = append(m.frames, append([]byte(nil), payload...))
	return nil
}

// ReadLine returns the next protocol line, simulating a new measurement cycle when the
// previous one has been fully consumed.
func (m *Mock) ReadLine(timeout time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return "", &ReadError{Err: ErrClosed}
	}

	if len(m.queue) == 0 {
		if wait := m.untilNextCycle(); wait > 0 {
			if wait > timeout {
				m.sleep(timeout)
				return "", &TimeoutError{Timeout: timeout}
			}
			m.sleep(wait)
		}
		m.step()
	}

	line := m.queue[0]
	m.queue = m.queue[1:]
	return line, nil
}

// Close stops the simulated controller.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.queue = nil
	return nil
}

// Frames returns copies of every frame received so far.
func (m *Mock) Frames() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([][]byte, len(m.frames))
	for i, f := range m.frames {
		result[i] = append([]byte(nil), f...)
	}
	return result
}

// untilNextCycle returns how long to wait before the next cycle may be emitted.
func (m *Mock) untilNextCycle() time.Duration {
	if m.cfg.Period <= 0 || m.lastEmit.IsZero() {
		return 0
	}
	return time.Until(m.lastEmit.Add(m.cfg.Period))
}

// step advances the thermal model by one interval and queues the cycle's lines.
func (m *Mock) step() {
	m.cycle++
	m.lastEmit = time.Now()
	dt := m.dt.Seconds()

	var sum float64
	for i := range m.channels {
		ch := &m.channels[i]
		m.control(ch, dt)

		// Thermal response: heater input minus Newtonian loss towards ambient
		ch.temperature += dt * (m.cfg.HeatRate*ch.output/100 - m.cfg.LossRate*(ch.temperature-m.cfg.Ambient))
		sum += ch.temperature

		measured := ch.temperature + m.noise(i)
		if m.cfg.FaultEvery > 0 && i == 0 && m.cycle%m.cfg.FaultEvery == 0 {
			m.queue = append(m.queue, NaNToken)
		} else {
			m.queue = append(m.queue, formatLine(measured))
		}
		m.queue = append(m.queue,
			formatLine(ch.output),
			formatLine(ch.proportional),
			formatLine(ch.integral),
		)
	}

	if m.sample {
		// The sample sits inside the oven and lags the heaters
		mean := sum / float64(len(m.channels))
		m.sampleT += dt * 0.05 * (mean - m.sampleT)
		m.queue = append(m.queue, formatLine(m.sampleT+m.noise(len(m.channels))))
	}
}

// control runs the controller's proportional-band PI law for one channel.
func (m *Mock) control(ch *mockChannel, dt float64) {
	if !ch.configured || ch.params.Band <= 0 {
		ch.proportional, ch.integral, ch.output = 0, 0, 0
		return
	}

	ch.proportional = (ch.params.Setpoint - ch.temperature) / ch.params.Band * 100
	if ch.params.IntegralTime > 0 {
		ch.integral += ch.proportional * dt * 1000 / ch.params.IntegralTime
		ch.integral = clamp(ch.integral, 0, 100) // anti-windup
	}
	ch.output = clamp(ch.proportional+ch.integral, 0, 100)
}

// noise is a deterministic pseudo noise so runs are reproducible.
func (m *Mock) noise(idx int) float64 {
	phase := float64(m.cycle)*0.7 + float64(idx)*1.3
	return (math.Sin(phase) + math.Cos(phase*1.7)) * m.cfg.NoiseLevel * 0.5
}

func formatLine(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
