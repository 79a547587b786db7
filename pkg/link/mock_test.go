package link

import (
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/itohio/gooven/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMock(channels int, sample bool) *Mock {
	cfg := &config.MockConfig{
		Ambient:  20,
		HeatRate: 1,
		LossRate: 0.01,
	}
	m := NewMock(cfg, channels, time.Second, sample)
	m.sleep = func(time.Duration) {}
	return m
}

func readCycle(t *testing.T, m *Mock, lines int) []string {
	t.Helper()
	result := make([]string, 0, lines)
	for range lines {
		line, err := m.ReadLine(time.Second)
		require.NoError(t, err)
		result = append(result, line)
	}
	return result
}

func TestMock_LineLayout(t *testing.T) {
	m := newTestMock(2, true)

	lines := readCycle(t, m, 2*4+1)
	for i, line := range lines {
		_, err := strconv.ParseFloat(line, 64)
		assert.NoError(t, err, "line %d = %q", i, line)
	}

	// Unconfigured controller keeps its heaters off.
	assert.Equal(t, "0.00", lines[1])
	assert.Equal(t, "0.00", lines[5])
	assert.Empty(t, m.queue)
}

func TestMock_HeatsTowardsSetpoint(t *testing.T) {
	m := newTestMock(1, false)
	require.NoError(t, m.WriteCommand(mustFrame(t, []Params{{Setpoint: 60, Band: 5, IntegralTime: 10000}})))

	var first, last float64
	for i := range 30 {
		lines := readCycle(t, m, 4)
		temp, err := strconv.ParseFloat(lines[0], 64)
		require.NoError(t, err)
		output, err := strconv.ParseFloat(lines[1], 64)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, output, 0.0)
		assert.LessOrEqual(t, output, 100.0)
		if i == 0 {
			first = temp
		}
		last = temp
	}
	assert.Greater(t, last, first)
}

func TestMock_FaultInjection(t *testing.T) {
	m := newTestMock(2, false)
	m.cfg.FaultEvery = 2

	cycle1 := readCycle(t, m, 8)
	cycle2 := readCycle(t, m, 8)

	assert.NotEqual(t, NaNToken, cycle1[0])
	assert.Equal(t, NaNToken, cycle2[0])
	assert.NotEqual(t, NaNToken, cycle2[4], "only channel 0 faults")
}

func TestMock_RejectsWrongChannelCount(t *testing.T) {
	m := newTestMock(2, false)

	err := m.WriteCommand(mustFrame(t, []Params{{Setpoint: 60, Band: 5, IntegralTime: 10000}}))
	var we *WriteError
	assert.True(t, errors.As(err, &we))
	assert.Empty(t, m.Frames())
}

func TestMock_RecordsFrames(t *testing.T) {
	m := newTestMock(1, false)
	frame := mustFrame(t, []Params{{Setpoint: 30, Band: 5, IntegralTime: 10000}})
	require.NoError(t, m.WriteCommand(frame))

	frames := m.Frames()
	require.Len(t, frames, 1)
	assert.Equal(t, frame, frames[0])
}

func TestMock_PacingTimeout(t *testing.T) {
	m := newTestMock(1, false)
	m.cfg.Period = time.Hour

	readCycle(t, m, 4)
	_, err := m.ReadLine(10 * time.Millisecond)
	assert.True(t, errors.Is(err, ErrTimeout))
}

func TestMock_Closed(t *testing.T) {
	m := newTestMock(1, false)
	require.NoError(t, m.Close())

	_, err := m.ReadLine(time.Second)
	assert.True(t, errors.Is(err, ErrClosed))
	assert.True(t, errors.Is(m.WriteCommand([]byte("1,2,3\n")), ErrClosed))
}

func TestMock_CopiesConfig(t *testing.T) {
	cfg := &config.MockConfig{Ambient: 20, HeatRate: 1, LossRate: 0.01}
	m := NewMock(cfg, 1, time.Second, false)
	m.sleep = func(time.Duration) {}

	// Edits after construction, as the settings window makes, belong to the next mock.
	cfg.Ambient = 80
	cfg.FaultEvery = 1
	cfg.Period = time.Hour

	lines := readCycle(t, m, 4)
	assert.Equal(t, "20.00", lines[0])

	lines = readCycle(t, m, 4)
	assert.NotEqual(t, NaNToken, lines[0])
}

func TestMock_ConfigEditsDoNotRace(t *testing.T) {
	cfg := &config.MockConfig{Ambient: 20, HeatRate: 1, LossRate: 0.01}
	m := NewMock(cfg, 1, time.Second, false)
	m.sleep = func(time.Duration) {}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := range 100 {
			cfg.Ambient = float64(i)
		}
	}()
	for range 100 {
		_, err := m.ReadLine(time.Second)
		require.NoError(t, err)
	}
	<-done
}
