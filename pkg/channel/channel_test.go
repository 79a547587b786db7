package channel

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyMeasurement(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantFault bool
		want      float64
	}{
		{"plain", "24.9", false, 24.9},
		{"surrounding whitespace", " 25.10\r\n", false, 25.1},
		{"negative", "-3.5", false, -3.5},
		{"nan token", "nan", true, 0},
		{"upper case nan", "NAN", true, 0},
		{"NaN spelled by strconv", "NaN", true, 0},
		{"infinity", "inf", true, 0},
		{"garbage", "24,9", true, 0},
		{"empty", "", true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(0, "Channel 0", 5, 10, 10)
			err := c.ApplyMeasurement(tt.raw, time.Second)
			if tt.wantFault {
				var sfe *SensorFaultError
				require.True(t, errors.As(err, &sfe))
				assert.Equal(t, "Channel 0", sfe.Sensor)
				assert.True(t, c.Faulted)
				assert.Equal(t, StateFaulted, c.State())
				assert.True(t, c.Temperature.IsFaulted())
				assert.Equal(t, 0, c.History.Len(), "faulted reading must not reach history")
			} else {
				require.NoError(t, err)
				assert.False(t, c.Faulted)
				v, ok := c.Temperature.Value()
				assert.True(t, ok)
				assert.InDelta(t, tt.want, v, 1e-9)
				assert.Equal(t, []float64{tt.want}, c.History.Values())
			}
		})
	}
}

func TestApplyMeasurement_FaultReflectsLatestReading(t *testing.T) {
	c := New(0, "Channel 0", 5, 10, 300)

	var faults []bool
	for i, raw := range []string{"24.9", "nan", "25.1"} {
		_ = c.ApplyMeasurement(raw, time.Duration(i+1)*time.Second)
		faults = append(faults, c.Faulted)
	}

	assert.Equal(t, []bool{false, true, false}, faults)
	assert.Equal(t, []float64{24.9, 25.1}, c.History.Values())
	assert.Equal(t, 2, c.History.Len())
	for _, v := range c.History.Values() {
		assert.False(t, math.IsNaN(v))
	}
}

func TestApplyTelemetry(t *testing.T) {
	c := New(0, "Channel 0", 5, 10, 10)
	require.NoError(t, c.ApplyMeasurement("50", time.Second))

	c.ApplyTelemetry("75.5", "60.25", "15.25")
	assert.Equal(t, Valid(75.5), c.Output)
	assert.Equal(t, Valid(60.25), c.Proportional)
	assert.Equal(t, Valid(15.25), c.Integral)

	// A single bad field only masks itself.
	c.ApplyTelemetry("80", "garbage", "20")
	assert.Equal(t, Valid(80), c.Output)
	assert.True(t, c.Proportional.IsFaulted())
	assert.Equal(t, Valid(20), c.Integral)
}

func TestApplyTelemetry_MaskedWhenFaulted(t *testing.T) {
	c := New(0, "Channel 0", 5, 10, 10)
	c.ApplyTelemetry("1", "2", "3")

	_ = c.ApplyMeasurement("nan", time.Second)
	c.ApplyTelemetry("75.5", "60.25", "15.25")

	assert.Equal(t, FaultMarker, c.Output)
	assert.Equal(t, FaultMarker, c.Proportional)
	assert.Equal(t, FaultMarker, c.Integral)

	// Recovery on the next valid reading.
	require.NoError(t, c.ApplyMeasurement("25", 2*time.Second))
	c.ApplyTelemetry("10", "8", "2")
	assert.Equal(t, Valid(10), c.Output)
}

func TestChannel_Changed(t *testing.T) {
	c := New(0, "Channel 0", 5, 10, 10)
	assert.Equal(t, float64(UnsetTarget), c.Target)
	assert.True(t, c.Changed(), "nothing sent yet")

	c.MarkSent(c.Settings())
	assert.False(t, c.Changed())
	assert.Equal(t, c.Target, c.Sent().Setpoint)

	c.Target = 30
	assert.True(t, c.Changed())
	c.MarkSent(c.Settings())

	c.Band = 2
	assert.True(t, c.Changed(), "band changes are configuration deltas too")
}

func TestSnapshot_IsACopy(t *testing.T) {
	c := New(1, "Channel 1", 5, 10, 10)
	c.Target = 40
	require.NoError(t, c.ApplyMeasurement("39.5", time.Second))
	c.ApplyTelemetry("50", "40", "10")

	snap := c.Snapshot()
	require.NoError(t, c.ApplyMeasurement("39.75", 2*time.Second))

	assert.Equal(t, 1, snap.Index)
	assert.Equal(t, "Channel 1", snap.Name)
	assert.Equal(t, 40.0, snap.Target)
	assert.Equal(t, 10, snap.Window)
	assert.Equal(t, []Point{{At: time.Second, Value: 39.5}}, snap.History)
	assert.Equal(t, Valid(50), snap.Output)
	assert.False(t, snap.Faulted)
}

func TestSnapshot_InBand(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		window int
		target float64
		band   float64
		want   bool
	}{
		{"tail inside", []float64{10, 20, 49, 50, 51, 50}, 8, 50, 5, true},
		{"tail outside", []float64{50, 50, 50, 50, 50, 60}, 8, 50, 5, false},
		{"old excursion ignored", []float64{10, 50, 50, 50}, 8, 50, 5, true},
		{"no band", []float64{50}, 8, 50, 0, false},
		{"no data", nil, 8, 50, 5, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(0, "c", tt.band, 10, tt.window)
			c.Target = tt.target
			for i, v := range tt.values {
				c.History.Append(time.Duration(i)*time.Second, v)
			}
			assert.Equal(t, tt.want, c.Snapshot().InBand())
		})
	}
}

func TestTelemetry(t *testing.T) {
	assert.True(t, FaultMarker.IsFaulted())
	assert.Equal(t, "nan", FaultMarker.String())
	assert.Equal(t, -1.0, FaultMarker.Or(-1))

	v := Valid(12.346)
	assert.False(t, v.IsFaulted())
	assert.Equal(t, "12.35", v.String())
	assert.Equal(t, 12.346, v.Or(-1))

	assert.Equal(t, Valid(3.5), ParseTelemetry("3.5"))
	assert.Equal(t, FaultMarker, ParseTelemetry("nan"))
	assert.Equal(t, FaultMarker, ParseTelemetry("x"))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "normal", StateNormal.String())
	assert.Equal(t, "faulted", StateFaulted.String())
	assert.Equal(t, "unknown", State(42).String())
}
