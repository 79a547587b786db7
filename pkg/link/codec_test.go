package link

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mustFrame builds a frame from values known to be encodable.
func mustFrame(t *testing.T, params []Params) []byte {
	t.Helper()
	frame, err := Frame(params)
	require.NoError(t, err)
	return frame
}

func TestEncode(t *testing.T) {
	tests := []struct {
		name string
		v    float64
		want int
	}{
		{"exact quarter", 25.25, 101},
		{"rounds down", 72.3, 289},          // 289.2
		{"rounds up", 72.4, 290},            // 289.6
		{"half rounds up", 72.125, 289},     // 288.5
		{"half away from zero", -0.125, -1}, // -0.5
		{"zero", 0, 0},
		{"sentinel", -1, -4},
		{"integral ms", 10000, 40000},
		{"largest", math.MaxInt32 / Scale, math.MaxInt32 - 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Encode(tt.v)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncode_OutOfRange(t *testing.T) {
	tests := []struct {
		name string
		v    float64
	}{
		{"nan", math.NaN()},
		{"+inf", math.Inf(1)},
		{"-inf", math.Inf(-1)},
		{"huge", 1e300},
		{"just above int32", math.MaxInt32/Scale + 1},
		{"just below -int32", -math.MaxInt32/Scale - 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Encode(tt.v)
			assert.ErrorIs(t, err, ErrOutOfRange)
		})
	}
}

func TestQuantize_IsLossy(t *testing.T) {
	// The controller works in quarter degrees, 72.3 cannot survive the trip.
	quantize := func(v float64) float64 {
		q, err := Quantize(v)
		require.NoError(t, err)
		return q
	}
	got := quantize(72.3)
	assert.Equal(t, 72.25, got)
	assert.NotEqual(t, 72.3, got)

	assert.Equal(t, 72.25, quantize(72.125))
	assert.Equal(t, 72.5, quantize(72.375))

	_, err := Quantize(math.NaN())
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestFrame(t *testing.T) {
	tests := []struct {
		name   string
		params []Params
		want   string
	}{
		{
			name:   "single channel",
			params: []Params{{Setpoint: 25, Band: 5, IntegralTime: 10000}},
			want:   "100,20,40000\n",
		},
		{
			name: "two channels in index order",
			params: []Params{
				{Setpoint: 72.3, Band: 2.5, IntegralTime: 1000},
				{Setpoint: -1, Band: 0, IntegralTime: 0},
			},
			want: "289,10,4000,-4,0,0\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, string(mustFrame(t, tt.params)))
		})
	}
}

func TestFrame_RejectsUnencodable(t *testing.T) {
	tests := []struct {
		name   string
		params []Params
		field  string
	}{
		{"nan setpoint", []Params{{Setpoint: math.NaN(), Band: 5}}, "setpoint"},
		{"inf band", []Params{{Setpoint: 25, Band: math.Inf(1)}}, "band"},
		{"overflow integral on second channel", []Params{
			{Setpoint: 25, Band: 5, IntegralTime: 10000},
			{Setpoint: 25, Band: 5, IntegralTime: 1e12},
		}, "integral_time"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := Frame(tt.params)
			assert.Nil(t, frame)
			require.ErrorIs(t, err, ErrOutOfRange)

			var ferr *FieldError
			require.ErrorAs(t, err, &ferr)
			assert.Equal(t, tt.field, ferr.Field)
		})
	}
}

func TestParams_Check(t *testing.T) {
	assert.NoError(t, Params{Setpoint: 25, Band: 5, IntegralTime: 10000}.Check())
	assert.ErrorIs(t, Params{Setpoint: 1e300}.Check(), ErrOutOfRange)
}

func TestParseFrame(t *testing.T) {
	params := []Params{
		{Setpoint: 25.25, Band: 5, IntegralTime: 10000},
		{Setpoint: 100.5, Band: 2.75, IntegralTime: 2500},
	}

	got, err := ParseFrame(mustFrame(t, params))
	require.NoError(t, err)
	assert.Equal(t, params, got)
}

func TestParseFrame_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		frame string
	}{
		{"empty", ""},
		{"only newline", "\n"},
		{"wrong field count", "100,20\n"},
		{"non-numeric", "100,abc,40000\n"},
		{"float field", "100.5,20,40000\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFrame([]byte(tt.frame))
			assert.Error(t, err)
		})
	}
}
