package link

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	// Scale is the fixed-point factor of the wire protocol: the controller resolves
	// temperatures to a quarter of a degree.
	Scale = 4
	// NaNToken is what the controller prints for a broken thermocouple.
	NaNToken = "nan"
	// MaxEncoded bounds encoded values; the controller parses fields into 32-bit longs.
	MaxEncoded = math.MaxInt32
	// fieldsPerChannel is setpoint, band and integral time.
	fieldsPerChannel = 3
)

// ErrOutOfRange is returned for values the controller cannot represent.
var ErrOutOfRange = errors.New("value out of protocol range")

// Params is the complete parameter set of one channel as transmitted in a frame.
type Params struct {
	Setpoint     float64 // °C
	Band         float64 // °C
	IntegralTime float64 // controller time unit (ms)
}

// Encode rounds v*Scale to the nearest integer, halves away from zero. NaN, infinities
// and values beyond MaxEncoded fail with ErrOutOfRange.
func Encode(v float64) (int, error) {
	n := math.Round(v * Scale)
	if math.IsNaN(n) || n > MaxEncoded || n < -MaxEncoded {
		return 0, fmt.Errorf("%v: %w", v, ErrOutOfRange)
	}
	return int(n), nil
}

// Decode is the inverse of Encode.
func Decode(n int) float64 {
	return float64(n) / Scale
}

// Quantize returns the value the controller will actually use for v.
func Quantize(v float64) (float64, error) {
	n, err := Encode(v)
	if err != nil {
		return 0, err
	}
	return Decode(n), nil
}

// FieldError names the parameter that could not be encoded.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// encode returns the wire values of p in frame order.
func (p Params) encode() ([fieldsPerChannel]int, error) {
	var out [fieldsPerChannel]int
	fields := [fieldsPerChannel]struct {
		name string
		v    float64
	}{
		{"setpoint", p.Setpoint},
		{"band", p.Band},
		{"integral_time", p.IntegralTime},
	}
	for i, f := range fields {
		n, err := Encode(f.v)
		if err != nil {
			return out, &FieldError{Field: f.name, Err: err}
		}
		out[i] = n
	}
	return out, nil
}

// Check reports whether p can be framed.
func (p Params) Check() error {
	_, err := p.encode()
	return err
}

// Frame builds one configuration frame for all channels in index order:
// setpoint,band,integral,setpoint,band,integral,...\n
// Nothing is built when any value cannot be encoded.
func Frame(params []Params) ([]byte, error) {
	var b strings.Builder
	for i, p := range params {
		fields, err := p.encode()
		if err != nil {
			return nil, fmt.Errorf("channel %d: %w", i, err)
		}
		for j, n := range fields {
			if i > 0 || j > 0 {
				b.WriteByte(',')
			}
			b.WriteString(strconv.Itoa(n))
		}
	}
	b.WriteByte('\n')
	return []byte(b.String()), nil
}

// ParseFrame decodes a frame built by Frame.
// Format: setpoint,band,integral[,setpoint,band,integral...]
func ParseFrame(frame []byte) ([]Params, error) {
	line := strings.TrimSpace(string(frame))
	if line == "" {
		return nil, fmt.Errorf("empty frame")
	}

	parts := strings.Split(line, ",")
	if len(parts)%fieldsPerChannel != 0 {
		return nil, fmt.Errorf("invalid frame: expected a multiple of %d comma-separated values, got %d", fieldsPerChannel, len(parts))
	}

	values := make([]float64, len(parts))
	for i, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid frame field %d: %w", i, err)
		}
		values[i] = Decode(n)
	}

	params := make([]Params, 0, len(parts)/fieldsPerChannel)
	for i := 0; i < len(values); i += fieldsPerChannel {
		params = append(params, Params{
			Setpoint:     values[i],
			Band:         values[i+1],
			IntegralTime: values[i+2],
		})
	}
	return params, nil
}
