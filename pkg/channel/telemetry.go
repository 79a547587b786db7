package channel

import (
	"math"
	"strconv"
	"strings"
)

// faultToken is what the controller prints for an unreadable thermocouple.
const faultToken = "nan"

// Telemetry is either a valid reading or the fault marker.
// The zero value is the fault marker.
type Telemetry struct {
	value float64
	valid bool
}

// FaultMarker replaces values that cannot be trusted.
var FaultMarker = Telemetry{}

// Valid wraps a trusted value.
func Valid(v float64) Telemetry {
	return Telemetry{value: v, valid: true}
}

// ParseTelemetry parses one protocol line; anything that is not a finite number
// becomes the fault marker.
func ParseTelemetry(raw string) Telemetry {
	v, err := parseReading(raw)
	if err != nil {
		return FaultMarker
	}
	return Valid(v)
}

// Value returns the value and whether it is valid.
func (t Telemetry) Value() (float64, bool) {
	return t.value, t.valid
}

// IsFaulted reports whether t is the fault marker.
func (t Telemetry) IsFaulted() bool {
	return !t.valid
}

// Or returns the value, or def for the fault marker.
func (t Telemetry) Or(def float64) float64 {
	if !t.valid {
		return def
	}
	return t.value
}

// String formats the value with two decimals, or "nan" for the fault marker.
func (t Telemetry) String() string {
	if !t.valid {
		return faultToken
	}
	return strconv.FormatFloat(t.value, 'f', 2, 64)
}

// parseReading accepts finite decimal numbers only.
func parseReading(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if strings.EqualFold(s, faultToken) {
		return 0, errFaultToken
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errNotFinite
	}
	return v, nil
}
