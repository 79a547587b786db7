// Package setpoint delivers operator-requested targets to the supervisor.
package setpoint

import (
	"fmt"
	"sync"
)

// Setpoint is what the operator asked for on one channel. Band and IntegralTime
// are optional overrides of the configured values.
type Setpoint struct {
	Target       float64
	Band         *float64
	IntegralTime *float64
}

// Result is one read of a source. Values holds only channels that parsed cleanly;
// every rejected channel has an entry in Errors.
type Result struct {
	Values map[int]Setpoint
	Errors []*ParseError
}

// Source provides setpoints for channels 0..channels-1.
// A returned error means the whole source was unreadable.
type Source interface {
	Setpoints(channels int) (Result, error)
}

// Func adapts a function to Source.
type Func func(channels int) (Result, error)

// Setpoints calls f.
func (f Func) Setpoints(channels int) (Result, error) {
	return f(channels)
}

// ParseError reports a malformed entry for one channel; other channels are unaffected.
type ParseError struct {
	Channel int
	Line    int // 0 when unknown
	Field   string
	Err     error
}

func (e *ParseError) Error() string {
	where := fmt.Sprintf("channel %d", e.Channel)
	if e.Line > 0 {
		where = fmt.Sprintf("%s (line %d)", where, e.Line)
	}
	if e.Field != "" {
		return fmt.Sprintf("setpoint %s: %s: %v", where, e.Field, e.Err)
	}
	return fmt.Sprintf("setpoint %s: %v", where, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Static is an in-memory source, safe for concurrent use.
type Static struct {
	mu     sync.RWMutex
	values map[int]Setpoint
}

// NewStatic creates an empty static source.
func NewStatic() *Static {
	return &Static{values: make(map[int]Setpoint)}
}

// Set replaces the setpoint of a channel.
func (s *Static) Set(channel int, sp Setpoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[channel] = sp
}

// SetTarget replaces the target of a channel and keeps its overrides.
func (s *Static) SetTarget(channel int, target float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sp := s.values[channel]
	sp.Target = target
	s.values[channel] = sp
}

// Get returns the setpoint of a channel.
func (s *Static) Get(channel int) (Setpoint, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sp, ok := s.values[channel]
	return sp, ok
}

// Setpoints returns every configured channel below channels.
func (s *Static) Setpoints(channels int) (Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := Result{Values: make(map[int]Setpoint, len(s.values))}
	for ch, sp := range s.values {
		if ch >= 0 && ch < channels {
			res.Values[ch] = sp
		}
	}
	return res, nil
}
