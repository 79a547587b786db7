// Package supervisor runs the host side of the oven control loop: it keeps the
// controller's setpoints in sync with the operator, polls every channel once per
// cycle and hands the result to the sinks.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/itohio/gooven/pkg/channel"
	"github.com/itohio/gooven/pkg/config"
	"github.com/itohio/gooven/pkg/link"
	"github.com/itohio/gooven/pkg/setpoint"
)

// ErrTerminated is returned by RunCycle once a fatal link error has stopped the supervisor.
var ErrTerminated = errors.New("supervisor terminated")

// State is the process state of the supervisor.
type State int

const (
	// Running means cycles may be run.
	Running State = iota
	// Terminated means a fatal link error occurred; no further link I/O happens.
	Terminated
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// IsFatal reports whether err must stop the loop.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var (
		te *link.TimeoutError
		we *link.WriteError
		re *link.ReadError
	)
	return errors.Is(err, ErrTerminated) ||
		errors.Is(err, link.ErrClosed) ||
		errors.As(err, &te) ||
		errors.As(err, &we) ||
		errors.As(err, &re)
}

// Supervisor owns the channels and drives the link. It is not safe for concurrent use;
// everything runs on the goroutine calling Run or RunCycle.
type Supervisor struct {
	link    link.Link
	source  setpoint.Source
	sink    Sink
	log     zerolog.Logger
	dt      time.Duration
	window  int
	timeout time.Duration
	now     func() time.Time

	channels []*channel.Channel
	sample   *channel.Sensor

	state   State
	seq     int
	elapsed time.Duration
	times   []time.Duration // retained cycle timestamps, oldest first
}

// New creates a supervisor for the channels described by cfg. sink may be nil.
func New(cfg *config.Config, lnk link.Link, src setpoint.Source, sink Sink, log zerolog.Logger) *Supervisor {
	window := cfg.Loop.Window
	if window < 1 {
		window = 1
	}

	s := &Supervisor{
		link:     lnk,
		source:   src,
		sink:     sink,
		log:      log,
		dt:       cfg.Loop.Dt,
		window:   window,
		timeout:  cfg.Serial.ReadTimeout,
		now:      time.Now,
		channels: make([]*channel.Channel, len(cfg.Channels)),
		times:    make([]time.Duration, 0, window+1),
	}
	for i, cc := range cfg.Channels {
		name := cc.Name
		if name == "" {
			name = fmt.Sprintf("Channel %d", i)
		}
		s.channels[i] = channel.New(i, name, cc.Band, cc.IntegralTime, window)
	}
	if cfg.Loop.SampleSensor {
		s.sample = channel.NewSensor("Sample", window)
	}
	return s
}

// State returns the process state.
func (s *Supervisor) State() State {
	return s.state
}

// Channels returns the live channel states.
func (s *Supervisor) Channels() []*channel.Channel {
	return s.channels
}

// Sample returns the sample sensor, or nil when disabled.
func (s *Supervisor) Sample() *channel.Sensor {
	return s.sample
}

// Run executes cycles until ctx is cancelled (returns nil) or a fatal error occurs.
// Cancellation is only observed between cycles.
func (s *Supervisor) Run(ctx context.Context) error {
	s.log.Info().
		Int("channels", len(s.channels)).
		Bool("sample", s.sample != nil).
		Dur("dt", s.dt).
		Int("window", s.window).
		Msg("supervisor started")

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Int("cycles", s.seq).Msg("supervisor stopped")
			return nil
		default:
		}

		if _, err := s.RunCycle(); err != nil {
			if IsFatal(err) {
				return err
			}
			s.log.Warn().Err(err).Int("cycle", s.seq).Msg("cycle failed")
		}
	}
}

// RunCycle performs one refresh, push, poll, trim and publish step.
// Sink failures are logged and never returned.
func (s *Supervisor) RunCycle() (Cycle, error) {
	if s.state == Terminated {
		return Cycle{}, ErrTerminated
	}

	s.refreshTargets()

	pushed, err := s.pushIfChanged()
	if err != nil {
		return Cycle{}, s.terminate(err)
	}

	at := s.elapsed + s.dt
	if err := s.poll(at); err != nil {
		return Cycle{}, s.terminate(err)
	}

	s.seq++
	s.elapsed = at
	s.trim(at)

	c := s.snapshot(pushed)
	if err := s.publish(c); err != nil {
		s.log.Error().Err(err).Int("cycle", c.Seq).Msg("sink error")
	}
	return c, nil
}

func (s *Supervisor) terminate(err error) error {
	s.state = Terminated
	s.log.Error().Err(err).Int("cycle", s.seq+1).Msg("link failure, supervisor terminated")
	return err
}

// refreshTargets reads the operator source. Channels without a usable entry keep
// their previous settings.
func (s *Supervisor) refreshTargets() {
	if s.source == nil {
		return
	}

	res, err := s.source.Setpoints(len(s.channels))
	if err != nil {
		s.log.Warn().Err(err).Msg("setpoint source unreadable, keeping targets")
		return
	}

	for _, perr := range res.Errors {
		s.log.Warn().Err(perr).Int("channel", perr.Channel).Msg("setpoint rejected, keeping target")
	}

	for i, c := range s.channels {
		sp, ok := res.Values[i]
		if !ok {
			continue
		}
		next := channel.Settings{Setpoint: sp.Target, Band: c.Band, IntegralTime: c.IntegralTime}
		if sp.Band != nil {
			next.Band = *sp.Band
		}
		if sp.IntegralTime != nil {
			next.IntegralTime = *sp.IntegralTime
		}
		if err := s.params(next).Check(); err != nil {
			perr := &setpoint.ParseError{Channel: i, Err: err}
			var ferr *link.FieldError
			if errors.As(err, &ferr) {
				perr.Field, perr.Err = ferr.Field, ferr.Err
			}
			s.log.Warn().Err(perr).Int("channel", i).Msg("setpoint rejected, keeping target")
			continue
		}
		c.Target = next.Setpoint
		c.Band = next.Band
		c.IntegralTime = next.IntegralTime
	}
}

// params converts channel settings to wire parameters. The controller counts integral
// time in milliseconds per cycle.
func (s *Supervisor) params(st channel.Settings) link.Params {
	return link.Params{
		Setpoint:     st.Setpoint,
		Band:         st.Band,
		IntegralTime: st.IntegralTime * s.dt.Seconds() * 1000,
	}
}

// pushIfChanged writes one frame for all channels when any channel's settings differ
// from what was last sent. Sent values are only updated after a successful write, and
// then for every channel together.
func (s *Supervisor) pushIfChanged() (bool, error) {
	changed := false
	for _, c := range s.channels {
		if c.Changed() {
			changed = true
			break
		}
	}
	if !changed {
		return false, nil
	}

	settings := make([]channel.Settings, len(s.channels))
	params := make([]link.Params, len(s.channels))
	for i, c := range s.channels {
		settings[i] = c.Settings()
		params[i] = s.params(settings[i])
	}

	// Only configured defaults can get here unencodable; nothing is written then.
	frame, err := link.Frame(params)
	if err != nil {
		s.log.Error().Err(err).Msg("settings cannot be encoded, push skipped")
		return false, nil
	}

	if err := s.link.WriteCommand(frame); err != nil {
		return false, fmt.Errorf("failed to push setpoints: %w", err)
	}

	for i, c := range s.channels {
		c.MarkSent(settings[i])
		s.log.Debug().
			Int("channel", i).
			Float64("setpoint", settings[i].Setpoint).
			Float64("band", settings[i].Band).
			Float64("integral_time", settings[i].IntegralTime).
			Msg("setpoint pushed")
	}
	return true, nil
}

// poll reads every channel in index order, then the sample sensor.
func (s *Supervisor) poll(at time.Duration) error {
	for i, c := range s.channels {
		if err := s.pollChannel(c, at); err != nil {
			return fmt.Errorf("failed to poll channel %d: %w", i, err)
		}
	}

	if s.sample != nil {
		line, err := s.link.ReadLine(s.timeout)
		if err != nil {
			return fmt.Errorf("failed to poll sample sensor: %w", err)
		}
		s.applyMeasurement(s.sample, -1, line, at)
	}
	return nil
}

func (s *Supervisor) pollChannel(c *channel.Channel, at time.Duration) error {
	line, err := s.link.ReadLine(s.timeout)
	if err != nil {
		return err
	}
	s.applyMeasurement(&c.Sensor, c.Index, line, at)

	// Telemetry lines are always consumed to stay aligned with the controller.
	var telemetry [3]string
	for k := range telemetry {
		if telemetry[k], err = s.link.ReadLine(s.timeout); err != nil {
			return err
		}
	}
	c.ApplyTelemetry(telemetry[0], telemetry[1], telemetry[2])
	return nil
}

func (s *Supervisor) applyMeasurement(sensor *channel.Sensor, index int, line string, at time.Duration) {
	wasFaulted := sensor.Faulted
	err := sensor.ApplyMeasurement(line, at)
	switch {
	case err != nil && !wasFaulted:
		s.log.Warn().Err(err).Int("channel", index).Str("sensor", sensor.Name).Msg("sensor fault")
	case err == nil && wasFaulted:
		s.log.Info().Int("channel", index).Str("sensor", sensor.Name).Msg("sensor recovered")
	}
}

// trim records the cycle timestamp and, once more than window timestamps are retained,
// drops the oldest one together with every history point at or before it.
func (s *Supervisor) trim(at time.Duration) {
	s.times = append(s.times, at)
	if len(s.times) <= s.window {
		return
	}

	oldest := s.times[0]
	s.times = append(s.times[:0], s.times[1:]...)
	for _, c := range s.channels {
		c.History.EvictThrough(oldest)
	}
	if s.sample != nil {
		s.sample.History.EvictThrough(oldest)
	}
}

func (s *Supervisor) snapshot(pushed bool) Cycle {
	c := Cycle{
		Seq:      s.seq,
		Time:     s.now(),
		Elapsed:  s.elapsed,
		Pushed:   pushed,
		Channels: make([]channel.Snapshot, len(s.channels)),
	}
	for i, ch := range s.channels {
		c.Channels[i] = ch.Snapshot()
	}
	if s.sample != nil {
		snap := s.sample.Snapshot()
		c.Sample = &snap
	}
	return c
}

// publish calls the sink, turning errors and panics into *SinkError.
func (s *Supervisor) publish(c Cycle) (err error) {
	if s.sink == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = &SinkError{Seq: c.Seq, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	if perr := s.sink.Publish(c); perr != nil {
		return &SinkError{Seq: c.Seq, Err: perr}
	}
	return nil
}
