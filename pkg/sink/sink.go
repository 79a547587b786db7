// Package sink contains consumers of supervisor cycles: the operator console report,
// per-channel data logs and the fan-out used to combine them.
package sink

import (
	"context"
	"errors"

	"github.com/itohio/gooven/pkg/supervisor"
)

// Ensure sinks implement supervisor.Sink.
var (
	_ supervisor.Sink = Multi(nil)
	_ supervisor.Sink = (*Console)(nil)
	_ supervisor.Sink = (*DataLog)(nil)
)

// Archiver receives finished data log files.
type Archiver interface {
	Archive(ctx context.Context, paths []string) error
}

// Multi publishes to every sink in order. All sinks are called even when one fails;
// the returned error joins every failure.
type Multi []supervisor.Sink

// Publish fans c out to all sinks.
func (m Multi) Publish(c supervisor.Cycle) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Publish(c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
