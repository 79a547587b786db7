package supervisor

import (
	"fmt"
	"time"

	"github.com/itohio/gooven/pkg/channel"
)

// Cycle is what the supervisor publishes after every completed poll.
// It only holds copies and may be kept by sinks.
type Cycle struct {
	Seq      int
	Time     time.Time     // wall clock at the end of the cycle
	Elapsed  time.Duration // seq * dt
	Pushed   bool          // a configuration frame was written this cycle
	Channels []channel.Snapshot
	Sample   *channel.SensorSnapshot // nil when the sample thermocouple is disabled
}

// Sink consumes published cycles. Implementations must not block for long: they run
// inline on the supervisor goroutine.
type Sink interface {
	Publish(c Cycle) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(c Cycle) error

// Publish calls f.
func (f SinkFunc) Publish(c Cycle) error {
	return f(c)
}

// SinkError reports a failed or panicking sink. The loop logs it and continues.
type SinkError struct {
	Seq int
	Err error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("sink failed on cycle %d: %v", e.Seq, e.Err)
}

func (e *SinkError) Unwrap() error {
	return e.Err
}
