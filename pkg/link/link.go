package link

import (
	"errors"
	"fmt"
	"time"
)

// Link is the half-duplex line protocol to the heater controller (real or mocked).
// Every line the controller emits must be consumed in order; there is no resync.
type Link interface {
	WriteCommand(payload []byte) error
	ReadLine(timeout time.Duration) (string, error)
	Close() error
}

// Ensure Serial implements Link.
var _ Link = (*Serial)(nil)

// Ensure Mock implements Link.
var _ Link = (*Mock)(nil)

var (
	// ErrTimeout is matched by every *TimeoutError.
	ErrTimeout = errors.New("link: read timeout")
	// ErrClosed is returned by operations on a closed link.
	ErrClosed = errors.New("link: closed")
)

// TimeoutError reports that no complete line arrived within the read timeout.
// The controller is assumed disconnected.
type TimeoutError struct {
	Timeout time.Duration
	Partial string // bytes received before the timeout, if any
}

func (e *TimeoutError) Error() string {
	if e.Partial != "" {
		return fmt.Sprintf("link: no line within %s (partial %q)", e.Timeout, e.Partial)
	}
	return fmt.Sprintf("link: no line within %s", e.Timeout)
}

// Is lets errors.Is(err, ErrTimeout) match.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// WriteError reports a transport failure while sending a frame.
type WriteError struct {
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("link: write failed: %v", e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// ReadError reports a transport failure other than a timeout while reading.
type ReadError struct {
	Err error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("link: read failed: %v", e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}
