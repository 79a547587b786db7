package link

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
)

const (
	// DefaultBaudRate is what the oven controller sketch uses.
	DefaultBaudRate = 9600
	// readChunk is the size of a single port read.
	readChunk = 64
)

// Port represents a serial port.
type Port struct {
	Name        string
	Description string
}

// port is the subset of serial.Port the link needs.
type port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
}

// Serial is a Link over a serial port. All calls block the caller; there is no
// background reader, the supervisor owns the pacing.
type Serial struct {
	name         string
	baudRate     int
	startupDelay time.Duration

	mu      sync.Mutex
	conn    port
	pending []byte
	buf     [readChunk]byte
	now     func() time.Time
}

// New creates a new Serial link with the specified port, baud rate and the delay to wait
// after opening (boards that reset on DTR need it).
func New(name string, baudRate int, startupDelay time.Duration) *Serial {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	return &Serial{
		name:         name,
		baudRate:     baudRate,
		startupDelay: startupDelay,
		now:          time.Now,
	}
}

// Ports returns a list of available serial ports.
func Ports() ([]Port, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	result := make([]Port, 0, len(ports))
	for _, name := range ports {
		result = append(result, Port{
			Name:        name,
			Description: name,
		})
	}
	return result, nil
}

// Connect opens the serial port, waits for the controller to boot and drops
// whatever it printed while booting.
func (s *Serial) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		return fmt.Errorf("already connected")
	}

	mode := &serial.Mode{
		BaudRate: s.baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	p, err := serial.Open(s.name, mode)
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", s.name, err)
	}

	if s.startupDelay > 0 {
		time.Sleep(s.startupDelay)
	}

	if err := p.ResetInputBuffer(); err != nil {
		p.Close()
		return fmt.Errorf("failed to reset input buffer of %s: %w", s.name, err)
	}

	s.conn = p
	s.pending = s.pending[:0]
	return nil
}

// Close closes the port. Closing a closed link is a no-op.
func (s *Serial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	if err != nil {
		return fmt.Errorf("failed to close serial port %s: %w", s.name, err)
	}
	return nil
}

// WriteCommand sends one frame in a single write.
func (s *Serial) WriteCommand(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return &WriteError{Err: ErrClosed}
	}

	n, err := s.conn.Write(payload)
	if err != nil {
		return &WriteError{Err: err}
	}
	if n != len(payload) {
		return &WriteError{Err: io.ErrShortWrite}
	}
	return nil
}

// ReadLine returns the next non-empty line with surrounding whitespace removed.
// Bytes after the newline are kept for the next call.
func (s *Serial) ReadLine(timeout time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return "", &ReadError{Err: ErrClosed}
	}

	deadline := s.now().Add(timeout)
	for {
		if i := bytes.IndexByte(s.pending, '\n'); i >= 0 {
			line := strings.TrimSpace(string(s.pending[:i]))
			s.pending = append(s.pending[:0], s.pending[i+1:]...)
			if line == "" {
				continue
			}
			return line, nil
		}

		remaining := deadline.Sub(s.now())
		if remaining <= 0 {
			return "", &TimeoutError{Timeout: timeout, Partial: strings.TrimSpace(string(s.pending))}
		}

		if err := s.conn.SetReadTimeout(remaining); err != nil {
			return "", &ReadError{Err: err}
		}

		n, err := s.conn.Read(s.buf[:])
		if err != nil {
			return "", &ReadError{Err: err}
		}
		// n == 0 means the read timed out, the deadline check above decides.
		s.pending = append(s.pending, s.buf[:n]...)
	}
}
