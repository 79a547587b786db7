package sink

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/itohio/gooven/pkg/channel"
	"github.com/itohio/gooven/pkg/supervisor"
)

const (
	channelLogHeader = "TIME TEMPERATURE PROPORTIONAL INTEGRAL OUTPUT"
	sampleLogHeader  = "TIME TEMPERATURE"
	logStampFormat   = "20060102 150405"
)

type logFile struct {
	path string
	f    *os.File
	w    *bufio.Writer
}

// DataLog writes one text log per channel and one for the sample sensor. Faulted
// readings are skipped. Files are flushed after every cycle.
type DataLog struct {
	mu       sync.Mutex
	channels []*logFile
	sample   *logFile
	archiver Archiver
	closed   bool
}

// NewDataLog creates the log files in dir, named after start. archiver may be nil.
func NewDataLog(dir string, start time.Time, channels int, sample bool, archiver Archiver) (*DataLog, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data log directory: %w", err)
	}

	stamp := start.Format(logStampFormat)
	d := &DataLog{archiver: archiver}
	for i := range channels {
		lf, err := createLog(filepath.Join(dir, fmt.Sprintf("%s CHANNEL %d log.txt", stamp, i)), channelLogHeader)
		if err != nil {
			d.closeFiles()
			return nil, err
		}
		d.channels = append(d.channels, lf)
	}
	if sample {
		lf, err := createLog(filepath.Join(dir, stamp+" SAMPLE log.txt"), sampleLogHeader)
		if err != nil {
			d.closeFiles()
			return nil, err
		}
		d.sample = lf
	}
	return d, nil
}

func createLog(path, header string) (*logFile, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create data log: %w", err)
	}
	lf := &logFile{path: path, f: f, w: bufio.NewWriter(f)}
	lf.w.WriteString(header + "\n")
	if err := lf.w.Flush(); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write data log header: %w", err)
	}
	return lf, nil
}

// Paths returns every log file, channels first.
func (d *DataLog) Paths() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.paths()
}

func (d *DataLog) paths() []string {
	paths := make([]string, 0, len(d.channels)+1)
	for _, lf := range d.channels {
		paths = append(paths, lf.path)
	}
	if d.sample != nil {
		paths = append(paths, d.sample.path)
	}
	return paths
}

// Publish appends one row per healthy channel and the sample sensor.
func (d *DataLog) Publish(c supervisor.Cycle) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return os.ErrClosed
	}

	at := strconv.FormatFloat(c.Elapsed.Seconds(), 'f', -1, 64)
	var errs []error
	for i, ch := range c.Channels {
		if i >= len(d.channels) || ch.Faulted {
			continue
		}
		errs = append(errs, d.channels[i].row(at, ch.Temperature, ch.Proportional, ch.Integral, ch.Output))
	}
	if d.sample != nil && c.Sample != nil && !c.Sample.Faulted {
		errs = append(errs, d.sample.row(at, c.Sample.Temperature))
	}
	return errors.Join(errs...)
}

func (lf *logFile) row(at string, values ...channel.Telemetry) error {
	lf.w.WriteString(at)
	for _, v := range values {
		lf.w.WriteByte(' ')
		lf.w.WriteString(v.String())
	}
	lf.w.WriteByte('\n')
	if err := lf.w.Flush(); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(lf.path), err)
	}
	return nil
}

// Close closes every file and hands them to the archiver. It returns the file paths.
func (d *DataLog) Close(ctx context.Context) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return d.paths(), nil
	}
	d.closed = true

	paths := d.paths()
	if err := d.closeFiles(); err != nil {
		return paths, err
	}
	if d.archiver != nil {
		if err := d.archiver.Archive(ctx, paths); err != nil {
			return paths, fmt.Errorf("failed to archive data logs: %w", err)
		}
	}
	return paths, nil
}

func (d *DataLog) closeFiles() error {
	var errs []error
	all := append([]*logFile(nil), d.channels...)
	if d.sample != nil {
		all = append(all, d.sample)
	}
	for _, lf := range all {
		errs = append(errs, lf.w.Flush(), lf.f.Close())
	}
	return errors.Join(errs...)
}
