package setpoint

import (
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

const templateHeader = `# Target temperatures in degrees Celsius, one entry per channel in index order.
# band (degrees Celsius) and integral_time (seconds) are optional overrides.
# The file is re-read every cycle.
`

// Entry is one channel of the setpoint file.
type Entry struct {
	Target       float64 `yaml:"target"`
	Band         float64 `yaml:"band"`
	IntegralTime float64 `yaml:"integral_time"`
}

type fileFormat struct {
	Channels []Entry `yaml:"channels"`
}

// rawEntry tells missing fields apart from zero values.
type rawEntry struct {
	Target       *float64 `yaml:"target"`
	Band         *float64 `yaml:"band"`
	IntegralTime *float64 `yaml:"integral_time"`
}

// File reads setpoints from a YAML file on every call. Each channel entry is decoded
// separately so one malformed entry does not block the others.
type File struct {
	path string
}

// NewFile creates a file source.
func NewFile(path string) *File {
	return &File{path: path}
}

// Path returns the file path.
func (f *File) Path() string {
	return f.path
}

// EnsureTemplate writes a template with one entry per default if the file does not exist.
// It reports whether a file was written.
func (f *File) EnsureTemplate(defaults []Entry) (bool, error) {
	if _, err := os.Stat(f.path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("failed to stat setpoint file: %w", err)
	}

	if err := f.Save(defaults); err != nil {
		return false, err
	}
	return true, nil
}

// Save replaces the file with the given entries. The file is written to a temporary
// name first so a concurrent read never sees a partial file.
func (f *File) Save(entries []Entry) error {
	data, err := yaml.Marshal(fileFormat{Channels: entries})
	if err != nil {
		return fmt.Errorf("failed to marshal setpoints: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, append([]byte(templateHeader), data...), 0644); err != nil {
		return fmt.Errorf("failed to write setpoint file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace setpoint file: %w", err)
	}
	return nil
}

// Setpoints reads and parses the file.
func (f *File) Setpoints(channels int) (Result, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read setpoint file: %w", err)
	}
	return parse(data, channels)
}

func parse(data []byte, channels int) (Result, error) {
	var doc struct {
		Channels []yaml.Node `yaml:"channels"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Result{}, fmt.Errorf("failed to parse setpoint file: %w", err)
	}

	res := Result{Values: make(map[int]Setpoint, channels)}
	for ch := range channels {
		if ch >= len(doc.Channels) {
			res.Errors = append(res.Errors, &ParseError{Channel: ch, Err: errors.New("no entry")})
			continue
		}

		node := &doc.Channels[ch]
		sp, perr := decodeEntry(node)
		if perr != nil {
			perr.Channel = ch
			perr.Line = node.Line
			res.Errors = append(res.Errors, perr)
			continue
		}
		res.Values[ch] = sp
	}
	return res, nil
}

func decodeEntry(node *yaml.Node) (Setpoint, *ParseError) {
	var raw rawEntry
	if err := node.Decode(&raw); err != nil {
		return Setpoint{}, &ParseError{Err: err}
	}

	if raw.Target == nil {
		return Setpoint{}, &ParseError{Field: "target", Err: errors.New("missing")}
	}
	if err := finite(*raw.Target); err != nil {
		return Setpoint{}, &ParseError{Field: "target", Err: err}
	}
	if raw.Band != nil {
		if err := nonNegative(*raw.Band); err != nil {
			return Setpoint{}, &ParseError{Field: "band", Err: err}
		}
	}
	if raw.IntegralTime != nil {
		if err := nonNegative(*raw.IntegralTime); err != nil {
			return Setpoint{}, &ParseError{Field: "integral_time", Err: err}
		}
	}

	return Setpoint{
		Target:       *raw.Target,
		Band:         raw.Band,
		IntegralTime: raw.IntegralTime,
	}, nil
}

// Validate applies the same checks as entries read from the file: a finite target and
// non-negative band and integral time.
func (e Entry) Validate() error {
	if err := finite(e.Target); err != nil {
		return &ParseError{Field: "target", Err: err}
	}
	if err := nonNegative(e.Band); err != nil {
		return &ParseError{Field: "band", Err: err}
	}
	if err := nonNegative(e.IntegralTime); err != nil {
		return &ParseError{Field: "integral_time", Err: err}
	}
	return nil
}

func finite(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%v is not a finite number", v)
	}
	return nil
}

func nonNegative(v float64) error {
	if err := finite(v); err != nil {
		return err
	}
	if v < 0 {
		return fmt.Errorf("%v must not be negative", v)
	}
	return nil
}
