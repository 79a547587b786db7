package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Serial    SerialConfig    `yaml:"serial"`
	Loop      LoopConfig      `yaml:"loop"`
	Channels  []ChannelConfig `yaml:"channels"`
	Setpoints SetpointConfig  `yaml:"setpoints"`
	Log       LogConfig       `yaml:"log"`
	DataLog   DataLogConfig   `yaml:"datalog"`
	Mongo     MongoConfig     `yaml:"mongo"`
	S3        S3Config        `yaml:"s3"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Plot      PlotConfig      `yaml:"plot"`
	Mock      MockConfig      `yaml:"mock"`
}

// SerialConfig contains serial port configuration.
type SerialConfig struct {
	Port         string        `yaml:"port"`
	BaudRate     int           `yaml:"baud_rate"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // Per-line timeout, exceeding it is fatal
	StartupDelay time.Duration `yaml:"startup_delay"` // The board resets when the port opens
}

// LoopConfig contains polling loop parameters.
type LoopConfig struct {
	Dt           time.Duration `yaml:"dt"`     // Must match the controller's measurement interval
	Window       int           `yaml:"window"` // Number of cycles kept in history
	SampleSensor bool          `yaml:"sample_sensor"`
}

// ChannelConfig contains per-heater defaults. The setpoint file may override band and
// integral time at runtime.
type ChannelConfig struct {
	Name         string  `yaml:"name"`
	Band         float64 `yaml:"band"`          // °C, display only
	IntegralTime float64 `yaml:"integral_time"` // seconds
}

// SetpointConfig points at the operator setpoint file.
type SetpointConfig struct {
	File string `yaml:"file"`
}

// LogConfig contains logging parameters.
type LogConfig struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"` // Print the per-cycle operator report to stdout
}

// DataLogConfig enables per-channel text data logs.
type DataLogConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// MongoConfig enables the cycle archive. Empty URI disables it.
type MongoConfig struct {
	URI        string        `yaml:"uri"`
	Database   string        `yaml:"database"`
	Collection string        `yaml:"collection"`
	Timeout    time.Duration `yaml:"timeout"`
}

// S3Config enables uploading finished data logs. Empty bucket disables it.
type S3Config struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
}

// MetricsConfig enables the Prometheus endpoint. Empty listen address disables it.
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// PlotConfig contains plot window parameters.
type PlotConfig struct {
	Enabled bool    `yaml:"enabled"`
	Width   float32 `yaml:"width"`
	Height  float32 `yaml:"height"`
}

// MockConfig contains simulated controller configuration.
type MockConfig struct {
	Ambient    float64       `yaml:"ambient"`     // Ambient temperature (°C)
	HeatRate   float64       `yaml:"heat_rate"`   // °C/s at 100% output
	LossRate   float64       `yaml:"loss_rate"`   // 1/s, Newtonian loss towards ambient
	NoiseLevel float64       `yaml:"noise_level"` // °C
	FaultEvery int           `yaml:"fault_every"` // Report nan every N cycles (0 = never)
	Period     time.Duration `yaml:"period"`      // Pacing between cycles (0 = as fast as read)
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			Port:         "COM3", // Default for Windows, should be "/dev/ttyACM0" on Linux/Mac
			BaudRate:     9600,
			ReadTimeout:  10 * time.Second,
			StartupDelay: 1500 * time.Millisecond,
		},
		Loop: LoopConfig{
			Dt:           time.Second,
			Window:       300,
			SampleSensor: true,
		},
		Channels: []ChannelConfig{
			{Name: "Channel 0", Band: 5, IntegralTime: 10},
		},
		Setpoints: SetpointConfig{
			File: "setpoints.yaml",
		},
		Log: LogConfig{
			Level:   "info",
			Console: true,
		},
		DataLog: DataLogConfig{
			Enabled: false,
			Dir:     "logs",
		},
		Mongo: MongoConfig{
			Database:   "oven",
			Collection: "cycles",
			Timeout:    5 * time.Second,
		},
		Plot: PlotConfig{
			Enabled: false,
			Width:   1200,
			Height:  800,
		},
		Mock: MockConfig{
			Ambient:    22.0,
			HeatRate:   0.8,
			LossRate:   0.01,
			NoiseLevel: 0.05,
			FaultEvery: 0,
			Period:     time.Second,
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate rejects configurations the supervisor cannot run with.
func (c *Config) Validate() error {
	if len(c.Channels) == 0 {
		return fmt.Errorf("invalid config: at least one channel is required")
	}
	if c.Loop.Window <= 0 {
		return fmt.Errorf("invalid config: loop.window must be positive, got %d", c.Loop.Window)
	}
	if c.Loop.Dt <= 0 {
		return fmt.Errorf("invalid config: loop.dt must be positive, got %s", c.Loop.Dt)
	}
	if c.Serial.ReadTimeout <= 0 {
		return fmt.Errorf("invalid config: serial.read_timeout must be positive, got %s", c.Serial.ReadTimeout)
	}
	for i, ch := range c.Channels {
		if ch.Band < 0 {
			return fmt.Errorf("invalid config: channels[%d].band must not be negative", i)
		}
		if ch.IntegralTime < 0 {
			return fmt.Errorf("invalid config: channels[%d].integral_time must not be negative", i)
		}
	}
	return nil
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Serial.Port == "" {
		c.Serial.Port = def.Serial.Port
	}
	if c.Serial.BaudRate == 0 {
		c.Serial.BaudRate = def.Serial.BaudRate
	}
	if c.Serial.ReadTimeout == 0 {
		c.Serial.ReadTimeout = def.Serial.ReadTimeout
	}

	if c.Loop.Dt == 0 {
		c.Loop.Dt = def.Loop.Dt
	}
	if c.Loop.Window == 0 {
		c.Loop.Window = def.Loop.Window
	}

	if len(c.Channels) == 0 {
		c.Channels = def.Channels
	}
	for i := range c.Channels {
		if c.Channels[i].Name == "" {
			c.Channels[i].Name = fmt.Sprintf("Channel %d", i)
		}
		if c.Channels[i].Band == 0 {
			c.Channels[i].Band = def.Channels[0].Band
		}
		if c.Channels[i].IntegralTime == 0 {
			c.Channels[i].IntegralTime = def.Channels[0].IntegralTime
		}
	}

	if c.Setpoints.File == "" {
		c.Setpoints.File = def.Setpoints.File
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.DataLog.Dir == "" {
		c.DataLog.Dir = def.DataLog.Dir
	}

	if c.Mongo.Database == "" {
		c.Mongo.Database = def.Mongo.Database
	}
	if c.Mongo.Collection == "" {
		c.Mongo.Collection = def.Mongo.Collection
	}
	if c.Mongo.Timeout == 0 {
		c.Mongo.Timeout = def.Mongo.Timeout
	}

	if c.Plot.Width == 0 {
		c.Plot.Width = def.Plot.Width
	}
	if c.Plot.Height == 0 {
		c.Plot.Height = def.Plot.Height
	}

	if c.Mock.HeatRate == 0 {
		c.Mock.HeatRate = def.Mock.HeatRate
	}
	if c.Mock.LossRate == 0 {
		c.Mock.LossRate = def.Mock.LossRate
	}
}
