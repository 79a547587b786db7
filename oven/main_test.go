package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/gooven/pkg/config"
	"github.com/itohio/gooven/pkg/setpoint"
)

func TestApplyOptions(t *testing.T) {
	cfg := config.Default()
	applyOptions(cfg, &options{
		Port:     "/dev/ttyACM1",
		Plot:     true,
		LogLevel: "debug",
		MongoURI: "mongodb://localhost:27017",
		S3Bucket: "oven-logs",
		Metrics:  ":9100",
	})

	assert.Equal(t, "/dev/ttyACM1", cfg.Serial.Port)
	assert.True(t, cfg.Plot.Enabled)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "mongodb://localhost:27017", cfg.Mongo.URI)
	assert.Equal(t, "oven-logs", cfg.S3.Bucket)
	assert.Equal(t, ":9100", cfg.Metrics.Listen)
}

func TestApplyOptions_EmptyKeepsConfig(t *testing.T) {
	cfg := config.Default()
	want := *cfg
	applyOptions(cfg, &options{})
	assert.Equal(t, want.Serial, cfg.Serial)
	assert.Equal(t, want.Log, cfg.Log)
	assert.Equal(t, want.Plot, cfg.Plot)
}

func TestParseOptions(t *testing.T) {
	opts, err := parseOptions([]string{"--env-file=", "-c", "oven.yaml", "--mock", "-p", "COM7"})
	require.NoError(t, err)
	assert.Equal(t, "oven.yaml", opts.Config)
	assert.True(t, opts.Mock)
	assert.Equal(t, "COM7", opts.Port)
	assert.False(t, opts.Plot)
}

func TestParseOptions_Defaults(t *testing.T) {
	opts, err := parseOptions([]string{"--env-file="})
	require.NoError(t, err)
	assert.Equal(t, "config.yaml", opts.Config)
}

func TestParseOptions_Environment(t *testing.T) {
	t.Setenv("OVEN_LOG_LEVEL", "warn")

	opts, err := parseOptions([]string{"--env-file="})
	require.NoError(t, err)
	assert.Equal(t, "warn", opts.LogLevel)

	opts, err = parseOptions([]string{"--env-file=", "--log-level", "error"})
	require.NoError(t, err)
	assert.Equal(t, "error", opts.LogLevel, "flags win over the environment")
}

func TestParseOptions_EnvFile(t *testing.T) {
	const key = "OVEN_METRICS_LISTEN"
	if _, ok := os.LookupEnv(key); ok {
		t.Skipf("%s already set", key)
	}
	t.Cleanup(func() { os.Unsetenv(key) })

	file := filepath.Join(t.TempDir(), "oven.env")
	require.NoError(t, os.WriteFile(file, []byte(key+"=:9200\n"), 0o644))

	opts, err := parseOptions([]string{"--env-file", file})
	require.NoError(t, err)
	assert.Equal(t, ":9200", opts.Metrics)
}

func TestParseOptions_UnknownFlag(t *testing.T) {
	_, err := parseOptions([]string{"--env-file=", "--bogus"})
	require.Error(t, err)

	var ferr *flags.Error
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, flags.ErrUnknownFlag, ferr.Type)
}

func TestRun_ExitCodes(t *testing.T) {
	dir := t.TempDir()

	assert.Equal(t, 2, run([]string{"--env-file=", "--bogus"}))

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("serial: [\n"), 0o644))
	assert.Equal(t, 1, run([]string{"--env-file=", "-c", bad}))
}

func TestLoadEnv(t *testing.T) {
	assert.NoError(t, loadEnv(""))
	assert.NoError(t, loadEnv(filepath.Join(t.TempDir(), "missing.env")))

	dir := t.TempDir()
	assert.Error(t, loadEnv(dir), "a directory is not an env file")
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		level string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"warn", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"loud", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			assert.Equal(t, tt.want, newLogger(tt.level).GetLevel())
		})
	}
}

func TestOpenSource_PlotModeFollowsFileEdits(t *testing.T) {
	cfg := config.Default()
	cfg.Plot.Enabled = true
	cfg.Setpoints.File = filepath.Join(t.TempDir(), "setpoints.yaml")

	o := &oven{cfg: cfg, log: zerolog.Nop()}
	src, err := o.openSource()
	require.NoError(t, err)
	assert.FileExists(t, cfg.Setpoints.File)

	res, err := src.Setpoints(1)
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Values[0].Target)

	// An operator editing the file while the window is open.
	require.NoError(t, os.WriteFile(cfg.Setpoints.File, []byte("channels:\n  - target: 80\n"), 0o644))
	res, err = src.Setpoints(1)
	require.NoError(t, err)
	assert.Equal(t, 80.0, res.Values[0].Target)

	// The settings form saving its values.
	require.NoError(t, o.file.Save([]setpoint.Entry{{Target: 120, Band: 4, IntegralTime: 20}}))
	res, err = src.Setpoints(1)
	require.NoError(t, err)
	assert.Equal(t, 120.0, res.Values[0].Target)
	require.NotNil(t, res.Values[0].Band)
	assert.Equal(t, 4.0, *res.Values[0].Band)
}
