package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/itohio/gooven/pkg/config"
	"github.com/itohio/gooven/pkg/link"
	"github.com/itohio/gooven/pkg/scope"
	"github.com/itohio/gooven/pkg/setpoint"
	"github.com/itohio/gooven/pkg/sink"
	"github.com/itohio/gooven/pkg/sink/metrics"
	mongosink "github.com/itohio/gooven/pkg/sink/mongo"
	"github.com/itohio/gooven/pkg/sink/s3archive"
	"github.com/itohio/gooven/pkg/supervisor"
)

// options are the command line flags. Environment variables apply when a flag is absent;
// an optional .env file is loaded first.
type options struct {
	Config    string `short:"c" long:"config" env:"OVEN_CONFIG" default:"config.yaml" description:"Configuration file path"`
	Port      string `short:"p" long:"port" env:"OVEN_PORT" description:"Serial port override (e.g. COM3 or /dev/ttyACM0)"`
	Mock      bool   `long:"mock" env:"OVEN_MOCK" description:"Use the simulated controller instead of a serial port"`
	Plot      bool   `long:"plot" env:"OVEN_PLOT" description:"Open the plot window"`
	LogLevel  string `long:"log-level" env:"OVEN_LOG_LEVEL" description:"Log level override (debug, info, warn, error)"`
	EnvFile   string `long:"env-file" default:".env" description:"Environment file loaded before flags are evaluated"`
	MongoURI  string `long:"mongo-uri" env:"MONGO_URI" description:"MongoDB URI for the cycle archive"`
	S3Bucket  string `long:"s3-bucket" env:"S3_BUCKET" description:"S3 bucket receiving finished data logs"`
	Metrics   string `long:"metrics-listen" env:"OVEN_METRICS_LISTEN" description:"Listen address of the Prometheus endpoint"`
	ListPorts bool   `long:"list-ports" description:"List serial ports and exit"`
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	opts, err := parseOptions(args)
	if err != nil {
		// go-flags already printed its own errors and the help text.
		var ferr *flags.Error
		if errors.As(err, &ferr) {
			if ferr.Type == flags.ErrHelp {
				return 0
			}
			return 2
		}
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	if opts.ListPorts {
		return listPorts()
	}

	cfg, err := config.Load(opts.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return 1
	}
	applyOptions(cfg, opts)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		return 1
	}

	log := newLogger(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newOven(ctx, cfg, opts, log)
	if err != nil {
		log.Error().Err(err).Msg("startup failed")
		return 1
	}
	defer app.close()

	if cfg.Plot.Enabled {
		err = runWindow(ctx, app)
	} else {
		err = app.supervisor.Run(ctx)
	}
	if err != nil {
		log.Error().Err(err).Msg("oven control stopped")
		return 1
	}
	return 0
}

// parseOptions parses args twice: a silent pass to find the env file, and the real one
// after loading it so env tags see its variables.
func parseOptions(args []string) (*options, error) {
	var first options
	flags.NewParser(&first, flags.IgnoreUnknown).ParseArgs(args)
	if err := loadEnv(first.EnvFile); err != nil {
		return nil, err
	}

	var opts options
	if _, err := flags.ParseArgs(&opts, args); err != nil {
		return nil, err
	}
	return &opts, nil
}

// loadEnv loads file into the environment without overriding variables already set.
// A missing file is not an error.
func loadEnv(file string) error {
	if file == "" {
		return nil
	}
	if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", file, err)
	}
	return nil
}

func applyOptions(cfg *config.Config, opts *options) {
	if opts.Port != "" {
		cfg.Serial.Port = opts.Port
	}
	if opts.Plot {
		cfg.Plot.Enabled = true
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}
	if opts.MongoURI != "" {
		cfg.Mongo.URI = opts.MongoURI
	}
	if opts.S3Bucket != "" {
		cfg.S3.Bucket = opts.S3Bucket
	}
	if opts.Metrics != "" {
		cfg.Metrics.Listen = opts.Metrics
	}
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.DateTime}).
		Level(lvl).
		With().Timestamp().Logger()
}

func listPorts() int {
	ports, err := link.Ports()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	for _, p := range ports {
		fmt.Println(p.Name)
	}
	return 0
}

// oven is the wired application: link, setpoint source, sinks and the supervisor.
type oven struct {
	cfg        *config.Config
	configPath string
	log        zerolog.Logger

	link       link.Link
	file       *setpoint.File
	plots      *scope.Sink      // plot mode only
	supervisor *supervisor.Supervisor

	dataLog  *sink.DataLog
	closers  []func(context.Context) error
	shutdown time.Duration
}

func newOven(ctx context.Context, cfg *config.Config, opts *options, log zerolog.Logger) (_ *oven, err error) {
	o := &oven{
		cfg:        cfg,
		configPath: opts.Config,
		log:        log,
		shutdown:   10 * time.Second,
	}
	defer func() {
		if err != nil {
			o.close()
		}
	}()

	if err := o.openLink(opts.Mock); err != nil {
		return nil, err
	}

	src, err := o.openSource()
	if err != nil {
		return nil, err
	}

	sinks, err := o.openSinks(ctx)
	if err != nil {
		return nil, err
	}

	o.supervisor = supervisor.New(cfg, o.link, src, sinks, log.With().Str("component", "supervisor").Logger())
	return o, nil
}

func (o *oven) openLink(mock bool) error {
	if mock {
		o.log.Info().Int("channels", len(o.cfg.Channels)).Msg("using simulated controller")
		o.link = link.NewMock(&o.cfg.Mock, len(o.cfg.Channels), o.cfg.Loop.Dt, o.cfg.Loop.SampleSensor)
		return nil
	}

	s := link.New(o.cfg.Serial.Port, o.cfg.Serial.BaudRate, o.cfg.Serial.StartupDelay)
	if err := s.Connect(); err != nil {
		return fmt.Errorf("failed to connect to %s: %w", o.cfg.Serial.Port, err)
	}
	o.log.Info().Str("port", o.cfg.Serial.Port).Int("baud", o.cfg.Serial.BaudRate).Msg("connected to controller")
	o.link = s
	return nil
}

// openSource prepares the setpoint file. It is read every cycle in both modes; the
// plot window's setpoint form writes to it, so operator edits to the file still apply.
func (o *oven) openSource() (setpoint.Source, error) {
	o.file = setpoint.NewFile(o.cfg.Setpoints.File)

	defaults := make([]setpoint.Entry, len(o.cfg.Channels))
	for i, ch := range o.cfg.Channels {
		defaults[i] = setpoint.Entry{Target: 0, Band: ch.Band, IntegralTime: ch.IntegralTime}
	}
	written, err := o.file.EnsureTemplate(defaults)
	if err != nil {
		return nil, err
	}
	if written {
		o.log.Info().Str("file", o.file.Path()).Msg("setpoint template created, edit it to set targets")
	}
	return o.file, nil
}

func (o *oven) openSinks(ctx context.Context) (supervisor.Sink, error) {
	var sinks sink.Multi

	if o.cfg.Log.Console {
		sinks = append(sinks, sink.NewConsole(os.Stdout))
	}

	if o.cfg.DataLog.Enabled {
		var archiver sink.Archiver
		if o.cfg.S3.Bucket != "" {
			a, err := s3archive.NewFromEnv(ctx, o.cfg.S3.Bucket, o.cfg.S3.Prefix, o.log.With().Str("component", "s3").Logger())
			if err != nil {
				return nil, err
			}
			archiver = a
		}

		d, err := sink.NewDataLog(o.cfg.DataLog.Dir, time.Now(), len(o.cfg.Channels), o.cfg.Loop.SampleSensor, archiver)
		if err != nil {
			return nil, err
		}
		o.dataLog = d
		sinks = append(sinks, d)
	}

	if o.cfg.Mongo.URI != "" {
		client, err := mongosink.Connect(ctx, o.cfg.Mongo.URI, o.cfg.Mongo.Timeout)
		if err != nil {
			return nil, err
		}
		o.closers = append(o.closers, client.Disconnect)

		coll := client.Database(o.cfg.Mongo.Database).Collection(o.cfg.Mongo.Collection)
		sinks = append(sinks, mongosink.New(coll, o.cfg.Mongo.Timeout, o.log.With().Str("component", "mongo").Logger()))
		o.log.Info().Str("database", o.cfg.Mongo.Database).Str("collection", o.cfg.Mongo.Collection).Msg("archiving cycles to MongoDB")
	}

	if o.cfg.Metrics.Listen != "" {
		m := metrics.New()
		sinks = append(sinks, m)
		o.serveMetrics(m)
	}

	if o.cfg.Plot.Enabled {
		names := make([]string, len(o.cfg.Channels))
		for i, ch := range o.cfg.Channels {
			names[i] = ch.Name
		}
		o.plots = scope.NewSink(names, o.cfg.Loop.SampleSensor, o.cfg.Loop.Dt)
		sinks = append(sinks, o.plots)
	}

	return sinks, nil
}

func (o *oven) serveMetrics(m *metrics.Sink) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              o.cfg.Metrics.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			o.log.Error().Err(err).Str("listen", srv.Addr).Msg("metrics server failed")
		}
	}()
	o.closers = append(o.closers, srv.Shutdown)
	o.log.Info().Str("listen", srv.Addr).Msg("serving metrics")
}

// close releases everything in reverse order of creation. Data logs are archived last.
func (o *oven) close() {
	ctx, cancel := context.WithTimeout(context.Background(), o.shutdown)
	defer cancel()

	if o.link != nil {
		if err := o.link.Close(); err != nil {
			o.log.Warn().Err(err).Msg("failed to close link")
		}
		o.link = nil
	}

	for i := len(o.closers) - 1; i >= 0; i-- {
		if err := o.closers[i](ctx); err != nil {
			o.log.Warn().Err(err).Msg("shutdown")
		}
	}
	o.closers = nil

	if o.dataLog != nil {
		paths, err := o.dataLog.Close(ctx)
		if err != nil {
			o.log.Error().Err(err).Msg("failed to finish data logs")
		}
		for _, p := range paths {
			o.log.Info().Str("file", p).Msg("data log written")
		}
		o.dataLog = nil
	}
}
