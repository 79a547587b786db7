// Package metrics exposes the latest cycle as Prometheus gauges.
package metrics

import (
	"math"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/itohio/gooven/pkg/channel"
	"github.com/itohio/gooven/pkg/supervisor"
)

const namespace = "oven"

var _ supervisor.Sink = (*Sink)(nil)

// Sink updates gauges on every cycle. Faulted values are exported as NaN.
type Sink struct {
	registry *prometheus.Registry

	temperature  *prometheus.GaugeVec
	target       *prometheus.GaugeVec
	output       *prometheus.GaugeVec
	proportional *prometheus.GaugeVec
	integral     *prometheus.GaugeVec
	faulted      *prometheus.GaugeVec
	inBand       *prometheus.GaugeVec
	sample       prometheus.Gauge
	sampleFault  prometheus.Gauge
	cycles       prometheus.Counter
	pushes       prometheus.Counter
}

// New creates a sink with its own registry.
func New() *Sink {
	s := &Sink{
		registry:     prometheus.NewRegistry(),
		temperature:  gaugeVec("temperature_celsius", "Measured channel temperature (°C)"),
		target:       gaugeVec("target_celsius", "Operator target temperature (°C)"),
		output:       gaugeVec("output_percent", "Controller output (%)"),
		proportional: gaugeVec("proportional_percent", "Proportional term (%)"),
		integral:     gaugeVec("integral_percent", "Integral term (%)"),
		faulted:      gaugeVec("sensor_faulted", "1 when the last reading of the channel thermocouple was unusable"),
		inBand:       gaugeVec("in_band", "1 when the recent history stays within target ± band/2"),
		sample: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sample_temperature_celsius",
			Help:      "Sample thermocouple temperature (°C)",
		}),
		sampleFault: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sample_sensor_faulted",
			Help:      "1 when the last sample reading was unusable",
		}),
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Completed supervisor cycles",
		}),
		pushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "setpoint_pushes_total",
			Help:      "Configuration frames written to the controller",
		}),
	}

	s.registry.MustRegister(
		s.temperature, s.target, s.output, s.proportional, s.integral, s.faulted, s.inBand,
		s.sample, s.sampleFault, s.cycles, s.pushes,
	)
	return s
}

func gaugeVec(name, help string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, []string{"channel"})
}

// Registry returns the registry holding the sink's collectors.
func (s *Sink) Registry() *prometheus.Registry {
	return s.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (s *Sink) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}

// Publish updates the gauges from c.
func (s *Sink) Publish(c supervisor.Cycle) error {
	s.cycles.Inc()
	if c.Pushed {
		s.pushes.Inc()
	}

	for _, ch := range c.Channels {
		idx := strconv.Itoa(ch.Index)
		s.temperature.WithLabelValues(idx).Set(value(ch.Temperature))
		s.target.WithLabelValues(idx).Set(ch.Target)
		s.output.WithLabelValues(idx).Set(value(ch.Output))
		s.proportional.WithLabelValues(idx).Set(value(ch.Proportional))
		s.integral.WithLabelValues(idx).Set(value(ch.Integral))
		s.faulted.WithLabelValues(idx).Set(flag(ch.Faulted))
		s.inBand.WithLabelValues(idx).Set(flag(ch.InBand()))
	}

	if c.Sample != nil {
		s.sample.Set(value(c.Sample.Temperature))
		s.sampleFault.Set(flag(c.Sample.Faulted))
	}
	return nil
}

func value(t channel.Telemetry) float64 {
	return t.Or(math.NaN())
}

func flag(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
