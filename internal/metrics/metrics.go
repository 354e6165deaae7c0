// Package metrics exposes provisioning outcomes as Prometheus metrics.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/BadgerOps/pyboot/internal/mirror"
)

// Metrics holds a private registry and the provisioning meters.
type Metrics struct {
	Registry      *prometheus.Registry
	StepTotal     *prometheus.CounterVec
	StepDuration  *prometheus.HistogramVec
	MirrorLatency *prometheus.GaugeVec
}

// New creates a registry with the pyboot metrics registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	stepTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pyboot_step_total",
		Help: "Total number of provisioning steps by outcome.",
	}, []string{"step", "result"})

	stepDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pyboot_step_duration_seconds",
		Help:    "Duration of provisioning steps in seconds.",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"step"})

	mirrorLatency := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pyboot_mirror_latency_ms",
		Help: "Last measured mirror latency in milliseconds (9999 when unreachable).",
	}, []string{"category", "label"})

	reg.MustRegister(stepTotal, stepDuration, mirrorLatency)

	return &Metrics{
		Registry:      reg,
		StepTotal:     stepTotal,
		StepDuration:  stepDuration,
		MirrorLatency: mirrorLatency,
	}
}

// StepFinished counts a step and observes its duration.
func (m *Metrics) StepFinished(step string, ok bool, message string, elapsed time.Duration) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.StepTotal.WithLabelValues(step, result).Inc()
	m.StepDuration.WithLabelValues(step).Observe(elapsed.Seconds())
}

// SourcesProbed sets the latency gauge for every probed source.
func (m *Metrics) SourcesProbed(category mirror.Category, results []mirror.ProbeResult, choice mirror.Choice) {
	for _, r := range results {
		m.MirrorLatency.WithLabelValues(string(category), r.Source.Label).Set(float64(r.LatencyMs))
	}
}

// WriteTextfile writes the registry in the node exporter textfile format.
// The file is replaced atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
