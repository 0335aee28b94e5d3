package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/trebuchet-org/treb-deploy/internal/domain"
	"github.com/trebuchet-org/treb-deploy/internal/domain/config"
	"github.com/trebuchet-org/treb-deploy/internal/usecase"
)

// Collector records run metrics in a private registry and can write them
// as a node_exporter textfile at the end of a run.
type Collector struct {
	registry *prometheus.Registry
	path     string

	stepsTotal    *prometheus.CounterVec
	attemptsTotal prometheus.Counter
	stepDuration  *prometheus.HistogramVec
	runDuration   prometheus.Gauge
	runStatus     *prometheus.GaugeVec
	lastRun       prometheus.Gauge
}

// NewCollector creates a collector labelled with the configured network.
func NewCollector(cfg *config.RuntimeConfig) *Collector {
	network := config.SimulatedNetwork
	if cfg.Network != nil && cfg.Network.Name != "" {
		network = cfg.Network.Name
	}
	labels := prometheus.Labels{"network": network}

	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		path:     cfg.MetricsFile,
		stepsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "treb_deploy_steps_total",
				Help:        "Steps that reached a terminal status",
				ConstLabels: labels,
			},
			[]string{"status"},
		),
		attemptsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name:        "treb_deploy_submission_attempts_total",
				Help:        "Deployment transactions submitted, including retries",
				ConstLabels: labels,
			},
		),
		stepDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "treb_deploy_step_duration_seconds",
				Help:        "Time from dispatch to terminal status per step",
				ConstLabels: labels,
				Buckets:     []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
			[]string{"status"},
		),
		runDuration: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "treb_deploy_run_duration_seconds",
				Help:        "Duration of the last run",
				ConstLabels: labels,
			},
		),
		runStatus: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name:        "treb_deploy_run_status",
				Help:        "1 for the final status of the last run, 0 otherwise",
				ConstLabels: labels,
			},
			[]string{"status"},
		),
		lastRun: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "treb_deploy_last_run_timestamp_seconds",
				Help:        "Unix time the last run finished",
				ConstLabels: labels,
			},
		),
	}
}

// StepFinished records a step reaching a terminal status.
func (c *Collector) StepFinished(step string, status domain.StepStatus, attempts int, duration time.Duration) {
	label := string(status)
	c.stepsTotal.WithLabelValues(label).Inc()
	if attempts > 0 {
		c.attemptsTotal.Add(float64(attempts))
	}
	if status != domain.StepSkipped {
		c.stepDuration.WithLabelValues(label).Observe(duration.Seconds())
	}
}

// RunFinished records the outcome of the run.
func (c *Collector) RunFinished(status domain.RunStatus, duration time.Duration) {
	for _, s := range []domain.RunStatus{domain.RunCompleted, domain.RunHalted, domain.RunCancelled} {
		value := 0.0
		if s == status {
			value = 1
		}
		c.runStatus.WithLabelValues(string(s)).Set(value)
	}
	c.runDuration.Set(duration.Seconds())
	c.lastRun.SetToCurrentTime()
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// WriteTextfile writes all metrics to the configured file. It does nothing
// when no file is configured.
func (c *Collector) WriteTextfile() error {
	if c.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(c.path, c.registry); err != nil {
		return fmt.Errorf("failed to write metrics file %s: %w", c.path, err)
	}
	return nil
}

// Ensure Collector implements MetricsRecorder
var _ usecase.MetricsRecorder = (*Collector)(nil)
