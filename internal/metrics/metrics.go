package metrics

import (
	"time"

	"github.com/metal-toolbox/cfgcollector/internal/model"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultSkipped = "skipped"

	AttemptSuccess = "success"
	AttemptRetry   = "retry"
	AttemptError   = "error"
)

// Recorder holds the collector metrics in a private registry.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	DeviceResults    *prometheus.CounterVec
	FetchAttempts    *prometheus.CounterVec
	FetchDuration    prometheus.Histogram
	LastRunTimestamp prometheus.Gauge
}

func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		DeviceResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: model.AppName,
				Name:      "device_results_total",
				Help:      "A counter metric to measure the outcome of each device in a collection run",
			},
			[]string{"result"},
		),
		FetchAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: model.AppName,
				Name:      "fetch_attempts_total",
				Help:      "A counter metric to measure SSH fetch attempts by outcome",
			},
			[]string{"outcome"},
		),
		FetchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: model.AppName,
				Name:      "fetch_duration_seconds",
				Help:      "A histogram of the time taken to fetch a device configuration, retries included",
				Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 60},
			},
		),
		LastRunTimestamp: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: model.AppName,
				Name:      "last_run_timestamp_seconds",
				Help:      "Unix time the last collection run finished",
			},
		),
	}

	r.registry.MustRegister(r.DeviceResults, r.FetchAttempts, r.FetchDuration, r.LastRunTimestamp)

	return r
}

func (r *Recorder) DeviceResult(result string) {
	if r == nil {
		return
	}

	r.DeviceResults.WithLabelValues(result).Inc()
}

func (r *Recorder) FetchAttempt(outcome string) {
	if r == nil {
		return
	}

	r.FetchAttempts.WithLabelValues(outcome).Inc()
}

func (r *Recorder) ObserveFetch(started time.Time) {
	if r == nil {
		return
	}

	r.FetchDuration.Observe(time.Since(started).Seconds())
}

func (r *Recorder) RunFinished(at time.Time) {
	if r == nil {
		return
	}

	r.LastRunTimestamp.Set(float64(at.Unix()))
}

func (r *Recorder) Gatherer() prometheus.Gatherer {
	if r == nil {
		return nil
	}

	return r.registry
}

// WriteTextfile writes the registry in the node_exporter textfile collector format.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}

	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return errors.Wrap(model.ErrIO, "metrics textfile: "+err.Error())
	}

	return nil
}
