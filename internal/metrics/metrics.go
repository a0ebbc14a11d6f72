// Package metrics records the duration and outcome of each step of a
// regression run and writes them in the Prometheus text format, for pickup by
// a node exporter textfile collector.
package metrics

import (
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "derivdiff"

// Recorder holds the metrics of one run.
type Recorder struct {
	registry    *prometheus.Registry
	stepSeconds *prometheus.GaugeVec
	stepTotal   *prometheus.CounterVec
	differences *prometheus.GaugeVec
	lastRun     *prometheus.GaugeVec
	now         func() time.Time
}

// NewRecorder returns a Recorder with its own registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		stepSeconds: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Duration of the last execution of a run step.",
		}, []string{"test", "step"}),
		stepTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_total",
			Help:      "Run steps executed, by outcome.",
		}, []string{"test", "step", "outcome"}),
		differences: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "differences",
			Help:      "Differences reported by the failing comparator.",
		}, []string{"test", "comparator"}),
		lastRun: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished, by result.",
		}, []string{"test", "result"}),
		now: time.Now,
	}
	r.registry.MustRegister(r.stepSeconds, r.stepTotal, r.differences, r.lastRun)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Step runs fn and records its duration and outcome under step. The error
// returned by fn is passed through.
func (r *Recorder) Step(test, step string, fn func() error) error {
	start := r.now()
	err := fn()
	r.stepSeconds.WithLabelValues(test, step).Set(r.now().Sub(start).Seconds())
	r.stepTotal.WithLabelValues(test, step, Outcome(err)).Inc()
	return err
}

// Differences records how many differences a comparator reported.
func (r *Recorder) Differences(test, comparator string, n int) {
	r.differences.WithLabelValues(test, comparator).Set(float64(n))
}

// Finish records the end of a run.
func (r *Recorder) Finish(test string, err error) {
	r.lastRun.WithLabelValues(test, Outcome(err)).Set(float64(r.now().Unix()))
}

// WriteFile writes every metric to path atomically.
func (r *Recorder) WriteFile(path string) error {
	return errors.Wrapf(prometheus.WriteToTextfile(path, r.registry), "write metrics %s", path)
}

// Outcome labels err as "success" or "failure".
func Outcome(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
