// Package metrics exposes evaluation results as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/user/cisaudit/pkg/engine"
)

// Recorder implements engine.Observer on its own registry.
type Recorder struct {
	registry *prometheus.Registry

	controls         *prometheus.CounterVec
	resolutionErrors *prometheus.CounterVec
	runDuration      prometheus.Histogram
	runs             *prometheus.CounterVec
	score            prometheus.Gauge
	lastRun          prometheus.Gauge
}

// NewRecorder registers the cisaudit collectors plus the Go and process
// collectors on a fresh registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		controls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cisaudit_controls_evaluated_total",
				Help: "Controls evaluated, by outcome",
			},
			[]string{"outcome"},
		),
		resolutionErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cisaudit_resolution_errors_total",
				Help: "Checks that failed to observe live state, by query kind",
			},
			[]string{"kind"},
		),
		runDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "cisaudit_evaluation_duration_seconds",
				Help:    "Wall-clock duration of evaluation runs",
				Buckets: []float64{0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0},
			},
		),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cisaudit_evaluations_total",
				Help: "Evaluation runs, by completeness",
			},
			[]string{"status"},
		),
		score: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cisaudit_compliance_score",
			Help: "Weighted compliance score of the last evaluation",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cisaudit_last_evaluation_timestamp_seconds",
			Help: "Unix time the last evaluation report was generated",
		}),
	}

	r.registry.MustRegister(
		r.controls,
		r.resolutionErrors,
		r.runDuration,
		r.runs,
		r.score,
		r.lastRun,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	for _, k := range engine.OutcomeKinds {
		r.controls.WithLabelValues(string(k))
	}
	return r
}

func (r *Recorder) ObserveControl(res engine.ControlResult) {
	r.controls.WithLabelValues(string(res.Outcome.Kind)).Inc()
}

func (r *Recorder) ObserveResolutionError(kind engine.QueryKind) {
	r.resolutionErrors.WithLabelValues(string(kind)).Inc()
}

func (r *Recorder) ObserveRun(report engine.Report, elapsed time.Duration) {
	r.runDuration.Observe(elapsed.Seconds())
	status := "complete"
	if report.Incomplete {
		status = "incomplete"
	}
	r.runs.WithLabelValues(status).Inc()
	r.score.Set(report.Score)
	r.lastRun.Set(float64(report.GeneratedAt.Unix()))
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
