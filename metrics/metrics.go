// Package metrics exports time wheel instrumentation to Prometheus.
//
// Registry implements hashwheel.Recorder, so it is plugged into a wheel with
// hashwheel.WithRecorder. Gauges derived from the wheel's Stats snapshot are
// collected at scrape time through WatchWheel.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/KFCxMcDonalds/hashwheel"
)

type Config struct {
	Namespace          string
	IncludeGoCollector bool
	// LatencyBuckets in seconds, shared by the run, lag and tick histograms.
	LatencyBuckets []float64
}

func DefaultConfig() Config {
	return Config{
		Namespace:          "hashwheel",
		IncludeGoCollector: true,
		LatencyBuckets:     []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}
}

// Registry owns a private prometheus.Registry so tests get a clean one each
// time.
type Registry struct {
	reg       *prometheus.Registry
	namespace string

	Scheduled    *prometheus.CounterVec
	Finished     *prometheus.CounterVec
	Cancelled    prometheus.Counter
	RunDuration  prometheus.Histogram
	FireLag      prometheus.Histogram
	TickDuration prometheus.Histogram
	TickExpired  prometheus.Counter
}

var _ hashwheel.Recorder = (*Registry)(nil)

func NewRegistry(cfg Config) *Registry {
	if cfg.Namespace == "" {
		cfg.Namespace = "hashwheel"
	}
	if len(cfg.LatencyBuckets) == 0 {
		cfg.LatencyBuckets = DefaultConfig().LatencyBuckets
	}

	r := &Registry{
		reg:       prometheus.NewRegistry(),
		namespace: cfg.Namespace,
		Scheduled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "tasks",
			Name:      "scheduled_total",
			Help:      "Tasks accepted by Schedule, by placement.",
		}, []string{"placement"}),
		Finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "tasks",
			Name:      "finished_total",
			Help:      "Tasks that ran to a terminal state, by state.",
		}, []string{"state"}),
		Cancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "tasks",
			Name:      "cancelled_total",
			Help:      "Tasks cancelled before they were dispatched.",
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: "tasks",
			Name:      "run_duration_seconds",
			Help:      "Wall time spent executing task payloads.",
			Buckets:   cfg.LatencyBuckets,
		}),
		FireLag: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: "tasks",
			Name:      "fire_lag_seconds",
			Help:      "Start time minus nominal fire time; negative lag is clamped to zero.",
			Buckets:   cfg.LatencyBuckets,
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: "wheel",
			Name:      "tick_duration_seconds",
			Help:      "Time spent handling one tick, including hand-off to the worker pool.",
			Buckets:   cfg.LatencyBuckets,
		}),
		TickExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "wheel",
			Name:      "expired_tasks_total",
			Help:      "Tasks handed to the worker pool by ticks.",
		}),
	}
	r.reg.MustRegister(r.Scheduled, r.Finished, r.Cancelled, r.RunDuration, r.FireLag, r.TickDuration, r.TickExpired)
	if cfg.IncludeGoCollector {
		r.reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return r
}

func (r *Registry) TaskScheduled(immediate bool) {
	placement := "wheel"
	if immediate {
		placement = "immediate"
	}
	r.Scheduled.WithLabelValues(placement).Inc()
}

func (r *Registry) TaskStarted(lag time.Duration) {
	if lag < 0 {
		lag = 0
	}
	r.FireLag.Observe(lag.Seconds())
}

func (r *Registry) TaskFinished(state hashwheel.State, runtime time.Duration) {
	r.Finished.WithLabelValues(state.String()).Inc()
	r.RunDuration.Observe(runtime.Seconds())
}

func (r *Registry) TaskCancelled() {
	r.Cancelled.Inc()
}

func (r *Registry) Tick(elapsed time.Duration, expired int) {
	r.TickDuration.Observe(elapsed.Seconds())
	r.TickExpired.Add(float64(expired))
}

// WatchWheel exports gauges read from src on every scrape.
func (r *Registry) WatchWheel(src StatsSource) error {
	return r.reg.Register(newWheelCollector(r.namespace, src))
}

func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}
