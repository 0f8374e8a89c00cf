package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	statusSuccess = "success"
	statusFailure = "failure"
)

// Metrics holds the worker's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
	swept       prometheus.Counter
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job collectors on registerer. A nil registerer
// selects the process-wide default registry, registered once.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer != nil {
		return register(registerer)
	}
	defaultOnce.Do(func() {
		defaultMetrics = register(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

func register(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worksite_jobs_total",
			Help: "Job executions by task type and status.",
		}, []string{"job", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "worksite_job_duration_seconds",
			Help:    "Wall time of job executions.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"job"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "worksite_job_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run per task type.",
		}, []string{"job"}),
		swept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "worksite_sessions_swept_total",
			Help: "Expired login sessions deleted by the sweep job.",
		}),
	}
	registerer.MustRegister(m.runs, m.duration, m.lastSuccess, m.swept)
	return m
}

// Run measures one job execution. Call the returned func with the job's
// result; it passes the error through.
func (m *Metrics) Run(job string) func(error) error {
	start := time.Now()
	return func(err error) error {
		if m == nil {
			return err
		}
		status := statusSuccess
		if err != nil {
			status = statusFailure
		} else {
			m.lastSuccess.WithLabelValues(job).SetToCurrentTime()
		}
		m.runs.WithLabelValues(job, status).Inc()
		m.duration.WithLabelValues(job).Observe(time.Since(start).Seconds())
		return err
	}
}

// AddSweptSessions counts sessions removed by the expiry sweep.
func (m *Metrics) AddSweptSessions(count int64) {
	if m == nil || count <= 0 {
		return
	}
	m.swept.Add(float64(count))
}
