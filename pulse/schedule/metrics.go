package schedule

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/teranos/sentinel/report"
)

// Metrics are the scheduler's Prometheus collectors
type Metrics struct {
	Runs     *prometheus.CounterVec
	Duration *prometheus.HistogramVec
	Records  *prometheus.GaugeVec
	Failures *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered (tests).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_job_runs_total",
			Help: "Scheduled job executions by channel and result.",
		}, []string{"channel", "result"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sentinel_job_duration_seconds",
			Help:    "Wall time of scheduled job executions.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300, 900},
		}, []string{"channel"}),
		Records: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sentinel_fetch_records",
			Help: "Records returned by the most recent fetch of each channel.",
		}, []string{"channel"}),
		Failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_job_failures_total",
			Help: "Failed executions by channel and error kind.",
		}, []string{"channel", "kind"}),
	}
	if reg != nil {
		reg.MustRegister(m.Runs, m.Duration, m.Records, m.Failures)
	}
	return m
}

// Observe records one execution
func (m *Metrics) Observe(exec Execution) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(exec.Channel, string(exec.Result)).Inc()
	m.Duration.WithLabelValues(exec.Channel).Observe(exec.Duration.Seconds())
	if exec.Result != report.OutcomeFailed {
		m.Records.WithLabelValues(exec.Channel).Set(float64(exec.Records))
	} else {
		m.Failures.WithLabelValues(exec.Channel, exec.ErrorKind).Inc()
	}
}
