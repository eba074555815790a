// Package metrics exposes prometheus collectors for the mail server.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "proxymail"

// Metrics holds the collectors registered on a private registry
type Metrics struct {
	registry *prometheus.Registry

	jobRuns         *prometheus.CounterVec
	jobDuration     *prometheus.HistogramVec
	messagesSent    *prometheus.CounterVec
	messagesDeleted *prometheus.CounterVec
}

// New creates and registers all collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Scheduled job runs by job and result.",
		}, []string{"job", "result"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Duration of scheduled job runs.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"job"}),
		messagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Messages stored, by kind of send.",
		}, []string{"kind"}),
		messagesDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_deleted_total",
			Help:      "Messages removed, by reason.",
		}, []string{"reason"}),
	}

	m.registry.MustRegister(
		m.jobRuns,
		m.jobDuration,
		m.messagesSent,
		m.messagesDeleted,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry holding all collectors
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// JobRun records one run of a scheduled job
func (m *Metrics) JobRun(job string, d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.jobRuns.WithLabelValues(job, result).Inc()
	m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
}

// MessagesSent records n stored messages of the given kind (direct, broadcast)
func (m *Metrics) MessagesSent(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.messagesSent.WithLabelValues(kind).Add(float64(n))
}

// MessagesDeleted records n removed messages for the given reason
func (m *Metrics) MessagesDeleted(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.messagesDeleted.WithLabelValues(reason).Add(float64(n))
}
