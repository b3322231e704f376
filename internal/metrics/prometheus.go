package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus holds the collectors shared by every role in the process.
type Prometheus struct {
	events     *prometheus.CounterVec
	processing *prometheus.HistogramVec
}

// NewPrometheus creates and registers the collectors on reg.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	p := &Prometheus{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "alertd",
			Name:      "events_total",
			Help:      "Pipeline events by role and outcome.",
		}, []string{"role", "event"}),
		processing: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "alertd",
			Name:      "processing_seconds",
			Help:      "Time spent processing one message or request.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"role"}),
	}
	reg.MustRegister(p.events, p.processing)
	return p
}

// For returns a Recorder that labels everything with role.
func (p *Prometheus) For(role string) *PrometheusRecorder {
	return &PrometheusRecorder{
		events:     p.events.MustCurryWith(prometheus.Labels{"role": role}),
		processing: p.processing.WithLabelValues(role),
	}
}

// PrometheusRecorder records one role's metrics.
type PrometheusRecorder struct {
	events     *prometheus.CounterVec
	processing prometheus.Observer
}

func (r *PrometheusRecorder) inc(event string) {
	r.events.WithLabelValues(event).Inc()
}

func (r *PrometheusRecorder) RecordReceived() { r.inc("received") }

func (r *PrometheusRecorder) RecordProcessed(latency time.Duration) {
	r.inc("processed")
	r.processing.Observe(latency.Seconds())
}

func (r *PrometheusRecorder) RecordPublished()    { r.inc("published") }
func (r *PrometheusRecorder) RecordError()        { r.inc("error") }
func (r *PrometheusRecorder) RecordSkipped()      { r.inc("skipped") }
func (r *PrometheusRecorder) RecordRetried()      { r.inc("retried") }
func (r *PrometheusRecorder) RecordDeadLettered() { r.inc("dead_lettered") }

func (r *PrometheusRecorder) RecordPush(delivered bool) {
	if delivered {
		r.inc("push_delivered")
		return
	}
	r.inc("push_dropped")
}

var _ Recorder = (*PrometheusRecorder)(nil)
