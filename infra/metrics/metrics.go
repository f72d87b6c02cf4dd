// Package metrics exports pipeline observations to Prometheus.
package metrics

import (
	"github.com/nguyennn/account-svc/pkg/consumer"
	"github.com/nguyennn/account-svc/pkg/retry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "account_svc"

// Pipeline implements consumer.Metrics.
type Pipeline struct {
	outcomes    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	attempts    prometheus.Histogram
	retries     *prometheus.CounterVec
	pending     prometheus.Gauge
	activeLanes prometheus.Gauge
}

// NewPipeline registers the pipeline collectors on reg. A nil reg uses the
// default registerer.
func NewPipeline(reg prometheus.Registerer) *Pipeline {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Pipeline{
		outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_processed_total",
			Help:      "Transaction events by final status and reason",
		}, []string{"status", "reason"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_duration_seconds",
			Help:      "Time from receipt to final status",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
		attempts: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_attempts",
			Help:      "Read-verify-write attempts per event",
			Buckets:   []float64{1, 2, 3, 5, 8},
		}),
		retries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Retried attempts by failure reason",
		}, []string{"reason"}),
		pending: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "events_pending",
			Help:      "Accepted events not yet finished",
		}),
		activeLanes: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_lanes",
			Help:      "Accounts with queued or running events",
		}),
	}
}

// ObserveOutcome implements consumer.Metrics.
func (p *Pipeline) ObserveOutcome(o consumer.Outcome) {
	status := string(o.Status)
	p.outcomes.WithLabelValues(status, o.Reason).Inc()
	p.duration.WithLabelValues(status).Observe(o.Duration.Seconds())
	if o.Attempts > 0 {
		p.attempts.Observe(float64(o.Attempts))
	}
}

// SetPending implements consumer.Metrics.
func (p *Pipeline) SetPending(n int) { p.pending.Set(float64(n)) }

// SetActiveLanes implements consumer.Metrics.
func (p *Pipeline) SetActiveLanes(n int) { p.activeLanes.Set(float64(n)) }

// RetryHook counts retries; pass it to retry.WithRetryHook.
func (p *Pipeline) RetryHook() func(retry.Disposition) {
	return func(d retry.Disposition) {
		p.retries.WithLabelValues(d.Reason).Inc()
	}
}

var _ consumer.Metrics = (*Pipeline)(nil)
