// Package metrics defines gateway counters behind a small interface so the
// core never depends on a live Prometheus registry.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics captures counters for the inbound message pipeline and lifecycle.
type Metrics interface {
	IncMessagesReceived()
	IncDuplicatesDropped()
	IncThrottleSuppressed()
	IncRepliesSent(mode string)
	IncReconnectsScheduled()
	ObserveRequest(method, route, status string, durationSeconds float64)
}

// Noop implements Metrics without emitting anything.
type Noop struct{}

func (Noop) IncMessagesReceived()                      {}
func (Noop) IncDuplicatesDropped()                     {}
func (Noop) IncThrottleSuppressed()                    {}
func (Noop) IncRepliesSent(string)                     {}
func (Noop) IncReconnectsScheduled()                   {}
func (Noop) ObserveRequest(string, string, string, float64) {}

// Prom implements Metrics backed by Prometheus collectors.
type Prom struct {
	messagesReceived   prometheus.Counter
	duplicatesDropped  prometheus.Counter
	throttleSuppressed prometheus.Counter
	repliesSent        *prometheus.CounterVec
	reconnects         prometheus.Counter
	httpRequests       *prometheus.HistogramVec
	once               sync.Once
}

// NewProm constructs and registers the collectors under the given namespace.
func NewProm(namespace string) *Prom {
	p := &Prom{
		messagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Inbound messages accepted for processing",
		}),
		duplicatesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicates_dropped_total",
			Help:      "Inbound messages rejected by the dedupe guard",
		}),
		throttleSuppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "throttle_suppressed_total",
			Help:      "Replies suppressed by the per-identity throttle",
		}),
		repliesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replies_sent_total",
			Help:      "Outbound replies sent by reply mode",
		}, []string{"mode"}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_scheduled_total",
			Help:      "Reconnect attempts scheduled after transport loss",
		}),
		httpRequests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration by method, route and status",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	p.register()
	return p
}

func (p *Prom) register() {
	p.once.Do(func() {
		prometheus.MustRegister(
			p.messagesReceived,
			p.duplicatesDropped,
			p.throttleSuppressed,
			p.repliesSent,
			p.reconnects,
			p.httpRequests,
		)
	})
}

func (p *Prom) IncMessagesReceived()   { p.messagesReceived.Inc() }
func (p *Prom) IncDuplicatesDropped()  { p.duplicatesDropped.Inc() }
func (p *Prom) IncThrottleSuppressed() { p.throttleSuppressed.Inc() }
func (p *Prom) IncRepliesSent(mode string) {
	p.repliesSent.WithLabelValues(mode).Inc()
}
func (p *Prom) IncReconnectsScheduled() { p.reconnects.Inc() }
func (p *Prom) ObserveRequest(method, route, status string, durationSeconds float64) {
	p.httpRequests.WithLabelValues(method, route, status).Observe(durationSeconds)
}
