package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles the service's prometheus instruments on a private
// registry so tests can build as many as they like. A nil Collector
// is valid and records nothing.
type Collector struct {
	reg *prometheus.Registry

	segmentsAccepted prometheus.Counter
	segmentsRejected *prometheus.CounterVec // reason label

	rateLimitDenied      prometheus.Counter
	idempotentReplays    prometheus.Counter
	idempotencyConflicts prometheus.Counter

	requestDuration *prometheus.HistogramVec // method, path labels
}

// NewCollector creates and registers the instruments.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		segmentsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eta_segments_accepted_total",
			Help: "Ride segments accepted into the statistics store.",
		}),
		segmentsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eta_segments_rejected_total",
			Help: "Ride segments rejected, by reason.",
		}, []string{"reason"}),
		rateLimitDenied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eta_rate_limit_denied_total",
			Help: "Write requests denied by the rate limiter.",
		}),
		idempotentReplays: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eta_idempotent_replays_total",
			Help: "Write requests answered from the idempotency cache.",
		}),
		idempotencyConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eta_idempotency_conflicts_total",
			Help: "Idempotency keys reused with a different body.",
		}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "eta_request_duration_seconds",
			Help:    "HTTP request handling duration.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}, []string{"method", "path"}),
	}

	reg.MustRegister(
		c.segmentsAccepted, c.segmentsRejected,
		c.rateLimitDenied, c.idempotentReplays, c.idempotencyConflicts,
		c.requestDuration,
	)
	return c
}

// Handler returns the exposition endpoint for this collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}

func (c *Collector) SegmentAccepted() {
	if c != nil {
		c.segmentsAccepted.Inc()
	}
}

func (c *Collector) SegmentRejected(reason string) {
	if c != nil {
		c.segmentsRejected.WithLabelValues(reason).Inc()
	}
}

func (c *Collector) RateLimitDenied() {
	if c != nil {
		c.rateLimitDenied.Inc()
	}
}

func (c *Collector) IdempotentReplay() {
	if c != nil {
		c.idempotentReplays.Inc()
	}
}

func (c *Collector) IdempotencyConflict() {
	if c != nil {
		c.idempotencyConflicts.Inc()
	}
}

// ObserveRequest records one handled HTTP request.
func (c *Collector) ObserveRequest(method, path string, seconds float64) {
	if c != nil {
		c.requestDuration.WithLabelValues(method, path).Observe(seconds)
	}
}
