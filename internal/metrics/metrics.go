package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "storefront"

// Metrics holds the Prometheus collectors for the checkout flow. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	orderCommits     *prometheus.CounterVec
	commitDuration   prometheus.Histogram
	signatureChecks  *prometheus.CounterVec
	providerRequests *prometheus.CounterVec
	cartRejections   prometheus.Counter
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		orderCommits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "commits_total",
			Help:      "Order commit attempts by outcome.",
		}, []string{"outcome"}),
		commitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "commit_duration_seconds",
			Help:      "Time spent verifying a payment and committing its order.",
			Buckets:   prometheus.DefBuckets,
		}),
		signatureChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payments",
			Name:      "signature_checks_total",
			Help:      "Payment callback signature checks by result.",
		}, []string{"result"}),
		providerRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payments",
			Name:      "provider_requests_total",
			Help:      "Requests sent to the payment provider.",
		}, []string{"operation", "outcome"}),
		cartRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cart",
			Name:      "insufficient_stock_total",
			Help:      "Cart mutations rejected for exceeding stock.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	reg.MustRegister(
		m.orderCommits,
		m.commitDuration,
		m.signatureChecks,
		m.providerRequests,
		m.cartRejections,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

// OrderCommit records one commit attempt. outcome is one of created,
// replayed, rejected or failed.
func (m *Metrics) OrderCommit(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.orderCommits.WithLabelValues(outcome).Inc()
	m.commitDuration.Observe(d.Seconds())
}

func (m *Metrics) SignatureCheck(valid bool) {
	if m == nil {
		return
	}
	result := "invalid"
	if valid {
		result = "valid"
	}
	m.signatureChecks.WithLabelValues(result).Inc()
}

func (m *Metrics) ProviderRequest(operation string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.providerRequests.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) CartRejected() {
	if m == nil {
		return
	}
	m.cartRejections.Inc()
}

// Middleware records request counts and latency using the matched route
// template so labels stay low-cardinality.
func (m *Metrics) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if m == nil {
			return c.Next()
		}
		start := time.Now()
		err := c.Next()

		route := "unmatched"
		if r := c.Route(); r != nil && r.Path != "" {
			route = r.Path
		}
		status := c.Response().StatusCode()
		if fe, ok := err.(*fiber.Error); ok {
			status = fe.Code
		}
		m.httpRequests.WithLabelValues(c.Method(), route, strconv.Itoa(status)).Inc()
		m.httpDuration.WithLabelValues(c.Method(), route).Observe(time.Since(start).Seconds())
		return err
	}
}

// Handler exposes the collectors of g in the Prometheus text format.
func Handler(g prometheus.Gatherer) fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
}
