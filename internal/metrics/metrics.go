package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	CheckoutAttempts   *prometheus.CounterVec
	CheckoutDuration   prometheus.Histogram
	NotifierDeliveries *prometheus.CounterVec
	NotifierDropped    prometheus.Counter
	HTTPRequests       *prometheus.CounterVec
}

// New builds the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CheckoutAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Name:      "checkout_attempts_total",
			Help:      "Checkout attempts by result code.",
		}, []string{"code"}),
		CheckoutDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "storefront",
			Name:      "checkout_duration_seconds",
			Help:      "Time spent placing an order, transaction included.",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 20},
		}),
		NotifierDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Name:      "notifier_deliveries_total",
			Help:      "Post-commit notifications by sink and result.",
		}, []string{"sink", "result"}),
		NotifierDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "storefront",
			Name:      "notifier_dropped_total",
			Help:      "Notifications dropped because the queue was full.",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"route", "status"}),
	}
	reg.MustRegister(m.CheckoutAttempts, m.CheckoutDuration, m.NotifierDeliveries, m.NotifierDropped, m.HTTPRequests)
	return m
}

// NewNop returns collectors registered nowhere, for tests and tools.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}

func (m *Metrics) ObserveCheckout(code string, started time.Time) {
	m.CheckoutAttempts.WithLabelValues(code).Inc()
	m.CheckoutDuration.Observe(time.Since(started).Seconds())
}

func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
