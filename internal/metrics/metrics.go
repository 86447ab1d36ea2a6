package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "checkout"

type Metrics struct {
	Registry *prometheus.Registry

	Requests  *prometheus.CounterVec
	LatencyMS *prometheus.HistogramVec

	Checkouts        *prometheus.CounterVec
	CheckoutLatency  prometheus.Histogram
	CheckoutAttempts prometheus.Histogram
	SlotReservations *prometheus.CounterVec
	CouponRedeemed   prometheus.Counter
	OutboxPublished  *prometheus.CounterVec
	SlotDrift        prometheus.Counter
}

// New registers every collector on a fresh registry so tests and multiple
// binaries in one process never collide on the default registerer.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"route", "status"}),
		LatencyMS: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_ms",
			Help:      "HTTP request latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"route"}),
		Checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkouts_total",
			Help:      "Checkout outcomes by result code.",
		}, []string{"result"}),
		CheckoutLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "checkout_duration_seconds",
			Help:      "End-to-end checkout latency.",
			Buckets:   prometheus.DefBuckets,
		}),
		CheckoutAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "checkout_attempts",
			Help:      "Transaction attempts per checkout call.",
			Buckets:   []float64{1, 2, 3, 4, 5},
		}),
		SlotReservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slot_reservations_total",
			Help:      "Delivery slot reservation outcomes.",
		}, []string{"result"}),
		CouponRedeemed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coupon_redemptions_total",
			Help:      "Coupons redeemed by committed checkouts.",
		}),
		OutboxPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_published_total",
			Help:      "Outbox records relayed to Kafka by topic.",
		}, []string{"topic"}),
		SlotDrift: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slot_reconcile_corrections_total",
			Help:      "Delivery slots whose reserved count was corrected by reconciliation.",
		}),
	}
	m.Registry.MustRegister(
		m.Requests, m.LatencyMS,
		m.Checkouts, m.CheckoutLatency, m.CheckoutAttempts,
		m.SlotReservations, m.CouponRedeemed,
		m.OutboxPublished, m.SlotDrift,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRequest(route string, status int, took time.Duration) {
	m.Requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.LatencyMS.WithLabelValues(route).Observe(float64(took.Milliseconds()))
}
