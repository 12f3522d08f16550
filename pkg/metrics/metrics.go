package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Billing metrics
	OperationsTotal    *prometheus.CounterVec
	PaymentsMinorTotal *prometheus.CounterVec
	ExpirationsTotal   *prometheus.CounterVec
	RemindersTotal     *prometheus.CounterVec
	JobDuration        *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// New registers every collector on reg. Tests pass a fresh registry so
// repeated construction does not panic on duplicate registration.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		OperationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "subscription_operations_total",
				Help: "Subscription lifecycle operations by outcome",
			},
			[]string{"kind", "operation", "result"}, // result: ok, rejected, conflict, error
		),
		PaymentsMinorTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "subscription_payments_minor_total",
				Help: "Sum of accepted payments in minor currency units",
			},
			[]string{"kind", "plan"},
		),
		ExpirationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "subscription_expirations_total",
				Help: "Subscriptions moved to expired by the sweep job",
			},
			[]string{"kind"},
		),
		RemindersTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "subscription_reminders_total",
				Help: "Near expiry reminder mails",
			},
			[]string{"kind", "result"}, // sent, failed, skipped
		),
		JobDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "billing_job_duration_seconds",
				Help:    "Duration of scheduled billing jobs",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
			},
			[]string{"job"},
		),

		gatherer: reg,
	}
}

// Middleware records request count and latency per route pattern.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath() // route pattern, e.g. /church-subscriptions/:id
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordOperation(kind, operation, result string) {
	m.OperationsTotal.WithLabelValues(kind, operation, result).Inc()
}

func (m *Metrics) RecordPayment(kind, plan string, amountMinor int64) {
	m.PaymentsMinorTotal.WithLabelValues(kind, plan).Add(float64(amountMinor))
}

func (m *Metrics) RecordExpirations(kind string, n int) {
	m.ExpirationsTotal.WithLabelValues(kind).Add(float64(n))
}

func (m *Metrics) RecordReminder(kind, result string) {
	m.RemindersTotal.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) ObserveJob(job string, d time.Duration) {
	m.JobDuration.WithLabelValues(job).Observe(d.Seconds())
}
