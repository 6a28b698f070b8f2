package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Webhook outcomes
const (
	OutcomeIgnored   = "ignored"
	OutcomeGranted   = "granted"
	OutcomeDuplicate = "duplicate"
	OutcomeRejected  = "rejected"
	OutcomeMalformed = "malformed"
	OutcomeUnhandled = "unhandled" // paid but grant impossible
	OutcomeFailed    = "failed"
)

// Notification results
const (
	NotificationSent   = "sent"
	NotificationFailed = "failed"
)

// Metrics of the service
// Nil *Metrics is valid and records nothing
type Metrics struct {
	registry *prometheus.Registry

	webhookEvents       *prometheus.CounterVec
	accessDecisions     *prometheus.CounterVec
	notifications       *prometheus.CounterVec
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// New registers service collectors in the fresh registry along with go and process ones
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		webhookEvents: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paywall_webhook_events_total",
				Help: "Total number of payment webhook events by outcome",
			},
			[]string{"outcome"},
		),
		accessDecisions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paywall_access_decisions_total",
				Help: "Total number of access gate decisions by state",
			},
			[]string{"state", "granted"},
		),
		notifications: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paywall_notifications_total",
				Help: "Total number of magic link emails by result",
			},
			[]string{"result"},
		),
		httpRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paywall_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "status"},
		),
		httpRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "paywall_http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),
	}
}

// Handler exposes registry in Prometheus text format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) WebhookEvent(outcome string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(outcome).Inc()
}

func (m *Metrics) AccessDecision(state string, granted bool) {
	if m == nil {
		return
	}
	m.accessDecisions.WithLabelValues(state, strconv.FormatBool(granted)).Inc()
}

func (m *Metrics) Notification(result string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(result).Inc()
}

func (m *Metrics) HTTPRequest(method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// Registry the collectors are registered in
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
