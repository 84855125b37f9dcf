package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Config carries labels shared by every metric family.
type Config struct {
	ServiceName string
	Environment string
}

func (c Config) constLabels() prometheus.Labels {
	serviceName := strings.TrimSpace(c.ServiceName)
	if serviceName == "" {
		serviceName = "fortimind-subscriptions"
	}
	environment := strings.TrimSpace(c.Environment)
	if environment == "" {
		environment = "unknown"
	}
	return prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}
}

// HTTPMetrics instruments the inbound HTTP surface.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewHTTPMetrics registers HTTP request instruments.
func NewHTTPMetrics(cfg Config) *HTTPMetrics {
	return newHTTPMetrics(prometheus.DefaultRegisterer, cfg)
}

func newHTTPMetrics(registerer prometheus.Registerer, cfg Config) *HTTPMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	constLabels := cfg.constLabels()

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "fortimind_http_requests_total",
		Help:        "HTTP requests by route, method and status code.",
		ConstLabels: constLabels,
	}, []string{"route", "method", "status_code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "fortimind_http_request_duration_seconds",
		Help:        "HTTP request latency by route.",
		Buckets:     []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		ConstLabels: constLabels,
	}, []string{"route", "method"})

	registerer.MustRegister(requests, duration)

	return &HTTPMetrics{requests: requests, duration: duration}
}

// ObserveRequest records one completed HTTP request.
func (m *HTTPMetrics) ObserveRequest(route, method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	route = strings.TrimSpace(route)
	if route == "" {
		route = "unknown"
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

// WebhookMetrics instruments webhook event processing outcomes.
type WebhookMetrics struct {
	events     *prometheus.CounterVec
	duplicates prometheus.Counter
	rejected   *prometheus.CounterVec
}

const (
	WebhookOutcomeApplied      = "applied"
	WebhookOutcomeNoop         = "noop"
	WebhookOutcomeUnrecognized = "unrecognized"
	WebhookOutcomeError        = "error"
)

const (
	WebhookRejectReasonSignature = "invalid_signature"
	WebhookRejectReasonPayload   = "invalid_payload"
	WebhookRejectReasonRateLimit = "rate_limited"
)

// NewWebhookMetrics registers webhook event instruments.
func NewWebhookMetrics(cfg Config) *WebhookMetrics {
	return newWebhookMetrics(prometheus.DefaultRegisterer, cfg)
}

func newWebhookMetrics(registerer prometheus.Registerer, cfg Config) *WebhookMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	constLabels := cfg.constLabels()

	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "fortimind_webhook_events_total",
		Help:        "Webhook events by type and processing outcome.",
		ConstLabels: constLabels,
	}, []string{"event_type", "outcome"})
	duplicates := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "fortimind_webhook_duplicate_events_total",
		Help:        "Webhook deliveries skipped because the event was already recorded.",
		ConstLabels: constLabels,
	})
	rejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "fortimind_webhook_rejected_total",
		Help:        "Webhook deliveries rejected before processing.",
		ConstLabels: constLabels,
	}, []string{"reason"})

	registerer.MustRegister(events, duplicates, rejected)

	return &WebhookMetrics{events: events, duplicates: duplicates, rejected: rejected}
}

// RecordEvent counts one processed webhook event by outcome.
func (m *WebhookMetrics) RecordEvent(eventType, outcome string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(strings.TrimSpace(eventType), outcome).Inc()
}

// RecordDuplicate counts one skipped duplicate delivery.
func (m *WebhookMetrics) RecordDuplicate() {
	if m == nil {
		return
	}
	m.duplicates.Inc()
}

// RecordRejected counts one delivery rejected before processing.
func (m *WebhookMetrics) RecordRejected(reason string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(reason).Inc()
}
