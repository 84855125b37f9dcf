package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func gatherCounter(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			if !matchLabels(metric, labels) {
				continue
			}
			if metric.GetCounter() != nil {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func matchLabels(metric *dto.Metric, labels map[string]string) bool {
	got := map[string]string{}
	for _, pair := range metric.GetLabel() {
		got[pair.GetName()] = pair.GetValue()
	}
	for k, v := range labels {
		if got[k] != v {
			return false
		}
	}
	return true
}

func TestObserveRequestCountsByRouteAndStatus(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newHTTPMetrics(registry, Config{ServiceName: "fortimind", Environment: "test"})

	m.ObserveRequest("/webhook", "POST", 200, 25*time.Millisecond)
	m.ObserveRequest("/webhook", "POST", 200, 10*time.Millisecond)
	m.ObserveRequest("/webhook", "POST", 401, 5*time.Millisecond)

	ok := gatherCounter(t, registry, "fortimind_http_requests_total", map[string]string{
		"route":       "/webhook",
		"method":      "POST",
		"status_code": "200",
	})
	if ok != 2 {
		t.Fatalf("expected 2 ok requests, got %v", ok)
	}
	rejected := gatherCounter(t, registry, "fortimind_http_requests_total", map[string]string{
		"status_code": "401",
	})
	if rejected != 1 {
		t.Fatalf("expected 1 rejected request, got %v", rejected)
	}
}

func TestObserveRequestNormalizesEmptyRoute(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newHTTPMetrics(registry, Config{ServiceName: "fortimind", Environment: "test"})

	m.ObserveRequest("", "GET", 404, time.Millisecond)

	got := gatherCounter(t, registry, "fortimind_http_requests_total", map[string]string{
		"route": "unknown",
	})
	if got != 1 {
		t.Fatalf("expected unknown route counted, got %v", got)
	}
}

func TestWebhookMetricsRecordOutcomes(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newWebhookMetrics(registry, Config{ServiceName: "fortimind", Environment: "test"})

	m.RecordEvent("BILLING.SUBSCRIPTION.ACTIVATED", WebhookOutcomeApplied)
	m.RecordEvent("BILLING.PLAN.UPDATED", WebhookOutcomeUnrecognized)
	m.RecordDuplicate()
	m.RecordRejected(WebhookRejectReasonSignature)

	applied := gatherCounter(t, registry, "fortimind_webhook_events_total", map[string]string{
		"event_type": "BILLING.SUBSCRIPTION.ACTIVATED",
		"outcome":    WebhookOutcomeApplied,
	})
	if applied != 1 {
		t.Fatalf("expected applied event counted, got %v", applied)
	}
	duplicates := gatherCounter(t, registry, "fortimind_webhook_duplicate_events_total", nil)
	if duplicates != 1 {
		t.Fatalf("expected duplicate counted, got %v", duplicates)
	}
	rejected := gatherCounter(t, registry, "fortimind_webhook_rejected_total", map[string]string{
		"reason": WebhookRejectReasonSignature,
	})
	if rejected != 1 {
		t.Fatalf("expected rejection counted, got %v", rejected)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var httpMetrics *HTTPMetrics
	httpMetrics.ObserveRequest("/webhook", "POST", 200, time.Millisecond)

	var webhookMetrics *WebhookMetrics
	webhookMetrics.RecordEvent("BILLING.SUBSCRIPTION.ACTIVATED", WebhookOutcomeApplied)
	webhookMetrics.RecordDuplicate()
	webhookMetrics.RecordRejected(WebhookRejectReasonPayload)
}
