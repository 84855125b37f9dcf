package paypal

import (
	"context"
	"net/http"
	"testing"
	"time"

	eventdomain "github.com/fortimind/subscriptions/internal/billingevent/domain"
)

type fakeVerifier struct {
	verified bool
	err      error

	gotWebhookID string
	gotHeaders   SignatureHeaders
}

func (f *fakeVerifier) VerifyWebhookSignature(ctx context.Context, webhookID string, headers SignatureHeaders, event []byte) (bool, error) {
	f.gotWebhookID = webhookID
	f.gotHeaders = headers
	return f.verified, f.err
}

func signatureHeaders() http.Header {
	h := http.Header{}
	h.Set("Paypal-Auth-Algo", "SHA256withRSA")
	h.Set("Paypal-Cert-Url", "https://api.paypal.com/cert")
	h.Set("Paypal-Transmission-Id", "tx-1")
	h.Set("Paypal-Transmission-Sig", "sig-1")
	h.Set("Paypal-Transmission-Time", "2026-03-01T12:00:00Z")
	return h
}

func TestVerifyPassesHeadersToVerifier(t *testing.T) {
	verifier := &fakeVerifier{verified: true}
	adapter := NewAdapter(verifier, "WHID-1")

	if err := adapter.Verify(context.Background(), []byte(`{}`), signatureHeaders()); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if verifier.gotWebhookID != "WHID-1" {
		t.Fatalf("expected webhook id forwarded, got %q", verifier.gotWebhookID)
	}
	if verifier.gotHeaders.TransmissionID != "tx-1" || verifier.gotHeaders.TransmissionSig != "sig-1" {
		t.Fatalf("expected transmission headers forwarded, got %+v", verifier.gotHeaders)
	}
}

func TestVerifyRejectsMissingTransmissionHeaders(t *testing.T) {
	verifier := &fakeVerifier{verified: true}
	adapter := NewAdapter(verifier, "WHID-1")

	headers := signatureHeaders()
	headers.Del("Paypal-Transmission-Sig")

	err := adapter.Verify(context.Background(), []byte(`{}`), headers)
	if err != eventdomain.ErrInvalidSignature {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
	if verifier.gotWebhookID != "" {
		t.Fatalf("verifier should not be called when headers are incomplete")
	}
}

func TestVerifyRejectsFailedVerification(t *testing.T) {
	adapter := NewAdapter(&fakeVerifier{verified: false}, "WHID-1")

	err := adapter.Verify(context.Background(), []byte(`{}`), signatureHeaders())
	if err != eventdomain.ErrInvalidSignature {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestParseSubscriptionActivated(t *testing.T) {
	payload := []byte(`{
		"id": "WH-55TG",
		"event_type": "BILLING.SUBSCRIPTION.ACTIVATED",
		"resource_type": "subscription",
		"resource": {"id": "I-BW452GLLEP1G", "status": "ACTIVE", "custom_id": "user_1"},
		"create_time": "2026-03-01T12:00:00Z"
	}`)

	adapter := NewAdapter(&fakeVerifier{verified: true}, "WHID-1")
	event, err := adapter.Parse(context.Background(), payload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if event.Provider != Provider {
		t.Fatalf("expected provider %q, got %q", Provider, event.Provider)
	}
	if event.ProviderEventID != "WH-55TG" {
		t.Fatalf("expected event id, got %q", event.ProviderEventID)
	}
	if event.Kind != eventdomain.KindActivated {
		t.Fatalf("expected activated kind, got %q", event.Kind)
	}
	if event.UserID != "user_1" {
		t.Fatalf("expected custom_id as user id, got %q", event.UserID)
	}
	if event.ResourceID != "I-BW452GLLEP1G" {
		t.Fatalf("expected resource id, got %q", event.ResourceID)
	}
	want := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if !event.OccurredAt.Equal(want) {
		t.Fatalf("expected create_time parsed, got %v", event.OccurredAt)
	}
}

func TestParseKindMapping(t *testing.T) {
	cases := map[string]eventdomain.EventKind{
		EventTypeActivated:        eventdomain.KindActivated,
		EventTypeCancelled:        eventdomain.KindCancelled,
		EventTypeSuspended:        eventdomain.KindSuspended,
		EventTypeExpired:          eventdomain.KindExpired,
		EventTypePaymentCompleted: eventdomain.KindPaymentCompleted,
		EventTypePaymentDenied:    eventdomain.KindPaymentFailed,
		EventTypePaymentRefunded:  eventdomain.KindPaymentFailed,
		"BILLING.PLAN.UPDATED":    eventdomain.KindUnrecognized,
	}
	for rawType, want := range cases {
		if got := kindOf(rawType); got != want {
			t.Fatalf("%s: expected %q, got %q", rawType, want, got)
		}
	}
}

func TestParseRejectsMalformedPayload(t *testing.T) {
	adapter := NewAdapter(&fakeVerifier{verified: true}, "WHID-1")

	if _, err := adapter.Parse(context.Background(), []byte(`not json`)); err != eventdomain.ErrInvalidPayload {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
	if _, err := adapter.Parse(context.Background(), []byte(`{"event_type":""}`)); err != eventdomain.ErrInvalidEvent {
		t.Fatalf("expected ErrInvalidEvent, got %v", err)
	}
}

func TestParseMissingCustomIDYieldsEmptyUser(t *testing.T) {
	payload := []byte(`{
		"id": "WH-77",
		"event_type": "BILLING.SUBSCRIPTION.ACTIVATED",
		"resource": {"id": "I-1", "status": "ACTIVE"}
	}`)

	adapter := NewAdapter(&fakeVerifier{verified: true}, "WHID-1")
	event, err := adapter.Parse(context.Background(), payload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if event.UserID != "" {
		t.Fatalf("expected empty user id, got %q", event.UserID)
	}
}
