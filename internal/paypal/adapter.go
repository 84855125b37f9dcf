package paypal

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	eventdomain "github.com/fortimind/subscriptions/internal/billingevent/domain"
)

const Provider = "paypal"

// Event types carried on the wire. Field names and values are an
// external contract with PayPal.
const (
	EventTypeActivated        = "BILLING.SUBSCRIPTION.ACTIVATED"
	EventTypeCancelled        = "BILLING.SUBSCRIPTION.CANCELLED"
	EventTypeSuspended        = "BILLING.SUBSCRIPTION.SUSPENDED"
	EventTypeExpired          = "BILLING.SUBSCRIPTION.EXPIRED"
	EventTypePaymentCompleted = "PAYMENT.SALE.COMPLETED"
	EventTypePaymentDenied    = "PAYMENT.SALE.DENIED"
	EventTypePaymentRefunded  = "PAYMENT.SALE.REFUNDED"
)

// SignatureVerifier abstracts the verification API call so tests can
// substitute a fake.
type SignatureVerifier interface {
	VerifyWebhookSignature(ctx context.Context, webhookID string, headers SignatureHeaders, event []byte) (bool, error)
}

// Adapter verifies and parses PayPal webhook deliveries into canonical
// billing events.
type Adapter struct {
	verifier  SignatureVerifier
	webhookID string
}

func NewAdapter(verifier SignatureVerifier, webhookID string) *Adapter {
	return &Adapter{
		verifier:  verifier,
		webhookID: strings.TrimSpace(webhookID),
	}
}

func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	sig := SignatureHeaders{
		AuthAlgo:         strings.TrimSpace(headers.Get("Paypal-Auth-Algo")),
		CertURL:          strings.TrimSpace(headers.Get("Paypal-Cert-Url")),
		TransmissionID:   strings.TrimSpace(headers.Get("Paypal-Transmission-Id")),
		TransmissionSig:  strings.TrimSpace(headers.Get("Paypal-Transmission-Sig")),
		TransmissionTime: strings.TrimSpace(headers.Get("Paypal-Transmission-Time")),
	}
	if sig.TransmissionID == "" || sig.TransmissionSig == "" || sig.TransmissionTime == "" {
		return eventdomain.ErrInvalidSignature
	}

	verified, err := a.verifier.VerifyWebhookSignature(ctx, a.webhookID, sig, payload)
	if err != nil {
		return err
	}
	if !verified {
		return eventdomain.ErrInvalidSignature
	}
	return nil
}

type webhookEvent struct {
	ID           string          `json:"id"`
	EventType    string          `json:"event_type"`
	ResourceType string          `json:"resource_type"`
	Resource     webhookResource `json:"resource"`
	CreateTime   string          `json:"create_time"`
}

type webhookResource struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	CustomID string `json:"custom_id"`
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*eventdomain.BillingEvent, error) {
	_ = ctx

	var event webhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, eventdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" || strings.TrimSpace(event.EventType) == "" {
		return nil, eventdomain.ErrInvalidEvent
	}

	occurredAt := time.Time{}
	if ts := strings.TrimSpace(event.CreateTime); ts != "" {
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			occurredAt = parsed.UTC()
		}
	}

	rawType := strings.TrimSpace(event.EventType)
	return &eventdomain.BillingEvent{
		Provider:        Provider,
		ProviderEventID: strings.TrimSpace(event.ID),
		RawType:         rawType,
		Kind:            kindOf(rawType),
		UserID:          strings.TrimSpace(event.Resource.CustomID),
		ResourceID:      strings.TrimSpace(event.Resource.ID),
		ResourceStatus:  strings.TrimSpace(event.Resource.Status),
		OccurredAt:      occurredAt,
		RawPayload:      payload,
	}, nil
}

func kindOf(eventType string) eventdomain.EventKind {
	switch eventType {
	case EventTypeActivated:
		return eventdomain.KindActivated
	case EventTypeCancelled:
		return eventdomain.KindCancelled
	case EventTypeSuspended:
		return eventdomain.KindSuspended
	case EventTypeExpired:
		return eventdomain.KindExpired
	case EventTypePaymentCompleted:
		return eventdomain.KindPaymentCompleted
	case EventTypePaymentDenied, EventTypePaymentRefunded:
		return eventdomain.KindPaymentFailed
	default:
		return eventdomain.KindUnrecognized
	}
}

var _ eventdomain.Adapter = (*Adapter)(nil)
