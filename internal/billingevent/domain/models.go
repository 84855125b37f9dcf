// Package domain contains the append-only billing event log and the
// canonical event shapes parsed from provider webhooks.
package domain

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// EventRecord is one received billing event. Rows are inserted once and
// never mutated, forming the audit trail for manual replay.
type EventRecord struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey"`
	Provider        string         `json:"provider" gorm:"type:text;not null;uniqueIndex:uq_subscription_events_provider_event"`
	ProviderEventID string         `json:"provider_event_id" gorm:"type:text;not null;uniqueIndex:uq_subscription_events_provider_event"`
	EventType       string         `json:"event_type" gorm:"type:text;not null"`
	UserID          string         `json:"user_id" gorm:"type:text;not null;index"`
	ResourceID      string         `json:"resource_id" gorm:"type:text"`
	ResourceStatus  string         `json:"resource_status" gorm:"type:text"`
	Payload         datatypes.JSON `json:"payload" gorm:"type:jsonb"`
	OccurredAt      *time.Time     `json:"occurred_at"`
	ReceivedAt      time.Time      `json:"received_at" gorm:"not null"`
}

func (EventRecord) TableName() string { return "subscription_events" }

// EventKind is the closed set of billing event shapes the transition
// engine understands. Anything else parses as KindUnrecognized.
type EventKind string

const (
	KindActivated        EventKind = "activated"
	KindCancelled        EventKind = "cancelled"
	KindSuspended        EventKind = "suspended"
	KindExpired          EventKind = "expired"
	KindPaymentCompleted EventKind = "payment_completed"
	KindPaymentFailed    EventKind = "payment_failed"
	KindUnrecognized     EventKind = "unrecognized"
)

// BillingEvent is the canonical event parsed by provider adapters.
type BillingEvent struct {
	Provider        string
	ProviderEventID string
	RawType         string
	Kind            EventKind
	UserID          string
	ResourceID      string
	ResourceStatus  string
	OccurredAt      time.Time
	RawPayload      []byte
}

var (
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrInvalidPayload   = errors.New("invalid_payload")
	ErrInvalidEvent     = errors.New("invalid_event")
	ErrMissingUserID    = errors.New("missing_user_id")
)

// Adapter verifies and parses provider webhook deliveries.
type Adapter interface {
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	Parse(ctx context.Context, payload []byte) (*BillingEvent, error)
}

// Repository persists the append-only event log.
type Repository interface {
	InsertEvent(ctx context.Context, db *gorm.DB, event *EventRecord) (bool, error)
	FindEvent(ctx context.Context, db *gorm.DB, provider, providerEventID string) (*EventRecord, error)
	ListByUser(ctx context.Context, db *gorm.DB, userID string, limit int) ([]EventRecord, error)
}
