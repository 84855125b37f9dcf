package domain

import (
	"context"
	"errors"
	"time"

	eventdomain "github.com/fortimind/subscriptions/internal/billingevent/domain"
)

// OverrideAction is the explicit action carried by a manual override.
type OverrideAction string

const (
	OverrideActionActivate   OverrideAction = "activate"
	OverrideActionDeactivate OverrideAction = "deactivate"
)

const DeactivationReasonManual = "manual_override"

var (
	ErrInvalidUserID          = errors.New("invalid_user_id")
	ErrInvalidAction          = errors.New("invalid_action")
	ErrRecordNotFound         = errors.New("record_not_found")
	ErrEventAlreadyProcessed  = errors.New("event_already_processed")
	ErrConcurrentModification = errors.New("concurrent_modification")
)

// StatusResponse is the read shape returned by the query API.
type StatusResponse struct {
	IsPremium            bool       `json:"isPremium"`
	Status               string     `json:"status"`
	PayPalSubscriptionID *string    `json:"paypalSubscriptionId"`
	ActivatedAt          *time.Time `json:"activatedAt"`
	LastPaymentAt        *time.Time `json:"lastPaymentAt"`
	DeactivatedAt        *time.Time `json:"deactivatedAt"`
	NeedsReview          bool       `json:"needsReview"`
	ReviewReason         *string    `json:"reviewReason"`
}

// Service owns subscription state changes. Every write keeps the
// flag and subscription rows consistent inside one transaction.
type Service interface {
	ApplyEvent(ctx context.Context, event *eventdomain.BillingEvent) (Outcome, error)
	GetStatus(ctx context.Context, userID string) (StatusResponse, error)
	Override(ctx context.Context, userID, subscriptionID string, action OverrideAction) error
	DeactivateUser(ctx context.Context, userID, reason string) error
	FlagUserForReview(ctx context.Context, userID, reason string) error
}
