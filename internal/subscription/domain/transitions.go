package domain

import (
	"time"

	eventdomain "github.com/fortimind/subscriptions/internal/billingevent/domain"
)

// Outcome describes what applying an event did to a record.
type Outcome string

const (
	OutcomeApplied      Outcome = "applied"
	OutcomeNoop         Outcome = "noop"
	OutcomeUnrecognized Outcome = "unrecognized"
)

// NewRecord returns a fresh inactive record for a user with no prior state.
func NewRecord(userID string, now time.Time) Record {
	return Record{
		Flag: UserFlag{
			UserID:    userID,
			IsPremium: false,
			UpdatedAt: now,
		},
		Subscription: Subscription{
			UserID:    userID,
			Status:    SubscriptionStatusInactive,
			UpdatedAt: now,
		},
	}
}

// Apply maps a billing event onto the current record and returns the
// next record. It is a pure function: the caller persists the result.
// Re-applying the same event to the resulting record is a no-op aside
// from timestamps, which keeps at-least-once delivery safe.
func Apply(current Record, event *eventdomain.BillingEvent, now time.Time) (Record, Outcome) {
	next := current

	switch event.Kind {
	case eventdomain.KindActivated:
		next.Subscription.Status = SubscriptionStatusActive
		next.Flag.IsPremium = true
		next.Subscription.ActivatedAt = timePtr(now)
		next.Subscription.LastPaymentAt = timePtr(now)
		next.Subscription.DeactivatedAt = nil
		next.Subscription.DeactivationReason = nil
		next.Subscription.PaymentStatus = nil
		next.Subscription.NeedsReview = false
		next.Subscription.ReviewReason = nil
		if event.ResourceID != "" {
			next.Subscription.PayPalSubscriptionID = strPtr(event.ResourceID)
		}

	case eventdomain.KindCancelled, eventdomain.KindSuspended, eventdomain.KindExpired:
		// Unconditional regardless of current state: deactivating an
		// already-inactive subscription is harmless.
		next.Subscription.Status = SubscriptionStatusInactive
		next.Flag.IsPremium = false
		next.Subscription.DeactivatedAt = timePtr(now)
		next.Subscription.DeactivationReason = strPtr(event.RawType)

	case eventdomain.KindPaymentCompleted:
		if current.Subscription.Status != SubscriptionStatusActive {
			return current, OutcomeNoop
		}
		next.Subscription.LastPaymentAt = timePtr(now)

	case eventdomain.KindPaymentFailed:
		// Billing trouble is flagged for reconciliation, not an
		// immediate revocation. The user keeps access through the
		// grace period.
		failed := PaymentStatusFailed
		next.Subscription.PaymentStatus = &failed
		next.Subscription.LastFailedPaymentAt = timePtr(now)

	default:
		return current, OutcomeUnrecognized
	}

	next.Flag.UpdatedAt = now
	next.Subscription.UpdatedAt = now
	return next, OutcomeApplied
}

// Deactivate returns the record with premium access revoked for the
// given reason. Reconciler sweeps use it for synthetic transitions.
func Deactivate(current Record, reason string, now time.Time) Record {
	next := current
	next.Subscription.Status = SubscriptionStatusInactive
	next.Flag.IsPremium = false
	next.Subscription.DeactivatedAt = timePtr(now)
	next.Subscription.DeactivationReason = strPtr(reason)
	next.Flag.UpdatedAt = now
	next.Subscription.UpdatedAt = now
	return next
}

// FlagForReview marks the record for manual review without touching
// premium access.
func FlagForReview(current Record, reason string, now time.Time) Record {
	next := current
	next.Subscription.NeedsReview = true
	next.Subscription.ReviewReason = strPtr(reason)
	next.Subscription.UpdatedAt = now
	next.Flag.UpdatedAt = now
	return next
}

// Activate returns the record transitioned to active. Manual overrides
// use it with the same combined write as event transitions.
func Activate(current Record, subscriptionID string, now time.Time) Record {
	next := current
	next.Subscription.Status = SubscriptionStatusActive
	next.Flag.IsPremium = true
	next.Subscription.ActivatedAt = timePtr(now)
	if next.Subscription.LastPaymentAt == nil {
		next.Subscription.LastPaymentAt = timePtr(now)
	}
	next.Subscription.DeactivatedAt = nil
	next.Subscription.DeactivationReason = nil
	next.Subscription.PaymentStatus = nil
	next.Subscription.NeedsReview = false
	next.Subscription.ReviewReason = nil
	if subscriptionID != "" {
		next.Subscription.PayPalSubscriptionID = strPtr(subscriptionID)
	}
	next.Flag.UpdatedAt = now
	next.Subscription.UpdatedAt = now
	return next
}

func timePtr(t time.Time) *time.Time { return &t }

func strPtr(s string) *string { return &s }
