// Package domain contains persistence models for user subscription state.
package domain

import (
	"time"
)

// SubscriptionStatus represents lifecycle states for a subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusInactive  SubscriptionStatus = "inactive"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
	SubscriptionStatusSuspended SubscriptionStatus = "suspended"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
)

// PaymentStatus marks billing trouble without revoking access.
type PaymentStatus string

const (
	PaymentStatusFailed PaymentStatus = "failed"
)

const (
	ReviewReasonPaymentOverdue = "payment_overdue"
	DeactivationReasonMissing  = "missing_config"
)

// UserFlag is the denormalized premium gate read by the rest of the
// application. It is written together with the Subscription row so no
// observer ever sees the two disagree.
type UserFlag struct {
	UserID    string    `gorm:"primaryKey;type:text"`
	IsPremium bool      `gorm:"not null;default:false"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName sets the database table name.
func (UserFlag) TableName() string { return "user_flags" }

// Subscription captures a user's billing agreement state.
type Subscription struct {
	UserID               string             `gorm:"primaryKey;type:text"`
	Status               SubscriptionStatus `gorm:"type:text;not null;default:inactive"`
	PayPalSubscriptionID *string            `gorm:"column:paypal_subscription_id;type:text;index"`
	ActivatedAt          *time.Time         `gorm:""`
	DeactivatedAt        *time.Time         `gorm:""`
	LastPaymentAt        *time.Time         `gorm:""`
	LastFailedPaymentAt  *time.Time         `gorm:""`
	PaymentStatus        *PaymentStatus     `gorm:"type:text"`
	DeactivationReason   *string            `gorm:"type:text"`
	NeedsReview          bool               `gorm:"not null;default:false"`
	ReviewReason         *string            `gorm:"type:text"`
	UpdatedAt            time.Time          `gorm:"not null"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }

// IsActive reports whether the subscription currently grants premium access.
func (s *Subscription) IsActive() bool {
	return s != nil && s.Status == SubscriptionStatusActive
}

// Record bundles the subscription with its denormalized premium flag.
// Both rows are written in one transaction.
type Record struct {
	Flag         UserFlag
	Subscription Subscription
}
