package repository

import (
	"context"

	subscriptiondomain "github.com/fortimind/subscriptions/internal/subscription/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() subscriptiondomain.Repository {
	return &repo{}
}

func (r *repo) FindRecord(ctx context.Context, db *gorm.DB, userID string) (*subscriptiondomain.Record, error) {
	return r.find(ctx, db, userID, false)
}

func (r *repo) FindRecordForUpdate(ctx context.Context, db *gorm.DB, userID string) (*subscriptiondomain.Record, error) {
	return r.find(ctx, db, userID, true)
}

func (r *repo) find(ctx context.Context, db *gorm.DB, userID string, forUpdate bool) (*subscriptiondomain.Record, error) {
	var subscription subscriptiondomain.Subscription
	query := `SELECT user_id, status, paypal_subscription_id, activated_at, deactivated_at,
		 last_payment_at, last_failed_payment_at, payment_status, deactivation_reason,
		 needs_review, review_reason, updated_at
		 FROM subscriptions WHERE user_id = ?`
	if forUpdate && supportsRowLocks(db) {
		query += ` FOR UPDATE`
	}
	if err := db.WithContext(ctx).Raw(query, userID).Scan(&subscription).Error; err != nil {
		return nil, err
	}

	var flag subscriptiondomain.UserFlag
	if err := db.WithContext(ctx).Raw(
		`SELECT user_id, is_premium, updated_at FROM user_flags WHERE user_id = ?`,
		userID,
	).Scan(&flag).Error; err != nil {
		return nil, err
	}

	if subscription.UserID == "" && flag.UserID == "" {
		return nil, nil
	}
	if subscription.UserID == "" {
		subscription.UserID = flag.UserID
		subscription.Status = subscriptiondomain.SubscriptionStatusInactive
	}
	if flag.UserID == "" {
		flag.UserID = subscription.UserID
	}

	return &subscriptiondomain.Record{Flag: flag, Subscription: subscription}, nil
}

// HasSubscriptionConfig reports whether a subscriptions row exists for
// the user. Reconciler sweeps treat a premium flag with no row as drift.
func (r *repo) HasSubscriptionConfig(ctx context.Context, db *gorm.DB, userID string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM subscriptions WHERE user_id = ?`,
		userID,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) SaveRecord(ctx context.Context, db *gorm.DB, record *subscriptiondomain.Record) error {
	sub := record.Subscription
	if err := db.WithContext(ctx).Exec(
		`INSERT INTO subscriptions (
			user_id, status, paypal_subscription_id, activated_at, deactivated_at,
			last_payment_at, last_failed_payment_at, payment_status, deactivation_reason,
			needs_review, review_reason, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			status = excluded.status,
			paypal_subscription_id = excluded.paypal_subscription_id,
			activated_at = excluded.activated_at,
			deactivated_at = excluded.deactivated_at,
			last_payment_at = excluded.last_payment_at,
			last_failed_payment_at = excluded.last_failed_payment_at,
			payment_status = excluded.payment_status,
			deactivation_reason = excluded.deactivation_reason,
			needs_review = excluded.needs_review,
			review_reason = excluded.review_reason,
			updated_at = excluded.updated_at
		WHERE subscriptions.updated_at <= excluded.updated_at`,
		sub.UserID,
		sub.Status,
		sub.PayPalSubscriptionID,
		sub.ActivatedAt,
		sub.DeactivatedAt,
		sub.LastPaymentAt,
		sub.LastFailedPaymentAt,
		sub.PaymentStatus,
		sub.DeactivationReason,
		sub.NeedsReview,
		sub.ReviewReason,
		sub.UpdatedAt,
	).Error; err != nil {
		return err
	}

	flag := record.Flag
	return db.WithContext(ctx).Exec(
		`INSERT INTO user_flags (user_id, is_premium, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			is_premium = excluded.is_premium,
			updated_at = excluded.updated_at
		WHERE user_flags.updated_at <= excluded.updated_at`,
		flag.UserID,
		flag.IsPremium,
		flag.UpdatedAt,
	).Error
}

func (r *repo) ListPremiumUserIDs(ctx context.Context, db *gorm.DB, afterUserID string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	var userIDs []string
	err := db.WithContext(ctx).Raw(
		`SELECT user_id FROM user_flags
		 WHERE is_premium = TRUE AND user_id > ?
		 ORDER BY user_id ASC
		 LIMIT ?`,
		afterUserID,
		limit,
	).Scan(&userIDs).Error
	if err != nil {
		return nil, err
	}
	return userIDs, nil
}

func supportsRowLocks(db *gorm.DB) bool {
	if db == nil || db.Dialector == nil {
		return false
	}
	switch db.Dialector.Name() {
	case "postgres", "mysql":
		return true
	default:
		return false
	}
}
