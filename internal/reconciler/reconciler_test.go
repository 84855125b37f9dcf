package reconciler_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	eventdomain "github.com/fortimind/subscriptions/internal/billingevent/domain"
	"github.com/fortimind/subscriptions/internal/clock"
	"github.com/fortimind/subscriptions/internal/config"
	"github.com/fortimind/subscriptions/internal/reconciler"
	subscriptiondomain "github.com/fortimind/subscriptions/internal/subscription/domain"
	subscriptionrepo "github.com/fortimind/subscriptions/internal/subscription/repository"
	subscriptionservice "github.com/fortimind/subscriptions/internal/subscription/service"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(
		&subscriptiondomain.UserFlag{},
		&subscriptiondomain.Subscription{},
		&eventdomain.EventRecord{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newReconciler(t *testing.T, db *gorm.DB, fake *clock.FakeClock) *reconciler.Reconciler {
	t.Helper()

	repo := subscriptionrepo.Provide()
	subscriptionSvc := subscriptionservice.NewService(subscriptionservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		Clock: fake,
		Repo:  repo,
	})

	r, err := reconciler.New(reconciler.Params{
		DB:              db,
		Log:             zap.NewNop(),
		Clock:           fake,
		Policy:          config.NewStaticPolicyHolder(config.DefaultReconcilerPolicy()),
		Repo:            repo,
		SubscriptionSvc: subscriptionSvc,
	})
	if err != nil {
		t.Fatalf("new reconciler: %v", err)
	}
	return r
}

// seedActiveUser writes a premium user with an active subscription whose
// last payment landed at paidAt.
func seedActiveUser(t *testing.T, db *gorm.DB, userID string, paidAt time.Time) {
	t.Helper()

	repo := subscriptionrepo.Provide()
	record := subscriptiondomain.NewRecord(userID, paidAt)
	record.Flag.IsPremium = true
	record.Subscription.Status = subscriptiondomain.SubscriptionStatusActive
	record.Subscription.ActivatedAt = &paidAt
	record.Subscription.LastPaymentAt = &paidAt
	if err := repo.SaveRecord(context.Background(), db, &record); err != nil {
		t.Fatalf("seed user %s: %v", userID, err)
	}
}

func loadRecord(t *testing.T, db *gorm.DB, userID string) subscriptiondomain.Record {
	t.Helper()

	record, err := subscriptionrepo.Provide().FindRecord(context.Background(), db, userID)
	if err != nil {
		t.Fatalf("load record %s: %v", userID, err)
	}
	if record == nil {
		t.Fatalf("record %s not found", userID)
	}
	return *record
}

func TestRunOncePremiumUserWithoutConfigIsDeactivated(t *testing.T) {
	db := setupTestDB(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fake := clock.NewFakeClock(now)

	// Premium flag with no subscriptions row at all.
	seededAt := now.Add(-time.Hour)
	if err := db.Exec(
		`INSERT INTO user_flags (user_id, is_premium, updated_at) VALUES (?, ?, ?)`,
		"user_orphan", true, seededAt,
	).Error; err != nil {
		t.Fatalf("seed flag: %v", err)
	}

	r := newReconciler(t, db, fake)
	if err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	record := loadRecord(t, db, "user_orphan")
	if record.Flag.IsPremium {
		t.Fatalf("expected premium revoked for user without config")
	}
	if record.Subscription.DeactivationReason == nil || *record.Subscription.DeactivationReason != subscriptiondomain.DeactivationReasonMissing {
		t.Fatalf("expected missing_config reason, got %v", record.Subscription.DeactivationReason)
	}
}

func TestRunOnceDriftedStatusIsDeactivated(t *testing.T) {
	db := setupTestDB(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fake := clock.NewFakeClock(now)

	// Premium flag set but the stored status says cancelled.
	seededAt := now.Add(-time.Hour)
	repo := subscriptionrepo.Provide()
	record := subscriptiondomain.NewRecord("user_drift", seededAt)
	record.Flag.IsPremium = true
	record.Subscription.Status = subscriptiondomain.SubscriptionStatusCancelled
	if err := repo.SaveRecord(context.Background(), db, &record); err != nil {
		t.Fatalf("seed: %v", err)
	}

	r := newReconciler(t, db, fake)
	if err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	got := loadRecord(t, db, "user_drift")
	if got.Flag.IsPremium {
		t.Fatalf("expected premium revoked for drifted user")
	}
	if got.Subscription.DeactivationReason == nil || *got.Subscription.DeactivationReason != string(subscriptiondomain.SubscriptionStatusCancelled) {
		t.Fatalf("expected stored status as reason, got %v", got.Subscription.DeactivationReason)
	}
}

func TestRunOnceOverduePaymentFlagsReviewWithoutRevoking(t *testing.T) {
	db := setupTestDB(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fake := clock.NewFakeClock(now)

	// 40 days since last payment, past the 35 day threshold.
	seedActiveUser(t, db, "user_overdue", now.Add(-40*24*time.Hour))

	r := newReconciler(t, db, fake)
	if err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	record := loadRecord(t, db, "user_overdue")
	if !record.Flag.IsPremium {
		t.Fatalf("overdue payment must not auto-revoke premium")
	}
	if record.Subscription.Status != subscriptiondomain.SubscriptionStatusActive {
		t.Fatalf("expected status untouched, got %s", record.Subscription.Status)
	}
	if !record.Subscription.NeedsReview {
		t.Fatalf("expected needs_review set")
	}
	if record.Subscription.ReviewReason == nil || *record.Subscription.ReviewReason != subscriptiondomain.ReviewReasonPaymentOverdue {
		t.Fatalf("expected payment_overdue reason, got %v", record.Subscription.ReviewReason)
	}
}

func TestRunOnceHealthyUserIsUntouched(t *testing.T) {
	db := setupTestDB(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fake := clock.NewFakeClock(now)

	seedActiveUser(t, db, "user_ok", now.Add(-10*24*time.Hour))

	r := newReconciler(t, db, fake)
	if err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	record := loadRecord(t, db, "user_ok")
	if !record.Flag.IsPremium || record.Subscription.Status != subscriptiondomain.SubscriptionStatusActive {
		t.Fatalf("healthy user changed: %+v", record.Subscription)
	}
	if record.Subscription.NeedsReview {
		t.Fatalf("healthy user should not be flagged for review")
	}
}

func TestRunOnceSweepIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fake := clock.NewFakeClock(now)

	seedActiveUser(t, db, "user_overdue", now.Add(-40*24*time.Hour))

	r := newReconciler(t, db, fake)
	if err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("first sweep: %v", err)
	}
	first := loadRecord(t, db, "user_overdue")

	fake.Advance(time.Hour)
	if err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	second := loadRecord(t, db, "user_overdue")

	if first.Flag.IsPremium != second.Flag.IsPremium ||
		first.Subscription.Status != second.Subscription.Status ||
		first.Subscription.NeedsReview != second.Subscription.NeedsReview {
		t.Fatalf("overlapping sweeps changed state: %+v vs %+v", first.Subscription, second.Subscription)
	}
}

func TestRunOnceSkipsNonPremiumUsers(t *testing.T) {
	db := setupTestDB(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fake := clock.NewFakeClock(now)

	seededAt := now.Add(-time.Hour)
	record := subscriptiondomain.NewRecord("user_free", seededAt)
	if err := subscriptionrepo.Provide().SaveRecord(context.Background(), db, &record); err != nil {
		t.Fatalf("seed: %v", err)
	}

	r := newReconciler(t, db, fake)
	if err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	got := loadRecord(t, db, "user_free")
	if got.Subscription.DeactivatedAt != nil || got.Subscription.NeedsReview {
		t.Fatalf("non-premium user should be ignored by the sweep: %+v", got.Subscription)
	}
}
