// Package reconciler runs the periodic status sweep that catches drift
// events alone cannot: missing configuration, stale payments, premium
// flags that disagree with the stored status.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fortimind/subscriptions/internal/clock"
	"github.com/fortimind/subscriptions/internal/config"
	obsmetrics "github.com/fortimind/subscriptions/internal/observability/metrics"
	subscriptiondomain "github.com/fortimind/subscriptions/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidConfig = errors.New("invalid_reconciler_config")

type Params struct {
	fx.In

	DB              *gorm.DB
	Log             *zap.Logger
	Clock           clock.Clock
	Policy          *config.PolicyHolder
	Repo            subscriptiondomain.Repository
	SubscriptionSvc subscriptiondomain.Service
	Config          Config `optional:"true"`
}

type Reconciler struct {
	db              *gorm.DB
	log             *zap.Logger
	cfg             Config
	clock           clock.Clock
	policy          *config.PolicyHolder
	repo            subscriptiondomain.Repository
	subscriptionSvc subscriptiondomain.Service
}

func New(p Params) (*Reconciler, error) {
	if p.DB == nil || p.Log == nil || p.Clock == nil || p.Policy == nil || p.Repo == nil || p.SubscriptionSvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Reconciler{
		db:              p.DB,
		log:             p.Log.Named("reconciler").With(zap.String("component", "reconciler")),
		cfg:             p.Config.withDefaults(),
		clock:           p.Clock,
		policy:          p.Policy,
		repo:            p.Repo,
		subscriptionSvc: p.SubscriptionSvc,
	}, nil
}

// RunOnce performs a single sweep over every currently-premium user.
// Each user is handled independently; one failure is logged and does
// not abort the rest of the sweep.
func (r *Reconciler) RunOnce(parent context.Context) error {
	start := r.clock.Now()
	ctx, cancel := context.WithTimeout(parent, r.cfg.SweepTimeout)
	defer cancel()

	recMetrics := obsmetrics.Reconciler()
	recMetrics.IncSweepRun()

	policy := r.policy.Current()
	var sweepErr error
	examined := 0

	afterUserID := ""
	for {
		userIDs, err := r.repo.ListPremiumUserIDs(ctx, r.db, afterUserID, policy.BatchSize)
		if err != nil {
			sweepErr = errors.Join(sweepErr, fmt.Errorf("list premium users: %w", err))
			break
		}
		if len(userIDs) == 0 {
			break
		}

		for _, userID := range userIDs {
			examined++
			if err := r.reconcileUser(ctx, userID, policy); err != nil {
				recMetrics.IncSweepError(err)
				r.log.Error("user reconciliation failed",
					zap.String("user_id", userID),
					zap.Error(err),
				)
				sweepErr = errors.Join(sweepErr, fmt.Errorf("user %s: %w", userID, err))
			}
		}
		afterUserID = userIDs[len(userIDs)-1]
	}

	recMetrics.AddUsersExamined(examined)
	recMetrics.ObserveSweepDuration(time.Since(start))
	r.log.Info("sweep finished",
		zap.Int("users_examined", examined),
		zap.Duration("elapsed", time.Since(start)),
		zap.Bool("had_errors", sweepErr != nil),
	)
	return sweepErr
}

func (r *Reconciler) reconcileUser(ctx context.Context, userID string, policy config.ReconcilerPolicy) error {
	hasConfig, err := r.repo.HasSubscriptionConfig(ctx, r.db, userID)
	if err != nil {
		return err
	}
	if !hasConfig {
		if err := r.subscriptionSvc.DeactivateUser(ctx, userID, subscriptiondomain.DeactivationReasonMissing); err != nil {
			return err
		}
		obsmetrics.Reconciler().IncUserDeactivated(subscriptiondomain.DeactivationReasonMissing)
		r.log.Warn("premium user without subscription config deactivated", zap.String("user_id", userID))
		return nil
	}

	record, err := r.repo.FindRecord(ctx, r.db, userID)
	if err != nil {
		return err
	}
	if record == nil {
		return subscriptiondomain.ErrRecordNotFound
	}

	if record.Subscription.Status != subscriptiondomain.SubscriptionStatusActive {
		// Premium flag and status drifted apart.
		reason := string(record.Subscription.Status)
		if err := r.subscriptionSvc.DeactivateUser(ctx, userID, reason); err != nil {
			return err
		}
		obsmetrics.Reconciler().IncUserDeactivated(reason)
		r.log.Warn("premium flag drifted from status",
			zap.String("user_id", userID),
			zap.String("status", reason),
		)
		return nil
	}

	if record.Subscription.NeedsReview {
		return nil
	}
	lastPayment := record.Subscription.LastPaymentAt
	if lastPayment == nil {
		return nil
	}

	overdue := time.Duration(policy.PaymentOverdueDays) * 24 * time.Hour
	if r.clock.Now().Sub(*lastPayment) <= overdue {
		return nil
	}

	// Overdue payment is flagged, never auto-revoked: clock skew and
	// delayed webhook delivery would otherwise cause false positives.
	if err := r.subscriptionSvc.FlagUserForReview(ctx, userID, subscriptiondomain.ReviewReasonPaymentOverdue); err != nil {
		return err
	}
	obsmetrics.Reconciler().IncUserFlagged(subscriptiondomain.ReviewReasonPaymentOverdue)
	r.log.Info("user flagged for payment review",
		zap.String("user_id", userID),
		zap.Timep("last_payment_at", lastPayment),
	)
	return nil
}

// RunForever runs sweeps on the configured interval until the context
// is canceled.
func (r *Reconciler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := r.clock.Now().Add(r.cfg.RunInterval)
	recMetrics := obsmetrics.Reconciler()

	for {
		runLag := time.Since(nextRun)
		if runLag > 0 {
			recMetrics.ObserveRunLoopLag(runLag)
		}
		if err := r.RunOnce(ctx); err != nil {
			r.log.Warn("sweep run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(r.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
