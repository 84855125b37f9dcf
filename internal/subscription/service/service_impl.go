package service

import (
	"context"
	"strings"

	eventdomain "github.com/fortimind/subscriptions/internal/billingevent/domain"
	"github.com/fortimind/subscriptions/internal/clock"
	subscriptiondomain "github.com/fortimind/subscriptions/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	Repo  subscriptiondomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	repo  subscriptiondomain.Repository
}

func NewService(p Params) subscriptiondomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("subscription.service"),
		clock: p.Clock,
		repo:  p.Repo,
	}
}

// ApplyEvent runs one billing event through the transition engine and
// persists the resulting record. The flag and subscription rows are
// written in the same transaction.
func (s *Service) ApplyEvent(ctx context.Context, event *eventdomain.BillingEvent) (subscriptiondomain.Outcome, error) {
	if event == nil {
		return subscriptiondomain.OutcomeNoop, eventdomain.ErrInvalidEvent
	}
	userID := strings.TrimSpace(event.UserID)
	if userID == "" {
		return subscriptiondomain.OutcomeNoop, eventdomain.ErrMissingUserID
	}

	now := s.clock.Now()
	outcome := subscriptiondomain.OutcomeNoop
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindRecordForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}
		record := subscriptiondomain.NewRecord(userID, now)
		if current != nil {
			record = *current
		}

		next, out := subscriptiondomain.Apply(record, event, now)
		outcome = out
		if out != subscriptiondomain.OutcomeApplied {
			return nil
		}
		return s.repo.SaveRecord(ctx, tx, &next)
	})
	if err != nil {
		return subscriptiondomain.OutcomeNoop, err
	}

	if outcome == subscriptiondomain.OutcomeUnrecognized {
		s.log.Info("unhandled billing event",
			zap.String("user_id", userID),
			zap.String("event_type", event.RawType),
			zap.String("provider_event_id", event.ProviderEventID),
		)
	}
	return outcome, nil
}

// GetStatus returns the current record, creating an inactive one on
// first read for a user with no prior state.
func (s *Service) GetStatus(ctx context.Context, userID string) (subscriptiondomain.StatusResponse, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return subscriptiondomain.StatusResponse{}, subscriptiondomain.ErrInvalidUserID
	}

	var record subscriptiondomain.Record
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindRecord(ctx, tx, userID)
		if err != nil {
			return err
		}
		if current != nil {
			record = *current
			return nil
		}
		record = subscriptiondomain.NewRecord(userID, s.clock.Now())
		return s.repo.SaveRecord(ctx, tx, &record)
	})
	if err != nil {
		return subscriptiondomain.StatusResponse{}, err
	}

	return statusResponse(record), nil
}

// Override applies a manual activate/deactivate with the same combined
// write as event transitions. Re-applying the current state succeeds.
func (s *Service) Override(ctx context.Context, userID, subscriptionID string, action subscriptiondomain.OverrideAction) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return subscriptiondomain.ErrInvalidUserID
	}

	now := s.clock.Now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindRecordForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}
		record := subscriptiondomain.NewRecord(userID, now)
		if current != nil {
			record = *current
		}

		var next subscriptiondomain.Record
		switch action {
		case subscriptiondomain.OverrideActionActivate:
			next = subscriptiondomain.Activate(record, strings.TrimSpace(subscriptionID), now)
		case subscriptiondomain.OverrideActionDeactivate:
			next = subscriptiondomain.Deactivate(record, subscriptiondomain.DeactivationReasonManual, now)
		default:
			return subscriptiondomain.ErrInvalidAction
		}
		return s.repo.SaveRecord(ctx, tx, &next)
	})
	if err != nil {
		return err
	}

	s.log.Info("manual subscription override",
		zap.String("user_id", userID),
		zap.String("action", string(action)),
	)
	return nil
}

// DeactivateUser revokes premium access with the given reason. Used by
// reconciler sweeps for synthetic transitions.
func (s *Service) DeactivateUser(ctx context.Context, userID, reason string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return subscriptiondomain.ErrInvalidUserID
	}

	now := s.clock.Now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindRecordForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}
		record := subscriptiondomain.NewRecord(userID, now)
		if current != nil {
			record = *current
		}
		next := subscriptiondomain.Deactivate(record, reason, now)
		return s.repo.SaveRecord(ctx, tx, &next)
	})
}

// FlagUserForReview marks the record for manual review without
// touching premium access.
func (s *Service) FlagUserForReview(ctx context.Context, userID, reason string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return subscriptiondomain.ErrInvalidUserID
	}

	now := s.clock.Now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindRecordForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}
		if current == nil {
			return subscriptiondomain.ErrRecordNotFound
		}
		next := subscriptiondomain.FlagForReview(*current, reason, now)
		return s.repo.SaveRecord(ctx, tx, &next)
	})
}

func statusResponse(record subscriptiondomain.Record) subscriptiondomain.StatusResponse {
	return subscriptiondomain.StatusResponse{
		IsPremium:            record.Flag.IsPremium,
		Status:               string(record.Subscription.Status),
		PayPalSubscriptionID: record.Subscription.PayPalSubscriptionID,
		ActivatedAt:          record.Subscription.ActivatedAt,
		LastPaymentAt:        record.Subscription.LastPaymentAt,
		DeactivatedAt:        record.Subscription.DeactivatedAt,
		NeedsReview:          record.Subscription.NeedsReview,
		ReviewReason:         record.Subscription.ReviewReason,
	}
}
