// Package webhook ingests billing events delivered by the payment
// provider.
package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	eventdomain "github.com/fortimind/subscriptions/internal/billingevent/domain"
	"github.com/fortimind/subscriptions/internal/clock"
	obsmetrics "github.com/fortimind/subscriptions/internal/observability/metrics"
	subscriptiondomain "github.com/fortimind/subscriptions/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB              *gorm.DB
	Log             *zap.Logger
	GenID           *snowflake.Node
	Clock           clock.Clock
	Adapter         eventdomain.Adapter
	EventRepo       eventdomain.Repository
	SubscriptionSvc subscriptiondomain.Service
	Metrics         *obsmetrics.WebhookMetrics `optional:"true"`
}

type Service struct {
	db              *gorm.DB
	log             *zap.Logger
	genID           *snowflake.Node
	clock           clock.Clock
	adapter         eventdomain.Adapter
	eventRepo       eventdomain.Repository
	subscriptionSvc subscriptiondomain.Service
	metrics         *obsmetrics.WebhookMetrics
}

func NewService(p Params) *Service {
	return &Service{
		db:              p.DB,
		log:             p.Log.Named("webhook"),
		genID:           p.GenID,
		clock:           p.Clock,
		adapter:         p.Adapter,
		eventRepo:       p.EventRepo,
		subscriptionSvc: p.SubscriptionSvc,
		metrics:         p.Metrics,
	}
}

// IngestWebhook authenticates one inbound delivery, appends it to the
// event log and dispatches it to the transition engine. The log write
// happens before dispatch so the delivery is durable even when
// transition logic fails.
func (s *Service) IngestWebhook(ctx context.Context, payload []byte, headers http.Header) error {
	if !json.Valid(payload) {
		return eventdomain.ErrInvalidPayload
	}

	if err := s.adapter.Verify(ctx, payload, headers); err != nil {
		s.recordRejected(obsmetrics.WebhookRejectReasonSignature)
		return err
	}

	event, err := s.adapter.Parse(ctx, payload)
	if err != nil {
		s.recordRejected(obsmetrics.WebhookRejectReasonPayload)
		return err
	}
	if event.Kind != eventdomain.KindUnrecognized && strings.TrimSpace(event.UserID) == "" {
		s.log.Warn("billing event missing user correlation id",
			zap.String("provider_event_id", event.ProviderEventID),
			zap.String("event_type", event.RawType),
		)
		return eventdomain.ErrMissingUserID
	}

	log := s.log.With(
		zap.String("user_id", event.UserID),
		zap.String("provider_event_id", event.ProviderEventID),
		zap.String("event_type", event.RawType),
	)

	inserted, err := s.appendLog(ctx, event)
	if err != nil {
		return err
	}
	if !inserted {
		log.Info("duplicate event delivery")
		if s.metrics != nil {
			s.metrics.RecordDuplicate()
		}
		return nil
	}

	outcome, err := s.subscriptionSvc.ApplyEvent(ctx, event)
	if err != nil {
		log.Error("transition failed, event kept in log", zap.Error(err))
		if s.metrics != nil {
			s.metrics.RecordEvent(event.RawType, obsmetrics.WebhookOutcomeError)
		}
		return err
	}

	if s.metrics != nil {
		s.metrics.RecordEvent(event.RawType, outcomeLabel(outcome))
	}
	log.Info("billing event processed", zap.String("outcome", string(outcome)))
	return nil
}

func (s *Service) appendLog(ctx context.Context, event *eventdomain.BillingEvent) (bool, error) {
	record := eventdomain.EventRecord{
		ID:              s.genID.Generate(),
		Provider:        event.Provider,
		ProviderEventID: event.ProviderEventID,
		EventType:       event.RawType,
		UserID:          event.UserID,
		ResourceID:      event.ResourceID,
		ResourceStatus:  event.ResourceStatus,
		Payload:         datatypes.JSON(event.RawPayload),
		ReceivedAt:      s.clock.Now(),
	}
	if !event.OccurredAt.IsZero() {
		occurred := event.OccurredAt
		record.OccurredAt = &occurred
	}
	return s.eventRepo.InsertEvent(ctx, s.db, &record)
}

func (s *Service) recordRejected(reason string) {
	if s.metrics != nil {
		s.metrics.RecordRejected(reason)
	}
}

func outcomeLabel(outcome subscriptiondomain.Outcome) string {
	switch outcome {
	case subscriptiondomain.OutcomeApplied:
		return obsmetrics.WebhookOutcomeApplied
	case subscriptiondomain.OutcomeUnrecognized:
		return obsmetrics.WebhookOutcomeUnrecognized
	default:
		return obsmetrics.WebhookOutcomeNoop
	}
}
