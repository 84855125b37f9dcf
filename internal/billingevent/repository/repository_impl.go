package repository

import (
	"context"

	"github.com/fortimind/subscriptions/internal/billingevent/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, event *domain.EventRecord) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO subscription_events (
			id, provider, provider_event_id, event_type, user_id,
			resource_id, resource_status, payload, occurred_at, received_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (provider, provider_event_id) DO NOTHING`,
		event.ID,
		event.Provider,
		event.ProviderEventID,
		event.EventType,
		event.UserID,
		event.ResourceID,
		event.ResourceStatus,
		event.Payload,
		event.OccurredAt,
		event.ReceivedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindEvent(ctx context.Context, db *gorm.DB, provider, providerEventID string) (*domain.EventRecord, error) {
	var item domain.EventRecord
	err := db.WithContext(ctx).Raw(
		`SELECT id, provider, provider_event_id, event_type, user_id,
			resource_id, resource_status, payload, occurred_at, received_at
		 FROM subscription_events
		 WHERE provider = ? AND provider_event_id = ?
		 LIMIT 1`,
		provider,
		providerEventID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ListByUser(ctx context.Context, db *gorm.DB, userID string, limit int) ([]domain.EventRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var items []domain.EventRecord
	err := db.WithContext(ctx).Raw(
		`SELECT id, provider, provider_event_id, event_type, user_id,
			resource_id, resource_status, payload, occurred_at, received_at
		 FROM subscription_events
		 WHERE user_id = ?
		 ORDER BY received_at DESC
		 LIMIT ?`,
		userID,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
