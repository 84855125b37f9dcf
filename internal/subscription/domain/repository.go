package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	FindRecord(ctx context.Context, db *gorm.DB, userID string) (*Record, error)
	FindRecordForUpdate(ctx context.Context, db *gorm.DB, userID string) (*Record, error)
	HasSubscriptionConfig(ctx context.Context, db *gorm.DB, userID string) (bool, error)
	SaveRecord(ctx context.Context, db *gorm.DB, record *Record) error
	ListPremiumUserIDs(ctx context.Context, db *gorm.DB, afterUserID string, limit int) ([]string, error)
}
