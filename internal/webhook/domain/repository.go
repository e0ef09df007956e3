package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, record *DeliveryRecord) error
	ListByExternalEventID(ctx context.Context, db *gorm.DB, externalEventID string) ([]DeliveryRecord, error)
	// PruneBefore deletes at most limit rows received before cutoff.
	PruneBefore(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) (int64, error)
}
