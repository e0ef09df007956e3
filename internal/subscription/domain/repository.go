package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindByExternalID(ctx context.Context, db *gorm.DB, externalID string) (*Subscription, error)
	// FindCurrentByCabinet returns the cabinet's live subscription, if any.
	FindCurrentByCabinet(ctx context.Context, db *gorm.DB, cabinetID snowflake.ID) (*Subscription, error)
	// Upsert writes the full row keyed by external id. An existing row is only
	// overwritten when it is not CANCELED and its last_event_at is not newer;
	// applied is false when the guard rejected the write.
	Upsert(ctx context.Context, db *gorm.DB, sub *Subscription) (applied bool, err error)
	// InsertIfAbsent inserts the row unless the external id already exists.
	InsertIfAbsent(ctx context.Context, db *gorm.DB, sub *Subscription) (bool, error)
	// UpdateStatus moves a live row to status unless the event is older than the row.
	UpdateStatus(ctx context.Context, db *gorm.DB, externalID string, status Status, eventAt, now time.Time) (int64, error)
	// Cancel is terminal and ignores ordering; last_event_at only moves forward.
	Cancel(ctx context.Context, db *gorm.DB, externalID string, canceledAt, eventAt, now time.Time) (int64, error)
	// SupersedeOthers cancels every other live subscription of the cabinet.
	SupersedeOthers(ctx context.Context, db *gorm.DB, cabinetID snowflake.ID, keepExternalID string, at time.Time) (int64, error)
}
