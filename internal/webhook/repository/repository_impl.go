package repository

import (
	"context"
	"time"

	webhookdomain "github.com/smallbiznis/cabinet/internal/webhook/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() webhookdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, record *webhookdomain.DeliveryRecord) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO webhook_events (
			id, delivery_id, external_event_id, event_type, outcome, error, payload, received_at, processed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.DeliveryID,
		record.ExternalEventID,
		record.EventType,
		record.Outcome,
		record.Error,
		record.Payload,
		record.ReceivedAt,
		record.ProcessedAt,
	).Error
}

func (r *repo) ListByExternalEventID(ctx context.Context, db *gorm.DB, externalEventID string) ([]webhookdomain.DeliveryRecord, error) {
	var records []webhookdomain.DeliveryRecord
	err := db.WithContext(ctx).Raw(
		`SELECT id, delivery_id, external_event_id, event_type, outcome, error, payload, received_at, processed_at
		 FROM webhook_events
		 WHERE external_event_id = ?
		 ORDER BY received_at ASC, id ASC`,
		externalEventID,
	).Scan(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *repo) PruneBefore(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) (int64, error) {
	if limit <= 0 {
		limit = 1000
	}
	result := db.WithContext(ctx).Exec(
		`DELETE FROM webhook_events
		 WHERE id IN (
			SELECT id FROM webhook_events
			WHERE received_at < ?
			ORDER BY received_at ASC
			LIMIT ?
		 )`,
		cutoff,
		limit,
	)
	return result.RowsAffected, result.Error
}
