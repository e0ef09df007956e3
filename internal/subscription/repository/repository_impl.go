package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	subscriptiondomain "github.com/smallbiznis/cabinet/internal/subscription/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() subscriptiondomain.Repository {
	return &repo{}
}

const selectColumns = `SELECT id, cabinet_id, plan_id, external_id, status, current_period_start,
	current_period_end, cancel_at_period_end, canceled_at, last_event_at, created_at, updated_at
	FROM subscriptions`

func (r *repo) FindByExternalID(ctx context.Context, db *gorm.DB, externalID string) (*subscriptiondomain.Subscription, error) {
	var sub subscriptiondomain.Subscription
	err := db.WithContext(ctx).Raw(
		selectColumns+` WHERE external_id = ?`,
		externalID,
	).Scan(&sub).Error
	if err != nil {
		return nil, err
	}
	if sub.ID == 0 {
		return nil, nil
	}
	return &sub, nil
}

func (r *repo) FindCurrentByCabinet(ctx context.Context, db *gorm.DB, cabinetID snowflake.ID) (*subscriptiondomain.Subscription, error) {
	var sub subscriptiondomain.Subscription
	err := db.WithContext(ctx).Raw(
		selectColumns+` WHERE cabinet_id = ? AND status <> ?
		 ORDER BY updated_at DESC, id DESC
		 LIMIT 1`,
		cabinetID,
		subscriptiondomain.StatusCanceled,
	).Scan(&sub).Error
	if err != nil {
		return nil, err
	}
	if sub.ID == 0 {
		return nil, nil
	}
	return &sub, nil
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, sub *subscriptiondomain.Subscription) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`INSERT INTO subscriptions (
			id, cabinet_id, plan_id, external_id, status, current_period_start, current_period_end,
			cancel_at_period_end, canceled_at, last_event_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (external_id) DO UPDATE SET
			plan_id = excluded.plan_id,
			status = excluded.status,
			current_period_start = excluded.current_period_start,
			current_period_end = excluded.current_period_end,
			cancel_at_period_end = excluded.cancel_at_period_end,
			canceled_at = excluded.canceled_at,
			last_event_at = excluded.last_event_at,
			updated_at = excluded.updated_at
		WHERE subscriptions.status <> 'CANCELED'
			AND (subscriptions.last_event_at IS NULL OR subscriptions.last_event_at <= excluded.last_event_at)`,
		sub.ID,
		sub.CabinetID,
		sub.PlanID,
		sub.ExternalID,
		sub.Status,
		sub.CurrentPeriodStart,
		sub.CurrentPeriodEnd,
		sub.CancelAtPeriodEnd,
		sub.CanceledAt,
		sub.LastEventAt,
		sub.CreatedAt,
		sub.UpdatedAt,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) InsertIfAbsent(ctx context.Context, db *gorm.DB, sub *subscriptiondomain.Subscription) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`INSERT INTO subscriptions (
			id, cabinet_id, plan_id, external_id, status, current_period_start, current_period_end,
			cancel_at_period_end, canceled_at, last_event_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (external_id) DO NOTHING`,
		sub.ID,
		sub.CabinetID,
		sub.PlanID,
		sub.ExternalID,
		sub.Status,
		sub.CurrentPeriodStart,
		sub.CurrentPeriodEnd,
		sub.CancelAtPeriodEnd,
		sub.CanceledAt,
		sub.LastEventAt,
		sub.CreatedAt,
		sub.UpdatedAt,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, externalID string, status subscriptiondomain.Status, eventAt, now time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET status = ?, last_event_at = ?, updated_at = ?
		 WHERE external_id = ?
			AND status <> 'CANCELED'
			AND (last_event_at IS NULL OR last_event_at <= ?)`,
		status,
		eventAt,
		now,
		externalID,
		eventAt,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) Cancel(ctx context.Context, db *gorm.DB, externalID string, canceledAt, eventAt, now time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET status = 'CANCELED',
			canceled_at = COALESCE(canceled_at, ?),
			cancel_at_period_end = ?,
			last_event_at = CASE
				WHEN last_event_at IS NULL OR last_event_at < ? THEN ?
				ELSE last_event_at
			END,
			updated_at = ?
		 WHERE external_id = ?`,
		canceledAt,
		false,
		eventAt,
		eventAt,
		now,
		externalID,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) SupersedeOthers(ctx context.Context, db *gorm.DB, cabinetID snowflake.ID, keepExternalID string, at time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET status = 'CANCELED', canceled_at = COALESCE(canceled_at, ?), updated_at = ?
		 WHERE cabinet_id = ? AND external_id <> ? AND status <> 'CANCELED'`,
		at,
		at,
		cabinetID,
		keepExternalID,
	)
	return result.RowsAffected, result.Error
}
