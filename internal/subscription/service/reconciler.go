package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	cabinetdomain "github.com/smallbiznis/cabinet/internal/cabinet/domain"
	"github.com/smallbiznis/cabinet/internal/clock"
	subscriptiondomain "github.com/smallbiznis/cabinet/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// errRaceLost rolls back a supersede when a concurrent writer won the row.
var errRaceLost = errors.New("subscription_race_lost")

type Reconciler struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        subscriptiondomain.Repository
	cabinetRepo cabinetdomain.Repository
}

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        subscriptiondomain.Repository
	CabinetRepo cabinetdomain.Repository
}

func NewReconciler(p Params) subscriptiondomain.Reconciler {
	return &Reconciler{
		db:          p.DB,
		log:         p.Log.Named("subscription.reconciler"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		cabinetRepo: p.CabinetRepo,
	}
}

// Reconcile overwrites the local row with the processor snapshot. Replaying
// the same snapshot is a no-op in effect; an older snapshot, or any snapshot
// for a CANCELED row, is reported as not applied.
func (r *Reconciler) Reconcile(ctx context.Context, req subscriptiondomain.ReconcileRequest) (subscriptiondomain.ReconcileResult, error) {
	snapshot := req.Snapshot
	externalID := strings.TrimSpace(snapshot.ExternalID)
	if externalID == "" || req.PlanID == 0 {
		return subscriptiondomain.ReconcileResult{}, subscriptiondomain.ErrInvalidSnapshot
	}

	now := r.clock.Now().UTC().Truncate(time.Second)
	eventAt := req.EventAt.UTC().Truncate(time.Second)
	if req.EventAt.IsZero() {
		eventAt = now
	}

	var result subscriptiondomain.ReconcileResult
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := r.repo.FindByExternalID(ctx, tx, externalID)
		if err != nil {
			return err
		}

		if existing != nil && isStale(existing, eventAt) {
			result = subscriptiondomain.ReconcileResult{Subscription: existing}
			return nil
		}

		status, ok := subscriptiondomain.MapStatus(snapshot.Status)
		if !ok {
			if existing == nil {
				return fmt.Errorf("%w: %q", subscriptiondomain.ErrUnmappedStatus, snapshot.Status)
			}
			status = existing.Status
		}

		row := &subscriptiondomain.Subscription{
			ID:                r.genID.Generate(),
			PlanID:            req.PlanID,
			ExternalID:        externalID,
			Status:            status,
			CancelAtPeriodEnd: snapshot.CancelAtPeriodEnd,
			LastEventAt:       &eventAt,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		row.CurrentPeriodStart = timePtr(snapshot.CurrentPeriodStart)
		row.CurrentPeriodEnd = timePtr(snapshot.CurrentPeriodEnd)
		if snapshot.CanceledAt != nil {
			row.CanceledAt = timePtr(*snapshot.CanceledAt)
		} else if status == subscriptiondomain.StatusCanceled {
			row.CanceledAt = &eventAt
		}

		if existing != nil {
			// A subscription never moves between cabinets.
			row.ID = existing.ID
			row.CabinetID = existing.CabinetID
			row.CreatedAt = existing.CreatedAt
		} else {
			if req.CabinetID == 0 {
				return subscriptiondomain.ErrMissingTenantReference
			}
			cabinet, err := r.cabinetRepo.FindByID(ctx, tx, req.CabinetID)
			if err != nil {
				return err
			}
			if cabinet == nil {
				return fmt.Errorf("%w: cabinet %s not found", subscriptiondomain.ErrMissingTenantReference, req.CabinetID)
			}
			row.CabinetID = cabinet.ID

			if status.Live() {
				superseded, err := r.repo.SupersedeOthers(ctx, tx, row.CabinetID, externalID, now)
				if err != nil {
					return err
				}
				if superseded > 0 {
					r.log.Info("superseded previous subscriptions",
						zap.String("cabinet_id", row.CabinetID.String()),
						zap.String("external_id", externalID),
						zap.Int64("count", superseded),
					)
				}
			}
		}

		applied, err := r.repo.Upsert(ctx, tx, row)
		if err != nil {
			return err
		}
		if !applied {
			if existing == nil {
				return errRaceLost
			}
			result = subscriptiondomain.ReconcileResult{Subscription: existing}
			return nil
		}

		if status == subscriptiondomain.StatusActive || status == subscriptiondomain.StatusPastDue {
			if _, err := r.cabinetRepo.EndTrial(ctx, tx, row.CabinetID, now); err != nil {
				return err
			}
		}

		result = subscriptiondomain.ReconcileResult{
			Subscription: row,
			Applied:      true,
			Created:      existing == nil,
		}
		return nil
	})
	if errors.Is(err, errRaceLost) {
		current, findErr := r.repo.FindByExternalID(ctx, r.db, externalID)
		if findErr != nil {
			return subscriptiondomain.ReconcileResult{}, findErr
		}
		return subscriptiondomain.ReconcileResult{Subscription: current}, nil
	}
	if err != nil {
		return subscriptiondomain.ReconcileResult{}, err
	}

	if !result.Applied {
		r.log.Info("stale subscription snapshot ignored",
			zap.String("external_id", externalID),
			zap.Time("event_at", eventAt),
		)
	}
	return result, nil
}

func isStale(existing *subscriptiondomain.Subscription, eventAt time.Time) bool {
	if existing.Status == subscriptiondomain.StatusCanceled {
		return true
	}
	return existing.LastEventAt != nil && existing.LastEventAt.After(eventAt)
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	v := t.UTC().Truncate(time.Second)
	return &v
}
