package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Reconciler is the single write path from processor snapshots to local rows.
type Reconciler interface {
	Reconcile(ctx context.Context, req ReconcileRequest) (ReconcileResult, error)
}

type ReconcileRequest struct {
	Snapshot Snapshot
	PlanID   snowflake.ID
	// CabinetID is required only when the subscription is not yet known locally.
	CabinetID snowflake.ID
	EventAt   time.Time
}

type ReconcileResult struct {
	Subscription *Subscription
	Applied      bool
	Created      bool
}

var (
	ErrMissingTenantReference = errors.New("missing_tenant_reference")
	ErrUnmappedStatus         = errors.New("unmapped_subscription_status")
	ErrStaleEvent             = errors.New("stale_subscription_event")
	ErrInvalidSnapshot        = errors.New("invalid_subscription_snapshot")
)
