package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/cabinet/internal/config"
)

type Service interface {
	// Resolve maps the first non-empty reference to a plan.
	Resolve(ctx context.Context, refs ...string) (*Plan, error)
	List(ctx context.Context) ([]Plan, error)
	Sync(ctx context.Context, catalog config.PlanCatalog) (int, error)
}

var (
	// ErrUnmappedPlan marks a processor plan reference with no local plan.
	// It is a data-quality condition: the event is acknowledged, never retried.
	ErrUnmappedPlan = errors.New("unmapped_plan")
	ErrInvalidPlan  = errors.New("invalid_plan")
)
