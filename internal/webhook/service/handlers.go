package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	cabinetdomain "github.com/smallbiznis/cabinet/internal/cabinet/domain"
	"github.com/smallbiznis/cabinet/internal/clock"
	obsmetrics "github.com/smallbiznis/cabinet/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/cabinet/internal/payment/domain"
	plandomain "github.com/smallbiznis/cabinet/internal/plan/domain"
	"github.com/smallbiznis/cabinet/internal/processor"
	subscriptiondomain "github.com/smallbiznis/cabinet/internal/subscription/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// handlers holds the per-kind event logic. Every mutation is derived from the
// event and the row its external id points at.
type handlers struct {
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	genID       *snowflake.Node
	payments    paymentdomain.Service
	plans       plandomain.Service
	reconciler  subscriptiondomain.Reconciler
	subRepo     subscriptiondomain.Repository
	cabinetRepo cabinetdomain.Repository
	processor   processor.Client
	obsMetrics  *obsmetrics.Metrics
}

func (h *handlers) now() time.Time {
	return h.clock.Now().UTC().Truncate(time.Second)
}

// resolveCabinet reads the tenant reference, falling back to the processor
// customer already attached to a cabinet. Zero means unknown.
func (h *handlers) resolveCabinet(ctx context.Context, ref, customerID string) (snowflake.ID, error) {
	if ref = strings.TrimSpace(ref); ref != "" {
		id, err := snowflake.ParseString(ref)
		if err == nil && id != 0 {
			return id, nil
		}
		h.log.Warn("malformed cabinet reference", zap.String("cabinet_ref", ref))
	}
	cabinet, err := h.cabinetRepo.FindByCustomerID(ctx, h.db, strings.TrimSpace(customerID))
	if err != nil {
		return 0, err
	}
	if cabinet == nil {
		return 0, nil
	}
	return cabinet.ID, nil
}

func (h *handlers) resolvePlan(ctx context.Context, eventType string, refs ...string) (*plandomain.Plan, error) {
	plan, err := h.plans.Resolve(ctx, refs...)
	if err != nil {
		if isUnmappedPlan(err) {
			h.obsMetrics.RecordUnmappedPlan(ctx, eventType)
		}
		return nil, err
	}
	return plan, nil
}
