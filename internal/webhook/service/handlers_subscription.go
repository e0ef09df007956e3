package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	billingeventdomain "github.com/smallbiznis/cabinet/internal/billingevent/domain"
	plandomain "github.com/smallbiznis/cabinet/internal/plan/domain"
	subscriptiondomain "github.com/smallbiznis/cabinet/internal/subscription/domain"
	webhookdomain "github.com/smallbiznis/cabinet/internal/webhook/domain"
	"go.uber.org/zap"
)

// invoicePayment moves the billed subscription between ACTIVE and PAST_DUE.
func (h *handlers) invoicePayment(ctx context.Context, evt billingeventdomain.Event, invoice billingeventdomain.Invoice) error {
	externalID := invoice.SubscriptionID()
	if externalID == "" {
		return fmt.Errorf("%w: invoice %s bills no subscription", webhookdomain.ErrEventIgnored, invoice.ID)
	}

	status := subscriptiondomain.StatusActive
	if evt.Kind == billingeventdomain.KindInvoicePaymentFailed {
		status = subscriptiondomain.StatusPastDue
	}

	existing, err := h.subRepo.FindByExternalID(ctx, h.db, externalID)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("%w: subscription %s not known locally", webhookdomain.ErrEventIgnored, externalID)
	}

	rows, err := h.subRepo.UpdateStatus(ctx, h.db, externalID, status, evt.Created, h.now())
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("%w: subscription %s is %s", subscriptiondomain.ErrStaleEvent, externalID, existing.Status)
	}

	if existing.CabinetID != 0 {
		if _, err := h.cabinetRepo.EndTrial(ctx, h.db, existing.CabinetID, h.now()); err != nil {
			return err
		}
	}
	return nil
}

func (h *handlers) subscriptionChanged(ctx context.Context, evt billingeventdomain.Event, sub billingeventdomain.Subscription) error {
	plan, err := h.resolvePlan(ctx, evt.Kind.String(), sub.PlanRefs()...)
	if err != nil {
		return err
	}

	cabinetID, err := h.resolveCabinet(ctx, sub.Metadata[billingeventdomain.MetadataCabinetID], sub.Customer.String())
	if err != nil {
		return err
	}

	return h.reconcile(ctx, evt.Kind.String(), subscriptiondomain.ReconcileRequest{
		Snapshot:  sub.Snapshot(),
		PlanID:    plan.ID,
		CabinetID: cabinetID,
		EventAt:   evt.Created,
	})
}

// subscriptionDeleted is terminal. Without a local row a CANCELED tombstone is
// stored so late created/updated deliveries cannot bring the subscription back.
func (h *handlers) subscriptionDeleted(ctx context.Context, evt billingeventdomain.Event, sub billingeventdomain.Subscription) error {
	now := h.now()
	eventAt := evt.Created.UTC().Truncate(time.Second)
	canceledAt := eventAt
	if at := sub.CanceledAtTime(); at != nil {
		canceledAt = *at
	}

	rows, err := h.subRepo.Cancel(ctx, h.db, sub.ID, canceledAt, eventAt, now)
	if err != nil {
		return err
	}
	if rows > 0 {
		return nil
	}

	cabinetID, err := h.resolveCabinet(ctx, sub.Metadata[billingeventdomain.MetadataCabinetID], sub.Customer.String())
	if err != nil {
		return err
	}
	if cabinetID == 0 {
		return fmt.Errorf("%w: deleted subscription %s has no local row and no tenant", webhookdomain.ErrEventIgnored, sub.ID)
	}
	cabinet, err := h.cabinetRepo.FindByID(ctx, h.db, cabinetID)
	if err != nil {
		return err
	}
	if cabinet == nil {
		return fmt.Errorf("%w: cabinet %s", subscriptiondomain.ErrMissingTenantReference, cabinetID)
	}
	plan, err := h.plans.Resolve(ctx, sub.PlanRefs()...)
	if err != nil {
		if isUnmappedPlan(err) {
			return fmt.Errorf("%w: deleted subscription %s has no resolvable plan", webhookdomain.ErrEventIgnored, sub.ID)
		}
		return err
	}

	start, end := sub.Period()
	tombstone := &subscriptiondomain.Subscription{
		ID:                 h.genID.Generate(),
		CabinetID:          cabinet.ID,
		PlanID:             plan.ID,
		ExternalID:         sub.ID,
		Status:             subscriptiondomain.StatusCanceled,
		CurrentPeriodStart: optionalTime(start),
		CurrentPeriodEnd:   optionalTime(end),
		CanceledAt:         &canceledAt,
		LastEventAt:        &eventAt,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	inserted, err := h.subRepo.InsertIfAbsent(ctx, h.db, tombstone)
	if err != nil {
		return err
	}
	if !inserted {
		// A concurrent delivery created the row between Cancel and the insert.
		_, err = h.subRepo.Cancel(ctx, h.db, sub.ID, canceledAt, eventAt, now)
		return err
	}
	h.log.Info("stored canceled subscription tombstone",
		zap.String("subscription_id", sub.ID),
		zap.String("cabinet_id", cabinet.ID.String()),
	)
	return nil
}

func (h *handlers) reconcile(ctx context.Context, eventType string, req subscriptiondomain.ReconcileRequest) error {
	result, err := h.reconciler.Reconcile(ctx, req)
	if err != nil {
		return err
	}
	if !result.Applied {
		h.obsMetrics.RecordStaleSnapshot(ctx, eventType)
		return fmt.Errorf("%w: subscription %s", subscriptiondomain.ErrStaleEvent, req.Snapshot.ExternalID)
	}
	return nil
}

func isUnmappedPlan(err error) bool {
	return errors.Is(err, plandomain.ErrUnmappedPlan)
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
