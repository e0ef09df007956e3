package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	billingeventdomain "github.com/smallbiznis/cabinet/internal/billingevent/domain"
	subscriptiondomain "github.com/smallbiznis/cabinet/internal/subscription/domain"
	webhookdomain "github.com/smallbiznis/cabinet/internal/webhook/domain"
	"go.uber.org/zap"
)

const checkoutModeSubscription = "subscription"

// checkoutCompleted links a finished subscription checkout to its cabinet.
// The session only carries references, so the subscription is re-read from
// the processor before reconciling.
func (h *handlers) checkoutCompleted(ctx context.Context, evt billingeventdomain.Event, session billingeventdomain.CheckoutSession) error {
	if session.Mode != checkoutModeSubscription {
		return fmt.Errorf("%w: checkout %s mode %q", webhookdomain.ErrEventIgnored, session.ID, session.Mode)
	}
	subscriptionID := strings.TrimSpace(session.Subscription.String())
	if subscriptionID == "" {
		return fmt.Errorf("%w: checkout %s has no subscription", webhookdomain.ErrEventIgnored, session.ID)
	}

	cabinetID, err := h.resolveCabinet(ctx, session.TenantRef(), session.Customer.String())
	if err != nil {
		return err
	}
	if cabinetID == 0 {
		return fmt.Errorf("%w: checkout %s", subscriptiondomain.ErrMissingTenantReference, session.ID)
	}

	sub, err := h.processor.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return err
	}

	refs := append(sub.PlanRefs(), session.Metadata[billingeventdomain.MetadataPlan])
	plan, err := h.resolvePlan(ctx, evt.Kind.String(), refs...)
	if err != nil {
		return err
	}

	reconcileErr := h.reconcile(ctx, evt.Kind.String(), subscriptiondomain.ReconcileRequest{
		Snapshot:  sub.Snapshot(),
		PlanID:    plan.ID,
		CabinetID: cabinetID,
		EventAt:   evt.Created,
	})
	// A newer subscription event may already have landed; the customer link
	// is still missing in that case.
	if reconcileErr != nil && !errors.Is(reconcileErr, subscriptiondomain.ErrStaleEvent) {
		return reconcileErr
	}

	customerID := strings.TrimSpace(session.Customer.String())
	if customerID == "" {
		customerID = strings.TrimSpace(sub.Customer.String())
	}
	if customerID == "" {
		return reconcileErr
	}
	if _, err := h.cabinetRepo.AttachCustomer(ctx, h.db, cabinetID, customerID, h.now()); err != nil {
		return err
	}
	h.log.Debug("processor customer attached",
		zap.String("cabinet_id", cabinetID.String()),
		zap.String("customer_id", customerID),
	)
	return reconcileErr
}
