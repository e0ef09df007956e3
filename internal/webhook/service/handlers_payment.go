package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	billingeventdomain "github.com/smallbiznis/cabinet/internal/billingevent/domain"
	paymentdomain "github.com/smallbiznis/cabinet/internal/payment/domain"
)

func (h *handlers) paymentIntent(ctx context.Context, evt billingeventdomain.Event, intent billingeventdomain.PaymentIntent) error {
	var cabinetID snowflake.ID
	if ref := strings.TrimSpace(intent.Metadata[billingeventdomain.MetadataCabinetID]); ref != "" {
		if id, err := snowflake.ParseString(ref); err == nil {
			cabinetID = id
		}
	}

	_, err := h.payments.RecordIntent(ctx, paymentdomain.IntentResult{
		ExternalIntentID:  intent.ID,
		Succeeded:         evt.Kind == billingeventdomain.KindPaymentIntentSucceeded,
		Amount:            intent.SettledAmount(),
		Currency:          intent.Currency,
		FailureMessage:    intent.FailureMessage(),
		CabinetID:         cabinetID,
		InvoiceRef:        intent.Metadata[billingeventdomain.MetadataInvoiceID],
		PaymentMethodType: intent.MethodType(),
		EventAt:           evt.Created,
	})
	return err
}

func (h *handlers) setupIntentSucceeded(ctx context.Context, evt billingeventdomain.Event, intent billingeventdomain.SetupIntent) error {
	var cabinetID snowflake.ID
	if ref := strings.TrimSpace(intent.Metadata[billingeventdomain.MetadataCabinetID]); ref != "" {
		if id, err := snowflake.ParseString(ref); err == nil {
			cabinetID = id
		}
	}

	_, err := h.payments.SaveMethod(ctx, paymentdomain.SetupResult{
		ExternalMethodID: intent.PaymentMethod.String(),
		SetupIntentID:    intent.ID,
		Type:             intent.MethodType(),
		CabinetID:        cabinetID,
		CustomerID:       intent.Customer.String(),
		EventAt:          evt.Created,
	})
	return err
}
