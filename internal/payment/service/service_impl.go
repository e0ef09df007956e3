package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	cabinetdomain "github.com/smallbiznis/cabinet/internal/cabinet/domain"
	"github.com/smallbiznis/cabinet/internal/clock"
	paymentdomain "github.com/smallbiznis/cabinet/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        paymentdomain.Repository
	CabinetRepo cabinetdomain.Repository
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        paymentdomain.Repository
	cabinetRepo cabinetdomain.Repository
}

func NewService(p Params) paymentdomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("payment.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		cabinetRepo: p.CabinetRepo,
	}
}

// RecordIntent stores the intent outcome and settles the referenced invoice
// when the payment succeeded. Both writes share one transaction.
func (s *Service) RecordIntent(ctx context.Context, req paymentdomain.IntentResult) (*paymentdomain.Payment, error) {
	intentID := strings.TrimSpace(req.ExternalIntentID)
	if intentID == "" {
		return nil, paymentdomain.ErrInvalidPayment
	}

	now := s.clock.Now().UTC().Truncate(time.Second)
	eventAt := req.EventAt.UTC().Truncate(time.Second)
	if req.EventAt.IsZero() {
		eventAt = now
	}

	payment := &paymentdomain.Payment{
		ID:                      s.genID.Generate(),
		ExternalPaymentIntentID: intentID,
		Amount:                  req.Amount,
		Currency:                strings.ToUpper(strings.TrimSpace(req.Currency)),
		Status:                  paymentdomain.PaymentStatusFailed,
		FailureMessage:          strings.TrimSpace(req.FailureMessage),
		LastEventAt:             &eventAt,
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	if req.Succeeded {
		payment.Status = paymentdomain.PaymentStatusSucceeded
		payment.FailureMessage = ""
	}
	if req.CabinetID != 0 {
		cabinet, err := s.cabinetRepo.FindByID(ctx, s.db, req.CabinetID)
		if err != nil {
			return nil, err
		}
		if cabinet == nil {
			s.log.Warn("payment references unknown cabinet",
				zap.String("payment_intent", intentID),
				zap.String("cabinet_id", req.CabinetID.String()),
			)
		} else {
			payment.CabinetID = &cabinet.ID
		}
	}
	if ref := strings.TrimSpace(req.InvoiceRef); ref != "" {
		invoiceID, err := snowflake.ParseString(ref)
		if err != nil || invoiceID == 0 {
			s.log.Warn("ignoring malformed invoice reference",
				zap.String("payment_intent", intentID),
				zap.String("invoice_ref", ref),
			)
		} else {
			payment.InvoiceID = &invoiceID
		}
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		applied, err := s.repo.UpsertPayment(ctx, tx, payment)
		if err != nil {
			return err
		}
		if !applied {
			s.log.Info("payment intent already settled or newer",
				zap.String("payment_intent", intentID),
				zap.String("status", string(payment.Status)),
			)
			return nil
		}
		if payment.Status != paymentdomain.PaymentStatusSucceeded || payment.InvoiceID == nil {
			return nil
		}
		return s.settleInvoice(ctx, tx, payment, req.PaymentMethodType, eventAt, now)
	})
	if err != nil {
		return nil, err
	}

	return s.repo.FindByIntentID(ctx, s.db, intentID)
}

func (s *Service) settleInvoice(ctx context.Context, tx *gorm.DB, payment *paymentdomain.Payment, methodType string, paidAt, now time.Time) error {
	invoice, err := s.repo.FindInvoice(ctx, tx, *payment.InvoiceID)
	if err != nil {
		return err
	}
	if invoice == nil {
		s.log.Warn("payment references unknown invoice",
			zap.String("payment_intent", payment.ExternalPaymentIntentID),
			zap.String("invoice_id", payment.InvoiceID.String()),
		)
		return nil
	}
	if payment.CabinetID != nil && *payment.CabinetID != invoice.CabinetID {
		s.log.Warn("payment and invoice belong to different cabinets",
			zap.String("payment_intent", payment.ExternalPaymentIntentID),
			zap.String("invoice_id", invoice.ID.String()),
		)
		return nil
	}

	method := strings.TrimSpace(methodType)
	if method == "" {
		method = paymentdomain.DefaultPaymentMethod
	}
	if _, err := s.repo.MarkInvoicePaid(ctx, tx, invoice.ID, paidAt, method, now); err != nil {
		return fmt.Errorf("mark invoice paid: %w", err)
	}
	return nil
}

// SaveMethod activates a payment method confirmed through a setup intent.
func (s *Service) SaveMethod(ctx context.Context, req paymentdomain.SetupResult) (*paymentdomain.PaymentMethod, error) {
	externalID := strings.TrimSpace(req.ExternalMethodID)
	if externalID == "" {
		return nil, paymentdomain.ErrInvalidPaymentMethod
	}

	cabinet, err := s.resolveCabinet(ctx, req.CabinetID, req.CustomerID)
	if err != nil {
		return nil, err
	}
	if cabinet == nil {
		return nil, paymentdomain.ErrMissingTenantReference
	}

	now := s.clock.Now().UTC().Truncate(time.Second)
	method := &paymentdomain.PaymentMethod{
		ID:                    s.genID.Generate(),
		CabinetID:             cabinet.ID,
		ExternalID:            externalID,
		ExternalSetupIntentID: strings.TrimSpace(req.SetupIntentID),
		Type:                  strings.TrimSpace(req.Type),
		IsActive:              true,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err := s.repo.UpsertPaymentMethod(ctx, s.db, method); err != nil {
		return nil, err
	}

	s.log.Info("payment method activated",
		zap.String("cabinet_id", cabinet.ID.String()),
		zap.String("payment_method", externalID),
	)
	return s.repo.FindPaymentMethod(ctx, s.db, externalID)
}

func (s *Service) resolveCabinet(ctx context.Context, cabinetID snowflake.ID, customerID string) (*cabinetdomain.Cabinet, error) {
	if cabinetID != 0 {
		return s.cabinetRepo.FindByID(ctx, s.db, cabinetID)
	}
	return s.cabinetRepo.FindByCustomerID(ctx, s.db, strings.TrimSpace(customerID))
}
