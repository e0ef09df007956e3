package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/smallbiznis/cabinet/internal/payment/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() paymentdomain.Repository {
	return &repo{}
}

func (r *repo) FindByIntentID(ctx context.Context, db *gorm.DB, intentID string) (*paymentdomain.Payment, error) {
	var item paymentdomain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT id, cabinet_id, external_payment_intent_id, invoice_id, amount, currency,
			status, failure_message, last_event_at, created_at, updated_at
		 FROM payments
		 WHERE external_payment_intent_id = ?`,
		intentID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) UpsertPayment(ctx context.Context, db *gorm.DB, payment *paymentdomain.Payment) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO payments (
			id, cabinet_id, external_payment_intent_id, invoice_id, amount, currency,
			status, failure_message, last_event_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (external_payment_intent_id) DO UPDATE SET
			cabinet_id = COALESCE(payments.cabinet_id, excluded.cabinet_id),
			invoice_id = COALESCE(excluded.invoice_id, payments.invoice_id),
			amount = excluded.amount,
			currency = excluded.currency,
			status = excluded.status,
			failure_message = excluded.failure_message,
			last_event_at = excluded.last_event_at,
			updated_at = excluded.updated_at
		WHERE payments.status <> 'SUCCEEDED'
			AND (payments.last_event_at IS NULL OR payments.last_event_at <= excluded.last_event_at)`,
		payment.ID,
		payment.CabinetID,
		payment.ExternalPaymentIntentID,
		payment.InvoiceID,
		payment.Amount,
		payment.Currency,
		payment.Status,
		payment.FailureMessage,
		payment.LastEventAt,
		payment.CreatedAt,
		payment.UpdatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindInvoice(ctx context.Context, db *gorm.DB, id snowflake.ID) (*paymentdomain.Invoice, error) {
	var item paymentdomain.Invoice
	err := db.WithContext(ctx).Raw(
		`SELECT id, cabinet_id, number, amount, currency, status, paid_at, payment_method,
			created_at, updated_at
		 FROM invoices
		 WHERE id = ?`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) MarkInvoicePaid(ctx context.Context, db *gorm.DB, id snowflake.ID, paidAt time.Time, method string, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET status = ?, paid_at = ?, payment_method = ?, updated_at = ?
		 WHERE id = ? AND status <> ?`,
		paymentdomain.InvoiceStatusPaid,
		paidAt,
		method,
		now,
		id,
		paymentdomain.InvoiceStatusPaid,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) UpsertPaymentMethod(ctx context.Context, db *gorm.DB, method *paymentdomain.PaymentMethod) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payment_methods (
			id, cabinet_id, external_id, external_setup_intent_id, type, is_active,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (external_id) DO UPDATE SET
			external_setup_intent_id = excluded.external_setup_intent_id,
			type = excluded.type,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at`,
		method.ID,
		method.CabinetID,
		method.ExternalID,
		method.ExternalSetupIntentID,
		method.Type,
		method.IsActive,
		method.CreatedAt,
		method.UpdatedAt,
	).Error
}

func (r *repo) FindPaymentMethod(ctx context.Context, db *gorm.DB, externalID string) (*paymentdomain.PaymentMethod, error) {
	var item paymentdomain.PaymentMethod
	err := db.WithContext(ctx).Raw(
		`SELECT id, cabinet_id, external_id, external_setup_intent_id, type, is_active,
			created_at, updated_at
		 FROM payment_methods
		 WHERE external_id = ?`,
		externalID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}
