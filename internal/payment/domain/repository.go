package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindByIntentID(ctx context.Context, db *gorm.DB, intentID string) (*Payment, error)
	// UpsertPayment never regresses a SUCCEEDED payment and never applies an
	// event older than the stored one.
	UpsertPayment(ctx context.Context, db *gorm.DB, payment *Payment) (bool, error)
	FindInvoice(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	MarkInvoicePaid(ctx context.Context, db *gorm.DB, id snowflake.ID, paidAt time.Time, method string, now time.Time) (int64, error)
	UpsertPaymentMethod(ctx context.Context, db *gorm.DB, method *PaymentMethod) error
	FindPaymentMethod(ctx context.Context, db *gorm.DB, externalID string) (*PaymentMethod, error)
}
