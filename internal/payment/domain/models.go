package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusSucceeded PaymentStatus = "SUCCEEDED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
)

type InvoiceStatus string

const (
	InvoiceStatusOpen InvoiceStatus = "OPEN"
	InvoiceStatusPaid InvoiceStatus = "PAID"
)

// DefaultPaymentMethod is stamped on invoices when the processor reports no method type.
const DefaultPaymentMethod = "card"

// Payment mirrors one processor payment intent. A SUCCEEDED payment is final.
type Payment struct {
	ID                      snowflake.ID  `gorm:"primaryKey" json:"id"`
	CabinetID               *snowflake.ID `gorm:"index:ix_payments_cabinet" json:"cabinet_id,omitempty"`
	ExternalPaymentIntentID string        `gorm:"type:text;not null;uniqueIndex:ux_payments_intent" json:"external_payment_intent_id"`
	InvoiceID               *snowflake.ID `json:"invoice_id,omitempty"`
	Amount                  int64         `gorm:"not null;default:0" json:"amount"`
	Currency                string        `gorm:"type:text;not null;default:''" json:"currency"`
	Status                  PaymentStatus `gorm:"type:text;not null" json:"status"`
	FailureMessage          string        `gorm:"type:text;not null;default:''" json:"failure_message,omitempty"`
	LastEventAt             *time.Time    `json:"last_event_at"`
	CreatedAt               time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt               time.Time     `gorm:"not null" json:"updated_at"`
}

func (Payment) TableName() string { return "payments" }

// Invoice is created by the billing screens; webhooks only settle it.
type Invoice struct {
	ID            snowflake.ID  `gorm:"primaryKey" json:"id"`
	CabinetID     snowflake.ID  `gorm:"not null;index:ix_invoices_cabinet" json:"cabinet_id"`
	Number        string        `gorm:"type:text;not null" json:"number"`
	Amount        int64         `gorm:"not null;default:0" json:"amount"`
	Currency      string        `gorm:"type:text;not null;default:''" json:"currency"`
	Status        InvoiceStatus `gorm:"type:text;not null" json:"status"`
	PaidAt        *time.Time    `json:"paid_at"`
	PaymentMethod string        `gorm:"type:text;not null;default:''" json:"payment_method"`
	CreatedAt     time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time     `gorm:"not null" json:"updated_at"`
}

func (Invoice) TableName() string { return "invoices" }

type PaymentMethod struct {
	ID                    snowflake.ID `gorm:"primaryKey" json:"id"`
	CabinetID             snowflake.ID `gorm:"not null;index:ix_payment_methods_cabinet" json:"cabinet_id"`
	ExternalID            string       `gorm:"type:text;not null;uniqueIndex:ux_payment_methods_external" json:"external_id"`
	ExternalSetupIntentID string       `gorm:"type:text;not null;default:''" json:"external_setup_intent_id"`
	Type                  string       `gorm:"type:text;not null;default:''" json:"type"`
	IsActive              bool         `gorm:"not null;default:false" json:"is_active"`
	CreatedAt             time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt             time.Time    `gorm:"not null" json:"updated_at"`
}

func (PaymentMethod) TableName() string { return "payment_methods" }
