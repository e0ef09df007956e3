package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	RecordIntent(ctx context.Context, req IntentResult) (*Payment, error)
	SaveMethod(ctx context.Context, req SetupResult) (*PaymentMethod, error)
}

// IntentResult is the outcome of one processor payment intent.
type IntentResult struct {
	ExternalIntentID  string
	Succeeded         bool
	Amount            int64
	Currency          string
	FailureMessage    string
	CabinetID         snowflake.ID
	InvoiceRef        string
	PaymentMethodType string
	EventAt           time.Time
}

type SetupResult struct {
	ExternalMethodID string
	SetupIntentID    string
	Type             string
	CabinetID        snowflake.ID
	CustomerID       string
	EventAt          time.Time
}

var (
	ErrInvalidPayment         = errors.New("invalid_payment")
	ErrInvalidPaymentMethod   = errors.New("invalid_payment_method")
	ErrMissingTenantReference = errors.New("missing_tenant_reference")
)
