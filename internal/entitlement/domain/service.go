package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	Get(ctx context.Context, cabinetID snowflake.ID) (Entitlements, error)
	// CheckPatientQuota returns ErrQuotaExceeded when one more patient does not fit.
	CheckPatientQuota(ctx context.Context, cabinetID snowflake.ID) error
}

var (
	ErrQuotaExceeded   = errors.New("entitlement_exhausted")
	ErrCabinetNotFound = errors.New("cabinet_not_found")
)
