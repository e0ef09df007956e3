package domain

import (
	"context"
	"errors"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Cabinet, error)
	Get(ctx context.Context, id string) (*Cabinet, error)
	Update(ctx context.Context, id string, req UpdateRequest) (*Cabinet, error)
}

type CreateRequest struct {
	Name        string `json:"name"`
	TrialDays   *int   `json:"trial_days"`
	MaxPatients *int   `json:"max_patients"`
}

type UpdateRequest struct {
	IsActive    *bool `json:"is_active"`
	MaxPatients *int  `json:"max_patients"`
}

var (
	ErrInvalidName        = errors.New("invalid_name")
	ErrInvalidID          = errors.New("invalid_cabinet_id")
	ErrInvalidMaxPatients = errors.New("invalid_max_patients")
	ErrInvalidTrialDays   = errors.New("invalid_trial_days")
	ErrNotFound           = errors.New("cabinet_not_found")
)
