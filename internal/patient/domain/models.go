package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/cabinet/pkg/db/pagination"
)

// Patient is the canonical tenant-owned record counted against the plan quota.
type Patient struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	CabinetID snowflake.ID `gorm:"not null;index:ix_patients_cabinet" json:"cabinet_id"`
	FirstName string       `gorm:"type:text;not null" json:"first_name"`
	LastName  string       `gorm:"type:text;not null" json:"last_name"`
	Email     string       `gorm:"type:text;not null;default:''" json:"email"`
	Phone     string       `gorm:"type:text;not null;default:''" json:"phone"`
	BirthDate *time.Time   `json:"birth_date,omitempty"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null" json:"updated_at"`
}

func (Patient) TableName() string { return "patients" }

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Patient, error)
	Get(ctx context.Context, id string) (*Patient, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context, cabinetID snowflake.ID) (int64, error)
}

type CreateRequest struct {
	FirstName string `json:"first_name" validate:"required,max=120"`
	LastName  string `json:"last_name" validate:"required,max=120"`
	Email     string `json:"email" validate:"omitempty,email"`
	Phone     string `json:"phone" validate:"omitempty,max=40"`
	BirthDate string `json:"birth_date" validate:"omitempty,datetime=2006-01-02"`
}

type ListRequest struct {
	pagination.Pagination
}

type ListResponse struct {
	Patients []*Patient          `json:"patients"`
	PageInfo pagination.PageInfo `json:"page_info"`
}

var (
	ErrInvalidID      = errors.New("invalid_patient_id")
	ErrInvalidPatient = errors.New("invalid_patient")
	ErrNotFound       = errors.New("patient_not_found")
)
