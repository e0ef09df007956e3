// Package domain contains the tenant model.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// UnlimitedPatients is the quota sentinel shared by cabinets and plans.
const UnlimitedPatients = -1

// Cabinet is a tenant. All patient data is scoped to exactly one cabinet.
type Cabinet struct {
	ID               snowflake.ID `gorm:"primaryKey" json:"id"`
	Name             string       `gorm:"type:text;not null" json:"name"`
	Slug             string       `gorm:"type:text;not null;uniqueIndex:ux_cabinets_slug" json:"slug"`
	IsActive         bool         `gorm:"not null;default:true" json:"is_active"`
	TrialStartDate   *time.Time   `json:"trial_start_date"`
	TrialEndDate     *time.Time   `json:"trial_end_date"`
	MaxPatients      int          `gorm:"not null;default:0" json:"max_patients"`
	IsTrialActive    bool         `gorm:"not null;default:false" json:"is_trial_active"`
	StripeCustomerID string       `gorm:"type:text;not null;default:''" json:"stripe_customer_id,omitempty"`
	CreatedAt        time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time    `gorm:"not null" json:"updated_at"`
}

func (Cabinet) TableName() string { return "cabinets" }
