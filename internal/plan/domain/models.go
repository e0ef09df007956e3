package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/lib/pq"
)

// Plan is a billing tier with a patient quota. MaxPatients of -1 means unlimited.
type Plan struct {
	ID          snowflake.ID   `gorm:"primaryKey" json:"id"`
	Name        string         `gorm:"type:text;not null;uniqueIndex:ux_plans_name" json:"name"`
	DisplayName string         `gorm:"type:text;not null;default:''" json:"display_name"`
	Price       int64          `gorm:"not null;default:0" json:"price"`
	Currency    string         `gorm:"type:text;not null;default:'eur'" json:"currency"`
	MaxPatients int            `gorm:"not null" json:"max_patients"`
	Features    pq.StringArray `gorm:"type:text[]" json:"features"`
	IsActive    bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt   time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null" json:"updated_at"`
}

func (Plan) TableName() string { return "plans" }

// NormalizeName turns a processor price label into a catalog key:
// "Professional", " professional " and "PROFESSIONAL" all map to "professional".
func NormalizeName(raw string) string {
	return slug.Make(strings.TrimSpace(raw))
}
