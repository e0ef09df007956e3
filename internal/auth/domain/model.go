// Package domain contains core types for the auth service.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/cabinet/pkg/tenantctx"
)

const (
	RoleOwner        = "owner"
	RolePractitioner = "practitioner"
	RoleAssistant    = "assistant"
	RoleSuperAdmin   = tenantctx.RoleSuperAdmin
)

// ValidRole reports whether role is one of the known cabinet roles.
func ValidRole(role string) bool {
	switch role {
	case RoleOwner, RolePractitioner, RoleAssistant, RoleSuperAdmin:
		return true
	}
	return false
}

// User represents a cabinet staff account. Only super admins have no cabinet.
type User struct {
	ID                  snowflake.ID  `gorm:"primaryKey" json:"id"`
	CabinetID           *snowflake.ID `gorm:"column:cabinet_id;index" json:"cabinet_id,omitempty"`
	Email               string        `gorm:"column:email;type:text;not null;uniqueIndex" json:"email"`
	DisplayName         string        `gorm:"type:text;not null;default:''" json:"display_name"`
	PasswordHash        *string       `gorm:"type:text" json:"-"`
	Role                string        `gorm:"type:text;not null" json:"role"`
	IsActive            bool          `gorm:"not null;default:true" json:"is_active"`
	LastPasswordChanged *time.Time    `gorm:"column:last_password_changed" json:"-"`
	CreatedAt           time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt           time.Time     `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (User) TableName() string { return "users" }

// Session represents a persisted login session.
type Session struct {
	ID               snowflake.ID `gorm:"primaryKey"`
	UserID           snowflake.ID `gorm:"column:user_id;not null;index"`
	SessionTokenHash string       `gorm:"column:session_token_hash;type:text;not null;uniqueIndex"`
	UserAgent        string       `gorm:"column:user_agent;type:text"`
	IPAddress        string       `gorm:"column:ip_address;type:text"`
	ExpiresAt        time.Time    `gorm:"column:expires_at;not null;index"`
	RevokedAt        *time.Time   `gorm:"column:revoked_at"`
	CreatedAt        time.Time    `gorm:"column:created_at;not null"`
	LastSeenAt       time.Time    `gorm:"column:last_seen_at;not null"`
}

// TableName sets the database table name.
func (Session) TableName() string { return "sessions" }
