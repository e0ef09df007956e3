package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusTrialing Status = "TRIALING"
	StatusActive   Status = "ACTIVE"
	StatusPastDue  Status = "PAST_DUE"
	StatusCanceled Status = "CANCELED"
)

// Live reports whether the status still grants or may grant access.
func (s Status) Live() bool {
	return s != StatusCanceled && s != ""
}

// Subscription is the local view of a cabinet's billing relationship.
// ExternalID is the processor subscription id and the idempotency key for
// every reconciliation. LastEventAt is the creation time of the newest event
// applied to the row; older snapshots are rejected against it.
type Subscription struct {
	ID                 snowflake.ID `gorm:"primaryKey" json:"id"`
	CabinetID          snowflake.ID `gorm:"not null;index:ix_subscriptions_cabinet" json:"cabinet_id"`
	PlanID             snowflake.ID `gorm:"not null" json:"plan_id"`
	ExternalID         string       `gorm:"type:text;not null;uniqueIndex:ux_subscriptions_external_id" json:"external_id"`
	Status             Status       `gorm:"type:text;not null" json:"status"`
	CurrentPeriodStart *time.Time   `json:"current_period_start"`
	CurrentPeriodEnd   *time.Time   `json:"current_period_end"`
	CancelAtPeriodEnd  bool         `gorm:"not null;default:false" json:"cancel_at_period_end"`
	CanceledAt         *time.Time   `json:"canceled_at"`
	LastEventAt        *time.Time   `json:"last_event_at"`
	CreatedAt          time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt          time.Time    `gorm:"not null" json:"updated_at"`
}

func (Subscription) TableName() string { return "subscriptions" }

// Snapshot is the processor's authoritative view of one subscription.
type Snapshot struct {
	ExternalID         string
	Status             string
	CustomerID         string
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	CancelAtPeriodEnd  bool
	CanceledAt         *time.Time
	PriceNickname      string
	Metadata           map[string]string
}

// MapStatus translates the processor status vocabulary. The boolean is false
// for statuses with no local equivalent (incomplete, paused, ...).
func MapStatus(external string) (Status, bool) {
	switch strings.ToLower(strings.TrimSpace(external)) {
	case "active":
		return StatusActive, true
	case "trialing":
		return StatusTrialing, true
	case "past_due", "unpaid":
		return StatusPastDue, true
	case "canceled", "incomplete_expired":
		return StatusCanceled, true
	default:
		return "", false
	}
}
