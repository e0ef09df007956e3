package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Outcome is how a delivery ended. Every outcome except failed is acknowledged.
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeRejected  Outcome = "rejected"
	OutcomeStale     Outcome = "stale"
	OutcomeFailed    Outcome = "failed"
)

// Acknowledged reports whether the sender should stop retrying.
func (o Outcome) Acknowledged() bool {
	return o != OutcomeFailed && o != ""
}

// DeliveryRecord is one row of the delivery log. It is written after the
// handler ran and is never read back to skip reprocessing.
type DeliveryRecord struct {
	ID              snowflake.ID   `gorm:"primaryKey" json:"id"`
	DeliveryID      string         `gorm:"type:text;not null" json:"delivery_id"`
	ExternalEventID string         `gorm:"type:text;not null;default:''" json:"external_event_id"`
	EventType       string         `gorm:"type:text;not null;default:''" json:"event_type"`
	Outcome         Outcome        `gorm:"type:text;not null" json:"outcome"`
	Error           string         `gorm:"type:text;not null;default:''" json:"error"`
	Payload         datatypes.JSON `json:"payload"`
	ReceivedAt      time.Time      `gorm:"not null" json:"received_at"`
	ProcessedAt     *time.Time     `json:"processed_at"`
}

func (DeliveryRecord) TableName() string { return "webhook_events" }
