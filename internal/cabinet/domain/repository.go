package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, cabinet *Cabinet) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Cabinet, error)
	FindByCustomerID(ctx context.Context, db *gorm.DB, customerID string) (*Cabinet, error)
	Update(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) (int64, error)
	// EndTrial clears the trial flag; it reports zero rows when the trial was already consumed.
	EndTrial(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (int64, error)
	AttachCustomer(ctx context.Context, db *gorm.DB, id snowflake.ID, customerID string, at time.Time) (int64, error)
}
