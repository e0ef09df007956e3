package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindByName(ctx context.Context, db *gorm.DB, name string) (*Plan, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Plan, error)
	List(ctx context.Context, db *gorm.DB) ([]Plan, error)
	// Upsert inserts or refreshes a plan keyed by its normalized name.
	Upsert(ctx context.Context, db *gorm.DB, plan *Plan) error
}
