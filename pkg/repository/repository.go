package repository

import (
	"context"

	"github.com/smallbiznis/cabinet/pkg/db/option"
	"gorm.io/gorm"
)

// Repository is a tenant-scoped generic store. Every statement is restricted
// to the cabinet found in the request scope unless the caller is unscoped.
type Repository[T any] interface {
	WithTrx(tx *gorm.DB) Repository[T]
	Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error)
	FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error)
	FindByID(ctx context.Context, id any) (*T, error)
	Create(ctx context.Context, resource *T) error
	Update(ctx context.Context, id any, fields map[string]any) (int64, error)
	Delete(ctx context.Context, id any) (int64, error)
	Count(ctx context.Context, query *T) (int64, error)
}
