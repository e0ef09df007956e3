package repository

import (
	"context"
	"errors"

	"github.com/smallbiznis/cabinet/pkg/db/option"
	"github.com/smallbiznis/cabinet/pkg/tenantctx"
	"gorm.io/gorm"
)

// ErrMissingScope is returned when a scoped store is used without a tenant scope.
var ErrMissingScope = errors.New("missing_tenant_scope")

const tenantColumn = "cabinet_id"

type store[T any] struct {
	db *gorm.DB
}

func ProvideStore[T any](db *gorm.DB) Repository[T] {
	return &store[T]{db: db}
}

func (r *store[T]) WithTrx(tx *gorm.DB) Repository[T] {
	return &store[T]{db: tx}
}

func (r *store[T]) Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error) {
	stmt, err := r.buildQuery(ctx, query, opts...)
	if err != nil {
		return nil, err
	}
	var result []*T
	err = stmt.Find(&result).Error
	return result, err
}

func (r *store[T]) FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error) {
	stmt, err := r.buildQuery(ctx, query, opts...)
	if err != nil {
		return nil, err
	}
	var result T
	err = stmt.First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}

// FindByID returns nil when the row does not exist or belongs to another cabinet.
func (r *store[T]) FindByID(ctx context.Context, id any) (*T, error) {
	stmt, err := r.scoped(ctx)
	if err != nil {
		return nil, err
	}
	var result T
	err = stmt.Where("id = ?", id).First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}

func (r *store[T]) Create(ctx context.Context, resource *T) error {
	if _, err := scopeFrom(ctx); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(resource).Error
}

func (r *store[T]) Update(ctx context.Context, id any, fields map[string]any) (int64, error) {
	stmt, err := r.scoped(ctx)
	if err != nil {
		return 0, err
	}
	tx := stmt.Where("id = ?", id).Updates(fields)
	return tx.RowsAffected, tx.Error
}

func (r *store[T]) Delete(ctx context.Context, id any) (int64, error) {
	stmt, err := r.scoped(ctx)
	if err != nil {
		return 0, err
	}
	var dummy T
	tx := stmt.Where("id = ?", id).Delete(&dummy)
	return tx.RowsAffected, tx.Error
}

func (r *store[T]) Count(ctx context.Context, query *T) (int64, error) {
	stmt, err := r.scoped(ctx)
	if err != nil {
		return 0, err
	}
	var count int64
	if query != nil {
		stmt = stmt.Where(query)
	}
	err = stmt.Count(&count).Error
	return count, err
}

func (r *store[T]) scoped(ctx context.Context) (*gorm.DB, error) {
	scope, err := scopeFrom(ctx)
	if err != nil {
		return nil, err
	}
	stmt := r.db.WithContext(ctx).Model(new(T))
	// Super admins targeting one cabinet are filtered like its staff.
	if scope.CabinetID != 0 {
		stmt = stmt.Where(tenantColumn+" = ?", scope.CabinetID)
	}
	return stmt, nil
}

func (r *store[T]) buildQuery(ctx context.Context, filter *T, opts ...option.QueryOption) (*gorm.DB, error) {
	stmt, err := r.scoped(ctx)
	if err != nil {
		return nil, err
	}
	if filter != nil {
		stmt = stmt.Where(filter)
	}
	for _, opt := range opts {
		stmt = opt.Apply(stmt)
	}
	return stmt, nil
}

func scopeFrom(ctx context.Context) (tenantctx.Scope, error) {
	scope, ok := tenantctx.FromContext(ctx)
	if !ok {
		return tenantctx.Scope{}, ErrMissingScope
	}
	if !scope.Unscoped() && scope.CabinetID == 0 {
		return tenantctx.Scope{}, ErrMissingScope
	}
	return scope, nil
}
