package database

import (
	"context"
	"errors"

	"gorm.io/gorm"

	apperrors "github.com/memtensor/usergrid/pkg/errors"
)

// Repository provides the CRUD operations shared by every model
type Repository[T any] struct {
	db       *gorm.DB
	resource string
}

// NewRepository creates a repository for model T. resource names the model
// in error messages.
func NewRepository[T any](db *gorm.DB, resource string) *Repository[T] {
	return &Repository[T]{db: db, resource: resource}
}

// DB returns the underlying handle
func (r *Repository[T]) DB() *gorm.DB {
	return r.db
}

// Model returns a query scoped to T
func (r *Repository[T]) Model(ctx context.Context) *gorm.DB {
	var model T
	return r.db.WithContext(ctx).Model(&model)
}

// Find retrieves a row by primary key. A missing row yields nil, nil.
func (r *Repository[T]) Find(ctx context.Context, id interface{}) (*T, error) {
	var obj T
	err := r.db.WithContext(ctx).First(&obj, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, r.translate("find", err)
	}
	return &obj, nil
}

// FindBy retrieves the first row matching every column in filters
func (r *Repository[T]) FindBy(ctx context.Context, filters map[string]interface{}) (*T, error) {
	var obj T
	err := r.db.WithContext(ctx).Where(filters).First(&obj).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, r.translate("find", err)
	}
	return &obj, nil
}

// List returns one page of rows ordered by primary key and the total count
func (r *Repository[T]) List(ctx context.Context, offset, limit int) ([]T, int64, error) {
	var (
		items []T
		total int64
	)

	if err := r.Model(ctx).Count(&total).Error; err != nil {
		return nil, 0, r.translate("count", err)
	}

	query := r.db.WithContext(ctx)
	if offset > 0 {
		query = query.Offset(offset)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Order(clauseOrderPrimary).Find(&items).Error; err != nil {
		return nil, 0, r.translate("list", err)
	}

	return items, total, nil
}

// Create inserts obj
func (r *Repository[T]) Create(ctx context.Context, obj *T) error {
	if err := r.db.WithContext(ctx).Create(obj).Error; err != nil {
		return r.translate("create", err)
	}
	return nil
}

// Update applies fields to obj and reloads it. An empty map is a no-op.
func (r *Repository[T]) Update(ctx context.Context, obj *T, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Model(obj).Updates(fields).Error; err != nil {
		return r.translate("update", err)
	}
	if err := r.db.WithContext(ctx).First(obj).Error; err != nil {
		return r.translate("reload", err)
	}
	return nil
}

// Delete removes the row with the given primary key and reports whether it existed
func (r *Repository[T]) Delete(ctx context.Context, id interface{}) (bool, error) {
	var model T
	result := r.db.WithContext(ctx).Delete(&model, id)
	if result.Error != nil {
		return false, r.translate("delete", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *Repository[T]) translate(op string, err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperrors.NewAlreadyExistsError(r.resource).WithDetail("operation", op)
	}
	return apperrors.NewDatabaseErrorWithCause(r.resource+" "+op+" failed", err)
}

const clauseOrderPrimary = "id"
