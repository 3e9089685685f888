package datatable

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Query is the persistence abstraction the builder drives. Chain methods
// return a new query and leave the receiver untouched.
type Query[T any] interface {
	Count(ctx context.Context) (int64, error)
	Filter(p Predicate) Query[T]
	Order(field string, desc bool) Query[T]
	Offset(n int) Query[T]
	Limit(n int) Query[T]
	All(ctx context.Context) ([]T, error)
}

// GormQuery adapts a GORM chain to Query
type GormQuery[T any] struct {
	db *gorm.DB
}

// FromGorm wraps db. When db has no model or table yet it is scoped to T.
func FromGorm[T any](db *gorm.DB) *GormQuery[T] {
	if db.Statement.Model == nil && db.Statement.Table == "" {
		db = db.Model(new(T))
	}
	return &GormQuery[T]{db: db.Session(&gorm.Session{})}
}

// DB returns the wrapped chain
func (q *GormQuery[T]) DB() *gorm.DB {
	return q.db
}

func (q *GormQuery[T]) next(db *gorm.DB) Query[T] {
	return &GormQuery[T]{db: db.Session(&gorm.Session{})}
}

// Count counts matching rows
func (q *GormQuery[T]) Count(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.WithContext(ctx).Count(&n).Error
	return n, err
}

// Filter adds a WHERE condition
func (q *GormQuery[T]) Filter(p Predicate) Query[T] {
	return q.next(q.db.Where(p))
}

// Order adds an ORDER BY term
func (q *GormQuery[T]) Order(field string, desc bool) Query[T] {
	return q.next(q.db.Order(clause.OrderByColumn{Column: clause.Column{Name: field}, Desc: desc}))
}

// Offset skips n rows
func (q *GormQuery[T]) Offset(n int) Query[T] {
	return q.next(q.db.Offset(n))
}

// Limit caps the rows returned
func (q *GormQuery[T]) Limit(n int) Query[T] {
	return q.next(q.db.Limit(n))
}

// All fetches the rows
func (q *GormQuery[T]) All(ctx context.Context) ([]T, error) {
	items := make([]T, 0)
	err := q.db.WithContext(ctx).Find(&items).Error
	return items, err
}
