package datatable

import (
	"fmt"

	apperrors "github.com/memtensor/usergrid/pkg/errors"
)

// DefaultRowIndexName is the field the row number is attached under
const DefaultRowIndexName = "DT_RowIndex"

// Producer computes an extra value for a fetched row
type Producer[T any] func(row *T) interface{}

type computedColumn[T any] struct {
	key      string
	producer Producer[T]
}

// Registry holds the columns and post-processing hooks of one table
// definition. It is built during startup and only read while serving;
// it is not safe for concurrent mutation.
type Registry[T any] struct {
	columns  []*Column
	index    map[string]*Column
	computed []computedColumn[T]
	rowIndex string
}

// NewRegistry creates an empty registry
func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{
		index: make(map[string]*Column),
	}
}

// Register adds columns in order. Nothing is added when any key is empty
// or already taken.
func (r *Registry[T]) Register(columns ...Column) error {
	seen := make(map[string]bool, len(columns))
	for _, col := range columns {
		if col.Key == "" {
			return apperrors.NewConfigError("column key must not be empty")
		}
		if _, exists := r.index[col.Key]; exists || seen[col.Key] {
			return apperrors.NewConfigError(fmt.Sprintf("duplicate column key %q", col.Key)).
				WithDetail("key", col.Key)
		}
		seen[col.Key] = true
	}

	for _, col := range columns {
		c := col.normalized()
		r.columns = append(r.columns, &c)
		r.index[c.Key] = &c
	}
	return nil
}

// MustRegister is Register for table definitions built at init time
func (r *Registry[T]) MustRegister(columns ...Column) *Registry[T] {
	if err := r.Register(columns...); err != nil {
		panic(err)
	}
	return r
}

// Column looks up a column by key
func (r *Registry[T]) Column(key string) (Column, bool) {
	c, ok := r.index[key]
	if !ok {
		return Column{}, false
	}
	return *c, true
}

// Columns returns every column in registration order
func (r *Registry[T]) Columns() []Column {
	return r.filter(func(*Column) bool { return true })
}

// SearchableColumns returns the searchable columns in registration order
func (r *Registry[T]) SearchableColumns() []Column {
	return r.filter(func(c *Column) bool { return c.Searchable })
}

// ExportableColumns returns the exportable columns in registration order
func (r *Registry[T]) ExportableColumns() []Column {
	return r.filter(func(c *Column) bool { return c.Exportable })
}

func (r *Registry[T]) filter(keep func(*Column) bool) []Column {
	out := make([]Column, 0, len(r.columns))
	for _, c := range r.columns {
		if keep(c) {
			out = append(out, *c)
		}
	}
	return out
}

// SetCustomFilter attaches or replaces the filter of an existing column
func (r *Registry[T]) SetCustomFilter(key string, fn FilterFunc) error {
	c, ok := r.index[key]
	if !ok {
		return apperrors.NewNotFoundError(fmt.Sprintf("column %q", key)).WithDetail("key", key)
	}
	c.Filter = fn
	return nil
}

// AddComputedColumn appends a producer; producers run in the order added
func (r *Registry[T]) AddComputedColumn(key string, producer Producer[T]) *Registry[T] {
	r.computed = append(r.computed, computedColumn[T]{key: key, producer: producer})
	return r
}

// EnableRowIndex numbers rows under name, or DefaultRowIndexName when name is empty
func (r *Registry[T]) EnableRowIndex(name string) *Registry[T] {
	if name == "" {
		name = DefaultRowIndexName
	}
	r.rowIndex = name
	return r
}

// RowIndexName reports the row index field and whether numbering is on
func (r *Registry[T]) RowIndexName() (string, bool) {
	return r.rowIndex, r.rowIndex != ""
}
