package datatable

import (
	"context"
	"fmt"
	"strings"

	apperrors "github.com/memtensor/usergrid/pkg/errors"
)

// State is the builder's position in a render
type State int

const (
	StateInit State = iota
	StateCountingTotal
	StateFiltering
	StatePaginating
	StateExecuted
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateCountingTotal:
		return "COUNTING_TOTAL"
	case StateFiltering:
		return "FILTERING"
	case StatePaginating:
		return "PAGINATING"
	case StateExecuted:
		return "EXECUTED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Builder runs one render: count the base query, filter by keyword,
// order, paginate, fetch and decorate. A builder serves a single request.
type Builder[T any] struct {
	registry    *Registry[T]
	opts        RequestOptions
	smartSearch bool

	state    State
	query    Query[T]
	filtered Query[T]
	prepared bool

	totalCount    *int64
	filteredCount *int64
	result        *Result[T]
}

// NewBuilder binds base to registry and opts
func NewBuilder[T any](registry *Registry[T], base Query[T], opts RequestOptions, smartSearch bool) *Builder[T] {
	return &Builder[T]{
		registry:    registry,
		opts:        opts,
		smartSearch: smartSearch,
		state:       StateInit,
		query:       base,
	}
}

// State reports the current state
func (b *Builder[T]) State() State {
	return b.state
}

// Render returns the envelope, running the queries on the first call only.
// Persistence failures surface as a DataFetchError that wraps the cause.
func (b *Builder[T]) Render(ctx context.Context, extra map[string]interface{}) (*Result[T], error) {
	if b.result != nil {
		return b.result, nil
	}

	if err := b.Prepare(ctx); err != nil {
		return nil, apperrors.NewDataFetchError(err)
	}

	items, err := b.execute(ctx)
	if err != nil {
		return nil, apperrors.NewDataFetchError(err)
	}

	rows := decorate(b.registry, items, b.opts.Offset())
	b.result = newResult(*b.totalCount, *b.filteredCount, rows, extra)
	return b.result, nil
}

// Prepare counts the base query once and, when it has rows, applies the
// keyword filter, ordering and pagination. Later calls are no-ops.
func (b *Builder[T]) Prepare(ctx context.Context) error {
	if b.prepared {
		return nil
	}

	b.state = StateCountingTotal
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.totalCount == nil {
		total, err := b.query.Count(ctx)
		if err != nil {
			return apperrors.NewQueryFailedError("count total", err)
		}
		b.totalCount = &total
	}

	if *b.totalCount > 0 {
		b.state = StateFiltering
		b.applyFilter()
		b.filtered = b.query
		b.applyOrder()

		b.state = StatePaginating
		b.paginate()
	}

	b.prepared = true
	return nil
}

// Predicate returns the keyword condition, or nil when nothing is searched
func (b *Builder[T]) Predicate() Predicate {
	var tokens []string
	if b.smartSearch {
		tokens = Tokenize(b.opts.Keyword)
	} else if kw := strings.TrimSpace(b.opts.Keyword); kw != "" {
		tokens = []string{kw}
	}

	searchable := b.registry.SearchableColumns()
	predicates := make([]Predicate, 0, len(tokens)*len(searchable))
	for _, token := range tokens {
		for _, col := range searchable {
			if col.Filter != nil {
				if p := col.Filter(token); p != nil {
					predicates = append(predicates, p)
				}
				continue
			}
			predicates = append(predicates, ContainsFold(col.Field, token))
		}
	}

	return Or(predicates...)
}

func (b *Builder[T]) applyFilter() {
	if p := b.Predicate(); p != nil {
		b.query = b.query.Filter(p)
	}
}

func (b *Builder[T]) applyOrder() {
	if b.opts.SortKey == "" {
		return
	}
	col, ok := b.registry.Column(b.opts.SortKey)
	if !ok || !col.Orderable {
		return
	}
	b.query = b.query.Order(col.Field, b.opts.SortDesc)
}

func (b *Builder[T]) paginate() {
	if offset := b.opts.Offset(); offset > 0 {
		b.query = b.query.Offset(offset)
	}
	b.query = b.query.Limit(b.opts.PageSize)
}

func (b *Builder[T]) execute(ctx context.Context) ([]T, error) {
	if *b.totalCount == 0 {
		zero := int64(0)
		b.filteredCount = &zero
		b.state = StateExecuted
		return nil, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	items, err := b.query.All(ctx)
	if err != nil {
		return nil, apperrors.NewQueryFailedError("fetch page", err)
	}

	if b.filteredCount == nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := b.filtered.Count(ctx)
		if err != nil {
			return nil, apperrors.NewQueryFailedError("count filtered", err)
		}
		b.filteredCount = &n
	}

	b.state = StateExecuted
	return items, nil
}
