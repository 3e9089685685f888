package datatable

import (
	"context"
	"time"

	"gorm.io/gorm"

	apperrors "github.com/memtensor/usergrid/pkg/errors"
	"github.com/memtensor/usergrid/pkg/interfaces"
	"github.com/memtensor/usergrid/pkg/logger"
	"github.com/memtensor/usergrid/pkg/metrics"
)

// Source produces the base query of a table from a request-scoped handle
type Source[T any] func(db *gorm.DB) Query[T]

// Table is a table definition: its registry, base query and render settings
type Table[T any] struct {
	name     string
	registry *Registry[T]
	source   Source[T]
	options
}

type options struct {
	limits      Limits
	smartSearch bool
	logger      interfaces.Logger
	metrics     interfaces.Metrics
}

// Option configures a Table
type Option func(*options)

// WithLimits sets the default and maximum page size
func WithLimits(limits Limits) Option {
	return func(o *options) {
		o.limits = limits
	}
}

// WithSmartSearch toggles whitespace tokenizing of the keyword
func WithSmartSearch(enabled bool) Option {
	return func(o *options) {
		o.smartSearch = enabled
	}
}

// WithLogger sets the logger that receives render failures
func WithLogger(l interfaces.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMetrics sets the render metrics sink
func WithMetrics(m interfaces.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// NewTable creates a table definition
func NewTable[T any](name string, registry *Registry[T], source Source[T], opts ...Option) *Table[T] {
	o := options{
		limits:      DefaultLimits(),
		smartSearch: true,
		logger:      logger.NewLogger(),
		metrics:     metrics.NewNoOpMetrics(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Table[T]{
		name:     name,
		registry: registry,
		source:   source,
		options:  o,
	}
}

// Name returns the table name used in logs and metrics
func (t *Table[T]) Name() string {
	return t.name
}

// Registry returns the column registry
func (t *Table[T]) Registry() *Registry[T] {
	return t.registry
}

// Limits returns the page size bounds
func (t *Table[T]) Limits() Limits {
	return t.limits
}

// ParseOptions validates request params, including the sort column
func (t *Table[T]) ParseOptions(p Params) (RequestOptions, error) {
	opts, err := ParseOptions(p, t.limits)
	if err != nil {
		return RequestOptions{}, err
	}
	if opts.SortKey != "" {
		col, ok := t.registry.Column(opts.SortKey)
		if !ok || !col.Orderable {
			return RequestOptions{}, apperrors.NewValidationError(MsgInvalidSort).WithDetail("sort", opts.SortKey)
		}
	}
	return opts, nil
}

// NewBuilder starts a render against db
func (t *Table[T]) NewBuilder(db *gorm.DB, opts RequestOptions) *Builder[T] {
	return NewBuilder(t.registry, t.source(db), opts, t.smartSearch)
}

// Render builds the envelope for one request. Failures are logged with
// their cause and returned as a DataFetchError.
func (t *Table[T]) Render(ctx context.Context, db *gorm.DB, opts RequestOptions, extra map[string]interface{}) (*Result[T], error) {
	start := time.Now()
	b := t.NewBuilder(db, opts)

	result, err := b.Render(ctx, extra)
	t.observe("render", start, err)
	if err != nil {
		t.logger.Error("Datatable render failed", errCause(err), map[string]interface{}{
			"table":   t.name,
			"state":   b.State().String(),
			"keyword": opts.Keyword,
			"page":    opts.Page,
			"limit":   opts.PageSize,
		})
		return nil, err
	}

	t.logger.Debug("Datatable rendered", map[string]interface{}{
		"table":    t.name,
		"total":    result.TotalRecords,
		"filtered": result.FilteredRecords,
		"items":    len(result.Items),
	})
	return result, nil
}

func (t *Table[T]) observe(op string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	labels := map[string]string{"table": t.name, "op": op, "status": status}
	t.metrics.Counter("datatable_requests_total", 1, labels)
	t.metrics.Timer("datatable_duration_seconds", time.Since(start).Seconds(), labels)
}

func errCause(err error) error {
	if appErr := apperrors.GetAppError(err); appErr != nil && appErr.Cause != nil {
		return appErr.Cause
	}
	return err
}
