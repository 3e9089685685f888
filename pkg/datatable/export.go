package datatable

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"gorm.io/gorm"

	apperrors "github.com/memtensor/usergrid/pkg/errors"
)

// Export writes the exportable columns of every row matching the keyword
// as CSV. Pagination is ignored; ordering is honoured.
func (t *Table[T]) Export(ctx context.Context, db *gorm.DB, opts RequestOptions, w io.Writer) error {
	start := time.Now()
	err := t.export(ctx, db, opts, w)
	t.observe("export", start, err)
	if err != nil {
		t.logger.Error("Datatable export failed", errCause(err), map[string]interface{}{
			"table":   t.name,
			"keyword": opts.Keyword,
		})
	}
	return err
}

func (t *Table[T]) export(ctx context.Context, db *gorm.DB, opts RequestOptions, w io.Writer) error {
	columns := t.registry.ExportableColumns()
	if len(columns) == 0 {
		return apperrors.NewConfigError(fmt.Sprintf("table %s has no exportable columns", t.name))
	}

	if err := ctx.Err(); err != nil {
		return apperrors.NewDataFetchError(err)
	}

	b := NewBuilder(t.registry, t.source(db), opts, t.smartSearch)
	b.applyFilter()
	b.applyOrder()

	items, err := b.query.All(ctx)
	if err != nil {
		return apperrors.NewDataFetchError(apperrors.NewQueryFailedError("fetch export", err))
	}

	cw := csv.NewWriter(w)
	header := make([]string, len(columns))
	for i, col := range columns {
		header[i] = col.Title
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, row := range decorate(t.registry, items, 0) {
		values, err := row.Map()
		if err != nil {
			return apperrors.NewInternalErrorWithCause("failed to encode export row", err)
		}

		record := make([]string, len(columns))
		for i, col := range columns {
			if v, ok := values[col.Key]; ok && v != nil {
				record[i] = fmt.Sprint(v)
			}
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
