package datatable

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/memtensor/usergrid/pkg/errors"
)

func intPtr(v int) *int { return &v }

func TestParseOptions(t *testing.T) {
	limits := DefaultLimits()

	t.Run("defaults", func(t *testing.T) {
		o, err := ParseOptions(Params{}, limits)
		require.NoError(t, err)
		assert.Equal(t, 1, o.Page)
		assert.Equal(t, DefaultLimit, o.PageSize)
		assert.Equal(t, ModeAJAX, o.Mode)
		assert.Equal(t, 0, o.Offset())
		assert.False(t, o.SortDesc)
	})

	t.Run("keyword lower cased", func(t *testing.T) {
		o, err := ParseOptions(Params{Keyword: "Alice BOB"}, limits)
		require.NoError(t, err)
		assert.Equal(t, "alice bob", o.Keyword)
	})

	t.Run("offset", func(t *testing.T) {
		o, err := ParseOptions(Params{Page: intPtr(3), PageSize: intPtr(20)}, limits)
		require.NoError(t, err)
		assert.Equal(t, 40, o.Offset())
	})

	t.Run("max limit is allowed", func(t *testing.T) {
		o, err := ParseOptions(Params{PageSize: intPtr(MaxLimit)}, limits)
		require.NoError(t, err)
		assert.Equal(t, MaxLimit, o.PageSize)
	})

	t.Run("export aliases", func(t *testing.T) {
		for _, action := range []string{"export", "EXCEL", "csv"} {
			o, err := ParseOptions(Params{Action: action}, limits)
			require.NoError(t, err, action)
			assert.Equal(t, ModeExport, o.Mode, action)
		}
	})

	t.Run("sort direction", func(t *testing.T) {
		o, err := ParseOptions(Params{Sort: " name ", Dir: "DESC"}, limits)
		require.NoError(t, err)
		assert.Equal(t, "name", o.SortKey)
		assert.True(t, o.SortDesc)
	})

	t.Run("zero limits fall back", func(t *testing.T) {
		o, err := ParseOptions(Params{}, Limits{})
		require.NoError(t, err)
		assert.Equal(t, DefaultLimit, o.PageSize)
	})

	invalid := []struct {
		name    string
		params  Params
		message string
	}{
		{"limit above max", Params{PageSize: intPtr(MaxLimit + 1)}, MsgLimitExceeded},
		{"negative limit", Params{PageSize: intPtr(-5)}, MsgInvalidLimit},
		{"negative page", Params{Page: intPtr(-1)}, MsgInvalidPage},
		{"zero page", Params{Page: intPtr(0)}, MsgInvalidPage},
		{"zero limit", Params{PageSize: intPtr(0)}, MsgInvalidLimit},
		{"offset overflows to zero", Params{Page: intPtr(1<<61 + 1), PageSize: intPtr(8)}, MsgInvalidPage},
		{"offset overflows to negative", Params{Page: intPtr(math.MaxInt), PageSize: intPtr(2)}, MsgInvalidPage},
		{"unknown action", Params{Action: "print"}, MsgInvalidAction},
		{"unknown direction", Params{Dir: "up"}, MsgInvalidSort},
	}
	for _, tc := range invalid {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseOptions(tc.params, limits)
			require.Error(t, err)

			appErr := apperrors.GetAppError(err)
			require.NotNil(t, appErr)
			assert.Equal(t, tc.message, appErr.Message)
			assert.Equal(t, 400, appErr.HTTPStatus())
		})
	}
}

func TestParseOptionsLargestPage(t *testing.T) {
	size := 8
	page := math.MaxInt/size + 1

	o, err := ParseOptions(Params{Page: intPtr(page), PageSize: intPtr(size)}, DefaultLimits())
	require.NoError(t, err)
	assert.Equal(t, (page-1)*size, o.Offset())
	assert.Positive(t, o.Offset())

	_, err = ParseOptions(Params{Page: intPtr(page + 1), PageSize: intPtr(size)}, DefaultLimits())
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidation))
}

func TestOffsetOnlyAfterFirstPage(t *testing.T) {
	size := 5
	pages := []int{1, 2, 3, math.MaxInt/size + 1}
	for _, page := range pages {
		t.Run(fmt.Sprintf("page %d", page), func(t *testing.T) {
			o, err := ParseOptions(Params{Page: intPtr(page), PageSize: intPtr(size)}, DefaultLimits())
			require.NoError(t, err)

			base, rec := newFake(int64(size), makePeople(size))
			result, err := NewBuilder(peopleRegistry().EnableRowIndex(""), Query[person](base), o, true).
				Render(context.Background(), nil)
			require.NoError(t, err)

			if page > 1 {
				assert.Contains(t, rec.calls, fmt.Sprintf("offset:%d", o.Offset()))
			} else {
				for _, call := range rec.calls {
					assert.NotContains(t, call, "offset")
				}
			}

			require.Len(t, result.Items, size)
			for i, item := range result.Items {
				index, ok := item.Get(DefaultRowIndexName)
				require.True(t, ok)
				assert.Equal(t, o.Offset()+i+1, index)
			}
		})
	}
}

func TestRowJSON(t *testing.T) {
	p := person{ID: 7, Name: "alice", Email: "alice@example.com"}

	t.Run("plain row", func(t *testing.T) {
		data, err := json.Marshal(Row[person]{Data: &p})
		require.NoError(t, err)
		assert.JSONEq(t, `{"id":7,"name":"alice","email":"alice@example.com"}`, string(data))
	})

	t.Run("computed values are flattened and win", func(t *testing.T) {
		row := Row[person]{Data: &p}
		row.Set("name", "Alice")
		row.Set(DefaultRowIndexName, 3)

		data, err := json.Marshal(row)
		require.NoError(t, err)
		assert.JSONEq(t, `{"id":7,"name":"Alice","email":"alice@example.com","DT_RowIndex":3}`, string(data))

		m, err := row.Map()
		require.NoError(t, err)
		assert.Equal(t, json.Number("7"), m["id"])
		assert.Equal(t, "Alice", m["name"])
	})

	t.Run("nil data", func(t *testing.T) {
		row := Row[person]{}
		row.Set("n", 1)
		data, err := json.Marshal(row)
		require.NoError(t, err)
		assert.JSONEq(t, `{"n":1}`, string(data))
	})

	t.Run("non object rows cannot carry computed values", func(t *testing.T) {
		n := 5
		row := Row[int]{Data: &n}
		row.Set("x", 1)
		_, err := json.Marshal(row)
		assert.Error(t, err)
	})

	t.Run("result envelope", func(t *testing.T) {
		res := newResult(2, 1, []Row[person]{{Data: &p}}, nil)
		data, err := json.Marshal(res)
		require.NoError(t, err)
		assert.JSONEq(t, `{"totalRecords":2,"filteredRecords":1,
			"items":[{"id":7,"name":"alice","email":"alice@example.com"}],"others":{}}`, string(data))
	})
}
