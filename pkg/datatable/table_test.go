package datatable

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/memtensor/usergrid/pkg/config"
	"github.com/memtensor/usergrid/pkg/database"
	apperrors "github.com/memtensor/usergrid/pkg/errors"
	"github.com/memtensor/usergrid/pkg/logger"
	"github.com/memtensor/usergrid/pkg/metrics"
)

func setupPeople(t *testing.T, n int) *gorm.DB {
	t.Helper()
	db, err := database.Open(context.Background(), config.DatabaseConfig{
		Driver:          "sqlite",
		DSN:             ":memory:",
		ConnectAttempts: 1,
		LogLevel:        "silent",
	}, logger.NewTestLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })

	require.NoError(t, db.AutoMigrate(&person{}))
	if n > 0 {
		require.NoError(t, db.Create(makePeople(n)).Error)
	}
	return db
}

func peopleTable(opts ...Option) *Table[person] {
	registry := NewRegistry[person]().MustRegister(
		NewColumn("id").AsOrderable().AsExportable().WithTitle("ID"),
		NewColumn("name").AsSearchable().AsOrderable().AsExportable().WithTitle("Name"),
		NewColumn("email").AsSearchable().AsExportable().WithTitle("Email"),
	)
	registry.EnableRowIndex("")
	opts = append([]Option{WithLogger(logger.NewTestLogger())}, opts...)
	return NewTable("people", registry, func(db *gorm.DB) Query[person] {
		return FromGorm[person](db)
	}, opts...)
}

func TestTableRender(t *testing.T) {
	ctx := context.Background()

	t.Run("second page of thirty rows", func(t *testing.T) {
		db := setupPeople(t, 30)
		table := peopleTable()

		o, err := table.ParseOptions(Params{Page: intPtr(2), PageSize: intPtr(10)})
		require.NoError(t, err)

		result, err := table.Render(ctx, db, o, nil)
		require.NoError(t, err)

		assert.Equal(t, int64(30), result.TotalRecords)
		assert.Equal(t, int64(30), result.FilteredRecords)
		require.Len(t, result.Items, 10)
		assert.Equal(t, uint64(11), result.Items[0].Data.ID)

		idx, _ := result.Items[0].Get(DefaultRowIndexName)
		assert.Equal(t, 11, idx)
	})

	t.Run("keyword is case insensitive and counts filtered rows", func(t *testing.T) {
		db := setupPeople(t, 30)
		table := peopleTable()

		o, err := table.ParseOptions(Params{Keyword: "USER0", PageSize: intPtr(5)})
		require.NoError(t, err)

		result, err := table.Render(ctx, db, o, nil)
		require.NoError(t, err)

		assert.Equal(t, int64(30), result.TotalRecords)
		assert.Equal(t, int64(9), result.FilteredRecords)
		assert.Len(t, result.Items, 5)
	})

	t.Run("tokens are or-ed", func(t *testing.T) {
		db := setupPeople(t, 30)
		table := peopleTable()

		o, err := table.ParseOptions(Params{Keyword: "user03 user17 user03"})
		require.NoError(t, err)

		result, err := table.Render(ctx, db, o, nil)
		require.NoError(t, err)
		assert.Equal(t, int64(2), result.FilteredRecords)
	})

	t.Run("sorted descending", func(t *testing.T) {
		db := setupPeople(t, 30)
		table := peopleTable()

		o, err := table.ParseOptions(Params{Sort: "id", Dir: "desc", PageSize: intPtr(3)})
		require.NoError(t, err)

		result, err := table.Render(ctx, db, o, nil)
		require.NoError(t, err)
		require.Len(t, result.Items, 3)
		assert.Equal(t, uint64(30), result.Items[0].Data.ID)
	})

	t.Run("empty table", func(t *testing.T) {
		db := setupPeople(t, 0)
		table := peopleTable()

		o, err := table.ParseOptions(Params{Keyword: "alice", Page: intPtr(4)})
		require.NoError(t, err)

		result, err := table.Render(ctx, db, o, map[string]interface{}{"roles": []string{"admin"}})
		require.NoError(t, err)

		data, err := json.Marshal(result)
		require.NoError(t, err)
		assert.JSONEq(t, `{"totalRecords":0,"filteredRecords":0,"items":[],"others":{"roles":["admin"]}}`, string(data))
	})

	t.Run("failures are masked and counted", func(t *testing.T) {
		db := setupPeople(t, 3)
		m := metrics.NewPrometheusMetrics("test")
		table := NewTable("missing", peopleRegistry(), func(db *gorm.DB) Query[person] {
			return FromGorm[person](db.Table("no_such_table"))
		}, WithLogger(logger.NewTestLogger()), WithMetrics(m))

		o, err := table.ParseOptions(Params{})
		require.NoError(t, err)

		_, err = table.Render(ctx, db, o, nil)
		require.Error(t, err)

		appErr := apperrors.GetAppError(err)
		require.NotNil(t, appErr)
		assert.Equal(t, apperrors.ErrCodeDataFetch, appErr.Code)
		assert.Equal(t, "Error when querying data!", appErr.Message)
		assert.Equal(t, 400, appErr.HTTPStatus())

		n, err := testutil.GatherAndCount(m.Registry(), "test_datatable_requests_total")
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})
}

func TestPredicateSQL(t *testing.T) {
	db := setupPeople(t, 0)
	table := peopleTable()

	o, err := table.ParseOptions(Params{Keyword: "alice bob"})
	require.NoError(t, err)

	b := table.NewBuilder(db, o)
	q := FromGorm[person](db.Session(&gorm.Session{DryRun: true})).Filter(b.Predicate())

	var rows []person
	stmt := q.(*GormQuery[person]).DB().Find(&rows).Statement

	assert.Contains(t, stmt.SQL.String(),
		"WHERE (LOWER(`name`) LIKE ? OR LOWER(`email`) LIKE ? OR LOWER(`name`) LIKE ? OR LOWER(`email`) LIKE ?)")
	assert.Equal(t, []interface{}{"%alice%", "%alice%", "%bob%", "%bob%"}, stmt.Vars)
}

func TestCustomFilterSQL(t *testing.T) {
	db := setupPeople(t, 0)
	require.NoError(t, db.Create([]person{
		{Name: "Alice", Email: "a@example.com"},
		{Name: "Bob", Email: "ali@example.com"},
		{Name: "Carol", Email: "c@example.com"},
	}).Error)

	table := peopleTable()
	require.NoError(t, table.Registry().SetCustomFilter("name", func(keyword string) Predicate {
		return Eq("name", strings.ToUpper(keyword[:1])+keyword[1:]+"ce")
	}))

	o, err := table.ParseOptions(Params{Keyword: "ali"})
	require.NoError(t, err)

	result, err := table.Render(context.Background(), db, o, nil)
	require.NoError(t, err)

	names := make([]string, 0, len(result.Items))
	for _, row := range result.Items {
		names = append(names, row.Data.Name)
	}
	assert.ElementsMatch(t, []string{"Alice", "Bob"}, names)
}

func TestTableParseOptions(t *testing.T) {
	table := peopleTable(WithLimits(Limits{Default: 10, Max: 20}))
	assert.Equal(t, "people", table.Name())
	assert.Equal(t, 20, table.Limits().Max)

	o, err := table.ParseOptions(Params{})
	require.NoError(t, err)
	assert.Equal(t, 10, o.PageSize)

	_, err = table.ParseOptions(Params{PageSize: intPtr(21)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), MsgLimitExceeded)

	_, err = table.ParseOptions(Params{Sort: "email"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), MsgInvalidSort)

	_, err = table.ParseOptions(Params{Sort: "nope"})
	require.Error(t, err)
}

func TestTableExport(t *testing.T) {
	ctx := context.Background()
	db := setupPeople(t, 30)

	table := peopleTable()
	table.Registry().AddComputedColumn("name", func(p *person) interface{} {
		return strings.ToUpper(p.Name)
	})

	o, err := table.ParseOptions(Params{Keyword: "user1", Sort: "id", Dir: "desc", Page: intPtr(2), PageSize: intPtr(2), Action: "export"})
	require.NoError(t, err)
	assert.Equal(t, ModeExport, o.Mode)

	var buf bytes.Buffer
	require.NoError(t, table.Export(ctx, db, o, &buf))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 11)
	assert.Equal(t, []string{"ID", "Name", "Email"}, records[0])
	assert.Equal(t, []string{"19", "USER19", "user19@example.com"}, records[1])
	assert.Equal(t, []string{"10", "USER10", "user10@example.com"}, records[10])
}

func TestTableExportWithoutColumns(t *testing.T) {
	db := setupPeople(t, 1)
	table := NewTable("bare", NewRegistry[person](), func(db *gorm.DB) Query[person] {
		return FromGorm[person](db)
	}, WithLogger(logger.NewTestLogger()))

	err := table.Export(context.Background(), db, opts("", 1, 10), &bytes.Buffer{})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeConfigError))
}

func TestGormQueryImmutable(t *testing.T) {
	ctx := context.Background()
	db := setupPeople(t, 12)

	base := FromGorm[person](db)
	filtered := base.Filter(ContainsFold("name", "user1"))
	paged := filtered.Limit(2)

	total, err := base.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(12), total)

	n, err := filtered.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	rows, err := paged.All(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	rows, err = base.Offset(10).Limit(5).All(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	assert.Equal(t, fmt.Sprintf("user%02d", 11), rows[0].Name)
}
