/*
Package datatable renders server-side grids over a GORM query.

A table definition is a Registry of columns plus a Source producing the
base query. Each request parses its Params into RequestOptions and calls
Render, which runs a fresh Builder:

	INIT -> COUNTING_TOTAL -> FILTERING -> PAGINATING -> EXECUTED

The base query is counted once. When it has rows, the keyword is split on
whitespace and every token is matched against every searchable column,
either through the column's FilterFunc or a case-insensitive substring
match; all predicates are OR-ed into a single WHERE condition. OFFSET is
only applied past the first page, LIMIT always. The page is fetched and
the filtered query is counted again without pagination.

Fetched rows are wrapped in Row values carrying computed columns and the
optional 1-based row index, and returned in a Result:

	{"totalRecords": 30, "filteredRecords": 30, "items": [...], "others": {}}

Example:

	registry := datatable.NewRegistry[User]()
	registry.MustRegister(
		datatable.NewColumn("id").AsOrderable(),
		datatable.NewColumn("email").AsSearchable(),
	)
	registry.EnableRowIndex("")

	table := datatable.NewTable("users", registry, func(db *gorm.DB) datatable.Query[User] {
		return datatable.FromGorm[User](db.Where("is_admin = ?", false))
	})

	opts, err := table.ParseOptions(datatable.Params{Keyword: "alice"})
	result, err := table.Render(ctx, db, opts, nil)
*/
package datatable
