package datatable

// decorate wraps rows and attaches computed columns and the row index.
// offset is the absolute position of the first row.
func decorate[T any](registry *Registry[T], rows []T, offset int) []Row[T] {
	out := make([]Row[T], len(rows))
	indexName, numbered := registry.RowIndexName()

	for i := range rows {
		row := Row[T]{Data: &rows[i]}
		for _, cc := range registry.computed {
			row.Set(cc.key, cc.producer(&rows[i]))
		}
		if numbered {
			row.Set(indexName, offset+i+1)
		}
		out[i] = row
	}
	return out
}
