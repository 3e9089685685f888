package datatable

// FilterFunc turns one search token into a predicate for its column
type FilterFunc func(keyword string) Predicate

// Column describes one grid column
type Column struct {
	// Key identifies the column and names it in serialized rows
	Key string `json:"key"`

	// Field is the underlying database column, defaults to Key
	Field string `json:"-"`

	// Title is the header shown by the grid, defaults to Key
	Title string `json:"title"`

	Searchable bool   `json:"searchable"`
	Orderable  bool   `json:"orderable"`
	Exportable bool   `json:"exportable"`
	Printable  bool   `json:"printable"`
	ClassName  string `json:"className"`

	// Filter replaces the default substring match when set
	Filter FilterFunc `json:"-"`
}

// NewColumn creates a column keyed and titled by key
func NewColumn(key string) Column {
	return Column{Key: key, Field: key, Title: key}
}

// AsSearchable marks the column as matched by keyword search
func (c Column) AsSearchable() Column {
	c.Searchable = true
	return c
}

// AsOrderable allows sorting on the column
func (c Column) AsOrderable() Column {
	c.Orderable = true
	return c
}

// AsExportable includes the column in exports
func (c Column) AsExportable() Column {
	c.Exportable = true
	return c
}

// AsPrintable includes the column in printed views
func (c Column) AsPrintable() Column {
	c.Printable = true
	return c
}

// WithTitle sets the header text
func (c Column) WithTitle(title string) Column {
	c.Title = title
	return c
}

// WithField maps the column onto a different database column
func (c Column) WithField(field string) Column {
	c.Field = field
	return c
}

// WithClassName sets the CSS class hint for the grid
func (c Column) WithClassName(className string) Column {
	c.ClassName = className
	return c
}

func (c Column) normalized() Column {
	if c.Field == "" {
		c.Field = c.Key
	}
	if c.Title == "" {
		c.Title = c.Key
	}
	return c
}
