package datatable

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Row wraps a fetched row with the values computed for it. It points at
// the fetched row; nothing is copied.
type Row[T any] struct {
	Data   *T
	Fields map[string]interface{}
}

// Set attaches a computed value
func (r *Row[T]) Set(key string, value interface{}) {
	if r.Fields == nil {
		r.Fields = make(map[string]interface{})
	}
	r.Fields[key] = value
}

// Get returns a computed value
func (r Row[T]) Get(key string) (interface{}, bool) {
	v, ok := r.Fields[key]
	return v, ok
}

// MarshalJSON flattens the row and its computed values into one object.
// Computed values win over row fields of the same name.
func (r Row[T]) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(r.Data)
	if err != nil {
		return nil, err
	}
	if len(r.Fields) == 0 {
		return base, nil
	}

	obj := make(map[string]json.RawMessage)
	if !bytes.Equal(base, []byte("null")) {
		if err := json.Unmarshal(base, &obj); err != nil {
			return nil, fmt.Errorf("datatable: row does not encode as an object: %w", err)
		}
	}
	for k, v := range r.Fields {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("datatable: computed column %q: %w", k, err)
		}
		obj[k] = raw
	}
	return json.Marshal(obj)
}

// Map returns the flattened row as generic values. Numbers stay json.Number.
func (r Row[T]) Map() (map[string]interface{}, error) {
	data, err := r.MarshalJSON()
	if err != nil {
		return nil, err
	}
	out := make(map[string]interface{})
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// Result is the envelope of one render
type Result[T any] struct {
	TotalRecords    int64                  `json:"totalRecords"`
	FilteredRecords int64                  `json:"filteredRecords"`
	Items           []Row[T]               `json:"items"`
	Extra           map[string]interface{} `json:"others"`
}

func newResult[T any](total, filtered int64, items []Row[T], extra map[string]interface{}) *Result[T] {
	if items == nil {
		items = make([]Row[T], 0)
	}
	if extra == nil {
		extra = make(map[string]interface{})
	}
	return &Result[T]{
		TotalRecords:    total,
		FilteredRecords: filtered,
		Items:           items,
		Extra:           extra,
	}
}
