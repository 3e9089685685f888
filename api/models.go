package api

// Response is the envelope of every non-auth JSON response
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
	Errors  interface{} `json:"errors"`
}

// ErrorDetail describes one failed field
type ErrorDetail struct {
	Field   string `json:"field,omitempty"`
	Tag     string `json:"tag,omitempty"`
	Message string `json:"message"`
}

// OK wraps data in a success envelope
func OK(message string, data interface{}) Response {
	return Response{Success: true, Message: message, Data: data}
}

// Fail builds an error envelope. A nil errs is sent as an empty list.
func Fail(message string, errs interface{}) Response {
	if errs == nil {
		errs = []ErrorDetail{}
	}
	return Response{Success: false, Message: message, Errors: errs}
}

// HealthResponse represents health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Version   string            `json:"version"`
	Uptime    string            `json:"uptime"`
	Checks    map[string]string `json:"checks"`
}

// ColumnsResponse describes the users grid to a client
type ColumnsResponse struct {
	Table    string      `json:"table"`
	Columns  interface{} `json:"columns"`
	RowIndex string      `json:"rowIndex,omitempty"`
	Limits   LimitsInfo  `json:"limits"`
}

// LimitsInfo reports the page size bounds
type LimitsInfo struct {
	Default int `json:"default"`
	Max     int `json:"max"`
}
