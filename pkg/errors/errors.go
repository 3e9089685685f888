// Package errors provides structured error handling for usergrid
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"

	"github.com/memtensor/usergrid/pkg/types"
)

// ErrorCode represents specific error codes
type ErrorCode string

const (
	// Validation errors
	ErrCodeValidation    ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidInput  ErrorCode = "INVALID_INPUT"
	ErrCodeMissingField  ErrorCode = "MISSING_FIELD"
	ErrCodeInvalidFormat ErrorCode = "INVALID_FORMAT"

	// Authentication/Authorization errors
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden    ErrorCode = "FORBIDDEN"
	ErrCodeInvalidToken ErrorCode = "INVALID_TOKEN"
	ErrCodeInactive     ErrorCode = "INACTIVE_USER"
	ErrCodePrivileges   ErrorCode = "NOT_ENOUGH_PRIVILEGES"

	// Resource errors
	ErrCodeNotFound      ErrorCode = "NOT_FOUND"
	ErrCodeAlreadyExists ErrorCode = "ALREADY_EXISTS"

	// System errors
	ErrCodeInternal           ErrorCode = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrCodeRateLimited        ErrorCode = "RATE_LIMITED"

	// Database errors
	ErrCodeDatabaseError    ErrorCode = "DATABASE_ERROR"
	ErrCodeConnectionFailed ErrorCode = "CONNECTION_FAILED"
	ErrCodeQueryFailed      ErrorCode = "QUERY_FAILED"
	ErrCodeDataFetch        ErrorCode = "DATA_FETCH_ERROR"

	// Configuration errors
	ErrCodeConfigError   ErrorCode = "CONFIG_ERROR"
	ErrCodeConfigInvalid ErrorCode = "CONFIG_INVALID"

	// Delivery errors
	ErrCodeMailFailed ErrorCode = "MAIL_FAILED"
)

// DataFetchMessage is the only text a client ever sees for a failed datatable render.
const DataFetchMessage = "Error when querying data!"

// AppError represents a structured error in usergrid
type AppError struct {
	Type       types.ErrorType        `json:"type"`
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Cause      error                  `json:"-"`
	StackTrace string                 `json:"stack_trace,omitempty"`
	RequestID  string                 `json:"request_id,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s (caused by: %v)", e.Code, e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetail adds a detail to the error
func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithRequestID adds a request ID to the error
func (e *AppError) WithRequestID(requestID string) *AppError {
	e.RequestID = requestID
	return e
}

// WithStackTrace adds a stack trace to the error
func (e *AppError) WithStackTrace() *AppError {
	e.StackTrace = getStackTrace()
	return e
}

// HTTPStatus maps the error onto a response status code
func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case ErrCodeDataFetch, ErrCodeInactive, ErrCodePrivileges, ErrCodeAlreadyExists:
		return http.StatusBadRequest
	case ErrCodeInvalidToken:
		return http.StatusBadRequest
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case ErrCodeServiceUnavailable:
		return http.StatusServiceUnavailable
	}

	switch e.Type {
	case types.ErrorTypeValidation, types.ErrorTypeConflict:
		return http.StatusBadRequest
	case types.ErrorTypeNotFound:
		return http.StatusNotFound
	case types.ErrorTypeUnauthorized:
		return http.StatusUnauthorized
	case types.ErrorTypeForbidden:
		return http.StatusForbidden
	case types.ErrorTypeExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// NewAppError creates a new error
func NewAppError(errType types.ErrorType, code ErrorCode, message string) *AppError {
	return &AppError{
		Type:    errType,
		Code:    code,
		Message: message,
	}
}

// NewAppErrorWithCause creates a new error with a cause
func NewAppErrorWithCause(errType types.ErrorType, code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Type:    errType,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Validation error constructors
func NewValidationError(message string) *AppError {
	return NewAppError(types.ErrorTypeValidation, ErrCodeValidation, message)
}

func NewInvalidInputError(message string) *AppError {
	return NewAppError(types.ErrorTypeValidation, ErrCodeInvalidInput, message)
}

func NewMissingFieldError(field string) *AppError {
	return NewAppError(types.ErrorTypeValidation, ErrCodeMissingField,
		fmt.Sprintf("missing required field: %s", field)).WithDetail("field", field)
}

func NewInvalidFormatError(field, expectedFormat string) *AppError {
	return NewAppError(types.ErrorTypeValidation, ErrCodeInvalidFormat,
		fmt.Sprintf("invalid format for field %s, expected: %s", field, expectedFormat)).
		WithDetail("field", field).WithDetail("expected_format", expectedFormat)
}

// Authentication/Authorization error constructors
func NewUnauthorizedError(message string) *AppError {
	return NewAppError(types.ErrorTypeUnauthorized, ErrCodeUnauthorized, message)
}

func NewForbiddenError(message string) *AppError {
	return NewAppError(types.ErrorTypeForbidden, ErrCodeForbidden, message)
}

func NewInvalidTokenError() *AppError {
	return NewAppError(types.ErrorTypeValidation, ErrCodeInvalidToken, "Invalid token")
}

func NewInactiveUserError() *AppError {
	return NewAppError(types.ErrorTypeValidation, ErrCodeInactive, "Inactive user")
}

func NewPrivilegesError() *AppError {
	return NewAppError(types.ErrorTypeValidation, ErrCodePrivileges, "The user doesn't have enough privileges")
}

// Resource error constructors
func NewNotFoundError(resource string) *AppError {
	return NewAppError(types.ErrorTypeNotFound, ErrCodeNotFound,
		fmt.Sprintf("%s not found", resource)).WithDetail("resource", resource)
}

func NewAlreadyExistsError(resource string) *AppError {
	return NewAppError(types.ErrorTypeConflict, ErrCodeAlreadyExists,
		fmt.Sprintf("%s already exists", resource)).WithDetail("resource", resource)
}

// System error constructors
func NewInternalError(message string) *AppError {
	return NewAppError(types.ErrorTypeInternal, ErrCodeInternal, message)
}

func NewInternalErrorWithCause(message string, cause error) *AppError {
	return NewAppErrorWithCause(types.ErrorTypeInternal, ErrCodeInternal, message, cause)
}

func NewServiceUnavailableError(service string) *AppError {
	return NewAppError(types.ErrorTypeInternal, ErrCodeServiceUnavailable,
		fmt.Sprintf("%s service is unavailable", service)).WithDetail("service", service)
}

func NewRateLimitedError(message string) *AppError {
	return NewAppError(types.ErrorTypeInternal, ErrCodeRateLimited, message)
}

// Database error constructors
func NewDatabaseErrorWithCause(message string, cause error) *AppError {
	return NewAppErrorWithCause(types.ErrorTypeInternal, ErrCodeDatabaseError, message, cause)
}

func NewConnectionFailedError(target string, cause error) *AppError {
	return NewAppErrorWithCause(types.ErrorTypeInternal, ErrCodeConnectionFailed,
		fmt.Sprintf("failed to connect to %s", target), cause).WithDetail("target", target)
}

func NewQueryFailedError(query string, cause error) *AppError {
	return NewAppErrorWithCause(types.ErrorTypeInternal, ErrCodeQueryFailed,
		"query execution failed", cause).WithDetail("query", query)
}

// NewDataFetchError hides cause behind the generic client message.
func NewDataFetchError(cause error) *AppError {
	return NewAppErrorWithCause(types.ErrorTypeInternal, ErrCodeDataFetch, DataFetchMessage, cause)
}

// Configuration error constructors
func NewConfigError(message string) *AppError {
	return NewAppError(types.ErrorTypeValidation, ErrCodeConfigError, message)
}

func NewConfigInvalidError(message string) *AppError {
	return NewAppError(types.ErrorTypeValidation, ErrCodeConfigInvalid, message)
}

// Delivery error constructors
func NewMailError(message string, cause error) *AppError {
	return NewAppErrorWithCause(types.ErrorTypeExternal, ErrCodeMailFailed, message, cause)
}

// Helper functions
func getStackTrace() string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])

	var trace strings.Builder
	for {
		frame, more := frames.Next()
		if !more {
			break
		}
		trace.WriteString(fmt.Sprintf("%s:%d %s\n", frame.File, frame.Line, frame.Function))
	}

	return trace.String()
}

// IsAppError checks if an error chain contains an AppError
func IsAppError(err error) bool {
	return GetAppError(err) != nil
}

// GetAppError extracts the outermost AppError from an error chain
func GetAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// HasCode reports whether the error chain carries an AppError with the given code
func HasCode(err error, code ErrorCode) bool {
	appErr := GetAppError(err)
	return appErr != nil && appErr.Code == code
}

// ErrorList represents a list of errors
type ErrorList struct {
	Errors []*AppError `json:"errors"`
}

// Error implements the error interface
func (el *ErrorList) Error() string {
	var messages []string
	for _, err := range el.Errors {
		messages = append(messages, err.Error())
	}
	return strings.Join(messages, "; ")
}

// Add adds an error to the list
func (el *ErrorList) Add(err *AppError) {
	el.Errors = append(el.Errors, err)
}

// HasErrors returns true if there are errors
func (el *ErrorList) HasErrors() bool {
	return len(el.Errors) > 0
}

// ToError returns the ErrorList as an error if it has errors, otherwise nil
func (el *ErrorList) ToError() error {
	if el.HasErrors() {
		return el
	}
	return nil
}

// Messages returns the plain messages of every error in the list
func (el *ErrorList) Messages() []string {
	messages := make([]string, 0, len(el.Errors))
	for _, err := range el.Errors {
		messages = append(messages, err.Message)
	}
	return messages
}

// NewErrorList creates a new error list
func NewErrorList() *ErrorList {
	return &ErrorList{
		Errors: make([]*AppError, 0),
	}
}

// Collect collects multiple errors into an ErrorList
func Collect(errors ...*AppError) *ErrorList {
	el := NewErrorList()
	for _, err := range errors {
		if err != nil {
			el.Add(err)
		}
	}
	return el
}
