// Package types defines the core types shared across usergrid packages
package types

import "context"

// ErrorType classifies errors for transport mapping
type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	ErrorTypeForbidden    ErrorType = "forbidden"
	ErrorTypeConflict     ErrorType = "conflict"
	ErrorTypeInternal     ErrorType = "internal"
	ErrorTypeExternal     ErrorType = "external"
)

// ContextKey namespaces values stored on a request context
type ContextKey string

const (
	ContextKeyUserID    ContextKey = "user_id"
	ContextKeyRequestID ContextKey = "request_id"
)

// RequestContext is the caller identity carried through a request
type RequestContext struct {
	UserID    string
	RequestID string
}

// GetRequestContext extracts request context from Go context
func GetRequestContext(ctx context.Context) *RequestContext {
	return &RequestContext{
		UserID:    getStringFromContext(ctx, ContextKeyUserID),
		RequestID: getStringFromContext(ctx, ContextKeyRequestID),
	}
}

// Fields returns the non-empty values as log fields
func (rc *RequestContext) Fields() map[string]interface{} {
	fields := make(map[string]interface{}, 2)
	if rc.RequestID != "" {
		fields["request_id"] = rc.RequestID
	}
	if rc.UserID != "" {
		fields["actor_id"] = rc.UserID
	}
	return fields
}

// WithRequestID stores a request ID on the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// WithUserID stores the authenticated user on the context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ContextKeyUserID, userID)
}

func getStringFromContext(ctx context.Context, key ContextKey) string {
	if value := ctx.Value(key); value != nil {
		if str, ok := value.(string); ok {
			return str
		}
	}
	return ""
}

// Token is the bearer token issued on login
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// TokenTypeBearer is the only token type issued
const TokenTypeBearer = "bearer"

// Msg is the bare acknowledgement body used by the auth endpoints
type Msg struct {
	Msg string `json:"msg"`
}
