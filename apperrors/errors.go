package apperrors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Error represents an application error. Message is the only text ever shown
// to API clients; Err carries the internal cause for logs.
type Error struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
	Err       error  `json:"-"`

	kind string
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the same kind of application error, so that
// errors.Is(err, ErrGatewayUnavailable) matches every wrapped instance.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.kind == t.kind
}

// Wrap returns a copy of e carrying cause. The sentinel itself is never mutated.
func (e *Error) Wrap(cause error) *Error {
	cp := *e
	cp.Err = cause
	return &cp
}

// Wrapf is Wrap with a formatted cause.
func (e *Error) Wrapf(format string, args ...interface{}) *Error {
	return e.Wrap(fmt.Errorf(format, args...))
}

// New creates a new Error
func New(code int, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
		kind:    message,
	}
}

func newKind(kind string, code int, message string, retryable bool) *Error {
	return &Error{Code: code, Message: message, Retryable: retryable, kind: kind}
}

// Common error types
var (
	ErrBadRequest     = New(http.StatusBadRequest, "Bad request", nil)
	ErrUnauthorized   = New(http.StatusUnauthorized, "Unauthorized", nil)
	ErrNotFound       = New(http.StatusNotFound, "Not found", nil)
	ErrInternalServer = New(http.StatusInternalServerError, "Internal server error", nil)
)

// ErrServiceUnavailable covers local coordination failures such as an
// unreachable lock store. The request made no gateway call and may be retried.
var ErrServiceUnavailable = newKind("service_unavailable", http.StatusServiceUnavailable, "service busy, please retry", true)

// Validation errors raised locally. Never retried.
var (
	ErrUnknownPlan     = newKind("unknown_plan", http.StatusBadRequest, "unknown plan or billing cycle", false)
	ErrInvalidAmount   = newKind("invalid_amount", http.StatusBadRequest, "invalid amount", false)
	ErrInvalidCatalog  = newKind("invalid_catalog", http.StatusInternalServerError, "invalid pricing catalog", false)
	ErrInvalidCallback = newKind("invalid_callback", http.StatusBadRequest, "invalid payment callback", false)
)

// Payment gateway errors. Only ErrGatewayUnavailable may be retried, and only
// with the original idempotency key.
var (
	ErrGatewayUnavailable = newKind("gateway_unavailable", http.StatusServiceUnavailable, "payment could not be started, please retry", true)
	ErrGatewayRejected    = newKind("gateway_rejected", http.StatusBadGateway, "payment could not be started, please retry", false)
)

// Order and subscription errors.
var (
	ErrOrderNotFound             = newKind("order_not_found", http.StatusNotFound, "order not found", false)
	ErrSignatureMismatch         = newKind("signature_mismatch", http.StatusBadRequest, "payment could not be verified", false)
	ErrSubscriptionAlreadyExists = newKind("subscription_exists", http.StatusConflict, "subscription already exists", false)
	ErrSubscriptionNotFound      = newKind("subscription_not_found", http.StatusNotFound, "subscription not found", false)
	ErrIdempotencyKeyReused      = newKind("idempotency_key_reused", http.StatusUnprocessableEntity, "idempotency key was used for a different plan", false)
	ErrInvalidWebhook            = newKind("invalid_webhook", http.StatusBadRequest, "invalid webhook", false)
)

// IsRetryable reports whether err is a transient failure that may be retried
// with the same idempotency key.
func IsRetryable(err error) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Retryable
	}
	return false
}

// From converts any error into an *Error, defaulting to an internal error.
func From(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return ErrInternalServer.Wrap(err)
}

// ErrorMiddleware renders the last error attached to the gin context.
func ErrorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 && !c.Writer.Written() {
			appErr := From(c.Errors.Last().Err)
			c.JSON(appErr.Code, gin.H{"error": appErr.Message, "code": appErr.Code, "retryable": appErr.Retryable})
			c.Abort()
		}
	}
}
