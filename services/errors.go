package services

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies a ServiceError for transport mapping.
type ErrorKind string

const (
	KindInvalidRequest      ErrorKind = "invalid_request"
	KindInsufficientBalance ErrorKind = "insufficient_balance"
	KindNotFound            ErrorKind = "not_found"
	KindConflict            ErrorKind = "conflict"
	KindInternal            ErrorKind = "internal"
)

// ServiceError represents a structured, client-visible service error
type ServiceError struct {
	Kind    ErrorKind      `json:"kind"`
	Code    string         `json:"code,omitempty"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Cause   error          `json:"-"`
}

func (e *ServiceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.Cause
}

// Is matches on Code when the target carries one, otherwise on Kind, so the sentinels
// below match errors built with a request-specific message.
func (e *ServiceError) Is(target error) bool {
	t, ok := target.(*ServiceError)
	if !ok {
		return false
	}
	if t.Code != "" {
		return e.Code == t.Code
	}
	return e.Kind == t.Kind
}

// StatusCode returns the HTTP status for this error
func (e *ServiceError) StatusCode() int {
	switch e.Kind {
	case KindInvalidRequest, KindInsufficientBalance:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

var (
	ErrInvalidCreditType   = &ServiceError{Kind: KindInvalidRequest, Code: "invalid_credit_type", Message: "Invalid credit type"}
	ErrProfileNotFound     = &ServiceError{Kind: KindNotFound, Code: "profile_not_found", Message: "Civic profile not found"}
	ErrInsufficientBalance = &ServiceError{Kind: KindInsufficientBalance, Code: "insufficient_balance", Message: "Insufficient credits"}
	ErrRedemptionNotFound  = &ServiceError{Kind: KindNotFound, Code: "redemption_not_found", Message: "Redemption code not found"}
	ErrRedemptionExpired   = &ServiceError{Kind: KindConflict, Code: "redemption_expired", Message: "Redemption code has expired"}
	ErrRedemptionUsed      = &ServiceError{Kind: KindConflict, Code: "redemption_used", Message: "Redemption code has already been used"}
	ErrNotificationMissing = &ServiceError{Kind: KindNotFound, Code: "notification_not_found", Message: "Notification not found"}
)

// NewValidationError creates an invalid_request error
func NewValidationError(message string, cause error) *ServiceError {
	return &ServiceError{Kind: KindInvalidRequest, Message: message, Cause: cause}
}

func insufficientBalance(balance, cost int64) *ServiceError {
	return &ServiceError{
		Kind:    KindInsufficientBalance,
		Code:    ErrInsufficientBalance.Code,
		Message: fmt.Sprintf("Insufficient credits. You have %d, need %d", balance, cost),
		Details: map[string]any{"balance": balance, "cost": cost},
	}
}

// AsServiceError extracts a *ServiceError from err, wrapping anything else as internal.
func AsServiceError(err error) *ServiceError {
	var se *ServiceError
	if errors.As(err, &se) {
		return se
	}
	return &ServiceError{Kind: KindInternal, Message: "internal server error", Cause: err}
}
