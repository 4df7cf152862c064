package errorutil

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes shared by the HTTP layer and the queue workers.
const (
	CodeValidation           = "VALIDATION_FAILED"
	CodeMalformedMessage     = "MALFORMED_MESSAGE"
	CodeNoEligibleOperators  = "NO_ELIGIBLE_OPERATORS"
	CodeDirectoryUnavailable = "DIRECTORY_UNAVAILABLE"
	CodePersistence          = "PERSISTENCE_FAILED"
	CodeNotificationDelivery = "NOTIFICATION_DELIVERY_FAILED"
	CodeNotFound             = "NOT_FOUND"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeForbidden            = "FORBIDDEN"
	CodeInternal             = "INTERNAL_ERROR"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Retryable  bool
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches another DomainError by code so callers can compare against
// the package sentinels with errors.Is.
func (e *DomainError) Is(target error) bool {
	var other *DomainError
	if !errors.As(target, &other) {
		return false
	}
	return other.Code == e.Code
}

// Sentinels for errors.Is comparisons.
var (
	ErrValidation           = &DomainError{Code: CodeValidation}
	ErrMalformedMessage     = &DomainError{Code: CodeMalformedMessage}
	ErrNoEligibleOperators  = &DomainError{Code: CodeNoEligibleOperators}
	ErrDirectoryUnavailable = &DomainError{Code: CodeDirectoryUnavailable}
	ErrPersistence          = &DomainError{Code: CodePersistence}
	ErrNotificationDelivery = &DomainError{Code: CodeNotificationDelivery}
	ErrNotFound             = &DomainError{Code: CodeNotFound}
	ErrUnauthorized         = &DomainError{Code: CodeUnauthorized}
	ErrForbidden            = &DomainError{Code: CodeForbidden}
)

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidation, message, http.StatusBadRequest, details)
}

// NewMalformedMessage marks a queue message that can never be processed.
func NewMalformedMessage(err error) error {
	return &DomainError{
		Code:       CodeMalformedMessage,
		Message:    "malformed queue message",
		HTTPStatus: http.StatusUnprocessableEntity,
		Err:        err,
	}
}

func NewNoEligibleOperators(group string) error {
	return &DomainError{
		Code:       CodeNoEligibleOperators,
		Message:    "no eligible operators",
		HTTPStatus: http.StatusServiceUnavailable,
		Details:    map[string]any{"group": group},
		Retryable:  true,
	}
}

func NewDirectoryUnavailable(err error) error {
	return &DomainError{
		Code:       CodeDirectoryUnavailable,
		Message:    "agent directory unavailable",
		HTTPStatus: http.StatusServiceUnavailable,
		Retryable:  true,
		Err:        err,
	}
}

func NewPersistenceError(err error) error {
	return &DomainError{
		Code:       CodePersistence,
		Message:    "concern store unavailable",
		HTTPStatus: http.StatusServiceUnavailable,
		Retryable:  true,
		Err:        err,
	}
}

// NewNotificationDelivery wraps a best-effort delivery failure. It is logged by
// callers and never fails the enclosing operation.
func NewNotificationDelivery(err error) error {
	return &DomainError{
		Code:       CodeNotificationDelivery,
		Message:    "notification delivery failed",
		HTTPStatus: http.StatusBadGateway,
		Err:        err,
	}
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError(CodeForbidden, message, http.StatusForbidden, nil)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "Internal Server Error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    "Internal Server Error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	return ToDomainError(err)
}

// IsRetryable reports whether a failed queue message should be left for
// redelivery. Unknown errors are treated as transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Retryable
	}
	return true
}

// CodeOf returns the taxonomy code for err, or CodeInternal.
func CodeOf(err error) string {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return CodeInternal
}
