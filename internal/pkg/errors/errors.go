// Package errors provides standardized API error types.
//
// Every business outcome other than success is an *APIError whose Code is the
// outcome kind. Handlers render it through the response package; services and
// tests compare kinds with Is or KindOf.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// APIError represents a standardized API error response.
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Details    any    `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return e.Message
}

// WithDetails returns a copy of the error with additional details.
func (e *APIError) WithDetails(details any) *APIError {
	return &APIError{
		Code:       e.Code,
		Message:    e.Message,
		StatusCode: e.StatusCode,
		Details:    details,
	}
}

// WithMessage returns a copy of the error with a custom message.
func (e *APIError) WithMessage(message string) *APIError {
	return &APIError{
		Code:       e.Code,
		Message:    message,
		StatusCode: e.StatusCode,
		Details:    e.Details,
	}
}

// Standard error definitions
var (
	// ErrUnauthorized is returned when a bearer token is missing or invalid.
	ErrUnauthorized = &APIError{
		Code:       "unauthorized",
		Message:    "Authentication required",
		StatusCode: http.StatusUnauthorized,
	}

	// ErrForbidden is returned when the caller's role may not perform the action.
	ErrForbidden = &APIError{
		Code:       "forbidden",
		Message:    "You don't have permission to perform this action",
		StatusCode: http.StatusForbidden,
	}

	// ErrNotFound is returned when a resource is not found.
	ErrNotFound = &APIError{
		Code:       "not_found",
		Message:    "Resource not found",
		StatusCode: http.StatusNotFound,
	}

	// ErrBadRequest is returned when the request is malformed.
	ErrBadRequest = &APIError{
		Code:       "bad_request",
		Message:    "Invalid request",
		StatusCode: http.StatusBadRequest,
	}

	// ErrRateLimited is returned when rate limits are exceeded.
	ErrRateLimited = &APIError{
		Code:       "rate_limited",
		Message:    "Too many requests. Please try again later.",
		StatusCode: http.StatusTooManyRequests,
	}

	// ErrInternal is returned for unexpected server errors.
	ErrInternal = &APIError{
		Code:       "internal_error",
		Message:    "An internal error occurred",
		StatusCode: http.StatusInternalServerError,
	}

	// ErrAlreadyExists is returned when registering an email that is taken.
	ErrAlreadyExists = &APIError{
		Code:       "already_exists",
		Message:    "An account with this email already exists",
		StatusCode: http.StatusConflict,
	}

	// ErrServiceUnavailable is returned when a dependent service is unavailable.
	ErrServiceUnavailable = &APIError{
		Code:       "service_unavailable",
		Message:    "Service temporarily unavailable",
		StatusCode: http.StatusServiceUnavailable,
	}

	// ErrInvalidCredentials covers both an unknown email and a wrong password.
	ErrInvalidCredentials = &APIError{
		Code:       "invalid_credentials",
		Message:    "Invalid email or password",
		StatusCode: http.StatusUnauthorized,
	}

	// ErrAccountDeactivated is returned on login to a deactivated account.
	ErrAccountDeactivated = &APIError{
		Code:       "account_deactivated",
		Message:    "Account is deactivated",
		StatusCode: http.StatusForbidden,
	}

	// ErrAccountDeleted is returned on login to an account pending removal.
	ErrAccountDeleted = &APIError{
		Code:       "account_deleted",
		Message:    "Account has been deleted",
		StatusCode: http.StatusForbidden,
	}

	// ErrEmailNotVerified is returned on login before the email is confirmed.
	ErrEmailNotVerified = &APIError{
		Code:       "email_not_verified",
		Message:    "Email address has not been verified",
		StatusCode: http.StatusForbidden,
	}

	// ErrInvalidCode is returned when a verification code does not match.
	ErrInvalidCode = &APIError{
		Code:       "invalid_code",
		Message:    "Invalid verification code",
		StatusCode: http.StatusBadRequest,
	}

	// ErrExpired is returned when a code or grace window has elapsed.
	ErrExpired = &APIError{
		Code:       "expired",
		Message:    "The code or grace period has expired",
		StatusCode: http.StatusBadRequest,
	}

	// ErrInvalidOrExpired is the uniform answer for unusable recovery tokens.
	ErrInvalidOrExpired = &APIError{
		Code:       "invalid_or_expired_token",
		Message:    "Invalid or expired token",
		StatusCode: http.StatusBadRequest,
	}

	// ErrPolicy is returned when a business rule blocks the operation.
	ErrPolicy = &APIError{
		Code:       "policy_violation",
		Message:    "Operation not allowed",
		StatusCode: http.StatusConflict,
	}
)

// NewValidationError creates a validation error for a specific field.
func NewValidationError(field, message string) *APIError {
	return &APIError{
		Code:       "validation_error",
		Message:    fmt.Sprintf("Validation failed: %s", message),
		StatusCode: http.StatusBadRequest,
		Details: map[string]string{
			"field": field,
			"error": message,
		},
	}
}

// NewValidationErrors creates a validation error with multiple field errors.
func NewValidationErrors(errors map[string]string) *APIError {
	return &APIError{
		Code:       "validation_error",
		Message:    "One or more fields failed validation",
		StatusCode: http.StatusBadRequest,
		Details:    errors,
	}
}

// NewNotFoundError creates a not found error for a specific resource type.
func NewNotFoundError(resource string) *APIError {
	return &APIError{
		Code:       "not_found",
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: http.StatusNotFound,
	}
}

// NewPolicyError creates a policy error with a custom message.
func NewPolicyError(message string, details any) *APIError {
	return &APIError{
		Code:       ErrPolicy.Code,
		Message:    message,
		StatusCode: ErrPolicy.StatusCode,
		Details:    details,
	}
}

// IsAPIError checks if an error is, or wraps, an APIError.
func IsAPIError(err error) bool {
	var apiErr *APIError
	return stderrors.As(err, &apiErr)
}

// AsAPIError converts an error to an APIError if possible.
// Returns ErrInternal if the error is not an APIError.
func AsAPIError(err error) *APIError {
	var apiErr *APIError
	if stderrors.As(err, &apiErr) {
		return apiErr
	}
	return ErrInternal
}

// KindOf returns the outcome kind of err. A nil error has no kind.
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	return AsAPIError(err).Code
}

// Is reports whether err carries the same kind as target.
func Is(err error, target *APIError) bool {
	return err != nil && KindOf(err) == target.Code
}
