// Package service provides business logic implementations.
package service

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/speaklexi/backend/internal/models"
	apierrors "github.com/speaklexi/backend/internal/pkg/errors"
	"github.com/speaklexi/backend/internal/pkg/hasher"
)

// Actor is the authenticated caller of an operation.
type Actor struct {
	AccountID uuid.UUID
	Role      models.Role
}

// Option configures a service.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock replaces the time source used for expiries and grace windows.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their JSON names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateRequest runs struct validation and converts failures to a
// validation APIError keyed by field.
func validateRequest(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apierrors.ErrBadRequest
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = describe(fe)
	}
	return apierrors.NewValidationErrors(fields)
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	case "gte":
		return "must be greater than or equal to " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "lte":
		return "must be less than or equal to " + fe.Param()
	default:
		return "is invalid"
	}
}

// internal passes business errors through and converts anything else into
// ErrInternal after logging it.
func internal(logger *slog.Logger, op string, err error, attrs ...any) error {
	if err == nil {
		return nil
	}
	if apierrors.IsAPIError(err) {
		return err
	}
	logger.Error("operation failed", append([]any{"op", op, "error", err}, attrs...)...)
	return apierrors.ErrInternal
}

// checkPassword enforces the password length policy. The upper bound is in
// bytes because that is what bcrypt limits.
func checkPassword(field, password string, minLength int) error {
	if len([]rune(password)) < minLength {
		return apierrors.NewValidationError(field, fmt.Sprintf("must be at least %d characters", minLength))
	}
	if len(password) > hasher.MaxPasswordBytes {
		return apierrors.NewValidationError(field, fmt.Sprintf("must be at most %d bytes", hasher.MaxPasswordBytes))
	}
	return nil
}

// requireActive returns the error that keeps an account from changing its
// learning state.
func requireActive(account *models.Account) error {
	if account == nil {
		return apierrors.NewNotFoundError("Account")
	}
	switch account.Status {
	case models.StatusActive:
		return nil
	case models.StatusDeleted:
		return apierrors.ErrAccountDeleted
	default:
		return apierrors.ErrAccountDeactivated
	}
}
