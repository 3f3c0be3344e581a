package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAsAPIError_Unwraps(t *testing.T) {
	wrapped := fmt.Errorf("reactivate: %w", ErrExpired)

	apiErr := AsAPIError(wrapped)
	assert.Equal(t, "expired", apiErr.Code)
	assert.True(t, IsAPIError(wrapped))
}

func TestAsAPIError_PlainErrorIsInternal(t *testing.T) {
	apiErr := AsAPIError(fmt.Errorf("connection refused"))
	assert.Equal(t, ErrInternal, apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, "", KindOf(nil))
	assert.Equal(t, "invalid_code", KindOf(ErrInvalidCode))
	assert.Equal(t, "validation_error", KindOf(NewValidationError("amount", "must be positive")))
	assert.Equal(t, "policy_violation", KindOf(NewPolicyError("wait", map[string]int{"days_remaining": 3})))
}

func TestIs(t *testing.T) {
	detailed := ErrAccountDeactivated.WithDetails(map[string]int{"days_remaining": 12})

	assert.True(t, Is(detailed, ErrAccountDeactivated))
	assert.False(t, Is(detailed, ErrAccountDeleted))
	assert.False(t, Is(nil, ErrAccountDeactivated))
}

func TestWithDetails_DoesNotMutateSentinel(t *testing.T) {
	_ = ErrPolicy.WithDetails("x").WithMessage("changed")

	assert.Nil(t, ErrPolicy.Details)
	assert.Equal(t, "Operation not allowed", ErrPolicy.Message)
}
