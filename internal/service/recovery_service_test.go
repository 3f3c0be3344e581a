package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speaklexi/backend/internal/models"
	apierrors "github.com/speaklexi/backend/internal/pkg/errors"
	"github.com/speaklexi/backend/internal/pkg/token"
)

func TestRecoveryService_RequestPasswordReset(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	account := env.registerVerified("ana@example.com", models.RoleStudent)

	known, err := env.recovery.RequestPasswordReset(ctx, "ana@example.com")
	require.NoError(t, err)
	unknown, err := env.recovery.RequestPasswordReset(ctx, "nobody@example.com")
	require.NoError(t, err)

	assert.Equal(t, known, unknown)
	assert.Equal(t, ResetRequestedMessage, known.Message)

	plain := env.mail.recoveries["ana@example.com"]
	require.NotEmpty(t, plain)
	assert.NotContains(t, env.mail.recoveries, "nobody@example.com")

	stored := env.store.account(account.ID)
	require.NotNil(t, stored.RecoveryTokenHash)
	assert.Equal(t, token.HashToken(plain), *stored.RecoveryTokenHash)
	assert.NotEqual(t, plain, *stored.RecoveryTokenHash)
}

func TestRecoveryService_ValidateResetToken(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.registerVerified("ana@example.com", models.RoleStudent)
	_, err := env.recovery.RequestPasswordReset(ctx, "ana@example.com")
	require.NoError(t, err)
	plain := env.mail.recoveries["ana@example.com"]

	status, err := env.recovery.ValidateResetToken(ctx, plain)
	require.NoError(t, err)
	assert.True(t, status.Valid)
	assert.Equal(t, "ana@example.com", status.Email)

	_, err = env.recovery.ValidateResetToken(ctx, "not-a-token")
	assert.True(t, apierrors.Is(err, apierrors.ErrInvalidOrExpired))

	_, err = env.recovery.ValidateResetToken(ctx, "")
	assert.True(t, apierrors.Is(err, apierrors.ErrInvalidOrExpired))

	env.clock.Advance(61 * time.Minute)
	_, err = env.recovery.ValidateResetToken(ctx, plain)
	assert.True(t, apierrors.Is(err, apierrors.ErrInvalidOrExpired))
}

func TestRecoveryService_ResetPassword(t *testing.T) {
	t.Run("token is single use", func(t *testing.T) {
		env := newTestEnv()
		ctx := context.Background()
		env.registerVerified("ana@example.com", models.RoleStudent)
		_, err := env.recovery.RequestPasswordReset(ctx, "ana@example.com")
		require.NoError(t, err)
		plain := env.mail.recoveries["ana@example.com"]

		require.NoError(t, env.recovery.ResetPassword(ctx, plain, "new-secret-pass"))

		err = env.recovery.ResetPassword(ctx, plain, "another-pass")
		assert.True(t, apierrors.Is(err, apierrors.ErrInvalidOrExpired))

		_, err = env.accounts.Authenticate(ctx, "ana@example.com", "secret-pass")
		assert.True(t, apierrors.Is(err, apierrors.ErrInvalidCredentials))
		_, err = env.accounts.Authenticate(ctx, "ana@example.com", "new-secret-pass")
		assert.NoError(t, err)
	})

	t.Run("short password keeps the token", func(t *testing.T) {
		env := newTestEnv()
		ctx := context.Background()
		env.registerVerified("ana@example.com", models.RoleStudent)
		_, err := env.recovery.RequestPasswordReset(ctx, "ana@example.com")
		require.NoError(t, err)
		plain := env.mail.recoveries["ana@example.com"]

		err = env.recovery.ResetPassword(ctx, plain, "short")
		assert.Equal(t, "validation_error", apierrors.KindOf(err))

		_, err = env.recovery.ValidateResetToken(ctx, plain)
		assert.NoError(t, err)
	})

	t.Run("overlong password keeps the token", func(t *testing.T) {
		env := newTestEnv()
		ctx := context.Background()
		env.registerVerified("ana@example.com", models.RoleStudent)
		_, err := env.recovery.RequestPasswordReset(ctx, "ana@example.com")
		require.NoError(t, err)
		plain := env.mail.recoveries["ana@example.com"]

		// 37 runes, 74 bytes.
		err = env.recovery.ResetPassword(ctx, plain, strings.Repeat("ñ", 37))
		assert.Equal(t, "validation_error", apierrors.KindOf(err))

		_, err = env.recovery.ValidateResetToken(ctx, plain)
		assert.NoError(t, err)
	})

	t.Run("expired token", func(t *testing.T) {
		env := newTestEnv()
		ctx := context.Background()
		env.registerVerified("ana@example.com", models.RoleStudent)
		_, err := env.recovery.RequestPasswordReset(ctx, "ana@example.com")
		require.NoError(t, err)

		env.clock.Advance(2 * time.Hour)
		err = env.recovery.ResetPassword(ctx, env.mail.recoveries["ana@example.com"], "new-secret-pass")
		assert.True(t, apierrors.Is(err, apierrors.ErrInvalidOrExpired))
	})

	t.Run("new request replaces the old token", func(t *testing.T) {
		env := newTestEnv()
		ctx := context.Background()
		env.registerVerified("ana@example.com", models.RoleStudent)
		_, err := env.recovery.RequestPasswordReset(ctx, "ana@example.com")
		require.NoError(t, err)
		first := env.mail.recoveries["ana@example.com"]
		_, err = env.recovery.RequestPasswordReset(ctx, "ana@example.com")
		require.NoError(t, err)

		_, err = env.recovery.ValidateResetToken(ctx, first)
		assert.True(t, apierrors.Is(err, apierrors.ErrInvalidOrExpired))
	})
}
