package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/speaklexi/backend/internal/config"
	"github.com/speaklexi/backend/internal/mailer"
	"github.com/speaklexi/backend/internal/models"
	apierrors "github.com/speaklexi/backend/internal/pkg/errors"
	"github.com/speaklexi/backend/internal/pkg/hasher"
	"github.com/speaklexi/backend/internal/pkg/token"
	"github.com/speaklexi/backend/internal/repository"
)

// ResetRequestedMessage is returned for every reset request, whether or not
// the email belongs to an account.
const ResetRequestedMessage = "If the email is registered you will receive instructions to reset your password"

// RecoveryService defines the password recovery flow.
type RecoveryService interface {
	RequestPasswordReset(ctx context.Context, email string) (*ResetRequested, error)
	ValidateResetToken(ctx context.Context, resetToken string) (*TokenStatus, error)
	ResetPassword(ctx context.Context, resetToken, newPassword string) error
}

// ResetRequested is the uniform answer to a reset request.
type ResetRequested struct {
	Message string `json:"message"`
}

// TokenStatus is returned for a usable recovery token.
type TokenStatus struct {
	Valid bool   `json:"valid"`
	Email string `json:"email"`
}

type recoveryService struct {
	store  repository.Store
	hasher hasher.Hasher
	mail   mailer.Mailer
	cfg    config.AccountsConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewRecoveryService creates a new password recovery service.
func NewRecoveryService(
	store repository.Store,
	h hasher.Hasher,
	mail mailer.Mailer,
	cfg config.AccountsConfig,
	logger *slog.Logger,
	opts ...Option,
) RecoveryService {
	o := buildOptions(opts)
	return &recoveryService{
		store:  store,
		hasher: h,
		mail:   mail,
		cfg:    cfg,
		logger: logger.With("service", "recovery"),
		now:    o.now,
	}
}

// RequestPasswordReset stores a fresh recovery token for the account and
// mails it. Only the token's hash is persisted.
func (s *recoveryService) RequestPasswordReset(ctx context.Context, email string) (*ResetRequested, error) {
	var (
		account    *models.Account
		plainToken string
	)
	err := s.store.WithTx(ctx, func(r *repository.Repos) error {
		var err error
		account, err = r.Accounts.GetByEmailForUpdate(ctx, email)
		if err != nil || account == nil {
			return err
		}
		if plainToken, err = token.RecoveryToken(); err != nil {
			return err
		}
		account.IssueRecovery(token.HashToken(plainToken), s.now().UTC().Add(s.cfg.RecoveryTTL))
		return r.Accounts.Update(ctx, account)
	})
	if err != nil {
		return nil, internal(s.logger, "request_password_reset", err)
	}

	if account != nil {
		if err := s.mail.SendRecovery(ctx, account.Email, plainToken); err != nil {
			s.logger.Warn("recovery mail not sent", "account_id", account.ID, "error", err)
		}
	}
	return &ResetRequested{Message: ResetRequestedMessage}, nil
}

// ValidateResetToken reports whether a recovery token can still be used.
func (s *recoveryService) ValidateResetToken(ctx context.Context, resetToken string) (*TokenStatus, error) {
	account, err := s.lookup(ctx, s.store.Repos(), resetToken)
	if err != nil {
		return nil, internal(s.logger, "validate_reset_token", err)
	}
	return &TokenStatus{Valid: true, Email: account.Email}, nil
}

// ResetPassword replaces the password of the token's account and consumes
// the token.
func (s *recoveryService) ResetPassword(ctx context.Context, resetToken, newPassword string) error {
	var accountID string
	err := s.store.WithTx(ctx, func(r *repository.Repos) error {
		account, err := s.lookup(ctx, r, resetToken)
		if err != nil {
			return err
		}
		if err := checkPassword("new_password", newPassword, s.cfg.MinPasswordLength); err != nil {
			return err
		}
		digest, err := s.hasher.Hash(newPassword)
		if err != nil {
			return err
		}
		account.PasswordHash = digest
		account.ClearRecovery()
		accountID = account.ID.String()
		return r.Accounts.Update(ctx, account)
	})
	if err != nil {
		return internal(s.logger, "reset_password", err)
	}
	s.logger.Info("password reset", "account_id", accountID)
	return nil
}

// lookup finds the account holding a usable token. Unknown and expired
// tokens are reported the same way.
func (s *recoveryService) lookup(ctx context.Context, r *repository.Repos, resetToken string) (*models.Account, error) {
	resetToken = strings.TrimSpace(resetToken)
	if resetToken == "" {
		return nil, apierrors.ErrInvalidOrExpired
	}
	account, err := r.Accounts.GetByRecoveryHash(ctx, token.HashToken(resetToken))
	if err != nil {
		return nil, err
	}
	if account == nil || !account.RecoveryUsable(s.now()) {
		return nil, apierrors.ErrInvalidOrExpired
	}
	return account, nil
}
