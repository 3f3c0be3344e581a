package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/speaklexi/backend/internal/config"
	"github.com/speaklexi/backend/internal/mailer"
	"github.com/speaklexi/backend/internal/models"
	apierrors "github.com/speaklexi/backend/internal/pkg/errors"
	"github.com/speaklexi/backend/internal/pkg/hasher"
	"github.com/speaklexi/backend/internal/pkg/token"
	"github.com/speaklexi/backend/internal/repository"
)

// TokenIssuer signs access tokens for authenticated accounts.
type TokenIssuer interface {
	Issue(account *models.Account) (string, time.Time, error)
}

// AccountService defines registration, login and account lifecycle
// operations.
type AccountService interface {
	Register(ctx context.Context, req RegisterRequest) (*RegisterResult, error)
	VerifyEmail(ctx context.Context, email, code string) (*models.Account, error)
	ResendCode(ctx context.Context, email string) (*ResendResult, error)
	Authenticate(ctx context.Context, email, password string) (*AuthResult, error)

	Get(ctx context.Context, accountID uuid.UUID) (*models.Account, error)
	UpdateAccount(ctx context.Context, accountID uuid.UUID, req UpdateAccountRequest) (*models.Account, error)

	Deactivate(ctx context.Context, accountID uuid.UUID, password string) (*LifecycleResult, error)
	Reactivate(ctx context.Context, email, password string) (*LifecycleResult, error)
	Purge(ctx context.Context, accountID uuid.UUID) error
	PurgeExpired(ctx context.Context) (int, error)
}

// RegisterRequest is the request for creating an account.
type RegisterRequest struct {
	GivenName string `json:"given_name" validate:"required,max=100"`
	Surname1  string `json:"surname1" validate:"required,max=100"`
	Surname2  string `json:"surname2,omitempty" validate:"max=100"`
	Email     string `json:"email" validate:"required,email,max=255"`
	Password  string `json:"password" validate:"required"`
	Language  string `json:"language" validate:"required,max=50"`
	Level     string `json:"level,omitempty" validate:"omitempty,oneof=A1 A2 B1 B2 C1 C2 a1 a2 b1 b2 c1 c2"`

	// Role defaults to student. Only operator tooling sets other roles.
	Role models.Role `json:"-"`
	// PreVerified skips email verification for operator-created accounts.
	PreVerified bool `json:"-"`
}

// RegisterResult is returned by Register.
type RegisterResult struct {
	Account          *models.Account `json:"account"`
	Profile          *models.Profile `json:"profile"`
	VerificationSent bool            `json:"verification_sent"`
}

// ResendResult is returned by ResendCode.
type ResendResult struct {
	AlreadyVerified bool `json:"already_verified"`
	Sent            bool `json:"sent"`
}

// AuthResult is returned by a successful login.
type AuthResult struct {
	Account     *models.Account `json:"account"`
	Profile     *models.Profile `json:"profile"`
	AccessToken string          `json:"access_token"`
	ExpiresAt   time.Time       `json:"expires_at"`
}

// LifecycleResult describes an account after a deactivation change.
type LifecycleResult struct {
	Account       *models.Account `json:"account"`
	DaysRemaining int             `json:"days_remaining"`
}

// UpdateAccountRequest changes identity fields. Nil fields are left as-is.
type UpdateAccountRequest struct {
	GivenName *string `json:"given_name,omitempty" validate:"omitempty,min=1,max=100"`
	Surname1  *string `json:"surname1,omitempty" validate:"omitempty,min=1,max=100"`
	Surname2  *string `json:"surname2,omitempty" validate:"omitempty,max=100"`
	Email     *string `json:"email,omitempty" validate:"omitempty,email,max=255"`
}

type accountService struct {
	store  repository.Store
	hasher hasher.Hasher
	mail   mailer.Mailer
	tokens TokenIssuer
	cfg    config.AccountsConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewAccountService creates a new account service.
func NewAccountService(
	store repository.Store,
	h hasher.Hasher,
	mail mailer.Mailer,
	tokens TokenIssuer,
	cfg config.AccountsConfig,
	logger *slog.Logger,
	opts ...Option,
) AccountService {
	o := buildOptions(opts)
	return &accountService{
		store:  store,
		hasher: h,
		mail:   mail,
		tokens: tokens,
		cfg:    cfg,
		logger: logger.With("service", "account"),
		now:    o.now,
	}
}

// Register creates an account and its profile in one transaction, then mails
// the verification code. A mail failure is logged and does not undo the
// registration.
func (s *accountService) Register(ctx context.Context, req RegisterRequest) (*RegisterResult, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if err := checkPassword("password", req.Password, s.cfg.MinPasswordLength); err != nil {
		return nil, err
	}
	if req.Role == "" {
		req.Role = models.RoleStudent
	}
	if !req.Role.Valid() {
		return nil, apierrors.NewValidationError("role", "unknown role")
	}
	if req.Level == "" {
		req.Level = models.DefaultLevel
	}

	digest, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, internal(s.logger, "register.hash", err)
	}

	now := s.now().UTC()
	email := models.NormalizeEmail(req.Email)
	account := &models.Account{
		ID:           uuid.New(),
		GivenName:    strings.TrimSpace(req.GivenName),
		Surname1:     strings.TrimSpace(req.Surname1),
		Email:        email,
		Role:         req.Role,
		PasswordHash: digest,
		Status:       models.StatusActive,
	}
	if s2 := strings.TrimSpace(req.Surname2); s2 != "" {
		account.Surname2 = &s2
	}

	var code string
	if req.PreVerified {
		account.EmailVerified = true
	} else {
		if code, err = token.NumericCode(); err != nil {
			return nil, internal(s.logger, "register.code", err)
		}
		account.IssueVerificationCode(code, now.Add(s.cfg.VerificationTTL))
	}

	var profile *models.Profile
	err = s.store.WithTx(ctx, func(r *repository.Repos) error {
		existing, err := r.Accounts.GetByEmail(ctx, email)
		if err != nil {
			return err
		}
		if existing != nil {
			return apierrors.ErrAlreadyExists
		}

		account.PublicID, err = token.PublicID(ctx, token.PublicIDParts{
			GivenName: account.GivenName,
			Surname1:  account.Surname1,
			Surname2:  req.Surname2,
			Language:  req.Language,
			Level:     req.Level,
		}, now, r.Accounts.PublicIDExists)
		if err != nil {
			return err
		}

		if err := r.Accounts.Create(ctx, account); err != nil {
			return err
		}
		profile = models.NewProfile(account, strings.TrimSpace(req.Language), req.Level)
		return r.Profiles.Create(ctx, profile)
	})
	if err != nil {
		return nil, internal(s.logger, "register", err, "email", email)
	}

	s.logger.Info("account registered", "account_id", account.ID, "public_id", account.PublicID, "role", account.Role)

	result := &RegisterResult{Account: account, Profile: profile}
	if code != "" {
		result.VerificationSent = s.sendVerification(ctx, account, code)
	}
	return result, nil
}

func (s *accountService) sendVerification(ctx context.Context, account *models.Account, code string) bool {
	if err := s.mail.SendVerification(ctx, account.Email, code); err != nil {
		s.logger.Warn("verification mail not sent", "account_id", account.ID, "error", err)
		return false
	}
	return true
}

// VerifyEmail confirms an account's email with the code sent to it.
func (s *accountService) VerifyEmail(ctx context.Context, email, code string) (*models.Account, error) {
	var account *models.Account
	err := s.store.WithTx(ctx, func(r *repository.Repos) error {
		var err error
		account, err = r.Accounts.GetByEmailForUpdate(ctx, email)
		if err != nil {
			return err
		}
		if account == nil {
			return apierrors.NewNotFoundError("Account")
		}
		if account.EmailVerified {
			return nil
		}
		if err := account.ConfirmEmail(code, s.now()); err != nil {
			return err
		}
		return r.Accounts.Update(ctx, account)
	})
	if err != nil {
		return nil, internal(s.logger, "verify_email", err)
	}
	return account, nil
}

// ResendCode issues a fresh verification code. Verified accounts get an
// idempotent success without a new code.
func (s *accountService) ResendCode(ctx context.Context, email string) (*ResendResult, error) {
	var (
		account *models.Account
		code    string
	)
	err := s.store.WithTx(ctx, func(r *repository.Repos) error {
		var err error
		account, err = r.Accounts.GetByEmailForUpdate(ctx, email)
		if err != nil {
			return err
		}
		if account == nil {
			return apierrors.NewNotFoundError("Account")
		}
		if account.EmailVerified {
			return nil
		}
		if code, err = token.NumericCode(); err != nil {
			return err
		}
		account.IssueVerificationCode(code, s.now().UTC().Add(s.cfg.VerificationTTL))
		return r.Accounts.Update(ctx, account)
	})
	if err != nil {
		return nil, internal(s.logger, "resend_code", err)
	}
	if code == "" {
		return &ResendResult{AlreadyVerified: true}, nil
	}
	return &ResendResult{Sent: s.sendVerification(ctx, account, code)}, nil
}

// Authenticate checks credentials and account state and issues an access
// token. Unknown emails and wrong passwords are indistinguishable.
func (s *accountService) Authenticate(ctx context.Context, email, password string) (*AuthResult, error) {
	repos := s.store.Repos()

	account, err := repos.Accounts.GetByEmail(ctx, email)
	if err != nil {
		return nil, internal(s.logger, "authenticate", err)
	}
	if account == nil || !s.hasher.Verify(password, account.PasswordHash) {
		return nil, apierrors.ErrInvalidCredentials
	}
	if err := account.CheckLogin(s.now(), s.cfg.GracePeriod); err != nil {
		return nil, err
	}

	profile, err := repos.Profiles.GetByAccountID(ctx, account.ID)
	if err != nil {
		return nil, internal(s.logger, "authenticate.profile", err, "account_id", account.ID)
	}

	accessToken, expiresAt, err := s.tokens.Issue(account)
	if err != nil {
		return nil, internal(s.logger, "authenticate.token", err, "account_id", account.ID)
	}

	return &AuthResult{
		Account:     account,
		Profile:     profile,
		AccessToken: accessToken,
		ExpiresAt:   expiresAt,
	}, nil
}

// Get returns an account by id.
func (s *accountService) Get(ctx context.Context, accountID uuid.UUID) (*models.Account, error) {
	account, err := s.store.Repos().Accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, internal(s.logger, "get_account", err)
	}
	if account == nil {
		return nil, apierrors.NewNotFoundError("Account")
	}
	return account, nil
}

// UpdateAccount changes names and email. A new email must be verified
// again, so a fresh code is mailed to it.
func (s *accountService) UpdateAccount(ctx context.Context, accountID uuid.UUID, req UpdateAccountRequest) (*models.Account, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	var (
		account *models.Account
		code    string
	)
	err := s.store.WithTx(ctx, func(r *repository.Repos) error {
		var err error
		account, err = r.Accounts.GetByIDForUpdate(ctx, accountID)
		if err != nil {
			return err
		}
		if err := requireActive(account); err != nil {
			return err
		}

		if req.GivenName != nil {
			account.GivenName = strings.TrimSpace(*req.GivenName)
		}
		if req.Surname1 != nil {
			account.Surname1 = strings.TrimSpace(*req.Surname1)
		}
		if req.Surname2 != nil {
			if s2 := strings.TrimSpace(*req.Surname2); s2 != "" {
				account.Surname2 = &s2
			} else {
				account.Surname2 = nil
			}
		}
		if req.Email != nil {
			email := models.NormalizeEmail(*req.Email)
			if email != account.Email {
				other, err := r.Accounts.GetByEmail(ctx, email)
				if err != nil {
					return err
				}
				if other != nil {
					return apierrors.ErrAlreadyExists
				}
				if code, err = token.NumericCode(); err != nil {
					return err
				}
				account.Email = email
				account.ResetVerification()
				account.IssueVerificationCode(code, s.now().UTC().Add(s.cfg.VerificationTTL))
			}
		}
		if err := r.Accounts.Update(ctx, account); err != nil {
			return err
		}

		profile, err := r.Profiles.GetByAccountIDForUpdate(ctx, accountID)
		if err != nil {
			return err
		}
		if profile != nil && profile.DisplayName != account.FullName() {
			profile.DisplayName = account.FullName()
			return r.Profiles.Update(ctx, profile)
		}
		return nil
	})
	if err != nil {
		return nil, internal(s.logger, "update_account", err, "account_id", accountID)
	}

	if code != "" {
		s.sendVerification(ctx, account, code)
	}
	return account, nil
}

// Deactivate soft-deletes an account after checking its password. Repeating
// it on a deactivated account succeeds without changes.
func (s *accountService) Deactivate(ctx context.Context, accountID uuid.UUID, password string) (*LifecycleResult, error) {
	now := s.now().UTC()
	var account *models.Account
	err := s.store.WithTx(ctx, func(r *repository.Repos) error {
		var err error
		account, err = r.Accounts.GetByIDForUpdate(ctx, accountID)
		if err != nil {
			return err
		}
		if account == nil {
			return apierrors.NewNotFoundError("Account")
		}
		if !s.hasher.Verify(password, account.PasswordHash) {
			return apierrors.ErrInvalidCredentials.WithMessage("Incorrect password")
		}
		changed, err := account.Deactivate(now)
		if err != nil || !changed {
			return err
		}
		return r.Accounts.Update(ctx, account)
	})
	if err != nil {
		return nil, internal(s.logger, "deactivate", err, "account_id", accountID)
	}

	s.logger.Info("account deactivated", "account_id", account.ID)
	return &LifecycleResult{
		Account:       account,
		DaysRemaining: account.GraceDaysRemaining(now, s.cfg.GracePeriod),
	}, nil
}

// Reactivate restores a deactivated account within its grace window.
func (s *accountService) Reactivate(ctx context.Context, email, password string) (*LifecycleResult, error) {
	now := s.now().UTC()
	var account *models.Account
	err := s.store.WithTx(ctx, func(r *repository.Repos) error {
		var err error
		account, err = r.Accounts.GetByEmailForUpdate(ctx, email)
		if err != nil {
			return err
		}
		if account == nil || !s.hasher.Verify(password, account.PasswordHash) {
			return apierrors.ErrInvalidCredentials
		}
		if err := account.Reactivate(now, s.cfg.GracePeriod); err != nil {
			return err
		}
		return r.Accounts.Update(ctx, account)
	})
	if err != nil {
		return nil, internal(s.logger, "reactivate", err)
	}

	s.logger.Info("account reactivated", "account_id", account.ID)
	return &LifecycleResult{Account: account}, nil
}

// Purge permanently removes a deactivated account whose grace window has
// elapsed. Progress and profile rows are removed before the account.
func (s *accountService) Purge(ctx context.Context, accountID uuid.UUID) error {
	err := s.store.WithTx(ctx, func(r *repository.Repos) error {
		account, err := r.Accounts.GetByIDForUpdate(ctx, accountID)
		if err != nil {
			return err
		}
		if account == nil {
			return apierrors.NewNotFoundError("Account")
		}
		if err := account.CheckPurge(s.now(), s.cfg.GracePeriod); err != nil {
			return err
		}
		if err := r.Progress.DeleteByAccount(ctx, accountID); err != nil {
			return err
		}
		if err := r.Profiles.Delete(ctx, accountID); err != nil {
			return err
		}
		return r.Accounts.Delete(ctx, accountID)
	})
	if err != nil {
		return internal(s.logger, "purge", err, "account_id", accountID)
	}
	s.logger.Info("account purged", "account_id", accountID)
	return nil
}

// PurgeExpired purges every account whose grace window has elapsed, each in
// its own transaction. It returns how many were removed.
func (s *accountService) PurgeExpired(ctx context.Context) (int, error) {
	cutoff := s.now().UTC().Add(-s.cfg.GracePeriod)
	candidates, err := s.store.Repos().Accounts.ListPurgeable(ctx, cutoff)
	if err != nil {
		return 0, internal(s.logger, "purge_expired.list", err)
	}

	purged := 0
	var failed int
	for _, a := range candidates {
		if err := ctx.Err(); err != nil {
			return purged, err
		}
		if err := s.Purge(ctx, a.ID); err != nil {
			if apierrors.Is(err, apierrors.ErrPolicy) || apierrors.Is(err, apierrors.ErrNotFound) {
				continue
			}
			failed++
			continue
		}
		purged++
	}
	if failed > 0 {
		return purged, apierrors.ErrInternal.WithMessage(fmt.Sprintf("%d accounts could not be purged", failed))
	}
	return purged, nil
}
