package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	apierrors "github.com/speaklexi/backend/internal/pkg/errors"
)

// Role is the closed set of account roles.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// Valid returns true if the role is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleTeacher, RoleAdmin:
		return true
	default:
		return false
	}
}

// CanAuthor reports whether the role may create and manage lessons.
func (r Role) CanAuthor() bool {
	switch r {
	case RoleTeacher, RoleAdmin:
		return true
	case RoleStudent:
		return false
	default:
		return false
	}
}

// String returns the string representation
func (r Role) String() string {
	return string(r)
}

// AccountStatus is the lifecycle state of an account.
type AccountStatus string

const (
	StatusActive      AccountStatus = "active"
	StatusDeactivated AccountStatus = "deactivated"
	// StatusDeleted is terminal. Purged accounts are removed from storage, so
	// this value only appears on rows that were flagged by older data.
	StatusDeleted AccountStatus = "deleted"
)

// DefaultGracePeriod is how long a deactivated account can be reactivated.
const DefaultGracePeriod = 30 * 24 * time.Hour

// Account is a user's authentication identity and lifecycle state.
type Account struct {
	ID        uuid.UUID `json:"id" db:"id"`
	PublicID  string    `json:"public_id" db:"public_id"`
	GivenName string    `json:"given_name" db:"given_name"`
	Surname1  string    `json:"surname1" db:"surname1"`
	Surname2  *string   `json:"surname2,omitempty" db:"surname2"`
	Email     string    `json:"email" db:"email"`
	Role      Role      `json:"role" db:"role"`

	PasswordHash string `json:"-" db:"password_hash"`

	EmailVerified         bool       `json:"email_verified" db:"email_verified"`
	VerificationCode      *string    `json:"-" db:"verification_code"`
	VerificationExpiresAt *time.Time `json:"-" db:"verification_expires_at"`

	RecoveryTokenHash *string    `json:"-" db:"recovery_token_hash"`
	RecoveryExpiresAt *time.Time `json:"-" db:"recovery_expires_at"`

	Status        AccountStatus `json:"status" db:"status"`
	DeactivatedAt *time.Time    `json:"deactivated_at,omitempty" db:"deactivated_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// NormalizeEmail trims and lower-cases an email so lookups are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// FullName joins the given name and surnames.
func (a *Account) FullName() string {
	parts := []string{a.GivenName, a.Surname1}
	if a.Surname2 != nil && *a.Surname2 != "" {
		parts = append(parts, *a.Surname2)
	}
	return strings.Join(parts, " ")
}

// IssueVerificationCode stores a new code and its expiry.
func (a *Account) IssueVerificationCode(code string, expiresAt time.Time) {
	a.VerificationCode = &code
	a.VerificationExpiresAt = &expiresAt
}

// ConfirmEmail checks code against the pending verification code. On success
// the email is marked verified and the code is cleared. An already verified
// account succeeds without changes.
func (a *Account) ConfirmEmail(code string, now time.Time) error {
	if a.EmailVerified {
		return nil
	}
	if a.VerificationCode == nil || a.VerificationExpiresAt == nil {
		return apierrors.ErrInvalidCode
	}
	if now.After(*a.VerificationExpiresAt) {
		return apierrors.ErrExpired.WithMessage("Verification code has expired")
	}
	if strings.TrimSpace(code) != *a.VerificationCode {
		return apierrors.ErrInvalidCode
	}
	a.EmailVerified = true
	a.VerificationCode = nil
	a.VerificationExpiresAt = nil
	return nil
}

// ResetVerification marks the email unverified, e.g. after it changes.
func (a *Account) ResetVerification() {
	a.EmailVerified = false
	a.VerificationCode = nil
	a.VerificationExpiresAt = nil
}

// IssueRecovery stores the hash of a recovery token and its expiry.
func (a *Account) IssueRecovery(tokenHash string, expiresAt time.Time) {
	a.RecoveryTokenHash = &tokenHash
	a.RecoveryExpiresAt = &expiresAt
}

// RecoveryUsable reports whether a recovery token is pending and unexpired.
func (a *Account) RecoveryUsable(now time.Time) bool {
	return a.RecoveryTokenHash != nil && a.RecoveryExpiresAt != nil && !now.After(*a.RecoveryExpiresAt)
}

// ClearRecovery consumes the pending recovery token.
func (a *Account) ClearRecovery() {
	a.RecoveryTokenHash = nil
	a.RecoveryExpiresAt = nil
}

// Deactivate soft-deletes the account. It returns false when the account
// was already deactivated.
func (a *Account) Deactivate(now time.Time) (bool, error) {
	switch a.Status {
	case StatusActive:
		a.Status = StatusDeactivated
		a.DeactivatedAt = &now
		return true, nil
	case StatusDeactivated:
		return false, nil
	default:
		return false, apierrors.ErrAccountDeleted
	}
}

// Reactivate returns a deactivated account to active while the grace window
// is still open.
func (a *Account) Reactivate(now time.Time, grace time.Duration) error {
	if a.Status != StatusDeactivated {
		return apierrors.NewPolicyError("Account is not deactivated", map[string]string{
			"status": string(a.Status),
		})
	}
	if a.elapsedDays(now) > graceDays(grace) {
		return apierrors.ErrExpired.WithMessage("The reactivation period has expired")
	}
	a.Status = StatusActive
	a.DeactivatedAt = nil
	return nil
}

// CheckPurge returns nil when the account may be removed permanently.
func (a *Account) CheckPurge(now time.Time, grace time.Duration) error {
	if a.Status != StatusDeactivated {
		return apierrors.NewPolicyError("Only deactivated accounts can be purged", map[string]string{
			"status": string(a.Status),
		})
	}
	remaining := graceDays(grace) - a.elapsedDays(now)
	if remaining > 0 {
		return apierrors.NewPolicyError(
			fmt.Sprintf("%d days remain before the account can be deleted", remaining),
			map[string]int{"days_remaining": remaining},
		)
	}
	return nil
}

// CheckLogin returns the error that blocks a login, if any.
func (a *Account) CheckLogin(now time.Time, grace time.Duration) error {
	switch a.Status {
	case StatusDeactivated:
		return apierrors.ErrAccountDeactivated.WithDetails(map[string]int{
			"days_remaining": a.GraceDaysRemaining(now, grace),
		})
	case StatusDeleted:
		return apierrors.ErrAccountDeleted
	case StatusActive:
		if !a.EmailVerified {
			return apierrors.ErrEmailNotVerified
		}
		return nil
	default:
		return apierrors.ErrInternal
	}
}

// GraceDaysRemaining is the number of whole days left to reactivate.
func (a *Account) GraceDaysRemaining(now time.Time, grace time.Duration) int {
	if a.Status != StatusDeactivated {
		return 0
	}
	return max(0, graceDays(grace)-a.elapsedDays(now))
}

// IsActive reports whether the account may use the platform.
func (a *Account) IsActive() bool {
	return a.Status == StatusActive
}

// elapsedDays counts whole days since deactivation.
func (a *Account) elapsedDays(now time.Time) int {
	if a.DeactivatedAt == nil {
		return 0
	}
	return int(now.Sub(*a.DeactivatedAt) / (24 * time.Hour))
}

func graceDays(grace time.Duration) int {
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	return int(grace / (24 * time.Hour))
}
