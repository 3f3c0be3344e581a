package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/speaklexi/backend/internal/models"
	apierrors "github.com/speaklexi/backend/internal/pkg/errors"
)

// AccountRepository defines the interface for account data operations.
type AccountRepository interface {
	Create(ctx context.Context, account *models.Account) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	GetByEmailForUpdate(ctx context.Context, email string) (*models.Account, error)
	GetByRecoveryHash(ctx context.Context, tokenHash string) (*models.Account, error)
	PublicIDExists(ctx context.Context, publicID string) (bool, error)
	ListPurgeable(ctx context.Context, deactivatedBefore time.Time) ([]*models.Account, error)
	Update(ctx context.Context, account *models.Account) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type accountRepo struct {
	q Querier
}

// NewAccountRepository creates a new account repository.
func NewAccountRepository(q Querier) AccountRepository {
	return &accountRepo{q: q}
}

const accountColumns = `id, public_id, given_name, surname1, surname2, email, role, password_hash,
	email_verified, verification_code, verification_expires_at,
	recovery_token_hash, recovery_expires_at, status, deactivated_at, created_at, updated_at`

// Create inserts a new account. A taken email or public id is reported as
// ErrAlreadyExists.
func (r *accountRepo) Create(ctx context.Context, a *models.Account) error {
	query := `
		INSERT INTO accounts (id, public_id, given_name, surname1, surname2, email, role, password_hash,
			email_verified, verification_code, verification_expires_at, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at`

	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Status == "" {
		a.Status = models.StatusActive
	}

	err := r.q.QueryRow(ctx, query,
		a.ID,
		a.PublicID,
		a.GivenName,
		a.Surname1,
		a.Surname2,
		a.Email,
		a.Role,
		a.PasswordHash,
		a.EmailVerified,
		a.VerificationCode,
		a.VerificationExpiresAt,
		a.Status,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if IsUniqueViolation(err) {
		return apierrors.ErrAlreadyExists.WithMessage("An account with this email already exists")
	}
	return err
}

// GetByID retrieves an account by its UUID.
func (r *accountRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return r.getOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
}

// GetByIDForUpdate retrieves an account and locks its row for the rest of
// the transaction.
func (r *accountRepo) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return r.getOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id)
}

// GetByEmail retrieves an account by its normalized email.
func (r *accountRepo) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	return r.getOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, models.NormalizeEmail(email))
}

// GetByEmailForUpdate is GetByEmail with a row lock.
func (r *accountRepo) GetByEmailForUpdate(ctx context.Context, email string) (*models.Account, error) {
	return r.getOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1 FOR UPDATE`, models.NormalizeEmail(email))
}

// GetByRecoveryHash retrieves the account holding a recovery token hash.
func (r *accountRepo) GetByRecoveryHash(ctx context.Context, tokenHash string) (*models.Account, error) {
	return r.getOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE recovery_token_hash = $1 FOR UPDATE`, tokenHash)
}

// PublicIDExists reports whether a public id is already assigned.
func (r *accountRepo) PublicIDExists(ctx context.Context, publicID string) (bool, error) {
	var exists bool
	err := r.q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM accounts WHERE public_id = $1)`, publicID).Scan(&exists)
	return exists, err
}

// ListPurgeable lists deactivated accounts whose deactivation predates the
// given instant, oldest first.
func (r *accountRepo) ListPurgeable(ctx context.Context, deactivatedBefore time.Time) ([]*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts
		WHERE status = 'deactivated' AND deactivated_at <= $1
		ORDER BY deactivated_at`

	rows, err := r.q.Query(ctx, query, deactivatedBefore)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// Update writes every mutable account column.
func (r *accountRepo) Update(ctx context.Context, a *models.Account) error {
	query := `
		UPDATE accounts SET
			given_name = $2, surname1 = $3, surname2 = $4, email = $5, password_hash = $6,
			email_verified = $7, verification_code = $8, verification_expires_at = $9,
			recovery_token_hash = $10, recovery_expires_at = $11,
			status = $12, deactivated_at = $13, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`

	err := r.q.QueryRow(ctx, query,
		a.ID,
		a.GivenName,
		a.Surname1,
		a.Surname2,
		a.Email,
		a.PasswordHash,
		a.EmailVerified,
		a.VerificationCode,
		a.VerificationExpiresAt,
		a.RecoveryTokenHash,
		a.RecoveryExpiresAt,
		a.Status,
		a.DeactivatedAt,
	).Scan(&a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return apierrors.NewNotFoundError("Account")
	}
	if IsUniqueViolation(err) {
		return apierrors.ErrAlreadyExists.WithMessage("An account with this email already exists")
	}
	return err
}

// Delete permanently removes an account.
func (r *accountRepo) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.q.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	return err
}

func (r *accountRepo) getOne(ctx context.Context, query string, arg any) (*models.Account, error) {
	a, err := scanAccount(r.q.QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func scanAccount(row pgx.Row) (*models.Account, error) {
	var a models.Account
	err := row.Scan(
		&a.ID,
		&a.PublicID,
		&a.GivenName,
		&a.Surname1,
		&a.Surname2,
		&a.Email,
		&a.Role,
		&a.PasswordHash,
		&a.EmailVerified,
		&a.VerificationCode,
		&a.VerificationExpiresAt,
		&a.RecoveryTokenHash,
		&a.RecoveryExpiresAt,
		&a.Status,
		&a.DeactivatedAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

var _ AccountRepository = (*accountRepo)(nil)
