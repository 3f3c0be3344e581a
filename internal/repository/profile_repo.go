package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/speaklexi/backend/internal/models"
	apierrors "github.com/speaklexi/backend/internal/pkg/errors"
)

// ProfileRepository defines the interface for profile data operations.
type ProfileRepository interface {
	Create(ctx context.Context, profile *models.Profile) error
	GetByAccountID(ctx context.Context, accountID uuid.UUID) (*models.Profile, error)
	GetByAccountIDForUpdate(ctx context.Context, accountID uuid.UUID) (*models.Profile, error)
	Update(ctx context.Context, profile *models.Profile) error
	Delete(ctx context.Context, accountID uuid.UUID) error
}

type profileRepo struct {
	q Querier
}

// NewProfileRepository creates a new profile repository.
func NewProfileRepository(q Querier) ProfileRepository {
	return &profileRepo{q: q}
}

// The role column selects the concrete role_details variant.
const profileSelect = `
	SELECT p.account_id, p.display_name, p.language, p.level, p.current_course,
	       p.total_xp, p.user_level, p.streak_days, p.longest_streak, p.last_activity_date,
	       p.role_details, a.role, p.created_at, p.updated_at
	FROM profiles p
	JOIN accounts a ON a.id = p.account_id
	WHERE p.account_id = $1`

// Create inserts a profile.
func (r *profileRepo) Create(ctx context.Context, p *models.Profile) error {
	details, err := models.EncodeRoleDetails(p.Details)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO profiles (account_id, display_name, language, level, current_course,
			total_xp, user_level, streak_days, longest_streak, last_activity_date, role_details)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`

	err = r.q.QueryRow(ctx, query,
		p.AccountID,
		p.DisplayName,
		p.Language,
		p.Level,
		p.CurrentCourse,
		p.TotalXP,
		p.UserLevel,
		p.StreakDays,
		p.LongestStreak,
		p.LastActivityDate,
		details,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if IsUniqueViolation(err) {
		return apierrors.ErrAlreadyExists.WithMessage("Profile already exists")
	}
	return err
}

// GetByAccountID retrieves the profile of an account.
func (r *profileRepo) GetByAccountID(ctx context.Context, accountID uuid.UUID) (*models.Profile, error) {
	return r.getOne(ctx, profileSelect, accountID)
}

// GetByAccountIDForUpdate retrieves the profile and locks its row.
func (r *profileRepo) GetByAccountIDForUpdate(ctx context.Context, accountID uuid.UUID) (*models.Profile, error) {
	return r.getOne(ctx, profileSelect+` FOR UPDATE OF p`, accountID)
}

// Update writes every mutable profile column.
func (r *profileRepo) Update(ctx context.Context, p *models.Profile) error {
	details, err := models.EncodeRoleDetails(p.Details)
	if err != nil {
		return err
	}

	query := `
		UPDATE profiles SET
			display_name = $2, language = $3, level = $4, current_course = $5,
			total_xp = $6, user_level = $7, streak_days = $8, longest_streak = $9,
			last_activity_date = $10, role_details = $11, updated_at = NOW()
		WHERE account_id = $1
		RETURNING updated_at`

	err = r.q.QueryRow(ctx, query,
		p.AccountID,
		p.DisplayName,
		p.Language,
		p.Level,
		p.CurrentCourse,
		p.TotalXP,
		p.UserLevel,
		p.StreakDays,
		p.LongestStreak,
		p.LastActivityDate,
		details,
	).Scan(&p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return apierrors.NewNotFoundError("Profile")
	}
	return err
}

// Delete removes the profile of an account.
func (r *profileRepo) Delete(ctx context.Context, accountID uuid.UUID) error {
	_, err := r.q.Exec(ctx, `DELETE FROM profiles WHERE account_id = $1`, accountID)
	return err
}

func (r *profileRepo) getOne(ctx context.Context, query string, accountID uuid.UUID) (*models.Profile, error) {
	var (
		p       models.Profile
		raw     []byte
		role    models.Role
		details models.RoleDetails
	)
	err := r.q.QueryRow(ctx, query, accountID).Scan(
		&p.AccountID,
		&p.DisplayName,
		&p.Language,
		&p.Level,
		&p.CurrentCourse,
		&p.TotalXP,
		&p.UserLevel,
		&p.StreakDays,
		&p.LongestStreak,
		&p.LastActivityDate,
		&raw,
		&role,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	details, err = models.DecodeRoleDetails(role, raw)
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", accountID, err)
	}
	p.Details = details
	return &p, nil
}

var _ ProfileRepository = (*profileRepo)(nil)
