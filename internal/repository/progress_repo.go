package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/speaklexi/backend/internal/models"
	apierrors "github.com/speaklexi/backend/internal/pkg/errors"
)

// ProgressRepository defines the interface for course progress operations.
type ProgressRepository interface {
	// Create inserts a progress row. It returns false when the account
	// already has a row for the course.
	Create(ctx context.Context, progress *models.CourseProgress) (bool, error)
	Get(ctx context.Context, accountID uuid.UUID, courseID string) (*models.CourseProgress, error)
	GetForUpdate(ctx context.Context, accountID uuid.UUID, courseID string) (*models.CourseProgress, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*models.CourseProgress, error)
	Update(ctx context.Context, progress *models.CourseProgress) error
	DeleteByAccount(ctx context.Context, accountID uuid.UUID) error
}

type progressRepo struct {
	q Querier
}

// NewProgressRepository creates a new course progress repository.
func NewProgressRepository(q Querier) ProgressRepository {
	return &progressRepo{q: q}
}

const progressColumns = `id, account_id, course_id, completed_lessons, total_lessons, percentage::float8,
	state, time_spent_minutes, scored_lessons, average_score, last_lesson_id, started_on, completed_on, created_at, updated_at`

// Create inserts a progress row unless one exists for the pair.
func (r *progressRepo) Create(ctx context.Context, p *models.CourseProgress) (bool, error) {
	query := `
		INSERT INTO course_progress (id, account_id, course_id, completed_lessons, total_lessons,
			percentage, state, time_spent_minutes, scored_lessons, average_score, last_lesson_id, started_on, completed_on)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (account_id, course_id) DO NOTHING
		RETURNING created_at, updated_at`

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}

	err := r.q.QueryRow(ctx, query,
		p.ID,
		p.AccountID,
		p.CourseID,
		p.CompletedLessons,
		p.TotalLessons,
		p.Percentage,
		p.State,
		p.TimeSpentMinutes,
		p.ScoredLessons,
		p.AverageScore,
		p.LastLessonID,
		p.StartedOn,
		p.CompletedOn,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Get retrieves the progress of an account in a course.
func (r *progressRepo) Get(ctx context.Context, accountID uuid.UUID, courseID string) (*models.CourseProgress, error) {
	return r.getOne(ctx, `SELECT `+progressColumns+` FROM course_progress WHERE account_id = $1 AND course_id = $2`, accountID, courseID)
}

// GetForUpdate is Get with a row lock.
func (r *progressRepo) GetForUpdate(ctx context.Context, accountID uuid.UUID, courseID string) (*models.CourseProgress, error) {
	return r.getOne(ctx, `SELECT `+progressColumns+` FROM course_progress WHERE account_id = $1 AND course_id = $2 FOR UPDATE`, accountID, courseID)
}

// ListByAccount returns every course the account has progress in.
func (r *progressRepo) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*models.CourseProgress, error) {
	rows, err := r.q.Query(ctx, `SELECT `+progressColumns+` FROM course_progress WHERE account_id = $1 ORDER BY created_at`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*models.CourseProgress
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

// Update writes every mutable progress column.
func (r *progressRepo) Update(ctx context.Context, p *models.CourseProgress) error {
	query := `
		UPDATE course_progress SET
			completed_lessons = $2, total_lessons = $3, percentage = $4, state = $5,
			time_spent_minutes = $6, scored_lessons = $7, average_score = $8, last_lesson_id = $9,
			started_on = $10, completed_on = $11, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`

	err := r.q.QueryRow(ctx, query,
		p.ID,
		p.CompletedLessons,
		p.TotalLessons,
		p.Percentage,
		p.State,
		p.TimeSpentMinutes,
		p.ScoredLessons,
		p.AverageScore,
		p.LastLessonID,
		p.StartedOn,
		p.CompletedOn,
	).Scan(&p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return apierrors.NewNotFoundError("Course progress")
	}
	return err
}

// DeleteByAccount removes every progress row of an account.
func (r *progressRepo) DeleteByAccount(ctx context.Context, accountID uuid.UUID) error {
	_, err := r.q.Exec(ctx, `DELETE FROM course_progress WHERE account_id = $1`, accountID)
	return err
}

func (r *progressRepo) getOne(ctx context.Context, query string, args ...any) (*models.CourseProgress, error) {
	p, err := scanProgress(r.q.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func scanProgress(row pgx.Row) (*models.CourseProgress, error) {
	var p models.CourseProgress
	err := row.Scan(
		&p.ID,
		&p.AccountID,
		&p.CourseID,
		&p.CompletedLessons,
		&p.TotalLessons,
		&p.Percentage,
		&p.State,
		&p.TimeSpentMinutes,
		&p.ScoredLessons,
		&p.AverageScore,
		&p.LastLessonID,
		&p.StartedOn,
		&p.CompletedOn,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

var _ ProgressRepository = (*progressRepo)(nil)
