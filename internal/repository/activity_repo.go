package repository

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/speaklexi/backend/internal/models"
)

// ActivityRepository defines the interface for activity data operations.
type ActivityRepository interface {
	Create(ctx context.Context, activity *models.Activity) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Activity, error)
	ListByLesson(ctx context.Context, lessonID uuid.UUID) ([]*models.Activity, error)
	NextPosition(ctx context.Context, lessonID uuid.UUID) (int, error)
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteByLesson(ctx context.Context, lessonID uuid.UUID) (int64, error)
}

type activityRepo struct {
	q Querier
}

// NewActivityRepository creates a new activity repository.
func NewActivityRepository(q Querier) ActivityRepository {
	return &activityRepo{q: q}
}

const activityColumns = `id, lesson_id, type, prompt, COALESCE(instructions, ''), options, correct_answer,
	feedback, COALESCE(hint, ''), points, position, time_limit_seconds, multimedia_id, created_at, updated_at`

// Create inserts an activity.
func (r *activityRepo) Create(ctx context.Context, a *models.Activity) error {
	query := `
		INSERT INTO activities (id, lesson_id, type, prompt, instructions, options, correct_answer,
			feedback, hint, points, position, time_limit_seconds, multimedia_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at`

	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	feedback := a.Feedback
	if feedback == nil {
		feedback = map[string]string{}
	}
	var options any
	if len(a.Options) > 0 {
		options = a.Options
	}

	return r.q.QueryRow(ctx, query,
		a.ID,
		a.LessonID,
		a.Type,
		a.Prompt,
		a.Instructions,
		options,
		a.CorrectAnswer,
		feedback,
		a.Hint,
		a.Points,
		a.Position,
		a.TimeLimitSeconds,
		a.MultimediaID,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
}

// GetByID retrieves an activity by its UUID.
func (r *activityRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Activity, error) {
	a, err := scanActivity(r.q.QueryRow(ctx, `SELECT `+activityColumns+` FROM activities WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ListByLesson returns a lesson's activities in order.
func (r *activityRepo) ListByLesson(ctx context.Context, lessonID uuid.UUID) ([]*models.Activity, error) {
	rows, err := r.q.Query(ctx, `SELECT `+activityColumns+` FROM activities WHERE lesson_id = $1 ORDER BY position`, lessonID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var activities []*models.Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		activities = append(activities, a)
	}
	return activities, rows.Err()
}

// NextPosition returns the position after the lesson's last activity.
func (r *activityRepo) NextPosition(ctx context.Context, lessonID uuid.UUID) (int, error) {
	var next int
	err := r.q.QueryRow(ctx, `SELECT COALESCE(MAX(position), 0) + 1 FROM activities WHERE lesson_id = $1`, lessonID).Scan(&next)
	return next, err
}

// Delete removes an activity.
func (r *activityRepo) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.q.Exec(ctx, `DELETE FROM activities WHERE id = $1`, id)
	return err
}

// DeleteByLesson removes every activity of a lesson and returns how many.
func (r *activityRepo) DeleteByLesson(ctx context.Context, lessonID uuid.UUID) (int64, error) {
	tag, err := r.q.Exec(ctx, `DELETE FROM activities WHERE lesson_id = $1`, lessonID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanActivity(row pgx.Row) (*models.Activity, error) {
	var (
		a       models.Activity
		options []byte
	)
	err := row.Scan(
		&a.ID,
		&a.LessonID,
		&a.Type,
		&a.Prompt,
		&a.Instructions,
		&options,
		&a.CorrectAnswer,
		&a.Feedback,
		&a.Hint,
		&a.Points,
		&a.Position,
		&a.TimeLimitSeconds,
		&a.MultimediaID,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(options) > 0 {
		a.Options = json.RawMessage(options)
	}
	return &a, nil
}

var _ ActivityRepository = (*activityRepo)(nil)
