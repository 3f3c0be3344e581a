package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/speaklexi/backend/internal/models"
	apierrors "github.com/speaklexi/backend/internal/pkg/errors"
)

// LessonFilter narrows ListLessons. Zero fields are ignored.
type LessonFilter struct {
	Language   string
	Difficulty models.Difficulty
	State      models.LessonState
	Category   string
	AuthorID   uuid.UUID
	Limit      int
	Offset     int
}

// LessonRepository defines the interface for lesson data operations.
type LessonRepository interface {
	Create(ctx context.Context, lesson *models.Lesson) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Lesson, error)
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Lesson, error)
	List(ctx context.Context, filter LessonFilter) ([]*models.Lesson, error)
	Update(ctx context.Context, lesson *models.Lesson) error
	Delete(ctx context.Context, id uuid.UUID) error

	// AttachMultimedia links an asset to a lesson. It returns false when the
	// link already existed.
	AttachMultimedia(ctx context.Context, lessonID, mediaID uuid.UUID) (bool, error)
	DetachAllMultimedia(ctx context.Context, lessonID uuid.UUID) error
	ListMultimedia(ctx context.Context, lessonID uuid.UUID) ([]*models.Multimedia, error)
}

type lessonRepo struct {
	q Querier
}

// NewLessonRepository creates a new lesson repository.
func NewLessonRepository(q Querier) LessonRepository {
	return &lessonRepo{q: q}
}

const lessonColumns = `id, title, COALESCE(description, ''), content, difficulty, language,
	COALESCE(category, ''), tags, position, prerequisites, duration_minutes, xp_reward,
	state, COALESCE(author_id, '00000000-0000-0000-0000-000000000000'::uuid), created_at, updated_at`

// Create inserts a new lesson.
func (r *lessonRepo) Create(ctx context.Context, l *models.Lesson) error {
	query := `
		INSERT INTO lessons (id, title, description, content, difficulty, language, category, tags,
			position, prerequisites, duration_minutes, xp_reward, state, author_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at, updated_at`

	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if l.State == "" {
		l.State = models.LessonDraft
	}
	normalizeLesson(l)

	return r.q.QueryRow(ctx, query,
		l.ID,
		l.Title,
		l.Description,
		l.Content,
		l.Difficulty,
		l.Language,
		l.Category,
		l.Tags,
		l.Position,
		l.Prerequisites,
		l.DurationMinutes,
		l.XPReward,
		l.State,
		l.AuthorID,
	).Scan(&l.CreatedAt, &l.UpdatedAt)
}

// GetByID retrieves a lesson by its UUID.
func (r *lessonRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Lesson, error) {
	return r.getOne(ctx, `SELECT `+lessonColumns+` FROM lessons WHERE id = $1`, id)
}

// GetByIDForUpdate retrieves a lesson and locks its row.
func (r *lessonRepo) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Lesson, error) {
	return r.getOne(ctx, `SELECT `+lessonColumns+` FROM lessons WHERE id = $1 FOR UPDATE`, id)
}

// List returns lessons matching filter ordered by position.
func (r *lessonRepo) List(ctx context.Context, f LessonFilter) ([]*models.Lesson, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if f.Language != "" {
		add("language = $%d", f.Language)
	}
	if f.Difficulty != "" {
		add("difficulty = $%d", f.Difficulty)
	}
	if f.State != "" {
		add("state = $%d", f.State)
	}
	if f.Category != "" {
		add("category = $%d", f.Category)
	}
	if f.AuthorID != uuid.Nil {
		add("author_id = $%d", f.AuthorID)
	}

	query := `SELECT ` + lessonColumns + ` FROM lessons`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY position, created_at`
	if f.Limit > 0 {
		args = append(args, f.Limit, f.Offset)
		query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	}

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lessons []*models.Lesson
	for rows.Next() {
		l, err := scanLesson(rows)
		if err != nil {
			return nil, err
		}
		lessons = append(lessons, l)
	}
	return lessons, rows.Err()
}

// Update writes every mutable lesson column.
func (r *lessonRepo) Update(ctx context.Context, l *models.Lesson) error {
	query := `
		UPDATE lessons SET
			title = $2, description = $3, content = $4, difficulty = $5, language = $6,
			category = $7, tags = $8, position = $9, prerequisites = $10,
			duration_minutes = $11, xp_reward = $12, state = $13, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`

	normalizeLesson(l)
	err := r.q.QueryRow(ctx, query,
		l.ID,
		l.Title,
		l.Description,
		l.Content,
		l.Difficulty,
		l.Language,
		l.Category,
		l.Tags,
		l.Position,
		l.Prerequisites,
		l.DurationMinutes,
		l.XPReward,
		l.State,
	).Scan(&l.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return apierrors.NewNotFoundError("Lesson")
	}
	return err
}

// Delete removes a lesson row. Activities and multimedia links must be
// removed first.
func (r *lessonRepo) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.q.Exec(ctx, `DELETE FROM lessons WHERE id = $1`, id)
	return err
}

// AttachMultimedia links an asset to a lesson.
func (r *lessonRepo) AttachMultimedia(ctx context.Context, lessonID, mediaID uuid.UUID) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		INSERT INTO lesson_multimedia (lesson_id, multimedia_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, lessonID, mediaID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// DetachAllMultimedia removes every asset link of a lesson.
func (r *lessonRepo) DetachAllMultimedia(ctx context.Context, lessonID uuid.UUID) error {
	_, err := r.q.Exec(ctx, `DELETE FROM lesson_multimedia WHERE lesson_id = $1`, lessonID)
	return err
}

// ListMultimedia returns the assets linked to a lesson.
func (r *lessonRepo) ListMultimedia(ctx context.Context, lessonID uuid.UUID) ([]*models.Multimedia, error) {
	query := `SELECT ` + multimediaCols("m.") + `
		FROM multimedia m
		JOIN lesson_multimedia lm ON lm.multimedia_id = m.id
		WHERE lm.lesson_id = $1
		ORDER BY m.created_at`

	rows, err := r.q.Query(ctx, query, lessonID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var media []*models.Multimedia
	for rows.Next() {
		m, err := scanMultimedia(rows)
		if err != nil {
			return nil, err
		}
		media = append(media, m)
	}
	return media, rows.Err()
}

func (r *lessonRepo) getOne(ctx context.Context, query string, id uuid.UUID) (*models.Lesson, error) {
	l, err := scanLesson(r.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return l, nil
}

func scanLesson(row pgx.Row) (*models.Lesson, error) {
	var l models.Lesson
	err := row.Scan(
		&l.ID,
		&l.Title,
		&l.Description,
		&l.Content,
		&l.Difficulty,
		&l.Language,
		&l.Category,
		&l.Tags,
		&l.Position,
		&l.Prerequisites,
		&l.DurationMinutes,
		&l.XPReward,
		&l.State,
		&l.AuthorID,
		&l.CreatedAt,
		&l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// normalizeLesson replaces nil collections with empty ones so NOT NULL
// array and jsonb columns are satisfied.
func normalizeLesson(l *models.Lesson) {
	if l.Tags == nil {
		l.Tags = []string{}
	}
	if l.Prerequisites == nil {
		l.Prerequisites = []uuid.UUID{}
	}
	if len(l.Content) == 0 {
		l.Content = json.RawMessage(`{}`)
	}
}

var _ LessonRepository = (*lessonRepo)(nil)
