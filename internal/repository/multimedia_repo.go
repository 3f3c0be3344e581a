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

// MultimediaRepository defines the interface for multimedia data operations.
type MultimediaRepository interface {
	Create(ctx context.Context, media *models.Multimedia) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Multimedia, error)
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Multimedia, error)
	Update(ctx context.Context, media *models.Multimedia) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type multimediaRepo struct {
	q Querier
}

// NewMultimediaRepository creates a new multimedia repository.
func NewMultimediaRepository(q Querier) MultimediaRepository {
	return &multimediaRepo{q: q}
}

// multimediaCols lists the selected columns with an optional table alias.
func multimediaCols(p string) string {
	return fmt.Sprintf(`%[1]sid, %[1]soriginal_name, %[1]sstored_name, %[1]stype, %[1]smime_type,
		COALESCE(%[1]scategory, ''), %[1]surl, %[1]ssize_bytes, %[1]sduration_seconds, %[1]swidth, %[1]sheight,
		%[1]sstate, %[1]serror_message, COALESCE(%[1]sdescription, ''), COALESCE(%[1]salt_text, ''),
		%[1]susage_count, %[1]slast_used_at, COALESCE(%[1]suploaded_by, '00000000-0000-0000-0000-000000000000'::uuid), %[1]screated_at, %[1]supdated_at`, p)
}

// Create inserts a multimedia row.
func (r *multimediaRepo) Create(ctx context.Context, m *models.Multimedia) error {
	query := `
		INSERT INTO multimedia (id, original_name, stored_name, type, mime_type, category, url, size_bytes,
			duration_seconds, width, height, state, error_message, description, alt_text, uploaded_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING created_at, updated_at`

	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.State == "" {
		m.State = models.MediaPending
	}

	err := r.q.QueryRow(ctx, query,
		m.ID,
		m.OriginalName,
		m.StoredName,
		m.Type,
		m.MIMEType,
		m.Category,
		m.URL,
		m.SizeBytes,
		m.DurationSecs,
		m.Width,
		m.Height,
		m.State,
		m.ErrorMessage,
		m.Description,
		m.AltText,
		m.UploadedBy,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
	if IsUniqueViolation(err) {
		return apierrors.ErrAlreadyExists.WithMessage("Stored file name already in use")
	}
	return err
}

// GetByID retrieves a multimedia row by its UUID.
func (r *multimediaRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Multimedia, error) {
	return r.getOne(ctx, `SELECT `+multimediaCols("")+` FROM multimedia WHERE id = $1`, id)
}

// GetByIDForUpdate retrieves a multimedia row and locks it.
func (r *multimediaRepo) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Multimedia, error) {
	return r.getOne(ctx, `SELECT `+multimediaCols("")+` FROM multimedia WHERE id = $1 FOR UPDATE`, id)
}

// Update writes every mutable multimedia column.
func (r *multimediaRepo) Update(ctx context.Context, m *models.Multimedia) error {
	query := `
		UPDATE multimedia SET
			category = $2, url = $3, state = $4, error_message = $5, description = $6,
			alt_text = $7, usage_count = $8, last_used_at = $9, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`

	err := r.q.QueryRow(ctx, query,
		m.ID,
		m.Category,
		m.URL,
		m.State,
		m.ErrorMessage,
		m.Description,
		m.AltText,
		m.UsageCount,
		m.LastUsedAt,
	).Scan(&m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return apierrors.NewNotFoundError("Multimedia")
	}
	return err
}

// Delete removes a multimedia row together with its lesson links.
func (r *multimediaRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := r.q.Exec(ctx, `DELETE FROM lesson_multimedia WHERE multimedia_id = $1`, id); err != nil {
		return err
	}
	_, err := r.q.Exec(ctx, `DELETE FROM multimedia WHERE id = $1`, id)
	return err
}

func (r *multimediaRepo) getOne(ctx context.Context, query string, id uuid.UUID) (*models.Multimedia, error) {
	m, err := scanMultimedia(r.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func scanMultimedia(row pgx.Row) (*models.Multimedia, error) {
	var m models.Multimedia
	err := row.Scan(
		&m.ID,
		&m.OriginalName,
		&m.StoredName,
		&m.Type,
		&m.MIMEType,
		&m.Category,
		&m.URL,
		&m.SizeBytes,
		&m.DurationSecs,
		&m.Width,
		&m.Height,
		&m.State,
		&m.ErrorMessage,
		&m.Description,
		&m.AltText,
		&m.UsageCount,
		&m.LastUsedAt,
		&m.UploadedBy,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

var _ MultimediaRepository = (*multimediaRepo)(nil)
