package service

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/speaklexi/backend/internal/models"
	apierrors "github.com/speaklexi/backend/internal/pkg/errors"
	"github.com/speaklexi/backend/internal/pkg/ulid"
	"github.com/speaklexi/backend/internal/repository"
	"github.com/speaklexi/backend/internal/storage"
)

// MultimediaService defines the multimedia registry.
type MultimediaService interface {
	Upload(ctx context.Context, actor Actor, req UploadRequest) (*models.Multimedia, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Multimedia, error)
	Delete(ctx context.Context, actor Actor, id uuid.UUID) error
}

// UploadRequest carries an uploaded file. Type is detected from MIMEType
// when empty.
type UploadRequest struct {
	OriginalName string           `json:"original_name" validate:"required,max=255"`
	MIMEType     string           `json:"mime_type" validate:"required"`
	Type         models.MediaType `json:"type" validate:"omitempty,oneof=image audio video document"`
	Category     string           `json:"category" validate:"max=100"`
	Description  string           `json:"description" validate:"max=1000"`
	AltText      string           `json:"alt_text" validate:"max=255"`
	Data         []byte           `json:"-"`
}

type multimediaService struct {
	store  repository.Store
	files  storage.FileStore
	logger *slog.Logger
}

// NewMultimediaService creates a new multimedia service.
func NewMultimediaService(store repository.Store, files storage.FileStore, logger *slog.Logger) MultimediaService {
	return &multimediaService{
		store:  store,
		files:  files,
		logger: logger.With("service", "multimedia"),
	}
}

// storedPath is the asset's location inside the file store.
func storedPath(m *models.Multimedia) string {
	return path.Join(string(m.Type), m.StoredName)
}

// Upload validates and stores a file, then registers it. When the file store
// fails the asset is still registered in the error state.
func (s *multimediaService) Upload(ctx context.Context, actor Actor, req UploadRequest) (*models.Multimedia, error) {
	if err := requireAuthor(actor); err != nil {
		return nil, err
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if len(req.Data) == 0 {
		return nil, apierrors.NewValidationError("file", "file is empty")
	}

	mimeType := strings.ToLower(strings.TrimSpace(req.MIMEType))
	kind := req.Type
	if kind == "" {
		detected, ok := models.DetectMediaType(mimeType)
		if !ok {
			return nil, apierrors.NewValidationError("mime_type", "unsupported file type "+mimeType)
		}
		kind = detected
	}
	if !kind.AcceptsMIME(mimeType) {
		return nil, apierrors.NewValidationError("mime_type", fmt.Sprintf("%s is not an accepted %s format", mimeType, kind))
	}
	if size := int64(len(req.Data)); size > kind.MaxSize() {
		return nil, apierrors.NewValidationError("file", fmt.Sprintf("file exceeds the %d MB limit for %s", kind.MaxSize()>>20, kind))
	}

	media := &models.Multimedia{
		ID:           uuid.New(),
		OriginalName: filepath.Base(req.OriginalName),
		StoredName:   ulid.New() + strings.ToLower(filepath.Ext(req.OriginalName)),
		Type:         kind,
		MIMEType:     mimeType,
		Category:     req.Category,
		SizeBytes:    int64(len(req.Data)),
		State:        models.MediaAvailable,
		Description:  req.Description,
		AltText:      req.AltText,
		UploadedBy:   actor.AccountID,
	}

	url, storeErr := s.files.Save(ctx, req.Data, storedPath(media))
	if storeErr != nil {
		msg := storeErr.Error()
		media.State = models.MediaError
		media.ErrorMessage = &msg
	} else {
		media.URL = url
	}

	if err := s.store.Repos().Multimedia.Create(ctx, media); err != nil {
		if storeErr == nil {
			s.discard(ctx, media)
		}
		return nil, internal(s.logger, "upload_multimedia", err, "stored_name", media.StoredName)
	}

	if storeErr != nil {
		s.logger.Error("file storage failed", "multimedia_id", media.ID, "error", storeErr)
		return media, apierrors.ErrServiceUnavailable.WithMessage("The file could not be stored").WithDetails(map[string]any{
			"multimedia_id": media.ID,
		})
	}

	s.logger.Info("multimedia uploaded", "multimedia_id", media.ID, "type", media.Type, "size", media.SizeBytes)
	return media, nil
}

// Get returns a registered asset.
func (s *multimediaService) Get(ctx context.Context, id uuid.UUID) (*models.Multimedia, error) {
	media, err := s.store.Repos().Multimedia.GetByID(ctx, id)
	if err != nil {
		return nil, internal(s.logger, "get_multimedia", err, "multimedia_id", id)
	}
	if media == nil {
		return nil, apierrors.NewNotFoundError("Multimedia")
	}
	return media, nil
}

// Delete unregisters an asset and removes its file. Only the uploader or an
// administrator may delete it.
func (s *multimediaService) Delete(ctx context.Context, actor Actor, id uuid.UUID) error {
	var media *models.Multimedia
	err := s.store.WithTx(ctx, func(r *repository.Repos) error {
		var err error
		media, err = r.Multimedia.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if media == nil {
			return apierrors.NewNotFoundError("Multimedia")
		}
		if actor.Role != models.RoleAdmin && media.UploadedBy != actor.AccountID {
			return apierrors.ErrForbidden
		}
		return r.Multimedia.Delete(ctx, id)
	})
	if err != nil {
		return internal(s.logger, "delete_multimedia", err, "multimedia_id", id)
	}

	if media.State != models.MediaError {
		s.discard(ctx, media)
	}
	return nil
}

func (s *multimediaService) discard(ctx context.Context, media *models.Multimedia) {
	if err := s.files.Delete(ctx, storedPath(media)); err != nil {
		s.logger.Warn("stored file not removed", "multimedia_id", media.ID, "error", err)
	}
}
