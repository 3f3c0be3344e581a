package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/speaklexi/backend/internal/models"
	apierrors "github.com/speaklexi/backend/internal/pkg/errors"
	"github.com/speaklexi/backend/internal/repository"
)

const (
	defaultLessonPage = 50
	maxLessonPage     = 100
)

// LessonService defines lesson and activity management.
type LessonService interface {
	CreateLesson(ctx context.Context, actor Actor, req CreateLessonRequest) (*models.Lesson, error)
	GetLesson(ctx context.Context, actor Actor, id uuid.UUID) (*LessonDetail, error)
	ListLessons(ctx context.Context, actor Actor, filter repository.LessonFilter) ([]*models.Lesson, error)
	PublishLesson(ctx context.Context, actor Actor, id uuid.UUID) (*models.Lesson, error)
	ArchiveLesson(ctx context.Context, actor Actor, id uuid.UUID) (*models.Lesson, error)
	DeleteLesson(ctx context.Context, actor Actor, id uuid.UUID) error

	AddActivity(ctx context.Context, actor Actor, lessonID uuid.UUID, req AddActivityRequest) (*models.ActivityView, error)
	GetActivity(ctx context.Context, actor Actor, id uuid.UUID) (*models.ActivityView, error)
	DeleteActivity(ctx context.Context, actor Actor, lessonID, activityID uuid.UUID) error

	AttachMultimedia(ctx context.Context, actor Actor, lessonID, mediaID uuid.UUID) (*models.Multimedia, error)
	CheckPrerequisites(ctx context.Context, lessonID uuid.UUID, completed []uuid.UUID) (bool, error)
}

// CreateLessonRequest represents a request to create a lesson.
type CreateLessonRequest struct {
	Title           string          `json:"title" validate:"required,max=200"`
	Description     string          `json:"description" validate:"max=2000"`
	Content         json.RawMessage `json:"content"`
	Difficulty      string          `json:"difficulty" validate:"required,oneof=beginner intermediate advanced"`
	Language        string          `json:"language" validate:"required,max=50"`
	Category        string          `json:"category" validate:"max=100"`
	Tags            []string        `json:"tags" validate:"max=20,dive,required,max=50"`
	Position        int             `json:"position" validate:"gte=0"`
	Prerequisites   []uuid.UUID     `json:"prerequisites"`
	DurationMinutes int             `json:"duration_minutes" validate:"gt=0"`
	XPReward        int             `json:"xp_reward" validate:"gte=0"`
}

// AddActivityRequest represents a request to add an activity to a lesson.
type AddActivityRequest struct {
	Type             string            `json:"type" validate:"required"`
	Prompt           string            `json:"prompt" validate:"required,max=2000"`
	Instructions     string            `json:"instructions" validate:"max=2000"`
	Options          json.RawMessage   `json:"options"`
	CorrectAnswer    json.RawMessage   `json:"correct_answer"`
	Feedback         map[string]string `json:"feedback"`
	Hint             string            `json:"hint" validate:"max=500"`
	Points           int               `json:"points" validate:"gte=0"`
	TimeLimitSeconds *int              `json:"time_limit_seconds" validate:"omitempty,gt=0"`
	MultimediaID     *uuid.UUID        `json:"multimedia_id"`
}

// LessonDetail is a lesson with its activities and linked assets. Answers
// appear only for callers that can author content.
type LessonDetail struct {
	*models.Lesson
	Activities []models.ActivityView `json:"activities"`
	Multimedia []*models.Multimedia  `json:"multimedia"`
}

type lessonService struct {
	store  repository.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewLessonService creates a new lesson service.
func NewLessonService(store repository.Store, logger *slog.Logger, opts ...Option) LessonService {
	o := buildOptions(opts)
	return &lessonService{
		store:  store,
		logger: logger.With("service", "lesson"),
		now:    o.now,
	}
}

func requireAuthor(actor Actor) error {
	if !actor.Role.CanAuthor() {
		return apierrors.ErrForbidden.WithMessage("Only teachers and administrators manage lessons")
	}
	return nil
}

// canManage reports whether actor may modify the lesson: administrators
// always, teachers only their own lessons.
func canManage(actor Actor, lesson *models.Lesson) bool {
	switch actor.Role {
	case models.RoleAdmin:
		return true
	case models.RoleTeacher:
		return lesson.AuthorID == actor.AccountID
	default:
		return false
	}
}

// lockManaged loads a lesson for update and checks that actor may change it.
func lockManaged(ctx context.Context, r *repository.Repos, actor Actor, id uuid.UUID) (*models.Lesson, error) {
	lesson, err := r.Lessons.GetByIDForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	if lesson == nil {
		return nil, apierrors.NewNotFoundError("Lesson")
	}
	if !canManage(actor, lesson) {
		return nil, apierrors.ErrForbidden
	}
	return lesson, nil
}

// visible reports whether a lesson can be read by actor. Learners only see
// published lessons.
func visible(actor Actor, lesson *models.Lesson) bool {
	return lesson.State == models.LessonPublished || actor.Role.CanAuthor()
}

// visibleActivity loads an activity whose lesson the actor may see. Anything
// else is reported as a missing activity.
func visibleActivity(ctx context.Context, r *repository.Repos, actor Actor, id uuid.UUID) (*models.Activity, error) {
	activity, err := r.Activities.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if activity == nil {
		return nil, apierrors.NewNotFoundError("Activity")
	}
	lesson, err := r.Lessons.GetByID(ctx, activity.LessonID)
	if err != nil {
		return nil, err
	}
	if lesson == nil || !visible(actor, lesson) {
		return nil, apierrors.NewNotFoundError("Activity")
	}
	return activity, nil
}

// CreateLesson creates a draft lesson authored by actor.
func (s *lessonService) CreateLesson(ctx context.Context, actor Actor, req CreateLessonRequest) (*models.Lesson, error) {
	if err := requireAuthor(actor); err != nil {
		return nil, err
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if len(req.Content) > 0 && !json.Valid(req.Content) {
		return nil, apierrors.NewValidationError("content", "content must be valid JSON")
	}

	lesson := &models.Lesson{
		ID:              uuid.New(),
		Title:           strings.TrimSpace(req.Title),
		Description:     strings.TrimSpace(req.Description),
		Content:         req.Content,
		Difficulty:      models.Difficulty(req.Difficulty),
		Language:        strings.TrimSpace(req.Language),
		Category:        strings.TrimSpace(req.Category),
		Tags:            req.Tags,
		Position:        req.Position,
		Prerequisites:   req.Prerequisites,
		DurationMinutes: req.DurationMinutes,
		XPReward:        req.XPReward,
		State:           models.LessonDraft,
		AuthorID:        actor.AccountID,
	}

	err := s.store.WithTx(ctx, func(r *repository.Repos) error {
		for _, id := range lesson.Prerequisites {
			prereq, err := r.Lessons.GetByID(ctx, id)
			if err != nil {
				return err
			}
			if prereq == nil {
				return apierrors.NewValidationError("prerequisites", "prerequisite "+id.String()+" does not exist")
			}
		}
		return r.Lessons.Create(ctx, lesson)
	})
	if err != nil {
		return nil, internal(s.logger, "create_lesson", err, "author_id", actor.AccountID)
	}

	s.logger.Info("lesson created", "lesson_id", lesson.ID, "author_id", actor.AccountID)
	return lesson, nil
}

// GetLesson returns a lesson with its activities and assets.
func (s *lessonService) GetLesson(ctx context.Context, actor Actor, id uuid.UUID) (*LessonDetail, error) {
	repos := s.store.Repos()

	lesson, err := repos.Lessons.GetByID(ctx, id)
	if err != nil {
		return nil, internal(s.logger, "get_lesson", err, "lesson_id", id)
	}
	if lesson == nil || !visible(actor, lesson) {
		return nil, apierrors.NewNotFoundError("Lesson")
	}

	activities, err := repos.Activities.ListByLesson(ctx, id)
	if err != nil {
		return nil, internal(s.logger, "get_lesson", err, "lesson_id", id)
	}
	media, err := repos.Lessons.ListMultimedia(ctx, id)
	if err != nil {
		return nil, internal(s.logger, "get_lesson", err, "lesson_id", id)
	}
	if media == nil {
		media = []*models.Multimedia{}
	}

	includeAnswers := actor.Role.CanAuthor()
	views := make([]models.ActivityView, 0, len(activities))
	for _, a := range activities {
		views = append(views, a.View(includeAnswers))
	}
	return &LessonDetail{Lesson: lesson, Activities: views, Multimedia: media}, nil
}

// ListLessons returns lessons matching filter. Learners only see published
// lessons regardless of the requested state.
func (s *lessonService) ListLessons(ctx context.Context, actor Actor, filter repository.LessonFilter) ([]*models.Lesson, error) {
	if !actor.Role.CanAuthor() {
		filter.State = models.LessonPublished
	}
	if filter.State != "" && !filter.State.Valid() {
		return nil, apierrors.NewValidationError("state", "unknown lesson state")
	}
	if filter.Difficulty != "" && !filter.Difficulty.Valid() {
		return nil, apierrors.NewValidationError("difficulty", "unknown difficulty")
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultLessonPage
	}
	if filter.Limit > maxLessonPage {
		filter.Limit = maxLessonPage
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	lessons, err := s.store.Repos().Lessons.List(ctx, filter)
	if err != nil {
		return nil, internal(s.logger, "list_lessons", err)
	}
	if lessons == nil {
		lessons = []*models.Lesson{}
	}
	return lessons, nil
}

// PublishLesson moves a draft lesson to published.
func (s *lessonService) PublishLesson(ctx context.Context, actor Actor, id uuid.UUID) (*models.Lesson, error) {
	var lesson *models.Lesson
	err := s.store.WithTx(ctx, func(r *repository.Repos) error {
		var err error
		lesson, err = lockManaged(ctx, r, actor, id)
		if err != nil {
			return err
		}
		if !lesson.Publish() {
			return apierrors.NewPolicyError("Only draft lessons can be published", map[string]any{
				"state": lesson.State,
			})
		}
		return r.Lessons.Update(ctx, lesson)
	})
	if err != nil {
		return nil, internal(s.logger, "publish_lesson", err, "lesson_id", id)
	}
	return lesson, nil
}

// ArchiveLesson marks a lesson archived.
func (s *lessonService) ArchiveLesson(ctx context.Context, actor Actor, id uuid.UUID) (*models.Lesson, error) {
	var lesson *models.Lesson
	err := s.store.WithTx(ctx, func(r *repository.Repos) error {
		var err error
		lesson, err = lockManaged(ctx, r, actor, id)
		if err != nil {
			return err
		}
		lesson.Archive()
		return r.Lessons.Update(ctx, lesson)
	})
	if err != nil {
		return nil, internal(s.logger, "archive_lesson", err, "lesson_id", id)
	}
	return lesson, nil
}

// DeleteLesson removes a lesson with its activities and asset links in one
// transaction.
func (s *lessonService) DeleteLesson(ctx context.Context, actor Actor, id uuid.UUID) error {
	var removed int64
	err := s.store.WithTx(ctx, func(r *repository.Repos) error {
		if _, err := lockManaged(ctx, r, actor, id); err != nil {
			return err
		}
		var err error
		if removed, err = r.Activities.DeleteByLesson(ctx, id); err != nil {
			return err
		}
		if err := r.Lessons.DetachAllMultimedia(ctx, id); err != nil {
			return err
		}
		return r.Lessons.Delete(ctx, id)
	})
	if err != nil {
		return internal(s.logger, "delete_lesson", err, "lesson_id", id)
	}
	s.logger.Info("lesson deleted", "lesson_id", id, "activities", removed)
	return nil
}

// AddActivity appends an activity to the end of a lesson.
func (s *lessonService) AddActivity(ctx context.Context, actor Actor, lessonID uuid.UUID, req AddActivityRequest) (*models.ActivityView, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	kind := models.ActivityType(req.Type)
	if !kind.Valid() {
		return nil, apierrors.NewValidationError("type", "unknown activity type")
	}
	if !present(req.CorrectAnswer) {
		return nil, apierrors.NewValidationError("correct_answer", "correct_answer is required")
	}
	if !json.Valid(req.CorrectAnswer) {
		return nil, apierrors.NewValidationError("correct_answer", "correct_answer must be valid JSON")
	}
	if len(req.Options) > 0 && !json.Valid(req.Options) {
		return nil, apierrors.NewValidationError("options", "options must be valid JSON")
	}

	activity := &models.Activity{
		ID:               uuid.New(),
		LessonID:         lessonID,
		Type:             kind,
		Prompt:           strings.TrimSpace(req.Prompt),
		Instructions:     req.Instructions,
		Options:          req.Options,
		CorrectAnswer:    req.CorrectAnswer,
		Feedback:         req.Feedback,
		Hint:             req.Hint,
		Points:           req.Points,
		TimeLimitSeconds: req.TimeLimitSeconds,
		MultimediaID:     req.MultimediaID,
	}

	err := s.store.WithTx(ctx, func(r *repository.Repos) error {
		if _, err := lockManaged(ctx, r, actor, lessonID); err != nil {
			return err
		}
		if activity.MultimediaID != nil {
			media, err := r.Multimedia.GetByID(ctx, *activity.MultimediaID)
			if err != nil {
				return err
			}
			if media == nil {
				return apierrors.NewNotFoundError("Multimedia")
			}
		}
		pos, err := r.Activities.NextPosition(ctx, lessonID)
		if err != nil {
			return err
		}
		activity.Position = pos
		return r.Activities.Create(ctx, activity)
	})
	if err != nil {
		return nil, internal(s.logger, "add_activity", err, "lesson_id", lessonID)
	}

	view := activity.View(true)
	return &view, nil
}

// GetActivity returns one activity. The answer is included for callers that
// can author content.
func (s *lessonService) GetActivity(ctx context.Context, actor Actor, id uuid.UUID) (*models.ActivityView, error) {
	activity, err := visibleActivity(ctx, s.store.Repos(), actor, id)
	if err != nil {
		return nil, internal(s.logger, "get_activity", err, "activity_id", id)
	}
	view := activity.View(actor.Role.CanAuthor())
	return &view, nil
}

// DeleteActivity removes an activity from a lesson.
func (s *lessonService) DeleteActivity(ctx context.Context, actor Actor, lessonID, activityID uuid.UUID) error {
	err := s.store.WithTx(ctx, func(r *repository.Repos) error {
		if _, err := lockManaged(ctx, r, actor, lessonID); err != nil {
			return err
		}
		activity, err := r.Activities.GetByID(ctx, activityID)
		if err != nil {
			return err
		}
		if activity == nil || activity.LessonID != lessonID {
			return apierrors.NewNotFoundError("Activity")
		}
		return r.Activities.Delete(ctx, activityID)
	})
	if err != nil {
		return internal(s.logger, "delete_activity", err, "lesson_id", lessonID, "activity_id", activityID)
	}
	return nil
}

// AttachMultimedia links an available asset to a lesson and counts the use.
// Attaching the same asset twice is a no-op.
func (s *lessonService) AttachMultimedia(ctx context.Context, actor Actor, lessonID, mediaID uuid.UUID) (*models.Multimedia, error) {
	var media *models.Multimedia
	err := s.store.WithTx(ctx, func(r *repository.Repos) error {
		if _, err := lockManaged(ctx, r, actor, lessonID); err != nil {
			return err
		}
		var err error
		media, err = r.Multimedia.GetByIDForUpdate(ctx, mediaID)
		if err != nil {
			return err
		}
		if media == nil {
			return apierrors.NewNotFoundError("Multimedia")
		}
		if media.State != models.MediaAvailable {
			return apierrors.NewPolicyError("Multimedia is not available", map[string]any{
				"state": media.State,
			})
		}

		inserted, err := r.Lessons.AttachMultimedia(ctx, lessonID, mediaID)
		if err != nil || !inserted {
			return err
		}
		now := s.now().UTC()
		media.UsageCount++
		media.LastUsedAt = &now
		return r.Multimedia.Update(ctx, media)
	})
	if err != nil {
		return nil, internal(s.logger, "attach_multimedia", err, "lesson_id", lessonID, "multimedia_id", mediaID)
	}
	return media, nil
}

// CheckPrerequisites reports whether completed covers every prerequisite of
// the lesson.
func (s *lessonService) CheckPrerequisites(ctx context.Context, lessonID uuid.UUID, completed []uuid.UUID) (bool, error) {
	lesson, err := s.store.Repos().Lessons.GetByID(ctx, lessonID)
	if err != nil {
		return false, internal(s.logger, "check_prerequisites", err, "lesson_id", lessonID)
	}
	if lesson == nil {
		return false, apierrors.NewNotFoundError("Lesson")
	}
	return lesson.PrerequisitesMet(completed), nil
}

func present(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed != "" && trimmed != "null"
}
