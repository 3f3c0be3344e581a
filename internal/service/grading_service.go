package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/speaklexi/backend/internal/grading"
	apierrors "github.com/speaklexi/backend/internal/pkg/errors"
	"github.com/speaklexi/backend/internal/repository"
)

// GradingService grades learner answers against stored activities.
type GradingService interface {
	GradeAnswer(ctx context.Context, req GradeRequest) (*grading.Result, error)
}

// GradeRequest identifies the activity and carries the submitted answer.
// LessonID is optional; when set the activity must belong to that lesson.
// Activities of lessons the actor cannot see are reported as not found.
type GradeRequest struct {
	Actor      Actor           `json:"-"`
	LessonID   uuid.UUID       `json:"-"`
	ActivityID uuid.UUID       `json:"-"`
	Answer     json.RawMessage `json:"answer"`
}

type gradingService struct {
	store  repository.Store
	logger *slog.Logger
}

// NewGradingService creates a new grading service.
func NewGradingService(store repository.Store, logger *slog.Logger) GradingService {
	return &gradingService{store: store, logger: logger.With("service", "grading")}
}

// GradeAnswer loads the activity and grades the answer. Nothing is written.
func (s *gradingService) GradeAnswer(ctx context.Context, req GradeRequest) (*grading.Result, error) {
	if !present(req.Answer) {
		return nil, apierrors.NewValidationError("answer", "answer is required")
	}

	act, err := visibleActivity(ctx, s.store.Repos(), req.Actor, req.ActivityID)
	if err != nil {
		return nil, internal(s.logger, "grade_answer", err, "activity_id", req.ActivityID)
	}
	if req.LessonID != uuid.Nil && act.LessonID != req.LessonID {
		return nil, apierrors.NewNotFoundError("Activity")
	}

	res, err := grading.Grade(act, req.Answer)
	switch {
	case errors.Is(err, grading.ErrInvalidAnswer):
		return nil, apierrors.NewValidationError("answer", "answer must be valid JSON")
	case err != nil:
		return nil, internal(s.logger, "grade_answer", err, "activity_id", act.ID)
	}
	return &res, nil
}
