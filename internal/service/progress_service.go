package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/speaklexi/backend/internal/models"
	apierrors "github.com/speaklexi/backend/internal/pkg/errors"
	"github.com/speaklexi/backend/internal/repository"
)

// ProgressService aggregates experience, streaks and course progress.
type ProgressService interface {
	GetProfile(ctx context.Context, accountID uuid.UUID) (*ProfileView, error)
	SwitchCourse(ctx context.Context, accountID uuid.UUID, req SwitchCourseRequest) (*models.Profile, error)

	AwardXP(ctx context.Context, accountID uuid.UUID, amount int) (*models.Profile, error)
	UpdateStreak(ctx context.Context, accountID uuid.UUID, today time.Time) (*StreakResult, error)

	StartCourse(ctx context.Context, accountID uuid.UUID, courseID string, totalLessons int) (*models.CourseProgress, error)
	RecordLessonCompletion(ctx context.Context, req LessonCompletionRequest) (*LessonCompletionResult, error)
	ResetCourseProgress(ctx context.Context, accountID uuid.UUID, courseID string) (*models.CourseProgress, error)
}

// ProfileView is an account with its profile and course progress.
type ProfileView struct {
	Account *models.Account          `json:"account"`
	Profile *models.Profile          `json:"profile"`
	Courses []*models.CourseProgress `json:"courses"`
}

// SwitchCourseRequest moves a learner to another language or level.
type SwitchCourseRequest struct {
	Language string `json:"language" validate:"required,max=50"`
	Level    string `json:"level" validate:"required,oneof=A1 A2 B1 B2 C1 C2 a1 a2 b1 b2 c1 c2"`
	// Course defaults to the code derived from language and level.
	Course string `json:"course,omitempty" validate:"max=100"`
}

// StreakResult is returned by UpdateStreak.
type StreakResult struct {
	Profile *models.Profile `json:"profile"`
	Changed bool            `json:"changed"`
}

// LessonCompletionRequest records a finished lesson in a course.
type LessonCompletionRequest struct {
	AccountID uuid.UUID `json:"-"`
	CourseID  string    `json:"-" validate:"required"`
	LessonID  uuid.UUID `json:"lesson_id" validate:"required"`
	Minutes   int       `json:"minutes" validate:"gte=0,lte=1440"`
	Score     *float64  `json:"score,omitempty" validate:"omitempty,gte=0,lte=100"`
}

// LessonCompletionResult is returned by RecordLessonCompletion.
type LessonCompletionResult struct {
	Progress *models.CourseProgress `json:"progress"`
	Profile  *models.Profile        `json:"profile"`
}

type progressService struct {
	store  repository.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewProgressService creates a new progress service.
func NewProgressService(store repository.Store, logger *slog.Logger, opts ...Option) ProgressService {
	o := buildOptions(opts)
	return &progressService{
		store:  store,
		logger: logger.With("service", "progress"),
		now:    o.now,
	}
}

// GetProfile returns the account, its profile and every course it started.
func (s *progressService) GetProfile(ctx context.Context, accountID uuid.UUID) (*ProfileView, error) {
	repos := s.store.Repos()

	account, err := repos.Accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, internal(s.logger, "get_profile", err, "account_id", accountID)
	}
	if account == nil {
		return nil, apierrors.NewNotFoundError("Account")
	}
	profile, err := repos.Profiles.GetByAccountID(ctx, accountID)
	if err != nil {
		return nil, internal(s.logger, "get_profile", err, "account_id", accountID)
	}
	if profile == nil {
		return nil, apierrors.NewNotFoundError("Profile")
	}
	courses, err := repos.Progress.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, internal(s.logger, "get_profile", err, "account_id", accountID)
	}
	if courses == nil {
		courses = []*models.CourseProgress{}
	}
	return &ProfileView{Account: account, Profile: profile, Courses: courses}, nil
}

// lockLearner loads the account and profile with row locks and refuses
// accounts that are not active.
func lockLearner(ctx context.Context, r *repository.Repos, accountID uuid.UUID) (*models.Account, *models.Profile, error) {
	account, err := r.Accounts.GetByIDForUpdate(ctx, accountID)
	if err != nil {
		return nil, nil, err
	}
	if err := requireActive(account); err != nil {
		return nil, nil, err
	}
	profile, err := r.Profiles.GetByAccountIDForUpdate(ctx, accountID)
	if err != nil {
		return nil, nil, err
	}
	if profile == nil {
		return nil, nil, apierrors.NewNotFoundError("Profile")
	}
	return account, profile, nil
}

// SwitchCourse changes the learning language and level. Progress in the
// course being left is reset.
func (s *progressService) SwitchCourse(ctx context.Context, accountID uuid.UUID, req SwitchCourseRequest) (*models.Profile, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	var profile *models.Profile
	err := s.store.WithTx(ctx, func(r *repository.Repos) error {
		var err error
		_, profile, err = lockLearner(ctx, r, accountID)
		if err != nil {
			return err
		}

		previous, err := r.Progress.GetForUpdate(ctx, accountID, profile.CurrentCourse)
		if err != nil {
			return err
		}
		if previous != nil {
			previous.Reset()
			if err := r.Progress.Update(ctx, previous); err != nil {
				return err
			}
		}

		profile.SwitchCourse(strings.TrimSpace(req.Language), req.Level, strings.TrimSpace(req.Course))
		return r.Profiles.Update(ctx, profile)
	})
	if err != nil {
		return nil, internal(s.logger, "switch_course", err, "account_id", accountID)
	}
	return profile, nil
}

// AwardXP adds experience to a student's profile.
func (s *progressService) AwardXP(ctx context.Context, accountID uuid.UUID, amount int) (*models.Profile, error) {
	if amount <= 0 {
		return nil, apierrors.NewValidationError("amount", "amount must be greater than zero")
	}

	var profile *models.Profile
	err := s.store.WithTx(ctx, func(r *repository.Repos) error {
		account, p, err := lockLearner(ctx, r, accountID)
		if err != nil {
			return err
		}
		if account.Role != models.RoleStudent {
			return apierrors.ErrForbidden.WithMessage("Only students earn experience")
		}
		p.AddXP(amount)
		profile = p
		return r.Profiles.Update(ctx, p)
	})
	if err != nil {
		return nil, internal(s.logger, "award_xp", err, "account_id", accountID)
	}
	return profile, nil
}

// UpdateStreak records activity on today's date. A zero today means the
// current date.
func (s *progressService) UpdateStreak(ctx context.Context, accountID uuid.UUID, today time.Time) (*StreakResult, error) {
	if today.IsZero() {
		today = s.now()
	}

	result := &StreakResult{}
	err := s.store.WithTx(ctx, func(r *repository.Repos) error {
		_, profile, err := lockLearner(ctx, r, accountID)
		if err != nil {
			return err
		}
		result.Profile = profile
		result.Changed = profile.RecordActivity(today)
		if !result.Changed {
			return nil
		}
		return r.Profiles.Update(ctx, profile)
	})
	if err != nil {
		return nil, internal(s.logger, "update_streak", err, "account_id", accountID)
	}
	return result, nil
}

// StartCourse creates the progress row for a course. Starting a course
// twice returns the existing row, refreshing its lesson total when one is
// given.
func (s *progressService) StartCourse(ctx context.Context, accountID uuid.UUID, courseID string, totalLessons int) (*models.CourseProgress, error) {
	courseID = strings.TrimSpace(courseID)
	if courseID == "" {
		return nil, apierrors.NewValidationError("course", "course is required")
	}
	if totalLessons < 0 {
		return nil, apierrors.NewValidationError("total_lessons", "total_lessons must not be negative")
	}

	var progress *models.CourseProgress
	err := s.store.WithTx(ctx, func(r *repository.Repos) error {
		account, err := r.Accounts.GetByIDForUpdate(ctx, accountID)
		if err != nil {
			return err
		}
		if err := requireActive(account); err != nil {
			return err
		}

		progress = models.NewCourseProgress(accountID, courseID, totalLessons)
		created, err := r.Progress.Create(ctx, progress)
		if err != nil || created {
			return err
		}

		progress, err = r.Progress.GetForUpdate(ctx, accountID, courseID)
		if err != nil {
			return err
		}
		if progress == nil {
			return apierrors.NewNotFoundError("Course progress")
		}
		if totalLessons > 0 && totalLessons != progress.TotalLessons {
			progress.TotalLessons = totalLessons
			progress.Recompute(s.now())
			return r.Progress.Update(ctx, progress)
		}
		return nil
	})
	if err != nil {
		return nil, internal(s.logger, "start_course", err, "account_id", accountID, "course", courseID)
	}
	return progress, nil
}

// RecordLessonCompletion counts a completed lesson in the course progress,
// adds the study time to the learner's counters and extends the streak.
func (s *progressService) RecordLessonCompletion(ctx context.Context, req LessonCompletionRequest) (*LessonCompletionResult, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	today := s.now()

	result := &LessonCompletionResult{}
	err := s.store.WithTx(ctx, func(r *repository.Repos) error {
		_, profile, err := lockLearner(ctx, r, req.AccountID)
		if err != nil {
			return err
		}

		lesson, err := r.Lessons.GetByID(ctx, req.LessonID)
		if err != nil {
			return err
		}
		if lesson == nil {
			return apierrors.NewNotFoundError("Lesson")
		}

		progress, err := r.Progress.GetForUpdate(ctx, req.AccountID, req.CourseID)
		if err != nil {
			return err
		}
		if progress == nil {
			return apierrors.NewNotFoundError("Course progress")
		}

		progress.RecordLesson(lesson.ID, req.Minutes, req.Score, today)
		if err := r.Progress.Update(ctx, progress); err != nil {
			return err
		}

		if details, ok := profile.Details.(*models.StudentDetails); ok {
			details.LessonsCompleted++
			details.StudyMinutes += req.Minutes
		}
		profile.RecordActivity(today)
		if err := r.Profiles.Update(ctx, profile); err != nil {
			return err
		}

		result.Progress = progress
		result.Profile = profile
		return nil
	})
	if err != nil {
		return nil, internal(s.logger, "record_lesson_completion", err, "account_id", req.AccountID, "course", req.CourseID)
	}
	return result, nil
}

// ResetCourseProgress zeroes the learner's progress in a course.
func (s *progressService) ResetCourseProgress(ctx context.Context, accountID uuid.UUID, courseID string) (*models.CourseProgress, error) {
	var progress *models.CourseProgress
	err := s.store.WithTx(ctx, func(r *repository.Repos) error {
		account, err := r.Accounts.GetByIDForUpdate(ctx, accountID)
		if err != nil {
			return err
		}
		if err := requireActive(account); err != nil {
			return err
		}
		progress, err = r.Progress.GetForUpdate(ctx, accountID, courseID)
		if err != nil {
			return err
		}
		if progress == nil {
			return apierrors.NewNotFoundError("Course progress")
		}
		progress.Reset()
		return r.Progress.Update(ctx, progress)
	})
	if err != nil {
		return nil, internal(s.logger, "reset_course_progress", err, "account_id", accountID, "course", courseID)
	}
	return progress, nil
}
