package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/speaklexi/backend/internal/grading"
	"github.com/speaklexi/backend/internal/middleware"
	"github.com/speaklexi/backend/internal/models"
	"github.com/speaklexi/backend/internal/repository"
	"github.com/speaklexi/backend/internal/service"
)

// mockAccountService is a mock implementation of AccountService for testing.
type mockAccountService struct {
	registerFunc     func(ctx context.Context, req service.RegisterRequest) (*service.RegisterResult, error)
	verifyFunc       func(ctx context.Context, email, code string) (*models.Account, error)
	resendFunc       func(ctx context.Context, email string) (*service.ResendResult, error)
	authenticateFunc func(ctx context.Context, email, password string) (*service.AuthResult, error)
	getFunc          func(ctx context.Context, id uuid.UUID) (*models.Account, error)
	updateFunc       func(ctx context.Context, id uuid.UUID, req service.UpdateAccountRequest) (*models.Account, error)
	deactivateFunc   func(ctx context.Context, id uuid.UUID, password string) (*service.LifecycleResult, error)
	reactivateFunc   func(ctx context.Context, email, password string) (*service.LifecycleResult, error)
	purgeFunc        func(ctx context.Context, id uuid.UUID) error
}

func (m *mockAccountService) Register(ctx context.Context, req service.RegisterRequest) (*service.RegisterResult, error) {
	if m.registerFunc != nil {
		return m.registerFunc(ctx, req)
	}
	return nil, nil
}

func (m *mockAccountService) VerifyEmail(ctx context.Context, email, code string) (*models.Account, error) {
	if m.verifyFunc != nil {
		return m.verifyFunc(ctx, email, code)
	}
	return nil, nil
}

func (m *mockAccountService) ResendCode(ctx context.Context, email string) (*service.ResendResult, error) {
	if m.resendFunc != nil {
		return m.resendFunc(ctx, email)
	}
	return nil, nil
}

func (m *mockAccountService) Authenticate(ctx context.Context, email, password string) (*service.AuthResult, error) {
	if m.authenticateFunc != nil {
		return m.authenticateFunc(ctx, email, password)
	}
	return nil, nil
}

func (m *mockAccountService) Get(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	if m.getFunc != nil {
		return m.getFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockAccountService) UpdateAccount(ctx context.Context, id uuid.UUID, req service.UpdateAccountRequest) (*models.Account, error) {
	if m.updateFunc != nil {
		return m.updateFunc(ctx, id, req)
	}
	return nil, nil
}

func (m *mockAccountService) Deactivate(ctx context.Context, id uuid.UUID, password string) (*service.LifecycleResult, error) {
	if m.deactivateFunc != nil {
		return m.deactivateFunc(ctx, id, password)
	}
	return nil, nil
}

func (m *mockAccountService) Reactivate(ctx context.Context, email, password string) (*service.LifecycleResult, error) {
	if m.reactivateFunc != nil {
		return m.reactivateFunc(ctx, email, password)
	}
	return nil, nil
}

func (m *mockAccountService) Purge(ctx context.Context, id uuid.UUID) error {
	if m.purgeFunc != nil {
		return m.purgeFunc(ctx, id)
	}
	return nil
}

func (m *mockAccountService) PurgeExpired(ctx context.Context) (int, error) {
	return 0, nil
}

// mockRecoveryService is a mock implementation of RecoveryService for testing.
type mockRecoveryService struct {
	requestFunc  func(ctx context.Context, email string) (*service.ResetRequested, error)
	validateFunc func(ctx context.Context, token string) (*service.TokenStatus, error)
	resetFunc    func(ctx context.Context, token, password string) error
}

func (m *mockRecoveryService) RequestPasswordReset(ctx context.Context, email string) (*service.ResetRequested, error) {
	if m.requestFunc != nil {
		return m.requestFunc(ctx, email)
	}
	return nil, nil
}

func (m *mockRecoveryService) ValidateResetToken(ctx context.Context, token string) (*service.TokenStatus, error) {
	if m.validateFunc != nil {
		return m.validateFunc(ctx, token)
	}
	return nil, nil
}

func (m *mockRecoveryService) ResetPassword(ctx context.Context, token, password string) error {
	if m.resetFunc != nil {
		return m.resetFunc(ctx, token, password)
	}
	return nil
}

// mockProgressService is a mock implementation of ProgressService for testing.
type mockProgressService struct {
	getProfileFunc   func(ctx context.Context, id uuid.UUID) (*service.ProfileView, error)
	switchCourseFunc func(ctx context.Context, id uuid.UUID, req service.SwitchCourseRequest) (*models.Profile, error)
	awardXPFunc      func(ctx context.Context, id uuid.UUID, amount int) (*models.Profile, error)
	streakFunc       func(ctx context.Context, id uuid.UUID, today time.Time) (*service.StreakResult, error)
	startFunc        func(ctx context.Context, id uuid.UUID, course string, total int) (*models.CourseProgress, error)
	recordFunc       func(ctx context.Context, req service.LessonCompletionRequest) (*service.LessonCompletionResult, error)
	resetFunc        func(ctx context.Context, id uuid.UUID, course string) (*models.CourseProgress, error)
}

func (m *mockProgressService) GetProfile(ctx context.Context, id uuid.UUID) (*service.ProfileView, error) {
	if m.getProfileFunc != nil {
		return m.getProfileFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockProgressService) SwitchCourse(ctx context.Context, id uuid.UUID, req service.SwitchCourseRequest) (*models.Profile, error) {
	if m.switchCourseFunc != nil {
		return m.switchCourseFunc(ctx, id, req)
	}
	return nil, nil
}

func (m *mockProgressService) AwardXP(ctx context.Context, id uuid.UUID, amount int) (*models.Profile, error) {
	if m.awardXPFunc != nil {
		return m.awardXPFunc(ctx, id, amount)
	}
	return nil, nil
}

func (m *mockProgressService) UpdateStreak(ctx context.Context, id uuid.UUID, today time.Time) (*service.StreakResult, error) {
	if m.streakFunc != nil {
		return m.streakFunc(ctx, id, today)
	}
	return nil, nil
}

func (m *mockProgressService) StartCourse(ctx context.Context, id uuid.UUID, course string, total int) (*models.CourseProgress, error) {
	if m.startFunc != nil {
		return m.startFunc(ctx, id, course, total)
	}
	return nil, nil
}

func (m *mockProgressService) RecordLessonCompletion(ctx context.Context, req service.LessonCompletionRequest) (*service.LessonCompletionResult, error) {
	if m.recordFunc != nil {
		return m.recordFunc(ctx, req)
	}
	return &service.LessonCompletionResult{}, nil
}

func (m *mockProgressService) ResetCourseProgress(ctx context.Context, id uuid.UUID, course string) (*models.CourseProgress, error) {
	if m.resetFunc != nil {
		return m.resetFunc(ctx, id, course)
	}
	return nil, nil
}

// mockLessonService is a mock implementation of LessonService for testing.
type mockLessonService struct {
	createFunc        func(ctx context.Context, actor service.Actor, req service.CreateLessonRequest) (*models.Lesson, error)
	getFunc           func(ctx context.Context, actor service.Actor, id uuid.UUID) (*service.LessonDetail, error)
	listFunc          func(ctx context.Context, actor service.Actor, filter repository.LessonFilter) ([]*models.Lesson, error)
	publishFunc       func(ctx context.Context, actor service.Actor, id uuid.UUID) (*models.Lesson, error)
	deleteFunc        func(ctx context.Context, actor service.Actor, id uuid.UUID) error
	getActivityFunc   func(ctx context.Context, actor service.Actor, id uuid.UUID) (*models.ActivityView, error)
	attachFunc        func(ctx context.Context, actor service.Actor, lessonID, mediaID uuid.UUID) (*models.Multimedia, error)
	prerequisitesFunc func(ctx context.Context, lessonID uuid.UUID, completed []uuid.UUID) (bool, error)
}

func (m *mockLessonService) CreateLesson(ctx context.Context, actor service.Actor, req service.CreateLessonRequest) (*models.Lesson, error) {
	if m.createFunc != nil {
		return m.createFunc(ctx, actor, req)
	}
	return nil, nil
}

func (m *mockLessonService) GetLesson(ctx context.Context, actor service.Actor, id uuid.UUID) (*service.LessonDetail, error) {
	if m.getFunc != nil {
		return m.getFunc(ctx, actor, id)
	}
	return nil, nil
}

func (m *mockLessonService) ListLessons(ctx context.Context, actor service.Actor, filter repository.LessonFilter) ([]*models.Lesson, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, actor, filter)
	}
	return nil, nil
}

func (m *mockLessonService) PublishLesson(ctx context.Context, actor service.Actor, id uuid.UUID) (*models.Lesson, error) {
	if m.publishFunc != nil {
		return m.publishFunc(ctx, actor, id)
	}
	return nil, nil
}

func (m *mockLessonService) ArchiveLesson(ctx context.Context, actor service.Actor, id uuid.UUID) (*models.Lesson, error) {
	return nil, nil
}

func (m *mockLessonService) DeleteLesson(ctx context.Context, actor service.Actor, id uuid.UUID) error {
	if m.deleteFunc != nil {
		return m.deleteFunc(ctx, actor, id)
	}
	return nil
}

func (m *mockLessonService) AddActivity(ctx context.Context, actor service.Actor, lessonID uuid.UUID, req service.AddActivityRequest) (*models.ActivityView, error) {
	return nil, nil
}

func (m *mockLessonService) GetActivity(ctx context.Context, actor service.Actor, id uuid.UUID) (*models.ActivityView, error) {
	if m.getActivityFunc != nil {
		return m.getActivityFunc(ctx, actor, id)
	}
	return nil, nil
}

func (m *mockLessonService) DeleteActivity(ctx context.Context, actor service.Actor, lessonID, activityID uuid.UUID) error {
	return nil
}

func (m *mockLessonService) AttachMultimedia(ctx context.Context, actor service.Actor, lessonID, mediaID uuid.UUID) (*models.Multimedia, error) {
	if m.attachFunc != nil {
		return m.attachFunc(ctx, actor, lessonID, mediaID)
	}
	return nil, nil
}

func (m *mockLessonService) CheckPrerequisites(ctx context.Context, lessonID uuid.UUID, completed []uuid.UUID) (bool, error) {
	if m.prerequisitesFunc != nil {
		return m.prerequisitesFunc(ctx, lessonID, completed)
	}
	return true, nil
}

// mockGradingService is a mock implementation of GradingService for testing.
type mockGradingService struct {
	gradeFunc func(ctx context.Context, req service.GradeRequest) (*grading.Result, error)
}

func (m *mockGradingService) GradeAnswer(ctx context.Context, req service.GradeRequest) (*grading.Result, error) {
	if m.gradeFunc != nil {
		return m.gradeFunc(ctx, req)
	}
	return &grading.Result{}, nil
}

// mockMultimediaService is a mock implementation of MultimediaService for testing.
type mockMultimediaService struct {
	uploadFunc func(ctx context.Context, actor service.Actor, req service.UploadRequest) (*models.Multimedia, error)
	getFunc    func(ctx context.Context, id uuid.UUID) (*models.Multimedia, error)
	deleteFunc func(ctx context.Context, actor service.Actor, id uuid.UUID) error
}

func (m *mockMultimediaService) Upload(ctx context.Context, actor service.Actor, req service.UploadRequest) (*models.Multimedia, error) {
	if m.uploadFunc != nil {
		return m.uploadFunc(ctx, actor, req)
	}
	return nil, nil
}

func (m *mockMultimediaService) Get(ctx context.Context, id uuid.UUID) (*models.Multimedia, error) {
	if m.getFunc != nil {
		return m.getFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockMultimediaService) Delete(ctx context.Context, actor service.Actor, id uuid.UUID) error {
	if m.deleteFunc != nil {
		return m.deleteFunc(ctx, actor, id)
	}
	return nil
}

// newTestRequest builds a JSON request, attaching actor to the context when
// it is non-nil.
func newTestRequest(t *testing.T, method, path string, body any, actor *service.Actor) *http.Request {
	t.Helper()

	var reqBody []byte
	if body != nil {
		var err error
		reqBody, err = json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal request body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	if actor != nil {
		req = req.WithContext(middleware.WithActor(req.Context(), *actor))
	}
	return req
}

// envelope is the decoded response body.
type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
	Meta *struct {
		Total int `json:"total"`
	} `json:"meta"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return env
}

func student() *service.Actor {
	return &service.Actor{AccountID: uuid.New(), Role: models.RoleStudent}
}

func teacher() *service.Actor {
	return &service.Actor{AccountID: uuid.New(), Role: models.RoleTeacher}
}

func admin() *service.Actor {
	return &service.Actor{AccountID: uuid.New(), Role: models.RoleAdmin}
}
