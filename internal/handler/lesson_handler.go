package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/speaklexi/backend/internal/middleware"
	"github.com/speaklexi/backend/internal/models"
	apierrors "github.com/speaklexi/backend/internal/pkg/errors"
	"github.com/speaklexi/backend/internal/pkg/response"
	"github.com/speaklexi/backend/internal/repository"
	"github.com/speaklexi/backend/internal/service"
)

// LessonHandler handles lessons, their activities and answer grading.
type LessonHandler struct {
	lessons service.LessonService
	grading service.GradingService
}

// NewLessonHandler creates a new lesson handler.
func NewLessonHandler(lessons service.LessonService, grading service.GradingService) *LessonHandler {
	return &LessonHandler{lessons: lessons, grading: grading}
}

// Routes returns a chi router with lesson routes.
func (h *LessonHandler) Routes() chi.Router {
	r := chi.NewRouter()
	authors := middleware.RequireRole(models.RoleTeacher, models.RoleAdmin)

	r.Get("/", h.List)
	r.With(authors).Post("/", h.Create)

	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.With(authors).Delete("/", h.Delete)
		r.With(authors).Post("/publish", h.Publish)
		r.With(authors).Post("/archive", h.Archive)
		r.Post("/prerequisites", h.CheckPrerequisites)

		r.With(authors).Post("/activities", h.AddActivity)
		r.Get("/activities/{aid}", h.GetActivity)
		r.With(authors).Delete("/activities/{aid}", h.DeleteActivity)
		r.Post("/activities/{aid}/grade", h.Grade)

		r.With(authors).Post("/multimedia/{mid}", h.AttachMultimedia)
	})

	return r
}

// List handles GET /v1/lessons
func (h *LessonHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	filter := repository.LessonFilter{
		Language:   q.Get("language"),
		Difficulty: models.Difficulty(q.Get("difficulty")),
		State:      models.LessonState(q.Get("state")),
		Category:   q.Get("category"),
	}
	if filter.Difficulty != "" && !filter.Difficulty.Valid() {
		response.ValidationError(w, "difficulty", "must be one of: beginner intermediate advanced")
		return
	}
	if filter.State != "" && !filter.State.Valid() {
		response.ValidationError(w, "state", "must be one of: draft published archived")
		return
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			response.ValidationError(w, "limit", "must be a non-negative integer")
			return
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			response.ValidationError(w, "offset", "must be a non-negative integer")
			return
		}
		filter.Offset = n
	}

	lessons, err := h.lessons.ListLessons(r.Context(), actor, filter)
	if err != nil {
		response.Error(w, err)
		return
	}

	response.JSONWithMeta(w, http.StatusOK, lessons, &response.Meta{Total: len(lessons)})
}

// Create handles POST /v1/lessons
func (h *LessonHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req service.CreateLessonRequest
	if err := decodeJSON(w, r, &req); err != nil {
		response.Error(w, err)
		return
	}

	lesson, err := h.lessons.CreateLesson(r.Context(), actor, req)
	if err != nil {
		response.Error(w, err)
		return
	}

	response.Created(w, lesson)
}

// Get handles GET /v1/lessons/{id}
func (h *LessonHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		response.Error(w, err)
		return
	}

	detail, err := h.lessons.GetLesson(r.Context(), actor, id)
	if err != nil {
		response.Error(w, err)
		return
	}

	response.OK(w, detail)
}

// Delete handles DELETE /v1/lessons/{id}
func (h *LessonHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		response.Error(w, err)
		return
	}

	if err := h.lessons.DeleteLesson(r.Context(), actor, id); err != nil {
		response.Error(w, err)
		return
	}

	response.NoContent(w)
}

// Publish handles POST /v1/lessons/{id}/publish
func (h *LessonHandler) Publish(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.lessons.PublishLesson)
}

// Archive handles POST /v1/lessons/{id}/archive
func (h *LessonHandler) Archive(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.lessons.ArchiveLesson)
}

func (h *LessonHandler) transition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, actor service.Actor, id uuid.UUID) (*models.Lesson, error)) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		response.Error(w, err)
		return
	}

	lesson, err := fn(r.Context(), actor, id)
	if err != nil {
		response.Error(w, err)
		return
	}

	response.OK(w, lesson)
}

// PrerequisitesHTTPRequest lists the lessons the learner has completed.
type PrerequisitesHTTPRequest struct {
	Completed []uuid.UUID `json:"completed"`
}

// CheckPrerequisites handles POST /v1/lessons/{id}/prerequisites
func (h *LessonHandler) CheckPrerequisites(w http.ResponseWriter, r *http.Request) {
	if _, ok := actorFrom(w, r); !ok {
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		response.Error(w, err)
		return
	}

	var req PrerequisitesHTTPRequest
	if err := decodeJSON(w, r, &req); err != nil {
		response.Error(w, err)
		return
	}

	met, err := h.lessons.CheckPrerequisites(r.Context(), id, req.Completed)
	if err != nil {
		response.Error(w, err)
		return
	}

	response.OK(w, map[string]bool{"satisfied": met})
}

// AddActivity handles POST /v1/lessons/{id}/activities
func (h *LessonHandler) AddActivity(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		response.Error(w, err)
		return
	}

	var req service.AddActivityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		response.Error(w, err)
		return
	}

	activity, err := h.lessons.AddActivity(r.Context(), actor, id, req)
	if err != nil {
		response.Error(w, err)
		return
	}

	response.Created(w, activity)
}

// GetActivity handles GET /v1/lessons/{id}/activities/{aid}
func (h *LessonHandler) GetActivity(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	lessonID, err := pathUUID(r, "id")
	if err != nil {
		response.Error(w, err)
		return
	}
	activityID, err := pathUUID(r, "aid")
	if err != nil {
		response.Error(w, err)
		return
	}

	activity, err := h.lessons.GetActivity(r.Context(), actor, activityID)
	if err != nil {
		response.Error(w, err)
		return
	}
	if activity.LessonID != lessonID {
		response.Error(w, apierrors.NewNotFoundError("Activity"))
		return
	}

	response.OK(w, activity)
}

// DeleteActivity handles DELETE /v1/lessons/{id}/activities/{aid}
func (h *LessonHandler) DeleteActivity(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	lessonID, err := pathUUID(r, "id")
	if err != nil {
		response.Error(w, err)
		return
	}
	activityID, err := pathUUID(r, "aid")
	if err != nil {
		response.Error(w, err)
		return
	}

	if err := h.lessons.DeleteActivity(r.Context(), actor, lessonID, activityID); err != nil {
		response.Error(w, err)
		return
	}

	response.NoContent(w)
}

// Grade handles POST /v1/lessons/{id}/activities/{aid}/grade
func (h *LessonHandler) Grade(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	lessonID, err := pathUUID(r, "id")
	if err != nil {
		response.Error(w, err)
		return
	}
	activityID, err := pathUUID(r, "aid")
	if err != nil {
		response.Error(w, err)
		return
	}

	var req service.GradeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		response.Error(w, err)
		return
	}
	req.Actor = actor
	req.LessonID = lessonID
	req.ActivityID = activityID

	result, err := h.grading.GradeAnswer(r.Context(), req)
	if err != nil {
		response.Error(w, err)
		return
	}
	middleware.RecordGrade(result.IsCorrect)

	response.OK(w, result)
}

// AttachMultimedia handles POST /v1/lessons/{id}/multimedia/{mid}
func (h *LessonHandler) AttachMultimedia(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	lessonID, err := pathUUID(r, "id")
	if err != nil {
		response.Error(w, err)
		return
	}
	mediaID, err := pathUUID(r, "mid")
	if err != nil {
		response.Error(w, err)
		return
	}

	media, err := h.lessons.AttachMultimedia(r.Context(), actor, lessonID, mediaID)
	if err != nil {
		response.Error(w, err)
		return
	}

	response.OK(w, media)
}
