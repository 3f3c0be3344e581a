package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/speaklexi/backend/internal/middleware"
	"github.com/speaklexi/backend/internal/pkg/response"
	"github.com/speaklexi/backend/internal/service"
)

// ProfileHandler handles the caller's profile and learning progress.
type ProfileHandler struct {
	accounts service.AccountService
	progress service.ProgressService
}

// NewProfileHandler creates a new profile handler.
func NewProfileHandler(accounts service.AccountService, progress service.ProgressService) *ProfileHandler {
	return &ProfileHandler{accounts: accounts, progress: progress}
}

// ProfileRoutes returns a chi router for /v1/profile.
func (h *ProfileHandler) ProfileRoutes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.Get)
	r.Patch("/", h.Update)
	r.Post("/course", h.SwitchCourse)

	return r
}

// ProgressRoutes returns a chi router for /v1/progress.
func (h *ProfileHandler) ProgressRoutes() chi.Router {
	r := chi.NewRouter()

	r.Post("/xp", h.AwardXP)
	r.Post("/streak", h.UpdateStreak)

	r.Route("/courses/{course}", func(r chi.Router) {
		r.Post("/start", h.StartCourse)
		r.Post("/lessons", h.RecordLesson)
		r.Post("/reset", h.ResetCourse)
	})

	return r
}

// Get handles GET /v1/profile
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	view, err := h.progress.GetProfile(r.Context(), actor.AccountID)
	if err != nil {
		response.Error(w, err)
		return
	}

	response.OK(w, view)
}

// Update handles PATCH /v1/profile
func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req service.UpdateAccountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		response.Error(w, err)
		return
	}

	account, err := h.accounts.UpdateAccount(r.Context(), actor.AccountID, req)
	if err != nil {
		response.Error(w, err)
		return
	}

	response.OK(w, account)
}

// SwitchCourse handles POST /v1/profile/course
func (h *ProfileHandler) SwitchCourse(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req service.SwitchCourseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		response.Error(w, err)
		return
	}

	profile, err := h.progress.SwitchCourse(r.Context(), actor.AccountID, req)
	if err != nil {
		response.Error(w, err)
		return
	}

	response.OK(w, profile)
}

// AwardXPHTTPRequest is the HTTP request body for awarding experience.
type AwardXPHTTPRequest struct {
	Amount int `json:"amount"`
}

// AwardXP handles POST /v1/progress/xp
func (h *ProfileHandler) AwardXP(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req AwardXPHTTPRequest
	if err := decodeJSON(w, r, &req); err != nil {
		response.Error(w, err)
		return
	}

	profile, err := h.progress.AwardXP(r.Context(), actor.AccountID, req.Amount)
	if err != nil {
		response.Error(w, err)
		return
	}
	middleware.AddXPAwarded(req.Amount)

	response.OK(w, profile)
}

// StreakHTTPRequest is the HTTP request body for a streak update. Date is
// the learner's local calendar day (YYYY-MM-DD); empty means today.
type StreakHTTPRequest struct {
	Date string `json:"date,omitempty"`
}

// UpdateStreak handles POST /v1/progress/streak
func (h *ProfileHandler) UpdateStreak(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req StreakHTTPRequest
	if err := decodeJSON(w, r, &req); err != nil {
		response.Error(w, err)
		return
	}

	var today time.Time
	if req.Date != "" {
		d, err := time.Parse(time.DateOnly, req.Date)
		if err != nil {
			response.ValidationError(w, "date", "date must be formatted as YYYY-MM-DD")
			return
		}
		today = d
	}

	result, err := h.progress.UpdateStreak(r.Context(), actor.AccountID, today)
	if err != nil {
		response.Error(w, err)
		return
	}

	response.OK(w, result)
}

// StartCourseHTTPRequest is the HTTP request body for starting a course.
type StartCourseHTTPRequest struct {
	TotalLessons int `json:"total_lessons"`
}

// StartCourse handles POST /v1/progress/courses/{course}/start
func (h *ProfileHandler) StartCourse(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req StartCourseHTTPRequest
	if err := decodeJSON(w, r, &req); err != nil {
		response.Error(w, err)
		return
	}

	progress, err := h.progress.StartCourse(r.Context(), actor.AccountID, chi.URLParam(r, "course"), req.TotalLessons)
	if err != nil {
		response.Error(w, err)
		return
	}

	response.OK(w, progress)
}

// RecordLesson handles POST /v1/progress/courses/{course}/lessons
func (h *ProfileHandler) RecordLesson(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req service.LessonCompletionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		response.Error(w, err)
		return
	}
	req.AccountID = actor.AccountID
	req.CourseID = strings.TrimSpace(chi.URLParam(r, "course"))

	result, err := h.progress.RecordLessonCompletion(r.Context(), req)
	if err != nil {
		response.Error(w, err)
		return
	}
	middleware.IncrementLessonsCompleted()

	response.OK(w, result)
}

// ResetCourse handles POST /v1/progress/courses/{course}/reset
func (h *ProfileHandler) ResetCourse(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	progress, err := h.progress.ResetCourseProgress(r.Context(), actor.AccountID, chi.URLParam(r, "course"))
	if err != nil {
		response.Error(w, err)
		return
	}

	response.OK(w, progress)
}
