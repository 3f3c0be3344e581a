package models

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// ProgressState is the state of a learner in a course.
type ProgressState string

const (
	ProgressNotStarted ProgressState = "not_started"
	ProgressInProgress ProgressState = "in_progress"
	ProgressCompleted  ProgressState = "completed"
	ProgressAbandoned  ProgressState = "abandoned"
)

// CourseProgress tracks one account's advance through one course.
type CourseProgress struct {
	ID               uuid.UUID     `json:"id" db:"id"`
	AccountID        uuid.UUID     `json:"account_id" db:"account_id"`
	CourseID         string        `json:"course_id" db:"course_id"`
	CompletedLessons int           `json:"completed_lessons" db:"completed_lessons"`
	TotalLessons     int           `json:"total_lessons" db:"total_lessons"`
	Percentage       float64       `json:"percentage" db:"percentage"`
	State            ProgressState `json:"state" db:"state"`
	TimeSpentMinutes int           `json:"time_spent_minutes" db:"time_spent_minutes"`
	// ScoredLessons counts the completed lessons that carried a score.
	ScoredLessons int `json:"-" db:"scored_lessons"`
	// AverageScore is nil until the first scored lesson.
	AverageScore *float64   `json:"average_score,omitempty" db:"average_score"`
	LastLessonID *uuid.UUID `json:"last_lesson_id,omitempty" db:"last_lesson_id"`
	StartedOn    *time.Time `json:"started_on,omitempty" db:"started_on"`
	CompletedOn  *time.Time `json:"completed_on,omitempty" db:"completed_on"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
}

// NewCourseProgress returns an empty progress row for a course.
func NewCourseProgress(accountID uuid.UUID, courseID string, totalLessons int) *CourseProgress {
	return &CourseProgress{
		ID:           uuid.New(),
		AccountID:    accountID,
		CourseID:     courseID,
		TotalLessons: totalLessons,
		State:        ProgressNotStarted,
	}
}

// RecordLesson counts a completed lesson, its time and its score, then
// recomputes the percentage. The score joins a running average over the
// scored lessons only.
func (p *CourseProgress) RecordLesson(lessonID uuid.UUID, minutes int, score *float64, today time.Time) {
	p.CompletedLessons++
	p.TimeSpentMinutes += minutes
	if score != nil {
		p.ScoredLessons++
		n := float64(p.ScoredLessons)
		if p.AverageScore == nil {
			avg := *score
			p.AverageScore = &avg
		} else {
			avg := (*p.AverageScore*(n-1) + *score) / n
			p.AverageScore = &avg
		}
	}
	p.LastLessonID = &lessonID
	if p.StartedOn == nil {
		day := DateOf(today)
		p.StartedOn = &day
	}
	p.Recompute(today)
}

// Recompute derives the percentage and state from the lesson counts. The
// start and completion dates are stamped the first time only. With no known
// total the percentage and state are left unchanged.
func (p *CourseProgress) Recompute(today time.Time) {
	if p.TotalLessons <= 0 {
		return
	}
	completed := min(p.CompletedLessons, p.TotalLessons)
	p.Percentage = math.Round(float64(completed)/float64(p.TotalLessons)*10000) / 100

	day := DateOf(today)
	switch {
	case p.Percentage == 0:
		p.State = ProgressNotStarted
	case p.Percentage >= 100:
		p.State = ProgressCompleted
		if p.CompletedOn == nil {
			p.CompletedOn = &day
		}
	default:
		p.State = ProgressInProgress
		if p.StartedOn == nil {
			p.StartedOn = &day
		}
	}
}

// Reset zeroes every counter and date. The total lesson count is kept.
func (p *CourseProgress) Reset() {
	p.CompletedLessons = 0
	p.Percentage = 0
	p.State = ProgressNotStarted
	p.TimeSpentMinutes = 0
	p.ScoredLessons = 0
	p.AverageScore = nil
	p.LastLessonID = nil
	p.StartedOn = nil
	p.CompletedOn = nil
}
