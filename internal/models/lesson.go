package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// LessonState is the publication state of a lesson.
type LessonState string

const (
	LessonDraft     LessonState = "draft"
	LessonPublished LessonState = "published"
	LessonArchived  LessonState = "archived"
)

// Valid returns true if the state is valid
func (s LessonState) Valid() bool {
	switch s {
	case LessonDraft, LessonPublished, LessonArchived:
		return true
	default:
		return false
	}
}

// Difficulty is a lesson's difficulty level.
type Difficulty string

const (
	DifficultyBeginner     Difficulty = "beginner"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
)

// Valid returns true if the difficulty is valid
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyBeginner, DifficultyIntermediate, DifficultyAdvanced:
		return true
	default:
		return false
	}
}

// Lesson is an ordered content unit of a course.
type Lesson struct {
	ID              uuid.UUID       `json:"id" db:"id"`
	Title           string          `json:"title" db:"title"`
	Description     string          `json:"description,omitempty" db:"description"`
	Content         json.RawMessage `json:"content" db:"content"`
	Difficulty      Difficulty      `json:"difficulty" db:"difficulty"`
	Language        string          `json:"language" db:"language"`
	Category        string          `json:"category,omitempty" db:"category"`
	Tags            []string        `json:"tags" db:"tags"`
	Position        int             `json:"position" db:"position"`
	Prerequisites   []uuid.UUID     `json:"prerequisites" db:"prerequisites"`
	DurationMinutes int             `json:"duration_minutes" db:"duration_minutes"`
	XPReward        int             `json:"xp_reward" db:"xp_reward"`
	State           LessonState     `json:"state" db:"state"`
	AuthorID        uuid.UUID       `json:"author_id" db:"author_id"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`

	Activities []*Activity   `json:"activities,omitempty" db:"-"`
	Multimedia []*Multimedia `json:"multimedia,omitempty" db:"-"`
}

// Publish moves a draft lesson to published. It returns false for lessons in
// any other state.
func (l *Lesson) Publish() bool {
	if l.State != LessonDraft {
		return false
	}
	l.State = LessonPublished
	return true
}

// Archive marks the lesson archived from any state.
func (l *Lesson) Archive() {
	l.State = LessonArchived
}

// PrerequisitesMet reports whether every prerequisite lesson is in completed.
func (l *Lesson) PrerequisitesMet(completed []uuid.UUID) bool {
	done := make(map[uuid.UUID]struct{}, len(completed))
	for _, id := range completed {
		done[id] = struct{}{}
	}
	for _, req := range l.Prerequisites {
		if _, ok := done[req]; !ok {
			return false
		}
	}
	return true
}

// ActivityType is the closed set of gradable activity kinds.
type ActivityType string

const (
	ActivityMultipleChoice ActivityType = "multiple_choice"
	ActivityTrueFalse      ActivityType = "true_false"
	ActivityFillBlank      ActivityType = "fill_blank"
	ActivityMatching       ActivityType = "matching"
	ActivityWordOrder      ActivityType = "word_order"
	ActivityTranslation    ActivityType = "translation"
	ActivityListenRepeat   ActivityType = "listen_repeat"
)

// Valid returns true if the activity type is known.
func (t ActivityType) Valid() bool {
	switch t {
	case ActivityMultipleChoice, ActivityTrueFalse, ActivityFillBlank, ActivityMatching,
		ActivityWordOrder, ActivityTranslation, ActivityListenRepeat:
		return true
	default:
		return false
	}
}

// Activity is a single gradable question within a lesson.
//
// CorrectAnswer is never serialized; use ActivityView to expose it to
// privileged callers.
type Activity struct {
	ID               uuid.UUID         `json:"id" db:"id"`
	LessonID         uuid.UUID         `json:"lesson_id" db:"lesson_id"`
	Type             ActivityType      `json:"type" db:"type"`
	Prompt           string            `json:"prompt" db:"prompt"`
	Instructions     string            `json:"instructions,omitempty" db:"instructions"`
	Options          json.RawMessage   `json:"options,omitempty" db:"options"`
	CorrectAnswer    json.RawMessage   `json:"-" db:"correct_answer"`
	Feedback         map[string]string `json:"feedback,omitempty" db:"feedback"`
	Hint             string            `json:"hint,omitempty" db:"hint"`
	Points           int               `json:"points" db:"points"`
	Position         int               `json:"position" db:"position"`
	TimeLimitSeconds *int              `json:"time_limit_seconds,omitempty" db:"time_limit_seconds"`
	MultimediaID     *uuid.UUID        `json:"multimedia_id,omitempty" db:"multimedia_id"`
	CreatedAt        time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at" db:"updated_at"`
}

// ActivityView is the serialized form of an activity. CorrectAnswer is only
// populated when the caller asked for it and was allowed to.
type ActivityView struct {
	*Activity
	CorrectAnswer json.RawMessage `json:"correct_answer,omitempty"`
}

// View returns the serialized form, with the answer only when includeAnswer.
func (a *Activity) View(includeAnswer bool) ActivityView {
	v := ActivityView{Activity: a}
	if includeAnswer {
		v.CorrectAnswer = a.CorrectAnswer
	}
	return v
}
