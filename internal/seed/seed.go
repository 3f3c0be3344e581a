// Package seed loads lesson catalogs from YAML files.
//
// A seed file lists lessons with their activities:
//
//	lessons:
//	  - title: Saludos
//	    difficulty: beginner
//	    language: Inglés
//	    duration_minutes: 15
//	    xp_reward: 20
//	    publish: true
//	    activities:
//	      - type: multiple_choice
//	        prompt: "How do you say 'hola'?"
//	        options: [hello, bye]
//	        correct_answer: hello
//	        points: 10
package seed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/speaklexi/backend/internal/models"
	"github.com/speaklexi/backend/internal/service"
)

// File is a parsed seed file.
type File struct {
	Lessons []Lesson `yaml:"lessons"`
}

// Lesson is one lesson entry.
type Lesson struct {
	Title           string     `yaml:"title"`
	Description     string     `yaml:"description"`
	Difficulty      string     `yaml:"difficulty"`
	Language        string     `yaml:"language"`
	Category        string     `yaml:"category"`
	Tags            []string   `yaml:"tags"`
	Position        int        `yaml:"position"`
	DurationMinutes int        `yaml:"duration_minutes"`
	XPReward        int        `yaml:"xp_reward"`
	Content         any        `yaml:"content"`
	Publish         bool       `yaml:"publish"`
	Activities      []Activity `yaml:"activities"`
}

// Activity is one activity entry.
type Activity struct {
	Type             string            `yaml:"type"`
	Prompt           string            `yaml:"prompt"`
	Instructions     string            `yaml:"instructions"`
	Options          any               `yaml:"options"`
	CorrectAnswer    any               `yaml:"correct_answer"`
	Feedback         map[string]string `yaml:"feedback"`
	Hint             string            `yaml:"hint"`
	Points           int               `yaml:"points"`
	TimeLimitSeconds *int              `yaml:"time_limit_seconds"`
}

// Parse decodes a seed file. Unknown keys are rejected.
func Parse(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("seed file is empty")
		}
		return nil, fmt.Errorf("decode seed file: %w", err)
	}
	if len(f.Lessons) == 0 {
		return nil, errors.New("seed file has no lessons")
	}
	return &f, nil
}

// LessonRequest converts the entry into a create request.
func (l Lesson) LessonRequest() (service.CreateLessonRequest, error) {
	content, err := toJSON(l.Content)
	if err != nil {
		return service.CreateLessonRequest{}, fmt.Errorf("lesson %q content: %w", l.Title, err)
	}
	return service.CreateLessonRequest{
		Title:           l.Title,
		Description:     l.Description,
		Content:         content,
		Difficulty:      l.Difficulty,
		Language:        l.Language,
		Category:        l.Category,
		Tags:            l.Tags,
		Position:        l.Position,
		DurationMinutes: l.DurationMinutes,
		XPReward:        l.XPReward,
	}, nil
}

// ActivityRequest converts the entry into an add-activity request.
func (a Activity) ActivityRequest() (service.AddActivityRequest, error) {
	options, err := toJSON(a.Options)
	if err != nil {
		return service.AddActivityRequest{}, fmt.Errorf("options: %w", err)
	}
	answer, err := toJSON(a.CorrectAnswer)
	if err != nil {
		return service.AddActivityRequest{}, fmt.Errorf("correct_answer: %w", err)
	}
	return service.AddActivityRequest{
		Type:             a.Type,
		Prompt:           a.Prompt,
		Instructions:     a.Instructions,
		Options:          options,
		CorrectAnswer:    answer,
		Feedback:         a.Feedback,
		Hint:             a.Hint,
		Points:           a.Points,
		TimeLimitSeconds: a.TimeLimitSeconds,
	}, nil
}

// toJSON re-encodes a decoded YAML value. Nil stays nil.
func toJSON(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// LessonWriter is the subset of lesson operations an import needs.
type LessonWriter interface {
	CreateLesson(ctx context.Context, actor service.Actor, req service.CreateLessonRequest) (*models.Lesson, error)
	AddActivity(ctx context.Context, actor service.Actor, lessonID uuid.UUID, req service.AddActivityRequest) (*models.ActivityView, error)
	PublishLesson(ctx context.Context, actor service.Actor, id uuid.UUID) (*models.Lesson, error)
}

// Result summarizes an import.
type Result struct {
	Lessons    int `json:"lessons"`
	Activities int `json:"activities"`
	Published  int `json:"published"`
}

// Import creates every lesson in f as author. It stops at the first
// failure and reports what was created so far.
func Import(ctx context.Context, lessons LessonWriter, author service.Actor, f *File) (Result, error) {
	var res Result
	for i, entry := range f.Lessons {
		req, err := entry.LessonRequest()
		if err != nil {
			return res, err
		}
		lesson, err := lessons.CreateLesson(ctx, author, req)
		if err != nil {
			return res, fmt.Errorf("lesson %d (%s): %w", i+1, entry.Title, err)
		}
		res.Lessons++

		for j, act := range entry.Activities {
			actReq, err := act.ActivityRequest()
			if err != nil {
				return res, fmt.Errorf("lesson %d activity %d: %w", i+1, j+1, err)
			}
			if _, err := lessons.AddActivity(ctx, author, lesson.ID, actReq); err != nil {
				return res, fmt.Errorf("lesson %d activity %d: %w", i+1, j+1, err)
			}
			res.Activities++
		}

		if entry.Publish {
			if _, err := lessons.PublishLesson(ctx, author, lesson.ID); err != nil {
				return res, fmt.Errorf("publish lesson %d (%s): %w", i+1, entry.Title, err)
			}
			res.Published++
		}
	}
	return res, nil
}
