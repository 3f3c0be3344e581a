// Package grading compares submitted answers with an activity's stored answer.
//
// Grading is pure: the same activity and answer always produce the same
// Result, and a Result never carries the stored answer.
package grading

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/speaklexi/backend/internal/models"
)

// Result is the outcome of grading one answer.
type Result struct {
	IsCorrect     bool   `json:"is_correct"`
	PointsAwarded int    `json:"points_awarded"`
	Feedback      string `json:"feedback"`
}

var (
	// ErrInvalidAnswer means the submitted answer is not valid JSON.
	ErrInvalidAnswer = errors.New("submitted answer is not valid JSON")
	// ErrCorruptActivity means the stored answer of the activity cannot be decoded.
	ErrCorruptActivity = errors.New("stored answer is not valid JSON")
)

var feedbackKeys = map[bool][]string{
	true:  {"correct", "correcta", "correcto"},
	false: {"incorrect", "incorrecta", "incorrecto"},
}

// Grade grades submitted against act. Both values are JSON documents. An
// error is returned only when one of them is not valid JSON.
func Grade(act *models.Activity, submitted json.RawMessage) (Result, error) {
	var got, want any
	if err := json.Unmarshal(submitted, &got); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidAnswer, err)
	}
	if err := json.Unmarshal(act.CorrectAnswer, &want); err != nil {
		return Result{}, fmt.Errorf("%w: activity %s: %v", ErrCorruptActivity, act.ID, err)
	}

	correct := compare(act.Type, got, want)

	res := Result{IsCorrect: correct, Feedback: feedback(act.Feedback, correct)}
	if correct {
		res.PointsAwarded = act.Points
	}
	return res, nil
}

// CorrectAnswer exposes the stored answer. Callers must gate it on the
// requester's role.
func CorrectAnswer(act *models.Activity) json.RawMessage {
	return act.CorrectAnswer
}

func compare(t models.ActivityType, got, want any) bool {
	switch t {
	case models.ActivityMultipleChoice, models.ActivityFillBlank, models.ActivityTranslation:
		return normalize(got) == normalize(want)
	case models.ActivityTrueFalse:
		return truthy(got) == truthy(want)
	case models.ActivityMatching, models.ActivityWordOrder:
		return reflect.DeepEqual(got, want)
	default:
		return reflect.DeepEqual(got, want)
	}
}

func feedback(messages map[string]string, correct bool) string {
	for _, key := range feedbackKeys[correct] {
		if msg, ok := messages[key]; ok && msg != "" {
			return msg
		}
	}
	if correct {
		return "Respuesta correcta"
	}
	return "Respuesta incorrecta"
}

// normalize renders a decoded JSON value as trimmed lower-case text.
func normalize(v any) string {
	return strings.ToLower(strings.TrimSpace(text(v)))
}

func text(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}

// truthy coerces a decoded JSON value to a boolean. Strings naming a boolean
// ("true", "false", "verdadero", "falso", "1", "0") are parsed; any other
// value is true unless it is null, zero, or empty.
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "true", "verdadero", "1":
			return true
		case "false", "falso", "0", "":
			return false
		default:
			return true
		}
	case []any:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	default:
		return true
	}
}
