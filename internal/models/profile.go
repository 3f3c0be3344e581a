package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// XPPerLevel is the experience needed to advance one user level.
const XPPerLevel = 100

// DefaultLevel is the proficiency level assigned when none is given.
const DefaultLevel = "A1"

// Profile holds the learning attributes attached 1:1 to an account.
type Profile struct {
	AccountID        uuid.UUID   `json:"account_id" db:"account_id"`
	DisplayName      string      `json:"display_name" db:"display_name"`
	Language         string      `json:"language" db:"language"`
	Level            string      `json:"level" db:"level"`
	CurrentCourse    string      `json:"current_course" db:"current_course"`
	TotalXP          int         `json:"total_xp" db:"total_xp"`
	UserLevel        int         `json:"user_level" db:"user_level"`
	StreakDays       int         `json:"streak_days" db:"streak_days"`
	LongestStreak    int         `json:"longest_streak" db:"longest_streak"`
	LastActivityDate *time.Time  `json:"last_activity_date,omitempty" db:"last_activity_date"`
	Details          RoleDetails `json:"details" db:"role_details"`
	CreatedAt        time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at" db:"updated_at"`
}

// CourseCode derives the course identifier for a language and level,
// e.g. "Inglés" + "A1" -> "ING-A1".
func CourseCode(language, level string) string {
	lang := []rune(language)
	if len(lang) > 3 {
		lang = lang[:3]
	}
	return fmt.Sprintf("%s-%s", strings.ToUpper(string(lang)), strings.ToUpper(level))
}

// NewProfile builds the initial profile for a freshly registered account.
func NewProfile(account *Account, language, level string) *Profile {
	if level == "" {
		level = DefaultLevel
	}
	return &Profile{
		AccountID:     account.ID,
		DisplayName:   account.FullName(),
		Language:      language,
		Level:         strings.ToUpper(level),
		CurrentCourse: CourseCode(language, level),
		UserLevel:     LevelForXP(0),
		Details:       DefaultRoleDetails(account.Role),
	}
}

// LevelForXP returns floor(xp/100)+1.
func LevelForXP(xp int) int {
	if xp < 0 {
		xp = 0
	}
	return xp/XPPerLevel + 1
}

// AddXP increments total experience and recomputes the user level.
func (p *Profile) AddXP(amount int) {
	p.TotalXP += amount
	p.UserLevel = LevelForXP(p.TotalXP)
}

// RecordActivity advances the daily streak for the calendar day of today.
// Same-day calls are no-ops, consecutive days extend the streak and any gap
// restarts it at one. It returns false when nothing changed.
func (p *Profile) RecordActivity(today time.Time) bool {
	day := DateOf(today)

	if p.LastActivityDate == nil {
		p.StreakDays = 1
	} else {
		switch diff := int(day.Sub(DateOf(*p.LastActivityDate)).Hours() / 24); {
		case diff == 0:
			return false
		case diff == 1:
			p.StreakDays++
		case diff > 1:
			p.StreakDays = 1
		default:
			// activity dated before the last one recorded
			return false
		}
	}

	if p.StreakDays > p.LongestStreak {
		p.LongestStreak = p.StreakDays
	}
	p.LastActivityDate = &day
	return true
}

// SwitchCourse moves the profile to a new language and level. Experience and
// the current streak restart with the new course; the longest streak is kept.
func (p *Profile) SwitchCourse(language, level, course string) {
	p.Language = language
	p.Level = strings.ToUpper(level)
	if course == "" {
		course = CourseCode(language, level)
	}
	p.CurrentCourse = course
	p.TotalXP = 0
	p.UserLevel = LevelForXP(0)
	p.StreakDays = 0
	p.LastActivityDate = nil
}

// DateOf truncates t to midnight UTC.
func DateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
