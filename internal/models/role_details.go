package models

import (
	"encoding/json"
	"fmt"
)

// RoleDetails is the role-specific part of a profile. The concrete type is
// selected by the owning account's role.
type RoleDetails interface {
	Role() Role
}

// StudentDetails holds study preferences and counters.
type StudentDetails struct {
	DailyGoalMinutes     int  `json:"daily_goal_minutes"`
	NotificationsEnabled bool `json:"notifications_enabled"`
	LessonsCompleted     int  `json:"lessons_completed"`
	StudyMinutes         int  `json:"study_minutes"`
}

// TeacherDetails holds a teacher's public presentation.
type TeacherDetails struct {
	Specialty string `json:"specialty,omitempty"`
	Bio       string `json:"bio,omitempty"`
}

// AdminDetails holds the permissions granted to an administrator.
type AdminDetails struct {
	Permissions []string `json:"permissions"`
}

func (*StudentDetails) Role() Role { return RoleStudent }
func (*TeacherDetails) Role() Role { return RoleTeacher }
func (*AdminDetails) Role() Role   { return RoleAdmin }

// DefaultRoleDetails returns the initial details for a role.
func DefaultRoleDetails(role Role) RoleDetails {
	switch role {
	case RoleStudent:
		return &StudentDetails{DailyGoalMinutes: 15, NotificationsEnabled: true}
	case RoleTeacher:
		return &TeacherDetails{}
	case RoleAdmin:
		return &AdminDetails{Permissions: []string{}}
	default:
		return nil
	}
}

// DecodeRoleDetails decodes a stored details document for the given role.
// An empty document yields the role's defaults.
func DecodeRoleDetails(role Role, raw []byte) (RoleDetails, error) {
	details := DefaultRoleDetails(role)
	if details == nil {
		return nil, fmt.Errorf("unknown role %q", role)
	}
	if len(raw) == 0 || string(raw) == "null" {
		return details, nil
	}
	if err := json.Unmarshal(raw, details); err != nil {
		return nil, fmt.Errorf("decode %s details: %w", role, err)
	}
	return details, nil
}

// EncodeRoleDetails encodes details for storage.
func EncodeRoleDetails(details RoleDetails) ([]byte, error) {
	if details == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(details)
}
