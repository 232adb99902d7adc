// models.go
// Defines the core data structures shared by the state store, the tracker
// and the report pipeline. Remote documents map 1:1 to these structs.

package models

import (
	"fmt"
	"time"
)

// Role defines the operational role of a user.
type Role string

const (
	RoleOperator   Role = "OPERATOR"
	RoleSupervisor Role = "SUPERVISOR"
	RoleTrainee    Role = "TRAINEE"
	RoleAdmin      Role = "ADMIN"
	RoleOther      Role = "OTHER"
)

// ParseRole maps stored text to a Role. Unknown text maps to RoleOther
// rather than failing, so documents written by newer clients still load.
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleOperator, RoleSupervisor, RoleTrainee, RoleAdmin:
		return Role(s)
	}
	return RoleOther
}

// Display returns the human-readable role name used on screens and reports.
func (r Role) Display() string {
	switch r {
	case RoleOperator:
		return "Operator"
	case RoleSupervisor:
		return "Supervisor"
	case RoleTrainee:
		return "Trainee"
	case RoleAdmin:
		return "Admin"
	default:
		return "Other"
	}
}

// Shift classifies the work period a log entry belongs to.
type Shift string

const (
	ShiftDay       Shift = "DAY"
	ShiftNight     Shift = "NIGHT"
	ShiftAfternoon Shift = "AFTERNOON"
	ShiftOther     Shift = "OTHER"
)

// ParseShift maps stored text to a Shift, falling back to ShiftOther.
func ParseShift(s string) Shift {
	switch Shift(s) {
	case ShiftDay, ShiftNight, ShiftAfternoon:
		return Shift(s)
	}
	return ShiftOther
}

// Display returns the human-readable shift name.
func (s Shift) Display() string {
	switch s {
	case ShiftDay:
		return "Day"
	case ShiftNight:
		return "Night"
	case ShiftAfternoon:
		return "Afternoon"
	default:
		return "Other"
	}
}

// ShiftForTime derives the default shift from the hour of the start time.
// Day 06:00-13:59, Afternoon 14:00-21:59, Night otherwise. The operator can
// override the result when finalizing an activity.
func ShiftForTime(t time.Time) Shift {
	switch h := t.Hour(); {
	case h >= 6 && h < 14:
		return ShiftDay
	case h >= 14 && h < 22:
		return ShiftAfternoon
	default:
		return ShiftNight
	}
}

// SentinelPIN marks a new or reset account. A user carrying it must set a
// real PIN (and a signature) on their next login before proceeding.
const SentinelPIN = "00000"

// User represents an operator account.
type User struct {
	ID                     string   `firestore:"id" json:"id"`
	Name                   string   `firestore:"name" json:"name"`
	Role                   Role     `firestore:"role" json:"role"`
	PermittedActivityTypes []string `firestore:"permitted_activity_types" json:"permitted_activity_types"`
	PIN                    string   `firestore:"pin" json:"pin"` // exactly 5 digits, zero-padded
	Signature              []byte   `firestore:"signature,omitempty" json:"signature,omitempty"`
}

// Can reports whether the user may record the given activity type.
// Admins are allowed everything.
func (u *User) Can(activityTypeID string) bool {
	if u.Role == RoleAdmin {
		return true
	}
	for _, id := range u.PermittedActivityTypes {
		if id == activityTypeID {
			return true
		}
	}
	return false
}

// MustChangePIN reports whether the account still carries the sentinel PIN.
func (u *User) MustChangePIN() bool {
	return u.PIN == SentinelPIN
}

// ValidatePIN checks the 5-digit PIN format.
func ValidatePIN(pin string) error {
	if len(pin) != 5 {
		return fmt.Errorf("PIN must be exactly 5 digits, got %d characters", len(pin))
	}
	for _, c := range pin {
		if c < '0' || c > '9' {
			return fmt.Errorf("PIN must contain only digits")
		}
	}
	return nil
}

// ActivityType is a named category of trackable work (a "plod"),
// e.g. Drilling or Bolting.
type ActivityType struct {
	ID   string `firestore:"id" json:"id"`
	Name string `firestore:"name" json:"name"`
}

// MetricDefinition is a named, unit-labeled measurable quantity that applies
// to the activity types it is linked to.
type MetricDefinition struct {
	ID                  string   `firestore:"id" json:"id"`
	Name                string   `firestore:"name" json:"name"`
	Unit                string   `firestore:"unit" json:"unit"`
	LinkedActivityTypes []string `firestore:"linked_activity_types" json:"linked_activity_types"`
}

// AppliesTo reports whether the definition is linked to the activity type.
func (d *MetricDefinition) AppliesTo(activityTypeID string) bool {
	for _, id := range d.LinkedActivityTypes {
		if id == activityTypeID {
			return true
		}
	}
	return false
}

// LoggedMetric is a captured value for one metric definition inside a single
// log entry. Name and Unit are copies of the definition at capture time so
// the entry stays readable if the definition is later renamed or deleted.
type LoggedMetric struct {
	DefinitionID string `firestore:"definition_id" json:"definition_id"`
	Name         string `firestore:"name" json:"name"`
	Value        string `firestore:"value" json:"value"`
	Unit         string `firestore:"unit" json:"unit"`
}

// LogEntry is one completed activity. Entries are append-only: no update or
// delete path exists anywhere in the application.
type LogEntry struct {
	ID              string         `firestore:"id" json:"id"`
	ActivityTypeID  string         `firestore:"activity_type_id" json:"activity_type_id"`
	ActivityName    string         `firestore:"activity_name" json:"activity_name"`
	UserID          string         `firestore:"user_id" json:"user_id"`
	UserName        string         `firestore:"user_name" json:"user_name"`
	Role            Role           `firestore:"role" json:"role"`
	StartTime       time.Time      `firestore:"start_time" json:"start_time"`
	EndTime         time.Time      `firestore:"end_time" json:"end_time"`
	DurationSeconds int64          `firestore:"duration_seconds" json:"duration_seconds"`
	Shift           Shift          `firestore:"shift" json:"shift"`
	Metrics         []LoggedMetric `firestore:"metrics" json:"metrics"`
	Coworkers       []string       `firestore:"coworkers" json:"coworkers"`
}

// Validate checks the duration invariant before an entry is committed.
func (e *LogEntry) Validate() error {
	if e.EndTime.Before(e.StartTime) {
		return fmt.Errorf("end time %s is before start time %s", e.EndTime.Format(time.RFC3339), e.StartTime.Format(time.RFC3339))
	}
	if want := int64(e.EndTime.Sub(e.StartTime).Seconds()); e.DurationSeconds != want {
		return fmt.Errorf("duration %ds does not match end-start (%ds)", e.DurationSeconds, want)
	}
	return nil
}
