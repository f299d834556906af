package attendance

import (
	"fmt"
	"time"

	"rollcall/internal/qrpayload"
)

// Status is the attendance state recorded for a person on a day.
type Status string

const (
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
	StatusTardy   Status = "tardy"
	StatusExcused Status = "excused"

	// StatusOther carries a custom label; the label is mandatory.
	StatusOther Status = "other"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPresent, StatusAbsent, StatusTardy, StatusExcused, StatusOther:
		return true
	}
	return false
}

// Day is a calendar day with no time component, formatted YYYY-MM-DD.
// Attendance is keyed by (kind, person, day): at most one record exists
// per key.
type Day string

// DayOf returns the UTC calendar day of t.
func DayOf(t time.Time) Day {
	return Day(t.UTC().Format("2006-01-02"))
}

// ParseDay validates a YYYY-MM-DD string.
func ParseDay(s string) (Day, error) {
	if _, err := time.Parse("2006-01-02", s); err != nil {
		return "", fmt.Errorf("attendance: invalid day %q: want YYYY-MM-DD", s)
	}
	return Day(s), nil
}

// Record is one committed attendance entry. ContextID is the class
// (students) or department (staff) the record is attributed to, derived
// from the live roster at write time.
type Record struct {
	ID          string         `json:"id"`
	Kind        qrpayload.Kind `json:"kind"`
	PersonID    string         `json:"person_id"`
	ContextID   string         `json:"context_id,omitempty"`
	Status      Status         `json:"status"`
	CustomLabel string         `json:"custom_label,omitempty"`
	Day         Day            `json:"day"`
	Timestamp   time.Time      `json:"timestamp"`
	CreatedAt   time.Time      `json:"created_at"`
}

// ResolvedPerson is the outcome of matching an identity reference
// against the roster. FallbackMatch is set when the match came from the
// full-name fallback rather than the id, which means the scanned code
// and the live roster disagree and the user should be told.
type ResolvedPerson struct {
	Kind      qrpayload.Kind `json:"kind"`
	ID        string         `json:"id"`
	FirstName string         `json:"first_name"`
	LastName  string         `json:"last_name"`
	ContextID string         `json:"context_id,omitempty"`

	FallbackMatch bool `json:"fallback_match,omitempty"`
}

// FullName returns the "first last" display form.
func (p ResolvedPerson) FullName() string { return p.FirstName + " " + p.LastName }
