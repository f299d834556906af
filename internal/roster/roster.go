package roster

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Student is a validated roster entry. ClassID is empty for a student
// with no assigned class.
type Student struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	ClassID   string `json:"class_id,omitempty"`
}

// FullName returns the "first last" display form.
func (s Student) FullName() string { return s.FirstName + " " + s.LastName }

// Staff is a validated roster entry.
type Staff struct {
	ID         string `json:"id"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Department string `json:"department,omitempty"`
}

// FullName returns the "first last" display form.
func (s Staff) FullName() string { return s.FirstName + " " + s.LastName }

// Snapshot is a read-only point-in-time view of the roster. Resolution
// runs against a snapshot, which may lag the database slightly; callers
// must tolerate that.
type Snapshot struct {
	Students []Student
	Staff    []Staff
	Taken    time.Time
}

// Source supplies roster data, typically backed by the database.
type Source interface {
	ListStudents(ctx context.Context) ([]Student, error)
	ListStaff(ctx context.Context) ([]Staff, error)
}

// NormalizeStudent validates and trims a loosely-typed external row.
// Surrounding systems import rosters from CSV, so ids and names arrive
// with stray whitespace or missing entirely; nothing partial may reach
// the resolver.
func NormalizeStudent(id, firstName, lastName, classID string) (Student, error) {
	s := Student{
		ID:        strings.TrimSpace(id),
		FirstName: strings.TrimSpace(firstName),
		LastName:  strings.TrimSpace(lastName),
		ClassID:   strings.TrimSpace(classID),
	}
	if s.ID == "" {
		return Student{}, fmt.Errorf("roster: student row has no id")
	}
	if s.FirstName == "" && s.LastName == "" {
		return Student{}, fmt.Errorf("roster: student %s has no name", s.ID)
	}
	return s, nil
}

// NormalizeStaff validates and trims a loosely-typed external row.
func NormalizeStaff(id, firstName, lastName, department string) (Staff, error) {
	s := Staff{
		ID:         strings.TrimSpace(id),
		FirstName:  strings.TrimSpace(firstName),
		LastName:   strings.TrimSpace(lastName),
		Department: strings.TrimSpace(department),
	}
	if s.ID == "" {
		return Staff{}, fmt.Errorf("roster: staff row has no id")
	}
	if s.FirstName == "" && s.LastName == "" {
		return Staff{}, fmt.Errorf("roster: staff %s has no name", s.ID)
	}
	return s, nil
}
