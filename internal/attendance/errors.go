package attendance

import (
	"fmt"

	"rollcall/internal/qrpayload"
)

// NotFoundError means neither an id lookup nor a unique name fallback
// matched any roster entry. It carries what was attempted and how big
// the rosters are, because the dominant real failure is scanning a code
// generated against a different dataset and the message has to let the
// user work that out themselves.
type NotFoundError struct {
	ID       string
	Name     string
	Students int
	Staff    int
}

func (e *NotFoundError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("no person with id %q or name %q in the current roster (%d students, %d staff); the code may have been generated against different data",
			e.ID, e.Name, e.Students, e.Staff)
	}
	return fmt.Sprintf("no person with id %q in the current roster (%d students, %d staff); the code may have been generated against different data",
		e.ID, e.Students, e.Staff)
}

// AmbiguousNameError means the name fallback matched more than one
// roster entry; picking one arbitrarily would mark the wrong person.
type AmbiguousNameError struct {
	Kind  qrpayload.Kind
	Name  string
	Count int
}

func (e *AmbiguousNameError) Error() string {
	return fmt.Sprintf("%d %s entries share the name %q; cannot resolve by name, re-issue the code with a current id",
		e.Count, e.Kind, e.Name)
}

// ValidationError rejects a malformed mark request before anything is
// written.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// SinkError wraps a storage failure during a mark. Phase says which
// step failed. Degraded is set when the same-day delete already
// committed and the insert then failed, leaving the person with no
// record for the day; callers must surface that state, not hide it.
type SinkError struct {
	Phase    string
	Degraded bool
	Err      error
}

func (e *SinkError) Error() string {
	if e.Degraded {
		return fmt.Sprintf("attendance %s failed after the previous record for the day was removed; the day currently has no record: %v", e.Phase, e.Err)
	}
	return fmt.Sprintf("attendance %s failed: %v", e.Phase, e.Err)
}

func (e *SinkError) Unwrap() error { return e.Err }
