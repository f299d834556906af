package attendance

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"rollcall/internal/qrpayload"
	"rollcall/internal/roster"
)

// Sink persists attendance records. Delete and insert are separate
// network calls; a sink that can do both atomically should also
// implement Replacer.
type Sink interface {
	DeleteForDay(ctx context.Context, kind qrpayload.Kind, personID string, day Day) error
	Insert(ctx context.Context, rec Record) (Record, error)
}

// Replacer is an optional Sink upgrade: delete any same-day record for
// the person and insert the new one as a single transaction. Marks
// prefer it when available because it closes the race two concurrent
// writes for the same key would otherwise have.
type Replacer interface {
	ReplaceForDay(ctx context.Context, rec Record) (Record, error)
}

// Resolver matches identity references against roster snapshots and
// commits idempotent attendance writes.
type Resolver struct {
	now func() time.Time
}

// NewResolver creates a resolver using wall-clock time.
func NewResolver() *Resolver {
	return &Resolver{now: time.Now}
}

// Resolve finds the roster entry an identity reference points at.
//
// With a known kind the id is looked up in that kind's roster; on a
// miss, a unique full-name match is accepted and flagged as a fallback.
// With an unknown kind (bare-identifier payloads) both rosters are
// tried, students first. More than one name match fails with
// *AmbiguousNameError; no match at all with *NotFoundError.
func (r *Resolver) Resolve(ref qrpayload.IdentityRef, snap roster.Snapshot) (ResolvedPerson, error) {
	kinds := []qrpayload.Kind{ref.Kind}
	if ref.Kind == qrpayload.KindUnknown {
		kinds = []qrpayload.Kind{qrpayload.KindStudent, qrpayload.KindStaff}
	}

	for _, kind := range kinds {
		person, found, err := resolveIn(kind, ref, snap)
		if err != nil {
			return ResolvedPerson{}, err
		}
		if found {
			return person, nil
		}
	}
	return ResolvedPerson{}, &NotFoundError{
		ID:       ref.ID,
		Name:     ref.DisplayName,
		Students: len(snap.Students),
		Staff:    len(snap.Staff),
	}
}

// resolveIn runs the id lookup and the name fallback against one
// roster list.
func resolveIn(kind qrpayload.Kind, ref qrpayload.IdentityRef, snap roster.Snapshot) (ResolvedPerson, bool, error) {
	switch kind {
	case qrpayload.KindStudent:
		for _, s := range snap.Students {
			if s.ID == ref.ID {
				return studentPerson(s, false), true, nil
			}
		}
		if ref.DisplayName == "" {
			return ResolvedPerson{}, false, nil
		}
		want := normalizeName(ref.DisplayName)
		var matches []roster.Student
		for _, s := range snap.Students {
			if normalizeName(s.FullName()) == want {
				matches = append(matches, s)
			}
		}
		switch len(matches) {
		case 0:
			return ResolvedPerson{}, false, nil
		case 1:
			return studentPerson(matches[0], true), true, nil
		default:
			return ResolvedPerson{}, false, &AmbiguousNameError{Kind: kind, Name: ref.DisplayName, Count: len(matches)}
		}

	case qrpayload.KindStaff:
		for _, s := range snap.Staff {
			if s.ID == ref.ID {
				return staffPerson(s, false), true, nil
			}
		}
		if ref.DisplayName == "" {
			return ResolvedPerson{}, false, nil
		}
		want := normalizeName(ref.DisplayName)
		var matches []roster.Staff
		for _, s := range snap.Staff {
			if normalizeName(s.FullName()) == want {
				matches = append(matches, s)
			}
		}
		switch len(matches) {
		case 0:
			return ResolvedPerson{}, false, nil
		case 1:
			return staffPerson(matches[0], true), true, nil
		default:
			return ResolvedPerson{}, false, &AmbiguousNameError{Kind: kind, Name: ref.DisplayName, Count: len(matches)}
		}
	}
	return ResolvedPerson{}, false, nil
}

func studentPerson(s roster.Student, fallback bool) ResolvedPerson {
	return ResolvedPerson{
		Kind:          qrpayload.KindStudent,
		ID:            s.ID,
		FirstName:     s.FirstName,
		LastName:      s.LastName,
		ContextID:     s.ClassID,
		FallbackMatch: fallback,
	}
}

func staffPerson(s roster.Staff, fallback bool) ResolvedPerson {
	return ResolvedPerson{
		Kind:          qrpayload.KindStaff,
		ID:            s.ID,
		FirstName:     s.FirstName,
		LastName:      s.LastName,
		ContextID:     s.Department,
		FallbackMatch: fallback,
	}
}

// normalizeName collapses internal whitespace and lowercases so that a
// re-encoded name still matches the roster's spelling.
func normalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// CheckIn commits a Present record for the person on the given day.
// Scanning is exclusively a mark-present action; other statuses go
// through ManualMark. The context id comes from the resolved person,
// i.e. the roster's current class or department, never from the
// scanned payload.
func (r *Resolver) CheckIn(ctx context.Context, person ResolvedPerson, day Day, sink Sink) (Record, error) {
	if !person.Kind.Valid() || person.ID == "" {
		return Record{}, &ValidationError{Msg: "check-in requires a resolved person with kind and id"}
	}
	rec := Record{
		ID:        uuid.NewString(),
		Kind:      person.Kind,
		PersonID:  person.ID,
		ContextID: person.ContextID,
		Status:    StatusPresent,
		Day:       day,
		Timestamp: r.now().UTC(),
	}
	return commit(ctx, rec, sink)
}

// ManualMark commits a record with an arbitrary status and explicit
// context, used by the roster-management attendance grid. StatusOther
// requires a non-empty custom label.
func (r *Resolver) ManualMark(ctx context.Context, kind qrpayload.Kind, personID, contextID string, status Status, customLabel string, day Day, sink Sink) (Record, error) {
	if !kind.Valid() {
		return Record{}, &ValidationError{Msg: "kind must be student or staff"}
	}
	if personID == "" {
		return Record{}, &ValidationError{Msg: "person id is required"}
	}
	if !status.Valid() {
		return Record{}, &ValidationError{Msg: "unknown status " + string(status)}
	}
	if status == StatusOther && strings.TrimSpace(customLabel) == "" {
		return Record{}, &ValidationError{Msg: "status other requires a custom label"}
	}
	if status != StatusOther {
		customLabel = ""
	}
	rec := Record{
		ID:          uuid.NewString(),
		Kind:        kind,
		PersonID:    personID,
		ContextID:   contextID,
		Status:      status,
		CustomLabel: customLabel,
		Day:         day,
		Timestamp:   r.now().UTC(),
	}
	return commit(ctx, rec, sink)
}

// commit enforces at-most-one-record-per-person-per-day by replacement:
// remove any same-day record for the key, then insert fresh. The
// atomic path is used when the sink offers one; otherwise a delete
// failure aborts before the insert, and an insert failure after a
// committed delete is reported as degraded.
func commit(ctx context.Context, rec Record, sink Sink) (Record, error) {
	if rep, ok := sink.(Replacer); ok {
		out, err := rep.ReplaceForDay(ctx, rec)
		if err != nil {
			return Record{}, &SinkError{Phase: "write", Err: err}
		}
		return out, nil
	}

	if err := sink.DeleteForDay(ctx, rec.Kind, rec.PersonID, rec.Day); err != nil {
		return Record{}, &SinkError{Phase: "delete", Err: err}
	}
	out, err := sink.Insert(ctx, rec)
	if err != nil {
		return Record{}, &SinkError{Phase: "insert", Degraded: true, Err: err}
	}
	return out, nil
}
