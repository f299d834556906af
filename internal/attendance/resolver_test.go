package attendance

import (
	"context"
	"errors"
	"testing"
	"time"

	"rollcall/internal/qrpayload"
	"rollcall/internal/roster"
)

func testSnapshot() roster.Snapshot {
	return roster.Snapshot{
		Students: []roster.Student{
			{ID: "s1", FirstName: "Ann", LastName: "Lee", ClassID: "c1"},
			{ID: "s2", FirstName: "Ben", LastName: "Kim", ClassID: "c2"},
			{ID: "s3", FirstName: "Cleo", LastName: "Diaz"},
		},
		Staff: []roster.Staff{
			{ID: "t1", FirstName: "Dana", LastName: "Park", Department: "Math"},
			{ID: "t2", FirstName: "Eli", LastName: "Moss", Department: "Science"},
		},
	}
}

func testResolver(at time.Time) *Resolver {
	r := NewResolver()
	r.now = func() time.Time { return at }
	return r
}

func TestResolveByID(t *testing.T) {
	r := NewResolver()
	snap := testSnapshot()

	person, err := r.Resolve(qrpayload.IdentityRef{Kind: qrpayload.KindStudent, ID: "s1"}, snap)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if person.ID != "s1" || person.Kind != qrpayload.KindStudent {
		t.Errorf("resolved %s/%s, want student/s1", person.Kind, person.ID)
	}
	if person.ContextID != "c1" {
		t.Errorf("ContextID = %q, want c1", person.ContextID)
	}
	if person.FallbackMatch {
		t.Error("id match must not be flagged as fallback")
	}
}

func TestResolveNameFallback(t *testing.T) {
	r := NewResolver()
	snap := testSnapshot()

	// Stale payload: the id changed upstream but the name is unique and
	// unchanged.
	ref := qrpayload.IdentityRef{Kind: qrpayload.KindStudent, ID: "old-id", DisplayName: "Ann Lee"}
	person, err := r.Resolve(ref, snap)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if person.ID != "s1" {
		t.Errorf("resolved id %q, want s1", person.ID)
	}
	if !person.FallbackMatch {
		t.Error("name match must be flagged as fallback")
	}
}

func TestResolveNameFallbackNormalization(t *testing.T) {
	r := NewResolver()
	snap := testSnapshot()

	ref := qrpayload.IdentityRef{Kind: qrpayload.KindStaff, ID: "gone", DisplayName: "  dana   PARK "}
	person, err := r.Resolve(ref, snap)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if person.ID != "t1" || !person.FallbackMatch {
		t.Errorf("resolved %+v, want fallback match on t1", person)
	}
}

func TestResolveAmbiguousName(t *testing.T) {
	r := NewResolver()
	snap := testSnapshot()
	snap.Students = append(snap.Students, roster.Student{ID: "s9", FirstName: "Ann", LastName: "Lee", ClassID: "c3"})

	ref := qrpayload.IdentityRef{Kind: qrpayload.KindStudent, ID: "old-id", DisplayName: "Ann Lee"}
	_, err := r.Resolve(ref, snap)

	var ambiguous *AmbiguousNameError
	if !errors.As(err, &ambiguous) {
		t.Fatalf("err = %v, want *AmbiguousNameError", err)
	}
	if ambiguous.Count != 2 {
		t.Errorf("Count = %d, want 2", ambiguous.Count)
	}
}

func TestResolveNotFound(t *testing.T) {
	r := NewResolver()
	snap := testSnapshot()

	// No name in the payload, so no fallback is attempted and the
	// failure must be not-found, not ambiguity.
	ref := qrpayload.IdentityRef{Kind: qrpayload.KindStaff, ID: "xyz789"}
	_, err := r.Resolve(ref, snap)

	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("err = %v, want *NotFoundError", err)
	}
	if notFound.ID != "xyz789" {
		t.Errorf("ID = %q, want xyz789", notFound.ID)
	}
	if notFound.Students != 3 || notFound.Staff != 2 {
		t.Errorf("roster sizes = %d/%d, want 3/2", notFound.Students, notFound.Staff)
	}
}

func TestResolveUnknownKind(t *testing.T) {
	r := NewResolver()
	snap := testSnapshot()

	t.Run("matches student first", func(t *testing.T) {
		person, err := r.Resolve(qrpayload.IdentityRef{Kind: qrpayload.KindUnknown, ID: "s2"}, snap)
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if person.Kind != qrpayload.KindStudent || person.ID != "s2" {
			t.Errorf("resolved %s/%s, want student/s2", person.Kind, person.ID)
		}
	})

	t.Run("falls through to staff", func(t *testing.T) {
		person, err := r.Resolve(qrpayload.IdentityRef{Kind: qrpayload.KindUnknown, ID: "t2"}, snap)
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if person.Kind != qrpayload.KindStaff || person.ID != "t2" {
			t.Errorf("resolved %s/%s, want staff/t2", person.Kind, person.ID)
		}
		if person.ContextID != "Science" {
			t.Errorf("ContextID = %q, want Science", person.ContextID)
		}
	})

	t.Run("misses both rosters", func(t *testing.T) {
		_, err := r.Resolve(qrpayload.IdentityRef{Kind: qrpayload.KindUnknown, ID: "nope"}, snap)
		var notFound *NotFoundError
		if !errors.As(err, &notFound) {
			t.Fatalf("err = %v, want *NotFoundError", err)
		}
	})
}

func TestCheckInWritesPresent(t *testing.T) {
	now := time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC)
	r := testResolver(now)
	sink := NewMemorySink()

	person := ResolvedPerson{Kind: qrpayload.KindStudent, ID: "s1", ContextID: "c1"}
	rec, err := r.CheckIn(context.Background(), person, Day("2024-05-01"), sink)
	if err != nil {
		t.Fatalf("CheckIn failed: %v", err)
	}
	if rec.Status != StatusPresent {
		t.Errorf("Status = %s, want present", rec.Status)
	}
	if rec.ContextID != "c1" {
		t.Errorf("ContextID = %q, want c1", rec.ContextID)
	}
	if rec.ID == "" {
		t.Error("record has no id")
	}
	if !rec.Timestamp.Equal(now) {
		t.Errorf("Timestamp = %v, want %v", rec.Timestamp, now)
	}
	if sink.Len() != 1 {
		t.Errorf("sink has %d records, want 1", sink.Len())
	}
}

func TestCheckInIdempotentByReplacement(t *testing.T) {
	day := Day("2024-05-01")
	sink := NewMemorySink()
	person := ResolvedPerson{Kind: qrpayload.KindStudent, ID: "s1", ContextID: "c1"}

	first := testResolver(time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC))
	if _, err := first.CheckIn(context.Background(), person, day, sink); err != nil {
		t.Fatalf("first CheckIn failed: %v", err)
	}

	second := testResolver(time.Date(2024, 5, 1, 9, 15, 0, 0, time.UTC))
	if _, err := second.CheckIn(context.Background(), person, day, sink); err != nil {
		t.Fatalf("second CheckIn failed: %v", err)
	}

	recs := sink.RecordsFor(qrpayload.KindStudent, "s1", day)
	if len(recs) != 1 {
		t.Fatalf("got %d records for the key, want exactly 1", len(recs))
	}
	if got := recs[0].Timestamp; !got.Equal(time.Date(2024, 5, 1, 9, 15, 0, 0, time.UTC)) {
		t.Errorf("surviving record timestamp = %v, want the second write's", got)
	}
}

func TestCheckInUsesCurrentContext(t *testing.T) {
	// The student moved to class c9 after the payload was generated;
	// the record must carry the roster's current class.
	r := NewResolver()
	snap := testSnapshot()
	snap.Students[0].ClassID = "c9"

	ref := qrpayload.IdentityRef{Kind: qrpayload.KindStudent, ID: "s1", ContextLabel: "c1"}
	person, err := r.Resolve(ref, snap)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	sink := NewMemorySink()
	rec, err := r.CheckIn(context.Background(), person, Day("2024-05-01"), sink)
	if err != nil {
		t.Fatalf("CheckIn failed: %v", err)
	}
	if rec.ContextID != "c9" {
		t.Errorf("ContextID = %q, want the current class c9", rec.ContextID)
	}
}

func TestManualMark(t *testing.T) {
	r := NewResolver()
	sink := NewMemorySink()
	day := Day("2024-05-01")

	t.Run("arbitrary status", func(t *testing.T) {
		rec, err := r.ManualMark(context.Background(), qrpayload.KindStudent, "s2", "c2", StatusTardy, "", day, sink)
		if err != nil {
			t.Fatalf("ManualMark failed: %v", err)
		}
		if rec.Status != StatusTardy {
			t.Errorf("Status = %s, want tardy", rec.Status)
		}
	})

	t.Run("other requires label", func(t *testing.T) {
		_, err := r.ManualMark(context.Background(), qrpayload.KindStudent, "s2", "c2", StatusOther, "  ", day, sink)
		var validation *ValidationError
		if !errors.As(err, &validation) {
			t.Fatalf("err = %v, want *ValidationError", err)
		}
	})

	t.Run("other with label", func(t *testing.T) {
		rec, err := r.ManualMark(context.Background(), qrpayload.KindStaff, "t1", "Math", StatusOther, "field trip", day, sink)
		if err != nil {
			t.Fatalf("ManualMark failed: %v", err)
		}
		if rec.CustomLabel != "field trip" {
			t.Errorf("CustomLabel = %q, want field trip", rec.CustomLabel)
		}
	})

	t.Run("label dropped for standard statuses", func(t *testing.T) {
		rec, err := r.ManualMark(context.Background(), qrpayload.KindStudent, "s3", "", StatusAbsent, "stray", day, sink)
		if err != nil {
			t.Fatalf("ManualMark failed: %v", err)
		}
		if rec.CustomLabel != "" {
			t.Errorf("CustomLabel = %q, want empty", rec.CustomLabel)
		}
	})

	t.Run("replaces same-day record", func(t *testing.T) {
		if _, err := r.ManualMark(context.Background(), qrpayload.KindStudent, "s2", "c2", StatusAbsent, "", day, sink); err != nil {
			t.Fatalf("ManualMark failed: %v", err)
		}
		recs := sink.RecordsFor(qrpayload.KindStudent, "s2", day)
		if len(recs) != 1 {
			t.Fatalf("got %d records for the key, want 1", len(recs))
		}
		if recs[0].Status != StatusAbsent {
			t.Errorf("surviving status = %s, want the later absent", recs[0].Status)
		}
	})

	t.Run("rejects bad input", func(t *testing.T) {
		cases := []struct {
			name string
			fn   func() error
		}{
			{"unknown kind", func() error {
				_, err := r.ManualMark(context.Background(), qrpayload.KindUnknown, "s1", "", StatusAbsent, "", day, sink)
				return err
			}},
			{"empty person", func() error {
				_, err := r.ManualMark(context.Background(), qrpayload.KindStudent, "", "", StatusAbsent, "", day, sink)
				return err
			}},
			{"unknown status", func() error {
				_, err := r.ManualMark(context.Background(), qrpayload.KindStudent, "s1", "", Status("vacation"), "", day, sink)
				return err
			}},
		}
		for _, tc := range cases {
			var validation *ValidationError
			if err := tc.fn(); !errors.As(err, &validation) {
				t.Errorf("%s: err = %v, want *ValidationError", tc.name, err)
			}
		}
	})
}

func TestSinkFailures(t *testing.T) {
	r := NewResolver()
	person := ResolvedPerson{Kind: qrpayload.KindStudent, ID: "s1"}
	day := Day("2024-05-01")

	t.Run("delete failure aborts before insert", func(t *testing.T) {
		sink := NewMemorySink()
		sink.DeleteErr = errors.New("boom")

		_, err := r.CheckIn(context.Background(), person, day, sink)
		var sinkErr *SinkError
		if !errors.As(err, &sinkErr) {
			t.Fatalf("err = %v, want *SinkError", err)
		}
		if sinkErr.Phase != "delete" || sinkErr.Degraded {
			t.Errorf("got phase=%s degraded=%v, want delete/false", sinkErr.Phase, sinkErr.Degraded)
		}
		if sink.Len() != 0 {
			t.Error("insert ran after a failed delete")
		}
	})

	t.Run("insert failure after delete is degraded", func(t *testing.T) {
		sink := NewMemorySink()
		if _, err := r.CheckIn(context.Background(), person, day, sink); err != nil {
			t.Fatalf("seed CheckIn failed: %v", err)
		}
		sink.InsertErr = errors.New("boom")

		_, err := r.CheckIn(context.Background(), person, day, sink)
		var sinkErr *SinkError
		if !errors.As(err, &sinkErr) {
			t.Fatalf("err = %v, want *SinkError", err)
		}
		if sinkErr.Phase != "insert" || !sinkErr.Degraded {
			t.Errorf("got phase=%s degraded=%v, want insert/true", sinkErr.Phase, sinkErr.Degraded)
		}
		// The degraded state: the day's previous record is gone.
		if sink.Len() != 0 {
			t.Errorf("sink has %d records, expected the degraded empty state", sink.Len())
		}
	})
}

// replacerSink records which write path was used.
type replacerSink struct {
	*MemorySink
	replaced int
}

func (s *replacerSink) ReplaceForDay(ctx context.Context, rec Record) (Record, error) {
	s.replaced++
	if err := s.MemorySink.DeleteForDay(ctx, rec.Kind, rec.PersonID, rec.Day); err != nil {
		return Record{}, err
	}
	return s.MemorySink.Insert(ctx, rec)
}

func TestCheckInPrefersAtomicReplace(t *testing.T) {
	r := NewResolver()
	sink := &replacerSink{MemorySink: NewMemorySink()}
	person := ResolvedPerson{Kind: qrpayload.KindStaff, ID: "t1", ContextID: "Math"}

	if _, err := r.CheckIn(context.Background(), person, Day("2024-05-01"), sink); err != nil {
		t.Fatalf("CheckIn failed: %v", err)
	}
	if sink.replaced != 1 {
		t.Errorf("ReplaceForDay called %d times, want 1", sink.replaced)
	}
}

func TestDay(t *testing.T) {
	if got := DayOf(time.Date(2024, 5, 1, 23, 59, 0, 0, time.UTC)); got != Day("2024-05-01") {
		t.Errorf("DayOf = %s, want 2024-05-01", got)
	}
	if _, err := ParseDay("2024-05-01"); err != nil {
		t.Errorf("ParseDay rejected a valid day: %v", err)
	}
	if _, err := ParseDay("05/01/2024"); err == nil {
		t.Error("ParseDay accepted a non-ISO day")
	}
}
