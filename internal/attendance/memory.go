package attendance

import (
	"context"
	"sync"

	"rollcall/internal/qrpayload"
)

// MemorySink is a slice-backed Sink for development and tests. It keeps
// every inserted row as-is (no keyed overwrite), so a missing same-day
// delete really does show up as a duplicate. It deliberately does not
// implement Replacer; the two-phase delete-then-insert path stays
// exercised.
type MemorySink struct {
	mu   sync.Mutex
	recs []Record

	// DeleteErr and InsertErr, when set, fail the corresponding call.
	DeleteErr error
	InsertErr error
}

// NewMemorySink creates an empty sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// DeleteForDay removes all records for the (kind, person, day) key.
func (m *MemorySink) DeleteForDay(_ context.Context, kind qrpayload.Kind, personID string, day Day) error {
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.recs[:0]
	for _, rec := range m.recs {
		if rec.Kind == kind && rec.PersonID == personID && rec.Day == day {
			continue
		}
		kept = append(kept, rec)
	}
	m.recs = kept
	return nil
}

// Insert appends a record.
func (m *MemorySink) Insert(_ context.Context, rec Record) (Record, error) {
	if m.InsertErr != nil {
		return Record{}, m.InsertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = rec.Timestamp
	}
	m.recs = append(m.recs, rec)
	return rec, nil
}

// RecordsFor returns all stored records for a key.
func (m *MemorySink) RecordsFor(kind qrpayload.Kind, personID string, day Day) []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Record
	for _, rec := range m.recs {
		if rec.Kind == kind && rec.PersonID == personID && rec.Day == day {
			out = append(out, rec)
		}
	}
	return out
}

// Len reports how many records are stored.
func (m *MemorySink) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.recs)
}
