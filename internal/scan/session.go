package scan

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"rollcall/internal/attendance"
	"rollcall/internal/qrpayload"
	"rollcall/internal/roster"
)

var (
	// ErrSessionClosed is returned for scans after Close.
	ErrSessionClosed = errors.New("scan: session closed")

	// ErrDuplicateScan means the guard suppressed the payload because a
	// check-in for it is in flight or just completed.
	ErrDuplicateScan = errors.New("scan: duplicate payload suppressed")
)

// StaleError rejects a payload older than the configured maximum age.
// Age enforcement is off by default; see Options.MaxPayloadAge.
type StaleError struct {
	IssuedAt time.Time
	MaxAge   time.Duration
}

func (e *StaleError) Error() string {
	return fmt.Sprintf("scan: payload issued %s is older than the allowed %s", e.IssuedAt.Format(time.RFC3339), e.MaxAge)
}

// Snapshotter supplies the roster view scans resolve against.
type Snapshotter interface {
	Snapshot() roster.Snapshot
}

// Options configures a Session.
type Options struct {
	Codec    *qrpayload.Codec
	Resolver *attendance.Resolver
	Roster   Snapshotter
	Sink     attendance.Sink
	Guard    Guard

	// MaxPayloadAge, when positive, rejects payloads whose issuedAt is
	// older than this. Zero keeps the historical accept-anything
	// behavior (payloads carry no expiry).
	MaxPayloadAge time.Duration
}

// Result is a completed scan: who matched and what was written.
type Result struct {
	Person attendance.ResolvedPerson `json:"person"`
	Record attendance.Record         `json:"record"`
}

// Session is one active scanning window for a station. It is a scoped
// acquisition: the owner must Close it on every exit path — explicit
// stop, error, navigation away — after which scans are refused. The
// camera itself lives in the client; the session is the server-side
// half of that lifecycle.
type Session struct {
	opts Options
	now  func() time.Time

	mu     sync.Mutex
	closed bool
}

// NewSession opens a session. Guard defaults to a per-process memory
// guard with a 5 second cooldown when unset.
func NewSession(opts Options) *Session {
	if opts.Guard == nil {
		opts.Guard = NewMemoryGuard(5 * time.Second)
	}
	return &Session{opts: opts, now: time.Now}
}

// Scan runs the full decode, resolve and check-in flow for one piece of
// scanned or pasted text. Every failure is a typed error for the UI to
// surface; the scan loop is expected to keep running through all of
// them.
func (s *Session) Scan(ctx context.Context, raw string) (Result, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Result{}, ErrSessionClosed
	}
	s.mu.Unlock()

	payload := strings.TrimSpace(raw)
	release, acquired := s.opts.Guard.Acquire(ctx, payload)
	if !acquired {
		return Result{}, ErrDuplicateScan
	}
	ok := false
	defer func() { release(ok) }()

	ref, err := s.opts.Codec.Decode(payload)
	if err != nil {
		return Result{}, err
	}

	if s.opts.MaxPayloadAge > 0 && !ref.IssuedAt.IsZero() {
		if age := s.now().Sub(ref.IssuedAt); age > s.opts.MaxPayloadAge {
			return Result{}, &StaleError{IssuedAt: ref.IssuedAt, MaxAge: s.opts.MaxPayloadAge}
		}
	}

	person, err := s.opts.Resolver.Resolve(ref, s.opts.Roster.Snapshot())
	if err != nil {
		return Result{}, err
	}

	rec, err := s.opts.Resolver.CheckIn(ctx, person, attendance.DayOf(s.now()), s.opts.Sink)
	if err != nil {
		return Result{}, err
	}

	ok = true
	return Result{Person: person, Record: rec}, nil
}

// Close ends the session. It is idempotent and safe from any goroutine.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
