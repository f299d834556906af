package scan

import (
	"context"
	"testing"
	"time"
)

func TestMemoryGuardSuppressesInFlight(t *testing.T) {
	g := NewMemoryGuard(5 * time.Second)
	ctx := context.Background()

	release, ok := g.Acquire(ctx, "payload-a")
	if !ok {
		t.Fatal("first acquire refused")
	}
	if _, ok := g.Acquire(ctx, "payload-a"); ok {
		t.Error("duplicate acquired while the first is in flight")
	}
	if _, ok := g.Acquire(ctx, "payload-b"); !ok {
		t.Error("unrelated payload suppressed")
	}
	release(true)
}

func TestMemoryGuardCooldown(t *testing.T) {
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	g := NewMemoryGuard(5 * time.Second)
	g.now = func() time.Time { return now }
	ctx := context.Background()

	release, ok := g.Acquire(ctx, "payload-a")
	if !ok {
		t.Fatal("first acquire refused")
	}
	release(true)

	if _, ok := g.Acquire(ctx, "payload-a"); ok {
		t.Error("acquired during cooldown")
	}

	now = now.Add(6 * time.Second)
	if _, ok := g.Acquire(ctx, "payload-a"); !ok {
		t.Error("still suppressed after the cooldown elapsed")
	}
}

func TestMemoryGuardFailureFreesImmediately(t *testing.T) {
	g := NewMemoryGuard(time.Hour)
	ctx := context.Background()

	release, ok := g.Acquire(ctx, "payload-a")
	if !ok {
		t.Fatal("first acquire refused")
	}
	release(false)

	// A failed check-in must not start the cooldown; the user retries
	// right away.
	if _, ok := g.Acquire(ctx, "payload-a"); !ok {
		t.Error("payload still suppressed after a failed attempt")
	}
}
