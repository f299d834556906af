package scan

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Guard suppresses duplicate submissions of an identical payload: a
// held-steady QR code under a continuous camera decode loop produces
// the same text many times per second, and each duplicate must not
// become another check-in while one is in flight or has just landed.
//
// Acquire reports whether a check-in for the payload may start. When it
// returns true the caller must invoke release exactly once with the
// outcome; success starts the cooldown window, failure frees the
// payload for an immediate retry.
type Guard interface {
	Acquire(ctx context.Context, payload string) (release func(ok bool), acquired bool)
}

type guardEntry struct {
	inflight bool
	until    time.Time
}

// MemoryGuard tracks in-flight payloads and cooldowns for a single
// station process.
type MemoryGuard struct {
	cooldown time.Duration
	now      func() time.Time

	mu      sync.Mutex
	entries map[string]*guardEntry
}

// NewMemoryGuard creates a guard with the given post-success cooldown.
func NewMemoryGuard(cooldown time.Duration) *MemoryGuard {
	return &MemoryGuard{
		cooldown: cooldown,
		now:      time.Now,
		entries:  make(map[string]*guardEntry),
	}
}

// Acquire claims the payload unless it is in flight or cooling down.
func (g *MemoryGuard) Acquire(_ context.Context, payload string) (func(ok bool), bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	e, ok := g.entries[payload]
	if ok && (e.inflight || now.Before(e.until)) {
		return nil, false
	}
	if !ok {
		e = &guardEntry{}
		g.entries[payload] = e
	}
	e.inflight = true

	release := func(ok bool) {
		g.mu.Lock()
		defer g.mu.Unlock()
		e.inflight = false
		if ok {
			e.until = g.now().Add(g.cooldown)
		} else {
			delete(g.entries, payload)
		}
	}
	return release, true
}

// RedisGuard coordinates suppression across a fleet of stations via
// SET NX with an expiry covering the in-flight window plus cooldown.
type RedisGuard struct {
	client   *redis.Client
	cooldown time.Duration
}

// NewRedisGuard creates a fleet-wide guard.
func NewRedisGuard(client *redis.Client, cooldown time.Duration) *RedisGuard {
	return &RedisGuard{client: client, cooldown: cooldown}
}

// Acquire claims the payload key in Redis. Redis being unreachable
// fails open: a missed dedup beats a dead scanner, and delete-then-
// insert still collapses duplicates to one row.
func (g *RedisGuard) Acquire(ctx context.Context, payload string) (func(ok bool), bool) {
	key := "scanguard:" + hashPayload(payload)
	set, err := g.client.SetNX(ctx, key, "1", g.cooldown+30*time.Second).Result()
	if err != nil {
		return func(bool) {}, true
	}
	if !set {
		return nil, false
	}
	release := func(ok bool) {
		if ok {
			// Cooldown is measured from completion, not acquisition.
			g.client.Expire(context.Background(), key, g.cooldown)
		} else {
			g.client.Del(context.Background(), key)
		}
	}
	return release, true
}

func hashPayload(payload string) string {
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}
