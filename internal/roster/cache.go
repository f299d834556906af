package roster

import (
	"context"
	"log"
	"sync"
	"time"
)

// Cache holds the current roster snapshot and refreshes it from a
// Source on an interval. Readers always get a complete snapshot; a
// failed refresh keeps serving the previous one.
type Cache struct {
	source Source

	mu   sync.RWMutex
	snap Snapshot
}

// NewCache creates a cache over the given source. Call Refresh once
// before serving, then Run in a goroutine.
func NewCache(source Source) *Cache {
	return &Cache{source: source}
}

// Refresh reloads both rosters from the source.
func (c *Cache) Refresh(ctx context.Context) error {
	students, err := c.source.ListStudents(ctx)
	if err != nil {
		return err
	}
	staff, err := c.source.ListStaff(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.snap = Snapshot{Students: students, Staff: staff, Taken: time.Now().UTC()}
	c.mu.Unlock()
	return nil
}

// Snapshot returns the most recently loaded roster view.
func (c *Cache) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// Run refreshes on the given interval until ctx is cancelled.
func (c *Cache) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := c.Refresh(ctx); err != nil {
				log.Printf("roster: refresh failed: %v", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
