package contentstore

import (
	"context"
	"sync"
	"time"

	"PulsePrice/internal/domain/models"
	domrepo "PulsePrice/internal/domain/repository"
)

type record struct {
	ts    int64     // unix ms, as produced
	at    time.Time // arrival
	kind  models.EngagementKind
	count int64
}

// EventCounter is a Content Store backed by engagement events consumed from
// Kafka. Windows are matched against arrival time so an event that lags
// behind a tick is counted by the next one. Events produced before the
// retention window are discarded.
type EventCounter struct {
	mu        sync.RWMutex
	records   map[string][]record
	retention time.Duration
	now       func() time.Time
}

func NewEventCounter(retention time.Duration) *EventCounter {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &EventCounter{
		records:   make(map[string][]record),
		retention: retention,
		now:       time.Now,
	}
}

// WithClock replaces the clock used for arrival stamps and retention.
func (c *EventCounter) WithClock(now func() time.Time) *EventCounter {
	c.now = now
	return c
}

// Record stores a validated event. Events already outside retention are dropped.
func (c *EventCounter) Record(ev models.EngagementEvent) {
	kind, ok := models.ParseEngagementKind(ev.Kind)
	if !ok || ev.Count <= 0 {
		return
	}
	cutoff := c.now().Add(-c.retention).UnixMilli()
	if ev.Timestamp < cutoff {
		return
	}

	// stamped under the lock so a reader that started after the stamp sees it
	c.mu.Lock()
	c.records[ev.TokenID] = append(c.records[ev.TokenID], record{ts: ev.Timestamp, at: c.now(), kind: kind, count: ev.Count})
	c.mu.Unlock()
}

// CountEngagement sums events that arrived with since <= arrival < until.
func (c *EventCounter) CountEngagement(_ context.Context, tokenID string, since, until time.Time) (map[models.EngagementKind]int64, error) {
	out := make(map[models.EngagementKind]int64)

	c.mu.RLock()
	for _, r := range c.records[tokenID] {
		if !r.at.Before(since) && r.at.Before(until) {
			out[r.kind] += r.count
		}
	}
	c.mu.RUnlock()
	return out, nil
}

// Prune drops records outside retention and returns how many were removed.
func (c *EventCounter) Prune() int {
	cutoff := c.now().Add(-c.retention).UnixMilli()
	removed := 0

	c.mu.Lock()
	defer c.mu.Unlock()
	for id, recs := range c.records {
		kept := recs[:0]
		for _, r := range recs {
			if r.ts >= cutoff {
				kept = append(kept, r)
			}
		}
		removed += len(recs) - len(kept)
		if len(kept) == 0 {
			delete(c.records, id)
			continue
		}
		c.records[id] = kept
	}
	return removed
}

// Run prunes every interval until ctx is done.
func (c *EventCounter) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			c.Prune()
		}
	}
}

var _ domrepo.ContentStore = (*EventCounter)(nil)
