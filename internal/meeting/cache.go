package meeting

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/bryan-buckman/confsync/internal/model"
)

const (
	// OngoingTTL is how long a selection stays fresh while its meeting runs.
	OngoingTTL = time.Hour
	// IdleTTL is how long a selection stays fresh otherwise.
	IdleTTL = 24 * time.Hour
	// MaxJitter bounds the random extension added on every freshness check.
	MaxJitter = 5 * time.Minute
)

// RefreshFunc selects a meeting from scratch. prev is the cached value (may
// be nil); returning nil means the refresh failed or found nothing.
type RefreshFunc func(ctx context.Context, prev *model.MeetingMetadata) *model.MeetingMetadata

// Cache holds the selected meeting and when it was selected.
type Cache struct {
	mu      sync.Mutex
	meeting *model.MeetingMetadata
	stamp   time.Time

	now    func() time.Time
	jitter func() time.Duration
}

// NewCache returns an empty cache using the wall clock and uniform jitter in [0, MaxJitter).
func NewCache() *Cache {
	return &Cache{
		now:    time.Now,
		jitter: func() time.Duration { return time.Duration(rand.Int63n(int64(MaxJitter))) },
	}
}

// WithClock overrides the time source and jitter; used by tests.
func (c *Cache) WithClock(now func() time.Time, jitter func() time.Duration) *Cache {
	c.mu.Lock()
	defer c.mu.Unlock()
	if now != nil {
		c.now = now
	}
	if jitter != nil {
		c.jitter = jitter
	}
	return c
}

// Invalidate drops the cached selection.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.meeting = nil
	c.stamp = time.Time{}
}

// Peek returns the cached meeting without validating it.
func (c *Cache) Peek() *model.MeetingMetadata {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copyMeeting(c.meeting)
}

// Set stores m as freshly selected.
func (c *Cache) Set(m *model.MeetingMetadata) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.meeting = copyMeeting(m)
	c.stamp = c.now()
}

// CheckAndMaybeRefresh returns the cached meeting while fresh, otherwise
// runs refresh under the lock. A failed refresh keeps and returns the stale
// value without restamping it, so the next call tries again.
func (c *Cache) CheckAndMaybeRefresh(ctx context.Context, refresh RefreshFunc) *model.MeetingMetadata {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.fresh(now) {
		return copyMeeting(c.meeting)
	}

	selected := refresh(ctx, copyMeeting(c.meeting))
	if selected == nil {
		return copyMeeting(c.meeting)
	}
	c.meeting = copyMeeting(selected)
	c.stamp = c.now()
	return copyMeeting(c.meeting)
}

// fresh applies the TTL rule; the jitter is drawn on every call.
func (c *Cache) fresh(now time.Time) bool {
	if c.meeting == nil || c.stamp.IsZero() {
		return false
	}
	ttl := IdleTTL
	if c.meeting.Ongoing(now) {
		ttl = OngoingTTL
	}
	return now.Sub(c.stamp) < ttl+c.jitter()
}

func copyMeeting(m *model.MeetingMetadata) *model.MeetingMetadata {
	if m == nil {
		return nil
	}
	cp := *m
	return &cp
}
