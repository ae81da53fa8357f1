// Package cooldown rate-limits command use per sender.
package cooldown

import (
	"sync"
	"time"
)

// Tracker remembers the last allowed invocation per sender key. Entries are
// never evicted; the map grows with the number of distinct senders.
type Tracker struct {
	mu   sync.Mutex
	last map[string]time.Time
	now  func() time.Time
}

// New returns an empty tracker on the wall clock.
func New() *Tracker {
	return NewWithClock(time.Now)
}

// NewWithClock returns a tracker reading time from now.
func NewWithClock(now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{last: make(map[string]time.Time), now: now}
}

// Check reports whether key is still on cooldown. A rejected check leaves the
// stored timestamp alone; an allowed one re-arms the window.
func (t *Tracker) Check(key string, minInterval time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if prev, ok := t.last[key]; ok && minInterval > 0 && now.Sub(prev) < minInterval {
		return true
	}

	t.last[key] = now
	return false
}

// Len returns the number of tracked senders.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.last)
}

// Remaining returns how long key stays on cooldown under minInterval. Zero
// means the next Check is allowed.
func (t *Tracker) Remaining(key string, minInterval time.Duration) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev, ok := t.last[key]
	if !ok || minInterval <= 0 {
		return 0
	}
	if wait := minInterval - t.now().Sub(prev); wait > 0 {
		return wait
	}
	return 0
}
