package executor

import (
	"sync"
	"time"
)

// Dedup remembers opportunity fingerprints for a fixed window so that the
// same spread is not traded twice by overlapping scans. It is safe for
// concurrent use.
type Dedup struct {
	mu     sync.Mutex
	seen   map[string]time.Time // fingerprint -> first seen
	window time.Duration
	now    func() time.Time
}

// NewDedup returns a Dedup with the given window. A zero window disables it.
func NewDedup(window time.Duration) *Dedup {
	return &Dedup{
		seen:   make(map[string]time.Time),
		window: window,
		now:    time.Now,
	}
}

// Seen reports whether key was recorded inside the window. A key that was not
// seen (or has expired) is recorded and false is returned.
func (d *Dedup) Seen(key string) bool {
	if d.window <= 0 {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if at, ok := d.seen[key]; ok && now.Sub(at) < d.window {
		return true
	}
	d.seen[key] = now
	return false
}

// Forget drops key so the next Seen call records it afresh.
func (d *Dedup) Forget(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, key)
}

// Cleanup drops expired entries. Call it periodically.
func (d *Dedup) Cleanup() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	removed := 0
	for key, at := range d.seen {
		if now.Sub(at) >= d.window {
			delete(d.seen, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of remembered keys.
func (d *Dedup) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
