// Package liveness tracks when devices last reported and evicts the ones
// that have gone silent past the grace period.
package liveness

import (
	"sync"
	"time"
)

// Timing constants for the liveness sweep.
const (
	// DefaultReportGrace is how long a device may stay silent before it is
	// declared dead.
	DefaultReportGrace = 15 * time.Second

	// DefaultScanInterval is how often the sweep runs. It must be strictly
	// less than the grace period so an expired device is caught on the very
	// first sweep after it expires, bounding detection latency to one scan
	// interval past the grace period.
	DefaultScanInterval = 10 * time.Second
)

// Tracker maps device ids to the timestamp of their most recent accepted
// report. An entry exists only for devices that have reported since process
// start or since their last timeout eviction. Tracker is safe for
// concurrent use.
type Tracker struct {
	mu       sync.Mutex
	grace    time.Duration
	lastSeen map[string]time.Time
}

// NewTracker creates a tracker with the given grace period.
// A non-positive grace falls back to DefaultReportGrace.
func NewTracker(grace time.Duration) *Tracker {
	if grace <= 0 {
		grace = DefaultReportGrace
	}
	return &Tracker{
		grace:    grace,
		lastSeen: make(map[string]time.Time),
	}
}

// Touch records or refreshes the last-seen timestamp for id.
func (t *Tracker) Touch(id string, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastSeen[id] = now
}

// Known reports whether id currently has a liveness entry.
func (t *Tracker) Known(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.lastSeen[id]
	return ok
}

// Sweep removes every entry whose last-seen timestamp is older than the
// grace period and returns the evicted ids (order unspecified). This is the
// only operation that removes entries.
func (t *Tracker) Sweep(now time.Time) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := now.Add(-t.grace)
	var evicted []string
	for id, seen := range t.lastSeen {
		if seen.Before(cutoff) {
			delete(t.lastSeen, id)
			evicted = append(evicted, id)
		}
	}
	return evicted
}

// Len returns the number of tracked devices.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.lastSeen)
}
