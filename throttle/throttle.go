package throttle

import (
	"sync"
	"time"
)

const (
	// FailureWindow is how far back failed attempts count toward a ban.
	FailureWindow = 5 * time.Minute
	// MaxFailures inside the window triggers a ban.
	MaxFailures = 5
	// BanDuration is how long a banned address stays rejected.
	BanDuration = 15 * time.Minute

	cleanupInterval = time.Minute
)

type record struct {
	attempts []time.Time
	banUntil time.Time
}

// Tracker counts authentication failures per originating address and
// temporarily bans repeat offenders. State is process-local and resets on
// restart.
type Tracker struct {
	mu      sync.Mutex
	records map[string]*record

	window time.Duration
	max    int
	ban    time.Duration
	now    func() time.Time
}

// NewTracker creates a tracker with the default window, threshold and ban
// duration, and starts a background janitor for stale entries.
func NewTracker() *Tracker {
	t := newTracker()
	go t.janitor()
	return t
}

func newTracker() *Tracker {
	return &Tracker{
		records: make(map[string]*record),
		window:  FailureWindow,
		max:     MaxFailures,
		ban:     BanDuration,
		now:     time.Now,
	}
}

// IsBanned reports whether addr is currently banned and, if so, the
// remaining ban time. A lapsed ban clears the accumulated attempt history,
// so the failure count restarts from zero.
func (t *Tracker) IsBanned(addr string) (bool, time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.records[addr]
	if !ok {
		return false, 0
	}

	now := t.now()
	if !r.banUntil.IsZero() {
		if now.Before(r.banUntil) {
			return true, r.banUntil.Sub(now)
		}
		r.banUntil = time.Time{}
		r.attempts = nil
	}
	return false, 0
}

// RecordFailure registers a failed authentication from addr. Attempts older
// than the window are dropped first; reaching the threshold sets a ban.
// Returns true when this failure triggered a ban.
func (t *Tracker) RecordFailure(addr string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	r, ok := t.records[addr]
	if !ok {
		r = &record{}
		t.records[addr] = r
	}

	kept := r.attempts[:0]
	for _, at := range r.attempts {
		if now.Sub(at) < t.window {
			kept = append(kept, at)
		}
	}
	r.attempts = append(kept, now)

	if len(r.attempts) >= t.max {
		r.banUntil = now.Add(t.ban)
		return true
	}
	return false
}

func (t *Tracker) janitor() {
	for {
		time.Sleep(cleanupInterval)
		t.mu.Lock()
		now := t.now()
		for addr, r := range t.records {
			if !r.banUntil.IsZero() && now.Before(r.banUntil) {
				continue
			}
			stale := true
			for _, at := range r.attempts {
				if now.Sub(at) < t.window {
					stale = false
					break
				}
			}
			if stale {
				delete(t.records, addr)
			}
		}
		t.mu.Unlock()
	}
}
