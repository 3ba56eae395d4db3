// Package ratelimit throttles search requests per user with a sliding window
// log.
package ratelimit

import (
	"sync"
	"time"
)

const (
	DefaultMaxRequests = 5
	DefaultWindow      = time.Minute
)

// window is the admitted request log of one user, oldest first.
type window struct {
	mu    sync.Mutex
	times []time.Time
	// dead is set once Prune has unlinked the window from the map.
	dead bool
}

// Limiter admits at most maxRequests per user within any trailing window.
// Rejected attempts are not recorded.
type Limiter struct {
	mu          sync.RWMutex
	windows     map[int64]*window
	maxRequests int
	window      time.Duration
	now         func() time.Time
}

func New(maxRequests int, w time.Duration) *Limiter {
	if maxRequests <= 0 {
		maxRequests = DefaultMaxRequests
	}
	if w <= 0 {
		w = DefaultWindow
	}
	return &Limiter{
		windows:     make(map[int64]*window),
		maxRequests: maxRequests,
		window:      w,
		now:         time.Now,
	}
}

// Allow reports whether userID may proceed and records the attempt if so.
func (l *Limiter) Allow(userID int64) bool {
	for {
		w := l.windowFor(userID)
		now := l.now()

		w.mu.Lock()
		if w.dead {
			w.mu.Unlock()
			continue
		}
		w.evict(now.Add(-l.window))
		if len(w.times) >= l.maxRequests {
			w.mu.Unlock()
			return false
		}
		w.times = append(w.times, now)
		w.mu.Unlock()
		return true
	}
}

// Prune drops windows whose requests have all aged out and returns how many
// were removed.
func (l *Limiter) Prune() int {
	cutoff := l.now().Add(-l.window)
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for id, w := range l.windows {
		w.mu.Lock()
		w.evict(cutoff)
		empty := len(w.times) == 0
		if empty {
			w.dead = true
		}
		w.mu.Unlock()
		if empty {
			delete(l.windows, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of users currently tracked.
func (l *Limiter) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.windows)
}

func (l *Limiter) windowFor(userID int64) *window {
	l.mu.RLock()
	w, ok := l.windows[userID]
	l.mu.RUnlock()
	if ok {
		return w
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if w, ok = l.windows[userID]; ok {
		return w
	}
	w = &window{times: make([]time.Time, 0, l.maxRequests)}
	l.windows[userID] = w
	return w
}

// evict drops timestamps older than cutoff. Caller holds w.mu.
func (w *window) evict(cutoff time.Time) {
	i := 0
	for i < len(w.times) && w.times[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		w.times = append(w.times[:0], w.times[i:]...)
	}
}
