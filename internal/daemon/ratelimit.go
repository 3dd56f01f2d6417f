package daemon

import (
	"sync"
	"time"
)

// rateLimiter applies a per-client sliding window. Clients are keyed by pid;
// a runaway adapter loop gets throttled without affecting other shells.
type rateLimiter struct {
	mu     sync.Mutex
	window time.Duration
	max    int
	now    func() time.Time
	hits   map[int32][]time.Time
}

const (
	defaultRateWindow = 10 * time.Second
	defaultRateMax    = 120
)

func newRateLimiter(window time.Duration, max int, now func() time.Time) *rateLimiter {
	if window <= 0 {
		window = defaultRateWindow
	}
	if max <= 0 {
		max = defaultRateMax
	}
	if now == nil {
		now = time.Now
	}
	return &rateLimiter{
		window: window,
		max:    max,
		now:    now,
		hits:   make(map[int32][]time.Time),
	}
}

// allow records one request from pid and reports whether it is within the
// window budget.
func (l *rateLimiter) allow(pid int32) bool {
	t := l.now()
	cutoff := t.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	recent := l.hits[pid][:0]
	for _, h := range l.hits[pid] {
		if h.After(cutoff) {
			recent = append(recent, h)
		}
	}
	if len(recent) >= l.max {
		l.hits[pid] = recent
		return false
	}
	l.hits[pid] = append(recent, t)
	return true
}

// sweep drops pids with no recent requests so the map stays bounded.
func (l *rateLimiter) sweep() {
	cutoff := l.now().Add(-l.window)
	l.mu.Lock()
	defer l.mu.Unlock()
	for pid, hs := range l.hits {
		if len(hs) == 0 || !hs[len(hs)-1].After(cutoff) {
			delete(l.hits, pid)
		}
	}
}
