package bridge

import (
	"sync"
	"time"
)

// defaultRateCapacity is the per-key connection budget within one window.
const defaultRateCapacity = 10

// rateWindow is the rolling window length for connection rate limiting.
const rateWindow = time.Minute

// rateLimiter is a per-key rolling-window counter. A key is the userID when
// known, otherwise the client's IP.
type rateLimiter struct {
	mu       sync.Mutex
	capacity int
	window   time.Duration
	now      func() time.Time
	hits     map[string][]time.Time
}

func newRateLimiter(capacity int, now func() time.Time) *rateLimiter {
	if capacity <= 0 {
		capacity = defaultRateCapacity
	}
	return &rateLimiter{
		capacity: capacity,
		window:   rateWindow,
		now:      now,
		hits:     make(map[string][]time.Time),
	}
}

// allow records one connection attempt for key and reports whether it fits in
// the window. Entries exactly one window old expire before the capacity check.
func (l *rateLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	kept := l.hits[key][:0]
	for _, t := range l.hits[key] {
		if now.Sub(t) < l.window {
			kept = append(kept, t)
		}
	}

	if len(kept) >= l.capacity {
		l.hits[key] = kept
		return false
	}

	l.hits[key] = append(kept, now)
	return true
}
