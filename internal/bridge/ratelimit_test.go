package bridge

import (
	"sync"
	"testing"
	"time"
)

func TestRateLimiterRollingWindow(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	now := time.Date(2024, time.March, 11, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		now = now.Add(d)
		mu.Unlock()
	}

	l := newRateLimiter(2, clock)

	if !l.allow("u1") || !l.allow("u1") {
		t.Fatal("first two connections should be allowed")
	}
	if l.allow("u1") {
		t.Error("third connection within the window should be denied")
	}
	if !l.allow("u2") {
		t.Error("other keys have independent budgets")
	}

	// 59s later the oldest entries are still inside the window.
	advance(59 * time.Second)
	if l.allow("u1") {
		t.Error("entries 59s old still count")
	}

	// At exactly 60s the original entries expire before the check.
	advance(time.Second)
	if !l.allow("u1") {
		t.Error("entries exactly one window old should have expired")
	}
}

func TestRateLimiterDefaultCapacity(t *testing.T) {
	t.Parallel()

	l := newRateLimiter(0, time.Now)
	for i := 0; i < defaultRateCapacity; i++ {
		if !l.allow("k") {
			t.Fatalf("connection %d should fit the default budget", i+1)
		}
	}
	if l.allow("k") {
		t.Error("default budget should be exhausted")
	}
}
