package server

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Throttle allows one request per interval per user.
type Throttle struct {
	mu       sync.Mutex
	interval time.Duration
	users    map[int64]*throttleEntry
	now      func() time.Time
	calls    int
}

type throttleEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const throttleIdleTTL = 10 * time.Minute

func NewThrottle(interval time.Duration) *Throttle {
	return &Throttle{interval: interval, users: map[int64]*throttleEntry{}, now: time.Now}
}

// Allow reports whether userID may proceed now. A non-positive interval disables throttling.
func (t *Throttle) Allow(userID int64) bool {
	if t == nil || t.interval <= 0 {
		return true
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.calls++
	if t.calls%256 == 0 {
		t.prune(now)
	}

	e, ok := t.users[userID]
	if !ok {
		e = &throttleEntry{limiter: rate.NewLimiter(rate.Every(t.interval), 1)}
		t.users[userID] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

func (t *Throttle) prune(now time.Time) {
	for id, e := range t.users {
		if now.Sub(e.lastSeen) > throttleIdleTTL {
			delete(t.users, id)
		}
	}
}
