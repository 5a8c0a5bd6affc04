package http

import (
	"sync"
	"time"

	"github.com/dkeye/voicenet/internal/app/orch"
	"github.com/samber/lo"
)

// JoinRateLimiter allows at most limit join attempts per client in any
// sliding window of interval. A non-positive limit disables it.
type JoinRateLimiter struct {
	mu       sync.Mutex
	history  map[orch.ClientID][]time.Time
	limit    int
	interval time.Duration
	now      func() time.Time
}

func NewJoinRateLimiter(limit int, interval time.Duration) *JoinRateLimiter {
	return &JoinRateLimiter{
		history:  make(map[orch.ClientID][]time.Time),
		limit:    limit,
		interval: interval,
		now:      time.Now,
	}
}

func (rl *JoinRateLimiter) Allow(id orch.ClientID) bool {
	if rl.limit <= 0 {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	windowStart := now.Add(-rl.interval)
	fresh := lo.Filter(rl.history[id], func(t time.Time, _ int) bool {
		return t.After(windowStart)
	})
	if len(fresh) >= rl.limit {
		rl.history[id] = fresh
		return false
	}
	rl.history[id] = append(fresh, now)
	return true
}

// Forget drops a client's history.
func (rl *JoinRateLimiter) Forget(id orch.ClientID) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.history, id)
}
