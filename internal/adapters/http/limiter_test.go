package http

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func Test_JoinRateLimiter_SlidingWindow(t *testing.T) {
	req := require.New(t)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rl := NewJoinRateLimiter(2, 10*time.Second)
	rl.now = func() time.Time { return now }

	req.True(rl.Allow("a"))
	req.True(rl.Allow("a"))
	req.False(rl.Allow("a"))
	req.True(rl.Allow("b"), "clients are limited independently")

	now = now.Add(11 * time.Second)
	req.True(rl.Allow("a"))

	rl.Forget("a")
	req.True(rl.Allow("a"))
	req.True(rl.Allow("a"))
	req.False(rl.Allow("a"))
}

func Test_JoinRateLimiter_Disabled(t *testing.T) {
	rl := NewJoinRateLimiter(0, time.Second)
	for i := 0; i < 100; i++ {
		require.True(t, rl.Allow("a"))
	}
}
