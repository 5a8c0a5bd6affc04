package app

import (
	"context"
	"sync"
	"time"
)

// Heartbeat calls beat on a fixed interval until stopped.
// Stop waits for the loop to exit, so a stopped heartbeat never fires again.
type Heartbeat struct {
	interval time.Duration
	beat     func(ctx context.Context)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewHeartbeat(interval time.Duration, beat func(ctx context.Context)) *Heartbeat {
	return &Heartbeat{interval: interval, beat: beat}
}

// Start beats once immediately, then on every tick. Starting a running heartbeat is a no-op.
func (h *Heartbeat) Start(parent context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	h.cancel, h.done = cancel, done

	go func() {
		defer close(done)
		ticker := time.NewTicker(h.interval)
		defer ticker.Stop()

		h.beat(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if ctx.Err() != nil {
					return
				}
				h.beat(ctx)
			}
		}
	}()
}

func (h *Heartbeat) Stop() {
	h.mu.Lock()
	cancel, done := h.cancel, h.done
	h.cancel, h.done = nil, nil
	h.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (h *Heartbeat) Running() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancel != nil
}
