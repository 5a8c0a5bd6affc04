package orch

import (
	"context"
	"errors"
	"sync"

	"github.com/dkeye/voicenet/internal/core"
	"github.com/dkeye/voicenet/internal/domain"
)

// connection is one transport instance's event feed. Transport callbacks
// only enqueue; a single goroutine drains the mailbox in arrival order, so a
// slow handler never blocks the transport and events are never reordered.
type connection struct {
	gen   uint64
	unsub []func()

	mu      sync.Mutex
	queue   []core.Event
	wake    chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
	closed  bool
}

// attach subscribes a mailbox to every event kind of t. Events are buffered
// until start is called, so nothing emitted during Connect is lost.
func (o *Orchestrator) attach(t core.Transport, gen uint64) *connection {
	ctx, cancel := context.WithCancel(o.baseCtx)
	c := &connection{
		gen:    gen,
		wake:   make(chan struct{}, 1),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	for _, kind := range core.AllEventKinds {
		unsub, err := o.safeSubscribe(t, kind, c.push)
		if err != nil {
			o.log.Warn().Err(err).Str("kind", string(kind)).Msg("subscribe failed")
			continue
		}
		c.unsub = append(c.unsub, unsub)
	}
	return c
}

func (c *connection) push(ev core.Event) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.queue = append(c.queue, ev)
	c.mu.Unlock()
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *connection) start(handle func(gen uint64, ev core.Event)) {
	c.mu.Lock()
	if c.started || c.closed {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()
	go c.drain(handle)
}

func (c *connection) drain(handle func(gen uint64, ev core.Event)) {
	defer close(c.done)
	for {
		c.mu.Lock()
		batch := c.queue
		c.queue = nil
		c.mu.Unlock()

		for _, ev := range batch {
			if c.ctx.Err() != nil {
				return
			}
			handle(c.gen, ev)
		}
		if len(batch) > 0 {
			continue
		}
		select {
		case <-c.ctx.Done():
			return
		case <-c.wake:
		}
	}
}

// close unsubscribes, stops the drain and waits for it. Idempotent.
// Must not be called from the drain goroutine.
func (c *connection) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	started := c.started
	c.queue = nil
	c.mu.Unlock()

	for _, u := range c.unsub {
		u()
	}
	c.cancel()
	if started {
		<-c.done
	}
}

// handleEvent applies one transport event. Events from a connection that is
// no longer current are dropped. It runs on the drain goroutine and never
// takes opMu; anything that needs a full transition is handed off.
func (o *Orchestrator) handleEvent(gen uint64, ev core.Event) {
	o.mu.Lock()
	if o.gen != gen {
		o.mu.Unlock()
		return
	}

	switch ev.Kind {
	case core.EventParticipantJoined, core.EventSpeakingChanged:
		if !o.state.Live() {
			o.mu.Unlock()
			return
		}
		changed := o.roster.Apply(ev)
		o.mu.Unlock()
		if changed {
			o.notify()
		}

	case core.EventParticipantLeft:
		if !o.state.Live() {
			o.mu.Unlock()
			return
		}
		if ev.ParticipantID == o.self {
			o.mu.Unlock()
			o.log.Warn().Str("participant", string(ev.ParticipantID)).Msg("removed from net by server")
			o.goShutdown(gen, domain.WrapError(domain.CodeConnectionLost, "removed from net", ev.Err))
			return
		}
		changed := o.roster.Apply(ev)
		o.mu.Unlock()
		if changed {
			o.notify()
		}

	case core.EventConnectionLost, core.EventDisconnected, core.EventReconnecting:
		if o.state != domain.StateConnected {
			o.mu.Unlock()
			return
		}
		cause := ev.Err
		if cause == nil {
			cause = errors.New(string(ev.Kind))
		}
		o.state = domain.StateReconnecting
		o.lastErr = domain.WrapError(domain.CodeConnectionLost, "connection lost", cause)
		o.startReconnectLocked()
		o.mu.Unlock()
		o.log.Warn().Str("event", string(ev.Kind)).Err(cause).Msg("connection lost, reconnecting")
		o.notify()

	case core.EventReconnected:
		if o.state != domain.StateReconnecting || o.transport == nil {
			o.mu.Unlock()
			return
		}
		o.roster.Replace(o.safeParticipants(o.transport))
		o.state = domain.StateConnected
		o.lastErr = nil
		rc := o.recon
		o.recon = nil
		o.mu.Unlock()
		if rc != nil {
			rc.cancel()
		}
		o.log.Info().Msg("transport recovered")
		o.notify()

	case core.EventError:
		// Control flags are settled by the call that changed them, not here.
		o.lastErr = classify(ev)
		o.mu.Unlock()
		o.log.Warn().Err(ev.Err).Str("control", string(ev.Control)).Msg("transport error")
		o.notify()

	default:
		o.mu.Unlock()
	}
}

func (o *Orchestrator) goShutdown(gen uint64, cause error) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.shutdown(gen, cause)
	}()
}

func classify(ev core.Event) error {
	if domain.CodeOf(ev.Err) != "" {
		return ev.Err
	}
	cause := ev.Err
	if cause == nil {
		cause = errors.New("transport error")
	}
	if ev.Control != core.ControlNone {
		return domain.WrapError(domain.CodeDevice, string(ev.Control), cause)
	}
	return domain.WrapError(domain.CodeConnect, "transport", cause)
}
