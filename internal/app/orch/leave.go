package orch

import (
	"context"
	"time"

	"github.com/dkeye/voicenet/internal/domain"
)

// LeaveNet tears down whatever the session holds and returns to IDLE.
// Leaving while JOINING cancels the attempt. Leaving while IDLE does nothing.
func (o *Orchestrator) LeaveNet(ctx context.Context) error {
	o.abandon()
	o.opMu.Lock()
	defer o.opMu.Unlock()
	o.teardownLocked(ctx, nil)
	return nil
}

// abandon invalidates the in-flight join attempt and stops the reconnect
// loop. It must be called without opMu held: both may be waiting on it.
func (o *Orchestrator) abandon() {
	o.mu.Lock()
	o.gen++
	if o.cancelAttempt != nil {
		o.cancelAttempt()
		o.cancelAttempt = nil
	}
	rc := o.recon
	o.mu.Unlock()

	if rc != nil {
		rc.stop()
	}
}

// abandonIf is abandon for event-driven shutdowns: it does nothing when the
// connection that raised the event is already gone. It returns the client
// instance the event belonged to.
func (o *Orchestrator) abandonIf(gen uint64) (string, bool) {
	o.mu.RLock()
	current := o.gen == gen
	instance := o.instance
	o.mu.RUnlock()
	if !current {
		return "", false
	}
	o.abandon()
	return instance, true
}

// teardownLocked releases heartbeat, subscriptions and transport, in that
// order, then resets the session to IDLE with cause as LastError.
// Caller holds opMu.
func (o *Orchestrator) teardownLocked(ctx context.Context, cause error) {
	o.mu.Lock()
	if o.state == domain.StateIdle && o.transport == nil && o.conn == nil {
		o.mu.Unlock()
		return
	}
	o.gen++
	conn, t := o.conn, o.transport
	prevState := o.state
	var netID domain.NetID
	if o.net != nil {
		netID = o.net.ID
	}
	instance := o.instance
	o.conn, o.transport = nil, nil
	o.mu.Unlock()

	o.heartbeat.Stop()
	if conn != nil {
		conn.close()
	}
	if t != nil {
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.teardownTimeout())
		o.safeDisconnect(dctx, t)
		cancel()
	}
	if netID != "" {
		o.deleteRecord(netID, instance)
	}

	o.mu.Lock()
	o.state = domain.StateIdle
	o.net = nil
	o.self = ""
	o.instance = ""
	o.backend = domain.BackendNone
	o.roster.Clear()
	o.mic, o.transmit = toggle{}, toggle{}
	o.lastErr = cause
	o.mu.Unlock()
	o.notify()

	ev := o.log.Info()
	if cause != nil {
		ev = o.log.Warn().Err(cause)
	}
	ev.Str("net", string(netID)).Str("from", string(prevState)).Msg("session torn down")
}

func (o *Orchestrator) teardownTimeout() time.Duration {
	if o.cfg.TeardownTimeout > 0 {
		return o.cfg.TeardownTimeout
	}
	return 5 * time.Second
}

// shutdown is the event-driven teardown, run off the drain goroutine.
func (o *Orchestrator) shutdown(gen uint64, cause error) {
	instance, ok := o.abandonIf(gen)
	if !ok {
		return
	}
	o.opMu.Lock()
	defer o.opMu.Unlock()
	o.mu.RLock()
	replaced := o.instance != instance
	o.mu.RUnlock()
	if replaced {
		return
	}
	o.teardownLocked(o.baseCtx, cause)
}
