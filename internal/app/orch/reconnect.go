package orch

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/dkeye/voicenet/internal/core"
	"github.com/dkeye/voicenet/internal/domain"
)

type reconnector struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// stop cancels the loop and waits for it to return.
func (r *reconnector) stop() {
	r.cancel()
	<-r.done
}

// startReconnectLocked launches the reconnect loop unless one is running.
// Caller holds mu.
func (o *Orchestrator) startReconnectLocked() {
	if o.recon != nil {
		return
	}
	ctx, cancel := context.WithCancel(o.baseCtx)
	rc := &reconnector{cancel: cancel, done: make(chan struct{})}
	o.recon = rc
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer close(rc.done)
		defer cancel()
		o.reconnectLoop(ctx, rc)
	}()
}

func (o *Orchestrator) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = o.cfg.Reconnect.InitialDelay
	b.MaxInterval = o.cfg.Reconnect.MaxDelay
	b.Multiplier = 2
	b.RandomizationFactor = o.cfg.Reconnect.Jitter
	b.Reset()
	return b
}

// reconnectLoop redials with exponential delays until a redial succeeds, the
// transport recovers on its own (ctx cancelled), or the attempt or duration
// limit is reached, which tears the session down with ReconnectExhausted.
func (o *Orchestrator) reconnectLoop(ctx context.Context, rc *reconnector) {
	defer func() {
		o.mu.Lock()
		if o.recon == rc {
			o.recon = nil
		}
		o.mu.Unlock()
	}()

	b := o.newBackOff()
	deadline := time.Now().Add(o.cfg.Reconnect.MaxDuration)
	failures := 0
	var lastErr error

	for {
		delay := b.NextBackOff()
		if remaining := time.Until(deadline); delay > remaining {
			delay = max(remaining, 0)
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		done, err := o.redial(ctx, rc)
		if done {
			return
		}
		failures++
		lastErr = err
		o.log.Warn().Err(err).Int("attempt", failures).Msg("reconnect attempt failed")

		if failures >= o.cfg.Reconnect.MaxAttempts || !time.Now().Before(deadline) {
			o.exhaust(ctx, rc, failures, lastErr)
			return
		}
	}
}

// redial replaces the lost transport with a fresh one: the old instance is
// released first, then a new credential and transport are obtained.
// It reports done when the loop should stop for any reason other than failure.
func (o *Orchestrator) redial(ctx context.Context, rc *reconnector) (bool, error) {
	o.opMu.Lock()
	defer o.opMu.Unlock()

	o.mu.Lock()
	if ctx.Err() != nil || o.recon != rc || o.state != domain.StateReconnecting || o.net == nil {
		o.mu.Unlock()
		return true, nil
	}
	o.gen++
	gen := o.gen
	oldConn, oldT := o.conn, o.transport
	o.conn, o.transport = nil, nil
	net, user, instance, backend := *o.net, o.user, o.instance, o.backend
	o.mu.Unlock()

	if oldConn != nil {
		oldConn.close()
	}
	if oldT != nil {
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.teardownTimeout())
		o.safeDisconnect(dctx, oldT)
		cancel()
	}

	req := domain.CredentialRequest{
		NetID:            net.ID,
		UserID:           user.ID,
		DisplayName:      user.DisplayName,
		ClientInstanceID: instance,
	}
	cred, err := o.credentialFor(ctx, backend, req)
	if err != nil {
		return false, err
	}
	t, err := o.newTransport(backend)
	if err != nil {
		return false, err
	}
	conn := o.attach(t, gen)
	if _, err := o.safeConnect(ctx, t, cred, net.ID, user); err != nil {
		conn.close()
		o.safeDisconnect(context.WithoutCancel(ctx), t)
		return false, err
	}

	o.mu.Lock()
	if ctx.Err() != nil || o.gen != gen || o.recon != rc {
		o.mu.Unlock()
		conn.close()
		o.safeDisconnect(context.WithoutCancel(ctx), t)
		return true, nil
	}
	o.transport, o.conn = t, conn
	o.roster.Replace(o.safeParticipants(t))
	o.state = domain.StateConnected
	o.lastErr = nil
	o.recon = nil
	mic, transmit := o.mic.intent, o.transmit.intent
	o.mu.Unlock()

	conn.start(o.handleEvent)
	o.reapply(ctx, t, mic, transmit)
	o.notify()
	o.log.Info().Str("net", string(net.ID)).Msg("reconnected")
	return true, nil
}

// reapply pushes the retained control intents onto a fresh transport.
func (o *Orchestrator) reapply(ctx context.Context, t core.Transport, mic, transmit bool) {
	if mic {
		if err := o.safeCall(domain.CodeDevice, "restore mic", func() error { return t.SetMicEnabled(ctx, true) }); err != nil {
			o.mu.Lock()
			o.mic = toggle{}
			o.lastErr = err
			o.mu.Unlock()
		}
	}
	if transmit {
		if err := o.safeCall(domain.CodeDevice, "restore transmit", func() error { return t.SetTransmitActive(ctx, true) }); err != nil {
			o.mu.Lock()
			o.transmit = toggle{}
			o.lastErr = err
			o.mu.Unlock()
		}
	}
}

func (o *Orchestrator) exhaust(ctx context.Context, rc *reconnector, attempts int, lastErr error) {
	o.opMu.Lock()
	defer o.opMu.Unlock()

	o.mu.RLock()
	current := ctx.Err() == nil && o.recon == rc && o.state == domain.StateReconnecting
	o.mu.RUnlock()
	if !current {
		return
	}
	o.log.Error().Err(lastErr).Int("attempts", attempts).Msg("reconnect exhausted")
	o.teardownLocked(ctx, domain.WrapError(domain.CodeReconnectExhausted, "reconnect exhausted", lastErr))
}
