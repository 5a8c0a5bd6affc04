package orch

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/voicenet/internal/core"
	"github.com/dkeye/voicenet/internal/domain"
	"github.com/google/uuid"
)

const simulatedEndpoint = "sim://local"

// JoinNet connects the session to netID as user.
//
// A policy denial returns AccessDenied without leaving IDLE. An active session
// on another net is fully torn down before the new attempt begins. Joining the
// net the session is already live on is a no-op.
func (o *Orchestrator) JoinNet(ctx context.Context, netID domain.NetID, user domain.User) error {
	net, err := o.deps.Nets.Get(ctx, netID)
	if err != nil {
		if domain.CodeOf(err) == "" {
			err = domain.WrapError(domain.CodeNetNotFound, "resolve net", err)
		}
		o.recordError(err)
		return err
	}

	if d := o.deps.Policy.Evaluate(user, net); !d.Allowed {
		err := domain.WrapError(domain.CodeAccessDenied, fmt.Sprintf("join %s", net.ID), errors.New(d.Reason))
		o.log.Warn().Str("net", string(net.ID)).Str("user", string(user.ID)).Str("reason", d.Reason).Msg("join denied")
		o.recordError(err)
		return err
	}

	o.mu.RLock()
	same := o.net != nil && o.net.ID == net.ID && o.user.ID == user.ID && o.state.Live()
	closed := o.closed
	o.mu.RUnlock()
	if closed {
		return domain.NewError(domain.CodeCancelled, "orchestrator closed")
	}
	if same {
		return nil
	}

	o.abandon()
	o.opMu.Lock()
	defer o.opMu.Unlock()
	o.teardownLocked(ctx, nil)

	attemptCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	instance := uuid.NewString()

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return domain.NewError(domain.CodeCancelled, "orchestrator closed")
	}
	o.gen++
	gen := o.gen
	o.state = domain.StateJoining
	o.net = &net
	o.user = user
	o.instance = instance
	o.self = domain.ParticipantIDFor(user.ID, instance)
	o.lastErr = nil
	o.cancelAttempt = cancel
	o.mu.Unlock()
	o.notify()
	o.log.Info().Str("net", string(net.ID)).Str("user", string(user.ID)).Str("instance", instance).Msg("joining")

	err = o.establish(attemptCtx, gen, net, user, instance)

	o.mu.Lock()
	if o.gen == gen {
		o.cancelAttempt = nil
	}
	o.mu.Unlock()
	return err
}

// establish acquires credentials and connects, falling back to the simulated
// backend at most once when the realtime backend is not configured.
func (o *Orchestrator) establish(ctx context.Context, gen uint64, net domain.VoiceNet, user domain.User, instance string) error {
	backend := o.cfg.PreferredBackend
	fellBack := false
	req := domain.CredentialRequest{
		NetID:            net.ID,
		UserID:           user.ID,
		DisplayName:      user.DisplayName,
		ClientInstanceID: instance,
	}

	for {
		cred, err := o.credentialFor(ctx, backend, req)
		if err == nil {
			err = o.dial(ctx, gen, backend, cred, net, user)
			if err == nil {
				return nil
			}
		}
		if errors.Is(err, domain.ErrBackendNotConfigured) && !fellBack && backend != domain.BackendSimulated {
			o.log.Info().Str("net", string(net.ID)).Msg("realtime backend not configured, using simulated backend")
			backend = domain.BackendSimulated
			fellBack = true
			continue
		}
		return o.failJoin(ctx, gen, err)
	}
}

// credentialFor returns the credential for one connection attempt. The
// simulated backend needs no issuer round trip.
func (o *Orchestrator) credentialFor(ctx context.Context, backend domain.Backend, req domain.CredentialRequest) (domain.Credential, error) {
	if backend == domain.BackendSimulated {
		return domain.Credential{
			Endpoint: simulatedEndpoint,
			RoomName: string(req.NetID),
			Identity: domain.ParticipantIDFor(req.UserID, req.ClientInstanceID),
		}, nil
	}

	attempts := 1
	if o.cfg.RetryCredentialErrors {
		attempts = 2
	}
	var err error
	for i := 0; i < attempts; i++ {
		var cred domain.Credential
		cred, err = o.issue(ctx, req)
		if err == nil {
			if cred.Identity == "" {
				cred.Identity = domain.ParticipantIDFor(req.UserID, req.ClientInstanceID)
			}
			return cred, nil
		}
		if errors.Is(err, domain.ErrBackendNotConfigured) || ctx.Err() != nil {
			return domain.Credential{}, err
		}
		o.log.Warn().Err(err).Int("attempt", i+1).Str("net", string(req.NetID)).Msg("credential request failed")
	}
	return domain.Credential{}, err
}

func (o *Orchestrator) issue(ctx context.Context, req domain.CredentialRequest) (domain.Credential, error) {
	var cred domain.Credential
	err := catch(domain.CodeCredential, "issue credential", func() error {
		var err error
		cred, err = o.deps.Credentials.Issue(ctx, req)
		return err
	})
	if err != nil && domain.CodeOf(err) == "" {
		err = domain.WrapError(domain.CodeCredential, "issue credential", err)
	}
	return cred, err
}

// dial constructs a fresh transport, connects it and installs it as the live
// one. An attempt that was abandoned meanwhile disconnects what it built.
func (o *Orchestrator) dial(ctx context.Context, gen uint64, backend domain.Backend, cred domain.Credential, net domain.VoiceNet, user domain.User) error {
	t, err := o.newTransport(backend)
	if err != nil {
		return err
	}
	conn := o.attach(t, gen)

	if _, err := o.safeConnect(ctx, t, cred, net.ID, user); err != nil {
		conn.close()
		o.safeDisconnect(ctx, t)
		return err
	}

	o.mu.Lock()
	if o.gen != gen || ctx.Err() != nil {
		o.mu.Unlock()
		conn.close()
		o.safeDisconnect(ctx, t)
		o.log.Info().Str("net", string(net.ID)).Msg("join abandoned after connect, transport discarded")
		return domain.NewError(domain.CodeCancelled, "join abandoned")
	}
	o.transport = t
	o.conn = conn
	o.backend = backend
	o.roster.Replace(o.safeParticipants(t))
	o.state = domain.StateConnected
	o.mic, o.transmit = toggle{}, toggle{}
	count := o.roster.Len()
	o.mu.Unlock()

	conn.start(o.handleEvent)
	o.heartbeat.Start(o.baseCtx)
	o.notify()
	o.log.Info().Str("net", string(net.ID)).Str("backend", string(backend)).Int("participants", count).Msg("connected")
	return nil
}

func (o *Orchestrator) newTransport(backend domain.Backend) (core.Transport, error) {
	var t core.Transport
	err := catch(domain.CodeConnect, "build transport", func() error {
		var err error
		t, err = o.deps.Transports.NewTransport(backend)
		return err
	})
	if err != nil {
		if domain.CodeOf(err) == "" {
			err = domain.WrapError(domain.CodeConnect, "build transport", err)
		}
		return nil, err
	}
	if t == nil {
		return nil, domain.WrapError(domain.CodeConnect, "build transport", fmt.Errorf("no transport for backend %q", backend))
	}
	return t, nil
}

// failJoin ends a join attempt that is still current. Abandoned attempts
// leave the state to whoever abandoned them.
func (o *Orchestrator) failJoin(ctx context.Context, gen uint64, err error) error {
	o.mu.Lock()
	if o.gen != gen {
		o.mu.Unlock()
		return domain.WrapError(domain.CodeCancelled, "join abandoned", err)
	}
	if ctx.Err() != nil {
		err = domain.WrapError(domain.CodeCancelled, "join cancelled", err)
		o.state = domain.StateIdle
		o.net = nil
		o.instance = ""
	} else {
		o.state = domain.StateError
	}
	o.roster.Clear()
	o.lastErr = err
	o.mu.Unlock()
	o.notify()
	o.log.Error().Err(err).Msg("join failed")
	return err
}
