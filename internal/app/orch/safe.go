package orch

import (
	"context"

	"github.com/dkeye/voicenet/internal/core"
	"github.com/dkeye/voicenet/internal/domain"
	"github.com/sourcegraph/conc/panics"
)

// catch runs fn and turns a panic into a domain error with the given code.
func catch(code domain.Code, op string, fn func() error) error {
	var err error
	var pc panics.Catcher
	pc.Try(func() { err = fn() })
	if r := pc.Recovered(); r != nil {
		return domain.WrapError(code, op, r.AsError())
	}
	return err
}

func (o *Orchestrator) safeCall(code domain.Code, op string, fn func() error) error {
	err := catch(code, op, fn)
	if err != nil && domain.CodeOf(err) == "" {
		err = domain.WrapError(code, op, err)
	}
	return err
}

func (o *Orchestrator) safeConnect(ctx context.Context, t core.Transport, cred domain.Credential, netID domain.NetID, user domain.User) ([]domain.Participant, error) {
	var ps []domain.Participant
	err := o.safeCall(domain.CodeConnect, "connect", func() error {
		var err error
		ps, err = t.Connect(ctx, cred, netID, user)
		return err
	})
	return ps, err
}

// safeDisconnect never fails the caller; disconnect errors are only logged.
func (o *Orchestrator) safeDisconnect(ctx context.Context, t core.Transport) {
	if err := o.safeCall(domain.CodeConnect, "disconnect", func() error { return t.Disconnect(ctx) }); err != nil {
		o.log.Warn().Err(err).Msg("transport disconnect failed")
	}
}

func (o *Orchestrator) safeParticipants(t core.Transport) []domain.Participant {
	var ps []domain.Participant
	if err := catch(domain.CodeConnect, "participants", func() error {
		ps = t.Participants()
		return nil
	}); err != nil {
		o.log.Warn().Err(err).Msg("transport roster read failed")
		return nil
	}
	return ps
}

func (o *Orchestrator) safeSubscribe(t core.Transport, kind core.EventKind, fn func(core.Event)) (func(), error) {
	var unsub func()
	err := catch(domain.CodeConnect, "subscribe", func() error {
		unsub = t.Subscribe(kind, fn)
		return nil
	})
	if err == nil && unsub == nil {
		unsub = func() {}
	}
	return unsub, err
}
