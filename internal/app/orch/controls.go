package orch

import (
	"context"

	"github.com/dkeye/voicenet/internal/core"
	"github.com/dkeye/voicenet/internal/domain"
)

// toggle is a two-phase local control: intent moves immediately, confirmed
// follows the transport, and a failure rolls intent back to confirmed.
// seq numbers calls so only the latest one settles the pending flag.
type toggle struct {
	confirmed bool
	intent    bool
	pending   bool
	seq       uint64
}

func (t *toggle) begin(v bool) uint64 {
	t.intent = v
	t.pending = true
	t.seq++
	return t.seq
}

func (t *toggle) confirm() {
	t.confirmed = t.intent
	t.pending = false
}

func (t *toggle) rollback() {
	t.intent = t.confirmed
	t.pending = false
}

// settle applies the result of call seq. An older call that lands after a
// newer one started only moves confirmed.
func (t *toggle) settle(seq uint64, v bool, failed bool) {
	latest := seq == t.seq
	switch {
	case failed && latest:
		t.rollback()
	case failed:
	case latest:
		t.intent = v
		t.confirm()
	default:
		t.confirmed = v
	}
}

// SetMicEnabled switches the microphone.
func (o *Orchestrator) SetMicEnabled(ctx context.Context, enabled bool) error {
	return o.setControl(ctx, core.ControlMic, func(_ bool) bool { return enabled })
}

// SetTransmitActive opens or closes push-to-talk.
func (o *Orchestrator) SetTransmitActive(ctx context.Context, active bool) error {
	return o.setControl(ctx, core.ControlTransmit, func(_ bool) bool { return active })
}

// TogglePTT flips push-to-talk.
func (o *Orchestrator) TogglePTT(ctx context.Context) error {
	return o.setControl(ctx, core.ControlTransmit, func(cur bool) bool { return !cur })
}

func (o *Orchestrator) controlOf(c core.Control) *toggle {
	if c == core.ControlMic {
		return &o.mic
	}
	return &o.transmit
}

func (o *Orchestrator) setControl(ctx context.Context, c core.Control, next func(bool) bool) error {
	o.mu.Lock()
	if !o.state.Live() {
		o.mu.Unlock()
		return domain.ErrNotConnected
	}
	tg := o.controlOf(c)
	v := next(tg.intent)
	seq := tg.begin(v)
	t := o.transport
	gen := o.gen
	if t == nil {
		// Between redials; the intent is applied to the next transport.
		tg.confirm()
		o.mu.Unlock()
		o.notify()
		return nil
	}
	o.mu.Unlock()
	o.notify()

	err := o.safeCall(domain.CodeDevice, string(c), func() error {
		if c == core.ControlMic {
			return t.SetMicEnabled(ctx, v)
		}
		return t.SetTransmitActive(ctx, v)
	})
	if err != nil && domain.CodeOf(err) != domain.CodeDevice && domain.CodeOf(err) != domain.CodeNotConnected {
		err = domain.WrapError(domain.CodeDevice, string(c), err)
	}

	o.mu.Lock()
	stale := o.gen != gen
	tg = o.controlOf(c)
	switch {
	case stale:
		// The transport was replaced while the call was in flight; the
		// retained intent is reapplied by whoever installed the new one.
	default:
		tg.settle(seq, v, err != nil)
		if err != nil {
			o.lastErr = err
		}
	}
	o.mu.Unlock()
	o.notify()

	if err != nil {
		o.log.Warn().Err(err).Str("control", string(c)).Bool("value", v).Msg("control failed")
	}
	return err
}

// AudioDevices lists the input devices of the live transport.
func (o *Orchestrator) AudioDevices(ctx context.Context) ([]domain.AudioDevice, error) {
	ds, err := o.deviceSwitcher()
	if err != nil {
		return nil, err
	}
	var out []domain.AudioDevice
	err = o.safeCall(domain.CodeDevice, "list devices", func() error {
		var err error
		out, err = ds.AudioDevices(ctx)
		return err
	})
	return out, err
}

// SetAudioDevice hot-swaps the input device. Backends without device
// control report Unsupported, which is not recorded as a session error.
func (o *Orchestrator) SetAudioDevice(ctx context.Context, deviceID string) error {
	ds, err := o.deviceSwitcher()
	if err != nil {
		return err
	}
	err = o.safeCall(domain.CodeDevice, "set device", func() error { return ds.SetAudioDevice(ctx, deviceID) })
	if err != nil {
		if domain.CodeOf(err) == "" {
			err = domain.WrapError(domain.CodeDevice, "set device", err)
		}
		o.recordError(err)
		return err
	}
	o.log.Info().Str("device", deviceID).Msg("audio device switched")
	return nil
}

func (o *Orchestrator) deviceSwitcher() (core.DeviceSwitcher, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if !o.state.Live() || o.transport == nil {
		return nil, domain.ErrNotConnected
	}
	ds, ok := o.transport.(core.DeviceSwitcher)
	if !ok {
		return nil, domain.WrapError(domain.CodeUnsupported, "audio devices", domain.ErrUnsupported)
	}
	return ds, nil
}
