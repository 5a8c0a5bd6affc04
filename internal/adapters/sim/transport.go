// Package sim is the simulated voice backend: an in-memory roster, a fixed
// artificial connect delay and no media. It is deterministic and used both as
// the fallback when the realtime backend is not configured and in tests.
package sim

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dkeye/voicenet/internal/core"
	"github.com/dkeye/voicenet/internal/domain"
	"github.com/rs/zerolog/log"
)

const DefaultConnectDelay = 250 * time.Millisecond

// DefaultDevices is the device list every simulated transport reports.
var DefaultDevices = []domain.AudioDevice{
	{ID: "default", Label: "Default input"},
	{ID: "headset", Label: "Simulated headset"},
}

type Config struct {
	ConnectDelay time.Duration
	// Bots are present in every net this transport connects to.
	Bots    []domain.Participant
	Devices []domain.AudioDevice
}

func DefaultConfig() Config {
	return Config{ConnectDelay: DefaultConnectDelay, Devices: DefaultDevices}
}

type Transport struct {
	cfg Config
	hub *core.EventHub
	now func() time.Time

	mu       sync.RWMutex
	state    core.TransportState
	netID    domain.NetID
	self     domain.ParticipantID
	roster   map[domain.ParticipantID]domain.Participant
	mic      bool
	transmit bool
	device   string

	failConnect  error
	failControls error
}

func New(cfg Config) *Transport {
	if cfg.Devices == nil {
		cfg.Devices = DefaultDevices
	}
	return &Transport{
		cfg:    cfg,
		hub:    core.NewEventHub(),
		now:    time.Now,
		state:  core.TransportIdle,
		roster: make(map[domain.ParticipantID]domain.Participant),
		device: cfg.Devices[0].ID,
	}
}

func (t *Transport) Connect(ctx context.Context, cred domain.Credential, netID domain.NetID, user domain.User) ([]domain.Participant, error) {
	t.mu.Lock()
	if t.state == core.TransportConnected || t.state == core.TransportConnecting {
		t.mu.Unlock()
		return nil, domain.WrapError(domain.CodeConnect, "simulated connect", fmt.Errorf("transport is %s", t.state))
	}
	t.state = core.TransportConnecting
	t.mu.Unlock()

	timer := time.NewTimer(t.cfg.ConnectDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		t.setState(core.TransportIdle)
		return nil, domain.WrapError(domain.CodeConnect, "simulated connect", ctx.Err())
	case <-timer.C:
	}

	t.mu.Lock()
	if err := t.failConnect; err != nil {
		t.state = core.TransportIdle
		t.mu.Unlock()
		return nil, domain.WrapError(domain.CodeConnect, "simulated connect", err)
	}
	self := cred.Identity
	if self == "" {
		self = domain.ParticipantID(user.ID)
	}
	now := t.now()
	t.roster = make(map[domain.ParticipantID]domain.Participant, len(t.cfg.Bots)+1)
	for _, b := range t.cfg.Bots {
		if b.JoinedAt.IsZero() {
			b.JoinedAt = now
		}
		t.roster[b.ID] = b
	}
	t.roster[self] = domain.Participant{
		ID:               self,
		DisplayName:      user.DisplayName,
		ClientInstanceID: clientInstanceOf(self, user.ID),
		JoinedAt:         now,
	}
	t.self, t.netID = self, netID
	t.state = core.TransportConnected
	t.mic, t.transmit = false, false
	snapshot := t.snapshotLocked()
	t.mu.Unlock()

	log.Info().Str("module", "sim").Str("net", string(netID)).Str("self", string(self)).Int("participants", len(snapshot)).Msg("connected")
	t.hub.Emit(core.Event{Kind: core.EventConnected})
	return snapshot, nil
}

func clientInstanceOf(id domain.ParticipantID, user domain.UserID) string {
	rest, ok := strings.CutPrefix(string(id), string(user)+":")
	if !ok {
		return ""
	}
	return rest
}

func (t *Transport) Disconnect(_ context.Context) error {
	t.mu.Lock()
	if t.state == core.TransportIdle || t.state == core.TransportClosed {
		t.state = core.TransportClosed
		t.mu.Unlock()
		return nil
	}
	t.state = core.TransportClosed
	t.roster = make(map[domain.ParticipantID]domain.Participant)
	t.mic, t.transmit = false, false
	netID := t.netID
	t.mu.Unlock()

	log.Info().Str("module", "sim").Str("net", string(netID)).Msg("disconnected")
	t.hub.Emit(core.Event{Kind: core.EventDisconnected})
	return nil
}

func (t *Transport) SetMicEnabled(_ context.Context, enabled bool) error {
	t.mu.Lock()
	if err := t.controlErrLocked(); err != nil {
		t.mu.Unlock()
		t.hub.Emit(core.Event{Kind: core.EventError, Control: core.ControlMic, Err: err})
		return err
	}
	t.mic = enabled
	speakingChanged, speaking := t.updateSelfSpeakingLocked()
	self := t.self
	t.mu.Unlock()

	if speakingChanged {
		t.hub.Emit(core.Event{Kind: core.EventSpeakingChanged, ParticipantID: self, Speaking: speaking})
	}
	return nil
}

func (t *Transport) SetTransmitActive(_ context.Context, active bool) error {
	t.mu.Lock()
	if err := t.controlErrLocked(); err != nil {
		t.mu.Unlock()
		t.hub.Emit(core.Event{Kind: core.EventError, Control: core.ControlTransmit, Err: err})
		return err
	}
	t.transmit = active
	speakingChanged, speaking := t.updateSelfSpeakingLocked()
	self := t.self
	t.mu.Unlock()

	if speakingChanged {
		t.hub.Emit(core.Event{Kind: core.EventSpeakingChanged, ParticipantID: self, Speaking: speaking})
	}
	return nil
}

func (t *Transport) controlErrLocked() error {
	if t.state != core.TransportConnected && t.state != core.TransportReconnecting {
		return domain.ErrNotConnected
	}
	if t.failControls != nil {
		return domain.WrapError(domain.CodeDevice, "simulated control", t.failControls)
	}
	return nil
}

// The local participant "speaks" while both mic and push-to-talk are on.
func (t *Transport) updateSelfSpeakingLocked() (bool, bool) {
	p, ok := t.roster[t.self]
	if !ok {
		return false, false
	}
	speaking := t.mic && t.transmit
	if p.Speaking == speaking {
		return false, speaking
	}
	p.Speaking = speaking
	t.roster[t.self] = p
	return true, speaking
}

func (t *Transport) Participants() []domain.Participant {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snapshotLocked()
}

func (t *Transport) snapshotLocked() []domain.Participant {
	out := make([]domain.Participant, 0, len(t.roster))
	for _, p := range t.roster {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b domain.Participant) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

func (t *Transport) State() core.TransportState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

func (t *Transport) setState(s core.TransportState) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

func (t *Transport) Subscribe(kind core.EventKind, handler func(core.Event)) func() {
	return t.hub.Subscribe(kind, handler)
}

func (t *Transport) AudioDevices(_ context.Context) ([]domain.AudioDevice, error) {
	return slices.Clone(t.cfg.Devices), nil
}

func (t *Transport) SetAudioDevice(_ context.Context, deviceID string) error {
	if !slices.ContainsFunc(t.cfg.Devices, func(d domain.AudioDevice) bool { return d.ID == deviceID }) {
		err := domain.WrapError(domain.CodeDevice, "simulated device", fmt.Errorf("unknown device %q", deviceID))
		t.hub.Emit(core.Event{Kind: core.EventError, Control: core.ControlDevice, Err: err})
		return err
	}
	t.mu.Lock()
	t.device = deviceID
	t.mu.Unlock()
	return nil
}

// Device returns the selected input device.
func (t *Transport) Device() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.device
}
