package sim

import (
	"errors"

	"github.com/dkeye/voicenet/internal/core"
	"github.com/dkeye/voicenet/internal/domain"
)

// The methods below drive the simulated net from the outside: they play the role
// of the remote peers and the network.

var errSimulatedDrop = errors.New("simulated network drop")

// AddParticipant makes p join the net.
func (t *Transport) AddParticipant(p domain.Participant) {
	t.mu.Lock()
	if p.JoinedAt.IsZero() {
		p.JoinedAt = t.now()
	}
	t.roster[p.ID] = p
	t.mu.Unlock()
	t.hub.Emit(core.Event{Kind: core.EventParticipantJoined, Participant: p})
}

// RemoveParticipant makes id leave the net.
func (t *Transport) RemoveParticipant(id domain.ParticipantID) {
	t.mu.Lock()
	delete(t.roster, id)
	t.mu.Unlock()
	t.hub.Emit(core.Event{Kind: core.EventParticipantLeft, ParticipantID: id})
}

// SetSpeaking flips the speaking flag of id. Unknown ids are still announced,
// the way a real media server may report audio before the roster update.
func (t *Transport) SetSpeaking(id domain.ParticipantID, speaking bool) {
	t.mu.Lock()
	if p, ok := t.roster[id]; ok {
		p.Speaking = speaking
		t.roster[id] = p
	}
	t.mu.Unlock()
	t.hub.Emit(core.Event{Kind: core.EventSpeakingChanged, ParticipantID: id, Speaking: speaking})
}

// DropConnection simulates a network loss. The roster is kept, as a real
// backend would until it gives up.
func (t *Transport) DropConnection() {
	t.setState(core.TransportReconnecting)
	t.hub.Emit(core.Event{Kind: core.EventConnectionLost, Err: errSimulatedDrop})
}

// StartReconnecting simulates a backend that retries on its own.
func (t *Transport) StartReconnecting() {
	t.setState(core.TransportReconnecting)
	t.hub.Emit(core.Event{Kind: core.EventReconnecting})
}

// Recover ends a simulated outage.
func (t *Transport) Recover() {
	t.setState(core.TransportConnected)
	t.hub.Emit(core.Event{Kind: core.EventReconnected})
}

// FailConnect makes every following Connect fail with err. nil clears it.
func (t *Transport) FailConnect(err error) {
	t.mu.Lock()
	t.failConnect = err
	t.mu.Unlock()
}

// FailControls makes mic and push-to-talk changes fail with err. nil clears it.
func (t *Transport) FailControls(err error) {
	t.mu.Lock()
	t.failControls = err
	t.mu.Unlock()
}

// ResyncRoster replaces the remote participants without announcing any of
// it, as when membership changes are missed during an outage. The local
// participant is kept.
func (t *Transport) ResyncRoster(remote []domain.Participant) {
	t.mu.Lock()
	defer t.mu.Unlock()
	self, hasSelf := t.roster[t.self]
	t.roster = make(map[domain.ParticipantID]domain.Participant, len(remote)+1)
	if hasSelf {
		t.roster[t.self] = self
	}
	for _, p := range remote {
		if p.JoinedAt.IsZero() {
			p.JoinedAt = t.now()
		}
		t.roster[p.ID] = p
	}
}
