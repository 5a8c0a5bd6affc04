// Package rtc is the realtime voice backend: a websocket signaling leg to the
// voice server and a WebRTC peer for media.
package rtc

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"sync"
	"time"

	"github.com/dkeye/voicenet/internal/adapters/token"
	"github.com/dkeye/voicenet/internal/core"
	"github.com/dkeye/voicenet/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const DefaultWriteWait = 5 * time.Second

type Config struct {
	Peers     PeerFactory
	Dialer    *websocket.Dialer
	WriteWait time.Duration
}

// pending collects the replies Connect waits for.
type pending struct {
	room   chan Message
	answer chan Message
	fail   chan error
}

func deliver[T any](ch chan T, v T) {
	select {
	case ch <- v:
	default:
	}
}

type Transport struct {
	cfg Config
	hub *core.EventHub
	log zerolog.Logger

	mu          sync.RWMutex
	state       core.TransportState
	ws          *wsConn
	peer        Peer
	self        domain.ParticipantID
	roster      map[domain.ParticipantID]domain.Participant
	pending     *pending
	remoteSet   bool
	candidates  []webrtc.ICECandidateInit
	interrupted bool
	closing     bool
}

func New(cfg Config) *Transport {
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = DefaultWriteWait
	}
	if cfg.Peers == nil {
		cfg.Peers = NewWebRTCPeerFactory(DefaultWebRTCConfig(), DefaultDetectorConfig())
	}
	return &Transport{
		cfg:    cfg,
		hub:    core.NewEventHub(),
		log:    log.With().Str("module", "rtc").Logger(),
		state:  core.TransportIdle,
		roster: make(map[domain.ParticipantID]domain.Participant),
	}
}

func signalURL(cred domain.Credential) (string, error) {
	u, err := url.Parse(cred.Endpoint)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported endpoint scheme %q", u.Scheme)
	}
	q := u.Query()
	q.Set("access_token", cred.Token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func connectErr(err error) error {
	if domain.CodeOf(err) != "" {
		return err
	}
	return domain.WrapError(domain.CodeConnect, "realtime connect", err)
}

// Connect dials signaling, joins the room, then negotiates the peer. The
// server's roster at join time is returned. A server-side refusal is an
// ordinary ConnectError.
func (t *Transport) Connect(ctx context.Context, cred domain.Credential, netID domain.NetID, user domain.User) ([]domain.Participant, error) {
	t.mu.Lock()
	if t.state != core.TransportIdle {
		state := t.state
		t.mu.Unlock()
		return nil, connectErr(fmt.Errorf("transport is %s", state))
	}
	t.state = core.TransportConnecting
	t.mu.Unlock()

	ps, err := t.connect(ctx, cred, netID)
	if err != nil {
		t.abort()
		return nil, connectErr(err)
	}
	t.log.Info().Str("net", string(netID)).Str("user", string(user.ID)).Int("participants", len(ps)).Msg("connected")
	t.hub.Emit(core.Event{Kind: core.EventConnected})
	return ps, nil
}

func (t *Transport) connect(ctx context.Context, cred domain.Credential, netID domain.NetID) ([]domain.Participant, error) {
	target, err := signalURL(cred)
	if err != nil {
		return nil, err
	}
	conn, resp, err := t.cfg.Dialer.DialContext(ctx, target, nil)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("forbidden: %s", resp.Status)
		}
		return nil, fmt.Errorf("dial signaling: %w", err)
	}

	ws := newWSConn(conn, t.cfg.WriteWait)
	p := &pending{room: make(chan Message, 1), answer: make(chan Message, 1), fail: make(chan error, 1)}
	t.mu.Lock()
	t.ws, t.pending = ws, p
	t.mu.Unlock()
	go ws.writePump()
	go ws.readPump(t.handle, func(err error) { t.onSocketClosed(ws, err) })

	room := cred.RoomName
	if room == "" {
		room = string(netID)
	}
	if err := ws.trySend(Message{Type: msgJoin, Room: room, ID: string(cred.Identity)}); err != nil {
		return nil, err
	}

	state, err := await(ctx, p.room, p.fail)
	if err != nil {
		return nil, err
	}
	self := domain.ParticipantID(state.Self)
	if self == "" {
		self = cred.Identity
	}

	peer, err := t.cfg.Peers(string(self))
	if err != nil {
		return nil, fmt.Errorf("create peer: %w", err)
	}
	peer.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		if err := ws.trySend(candidateMessage(ci)); err != nil {
			t.log.Warn().Err(err).Msg("candidate not sent")
		}
	})
	peer.OnStateChange(t.onPeerState)
	peer.OnSpeaking(func(streamID string, speaking bool) { t.setSpeaking(domain.ParticipantID(streamID), speaking) })

	roster := make(map[domain.ParticipantID]domain.Participant, len(state.Members))
	for _, m := range state.Members {
		pt := toParticipant(m)
		roster[pt.ID] = pt
	}
	t.mu.Lock()
	t.peer, t.self, t.roster = peer, self, roster
	t.mu.Unlock()

	offer, err := peer.CreateOffer()
	if err != nil {
		return nil, fmt.Errorf("create offer: %w", err)
	}
	if err := ws.trySend(Message{Type: msgOffer, SDP: offer.SDP}); err != nil {
		return nil, err
	}
	answer, err := await(ctx, p.answer, p.fail)
	if err != nil {
		return nil, err
	}
	if err := t.applyAnswer(answer.SDP); err != nil {
		return nil, err
	}

	t.mu.Lock()
	t.pending = nil
	t.state = core.TransportConnected
	out := t.snapshotLocked()
	t.mu.Unlock()
	return out, nil
}

func await(ctx context.Context, ch chan Message, fail chan error) (Message, error) {
	select {
	case <-ctx.Done():
		return Message{}, ctx.Err()
	case err := <-fail:
		return Message{}, err
	case m := <-ch:
		return m, nil
	}
}

func (t *Transport) applyAnswer(sdp string) error {
	t.mu.Lock()
	peer := t.peer
	t.mu.Unlock()
	if peer == nil {
		return errors.New("answer without peer")
	}
	if err := peer.SetAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}); err != nil {
		return fmt.Errorf("apply answer: %w", err)
	}
	t.mu.Lock()
	t.remoteSet = true
	queued := t.candidates
	t.candidates = nil
	t.mu.Unlock()
	for _, c := range queued {
		if err := peer.AddICECandidate(c); err != nil {
			t.log.Warn().Err(err).Msg("add queued candidate")
		}
	}
	return nil
}

// abort releases a half-built connection.
func (t *Transport) abort() {
	t.mu.Lock()
	ws, peer := t.ws, t.peer
	t.ws, t.peer, t.pending = nil, nil, nil
	t.remoteSet, t.candidates = false, nil
	t.roster = make(map[domain.ParticipantID]domain.Participant)
	t.state = core.TransportIdle
	t.mu.Unlock()
	if ws != nil {
		ws.close()
	}
	if peer != nil {
		_ = peer.Close()
	}
}

func toParticipant(m Member) domain.Participant {
	p := domain.Participant{
		ID:          domain.ParticipantID(m.ID),
		DisplayName: m.Username,
		JoinedAt:    m.JoinedAt,
	}
	if m.Metadata != "" {
		var md token.Metadata
		if err := json.Unmarshal([]byte(m.Metadata), &md); err != nil {
			log.Debug().Str("module", "rtc").Str("member", m.ID).Err(err).Msg("unreadable member metadata")
		} else {
			if md.DisplayName != "" {
				p.DisplayName = md.DisplayName
			}
			p.ClientInstanceID = md.ClientInstanceID
		}
	}
	if p.DisplayName == "" {
		p.DisplayName = m.ID
	}
	return p
}

// handle runs on the read pump.
func (t *Transport) handle(msg Message) {
	switch msg.Type {
	case msgRoomState:
		t.mu.RLock()
		p := t.pending
		t.mu.RUnlock()
		if p != nil {
			deliver(p.room, msg)
			return
		}
		t.resync(msg.Members)

	case msgAnswer:
		t.mu.RLock()
		p := t.pending
		t.mu.RUnlock()
		if p != nil {
			deliver(p.answer, msg)
			return
		}
		if err := t.applyAnswer(msg.SDP); err != nil {
			t.log.Warn().Err(err).Msg("renegotiation answer rejected")
		}

	case msgCandidate:
		t.mu.Lock()
		peer := t.peer
		if peer == nil || !t.remoteSet {
			t.candidates = append(t.candidates, msg.candidate())
			t.mu.Unlock()
			return
		}
		t.mu.Unlock()
		if err := peer.AddICECandidate(msg.candidate()); err != nil {
			t.log.Warn().Err(err).Msg("add ice candidate")
		}

	case msgMemberJoined:
		if msg.Member == nil {
			return
		}
		p := toParticipant(*msg.Member)
		t.mu.Lock()
		if t.state == core.TransportIdle || t.state == core.TransportClosed {
			t.mu.Unlock()
			return
		}
		t.roster[p.ID] = p
		t.mu.Unlock()
		t.hub.Emit(core.Event{Kind: core.EventParticipantJoined, Participant: p})

	case msgMemberLeft:
		id := domain.ParticipantID(msg.ID)
		t.mu.Lock()
		if t.state == core.TransportIdle || t.state == core.TransportClosed {
			t.mu.Unlock()
			return
		}
		delete(t.roster, id)
		t.mu.Unlock()
		t.hub.Emit(core.Event{Kind: core.EventParticipantLeft, ParticipantID: id})

	case msgSpeaking:
		if msg.Speaking != nil {
			t.setSpeaking(domain.ParticipantID(msg.ID), *msg.Speaking)
		}

	case msgError:
		err := domain.WrapError(domain.CodeConnect, "voice server", fmt.Errorf("%s: %s", msg.Code, msg.Message))
		t.mu.RLock()
		p := t.pending
		t.mu.RUnlock()
		if p != nil {
			deliver(p.fail, error(err))
			return
		}
		t.hub.Emit(core.Event{Kind: core.EventError, Err: err})

	case msgKicked:
		t.mu.Lock()
		self := t.self
		t.closing = true
		t.mu.Unlock()
		t.log.Warn().Str("reason", msg.Reason).Msg("removed by server")
		t.hub.Emit(core.Event{
			Kind:          core.EventParticipantLeft,
			ParticipantID: self,
			Err:           fmt.Errorf("kicked: %s", msg.Reason),
		})

	case msgPing:
		t.mu.RLock()
		ws := t.ws
		t.mu.RUnlock()
		if ws != nil {
			_ = ws.trySend(Message{Type: msgPong})
		}

	default:
		t.log.Debug().Str("type", msg.Type).Msg("unknown signal")
	}
}

// resync reconciles a full roster pushed by the server after connect.
func (t *Transport) resync(members []Member) {
	next := make(map[domain.ParticipantID]domain.Participant, len(members))
	for _, m := range members {
		p := toParticipant(m)
		next[p.ID] = p
	}
	t.mu.Lock()
	prev := t.roster
	t.roster = next
	t.mu.Unlock()

	for id := range prev {
		if _, ok := next[id]; !ok {
			t.hub.Emit(core.Event{Kind: core.EventParticipantLeft, ParticipantID: id})
		}
	}
	for id, p := range next {
		if old, ok := prev[id]; !ok || old != p {
			t.hub.Emit(core.Event{Kind: core.EventParticipantJoined, Participant: p})
		}
	}
}

func (t *Transport) setSpeaking(id domain.ParticipantID, speaking bool) {
	t.mu.Lock()
	if p, ok := t.roster[id]; ok {
		if p.Speaking == speaking {
			t.mu.Unlock()
			return
		}
		p.Speaking = speaking
		t.roster[id] = p
	}
	t.mu.Unlock()
	t.hub.Emit(core.Event{Kind: core.EventSpeakingChanged, ParticipantID: id, Speaking: speaking})
}

func (t *Transport) onSocketClosed(ws *wsConn, err error) {
	t.mu.Lock()
	if t.ws != ws || t.closing {
		t.mu.Unlock()
		return
	}
	if p := t.pending; p != nil {
		t.mu.Unlock()
		deliver(p.fail, fmt.Errorf("signaling closed: %w", err))
		return
	}
	if t.state != core.TransportConnected && t.state != core.TransportReconnecting {
		t.mu.Unlock()
		return
	}
	t.state = core.TransportReconnecting
	t.mu.Unlock()
	t.log.Warn().Err(err).Msg("signaling lost")
	t.hub.Emit(core.Event{Kind: core.EventConnectionLost, Err: err})
}

// onPeerState maps media connectivity onto the event vocabulary.
func (t *Transport) onPeerState(s webrtc.PeerConnectionState) {
	t.mu.Lock()
	if t.closing || t.pending != nil {
		t.mu.Unlock()
		return
	}
	var ev core.Event
	switch s {
	case webrtc.PeerConnectionStateDisconnected:
		if t.state != core.TransportConnected {
			t.mu.Unlock()
			return
		}
		t.state = core.TransportReconnecting
		t.interrupted = true
		ev = core.Event{Kind: core.EventReconnecting}
	case webrtc.PeerConnectionStateFailed:
		t.state = core.TransportReconnecting
		ev = core.Event{Kind: core.EventConnectionLost, Err: errors.New("peer connection failed")}
	case webrtc.PeerConnectionStateConnected:
		if !t.interrupted {
			t.mu.Unlock()
			return
		}
		t.interrupted = false
		t.state = core.TransportConnected
		ev = core.Event{Kind: core.EventReconnected}
	default:
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()
	t.hub.Emit(ev)
}

func (t *Transport) Disconnect(_ context.Context) error {
	t.mu.Lock()
	if t.state == core.TransportIdle || t.state == core.TransportClosed {
		t.state = core.TransportClosed
		t.mu.Unlock()
		return nil
	}
	t.closing = true
	t.state = core.TransportClosed
	ws, peer := t.ws, t.peer
	t.ws, t.peer, t.pending = nil, nil, nil
	t.roster = make(map[domain.ParticipantID]domain.Participant)
	t.mu.Unlock()

	if ws != nil {
		ws.close()
	}
	var err error
	if peer != nil {
		err = peer.Close()
	}
	t.log.Info().Msg("disconnected")
	t.hub.Emit(core.Event{Kind: core.EventDisconnected})
	return err
}

func (t *Transport) live() (Peer, *wsConn, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if (t.state != core.TransportConnected && t.state != core.TransportReconnecting) || t.peer == nil {
		return nil, nil, domain.ErrNotConnected
	}
	return t.peer, t.ws, nil
}

func (t *Transport) SetMicEnabled(_ context.Context, enabled bool) error {
	peer, ws, err := t.live()
	if err != nil {
		return err
	}
	if err := peer.SetMicEnabled(enabled); err != nil {
		derr := domain.WrapError(domain.CodeDevice, "microphone", err)
		t.hub.Emit(core.Event{Kind: core.EventError, Control: core.ControlMic, Err: derr})
		return derr
	}
	muted := !enabled
	if err := ws.trySend(Message{Type: msgMute, Muted: &muted}); err != nil {
		t.log.Warn().Err(err).Msg("mute state not announced")
	}
	return nil
}

func (t *Transport) SetTransmitActive(_ context.Context, active bool) error {
	peer, _, err := t.live()
	if err != nil {
		return err
	}
	peer.SetTransmit(active)
	return nil
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
	slices.SortFunc(out, func(a, b domain.Participant) int {
		if c := a.JoinedAt.Compare(b.JoinedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

func (t *Transport) State() core.TransportState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

func (t *Transport) Subscribe(kind core.EventKind, handler func(core.Event)) func() {
	return t.hub.Subscribe(kind, handler)
}
