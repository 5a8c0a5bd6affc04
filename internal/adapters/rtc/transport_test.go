package rtc

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dkeye/voicenet/internal/core"
	"github.com/dkeye/voicenet/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

type fakePeer struct {
	mu         sync.Mutex
	answer     string
	candidates []webrtc.ICECandidateInit
	onState    func(webrtc.PeerConnectionState)
	onSpeaking func(string, bool)
	micErr     error
	mic        bool
	transmit   bool
	closed     bool
}

func (p *fakePeer) CreateOffer() (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "offer-sdp"}, nil
}

func (p *fakePeer) SetAnswer(a webrtc.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.answer = a.SDP
	return nil
}

func (p *fakePeer) AddICECandidate(c webrtc.ICECandidateInit) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.candidates = append(p.candidates, c)
	return nil
}

func (p *fakePeer) OnICECandidate(func(webrtc.ICECandidateInit)) {}

func (p *fakePeer) OnStateChange(fn func(webrtc.PeerConnectionState)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onState = fn
}

func (p *fakePeer) OnSpeaking(fn func(string, bool)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onSpeaking = fn
}

func (p *fakePeer) SetMicEnabled(enabled bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.micErr != nil {
		return p.micErr
	}
	p.mic = enabled
	return nil
}

func (p *fakePeer) SetTransmit(active bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transmit = active
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePeer) state(s webrtc.PeerConnectionState) {
	p.mu.Lock()
	fn := p.onState
	p.mu.Unlock()
	fn(s)
}

func (p *fakePeer) speak(id string, on bool) {
	p.mu.Lock()
	fn := p.onSpeaking
	p.mu.Unlock()
	fn(id, on)
}

// voiceServer is a scripted signaling endpoint.
type voiceServer struct {
	t        *testing.T
	srv      *httptest.Server
	members  []Member
	refuse   atomic.Pointer[Message]
	received chan Message

	mu   sync.Mutex
	conn *websocket.Conn
}

func newVoiceServer(t *testing.T, members ...Member) *voiceServer {
	vs := &voiceServer{t: t, members: members, received: make(chan Message, 64)}
	up := websocket.Upgrader{}
	vs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("access_token") != "good-token" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		vs.mu.Lock()
		vs.conn = conn
		vs.mu.Unlock()
		for {
			var msg Message
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			vs.received <- msg
			switch msg.Type {
			case msgJoin:
				if m := vs.refuse.Load(); m != nil {
					vs.send(*m)
					continue
				}
				vs.send(Message{Type: msgRoomState, Room: msg.Room, Self: msg.ID, Members: vs.members})
			case msgOffer:
				mid := "0"
				vs.send(Message{Type: msgCandidate, Candidate: "candidate:1 1 udp 1 127.0.0.1 5000 typ host", SDPMid: &mid})
				vs.send(Message{Type: msgAnswer, SDP: "answer-sdp"})
			}
		}
	}))
	t.Cleanup(vs.srv.Close)
	return vs
}

func (vs *voiceServer) send(m Message) {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	_ = vs.conn.WriteJSON(m)
}

func (vs *voiceServer) drop() {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	_ = vs.conn.Close()
}

func (vs *voiceServer) expect(typ string) Message {
	vs.t.Helper()
	timeout := time.After(waitFor)
	for {
		select {
		case m := <-vs.received:
			if m.Type == typ {
				return m
			}
		case <-timeout:
			vs.t.Fatalf("no %q message", typ)
			return Message{}
		}
	}
}

func (vs *voiceServer) credential(token string) domain.Credential {
	return domain.Credential{Endpoint: vs.srv.URL, Token: token, RoomName: "alpha", Identity: "u1:i1"}
}

type harness struct {
	t    *testing.T
	tr   *Transport
	peer *fakePeer
	vs   *voiceServer
}

func newHarness(t *testing.T, members ...Member) *harness {
	h := &harness{t: t, peer: &fakePeer{}, vs: newVoiceServer(t, members...)}
	h.tr = New(Config{Peers: func(string) (Peer, error) { return h.peer, nil }})
	t.Cleanup(func() { _ = h.tr.Disconnect(context.Background()) })
	return h
}

func (h *harness) connect() []domain.Participant {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	ps, err := h.tr.Connect(ctx, h.vs.credential("good-token"), "alpha", domain.User{ID: "u1", DisplayName: "Alice"})
	require.NoError(h.t, err)
	return ps
}

func (h *harness) events(kinds ...core.EventKind) <-chan core.Event {
	ch := make(chan core.Event, 64)
	for _, k := range kinds {
		unsub := h.tr.Subscribe(k, func(ev core.Event) { ch <- ev })
		h.t.Cleanup(unsub)
	}
	return ch
}

func next(t *testing.T, ch <-chan core.Event) core.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(waitFor):
		t.Fatal("no event")
		return core.Event{}
	}
}

var (
	t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	alice = Member{ID: "u1:i1", Username: "u1", Metadata: `{"displayName":"Alice","clientInstanceId":"i1"}`, JoinedAt: t0.Add(time.Second)}
	bob   = Member{ID: "u2:i9", Username: "bob", JoinedAt: t0}
)

func Test_Connect_ReturnsServerRoster(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, alice, bob)
	connected := h.events(core.EventConnected)

	ps := h.connect()

	req.Len(ps, 2)
	req.Equal(domain.ParticipantID("u2:i9"), ps[0].ID, "ordered by join time")
	req.Equal("bob", ps[0].DisplayName)
	req.Equal("Alice", ps[1].DisplayName)
	req.Equal("i1", ps[1].ClientInstanceID)
	req.Equal(core.TransportConnected, h.tr.State())
	next(t, connected)

	join := h.vs.expect(msgJoin)
	req.Equal("alpha", join.Room)
	req.Equal("u1:i1", join.ID)
	req.Equal("offer-sdp", h.vs.expect(msgOffer).SDP)

	h.peer.mu.Lock()
	defer h.peer.mu.Unlock()
	req.Equal("answer-sdp", h.peer.answer)
	req.Len(h.peer.candidates, 1, "candidate sent before the answer is applied afterwards")
}

func Test_Connect_Refused(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	h.vs.refuse.Store(&Message{Type: msgError, Code: "forbidden", Message: "not on the guest list"})

	_, err := h.tr.Connect(context.Background(), h.vs.credential("good-token"), "alpha", domain.User{ID: "u1"})
	req.ErrorIs(err, domain.ErrConnect)
	req.Contains(err.Error(), "forbidden")
	req.Equal(core.TransportIdle, h.tr.State())
}

func Test_Connect_BadTokenIsForbidden(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)

	_, err := h.tr.Connect(context.Background(), h.vs.credential("stale"), "alpha", domain.User{ID: "u1"})
	req.ErrorIs(err, domain.ErrConnect)
	req.Contains(err.Error(), "forbidden")
}

func Test_Connect_Cancelled(t *testing.T) {
	h := newHarness(t)
	h.vs.refuse.Store(&Message{Type: msgPong})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := h.tr.Connect(ctx, h.vs.credential("good-token"), "alpha", domain.User{ID: "u1"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, core.TransportIdle, h.tr.State())
}

func Test_Connect_RejectsBadEndpoint(t *testing.T) {
	tr := New(Config{})
	_, err := tr.Connect(context.Background(), domain.Credential{Endpoint: "ftp://voice", Token: "x"}, "alpha", domain.User{ID: "u1"})
	require.ErrorIs(t, err, domain.ErrConnect)
}

func Test_MemberEvents(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, alice)
	evs := h.events(core.EventParticipantJoined, core.EventParticipantLeft, core.EventSpeakingChanged)
	h.connect()

	h.vs.send(Message{Type: msgMemberJoined, Member: &bob})
	ev := next(t, evs)
	req.Equal(core.EventParticipantJoined, ev.Kind)
	req.Equal(domain.ParticipantID("u2:i9"), ev.Participant.ID)

	on := true
	h.vs.send(Message{Type: msgSpeaking, ID: "u2:i9", Speaking: &on})
	ev = next(t, evs)
	req.Equal(core.EventSpeakingChanged, ev.Kind)
	req.True(ev.Speaking)

	h.vs.send(Message{Type: msgMemberLeft, ID: "u2:i9"})
	ev = next(t, evs)
	req.Equal(core.EventParticipantLeft, ev.Kind)
	req.Equal(domain.ParticipantID("u2:i9"), ev.ParticipantID)
	req.Len(h.tr.Participants(), 1)
}

func Test_PeerSpeaking_DeduplicatesFlag(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, alice, bob)
	evs := h.events(core.EventSpeakingChanged)
	h.connect()

	h.peer.speak("u2:i9", true)
	h.peer.speak("u2:i9", true)
	h.peer.speak("u2:i9", false)

	req.True(next(t, evs).Speaking)
	req.False(next(t, evs).Speaking)
	for _, p := range h.tr.Participants() {
		req.False(p.Speaking)
	}
}

func Test_Kicked_ReportsSelfLeft(t *testing.T) {
	h := newHarness(t, alice)
	left := h.events(core.EventParticipantLeft)
	lost := h.events(core.EventConnectionLost)
	h.connect()

	h.vs.send(Message{Type: msgKicked, Reason: "moderator"})
	ev := next(t, left)
	require.Equal(t, domain.ParticipantID("u1:i1"), ev.ParticipantID)
	require.Error(t, ev.Err)

	h.vs.drop()
	select {
	case <-lost:
		t.Fatal("socket close after a kick is not a connection loss")
	case <-time.After(100 * time.Millisecond):
	}
}

func Test_SocketDrop_IsConnectionLost(t *testing.T) {
	h := newHarness(t, alice)
	lost := h.events(core.EventConnectionLost)
	h.connect()

	h.vs.drop()
	next(t, lost)
	require.Equal(t, core.TransportReconnecting, h.tr.State())
}

func Test_PeerStates(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, alice)
	evs := h.events(core.EventReconnecting, core.EventReconnected, core.EventConnectionLost)
	h.connect()

	h.peer.state(webrtc.PeerConnectionStateConnected)
	h.peer.state(webrtc.PeerConnectionStateDisconnected)
	req.Equal(core.EventReconnecting, next(t, evs).Kind, "a first connected state is not a recovery")
	req.Equal(core.TransportReconnecting, h.tr.State())

	h.peer.state(webrtc.PeerConnectionStateConnected)
	req.Equal(core.EventReconnected, next(t, evs).Kind)
	req.Equal(core.TransportConnected, h.tr.State())

	h.peer.state(webrtc.PeerConnectionStateFailed)
	req.Equal(core.EventConnectionLost, next(t, evs).Kind)
}

func Test_Controls(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, alice)

	req.ErrorIs(h.tr.SetMicEnabled(context.Background(), true), domain.ErrNotConnected)
	h.connect()

	req.NoError(h.tr.SetMicEnabled(context.Background(), false))
	mute := h.vs.expect(msgMute)
	req.NotNil(mute.Muted)
	req.True(*mute.Muted)

	req.NoError(h.tr.SetTransmitActive(context.Background(), true))
	h.peer.mu.Lock()
	req.True(h.peer.transmit)
	h.peer.mu.Unlock()
}

func Test_MicFailure_EmitsDeviceError(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, alice)
	errs := h.events(core.EventError)
	h.connect()
	h.peer.mu.Lock()
	h.peer.micErr = errors.New("no capture device")
	h.peer.mu.Unlock()

	err := h.tr.SetMicEnabled(context.Background(), true)
	req.ErrorIs(err, domain.ErrDevice)
	ev := next(t, errs)
	req.Equal(core.ControlMic, ev.Control)
}

func Test_Disconnect_Idempotent(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, alice)
	req.NoError(h.tr.Disconnect(context.Background()), "never connected")

	h2 := newHarness(t, alice)
	evs := h2.events(core.EventDisconnected, core.EventConnectionLost)
	h2.connect()
	req.NoError(h2.tr.Disconnect(context.Background()))
	req.NoError(h2.tr.Disconnect(context.Background()))

	req.Equal(core.EventDisconnected, next(t, evs).Kind)
	select {
	case ev := <-evs:
		t.Fatalf("unexpected %s", ev.Kind)
	case <-time.After(100 * time.Millisecond):
	}
	req.Equal(core.TransportClosed, h2.tr.State())
	req.Empty(h2.tr.Participants())
	h2.peer.mu.Lock()
	req.True(h2.peer.closed)
	h2.peer.mu.Unlock()
}

func Test_MemberEvents_IgnoredAfterDisconnect(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, alice, bob)
	h.connect()
	req.NoError(h.tr.Disconnect(context.Background()))
	evs := h.events(core.EventParticipantJoined, core.EventParticipantLeft)

	// Messages read off the socket just before it closed.
	h.tr.handle(Message{Type: msgMemberLeft, ID: bob.ID})
	h.tr.handle(Message{Type: msgMemberJoined, Member: &Member{ID: "u3:i1", Username: "carol"}})

	select {
	case ev := <-evs:
		t.Fatalf("unexpected %s", ev.Kind)
	default:
	}
	req.Empty(h.tr.Participants())
}

func Test_SignalURL(t *testing.T) {
	u, err := signalURL(domain.Credential{Endpoint: "https://voice.example/rtc?region=eu", Token: "a b"})
	require.NoError(t, err)
	require.Equal(t, "wss://voice.example/rtc?access_token=a+b&region=eu", u)
}
