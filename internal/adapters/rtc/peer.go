package rtc

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// audioLevelURI is the RFC 6464 client-to-mixer audio level header extension.
const audioLevelURI = "urn:ietf:params:rtp-hdrext:ssrc-audio-level"

// Peer is the media leg of a realtime connection. The transport drives it
// through signaling; tests substitute a fake.
type Peer interface {
	CreateOffer() (webrtc.SessionDescription, error)
	SetAnswer(answer webrtc.SessionDescription) error
	AddICECandidate(c webrtc.ICECandidateInit) error
	OnICECandidate(fn func(webrtc.ICECandidateInit))
	OnStateChange(fn func(webrtc.PeerConnectionState))
	// OnSpeaking reports voice activity detected on a remote stream.
	OnSpeaking(fn func(streamID string, speaking bool))
	SetMicEnabled(enabled bool) error
	SetTransmit(active bool)
	Close() error
}

// PeerFactory builds a fresh peer for one connection attempt.
type PeerFactory func(identity string) (Peer, error)

func DefaultWebRTCConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: []string{"stun:stun.l.google.com:19302"},
			},
		},
	}
}

// NewWebRTCPeerFactory returns a factory of pion-backed peers.
func NewWebRTCPeerFactory(cfg webrtc.Configuration, detector DetectorConfig) PeerFactory {
	return func(identity string) (Peer, error) {
		return NewWebRTCPeer(cfg, identity, detector)
	}
}

// localTrack gates outgoing audio: packets reach the wire only while the
// track is attached (mic) and open (push-to-talk).
type localTrack struct {
	track  *webrtc.TrackLocalStaticRTP
	open   atomic.Bool
	attach atomic.Bool
}

func (lt *localTrack) write(pkt *rtp.Packet) error {
	if !lt.open.Load() || !lt.attach.Load() {
		return nil
	}
	return lt.track.WriteRTP(pkt)
}

type WebRTCPeer struct {
	pc       *webrtc.PeerConnection
	sender   *webrtc.RTPSender
	local    *localTrack
	identity string
	detector DetectorConfig

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.RWMutex
	onICE      func(webrtc.ICECandidateInit)
	onState    func(webrtc.PeerConnectionState)
	onSpeaking func(string, bool)
}

func NewWebRTCPeer(cfg webrtc.Configuration, identity string, detector DetectorConfig) (*WebRTCPeer, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}
	if err := m.RegisterHeaderExtension(webrtc.RTPHeaderExtensionCapability{URI: audioLevelURI}, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, err
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(m))
	pc, err := api.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}

	track, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio", identity,
	)
	if err != nil {
		_ = pc.Close()
		return nil, err
	}
	// The sender starts detached; SetMicEnabled attaches the track.
	sender, err := pc.AddTrack(track)
	if err != nil {
		_ = pc.Close()
		return nil, err
	}
	if err := sender.ReplaceTrack(nil); err != nil {
		_ = pc.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &WebRTCPeer{
		pc:       pc,
		sender:   sender,
		local:    &localTrack{track: track},
		identity: identity,
		detector: detector,
		ctx:      ctx,
		cancel:   cancel,
	}
	p.bind()
	go p.drainRTCP()
	return p, nil
}

func (p *WebRTCPeer) bind() {
	p.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		p.mu.RLock()
		fn := p.onICE
		p.mu.RUnlock()
		if cand != nil && fn != nil {
			fn(cand.ToJSON())
		}
	})

	p.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "rtc.peer").Str("identity", p.identity).Str("peer_connection_state", s.String()).Msg("peer state")
		p.mu.RLock()
		fn := p.onState
		p.mu.RUnlock()
		if fn != nil {
			fn(s)
		}
	})

	p.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "rtc.peer").
			Str("identity", p.identity).
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("remote track")
		if track.Kind() != webrtc.RTPCodecTypeAudio {
			return
		}
		go p.readLoop(track, audioLevelID(receiver))
	})
}

func audioLevelID(receiver *webrtc.RTPReceiver) uint8 {
	for _, ext := range receiver.GetParameters().HeaderExtensions {
		if ext.URI == audioLevelURI {
			return uint8(ext.ID)
		}
	}
	return 0
}

// readLoop feeds a remote track's audio levels into a speaking detector.
func (p *WebRTCPeer) readLoop(track *webrtc.TrackRemote, extID uint8) {
	streamID := track.StreamID()
	d := NewDetector(p.detector)
	logger := log.With().Str("module", "rtc.peer").Str("stream_id", streamID).Logger()
	defer func() {
		if d.Speaking() {
			p.emitSpeaking(streamID, false)
		}
	}()
	for {
		select {
		case <-p.ctx.Done():
			return
		default:
		}
		pkt, _, err := track.ReadRTP()
		if err != nil {
			logger.Debug().Err(err).Msg("remote track ended")
			return
		}
		if extID == 0 {
			continue
		}
		raw := pkt.GetExtension(extID)
		if raw == nil {
			continue
		}
		var lvl rtp.AudioLevelExtension
		if err := lvl.Unmarshal(raw); err != nil {
			continue
		}
		if changed, speaking := d.Observe(lvl.Level, lvl.Voice); changed {
			p.emitSpeaking(streamID, speaking)
		}
	}
}

func (p *WebRTCPeer) emitSpeaking(streamID string, speaking bool) {
	p.mu.RLock()
	fn := p.onSpeaking
	p.mu.RUnlock()
	if fn != nil {
		fn(streamID, speaking)
	}
}

func (p *WebRTCPeer) drainRTCP() {
	buf := make([]byte, 1500)
	for {
		if _, _, err := p.sender.Read(buf); err != nil {
			return
		}
	}
}

func (p *WebRTCPeer) CreateOffer() (webrtc.SessionDescription, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return offer, nil
}

func (p *WebRTCPeer) SetAnswer(answer webrtc.SessionDescription) error {
	return p.pc.SetRemoteDescription(answer)
}

func (p *WebRTCPeer) AddICECandidate(c webrtc.ICECandidateInit) error {
	return p.pc.AddICECandidate(c)
}

func (p *WebRTCPeer) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	p.mu.Lock()
	p.onICE = fn
	p.mu.Unlock()
}

func (p *WebRTCPeer) OnStateChange(fn func(webrtc.PeerConnectionState)) {
	p.mu.Lock()
	p.onState = fn
	p.mu.Unlock()
}

func (p *WebRTCPeer) OnSpeaking(fn func(string, bool)) {
	p.mu.Lock()
	p.onSpeaking = fn
	p.mu.Unlock()
}

// SetMicEnabled swaps the sender's track in or out.
func (p *WebRTCPeer) SetMicEnabled(enabled bool) error {
	var track webrtc.TrackLocal
	if enabled {
		track = p.local.track
	}
	if err := p.sender.ReplaceTrack(track); err != nil {
		return err
	}
	p.local.attach.Store(enabled)
	return nil
}

func (p *WebRTCPeer) SetTransmit(active bool) {
	p.local.open.Store(active)
}

// WriteRTP sends one captured audio packet, dropped while muted or not transmitting.
func (p *WebRTCPeer) WriteRTP(pkt *rtp.Packet) error {
	return p.local.write(pkt)
}

func (p *WebRTCPeer) Close() error {
	p.cancel()
	err := p.pc.Close()
	if err != nil && !errors.Is(err, webrtc.ErrConnectionClosed) {
		log.Error().Err(err).Str("module", "rtc.peer").Str("identity", p.identity).Msg("close error")
		return err
	}
	log.Info().Str("module", "rtc.peer").Str("identity", p.identity).Msg("closed")
	return nil
}
