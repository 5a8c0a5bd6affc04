package orch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/voicenet/internal/app"
	"github.com/dkeye/voicenet/internal/core"
	"github.com/dkeye/voicenet/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ReconnectConfig bounds the reconnect loop entered after a connection loss.
type ReconnectConfig struct {
	MaxAttempts  int           // consecutive failed redials before giving up
	InitialDelay time.Duration // first backoff delay
	MaxDelay     time.Duration // backoff cap
	MaxDuration  time.Duration // total time allowed in RECONNECTING
	Jitter       float64       // randomization factor, 0 for a fixed schedule
}

type Config struct {
	HeartbeatInterval time.Duration
	Reconnect         ReconnectConfig
	// RetryCredentialErrors retries a failed credential request once per join.
	// "Not configured" is never retried: it switches to the simulated backend.
	RetryCredentialErrors bool
	PreferredBackend      domain.Backend
	SpeakingHold          time.Duration
	TeardownTimeout       time.Duration
	StoreTimeout          time.Duration
}

func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: 10 * time.Second,
		Reconnect: ReconnectConfig{
			MaxAttempts:  5,
			InitialDelay: time.Second,
			MaxDelay:     8 * time.Second,
			MaxDuration:  30 * time.Second,
		},
		PreferredBackend: domain.BackendRealtime,
		SpeakingHold:     app.DefaultSpeakingHold,
		TeardownTimeout:  5 * time.Second,
		StoreTimeout:     3 * time.Second,
	}
}

func (c Config) Validate() error {
	switch {
	case c.HeartbeatInterval <= 0:
		return errors.New("heartbeat interval must be positive")
	case c.Reconnect.MaxAttempts < 1:
		return errors.New("reconnect max attempts must be at least 1")
	case c.Reconnect.InitialDelay <= 0 || c.Reconnect.MaxDelay < c.Reconnect.InitialDelay:
		return fmt.Errorf("reconnect delays invalid: initial %s, max %s", c.Reconnect.InitialDelay, c.Reconnect.MaxDelay)
	case c.Reconnect.MaxDuration <= 0:
		return errors.New("reconnect max duration must be positive")
	case c.PreferredBackend != domain.BackendRealtime && c.PreferredBackend != domain.BackendSimulated:
		return fmt.Errorf("unknown preferred backend %q", c.PreferredBackend)
	}
	return nil
}

// Deps are the collaborators of an orchestrator. Store may be nil.
type Deps struct {
	Nets        core.NetDirectory
	Policy      app.AccessPolicy
	Credentials core.CredentialIssuer
	Store       core.RosterStore
	Transports  core.TransportFactory
}

// Orchestrator owns one voice session: at most one active net, one live
// transport, its roster and heartbeat. Transitions are serialized by opMu;
// mu guards the fields read by snapshots and event handling.
type Orchestrator struct {
	cfg  Config
	deps Deps
	id   string
	log  zerolog.Logger

	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup

	opMu sync.Mutex

	mu            sync.RWMutex
	state         domain.ConnectionState
	net           *domain.VoiceNet
	user          domain.User
	instance      string
	self          domain.ParticipantID
	backend       domain.Backend
	transport     core.Transport
	conn          *connection
	roster        *app.Roster
	heartbeat     *app.Heartbeat
	mic           toggle
	transmit      toggle
	lastErr       error
	gen           uint64
	cancelAttempt context.CancelFunc
	recon         *reconnector
	closed        bool

	watchMu  sync.Mutex
	watchID  int
	watchers map[int]chan domain.Session
}

func New(cfg Config, deps Deps) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("orchestrator config: %w", err)
	}
	if deps.Nets == nil || deps.Policy == nil || deps.Credentials == nil || deps.Transports == nil {
		return nil, errors.New("orchestrator: nets, policy, credentials and transports are required")
	}
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		cfg:        cfg,
		deps:       deps,
		id:         id,
		log:        log.With().Str("module", "orch").Str("orchestrator", id).Logger(),
		baseCtx:    ctx,
		baseCancel: cancel,
		state:      domain.StateIdle,
		roster:     app.NewRoster(cfg.SpeakingHold),
		watchers:   make(map[int]chan domain.Session),
	}
	o.heartbeat = app.NewHeartbeat(cfg.HeartbeatInterval, o.beat)
	return o, nil
}

func (o *Orchestrator) ID() string { return o.id }

// Session returns a consistent snapshot of the session state.
func (o *Orchestrator) Session() domain.Session {
	o.mu.RLock()
	defer o.mu.RUnlock()
	s := domain.Session{
		State:            o.state,
		Participants:     []domain.Participant{},
		MicEnabled:       o.mic.intent,
		MicPending:       o.mic.pending,
		TransmitActive:   o.transmit.intent,
		TransmitPending:  o.transmit.pending,
		Backend:          o.backend,
		ClientInstanceID: o.instance,
		LastError:        o.lastErr,
	}
	if o.net != nil {
		s.ActiveNetID = o.net.ID
	}
	if o.state.Live() {
		s.Participants = o.roster.Snapshot()
	}
	return s
}

func (o *Orchestrator) State() domain.ConnectionState {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

// HasTransport reports whether a transport instance is currently held.
func (o *Orchestrator) HasTransport() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.transport != nil
}

// HeartbeatRunning reports whether the presence heartbeat is ticking.
func (o *Orchestrator) HeartbeatRunning() bool {
	return o.heartbeat.Running()
}

// Watch streams session snapshots after every visible change, starting with
// the current one. Slow readers only ever miss intermediate snapshots.
func (o *Orchestrator) Watch() (<-chan domain.Session, func()) {
	ch := make(chan domain.Session, 8)
	ch <- o.Session()

	o.watchMu.Lock()
	o.watchID++
	id := o.watchID
	o.watchers[id] = ch
	o.watchMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			o.watchMu.Lock()
			defer o.watchMu.Unlock()
			if _, ok := o.watchers[id]; ok {
				delete(o.watchers, id)
				close(ch)
			}
		})
	}
}

func (o *Orchestrator) notify() {
	s := o.Session()
	o.watchMu.Lock()
	defer o.watchMu.Unlock()
	for _, ch := range o.watchers {
		select {
		case ch <- s:
		default:
			// Drop the oldest snapshot so the newest one always gets through.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- s:
			default:
			}
		}
	}
}

// recordError sets LastError without touching the state machine.
func (o *Orchestrator) recordError(err error) {
	o.mu.Lock()
	o.lastErr = err
	o.mu.Unlock()
	o.notify()
}

// Close leaves the current net, waits for background work and releases the
// orchestrator. It is idempotent; a closed orchestrator refuses new joins.
func (o *Orchestrator) Close(ctx context.Context) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	o.mu.Unlock()

	err := o.LeaveNet(ctx)
	o.wg.Wait()
	o.baseCancel()

	o.watchMu.Lock()
	for id, ch := range o.watchers {
		delete(o.watchers, id)
		close(ch)
	}
	o.watchMu.Unlock()
	o.log.Info().Msg("orchestrator closed")
	return err
}

func (o *Orchestrator) beat(ctx context.Context) {
	o.mu.RLock()
	if !o.state.Live() || o.net == nil {
		o.mu.RUnlock()
		return
	}
	rec := domain.SessionRecord{
		SessionID:  o.instance,
		NetID:      o.net.ID,
		UserID:     o.user.ID,
		LastSeenAt: time.Now().UTC(),
	}
	if p, ok := o.roster.Get(o.self); ok {
		rec.Speaking = p.Speaking
	}
	o.mu.RUnlock()

	if o.deps.Store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, o.cfg.StoreTimeout)
	defer cancel()
	if err := o.deps.Store.Upsert(ctx, rec); err != nil && ctx.Err() == nil {
		o.log.Warn().Err(err).Str("net", string(rec.NetID)).Msg("heartbeat upsert failed")
	}
}

func (o *Orchestrator) deleteRecord(netID domain.NetID, instance string) {
	if o.deps.Store == nil || instance == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.StoreTimeout)
	defer cancel()
	if err := o.deps.Store.Delete(ctx, netID, instance); err != nil {
		o.log.Warn().Err(err).Str("net", string(netID)).Msg("session record delete failed")
	}
}
