package app

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/dkeye/voicenet/internal/core"
	"github.com/dkeye/voicenet/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// DefaultSpeakingHold is how long a speaking flag for a not-yet-joined
// participant is kept before it is dropped.
const DefaultSpeakingHold = 2 * time.Second

type heldSpeaking struct {
	speaking bool
	at       time.Time
}

// Roster is the canonical in-memory participant set of one session.
// It is threadsafe; the orchestrator is its only writer.
type Roster struct {
	mu   sync.RWMutex
	byID map[domain.ParticipantID]domain.Participant
	held map[domain.ParticipantID]heldSpeaking
	hold time.Duration
	now  func() time.Time
}

func NewRoster(hold time.Duration) *Roster {
	if hold <= 0 {
		hold = DefaultSpeakingHold
	}
	return &Roster{
		byID: make(map[domain.ParticipantID]domain.Participant),
		held: make(map[domain.ParticipantID]heldSpeaking),
		hold: hold,
		now:  time.Now,
	}
}

// Apply folds one transport event into the roster and reports whether the
// visible roster changed. Lifecycle events are ignored here.
func (r *Roster) Apply(ev core.Event) bool {
	switch ev.Kind {
	case core.EventParticipantJoined:
		r.Join(ev.Participant)
		return true
	case core.EventParticipantLeft:
		return r.Leave(ev.ParticipantID)
	case core.EventSpeakingChanged:
		return r.SetSpeaking(ev.ParticipantID, ev.Speaking)
	}
	return false
}

// Join inserts or replaces p. A speaking flag that arrived before the join is applied.
func (r *Roster) Join(p domain.Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.JoinedAt.IsZero() {
		p.JoinedAt = r.now()
	}
	if h, ok := r.held[p.ID]; ok {
		if r.now().Sub(h.at) <= r.hold {
			p.Speaking = h.speaking
		}
		delete(r.held, p.ID)
	}
	r.byID[p.ID] = p
	log.Debug().Str("module", "app.roster").Str("participant", string(p.ID)).Msg("participant joined")
}

func (r *Roster) Leave(id domain.ParticipantID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.held, id)
	if _, ok := r.byID[id]; !ok {
		return false
	}
	delete(r.byID, id)
	log.Debug().Str("module", "app.roster").Str("participant", string(id)).Msg("participant left")
	return true
}

// SetSpeaking touches only the named participant. For an unknown participant the
// flag is held briefly in case the join event is still in flight.
func (r *Roster) SetSpeaking(id domain.ParticipantID, speaking bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[id]
	if !ok {
		r.pruneHeldLocked()
		r.held[id] = heldSpeaking{speaking: speaking, at: r.now()}
		log.Debug().Str("module", "app.roster").Str("participant", string(id)).Msg("speaking before join, held")
		return false
	}
	if p.Speaking == speaking {
		return false
	}
	p.Speaking = speaking
	r.byID[id] = p
	return true
}

func (r *Roster) pruneHeldLocked() {
	now := r.now()
	for id, h := range r.held {
		if now.Sub(h.at) > r.hold {
			delete(r.held, id)
		}
	}
}

// Replace discards the roster and rebuilds it from a transport snapshot.
func (r *Roster) Replace(ps []domain.Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID = make(map[domain.ParticipantID]domain.Participant, len(ps))
	r.held = make(map[domain.ParticipantID]heldSpeaking)
	for _, p := range ps {
		r.byID[p.ID] = p
	}
}

func (r *Roster) Clear() { r.Replace(nil) }

func (r *Roster) Get(id domain.ParticipantID) (domain.Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id]
	return p, ok
}

func (r *Roster) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// Snapshot returns a copy ordered by join time, then id.
func (r *Roster) Snapshot() []domain.Participant {
	r.mu.RLock()
	out := lo.Values(r.byID)
	r.mu.RUnlock()
	slices.SortFunc(out, func(a, b domain.Participant) int {
		if c := a.JoinedAt.Compare(b.JoinedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}
