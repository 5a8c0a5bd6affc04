package orch

import (
	"context"
	"errors"
	"sync"

	"github.com/dkeye/voicenet/internal/domain"
	"github.com/rs/zerolog/log"
)

// ClientID identifies one control client (a browser cookie, a CLI token).
type ClientID string

type clientEntry struct {
	orch *Orchestrator
	user domain.User
}

// Registry holds one orchestrator per client.
type Registry struct {
	cfg  Config
	deps Deps

	mu      sync.RWMutex
	clients map[ClientID]*clientEntry
}

func NewRegistry(cfg Config, deps Deps) *Registry {
	return &Registry{
		cfg:     cfg,
		deps:    deps,
		clients: make(map[ClientID]*clientEntry),
	}
}

// GetOrCreate returns the client's orchestrator, creating it on first use.
func (r *Registry) GetOrCreate(id ClientID) (*Orchestrator, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.clients[id]
	if ok && e.orch != nil {
		return e.orch, nil
	}
	o, err := New(r.cfg, r.deps)
	if err != nil {
		return nil, err
	}
	if !ok {
		e = &clientEntry{}
		r.clients[id] = e
	}
	e.orch = o
	log.Info().Str("module", "orch.registry").Str("client", string(id)).Str("orchestrator", o.ID()).Msg("created orchestrator")
	return o, nil
}

func (r *Registry) Get(id ClientID) (*Orchestrator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.clients[id]
	if !ok || e.orch == nil {
		return nil, false
	}
	return e.orch, true
}

// BindUser records the identity a client acts as.
func (r *Registry) BindUser(id ClientID, u domain.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.clients[id]
	if !ok {
		e = &clientEntry{}
		r.clients[id] = e
	}
	e.user = u
	log.Info().Str("module", "orch.registry").Str("client", string(id)).Str("user", string(u.ID)).Msg("bound user")
}

// UserOf returns the identity bound to a client, if any.
func (r *Registry) UserOf(id ClientID) (domain.User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.clients[id]
	if !ok || e.user.ID == "" {
		return domain.User{}, false
	}
	return e.user, true
}

// Remove disposes of the client's orchestrator.
func (r *Registry) Remove(ctx context.Context, id ClientID) error {
	r.mu.Lock()
	e, ok := r.clients[id]
	delete(r.clients, id)
	r.mu.Unlock()
	if !ok || e.orch == nil {
		return nil
	}
	log.Info().Str("module", "orch.registry").Str("client", string(id)).Msg("removed orchestrator")
	return e.orch.Close(ctx)
}

// CloseAll disposes of every orchestrator; used on shutdown.
func (r *Registry) CloseAll(ctx context.Context) error {
	r.mu.Lock()
	entries := r.clients
	r.clients = make(map[ClientID]*clientEntry)
	r.mu.Unlock()

	var errs []error
	for _, e := range entries {
		if e.orch == nil {
			continue
		}
		if err := e.orch.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
