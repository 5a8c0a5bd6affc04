package app

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/dkeye/voicenet/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// NetCatalog is an in-memory net directory. It enforces that a linked group has
// at most one default net.
type NetCatalog struct {
	mu   sync.RWMutex
	nets map[domain.NetID]domain.VoiceNet
}

func NewNetCatalog(nets ...domain.VoiceNet) (*NetCatalog, error) {
	c := &NetCatalog{nets: make(map[domain.NetID]domain.VoiceNet)}
	for _, n := range nets {
		if err := c.Register(n); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Register adds or replaces a net descriptor.
func (c *NetCatalog) Register(n domain.VoiceNet) error {
	if err := n.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if n.IsDefault {
		for _, other := range c.nets {
			if other.ID != n.ID && other.IsDefault && other.LinkedGroupID == n.LinkedGroupID {
				return fmt.Errorf("net %q: group %q already has default net %q", n.ID, n.LinkedGroupID, other.ID)
			}
		}
	}
	c.nets[n.ID] = n
	log.Info().Str("module", "app.nets").Str("net", string(n.ID)).Str("discipline", string(n.Discipline)).Msg("net registered")
	return nil
}

func (c *NetCatalog) Remove(id domain.NetID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.nets, id)
}

func (c *NetCatalog) Get(_ context.Context, id domain.NetID) (domain.VoiceNet, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n, ok := c.nets[id]
	if !ok {
		return domain.VoiceNet{}, domain.WrapError(domain.CodeNetNotFound, "net not found", fmt.Errorf("id %q", id))
	}
	return n, nil
}

// List returns all nets ordered by code.
func (c *NetCatalog) List(_ context.Context) []domain.VoiceNet {
	c.mu.RLock()
	out := lo.Values(c.nets)
	c.mu.RUnlock()
	slices.SortFunc(out, func(a, b domain.VoiceNet) int { return cmp.Compare(a.Code, b.Code) })
	return out
}

// DefaultFor returns the default net of a linked group.
func (c *NetCatalog) DefaultFor(group domain.GroupID) (domain.VoiceNet, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return lo.Find(lo.Values(c.nets), func(n domain.VoiceNet) bool {
		return n.IsDefault && n.LinkedGroupID == group
	})
}
