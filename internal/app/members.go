package app

import (
	"context"
	"sync"

	"github.com/dkeye/voicenet/internal/domain"
	"github.com/rs/zerolog/log"
)

const guestDisplayName = "guest"

// MemberDirectory is a read-only identity lookup seeded from configuration.
// Unknown ids resolve to a guest so that open nets stay usable.
type MemberDirectory struct {
	mu    sync.RWMutex
	users map[domain.UserID]domain.User
}

func NewMemberDirectory(users ...domain.User) *MemberDirectory {
	d := &MemberDirectory{users: make(map[domain.UserID]domain.User, len(users))}
	for _, u := range users {
		d.users[u.ID] = u
	}
	return d
}

func (d *MemberDirectory) Put(u domain.User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[u.ID] = u
}

func (d *MemberDirectory) Lookup(_ context.Context, id domain.UserID) (domain.User, error) {
	if id == "" {
		return domain.User{}, domain.ErrUserIDEmpty
	}
	d.mu.RLock()
	u, ok := d.users[id]
	d.mu.RUnlock()
	if ok {
		return u, nil
	}
	log.Debug().Str("module", "app.members").Str("user", string(id)).Msg("unknown user, resolving as guest")
	return domain.NewUser(id, guestDisplayName, domain.TierGuest)
}
