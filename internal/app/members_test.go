package app

import (
	"context"
	"testing"

	"github.com/dkeye/voicenet/internal/domain"
	"github.com/stretchr/testify/require"
)

func Test_MemberDirectory_Lookup(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	d := NewMemberDirectory(domain.User{ID: "alice", DisplayName: "Alice", Tier: domain.TierOfficer})

	u, err := d.Lookup(ctx, "alice")
	req.NoError(err)
	req.Equal(domain.TierOfficer, u.Tier)

	u, err = d.Lookup(ctx, "stranger")
	req.NoError(err)
	req.Equal(domain.TierGuest, u.Tier)
	req.Equal(guestDisplayName, u.DisplayName)

	_, err = d.Lookup(ctx, "")
	req.ErrorIs(err, domain.ErrUserIDEmpty)

	d.Put(domain.User{ID: "stranger", DisplayName: "S", Tier: domain.TierMember})
	u, err = d.Lookup(ctx, "stranger")
	req.NoError(err)
	req.Equal(domain.TierMember, u.Tier)
}
