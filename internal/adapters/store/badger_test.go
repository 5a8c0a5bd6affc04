package store

import (
	"context"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dkeye/voicenet/internal/domain"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T, ttl time.Duration) *BadgerStore {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db, ttl)
}

func record(net domain.NetID, session string) domain.SessionRecord {
	return domain.SessionRecord{
		SessionID:  session,
		NetID:      net,
		UserID:     domain.UserID("user-" + session),
		LastSeenAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func Test_Upsert_List_Delete(t *testing.T) {
	req := require.New(t)
	s := newStore(t, time.Minute)
	ctx := context.Background()

	req.NoError(s.Upsert(ctx, record("alpha", "a")))
	req.NoError(s.Upsert(ctx, record("alpha", "b")))
	req.NoError(s.Upsert(ctx, record("bravo", "c")))

	recs, err := s.List(ctx, "alpha")
	req.NoError(err)
	req.Equal([]domain.SessionRecord{record("alpha", "a"), record("alpha", "b")}, recs)

	speaking := record("alpha", "a")
	speaking.Speaking = true
	req.NoError(s.Upsert(ctx, speaking))
	recs, err = s.List(ctx, "alpha")
	req.NoError(err)
	req.Len(recs, 2)
	req.True(recs[0].Speaking)

	req.NoError(s.Delete(ctx, "alpha", "a"))
	recs, err = s.List(ctx, "alpha")
	req.NoError(err)
	req.Equal([]domain.SessionRecord{record("alpha", "b")}, recs)

	req.NoError(s.Delete(ctx, "alpha", "missing"))
}

func Test_Net_Prefix_Is_Exact(t *testing.T) {
	req := require.New(t)
	s := newStore(t, time.Minute)
	ctx := context.Background()

	req.NoError(s.Upsert(ctx, record("alpha", "a")))
	req.NoError(s.Upsert(ctx, record("alpha2", "b")))

	recs, err := s.List(ctx, "alpha")
	req.NoError(err)
	req.Len(recs, 1)
}

func Test_Net_ID_With_Slash_Is_Rejected(t *testing.T) {
	req := require.New(t)
	s := newStore(t, time.Minute)
	ctx := context.Background()

	req.NoError(s.Upsert(ctx, record("alpha", "x")))
	req.ErrorIs(s.Upsert(ctx, record("alpha/session/x", "y")), errBadNetID)
	req.ErrorIs(s.Delete(ctx, "alpha/session/x", "y"), errBadNetID)
	_, err := s.List(ctx, "alpha/session/")
	req.ErrorIs(err, errBadNetID)
	_, err = s.List(ctx, "")
	req.ErrorIs(err, errBadNetID)

	recs, err := s.List(ctx, "alpha")
	req.NoError(err)
	req.Equal([]domain.SessionRecord{record("alpha", "x")}, recs)
}

func Test_Records_Expire(t *testing.T) {
	req := require.New(t)
	s := newStore(t, time.Second)
	ctx := context.Background()

	req.NoError(s.Upsert(ctx, record("alpha", "a")))
	req.Eventually(func() bool {
		recs, err := s.List(ctx, "alpha")
		return err == nil && len(recs) == 0
	}, 5*time.Second, 100*time.Millisecond)
}

func Test_Upsert_Rejects_Incomplete_Record(t *testing.T) {
	s := newStore(t, time.Minute)
	require.Error(t, s.Upsert(context.Background(), domain.SessionRecord{NetID: "alpha"}))
}

func Test_Open_In_Memory(t *testing.T) {
	req := require.New(t)
	s, err := Open(Config{})
	req.NoError(err)
	defer func() { req.NoError(s.Close()) }()

	req.NoError(s.Upsert(context.Background(), record("alpha", "a")))
	recs, err := s.List(context.Background(), "alpha")
	req.NoError(err)
	req.Len(recs, 1)
}
