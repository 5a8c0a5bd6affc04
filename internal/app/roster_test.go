package app

import (
	"testing"
	"time"

	"github.com/dkeye/voicenet/internal/core"
	"github.com/dkeye/voicenet/internal/domain"
	"github.com/stretchr/testify/require"
)

func newTestRoster() (*Roster, *time.Time) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	r := NewRoster(time.Second)
	r.now = func() time.Time { return now }
	return r, &now
}

func participant(id string, joined time.Time) domain.Participant {
	return domain.Participant{ID: domain.ParticipantID(id), DisplayName: id, JoinedAt: joined}
}

func Test_Roster_ApplyEvents(t *testing.T) {
	req := require.New(t)
	r, now := newTestRoster()

	req.True(r.Apply(core.Event{Kind: core.EventParticipantJoined, Participant: participant("b", *now)}))
	req.True(r.Apply(core.Event{Kind: core.EventParticipantJoined, Participant: participant("a", now.Add(time.Second))}))
	req.True(r.Apply(core.Event{Kind: core.EventSpeakingChanged, ParticipantID: "a", Speaking: true}))
	req.False(r.Apply(core.Event{Kind: core.EventSpeakingChanged, ParticipantID: "a", Speaking: true}), "unchanged flag")
	req.False(r.Apply(core.Event{Kind: core.EventConnected}))

	snap := r.Snapshot()
	req.Len(snap, 2)
	req.Equal(domain.ParticipantID("b"), snap[0].ID)
	req.False(snap[0].Speaking, "speaking touches only its target")
	req.True(snap[1].Speaking)

	req.True(r.Apply(core.Event{Kind: core.EventParticipantLeft, ParticipantID: "b"}))
	req.False(r.Apply(core.Event{Kind: core.EventParticipantLeft, ParticipantID: "b"}))
	req.Equal(1, r.Len())
}

func Test_Roster_SpeakingBeforeJoin(t *testing.T) {
	req := require.New(t)
	r, now := newTestRoster()

	req.False(r.SetSpeaking("late", true))
	r.Join(participant("late", time.Time{}))
	p, ok := r.Get("late")
	req.True(ok)
	req.True(p.Speaking)
	req.Equal(*now, p.JoinedAt, "zero join time is stamped")

	r.SetSpeaking("stale", true)
	*now = now.Add(2 * time.Second)
	r.Join(participant("stale", *now))
	p, _ = r.Get("stale")
	req.False(p.Speaking, "held flag expired")
}

func Test_Roster_ReplaceAndClear(t *testing.T) {
	req := require.New(t)
	r, now := newTestRoster()
	r.Join(participant("x", *now))
	r.SetSpeaking("ghost", true)

	r.Replace([]domain.Participant{participant("y", *now), participant("z", *now)})
	req.Equal(2, r.Len())
	_, ok := r.Get("x")
	req.False(ok)

	r.Join(participant("ghost", *now))
	p, _ := r.Get("ghost")
	req.False(p.Speaking, "replace drops held flags")

	r.Clear()
	req.Empty(r.Snapshot())
}
