package orch

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestToggle_OnlyLatestCallSettles(t *testing.T) {
	req := require.New(t)
	var tg toggle

	first := tg.begin(true)
	second := tg.begin(false)

	tg.settle(first, true, false)
	req.True(tg.confirmed)
	req.False(tg.intent)
	req.True(tg.pending)

	tg.settle(second, false, true)
	req.True(tg.intent, "a failed latest call falls back to what the transport confirmed")
	req.False(tg.pending)
}

func TestToggle_StaleFailureLeavesNewerCallPending(t *testing.T) {
	req := require.New(t)
	var tg toggle

	first := tg.begin(true)
	second := tg.begin(true)
	tg.settle(first, true, true)
	req.True(tg.intent)
	req.True(tg.pending)

	tg.settle(second, true, false)
	req.True(tg.confirmed)
	req.False(tg.pending)
}
