package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/CallGuard/internal/domain"
)

func TestRegistry_CreateIsIdempotentPerCallID(t *testing.T) {
	h := newHarness(t)
	first, created := h.reg.CreateSession("C1", "A", "B")
	require.True(t, created)
	again, created := h.reg.CreateSession("C1", "A", "B")
	assert.False(t, created)
	assert.Same(t, first, again)
	assert.Equal(t, 1, h.reg.Len())
}

func TestRegistry_NewCallSupersedesSamePair(t *testing.T) {
	h := newHarness(t)
	c1 := h.start(t, "C1", "A", "B")
	require.NoError(t, c1.Handle(answer("A")))
	require.NoError(t, c1.Handle(answer("B")))
	require.Equal(t, StateActive, c1.State())

	h.clock.Advance(time.Second)
	c2 := h.start(t, "C2", "B", "A")

	assert.Equal(t, StateClosed, c1.State())
	assert.True(t, h.conns.get("C1/caller").IsClosed())
	_, ok := h.reg.Get("C1")
	assert.False(t, ok)

	live := 0
	for _, info := range h.reg.Snapshot() {
		if domain.NewPair(info.Caller, info.Callee) == domain.NewPair("A", "B") && info.State != StateClosed.String() {
			live++
		}
	}
	assert.Equal(t, 1, live)

	got, ok := h.reg.Resolve(answer("A"))
	require.True(t, ok)
	assert.Same(t, c2, got)
}

func TestRegistry_OtherPairsUntouched(t *testing.T) {
	h := newHarness(t)
	ab, _ := h.reg.CreateSession("C1", "A", "B")
	h.reg.CreateSession("C2", "A", "C")
	assert.NotEqual(t, StateClosed, ab.State())
	assert.Equal(t, 2, h.reg.Len())
}

func TestRegistry_ResolvePrefersMostRecent(t *testing.T) {
	h := newHarness(t)
	older, _ := h.reg.CreateSession("C1", "A", "B")
	h.clock.Advance(time.Second)
	newer, _ := h.reg.CreateSession("C2", "A", "C")

	// A targeting the relay matches both calls A is in.
	got, ok := h.reg.Resolve(answer("A"))
	require.True(t, ok)
	assert.Same(t, newer, got)

	// Direct pair addressing only matches its own call.
	got, ok = h.reg.Resolve(domain.SignalingEvent{Kind: domain.SignalCandidate, From: "B", Target: "A", Candidate: &domain.Candidate{}})
	require.True(t, ok)
	assert.Same(t, older, got)

	newer.Close()
	got, ok = h.reg.Resolve(answer("A"))
	require.True(t, ok)
	assert.Same(t, older, got, "closed sessions are skipped")
}

func TestRegistry_ResolveTieBreaksOnSequence(t *testing.T) {
	h := newHarness(t)
	h.reg.CreateSession("C1", "A", "B")
	second, _ := h.reg.CreateSession("C2", "A", "C")

	for i := 0; i < 20; i++ {
		got, ok := h.reg.Resolve(answer("A"))
		require.True(t, ok)
		assert.Same(t, second, got)
	}
}

func TestRegistry_EndSession(t *testing.T) {
	h := newHarness(t)
	s := h.start(t, "C1", "A", "B")

	assert.True(t, h.reg.EndSession("C1"))
	assert.False(t, h.reg.EndSession("C1"))
	assert.Equal(t, StateClosed, s.State())
	assert.Equal(t, 0, h.reg.Len())
	_, ok := h.reg.Resolve(answer("A"))
	assert.False(t, ok)
}

func TestRegistry_ReapStaleAndDead(t *testing.T) {
	h := newHarness(t)
	stale := h.start(t, "C1", "A", "B")

	h.clock.Advance(30 * time.Second)
	active := h.start(t, "C2", "C", "D")
	require.NoError(t, active.Handle(answer("C")))
	require.NoError(t, active.Handle(answer("D")))

	dead := h.start(t, "C3", "E", "F")
	h.conns.get("C3/caller").Close()
	h.conns.get("C3/callee").Close()

	h.clock.Advance(40 * time.Second)
	reaped := h.reg.Reap(60 * time.Second)

	assert.ElementsMatch(t, []domain.CallID{"C1", "C3"}, reaped)
	assert.Equal(t, StateClosed, stale.State())
	assert.Equal(t, StateClosed, dead.State())
	assert.Equal(t, StateActive, active.State())
	assert.Equal(t, 1, h.reg.Len())
}

func TestRegistry_CloseAll(t *testing.T) {
	h := newHarness(t)
	a := h.start(t, "C1", "A", "B")
	b := h.start(t, "C2", "C", "D")
	h.reg.CloseAll()
	assert.Equal(t, StateClosed, a.State())
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, 0, h.reg.Len())
}
