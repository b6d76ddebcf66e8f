package agent

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"heist/internal/action"
)

func newGuard(t *testing.T, seed int64, cfg Config) *Tabular {
	t.Helper()
	a, err := NewGuard(rand.New(rand.NewSource(seed)), cfg)
	require.NoError(t, err)
	return a
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
	for _, cfg := range []Config{
		{Alpha: 0, Gamma: 0.9, Epsilon: 0.1},
		{Alpha: 1.5, Gamma: 0.9, Epsilon: 0.1},
		{Alpha: 0.1, Gamma: -0.1, Epsilon: 0.1},
		{Alpha: 0.1, Gamma: 0.9, Epsilon: 1.1},
	} {
		assert.True(t, errors.Is(cfg.Validate(), ErrInvalidHyperparameter), "%+v", cfg)
	}
}

func TestNewRejectsUnknownRole(t *testing.T) {
	_, err := New(action.Role("cop"), rand.New(rand.NewSource(1)), DefaultConfig())
	assert.True(t, errors.Is(err, action.ErrUnknownRole))
}

func TestUpdateTerminalTransition(t *testing.T) {
	a := newGuard(t, 1, Config{Alpha: 0.5, Gamma: 0.9, Epsilon: 0})
	require.NoError(t, a.Update("s", action.Up, 2, "s2", true))
	row, ok := a.Values("s")
	require.True(t, ok)
	assert.InDelta(t, 1.0, row[action.Up], 1e-12)
	_, ok = a.Values("s2")
	assert.False(t, ok, "terminal next state is not materialised")
}

func TestUpdateBootstrapsFromNextState(t *testing.T) {
	a := newGuard(t, 1, Config{Alpha: 0.5, Gamma: 0.9, Epsilon: 0})
	require.NoError(t, a.Update("next", action.Left, 4, "end", true))
	require.NoError(t, a.Update("s", action.Right, 1, "next", false))
	row, _ := a.Values("s")
	// 0.5 * (1 + 0.9*2 - 0)
	assert.InDelta(t, 1.4, row[action.Right], 1e-12)
	assert.Equal(t, 2, a.Updates())
}

func TestUpdateRejectsInvalidAction(t *testing.T) {
	a := newGuard(t, 1, DefaultConfig())
	err := a.Update("s", action.Action(6), 1, "n", false)
	assert.True(t, errors.Is(err, action.ErrInvalidAction))
	assert.Zero(t, a.States())
}

func TestGreedyPicksMaximum(t *testing.T) {
	a := newGuard(t, 1, Config{Alpha: 1, Gamma: 0, Epsilon: 0})
	require.NoError(t, a.Update("s", action.Down, 3, "", true))
	for i := 0; i < 20; i++ {
		assert.Equal(t, action.Down, a.SelectAction("s"))
	}
}

func TestGreedyBreaksTiesAcrossAllMaximisers(t *testing.T) {
	a := newGuard(t, 3, Config{Alpha: 1, Gamma: 0, Epsilon: 0})
	seen := make(map[action.Action]int)
	for i := 0; i < 600; i++ {
		seen[a.SelectAction("fresh")]++
	}
	assert.Len(t, seen, action.Count)
}

func TestEpsilonOneExplores(t *testing.T) {
	a := newGuard(t, 5, Config{Alpha: 1, Gamma: 0, Epsilon: 1})
	require.NoError(t, a.Update("s", action.Down, 3, "", true))
	seen := make(map[action.Action]bool)
	for i := 0; i < 600; i++ {
		seen[a.SelectAction("s")] = true
	}
	assert.Len(t, seen, action.Count)
}

func TestSetEpsilonValidates(t *testing.T) {
	a := newGuard(t, 1, DefaultConfig())
	require.NoError(t, a.SetEpsilon(0))
	assert.Zero(t, a.Config().Epsilon)
	assert.Error(t, a.SetEpsilon(2))
	assert.Zero(t, a.Config().Epsilon)
}

func TestCloneIsIndependent(t *testing.T) {
	a := newGuard(t, 1, Config{Alpha: 1, Gamma: 0, Epsilon: 0})
	require.NoError(t, a.Update("s", action.Up, 1, "", true))
	c := a.Clone(rand.New(rand.NewSource(2)))
	require.NoError(t, c.Update("s", action.Up, 5, "", true))

	orig, _ := a.Values("s")
	cloned, _ := c.Values("s")
	assert.InDelta(t, 1.0, orig[action.Up], 1e-12)
	assert.InDelta(t, 5.0, cloned[action.Up], 1e-12)
	assert.Equal(t, a.Role(), c.Role())
}

func TestResetClearsTable(t *testing.T) {
	a := newGuard(t, 1, DefaultConfig())
	require.NoError(t, a.Update("s", action.Up, 1, "n", false))
	a.Reset()
	assert.Zero(t, a.States())
	assert.Empty(t, a.Keys())
}

func TestRecordRoundTripSelectsIdentically(t *testing.T) {
	src := rand.New(rand.NewSource(9))
	a, err := NewThief(rand.New(rand.NewSource(1)), Config{Alpha: 0.3, Gamma: 0.8, Epsilon: 0})
	require.NoError(t, err)
	for i := 0; i < 200; i++ {
		key := string(rune('a' + src.Intn(8)))
		next := string(rune('a' + src.Intn(8)))
		require.NoError(t, a.Update(key, action.Action(src.Intn(action.Count)), src.NormFloat64(), next, src.Intn(10) == 0))
	}

	rec := a.Record("thief-1")
	assert.Equal(t, "thief", rec.Role)
	assert.Equal(t, action.Count, rec.Actions)

	b, err := FromRecord(rec, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.Equal(t, a.Config(), b.Config())
	assert.Equal(t, a.Keys(), b.Keys())

	a.rng = rand.New(rand.NewSource(42))
	b.rng = rand.New(rand.NewSource(42))
	for _, k := range a.Keys() {
		assert.Equal(t, a.SelectAction(k), b.SelectAction(k), "key %s", k)
	}
}

func TestFromRecordRejectsBadShape(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	a := newGuard(t, 1, DefaultConfig())
	require.NoError(t, a.Update("s", action.Up, 1, "n", false))

	rec := a.Record("g")
	rec.Actions = 5
	_, err := FromRecord(rec, rng)
	assert.True(t, errors.Is(err, ErrTableShape))

	rec = a.Record("g")
	rec.Table["s"] = rec.Table["s"][:3]
	_, err = FromRecord(rec, rng)
	assert.True(t, errors.Is(err, ErrTableShape))

	rec = a.Record("g")
	rec.Role = "pirate"
	_, err = FromRecord(rec, rng)
	assert.True(t, errors.Is(err, action.ErrUnknownRole))
}

func TestRandomPolicy(t *testing.T) {
	r := NewRandom(action.Thief, rand.New(rand.NewSource(1)))
	assert.Equal(t, action.Thief, r.Role())
	for i := 0; i < 100; i++ {
		assert.True(t, r.SelectAction("x").Valid())
	}
	assert.NoError(t, r.Update("x", action.Up, 1, "y", false))

	var p Policy = r
	clone := ClonePolicy(p, rand.New(rand.NewSource(2)))
	assert.Equal(t, action.Thief, clone.Role())
	assert.NotSame(t, r, clone)
}

func TestReseedRepeatsExploration(t *testing.T) {
	a := newGuard(t, 1, Config{Alpha: 1, Gamma: 0, Epsilon: 1})
	draw := func() []action.Action {
		out := make([]action.Action, 20)
		for i := range out {
			out[i] = a.SelectAction("s")
		}
		return out
	}
	a.Reseed(77)
	first := draw()
	a.Reseed(77)
	assert.Equal(t, first, draw())

	var _ Reseeder = a
	var _ Reseeder = NewRandom(action.Guard, rand.New(rand.NewSource(1)))
}
