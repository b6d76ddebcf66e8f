package scape

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"heist/internal/grid"
)

func TestMaskForGuardHidesDistantThief(t *testing.T) {
	obs := Observation{
		Thief: grid.At(0, 0),
		Guard: grid.At(1, 2),
		Gems:  []grid.Pos{grid.At(4, 0)},
		Exit:  grid.At(0, 5),
	}
	masked := MaskForGuard(obs)
	assert.False(t, masked.ThiefKnown())
	assert.Equal(t, grid.Unknown, masked.Thief)
	assert.Equal(t, obs.Guard, masked.Guard)
	assert.Equal(t, obs.Gems, masked.Gems)
	assert.Equal(t, "T?|G1,2|D4,0|A0|E0,5", masked.Key())
	assert.Equal(t, grid.At(0, 0), obs.Thief, "input is not modified")
}

func TestMaskForGuardSeesNearbyThief(t *testing.T) {
	obs := Observation{Thief: grid.At(0, 0), Guard: grid.At(1, 1), Exit: grid.At(0, 5)}
	assert.Equal(t, grid.At(0, 0), MaskForGuard(obs).Thief)
}

func TestMaskForGuardSeesThiefDuringAlarm(t *testing.T) {
	obs := Observation{Thief: grid.At(0, 0), Guard: grid.At(5, 5), Alarm: true, Exit: grid.At(0, 5)}
	assert.True(t, MaskForGuard(obs).ThiefKnown())
}

func TestSplitCopiesSlices(t *testing.T) {
	obs := Observation{
		Thief: grid.At(0, 0),
		Guard: grid.At(5, 5),
		Gems:  []grid.Pos{grid.At(0, 3)},
		Traps: []grid.Pos{grid.At(4, 0)},
		Exit:  grid.At(0, 5),
	}
	thief, guard := Split(obs)
	require.Equal(t, obs, thief)
	assert.False(t, guard.ThiefKnown())

	thief.Gems[0] = grid.At(1, 1)
	guard.Traps[0] = grid.At(1, 1)
	assert.Equal(t, grid.At(0, 3), obs.Gems[0])
	assert.Equal(t, grid.At(4, 0), obs.Traps[0])
}

func TestObservationKeyDistinguishesAlarmAndTraps(t *testing.T) {
	base := Observation{Thief: grid.At(2, 0), Guard: grid.At(5, 5), Exit: grid.At(5, 0)}
	withAlarm := base
	withAlarm.Alarm = true
	withTrap := base
	withTrap.Traps = []grid.Pos{grid.At(3, 0)}

	assert.Equal(t, "T2,0|G5,5|A0|E5,0", base.Key())
	assert.Equal(t, "T2,0|G5,5|A1|E5,0", withAlarm.Key())
	assert.Equal(t, "T2,0|G5,5|X3,0|A0|E5,0", withTrap.Key())
}

func TestParseKeyInvertsKey(t *testing.T) {
	for _, obs := range []Observation{
		{Thief: grid.At(0, 0), Guard: grid.At(5, 5), Gems: []grid.Pos{grid.At(0, 3), grid.At(5, 0)}, Exit: grid.At(0, 5)},
		{Thief: grid.Unknown, Guard: grid.At(1, 2), Traps: []grid.Pos{grid.At(4, 0)}, Alarm: true, Exit: grid.At(5, 0)},
	} {
		parsed, err := ParseKey(obs.Key())
		require.NoError(t, err)
		assert.Equal(t, obs, parsed)
	}
}

func TestParseKeyRejectsGarbage(t *testing.T) {
	for _, key := range []string{"", "T0,0", "T0,0|G1,1|A2|E0,5", "T0,0|G1,1|Q1|A0|E0,5", "Tx,0|G1,1|A0|E0,5"} {
		_, err := ParseKey(key)
		assert.ErrorIs(t, err, ErrBadKey, key)
	}
}
