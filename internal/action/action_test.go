package action

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"heist/internal/grid"
)

func TestDecodeSpecialIsRoleTagged(t *testing.T) {
	thief, err := Decode(Thief, Special)
	require.NoError(t, err)
	assert.Equal(t, SpecialWait, thief.Special)
	assert.False(t, thief.IsMove())

	guard, err := Decode(Guard, Special)
	require.NoError(t, err)
	assert.Equal(t, SpecialLayTrap, guard.Special)
}

func TestDecodeMoves(t *testing.T) {
	cmd, err := Decode(Thief, Up)
	require.NoError(t, err)
	assert.Equal(t, grid.At(-1, 0), cmd.Delta)
	assert.True(t, cmd.IsMove())

	cmd, err = Decode(Guard, Noop)
	require.NoError(t, err)
	assert.False(t, cmd.IsMove())
	assert.Equal(t, SpecialNone, cmd.Special)
}

func TestDecodeRejectsOutOfRange(t *testing.T) {
	_, err := Decode(Thief, Action(6))
	assert.True(t, errors.Is(err, ErrInvalidAction))
	_, err = Decode(Role("cook"), Up)
	assert.True(t, errors.Is(err, ErrUnknownRole))
}

func TestNames(t *testing.T) {
	assert.Equal(t, "wait", Name(Thief, Special))
	assert.Equal(t, "lay_trap", Name(Guard, Special))
	assert.Equal(t, "left", Name(Guard, Left))
	_, err := ParseRole("guard")
	assert.NoError(t, err)
	_, err = ParseRole("bystander")
	assert.Error(t, err)
}
