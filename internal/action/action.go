package action

import (
	"errors"
	"fmt"

	"heist/internal/grid"
)

var (
	ErrInvalidAction = errors.New("invalid action")
	ErrUnknownRole   = errors.New("unknown role")
)

// Action is an index into the shared six-slot action space.
type Action int

const (
	Noop Action = iota
	Up
	Down
	Left
	Right
	Special
)

// Count is the size of the action space shared by both roles.
const Count = 6

func All() []Action {
	return []Action{Noop, Up, Down, Left, Right, Special}
}

func (a Action) Valid() bool {
	return a >= Noop && a <= Special
}

func (a Action) String() string {
	switch a {
	case Noop:
		return "noop"
	case Up:
		return "up"
	case Down:
		return "down"
	case Left:
		return "left"
	case Right:
		return "right"
	case Special:
		return "special"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

type Role string

const (
	Thief Role = "thief"
	Guard Role = "guard"
)

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case Thief, Guard:
		return Role(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
}

// SpecialKind names what the Special slot means for a role.
type SpecialKind int

const (
	SpecialNone SpecialKind = iota
	SpecialWait
	SpecialLayTrap
)

func (k SpecialKind) String() string {
	switch k {
	case SpecialWait:
		return "wait"
	case SpecialLayTrap:
		return "lay_trap"
	default:
		return "none"
	}
}

func (r Role) Special() SpecialKind {
	switch r {
	case Thief:
		return SpecialWait
	case Guard:
		return SpecialLayTrap
	default:
		return SpecialNone
	}
}

// Command is an action resolved against a role.
type Command struct {
	Action  Action
	Delta   grid.Pos
	Special SpecialKind
}

func (c Command) IsMove() bool {
	return c.Delta != (grid.Pos{})
}

var deltas = map[Action]grid.Pos{
	Up:    grid.At(-1, 0),
	Down:  grid.At(1, 0),
	Left:  grid.At(0, -1),
	Right: grid.At(0, 1),
}

// Decode resolves a raw action for the given role.
func Decode(role Role, a Action) (Command, error) {
	if !a.Valid() {
		return Command{}, fmt.Errorf("%w: %d for %s", ErrInvalidAction, int(a), role)
	}
	special := role.Special()
	if special == SpecialNone {
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownRole, string(role))
	}
	cmd := Command{Action: a, Delta: deltas[a]}
	if a == Special {
		cmd.Special = special
	}
	return cmd, nil
}

// Name is the role-aware label of an action, e.g. "wait" or "lay_trap" for Special.
func Name(role Role, a Action) string {
	if a == Special {
		return role.Special().String()
	}
	return a.String()
}
