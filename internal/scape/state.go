package scape

import (
	"fmt"

	"heist/internal/grid"
)

// State is a detached copy of the full world state, used for debugging dumps
// and crafted positions.
type State struct {
	Thief          grid.Pos         `json:"thief"`
	Guard          grid.Pos         `json:"guard"`
	Exit           grid.Pos         `json:"exit"`
	Gems           []grid.Pos       `json:"gems"`
	Traps          map[grid.Pos]int `json:"-"`
	Collected      []grid.Pos       `json:"collected"`
	AlarmTriggered bool             `json:"alarm_triggered"`
	AlarmTimer     int              `json:"alarm_timer"`
	GuardVisited   []grid.Pos       `json:"guard_visited"`
	GuardIdleSteps int              `json:"guard_idle_steps"`
	GlobalStep     int              `json:"global_step"`
	Done           bool             `json:"done"`
}

func (h *Heist) Snapshot() State {
	traps := make(map[grid.Pos]int, len(h.traps))
	for p, ttl := range h.traps {
		traps[p] = ttl
	}
	visited := make([]grid.Pos, 0, len(h.guardVisited))
	for p := range h.guardVisited {
		visited = append(visited, p)
	}
	return State{
		Thief:          h.thief,
		Guard:          h.guard,
		Exit:           h.exit,
		Gems:           h.gemTiles(),
		Traps:          traps,
		Collected:      append([]grid.Pos(nil), h.collected...),
		AlarmTriggered: h.alarmTriggered,
		AlarmTimer:     h.alarmTimer,
		GuardVisited:   grid.SortPositions(visited),
		GuardIdleSteps: h.guardIdleSteps,
		GlobalStep:     h.globalStep,
		Done:           h.done,
	}
}

// Restore replaces the world state with s after checking every invariant the
// state machine maintains. The guard's idle streak restarts from s.Guard.
func (h *Heist) Restore(s State) error {
	if err := h.validate(s); err != nil {
		return err
	}
	h.thief = s.Thief
	h.guard = s.Guard
	h.exit = s.Exit
	h.gems = make(map[grid.Pos]struct{}, len(s.Gems))
	for _, g := range s.Gems {
		h.gems[g] = struct{}{}
	}
	h.traps = make(map[grid.Pos]int, len(s.Traps))
	for p, ttl := range s.Traps {
		h.traps[p] = ttl
	}
	h.collected = append([]grid.Pos(nil), s.Collected...)
	h.alarmTriggered = s.AlarmTriggered
	h.alarmTimer = s.AlarmTimer
	h.guardVisited = map[grid.Pos]struct{}{s.Guard: {}}
	for _, p := range s.GuardVisited {
		h.guardVisited[p] = struct{}{}
	}
	h.guardIdleSteps = s.GuardIdleSteps
	h.lastGuard = s.Guard
	h.hasLastGuard = s.GlobalStep > 0
	h.globalStep = s.GlobalStep
	h.done = s.Done
	return nil
}

func (h *Heist) validate(s State) error {
	if !h.grid.IsPassable(s.Thief) {
		return fmt.Errorf("%w: thief at %s", ErrInvalidState, s.Thief)
	}
	if !h.grid.IsPassable(s.Guard) {
		return fmt.Errorf("%w: guard at %s", ErrInvalidState, s.Guard)
	}
	if !h.grid.IsCorner(s.Exit) {
		return fmt.Errorf("%w: exit %s is not a corner", ErrInvalidState, s.Exit)
	}
	if len(s.Gems) > GemCount {
		return fmt.Errorf("%w: %d gems", ErrInvalidState, len(s.Gems))
	}
	if len(s.Gems)+len(s.Collected) > GemCount {
		return fmt.Errorf("%w: %d active and %d collected gems", ErrInvalidState, len(s.Gems), len(s.Collected))
	}
	seen := make(map[grid.Pos]struct{}, len(s.Gems))
	for _, g := range s.Gems {
		if !h.grid.IsPassable(g) || h.grid.IsAlarm(g) {
			return fmt.Errorf("%w: gem at %s", ErrInvalidState, g)
		}
		if _, dup := seen[g]; dup {
			return fmt.Errorf("%w: duplicate gem %s", ErrInvalidState, g)
		}
		seen[g] = struct{}{}
	}
	if len(s.Traps) > MaxTraps {
		return fmt.Errorf("%w: %d traps", ErrInvalidState, len(s.Traps))
	}
	for p, ttl := range s.Traps {
		if !h.grid.IsPassable(p) {
			return fmt.Errorf("%w: trap at %s", ErrInvalidState, p)
		}
		if ttl <= 0 {
			return fmt.Errorf("%w: trap %s has ttl %d", ErrInvalidState, p, ttl)
		}
	}
	if s.AlarmTimer < 0 || (s.AlarmTimer > 0) != s.AlarmTriggered {
		return fmt.Errorf("%w: alarm flag %t with timer %d", ErrInvalidState, s.AlarmTriggered, s.AlarmTimer)
	}
	if s.GlobalStep < 0 || s.GuardIdleSteps < 0 {
		return fmt.Errorf("%w: negative counters", ErrInvalidState)
	}
	return nil
}
