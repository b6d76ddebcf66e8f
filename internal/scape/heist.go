package scape

import (
	"errors"
	"fmt"
	"math/rand"

	"heist/internal/action"
	"heist/internal/grid"
	"heist/internal/trap"
)

const (
	GemCount = 2
	MaxTraps = 2

	DefaultTrapTTL       = 10
	DefaultExitInterval  = 20
	DefaultAlarmDuration = 3
)

const (
	thiefShaping = 0.05
	guardShaping = 0.15

	blockedMovePenalty = -0.1
	trapExpiredPenalty = -0.5
	gemCampPenalty     = -0.2
	exploreBonus       = 0.1
	idlePenalty        = -0.1
	idleGrace          = 3

	alarmReward   = 1.0
	gemReward     = 1.0
	trapReward    = 2.0
	terminalSwing = 5.0
)

var (
	ErrEpisodeDone  = errors.New("episode has terminated; call Reset")
	ErrGridConfig   = errors.New("grid cannot host a heist")
	ErrInvalidState = errors.New("invalid heist state")
)

type Config struct {
	ThiefStart    grid.Pos
	GuardStart    grid.Pos
	TrapTTL       int
	ExitInterval  int
	AlarmDuration int
}

type Option func(*Config)

func WithStarts(thief, guard grid.Pos) Option {
	return func(c *Config) {
		c.ThiefStart = thief
		c.GuardStart = guard
	}
}

func WithTrapTTL(ttl int) Option {
	return func(c *Config) { c.TrapTTL = ttl }
}

func WithExitInterval(steps int) Option {
	return func(c *Config) { c.ExitInterval = steps }
}

func WithAlarmDuration(steps int) Option {
	return func(c *Config) { c.AlarmDuration = steps }
}

// Heist is the thief/guard state machine. All world state is owned here and
// changes only through Reset, Step and Restore.
type Heist struct {
	grid *grid.Grid
	rng  *rand.Rand
	cfg  Config

	thief grid.Pos
	guard grid.Pos
	exit  grid.Pos

	gems      map[grid.Pos]struct{}
	traps     map[grid.Pos]int
	collected []grid.Pos

	alarmTriggered bool
	alarmTimer     int

	guardVisited   map[grid.Pos]struct{}
	lastGuard      grid.Pos
	hasLastGuard   bool
	guardIdleSteps int

	globalStep int
	done       bool
}

// NewHeist builds an environment on g drawing all randomness from rng and
// resets it once so it is immediately steppable.
func NewHeist(g *grid.Grid, rng *rand.Rand, opts ...Option) (*Heist, error) {
	if g == nil {
		return nil, fmt.Errorf("%w: grid is required", ErrGridConfig)
	}
	if rng == nil {
		return nil, errors.New("rng is required")
	}
	cfg := Config{
		ThiefStart:    grid.At(0, 0),
		GuardStart:    grid.At(g.Height()-1, g.Width()-1),
		TrapTTL:       DefaultTrapTTL,
		ExitInterval:  DefaultExitInterval,
		AlarmDuration: DefaultAlarmDuration,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if !g.IsPassable(cfg.ThiefStart) || !g.IsPassable(cfg.GuardStart) {
		return nil, fmt.Errorf("%w: start tiles must be passable", ErrGridConfig)
	}
	if cfg.ThiefStart == cfg.GuardStart {
		return nil, fmt.Errorf("%w: thief and guard share a start tile", ErrGridConfig)
	}
	if cfg.TrapTTL <= 0 || cfg.ExitInterval <= 0 || cfg.AlarmDuration <= 0 {
		return nil, fmt.Errorf("%w: timers must be > 0", ErrGridConfig)
	}

	h := &Heist{grid: g, rng: rng, cfg: cfg}
	if _, err := h.Reset(); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *Heist) Name() string {
	return "heist"
}

func (h *Heist) Grid() *grid.Grid {
	return h.grid
}

// Reseed replaces the random source so a following Reset is reproducible.
func (h *Heist) Reseed(seed int64) {
	h.rng = rand.New(rand.NewSource(seed))
}

func (h *Heist) Done() bool {
	return h.done
}

func (h *Heist) GlobalStep() int {
	return h.globalStep
}

func (h *Heist) Reset() (Observation, error) {
	exits := make([]grid.Pos, 0, 4)
	for _, c := range h.grid.Corners() {
		if c != h.cfg.ThiefStart && c != h.cfg.GuardStart {
			exits = append(exits, c)
		}
	}
	if len(exits) == 0 {
		return Observation{}, fmt.Errorf("%w: no corner is free for the exit", ErrGridConfig)
	}
	exit := exits[h.rng.Intn(len(exits))]

	empties := make([]grid.Pos, 0, h.grid.Height()*h.grid.Width())
	for _, p := range h.grid.Tiles() {
		if !h.grid.IsPassable(p) || h.grid.IsAlarm(p) {
			continue
		}
		if p == h.cfg.ThiefStart || p == h.cfg.GuardStart || p == exit {
			continue
		}
		empties = append(empties, p)
	}
	if len(empties) < GemCount {
		return Observation{}, fmt.Errorf("%w: need %d free tiles for gems, have %d", ErrGridConfig, GemCount, len(empties))
	}

	h.globalStep = 0
	h.thief = h.cfg.ThiefStart
	h.guard = h.cfg.GuardStart
	h.exit = exit
	h.gems = make(map[grid.Pos]struct{}, GemCount)
	for _, i := range h.rng.Perm(len(empties))[:GemCount] {
		h.gems[empties[i]] = struct{}{}
	}
	h.traps = make(map[grid.Pos]int, MaxTraps)
	h.collected = nil
	h.alarmTriggered = false
	h.alarmTimer = 0
	h.done = false
	h.guardVisited = map[grid.Pos]struct{}{h.guard: {}}
	h.lastGuard = grid.Pos{}
	h.hasLastGuard = false
	h.guardIdleSteps = 0
	return h.Observe(), nil
}

// Step resolves the thief's action, then the guard's, then hazards and the
// terminal check. The fixed thief-first order decides captures on shared tiles.
func (h *Heist) Step(thiefAction, guardAction action.Action) (StepResult, error) {
	if h.done {
		return StepResult{}, ErrEpisodeDone
	}
	thiefCmd, err := action.Decode(action.Thief, thiefAction)
	if err != nil {
		return StepResult{}, err
	}
	guardCmd, err := action.Decode(action.Guard, guardAction)
	if err != nil {
		return StepResult{}, err
	}

	var (
		rewards Rewards
		info    Info
	)

	h.globalStep++
	if h.globalStep%h.cfg.ExitInterval == 0 {
		h.rotateExit()
		info.ExitMoved = true
	}

	for _, pos := range h.trapTiles() {
		h.traps[pos]--
		if h.traps[pos] <= 0 {
			delete(h.traps, pos)
			rewards.Guard += trapExpiredPenalty
			info.TrapsExpired++
		}
	}

	oldThief := h.thief
	oldGuard := h.guard

	h.thief = h.move(h.thief, thiefCmd)
	if thiefCmd.Special != action.SpecialWait && h.thief == oldThief {
		rewards.Thief += blockedMovePenalty
	}
	goal := h.thiefGoal(oldThief)
	rewards.Thief += thiefShaping * float64(grid.Manhattan(oldThief, goal)-grid.Manhattan(h.thief, goal))

	if guardCmd.Special == action.SpecialLayTrap {
		info.TrapPlaced = h.layTrap()
	} else {
		h.guard = h.move(h.guard, guardCmd)
	}
	if _, onGem := h.gems[h.guard]; onGem && h.guard == oldGuard {
		rewards.Guard += gemCampPenalty
	}
	rewards.Guard += guardShaping * float64(grid.Manhattan(oldGuard, h.thief)-grid.Manhattan(h.guard, h.thief))
	if _, seen := h.guardVisited[h.guard]; !seen {
		rewards.Guard += exploreBonus
		h.guardVisited[h.guard] = struct{}{}
	}
	if h.hasLastGuard && h.lastGuard == h.guard {
		h.guardIdleSteps++
	} else {
		h.guardIdleSteps = 0
	}
	h.lastGuard, h.hasLastGuard = h.guard, true
	if h.guardIdleSteps > idleGrace {
		rewards.Guard += idlePenalty
	}

	if h.grid.IsAlarm(h.thief) {
		h.alarmTriggered = true
		h.alarmTimer = h.cfg.AlarmDuration
		rewards.Thief -= alarmReward
		rewards.Guard += alarmReward
		info.AlarmRaised = true
	}
	if _, onGem := h.gems[h.thief]; onGem {
		delete(h.gems, h.thief)
		h.collected = append(h.collected, h.thief)
		rewards.Thief += gemReward
		info.GemCollected = true
	}
	if _, onTrap := h.traps[h.thief]; onTrap {
		delete(h.traps, h.thief)
		rewards.Thief -= trapReward
		rewards.Guard += trapReward
		info.TrapSprung = true
	}

	switch {
	case h.thief == h.guard:
		rewards.Thief -= terminalSwing
		rewards.Guard += terminalSwing
		h.done = true
		info.Result = ResultGuard
	case len(h.collected) == GemCount && h.thief == h.exit:
		rewards.Thief += terminalSwing
		rewards.Guard -= terminalSwing
		h.done = true
		info.Result = ResultThief
	}

	if h.alarmTimer > 0 {
		h.alarmTimer--
		if h.alarmTimer == 0 {
			h.alarmTriggered = false
		}
	}

	return StepResult{
		Observation: h.Observe(),
		Rewards:     rewards,
		Done:        h.done,
		Info:        info,
	}, nil
}

// Observe returns the current full observation.
func (h *Heist) Observe() Observation {
	return Observation{
		Thief: h.thief,
		Guard: h.guard,
		Gems:  h.gemTiles(),
		Traps: h.trapTiles(),
		Alarm: h.alarmTriggered,
		Exit:  h.exit,
	}
}

func (h *Heist) move(from grid.Pos, cmd action.Command) grid.Pos {
	if !cmd.IsMove() {
		return from
	}
	to := from.Add(cmd.Delta)
	if !h.grid.IsPassable(to) {
		return from
	}
	return to
}

func (h *Heist) rotateExit() {
	candidates := make([]grid.Pos, 0, 3)
	for _, c := range h.grid.Corners() {
		if c != h.exit {
			candidates = append(candidates, c)
		}
	}
	if len(candidates) == 0 {
		return
	}
	h.exit = candidates[h.rng.Intn(len(candidates))]
}

// thiefGoal is the active gem nearest to from, or the exit once none remain.
func (h *Heist) thiefGoal(from grid.Pos) grid.Pos {
	gems := h.gemTiles()
	if len(gems) == 0 {
		return h.exit
	}
	best := gems[0]
	for _, g := range gems[1:] {
		if grid.Manhattan(from, g) < grid.Manhattan(from, best) {
			best = g
		}
	}
	return best
}

func (h *Heist) layTrap() bool {
	if len(h.traps) >= MaxTraps {
		return false
	}
	target, ok := trap.BestTile(h.grid, trap.View{
		Thief:     h.thief,
		Exit:      h.exit,
		Gems:      h.gemTiles(),
		Collected: append([]grid.Pos(nil), h.collected...),
		Traps:     h.trapTiles(),
	})
	if !ok {
		target = h.guard
	}
	h.traps[target] = h.cfg.TrapTTL
	return true
}

func (h *Heist) gemTiles() []grid.Pos {
	out := make([]grid.Pos, 0, len(h.gems))
	for p := range h.gems {
		out = append(out, p)
	}
	return grid.SortPositions(out)
}

func (h *Heist) trapTiles() []grid.Pos {
	out := make([]grid.Pos, 0, len(h.traps))
	for p := range h.traps {
		out = append(out, p)
	}
	return grid.SortPositions(out)
}
