package scape

import "heist/internal/action"

// Env is the reset/step contract every heist episode runner drives.
type Env interface {
	Name() string
	Reset() (Observation, error)
	Step(thief, guard action.Action) (StepResult, error)
}

type Result string

const (
	ResultNone  Result = ""
	ResultThief Result = "thief"
	ResultGuard Result = "guard"
)

type Rewards struct {
	Thief float64 `json:"thief"`
	Guard float64 `json:"guard"`
}

// Info carries auxiliary per-step facts alongside the result tag.
type Info struct {
	Result       Result `json:"result,omitempty"`
	ExitMoved    bool   `json:"exit_moved,omitempty"`
	TrapPlaced   bool   `json:"trap_placed,omitempty"`
	TrapsExpired int    `json:"traps_expired,omitempty"`
	GemCollected bool   `json:"gem_collected,omitempty"`
	AlarmRaised  bool   `json:"alarm_raised,omitempty"`
	TrapSprung   bool   `json:"trap_sprung,omitempty"`
}

type StepResult struct {
	Observation Observation `json:"observation"`
	Rewards     Rewards     `json:"rewards"`
	Done        bool        `json:"done"`
	Info        Info        `json:"info"`
}
