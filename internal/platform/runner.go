package platform

import (
	"context"
	"fmt"

	"heist/internal/agent"
	"heist/internal/scape"
)

// EpisodeOutcome summarises one episode. An empty Result means the step
// limit was reached first.
type EpisodeOutcome struct {
	Result      scape.Result
	Steps       int
	ThiefReward float64
	GuardReward float64
	TrapsPlaced int
}

// StepHook observes every transition; returning an error aborts the episode.
type StepHook func(step int, res scape.StepResult) error

type EpisodeOptions struct {
	MaxSteps int
	Learn    bool
	// OnReset sees the starting observation before the first step.
	OnReset func(obs scape.Observation) error
	Hook    StepHook
}

// RunEpisode resets env and plays thief against guard until the episode ends
// or MaxSteps is reached. The guard chooses from its masked view. With Learn
// set both policies are updated after every step.
func RunEpisode(ctx context.Context, env *scape.Heist, thief, guard agent.Policy, opts EpisodeOptions) (EpisodeOutcome, error) {
	if opts.MaxSteps <= 0 {
		return EpisodeOutcome{}, fmt.Errorf("max steps must be > 0")
	}
	obs, err := env.Reset()
	if err != nil {
		return EpisodeOutcome{}, err
	}
	if opts.OnReset != nil {
		if err := opts.OnReset(obs); err != nil {
			return EpisodeOutcome{}, err
		}
	}
	thiefView, guardView := scape.Split(obs)
	thiefKey, guardKey := thiefView.Key(), guardView.Key()

	var out EpisodeOutcome
	for out.Steps < opts.MaxSteps {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		thiefAction := thief.SelectAction(thiefKey)
		guardAction := guard.SelectAction(guardKey)
		res, err := env.Step(thiefAction, guardAction)
		if err != nil {
			return out, err
		}
		out.Steps++
		out.ThiefReward += res.Rewards.Thief
		out.GuardReward += res.Rewards.Guard
		if res.Info.TrapPlaced {
			out.TrapsPlaced++
		}

		nextThief, nextGuard := scape.Split(res.Observation)
		nextThiefKey, nextGuardKey := nextThief.Key(), nextGuard.Key()
		if opts.Learn {
			if err := thief.Update(thiefKey, thiefAction, res.Rewards.Thief, nextThiefKey, res.Done); err != nil {
				return out, err
			}
			if err := guard.Update(guardKey, guardAction, res.Rewards.Guard, nextGuardKey, res.Done); err != nil {
				return out, err
			}
		}
		if opts.Hook != nil {
			if err := opts.Hook(out.Steps, res); err != nil {
				return out, err
			}
		}
		if res.Done {
			out.Result = res.Info.Result
			break
		}
		thiefKey, guardKey = nextThiefKey, nextGuardKey
	}
	return out, nil
}
