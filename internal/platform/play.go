package platform

import (
	"context"
	"fmt"
	"io"
	"math/rand"

	"heist/internal/action"
	"heist/internal/agent"
	"heist/internal/scape"
	"heist/internal/stats"
)

type PlayConfig struct {
	Seed     int64
	MaxSteps int
	Greedy   bool
	Thief    agent.Policy
	Guard    agent.Policy
	Out      io.Writer
}

// Play runs a single non-learning episode and renders the starting board and
// every following step to cfg.Out. Nothing is persisted.
func (p *Polis) Play(ctx context.Context, cfg PlayConfig) (EpisodeOutcome, error) {
	if cfg.MaxSteps <= 0 {
		return EpisodeOutcome{}, fmt.Errorf("max steps must be > 0")
	}
	if cfg.Out == nil {
		cfg.Out = io.Discard
	}
	master := rand.New(rand.NewSource(cfg.Seed))
	env, err := p.NewEnv(master.Int63())
	if err != nil {
		return EpisodeOutcome{}, err
	}

	thief, guard := cfg.Thief, cfg.Guard
	if thief == nil {
		thief = agent.NewRandom(action.Thief, master)
	}
	if guard == nil {
		guard = agent.NewRandom(action.Guard, master)
	}
	if thief.Role() != action.Thief || guard.Role() != action.Guard {
		return EpisodeOutcome{}, fmt.Errorf("play needs a thief and a guard, got %s and %s", thief.Role(), guard.Role())
	}
	if thief, err = workerPolicy(thief, cfg.Greedy); err != nil {
		return EpisodeOutcome{}, err
	}
	if guard, err = workerPolicy(guard, cfg.Greedy); err != nil {
		return EpisodeOutcome{}, err
	}
	reseed(thief, master.Int63())
	reseed(guard, master.Int63())

	out, err := RunEpisode(ctx, env, thief, guard, EpisodeOptions{
		MaxSteps: cfg.MaxSteps,
		OnReset: func(scape.Observation) error {
			if _, err := fmt.Fprintln(cfg.Out, "step=0"); err != nil {
				return err
			}
			return env.Render(cfg.Out)
		},
		Hook: renderHook(cfg.Out, env),
	})
	if err != nil {
		return out, err
	}
	p.metrics.RecordEpisode(PhasePlay, string(out.Result), out.Steps, out.TrapsPlaced)
	if _, err := fmt.Fprintf(cfg.Out, "result=%s steps=%d thief_reward=%.2f guard_reward=%.2f\n",
		stats.ResultLabel(string(out.Result)), out.Steps, out.ThiefReward, out.GuardReward); err != nil {
		return out, err
	}
	return out, nil
}
