package platform

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"heist/internal/action"
	"heist/internal/agent"
	"heist/internal/model"
	"heist/internal/scape"
	"heist/internal/stats"
	"heist/internal/storage"
)

type EvaluateConfig struct {
	RunID    string
	Episodes int
	MaxSteps int
	Workers  int
	Seed     int64
	// Greedy forces epsilon to 0 on tabular policies; otherwise each policy
	// keeps the exploration rate it was loaded with.
	Greedy bool

	// Nil policies are replaced by uniformly random ones.
	Thief agent.Policy
	Guard agent.Policy

	// Render, when set, receives the board after every step. It requires a
	// single worker.
	Render io.Writer
}

type EvaluateResult struct {
	RunID    string
	Episodes []model.EpisodeRecord
	Summary  stats.Summary
}

// LoadAgent fetches a stored learner and checks it plays role.
func (p *Polis) LoadAgent(ctx context.Context, id string, role action.Role, rng *rand.Rand) (*agent.Tabular, bool, error) {
	if err := p.ensureStarted(); err != nil {
		return nil, false, err
	}
	rec, ok, err := p.store.GetAgent(ctx, id)
	if err != nil || !ok {
		return nil, ok, err
	}
	if err := storage.CheckRole(rec, string(role)); err != nil {
		return nil, false, err
	}
	learner, err := agent.FromRecord(rec, rng)
	if err != nil {
		return nil, false, fmt.Errorf("load agent %s: %w", id, err)
	}
	return learner, true, nil
}

// Evaluate plays cfg.Episodes episodes without learning. Episode i runs on an
// environment and policies reseeded from (Seed, i), so results do not depend
// on the worker count.
func (p *Polis) Evaluate(ctx context.Context, cfg EvaluateConfig) (EvaluateResult, error) {
	if err := p.ensureStarted(); err != nil {
		return EvaluateResult{}, err
	}
	if cfg.Episodes <= 0 {
		return EvaluateResult{}, fmt.Errorf("episodes must be > 0")
	}
	if cfg.MaxSteps <= 0 {
		return EvaluateResult{}, fmt.Errorf("max steps must be > 0")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Render != nil && cfg.Workers != 1 {
		return EvaluateResult{}, fmt.Errorf("rendering requires a single worker, got %d", cfg.Workers)
	}
	if cfg.RunID == "" {
		cfg.RunID = "evaluate-" + strconv.FormatInt(cfg.Seed, 10)
	}
	thief, guard, err := p.evaluationPolicies(cfg)
	if err != nil {
		return EvaluateResult{}, err
	}

	p.logger.Info("evaluation started",
		"run_id", cfg.RunID,
		"episodes", cfg.Episodes,
		"workers", cfg.Workers,
		"greedy", cfg.Greedy,
	)

	episodes, err := p.evaluateEpisodes(ctx, cfg, thief, guard)
	if err != nil {
		return EvaluateResult{}, err
	}

	summary := stats.Summarize(cfg.RunID, PhaseEvaluate, episodes)
	if t, ok := thief.(*agent.Tabular); ok {
		summary.ThiefStates = t.States()
	}
	if g, ok := guard.(*agent.Tabular); ok {
		summary.GuardStates = g.States()
	}
	run := runRecord(cfg.RunID, PhaseEvaluate, "", time.Now().UTC(), cfg.Seed, cfg.MaxSteps, summary)
	if err := p.persistRun(ctx, run, episodes); err != nil {
		return EvaluateResult{}, err
	}

	p.logger.Info("evaluation finished",
		"run_id", cfg.RunID,
		"thief_wins", summary.ThiefWins,
		"guard_wins", summary.GuardWins,
		"draws", summary.Draws,
		"avg_steps", summary.AvgSteps,
	)
	return EvaluateResult{RunID: cfg.RunID, Episodes: episodes, Summary: summary}, nil
}

func (p *Polis) evaluationPolicies(cfg EvaluateConfig) (agent.Policy, agent.Policy, error) {
	base := rand.New(rand.NewSource(cfg.Seed))
	thief, guard := cfg.Thief, cfg.Guard
	if thief == nil {
		thief = agent.NewRandom(action.Thief, base)
	}
	if guard == nil {
		guard = agent.NewRandom(action.Guard, base)
	}
	if thief.Role() != action.Thief {
		return nil, nil, fmt.Errorf("%w: thief slot holds a %s policy", storage.ErrRoleMismatch, thief.Role())
	}
	if guard.Role() != action.Guard {
		return nil, nil, fmt.Errorf("%w: guard slot holds a %s policy", storage.ErrRoleMismatch, guard.Role())
	}
	return thief, guard, nil
}

// workerPolicy gives one worker its own copy of p.
func workerPolicy(p agent.Policy, greedy bool) (agent.Policy, error) {
	clone := agent.ClonePolicy(p, rand.New(rand.NewSource(0)))
	if t, ok := clone.(*agent.Tabular); ok && greedy {
		if err := t.SetEpsilon(0); err != nil {
			return nil, err
		}
	}
	return clone, nil
}

func episodeSeed(seed int64, episode int) int64 {
	return seed*1_000_003 + int64(episode)
}

func (p *Polis) evaluateEpisodes(ctx context.Context, cfg EvaluateConfig, thief, guard agent.Policy) ([]model.EpisodeRecord, error) {
	type job struct {
		idx int
	}
	type result struct {
		idx    int
		record model.EpisodeRecord
		err    error
	}

	jobs := make(chan job)
	results := make(chan result, cfg.Episodes)

	workerCount := cfg.Workers
	if workerCount > cfg.Episodes {
		workerCount = cfg.Episodes
	}

	var wg sync.WaitGroup
	wg.Add(workerCount)
	for w := 0; w < workerCount; w++ {
		go func() {
			defer wg.Done()
			env, err := p.NewEnv(cfg.Seed)
			var thiefCopy, guardCopy agent.Policy
			if err == nil {
				thiefCopy, err = workerPolicy(thief, cfg.Greedy)
			}
			if err == nil {
				guardCopy, err = workerPolicy(guard, cfg.Greedy)
			}
			for j := range jobs {
				if err != nil {
					results <- result{idx: j.idx, err: err}
					continue
				}
				if err := ctx.Err(); err != nil {
					results <- result{idx: j.idx, err: err}
					continue
				}

				seed := episodeSeed(cfg.Seed, j.idx)
				env.Reseed(seed)
				reseed(thiefCopy, seed+1)
				reseed(guardCopy, seed+2)

				opts := EpisodeOptions{MaxSteps: cfg.MaxSteps}
				if cfg.Render != nil {
					opts.Hook = renderHook(cfg.Render, env)
					if _, err := fmt.Fprintf(cfg.Render, "episode=%d\n", j.idx+1); err != nil {
						results <- result{idx: j.idx, err: err}
						continue
					}
				}
				out, err := RunEpisode(ctx, env, thiefCopy, guardCopy, opts)
				if err != nil {
					results <- result{idx: j.idx, err: fmt.Errorf("episode %d: %w", j.idx+1, err)}
					continue
				}
				p.metrics.RecordEpisode(PhaseEvaluate, string(out.Result), out.Steps, out.TrapsPlaced)
				results <- result{idx: j.idx, record: episodeRecord(j.idx+1, out)}
			}
		}()
	}

	for i := 0; i < cfg.Episodes; i++ {
		jobs <- job{idx: i}
	}
	close(jobs)

	wg.Wait()
	close(results)

	episodes := make([]model.EpisodeRecord, cfg.Episodes)
	for res := range results {
		if res.err != nil {
			return nil, res.err
		}
		episodes[res.idx] = res.record
	}
	return episodes, nil
}

func reseed(p agent.Policy, seed int64) {
	if r, ok := p.(agent.Reseeder); ok {
		r.Reseed(seed)
	}
}

// renderHook prints a step header and the board after every transition.
func renderHook(w io.Writer, env *scape.Heist) StepHook {
	return func(step int, res scape.StepResult) error {
		line := fmt.Sprintf("step=%d thief_reward=%.2f guard_reward=%.2f", step, res.Rewards.Thief, res.Rewards.Guard)
		if res.Done {
			line += " result=" + string(res.Info.Result)
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
		return env.Render(w)
	}
}
