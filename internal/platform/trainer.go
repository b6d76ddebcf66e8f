package platform

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"heist/internal/action"
	"heist/internal/agent"
	"heist/internal/model"
	"heist/internal/stats"
	"heist/internal/storage"
)

const (
	RoleBoth = "both"

	PhaseTrain    = "train"
	PhaseEvaluate = "evaluate"
	PhasePlay     = "play"
)

type TrainConfig struct {
	RunID    string
	Role     string
	Episodes int
	MaxSteps int
	Seed     int64
	Agent    agent.Config
	LogEvery int

	// Optional learners to continue training from. Their role must match.
	Thief *agent.Tabular
	Guard *agent.Tabular
}

type TrainResult struct {
	RunID        string
	ThiefAgentID string
	GuardAgentID string
	Thief        *agent.Tabular
	Guard        *agent.Tabular
	Episodes     []model.EpisodeRecord
	Summary      stats.Summary
}

// AgentID is the store key of the learner a run trained for role.
func AgentID(runID string, role action.Role) string {
	return runID + ":" + string(role)
}

// TrainRoles reports which roles a thief|guard|both selector covers.
func TrainRoles(role string) (thief, guard bool, err error) {
	switch role {
	case RoleBoth, "":
		return true, true, nil
	case string(action.Thief):
		return true, false, nil
	case string(action.Guard):
		return false, true, nil
	default:
		return false, false, fmt.Errorf("%w: %q", action.ErrUnknownRole, role)
	}
}

// Train runs cfg.Episodes learning episodes, then persists the trained
// learners, the run record and the per-episode history.
func (p *Polis) Train(ctx context.Context, cfg TrainConfig) (TrainResult, error) {
	if err := p.ensureStarted(); err != nil {
		return TrainResult{}, err
	}
	if cfg.Episodes <= 0 {
		return TrainResult{}, fmt.Errorf("episodes must be > 0")
	}
	if cfg.MaxSteps <= 0 {
		return TrainResult{}, fmt.Errorf("max steps must be > 0")
	}
	trainThief, trainGuard, err := TrainRoles(cfg.Role)
	if err != nil {
		return TrainResult{}, err
	}
	if cfg.RunID == "" {
		cfg.RunID = "train-" + strconv.FormatInt(cfg.Seed, 10)
	}
	if cfg.Role == "" {
		cfg.Role = RoleBoth
	}

	master := rand.New(rand.NewSource(cfg.Seed))
	env, err := p.NewEnv(master.Int63())
	if err != nil {
		return TrainResult{}, err
	}
	thiefRng := rand.New(rand.NewSource(master.Int63()))
	guardRng := rand.New(rand.NewSource(master.Int63()))

	thiefLearner, thief, err := trainingPolicy(action.Thief, trainThief, cfg.Thief, thiefRng, cfg.Agent)
	if err != nil {
		return TrainResult{}, err
	}
	guardLearner, guard, err := trainingPolicy(action.Guard, trainGuard, cfg.Guard, guardRng, cfg.Agent)
	if err != nil {
		return TrainResult{}, err
	}

	p.logger.Info("training started",
		"run_id", cfg.RunID,
		"role", cfg.Role,
		"episodes", cfg.Episodes,
		"max_steps", cfg.MaxSteps,
		"seed", cfg.Seed,
	)

	episodes := make([]model.EpisodeRecord, 0, cfg.Episodes)
	for ep := 1; ep <= cfg.Episodes; ep++ {
		out, err := RunEpisode(ctx, env, thief, guard, EpisodeOptions{MaxSteps: cfg.MaxSteps, Learn: true})
		if err != nil {
			return TrainResult{}, fmt.Errorf("episode %d: %w", ep, err)
		}
		episodes = append(episodes, episodeRecord(ep, out))
		p.metrics.RecordEpisode(PhaseTrain, string(out.Result), out.Steps, out.TrapsPlaced)

		if cfg.LogEvery > 0 && ep%cfg.LogEvery == 0 {
			window := stats.Summarize(cfg.RunID, PhaseTrain, episodes[len(episodes)-cfg.LogEvery:])
			p.logger.Info("training progress",
				"run_id", cfg.RunID,
				"episode", ep,
				"result", stats.ResultLabel(string(out.Result)),
				"steps", out.Steps,
				"epsilon", cfg.Agent.Epsilon,
				"thief_win_rate", window.ThiefWinRate,
				"guard_win_rate", window.GuardWinRate,
			)
		}
	}

	result := TrainResult{
		RunID:    cfg.RunID,
		Thief:    thiefLearner,
		Guard:    guardLearner,
		Episodes: episodes,
		Summary:  stats.Summarize(cfg.RunID, PhaseTrain, episodes),
	}
	now := time.Now().UTC()
	for _, learner := range []*agent.Tabular{thiefLearner, guardLearner} {
		if learner == nil {
			continue
		}
		id := AgentID(cfg.RunID, learner.Role())
		if err := p.store.SaveAgent(ctx, agentRecord(learner, id, cfg.RunID, cfg.Episodes, now)); err != nil {
			return TrainResult{}, fmt.Errorf("save %s agent: %w", learner.Role(), err)
		}
		p.metrics.SetTableStates(string(learner.Role()), learner.States())
		if learner.Role() == action.Thief {
			result.ThiefAgentID = id
			result.Summary.ThiefStates = learner.States()
		} else {
			result.GuardAgentID = id
			result.Summary.GuardStates = learner.States()
		}
	}

	run := runRecord(cfg.RunID, PhaseTrain, cfg.Role, now, cfg.Seed, cfg.MaxSteps, result.Summary)
	run.Alpha, run.Gamma, run.Epsilon = cfg.Agent.Alpha, cfg.Agent.Gamma, cfg.Agent.Epsilon
	run.ThiefAgentID, run.GuardAgentID = result.ThiefAgentID, result.GuardAgentID
	if err := p.persistRun(ctx, run, episodes); err != nil {
		return TrainResult{}, err
	}

	p.logger.Info("training finished",
		"run_id", cfg.RunID,
		"thief_wins", result.Summary.ThiefWins,
		"guard_wins", result.Summary.GuardWins,
		"draws", result.Summary.Draws,
		"avg_steps", result.Summary.AvgSteps,
	)
	return result, nil
}

func trainingPolicy(role action.Role, learn bool, warm *agent.Tabular, rng *rand.Rand, cfg agent.Config) (*agent.Tabular, agent.Policy, error) {
	if !learn {
		return nil, agent.NewRandom(role, rng), nil
	}
	if warm != nil {
		if warm.Role() != role {
			return nil, nil, fmt.Errorf("%w: want %s learner, got %s", storage.ErrRoleMismatch, role, warm.Role())
		}
		learner := warm.Clone(rng)
		if err := learner.SetEpsilon(cfg.Epsilon); err != nil {
			return nil, nil, err
		}
		return learner, learner, nil
	}
	learner, err := agent.New(role, rng, cfg)
	if err != nil {
		return nil, nil, err
	}
	return learner, learner, nil
}

func agentRecord(t *agent.Tabular, id, runID string, episodes int, now time.Time) model.AgentRecord {
	rec := t.Record(id)
	rec.VersionedRecord = storage.Versioned()
	rec.Metadata = map[string]string{
		"run_id":     runID,
		"episodes":   strconv.Itoa(episodes),
		"created_at": now.Format(time.RFC3339),
	}
	return rec
}

func episodeRecord(ep int, out EpisodeOutcome) model.EpisodeRecord {
	return model.EpisodeRecord{
		VersionedRecord: storage.Versioned(),
		Episode:         ep,
		Result:          string(out.Result),
		Steps:           out.Steps,
		ThiefReward:     out.ThiefReward,
		GuardReward:     out.GuardReward,
		TrapsPlaced:     out.TrapsPlaced,
	}
}

func runRecord(runID, phase, role string, now time.Time, seed int64, maxSteps int, s stats.Summary) model.RunRecord {
	return model.RunRecord{
		VersionedRecord: storage.Versioned(),
		ID:              runID,
		Phase:           phase,
		Role:            role,
		CreatedAt:       now,
		Seed:            seed,
		Episodes:        s.Episodes,
		MaxSteps:        maxSteps,
		ThiefWins:       s.ThiefWins,
		GuardWins:       s.GuardWins,
		Draws:           s.Draws,
		AvgSteps:        s.AvgSteps,
	}
}

func (p *Polis) persistRun(ctx context.Context, run model.RunRecord, episodes []model.EpisodeRecord) error {
	if err := p.store.SaveRun(ctx, run); err != nil {
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}
	if err := p.store.SaveEpisodes(ctx, run.ID, episodes); err != nil {
		return fmt.Errorf("save episodes for %s: %w", run.ID, err)
	}
	return nil
}
