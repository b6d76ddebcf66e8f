package heist

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"heist/internal/action"
	"heist/internal/agent"
	"heist/internal/model"
	"heist/internal/platform"
	"heist/internal/stats"
	"heist/internal/storage"
)

const (
	defaultModelsDir     = "models"
	defaultBenchmarksDir = "benchmarks"
	defaultExportsDir    = "exports"
	defaultDBPath        = "heist.db"

	sourceRandom = "random"

	// Fixed width so run index timestamps order correctly as strings.
	indexTimeFormat = "2006-01-02T15:04:05.000000000Z07:00"
)

type Options struct {
	StoreKind     string
	DBPath        string
	ModelsDir     string
	BenchmarksDir string
	ExportsDir    string
	Logger        *slog.Logger
	Metrics       *stats.Metrics
	Env           EnvOptions
}

// EnvOptions overrides the environment timers. Zero keeps the default.
type EnvOptions struct {
	TrapTTL       int
	ExitInterval  int
	AlarmDuration int
}

type Client struct {
	store   storage.Store
	polis   *platform.Polis
	logger  *slog.Logger
	metrics *stats.Metrics
	env     EnvOptions

	storeKind     string
	modelsDir     string
	benchmarksDir string
	exportsDir    string
}

type TrainRequest struct {
	Role     string
	Episodes int
	MaxSteps int
	Seed     int64
	// Leaving Alpha, Gamma and Epsilon all zero selects the agent defaults.
	// Otherwise a zero Alpha alone falls back to its default,
	// and zero Gamma or Epsilon are kept as given.
	Alpha    float64
	Gamma    float64
	Epsilon  float64
	LogEvery int
	// Resume continues from the bundles in the models directory when present.
	Resume bool
}

type TrainSummary struct {
	RunID        string
	ArtifactsDir string
	ThiefBundle  string
	GuardBundle  string
	Summary      stats.Summary
}

type EvaluateRequest struct {
	// Role picks which learners are scored: thief, guard or both (default).
	// The other role plays a random policy even when a trained one exists.
	Role     string
	Episodes int
	MaxSteps int
	Workers  int
	Seed     int64
	Greedy   bool
	// Agent ids select stored learners; when empty the bundle in the models
	// directory is used, and a random policy when there is none.
	ThiefAgentID string
	GuardAgentID string
	Render       io.Writer
}

type EvaluateSummary struct {
	RunID        string
	ArtifactsDir string
	ThiefSource  string
	GuardSource  string
	Summary      stats.Summary
}

type PlayRequest struct {
	Seed         int64
	MaxSteps     int
	Greedy       bool
	ThiefAgentID string
	GuardAgentID string
	Out          io.Writer
}

type PlaySummary struct {
	Result      string
	Steps       int
	ThiefReward float64
	GuardReward float64
	TrapsPlaced int
}

type RunsRequest struct {
	Limit int
	Phase string
}

type RunItem struct {
	RunID        string
	CreatedAtUTC string
	Phase        string
	Role         string
	Seed         int64
	Episodes     int
	ThiefWins    int
	GuardWins    int
	Draws        int
	AvgSteps     float64
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

type PolicyRequest struct {
	Role string
	// Path is a bundle or table file; empty means the role's bundle in the
	// models directory.
	Path string
}

type TableRequest struct {
	Role string
	Path string
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	modelsDir := opts.ModelsDir
	if modelsDir == "" {
		modelsDir = defaultModelsDir
	}
	benchmarksDir := opts.BenchmarksDir
	if benchmarksDir == "" {
		benchmarksDir = defaultBenchmarksDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:         store,
		logger:        logger,
		metrics:       opts.Metrics,
		env:           opts.Env,
		storeKind:     storeKind,
		modelsDir:     modelsDir,
		benchmarksDir: benchmarksDir,
		exportsDir:    exportsDir,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	_, err := c.ensurePolis(ctx)
	return err
}

func (c *Client) Reset(ctx context.Context) error {
	p, err := c.ensurePolis(ctx)
	if err != nil {
		return err
	}
	return p.Reset(ctx)
}

func (c *Client) Train(ctx context.Context, req TrainRequest) (TrainSummary, error) {
	if req.Role == "" {
		req.Role = platform.RoleBoth
	}
	if req.Episodes <= 0 {
		req.Episodes = 10000
	}
	if req.MaxSteps <= 0 {
		req.MaxSteps = 200
	}
	if req.Alpha == 0 && req.Gamma == 0 && req.Epsilon == 0 {
		req.Gamma, req.Epsilon = agent.DefaultGamma, agent.DefaultEpsilon
	}
	if req.Alpha == 0 {
		req.Alpha = agent.DefaultAlpha
	}
	trainThief, trainGuard, err := platform.TrainRoles(req.Role)
	if err != nil {
		return TrainSummary{}, err
	}

	p, err := c.ensurePolis(ctx)
	if err != nil {
		return TrainSummary{}, err
	}

	cfg := platform.TrainConfig{
		RunID:    uuid.NewString(),
		Role:     req.Role,
		Episodes: req.Episodes,
		MaxSteps: req.MaxSteps,
		Seed:     req.Seed,
		Agent:    agent.Config{Alpha: req.Alpha, Gamma: req.Gamma, Epsilon: req.Epsilon},
		LogEvery: req.LogEvery,
	}
	if req.Resume {
		if trainThief {
			if cfg.Thief, err = c.readBundleLearner(action.Thief); err != nil {
				return TrainSummary{}, err
			}
		}
		if trainGuard {
			if cfg.Guard, err = c.readBundleLearner(action.Guard); err != nil {
				return TrainSummary{}, err
			}
		}
	}

	result, err := p.Train(ctx, cfg)
	if err != nil {
		return TrainSummary{}, err
	}

	summary := TrainSummary{RunID: result.RunID, Summary: result.Summary}
	if result.ThiefAgentID != "" {
		if summary.ThiefBundle, err = c.writeBundle(ctx, result.ThiefAgentID, action.Thief); err != nil {
			return TrainSummary{}, err
		}
	}
	if result.GuardAgentID != "" {
		if summary.GuardBundle, err = c.writeBundle(ctx, result.GuardAgentID, action.Guard); err != nil {
			return TrainSummary{}, err
		}
	}

	runDir, err := c.writeArtifacts(stats.RunConfig{
		RunID:        result.RunID,
		Phase:        platform.PhaseTrain,
		Role:         req.Role,
		Episodes:     req.Episodes,
		MaxSteps:     req.MaxSteps,
		Seed:         req.Seed,
		Alpha:        req.Alpha,
		Gamma:        req.Gamma,
		Epsilon:      req.Epsilon,
		Store:        c.storeKind,
		ThiefAgentID: result.ThiefAgentID,
		GuardAgentID: result.GuardAgentID,
	}, result.Episodes, result.Summary)
	if err != nil {
		return TrainSummary{}, err
	}
	summary.ArtifactsDir = runDir
	return summary, nil
}

func (c *Client) Evaluate(ctx context.Context, req EvaluateRequest) (EvaluateSummary, error) {
	if req.Episodes <= 0 {
		req.Episodes = 100
	}
	if req.MaxSteps <= 0 {
		req.MaxSteps = 200
	}
	if req.Workers <= 0 {
		req.Workers = 1
	}
	if req.Role == "" {
		req.Role = platform.RoleBoth
	}
	evalThief, evalGuard, err := platform.TrainRoles(req.Role)
	if err != nil {
		return EvaluateSummary{}, err
	}
	if !evalThief && req.ThiefAgentID != "" {
		return EvaluateSummary{}, fmt.Errorf("thief agent %s given but role %s plays a random thief", req.ThiefAgentID, req.Role)
	}
	if !evalGuard && req.GuardAgentID != "" {
		return EvaluateSummary{}, fmt.Errorf("guard agent %s given but role %s plays a random guard", req.GuardAgentID, req.Role)
	}
	p, err := c.ensurePolis(ctx)
	if err != nil {
		return EvaluateSummary{}, err
	}

	var thief, guard agent.Policy
	thiefSource, guardSource := sourceRandom, sourceRandom
	if evalThief {
		if thief, thiefSource, err = c.resolvePolicy(ctx, p, action.Thief, req.ThiefAgentID); err != nil {
			return EvaluateSummary{}, err
		}
	}
	if evalGuard {
		if guard, guardSource, err = c.resolvePolicy(ctx, p, action.Guard, req.GuardAgentID); err != nil {
			return EvaluateSummary{}, err
		}
	}

	result, err := p.Evaluate(ctx, platform.EvaluateConfig{
		RunID:    uuid.NewString(),
		Episodes: req.Episodes,
		MaxSteps: req.MaxSteps,
		Workers:  req.Workers,
		Seed:     req.Seed,
		Greedy:   req.Greedy,
		Thief:    thief,
		Guard:    guard,
		Render:   req.Render,
	})
	if err != nil {
		return EvaluateSummary{}, err
	}

	runDir, err := c.writeArtifacts(stats.RunConfig{
		RunID:        result.RunID,
		Phase:        platform.PhaseEvaluate,
		Role:         req.Role,
		Episodes:     req.Episodes,
		MaxSteps:     req.MaxSteps,
		Seed:         req.Seed,
		Workers:      req.Workers,
		Store:        c.storeKind,
		ThiefAgentID: req.ThiefAgentID,
		GuardAgentID: req.GuardAgentID,
	}, result.Episodes, result.Summary)
	if err != nil {
		return EvaluateSummary{}, err
	}
	return EvaluateSummary{
		RunID:        result.RunID,
		ArtifactsDir: runDir,
		ThiefSource:  thiefSource,
		GuardSource:  guardSource,
		Summary:      result.Summary,
	}, nil
}

func (c *Client) Play(ctx context.Context, req PlayRequest) (PlaySummary, error) {
	if req.MaxSteps <= 0 {
		req.MaxSteps = 200
	}
	p, err := c.ensurePolis(ctx)
	if err != nil {
		return PlaySummary{}, err
	}
	thief, _, err := c.resolvePolicy(ctx, p, action.Thief, req.ThiefAgentID)
	if err != nil {
		return PlaySummary{}, err
	}
	guard, _, err := c.resolvePolicy(ctx, p, action.Guard, req.GuardAgentID)
	if err != nil {
		return PlaySummary{}, err
	}
	out, err := p.Play(ctx, platform.PlayConfig{
		Seed:     req.Seed,
		MaxSteps: req.MaxSteps,
		Greedy:   req.Greedy,
		Thief:    thief,
		Guard:    guard,
		Out:      req.Out,
	})
	if err != nil {
		return PlaySummary{}, err
	}
	return PlaySummary{
		Result:      stats.ResultLabel(string(out.Result)),
		Steps:       out.Steps,
		ThiefReward: out.ThiefReward,
		GuardReward: out.GuardReward,
		TrapsPlaced: out.TrapsPlaced,
	}, nil
}

func (c *Client) Runs(_ context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}

	entries, err := stats.ListRunIndex(c.benchmarksDir)
	if err != nil {
		return nil, err
	}

	out := make([]RunItem, 0, len(entries))
	for _, e := range entries {
		if req.Phase != "" && e.Phase != req.Phase {
			continue
		}
		out = append(out, RunItem{
			RunID:        e.RunID,
			CreatedAtUTC: e.CreatedAtUTC,
			Phase:        e.Phase,
			Role:         e.Role,
			Seed:         e.Seed,
			Episodes:     e.Episodes,
			ThiefWins:    e.ThiefWins,
			GuardWins:    e.GuardWins,
			Draws:        e.Draws,
			AvgSteps:     e.AvgSteps,
		})
		if len(out) == req.Limit {
			break
		}
	}
	return out, nil
}

func (c *Client) Export(_ context.Context, req ExportRequest) (ExportSummary, error) {
	if req.RunID != "" && req.Latest {
		return ExportSummary{}, errors.New("use either run id or latest")
	}
	if req.RunID == "" && !req.Latest {
		return ExportSummary{}, errors.New("export requires run id or latest")
	}
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}

	runID := req.RunID
	if req.Latest {
		entries, err := stats.ListRunIndex(c.benchmarksDir)
		if err != nil {
			return ExportSummary{}, err
		}
		if len(entries) == 0 {
			return ExportSummary{}, errors.New("no runs available to export")
		}
		runID = entries[0].RunID
	}

	exportedDir, err := stats.ExportRunArtifacts(c.benchmarksDir, runID, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(exportedDir)}, nil
}

// PolicyRows reads a bundle or table file and lists its greedy policy.
func (c *Client) PolicyRows(_ context.Context, req PolicyRequest) ([]platform.PolicyRow, error) {
	role, err := action.ParseRole(req.Role)
	if err != nil {
		return nil, err
	}
	path := req.Path
	if path == "" {
		path = storage.BundlePath(c.modelsDir, string(role))
	}
	table, err := storage.LoadTable(path, string(role))
	if err != nil {
		return nil, err
	}
	learner, err := agent.FromRecord(model.AgentRecord{
		Role:    string(role),
		Alpha:   agent.DefaultAlpha,
		Gamma:   agent.DefaultGamma,
		Epsilon: agent.DefaultEpsilon,
		Actions: action.Count,
		Table:   table,
	}, rand.New(rand.NewSource(1)))
	if err != nil {
		return nil, err
	}
	return platform.PolicyRows(learner)
}

// ExportTable copies the value table of a role's bundle into a table-only
// file at req.Path.
func (c *Client) ExportTable(_ context.Context, req TableRequest) (string, error) {
	role, err := action.ParseRole(req.Role)
	if err != nil {
		return "", err
	}
	if req.Path == "" {
		return "", errors.New("table path is required")
	}
	rec, err := storage.ReadBundle(storage.BundlePath(c.modelsDir, string(role)), string(role))
	if err != nil {
		return "", err
	}
	if err := storage.SaveTable(req.Path, string(role), rec.Table, rec.Actions); err != nil {
		return "", err
	}
	return filepath.Clean(req.Path), nil
}

func (c *Client) ensurePolis(ctx context.Context) (*platform.Polis, error) {
	if c.polis != nil {
		return c.polis, nil
	}
	p := platform.NewPolis(platform.Config{
		Store:   c.store,
		Logger:  c.logger,
		Metrics: c.metrics,
		Env: platform.EnvConfig{
			TrapTTL:       c.env.TrapTTL,
			ExitInterval:  c.env.ExitInterval,
			AlarmDuration: c.env.AlarmDuration,
		},
	})
	if err := p.Init(ctx); err != nil {
		return nil, err
	}
	c.polis = p
	return c.polis, nil
}

// resolvePolicy picks a stored agent by id, else the role's bundle, else a
// random policy. The second return names the source.
func (c *Client) resolvePolicy(ctx context.Context, p *platform.Polis, role action.Role, id string) (agent.Policy, string, error) {
	rng := rand.New(rand.NewSource(1))
	if id != "" {
		learner, ok, err := p.LoadAgent(ctx, id, role, rng)
		if err != nil {
			return nil, "", err
		}
		if !ok {
			return nil, "", fmt.Errorf("agent not found: %s", id)
		}
		return learner, "store:" + id, nil
	}

	path := storage.BundlePath(c.modelsDir, string(role))
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			c.logger.Warn("no trained agent, using random policy", "role", role, "bundle", path)
			return nil, sourceRandom, nil
		}
		return nil, "", err
	}
	learner, err := c.readBundleLearner(role)
	if err != nil {
		return nil, "", err
	}
	if learner == nil {
		return nil, sourceRandom, nil
	}
	return learner, "bundle:" + path, nil
}

// readBundleLearner loads the role's bundle from the models directory. A
// missing bundle yields nil without error.
func (c *Client) readBundleLearner(role action.Role) (*agent.Tabular, error) {
	path := storage.BundlePath(c.modelsDir, string(role))
	rec, err := storage.ReadBundle(path, string(role))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read bundle %s: %w", path, err)
	}
	return agent.FromRecord(rec, rand.New(rand.NewSource(1)))
}

func (c *Client) writeBundle(ctx context.Context, id string, role action.Role) (string, error) {
	rec, ok, err := c.store.GetAgent(ctx, id)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("agent not found: %s", id)
	}
	path := storage.BundlePath(c.modelsDir, string(role))
	if err := storage.WriteBundle(path, rec); err != nil {
		return "", fmt.Errorf("write %s bundle: %w", role, err)
	}
	c.logger.Info("saved agent bundle", "role", role, "path", path, "states", len(rec.Table))
	return filepath.Clean(path), nil
}

func (c *Client) writeArtifacts(cfg stats.RunConfig, episodes []model.EpisodeRecord, summary stats.Summary) (string, error) {
	runDir, err := stats.WriteRunArtifacts(c.benchmarksDir, stats.RunArtifacts{
		Config:   cfg,
		Episodes: episodes,
		Summary:  summary,
	})
	if err != nil {
		return "", err
	}
	if err := stats.AppendRunIndex(c.benchmarksDir, stats.RunIndexEntry{
		RunID:        cfg.RunID,
		Phase:        cfg.Phase,
		Role:         cfg.Role,
		Episodes:     summary.Episodes,
		Seed:         cfg.Seed,
		ThiefWins:    summary.ThiefWins,
		GuardWins:    summary.GuardWins,
		Draws:        summary.Draws,
		AvgSteps:     summary.AvgSteps,
		CreatedAtUTC: time.Now().UTC().Format(indexTimeFormat),
	}); err != nil {
		return "", err
	}
	if c.metrics != nil {
		if err := c.metrics.WriteTextfile(filepath.Join(runDir, stats.MetricsFile)); err != nil {
			return "", err
		}
	}
	c.logger.Info("wrote run artifacts", "run_id", cfg.RunID, "dir", runDir)
	return filepath.Clean(runDir), nil
}
