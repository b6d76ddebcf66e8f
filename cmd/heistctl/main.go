package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"heist/internal/config"
	"heist/internal/platform"
	"heist/internal/stats"
	heistapi "heist/pkg/heist"
)

const exportsDir = "exports"

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "init":
		return runInit(ctx, args[1:])
	case "reset":
		return runReset(ctx, args[1:])
	case "train":
		return runTrain(ctx, args[1:])
	case "evaluate":
		return runEvaluate(ctx, args[1:])
	case "play":
		return runPlay(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "export":
		return runExport(ctx, args[1:])
	case "policy":
		return runPolicy(ctx, args[1:])
	case "table":
		return runTable(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

// session bundles what one command invocation needs after config loading.
type session struct {
	cfg     config.Config
	logger  *slog.Logger
	metrics *stats.Metrics
	client  *heistapi.Client
}

func openSession(fs *flag.FlagSet, common *commonFlags, section string, extra map[string]any) (*session, error) {
	setFlags := map[string]bool{}
	fs.Visit(func(f *flag.Flag) {
		setFlags[f.Name] = true
	})
	values := common.values()
	for k, v := range extra {
		values[k] = v
	}

	cfg, err := loadConfig(*common.configPath, section, setFlags, values)
	if err != nil {
		return nil, err
	}
	logger, err := config.NewLogger(cfg.Log, os.Stderr)
	if err != nil {
		return nil, err
	}
	var metrics *stats.Metrics
	if cfg.Metrics.Enabled || cfg.Metrics.Textfile != "" {
		metrics = stats.NewMetrics(cfg.Metrics.Namespace, nil)
	}

	client, err := heistapi.New(heistapi.Options{
		StoreKind:     cfg.Storage.Kind,
		DBPath:        cfg.Storage.DBPath,
		ModelsDir:     cfg.Storage.ModelsDir,
		BenchmarksDir: cfg.Storage.BenchmarksDir,
		ExportsDir:    exportsDir,
		Logger:        logger,
		Metrics:       metrics,
		Env: heistapi.EnvOptions{
			TrapTTL:       cfg.Env.TrapTTL,
			ExitInterval:  cfg.Env.ExitInterval,
			AlarmDuration: cfg.Env.AlarmDuration,
		},
	})
	if err != nil {
		return nil, err
	}
	return &session{cfg: cfg, logger: logger, metrics: metrics, client: client}, nil
}

func (s *session) close() error {
	var err error
	if s.cfg.Metrics.Textfile != "" && s.metrics != nil {
		err = s.metrics.WriteTextfile(s.cfg.Metrics.Textfile)
	}
	return errors.Join(err, s.client.Close())
}

func addEnvFlags(fs *flag.FlagSet) (trapTTL, exitInterval, alarmDuration *int) {
	d := config.Default().Env
	trapTTL = fs.Int("trap-ttl", d.TrapTTL, "steps a trap stays armed")
	exitInterval = fs.Int("exit-interval", d.ExitInterval, "steps between exit moves")
	alarmDuration = fs.Int("alarm-duration", d.AlarmDuration, "steps an alarm stays raised")
	return trapTTL, exitInterval, alarmDuration
}

func runInit(ctx context.Context, args []string) (err error) {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	common := addCommonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	s, err := openSession(fs, common, "", nil)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, s.close()) }()

	if err := s.client.Init(ctx); err != nil {
		return err
	}
	fmt.Printf("initialized store=%s\n", s.cfg.Storage.Kind)
	return nil
}

func runReset(ctx context.Context, args []string) (err error) {
	fs := flag.NewFlagSet("reset", flag.ContinueOnError)
	common := addCommonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	s, err := openSession(fs, common, "", nil)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, s.close()) }()

	if err := s.client.Reset(ctx); err != nil {
		return err
	}
	fmt.Printf("reset store=%s\n", s.cfg.Storage.Kind)
	return nil
}

func runTrain(ctx context.Context, args []string) (err error) {
	d := config.Default().Train
	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	common := addCommonFlags(fs)
	trapTTL, exitInterval, alarmDuration := addEnvFlags(fs)
	role := fs.String("role", d.Role, "role to train: thief|guard|both")
	episodes := fs.Int("episodes", d.Episodes, "training episodes")
	maxSteps := fs.Int("max-steps", d.MaxSteps, "step limit per episode")
	seed := fs.Int64("seed", d.Seed, "random seed")
	alpha := fs.Float64("alpha", d.Alpha, "learning rate")
	gamma := fs.Float64("gamma", d.Gamma, "discount factor")
	epsilon := fs.Float64("epsilon", d.Epsilon, "exploration rate")
	logEvery := fs.Int("log-every", d.LogEvery, "log progress every N episodes (0 disables)")
	resume := fs.Bool("resume", false, "continue from bundles in the models directory")
	if err := fs.Parse(args); err != nil {
		return err
	}

	s, err := openSession(fs, common, "train", map[string]any{
		"trap-ttl":       *trapTTL,
		"exit-interval":  *exitInterval,
		"alarm-duration": *alarmDuration,
		"role":           *role,
		"episodes":       *episodes,
		"max-steps":      *maxSteps,
		"seed":           *seed,
		"alpha":          *alpha,
		"gamma":          *gamma,
		"epsilon":        *epsilon,
		"log-every":      *logEvery,
	})
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, s.close()) }()

	t := s.cfg.Train
	summary, err := s.client.Train(ctx, heistapi.TrainRequest{
		Role:     t.Role,
		Episodes: t.Episodes,
		MaxSteps: t.MaxSteps,
		Seed:     t.Seed,
		Alpha:    t.Alpha,
		Gamma:    t.Gamma,
		Epsilon:  t.Epsilon,
		LogEvery: t.LogEvery,
		Resume:   *resume,
	})
	if err != nil {
		return err
	}

	fmt.Printf("run_id=%s role=%s episodes=%d thief_wins=%d guard_wins=%d draws=%d avg_steps=%.2f thief_states=%d guard_states=%d\n",
		summary.RunID,
		t.Role,
		summary.Summary.Episodes,
		summary.Summary.ThiefWins,
		summary.Summary.GuardWins,
		summary.Summary.Draws,
		summary.Summary.AvgSteps,
		summary.Summary.ThiefStates,
		summary.Summary.GuardStates,
	)
	if summary.ThiefBundle != "" {
		fmt.Printf("thief_bundle=%s\n", summary.ThiefBundle)
	}
	if summary.GuardBundle != "" {
		fmt.Printf("guard_bundle=%s\n", summary.GuardBundle)
	}
	fmt.Printf("artifacts=%s\n", summary.ArtifactsDir)
	return nil
}

func runEvaluate(ctx context.Context, args []string) (err error) {
	d := config.Default().Evaluate
	fs := flag.NewFlagSet("evaluate", flag.ContinueOnError)
	common := addCommonFlags(fs)
	trapTTL, exitInterval, alarmDuration := addEnvFlags(fs)
	role := fs.String("role", d.Role, "role to score: thief|guard|both (the other plays randomly)")
	episodes := fs.Int("episodes", d.Episodes, "evaluation episodes")
	maxSteps := fs.Int("max-steps", d.MaxSteps, "step limit per episode")
	workers := fs.Int("workers", d.Workers, "parallel evaluation workers")
	seed := fs.Int64("seed", d.Seed, "random seed")
	greedy := fs.Bool("greedy", d.Greedy, "disable exploration while evaluating")
	thiefAgent := fs.String("thief-agent", "", "stored thief agent id (default: models bundle)")
	guardAgent := fs.String("guard-agent", "", "stored guard agent id (default: models bundle)")
	render := fs.Bool("render", false, "print the board after every step (single worker only)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	s, err := openSession(fs, common, "evaluate", map[string]any{
		"trap-ttl":       *trapTTL,
		"exit-interval":  *exitInterval,
		"alarm-duration": *alarmDuration,
		"role":           *role,
		"episodes":       *episodes,
		"max-steps":      *maxSteps,
		"workers":        *workers,
		"seed":           *seed,
		"greedy":         *greedy,
	})
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, s.close()) }()

	e := s.cfg.Evaluate
	req := heistapi.EvaluateRequest{
		Role:         e.Role,
		Episodes:     e.Episodes,
		MaxSteps:     e.MaxSteps,
		Workers:      e.Workers,
		Seed:         e.Seed,
		Greedy:       e.Greedy,
		ThiefAgentID: *thiefAgent,
		GuardAgentID: *guardAgent,
	}
	if *render {
		req.Render = os.Stdout
	}
	summary, err := s.client.Evaluate(ctx, req)
	if err != nil {
		return err
	}

	r := summary.Summary
	fmt.Printf("run_id=%s role=%s episodes=%d thief_wins=%d guard_wins=%d draws=%d thief_win_rate=%.3f guard_win_rate=%.3f avg_steps=%.2f thief=%s guard=%s\n",
		summary.RunID,
		e.Role,
		r.Episodes,
		r.ThiefWins,
		r.GuardWins,
		r.Draws,
		r.ThiefWinRate,
		r.GuardWinRate,
		r.AvgSteps,
		summary.ThiefSource,
		summary.GuardSource,
	)
	fmt.Printf("artifacts=%s\n", summary.ArtifactsDir)
	return nil
}

func runPlay(ctx context.Context, args []string) (err error) {
	d := config.Default().Evaluate
	fs := flag.NewFlagSet("play", flag.ContinueOnError)
	common := addCommonFlags(fs)
	trapTTL, exitInterval, alarmDuration := addEnvFlags(fs)
	maxSteps := fs.Int("max-steps", d.MaxSteps, "step limit")
	seed := fs.Int64("seed", d.Seed, "random seed")
	greedy := fs.Bool("greedy", true, "disable exploration")
	thiefAgent := fs.String("thief-agent", "", "stored thief agent id (default: models bundle)")
	guardAgent := fs.String("guard-agent", "", "stored guard agent id (default: models bundle)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	s, err := openSession(fs, common, "evaluate", map[string]any{
		"trap-ttl":       *trapTTL,
		"exit-interval":  *exitInterval,
		"alarm-duration": *alarmDuration,
		"max-steps":      *maxSteps,
		"seed":           *seed,
	})
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, s.close()) }()

	_, err = s.client.Play(ctx, heistapi.PlayRequest{
		Seed:         s.cfg.Evaluate.Seed,
		MaxSteps:     s.cfg.Evaluate.MaxSteps,
		Greedy:       *greedy,
		ThiefAgentID: *thiefAgent,
		GuardAgentID: *guardAgent,
		Out:          os.Stdout,
	})
	return err
}

func runRuns(ctx context.Context, args []string) (err error) {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	common := addCommonFlags(fs)
	limit := fs.Int("limit", 20, "max runs to list")
	phase := fs.String("phase", "", "only list runs of this phase: train|evaluate")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}
	switch *phase {
	case "", platform.PhaseTrain, platform.PhaseEvaluate:
	default:
		return fmt.Errorf("unknown phase: %s", *phase)
	}

	s, err := openSession(fs, common, "", nil)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, s.close()) }()

	items, err := s.client.Runs(ctx, heistapi.RunsRequest{Limit: *limit, Phase: *phase})
	if err != nil {
		return err
	}
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(items)
	}
	if len(items) == 0 {
		fmt.Println("no runs found")
		return nil
	}
	for _, item := range items {
		fmt.Printf("run_id=%s created_at=%s phase=%s role=%s seed=%d episodes=%d thief_wins=%d guard_wins=%d draws=%d avg_steps=%.2f\n",
			item.RunID,
			item.CreatedAtUTC,
			item.Phase,
			item.Role,
			item.Seed,
			item.Episodes,
			item.ThiefWins,
			item.GuardWins,
			item.Draws,
			item.AvgSteps,
		)
	}
	return nil
}

func runExport(ctx context.Context, args []string) (err error) {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	common := addCommonFlags(fs)
	runID := fs.String("run-id", "", "run id to export")
	latest := fs.Bool("latest", false, "export the most recent run")
	outDir := fs.String("out", exportsDir, "output directory")
	if err := fs.Parse(args); err != nil {
		return err
	}

	s, err := openSession(fs, common, "", nil)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, s.close()) }()

	summary, err := s.client.Export(ctx, heistapi.ExportRequest{RunID: *runID, Latest: *latest, OutDir: *outDir})
	if err != nil {
		return err
	}
	fmt.Printf("exported run_id=%s dir=%s\n", summary.RunID, summary.Directory)
	return nil
}

func runPolicy(ctx context.Context, args []string) (err error) {
	fs := flag.NewFlagSet("policy", flag.ContinueOnError)
	common := addCommonFlags(fs)
	role := fs.String("role", "guard", "role whose policy to list: thief|guard")
	path := fs.String("path", "", "bundle or table file (default: models bundle)")
	out := fs.String("out", "", "write CSV to this file instead of stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	s, err := openSession(fs, common, "", nil)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, s.close()) }()

	rows, err := s.client.PolicyRows(ctx, heistapi.PolicyRequest{Role: *role, Path: *path})
	if err != nil {
		return err
	}

	var w io.Writer = os.Stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	if err := platform.WritePolicyCSV(w, rows); err != nil {
		return err
	}
	if *out != "" {
		fmt.Printf("policy role=%s states=%d out=%s\n", *role, len(rows), *out)
	}
	return nil
}

func runTable(ctx context.Context, args []string) (err error) {
	fs := flag.NewFlagSet("table", flag.ContinueOnError)
	common := addCommonFlags(fs)
	role := fs.String("role", "guard", "role whose table to export: thief|guard")
	out := fs.String("out", "", "table file to write")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *out == "" {
		return errors.New("table requires --out")
	}

	s, err := openSession(fs, common, "", nil)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, s.close()) }()

	path, err := s.client.ExportTable(ctx, heistapi.TableRequest{Role: *role, Path: *out})
	if err != nil {
		return err
	}
	fmt.Printf("table role=%s path=%s\n", *role, path)
	return nil
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: heistctl <init|reset|train|evaluate|play|runs|export|policy|table> [flags]", msg)
}
