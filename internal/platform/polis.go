package platform

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"

	"heist/internal/grid"
	"heist/internal/scape"
	"heist/internal/stats"
	"heist/internal/storage"
)

type Config struct {
	Store   storage.Store
	Logger  *slog.Logger
	Metrics *stats.Metrics
	Grid    *grid.Grid
	Env     EnvConfig
}

// EnvConfig carries environment timer overrides. Zero fields keep the
// environment defaults.
type EnvConfig struct {
	TrapTTL       int
	ExitInterval  int
	AlarmDuration int
}

// Polis owns the shared services (store, logging, metrics and board) that
// training, evaluation and replay run against.
type Polis struct {
	store   storage.Store
	logger  *slog.Logger
	metrics *stats.Metrics
	grid    *grid.Grid
	env     EnvConfig

	mu      sync.RWMutex
	started bool
}

func NewPolis(cfg Config) *Polis {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	g := cfg.Grid
	if g == nil {
		g = grid.Default()
	}
	return &Polis{
		store:   cfg.Store,
		logger:  logger,
		metrics: cfg.Metrics,
		grid:    g,
		env:     cfg.Env,
	}
}

func (p *Polis) Init(ctx context.Context) error {
	if p.store == nil {
		return fmt.Errorf("store is required")
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return nil
	}
	if err := p.store.Init(ctx); err != nil {
		return err
	}
	p.started = true
	return nil
}

// Reset wipes every stored agent, run and episode history.
func (p *Polis) Reset(ctx context.Context) error {
	if err := p.ensureStarted(); err != nil {
		return err
	}
	return p.store.Reset(ctx)
}

func (p *Polis) Started() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.started
}

func (p *Polis) Store() storage.Store {
	return p.store
}

func (p *Polis) Grid() *grid.Grid {
	return p.grid
}

// NewEnv builds an independent environment seeded with seed.
func (p *Polis) NewEnv(seed int64) (*scape.Heist, error) {
	opts := make([]scape.Option, 0, 3)
	if p.env.TrapTTL > 0 {
		opts = append(opts, scape.WithTrapTTL(p.env.TrapTTL))
	}
	if p.env.ExitInterval > 0 {
		opts = append(opts, scape.WithExitInterval(p.env.ExitInterval))
	}
	if p.env.AlarmDuration > 0 {
		opts = append(opts, scape.WithAlarmDuration(p.env.AlarmDuration))
	}
	return scape.NewHeist(p.grid, rand.New(rand.NewSource(seed)), opts...)
}

func (p *Polis) ensureStarted() error {
	if !p.Started() {
		return fmt.Errorf("polis is not initialized")
	}
	return nil
}
