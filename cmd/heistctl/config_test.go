package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"heist/internal/config"
)

func TestOverrideFromFlagsOnlyAppliesSetFlags(t *testing.T) {
	cfg := config.Default()
	values := map[string]any{
		"store":     "sqlite",
		"episodes":  7,
		"seed":      int64(99),
		"alpha":     0.5,
		"trap-ttl":  4,
		"log-level": "debug",
	}
	set := map[string]bool{"episodes": true, "seed": true, "trap-ttl": true}

	if err := overrideFromFlags(&cfg, "train", set, values); err != nil {
		t.Fatalf("override: %v", err)
	}
	if cfg.Train.Episodes != 7 || cfg.Train.Seed != 99 {
		t.Fatalf("expected train episodes/seed override, got %+v", cfg.Train)
	}
	if cfg.Evaluate.Episodes != config.Default().Evaluate.Episodes {
		t.Fatalf("evaluate section should be untouched, got %+v", cfg.Evaluate)
	}
	if cfg.Env.TrapTTL != 4 {
		t.Fatalf("expected trap ttl 4, got %d", cfg.Env.TrapTTL)
	}
	if cfg.Storage.Kind != "memory" || cfg.Train.Alpha != config.Default().Train.Alpha || cfg.Log.Level != "info" {
		t.Fatalf("unset flags must not override: %+v", cfg)
	}
}

func TestOverrideFromFlagsRoutesSharedNamesBySection(t *testing.T) {
	cfg := config.Default()
	values := map[string]any{"episodes": 12, "max-steps": 30}
	set := map[string]bool{"episodes": true, "max-steps": true}

	if err := overrideFromFlags(&cfg, "evaluate", set, values); err != nil {
		t.Fatalf("override: %v", err)
	}
	if cfg.Evaluate.Episodes != 12 || cfg.Evaluate.MaxSteps != 30 {
		t.Fatalf("expected evaluate override, got %+v", cfg.Evaluate)
	}
	if cfg.Train.Episodes != config.Default().Train.Episodes {
		t.Fatalf("train section should be untouched, got %+v", cfg.Train)
	}

	if err := overrideFromFlags(&cfg, "", set, values); err == nil {
		t.Fatal("expected error for section-less episodes override")
	}
}

func TestOverrideFromFlagsRoutesRoleBySection(t *testing.T) {
	cfg := config.Default()
	values := map[string]any{"role": "thief"}
	set := map[string]bool{"role": true}

	if err := overrideFromFlags(&cfg, "evaluate", set, values); err != nil {
		t.Fatalf("override: %v", err)
	}
	if cfg.Evaluate.Role != "thief" || cfg.Train.Role != "both" {
		t.Fatalf("expected evaluate role only, got train=%q evaluate=%q", cfg.Train.Role, cfg.Evaluate.Role)
	}

	if err := overrideFromFlags(&cfg, "train", set, map[string]any{"role": "guard"}); err != nil {
		t.Fatalf("override: %v", err)
	}
	if cfg.Train.Role != "guard" || cfg.Evaluate.Role != "thief" {
		t.Fatalf("expected train role only, got train=%q evaluate=%q", cfg.Train.Role, cfg.Evaluate.Role)
	}
}

func TestOverrideFromFlagsRejectsUnknownFlag(t *testing.T) {
	cfg := config.Default()
	err := overrideFromFlags(&cfg, "train", map[string]bool{"bogus": true}, map[string]any{"bogus": 1})
	if err == nil {
		t.Fatal("expected unsupported flag error")
	}
}

func TestLoadConfigFileThenFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heist.yaml")
	data := []byte("train:\n  episodes: 50\n  role: guard\n  alpha: 0.3\n  gamma: 0.9\n  epsilon: 0.2\n  max_steps: 80\n  seed: 3\n  log_every: 10\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := loadConfig(path, "train", map[string]bool{"episodes": true}, map[string]any{"episodes": 5})
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Train.Episodes != 5 {
		t.Fatalf("flag should win over file, got episodes=%d", cfg.Train.Episodes)
	}
	if cfg.Train.Role != "guard" || cfg.Train.Alpha != 0.3 || cfg.Train.MaxSteps != 80 {
		t.Fatalf("expected file values, got %+v", cfg.Train)
	}
}

func TestLoadConfigValidatesOverrides(t *testing.T) {
	_, err := loadConfig("", "train", map[string]bool{"alpha": true}, map[string]any{"alpha": 1.5})
	if !errors.Is(err, config.ErrInvalidConfig) {
		t.Fatalf("expected invalid config error, got %v", err)
	}
}
