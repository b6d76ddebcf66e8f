package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Env      EnvConfig      `yaml:"env" json:"env"`
	Train    TrainConfig    `yaml:"train" json:"train"`
	Evaluate EvaluateConfig `yaml:"evaluate" json:"evaluate"`
	Storage  StorageConfig  `yaml:"storage" json:"storage"`
	Log      LogConfig      `yaml:"log" json:"log"`
	Metrics  MetricsConfig  `yaml:"metrics" json:"metrics"`
}

// EnvConfig tunes the heist environment's timers.
type EnvConfig struct {
	TrapTTL       int `yaml:"trap_ttl" json:"trap_ttl"`
	ExitInterval  int `yaml:"exit_interval" json:"exit_interval"`
	AlarmDuration int `yaml:"alarm_duration" json:"alarm_duration"`
}

type TrainConfig struct {
	Episodes int     `yaml:"episodes" json:"episodes"`
	MaxSteps int     `yaml:"max_steps" json:"max_steps"`
	Role     string  `yaml:"role" json:"role"`
	Alpha    float64 `yaml:"alpha" json:"alpha"`
	Gamma    float64 `yaml:"gamma" json:"gamma"`
	Epsilon  float64 `yaml:"epsilon" json:"epsilon"`
	Seed     int64   `yaml:"seed" json:"seed"`
	LogEvery int     `yaml:"log_every" json:"log_every"`
}

type EvaluateConfig struct {
	Episodes int    `yaml:"episodes" json:"episodes"`
	MaxSteps int    `yaml:"max_steps" json:"max_steps"`
	Role     string `yaml:"role" json:"role"`
	Workers  int    `yaml:"workers" json:"workers"`
	Seed     int64  `yaml:"seed" json:"seed"`
	Greedy   bool   `yaml:"greedy" json:"greedy"`
}

type StorageConfig struct {
	Kind          string `yaml:"kind" json:"kind"`
	DBPath        string `yaml:"db_path" json:"db_path"`
	ModelsDir     string `yaml:"models_dir" json:"models_dir"`
	BenchmarksDir string `yaml:"benchmarks_dir" json:"benchmarks_dir"`
}

type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	Namespace string `yaml:"namespace" json:"namespace"`
	Textfile  string `yaml:"textfile" json:"textfile"`
}

// Load reads the YAML file at path over the defaults, applies HEIST_*
// environment overrides and validates the result. An empty path yields the
// defaults with overrides applied.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %q: %w", path, err)
		}
		if err := Decode(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %q: %w", path, err)
		}
	}
	ApplyDefaults(&cfg)
	if err := applyEnvOverrides(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Decode unmarshals YAML onto cfg, rejecting unknown keys.
func Decode(data []byte, cfg *Config) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(cfg)
}

// Validate checks cfg against the embedded JSON schema and then the rules a
// schema cannot express.
func Validate(cfg Config) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	var doc any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return err
	}
	schema, err := compiledSchema()
	if err != nil {
		return err
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if cfg.Storage.Kind == "sqlite" && strings.TrimSpace(cfg.Storage.DBPath) == "" {
		return fmt.Errorf("%w: storage.db_path is required for sqlite", ErrInvalidConfig)
	}
	if cfg.Evaluate.Workers > cfg.Evaluate.Episodes {
		return fmt.Errorf("%w: evaluate.workers %d exceeds evaluate.episodes %d", ErrInvalidConfig, cfg.Evaluate.Workers, cfg.Evaluate.Episodes)
	}
	return nil
}
