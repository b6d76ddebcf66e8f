package main

import (
	"flag"
	"fmt"
	"strings"

	"heist/internal/config"
)

type commonFlags struct {
	configPath    *string
	storeKind     *string
	dbPath        *string
	modelsDir     *string
	benchmarksDir *string
	logLevel      *string
	logFormat     *string
	metricsFile   *string
}

func addCommonFlags(fs *flag.FlagSet) *commonFlags {
	d := config.Default()
	return &commonFlags{
		configPath:    fs.String("config", "", "YAML config file"),
		storeKind:     fs.String("store", d.Storage.Kind, "store backend: memory|sqlite"),
		dbPath:        fs.String("db-path", d.Storage.DBPath, "sqlite database path"),
		modelsDir:     fs.String("models-dir", d.Storage.ModelsDir, "directory for agent bundles"),
		benchmarksDir: fs.String("benchmarks-dir", d.Storage.BenchmarksDir, "directory for run artifacts"),
		logLevel:      fs.String("log-level", d.Log.Level, "log level: debug|info|warn|error"),
		logFormat:     fs.String("log-format", d.Log.Format, "log format: text|json"),
		metricsFile:   fs.String("metrics-textfile", "", "write Prometheus metrics to this file on exit"),
	}
}

func (c *commonFlags) values() map[string]any {
	return map[string]any{
		"store":            *c.storeKind,
		"db-path":          *c.dbPath,
		"models-dir":       *c.modelsDir,
		"benchmarks-dir":   *c.benchmarksDir,
		"log-level":        *c.logLevel,
		"log-format":       *c.logFormat,
		"metrics-textfile": *c.metricsFile,
	}
}

// loadConfig reads the config file (or defaults) and lays explicitly set
// flags over it. section picks where shared names like "episodes" land.
func loadConfig(path, section string, set map[string]bool, flagValue map[string]any) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	if err := overrideFromFlags(&cfg, section, set, flagValue); err != nil {
		return config.Config{}, err
	}
	if err := config.Validate(cfg); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func overrideFromFlags(cfg *config.Config, section string, set map[string]bool, flagValue map[string]any) error {
	for name := range set {
		v, ok := flagValue[name]
		if !ok {
			continue
		}
		switch name {
		case "store":
			cfg.Storage.Kind = v.(string)
		case "db-path":
			cfg.Storage.DBPath = v.(string)
		case "models-dir":
			cfg.Storage.ModelsDir = v.(string)
		case "benchmarks-dir":
			cfg.Storage.BenchmarksDir = v.(string)
		case "log-level":
			cfg.Log.Level = v.(string)
		case "log-format":
			cfg.Log.Format = v.(string)
		case "metrics-textfile":
			cfg.Metrics.Textfile = v.(string)
		case "trap-ttl":
			cfg.Env.TrapTTL = v.(int)
		case "exit-interval":
			cfg.Env.ExitInterval = v.(int)
		case "alarm-duration":
			cfg.Env.AlarmDuration = v.(int)
		case "alpha":
			cfg.Train.Alpha = v.(float64)
		case "gamma":
			cfg.Train.Gamma = v.(float64)
		case "epsilon":
			cfg.Train.Epsilon = v.(float64)
		case "log-every":
			cfg.Train.LogEvery = v.(int)
		case "workers":
			cfg.Evaluate.Workers = v.(int)
		case "greedy":
			cfg.Evaluate.Greedy = v.(bool)
		case "episodes", "max-steps", "seed", "role":
			if err := overrideSection(cfg, section, name, v); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unsupported flag override: %s", name)
		}
	}
	return nil
}

func overrideSection(cfg *config.Config, section, name string, v any) error {
	switch strings.ToLower(section) {
	case "train":
		switch name {
		case "episodes":
			cfg.Train.Episodes = v.(int)
		case "max-steps":
			cfg.Train.MaxSteps = v.(int)
		case "seed":
			cfg.Train.Seed = v.(int64)
		case "role":
			cfg.Train.Role = v.(string)
		}
	case "evaluate":
		switch name {
		case "episodes":
			cfg.Evaluate.Episodes = v.(int)
		case "max-steps":
			cfg.Evaluate.MaxSteps = v.(int)
		case "seed":
			cfg.Evaluate.Seed = v.(int64)
		case "role":
			cfg.Evaluate.Role = v.(string)
		}
	default:
		return fmt.Errorf("flag %s has no config section %q", name, section)
	}
	return nil
}
