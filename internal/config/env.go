package config

import (
	"fmt"
	"strconv"
)

type lookupFunc func(string) (string, bool)

// applyEnvOverrides applies HEIST_SECTION_FIELD variables over cfg.
func applyEnvOverrides(cfg *Config, lookup lookupFunc) error {
	strs := map[string]*string{
		"HEIST_TRAIN_ROLE":             &cfg.Train.Role,
		"HEIST_EVALUATE_ROLE":          &cfg.Evaluate.Role,
		"HEIST_STORAGE_KIND":           &cfg.Storage.Kind,
		"HEIST_STORAGE_DB_PATH":        &cfg.Storage.DBPath,
		"HEIST_STORAGE_MODELS_DIR":     &cfg.Storage.ModelsDir,
		"HEIST_STORAGE_BENCHMARKS_DIR": &cfg.Storage.BenchmarksDir,
		"HEIST_LOG_LEVEL":              &cfg.Log.Level,
		"HEIST_LOG_FORMAT":             &cfg.Log.Format,
		"HEIST_METRICS_TEXTFILE":       &cfg.Metrics.Textfile,
	}
	for name, dst := range strs {
		if val, ok := lookup(name); ok && val != "" {
			*dst = val
		}
	}

	ints := map[string]*int{
		"HEIST_TRAIN_EPISODES":    &cfg.Train.Episodes,
		"HEIST_TRAIN_MAX_STEPS":   &cfg.Train.MaxSteps,
		"HEIST_TRAIN_LOG_EVERY":   &cfg.Train.LogEvery,
		"HEIST_EVALUATE_EPISODES": &cfg.Evaluate.Episodes,
		"HEIST_EVALUATE_WORKERS":  &cfg.Evaluate.Workers,
	}
	for name, dst := range ints {
		if val, ok := lookup(name); ok && val != "" {
			n, err := strconv.Atoi(val)
			if err != nil {
				return fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidConfig, name, val)
			}
			*dst = n
		}
	}

	seeds := map[string]*int64{
		"HEIST_TRAIN_SEED":    &cfg.Train.Seed,
		"HEIST_EVALUATE_SEED": &cfg.Evaluate.Seed,
	}
	for name, dst := range seeds {
		if val, ok := lookup(name); ok && val != "" {
			n, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				return fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidConfig, name, val)
			}
			*dst = n
		}
	}

	floats := map[string]*float64{
		"HEIST_TRAIN_ALPHA":   &cfg.Train.Alpha,
		"HEIST_TRAIN_GAMMA":   &cfg.Train.Gamma,
		"HEIST_TRAIN_EPSILON": &cfg.Train.Epsilon,
	}
	for name, dst := range floats {
		if val, ok := lookup(name); ok && val != "" {
			f, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return fmt.Errorf("%w: %s=%q is not a number", ErrInvalidConfig, name, val)
			}
			*dst = f
		}
	}

	if val, ok := lookup("HEIST_METRICS_ENABLED"); ok && val != "" {
		b, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("%w: HEIST_METRICS_ENABLED=%q is not a boolean", ErrInvalidConfig, val)
		}
		cfg.Metrics.Enabled = b
	}
	return nil
}
