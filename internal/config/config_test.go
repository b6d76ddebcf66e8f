package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "heist.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Validate(Default()))
}

func TestLoadOverlaysFileOnDefaults(t *testing.T) {
	path := writeConfig(t, `
train:
  episodes: 500
  role: guard
  epsilon: 0
storage:
  kind: sqlite
  db_path: /tmp/h.db
log:
  format: json
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 500, cfg.Train.Episodes)
	assert.Equal(t, "guard", cfg.Train.Role)
	assert.Zero(t, cfg.Train.Epsilon, "explicit zero survives defaults")
	assert.Equal(t, 0.99, cfg.Train.Gamma)
	assert.Equal(t, "sqlite", cfg.Storage.Kind)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 20, cfg.Env.ExitInterval)
	assert.Equal(t, "both", cfg.Evaluate.Role, "blank role falls back to both")
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Train, cfg.Train)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	_, err := Load(writeConfig(t, "train:\n  episods: 5\n"))
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidateRejectsOutOfRange(t *testing.T) {
	cases := map[string]func(*Config){
		"zero episodes":   func(c *Config) { c.Train.Episodes = 0 },
		"alpha zero":      func(c *Config) { c.Train.Alpha = 0 },
		"gamma above one": func(c *Config) { c.Train.Gamma = 1.5 },
		"bad role":        func(c *Config) { c.Train.Role = "cop" },
		"bad eval role":   func(c *Config) { c.Evaluate.Role = "cop" },
		"bad store":       func(c *Config) { c.Storage.Kind = "postgres" },
		"bad level":       func(c *Config) { c.Log.Level = "loud" },
		"sqlite no path":  func(c *Config) { c.Storage.Kind = "sqlite"; c.Storage.DBPath = "" },
		"too many workers": func(c *Config) {
			c.Evaluate.Episodes = 2
			c.Evaluate.Workers = 4
		},
		"bad namespace": func(c *Config) { c.Metrics.Namespace = "heist-sim" },
		"zero trap ttl": func(c *Config) { c.Env.TrapTTL = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			assert.True(t, errors.Is(Validate(cfg), ErrInvalidConfig))
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	env := map[string]string{
		"HEIST_TRAIN_EPISODES":   "42",
		"HEIST_TRAIN_EPSILON":    "0.25",
		"HEIST_TRAIN_SEED":       "-3",
		"HEIST_STORAGE_KIND":     "sqlite",
		"HEIST_METRICS_ENABLED":  "false",
		"HEIST_LOG_LEVEL":        "debug",
		"HEIST_EVALUATE_WORKERS": "",
		"HEIST_EVALUATE_ROLE":    "thief",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	cfg := Default()
	require.NoError(t, applyEnvOverrides(&cfg, lookup))
	assert.Equal(t, 42, cfg.Train.Episodes)
	assert.Equal(t, 0.25, cfg.Train.Epsilon)
	assert.Equal(t, int64(-3), cfg.Train.Seed)
	assert.Equal(t, "sqlite", cfg.Storage.Kind)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 1, cfg.Evaluate.Workers)
	assert.Equal(t, "thief", cfg.Evaluate.Role)

	env["HEIST_TRAIN_MAX_STEPS"] = "lots"
	err := applyEnvOverrides(&cfg, lookup)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestLoadAppliesProcessEnv(t *testing.T) {
	t.Setenv("HEIST_TRAIN_EPISODES", "7")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Train.Episodes)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(LogConfig{Level: "warn", Format: "json"}, &buf)
	require.NoError(t, err)
	logger.Info("hidden")
	logger.Warn("shown", "episode", 3)
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"episode":3`)

	_, err = NewLogger(LogConfig{Level: "chatty"}, &buf)
	assert.Error(t, err)
	_, err = NewLogger(LogConfig{Format: "xml"}, &buf)
	assert.Error(t, err)
}
