package config

const (
	DefaultModelsDir     = "models"
	DefaultBenchmarksDir = "benchmarks"
	DefaultDBPath        = "heist.db"
)

func Default() Config {
	return Config{
		Env: EnvConfig{
			TrapTTL:       10,
			ExitInterval:  20,
			AlarmDuration: 3,
		},
		Train: TrainConfig{
			Episodes: 10000,
			MaxSteps: 200,
			Role:     "both",
			Alpha:    0.1,
			Gamma:    0.99,
			Epsilon:  0.1,
			Seed:     1,
			LogEvery: 1000,
		},
		Evaluate: EvaluateConfig{
			Episodes: 100,
			MaxSteps: 200,
			Role:     "both",
			Workers:  1,
			Seed:     2,
		},
		Storage: StorageConfig{
			Kind:          "memory",
			DBPath:        DefaultDBPath,
			ModelsDir:     DefaultModelsDir,
			BenchmarksDir: DefaultBenchmarksDir,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "heist",
		},
	}
}

// ApplyDefaults fills string settings a file left blank. Numeric settings
// keep whatever the file said so that explicit zeros reach validation.
func ApplyDefaults(cfg *Config) {
	d := Default()
	if cfg.Train.Role == "" {
		cfg.Train.Role = d.Train.Role
	}
	if cfg.Evaluate.Role == "" {
		cfg.Evaluate.Role = d.Evaluate.Role
	}
	if cfg.Storage.Kind == "" {
		cfg.Storage.Kind = d.Storage.Kind
	}
	if cfg.Storage.ModelsDir == "" {
		cfg.Storage.ModelsDir = d.Storage.ModelsDir
	}
	if cfg.Storage.BenchmarksDir == "" {
		cfg.Storage.BenchmarksDir = d.Storage.BenchmarksDir
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = d.Log.Level
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = d.Log.Format
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = d.Metrics.Namespace
	}
}
