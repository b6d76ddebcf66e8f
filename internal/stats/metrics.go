package stats

import (
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
)

const DefaultNamespace = "heist"

// Metrics holds the simulator's Prometheus collectors on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry     *prometheus.Registry
	episodes     *prometheus.CounterVec
	episodeSteps *prometheus.HistogramVec
	tableStates  *prometheus.GaugeVec
	trapsPlaced  prometheus.Counter
}

func NewMetrics(namespace string, registry *prometheus.Registry) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	m := &Metrics{
		registry: registry,
		episodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "episodes_total",
			Help:      "Completed episodes by phase and result.",
		}, []string{"phase", "result"}),
		episodeSteps: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "episode_steps",
			Help:      "Steps taken per episode.",
			Buckets:   []float64{5, 10, 20, 50, 100, 200, 500},
		}, []string{"phase"}),
		tableStates: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "q_table_states",
			Help:      "Distinct states held in each role's value table.",
		}, []string{"role"}),
		trapsPlaced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "traps_placed_total",
			Help:      "Traps laid by the guard.",
		}),
	}
	registry.MustRegister(m.episodes, m.episodeSteps, m.tableStates, m.trapsPlaced)
	return m
}

// ResultLabel maps an empty result to "draw".
func ResultLabel(result string) string {
	if result == "" {
		return "draw"
	}
	return result
}

func (m *Metrics) RecordEpisode(phase, result string, steps, traps int) {
	if m == nil {
		return
	}
	m.episodes.WithLabelValues(phase, ResultLabel(result)).Inc()
	m.episodeSteps.WithLabelValues(phase).Observe(float64(steps))
	if traps > 0 {
		m.trapsPlaced.Add(float64(traps))
	}
}

func (m *Metrics) SetTableStates(role string, states int) {
	if m == nil {
		return
	}
	m.tableStates.WithLabelValues(role).Set(float64(states))
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// WriteTextfile writes every gathered family in the text exposition format,
// for node_exporter's textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
