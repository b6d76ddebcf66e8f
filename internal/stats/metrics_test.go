package stats

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRecordEpisode(t *testing.T) {
	m := NewMetrics("test", prometheus.NewRegistry())
	m.RecordEpisode("train", "guard", 12, 1)
	m.RecordEpisode("train", "", 200, 0)
	m.RecordEpisode("evaluate", "thief", 30, 2)

	if got := testutil.ToFloat64(m.episodes.WithLabelValues("train", "guard")); got != 1 {
		t.Fatalf("unexpected guard wins: %v", got)
	}
	if got := testutil.ToFloat64(m.episodes.WithLabelValues("train", "draw")); got != 1 {
		t.Fatalf("unexpected draws: %v", got)
	}
	if got := testutil.ToFloat64(m.trapsPlaced); got != 3 {
		t.Fatalf("unexpected traps placed: %v", got)
	}
	if got := testutil.CollectAndCount(m.episodeSteps); got != 2 {
		t.Fatalf("expected 2 step histograms, got %d", got)
	}

	m.SetTableStates("guard", 42)
	if got := testutil.ToFloat64(m.tableStates.WithLabelValues("guard")); got != 42 {
		t.Fatalf("unexpected table states: %v", got)
	}
}

func TestMetricsWriteTextfile(t *testing.T) {
	m := NewMetrics("", nil)
	m.RecordEpisode("train", "thief", 8, 0)

	path := filepath.Join(t.TempDir(), "run", MetricsFile)
	if err := m.WriteTextfile(path); err != nil {
		t.Fatalf("write textfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	text := string(data)
	if !strings.Contains(text, `heist_episodes_total{phase="train",result="thief"} 1`) {
		t.Fatalf("missing episode counter in:\n%s", text)
	}
	if !strings.Contains(text, "heist_episode_steps_bucket") {
		t.Fatalf("missing step histogram in:\n%s", text)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordEpisode("train", "guard", 1, 1)
	m.SetTableStates("thief", 1)
	if err := m.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")); err != nil {
		t.Fatalf("nil metrics write: %v", err)
	}
	if m.Registry() != nil {
		t.Fatal("expected nil registry")
	}
}
