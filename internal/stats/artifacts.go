package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"heist/internal/model"
)

const (
	runIndexFile   = "run_index.json"
	configFile     = "config.json"
	episodeFile    = "episode_history.csv"
	summaryFile    = "summary.json"
	MetricsFile    = "metrics.prom"
	episodeColumns = 6
	episodeHeader  = "episode,result,steps,thief_reward,guard_reward,traps_placed"
)

type RunConfig struct {
	RunID        string  `json:"run_id"`
	Phase        string  `json:"phase"`
	Role         string  `json:"role,omitempty"`
	Episodes     int     `json:"episodes"`
	MaxSteps     int     `json:"max_steps"`
	Seed         int64   `json:"seed"`
	Alpha        float64 `json:"alpha,omitempty"`
	Gamma        float64 `json:"gamma,omitempty"`
	Epsilon      float64 `json:"epsilon,omitempty"`
	Workers      int     `json:"workers,omitempty"`
	Store        string  `json:"store"`
	ThiefAgentID string  `json:"thief_agent_id,omitempty"`
	GuardAgentID string  `json:"guard_agent_id,omitempty"`
}

type Summary struct {
	RunID          string  `json:"run_id"`
	Phase          string  `json:"phase"`
	Episodes       int     `json:"episodes"`
	ThiefWins      int     `json:"thief_wins"`
	GuardWins      int     `json:"guard_wins"`
	Draws          int     `json:"draws"`
	ThiefWinRate   float64 `json:"thief_win_rate"`
	GuardWinRate   float64 `json:"guard_win_rate"`
	AvgSteps       float64 `json:"avg_steps"`
	AvgThiefReward float64 `json:"avg_thief_reward"`
	AvgGuardReward float64 `json:"avg_guard_reward"`
	TrapsPlaced    int     `json:"traps_placed"`
	ThiefStates    int     `json:"thief_states,omitempty"`
	GuardStates    int     `json:"guard_states,omitempty"`
}

type RunArtifacts struct {
	Config   RunConfig             `json:"config"`
	Episodes []model.EpisodeRecord `json:"episodes"`
	Summary  Summary               `json:"summary"`
}

type RunIndexEntry struct {
	RunID        string  `json:"run_id"`
	Phase        string  `json:"phase"`
	Role         string  `json:"role,omitempty"`
	Episodes     int     `json:"episodes"`
	Seed         int64   `json:"seed"`
	ThiefWins    int     `json:"thief_wins"`
	GuardWins    int     `json:"guard_wins"`
	Draws        int     `json:"draws"`
	AvgSteps     float64 `json:"avg_steps"`
	CreatedAtUTC string  `json:"created_at_utc"`
}

// Summarize tallies outcomes over a slice of episodes. Results other than
// "thief" and "guard" count as draws.
func Summarize(runID, phase string, episodes []model.EpisodeRecord) Summary {
	s := Summary{RunID: runID, Phase: phase, Episodes: len(episodes)}
	if len(episodes) == 0 {
		return s
	}
	var steps, thief, guard float64
	for _, ep := range episodes {
		switch ep.Result {
		case "thief":
			s.ThiefWins++
		case "guard":
			s.GuardWins++
		default:
			s.Draws++
		}
		steps += float64(ep.Steps)
		thief += ep.ThiefReward
		guard += ep.GuardReward
		s.TrapsPlaced += ep.TrapsPlaced
	}
	n := float64(len(episodes))
	s.ThiefWinRate = float64(s.ThiefWins) / n
	s.GuardWinRate = float64(s.GuardWins) / n
	s.AvgSteps = steps / n
	s.AvgThiefReward = thief / n
	s.AvgGuardReward = guard / n
	return s
}

func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.Config.RunID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, artifacts.Config.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, configFile), artifacts.Config); err != nil {
		return "", err
	}
	if err := WriteEpisodeHistory(runDir, artifacts.Episodes); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, summaryFile), artifacts.Summary); err != nil {
		return "", err
	}
	return runDir, nil
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ListRunIndex returns indexed runs newest first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	path := filepath.Join(baseDir, runIndexFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			// Prefer later appended entries for equal timestamps.
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

// ExportRunArtifacts copies a run directory's files into outDir/<runID>.
// The metrics textfile is copied only when present.
func ExportRunArtifacts(baseDir, runID, outDir string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}

	src := filepath.Join(baseDir, runID)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}

	dst := filepath.Join(outDir, runID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}

	for _, file := range []string{configFile, episodeFile, summaryFile} {
		if err := copyFile(filepath.Join(src, file), filepath.Join(dst, file)); err != nil {
			return "", err
		}
	}
	metricsPath := filepath.Join(src, MetricsFile)
	if _, err := os.Stat(metricsPath); err == nil {
		if err := copyFile(metricsPath, filepath.Join(dst, MetricsFile)); err != nil {
			return "", err
		}
	} else if !os.IsNotExist(err) {
		return "", err
	}

	return dst, nil
}

func ReadRunConfig(baseDir, runID string) (RunConfig, bool, error) {
	var cfg RunConfig
	ok, err := readJSON(filepath.Join(baseDir, runID, configFile), &cfg)
	return cfg, ok, err
}

func ReadSummary(baseDir, runID string) (Summary, bool, error) {
	var summary Summary
	ok, err := readJSON(filepath.Join(baseDir, runID, summaryFile), &summary)
	return summary, ok, err
}

func WriteEpisodeHistory(runDir string, episodes []model.EpisodeRecord) error {
	file, err := os.Create(filepath.Join(runDir, episodeFile))
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(strings.Split(episodeHeader, ",")); err != nil {
		return err
	}
	for _, ep := range episodes {
		if err := writer.Write([]string{
			strconv.Itoa(ep.Episode),
			ep.Result,
			strconv.Itoa(ep.Steps),
			strconv.FormatFloat(ep.ThiefReward, 'f', -1, 64),
			strconv.FormatFloat(ep.GuardReward, 'f', -1, 64),
			strconv.Itoa(ep.TrapsPlaced),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func ReadEpisodeHistory(baseDir, runID string) ([]model.EpisodeRecord, bool, error) {
	file, err := os.Open(filepath.Join(baseDir, runID, episodeFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return []model.EpisodeRecord{}, true, nil
		}
		return nil, false, err
	}
	if len(header) != episodeColumns {
		return nil, false, fmt.Errorf("episode history header must have %d columns", episodeColumns)
	}

	var out []model.EpisodeRecord
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, err
		}
		ep, err := parseEpisodeRow(record)
		if err != nil {
			return nil, false, err
		}
		out = append(out, ep)
	}
	return out, true, nil
}

func parseEpisodeRow(record []string) (model.EpisodeRecord, error) {
	var (
		ep  model.EpisodeRecord
		err error
	)
	ep.Result = record[1]
	if ep.Episode, err = strconv.Atoi(record[0]); err != nil {
		return ep, fmt.Errorf("episode column: %w", err)
	}
	if ep.Steps, err = strconv.Atoi(record[2]); err != nil {
		return ep, fmt.Errorf("steps column: %w", err)
	}
	if ep.ThiefReward, err = strconv.ParseFloat(record[3], 64); err != nil {
		return ep, fmt.Errorf("thief_reward column: %w", err)
	}
	if ep.GuardReward, err = strconv.ParseFloat(record[4], 64); err != nil {
		return ep, fmt.Errorf("guard_reward column: %w", err)
	}
	if ep.TrapsPlaced, err = strconv.Atoi(record[5]); err != nil {
		return ep, fmt.Errorf("traps_placed column: %w", err)
	}
	return ep, nil
}

func readJSON(path string, out any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, err
	}
	return true, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
