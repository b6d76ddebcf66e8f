package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"heist/internal/model"
)

var errNotInitialized = errors.New("store is not initialized")

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	agents      map[string]model.AgentRecord
	runs        map[string]model.RunRecord
	episodes    map[string][]model.EpisodeRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reset()
	s.initialized = true
	return nil
}

func (s *MemoryStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	s.reset()
	return nil
}

func (s *MemoryStore) SaveAgent(_ context.Context, agent model.AgentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	s.agents[agent.ID] = cloneAgent(agent)
	return nil
}

func (s *MemoryStore) GetAgent(_ context.Context, id string) (model.AgentRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agent, ok := s.agents[id]
	if !ok {
		return model.AgentRecord{}, false, nil
	}
	return cloneAgent(agent), true, nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run model.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	s.runs[run.ID] = run
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (model.RunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	return run, ok, nil
}

// ListRuns returns all runs oldest first; ties are ordered by id.
func (s *MemoryStore) ListRuns(_ context.Context) ([]model.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.RunRecord, 0, len(s.runs))
	for _, run := range s.runs {
		out = append(out, run)
	}
	sortRuns(out)
	return out, nil
}

func (s *MemoryStore) SaveEpisodes(_ context.Context, runID string, episodes []model.EpisodeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	s.episodes[runID] = append([]model.EpisodeRecord(nil), episodes...)
	return nil
}

func (s *MemoryStore) GetEpisodes(_ context.Context, runID string) ([]model.EpisodeRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	episodes, ok := s.episodes[runID]
	if !ok {
		return nil, false, nil
	}
	return append([]model.EpisodeRecord(nil), episodes...), true, nil
}

func (s *MemoryStore) reset() {
	s.agents = make(map[string]model.AgentRecord)
	s.runs = make(map[string]model.RunRecord)
	s.episodes = make(map[string][]model.EpisodeRecord)
}

func cloneAgent(agent model.AgentRecord) model.AgentRecord {
	table := make(map[string][]float64, len(agent.Table))
	for k, row := range agent.Table {
		table[k] = append([]float64(nil), row...)
	}
	agent.Table = table
	if agent.Metadata != nil {
		meta := make(map[string]string, len(agent.Metadata))
		for k, v := range agent.Metadata {
			meta[k] = v
		}
		agent.Metadata = meta
	}
	return agent
}

func sortRuns(runs []model.RunRecord) {
	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].CreatedAt.Before(runs[j].CreatedAt)
		}
		return runs[i].ID < runs[j].ID
	})
}
