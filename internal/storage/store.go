package storage

import (
	"context"

	"heist/internal/model"
)

// Store defines persistence for trained agents, run summaries and per-episode
// history.
type Store interface {
	Init(ctx context.Context) error
	SaveAgent(ctx context.Context, agent model.AgentRecord) error
	GetAgent(ctx context.Context, id string) (model.AgentRecord, bool, error)
	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, id string) (model.RunRecord, bool, error)
	ListRuns(ctx context.Context) ([]model.RunRecord, error)
	SaveEpisodes(ctx context.Context, runID string, episodes []model.EpisodeRecord) error
	GetEpisodes(ctx context.Context, runID string) ([]model.EpisodeRecord, bool, error)
	Reset(ctx context.Context) error
}
