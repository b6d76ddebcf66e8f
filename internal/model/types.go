package model

import "time"

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// AgentRecord is the persisted form of a tabular learner: its role,
// hyperparameters and the full value table keyed by observation key.
type AgentRecord struct {
	VersionedRecord
	ID       string               `json:"id"`
	Role     string               `json:"role"`
	Alpha    float64              `json:"alpha"`
	Gamma    float64              `json:"gamma"`
	Epsilon  float64              `json:"epsilon"`
	Actions  int                  `json:"actions"`
	Table    map[string][]float64 `json:"table"`
	Metadata map[string]string    `json:"metadata,omitempty"`
}

type RunRecord struct {
	VersionedRecord
	ID           string    `json:"id"`
	Phase        string    `json:"phase"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	Seed         int64     `json:"seed"`
	Episodes     int       `json:"episodes"`
	MaxSteps     int       `json:"max_steps"`
	Alpha        float64   `json:"alpha"`
	Gamma        float64   `json:"gamma"`
	Epsilon      float64   `json:"epsilon"`
	ThiefAgentID string    `json:"thief_agent_id,omitempty"`
	GuardAgentID string    `json:"guard_agent_id,omitempty"`
	ThiefWins    int       `json:"thief_wins"`
	GuardWins    int       `json:"guard_wins"`
	Draws        int       `json:"draws"`
	AvgSteps     float64   `json:"avg_steps"`
}

type EpisodeRecord struct {
	VersionedRecord
	Episode     int     `json:"episode"`
	Result      string  `json:"result"`
	Steps       int     `json:"steps"`
	ThiefReward float64 `json:"thief_reward"`
	GuardReward float64 `json:"guard_reward"`
	TrapsPlaced int     `json:"traps_placed"`
}
