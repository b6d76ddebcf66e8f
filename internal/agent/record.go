package agent

import (
	"fmt"
	"math/rand"

	"heist/internal/action"
	"heist/internal/model"
)

// Record exports the learner for persistence. The table is deep-copied.
func (t *Tabular) Record(id string) model.AgentRecord {
	table := make(map[string][]float64, len(t.table))
	for k, row := range t.table {
		table[k] = append([]float64(nil), row...)
	}
	return model.AgentRecord{
		ID:      id,
		Role:    string(t.role),
		Alpha:   t.cfg.Alpha,
		Gamma:   t.cfg.Gamma,
		Epsilon: t.cfg.Epsilon,
		Actions: action.Count,
		Table:   table,
	}
}

// FromRecord rebuilds a learner from a persisted record.
func FromRecord(rec model.AgentRecord, rng *rand.Rand) (*Tabular, error) {
	role, err := action.ParseRole(rec.Role)
	if err != nil {
		return nil, err
	}
	if rec.Actions != action.Count {
		return nil, fmt.Errorf("%w: record has %d actions, want %d", ErrTableShape, rec.Actions, action.Count)
	}
	t, err := New(role, rng, Config{Alpha: rec.Alpha, Gamma: rec.Gamma, Epsilon: rec.Epsilon})
	if err != nil {
		return nil, err
	}
	for k, row := range rec.Table {
		if len(row) != action.Count {
			return nil, fmt.Errorf("%w: row %q has %d values", ErrTableShape, k, len(row))
		}
		t.table[k] = append([]float64(nil), row...)
	}
	return t, nil
}
