package agent

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"

	"heist/internal/action"
)

const (
	DefaultAlpha   = 0.1
	DefaultGamma   = 0.99
	DefaultEpsilon = 0.1
)

var (
	ErrInvalidHyperparameter = errors.New("invalid hyperparameter")
	ErrTableShape            = errors.New("value table shape mismatch")
)

// Policy chooses actions from observation keys and optionally learns from
// transitions.
type Policy interface {
	Role() action.Role
	SelectAction(key string) action.Action
	Update(key string, a action.Action, reward float64, nextKey string, done bool) error
}

type Config struct {
	Alpha   float64
	Gamma   float64
	Epsilon float64
}

func DefaultConfig() Config {
	return Config{Alpha: DefaultAlpha, Gamma: DefaultGamma, Epsilon: DefaultEpsilon}
}

func (c Config) Validate() error {
	if c.Alpha <= 0 || c.Alpha > 1 {
		return fmt.Errorf("%w: alpha %v not in (0,1]", ErrInvalidHyperparameter, c.Alpha)
	}
	if c.Gamma < 0 || c.Gamma > 1 {
		return fmt.Errorf("%w: gamma %v not in [0,1]", ErrInvalidHyperparameter, c.Gamma)
	}
	if c.Epsilon < 0 || c.Epsilon > 1 {
		return fmt.Errorf("%w: epsilon %v not in [0,1]", ErrInvalidHyperparameter, c.Epsilon)
	}
	return nil
}

// Tabular is an epsilon-greedy Q-learner over string state keys. Rows are
// created lazily with one zero entry per action.
type Tabular struct {
	role    action.Role
	cfg     Config
	rng     *rand.Rand
	table   map[string][]float64
	updates int
}

func New(role action.Role, rng *rand.Rand, cfg Config) (*Tabular, error) {
	if _, err := action.ParseRole(string(role)); err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, errors.New("rng is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Tabular{
		role:  role,
		cfg:   cfg,
		rng:   rng,
		table: make(map[string][]float64),
	}, nil
}

func NewThief(rng *rand.Rand, cfg Config) (*Tabular, error) {
	return New(action.Thief, rng, cfg)
}

func NewGuard(rng *rand.Rand, cfg Config) (*Tabular, error) {
	return New(action.Guard, rng, cfg)
}

func (t *Tabular) Role() action.Role {
	return t.role
}

func (t *Tabular) Config() Config {
	return t.cfg
}

// SetEpsilon changes the exploration rate, e.g. to 0 for greedy evaluation.
func (t *Tabular) SetEpsilon(epsilon float64) error {
	cfg := t.cfg
	cfg.Epsilon = epsilon
	if err := cfg.Validate(); err != nil {
		return err
	}
	t.cfg = cfg
	return nil
}

func (t *Tabular) SelectAction(key string) action.Action {
	if t.rng.Float64() < t.cfg.Epsilon {
		return action.Action(t.rng.Intn(action.Count))
	}
	return t.Greedy(key)
}

// Greedy returns a highest-valued action for key. Ties are broken uniformly
// at random so an untrained row does not collapse onto Noop.
func (t *Tabular) Greedy(key string) action.Action {
	row := t.row(key)
	best := row[0]
	ties := []action.Action{0}
	for i := 1; i < len(row); i++ {
		switch {
		case row[i] > best:
			best = row[i]
			ties = append(ties[:0], action.Action(i))
		case row[i] == best:
			ties = append(ties, action.Action(i))
		}
	}
	if len(ties) == 1 {
		return ties[0]
	}
	return ties[t.rng.Intn(len(ties))]
}

// Update applies one-step Q-learning. A terminal transition bootstraps from 0.
func (t *Tabular) Update(key string, a action.Action, reward float64, nextKey string, done bool) error {
	if !a.Valid() {
		return fmt.Errorf("%w: %d", action.ErrInvalidAction, int(a))
	}
	row := t.row(key)
	next := 0.0
	if !done {
		next = maxOf(t.row(nextKey))
	}
	row[a] += t.cfg.Alpha * (reward + t.cfg.Gamma*next - row[a])
	t.updates++
	return nil
}

// Values returns a copy of the row for key without creating it.
func (t *Tabular) Values(key string) ([]float64, bool) {
	row, ok := t.table[key]
	if !ok {
		return nil, false
	}
	return append([]float64(nil), row...), true
}

func (t *Tabular) States() int {
	return len(t.table)
}

func (t *Tabular) Updates() int {
	return t.updates
}

// Keys lists the known state keys in sorted order.
func (t *Tabular) Keys() []string {
	keys := make([]string, 0, len(t.table))
	for k := range t.table {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone deep-copies the table and hyperparameters onto a new random source.
func (t *Tabular) Clone(rng *rand.Rand) *Tabular {
	table := make(map[string][]float64, len(t.table))
	for k, row := range t.table {
		table[k] = append([]float64(nil), row...)
	}
	return &Tabular{role: t.role, cfg: t.cfg, rng: rng, table: table, updates: t.updates}
}

// Reseed replaces the random source driving exploration and tie-breaks.
func (t *Tabular) Reseed(seed int64) {
	t.rng = rand.New(rand.NewSource(seed))
}

// Reset clears the learned values.
func (t *Tabular) Reset() {
	t.table = make(map[string][]float64)
	t.updates = 0
}

func (t *Tabular) row(key string) []float64 {
	row, ok := t.table[key]
	if !ok {
		row = make([]float64, action.Count)
		t.table[key] = row
	}
	return row
}

func maxOf(values []float64) float64 {
	best := values[0]
	for _, v := range values[1:] {
		if v > best {
			best = v
		}
	}
	return best
}
