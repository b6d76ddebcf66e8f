package agent

import (
	"math/rand"

	"heist/internal/action"
)

// Random picks uniformly among all actions and never learns. It stands in
// for a role that has no trained table.
type Random struct {
	role action.Role
	rng  *rand.Rand
}

func NewRandom(role action.Role, rng *rand.Rand) *Random {
	return &Random{role: role, rng: rng}
}

func (r *Random) Role() action.Role {
	return r.role
}

func (r *Random) SelectAction(string) action.Action {
	return action.Action(r.rng.Intn(action.Count))
}

func (r *Random) Reseed(seed int64) {
	r.rng = rand.New(rand.NewSource(seed))
}

func (r *Random) Update(string, action.Action, float64, string, bool) error {
	return nil
}

// Reseeder is implemented by policies whose randomness can be restarted.
type Reseeder interface {
	Reseed(seed int64)
}

// ClonePolicy returns an independent copy of p driven by rng, suitable for a
// separate goroutine.
func ClonePolicy(p Policy, rng *rand.Rand) Policy {
	switch v := p.(type) {
	case *Tabular:
		return v.Clone(rng)
	case *Random:
		return NewRandom(v.role, rng)
	default:
		return p
	}
}
