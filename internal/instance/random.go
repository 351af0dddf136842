package instance

import (
	"fmt"
	"math/rand"

	"github.com/elektrokombinacija/cgcp-planner/internal/core"
)

// GenParams defines parameters for random instance generation.
type GenParams struct {
	Seed      int64  `yaml:"seed"`
	Agents    int    `yaml:"agents" validate:"min=1"`
	States    int    `yaml:"states" validate:"min=1"`
	Actions   int    `yaml:"actions" validate:"min=2"`
	Horizon   int    `yaml:"horizon" validate:"min=1"`
	Resources int    `yaml:"resources" validate:"min=1"`
	Branching int    `yaml:"branching" validate:"min=1"`
	Type      string `yaml:"type" validate:"oneof=budget instantaneous"`
	// LimitFraction scales the limits against the worst-case joint consumption.
	LimitFraction float64 `yaml:"limit_fraction" validate:"gt=0,lte=1"`
	// Observations > 0 adds a noisy observation model.
	Observations int     `yaml:"observations" validate:"min=0"`
	ObsNoise     float64 `yaml:"obs_noise" validate:"gte=0,lt=1"`
	MaxReward    float64 `yaml:"max_reward" validate:"gt=0"`
	MaxCost      float64 `yaml:"max_cost" validate:"gt=0"`
}

// DefaultGenParams returns a small budget instance.
func DefaultGenParams() GenParams {
	return GenParams{
		Seed:          42,
		Agents:        3,
		States:        4,
		Actions:       3,
		Horizon:       8,
		Resources:     1,
		Branching:     2,
		Type:          "budget",
		LimitFraction: 0.3,
		MaxReward:     10,
		MaxCost:       2,
	}
}

// Generate builds a random stationary instance. Action 0 never consumes, so
// the no-consumption seed is always available.
func Generate(p GenParams) (*File, error) {
	if err := validate.Struct(p); err != nil {
		return nil, fmt.Errorf("generator params: %w", err)
	}
	typ, _ := core.ParseConstraintType(p.Type)
	rng := rand.New(rand.NewSource(p.Seed))
	f := &File{Name: fmt.Sprintf("random-%s-n%d-s%d-seed%d", p.Type, p.Agents, p.States, p.Seed)}

	worst := make([]float64, p.Resources)
	for i := 0; i < p.Agents; i++ {
		a := AgentFile{
			States:       p.States,
			Actions:      p.Actions,
			InitialState: rng.Intn(p.States),
			Stationary:   true,
		}
		for s := 0; s < p.States; s++ {
			for act := 0; act < p.Actions; act++ {
				a.Transitions = append(a.Transitions, TransitionEntry{S: s, A: act, To: randomOutcomes(rng, p.States, p.Branching)})
				if act == 0 {
					continue
				}
				a.Rewards = append(a.Rewards, ValueEntry{S: s, A: act, Value: rng.Float64() * p.MaxReward})
				for k := 0; k < p.Resources; k++ {
					a.Costs = append(a.Costs, ValueEntry{K: k, S: s, A: act, Value: rng.Float64() * p.MaxCost})
				}
			}
		}
		for k := range worst {
			worst[k] += p.MaxCost
		}
		if p.Observations > 0 {
			addObservations(&a, rng, p.Observations, p.ObsNoise)
		}
		f.Agents = append(f.Agents, a)
	}

	f.Constraints = ConstraintsFile{Type: p.Type, Resources: p.Resources, Horizon: p.Horizon}
	for k := 0; k < p.Resources; k++ {
		if typ == core.Budget {
			f.Constraints.Limits = append(f.Constraints.Limits, []float64{worst[k] * float64(p.Horizon) * p.LimitFraction})
			continue
		}
		row := make([]float64, p.Horizon)
		for t := range row {
			row[t] = worst[k] * p.LimitFraction
		}
		f.Constraints.Limits = append(f.Constraints.Limits, row)
	}
	return f, nil
}

// randomOutcomes spreads probability over up to branching distinct successors.
func randomOutcomes(rng *rand.Rand, states, branching int) []Outcome {
	n := min(branching, states)
	perm := rng.Perm(states)[:n]
	weights := make([]float64, n)
	sum := 0.0
	for j := range weights {
		weights[j] = rng.Float64() + 0.1
		sum += weights[j]
	}
	outs := make([]Outcome, n)
	rest := 1.0
	for j, s := range perm {
		p := weights[j] / sum
		if j == n-1 {
			p = rest
		}
		rest -= p
		outs[j] = Outcome{State: s, Prob: p}
	}
	return outs
}

// addObservations gives the agent a uniform initial belief and an
// observation of its next state that is wrong with probability noise.
func addObservations(a *AgentFile, rng *rand.Rand, observations int, noise float64) {
	a.Observations = observations
	a.InitialBelief = make([]float64, a.States)
	for s := range a.InitialBelief {
		a.InitialBelief[s] = 1 / float64(a.States)
	}
	for act := 0; act < a.Actions; act++ {
		for s := 0; s < a.States; s++ {
			right := s % observations
			if observations == 1 {
				a.ObservationProbs = append(a.ObservationProbs, ObservationEntry{A: act, Next: s, O: 0, Prob: 1})
				continue
			}
			a.ObservationProbs = append(a.ObservationProbs, ObservationEntry{A: act, Next: s, O: right, Prob: 1 - noise})
			wrong := (right + 1 + rng.Intn(observations-1)) % observations
			if noise > 0 {
				a.ObservationProbs = append(a.ObservationProbs, ObservationEntry{A: act, Next: s, O: wrong, Prob: noise})
			}
		}
	}
}
