package core

import (
	"fmt"
	"math/rand"
)

// Mixture is a probability distribution over one agent's columns.
type Mixture struct {
	Columns []*Column
	Weights []float64
}

// Solution is the runtime form of a solved instance: per agent it samples
// one column at episode start and delegates action queries to its policy.
type Solution struct {
	Constraints Constraints
	Mixtures    []Mixture

	rng      *rand.Rand
	selected []int
	active   []Policy
}

// NewSolution builds a runtime solution. Weights are clamped into [0,1]
// and renormalized per agent.
func NewSolution(cons Constraints, mixtures []Mixture, rng *rand.Rand) (*Solution, error) {
	sol := &Solution{
		Constraints: cons,
		Mixtures:    make([]Mixture, len(mixtures)),
		rng:         rng,
		selected:    make([]int, len(mixtures)),
		active:      make([]Policy, len(mixtures)),
	}
	for i, mix := range mixtures {
		if len(mix.Columns) != len(mix.Weights) {
			return nil, fmt.Errorf("core: agent %d has %d columns and %d weights", i, len(mix.Columns), len(mix.Weights))
		}
		w := make([]float64, len(mix.Weights))
		sum := 0.0
		for j, v := range mix.Weights {
			w[j] = min(max(v, 0), 1)
			sum += w[j]
		}
		if sum <= 0 {
			return nil, fmt.Errorf("core: agent %d has no positive weight", i)
		}
		for j := range w {
			w[j] /= sum
		}
		sol.Mixtures[i] = Mixture{Columns: mix.Columns, Weights: w}
	}
	sol.Reset()
	return sol, nil
}

// NumAgents returns the number of agents.
func (s *Solution) NumAgents() int { return len(s.Mixtures) }

// Reset samples a column per agent for a new episode.
func (s *Solution) Reset() {
	for i, mix := range s.Mixtures {
		j := SampleIndex(mix.Weights, s.rng)
		s.selected[i] = j
		s.active[i] = mix.Columns[j].Policy
		s.active[i].Reset()
	}
}

// Selected returns the column index sampled for agent i.
func (s *Solution) Selected(i int) int { return s.selected[i] }

// Action returns agent i's action at epoch t.
func (s *Solution) Action(i, t int, obs Observation) int {
	return s.active[i].Action(t, obs)
}

// Actions returns every agent's action at epoch t.
func (s *Solution) Actions(t int, obs []Observation) []int {
	acts := make([]int, len(s.active))
	for i, p := range s.active {
		acts[i] = p.Action(t, obs[i])
	}
	return acts
}

// Update advances every agent's policy after the given actions and observations.
func (s *Solution) Update(actions, observations []int) {
	for i, p := range s.active {
		p.Update(actions[i], observations[i])
	}
}

// ExpectedReward is the weighted sum of the stored column rewards.
func (s *Solution) ExpectedReward() float64 {
	total := 0.0
	for i := range s.Mixtures {
		total += s.AgentExpectedReward(i)
	}
	return total
}

// AgentExpectedReward is agent i's share of ExpectedReward.
func (s *Solution) AgentExpectedReward(i int) float64 {
	r := 0.0
	mix := s.Mixtures[i]
	for j, c := range mix.Columns {
		r += mix.Weights[j] * c.ExpectedReward
	}
	return r
}

// ExpectedCost is the weighted sum of the stored column cost profiles.
func (s *Solution) ExpectedCost() CostProfile {
	total := NewCostProfile(s.Constraints.NumResources, s.Constraints.Horizon)
	for _, mix := range s.Mixtures {
		for j, c := range mix.Columns {
			total.AddScaled(c.ExpectedCost, mix.Weights[j])
		}
	}
	return total
}

// MeetsLimits reports whether the expected consumption respects every limit within tol.
func (s *Solution) MeetsLimits(tol float64) bool {
	used := s.ExpectedCost().Consumption(s.Constraints.Type)
	for k := 0; k < s.Constraints.NumResources; k++ {
		for p := 0; p < s.Constraints.Periods(); p++ {
			if used.At(k, p) > s.Constraints.Limit(k, p)+tol {
				return false
			}
		}
	}
	return true
}

// Clone returns a solution sharing the mixtures but with its own episode
// state, drawing from rng.
func (s *Solution) Clone(rng *rand.Rand) *Solution {
	c := &Solution{
		Constraints: s.Constraints,
		Mixtures:    make([]Mixture, len(s.Mixtures)),
		rng:         rng,
		selected:    make([]int, len(s.Mixtures)),
		active:      make([]Policy, len(s.Mixtures)),
	}
	for i, mix := range s.Mixtures {
		cols := make([]*Column, len(mix.Columns))
		for j, col := range mix.Columns {
			cp := *col
			cp.Policy = ClonePolicy(col.Policy, rng)
			cols[j] = &cp
		}
		c.Mixtures[i] = Mixture{Columns: cols, Weights: mix.Weights}
	}
	c.Reset()
	return c
}
