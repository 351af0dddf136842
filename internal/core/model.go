package core

import (
	"fmt"
	"math"
)

// AllEpochs applies a builder call to every epoch layer.
const AllEpochs = -1

// AgentModel is one agent's finite-horizon decision model.
// It is immutable once built.
type AgentModel struct {
	NumStates    int
	NumActions   int
	Horizon      int
	NumResources int
	InitialState int

	layers   int // 1 for stationary models, Horizon otherwise
	reward   Grid3
	cost     Grid4
	feasible [][]int
	offsets  []int
	arena    []Outcome
}

func (m *AgentModel) layer(t int) int {
	if t < 0 || t >= m.Horizon {
		panic(fmt.Sprintf("core: epoch %d out of range [0,%d)", t, m.Horizon))
	}
	if m.layers == 1 {
		return 0
	}
	return t
}

// Stationary reports whether the tables are shared by all epochs.
func (m *AgentModel) Stationary() bool { return m.layers == 1 }

// Feasible returns the actions available in state s at epoch t.
func (m *AgentModel) Feasible(t, s int) []int {
	l := m.layer(t)
	return m.feasible[l*m.NumStates+s]
}

// Transitions returns the outcome distribution of action a in state s at epoch t.
func (m *AgentModel) Transitions(t, s, a int) []Outcome {
	key := (m.layer(t)*m.NumStates+s)*m.NumActions + a
	return m.arena[m.offsets[key]:m.offsets[key+1]]
}

// Reward returns the immediate reward of (t,s,a).
func (m *AgentModel) Reward(t, s, a int) float64 {
	return m.reward.At(m.layer(t), s, a)
}

// Cost returns the immediate consumption of resource k at (t,s,a).
func (m *AgentModel) Cost(k, t, s, a int) float64 {
	return m.cost.At(k, m.layer(t), s, a)
}

// MaxCost returns the largest single-step consumption of resource k.
func (m *AgentModel) MaxCost(k int) float64 {
	best := math.Inf(-1)
	for l := 0; l < m.layers; l++ {
		for s := 0; s < m.NumStates; s++ {
			for _, a := range m.feasible[l*m.NumStates+s] {
				best = math.Max(best, m.cost.At(k, l, s, a))
			}
		}
	}
	return best
}

// MaxAbsReward returns the largest single-step reward magnitude.
func (m *AgentModel) MaxAbsReward() float64 {
	best := 0.0
	for l := 0; l < m.layers; l++ {
		for s := 0; s < m.NumStates; s++ {
			for _, a := range m.feasible[l*m.NumStates+s] {
				best = math.Max(best, math.Abs(m.reward.At(l, s, a)))
			}
		}
	}
	return best
}

// HasNonNegativeCosts reports whether every feasible cost entry is >= 0.
func (m *AgentModel) HasNonNegativeCosts() bool {
	for k := 0; k < m.NumResources; k++ {
		for l := 0; l < m.layers; l++ {
			for s := 0; s < m.NumStates; s++ {
				for _, a := range m.feasible[l*m.NumStates+s] {
					if m.cost.At(k, l, s, a) < 0 {
						return false
					}
				}
			}
		}
	}
	return true
}

// ModelBuilder accumulates the tables of an AgentModel.
// The first error is kept and returned by Build.
type ModelBuilder struct {
	m        *AgentModel
	trans    [][]Outcome
	feasible [][]int
	setFeas  []bool
	err      error
}

// NewModelBuilder starts a model. Stationary models store a single epoch layer.
func NewModelBuilder(states, actions, horizon, resources int, stationary bool) *ModelBuilder {
	layers := horizon
	if stationary {
		layers = 1
	}
	b := &ModelBuilder{}
	if states <= 0 || actions <= 0 || horizon <= 0 || resources < 0 {
		b.err = &ModelError{Reason: fmt.Sprintf("bad dimensions S=%d A=%d T=%d K=%d", states, actions, horizon, resources)}
		layers, states, actions = 0, 0, 0
	}
	b.m = &AgentModel{
		NumStates:    states,
		NumActions:   actions,
		Horizon:      horizon,
		NumResources: resources,
		layers:       layers,
		reward:       NewGrid3(layers, states, actions),
		cost:         NewGrid4(resources, layers, states, actions),
	}
	b.trans = make([][]Outcome, layers*states*actions)
	b.feasible = make([][]int, layers*states)
	b.setFeas = make([]bool, layers*states)
	return b
}

func (b *ModelBuilder) epochs(t int) []int {
	if t == AllEpochs {
		ls := make([]int, b.m.layers)
		for i := range ls {
			ls[i] = i
		}
		return ls
	}
	if t < 0 || t >= b.m.layers {
		if b.err == nil {
			b.err = &ModelError{Epoch: t, Reason: "epoch layer out of range"}
		}
		return nil
	}
	return []int{t}
}

func (b *ModelBuilder) checkSA(t, s, a int) bool {
	if s < 0 || s >= b.m.NumStates || a < 0 || a >= b.m.NumActions {
		if b.err == nil {
			b.err = &ModelError{Epoch: t, State: s, Action: a, Reason: "state or action out of range"}
		}
		return false
	}
	return true
}

// SetInitialState sets the state every episode starts in.
func (b *ModelBuilder) SetInitialState(s int) *ModelBuilder {
	if b.checkSA(0, s, 0) {
		b.m.InitialState = s
	}
	return b
}

// SetReward sets R(t,s,a).
func (b *ModelBuilder) SetReward(t, s, a int, r float64) *ModelBuilder {
	if !b.checkSA(t, s, a) {
		return b
	}
	for _, l := range b.epochs(t) {
		b.m.reward.Set(l, s, a, r)
	}
	return b
}

// SetCost sets C_k(t,s,a).
func (b *ModelBuilder) SetCost(k, t, s, a int, c float64) *ModelBuilder {
	if !b.checkSA(t, s, a) {
		return b
	}
	if k < 0 || k >= b.m.NumResources {
		if b.err == nil {
			b.err = &ModelError{Epoch: t, State: s, Action: a, Reason: fmt.Sprintf("resource %d out of range", k)}
		}
		return b
	}
	for _, l := range b.epochs(t) {
		b.m.cost.Set(k, l, s, a, c)
	}
	return b
}

// SetTransition sets the outcome distribution of (t,s,a).
func (b *ModelBuilder) SetTransition(t, s, a int, outcomes ...Outcome) *ModelBuilder {
	if !b.checkSA(t, s, a) {
		return b
	}
	for _, l := range b.epochs(t) {
		key := (l*b.m.NumStates+s)*b.m.NumActions + a
		b.trans[key] = append([]Outcome(nil), outcomes...)
	}
	return b
}

// SetFeasible restricts the actions available at (t,s). By default all actions are feasible.
func (b *ModelBuilder) SetFeasible(t, s int, actions ...int) *ModelBuilder {
	for _, a := range actions {
		if !b.checkSA(t, s, a) {
			return b
		}
	}
	for _, l := range b.epochs(t) {
		b.feasible[l*b.m.NumStates+s] = append([]int(nil), actions...)
		b.setFeas[l*b.m.NumStates+s] = true
	}
	return b
}

// Build validates the tables and packs transitions into one arena.
func (b *ModelBuilder) Build() (*AgentModel, error) {
	if b.err != nil {
		return nil, b.err
	}
	m := b.m
	m.feasible = make([][]int, m.layers*m.NumStates)
	m.offsets = make([]int, len(b.trans)+1)
	for l := 0; l < m.layers; l++ {
		for s := 0; s < m.NumStates; s++ {
			idx := l*m.NumStates + s
			if b.setFeas[idx] {
				m.feasible[idx] = b.feasible[idx]
			} else {
				all := make([]int, m.NumActions)
				for a := range all {
					all[a] = a
				}
				m.feasible[idx] = all
			}
			if len(m.feasible[idx]) == 0 {
				return nil, &ModelError{Epoch: l, State: s, Action: -1, Reason: "no feasible action"}
			}
			for _, a := range m.feasible[idx] {
				if err := validateRow(l, s, a, b.trans[idx*m.NumActions+a], m.NumStates); err != nil {
					return nil, err
				}
			}
		}
	}
	for key, row := range b.trans {
		m.offsets[key] = len(m.arena)
		m.arena = append(m.arena, row...)
	}
	m.offsets[len(b.trans)] = len(m.arena)
	b.m = nil
	return m, nil
}

func validateRow(t, s, a int, row []Outcome, states int) error {
	if len(row) == 0 {
		return &ModelError{Epoch: t, State: s, Action: a, Reason: "missing transition"}
	}
	sum := 0.0
	for _, o := range row {
		if o.State < 0 || o.State >= states {
			return &ModelError{Epoch: t, State: s, Action: a, Reason: fmt.Sprintf("destination %d out of range", o.State)}
		}
		if o.Prob < 0 {
			return &ModelError{Epoch: t, State: s, Action: a, Reason: fmt.Sprintf("negative probability %g", o.Prob)}
		}
		sum += o.Prob
	}
	if math.Abs(sum-1) > ProbTolerance {
		return &ModelError{Epoch: t, State: s, Action: a, Reason: fmt.Sprintf("probabilities sum to %g", sum)}
	}
	return nil
}
