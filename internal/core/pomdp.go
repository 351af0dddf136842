package core

import (
	"fmt"
	"math"
)

// POMDPModel is an AgentModel whose state is only seen through observations.
// Observation probabilities O(a,s',o) do not depend on the epoch.
type POMDPModel struct {
	*AgentModel
	NumObservations int
	InitialBelief   []float64

	obs Grid3
}

// Observation returns O(a, sNext, o).
func (m *POMDPModel) Observation(a, sNext, o int) float64 {
	return m.obs.At(a, sNext, o)
}

// PrepareBelief caches P(o | b, a) for every action and observation at epoch t.
func (m *POMDPModel) PrepareBelief(b *BeliefPoint, t int) {
	if b.aoReady && b.aoEpoch == t {
		return
	}
	ao := NewGrid2(m.NumActions, m.NumObservations)
	for a := 0; a < m.NumActions; a++ {
		for s, p := range b.Belief {
			if p == 0 {
				continue
			}
			for _, out := range m.Transitions(t, s, a) {
				for o := 0; o < m.NumObservations; o++ {
					ao.Add(a, o, m.obs.At(a, out.State, o)*out.Prob*p)
				}
			}
		}
	}
	b.aoProbs = ao
	b.aoEpoch = t
	b.aoReady = true
}

// ObservationProb returns P(o | b, a) at epoch t.
func (m *POMDPModel) ObservationProb(b *BeliefPoint, t, a, o int) float64 {
	m.PrepareBelief(b, t)
	return b.aoProbs.At(a, o)
}

// UpdateBelief returns the successor of b after taking a at epoch t and seeing o.
// It returns nil when o cannot be observed. Successors are cached on b.
func (m *POMDPModel) UpdateBelief(b *BeliefPoint, t, a, o int) *BeliefPoint {
	if next, ok := b.successor(a, o); ok {
		return next
	}
	norm := m.ObservationProb(b, t, a, o)
	if norm <= 0 {
		b.setSuccessor(a, o, nil)
		return nil
	}
	next := make([]float64, m.NumStates)
	for s, p := range b.Belief {
		if p == 0 {
			continue
		}
		for _, out := range m.Transitions(t, s, a) {
			next[out.State] += m.obs.At(a, out.State, o) * out.Prob * p
		}
	}
	for s := range next {
		next[s] /= norm
	}
	nb := NewBeliefPoint(next, b.Extend(a, o))
	b.setSuccessor(a, o, nb)
	return nb
}

// UpdateBeliefVector is UpdateBelief on a raw distribution, without caching.
func (m *POMDPModel) UpdateBeliefVector(belief []float64, t, a, o int) []float64 {
	next := make([]float64, m.NumStates)
	norm := 0.0
	for s, p := range belief {
		if p == 0 {
			continue
		}
		for _, out := range m.Transitions(t, s, a) {
			v := m.obs.At(a, out.State, o) * out.Prob * p
			next[out.State] += v
			norm += v
		}
	}
	if norm <= 0 {
		return nil
	}
	for s := range next {
		next[s] /= norm
	}
	return next
}

// POMDPBuilder adds an observation function and initial belief to a model.
type POMDPBuilder struct {
	m   *POMDPModel
	err error
}

// NewPOMDPBuilder wraps a built AgentModel. Every action must be feasible in every state.
func NewPOMDPBuilder(model *AgentModel, observations int) *POMDPBuilder {
	b := &POMDPBuilder{}
	if observations <= 0 {
		b.err = &ModelError{Reason: fmt.Sprintf("bad observation count %d", observations)}
		observations = 0
	}
	b.m = &POMDPModel{
		AgentModel:      model,
		NumObservations: observations,
		obs:             NewGrid3(model.NumActions, model.NumStates, observations),
	}
	return b
}

// SetObservation sets O(a, sNext, o).
func (b *POMDPBuilder) SetObservation(a, sNext, o int, p float64) *POMDPBuilder {
	m := b.m
	if a < 0 || a >= m.NumActions || sNext < 0 || sNext >= m.NumStates || o < 0 || o >= m.NumObservations {
		if b.err == nil {
			b.err = &ModelError{State: sNext, Action: a, Reason: fmt.Sprintf("observation %d out of range", o)}
		}
		return b
	}
	m.obs.Set(a, sNext, o, p)
	return b
}

// SetInitialBelief sets b0.
func (b *POMDPBuilder) SetInitialBelief(belief []float64) *POMDPBuilder {
	b.m.InitialBelief = append([]float64(nil), belief...)
	return b
}

// Build validates observation rows and the initial belief.
func (b *POMDPBuilder) Build() (*POMDPModel, error) {
	if b.err != nil {
		return nil, b.err
	}
	m := b.m
	for t := 0; t < m.Horizon; t++ {
		for s := 0; s < m.NumStates; s++ {
			if len(m.Feasible(t, s)) != m.NumActions {
				return nil, &ModelError{Epoch: t, State: s, Action: -1, Reason: "partially observable agents need every action feasible"}
			}
		}
	}
	for a := 0; a < m.NumActions; a++ {
		for s := 0; s < m.NumStates; s++ {
			sum := 0.0
			for o := 0; o < m.NumObservations; o++ {
				p := m.obs.At(a, s, o)
				if p < 0 {
					return nil, &ModelError{State: s, Action: a, Reason: "negative observation probability"}
				}
				sum += p
			}
			if math.Abs(sum-1) > ProbTolerance {
				return nil, &ModelError{State: s, Action: a, Reason: fmt.Sprintf("observation probabilities sum to %g", sum)}
			}
		}
	}
	if len(m.InitialBelief) != m.NumStates {
		return nil, &ModelError{Reason: fmt.Sprintf("initial belief has %d entries, want %d", len(m.InitialBelief), m.NumStates)}
	}
	sum := 0.0
	for _, p := range m.InitialBelief {
		if p < 0 {
			return nil, &ModelError{Reason: "negative initial belief"}
		}
		sum += p
	}
	if math.Abs(sum-1) > ProbTolerance {
		return nil, &ModelError{Reason: fmt.Sprintf("initial belief sums to %g", sum)}
	}
	b.m = nil
	return m, nil
}
