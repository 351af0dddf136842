package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// twoStateBuilder is a 2-state, 2-action chain where action 1 moves to state 1.
func twoStateBuilder(horizon int, stationary bool) *ModelBuilder {
	return NewModelBuilder(2, 2, horizon, 1, stationary).
		SetReward(AllEpochs, 1, 1, 10).
		SetCost(0, AllEpochs, 1, 1, 2).
		SetTransition(AllEpochs, 0, 0, Outcome{State: 0, Prob: 1}).
		SetTransition(AllEpochs, 0, 1, Outcome{State: 0, Prob: 0.1}, Outcome{State: 1, Prob: 0.9}).
		SetTransition(AllEpochs, 1, 0, Outcome{State: 0, Prob: 1}).
		SetTransition(AllEpochs, 1, 1, Outcome{State: 1, Prob: 1})
}

func TestModelBuilder(t *testing.T) {
	m, err := twoStateBuilder(5, true).Build()
	require.NoError(t, err)

	assert.True(t, m.Stationary())
	assert.Equal(t, 10.0, m.Reward(4, 1, 1))
	assert.Equal(t, 2.0, m.Cost(0, 3, 1, 1))
	assert.Equal(t, 2.0, m.MaxCost(0))
	assert.True(t, m.HasNonNegativeCosts())
	assert.Equal(t, []int{0, 1}, m.Feasible(2, 0))
	assert.Equal(t, []Outcome{{State: 0, Prob: 0.1}, {State: 1, Prob: 0.9}}, m.Transitions(0, 0, 1))
}

func TestModelBuilder_TimeDependent(t *testing.T) {
	m, err := twoStateBuilder(3, false).
		SetReward(2, 1, 1, 4).
		SetFeasible(0, 1, 0).
		Build()
	require.NoError(t, err)

	assert.False(t, m.Stationary())
	assert.Equal(t, 10.0, m.Reward(1, 1, 1))
	assert.Equal(t, 4.0, m.Reward(2, 1, 1))
	assert.Equal(t, []int{0}, m.Feasible(0, 1))
	assert.Equal(t, []int{0, 1}, m.Feasible(1, 1))
}

func TestModelBuilder_Errors(t *testing.T) {
	tests := []struct {
		name  string
		build func() (*AgentModel, error)
	}{
		{"bad dimensions", func() (*AgentModel, error) {
			return NewModelBuilder(0, 2, 3, 1, true).Build()
		}},
		{"row does not sum to one", func() (*AgentModel, error) {
			return twoStateBuilder(3, true).
				SetTransition(AllEpochs, 1, 1, Outcome{State: 1, Prob: 0.5}).Build()
		}},
		{"negative probability", func() (*AgentModel, error) {
			return twoStateBuilder(3, true).
				SetTransition(AllEpochs, 1, 1, Outcome{State: 1, Prob: 1.5}, Outcome{State: 0, Prob: -0.5}).Build()
		}},
		{"destination out of range", func() (*AgentModel, error) {
			return twoStateBuilder(3, true).
				SetTransition(AllEpochs, 1, 1, Outcome{State: 2, Prob: 1}).Build()
		}},
		{"missing transition", func() (*AgentModel, error) {
			return NewModelBuilder(1, 1, 3, 1, true).Build()
		}},
		{"empty feasible set", func() (*AgentModel, error) {
			return twoStateBuilder(3, true).SetFeasible(AllEpochs, 0).Build()
		}},
		{"action out of range", func() (*AgentModel, error) {
			return twoStateBuilder(3, true).SetReward(0, 0, 5, 1).Build()
		}},
		{"resource out of range", func() (*AgentModel, error) {
			return twoStateBuilder(3, true).SetCost(1, 0, 0, 0, 1).Build()
		}},
		{"epoch out of range", func() (*AgentModel, error) {
			return twoStateBuilder(3, false).SetReward(3, 0, 0, 1).Build()
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := tt.build()
			assert.Nil(t, m)
			var me *ModelError
			require.True(t, errors.As(err, &me), "got %v", err)
		})
	}
}

func TestInstanceValidate(t *testing.T) {
	m, err := twoStateBuilder(4, true).Build()
	require.NoError(t, err)

	inst := &Instance{Constraints: NewConstraints(Budget, 1, 4), Agents: []*AgentModel{m, m}}
	require.NoError(t, inst.Validate())

	inst.Horizon = 5
	inst.Limits = NewGrid2(1, 1)
	assert.True(t, IsUnsupported(inst.Validate()))

	empty := &Instance{Constraints: NewConstraints(Budget, 1, 4)}
	assert.True(t, IsUnsupported(empty.Validate()))
}

func toyPOMDP(t *testing.T) *POMDPModel {
	t.Helper()
	m, err := twoStateBuilder(4, true).Build()
	require.NoError(t, err)
	b := NewPOMDPBuilder(m, 2).SetInitialBelief([]float64{1, 0})
	for a := 0; a < 2; a++ {
		b.SetObservation(a, 0, 0, 0.8).SetObservation(a, 0, 1, 0.2)
		b.SetObservation(a, 1, 1, 0.8).SetObservation(a, 1, 0, 0.2)
	}
	pm, err := b.Build()
	require.NoError(t, err)
	return pm
}

func TestPOMDPBeliefUpdate(t *testing.T) {
	m := toyPOMDP(t)
	b0 := NewBeliefPoint(m.InitialBelief, nil)

	// P(o=1 | b0, a=1) = 0.1*0.2 + 0.9*0.8
	assert.InDelta(t, 0.74, m.ObservationProb(b0, 0, 1, 1), 1e-12)

	next := m.UpdateBelief(b0, 0, 1, 1)
	require.NotNil(t, next)
	assert.InDelta(t, 0.72/0.74, next.Belief[1], 1e-12)
	assert.Equal(t, []int{1, 1}, next.History)
	assert.Same(t, next, m.UpdateBelief(b0, 0, 1, 1), "successors are cached")

	vec := m.UpdateBeliefVector(b0.Belief, 0, 1, 1)
	assert.InDeltaSlice(t, next.Belief, vec, 1e-12)
}

func TestPOMDPBuilder_Errors(t *testing.T) {
	m, err := twoStateBuilder(4, true).Build()
	require.NoError(t, err)

	_, err = NewPOMDPBuilder(m, 2).SetInitialBelief([]float64{1, 0}).Build()
	assert.Error(t, err, "observation rows are empty")

	b := NewPOMDPBuilder(m, 1).SetInitialBelief([]float64{0.5, 0.4})
	for a := 0; a < 2; a++ {
		for s := 0; s < 2; s++ {
			b.SetObservation(a, s, 0, 1)
		}
	}
	_, err = b.Build()
	assert.Error(t, err, "initial belief does not sum to one")

	restricted, err := twoStateBuilder(4, true).SetFeasible(AllEpochs, 1, 0).Build()
	require.NoError(t, err)
	_, err = NewPOMDPBuilder(restricted, 1).SetInitialBelief([]float64{1, 0}).Build()
	assert.Error(t, err)
}
