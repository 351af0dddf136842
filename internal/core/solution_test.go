package core

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func constantColumn(agent, a int, reward, cost float64) *Column {
	c := NewCostProfile(1, 2)
	c.Total[0] = cost
	c.PerEpoch.Set(0, 0, cost)
	return &Column{Agent: agent, Policy: &ConstantPolicy{A: a}, ExpectedReward: reward, ExpectedCost: c}
}

func TestNewSolution_Normalizes(t *testing.T) {
	cons := NewConstraints(Budget, 1, 2)
	cons.Limits.Set(0, 0, 1)
	sol, err := NewSolution(cons, []Mixture{{
		Columns: []*Column{constantColumn(0, 0, 0, 0), constantColumn(0, 1, 10, 2)},
		Weights: []float64{0.75 + 1e-9, 0.25},
	}}, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	assert.InDelta(t, 1, sol.Mixtures[0].Weights[0]+sol.Mixtures[0].Weights[1], 1e-12)
	assert.InDelta(t, 2.5, sol.ExpectedReward(), 1e-6)
	assert.InDelta(t, 0.5, sol.ExpectedCost().Total[0], 1e-6)
	assert.True(t, sol.MeetsLimits(1e-6))

	cons.Limits.Set(0, 0, 0.4)
	assert.False(t, sol.MeetsLimits(1e-6))
}

func TestNewSolution_Errors(t *testing.T) {
	cons := NewConstraints(Budget, 1, 2)
	_, err := NewSolution(cons, []Mixture{{Columns: []*Column{constantColumn(0, 0, 0, 0)}}}, rand.New(rand.NewSource(1)))
	assert.Error(t, err)

	_, err = NewSolution(cons, []Mixture{{
		Columns: []*Column{constantColumn(0, 0, 0, 0)},
		Weights: []float64{-0.1},
	}}, rand.New(rand.NewSource(1)))
	assert.Error(t, err)
}

func TestSolution_SamplesByWeight(t *testing.T) {
	cons := NewConstraints(Budget, 1, 2)
	sol, err := NewSolution(cons, []Mixture{{
		Columns: []*Column{constantColumn(0, 0, 0, 0), constantColumn(0, 1, 10, 2)},
		Weights: []float64{0.7, 0.3},
	}}, rand.New(rand.NewSource(7)))
	require.NoError(t, err)

	const n = 20000
	ones := 0
	for i := 0; i < n; i++ {
		sol.Reset()
		acts := sol.Actions(0, []Observation{{State: 0}})
		assert.Equal(t, sol.Selected(0), acts[0])
		ones += acts[0]
	}
	assert.InDelta(t, 0.3, float64(ones)/n, 0.02)
}

func TestPolicyGraph_FollowsObservations(t *testing.T) {
	g := NewPolicyGraph([][]GraphNode{
		{{Action: 1, Next: []int{0, 1}}},
		{{Action: 0, Next: []int{0, 0}}, {Action: 1, Next: []int{0, 0}}},
	}, 0)
	assert.Equal(t, 3, g.NumNodes())

	assert.Equal(t, 1, g.Action(0, Observation{}))
	g.Update(1, 1)
	assert.Equal(t, 1, g.Node())
	assert.Equal(t, 1, g.Action(1, Observation{}))
	g.Update(1, 0) // past the last layer
	g.Reset()
	assert.Equal(t, 0, g.Node())

	c := ClonePolicy(g, nil).(*PolicyGraph)
	c.Update(1, 1)
	assert.Equal(t, 0, g.Node(), "clones keep their own controller state")
}

func TestStochasticPolicy(t *testing.T) {
	probs := NewGrid3(1, 1, 3)
	probs.Set(0, 0, 2, 1)
	p := NewStochasticPolicy(probs, rand.New(rand.NewSource(3)))
	for i := 0; i < 10; i++ {
		assert.Equal(t, 2, p.Action(0, Observation{State: 0}))
	}
}

func TestStochasticController(t *testing.T) {
	// two nodes, one action, two observations
	probs := NewGrid3(2, 2, 2)
	probs.Set(0, 0, 0, 1)
	probs.Set(1, 0, 0, 1)
	probs.Set(1, 1, 1, 1)
	next := NewGrid4(2, 2, 2, 2)
	next.Set(0, 0, 1, 1, 1) // node 0, action 0, observation 1 -> node 1
	next.Set(0, 0, 0, 0, 1)
	c := NewStochasticController(probs, next, 0, rand.New(rand.NewSource(5)))
	assert.Equal(t, KindController, c.Kind())
	assert.Equal(t, "controller", c.Kind().String())
	assert.Equal(t, 2, c.NumNodes())

	assert.Equal(t, 0, c.Action(0, Observation{State: -1}))
	c.Update(0, 1)
	assert.Equal(t, 1, c.Node())
	assert.Equal(t, 1, c.Action(1, Observation{State: -1}))
	c.Update(1, 0) // empty row keeps the node
	assert.Equal(t, 1, c.Node())

	clone := ClonePolicy(c, rand.New(rand.NewSource(6))).(*StochasticController)
	assert.Equal(t, 0, clone.Node())
	c.Reset()
	assert.Equal(t, 0, c.Node())
	assert.Equal(t, []float64{0, 1}, next.Row(0, 0, 1))
}

func TestProbabilitySample(t *testing.T) {
	ps := NewProbabilitySample[string](rand.New(rand.NewSource(11)))
	ps.Add("never", 0)
	ps.Add("a", 0.2)
	ps.Add("b", 0.8)
	assert.Equal(t, 2, ps.Len())

	counts := map[string]int{}
	for i := 0; i < 10000; i++ {
		counts[ps.Sample()]++
	}
	assert.Zero(t, counts["never"])
	assert.InDelta(t, 0.8, float64(counts["b"])/10000, 0.02)

	assert.Equal(t, -1, SampleIndex([]float64{0, -1}, rand.New(rand.NewSource(1))))
}
