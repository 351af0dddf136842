package algo

import (
	"context"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elektrokombinacija/cgcp-planner/internal/core"
	"github.com/elektrokombinacija/cgcp-planner/internal/instance"
)

func toyPOMDP(t *testing.T) *core.POMDPModel {
	t.Helper()
	inst, err := instance.ToyPOMDPInstance(1, 0.5)
	require.NoError(t, err)
	return inst.Agents[0]
}

// noisyToy observes the next state correctly with probability 0.8.
func noisyToy(t *testing.T) *core.POMDPModel {
	t.Helper()
	b := core.NewPOMDPBuilder(toyModel(t), 2).SetInitialBelief([]float64{0.7, 0.3})
	for a := 0; a < 2; a++ {
		for s := 0; s < 2; s++ {
			b.SetObservation(a, s, s, 0.8).SetObservation(a, s, 1-s, 0.2)
		}
	}
	m, err := b.Build()
	require.NoError(t, err)
	return m
}

func tiger(t *testing.T, horizon int) *core.POMDPModel {
	t.Helper()
	m, err := instance.TigerModel(horizon)
	require.NoError(t, err)
	return m
}

func TestScaleTolerance(t *testing.T) {
	assert.InDelta(t, 0.1, scaleTolerance(50, 89), 1e-12)
	assert.InDelta(t, 0.001, scaleTolerance(0.5, 1), 1e-12)

	// magnitude sets the scale for negative Lagrangian values
	assert.InDelta(t, 0.01, scaleTolerance(-5, -2), 1e-12)
	assert.InDelta(t, 0.1, scaleTolerance(-89, 3), 1e-12)
	assert.Zero(t, scaleTolerance(0, 0))
	assert.False(t, math.IsNaN(scaleTolerance(-1, -1)))
}

func TestPointBasedVI_Tiger(t *testing.T) {
	// exact finite-horizon values from the belief-tree recursion
	cases := []struct {
		horizon int
		lambda  float64
		want    float64
	}{
		{horizon: 2, lambda: 0, want: -2},
		{horizon: 4, lambda: 1, want: -0.96125},
		{horizon: 5, lambda: 1, want: -0.4883875},
		{horizon: 8, lambda: 0, want: 7.0966155},
	}
	for _, tc := range cases {
		m := tiger(t, tc.horizon)
		lambda := budgetMultipliers(tc.lambda)
		vi := NewPointBasedVI(20*time.Second, rand.New(rand.NewSource(5)), nil)
		res, err := vi.Solve(context.Background(), m, lambda)
		require.NoError(t, err, "T=%d", tc.horizon)

		gap := res.UpperBound - res.LowerBound
		assert.GreaterOrEqual(t, gap, -1e-4, "T=%d bounds crossed", tc.horizon)
		assert.True(t, gap < scaleTolerance(res.LowerBound, res.UpperBound) || math.Abs(gap) < 0.01,
			"T=%d gap %g not closed", tc.horizon, gap)
		assert.InDelta(t, tc.want, res.LowerBound, 0.01, "T=%d", tc.horizon)
		assert.GreaterOrEqual(t, res.UpperBound, tc.want-1e-6, "T=%d upper bound below optimum", tc.horizon)

		ev := EvaluatePolicyGraph(m, CompilePolicyGraph(m, res.Vectors), lambda)
		assert.InDelta(t, res.LowerBound, ev.Value, 0.01, "T=%d graph value at b0", tc.horizon)
		assert.LessOrEqual(t, ev.Value, tc.want+1e-6, "T=%d graph beats the optimum", tc.horizon)
		assert.InDelta(t, ev.Reward-tc.lambda*ev.Cost.Total[0], ev.Value, 1e-6)

		if tc.horizon >= 5 {
			assert.Greater(t, res.Iterations, 1, "T=%d", tc.horizon)
			assert.Greater(t, res.NumBeliefs, 3*(tc.horizon+1), "T=%d explores beyond corners and b0", tc.horizon)
		}
	}
}

func TestPointBasedVI_ObservableToyMatchesMDP(t *testing.T) {
	m := toyPOMDP(t)
	for _, lambda := range []float64{0, 2, 100} {
		mdp := NewValueIteration(nil).Solve(m.AgentModel, budgetMultipliers(lambda))

		vi := NewPointBasedVI(5*time.Second, rand.New(rand.NewSource(1)), nil)
		res, err := vi.Solve(context.Background(), m, budgetMultipliers(lambda))
		require.NoError(t, err)

		assert.InDelta(t, mdp.Value, res.LowerBound, 1e-6, "lambda %g", lambda)
		assert.GreaterOrEqual(t, res.UpperBound, res.LowerBound-1e-6)
		assert.Len(t, res.Vectors, m.Horizon+1)

		ev := EvaluatePolicyGraph(m, CompilePolicyGraph(m, res.Vectors), budgetMultipliers(lambda))
		assert.InDelta(t, mdp.Value, ev.Value, 1e-6, "lambda %g", lambda)
		assert.InDelta(t, ev.Reward-lambda*ev.Cost.Total[0], ev.Value, 1e-6)
	}
}

func TestPointBasedVI_NoisyBounds(t *testing.T) {
	m := noisyToy(t)
	vi := NewPointBasedVI(5*time.Second, rand.New(rand.NewSource(2)), nil)
	res, err := vi.Solve(context.Background(), m, budgetMultipliers(1))
	require.NoError(t, err)

	assert.GreaterOrEqual(t, res.UpperBound, res.LowerBound-1e-4)
	assert.Greater(t, res.NumBeliefs, 0)

	graph := CompilePolicyGraph(m, res.Vectors)
	ev := EvaluatePolicyGraph(m, graph, budgetMultipliers(1))
	assert.LessOrEqual(t, ev.Value, res.UpperBound+1e-6)
	require.Len(t, graph.Layers, m.Horizon)
	for tt, layer := range graph.Layers {
		require.NotEmpty(t, layer, "layer %d", tt)
	}
}

func TestPointBasedVI_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	vi := NewPointBasedVI(5*time.Second, rand.New(rand.NewSource(3)), nil)
	res, err := vi.Solve(ctx, noisyToy(t), budgetMultipliers(0))
	// a single sweep may already close the gap
	if err != nil {
		assert.ErrorIs(t, err, context.Canceled)
	} else {
		assert.Equal(t, 1, res.Iterations)
	}
}

func TestCGCP_BudgetToy(t *testing.T) {
	inst, err := instance.ToyPOMDPInstance(1, 0.5)
	require.NoError(t, err)

	s := NewCGCP(newEnv(t), testOptions(), 2*time.Second, 1)
	assert.Equal(t, "cgcp", s.Name())
	sol, err := s.SolvePOMDP(context.Background(), inst)
	require.NoError(t, err)

	assert.LessOrEqual(t, sol.ExpectedCost().Total[0], 0.5+1e-6)
	assert.Greater(t, sol.ExpectedReward(), 2.0)
	assert.InDelta(t, 2.5, s.Last().Master().Objective(), 0.01)
	for _, mix := range sol.Mixtures {
		for _, col := range mix.Columns {
			assert.Contains(t, []core.PolicyKind{core.KindGraph, core.KindConstant}, col.Policy.Kind())
		}
	}
}

func TestCGCP_Tiger(t *testing.T) {
	const horizon = 4
	unconstrained := 2.42125 // per agent

	t.Run("loose budget", func(t *testing.T) {
		inst, err := instance.ToyTigerInstance(2, horizon, 100)
		require.NoError(t, err)
		s := NewCGCP(newEnv(t), testOptions(), 5*time.Second, 1)
		sol, err := s.SolvePOMDP(context.Background(), inst)
		require.NoError(t, err)

		assert.True(t, sol.MeetsLimits(1e-6))
		assert.InDelta(t, 2*unconstrained, s.Last().Master().Objective(), 0.03)
	})

	t.Run("scarce listens", func(t *testing.T) {
		inst, err := instance.ToyTigerInstance(2, horizon, 2)
		require.NoError(t, err)
		s := NewCGCP(newEnv(t), testOptions(), 5*time.Second, 1)
		sol, err := s.SolvePOMDP(context.Background(), inst)
		require.NoError(t, err)

		cg := s.Last()
		assert.True(t, sol.MeetsLimits(1e-6))
		assert.LessOrEqual(t, sol.ExpectedCost().Total[0], 2+1e-6)
		assert.Less(t, cg.Master().Objective(), 2*unconstrained)
		assert.GreaterOrEqual(t, cg.UpperBound(), cg.Master().Objective()-0.03)
		assert.Greater(t, cg.Iterations(), 1)
		for _, mix := range sol.Mixtures {
			for _, col := range mix.Columns {
				assert.Contains(t, []core.PolicyKind{core.KindGraph, core.KindConstant}, col.Policy.Kind())
			}
		}
	})
}

func TestCGCP_InstantaneousUnsupported(t *testing.T) {
	inst, err := instance.ToyPOMDPInstance(1, 0.5)
	require.NoError(t, err)
	inst.Constraints = core.NewConstraints(core.Instantaneous, 1, instance.ToyHorizon)

	_, err = NewCGCP(newEnv(t), testOptions(), time.Second, 1).SolvePOMDP(context.Background(), inst)
	assert.True(t, core.IsUnsupported(err))
}
