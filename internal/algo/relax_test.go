package algo

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elektrokombinacija/cgcp-planner/internal/core"
)

func relaxationOptions() RelaxationOptions {
	opts := DefaultRelaxationOptions()
	opts.Simulation.Episodes = 20000
	opts.TimeLimit = 30 * time.Second
	return opts
}

func TestViolationProb(t *testing.T) {
	assert.InDelta(t, 0.05, violationProb(0, 1, 1.645), 1e-3)
	assert.InDelta(t, 0.5, violationProb(3, 2, 3), 1e-9)
	assert.Equal(t, 0.0, violationProb(1, 0, 2))
	assert.Equal(t, 1.0, violationProb(3, 0, 2))
}

func TestAllowedMean(t *testing.T) {
	// 10 − 1.645σ, resolved to the bisection step
	assert.InDelta(t, 8.355, allowedMean(1, 10, 0.05), 0.02)
	assert.InDelta(t, 10, allowedMean(0, 10, 0.05), 0.02)
}

func TestDynamicRelaxation_GivesBackSlack(t *testing.T) {
	inst := toyInstance(t, 10, 100)
	cg, err := NewMDPColumnGeneration(newEnv(t), inst, testOptions(), rand.New(rand.NewSource(5)))
	require.NoError(t, err)

	r, err := NewDynamicRelaxation(cg, inst.Agents, inst.Constraints, relaxationOptions(), nil)
	require.NoError(t, err)
	initial, err := r.initialReductions()
	require.NoError(t, err)

	sol, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, r.Rounds(), 1)
	assert.LessOrEqual(t, r.Reductions().At(0, 0), initial.At(0, 0))
	assert.GreaterOrEqual(t, r.Reductions().At(0, 0), 0.0)
	assert.LessOrEqual(t, sol.ExpectedCost().Total[0], 100+1e-6)
	assert.Equal(t, 100.0, inst.Limit(0, 0), "original limits are kept")
}

func TestDynamicRelaxation_Errors(t *testing.T) {
	t.Run("negative costs", func(t *testing.T) {
		m, err := core.NewModelBuilder(1, 1, 2, 1, true).
			SetCost(0, core.AllEpochs, 0, 0, -1).
			SetTransition(core.AllEpochs, 0, 0, core.Outcome{State: 0, Prob: 1}).
			Build()
		require.NoError(t, err)
		cons := core.NewConstraints(core.Budget, 1, 2)
		_, err = NewDynamicRelaxation(nil, []*core.AgentModel{m}, cons, relaxationOptions(), nil)
		assert.True(t, core.IsUnsupported(err))
	})

	t.Run("alpha out of range", func(t *testing.T) {
		inst := toyInstance(t, 1, 0.5)
		opts := relaxationOptions()
		opts.Alpha = 1.5
		_, err := NewDynamicRelaxation(nil, inst.Agents, inst.Constraints, opts, nil)
		assert.Error(t, err)
	})

	t.Run("reduction exceeds limit", func(t *testing.T) {
		inst := toyInstance(t, 1, 0.5)
		cg, err := NewMDPColumnGeneration(newEnv(t), inst, testOptions(), rand.New(rand.NewSource(1)))
		require.NoError(t, err)
		r, err := NewDynamicRelaxation(cg, inst.Agents, inst.Constraints, relaxationOptions(), nil)
		require.NoError(t, err)
		_, err = r.Run(context.Background())
		assert.ErrorIs(t, err, core.ErrInfeasible)
	})
}

func TestRelaxedSolver_Exact(t *testing.T) {
	if testing.Short() {
		t.Skip("repeated occupancy LP solves")
	}
	s := &Relaxed{
		Env:        newEnv(t),
		Options:    testOptions(),
		Exact:      true,
		Relaxation: relaxationOptions(),
		Seed:       3,
	}
	assert.Equal(t, "dynamic-relaxation", s.Name())
	sol, err := s.Solve(context.Background(), toyInstance(t, 3, 50))
	require.NoError(t, err)
	assert.LessOrEqual(t, sol.ExpectedCost().Total[0], 50+1e-6)
	assert.Greater(t, sol.ExpectedReward(), 0.0)
}
