package algo

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elektrokombinacija/cgcp-planner/internal/core"
	"github.com/elektrokombinacija/cgcp-planner/internal/instance"
)

func TestConstrainedMDP_BudgetToy(t *testing.T) {
	c, err := NewConstrainedMDP(newEnv(t), toyInstance(t, 1, 0.5), rand.New(rand.NewSource(1)), nil)
	require.NoError(t, err)
	defer c.Dispose()

	sol, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 2.5, c.Objective(), 1e-6)
	assert.InDelta(t, 2.5, sol.ExpectedReward(), 1e-6)
	assert.True(t, sol.MeetsLimits(1e-6))

	for _, mix := range sol.Mixtures {
		require.Len(t, mix.Columns, 1)
		assert.Equal(t, core.KindStochastic, mix.Columns[0].Policy.Kind())
	}
}

func TestConstrainedMDP_SetLimits(t *testing.T) {
	inst := toyInstance(t, 1, 0.5)
	c, err := NewConstrainedMDP(newEnv(t), inst, rand.New(rand.NewSource(1)), nil)
	require.NoError(t, err)
	defer c.Dispose()

	limits := core.NewGrid2(1, 1)
	limits.Set(0, 0, 1)
	require.NoError(t, c.SetLimits(limits))
	sol, err := c.Run(context.Background())
	require.NoError(t, err)

	assert.InDelta(t, 5, sol.ExpectedReward(), 1e-6)
	assert.Equal(t, 1.0, c.Limits().At(0, 0))
	assert.Equal(t, 0.5, inst.Limit(0, 0), "caller instance is not modified")
}

func TestConstrainedMDP_MatchesColumnGeneration(t *testing.T) {
	if testing.Short() {
		t.Skip("dense occupancy LP")
	}
	gen := instance.DefaultGenParams()
	gen.Seed = 7
	gen.States = 3
	gen.Horizon = 5
	f, err := instance.Generate(gen)
	require.NoError(t, err)
	inst, err := f.Instance()
	require.NoError(t, err)

	c, err := NewConstrainedMDP(newEnv(t), inst, rand.New(rand.NewSource(1)), nil)
	require.NoError(t, err)
	defer c.Dispose()
	_, err = c.Run(context.Background())
	require.NoError(t, err)

	cg, err := NewMDPColumnGeneration(newEnv(t), inst, testOptions(), rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	_, err = cg.Run(context.Background())
	require.NoError(t, err)

	// mixtures of deterministic policies span the occupancy polytope
	assert.InDelta(t, c.Objective(), cg.Master().Objective(), scaleTolerance(c.Objective(), c.Objective()))
}

func TestConstrainedMDP_InstantaneousToy(t *testing.T) {
	limits := make([]float64, instance.ToyHorizon)
	for i := range limits {
		limits[i] = 0.5
	}
	inst, err := instance.ToyInstantaneousInstance(limits)
	require.NoError(t, err)

	c, err := NewConstrainedMDP(newEnv(t), inst, rand.New(rand.NewSource(1)), nil)
	require.NoError(t, err)
	defer c.Dispose()
	sol, err := c.Run(context.Background())
	require.NoError(t, err)

	perEpoch := sol.ExpectedCost().PerEpoch
	for tt := range limits {
		assert.LessOrEqual(t, perEpoch.At(0, tt), 0.5+1e-6, "epoch %d", tt)
	}
	assert.Greater(t, sol.ExpectedReward(), 0.0)
}

func TestConstrainedMDP_Infeasible(t *testing.T) {
	c, err := NewConstrainedMDP(newEnv(t), toyInstance(t, 1, -1), rand.New(rand.NewSource(1)), nil)
	require.NoError(t, err)
	defer c.Dispose()
	_, err = c.Run(context.Background())
	assert.ErrorIs(t, err, core.ErrInfeasible)
}
