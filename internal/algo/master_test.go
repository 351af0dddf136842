package algo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elektrokombinacija/cgcp-planner/internal/core"
	"github.com/elektrokombinacija/cgcp-planner/internal/lp"
)

func newEnv(t *testing.T) *lp.Env {
	t.Helper()
	env, err := lp.NewEnv("simplex")
	require.NoError(t, err)
	return env
}

func budgetConstraints(limit float64) core.Constraints {
	cons := core.NewConstraints(core.Budget, 1, 10)
	cons.Limits.Set(0, 0, limit)
	return cons
}

func pricedColumn(t *testing.T, m *core.AgentModel, agent int, lambda float64) *core.Column {
	t.Helper()
	pc, err := NewMDPPricer([]*core.AgentModel{m}, nil).Price(context.Background(), 0, budgetMultipliers(lambda))
	require.NoError(t, err)
	pc.Column.Agent = agent
	return pc.Column
}

func TestMasterLP_ConvexityAndDuals(t *testing.T) {
	m := toyModel(t)
	master, err := NewMasterLP(newEnv(t), budgetConstraints(0.5), 1)
	require.NoError(t, err)
	defer master.Dispose()

	safe := pricedColumn(t, m, 0, 100)
	greedy := pricedColumn(t, m, 0, 0)
	require.Greater(t, greedy.ExpectedCost.Total[0], 0.5)

	require.NoError(t, master.AddColumns([]*core.Column{safe}))
	require.NoError(t, master.AddColumns([]*core.Column{greedy}))
	assert.Equal(t, 2, master.NumColumns())
	require.NoError(t, master.Solve(context.Background()))

	w := master.Distribution(0)
	require.Len(t, w, 2)
	assert.InDelta(t, 1, w[0]+w[1], 1e-9)
	for _, v := range w {
		assert.GreaterOrEqual(t, v, -1e-9)
		assert.LessOrEqual(t, v, 1+1e-9)
	}
	assert.InDelta(t, 2.5, master.Objective(), 1e-6)
	assert.InDelta(t, 0.5, master.RealizedCost().At(0, 0), 1e-6)

	d := master.Duals()
	assert.GreaterOrEqual(t, d.At(0, 0), 0.0)
	assert.InDelta(t, 5, d.At(0, 0), 1e-6)
}

func TestMasterLP_SetLimits(t *testing.T) {
	m := toyModel(t)
	master, err := NewMasterLP(newEnv(t), budgetConstraints(0.5), 1)
	require.NoError(t, err)
	require.NoError(t, master.AddColumns([]*core.Column{pricedColumn(t, m, 0, 100)}))
	require.NoError(t, master.AddColumns([]*core.Column{pricedColumn(t, m, 0, 0)}))

	limits := core.NewGrid2(1, 1)
	limits.Set(0, 0, 1)
	require.NoError(t, master.SetLimits(limits))
	require.NoError(t, master.Solve(context.Background()))
	assert.InDelta(t, 5, master.Objective(), 1e-6)
}

func TestMasterLP_SlackLimitHasZeroDual(t *testing.T) {
	m := toyModel(t)
	master, err := NewMasterLP(newEnv(t), budgetConstraints(1000), 1)
	require.NoError(t, err)
	greedy := pricedColumn(t, m, 0, 0)
	require.NoError(t, master.AddColumns([]*core.Column{greedy}))
	require.NoError(t, master.Solve(context.Background()))
	assert.InDelta(t, greedy.ExpectedReward, master.Objective(), 1e-6)
	assert.InDelta(t, 0, master.Duals().At(0, 0), 1e-9)
}

func TestMasterLP_Infeasible(t *testing.T) {
	m := toyModel(t)
	master, err := NewMasterLP(newEnv(t), budgetConstraints(0.5), 1)
	require.NoError(t, err)
	require.NoError(t, master.AddColumns([]*core.Column{pricedColumn(t, m, 0, 0)}))
	err = master.Solve(context.Background())
	assert.ErrorIs(t, err, ErrInfeasibleMaster)

	assert.Error(t, master.AddColumns(nil), "one column per agent")
}
