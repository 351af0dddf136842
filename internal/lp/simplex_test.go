package lp

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEnv(t *testing.T) *Env {
	t.Helper()
	env, err := NewEnv("simplex")
	require.NoError(t, err)
	return env
}

func TestSimplex_MaximizeWithDuals(t *testing.T) {
	m := newEnv(t).NewModel()
	x, err := m.AddVar(0, 3, 3, Continuous)
	require.NoError(t, err)
	y, err := m.AddVar(0, math.Inf(1), 2, Continuous)
	require.NoError(t, err)

	c1, err := m.AddConstr(new(Expr).AddTerm(1, x).AddTerm(1, y), LessEqual, 4)
	require.NoError(t, err)
	c2, err := m.AddConstr(new(Expr).AddTerm(1, x).AddTerm(3, y), LessEqual, 9)
	require.NoError(t, err)

	require.NoError(t, m.Solve(context.Background()))
	assert.InDelta(t, 11, m.Objective(), 1e-6)
	assert.InDelta(t, 3, m.Value(x), 1e-6)
	assert.InDelta(t, 1, m.Value(y), 1e-6)

	d1, err := m.Dual(c1)
	require.NoError(t, err)
	d2, err := m.Dual(c2)
	require.NoError(t, err)
	assert.InDelta(t, 2, d1, 1e-6)
	assert.InDelta(t, 0, d2, 1e-6)
}

func TestSimplex_MinimizeGreaterEqual(t *testing.T) {
	m := newEnv(t).NewModel()
	m.SetMinimize(true)
	x, _ := m.AddVar(0, 10, 1, Continuous)
	y, _ := m.AddVar(0, 10, 1, Continuous)
	c, err := m.AddConstr(new(Expr).AddTerm(1, x).AddTerm(2, y), GreaterEqual, 4)
	require.NoError(t, err)

	require.NoError(t, m.Solve(context.Background()))
	assert.InDelta(t, 2, m.Objective(), 1e-6)
	assert.InDelta(t, 2, m.Value(y), 1e-6)

	d, err := m.Dual(c)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, d, 1e-6)
}

func TestSimplex_ColumnsAndRHS(t *testing.T) {
	m := newEnv(t).NewModel()
	capRow, err := m.AddConstr(new(Expr), LessEqual, 1)
	require.NoError(t, err)
	convex, err := m.AddConstr(new(Expr), Equal, 1)
	require.NoError(t, err)

	safe, err := m.AddColumn(0, 1, 0, Continuous, new(Column).AddTerm(1, convex))
	require.NoError(t, err)
	greedy, err := m.AddColumn(0, 1, 10, Continuous, new(Column).AddTerm(4, capRow).AddTerm(1, convex))
	require.NoError(t, err)

	require.NoError(t, m.Solve(context.Background()))
	assert.InDelta(t, 0.25, m.Value(greedy), 1e-6)
	assert.InDelta(t, 0.75, m.Value(safe), 1e-6)
	assert.InDelta(t, 2.5, m.Objective(), 1e-6)
	d, err := m.Dual(capRow)
	require.NoError(t, err)
	assert.InDelta(t, 2.5, d, 1e-6)

	require.NoError(t, m.SetRHS(capRow, 2))
	_, err = m.Dual(capRow)
	assert.ErrorIs(t, err, ErrNotSolved)
	require.NoError(t, m.Solve(context.Background()))
	assert.InDelta(t, 5, m.Objective(), 1e-6)
}

func TestSimplex_Infeasible(t *testing.T) {
	m := newEnv(t).NewModel()
	x, _ := m.AddVar(0, 1, 1, Continuous)
	_, err := m.AddConstr(new(Expr).AddTerm(1, x), GreaterEqual, 5)
	require.NoError(t, err)
	assert.ErrorIs(t, m.Solve(context.Background()), ErrInfeasible)

	empty := newEnv(t).NewModel()
	_, err = empty.AddConstr(new(Expr), LessEqual, -1)
	require.NoError(t, err)
	assert.ErrorIs(t, empty.Solve(context.Background()), ErrInfeasible)
}

func TestSimplex_Unsupported(t *testing.T) {
	m := newEnv(t).NewModel()
	_, err := m.AddVar(0, 1, 1, Integer)
	assert.ErrorIs(t, err, ErrIntegerUnsupported)
	_, err = m.AddVar(math.Inf(-1), 1, 1, Continuous)
	assert.ErrorIs(t, err, ErrInfiniteLowerBound)
	_, err = m.AddConstr(new(Expr).AddTerm(1, Var(7)), LessEqual, 1)
	assert.ErrorIs(t, err, ErrUnknownHandle)
}

func TestNewEnv_UnknownBackend(t *testing.T) {
	_, err := NewEnv("cplex")
	assert.ErrorIs(t, err, ErrUnknownBackend)
	assert.Contains(t, Backends(), "simplex")
}
