package store

import (
	"context"
	"math"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elektrokombinacija/cgcp-planner/internal/algo"
	"github.com/elektrokombinacija/cgcp-planner/internal/core"
	"github.com/elektrokombinacija/cgcp-planner/internal/instance"
	"github.com/elektrokombinacija/cgcp-planner/internal/lp"
)

func openLog(t *testing.T) *RunLog {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "runs", "log.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestRunLog_RoundTrip(t *testing.T) {
	ctx := context.Background()
	l := openLog(t)

	id, err := l.StartRun(ctx, "colgen", "toy")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	first := algo.IterationRecord{Iteration: 1, Objective: 0, UpperBound: math.Inf(1), Gap: math.Inf(1),
		Duals: []float64{math.Inf(1)}, Columns: 2, Elapsed: time.Millisecond}
	second := algo.IterationRecord{Iteration: 2, Objective: 2.5, UpperBound: 2.5, Gap: 0,
		DualDistance: 3, Duals: []float64{5}, Columns: 3, Elapsed: 2 * time.Millisecond}
	require.NoError(t, l.AddIteration(ctx, id, first))
	require.NoError(t, l.AddIteration(ctx, id, second))

	col := &core.Column{
		Policy:         &core.ConstantPolicy{A: 0},
		ExpectedReward: 1,
		ExpectedCost:   core.CostProfile{Total: []float64{0.5}},
	}
	sol, err := core.NewSolution(core.NewConstraints(core.Budget, 1, 10),
		[]core.Mixture{{Columns: []*core.Column{col}, Weights: []float64{1}}}, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	sum := algo.RunSummary{RunID: id, Algorithm: "colgen", Iterations: 2, Objective: 2.5, UpperBound: 2.5,
		Stop: algo.StopGap, Elapsed: 3 * time.Millisecond}
	require.NoError(t, l.FinishRun(ctx, sum, sol))

	runs, err := l.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	r := runs[0]
	assert.Equal(t, id, r.ID)
	assert.Equal(t, "toy", r.Instance)
	assert.True(t, r.Finished)
	assert.Equal(t, 2, r.Iterations)
	assert.Equal(t, "gap", r.Stop)
	assert.Equal(t, 3*time.Millisecond, r.Elapsed)

	recs, err := l.Iterations(ctx, id)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, math.MaxFloat64, recs[0].UpperBound)
	assert.Equal(t, []float64{math.MaxFloat64}, recs[0].Duals)
	assert.Equal(t, []float64{5}, recs[1].Duals)
	assert.Equal(t, 3, recs[1].Columns)
	assert.Equal(t, id, recs[1].RunID)

	mix, err := l.Mixture(ctx, id)
	require.NoError(t, err)
	require.Len(t, mix, 1)
	assert.Equal(t, []ColumnSummary{{Weight: 1, Policy: core.KindConstant.String(), Reward: 1, Cost: []float64{0.5}}}, mix[0])
}

func TestRunLog_UnknownRun(t *testing.T) {
	ctx := context.Background()
	l := openLog(t)

	_, err := l.Mixture(ctx, "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
	err = l.FinishRun(ctx, algo.RunSummary{RunID: "missing"}, nil)
	assert.ErrorIs(t, err, ErrRunNotFound)

	recs, err := l.Iterations(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestRunLog_UnfinishedHasNoMixture(t *testing.T) {
	ctx := context.Background()
	l := openLog(t)
	id, err := l.StartRun(ctx, "cmdp", "toy")
	require.NoError(t, err)

	mix, err := l.Mixture(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, mix)

	runs, err := l.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.False(t, runs[0].Finished)
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	_, err := Open("")
	assert.Error(t, err)
}

func TestRecorder_ColumnGeneration(t *testing.T) {
	ctx := context.Background()
	l := openLog(t)
	inst, err := instance.ToyInstance(1, 0.5)
	require.NoError(t, err)
	id, err := l.StartRun(ctx, "colgen", inst.Name)
	require.NoError(t, err)

	rec := NewRecorder(l, id, nil)
	opts := algo.DefaultOptions()
	opts.Observers = []algo.Observer{rec}
	env, err := lp.NewEnv("simplex")
	require.NoError(t, err)
	cg, err := algo.NewMDPColumnGeneration(env, inst, opts, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	_, err = cg.Run(ctx)
	require.NoError(t, err)
	require.NoError(t, rec.Err())
	assert.True(t, rec.Finished())

	recs, err := l.Iterations(ctx, id)
	require.NoError(t, err)
	assert.Len(t, recs, len(cg.History()))

	runs, err := l.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.True(t, runs[0].Finished)
	assert.InDelta(t, 2.5, runs[0].Objective, 1e-6)

	mix, err := l.Mixture(ctx, id)
	require.NoError(t, err)
	require.Len(t, mix, 1)
	total := 0.0
	for _, c := range mix[0] {
		total += c.Weight
	}
	assert.InDelta(t, 1, total, 1e-9)
}

func TestRecorder_KeepsFirstError(t *testing.T) {
	l := openLog(t)
	rec := NewRecorder(l, "missing", nil)
	rec.OnFinish(algo.RunSummary{}, nil)
	require.ErrorIs(t, rec.Err(), ErrRunNotFound)
	require.NoError(t, l.Close())
	rec.OnIteration(algo.IterationRecord{})
	assert.ErrorIs(t, rec.Err(), ErrRunNotFound)
}
