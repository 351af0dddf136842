package observer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elektrokombinacija/cgcp-planner/internal/algo"
	"github.com/elektrokombinacija/cgcp-planner/internal/vis/state"
)

func TestRunObserver_FeedsState(t *testing.T) {
	rs := state.NewRunState()
	rs.Start()
	redraws := 0
	o := NewRunObserver(rs, func() { redraws++ })

	o.OnIteration(algo.IterationRecord{Iteration: 0, Objective: 1})
	o.OnIteration(algo.IterationRecord{Iteration: 1, Objective: 2})
	assert.Equal(t, 2, rs.Len())
	assert.True(t, rs.IsActive())

	o.OnFinish(algo.RunSummary{Algorithm: "colgen", Iterations: 2}, nil)
	assert.False(t, rs.IsActive())
	require.NotNil(t, rs.Summary())
	assert.Equal(t, 2, rs.Summary().Iterations)
	assert.Equal(t, 3, redraws)
}

func TestRunObserver_NilInvalidate(t *testing.T) {
	rs := state.NewRunState()
	o := NewRunObserver(rs, nil)
	assert.NotPanics(t, func() { o.OnIteration(algo.IterationRecord{}) })
}
