// Package observer feeds planner progress into the visualization state.
package observer

import (
	"github.com/elektrokombinacija/cgcp-planner/internal/algo"
	"github.com/elektrokombinacija/cgcp-planner/internal/core"
	"github.com/elektrokombinacija/cgcp-planner/internal/vis/state"
)

// RunObserver adapts RunState to algo.Observer.
type RunObserver struct {
	state *state.RunState
	// invalidate asks the window for a redraw; may be nil.
	invalidate func()
}

var _ algo.Observer = (*RunObserver)(nil)

// NewRunObserver creates an observer backed by rs. invalidate is called
// after every update so a live run repaints.
func NewRunObserver(rs *state.RunState, invalidate func()) *RunObserver {
	return &RunObserver{state: rs, invalidate: invalidate}
}

// OnIteration is called after every pricing round.
func (o *RunObserver) OnIteration(rec algo.IterationRecord) {
	o.state.Add(rec)
	o.redraw()
}

// OnFinish is called once the decomposition loop stops.
func (o *RunObserver) OnFinish(sum algo.RunSummary, sol *core.Solution) {
	o.state.Finish(sum, sol)
	o.redraw()
}

func (o *RunObserver) redraw() {
	if o.invalidate != nil {
		o.invalidate()
	}
}
