package state

import (
	"sync"

	"github.com/elektrokombinacija/cgcp-planner/internal/algo"
	"github.com/elektrokombinacija/cgcp-planner/internal/core"
)

// RunState collects the progress of one planner run. The planner writes
// from its own goroutine while the UI reads every frame.
type RunState struct {
	mu sync.Mutex

	active bool

	records  []algo.IterationRecord
	summary  *algo.RunSummary
	solution *core.Solution
	err      error
}

// NewRunState creates an empty run.
func NewRunState() *RunState {
	return &RunState{}
}

// Start clears previous results and marks the run active.
func (r *RunState) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.active = true
	r.records = nil
	r.summary = nil
	r.solution = nil
	r.err = nil
}

// Add appends an iteration record.
func (r *RunState) Add(rec algo.IterationRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec.Duals = append([]float64(nil), rec.Duals...)
	r.records = append(r.records, rec)
}

// Finish stores the final summary and solution.
func (r *RunState) Finish(sum algo.RunSummary, sol *core.Solution) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.active = false
	r.summary = &sum
	r.solution = sol
}

// Fail ends the run with err.
func (r *RunState) Fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.active = false
	r.err = err
}

// Load replaces the run with recorded iterations, as read back from a run log.
func (r *RunState) Load(records []algo.IterationRecord, sum *algo.RunSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.active = false
	r.records = append([]algo.IterationRecord(nil), records...)
	r.summary = sum
	r.solution = nil
	r.err = nil
}

// Records returns a copy of the iteration records.
func (r *RunState) Records() []algo.IterationRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]algo.IterationRecord, len(r.records))
	copy(out, r.records)
	return out
}

// Len returns the number of recorded iterations.
func (r *RunState) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// Summary returns the final summary, nil while running.
func (r *RunState) Summary() *algo.RunSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.summary
}

// Solution returns the final solution, nil while running or for loaded runs.
func (r *RunState) Solution() *core.Solution {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.solution
}

// Err returns the error the run ended with.
func (r *RunState) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// IsActive reports whether the planner is still running.
func (r *RunState) IsActive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}
