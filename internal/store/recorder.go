package store

import (
	"context"
	"log/slog"
	"math"

	"github.com/elektrokombinacija/cgcp-planner/internal/algo"
	"github.com/elektrokombinacija/cgcp-planner/internal/core"
)

// Recorder writes decomposition progress of one run to a RunLog.
// Write errors are logged and the first one is kept.
type Recorder struct {
	log      *RunLog
	runID    string
	logger   *slog.Logger
	err      error
	finished bool
}

var _ algo.Observer = (*Recorder)(nil)

// NewRecorder records into run runID of l.
func NewRecorder(l *RunLog, runID string, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{log: l, runID: runID, logger: logger}
}

// Err returns the first write error.
func (r *Recorder) Err() error { return r.err }

// Finished reports whether a loop has finished the run.
func (r *Recorder) Finished() bool { return r.finished }

func (r *Recorder) OnIteration(rec algo.IterationRecord) {
	r.keep(r.log.AddIteration(context.Background(), r.runID, rec))
}

func (r *Recorder) OnFinish(sum algo.RunSummary, sol *core.Solution) {
	sum.RunID = r.runID
	r.finished = true
	r.keep(r.log.FinishRun(context.Background(), sum, sol))
}

func (r *Recorder) keep(err error) {
	if err == nil {
		return
	}
	r.logger.Warn("run log write failed", slog.String("run", r.runID), slog.Any("error", err))
	if r.err == nil {
		r.err = err
	}
}

// clampInf stores infinities as ±MaxFloat64, which JSON can encode.
func clampInf(v float64) float64 {
	switch {
	case math.IsInf(v, 1):
		return math.MaxFloat64
	case math.IsInf(v, -1):
		return -math.MaxFloat64
	}
	return v
}

func finite(vs []float64) []float64 {
	out := make([]float64, len(vs))
	for i, v := range vs {
		out[i] = clampInf(v)
	}
	return out
}
