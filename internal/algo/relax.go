package algo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/elektrokombinacija/cgcp-planner/internal/core"
	"github.com/elektrokombinacija/cgcp-planner/internal/sim"
)

// ReducedLimitSolver re-solves one instance under changing resource limits.
type ReducedLimitSolver interface {
	Limits() core.Grid2
	SetLimits(limits core.Grid2) error
	Run(ctx context.Context) (*core.Solution, error)
}

// RelaxationOptions tune DynamicRelaxation.
type RelaxationOptions struct {
	// Alpha is the tolerated probability of exceeding a limit.
	Alpha float64
	// Beta divides the slack recovered in one round.
	Beta                 float64
	ConvergenceTolerance float64
	TimeLimit            time.Duration
	Simulation           sim.SimulationConfig
}

// DefaultRelaxationOptions returns the relaxation defaults.
func DefaultRelaxationOptions() RelaxationOptions {
	cfg := sim.DefaultConfig()
	cfg.Episodes = 100000
	return RelaxationOptions{
		Alpha:                0.05,
		Beta:                 2,
		ConvergenceTolerance: 0.01,
		TimeLimit:            time.Minute,
		Simulation:           cfg,
	}
}

// DynamicRelaxation plans for chance constraints: it solves with limits
// reduced by a Hoeffding bound, then gives back slack while simulated
// violations stay below Alpha.
type DynamicRelaxation struct {
	solver ReducedLimitSolver
	agents []*core.AgentModel
	cons   core.Constraints
	opts   RelaxationOptions
	sim    *sim.Simulator
	logger *slog.Logger

	reductions core.Grid2
	rounds     int
}

// NewDynamicRelaxation wraps solver, which must be prepared on the same agents
// and constraints. Negative costs are not supported.
func NewDynamicRelaxation(solver ReducedLimitSolver, agents []*core.AgentModel, cons core.Constraints, opts RelaxationOptions, logger *slog.Logger) (*DynamicRelaxation, error) {
	for i, m := range agents {
		if !m.HasNonNegativeCosts() {
			return nil, core.Unsupported("dynamic-relaxation", "agent %d has negative costs", i)
		}
	}
	if opts.Alpha <= 0 || opts.Alpha >= 1 {
		return nil, fmt.Errorf("algo: relaxation alpha must be in (0,1), got %g", opts.Alpha)
	}
	if opts.Beta <= 0 {
		return nil, fmt.Errorf("algo: relaxation beta must be positive, got %g", opts.Beta)
	}
	if logger == nil {
		logger = slog.Default()
	}
	simCfg := opts.Simulation
	simCfg.KeepSamples = true
	cons.Limits = cons.Limits.Clone()
	return &DynamicRelaxation{
		solver: solver,
		agents: agents,
		cons:   cons,
		opts:   opts,
		sim:    sim.NewSimulator(simCfg, logger),
		logger: logger.With(slog.String("algorithm", "dynamic-relaxation")),
	}, nil
}

// Reductions returns the current limit reductions.
func (r *DynamicRelaxation) Reductions() core.Grid2 { return r.reductions }

// Rounds returns the number of solve rounds of the last run.
func (r *DynamicRelaxation) Rounds() int { return r.rounds }

// initialReductions applies Hoeffding's inequality to the worst-case
// consumption of every agent.
func (r *DynamicRelaxation) initialReductions() (core.Grid2, error) {
	K, P := r.cons.NumResources, r.cons.Periods()
	red := core.NewGrid2(K, P)
	logAlpha := math.Log(r.opts.Alpha)
	for k := 0; k < K; k++ {
		spread := 0.0
		for _, m := range r.agents {
			c := m.MaxCost(k)
			if r.cons.Type == core.Budget {
				c *= float64(r.cons.Horizon)
			}
			spread += c * c
		}
		for p := 0; p < P; p++ {
			red.Set(k, p, math.Sqrt(logAlpha*spread/-2))
			if r.cons.Limit(k, p)-red.At(k, p) < 0 {
				return red, fmt.Errorf("%w: reduction %g exceeds limit %g of resource %d, alpha too low",
					core.ErrInfeasible, red.At(k, p), r.cons.Limit(k, p), k)
			}
		}
	}
	return red, nil
}

// Run alternates solving under reduced limits and relaxing the reductions
// until the largest relative change drops below the tolerance.
func (r *DynamicRelaxation) Run(ctx context.Context) (*core.Solution, error) {
	ctx, span := tracer.Start(ctx, "relaxation.Run")
	defer span.End()

	start := time.Now()
	red, err := r.initialReductions()
	if err != nil {
		return nil, err
	}
	r.reductions = red
	r.rounds = 0

	var best *core.Solution
	for {
		r.rounds++
		reduced := r.cons.Limits.Clone()
		n0, n1 := reduced.Dims()
		for k := 0; k < n0; k++ {
			for p := 0; p < n1; p++ {
				reduced.Add(k, p, -red.At(k, p))
			}
		}
		if err := r.solver.SetLimits(reduced); err != nil {
			return nil, err
		}

		sol, err := r.solver.Run(ctx)
		var change float64
		switch {
		case err == nil:
			best = sol
			change, err = r.relax(ctx, sol, red)
			if err != nil {
				return nil, err
			}
		case errors.Is(err, core.ErrInfeasible) || errors.Is(err, ErrInfeasibleMaster):
			change = r.halve(red)
			r.logger.Warn("reduced limits infeasible, halving reductions",
				slog.Int("round", r.rounds), slog.Float64("change", change))
			if change == 0 {
				return nil, err
			}
		default:
			return nil, err
		}

		r.logger.Info("relaxation round",
			slog.Int("round", r.rounds),
			slog.Float64("max_change", change),
			slog.Any("reductions", red.Clone()))
		if best != nil && (change < r.opts.ConvergenceTolerance || time.Since(start) > r.opts.TimeLimit) {
			return best, nil
		}
		if best == nil && time.Since(start) > r.opts.TimeLimit {
			return nil, fmt.Errorf("%w: no feasible reduced limits within %s", core.ErrInfeasible, r.opts.TimeLimit)
		}
	}
}

func (r *DynamicRelaxation) halve(red core.Grid2) float64 {
	change := 0.0
	n0, n1 := red.Dims()
	for k := 0; k < n0; k++ {
		for p := 0; p < n1; p++ {
			d := red.At(k, p) / 2
			red.Set(k, p, d)
			if l := r.cons.Limit(k, p); l > 0 {
				change = math.Max(change, d/l)
			}
		}
	}
	return change
}

// relax simulates sol and moves each reduction toward the slack a normal
// consumption model allows. It returns the largest change relative to the limit.
func (r *DynamicRelaxation) relax(ctx context.Context, sol *core.Solution, red core.Grid2) (float64, error) {
	metrics, err := r.sim.RunMDP(ctx, r.agents, sol)
	if err != nil {
		return 0, err
	}
	n0, n1 := red.Dims()

	// nothing is relaxed while some period is already violated too often
	for k := 0; k < n0; k++ {
		for p := 0; p < n1; p++ {
			samples := metrics.Consumption[k][p]
			over := 0
			for _, c := range samples {
				if c > r.cons.Limit(k, p) {
					over++
				}
			}
			if float64(over) >= r.opts.Alpha*float64(len(samples)) {
				return 0, nil
			}
		}
	}

	change := 0.0
	for k := 0; k < n0; k++ {
		for p := 0; p < n1; p++ {
			if red.At(k, p) <= 0 {
				continue
			}
			limit := r.cons.Limit(k, p)
			mean, std := stat.MeanStdDev(metrics.Consumption[k][p], nil)
			slack := allowedMean(std, limit, r.opts.Alpha) - mean
			if slack <= 0 {
				continue
			}
			next := math.Max(0, red.At(k, p)-slack/r.opts.Beta)
			change = math.Max(change, (red.At(k, p)-next)/limit)
			red.Set(k, p, next)
		}
	}
	return change, nil
}

// allowedMean finds by bisection the largest mean consumption whose normal
// violation probability at limit stays within alpha.
func allowedMean(std, limit, alpha float64) float64 {
	lo, hi, mid := 0.0, limit, 0.0
	for math.Abs(hi-lo) > 0.01 {
		mid = (lo + hi) / 2
		if violationProb(mid, std, limit) > alpha {
			hi = mid
		} else {
			lo = mid
		}
	}
	return mid
}

func violationProb(mean, std, limit float64) float64 {
	if std <= 0 || math.IsNaN(std) {
		if mean > limit {
			return 1
		}
		return 0
	}
	return distuv.Normal{Mu: mean, Sigma: std}.Survival(limit)
}
