package algo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/elektrokombinacija/cgcp-planner/internal/core"
	"github.com/elektrokombinacija/cgcp-planner/internal/lp"
)

// DriverState is a state of the decomposition loop.
type DriverState int

const (
	StateInit DriverState = iota
	StateMasterSolve
	StateCheck
	StatePrice
	StateDone
)

func (s DriverState) String() string {
	return [...]string{"init", "master-solve", "check", "price", "done"}[s]
}

// StopReason says why the loop ended.
type StopReason int

const (
	StopNone StopReason = iota
	StopTimeLimit
	StopGap
	StopDualsStable
)

var stopReasons = [...]string{"none", "time-limit", "gap", "duals-stable"}

func (r StopReason) String() string {
	return stopReasons[r]
}

// ParseStopReason is the inverse of StopReason.String. Unknown names give StopNone.
func ParseStopReason(s string) StopReason {
	for i, name := range stopReasons {
		if name == s {
			return StopReason(i)
		}
	}
	return StopNone
}

// SeedStrategy selects the initial column per agent.
type SeedStrategy int

const (
	SeedMinCost       SeedStrategy = iota // price at a prohibitive multiplier
	SeedNoConsumption                     // always take Options.NoConsumptionAction
	SeedArtificial                        // zero-cost big-M column
)

func (s SeedStrategy) String() string {
	return [...]string{"min-cost", "no-consumption", "artificial"}[s]
}

// ParseSeedStrategy maps a name to a SeedStrategy.
func ParseSeedStrategy(name string) (SeedStrategy, bool) {
	for s := SeedMinCost; s <= SeedArtificial; s++ {
		if s.String() == name {
			return s, true
		}
	}
	return SeedMinCost, false
}

// Options tune the decomposition loop.
type Options struct {
	DualTolerance         float64
	TimeLimit             time.Duration
	UseRuntimeIncrease    bool
	RuntimeIncrease       time.Duration
	MinimumIncreaseRounds int
	Seed                  SeedStrategy
	NoConsumptionAction   int
	// SeedMultiplier prices min-cost seeds. Zero uses the LP environment's Infinite.
	SeedMultiplier float64

	Logger    *slog.Logger
	Observers []Observer
}

// DefaultOptions returns the loop defaults.
func DefaultOptions() Options {
	return Options{
		DualTolerance:         1e-6,
		TimeLimit:             time.Minute,
		RuntimeIncrease:       5 * time.Second,
		MinimumIncreaseRounds: 5,
		Seed:                  SeedMinCost,
	}
}

// IterationRecord is the loop state after a master solve.
type IterationRecord struct {
	RunID        string
	Iteration    int
	Objective    float64
	UpperBound   float64
	Gap          float64
	DualDistance float64
	Duals        []float64
	Columns      int
	Elapsed      time.Duration
}

// RunSummary describes a finished decomposition run.
type RunSummary struct {
	RunID      string
	Algorithm  string
	Iterations int
	Objective  float64
	UpperBound float64
	Stop       StopReason
	Elapsed    time.Duration
}

// Observer receives progress of the decomposition loop.
type Observer interface {
	OnIteration(rec IterationRecord)
	OnFinish(sum RunSummary, sol *core.Solution)
}

// ColumnGeneration is the decomposition loop shared by the MDP and POMDP planners.
type ColumnGeneration struct {
	name   string
	runID  string
	env    *lp.Env
	opts   Options
	pricer Pricer
	cons   core.Constraints
	rng    *rand.Rand
	logger *slog.Logger

	state      DriverState
	master     *MasterLP
	history    []IterationRecord
	upperBound float64
	stop       StopReason
	iterations int
}

// NewColumnGeneration creates a loop over pricer's agents. The constraints'
// limits are copied.
func NewColumnGeneration(name string, env *lp.Env, pricer Pricer, cons core.Constraints, opts Options, rng *rand.Rand) *ColumnGeneration {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cons.Limits = cons.Limits.Clone()
	return &ColumnGeneration{
		name:       name,
		env:        env,
		opts:       opts,
		pricer:     pricer,
		cons:       cons,
		rng:        rng,
		logger:     logger.With(slog.String("algorithm", name)),
		state:      StateInit,
		upperBound: math.Inf(1),
	}
}

// NewMDPColumnGeneration validates inst and builds a loop priced by value iteration.
func NewMDPColumnGeneration(env *lp.Env, inst *core.Instance, opts Options, rng *rand.Rand) (*ColumnGeneration, error) {
	if err := inst.Validate(); err != nil {
		return nil, err
	}
	return NewColumnGeneration("colgen", env, NewMDPPricer(inst.Agents, opts.Logger), inst.Constraints, opts, rng), nil
}

// NewPOMDPColumnGeneration validates inst and builds a loop priced by vi.
// Only budget constraints are supported.
func NewPOMDPColumnGeneration(env *lp.Env, inst *core.POMDPInstance, vi *PointBasedVI, opts Options, rng *rand.Rand) (*ColumnGeneration, error) {
	if err := inst.Validate(); err != nil {
		return nil, err
	}
	if inst.Type != core.Budget {
		return nil, core.Unsupported("cgcp", "%s constraints need a fully observable model", inst.Type)
	}
	return NewColumnGeneration("cgcp", env, NewPOMDPPricer(inst.Agents, vi, opts.Logger), inst.Constraints, opts, rng), nil
}

// SetRunID tags iteration records.
func (d *ColumnGeneration) SetRunID(id string) { d.runID = id }

// SetLimits changes the resource limits. A prepared master keeps its columns.
func (d *ColumnGeneration) SetLimits(limits core.Grid2) error {
	d.cons.Limits = limits.Clone()
	if d.master != nil {
		return d.master.SetLimits(limits)
	}
	return nil
}

// Limits returns the current resource limits.
func (d *ColumnGeneration) Limits() core.Grid2 { return d.cons.Limits }

// History returns the iteration records of the last run.
func (d *ColumnGeneration) History() []IterationRecord { return d.history }

// UpperBound returns the best Lagrangian upper bound of the last run.
func (d *ColumnGeneration) UpperBound() float64 { return d.upperBound }

// Stop returns why the last run ended.
func (d *ColumnGeneration) Stop() StopReason { return d.stop }

// Iterations returns the number of pricing rounds of the last run.
func (d *ColumnGeneration) Iterations() int { return d.iterations }

// Master returns the master program, nil before the first run.
func (d *ColumnGeneration) Master() *MasterLP { return d.master }

// Run executes the loop until a stopping condition holds and returns the
// randomized runtime solution. Later runs continue from the existing columns.
func (d *ColumnGeneration) Run(ctx context.Context) (*core.Solution, error) {
	ctx, span := tracer.Start(ctx, "colgen.Run",
		trace.WithAttributes(
			attribute.String("algorithm", d.name),
			attribute.Int("agents", d.pricer.NumAgents()),
			attribute.String("constraints", d.cons.String()),
		),
	)
	defer span.End()

	sol, err := d.run(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("iterations", d.iterations),
		attribute.String("stop", d.stop.String()),
	)
	span.SetStatus(codes.Ok, "")
	return sol, nil
}

func (d *ColumnGeneration) run(ctx context.Context) (*core.Solution, error) {
	start := time.Now()
	K, P := d.cons.NumResources, d.cons.Periods()
	unset := core.UniformMultipliers(K, P, math.Inf(1))
	oldLambda, lambda := unset, unset
	objective := math.Inf(-1)
	increases := 0
	solves := 0

	if d.master != nil {
		d.state = StateMasterSolve
	}
	d.history = nil
	d.upperBound = math.Inf(1)
	d.stop = StopNone
	d.iterations = 0

	for d.state != StateDone {
		switch d.state {
		case StateInit:
			if err := d.seed(ctx); err != nil {
				return nil, err
			}
			d.state = StateMasterSolve

		case StateMasterSolve:
			if err := d.solveMaster(ctx); err != nil {
				if solves == 0 && errors.Is(err, ErrInfeasibleMaster) {
					return nil, fmt.Errorf("%s: no feasible seed column: %w", d.name, err)
				}
				return nil, err
			}
			solves++
			oldLambda, lambda = lambda, d.master.Duals().Clone()
			if d.master.Objective() > objective {
				increases++
			}
			objective = d.master.Objective()
			d.state = StateCheck

		case StateCheck:
			elapsed := time.Since(start)
			obj := d.master.Objective()
			gap := d.upperBound - obj
			allowed := scaleTolerance(d.upperBound, obj)
			distance := lambda.Distance(oldLambda)
			d.record(IterationRecord{
				RunID:        d.runID,
				Iteration:    d.iterations,
				Objective:    obj,
				UpperBound:   d.upperBound,
				Gap:          gap,
				DualDistance: distance,
				Duals:        lambda.Values(),
				Columns:      d.master.NumColumns(),
				Elapsed:      elapsed,
			})
			if gap < -1e-3 {
				d.logger.Warn("negative optimality gap", slog.Float64("gap", gap))
			}

			switch {
			case elapsed > d.opts.TimeLimit:
				d.stop = StopTimeLimit
				d.state = StateDone
			case gap < allowed:
				d.stop = StopGap
				d.state = StateDone
			case d.iterations > 1 && distance < d.opts.DualTolerance:
				ext, ok := d.pricer.(RuntimeExtender)
				if d.opts.UseRuntimeIncrease && ok && increases > d.opts.MinimumIncreaseRounds {
					d.logger.Info("duals converged, extending subproblem runtime",
						slog.Duration("increase", d.opts.RuntimeIncrease))
					ext.IncreaseRuntime(d.opts.RuntimeIncrease)
					lambda = unset
					increases = 0
					d.state = StateMasterSolve
				} else {
					d.stop = StopDualsStable
					d.state = StateDone
				}
			default:
				d.state = StatePrice
			}

		case StatePrice:
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if err := d.price(ctx, lambda); err != nil {
				return nil, err
			}
			d.state = StateMasterSolve
		}
	}

	stopsTotal.WithLabelValues(d.name, d.stop.String()).Inc()
	sol, err := d.extract()
	if err != nil {
		return nil, err
	}
	sum := RunSummary{
		RunID:      d.runID,
		Algorithm:  d.name,
		Iterations: d.iterations,
		Objective:  d.master.Objective(),
		UpperBound: d.upperBound,
		Stop:       d.stop,
		Elapsed:    time.Since(start),
	}
	d.logger.Info("decomposition finished",
		slog.Int("iterations", sum.Iterations),
		slog.Float64("objective", sum.Objective),
		slog.Float64("upper_bound", sum.UpperBound),
		slog.String("stop", sum.Stop.String()),
		slog.Duration("elapsed", sum.Elapsed))
	for _, o := range d.opts.Observers {
		o.OnFinish(sum, sol)
	}
	// The loop can be resumed after a limit change.
	d.state = StateMasterSolve
	return sol, nil
}

func (d *ColumnGeneration) record(rec IterationRecord) {
	d.history = append(d.history, rec)
	iterationsTotal.WithLabelValues(d.name).Inc()
	if !math.IsInf(rec.Gap, 0) {
		boundGap.WithLabelValues(d.name).Set(rec.Gap)
	}
	d.logger.Info("decomposition iteration",
		slog.Int("iteration", rec.Iteration),
		slog.Float64("objective", rec.Objective),
		slog.Float64("upper_bound", rec.UpperBound),
		slog.Float64("gap", rec.Gap),
		slog.Float64("dual_distance", rec.DualDistance),
		slog.Int("columns", rec.Columns))
	for _, o := range d.opts.Observers {
		o.OnIteration(rec)
	}
}

func (d *ColumnGeneration) seed(ctx context.Context) error {
	master, err := NewMasterLP(d.env, d.cons, d.pricer.NumAgents())
	if err != nil {
		return err
	}
	cols := make([]*core.Column, d.pricer.NumAgents())
	bigM := d.artificialPenalty()
	for i := range cols {
		switch d.opts.Seed {
		case SeedArtificial:
			cols[i] = &core.Column{
				Agent:          i,
				Policy:         &core.ConstantPolicy{A: 0},
				ExpectedReward: -bigM,
				ExpectedCost:   core.NewCostProfile(d.cons.NumResources, d.cons.Horizon),
				Artificial:     true,
			}
		case SeedNoConsumption:
			col, err := d.pricer.Constant(i, d.opts.NoConsumptionAction)
			if err != nil {
				return err
			}
			cols[i] = col
		default:
			mult := d.opts.SeedMultiplier
			if mult == 0 {
				mult = d.env.Infinite
			}
			pc, err := d.pricer.Price(ctx, i, core.UniformMultipliers(d.cons.NumResources, d.cons.Periods(), mult))
			if err != nil {
				return fmt.Errorf("seed agent %d: %w", i, err)
			}
			cols[i] = pc.Column
		}
	}
	if err := master.AddColumns(cols); err != nil {
		return err
	}
	columnsTotal.WithLabelValues(d.name).Add(float64(len(cols)))
	d.master = master
	return nil
}

// artificialPenalty exceeds the reward range of every agent's policies. It
// is sized from the instance so the master stays well conditioned.
func (d *ColumnGeneration) artificialPenalty() float64 {
	m := 1.0
	for i := 0; i < d.pricer.NumAgents(); i++ {
		am := d.pricer.Model(i)
		m += float64(am.Horizon) * am.MaxAbsReward()
	}
	return m
}

func (d *ColumnGeneration) solveMaster(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "colgen.MasterSolve",
		trace.WithAttributes(attribute.Int("columns", d.master.NumColumns())))
	defer span.End()
	start := time.Now()
	err := d.master.Solve(ctx)
	masterSolveDuration.WithLabelValues(d.name).Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// price solves every agent's subproblem at lambda, one after another, and
// adds the columns. The upper bound is λ·limit plus the subproblem bounds.
func (d *ColumnGeneration) price(ctx context.Context, lambda core.Multipliers) error {
	ctx, span := tracer.Start(ctx, "colgen.Price",
		trace.WithAttributes(attribute.Int("iteration", d.iterations+1)))
	defer span.End()

	d.iterations++
	ub := lambda.Dot(d.cons.Limits)
	cols := make([]*core.Column, d.pricer.NumAgents())
	for i := range cols {
		start := time.Now()
		pc, err := d.pricer.Price(ctx, i, lambda)
		pricingDuration.WithLabelValues(d.pricer.Kind()).Observe(time.Since(start).Seconds())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("price agent %d: %w", i, err)
		}
		ub += pc.ValueUpperBound
		cols[i] = pc.Column
		d.logger.Debug("column priced",
			slog.Int("agent", i),
			slog.Float64("reward", pc.Column.ExpectedReward),
			slog.Float64("value_upper_bound", pc.ValueUpperBound))
	}
	d.upperBound = math.Min(d.upperBound, ub)
	if err := d.master.AddColumns(cols); err != nil {
		return err
	}
	columnsTotal.WithLabelValues(d.name).Add(float64(len(cols)))
	return nil
}

// extract builds the runtime mixture from the last master solution.
func (d *ColumnGeneration) extract() (*core.Solution, error) {
	mixtures := make([]core.Mixture, d.pricer.NumAgents())
	for i := range mixtures {
		dist := d.master.Distribution(i)
		cols := d.master.Columns(i)
		var mix core.Mixture
		for j, w := range dist {
			if cols[j].Artificial {
				if w > 1e-5 {
					return nil, fmt.Errorf("%w: agent %d still uses the artificial column (weight %g)", core.ErrInfeasible, i, w)
				}
				continue
			}
			if w > 1e-6 {
				mix.Columns = append(mix.Columns, cols[j])
				mix.Weights = append(mix.Weights, w)
			}
		}
		mixtures[i] = mix
	}
	return core.NewSolution(d.cons, mixtures, d.rng)
}
