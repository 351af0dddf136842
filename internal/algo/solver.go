// Package algo implements planners for constrained multi-agent MDPs and POMDPs.
package algo

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/elektrokombinacija/cgcp-planner/internal/core"
	"github.com/elektrokombinacija/cgcp-planner/internal/lp"
)

// Solver is the interface for fully observable planners.
type Solver interface {
	// Solve plans for inst and returns a runtime mixture.
	Solve(ctx context.Context, inst *core.Instance) (*core.Solution, error)

	// Name returns the algorithm name.
	Name() string
}

// POMDPSolver is the interface for partially observable planners.
type POMDPSolver interface {
	SolvePOMDP(ctx context.Context, inst *core.POMDPInstance) (*core.Solution, error)
	Name() string
}

// ColGen plans MDP instances by column generation over value-iteration policies.
type ColGen struct {
	Env     *lp.Env
	Options Options
	Seed    int64

	last *ColumnGeneration
}

// NewColGen creates a column generation planner.
func NewColGen(env *lp.Env, opts Options, seed int64) *ColGen {
	return &ColGen{Env: env, Options: opts, Seed: seed}
}

func (s *ColGen) Name() string { return "colgen" }

// Solve implements Solver.
func (s *ColGen) Solve(ctx context.Context, inst *core.Instance) (*core.Solution, error) {
	cg, err := NewMDPColumnGeneration(s.Env, inst, s.Options, rand.New(rand.NewSource(s.Seed)))
	if err != nil {
		return nil, err
	}
	s.last = cg
	return cg.Run(ctx)
}

// Last returns the loop of the most recent Solve, nil before.
func (s *ColGen) Last() *ColumnGeneration { return s.last }

// CGCP plans POMDP instances by column generation over policy graphs.
type CGCP struct {
	Env     *lp.Env
	Options Options
	// SubproblemTime bounds each point-based solve.
	SubproblemTime time.Duration
	// MaxIterations and TightGap override the point-based defaults when set.
	MaxIterations int
	TightGap      float64
	Seed          int64

	last *ColumnGeneration
}

// NewCGCP creates a POMDP column generation planner.
func NewCGCP(env *lp.Env, opts Options, subproblemTime time.Duration, seed int64) *CGCP {
	return &CGCP{Env: env, Options: opts, SubproblemTime: subproblemTime, Seed: seed}
}

func (s *CGCP) Name() string { return "cgcp" }

// SolvePOMDP implements POMDPSolver. Instantaneous constraints are unsupported.
func (s *CGCP) SolvePOMDP(ctx context.Context, inst *core.POMDPInstance) (*core.Solution, error) {
	rng := rand.New(rand.NewSource(s.Seed))
	vi := NewPointBasedVI(s.SubproblemTime, rng, s.Options.Logger)
	if s.MaxIterations > 0 {
		vi.MaxIterations = s.MaxIterations
	}
	if s.TightGap > 0 {
		vi.TightGap = s.TightGap
	}
	cg, err := NewPOMDPColumnGeneration(s.Env, inst, vi, s.Options, rng)
	if err != nil {
		return nil, err
	}
	s.last = cg
	return cg.Run(ctx)
}

// Last returns the loop of the most recent SolvePOMDP, nil before.
func (s *CGCP) Last() *ColumnGeneration { return s.last }

// CMDP plans MDP instances exactly with the joint occupancy LP.
type CMDP struct {
	Env    *lp.Env
	Seed   int64
	Logger *slog.Logger
}

func (s *CMDP) Name() string { return "cmdp" }

// Solve implements Solver.
func (s *CMDP) Solve(ctx context.Context, inst *core.Instance) (*core.Solution, error) {
	c, err := NewConstrainedMDP(s.Env, inst, rand.New(rand.NewSource(s.Seed)), s.Logger)
	if err != nil {
		return nil, err
	}
	defer c.Dispose()
	return c.Run(ctx)
}

// Relaxed plans MDP instances for chance constraints by wrapping an exact or
// decomposition planner in DynamicRelaxation.
type Relaxed struct {
	Env     *lp.Env
	Options Options
	// Exact selects the occupancy LP instead of column generation.
	Exact      bool
	Relaxation RelaxationOptions
	Seed       int64
}

func (s *Relaxed) Name() string { return "dynamic-relaxation" }

// Solve implements Solver.
func (s *Relaxed) Solve(ctx context.Context, inst *core.Instance) (*core.Solution, error) {
	rng := rand.New(rand.NewSource(s.Seed))
	var inner ReducedLimitSolver
	if s.Exact {
		c, err := NewConstrainedMDP(s.Env, inst, rng, s.Options.Logger)
		if err != nil {
			return nil, err
		}
		defer c.Dispose()
		inner = c
	} else {
		cg, err := NewMDPColumnGeneration(s.Env, inst, s.Options, rng)
		if err != nil {
			return nil, err
		}
		inner = cg
	}
	r, err := NewDynamicRelaxation(inner, inst.Agents, inst.Constraints, s.Relaxation, s.Options.Logger)
	if err != nil {
		return nil, err
	}
	return r.Run(ctx)
}
