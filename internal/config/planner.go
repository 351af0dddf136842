package config

import (
	"fmt"
	"log/slog"

	"github.com/elektrokombinacija/cgcp-planner/internal/algo"
	"github.com/elektrokombinacija/cgcp-planner/internal/lp"
	"github.com/elektrokombinacija/cgcp-planner/internal/sim"
)

// Algorithms lists the fully observable planners by name.
var Algorithms = []string{"colgen", "cmdp", "relaxed", "relaxed-exact"}

// POMDPAlgorithms lists the partially observable planners by name.
var POMDPAlgorithms = []string{"cgcp", "calp"}

// Env opens the configured LP backend.
func (c Config) Env(logger *slog.Logger) (*lp.Env, error) {
	return lp.NewEnv(c.LP.Backend,
		lp.WithLogger(logger),
		lp.WithTolerance(c.LP.Tolerance),
		lp.WithInfinite(c.LP.Infinite))
}

// Options returns the decomposition loop options.
func (c Config) Options(logger *slog.Logger, observers ...algo.Observer) algo.Options {
	d := c.Decomposition
	seed, _ := algo.ParseSeedStrategy(d.Seed)
	return algo.Options{
		DualTolerance:         d.DualTolerance,
		TimeLimit:             d.TimeLimit,
		UseRuntimeIncrease:    d.UseRuntimeIncrease,
		RuntimeIncrease:       d.RuntimeIncrease,
		MinimumIncreaseRounds: d.MinimumIncreaseRounds,
		Seed:                  seed,
		NoConsumptionAction:   d.NoConsumptionAction,
		SeedMultiplier:        d.SeedMultiplier,
		Logger:                logger,
		Observers:             observers,
	}
}

// SimulationConfig returns the Monte-Carlo settings.
func (c Config) SimulationConfig() sim.SimulationConfig {
	return sim.SimulationConfig{
		Episodes:  c.Simulation.Episodes,
		Batches:   c.Simulation.Batches,
		Seed:      c.Simulation.Seed,
		Tolerance: c.Simulation.Tolerance,
	}
}

// RelaxationOptions returns the chance-constraint settings.
func (c Config) RelaxationOptions() algo.RelaxationOptions {
	simCfg := c.SimulationConfig()
	simCfg.Episodes = c.Relaxation.Episodes
	return algo.RelaxationOptions{
		Alpha:                c.Relaxation.Alpha,
		Beta:                 c.Relaxation.Beta,
		ConvergenceTolerance: c.Relaxation.ConvergenceTolerance,
		TimeLimit:            c.Relaxation.TimeLimit,
		Simulation:           simCfg,
	}
}

// Solver builds the named fully observable planner.
func (c Config) Solver(name string, env *lp.Env, logger *slog.Logger, observers ...algo.Observer) (algo.Solver, error) {
	opts := c.Options(logger, observers...)
	seed := c.Decomposition.RandomSeed
	switch name {
	case "colgen":
		return algo.NewColGen(env, opts, seed), nil
	case "cmdp":
		return &algo.CMDP{Env: env, Seed: seed, Logger: logger}, nil
	case "relaxed", "relaxed-exact":
		return &algo.Relaxed{
			Env:        env,
			Options:    opts,
			Exact:      name == "relaxed-exact",
			Relaxation: c.RelaxationOptions(),
			Seed:       seed,
		}, nil
	}
	return nil, fmt.Errorf("unknown algorithm %q (want one of %v)", name, Algorithms)
}

// POMDPSolver builds the named partially observable planner.
func (c Config) POMDPSolver(name string, env *lp.Env, logger *slog.Logger, observers ...algo.Observer) (algo.POMDPSolver, error) {
	switch name {
	case "cgcp":
		s := algo.NewCGCP(env, c.Options(logger, observers...), c.Subproblem.TimeLimit, c.Decomposition.RandomSeed)
		s.MaxIterations = c.Subproblem.MaxIterations
		s.TightGap = c.Subproblem.TightGap
		return s, nil
	case "calp":
		return algo.NewCALP(env, c.CALPOptions(logger, observers...), c.Decomposition.RandomSeed), nil
	}
	return nil, fmt.Errorf("unknown POMDP algorithm %q (want one of %v)", name, POMDPAlgorithms)
}

// CALPOptions returns the approximate-LP planner settings.
func (c Config) CALPOptions(logger *slog.Logger, observers ...algo.Observer) algo.CALPOptions {
	return algo.CALPOptions{
		MaxNewBeliefs:   c.CALP.NumBeliefs,
		MaxIterations:   c.CALP.MaxIterations,
		TimeLimit:       c.CALP.TimeLimit,
		SearchTolerance: c.CALP.SearchTolerance,
		Logger:          logger,
		Observers:       observers,
	}
}
