package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/elektrokombinacija/cgcp-planner/internal/algo"
	"github.com/elektrokombinacija/cgcp-planner/internal/config"
	"github.com/elektrokombinacija/cgcp-planner/internal/core"
	"github.com/elektrokombinacija/cgcp-planner/internal/instance"
	"github.com/elektrokombinacija/cgcp-planner/internal/sim"
	"github.com/elektrokombinacija/cgcp-planner/internal/store"
)

// planned is a solved instance with what is needed to simulate it.
type planned struct {
	algorithm string
	runID     string
	elapsed   time.Duration
	sol       *core.Solution
	mdp       *core.Instance
	pomdp     *core.POMDPInstance
}

// plan solves f with the named algorithm. An empty name picks cgcp for
// partially observable files and colgen otherwise.
func plan(ctx context.Context, f *instance.File, algorithm string) (*planned, error) {
	partial := f.PartiallyObservable()
	if algorithm == "" {
		algorithm = "colgen"
		if partial {
			algorithm = "cgcp"
		}
	}
	p := &planned{algorithm: algorithm}

	var (
		mdp   *core.Instance
		pomdp *core.POMDPInstance
		err   error
	)
	if slices.Contains(config.POMDPAlgorithms, algorithm) {
		if pomdp, err = f.POMDPInstance(); err != nil {
			return nil, err
		}
	} else if mdp, err = f.Instance(); err != nil {
		return nil, err
	}

	env, err := cfg.Env(logger)
	if err != nil {
		return nil, err
	}

	var (
		runLog    *store.RunLog
		recorder  *store.Recorder
		observers []algo.Observer
	)
	if cfg.Store.Path != "" {
		if runLog, err = store.Open(cfg.Store.Path); err != nil {
			return nil, err
		}
		defer runLog.Close()
		if p.runID, err = runLog.StartRun(ctx, algorithm, f.Name); err != nil {
			return nil, err
		}
		recorder = store.NewRecorder(runLog, p.runID, logger)
		observers = append(observers, recorder)
	}

	start := time.Now()
	if pomdp != nil {
		p.pomdp = pomdp
		var s algo.POMDPSolver
		if s, err = cfg.POMDPSolver(algorithm, env, logger, observers...); err != nil {
			return nil, err
		}
		p.sol, err = s.SolvePOMDP(ctx, pomdp)
	} else {
		p.mdp = mdp
		var s algo.Solver
		if s, err = cfg.Solver(algorithm, env, logger, observers...); err != nil {
			return nil, err
		}
		p.sol, err = s.Solve(ctx, mdp)
	}
	p.elapsed = time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("%s on %q: %w", algorithm, f.Name, err)
	}

	// planners without a decomposition loop never report a finish
	if recorder != nil && !recorder.Finished() {
		obj := p.sol.ExpectedReward()
		sum := algo.RunSummary{RunID: p.runID, Algorithm: algorithm, Objective: obj, UpperBound: obj, Elapsed: p.elapsed}
		if err := runLog.FinishRun(ctx, sum, p.sol); err != nil {
			return nil, err
		}
	}
	if recorder != nil && recorder.Err() != nil {
		logger.Warn("run log incomplete", slog.String("run", p.runID), slog.Any("error", recorder.Err()))
	}
	return p, nil
}

// simulate runs the configured Monte-Carlo evaluation of p.
func (p *planned) simulate(ctx context.Context, episodes int) (*sim.SimulationMetrics, error) {
	simCfg := cfg.SimulationConfig()
	if episodes > 0 {
		simCfg.Episodes = episodes
	}
	s := sim.NewSimulator(simCfg, logger)
	if p.pomdp != nil {
		return s.RunPOMDP(ctx, p.pomdp.Agents, p.sol)
	}
	return s.RunMDP(ctx, p.mdp.Agents, p.sol)
}

func printSolution(w io.Writer, p *planned) {
	sol := p.sol
	fmt.Fprintf(w, "algorithm:       %s\n", p.algorithm)
	if p.runID != "" {
		fmt.Fprintf(w, "run:             %s\n", p.runID)
	}
	fmt.Fprintf(w, "elapsed:         %s\n", p.elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "expected reward: %.6f\n", sol.ExpectedReward())
	cost := sol.ExpectedCost()
	for k, c := range cost.Total {
		fmt.Fprintf(w, "resource %d:      total %.6f", k, c)
		if sol.Constraints.Type == core.Budget {
			fmt.Fprintf(w, " (limit %g)", sol.Constraints.Limit(k, 0))
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "meets limits:    %t\n", sol.MeetsLimits(1e-6))
	for i, mix := range sol.Mixtures {
		fmt.Fprintf(w, "agent %d: %d column(s), reward %.4f\n", i, len(mix.Columns), sol.AgentExpectedReward(i))
		for j, col := range mix.Columns {
			fmt.Fprintf(w, "  %.4f  %-13s reward %.4f cost %v\n",
				mix.Weights[j], col.Policy.Kind(), col.ExpectedReward, col.ExpectedCost.Total)
		}
	}
}

func printMetrics(w io.Writer, m *sim.SimulationMetrics) {
	fmt.Fprintf(w, "episodes:        %d\n", m.Episodes)
	fmt.Fprintf(w, "mean reward:     %.6f (std %.6f)\n", m.MeanReward, m.RewardStdDev)
	for k := range m.MeanCost {
		fmt.Fprintf(w, "resource %d:      mean %.6f, violation probability %.4f\n", k, m.MeanCost[k], m.ViolationProb[k])
	}
}
