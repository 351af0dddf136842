// Command cgcpvis shows how column generation converges, live or from a run log.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gioui.org/app"
	"gioui.org/unit"
	"github.com/spf13/cobra"

	"github.com/elektrokombinacija/cgcp-planner/internal/algo"
	"github.com/elektrokombinacija/cgcp-planner/internal/config"
	"github.com/elektrokombinacija/cgcp-planner/internal/core"
	"github.com/elektrokombinacija/cgcp-planner/internal/instance"
	"github.com/elektrokombinacija/cgcp-planner/internal/store"
	"github.com/elektrokombinacija/cgcp-planner/internal/vis"
)

var (
	configPath   string
	instancePath string
	toyAgents    int
	toyBudget    float64
	algorithm    string
	dbPath       string
	runID        string

	rootCmd = &cobra.Command{
		Use:   "cgcpvis",
		Short: "Convergence viewer for the column generation planner",
		Long: `cgcpvis plots the master objective and the upper bound per iteration.
It plans an instance file (or the budget toy) live, or replays a run
recorded in the sqlite run log with --db and --run.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE:         run,
	}
)

func init() {
	f := rootCmd.Flags()
	f.StringVarP(&configPath, "config", "c", "", "YAML config file (defaults are used when empty)")
	f.StringVarP(&instancePath, "instance", "i", "", "instance file to plan (the budget toy when empty)")
	f.IntVar(&toyAgents, "agents", 10, "toy agents")
	f.Float64Var(&toyBudget, "budget", 100, "toy budget")
	f.StringVarP(&algorithm, "algorithm", "a", "", "start this planner right away")
	f.StringVar(&dbPath, "db", "", "sqlite run log to replay from")
	f.StringVar(&runID, "run", "", "run to replay, requires --db")
}

// plannerFor returns a vis.Planner for f and the algorithms it accepts.
func plannerFor(cfg config.Config, f *instance.File) (vis.Planner, []string, error) {
	logger := cfg.Logging.Logger(os.Stderr)
	env, err := cfg.Env(logger)
	if err != nil {
		return nil, nil, err
	}
	if f.PartiallyObservable() {
		inst, err := f.POMDPInstance()
		if err != nil {
			return nil, nil, err
		}
		return func(ctx context.Context, name string, obs algo.Observer) (*core.Solution, error) {
			s, err := cfg.POMDPSolver(name, env, logger, obs)
			if err != nil {
				return nil, err
			}
			return s.SolvePOMDP(ctx, inst)
		}, config.POMDPAlgorithms, nil
	}
	inst, err := f.Instance()
	if err != nil {
		return nil, nil, err
	}
	return func(ctx context.Context, name string, obs algo.Observer) (*core.Solution, error) {
		s, err := cfg.Solver(name, env, logger, obs)
		if err != nil {
			return nil, err
		}
		return s.Solve(ctx, inst)
	}, config.Algorithms, nil
}

func newApp(ctx context.Context, cfg config.Config) (*vis.App, error) {
	logger := cfg.Logging.Logger(os.Stderr)

	if runID != "" {
		if dbPath == "" {
			return nil, errors.New("--run requires --db")
		}
		l, err := store.Open(dbPath)
		if err != nil {
			return nil, err
		}
		defer l.Close()
		recs, err := l.Iterations(ctx, runID)
		if err != nil {
			return nil, err
		}
		runs, err := l.Runs(ctx)
		if err != nil {
			return nil, err
		}
		name := runID
		var sum *algo.RunSummary
		for _, r := range runs {
			if r.ID != runID {
				continue
			}
			name = fmt.Sprintf("%s (%s)", r.Instance, r.Algorithm)
			if r.Finished {
				sum = &algo.RunSummary{
					RunID: r.ID, Algorithm: r.Algorithm, Iterations: r.Iterations,
					Objective: r.Objective, UpperBound: r.UpperBound,
					Stop: algo.ParseStopReason(r.Stop), Elapsed: r.Elapsed,
				}
			}
		}
		a := vis.NewApp(name, nil, nil, logger)
		a.Load(recs, sum)
		return a, nil
	}

	var (
		f   *instance.File
		err error
	)
	if instancePath != "" {
		f, err = instance.Load(instancePath)
	} else {
		var inst *core.Instance
		if inst, err = instance.ToyInstance(toyAgents, toyBudget); err == nil {
			f = instance.FromInstance(inst)
		}
	}
	if err != nil {
		return nil, err
	}
	planner, algorithms, err := plannerFor(cfg, f)
	if err != nil {
		return nil, err
	}
	a := vis.NewApp(f.Name, algorithms, planner, logger)
	if algorithm != "" {
		a.Autostart(algorithm)
	}
	return a, nil
}

func run(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return err
		}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	application, err := newApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}

	go func() {
		window := new(app.Window)
		window.Option(
			app.Title("CGCP Convergence"),
			app.Size(unit.Dp(1200), unit.Dp(800)),
		)
		if err := application.Run(window); err != nil {
			fmt.Fprintln(os.Stderr, "cgcpvis:", err)
			os.Exit(1)
		}
		os.Exit(0)
	}()
	app.Main()
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "cgcpvis:", err)
		os.Exit(1)
	}
}
