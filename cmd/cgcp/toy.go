package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/elektrokombinacija/cgcp-planner/internal/instance"
)

var (
	toyAgents     int
	toyBudget     float64
	toyEpochLimit float64
	toyFirstLimit float64
	toyHorizon    int
	toySave       string
	toySimulate   bool

	toyCmd = &cobra.Command{
		Use:   "toy [budget|instantaneous|pomdp|tiger]",
		Short: "Plan one of the built-in two-state scenarios",
		Long: `The toy agent earns 10 and consumes 2 in its busy state. Reward per unit of resource is therefore 5.
The tiger scenario shares --budget listens between its agents.`,
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"budget", "instantaneous", "pomdp", "tiger"},
		RunE:      runToy,
	}
)

func init() {
	f := toyCmd.Flags()
	f.IntVar(&toyAgents, "agents", 1, "number of toy agents (budget, pomdp and tiger)")
	f.IntVar(&toyHorizon, "horizon", 4, "horizon (tiger)")
	f.Float64Var(&toyBudget, "budget", 0.5, "shared budget over the horizon")
	f.Float64Var(&toyEpochLimit, "limit", 1, "per-epoch limit (instantaneous)")
	f.Float64Var(&toyFirstLimit, "first-limit", 0.2, "limit of epoch 0 (instantaneous)")
	f.StringVar(&toySave, "save", "", "also write the scenario as an instance file")
	f.BoolVar(&toySimulate, "simulate", false, "simulate the plan afterwards")
	f.StringVarP(&algorithm, "algorithm", "a", "", "planner (default picks by observability)")
}

func toyFile(kind string) (*instance.File, error) {
	switch kind {
	case "", "budget":
		inst, err := instance.ToyInstance(toyAgents, toyBudget)
		if err != nil {
			return nil, err
		}
		return instance.FromInstance(inst), nil
	case "instantaneous":
		limits := make([]float64, instance.ToyHorizon)
		for t := range limits {
			limits[t] = toyEpochLimit
		}
		limits[0] = toyFirstLimit
		inst, err := instance.ToyInstantaneousInstance(limits)
		if err != nil {
			return nil, err
		}
		return instance.FromInstance(inst), nil
	case "pomdp":
		inst, err := instance.ToyPOMDPInstance(toyAgents, toyBudget)
		if err != nil {
			return nil, err
		}
		return instance.FromPOMDPInstance(inst), nil
	case "tiger":
		inst, err := instance.ToyTigerInstance(toyAgents, toyHorizon, toyBudget)
		if err != nil {
			return nil, err
		}
		return instance.FromPOMDPInstance(inst), nil
	}
	return nil, fmt.Errorf("unknown toy scenario %q", kind)
}

func runToy(cmd *cobra.Command, args []string) error {
	kind := ""
	if len(args) == 1 {
		kind = args[0]
	}
	f, err := toyFile(kind)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if toySave != "" {
		if err := f.Save(toySave); err != nil {
			return err
		}
		fmt.Fprintf(out, "scenario written to %s\n", toySave)
	}

	p, err := plan(cmd.Context(), f, algorithm)
	if err != nil {
		return err
	}
	printSolution(out, p)
	if !toySimulate {
		return nil
	}
	m, err := p.simulate(cmd.Context(), 0)
	if err != nil {
		return err
	}
	fmt.Fprintln(out)
	printMetrics(out, m)
	return nil
}
