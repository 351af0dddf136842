// Package main provides instance generation for planner benchmarks.
// Generates deterministic random instances with configurable parameters.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/elektrokombinacija/cgcp-planner/internal/instance"
)

// suite returns the scaling benchmark parameters: agent counts grow while
// the per-agent model stays fixed, so the master LP is what scales.
func suite(base instance.GenParams) []instance.GenParams {
	var out []instance.GenParams
	for _, n := range []int{2, 5, 10, 25, 50, 100} {
		p := base
		p.Agents = n
		out = append(out, p)
	}
	// a partially observable counterpart of the smallest sizes
	for _, n := range []int{2, 5} {
		p := base
		p.Agents = n
		p.Observations = 2
		p.ObsNoise = 0.1
		out = append(out, p)
	}
	return out
}

func main() {
	base := instance.DefaultGenParams()
	flag.Int64Var(&base.Seed, "seed", base.Seed, "Random seed for deterministic generation")
	flag.IntVar(&base.Agents, "agents", base.Agents, "Number of agents")
	flag.IntVar(&base.States, "states", base.States, "States per agent")
	flag.IntVar(&base.Actions, "actions", base.Actions, "Actions per agent (action 0 is free)")
	flag.IntVar(&base.Horizon, "horizon", base.Horizon, "Number of epochs")
	flag.IntVar(&base.Resources, "resources", base.Resources, "Number of shared resources")
	flag.StringVar(&base.Type, "type", base.Type, "Constraint type: budget or instantaneous")
	flag.Float64Var(&base.LimitFraction, "limit-fraction", base.LimitFraction, "Limit as a fraction of worst-case consumption")
	flag.IntVar(&base.Observations, "observations", 0, "Observations per agent (0 = fully observable)")
	flag.Float64Var(&base.ObsNoise, "obs-noise", 0.1, "Probability of a wrong observation")
	outputDir := flag.String("output", "testdata", "Output directory")
	scalingMode := flag.Bool("scaling", false, "Generate the scaling suite (2 to 100 agents, plus POMDP variants)")
	flag.Parse()

	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating output directory: %v\n", err)
		os.Exit(1)
	}

	params := []instance.GenParams{base}
	if *scalingMode {
		params = suite(base)
	}

	failed := false
	for _, p := range params {
		f, err := instance.Generate(p)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error generating instance: %v\n", err)
			failed = true
			continue
		}
		filename := filepath.Join(*outputDir, f.Name+".yaml")
		if err := f.Save(filename); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing instance %s: %v\n", filename, err)
			failed = true
			continue
		}
		kind := "MDP"
		if f.PartiallyObservable() {
			kind = "POMDP"
		}
		fmt.Printf("Generated: %s (%s, %d agents, %d states, horizon %d, %s limits)\n",
			filename, kind, p.Agents, p.States, p.Horizon, p.Type)
	}
	if failed {
		os.Exit(1)
	}
}
