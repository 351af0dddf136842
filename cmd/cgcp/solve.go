package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/elektrokombinacija/cgcp-planner/internal/config"
	"github.com/elektrokombinacija/cgcp-planner/internal/instance"
	"github.com/elektrokombinacija/cgcp-planner/internal/sim"
)

var (
	algorithm    string
	timeLimit    time.Duration
	episodes     int
	exportPath   string
	seedOverride string

	solveCmd = &cobra.Command{
		Use:   "solve [instance.yaml]",
		Short: "Plan an instance file and print the resulting mixture",
		Args:  cobra.ExactArgs(1),
		RunE:  runSolve,
	}

	simulateCmd = &cobra.Command{
		Use:   "simulate [instance.yaml]",
		Short: "Plan an instance file and evaluate the plan by Monte-Carlo simulation",
		Args:  cobra.ExactArgs(1),
		RunE:  runSimulate,
	}
)

func init() {
	for _, c := range []*cobra.Command{solveCmd, simulateCmd} {
		c.Flags().StringVarP(&algorithm, "algorithm", "a", "",
			fmt.Sprintf("planner: one of %v, or %v for partially observable files (default picks by observability)", config.Algorithms, config.POMDPAlgorithms))
		c.Flags().DurationVar(&timeLimit, "time-limit", 0, "override decomposition.time_limit")
		c.Flags().StringVar(&seedOverride, "seed-strategy", "", "override decomposition.seed")
	}
	simulateCmd.Flags().IntVarP(&episodes, "episodes", "n", 0, "override simulation.episodes")
	simulateCmd.Flags().StringVar(&exportPath, "export", "", "write simulation metrics as JSON to this file")
}

// applyOverrides folds the per-command flags into cfg.
func applyOverrides() error {
	if timeLimit > 0 {
		cfg.Decomposition.TimeLimit = timeLimit
	}
	if seedOverride != "" {
		cfg.Decomposition.Seed = seedOverride
	}
	return cfg.Validate()
}

func runSolve(cmd *cobra.Command, args []string) error {
	if err := applyOverrides(); err != nil {
		return err
	}
	f, err := instance.Load(args[0])
	if err != nil {
		return err
	}
	p, err := plan(cmd.Context(), f, algorithm)
	if err != nil {
		return err
	}
	printSolution(cmd.OutOrStdout(), p)
	return nil
}

func runSimulate(cmd *cobra.Command, args []string) error {
	if err := applyOverrides(); err != nil {
		return err
	}
	f, err := instance.Load(args[0])
	if err != nil {
		return err
	}
	p, err := plan(cmd.Context(), f, algorithm)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	printSolution(out, p)

	m, err := p.simulate(cmd.Context(), episodes)
	if err != nil {
		return err
	}
	fmt.Fprintln(out)
	printMetrics(out, m)
	if exportPath == "" {
		return nil
	}
	if err := sim.ExportMetrics(m, exportPath); err != nil {
		return err
	}
	fmt.Fprintf(out, "metrics written to %s\n", exportPath)
	return nil
}

// writeJSON prints v indented, for machine-readable listings.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
