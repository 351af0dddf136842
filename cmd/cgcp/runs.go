package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/elektrokombinacija/cgcp-planner/internal/store"
)

var (
	runsJSON bool

	runsCmd = &cobra.Command{
		Use:   "runs",
		Short: "List planner runs recorded in the run log",
		Args:  cobra.NoArgs,
		RunE:  runListRuns,
	}
	runsShowCmd = &cobra.Command{
		Use:   "show [run-id]",
		Short: "Show the iterations and final mixture of one run",
		Args:  cobra.ExactArgs(1),
		RunE:  runShowRun,
	}
)

func init() {
	runsCmd.PersistentFlags().BoolVar(&runsJSON, "json", false, "print JSON instead of a table")
	runsCmd.AddCommand(runsShowCmd)
}

func openRunLog() (*store.RunLog, error) {
	if cfg.Store.Path == "" {
		return nil, errors.New("no run log configured, set store.path or --db")
	}
	return store.Open(cfg.Store.Path)
}

func runListRuns(cmd *cobra.Command, args []string) error {
	l, err := openRunLog()
	if err != nil {
		return err
	}
	defer l.Close()
	runs, err := l.Runs(cmd.Context())
	if err != nil {
		return err
	}
	if runsJSON {
		return writeJSON(cmd, runs)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tALGORITHM\tINSTANCE\tSTARTED\tITER\tOBJECTIVE\tSTOP\tELAPSED")
	for _, r := range runs {
		stop := r.Stop
		if !r.Finished {
			stop = "unfinished"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%.6f\t%s\t%s\n",
			r.ID, r.Algorithm, r.Instance, r.StartedAt.Format(time.DateTime),
			r.Iterations, r.Objective, stop, r.Elapsed.Round(time.Millisecond))
	}
	return tw.Flush()
}

func runShowRun(cmd *cobra.Command, args []string) error {
	l, err := openRunLog()
	if err != nil {
		return err
	}
	defer l.Close()
	ctx := cmd.Context()
	recs, err := l.Iterations(ctx, args[0])
	if err != nil {
		return err
	}
	mix, err := l.Mixture(ctx, args[0])
	if err != nil {
		return err
	}
	if runsJSON {
		return writeJSON(cmd, map[string]any{"iterations": recs, "mixture": mix})
	}

	out := cmd.OutOrStdout()
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ITER\tOBJECTIVE\tUPPER\tGAP\tDUAL DIST\tCOLUMNS\tDUALS")
	for _, r := range recs {
		fmt.Fprintf(tw, "%d\t%.6f\t%.6g\t%.6g\t%.6g\t%d\t%.4g\n",
			r.Iteration, r.Objective, r.UpperBound, r.Gap, r.DualDistance, r.Columns, r.Duals)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	for i, cols := range mix {
		fmt.Fprintf(out, "agent %d:\n", i)
		for _, c := range cols {
			fmt.Fprintf(out, "  %.4f  %-13s reward %.4f cost %v\n", c.Weight, c.Policy, c.Reward, c.Cost)
		}
	}
	return nil
}
