// Package main provides a benchmark runner for the planners.
// Runs every planner on generated instances and collects metrics.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/elektrokombinacija/cgcp-planner/internal/algo"
	"github.com/elektrokombinacija/cgcp-planner/internal/config"
	"github.com/elektrokombinacija/cgcp-planner/internal/core"
	"github.com/elektrokombinacija/cgcp-planner/internal/instance"
	"github.com/elektrokombinacija/cgcp-planner/internal/sim"
)

// BenchmarkResult stores results from a single planner run.
type BenchmarkResult struct {
	Timestamp     string
	CommitHash    string
	GoVersion     string
	OS            string
	Arch          string
	Instance      string
	NumAgents     int
	Constraints   string
	Solver        string
	RuntimeMs     float64
	Success       bool
	Error         string
	Reward        float64
	UpperBound    float64
	Iterations    int
	MeetsLimits   bool
	SimReward     float64
	ViolationProb float64
}

// SolverMetrics holds per-planner aggregated metrics.
type SolverMetrics struct {
	Name           string
	TotalRuns      int
	Successes      int
	TotalRuntimeMs float64
	TotalReward    float64
	LimitsMet      int
	TotalViolation float64
}

var solvers = []string{"colgen", "cmdp", "relaxed", "cgcp", "calp"}

func getGitCommit() string {
	cmd := exec.Command("git", "rev-parse", "--short", "HEAD")
	output, err := cmd.Output()
	if err != nil {
		return "unknown"
	}
	return strings.TrimSpace(string(output))
}

// bounded is implemented by planners exposing their decomposition loop.
type bounded interface {
	Last() *algo.ColumnGeneration
}

// runSolver plans f with the named planner under timeout and simulates the result.
func runSolver(cfg config.Config, f *instance.File, solverName string, timeout time.Duration, logger *slog.Logger) *BenchmarkResult {
	result := &BenchmarkResult{
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		CommitHash: getGitCommit(),
		GoVersion:  runtime.Version(),
		OS:         runtime.GOOS,
		Arch:       runtime.GOARCH,
		Instance:   f.Name,
		NumAgents:  len(f.Agents),
		Solver:     solverName,
	}
	fail := func(err error) *BenchmarkResult {
		result.Error = err.Error()
		return result
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	env, err := cfg.Env(logger)
	if err != nil {
		return fail(err)
	}
	simulator := sim.NewSimulator(cfg.SimulationConfig(), logger)

	startTime := time.Now()
	var (
		sol     *core.Solution
		metrics *sim.SimulationMetrics
		last    bounded
	)
	if slices.Contains(config.POMDPAlgorithms, solverName) {
		inst, err := f.POMDPInstance()
		if err != nil {
			return fail(err)
		}
		result.Constraints = inst.Constraints.String()
		s, err := cfg.POMDPSolver(solverName, env, logger)
		if err != nil {
			return fail(err)
		}
		if b, ok := s.(bounded); ok {
			last = b
		}
		if sol, err = s.SolvePOMDP(ctx, inst); err != nil {
			return fail(err)
		}
		result.RuntimeMs = float64(time.Since(startTime).Microseconds()) / 1000.0
		metrics, err = simulator.RunPOMDP(ctx, inst.Agents, sol)
		if err != nil {
			return fail(err)
		}
	} else {
		inst, err := f.Instance()
		if err != nil {
			return fail(err)
		}
		result.Constraints = inst.Constraints.String()
		s, err := cfg.Solver(solverName, env, logger)
		if err != nil {
			return fail(err)
		}
		if b, ok := s.(bounded); ok {
			last = b
		}
		if sol, err = s.Solve(ctx, inst); err != nil {
			return fail(err)
		}
		result.RuntimeMs = float64(time.Since(startTime).Microseconds()) / 1000.0
		metrics, err = simulator.RunMDP(ctx, inst.Agents, sol)
		if err != nil {
			return fail(err)
		}
	}

	result.Success = true
	result.Reward = sol.ExpectedReward()
	result.UpperBound = result.Reward
	if last != nil && last.Last() != nil {
		result.UpperBound = last.Last().UpperBound()
		result.Iterations = last.Last().Iterations()
	}
	result.MeetsLimits = sol.MeetsLimits(1e-6)
	result.SimReward = metrics.MeanReward
	for _, p := range metrics.ViolationProb {
		result.ViolationProb = max(result.ViolationProb, p)
	}
	return result
}

func writeCSV(results []*BenchmarkResult, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"timestamp", "commit_hash", "go_version", "os", "arch",
		"instance", "num_agents", "constraints", "solver",
		"runtime_ms", "success", "error", "reward", "upper_bound", "iterations",
		"meets_limits", "sim_reward", "violation_prob",
	}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, r := range results {
		row := []string{
			r.Timestamp, r.CommitHash, r.GoVersion, r.OS, r.Arch,
			r.Instance, fmt.Sprintf("%d", r.NumAgents), r.Constraints, r.Solver,
			fmt.Sprintf("%.3f", r.RuntimeMs), fmt.Sprintf("%t", r.Success), r.Error,
			fmt.Sprintf("%.6f", r.Reward), fmt.Sprintf("%.6f", r.UpperBound), fmt.Sprintf("%d", r.Iterations),
			fmt.Sprintf("%t", r.MeetsLimits), fmt.Sprintf("%.6f", r.SimReward), fmt.Sprintf("%.4f", r.ViolationProb),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	return nil
}

func printSummary(results []*BenchmarkResult) {
	metrics := make(map[string]*SolverMetrics)
	for _, r := range results {
		m, ok := metrics[r.Solver]
		if !ok {
			m = &SolverMetrics{Name: r.Solver}
			metrics[r.Solver] = m
		}
		m.TotalRuns++
		if r.Success {
			m.Successes++
			m.TotalRuntimeMs += r.RuntimeMs
			m.TotalReward += r.Reward
			m.TotalViolation += r.ViolationProb
			if r.MeetsLimits {
				m.LimitsMet++
			}
		}
	}

	fmt.Println("\n=== BENCHMARK SUMMARY ===")
	fmt.Printf("%-20s %8s %8s %12s %12s %8s %10s\n",
		"Solver", "Runs", "Success", "Avg Time(ms)", "Avg Reward", "Limits%", "Avg Viol")
	fmt.Println(strings.Repeat("-", 84))

	var names []string
	for name := range metrics {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		m := metrics[name]
		avgTime, avgReward, limitsPct, avgViol := 0.0, 0.0, 0.0, 0.0
		if m.Successes > 0 {
			n := float64(m.Successes)
			avgTime = m.TotalRuntimeMs / n
			avgReward = m.TotalReward / n
			limitsPct = float64(m.LimitsMet) / n * 100
			avgViol = m.TotalViolation / n
		}
		fmt.Printf("%-20s %8d %8d %12.2f %12.4f %7.1f%% %10.4f\n",
			m.Name, m.TotalRuns, m.Successes, avgTime, avgReward, limitsPct, avgViol)
	}
}

func main() {
	inputDir := flag.String("input", "testdata", "Directory containing instance YAML files")
	outputFile := flag.String("output", "evidence/benchmark_results.csv", "Output CSV file")
	configPath := flag.String("config", "", "Planner config file (defaults when empty)")
	timeout := flag.Duration("timeout", 5*time.Minute, "Timeout per solver run")
	solverFilter := flag.String("solver", "", "Run only specific solvers (comma-separated)")
	agentFilter := flag.Int("agents", 0, "Run only instances with this many agents (0 = all)")
	verbose := flag.Bool("verbose", false, "Verbose output")

	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if *verbose {
		logger = cfg.Logging.Logger(os.Stderr)
	}

	outputDir := filepath.Dir(*outputFile)
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating output directory: %v\n", err)
		os.Exit(1)
	}

	files, err := filepath.Glob(filepath.Join(*inputDir, "*.yaml"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error finding instance files: %v\n", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintf(os.Stderr, "No instance files found in %s\n", *inputDir)
		fmt.Fprintf(os.Stderr, "Run gen_instances first: go run ./tools/gen_instances -scaling -output testdata\n")
		os.Exit(1)
	}

	activeSolvers := solvers
	if *solverFilter != "" {
		activeSolvers = strings.Split(*solverFilter, ",")
	}

	var results []*BenchmarkResult
	fmt.Printf("Running benchmarks: %d instances x %d solvers\n", len(files), len(activeSolvers))
	fmt.Printf("Timeout per run: %v\n\n", *timeout)

	for _, file := range files {
		f, err := instance.Load(file)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading %s: %v\n", file, err)
			continue
		}
		if *agentFilter > 0 && len(f.Agents) != *agentFilter {
			continue
		}

		for _, solver := range activeSolvers {
			// POMDP planners need observations, the others ignore them
			if slices.Contains(config.POMDPAlgorithms, solver) != f.PartiallyObservable() {
				continue
			}
			fmt.Printf("%s / %s ... ", f.Name, solver)
			result := runSolver(cfg, f, solver, *timeout, logger)
			results = append(results, result)
			switch {
			case result.Success:
				fmt.Printf("OK (%.2fms, reward=%.4f, bound=%.4f)\n", result.RuntimeMs, result.Reward, result.UpperBound)
			case strings.Contains(result.Error, context.DeadlineExceeded.Error()):
				fmt.Println("TIMEOUT")
			default:
				fmt.Printf("FAILED: %s\n", result.Error)
			}
		}
	}

	if err := writeCSV(results, *outputFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing results: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nResults written to: %s\n", *outputFile)

	printSummary(results)
}
