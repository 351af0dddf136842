// Package sim runs Monte-Carlo episodes of planned solutions.
//
// Episodes start from each agent's initial state (or a state drawn from the
// initial belief) and follow the sampled runtime mixture. Batches of episodes
// run concurrently, each with its own seeded random source and its own copy
// of the solution.
package sim

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/elektrokombinacija/cgcp-planner/internal/core"
)

// SimulationConfig configures the simulation parameters
type SimulationConfig struct {
	// Episodes is the total number of runs.
	Episodes int

	// Batches is the number of concurrently simulated groups of episodes.
	Batches int

	// Random seed for reproducibility; batch b uses Seed+b.
	Seed int64

	// Tolerance added to limits before counting a violation.
	Tolerance float64

	// KeepSamples stores the per-episode consumption of every limit period.
	KeepSamples bool
}

// DefaultConfig returns default simulation configuration
func DefaultConfig() SimulationConfig {
	return SimulationConfig{
		Episodes:  10000,
		Batches:   8,
		Seed:      42,
		Tolerance: 1e-9,
	}
}

// SimulationMetrics collects metrics during simulation
type SimulationMetrics struct {
	// Timing
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`

	Episodes     int     `json:"episodes"`
	MeanReward   float64 `json:"mean_reward"`
	RewardStdDev float64 `json:"reward_std_dev"`

	// MeanCost is the mean total consumption per resource.
	MeanCost []float64 `json:"mean_cost"`
	// MeanPerEpoch is the mean consumption per resource and epoch.
	MeanPerEpoch [][]float64 `json:"mean_per_epoch"`
	// ViolationProb is the fraction of episodes exceeding any limit of a resource.
	ViolationProb []float64 `json:"violation_prob"`

	// Consumption[k][p] holds one joint consumption per episode when
	// KeepSamples is set. p is 0 for budget limits and the epoch otherwise.
	Consumption [][][]float64 `json:"-"`
}

// Simulator evaluates solutions by sampling episodes.
type Simulator struct {
	config SimulationConfig
	logger *slog.Logger
}

// NewSimulator creates a new simulator
func NewSimulator(config SimulationConfig, logger *slog.Logger) *Simulator {
	if config.Batches <= 0 {
		config.Batches = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Simulator{config: config, logger: logger}
}

// Config returns the simulator configuration.
func (s *Simulator) Config() SimulationConfig { return s.config }

// episode is the outcome of one run.
type episode struct {
	reward   float64
	perEpoch core.Grid2 // [k][t], summed over agents
}

// stepFunc plays one episode with the given solution copy.
type stepFunc func(sol *core.Solution, rng *rand.Rand) episode

// RunMDP simulates sol on fully observable agents.
func (s *Simulator) RunMDP(ctx context.Context, agents []*core.AgentModel, sol *core.Solution) (*SimulationMetrics, error) {
	if len(agents) != sol.NumAgents() {
		return nil, fmt.Errorf("sim: %d agents, solution has %d", len(agents), sol.NumAgents())
	}
	K, T := agents[0].NumResources, agents[0].Horizon
	play := func(sol *core.Solution, rng *rand.Rand) episode {
		ep := episode{perEpoch: core.NewGrid2(K, T)}
		sol.Reset()
		state := make([]int, len(agents))
		obs := make([]core.Observation, len(agents))
		for i, m := range agents {
			state[i] = m.InitialState
		}
		for t := 0; t < T; t++ {
			for i := range agents {
				obs[i] = core.Observation{State: state[i]}
			}
			actions := sol.Actions(t, obs)
			for i, m := range agents {
				ep.reward += m.Reward(t, state[i], actions[i])
				for k := 0; k < K; k++ {
					ep.perEpoch.Add(k, t, m.Cost(k, t, state[i], actions[i]))
				}
				state[i] = nextState(m, t, state[i], actions[i], rng)
			}
			sol.Update(actions, state)
		}
		return ep
	}
	return s.run(ctx, sol, K, T, play)
}

// RunPOMDP simulates sol on partially observable agents. Policies see the
// filtered belief, never the hidden state.
func (s *Simulator) RunPOMDP(ctx context.Context, agents []*core.POMDPModel, sol *core.Solution) (*SimulationMetrics, error) {
	if len(agents) != sol.NumAgents() {
		return nil, fmt.Errorf("sim: %d agents, solution has %d", len(agents), sol.NumAgents())
	}
	K, T := agents[0].NumResources, agents[0].Horizon
	play := func(sol *core.Solution, rng *rand.Rand) episode {
		ep := episode{perEpoch: core.NewGrid2(K, T)}
		sol.Reset()
		state := make([]int, len(agents))
		belief := make([][]float64, len(agents))
		observed := make([]int, len(agents))
		obs := make([]core.Observation, len(agents))
		for i, m := range agents {
			state[i] = core.SampleIndex(m.InitialBelief, rng)
			belief[i] = append([]float64(nil), m.InitialBelief...)
		}
		for t := 0; t < T; t++ {
			for i := range agents {
				obs[i] = core.Observation{State: -1, Belief: belief[i]}
			}
			actions := sol.Actions(t, obs)
			for i, m := range agents {
				a := actions[i]
				ep.reward += m.Reward(t, state[i], a)
				for k := 0; k < K; k++ {
					ep.perEpoch.Add(k, t, m.Cost(k, t, state[i], a))
				}
				state[i] = nextState(m.AgentModel, t, state[i], a, rng)
				probs := make([]float64, m.NumObservations)
				for o := range probs {
					probs[o] = m.Observation(a, state[i], o)
				}
				observed[i] = core.SampleIndex(probs, rng)
				if b := m.UpdateBeliefVector(belief[i], t, a, observed[i]); b != nil {
					belief[i] = b
				}
			}
			sol.Update(actions, observed)
		}
		return ep
	}
	return s.run(ctx, sol, K, T, play)
}

func nextState(m *core.AgentModel, t, s, a int, rng *rand.Rand) int {
	outs := m.Transitions(t, s, a)
	probs := make([]float64, len(outs))
	for j, o := range outs {
		probs[j] = o.Prob
	}
	return outs[core.SampleIndex(probs, rng)].State
}

func (s *Simulator) run(ctx context.Context, sol *core.Solution, K, T int, play stepFunc) (*SimulationMetrics, error) {
	start := time.Now()
	n, batches := s.config.Episodes, s.config.Batches
	if n <= 0 {
		return nil, fmt.Errorf("sim: need a positive episode count, got %d", n)
	}
	if batches > n {
		batches = n
	}

	results := make([][]episode, batches)
	g, ctx := errgroup.WithContext(ctx)
	for b := 0; b < batches; b++ {
		b := b
		size := n / batches
		if b < n%batches {
			size++
		}
		g.Go(func() error {
			rng := rand.New(rand.NewSource(s.config.Seed + int64(b)))
			local := sol.Clone(rng)
			eps := make([]episode, 0, size)
			for e := 0; e < size; e++ {
				if e%256 == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				eps = append(eps, play(local, rng))
			}
			results[b] = eps
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	metrics := s.summarize(sol.Constraints, results, K, T)
	metrics.StartTime, metrics.EndTime = start, time.Now()
	s.logger.Debug("simulation finished",
		slog.Int("episodes", metrics.Episodes),
		slog.Float64("mean_reward", metrics.MeanReward),
		slog.Any("violation_prob", metrics.ViolationProb),
		slog.Duration("elapsed", metrics.EndTime.Sub(start)))
	return metrics, nil
}

func (s *Simulator) summarize(cons core.Constraints, results [][]episode, K, T int) *SimulationMetrics {
	var rewards []float64
	for _, eps := range results {
		for _, ep := range eps {
			rewards = append(rewards, ep.reward)
		}
	}
	n := float64(len(rewards))
	m := &SimulationMetrics{
		Episodes:      len(rewards),
		MeanCost:      make([]float64, K),
		MeanPerEpoch:  make([][]float64, K),
		ViolationProb: make([]float64, K),
	}
	m.MeanReward, m.RewardStdDev = stat.MeanStdDev(rewards, nil)

	periods := cons.Periods()
	if s.config.KeepSamples {
		m.Consumption = make([][][]float64, K)
	}
	for k := 0; k < K; k++ {
		m.MeanPerEpoch[k] = make([]float64, T)
		if s.config.KeepSamples {
			m.Consumption[k] = make([][]float64, periods)
		}
		violations := 0
		for _, eps := range results {
			for _, ep := range eps {
				row := ep.perEpoch.Row(k)
				total := 0.0
				for t, c := range row {
					m.MeanPerEpoch[k][t] += c / n
					total += c
				}
				m.MeanCost[k] += total / n

				violated := false
				if cons.Type == core.Budget {
					violated = total > cons.Limit(k, 0)+s.config.Tolerance
					if s.config.KeepSamples {
						m.Consumption[k][0] = append(m.Consumption[k][0], total)
					}
				} else {
					for t, c := range row {
						violated = violated || c > cons.Limit(k, t)+s.config.Tolerance
						if s.config.KeepSamples {
							m.Consumption[k][t] = append(m.Consumption[k][t], c)
						}
					}
				}
				if violated {
					violations++
				}
			}
		}
		m.ViolationProb[k] = float64(violations) / n
	}
	return m
}

// ExportMetrics writes metrics to a JSON file
func ExportMetrics(m *SimulationMetrics, path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
