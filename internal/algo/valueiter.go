package algo

import (
	"log/slog"

	"github.com/elektrokombinacija/cgcp-planner/internal/core"
)

// MDPSolution is a deterministic policy with its evaluation.
type MDPSolution struct {
	Policy         *core.DeterministicPolicy
	ExpectedReward float64
	ExpectedCost   core.CostProfile
	// Value is the Lagrangian value at the initial state, an exact upper
	// bound term for the decomposition.
	Value float64
}

// ValueIteration solves finite-horizon MDPs by backward induction on the
// Lagrangian reward R − Σ λ·C.
type ValueIteration struct {
	logger *slog.Logger
}

// NewValueIteration creates a solver. A nil logger uses slog.Default().
func NewValueIteration(logger *slog.Logger) *ValueIteration {
	if logger == nil {
		logger = slog.Default()
	}
	return &ValueIteration{logger: logger}
}

// Solve computes the policy maximizing the weighted value and evaluates its
// true reward and cost with a forward pass from the initial state.
func (vi *ValueIteration) Solve(m *core.AgentModel, lambda core.Multipliers) *MDPSolution {
	S, T, K := m.NumStates, m.Horizon, m.NumResources
	policy := core.NewDeterministicPolicy(T, S)

	value := make([]float64, S)
	reward := make([]float64, S)
	nextValue := make([]float64, S)
	nextReward := make([]float64, S)

	for t := T - 1; t >= 0; t-- {
		for s := 0; s < S; s++ {
			bestA := -1
			bestV, bestR := 0.0, 0.0
			for _, a := range m.Feasible(t, s) {
				r := m.Reward(t, s, a)
				v := r
				for k := 0; k < K; k++ {
					v -= lambda.Weight(k, t) * m.Cost(k, t, s, a)
				}
				for _, o := range m.Transitions(t, s, a) {
					v += o.Prob * nextValue[o.State]
					r += o.Prob * nextReward[o.State]
				}
				// Ties keep the first action encountered.
				if bestA < 0 || v > bestV {
					bestA, bestV, bestR = a, v, r
				}
			}
			policy.Set(t, s, bestA)
			value[s] = bestV
			reward[s] = bestR
		}
		value, nextValue = nextValue, value
		reward, nextReward = nextReward, reward
	}

	sol := &MDPSolution{
		Policy: policy,
		Value:  nextValue[m.InitialState],
	}
	sol.ExpectedReward, sol.ExpectedCost = EvaluateDeterministic(m, policy)
	vi.logger.Debug("value iteration done",
		slog.Float64("value", sol.Value),
		slog.Float64("reward", sol.ExpectedReward),
		slog.Float64("reward_to_go", nextReward[m.InitialState]))
	return sol
}

// EvaluateDeterministic propagates the state distribution forward under
// policy and accumulates expected reward and consumption. Per-epoch cost is
// summed over states.
func EvaluateDeterministic(m *core.AgentModel, policy *core.DeterministicPolicy) (float64, core.CostProfile) {
	return forwardPass(m, pointMass(m), func(t, s int) []actionProb {
		return []actionProb{{a: policy.At(t, s), p: 1}}
	})
}

// EvaluateConstant evaluates always taking action a from the initial distribution.
func EvaluateConstant(m *core.AgentModel, initial []float64, a int) (float64, core.CostProfile) {
	only := []actionProb{{a: a, p: 1}}
	return forwardPass(m, initial, func(t, s int) []actionProb { return only })
}

func pointMass(m *core.AgentModel) []float64 {
	d := make([]float64, m.NumStates)
	d[m.InitialState] = 1
	return d
}

type actionProb struct {
	a int
	p float64
}

func forwardPass(m *core.AgentModel, initial []float64, choose func(t, s int) []actionProb) (float64, core.CostProfile) {
	S, K := m.NumStates, m.NumResources
	cost := core.NewCostProfile(K, m.Horizon)
	dist := append([]float64(nil), initial...)
	total := 0.0
	for t := 0; t < m.Horizon; t++ {
		next := make([]float64, S)
		for s, p := range dist {
			if p <= 0 {
				continue
			}
			for _, ap := range choose(t, s) {
				w := p * ap.p
				if w <= 0 {
					continue
				}
				total += w * m.Reward(t, s, ap.a)
				for k := 0; k < K; k++ {
					c := w * m.Cost(k, t, s, ap.a)
					cost.Total[k] += c
					cost.PerEpoch.Add(k, t, c)
				}
				for _, o := range m.Transitions(t, s, ap.a) {
					next[o.State] += w * o.Prob
				}
			}
		}
		for s := range next {
			next[s] = clamp01(next[s])
		}
		dist = next
	}
	return total, cost
}

func clamp01(p float64) float64 {
	return min(max(p, 0), 1)
}
