package algo

import (
	"context"
	"log/slog"
	"time"

	"github.com/elektrokombinacija/cgcp-planner/internal/core"
)

// PricedColumn is a subproblem result: the new column and an upper bound on
// the agent's Lagrangian value at the multipliers it was priced at.
type PricedColumn struct {
	Column          *core.Column
	ValueUpperBound float64
}

// Pricer solves the per-agent subproblem of the decomposition.
type Pricer interface {
	NumAgents() int
	// Model returns the agent's underlying decision model.
	Model(agent int) *core.AgentModel
	// Price returns the best column for agent at multipliers lambda.
	Price(ctx context.Context, agent int, lambda core.Multipliers) (*PricedColumn, error)
	// Constant returns the column of always taking action a.
	Constant(agent, a int) (*core.Column, error)
	Kind() string
}

// RuntimeExtender is implemented by pricers with an internal time budget.
type RuntimeExtender interface {
	IncreaseRuntime(d time.Duration)
}

// MDPPricer prices fully observable agents with exact value iteration.
type MDPPricer struct {
	agents []*core.AgentModel
	vi     *ValueIteration
}

// NewMDPPricer creates a pricer over the given agents.
func NewMDPPricer(agents []*core.AgentModel, logger *slog.Logger) *MDPPricer {
	return &MDPPricer{agents: agents, vi: NewValueIteration(logger)}
}

func (p *MDPPricer) NumAgents() int { return len(p.agents) }
func (p *MDPPricer) Kind() string   { return "mdp" }

func (p *MDPPricer) Model(agent int) *core.AgentModel { return p.agents[agent] }

// Price runs value iteration; its Lagrangian value is exact.
func (p *MDPPricer) Price(ctx context.Context, agent int, lambda core.Multipliers) (*PricedColumn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sol := p.vi.Solve(p.agents[agent], lambda)
	return &PricedColumn{
		Column: &core.Column{
			Agent:          agent,
			Policy:         sol.Policy,
			ExpectedReward: sol.ExpectedReward,
			ExpectedCost:   sol.ExpectedCost,
		},
		ValueUpperBound: sol.Value,
	}, nil
}

// Constant evaluates the single-action policy a.
func (p *MDPPricer) Constant(agent, a int) (*core.Column, error) {
	m := p.agents[agent]
	if err := checkConstant(m, a); err != nil {
		return nil, err
	}
	r, c := EvaluateConstant(m, pointMass(m), a)
	return &core.Column{Agent: agent, Policy: &core.ConstantPolicy{A: a}, ExpectedReward: r, ExpectedCost: c}, nil
}

func checkConstant(m *core.AgentModel, a int) error {
	if a < 0 || a >= m.NumActions {
		return core.Unsupported("no-consumption seed", "action %d out of range", a)
	}
	for t := 0; t < m.Horizon; t++ {
		for s := 0; s < m.NumStates; s++ {
			ok := false
			for _, f := range m.Feasible(t, s) {
				ok = ok || f == a
			}
			if !ok {
				return core.Unsupported("no-consumption seed", "action %d infeasible at (t=%d, s=%d)", a, t, s)
			}
		}
	}
	return nil
}

// POMDPPricer prices partially observable agents with point-based value
// iteration and prices the compiled policy graph exactly.
type POMDPPricer struct {
	agents []*core.POMDPModel
	vi     *PointBasedVI
	logger *slog.Logger
}

// NewPOMDPPricer creates a pricer sharing one point-based solver across agents.
func NewPOMDPPricer(agents []*core.POMDPModel, vi *PointBasedVI, logger *slog.Logger) *POMDPPricer {
	if logger == nil {
		logger = slog.Default()
	}
	return &POMDPPricer{agents: agents, vi: vi, logger: logger}
}

func (p *POMDPPricer) NumAgents() int { return len(p.agents) }
func (p *POMDPPricer) Kind() string   { return "pomdp" }

func (p *POMDPPricer) Model(agent int) *core.AgentModel { return p.agents[agent].AgentModel }

// IncreaseRuntime extends the point-based solver budget.
func (p *POMDPPricer) IncreaseRuntime(d time.Duration) { p.vi.IncreaseRuntime(d) }

// Price solves the agent's POMDP at lambda and evaluates the resulting graph.
func (p *POMDPPricer) Price(ctx context.Context, agent int, lambda core.Multipliers) (*PricedColumn, error) {
	m := p.agents[agent]
	res, err := p.vi.Solve(ctx, m, lambda)
	if err != nil {
		return nil, err
	}
	graph := CompilePolicyGraph(m, res.Vectors)
	ev := EvaluatePolicyGraph(m, graph, lambda)
	p.logger.Debug("priced policy graph",
		slog.Int("agent", agent),
		slog.Int("nodes", graph.NumNodes()),
		slog.Int("beliefs", res.NumBeliefs),
		slog.Float64("graph_value", ev.Value),
		slog.Float64("lower", res.LowerBound),
		slog.Float64("upper", res.UpperBound))
	return &PricedColumn{
		Column: &core.Column{
			Agent:          agent,
			Policy:         graph,
			ExpectedReward: ev.Reward,
			ExpectedCost:   ev.Cost,
		},
		ValueUpperBound: res.UpperBound,
	}, nil
}

// Constant evaluates the single-action policy a from b0.
func (p *POMDPPricer) Constant(agent, a int) (*core.Column, error) {
	m := p.agents[agent]
	if err := checkConstant(m.AgentModel, a); err != nil {
		return nil, err
	}
	r, c := EvaluateConstant(m.AgentModel, m.InitialBelief, a)
	return &core.Column{Agent: agent, Policy: &core.ConstantPolicy{A: a}, ExpectedReward: r, ExpectedCost: c}, nil
}
