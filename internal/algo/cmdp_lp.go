package algo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/elektrokombinacija/cgcp-planner/internal/core"
	"github.com/elektrokombinacija/cgcp-planner/internal/lp"
)

// ConstrainedMDP solves a multi-agent instance exactly as one occupancy-measure
// LP. Variable x[i][t][s][a] is the probability that agent i is in s at t and
// takes a.
type ConstrainedMDP struct {
	inst   *core.Instance
	rng    *rand.Rand
	logger *slog.Logger

	model    lp.Model
	occ      [][][][]lp.Var // [i][t][s][j], j indexes Feasible(t,s)
	capacity [][]lp.Constr
}

// NewConstrainedMDP builds the occupancy LP of inst on env.
func NewConstrainedMDP(env *lp.Env, inst *core.Instance, rng *rand.Rand, logger *slog.Logger) (*ConstrainedMDP, error) {
	if err := inst.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &ConstrainedMDP{inst: inst, rng: rng, logger: logger, model: env.NewModel()}
	if err := c.build(); err != nil {
		c.model.Dispose()
		return nil, err
	}
	return c, nil
}

func (c *ConstrainedMDP) build() error {
	inst := c.inst
	K, T, P := inst.NumResources, inst.Horizon, inst.Periods()
	usage := make([][]*lp.Expr, K)
	for k := range usage {
		usage[k] = make([]*lp.Expr, P)
		for p := range usage[k] {
			usage[k][p] = new(lp.Expr)
		}
	}

	c.occ = make([][][][]lp.Var, len(inst.Agents))
	for i, m := range inst.Agents {
		S := m.NumStates
		c.occ[i] = make([][][]lp.Var, T)
		for t := 0; t < T; t++ {
			c.occ[i][t] = make([][]lp.Var, S)
			for s := 0; s < S; s++ {
				acts := m.Feasible(t, s)
				c.occ[i][t][s] = make([]lp.Var, len(acts))
				for j, a := range acts {
					v, err := c.model.AddVar(0, 1, m.Reward(t, s, a), lp.Continuous)
					if err != nil {
						return err
					}
					c.occ[i][t][s][j] = v
					for k := 0; k < K; k++ {
						if cost := m.Cost(k, t, s, a); cost != 0 {
							usage[k][c.period(t)].AddTerm(cost, v)
						}
					}
				}
			}
		}

		// flow conservation
		for t := 0; t < T; t++ {
			for s := 0; s < S; s++ {
				e := new(lp.Expr)
				for _, v := range c.occ[i][t][s] {
					e.AddTerm(1, v)
				}
				rhs := 0.0
				if t == 0 {
					if s == m.InitialState {
						rhs = 1
					}
				} else {
					for sp := 0; sp < S; sp++ {
						for j, a := range m.Feasible(t-1, sp) {
							for _, o := range m.Transitions(t-1, sp, a) {
								if o.State == s {
									e.AddTerm(-o.Prob, c.occ[i][t-1][sp][j])
								}
							}
						}
					}
				}
				if _, err := c.model.AddConstr(e, lp.Equal, rhs); err != nil {
					return fmt.Errorf("flow row (agent %d, t=%d, s=%d): %w", i, t, s, err)
				}
			}
		}
	}

	c.capacity = make([][]lp.Constr, K)
	for k := 0; k < K; k++ {
		c.capacity[k] = make([]lp.Constr, P)
		for p := 0; p < P; p++ {
			con, err := c.model.AddConstr(usage[k][p], lp.LessEqual, inst.Limit(k, p))
			if err != nil {
				return fmt.Errorf("capacity row (k=%d, p=%d): %w", k, p, err)
			}
			c.capacity[k][p] = con
		}
	}
	return nil
}

func (c *ConstrainedMDP) period(t int) int {
	if c.inst.Type == core.Instantaneous {
		return t
	}
	return 0
}

// Limits returns the current resource limits.
func (c *ConstrainedMDP) Limits() core.Grid2 { return c.inst.Limits }

// SetLimits changes the capacity right-hand sides.
func (c *ConstrainedMDP) SetLimits(limits core.Grid2) error {
	for k := range c.capacity {
		for p, con := range c.capacity[k] {
			if err := c.model.SetRHS(con, limits.At(k, p)); err != nil {
				return err
			}
		}
	}
	// keep the caller's instance untouched
	inst := *c.inst
	inst.Limits = limits.Clone()
	c.inst = &inst
	return nil
}

// Run solves the LP and returns one stochastic policy per agent.
func (c *ConstrainedMDP) Run(ctx context.Context) (*core.Solution, error) {
	ctx, span := tracer.Start(ctx, "cmdp.Run",
		trace.WithAttributes(
			attribute.Int("agents", len(c.inst.Agents)),
			attribute.Int("vars", c.model.NumVars()),
			attribute.String("constraints", c.inst.Constraints.String()),
		),
	)
	defer span.End()

	if err := c.model.Solve(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, lp.ErrInfeasible) {
			return nil, fmt.Errorf("%w: %v", core.ErrInfeasible, err)
		}
		return nil, err
	}

	mixtures := make([]core.Mixture, len(c.inst.Agents))
	for i, m := range c.inst.Agents {
		policy := c.policy(i, m)
		reward, cost := forwardPass(m, pointMass(m), func(t, s int) []actionProb {
			var out []actionProb
			for a, p := range policy.Probs.Row(t, s) {
				if p > 0 {
					out = append(out, actionProb{a: a, p: p})
				}
			}
			return out
		})
		mixtures[i] = core.Mixture{
			Columns: []*core.Column{{Agent: i, Policy: policy, ExpectedReward: reward, ExpectedCost: cost}},
			Weights: []float64{1},
		}
	}
	c.logger.Info("occupancy LP solved",
		slog.Float64("objective", c.model.Objective()),
		slog.Int("vars", c.model.NumVars()),
		slog.Int("constrs", c.model.NumConstrs()))
	span.SetStatus(codes.Ok, "")
	return core.NewSolution(c.inst.Constraints, mixtures, c.rng)
}

// Objective returns the LP optimum of the last Run.
func (c *ConstrainedMDP) Objective() float64 { return c.model.Objective() }

// Dispose releases the LP model.
func (c *ConstrainedMDP) Dispose() { c.model.Dispose() }

// policy normalizes occupancies into action probabilities. Unreachable
// states take their first feasible action.
func (c *ConstrainedMDP) policy(i int, m *core.AgentModel) *core.StochasticPolicy {
	T, S, A := m.Horizon, m.NumStates, m.NumActions
	probs := core.NewGrid3(T, S, A)
	for t := 0; t < T; t++ {
		for s := 0; s < S; s++ {
			acts := m.Feasible(t, s)
			sum := 0.0
			vals := make([]float64, len(acts))
			for j := range acts {
				vals[j] = clamp01(c.model.Value(c.occ[i][t][s][j]))
				sum += vals[j]
			}
			if sum <= core.ProbTolerance {
				probs.Set(t, s, acts[0], 1)
				continue
			}
			for j, a := range acts {
				probs.Set(t, s, a, vals[j]/sum)
			}
		}
	}
	return core.NewStochasticPolicy(probs, c.rng)
}
