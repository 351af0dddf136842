package algo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gonum.org/v1/gonum/floats"

	"github.com/elektrokombinacija/cgcp-planner/internal/core"
	"github.com/elektrokombinacija/cgcp-planner/internal/lp"
)

// CALPOptions tune the approximate-LP planner.
type CALPOptions struct {
	// MaxNewBeliefs caps the beliefs added per expansion round.
	MaxNewBeliefs int
	MaxIterations int
	TimeLimit     time.Duration
	// SearchTolerance is the smallest P(o | b, a) followed during expansion.
	SearchTolerance float64

	Logger    *slog.Logger
	Observers []Observer
}

// DefaultCALPOptions returns the planner defaults.
func DefaultCALPOptions() CALPOptions {
	return CALPOptions{
		MaxNewBeliefs:   20,
		MaxIterations:   25,
		TimeLimit:       time.Minute,
		SearchTolerance: 1e-6,
	}
}

const (
	calpCoefTolerance   = 1e-5 // smaller objective coefficients are dropped
	calpPolicyTolerance = 1e-5
	calpReachedFlow     = 1e-3 // nodes with less flow act uniformly
	calpSearchTolerance = 1e-3 // binary search stops this close to the limit
	calpSearchRounds    = 60
)

// CALP plans constrained POMDPs by solving the occupancy LP of a belief MDP
// over a finite belief set. Successor beliefs outside the set are split over
// set members by a nearest-interpolation LP. The set grows along the
// beliefs the current policy reaches until the approximate and exact
// rewards agree. The result is one stochastic controller per agent whose
// nodes are the belief points.
type CALP struct {
	Env     *lp.Env
	Options CALPOptions
	Seed    int64

	approx     float64
	iterations int
	stop       StopReason
}

// NewCALP creates an approximate-LP planner.
func NewCALP(env *lp.Env, opts CALPOptions, seed int64) *CALP {
	return &CALP{Env: env, Options: opts, Seed: seed}
}

func (c *CALP) Name() string { return "calp" }

// ApproximateReward returns the LP value of the last solve, the planner's
// estimate of the attainable reward.
func (c *CALP) ApproximateReward() float64 { return c.approx }

// Iterations returns the number of LP rounds of the last solve.
func (c *CALP) Iterations() int { return c.iterations }

// Stop returns why the last solve ended.
func (c *CALP) Stop() StopReason { return c.stop }

// calpAgent is one agent's belief set and approximate model.
type calpAgent struct {
	model  *core.POMDPModel
	points []*core.BeliefPoint
	weight core.Grid4 // [q][a][o][q'] interpolation of b^{a,o}
	trans  core.Grid3 // [q][a][q']
	reward core.Grid2 // [q][a]
	cost   core.Grid3 // [k][q][a]

	occ     [][][]lp.Var // [t][q][a]
	policy  core.Grid3   // [t][q][a]
	options [][]bool     // [q][a] used somewhere in the policy
}

// SolvePOMDP implements POMDPSolver. Only budget constraints over stationary
// models are supported.
func (c *CALP) SolvePOMDP(ctx context.Context, inst *core.POMDPInstance) (*core.Solution, error) {
	if err := inst.Validate(); err != nil {
		return nil, err
	}
	if inst.Type != core.Budget {
		return nil, core.Unsupported("calp", "%s constraints", inst.Type)
	}
	for i, m := range inst.Agents {
		if !m.Stationary() {
			return nil, core.Unsupported("calp", "agent %d has time-dependent tables", i)
		}
	}
	opts := c.Options
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("algorithm", c.Name()))

	ctx, span := tracer.Start(ctx, "calp.Solve",
		trace.WithAttributes(
			attribute.Int("agents", len(inst.Agents)),
			attribute.String("constraints", inst.Constraints.String()),
		),
	)
	defer span.End()

	sol, err := c.solve(ctx, inst, opts, logger)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("iterations", c.iterations), attribute.String("stop", c.stop.String()))
	span.SetStatus(codes.Ok, "")
	return sol, nil
}

func (c *CALP) solve(ctx context.Context, inst *core.POMDPInstance, opts CALPOptions, logger *slog.Logger) (*core.Solution, error) {
	start := time.Now()
	agents := make([]*calpAgent, len(inst.Agents))
	for i, m := range inst.Agents {
		// b0 must come first: the LP starts its flow in node 0
		b0 := core.NewBeliefPoint(append([]float64(nil), m.InitialBelief...), nil)
		points := []*core.BeliefPoint{b0}
		for s := 0; s < m.NumStates; s++ {
			points = append(points, core.CornerBelief(s, m.NumStates))
		}
		agents[i] = &calpAgent{model: m, points: points}
	}

	c.iterations = 0
	c.stop = StopNone
	var (
		model   lp.Model
		budget  []lp.Constr
		rewards []float64
		cost    []core.CostProfile
		exact   []float64
	)
	defer func() {
		if model != nil {
			model.Dispose()
		}
	}()
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, ag := range agents {
			if err := c.approximate(ctx, ag); err != nil {
				return nil, err
			}
		}
		if model != nil {
			model.Dispose()
			model = nil
		}
		var err error
		model, budget, err = c.buildLP(agents, inst.Constraints)
		if err != nil {
			return nil, err
		}
		if err := model.Solve(ctx); err != nil {
			if errors.Is(err, lp.ErrInfeasible) {
				return nil, fmt.Errorf("%w: calp: %v", core.ErrInfeasible, err)
			}
			return nil, err
		}
		c.approx = model.Objective()
		rewards, cost, exact = c.extract(model, agents, inst.Constraints)
		reward := floats.Sum(rewards)

		c.iterations++
		gap := c.approx - reward
		allowed := scaleTolerance(c.approx, reward)
		rec := IterationRecord{
			Iteration:  c.iterations,
			Objective:  reward,
			UpperBound: c.approx,
			Gap:        gap,
			Duals:      c.duals(model, budget),
			Columns:    numPoints(agents),
			Elapsed:    time.Since(start),
		}
		iterationsTotal.WithLabelValues(c.Name()).Inc()
		boundGap.WithLabelValues(c.Name()).Set(gap)
		logger.Info("approximate LP solved",
			slog.Int("iteration", c.iterations),
			slog.Float64("reward", reward),
			slog.Float64("approximate", c.approx),
			slog.Float64("gap", gap),
			slog.Float64("allowed", allowed),
			slog.Int("beliefs", rec.Columns))
		for _, o := range opts.Observers {
			o.OnIteration(rec)
		}

		if gap < allowed {
			c.stop = StopGap
			break
		}
		if time.Since(start) > opts.TimeLimit {
			c.stop = StopTimeLimit
			break
		}
		if c.iterations >= opts.MaxIterations {
			break
		}
		added := 0
		for _, ag := range agents {
			n, err := c.expand(ctx, ag, opts)
			if err != nil {
				return nil, err
			}
			added += n
		}
		if added == 0 {
			logger.Debug("belief set closed under the policy")
			c.stop = StopGap
			break
		}
	}

	if exceeds(exact, inst.Constraints) {
		logger.Info("exact cost exceeds the limit, tightening", slog.Any("cost", exact))
		var err error
		if rewards, cost, err = c.tighten(ctx, model, budget, agents, inst.Constraints, logger); err != nil {
			return nil, err
		}
	}
	reward := floats.Sum(rewards)
	stopsTotal.WithLabelValues(c.Name(), c.stop.String()).Inc()

	rng := rand.New(rand.NewSource(c.Seed))
	mixtures := make([]core.Mixture, len(agents))
	for i, ag := range agents {
		ctrl := core.NewStochasticController(ag.policy, ag.weight, 0, rng)
		mixtures[i] = core.Mixture{
			Columns: []*core.Column{{Agent: i, Policy: ctrl, ExpectedReward: rewards[i], ExpectedCost: cost[i]}},
			Weights: []float64{1},
		}
	}
	sol, err := core.NewSolution(inst.Constraints, mixtures, rng)
	if err != nil {
		return nil, err
	}
	sum := RunSummary{
		Algorithm:  c.Name(),
		Iterations: c.iterations,
		Objective:  reward,
		UpperBound: c.approx,
		Stop:       c.stop,
		Elapsed:    time.Since(start),
	}
	logger.Info("approximate LP finished",
		slog.Int("iterations", sum.Iterations),
		slog.Float64("reward", sum.Objective),
		slog.Float64("approximate", sum.UpperBound),
		slog.String("stop", sum.Stop.String()),
		slog.Duration("elapsed", sum.Elapsed))
	for _, o := range opts.Observers {
		o.OnFinish(sum, sol)
	}
	return sol, nil
}

func numPoints(agents []*calpAgent) int {
	n := 0
	for _, ag := range agents {
		n += len(ag.points)
	}
	return n
}

// approximate rebuilds the belief MDP of ag over its current points.
func (c *CALP) approximate(ctx context.Context, ag *calpAgent) error {
	m := ag.model
	Q, A, O, K := len(ag.points), m.NumActions, m.NumObservations, m.NumResources
	ag.weight = core.NewGrid4(Q, A, O, Q)
	ag.trans = core.NewGrid3(Q, A, Q)
	ag.reward = core.NewGrid2(Q, A)
	ag.cost = core.NewGrid3(K, Q, A)
	for q, b := range ag.points {
		m.PrepareBelief(b, 0)
		ao := b.AOProbs()
		for a := 0; a < A; a++ {
			for s, p := range b.Belief {
				ag.reward.Add(q, a, p*m.Reward(0, s, a))
				for k := 0; k < K; k++ {
					ag.cost.Add(k, q, a, p*m.Cost(k, 0, s, a))
				}
			}
			for o := 0; o < O; o++ {
				pr := ao.At(a, o)
				if pr <= calpPolicyTolerance {
					// never observed, any distribution will do
					for qn := 0; qn < Q; qn++ {
						ag.weight.Set(q, a, o, qn, 1/float64(Q))
					}
					continue
				}
				w, _, err := c.interpolate(ctx, ag.points, m.UpdateBelief(b, 0, a, o).Belief)
				if err != nil {
					return fmt.Errorf("interpolate belief %d: %w", q, err)
				}
				for qn, v := range w {
					ag.weight.Set(q, a, o, qn, v)
					ag.trans.Add(q, a, qn, pr*v)
				}
			}
		}
	}
	return nil
}

// interpolate writes b as a convex combination of points, preferring near
// ones: it minimizes Σ w_j·‖b − b_j‖ subject to Σ w_j·b_j = b. The returned
// distance is that minimum.
func (c *CALP) interpolate(ctx context.Context, points []*core.BeliefPoint, b []float64) ([]float64, float64, error) {
	w := make([]float64, len(points))
	for j, p := range points {
		if floats.EqualApprox(p.Belief, b, 1e-12) {
			w[j] = 1
			return w, 0, nil
		}
	}

	model := c.Env.NewModel()
	defer model.Dispose()
	model.SetMinimize(true)
	vars := make([]lp.Var, len(points))
	for j, p := range points {
		d := floats.Distance(b, p.Belief, 2)
		if d < calpCoefTolerance {
			d = 0
		}
		v, err := model.AddVar(0, math.Inf(1), d, lp.Continuous)
		if err != nil {
			return nil, 0, err
		}
		vars[j] = v
	}
	// the last state row follows from the others and Σ w = 1
	for s := 0; s < len(b)-1; s++ {
		e := new(lp.Expr)
		for j, p := range points {
			if p.Belief[s] != 0 {
				e.AddTerm(p.Belief[s], vars[j])
			}
		}
		if _, err := model.AddConstr(e, lp.Equal, b[s]); err != nil {
			return nil, 0, err
		}
	}
	sum := new(lp.Expr)
	for _, v := range vars {
		sum.AddTerm(1, v)
	}
	if _, err := model.AddConstr(sum, lp.Equal, 1); err != nil {
		return nil, 0, err
	}
	if err := model.Solve(ctx); err != nil {
		return nil, 0, err
	}
	total := 0.0
	for j, v := range vars {
		w[j] = math.Max(model.Value(v), 0)
		total += w[j]
	}
	floats.Scale(1/total, w)
	return w, model.Objective(), nil
}

// buildLP creates the joint occupancy LP. x[i][t][q][a] is the probability
// that agent i is in node q at t and takes a.
func (c *CALP) buildLP(agents []*calpAgent, cons core.Constraints) (lp.Model, []lp.Constr, error) {
	model := c.Env.NewModel()
	T, K := cons.Horizon, cons.NumResources
	usage := make([]*lp.Expr, K)
	for k := range usage {
		usage[k] = new(lp.Expr)
	}
	for i, ag := range agents {
		Q, A := len(ag.points), ag.model.NumActions
		ag.occ = make([][][]lp.Var, T)
		for t := 0; t < T; t++ {
			ag.occ[t] = make([][]lp.Var, Q)
			for q := 0; q < Q; q++ {
				ag.occ[t][q] = make([]lp.Var, A)
				for a := 0; a < A; a++ {
					r := ag.reward.At(q, a)
					if math.Abs(r) < calpCoefTolerance {
						r = 0
					}
					v, err := model.AddVar(0, math.Inf(1), r, lp.Continuous)
					if err != nil {
						model.Dispose()
						return nil, nil, err
					}
					ag.occ[t][q][a] = v
					for k := 0; k < K; k++ {
						if cost := ag.cost.At(k, q, a); cost != 0 {
							usage[k].AddTerm(cost, v)
						}
					}
				}
			}
		}
		for t := 0; t < T; t++ {
			for qn := 0; qn < Q; qn++ {
				e := new(lp.Expr)
				for _, v := range ag.occ[t][qn] {
					e.AddTerm(1, v)
				}
				rhs := 0.0
				if t == 0 {
					if qn == 0 {
						rhs = 1
					}
				} else {
					for q := 0; q < Q; q++ {
						for a := 0; a < A; a++ {
							if p := ag.trans.At(q, a, qn); p != 0 {
								e.AddTerm(-p, ag.occ[t-1][q][a])
							}
						}
					}
				}
				if _, err := model.AddConstr(e, lp.Equal, rhs); err != nil {
					model.Dispose()
					return nil, nil, fmt.Errorf("flow row (agent %d, t=%d, q=%d): %w", i, t, qn, err)
				}
			}
		}
	}
	budget := make([]lp.Constr, K)
	for k := range budget {
		con, err := model.AddConstr(usage[k], lp.LessEqual, cons.Limit(k, 0))
		if err != nil {
			model.Dispose()
			return nil, nil, fmt.Errorf("budget row %d: %w", k, err)
		}
		budget[k] = con
	}
	return model, budget, nil
}

func (c *CALP) duals(model lp.Model, budget []lp.Constr) []float64 {
	out := make([]float64, len(budget))
	for k, con := range budget {
		if d, err := model.Dual(con); err == nil {
			out[k] = d
		}
	}
	return out
}

// extract turns the occupancies into controllers and evaluates them
// exactly. It returns the reward and cost profile per agent and the total
// cost per resource.
func (c *CALP) extract(model lp.Model, agents []*calpAgent, cons core.Constraints) ([]float64, []core.CostProfile, []float64) {
	rewards := make([]float64, len(agents))
	costs := make([]core.CostProfile, len(agents))
	total := make([]float64, cons.NumResources)
	for i, ag := range agents {
		T, Q, A := cons.Horizon, len(ag.points), ag.model.NumActions
		ag.policy = core.NewGrid3(T, Q, A)
		ag.options = make([][]bool, Q)
		for q := range ag.options {
			ag.options[q] = make([]bool, A)
		}
		for t := 0; t < T; t++ {
			for q := 0; q < Q; q++ {
				flow := 0.0
				for a := 0; a < A; a++ {
					flow += math.Max(model.Value(ag.occ[t][q][a]), 0)
				}
				for a := 0; a < A; a++ {
					if flow <= calpReachedFlow {
						ag.policy.Set(t, q, a, 1/float64(A))
						continue
					}
					p := math.Max(model.Value(ag.occ[t][q][a]), 0) / flow
					ag.policy.Set(t, q, a, p)
					if p > calpPolicyTolerance {
						ag.options[q][a] = true
					}
				}
			}
		}
		r, cp := evaluateController(ag.model, core.NewStochasticController(ag.policy, ag.weight, 0, nil))
		rewards[i] = r
		costs[i] = cp
		for k, v := range cp.Total {
			total[k] += v
		}
	}
	return rewards, costs, total
}

func exceeds(total []float64, cons core.Constraints) bool {
	for k, v := range total {
		if v > cons.Limit(k, 0)+core.ProbTolerance {
			return true
		}
	}
	return false
}

// tighten bisects a common scale on the LP limits until the exact cost of
// the extracted controllers meets the real limits.
func (c *CALP) tighten(ctx context.Context, model lp.Model, budget []lp.Constr, agents []*calpAgent,
	cons core.Constraints, logger *slog.Logger) ([]float64, []core.CostProfile, error) {
	lo, hi := 0.0, 1.0
	var (
		bestReward []float64
		bestCost   []core.CostProfile
		bestPolicy []core.Grid3
	)
	for round := 0; round < calpSearchRounds; round++ {
		scale := (lo + hi) / 2
		for k, con := range budget {
			if err := model.SetRHS(con, scale*cons.Limit(k, 0)); err != nil {
				return nil, nil, err
			}
		}
		if err := model.Solve(ctx); err != nil {
			if errors.Is(err, lp.ErrInfeasible) {
				lo = scale
				continue
			}
			return nil, nil, err
		}
		c.approx = model.Objective()
		rewards, cost, total := c.extract(model, agents, cons)
		logger.Debug("tightened limits", slog.Float64("scale", scale), slog.Any("cost", total))
		if exceeds(total, cons) {
			hi = scale
			continue
		}
		lo = scale
		bestReward, bestCost = rewards, cost
		bestPolicy = make([]core.Grid3, len(agents))
		for i, ag := range agents {
			bestPolicy[i] = ag.policy
		}
		if closeToLimits(total, cons) {
			break
		}
	}
	if bestPolicy == nil {
		return nil, nil, fmt.Errorf("%w: calp: no tightened limit meets the budget", core.ErrInfeasible)
	}
	for i, ag := range agents {
		ag.policy = bestPolicy[i]
	}
	return bestReward, bestCost, nil
}

func closeToLimits(total []float64, cons core.Constraints) bool {
	for k, v := range total {
		if math.Abs(v-cons.Limit(k, 0)) < calpSearchTolerance {
			return true
		}
	}
	return false
}

// expand adds the beliefs the current policy reaches in one step that the
// set cannot represent exactly, keeping at most MaxNewBeliefs of them.
// Among too many candidates the one closest to the rest is dropped.
func (c *CALP) expand(ctx context.Context, ag *calpAgent, opts CALPOptions) (int, error) {
	m := ag.model
	var fresh []*core.BeliefPoint
	for q, b := range ag.points {
		ao := b.AOProbs()
		for a := 0; a < m.NumActions; a++ {
			if !ag.options[q][a] {
				continue
			}
			for o := 0; o < m.NumObservations; o++ {
				if ao.At(a, o) <= opts.SearchTolerance {
					continue
				}
				bao := m.UpdateBelief(b, 0, a, o)
				if containsBelief(fresh, bao.Belief) {
					continue
				}
				_, d, err := c.interpolate(ctx, ag.points, bao.Belief)
				if err != nil {
					return 0, err
				}
				if d < calpCoefTolerance {
					continue
				}
				fresh = append(fresh, bao)
				if len(fresh) > opts.MaxNewBeliefs {
					if fresh, err = c.compress(ctx, ag.points, fresh); err != nil {
						return 0, err
					}
				}
			}
		}
	}
	ag.points = append(ag.points, fresh...)
	return len(fresh), nil
}

func containsBelief(points []*core.BeliefPoint, b []float64) bool {
	for _, p := range points {
		if floats.EqualApprox(p.Belief, b, 1e-12) {
			return true
		}
	}
	return false
}

// compress drops the candidate with the smallest interpolation distance to
// the existing points and the other candidates.
func (c *CALP) compress(ctx context.Context, points, fresh []*core.BeliefPoint) ([]*core.BeliefPoint, error) {
	drop := -1
	best := math.Inf(1)
	for i, cand := range fresh {
		others := append([]*core.BeliefPoint(nil), points...)
		others = append(others, fresh[:i]...)
		others = append(others, fresh[i+1:]...)
		_, d, err := c.interpolate(ctx, others, cand.Belief)
		if err != nil {
			return nil, err
		}
		if d < best {
			drop, best = i, d
		}
	}
	return append(fresh[:drop:drop], fresh[drop+1:]...), nil
}

// evaluateController computes the exact expected reward and cost of a
// controller from b0 with a forward pass over (node, state).
func evaluateController(m *core.POMDPModel, ctrl *core.StochasticController) (float64, core.CostProfile) {
	T, S, K := m.Horizon, m.NumStates, m.NumResources
	_, Q, A := ctrl.Probs.Dims()
	cost := core.NewCostProfile(K, T)
	reward := 0.0
	occ := core.NewGrid2(Q, S)
	for s, p := range m.InitialBelief {
		occ.Set(ctrl.Start, s, p)
	}
	for t := 0; t < T; t++ {
		next := core.NewGrid2(Q, S)
		for q := 0; q < Q; q++ {
			for s := 0; s < S; s++ {
				p := occ.At(q, s)
				if p <= 0 {
					continue
				}
				for a := 0; a < A; a++ {
					pa := p * ctrl.Probs.At(t, q, a)
					if pa <= 0 {
						continue
					}
					reward += pa * m.Reward(t, s, a)
					for k := 0; k < K; k++ {
						c := pa * m.Cost(k, t, s, a)
						cost.Total[k] += c
						cost.PerEpoch.Add(k, t, c)
					}
					if t+1 == T {
						continue
					}
					for _, out := range m.Transitions(t, s, a) {
						for o := 0; o < m.NumObservations; o++ {
							po := pa * out.Prob * m.Observation(a, out.State, o)
							if po <= 0 {
								continue
							}
							for qn, w := range ctrl.Next.Row(q, a, o) {
								if w > 0 {
									next.Add(qn, out.State, po*w)
								}
							}
						}
					}
				}
			}
		}
		occ = next
	}
	return reward, cost
}
