package algo

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/elektrokombinacija/cgcp-planner/internal/core"
)

// DefaultMaxIterations caps point-based value iteration.
const DefaultMaxIterations = 1000000

// POMDPResult is the outcome of a point-based solve.
type POMDPResult struct {
	Vectors    [][]*core.AlphaVector // per epoch, index T holds the zero vectors
	LowerBound float64
	UpperBound float64
	Iterations int
	NumBeliefs int
}

// PointBasedVI approximates finite-horizon POMDP value functions with alpha
// vectors backed up at a growing belief set, bracketed by a sawtooth upper bound.
type PointBasedVI struct {
	TimeLimit     time.Duration
	MaxIterations int
	// TightGap marks a point's upper bound as final once it is this close to the lower bound.
	TightGap float64

	rng    *rand.Rand
	logger *slog.Logger

	// per-solve state
	model     *core.POMDPModel
	horizon   int
	immediate [][][]float64 // [t][a] immediate weighted reward vector
	beliefs   []*core.BeliefSet
	vectors   [][]*core.AlphaVector
	b0        *core.BeliefPoint
}

// NewPointBasedVI creates a solver drawing random belief orders from rng.
func NewPointBasedVI(timeLimit time.Duration, rng *rand.Rand, logger *slog.Logger) *PointBasedVI {
	if logger == nil {
		logger = slog.Default()
	}
	return &PointBasedVI{
		TimeLimit:     timeLimit,
		MaxIterations: DefaultMaxIterations,
		TightGap:      1e-4,
		rng:           rng,
		logger:        logger,
	}
}

// IncreaseRuntime extends the wall-clock budget of subsequent solves.
func (p *PointBasedVI) IncreaseRuntime(d time.Duration) {
	p.TimeLimit += d
}

// Solve runs point-based value iteration on m with budget multipliers lambda.
func (p *PointBasedVI) Solve(ctx context.Context, m *core.POMDPModel, lambda core.Multipliers) (*POMDPResult, error) {
	p.model = m
	p.horizon = m.Horizon
	p.initImmediate(lambda)
	p.initBeliefs()

	T := p.horizon
	p.vectors = make([][]*core.AlphaVector, T+1)
	for a := 0; a < m.NumActions; a++ {
		p.vectors[T] = append(p.vectors[T], core.NewAlphaVector(make([]float64, m.NumStates), a))
	}

	start := time.Now()
	iter := 0
	var lower, upper float64
	for {
		for t := T - 1; t >= 0; t-- {
			p.backupStage(t, iter)
			p.updateUpperBounds(t)
		}

		lower = core.BestValue(p.vectors[0], p.b0.Belief)
		upper = p.b0.UpperBound
		gap := upper - lower
		allowed := scaleTolerance(lower, upper)
		if gap < -1e-4 {
			p.logger.Warn("point-based bounds crossed", slog.Float64("lower", lower), slog.Float64("upper", upper))
		}
		p.logger.Debug("point-based iteration",
			slog.Int("iter", iter),
			slog.Float64("lower", lower),
			slog.Float64("upper", upper),
			slog.Float64("gap", gap),
			slog.Float64("allowed", allowed))

		iter++
		if iter > p.MaxIterations || time.Since(start) > p.TimeLimit || gap < allowed || math.Abs(gap) < 0.01 {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p.findNewBeliefs()
	}

	n := 0
	for _, bs := range p.beliefs {
		n += bs.Len()
	}
	return &POMDPResult{
		Vectors:    p.vectors,
		LowerBound: lower,
		UpperBound: upper,
		Iterations: iter,
		NumBeliefs: n,
	}, nil
}

// scaleTolerance is 10^(ceil(log10(max(|a|,|b|)))−3). Lagrangian values
// are often negative, so the magnitude sets the scale. It is 0 when both are 0.
func scaleTolerance(a, b float64) float64 {
	return math.Pow(10, math.Ceil(math.Log10(math.Max(math.Abs(a), math.Abs(b))))-3)
}

func (p *PointBasedVI) initImmediate(lambda core.Multipliers) {
	m := p.model
	p.immediate = make([][][]float64, p.horizon)
	for t := 0; t < p.horizon; t++ {
		p.immediate[t] = make([][]float64, m.NumActions)
		for a := 0; a < m.NumActions; a++ {
			v := make([]float64, m.NumStates)
			for s := range v {
				v[s] = m.Reward(t, s, a)
				for k := 0; k < m.NumResources; k++ {
					v[s] -= lambda.Weight(k, t) * m.Cost(k, t, s, a)
				}
			}
			p.immediate[t][a] = v
		}
	}
}

// initBeliefs seeds every epoch with the corner beliefs and a copy of b0.
func (p *PointBasedVI) initBeliefs() {
	S := p.model.NumStates
	p.b0 = core.NewBeliefPoint(append([]float64(nil), p.model.InitialBelief...), nil)
	p.beliefs = make([]*core.BeliefSet, p.horizon+1)
	for t := 0; t <= p.horizon; t++ {
		bs := core.NewBeliefSet()
		for s := 0; s < S; s++ {
			bs.Add(core.CornerBelief(s, S))
		}
		if t == 0 {
			bs.Add(p.b0)
		} else {
			// anchor copy of b0, not a corner
			bs.Add(core.NewBeliefPoint(append([]float64(nil), p.model.InitialBelief...), []int{-(S + 1)}))
		}
		if t == p.horizon {
			for _, bp := range bs.Points {
				bp.SetUpperBound(0)
				bp.Tight = true
			}
		}
		p.beliefs[t] = bs
	}
}

// backProjections returns g[k][a][o](s) = Σ_s' O(a,s',o)·T(t,s,a,s')·V_k(s').
func (p *PointBasedVI) backProjections(t int) [][][][]float64 {
	m := p.model
	next := p.vectors[t+1]
	g := make([][][][]float64, len(next))
	for k, v := range next {
		g[k] = make([][][]float64, m.NumActions)
		for a := 0; a < m.NumActions; a++ {
			g[k][a] = make([][]float64, m.NumObservations)
			for o := 0; o < m.NumObservations; o++ {
				entries := make([]float64, m.NumStates)
				for s := range entries {
					val := 0.0
					for _, out := range m.Transitions(t, s, a) {
						val += m.Observation(a, out.State, o) * out.Prob * v.Entries[out.State]
					}
					entries[s] = val
				}
				g[k][a][o] = entries
			}
		}
	}
	return g
}

func (p *PointBasedVI) backup(t int, g [][][][]float64, b *core.BeliefPoint) *core.AlphaVector {
	m := p.model
	var best *core.AlphaVector
	bestVal := math.Inf(-1)
	for a := 0; a < m.NumActions; a++ {
		sum := append([]float64(nil), p.immediate[t][a]...)
		for o := 0; o < m.NumObservations; o++ {
			var arg []float64
			argVal := math.Inf(-1)
			for k := range g {
				if val := floats.Dot(g[k][a][o], b.Belief); val > argVal {
					arg, argVal = g[k][a][o], val
				}
			}
			floats.Add(sum, arg)
		}
		if val := floats.Dot(sum, b.Belief); best == nil || val > bestVal {
			best, bestVal = core.NewAlphaVector(sum, a), val
		}
	}
	best.Point = b
	return best
}

// backupStage backs up every point on the first iteration and runs a
// randomized Perseus stage afterwards.
func (p *PointBasedVI) backupStage(t, iter int) {
	g := p.backProjections(t)
	points := p.beliefs[t].Points
	if iter == 0 {
		vs := make([]*core.AlphaVector, 0, len(points))
		for _, b := range points {
			vs = append(vs, p.backup(t, g, b))
		}
		p.vectors[t] = vs
		return
	}

	old := p.vectors[t]
	pending := append([]*core.BeliefPoint(nil), points...)
	var fresh []*core.AlphaVector
	for len(pending) > 0 {
		b := pending[p.rng.Intn(len(pending))]
		v := p.backup(t, g, b)
		bi := core.BestVectorIndex(old, b.Belief)
		if v.Value(b.Belief) >= old[bi].Value(b.Belief) {
			fresh = append(fresh, v)
		} else {
			fresh = append(fresh, old[bi])
		}
		var rest []*core.BeliefPoint
		for _, q := range pending {
			if core.BestValue(fresh, q.Belief) < core.BestValue(old, q.Belief) {
				rest = append(rest, q)
			}
		}
		pending = rest
	}
	p.vectors[t] = fresh
}

// sawtooth interpolates the upper bound at belief b from epoch t's points.
func (p *PointBasedVI) sawtooth(b []float64, t int) float64 {
	if t == p.horizon {
		return 0
	}
	S := p.model.NumStates
	points := p.beliefs[t].Points
	stateUpper := make([]float64, S)
	for _, bp := range points {
		if bp.IsCorner() {
			stateUpper[bp.CornerState()] = bp.UpperBound
		}
	}
	v := floats.Dot(b, stateUpper)
	bestZ := math.Inf(1)
	for _, bp := range points {
		if bp.IsCorner() || !bp.HasUpperBound() {
			continue
		}
		f := bp.UpperBound
		c := math.Inf(1)
		for s, bar := range bp.Belief {
			if bar > 0 {
				f -= bar * stateUpper[s]
				c = math.Min(c, b[s]/bar)
			}
		}
		if z := c * f; z < bestZ {
			bestZ = z
		}
	}
	if !math.IsInf(bestZ, 1) {
		v += bestZ
	}
	return v
}

// lookahead returns the one-step upper-bound value of each action at b.
func (p *PointBasedVI) lookahead(t int, b *core.BeliefPoint) []float64 {
	m := p.model
	m.PrepareBelief(b, t)
	ao := b.AOProbs()
	vals := make([]float64, m.NumActions)
	for a := 0; a < m.NumActions; a++ {
		val := floats.Dot(p.immediate[t][a], b.Belief)
		for o := 0; o < m.NumObservations; o++ {
			if pr := ao.At(a, o); pr > 0 {
				val += pr * p.sawtooth(m.UpdateBelief(b, t, a, o).Belief, t+1)
			}
		}
		vals[a] = val
	}
	return vals
}

// updateUpperBounds refreshes the bound of every non-tight point at epoch t.
func (p *PointBasedVI) updateUpperBounds(t int) {
	for _, b := range p.beliefs[t].Points {
		if b.Tight {
			continue
		}
		ub := floats.Max(p.lookahead(t, b))
		b.SetUpperBound(ub)
		lb := core.BestValue(p.vectors[t], b.Belief)
		if lb > ub+1e-3 {
			p.logger.Debug("lower bound above upper bound", slog.Int("t", t), slog.Float64("lower", lb), slog.Float64("upper", ub))
		}
		if math.Abs(ub-lb) < p.TightGap {
			b.Tight = true
		}
	}
}

// findNewBeliefs follows the upper-bound greedy action and the observation
// with the largest bound gap at the successor, adding each reached belief.
func (p *PointBasedVI) findNewBeliefs() {
	m := p.model
	b := p.b0
	added := 0
	for t := 0; t < p.horizon-1; t++ {
		vals := p.lookahead(t, b)
		a := floats.MaxIdx(vals)
		ao := b.AOProbs()

		sel := -1
		maxGap := math.Inf(-1)
		for o := 0; o < m.NumObservations; o++ {
			if ao.At(a, o) <= 0 {
				continue
			}
			bao := m.UpdateBelief(b, t, a, o)
			gap := p.sawtooth(bao.Belief, t+1) - core.BestValue(p.vectors[t+1], bao.Belief)
			if sel < 0 || gap > maxGap {
				sel, maxGap = o, gap
			}
		}
		if sel < 0 {
			break
		}
		next := m.UpdateBelief(b, t, a, sel)
		if p.beliefs[t+1].Add(next) {
			added++
		}
		b = next
	}
	p.logger.Debug("beliefs added", slog.Int("count", added))
}
