package algo

import (
	"github.com/elektrokombinacija/cgcp-planner/internal/core"
)

// CompilePolicyGraph turns per-epoch vector sets into a layered controller.
// Node q of layer t acts as vector q and moves, on observation o, to the best
// vector of layer t+1 at the updated belief of the vector's own point.
func CompilePolicyGraph(m *core.POMDPModel, vectors [][]*core.AlphaVector) *core.PolicyGraph {
	T := m.Horizon
	layers := make([][]core.GraphNode, T)
	for t := 0; t < T; t++ {
		nodes := make([]core.GraphNode, len(vectors[t]))
		for q, v := range vectors[t] {
			next := make([]int, m.NumObservations)
			if t+1 < T && v.Point != nil {
				b := v.Point
				m.PrepareBelief(b, t)
				for o := range next {
					if b.AOProbs().At(v.Action, o) > 0 {
						bao := m.UpdateBelief(b, t, v.Action, o)
						next[o] = core.BestVectorIndex(vectors[t+1], bao.Belief)
					}
				}
			}
			nodes[q] = core.GraphNode{Action: v.Action, Next: next}
		}
		layers[t] = nodes
	}
	start := core.BestVectorIndex(vectors[0], m.InitialBelief)
	return core.NewPolicyGraph(layers, start)
}

// GraphEvaluation is the exact value of a policy graph from b0.
type GraphEvaluation struct {
	Value  float64 // Lagrangian value
	Reward float64
	Cost   core.CostProfile
	// NodeValue[q][s] is the Lagrangian value of starting layer 0 in node q and state s.
	NodeValue [][]float64
}

// EvaluatePolicyGraph computes value, reward and total cost per node and
// state backwards, and per-epoch cost with a forward pass over (node, state).
func EvaluatePolicyGraph(m *core.POMDPModel, g *core.PolicyGraph, lambda core.Multipliers) *GraphEvaluation {
	S, K, T := m.NumStates, m.NumResources, m.Horizon
	var value, reward [][]float64
	var cost [][][]float64 // [q][k][s]
	for t := T - 1; t >= 0; t-- {
		nodes := g.Layers[t]
		nv := make([][]float64, len(nodes))
		nr := make([][]float64, len(nodes))
		nc := make([][][]float64, len(nodes))
		for q, node := range nodes {
			a := node.Action
			nv[q] = make([]float64, S)
			nr[q] = make([]float64, S)
			nc[q] = make([][]float64, K)
			for k := range nc[q] {
				nc[q][k] = make([]float64, S)
			}
			for s := 0; s < S; s++ {
				r := m.Reward(t, s, a)
				nv[q][s] = r
				nr[q][s] = r
				for k := 0; k < K; k++ {
					c := m.Cost(k, t, s, a)
					nv[q][s] -= lambda.Weight(k, t) * c
					nc[q][k][s] = c
				}
				if t == T-1 {
					continue
				}
				for o, qn := range node.Next {
					for _, out := range m.Transitions(t, s, a) {
						w := out.Prob * m.Observation(a, out.State, o)
						if w == 0 {
							continue
						}
						nv[q][s] += w * value[qn][out.State]
						nr[q][s] += w * reward[qn][out.State]
						for k := 0; k < K; k++ {
							nc[q][k][s] += w * cost[qn][k][out.State]
						}
					}
				}
			}
		}
		value, reward, cost = nv, nr, nc
	}

	ev := &GraphEvaluation{Cost: core.NewCostProfile(K, T), NodeValue: value}
	b0 := m.InitialBelief
	for s, p := range b0 {
		ev.Value += p * value[g.StartNode][s]
		ev.Reward += p * reward[g.StartNode][s]
		for k := 0; k < K; k++ {
			ev.Cost.Total[k] += p * cost[g.StartNode][k][s]
		}
	}

	// Forward pass for per-epoch consumption.
	occ := make([][]float64, len(g.Layers[0]))
	for q := range occ {
		occ[q] = make([]float64, S)
	}
	copy(occ[g.StartNode], b0)
	for t := 0; t < T; t++ {
		var next [][]float64
		if t+1 < T {
			next = make([][]float64, len(g.Layers[t+1]))
			for q := range next {
				next[q] = make([]float64, S)
			}
		}
		for q, node := range g.Layers[t] {
			a := node.Action
			for s, p := range occ[q] {
				if p <= 0 {
					continue
				}
				for k := 0; k < K; k++ {
					ev.Cost.PerEpoch.Add(k, t, p*m.Cost(k, t, s, a))
				}
				if next == nil {
					continue
				}
				for o, qn := range node.Next {
					for _, out := range m.Transitions(t, s, a) {
						next[qn][out.State] += p * out.Prob * m.Observation(a, out.State, o)
					}
				}
			}
		}
		occ = next
	}
	return ev
}
