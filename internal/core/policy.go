package core

import (
	"fmt"
	"math/rand"
)

// Policy chooses actions for one agent during an episode.
// The set of implementations is closed; switch on Kind to recover the variant.
type Policy interface {
	Kind() PolicyKind
	// Reset prepares the policy for a new episode.
	Reset()
	// Action returns the action at epoch t.
	Action(t int, obs Observation) int
	// Update advances internal state after taking a and observing o.
	// Fully observable policies ignore it.
	Update(a, o int)

	sealed()
}

// DeterministicPolicy is an epoch × state action table.
type DeterministicPolicy struct {
	Horizon, NumStates int
	actions            []int
}

// NewDeterministicPolicy creates a table with every entry set to -1.
func NewDeterministicPolicy(horizon, states int) *DeterministicPolicy {
	p := &DeterministicPolicy{Horizon: horizon, NumStates: states, actions: make([]int, horizon*states)}
	for i := range p.actions {
		p.actions[i] = -1
	}
	return p
}

func (p *DeterministicPolicy) index(t, s int) int {
	if t < 0 || t >= p.Horizon || s < 0 || s >= p.NumStates {
		panic(fmt.Sprintf("core: policy index (%d,%d) out of range (%d,%d)", t, s, p.Horizon, p.NumStates))
	}
	return t*p.NumStates + s
}

// Set stores the action for (t,s).
func (p *DeterministicPolicy) Set(t, s, a int) { p.actions[p.index(t, s)] = a }

// At returns the action for (t,s).
func (p *DeterministicPolicy) At(t, s int) int { return p.actions[p.index(t, s)] }

func (p *DeterministicPolicy) Kind() PolicyKind { return KindDeterministic }
func (p *DeterministicPolicy) Reset()           {}
func (p *DeterministicPolicy) Update(a, o int)  {}
func (p *DeterministicPolicy) sealed()          {}

// Action returns the tabled action for the observed state.
func (p *DeterministicPolicy) Action(t int, obs Observation) int { return p.At(t, obs.State) }

// StochasticPolicy is an epoch × state distribution over actions.
type StochasticPolicy struct {
	Probs Grid3
	rng   *rand.Rand
}

// NewStochasticPolicy wraps a T × S × A table. Rows are normalized when sampled.
func NewStochasticPolicy(probs Grid3, rng *rand.Rand) *StochasticPolicy {
	return &StochasticPolicy{Probs: probs, rng: rng}
}

func (p *StochasticPolicy) Kind() PolicyKind { return KindStochastic }
func (p *StochasticPolicy) Reset()           {}
func (p *StochasticPolicy) Update(a, o int)  {}
func (p *StochasticPolicy) sealed()          {}

// Action samples an action for the observed state.
func (p *StochasticPolicy) Action(t int, obs Observation) int {
	return SampleIndex(p.Probs.Row(t, obs.State), p.rng)
}

// GraphNode is one controller state of a policy graph.
type GraphNode struct {
	Action int
	Next   []int // successor node in the next layer per observation
}

// PolicyGraph is a layered finite-state controller, one layer per epoch.
type PolicyGraph struct {
	Layers    [][]GraphNode
	StartNode int

	layer, node int
}

// NewPolicyGraph creates a graph over the given layers.
func NewPolicyGraph(layers [][]GraphNode, start int) *PolicyGraph {
	return &PolicyGraph{Layers: layers, StartNode: start, node: start}
}

func (g *PolicyGraph) Kind() PolicyKind { return KindGraph }
func (g *PolicyGraph) sealed()          {}

// Reset returns the controller to the start node.
func (g *PolicyGraph) Reset() { g.layer, g.node = 0, g.StartNode }

// Action returns the action of the current node.
func (g *PolicyGraph) Action(t int, obs Observation) int {
	return g.Layers[t][g.node].Action
}

// Update follows the edge for observation o.
func (g *PolicyGraph) Update(a, o int) {
	if g.layer+1 >= len(g.Layers) {
		g.layer++
		return
	}
	g.node = g.Layers[g.layer][g.node].Next[o]
	g.layer++
}

// Node returns the current controller state.
func (g *PolicyGraph) Node() int { return g.node }

// NumNodes returns the total node count.
func (g *PolicyGraph) NumNodes() int {
	n := 0
	for _, l := range g.Layers {
		n += len(l)
	}
	return n
}

// VectorPolicy acts greedily on alpha-vector sets, tracking the belief itself.
type VectorPolicy struct {
	Model   *POMDPModel
	Vectors [][]*AlphaVector

	belief []float64
	epoch  int
}

// NewVectorPolicy creates a policy over per-epoch vector sets.
func NewVectorPolicy(model *POMDPModel, vectors [][]*AlphaVector) *VectorPolicy {
	p := &VectorPolicy{Model: model, Vectors: vectors}
	p.Reset()
	return p
}

func (p *VectorPolicy) Kind() PolicyKind { return KindVector }
func (p *VectorPolicy) sealed()          {}

// Reset restores the initial belief.
func (p *VectorPolicy) Reset() {
	p.belief = append([]float64(nil), p.Model.InitialBelief...)
	p.epoch = 0
}

// Action picks the best vector's action at obs.Belief, or at the tracked belief.
func (p *VectorPolicy) Action(t int, obs Observation) int {
	b := obs.Belief
	if b == nil {
		b = p.belief
	}
	return p.Vectors[t][BestVectorIndex(p.Vectors[t], b)].Action
}

// Update applies the belief update for (a, o).
func (p *VectorPolicy) Update(a, o int) {
	if p.epoch < p.Model.Horizon {
		if next := p.Model.UpdateBeliefVector(p.belief, p.epoch, a, o); next != nil {
			p.belief = next
		}
	}
	p.epoch++
}

// Belief returns the tracked belief.
func (p *VectorPolicy) Belief() []float64 { return p.belief }

// StochasticController is a finite-state controller whose nodes stand for
// belief points. Node q samples its action from Probs[t][q] and, after action
// a and observation o, moves to a node drawn from Next[q][a][o].
type StochasticController struct {
	Probs Grid3 // [t][q][a]
	Next  Grid4 // [q][a][o][q']
	Start int

	rng  *rand.Rand
	node int
}

// NewStochasticController creates a controller starting in node start.
func NewStochasticController(probs Grid3, next Grid4, start int, rng *rand.Rand) *StochasticController {
	return &StochasticController{Probs: probs, Next: next, Start: start, rng: rng, node: start}
}

func (c *StochasticController) Kind() PolicyKind { return KindController }
func (c *StochasticController) sealed()          {}

// Reset returns to the start node.
func (c *StochasticController) Reset() { c.node = c.Start }

// Action samples from the current node's action distribution.
func (c *StochasticController) Action(t int, obs Observation) int {
	return SampleIndex(c.Probs.Row(t, c.node), c.rng)
}

// Update samples the successor node for (a, o). Rows without mass keep the node.
func (c *StochasticController) Update(a, o int) {
	if q := SampleIndex(c.Next.Row(c.node, a, o), c.rng); q >= 0 {
		c.node = q
	}
}

// Node returns the current controller node.
func (c *StochasticController) Node() int { return c.node }

// NumNodes returns the number of controller nodes.
func (c *StochasticController) NumNodes() int {
	_, q, _ := c.Probs.Dims()
	return q
}

// ConstantPolicy always takes the same action.
type ConstantPolicy struct {
	A int
}

func (p *ConstantPolicy) Kind() PolicyKind                  { return KindConstant }
func (p *ConstantPolicy) Reset()                            {}
func (p *ConstantPolicy) Update(a, o int)                   {}
func (p *ConstantPolicy) sealed()                           {}
func (p *ConstantPolicy) Action(t int, obs Observation) int { return p.A }

// ClonePolicy returns a copy of p with its own episode state. Sampling
// policies draw from rng. Immutable variants are returned as-is.
func ClonePolicy(p Policy, rng *rand.Rand) Policy {
	switch v := p.(type) {
	case *StochasticPolicy:
		return NewStochasticPolicy(v.Probs, rng)
	case *PolicyGraph:
		return NewPolicyGraph(v.Layers, v.StartNode)
	case *VectorPolicy:
		return NewVectorPolicy(v.Model, v.Vectors)
	case *StochasticController:
		return NewStochasticController(v.Probs, v.Next, v.Start, rng)
	default:
		return p
	}
}
