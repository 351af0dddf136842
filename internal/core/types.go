// Package core defines domain models for constrained multi-agent planning.
package core

// ConstraintType selects how resource limits bind.
type ConstraintType int

const (
	Budget        ConstraintType = iota // One aggregate limit per resource over the horizon
	Instantaneous                       // One limit per resource per decision epoch
)

func (c ConstraintType) String() string {
	return [...]string{"budget", "instantaneous"}[c]
}

// ParseConstraintType maps a name to its ConstraintType.
func ParseConstraintType(name string) (ConstraintType, bool) {
	switch name {
	case "budget":
		return Budget, true
	case "instantaneous":
		return Instantaneous, true
	default:
		return Budget, false
	}
}

// PolicyKind tags the policy representation.
type PolicyKind int

const (
	KindDeterministic PolicyKind = iota // Epoch × state action table
	KindStochastic                      // Epoch × state × action distribution
	KindGraph                           // Layered finite-state controller
	KindVector                          // Alpha-vector sets per epoch
	KindConstant                        // Single action everywhere
	KindController                      // Stochastic finite-state controller over belief nodes
)

func (k PolicyKind) String() string {
	return [...]string{"deterministic", "stochastic", "graph", "vector", "constant", "controller"}[k]
}

// Observation is what an agent sees at a decision epoch.
// MDP policies read State, belief-indexed policies read Belief.
type Observation struct {
	State  int
	Belief []float64
}

// Outcome is one destination of a transition.
type Outcome struct {
	State int
	Prob  float64
}

// ProbTolerance bounds accepted deviation of a distribution sum from 1.
const ProbTolerance = 1e-6
