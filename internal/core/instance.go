package core

import "fmt"

// Constraints are the shared resource limits of an instance.
// Limits has one column for budget instances and Horizon columns otherwise.
type Constraints struct {
	Type         ConstraintType
	NumResources int
	Horizon      int
	Limits       Grid2
}

// NewConstraints allocates zero limits of the right shape.
func NewConstraints(typ ConstraintType, resources, horizon int) Constraints {
	c := Constraints{Type: typ, NumResources: resources, Horizon: horizon}
	c.Limits = NewGrid2(resources, c.Periods())
	return c
}

// Periods returns the number of limit columns per resource.
func (c Constraints) Periods() int {
	if c.Type == Instantaneous {
		return c.Horizon
	}
	return 1
}

// Limit returns the limit of resource k in period p.
func (c Constraints) Limit(k, p int) float64 { return c.Limits.At(k, p) }

func (c Constraints) validate(models []*AgentModel) error {
	if len(models) == 0 {
		return Unsupported("", "no agents")
	}
	if c.NumResources <= 0 {
		return Unsupported("", "need at least one resource, got %d", c.NumResources)
	}
	n0, n1 := c.Limits.Dims()
	if n0 != c.NumResources || n1 != c.Periods() {
		return Unsupported("", "limits are %dx%d, want %dx%d", n0, n1, c.NumResources, c.Periods())
	}
	for i, m := range models {
		if m.Horizon != c.Horizon {
			return Unsupported("", "agent %d has horizon %d, instance has %d", i, m.Horizon, c.Horizon)
		}
		if m.NumResources != c.NumResources {
			return Unsupported("", "agent %d has %d resources, instance has %d", i, m.NumResources, c.NumResources)
		}
	}
	return nil
}

// Instance is a multi-agent constrained MDP.
type Instance struct {
	Name string
	Constraints
	Agents []*AgentModel
}

// Validate checks that all agents agree with the instance shape.
func (inst *Instance) Validate() error {
	return inst.validate(inst.Agents)
}

// POMDPInstance is a multi-agent constrained POMDP.
type POMDPInstance struct {
	Name string
	Constraints
	Agents []*POMDPModel
}

// Models returns the underlying agent models.
func (inst *POMDPInstance) Models() []*AgentModel {
	ms := make([]*AgentModel, len(inst.Agents))
	for i, a := range inst.Agents {
		ms[i] = a.AgentModel
	}
	return ms
}

// Validate checks that all agents agree with the instance shape.
func (inst *POMDPInstance) Validate() error {
	return inst.validate(inst.Models())
}

// String summarizes the instance.
func (c Constraints) String() string {
	return fmt.Sprintf("%s K=%d T=%d", c.Type, c.NumResources, c.Horizon)
}
