package instance

import (
	"fmt"

	"github.com/elektrokombinacija/cgcp-planner/internal/core"
)

func epoch(t *int) int {
	if t == nil {
		return core.AllEpochs
	}
	return *t
}

func (f *File) constraints() (core.Constraints, error) {
	typ, ok := core.ParseConstraintType(f.Constraints.Type)
	if !ok {
		return core.Constraints{}, fmt.Errorf("instance %q: unknown constraint type %q", f.Name, f.Constraints.Type)
	}
	cons := core.NewConstraints(typ, f.Constraints.Resources, f.Constraints.Horizon)
	if len(f.Constraints.Limits) != cons.NumResources {
		return cons, fmt.Errorf("instance %q: %d limit rows for %d resources", f.Name, len(f.Constraints.Limits), cons.NumResources)
	}
	for k, row := range f.Constraints.Limits {
		if len(row) != cons.Periods() {
			return cons, fmt.Errorf("instance %q: resource %d has %d limits, want %d", f.Name, k, len(row), cons.Periods())
		}
		for p, v := range row {
			cons.Limits.Set(k, p, v)
		}
	}
	return cons, nil
}

func (f *File) agent(i int) (*core.AgentModel, error) {
	a := f.Agents[i]
	b := core.NewModelBuilder(a.States, a.Actions, f.Constraints.Horizon, f.Constraints.Resources, a.Stationary).
		SetInitialState(a.InitialState)
	for _, e := range a.Rewards {
		b.SetReward(epoch(e.T), e.S, e.A, e.Value)
	}
	for _, e := range a.Costs {
		b.SetCost(e.K, epoch(e.T), e.S, e.A, e.Value)
	}
	for _, e := range a.Transitions {
		outs := make([]core.Outcome, len(e.To))
		for j, o := range e.To {
			outs[j] = core.Outcome{State: o.State, Prob: o.Prob}
		}
		b.SetTransition(epoch(e.T), e.S, e.A, outs...)
	}
	for _, e := range a.Feasible {
		b.SetFeasible(epoch(e.T), e.S, e.Actions...)
	}
	m, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("instance %q agent %d: %w", f.Name, i, err)
	}
	return m, nil
}

// Instance builds the fully observable instance.
func (f *File) Instance() (*core.Instance, error) {
	cons, err := f.constraints()
	if err != nil {
		return nil, err
	}
	inst := &core.Instance{Name: f.Name, Constraints: cons}
	for i := range f.Agents {
		m, err := f.agent(i)
		if err != nil {
			return nil, err
		}
		inst.Agents = append(inst.Agents, m)
	}
	if err := inst.Validate(); err != nil {
		return nil, err
	}
	return inst, nil
}

// POMDPInstance builds the partially observable instance.
func (f *File) POMDPInstance() (*core.POMDPInstance, error) {
	cons, err := f.constraints()
	if err != nil {
		return nil, err
	}
	inst := &core.POMDPInstance{Name: f.Name, Constraints: cons}
	for i, a := range f.Agents {
		if a.Observations == 0 {
			return nil, fmt.Errorf("instance %q agent %d: no observation model", f.Name, i)
		}
		m, err := f.agent(i)
		if err != nil {
			return nil, err
		}
		b := core.NewPOMDPBuilder(m, a.Observations).SetInitialBelief(a.InitialBelief)
		for _, e := range a.ObservationProbs {
			b.SetObservation(e.A, e.Next, e.O, e.Prob)
		}
		pm, err := b.Build()
		if err != nil {
			return nil, fmt.Errorf("instance %q agent %d: %w", f.Name, i, err)
		}
		inst.Agents = append(inst.Agents, pm)
	}
	if err := inst.Validate(); err != nil {
		return nil, err
	}
	return inst, nil
}

func limitsFile(cons core.Constraints) ConstraintsFile {
	cf := ConstraintsFile{
		Type:      cons.Type.String(),
		Resources: cons.NumResources,
		Horizon:   cons.Horizon,
		Limits:    make([][]float64, cons.NumResources),
	}
	for k := range cf.Limits {
		cf.Limits[k] = append([]float64(nil), cons.Limits.Row(k)...)
	}
	return cf
}

func agentFile(m *core.AgentModel) AgentFile {
	af := AgentFile{
		States:       m.NumStates,
		Actions:      m.NumActions,
		InitialState: m.InitialState,
		Stationary:   m.Stationary(),
	}
	layers := m.Horizon
	if m.Stationary() {
		layers = 1
	}
	for l := 0; l < layers; l++ {
		var t *int
		if !m.Stationary() {
			t = new(int)
			*t = l
		}
		for s := 0; s < m.NumStates; s++ {
			feas := m.Feasible(l, s)
			if len(feas) != m.NumActions {
				af.Feasible = append(af.Feasible, FeasibleEntry{T: t, S: s, Actions: append([]int(nil), feas...)})
			}
			for _, a := range feas {
				if r := m.Reward(l, s, a); r != 0 {
					af.Rewards = append(af.Rewards, ValueEntry{T: t, S: s, A: a, Value: r})
				}
				for k := 0; k < m.NumResources; k++ {
					if c := m.Cost(k, l, s, a); c != 0 {
						af.Costs = append(af.Costs, ValueEntry{K: k, T: t, S: s, A: a, Value: c})
					}
				}
				te := TransitionEntry{T: t, S: s, A: a}
				for _, o := range m.Transitions(l, s, a) {
					te.To = append(te.To, Outcome{State: o.State, Prob: o.Prob})
				}
				af.Transitions = append(af.Transitions, te)
			}
		}
	}
	return af
}

// FromInstance converts a fully observable instance to its file form.
func FromInstance(inst *core.Instance) *File {
	f := &File{Name: inst.Name, Constraints: limitsFile(inst.Constraints)}
	for _, m := range inst.Agents {
		f.Agents = append(f.Agents, agentFile(m))
	}
	return f
}

// FromPOMDPInstance converts a partially observable instance to its file form.
func FromPOMDPInstance(inst *core.POMDPInstance) *File {
	f := &File{Name: inst.Name, Constraints: limitsFile(inst.Constraints)}
	for _, m := range inst.Agents {
		af := agentFile(m.AgentModel)
		af.Observations = m.NumObservations
		af.InitialBelief = append([]float64(nil), m.InitialBelief...)
		for a := 0; a < m.NumActions; a++ {
			for s := 0; s < m.NumStates; s++ {
				for o := 0; o < m.NumObservations; o++ {
					if p := m.Observation(a, s, o); p != 0 {
						af.ObservationProbs = append(af.ObservationProbs, ObservationEntry{A: a, Next: s, O: o, Prob: p})
					}
				}
			}
		}
		f.Agents = append(f.Agents, af)
	}
	return f
}
