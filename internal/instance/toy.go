package instance

import "github.com/elektrokombinacija/cgcp-planner/internal/core"

// ToyHorizon is the number of epochs of the toy scenarios.
const ToyHorizon = 10

// ToyModel is a 2-state, 2-action agent. Action 1 in state 0 reaches state 1
// with probability 0.9; action 1 in state 1 earns 10 and costs 2. Action 0
// always returns to state 0 for free.
func ToyModel(initialState int) (*core.AgentModel, error) {
	all := core.AllEpochs
	return core.NewModelBuilder(2, 2, ToyHorizon, 1, true).
		SetInitialState(initialState).
		SetReward(all, 1, 1, 10).
		SetCost(0, all, 1, 1, 2).
		SetTransition(all, 0, 0, core.Outcome{State: 0, Prob: 1}).
		SetTransition(all, 0, 1, core.Outcome{State: 0, Prob: 0.1}, core.Outcome{State: 1, Prob: 0.9}).
		SetTransition(all, 1, 0, core.Outcome{State: 0, Prob: 1}).
		SetTransition(all, 1, 1, core.Outcome{State: 1, Prob: 1}).
		Build()
}

// ToyInstance replicates the toy agent under a shared budget.
func ToyInstance(agents int, budget float64) (*core.Instance, error) {
	cons := core.NewConstraints(core.Budget, 1, ToyHorizon)
	cons.Limits.Set(0, 0, budget)
	inst := &core.Instance{Name: "toy", Constraints: cons}
	for i := 0; i < agents; i++ {
		m, err := ToyModel(0)
		if err != nil {
			return nil, err
		}
		inst.Agents = append(inst.Agents, m)
	}
	return inst, nil
}

// ToyInstantaneousInstance is the toy agent started in the costly state with
// one limit per epoch.
func ToyInstantaneousInstance(limits []float64) (*core.Instance, error) {
	cons := core.NewConstraints(core.Instantaneous, 1, ToyHorizon)
	for t, l := range limits {
		cons.Limits.Set(0, t, l)
	}
	m, err := ToyModel(1)
	if err != nil {
		return nil, err
	}
	return &core.Instance{Name: "toy-instantaneous", Constraints: cons, Agents: []*core.AgentModel{m}}, nil
}

// ToyPOMDPInstance is the toy agent observing its next state exactly, from
// b0 = [1, 0], under a shared budget.
func ToyPOMDPInstance(agents int, budget float64) (*core.POMDPInstance, error) {
	cons := core.NewConstraints(core.Budget, 1, ToyHorizon)
	cons.Limits.Set(0, 0, budget)
	inst := &core.POMDPInstance{Name: "toy-pomdp", Constraints: cons}
	for i := 0; i < agents; i++ {
		m, err := ToyModel(0)
		if err != nil {
			return nil, err
		}
		b := core.NewPOMDPBuilder(m, 2).SetInitialBelief([]float64{1, 0})
		for a := 0; a < 2; a++ {
			for s := 0; s < 2; s++ {
				b.SetObservation(a, s, s, 1)
			}
		}
		pm, err := b.Build()
		if err != nil {
			return nil, err
		}
		inst.Agents = append(inst.Agents, pm)
	}
	return inst, nil
}

// Tiger actions.
const (
	TigerListen = iota
	TigerOpenLeft
	TigerOpenRight
)

// TigerModel is the tiger problem: the tiger sits behind the left (state 0)
// or right (state 1) door. Listening costs one unit of resource 0, earns -1
// and hears the correct side with probability 0.85. Opening the tiger's door
// earns -100, the other door 10, and the tiger is then placed at random.
func TigerModel(horizon int) (*core.POMDPModel, error) {
	all := core.AllEpochs
	reset := []core.Outcome{{State: 0, Prob: 0.5}, {State: 1, Prob: 0.5}}
	mb := core.NewModelBuilder(2, 3, horizon, 1, true)
	for s := 0; s < 2; s++ {
		mb.SetReward(all, s, TigerListen, -1).
			SetCost(0, all, s, TigerListen, 1).
			SetTransition(all, s, TigerListen, core.Outcome{State: s, Prob: 1}).
			SetTransition(all, s, TigerOpenLeft, reset...).
			SetTransition(all, s, TigerOpenRight, reset...)
	}
	mb.SetReward(all, 0, TigerOpenLeft, -100).SetReward(all, 1, TigerOpenLeft, 10).
		SetReward(all, 0, TigerOpenRight, 10).SetReward(all, 1, TigerOpenRight, -100)
	m, err := mb.Build()
	if err != nil {
		return nil, err
	}

	b := core.NewPOMDPBuilder(m, 2).SetInitialBelief([]float64{0.5, 0.5})
	for s := 0; s < 2; s++ {
		b.SetObservation(TigerListen, s, s, 0.85).SetObservation(TigerListen, s, 1-s, 0.15)
		for _, a := range []int{TigerOpenLeft, TigerOpenRight} {
			b.SetObservation(a, s, 0, 0.5).SetObservation(a, s, 1, 0.5)
		}
	}
	return b.Build()
}

// ToyTigerInstance replicates the tiger agent under a shared listening budget.
func ToyTigerInstance(agents, horizon int, listens float64) (*core.POMDPInstance, error) {
	cons := core.NewConstraints(core.Budget, 1, horizon)
	cons.Limits.Set(0, 0, listens)
	inst := &core.POMDPInstance{Name: "tiger", Constraints: cons}
	for i := 0; i < agents; i++ {
		m, err := TigerModel(horizon)
		if err != nil {
			return nil, err
		}
		inst.Agents = append(inst.Agents, m)
	}
	return inst, nil
}
