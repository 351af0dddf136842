package instance

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elektrokombinacija/cgcp-planner/internal/core"
)

func TestToyRoundTrip(t *testing.T) {
	inst, err := ToyInstance(2, 0.5)
	require.NoError(t, err)

	data, err := FromInstance(inst).Marshal()
	require.NoError(t, err)
	f, err := Parse(data)
	require.NoError(t, err)
	assert.False(t, f.PartiallyObservable())

	got, err := f.Instance()
	require.NoError(t, err)
	assert.Equal(t, "toy", got.Name)
	assert.Equal(t, core.Budget, got.Type)
	assert.Equal(t, 0.5, got.Limit(0, 0))
	require.Len(t, got.Agents, 2)

	want := inst.Agents[0]
	m := got.Agents[0]
	assert.True(t, m.Stationary())
	for tt := 0; tt < ToyHorizon; tt++ {
		for s := 0; s < 2; s++ {
			for a := 0; a < 2; a++ {
				assert.Equal(t, want.Reward(tt, s, a), m.Reward(tt, s, a))
				assert.Equal(t, want.Cost(0, tt, s, a), m.Cost(0, tt, s, a))
				assert.ElementsMatch(t, want.Transitions(tt, s, a), m.Transitions(tt, s, a))
			}
		}
	}
}

func TestPOMDPRoundTrip(t *testing.T) {
	inst, err := ToyPOMDPInstance(1, 0.5)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "toy.yaml")
	require.NoError(t, FromPOMDPInstance(inst).Save(path))
	f, err := Load(path)
	require.NoError(t, err)
	assert.True(t, f.PartiallyObservable())

	got, err := f.POMDPInstance()
	require.NoError(t, err)
	m := got.Agents[0]
	assert.Equal(t, []float64{1, 0}, m.InitialBelief)
	for s := 0; s < 2; s++ {
		assert.Equal(t, 1.0, m.Observation(1, s, s))
		assert.Equal(t, 0.0, m.Observation(1, s, 1-s))
	}
}

func TestTigerRoundTrip(t *testing.T) {
	inst, err := ToyTigerInstance(2, 4, 3)
	require.NoError(t, err)
	require.NoError(t, inst.Validate())

	data, err := FromPOMDPInstance(inst).Marshal()
	require.NoError(t, err)
	f, err := Parse(data)
	require.NoError(t, err)
	got, err := f.POMDPInstance()
	require.NoError(t, err)

	assert.Equal(t, 3.0, got.Limit(0, 0))
	require.Len(t, got.Agents, 2)
	m := got.Agents[0]
	assert.Equal(t, 3, m.NumActions)
	assert.Equal(t, []float64{0.5, 0.5}, m.InitialBelief)
	assert.Equal(t, 0.85, m.Observation(TigerListen, 1, 1))
	assert.Equal(t, 0.5, m.Observation(TigerOpenLeft, 1, 0))
	assert.Equal(t, -100.0, m.Reward(0, 0, TigerOpenLeft))
	assert.Equal(t, 10.0, m.Reward(3, 0, TigerOpenRight))
	assert.Equal(t, 1.0, m.Cost(0, 2, 1, TigerListen))
	assert.Zero(t, m.Cost(0, 2, 1, TigerOpenRight))
}

func TestTimeDependentRoundTrip(t *testing.T) {
	m, err := core.NewModelBuilder(2, 2, 3, 1, false).
		SetReward(1, 0, 1, 4).
		SetCost(0, 2, 1, 1, 1.5).
		SetTransition(core.AllEpochs, 0, 0, core.Outcome{State: 0, Prob: 1}).
		SetTransition(core.AllEpochs, 0, 1, core.Outcome{State: 1, Prob: 1}).
		SetTransition(core.AllEpochs, 1, 0, core.Outcome{State: 0, Prob: 1}).
		SetTransition(core.AllEpochs, 1, 1, core.Outcome{State: 1, Prob: 1}).
		SetFeasible(0, 1, 0).
		Build()
	require.NoError(t, err)
	cons := core.NewConstraints(core.Instantaneous, 1, 3)
	inst := &core.Instance{Name: "timed", Constraints: cons, Agents: []*core.AgentModel{m}}

	data, err := FromInstance(inst).Marshal()
	require.NoError(t, err)
	f, err := Parse(data)
	require.NoError(t, err)
	got, err := f.Instance()
	require.NoError(t, err)

	gm := got.Agents[0]
	assert.False(t, gm.Stationary())
	assert.Equal(t, 4.0, gm.Reward(1, 0, 1))
	assert.Equal(t, 0.0, gm.Reward(0, 0, 1))
	assert.Equal(t, 1.5, gm.Cost(0, 2, 1, 1))
	assert.Equal(t, []int{0}, gm.Feasible(0, 1))
	assert.Equal(t, []int{0, 1}, gm.Feasible(1, 1))
}

func TestParseErrors(t *testing.T) {
	valid := `
name: tiny
constraints: {type: budget, resources: 1, horizon: 2, limits: [[1]]}
agents:
  - states: 1
    actions: 1
    initial_state: 0
    stationary: true
    transitions: [{s: 0, a: 0, to: [{state: 0, prob: 1}]}]
`
	f, err := Parse([]byte(valid))
	require.NoError(t, err)
	_, err = f.Instance()
	require.NoError(t, err)

	tests := []struct {
		name string
		data string
	}{
		{"unknown field", valid + "colour: red\n"},
		{"missing name", `
constraints: {type: budget, resources: 1, horizon: 2, limits: [[1]]}
agents: [{states: 1, actions: 1, transitions: [{s: 0, a: 0, to: [{state: 0, prob: 1}]}]}]
`},
		{"bad constraint type", `
name: x
constraints: {type: weekly, resources: 1, horizon: 2, limits: [[1]]}
agents: [{states: 1, actions: 1, transitions: [{s: 0, a: 0, to: [{state: 0, prob: 1}]}]}]
`},
		{"initial state out of range", `
name: x
constraints: {type: budget, resources: 1, horizon: 2, limits: [[1]]}
agents: [{states: 1, actions: 1, initial_state: 3, transitions: [{s: 0, a: 0, to: [{state: 0, prob: 1}]}]}]
`},
		{"probability above one", `
name: x
constraints: {type: budget, resources: 1, horizon: 2, limits: [[1]]}
agents: [{states: 1, actions: 1, transitions: [{s: 0, a: 0, to: [{state: 0, prob: 1.5}]}]}]
`},
		{"no agents", `
name: x
constraints: {type: budget, resources: 1, horizon: 2, limits: [[1]]}
agents: []
`},
		{"not yaml", "name: [unterminated"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestConversionErrors(t *testing.T) {
	base := func() *File {
		inst, err := ToyInstance(1, 1)
		require.NoError(t, err)
		return FromInstance(inst)
	}

	t.Run("limit rows", func(t *testing.T) {
		f := base()
		f.Constraints.Limits = append(f.Constraints.Limits, []float64{1})
		_, err := f.Instance()
		assert.Error(t, err)
	})

	t.Run("instantaneous limits", func(t *testing.T) {
		f := base()
		f.Constraints.Type = "instantaneous"
		_, err := f.Instance()
		assert.Error(t, err)
	})

	t.Run("transition rows", func(t *testing.T) {
		f := base()
		f.Agents[0].Transitions[0].To[0].Prob = 0.5
		_, err := f.Instance()
		var me *core.ModelError
		assert.ErrorAs(t, err, &me)
	})

	t.Run("missing observations", func(t *testing.T) {
		_, err := base().POMDPInstance()
		assert.Error(t, err)
	})
}

func TestGenerate(t *testing.T) {
	p := DefaultGenParams()
	a, err := Generate(p)
	require.NoError(t, err)
	b, err := Generate(p)
	require.NoError(t, err)
	da, err := a.Marshal()
	require.NoError(t, err)
	db, err := b.Marshal()
	require.NoError(t, err)
	assert.Equal(t, da, db, "same seed, same instance")

	p.Seed++
	c, err := Generate(p)
	require.NoError(t, err)
	dc, err := c.Marshal()
	require.NoError(t, err)
	assert.NotEqual(t, da, dc)

	inst, err := a.Instance()
	require.NoError(t, err)
	require.Len(t, inst.Agents, p.Agents)
	for _, m := range inst.Agents {
		assert.True(t, m.HasNonNegativeCosts())
		for s := 0; s < m.NumStates; s++ {
			assert.Zero(t, m.Cost(0, 0, s, 0), "action 0 is free")
		}
	}
	// 3 agents × max cost 2 × 8 epochs × 0.3
	assert.InDelta(t, 14.4, inst.Limit(0, 0), 1e-9)
}

func TestGeneratePOMDP(t *testing.T) {
	p := DefaultGenParams()
	p.Type = "instantaneous"
	p.Observations = 2
	p.ObsNoise = 0.1
	f, err := Generate(p)
	require.NoError(t, err)
	assert.True(t, f.PartiallyObservable())

	inst, err := f.POMDPInstance()
	require.NoError(t, err)
	assert.Equal(t, core.Instantaneous, inst.Type)
	assert.Equal(t, p.Horizon, inst.Periods())
	for _, m := range inst.Agents {
		assert.InDelta(t, 0.9, m.Observation(0, 0, 0), 1e-12)
	}
}

func TestGenerateRejectsBadParams(t *testing.T) {
	p := DefaultGenParams()
	p.Actions = 1
	_, err := Generate(p)
	assert.Error(t, err)

	p = DefaultGenParams()
	p.Type = "weekly"
	_, err = Generate(p)
	assert.Error(t, err)
}
