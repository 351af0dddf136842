package core

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConstraintType(t *testing.T) {
	tests := []struct {
		name string
		want ConstraintType
		ok   bool
	}{
		{"budget", Budget, true},
		{"instantaneous", Instantaneous, true},
		{"weekly", Budget, false},
	}
	for _, tt := range tests {
		got, ok := ParseConstraintType(tt.name)
		assert.Equal(t, tt.ok, ok, tt.name)
		if ok {
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.name, got.String())
		}
	}
}

func TestConstraintsPeriods(t *testing.T) {
	assert.Equal(t, 1, NewConstraints(Budget, 2, 10).Periods())
	c := NewConstraints(Instantaneous, 2, 10)
	assert.Equal(t, 10, c.Periods())
	n0, n1 := c.Limits.Dims()
	assert.Equal(t, []int{2, 10}, []int{n0, n1})
}

func TestUnsupported(t *testing.T) {
	err := Unsupported("cgcp", "instantaneous constraints")
	assert.True(t, IsUnsupported(err))
	assert.Contains(t, err.Error(), "cgcp")

	var ue *UnsupportedInstanceError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, "cgcp", ue.Algorithm)
	assert.False(t, IsUnsupported(ErrInfeasible))
}

func TestGridBounds(t *testing.T) {
	g := NewGrid3(2, 3, 4)
	g.Set(1, 2, 3, 5)
	g.Add(1, 2, 3, 1)
	assert.Equal(t, 6.0, g.At(1, 2, 3))
	assert.Equal(t, []float64{0, 0, 0, 6}, g.Row(1, 2))

	assert.Panics(t, func() { g.At(2, 0, 0) })
	assert.Panics(t, func() { g.At(0, -1, 0) })
	assert.Panics(t, func() { NewGrid2(2, 2).Set(0, 2, 1) })

	h := NewGrid2(2, 2)
	h.Set(0, 1, 3)
	c := h.Clone()
	c.Set(0, 1, 4)
	assert.Equal(t, 3.0, h.At(0, 1))
}

func TestMultipliers(t *testing.T) {
	a := UniformMultipliers(2, 1, 1)
	b := a.Clone()
	b.Set(1, 0, 3)
	assert.InDelta(t, 2, a.Distance(b), 1e-12)
	assert.Equal(t, 3.0, b.Weight(1, 7), "budget weights ignore the epoch")

	limits := NewGrid2(2, 1)
	limits.Set(0, 0, 2)
	limits.Set(1, 0, 5)
	assert.InDelta(t, 17, b.Dot(limits), 1e-12)

	inf := UniformMultipliers(1, 1, math.Inf(1))
	assert.Zero(t, inf.Distance(inf.Clone()))

	b.Set(0, 0, -1e-12)
	b.Clamp()
	assert.Zero(t, b.At(0, 0))
}

func TestCostProfileConsumption(t *testing.T) {
	c := NewCostProfile(1, 3)
	c.Total[0] = 6
	c.PerEpoch.Set(0, 0, 1)
	c.PerEpoch.Set(0, 2, 5)

	budget := c.Consumption(Budget)
	n0, n1 := budget.Dims()
	assert.Equal(t, []int{1, 1}, []int{n0, n1})
	assert.Equal(t, 6.0, budget.At(0, 0))

	inst := c.Consumption(Instantaneous)
	assert.Equal(t, []float64{1, 0, 5}, inst.Row(0))

	sum := NewCostProfile(1, 3)
	sum.AddScaled(c, 0.5)
	assert.InDelta(t, 3, sum.Total[0], 1e-12)
	assert.InDelta(t, 2.5, sum.PerEpoch.At(0, 2), 1e-12)
}
