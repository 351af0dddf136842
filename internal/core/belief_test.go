package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBeliefSet(t *testing.T) {
	set := NewBeliefSet()
	c0 := CornerBelief(0, 2)
	assert.True(t, c0.IsCorner())
	assert.Equal(t, 0, c0.CornerState())
	assert.Equal(t, 1, CornerBelief(1, 2).CornerState())

	assert.True(t, set.Add(c0))
	assert.False(t, set.Add(CornerBelief(0, 2)), "same history is a duplicate")
	assert.True(t, set.Add(NewBeliefPoint([]float64{0.5, 0.5}, c0.Extend(1, 0))))
	assert.Equal(t, 2, set.Len())
	assert.True(t, set.Contains(NewBeliefPoint(nil, []int{-1, 1, 0})))
}

func TestBestVectorIndex(t *testing.T) {
	b := []float64{0.5, 0.5}
	vs := []*AlphaVector{
		NewAlphaVector([]float64{1, 3}, 0),
		NewAlphaVector([]float64{3, 1}, 1),
		NewAlphaVector([]float64{0, 2}, 0),
	}
	assert.Equal(t, 1, BestVectorIndex(vs, b), "ties prefer the lexicographically greater vector")
	assert.Equal(t, 0, BestVectorIndex(vs, []float64{0, 1}))
	assert.InDelta(t, 2, BestValue(vs, b), 1e-12)
	assert.Equal(t, -1, BestVectorIndex(nil, b))
	assert.Zero(t, BestValue(nil, b))
	assert.Equal(t, []float64{4, 4}, SumVectors(vs[0].Entries, vs[1].Entries))
}

func TestBeliefPoint_AnchorIsNotCorner(t *testing.T) {
	// initial-belief copies at later epochs carry the history [-(S+1)]
	anchor := NewBeliefPoint([]float64{0.5, 0.5}, []int{-3})
	assert.False(t, anchor.IsCorner())
	assert.Equal(t, -1, anchor.CornerState())

	c1 := CornerBelief(1, 2)
	assert.True(t, c1.IsCorner())
	assert.False(t, NewBeliefPoint(c1.Belief, c1.Extend(0, 0)).IsCorner(), "successors of corners are plain points")
	assert.False(t, NewBeliefPoint([]float64{0, 1}, []int{-2}).IsCorner(), "only CornerBelief makes corners")
}
