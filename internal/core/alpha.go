package core

import "gonum.org/v1/gonum/floats"

// AlphaVector is one linear piece of a value function over beliefs.
type AlphaVector struct {
	Entries []float64
	Action  int
	Point   *BeliefPoint // belief the vector was backed up at
}

// NewAlphaVector creates a vector with the given entries and action.
func NewAlphaVector(entries []float64, action int) *AlphaVector {
	return &AlphaVector{Entries: entries, Action: action}
}

// Value returns the dot product with belief b.
func (v *AlphaVector) Value(b []float64) float64 {
	return floats.Dot(v.Entries, b)
}

// lexGreater reports whether x is lexicographically greater than y.
func lexGreater(x, y []float64) bool {
	for i := range x {
		if x[i] != y[i] {
			return x[i] > y[i]
		}
	}
	return false
}

// BestVectorIndex returns the index of the vector maximizing the value at b.
// Ties prefer the lexicographically greater vector. It returns -1 for an empty list.
func BestVectorIndex(vectors []*AlphaVector, b []float64) int {
	best := -1
	bestVal := 0.0
	for i, v := range vectors {
		val := v.Value(b)
		if best < 0 || val > bestVal || (val == bestVal && lexGreater(v.Entries, vectors[best].Entries)) {
			best, bestVal = i, val
		}
	}
	return best
}

// BestValue returns the upper envelope of vectors at b.
func BestValue(vectors []*AlphaVector, b []float64) float64 {
	i := BestVectorIndex(vectors, b)
	if i < 0 {
		return 0
	}
	return vectors[i].Value(b)
}

// SumVectors returns x + y as a new slice.
func SumVectors(x, y []float64) []float64 {
	out := make([]float64, len(x))
	floats.AddTo(out, x, y)
	return out
}
