package core

import "math/rand"

// SampleIndex draws an index with probability proportional to weights.
// Non-positive weights are never drawn. It returns -1 if no weight is positive.
func SampleIndex(weights []float64, rng *rand.Rand) int {
	total := 0.0
	last := -1
	for i, w := range weights {
		if w > 0 {
			total += w
			last = i
		}
	}
	if last < 0 {
		return -1
	}
	r := rng.Float64() * total
	cum := 0.0
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		cum += w
		if r < cum {
			return i
		}
	}
	return last
}

// ProbabilitySample draws items according to their probabilities.
type ProbabilitySample[T any] struct {
	items []T
	probs []float64
	rng   *rand.Rand
}

// NewProbabilitySample creates an empty sampler.
func NewProbabilitySample[T any](rng *rand.Rand) *ProbabilitySample[T] {
	return &ProbabilitySample[T]{rng: rng}
}

// Add registers item with probability p. Items with p <= 0 are ignored.
func (ps *ProbabilitySample[T]) Add(item T, p float64) {
	if p <= 0 {
		return
	}
	ps.items = append(ps.items, item)
	ps.probs = append(ps.probs, p)
}

// Len returns the number of registered items.
func (ps *ProbabilitySample[T]) Len() int { return len(ps.items) }

// Sample draws one item. It panics if nothing was added.
func (ps *ProbabilitySample[T]) Sample() T {
	return ps.items[SampleIndex(ps.probs, ps.rng)]
}
