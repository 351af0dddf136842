package core

import (
	"strconv"
	"strings"
)

// BeliefPoint is a distribution over states identified by the
// action/observation history that produced it.
type BeliefPoint struct {
	Belief  []float64
	History []int

	// UpperBound is the sawtooth bound at this point, Tight once it meets the lower bound.
	UpperBound float64
	Tight      bool

	bounded    bool
	corner     int // state+1 for corner beliefs, 0 otherwise
	key        string
	aoProbs    Grid2
	aoEpoch    int
	aoReady    bool
	successors map[int]*BeliefPoint
}

// NewBeliefPoint creates a point with the given history.
func NewBeliefPoint(belief []float64, history []int) *BeliefPoint {
	var sb strings.Builder
	for i, h := range history {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Itoa(h))
	}
	return &BeliefPoint{Belief: belief, History: history, key: sb.String()}
}

// CornerBelief returns the point mass on state s. Its history is [-(s+1)].
func CornerBelief(s, states int) *BeliefPoint {
	b := make([]float64, states)
	b[s] = 1
	p := NewBeliefPoint(b, []int{-(s + 1)})
	p.corner = s + 1
	return p
}

// Key identifies the point by history.
func (b *BeliefPoint) Key() string { return b.key }

// IsCorner reports whether the point was created by CornerBelief. Other
// points with a negative anchor history, such as b0 copies, are not corners.
func (b *BeliefPoint) IsCorner() bool { return b.corner > 0 }

// CornerState returns the state of a corner belief, -1 for other points.
func (b *BeliefPoint) CornerState() int { return b.corner - 1 }

// Extend returns the history after taking a and observing o.
func (b *BeliefPoint) Extend(a, o int) []int {
	h := make([]int, len(b.History), len(b.History)+2)
	copy(h, b.History)
	return append(h, a, o)
}

// SetUpperBound records the point's upper bound.
func (b *BeliefPoint) SetUpperBound(v float64) {
	b.UpperBound = v
	b.bounded = true
}

// HasUpperBound reports whether an upper bound was recorded.
func (b *BeliefPoint) HasUpperBound() bool { return b.bounded }

// AOProbs returns the cached P(o | b, a) table. PrepareBelief must run first.
func (b *BeliefPoint) AOProbs() Grid2 { return b.aoProbs }

func (b *BeliefPoint) successor(a, o int) (*BeliefPoint, bool) {
	if b.successors == nil {
		return nil, false
	}
	next, ok := b.successors[a<<16|o]
	return next, ok
}

func (b *BeliefPoint) setSuccessor(a, o int, next *BeliefPoint) {
	if b.successors == nil {
		b.successors = make(map[int]*BeliefPoint)
	}
	b.successors[a<<16|o] = next
}

// BeliefSet is an insertion-ordered set of points deduplicated by history.
type BeliefSet struct {
	Points []*BeliefPoint
	index  map[string]int
}

// NewBeliefSet creates an empty set.
func NewBeliefSet() *BeliefSet {
	return &BeliefSet{index: make(map[string]int)}
}

// Add inserts p unless a point with the same history exists. It reports whether p was added.
func (bs *BeliefSet) Add(p *BeliefPoint) bool {
	if _, ok := bs.index[p.Key()]; ok {
		return false
	}
	bs.index[p.Key()] = len(bs.Points)
	bs.Points = append(bs.Points, p)
	return true
}

// Contains reports whether a point with p's history is present.
func (bs *BeliefSet) Contains(p *BeliefPoint) bool {
	_, ok := bs.index[p.Key()]
	return ok
}

// Len returns the number of points.
func (bs *BeliefSet) Len() int { return len(bs.Points) }
