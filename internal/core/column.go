package core

import "math"

// CostProfile is the expected consumption of a policy:
// the horizon total per resource and the per-epoch amounts.
type CostProfile struct {
	Total    []float64
	PerEpoch Grid2
}

// NewCostProfile allocates a zero profile for K resources over T epochs.
func NewCostProfile(resources, horizon int) CostProfile {
	return CostProfile{Total: make([]float64, resources), PerEpoch: NewGrid2(resources, horizon)}
}

// AddScaled adds w times o to the profile.
func (c CostProfile) AddScaled(o CostProfile, w float64) {
	for k := range c.Total {
		c.Total[k] += w * o.Total[k]
	}
	for i := range c.PerEpoch.data {
		c.PerEpoch.data[i] += w * o.PerEpoch.data[i]
	}
}

// Consumption returns the entries the constraints of typ bind on, as resources × periods.
func (c CostProfile) Consumption(typ ConstraintType) Grid2 {
	if typ == Instantaneous {
		return c.PerEpoch
	}
	g := NewGrid2(len(c.Total), 1)
	for k, v := range c.Total {
		g.Set(k, 0, v)
	}
	return g
}

// Multipliers are Lagrange weights on the resource constraints (dual prices).
type Multipliers struct {
	Grid2
}

// NewMultipliers allocates zero weights for resources × periods.
func NewMultipliers(resources, periods int) Multipliers {
	return Multipliers{NewGrid2(resources, periods)}
}

// UniformMultipliers sets every weight to v.
func UniformMultipliers(resources, periods int, v float64) Multipliers {
	m := NewMultipliers(resources, periods)
	for i := range m.data {
		m.data[i] = v
	}
	return m
}

// Weight returns the weight of resource k at epoch t. Budget weights ignore t.
func (m Multipliers) Weight(k, t int) float64 {
	if m.n1 == 1 {
		return m.At(k, 0)
	}
	return m.At(k, t)
}

// Dot returns Σ λ·limit.
func (m Multipliers) Dot(limits Grid2) float64 {
	sum := 0.0
	for i, v := range m.data {
		sum += v * limits.data[i]
	}
	return sum
}

// Distance returns Σ |λ − other|. Infinite entries on both sides count as equal.
func (m Multipliers) Distance(other Multipliers) float64 {
	sum := 0.0
	for i, v := range m.data {
		if v == other.data[i] {
			continue
		}
		sum += math.Abs(v - other.data[i])
	}
	return sum
}

// Clamp replaces small negative drift with zero.
func (m Multipliers) Clamp() {
	for i, v := range m.data {
		if v < 0 {
			m.data[i] = 0
		}
	}
}

// Values returns the flat weights in resource-major order.
func (m Multipliers) Values() []float64 {
	return append([]float64(nil), m.data...)
}

// Column is a candidate policy for one agent with its measured value.
type Column struct {
	Agent          int
	Policy         Policy
	ExpectedReward float64
	ExpectedCost   CostProfile
	// Artificial marks the big-M seed column, which no feasible mixture may use.
	Artificial bool
}

// Clone returns an independent copy.
func (m Multipliers) Clone() Multipliers {
	return Multipliers{m.Grid2.Clone()}
}
