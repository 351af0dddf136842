package algo

import (
	"context"
	"errors"
	"fmt"

	"github.com/elektrokombinacija/cgcp-planner/internal/core"
	"github.com/elektrokombinacija/cgcp-planner/internal/lp"
)

// ErrInfeasibleMaster is returned when the master program has no feasible
// mixture, typically because no seed column respects the limits.
var ErrInfeasibleMaster = errors.New("algo: master program infeasible")

// MasterLP blends columns per agent subject to the shared resource limits.
// Variables are column weights in [0,1]; each agent's weights sum to one.
type MasterLP struct {
	cons      core.Constraints
	numAgents int

	model    lp.Model
	capacity [][]lp.Constr // [k][period]
	convex   []lp.Constr
	vars     [][]lp.Var
	columns  [][]*core.Column

	// set by Solve
	weights   [][]float64
	duals     core.Multipliers
	objective float64
	realized  core.Grid2
}

// NewMasterLP creates an empty master program on env.
func NewMasterLP(env *lp.Env, cons core.Constraints, numAgents int) (*MasterLP, error) {
	m := &MasterLP{
		cons:      cons,
		numAgents: numAgents,
		model:     env.NewModel(),
		vars:      make([][]lp.Var, numAgents),
		columns:   make([][]*core.Column, numAgents),
	}
	m.capacity = make([][]lp.Constr, cons.NumResources)
	for k := 0; k < cons.NumResources; k++ {
		m.capacity[k] = make([]lp.Constr, cons.Periods())
		for p := 0; p < cons.Periods(); p++ {
			c, err := m.model.AddConstr(new(lp.Expr), lp.LessEqual, cons.Limit(k, p))
			if err != nil {
				return nil, fmt.Errorf("capacity row: %w", err)
			}
			m.capacity[k][p] = c
		}
	}
	m.convex = make([]lp.Constr, numAgents)
	for i := range m.convex {
		c, err := m.model.AddConstr(new(lp.Expr), lp.Equal, 1)
		if err != nil {
			return nil, fmt.Errorf("convexity row: %w", err)
		}
		m.convex[i] = c
	}
	return m, nil
}

// AddColumns appends one column per agent.
func (m *MasterLP) AddColumns(cols []*core.Column) error {
	if len(cols) != m.numAgents {
		return fmt.Errorf("algo: got %d columns for %d agents", len(cols), m.numAgents)
	}
	for i, col := range cols {
		if err := m.addColumn(i, col); err != nil {
			return err
		}
	}
	return nil
}

func (m *MasterLP) addColumn(agent int, col *core.Column) error {
	used := col.ExpectedCost.Consumption(m.cons.Type)
	lc := new(lp.Column).AddTerm(1, m.convex[agent])
	for k := range m.capacity {
		for p, c := range m.capacity[k] {
			lc.AddTerm(used.At(k, p), c)
		}
	}
	v, err := m.model.AddColumn(0, 1, col.ExpectedReward, lp.Continuous, lc)
	if err != nil {
		return fmt.Errorf("add column for agent %d: %w", agent, err)
	}
	m.vars[agent] = append(m.vars[agent], v)
	m.columns[agent] = append(m.columns[agent], col)
	return nil
}

// SetLimits replaces the right-hand sides of the capacity rows.
func (m *MasterLP) SetLimits(limits core.Grid2) error {
	for k := range m.capacity {
		for p, c := range m.capacity[k] {
			if err := m.model.SetRHS(c, limits.At(k, p)); err != nil {
				return err
			}
		}
	}
	return nil
}

// Solve optimizes the blend and reads weights, duals, objective and realized cost.
func (m *MasterLP) Solve(ctx context.Context) error {
	if err := m.model.Solve(ctx); err != nil {
		if errors.Is(err, lp.ErrInfeasible) {
			return fmt.Errorf("%w: %v", ErrInfeasibleMaster, err)
		}
		return err
	}
	m.objective = m.model.Objective()
	m.weights = make([][]float64, m.numAgents)
	for i, vs := range m.vars {
		w := make([]float64, len(vs))
		for j, v := range vs {
			w[j] = m.model.Value(v)
		}
		m.weights[i] = w
	}

	m.duals = core.NewMultipliers(m.cons.NumResources, m.cons.Periods())
	for k := range m.capacity {
		for p, c := range m.capacity[k] {
			d, err := m.model.Dual(c)
			if err != nil {
				return fmt.Errorf("dual of resource %d period %d: %w", k, p, err)
			}
			m.duals.Set(k, p, d)
		}
	}
	m.duals.Clamp()

	m.realized = core.NewGrid2(m.cons.NumResources, m.cons.Periods())
	for i, cols := range m.columns {
		for j, col := range cols {
			used := col.ExpectedCost.Consumption(m.cons.Type)
			for k := 0; k < m.cons.NumResources; k++ {
				for p := 0; p < m.cons.Periods(); p++ {
					m.realized.Add(k, p, m.weights[i][j]*used.At(k, p))
				}
			}
		}
	}
	return nil
}

// Distribution returns agent i's column weights from the last solve.
func (m *MasterLP) Distribution(agent int) []float64 { return m.weights[agent] }

// Columns returns agent i's columns in insertion order.
func (m *MasterLP) Columns(agent int) []*core.Column { return m.columns[agent] }

// NumColumns returns the total number of columns.
func (m *MasterLP) NumColumns() int {
	n := 0
	for _, cs := range m.columns {
		n += len(cs)
	}
	return n
}

// Duals returns the capacity shadow prices, clamped at zero.
func (m *MasterLP) Duals() core.Multipliers { return m.duals }

// Objective returns the blended expected reward.
func (m *MasterLP) Objective() float64 { return m.objective }

// RealizedCost returns the blended consumption per resource and period.
func (m *MasterLP) RealizedCost() core.Grid2 { return m.realized }

// Dispose releases the underlying model.
func (m *MasterLP) Dispose() { m.model.Dispose() }
