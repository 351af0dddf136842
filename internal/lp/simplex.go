package lp

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

func init() {
	Register(simplexBackend{})
}

// simplexBackend solves models with gonum's dense simplex. Dual prices are
// obtained by solving the dual program on first request.
type simplexBackend struct{}

func (simplexBackend) Name() string { return "simplex" }

func (simplexBackend) NewModel(env *Env) Model {
	return &simplexModel{env: env}
}

type row struct {
	terms []term
	sense Sense
	rhs   float64
}

type simplexModel struct {
	env      *Env
	minimize bool

	lb, ub, obj []float64
	rows        []row

	solved     bool
	x          []float64
	objective  float64
	duals      []float64
	dualsReady bool
	disposed   bool
}

func (m *simplexModel) invalidate() {
	m.solved = false
	m.dualsReady = false
}

func (m *simplexModel) SetMinimize(minimize bool) {
	m.minimize = minimize
	m.invalidate()
}

func (m *simplexModel) AddVar(lb, ub, obj float64, vt VarType) (Var, error) {
	if vt == Integer {
		return -1, ErrIntegerUnsupported
	}
	if math.IsInf(lb, -1) {
		return -1, ErrInfiniteLowerBound
	}
	m.lb = append(m.lb, lb)
	m.ub = append(m.ub, ub)
	m.obj = append(m.obj, obj)
	m.invalidate()
	return Var(len(m.obj) - 1), nil
}

func (m *simplexModel) AddConstr(e *Expr, s Sense, rhs float64) (Constr, error) {
	r := row{sense: s, rhs: rhs}
	if e != nil {
		for _, t := range e.terms {
			if t.idx < 0 || t.idx >= len(m.obj) {
				return -1, fmt.Errorf("%w: variable %d", ErrUnknownHandle, t.idx)
			}
		}
		r.terms = append(r.terms, e.terms...)
	}
	m.rows = append(m.rows, r)
	m.invalidate()
	return Constr(len(m.rows) - 1), nil
}

func (m *simplexModel) AddColumn(lb, ub, obj float64, vt VarType, col *Column) (Var, error) {
	if col != nil {
		for _, t := range col.terms {
			if t.idx < 0 || t.idx >= len(m.rows) {
				return -1, fmt.Errorf("%w: constraint %d", ErrUnknownHandle, t.idx)
			}
		}
	}
	v, err := m.AddVar(lb, ub, obj, vt)
	if err != nil {
		return -1, err
	}
	if col != nil {
		for _, t := range col.terms {
			m.rows[t.idx].terms = append(m.rows[t.idx].terms, term{coef: t.coef, idx: int(v)})
		}
	}
	return v, nil
}

func (m *simplexModel) SetRHS(c Constr, rhs float64) error {
	if int(c) < 0 || int(c) >= len(m.rows) {
		return fmt.Errorf("%w: constraint %d", ErrUnknownHandle, c)
	}
	m.rows[c].rhs = rhs
	m.invalidate()
	return nil
}

func (m *simplexModel) NumVars() int    { return len(m.obj) }
func (m *simplexModel) NumConstrs() int { return len(m.rows) }

func (m *simplexModel) Dispose() {
	m.lb, m.ub, m.obj, m.rows, m.x, m.duals = nil, nil, nil, nil, nil, nil
	m.disposed = true
	m.invalidate()
}

func (m *simplexModel) Objective() float64 { return m.objective }

func (m *simplexModel) Value(v Var) float64 {
	if !m.solved || int(v) < 0 || int(v) >= len(m.x) {
		return math.NaN()
	}
	return m.x[v]
}

// canonical is the model rewritten over x' = x − lb ≥ 0 as
// maximize c·x' subject to the kept rows and x' ≤ ub − lb.
type canonical struct {
	c      []float64 // maximization objective per variable
	active []int     // variables that enter the simplex
	pos    []int     // variable -> column in active, or -1
	rows   []int     // kept constraint rows
	rhs    []float64 // shifted rhs per model row
	bounds []int     // active positions with a finite upper bound
	span   []float64 // ub − lb per variable
}

func (m *simplexModel) canonicalize() (*canonical, error) {
	n := len(m.obj)
	cf := &canonical{
		c:    make([]float64, n),
		pos:  make([]int, n),
		rhs:  make([]float64, len(m.rows)),
		span: make([]float64, n),
	}
	used := make([]bool, n)
	for j := range m.obj {
		cf.c[j] = m.obj[j]
		if m.minimize {
			cf.c[j] = -m.obj[j]
		}
		cf.span[j] = m.ub[j] - m.lb[j]
		if cf.span[j] < 0 {
			return nil, fmt.Errorf("%w: variable %d has lb > ub", ErrInfeasible, j)
		}
	}
	tol := m.env.Tolerance
	for i, r := range m.rows {
		rhs := r.rhs
		nonzero := false
		for _, t := range r.terms {
			rhs -= t.coef * m.lb[t.idx]
			if t.coef != 0 {
				nonzero = true
			}
		}
		cf.rhs[i] = rhs
		if !nonzero {
			feasible := (r.sense == LessEqual && rhs >= -tol) ||
				(r.sense == GreaterEqual && rhs <= tol) ||
				(r.sense == Equal && math.Abs(rhs) <= tol)
			if !feasible {
				return nil, fmt.Errorf("%w: empty row %d %s %g", ErrInfeasible, i, r.sense, rhs)
			}
			continue
		}
		cf.rows = append(cf.rows, i)
		for _, t := range r.terms {
			if t.coef != 0 {
				used[t.idx] = true
			}
		}
	}
	for j := 0; j < n; j++ {
		cf.pos[j] = -1
		finite := !math.IsInf(m.ub[j], 1)
		if !used[j] && !finite {
			if cf.c[j] > 0 {
				return nil, fmt.Errorf("%w: variable %d", ErrUnbounded, j)
			}
			continue
		}
		cf.pos[j] = len(cf.active)
		cf.active = append(cf.active, j)
		if finite {
			cf.bounds = append(cf.bounds, cf.pos[j])
		}
	}
	return cf, nil
}

// Solve builds the standard form min c̃·z, Az = b, z ≥ 0 and runs the simplex.
func (m *simplexModel) Solve(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.invalidate()
	cf, err := m.canonicalize()
	if err != nil {
		return err
	}
	na := len(cf.active)
	nSlack := 0
	for _, i := range cf.rows {
		if m.rows[i].sense != Equal {
			nSlack++
		}
	}
	nRows := len(cf.rows) + len(cf.bounds)
	nCols := na + nSlack + len(cf.bounds)

	xPrime := make([]float64, na)
	if nRows > 0 && na > 0 {
		A := mat.NewDense(nRows, nCols, nil)
		b := make([]float64, nRows)
		c := make([]float64, nCols)
		for p, j := range cf.active {
			c[p] = -cf.c[j]
		}
		slack := na
		for r, i := range cf.rows {
			mr := m.rows[i]
			for _, t := range mr.terms {
				if p := cf.pos[t.idx]; p >= 0 {
					A.Set(r, p, A.At(r, p)+t.coef)
				}
			}
			switch mr.sense {
			case LessEqual:
				A.Set(r, slack, 1)
				slack++
			case GreaterEqual:
				A.Set(r, slack, -1)
				slack++
			}
			b[r] = cf.rhs[i]
		}
		for q, p := range cf.bounds {
			r := len(cf.rows) + q
			A.Set(r, p, 1)
			A.Set(r, slack, 1)
			slack++
			b[r] = cf.span[cf.active[p]]
		}
		normalizeRows(A, b)
		_, z, err := lp.Simplex(c, A, b, m.env.Tolerance, nil)
		if err != nil {
			return translate(err)
		}
		copy(xPrime, z[:na])
	} else if na > 0 {
		// No rows: every active variable has only its bound.
		for p, j := range cf.active {
			if cf.c[j] > 0 {
				xPrime[p] = cf.span[j]
			}
		}
	}

	m.x = make([]float64, len(m.obj))
	m.objective = 0
	for j := range m.obj {
		m.x[j] = m.lb[j]
		if p := cf.pos[j]; p >= 0 {
			m.x[j] += xPrime[p]
		}
		m.objective += m.obj[j] * m.x[j]
	}
	m.solved = true
	return nil
}

// Dual solves min b·y + u·v subject to Aᵀy + v ≥ c on first use.
func (m *simplexModel) Dual(c Constr) (float64, error) {
	if !m.solved {
		return 0, ErrNotSolved
	}
	if int(c) < 0 || int(c) >= len(m.rows) {
		return 0, fmt.Errorf("%w: constraint %d", ErrUnknownHandle, c)
	}
	if !m.dualsReady {
		if err := m.solveDual(); err != nil {
			return 0, err
		}
	}
	return m.duals[c], nil
}

func (m *simplexModel) solveDual() error {
	cf, err := m.canonicalize()
	if err != nil {
		return err
	}
	m.duals = make([]float64, len(m.rows))
	na := len(cf.active)
	if na == 0 {
		m.dualsReady = true
		return nil
	}
	// Dual columns: one or two per kept row, one per bound, one surplus per active variable.
	type ycol struct {
		row  int
		sign float64
	}
	var ycols []ycol
	for _, i := range cf.rows {
		switch m.rows[i].sense {
		case LessEqual:
			ycols = append(ycols, ycol{i, 1})
		case GreaterEqual:
			ycols = append(ycols, ycol{i, -1})
		case Equal:
			ycols = append(ycols, ycol{i, 1}, ycol{i, -1})
		}
	}
	nCols := len(ycols) + len(cf.bounds) + na
	A := mat.NewDense(na, nCols, nil)
	b := make([]float64, na)
	cost := make([]float64, nCols)
	for q, yc := range ycols {
		cost[q] = yc.sign * cf.rhs[yc.row]
		for _, t := range m.rows[yc.row].terms {
			if p := cf.pos[t.idx]; p >= 0 {
				A.Set(p, q, A.At(p, q)+yc.sign*t.coef)
			}
		}
	}
	off := len(ycols)
	for q, p := range cf.bounds {
		A.Set(p, off+q, 1)
		cost[off+q] = cf.span[cf.active[p]]
	}
	off += len(cf.bounds)
	for p, j := range cf.active {
		A.Set(p, off+p, -1)
		b[p] = cf.c[j]
	}
	normalizeRows(A, b)
	_, z, err := lp.Simplex(cost, A, b, m.env.Tolerance, nil)
	if err != nil {
		return fmt.Errorf("lp: dual solve: %w", translate(err))
	}
	for q, yc := range ycols {
		m.duals[yc.row] += yc.sign * z[q]
	}
	if m.minimize {
		for i := range m.duals {
			m.duals[i] = -m.duals[i]
		}
	}
	m.dualsReady = true
	return nil
}

// normalizeRows flips rows so that b ≥ 0.
func normalizeRows(A *mat.Dense, b []float64) {
	_, n := A.Dims()
	for r := range b {
		if b[r] >= 0 {
			continue
		}
		b[r] = -b[r]
		for j := 0; j < n; j++ {
			A.Set(r, j, -A.At(r, j))
		}
	}
}

func translate(err error) error {
	switch {
	case errors.Is(err, lp.ErrInfeasible):
		return ErrInfeasible
	case errors.Is(err, lp.ErrUnbounded):
		return ErrUnbounded
	default:
		return fmt.Errorf("lp: simplex: %w", err)
	}
}
