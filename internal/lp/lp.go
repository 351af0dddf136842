// Package lp defines the linear-program backend used by the planners.
//
// Backends register under a name and are selected through an explicit Env
// handle that callers create once and pass down.
package lp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

var (
	ErrInfeasible         = errors.New("lp: problem is infeasible")
	ErrUnbounded          = errors.New("lp: problem is unbounded")
	ErrNotSolved          = errors.New("lp: model has no solution yet")
	ErrIntegerUnsupported = errors.New("lp: backend does not support integer variables")
	ErrUnknownBackend     = errors.New("lp: unknown backend")
	ErrInfiniteLowerBound = errors.New("lp: variables need a finite lower bound")
	ErrUnknownHandle      = errors.New("lp: unknown variable or constraint")
)

// Sense is the relation of a constraint.
type Sense int

const (
	LessEqual Sense = iota
	Equal
	GreaterEqual
)

func (s Sense) String() string {
	return [...]string{"<=", "=", ">="}[s]
}

// VarType is the domain of a variable.
type VarType int

const (
	Continuous VarType = iota
	Integer
)

// Var is a handle to a model variable.
type Var int

// Constr is a handle to a model constraint.
type Constr int

type term struct {
	coef float64
	idx  int
}

// Expr is a sparse linear expression over variables.
type Expr struct {
	terms []term
}

// AddTerm adds coef·v.
func (e *Expr) AddTerm(coef float64, v Var) *Expr {
	e.terms = append(e.terms, term{coef: coef, idx: int(v)})
	return e
}

// Column is a sparse set of coefficients of a new variable in existing constraints.
type Column struct {
	terms []term
}

// AddTerm adds coef to constraint c.
func (c *Column) AddTerm(coef float64, con Constr) *Column {
	c.terms = append(c.terms, term{coef: coef, idx: int(con)})
	return c
}

// Model is one linear program. Models maximize unless SetMinimize is called.
type Model interface {
	SetMinimize(minimize bool)
	AddVar(lb, ub, obj float64, vt VarType) (Var, error)
	AddConstr(e *Expr, s Sense, rhs float64) (Constr, error)
	// AddColumn adds a variable together with its coefficients in existing constraints.
	AddColumn(lb, ub, obj float64, vt VarType, col *Column) (Var, error)
	SetRHS(c Constr, rhs float64) error
	Solve(ctx context.Context) error
	Objective() float64
	Value(v Var) float64
	// Dual returns the shadow price ∂objective/∂rhs of c at the last solution.
	Dual(c Constr) (float64, error)
	NumVars() int
	NumConstrs() int
	Dispose()
}

// Backend creates models.
type Backend interface {
	Name() string
	NewModel(env *Env) Model
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Backend{}
)

// Register makes a backend available by name. Build-tagged files call it from init.
func Register(b Backend) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[b.Name()] = b
}

// Backends lists the registered backend names.
func Backends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Env is the solver environment handle. It is created by the process and
// threaded through every model construction.
type Env struct {
	backend Backend

	// Infinite is the magnitude used for big-M coefficients.
	Infinite float64
	// Tolerance is the numerical tolerance handed to the backend.
	Tolerance float64

	logger *slog.Logger
}

// Option configures an Env.
type Option func(*Env)

// WithLogger sets the environment logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Env) { e.logger = l }
}

// WithTolerance sets the numerical tolerance.
func WithTolerance(tol float64) Option {
	return func(e *Env) { e.Tolerance = tol }
}

// WithInfinite sets the big-M magnitude.
func WithInfinite(inf float64) Option {
	return func(e *Env) { e.Infinite = inf }
}

// NewEnv creates an environment for the named backend.
func NewEnv(backend string, opts ...Option) (*Env, error) {
	registryMu.RLock()
	b, ok := registry[backend]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q (have %v)", ErrUnknownBackend, backend, Backends())
	}
	env := &Env{backend: b, Infinite: 1e8, Tolerance: 1e-9}
	for _, o := range opts {
		o(env)
	}
	if env.logger == nil {
		env.logger = slog.Default()
	}
	return env, nil
}

// Backend returns the backend name.
func (e *Env) Backend() string { return e.backend.Name() }

// Logger returns the environment logger.
func (e *Env) Logger() *slog.Logger { return e.logger }

// NewModel creates an empty model.
func (e *Env) NewModel() Model {
	return e.backend.NewModel(e)
}
