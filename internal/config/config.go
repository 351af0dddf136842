// Package config loads planner settings from YAML.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/elektrokombinacija/cgcp-planner/internal/algo"
)

// Config is the planner configuration.
type Config struct {
	Decomposition Decomposition `yaml:"decomposition"`
	Subproblem    Subproblem    `yaml:"subproblem"`
	CALP          CALP          `yaml:"calp"`
	LP            LP            `yaml:"lp"`
	Simulation    Simulation    `yaml:"simulation"`
	Relaxation    Relaxation    `yaml:"relaxation"`
	Logging       Logging       `yaml:"logging"`
	Metrics       Metrics       `yaml:"metrics"`
	Store         Store         `yaml:"store"`
}

// Decomposition tunes the column generation loop.
type Decomposition struct {
	DualTolerance         float64       `yaml:"dual_tolerance" validate:"gt=0"`
	TimeLimit             time.Duration `yaml:"time_limit" validate:"gt=0"`
	UseRuntimeIncrease    bool          `yaml:"use_runtime_increase"`
	RuntimeIncrease       time.Duration `yaml:"runtime_increase" validate:"gte=0"`
	MinimumIncreaseRounds int           `yaml:"minimum_increase_rounds" validate:"gte=0"`
	Seed                  string        `yaml:"seed" validate:"seedstrategy"`
	NoConsumptionAction   int           `yaml:"no_consumption_action" validate:"gte=0"`
	SeedMultiplier        float64       `yaml:"seed_multiplier" validate:"gte=0"`
	RandomSeed            int64         `yaml:"random_seed"`
}

// Subproblem tunes the point-based POMDP solver.
type Subproblem struct {
	TimeLimit     time.Duration `yaml:"time_limit" validate:"gt=0"`
	MaxIterations int           `yaml:"max_iterations" validate:"gt=0"`
	TightGap      float64       `yaml:"tight_gap" validate:"gt=0"`
}

// CALP tunes the approximate-LP POMDP planner.
type CALP struct {
	NumBeliefs      int           `yaml:"num_beliefs" validate:"gt=0"`
	MaxIterations   int           `yaml:"max_iterations" validate:"gt=0"`
	TimeLimit       time.Duration `yaml:"time_limit" validate:"gt=0"`
	SearchTolerance float64       `yaml:"search_tolerance" validate:"gte=0,lt=1"`
}

// LP selects the LP backend.
type LP struct {
	Backend   string  `yaml:"backend" validate:"required"`
	Tolerance float64 `yaml:"tolerance" validate:"gt=0"`
	Infinite  float64 `yaml:"infinite" validate:"gt=0"`
}

// Simulation tunes Monte-Carlo evaluation.
type Simulation struct {
	Episodes  int     `yaml:"episodes" validate:"gt=0"`
	Batches   int     `yaml:"batches" validate:"gt=0"`
	Seed      int64   `yaml:"seed"`
	Tolerance float64 `yaml:"tolerance" validate:"gte=0"`
}

// Relaxation tunes chance-constrained limit tightening.
type Relaxation struct {
	Alpha                float64       `yaml:"alpha" validate:"gt=0,lt=1"`
	Beta                 float64       `yaml:"beta" validate:"gt=0"`
	ConvergenceTolerance float64       `yaml:"convergence_tolerance" validate:"gt=0"`
	TimeLimit            time.Duration `yaml:"time_limit" validate:"gt=0"`
	Episodes             int           `yaml:"episodes" validate:"gt=0"`
}

// Logging selects the slog handler.
type Logging struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// Metrics configures the Prometheus endpoint. An empty address disables it.
type Metrics struct {
	Addr string `yaml:"addr" validate:"omitempty,hostname_port"`
}

// Store configures the run log. An empty path disables it.
type Store struct {
	Path string `yaml:"path"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Decomposition: Decomposition{
			DualTolerance:         1e-6,
			TimeLimit:             time.Minute,
			RuntimeIncrease:       5 * time.Second,
			MinimumIncreaseRounds: 5,
			Seed:                  "min-cost",
			RandomSeed:            222,
		},
		Subproblem: Subproblem{
			TimeLimit:     5 * time.Second,
			MaxIterations: 1000000,
			TightGap:      1e-4,
		},
		CALP: CALP{
			NumBeliefs:      20,
			MaxIterations:   25,
			TimeLimit:       time.Minute,
			SearchTolerance: 1e-6,
		},
		LP: LP{
			Backend:   "simplex",
			Tolerance: 1e-9,
			Infinite:  1e8,
		},
		Simulation: Simulation{
			Episodes:  10000,
			Batches:   8,
			Seed:      42,
			Tolerance: 1e-9,
		},
		Relaxation: Relaxation{
			Alpha:                0.05,
			Beta:                 2,
			ConvergenceTolerance: 0.01,
			TimeLimit:            time.Minute,
			Episodes:             100000,
		},
		Logging: Logging{Level: "info", Format: "text"},
	}
}

var validate *validator.Validate

func init() {
	validate = validator.New()
	if err := validate.RegisterValidation("seedstrategy", validSeedStrategy); err != nil {
		panic(fmt.Sprintf("config: register seedstrategy validation: %v", err))
	}
}

func validSeedStrategy(fl validator.FieldLevel) bool {
	_, ok := algo.ParseSeedStrategy(fl.Field().String())
	return ok
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, len(verrs))
			for i, fe := range verrs {
				msgs[i] = fmt.Sprintf("%s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Load reads path over the defaults and validates the result.
func Load(path string) (Config, error) {
	c := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return c, fmt.Errorf("%s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return c, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Logger builds the configured slog logger writing to w.
func (l Logging) Logger(w io.Writer) *slog.Logger {
	var level slog.Level
	switch l.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
