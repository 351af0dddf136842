// Package instance reads and writes planning instances as YAML files.
package instance

import (
	"bytes"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// File is the on-disk form of an MDP or POMDP instance.
type File struct {
	Name        string          `yaml:"name" validate:"required"`
	Constraints ConstraintsFile `yaml:"constraints"`
	Agents      []AgentFile     `yaml:"agents" validate:"required,min=1,dive"`
}

// ConstraintsFile holds the shared limits. Limits has one entry per resource
// for budget instances and one row of Horizon entries otherwise.
type ConstraintsFile struct {
	Type      string      `yaml:"type" validate:"oneof=budget instantaneous"`
	Resources int         `yaml:"resources" validate:"min=1"`
	Horizon   int         `yaml:"horizon" validate:"min=1"`
	Limits    [][]float64 `yaml:"limits" validate:"required,dive,required"`
}

// AgentFile is one agent. Entries without an epoch apply to all epochs.
type AgentFile struct {
	States       int               `yaml:"states" validate:"min=1"`
	Actions      int               `yaml:"actions" validate:"min=1"`
	InitialState int               `yaml:"initial_state" validate:"min=0,ltfield=States"`
	Stationary   bool              `yaml:"stationary"`
	Rewards      []ValueEntry      `yaml:"rewards,omitempty" validate:"dive"`
	Costs        []ValueEntry      `yaml:"costs,omitempty" validate:"dive"`
	Transitions  []TransitionEntry `yaml:"transitions" validate:"required,dive"`
	Feasible     []FeasibleEntry   `yaml:"feasible,omitempty" validate:"dive"`

	// partially observable agents only
	Observations     int                `yaml:"observations,omitempty" validate:"min=0"`
	InitialBelief    []float64          `yaml:"initial_belief,omitempty"`
	ObservationProbs []ObservationEntry `yaml:"observation_probs,omitempty" validate:"dive"`
}

// ValueEntry sets a reward or a cost of resource K.
type ValueEntry struct {
	K     int     `yaml:"k,omitempty" validate:"min=0"`
	T     *int    `yaml:"t,omitempty"`
	S     int     `yaml:"s" validate:"min=0"`
	A     int     `yaml:"a" validate:"min=0"`
	Value float64 `yaml:"value"`
}

// TransitionEntry sets the outcome distribution of (t,s,a).
type TransitionEntry struct {
	T  *int      `yaml:"t,omitempty"`
	S  int       `yaml:"s" validate:"min=0"`
	A  int       `yaml:"a" validate:"min=0"`
	To []Outcome `yaml:"to" validate:"required,dive"`
}

// Outcome is one successor state.
type Outcome struct {
	State int     `yaml:"state" validate:"min=0"`
	Prob  float64 `yaml:"prob" validate:"gte=0,lte=1"`
}

// FeasibleEntry restricts the actions at (t,s).
type FeasibleEntry struct {
	T       *int  `yaml:"t,omitempty"`
	S       int   `yaml:"s" validate:"min=0"`
	Actions []int `yaml:"actions" validate:"required,dive,min=0"`
}

// ObservationEntry sets O(a, next, o).
type ObservationEntry struct {
	A    int     `yaml:"a" validate:"min=0"`
	Next int     `yaml:"next" validate:"min=0"`
	O    int     `yaml:"o" validate:"min=0"`
	Prob float64 `yaml:"prob" validate:"gte=0,lte=1"`
}

var validate = validator.New()

// Validate checks the structural tags. Model semantics are checked on conversion.
func (f *File) Validate() error {
	if err := validate.Struct(f); err != nil {
		return fmt.Errorf("instance %q: %w", f.Name, err)
	}
	return nil
}

// PartiallyObservable reports whether every agent has an observation model.
func (f *File) PartiallyObservable() bool {
	for _, a := range f.Agents {
		if a.Observations == 0 {
			return false
		}
	}
	return true
}

// Parse decodes and validates YAML data.
func Parse(data []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode instance: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Load reads an instance file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Marshal encodes f as YAML.
func (f *File) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Save writes f to path.
func (f *File) Save(path string) error {
	data, err := f.Marshal()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
