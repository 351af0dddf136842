package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elektrokombinacija/cgcp-planner/internal/algo"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cgcp.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultValidates(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, "simplex", c.LP.Backend)
	assert.Equal(t, "min-cost", c.Decomposition.Seed)
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := writeConfig(t, `
decomposition:
  time_limit: 30s
  seed: no-consumption
simulation:
  episodes: 500
calp:
  num_beliefs: 7
logging:
  format: json
`)
	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, c.Decomposition.TimeLimit)
	assert.Equal(t, "no-consumption", c.Decomposition.Seed)
	assert.Equal(t, 500, c.Simulation.Episodes)
	assert.Equal(t, 7, c.CALP.NumBeliefs)
	assert.Equal(t, 25, c.CALP.MaxIterations)
	assert.Equal(t, 8, c.Simulation.Batches)
	assert.Equal(t, 1e-6, c.Decomposition.DualTolerance)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown seed", "decomposition:\n  seed: greedy\n"},
		{"alpha out of range", "relaxation:\n  alpha: 1.5\n"},
		{"bad log level", "logging:\n  level: loud\n"},
		{"zero episodes", "simulation:\n  episodes: 0\n"},
		{"bad metrics addr", "metrics:\n  addr: nope\n"},
		{"no calp beliefs", "calp:\n  num_beliefs: 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid config")
		})
	}
}

func TestSeedStrategiesValidate(t *testing.T) {
	for _, seed := range []algo.SeedStrategy{algo.SeedMinCost, algo.SeedNoConsumption, algo.SeedArtificial} {
		c := Default()
		c.Decomposition.Seed = seed.String()
		assert.NoError(t, c.Validate(), seed.String())
	}
	c := Default()
	c.Decomposition.Seed = ""
	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "seedstrategy")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoggerFormat(t *testing.T) {
	var buf bytes.Buffer
	Logging{Level: "debug", Format: "json"}.Logger(&buf).Debug("hello", "k", 1)
	assert.Contains(t, buf.String(), `"msg":"hello"`)

	buf.Reset()
	Logging{Level: "warn", Format: "text"}.Logger(&buf).Info("hidden")
	assert.Empty(t, buf.String())
}
