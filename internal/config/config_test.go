package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/strata/internal/query"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "strata.hcl")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.hcl"))
	require.NoError(t, err)
	assert.Equal(t, query.SelectGreedy, cfg.Retrieval.Strategy)
	assert.Equal(t, 400, cfg.Retrieval.TokenTarget)
	assert.Equal(t, query.DefaultWeights, cfg.Weights())
	assert.Nil(t, cfg.RegionResolver())
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
data_dir = "/var/lib/strata"

model {
  endpoint            = "https://decisions.example.com"
  api_key_env         = "STRATA_API_KEY"
  timeout_seconds     = 60
  requests_per_second = 0.5
}

retrieval {
  token_target = 250
  token_max    = 500
  strategy     = "diverse"

  weights {
    text_match     = 0.4
    entity_match   = 0.3
    spatial        = 0.1
    recency        = 0.1
    type_alignment = 0.1
  }
}

chain {
  max_iterations = 8
}

region "north wing" {
  min = [0, 0, 0]
  max = [50, 20, 30]
}
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/strata", cfg.DataDir)
	assert.Equal(t, "https://decisions.example.com", cfg.Model.Endpoint)
	assert.Equal(t, 60, cfg.Model.TimeoutSeconds)
	assert.Equal(t, 250, cfg.Retrieval.TokenTarget)
	assert.Equal(t, "diverse", cfg.Retrieval.Strategy)
	assert.Equal(t, 8, cfg.Chain.MaxIterations)
	assert.InDelta(t, 0.4, cfg.Weights().TextMatch, 1e-9)

	resolve := cfg.RegionResolver()
	require.NotNil(t, resolve)
	box, ok := resolve("north wing")
	require.True(t, ok)
	assert.Equal(t, 50.0, box.Max.X)
	_, ok = resolve("south wing")
	assert.False(t, ok)
}

func TestLoadRejectsBadWeights(t *testing.T) {
	path := writeConfig(t, `
retrieval {
  weights {
    text_match = 0.9
  }
}
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sum to 1")
}

func TestLoadRejectsBadStrategy(t *testing.T) {
	path := writeConfig(t, `
retrieval {
  strategy = "optimal"
}
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "strategy")
}

func TestLoadRejectsMalformedRegion(t *testing.T) {
	path := writeConfig(t, `
region "broken" {
  min = [0, 0]
  max = [1, 1, 1]
}
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "3 components")
}
