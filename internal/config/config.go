// Package config loads the engine configuration from HCL.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2/hclsimple"

	"github.com/agentic-research/strata/api"
	"github.com/agentic-research/strata/internal/query"
)

// Config is the root document.
type Config struct {
	DataDir string `hcl:"data_dir,optional"`

	Model     *ModelConfig     `hcl:"model,block"`
	Retrieval *RetrievalConfig `hcl:"retrieval,block"`
	Chain     *ChainConfig     `hcl:"chain,block"`
	Regions   []RegionConfig   `hcl:"region,block"`
}

// ModelConfig configures the decision endpoint.
type ModelConfig struct {
	Endpoint          string  `hcl:"endpoint"`
	APIKeyEnv         string  `hcl:"api_key_env,optional"`
	TimeoutSeconds    int     `hcl:"timeout_seconds,optional"`
	RequestsPerSecond float64 `hcl:"requests_per_second,optional"`
	MaxRetries        int     `hcl:"max_retries,optional"`
}

// APIKey resolves the key from the configured environment variable.
func (m *ModelConfig) APIKey() string {
	if m.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(m.APIKeyEnv)
}

// Timeout returns the request timeout.
func (m *ModelConfig) Timeout() time.Duration {
	if m.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(m.TimeoutSeconds) * time.Second
}

// RetrievalConfig sizes chunks, the cache, and the scorer.
type RetrievalConfig struct {
	TokenTarget int            `hcl:"token_target,optional"`
	TokenMax    int            `hcl:"token_max,optional"`
	CacheBytes  int64          `hcl:"cache_bytes,optional"`
	MaxTokens   int            `hcl:"max_tokens,optional"`
	Strategy    string         `hcl:"strategy,optional"`
	Weights     *query.Weights `hcl:"weights,block"`
}

// ChainConfig tunes the executor loop.
type ChainConfig struct {
	MaxIterations int    `hcl:"max_iterations,optional"`
	HistoryChars  int    `hcl:"history_chars,optional"`
	System        string `hcl:"system,optional"`
}

// RegionConfig names a resolvable spatial region for the scorer.
type RegionConfig struct {
	Name string    `hcl:"name,label"`
	Min  []float64 `hcl:"min"`
	Max  []float64 `hcl:"max"`
}

// Default returns a config that works without any file present.
func Default() *Config {
	return &Config{
		DataDir: ".strata",
		Model: &ModelConfig{
			Endpoint: "http://localhost:8811",
		},
		Retrieval: &RetrievalConfig{
			TokenTarget: 400,
			TokenMax:    800,
			CacheBytes:  64 << 20,
			MaxTokens:   2000,
			Strategy:    query.SelectGreedy,
		},
		Chain: &ChainConfig{},
	}
}

// Load reads an HCL config file and fills the gaps with defaults.
// A missing file is not an error; the defaults carry.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	var loaded Config
	if err := hclsimple.DecodeFile(path, nil, &loaded); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.merge(&loaded)
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) merge(o *Config) {
	if o.DataDir != "" {
		c.DataDir = o.DataDir
	}
	if o.Model != nil {
		if o.Model.Endpoint != "" {
			c.Model.Endpoint = o.Model.Endpoint
		}
		c.Model.APIKeyEnv = o.Model.APIKeyEnv
		c.Model.TimeoutSeconds = o.Model.TimeoutSeconds
		c.Model.RequestsPerSecond = o.Model.RequestsPerSecond
		c.Model.MaxRetries = o.Model.MaxRetries
	}
	if o.Retrieval != nil {
		if o.Retrieval.TokenTarget > 0 {
			c.Retrieval.TokenTarget = o.Retrieval.TokenTarget
		}
		if o.Retrieval.TokenMax > 0 {
			c.Retrieval.TokenMax = o.Retrieval.TokenMax
		}
		if o.Retrieval.CacheBytes > 0 {
			c.Retrieval.CacheBytes = o.Retrieval.CacheBytes
		}
		if o.Retrieval.MaxTokens > 0 {
			c.Retrieval.MaxTokens = o.Retrieval.MaxTokens
		}
		if o.Retrieval.Strategy != "" {
			c.Retrieval.Strategy = o.Retrieval.Strategy
		}
		c.Retrieval.Weights = o.Retrieval.Weights
	}
	if o.Chain != nil {
		c.Chain = o.Chain
	}
	c.Regions = o.Regions
}

func (c *Config) validate() error {
	if w := c.Retrieval.Weights; w != nil && !w.Valid() {
		return fmt.Errorf("scorer weights must sum to 1")
	}
	switch c.Retrieval.Strategy {
	case query.SelectGreedy, query.SelectBalanced, query.SelectDiverse:
	default:
		return fmt.Errorf("unknown selection strategy %q", c.Retrieval.Strategy)
	}
	if c.Retrieval.TokenMax < c.Retrieval.TokenTarget {
		return fmt.Errorf("token_max must be >= token_target")
	}
	for _, r := range c.Regions {
		if len(r.Min) != 3 || len(r.Max) != 3 {
			return fmt.Errorf("region %q: min and max need exactly 3 components", r.Name)
		}
	}
	return nil
}

// Weights returns the configured scorer weights or the defaults.
func (c *Config) Weights() query.Weights {
	if c.Retrieval.Weights != nil {
		return *c.Retrieval.Weights
	}
	return query.DefaultWeights
}

// RegionResolver maps named regions into the scorer's spatial factor.
func (c *Config) RegionResolver() query.RegionResolver {
	if len(c.Regions) == 0 {
		return nil
	}
	regions := make(map[string]api.Box, len(c.Regions))
	for _, r := range c.Regions {
		regions[r.Name] = api.Box{
			Min: api.Vec3{X: r.Min[0], Y: r.Min[1], Z: r.Min[2]},
			Max: api.Vec3{X: r.Max[0], Y: r.Max[1], Z: r.Max[2]},
		}
	}
	return func(term string) (api.Box, bool) {
		b, ok := regions[term]
		return b, ok
	}
}
