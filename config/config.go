// Package config provides configuration loading and management for the
// enhancement engine.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete engine configuration.
type Config struct {
	Provider   ProviderConfig   `yaml:"provider"`
	Retry      RetryConfig      `yaml:"retry"`
	Similarity SimilarityConfig `yaml:"similarity"`
	Cache      CacheConfig      `yaml:"cache"`
	Run        RunConfig        `yaml:"run"`
}

// ProviderConfig configures the LLM provider endpoint.
type ProviderConfig struct {
	// Name selects the registered provider adapter ("anthropic",
	// "openai", "ollama").
	Name string `yaml:"name"`
	// Endpoint overrides the provider's default base URL.
	Endpoint string `yaml:"endpoint"`
	// Model is the model identifier sent to the provider.
	Model string `yaml:"model"`
	// Timeout bounds each network call. Expiry is handled as truncation.
	Timeout time.Duration `yaml:"timeout"`
}

// RetryConfig tunes the adaptive retry protocol. The shrink factors are
// deliberate configuration, not hard-coded invariants.
type RetryConfig struct {
	// MaxRetries is the number of additional attempts after the first.
	MaxRetries int `yaml:"max_retries"`
	// OutputShrink scales the output budget after a truncated attempt.
	OutputShrink float64 `yaml:"output_shrink"`
	// CardinalityShrink scales cardinality limits when tightening.
	CardinalityShrink float64 `yaml:"cardinality_shrink"`
	// NearLimitRatio marks outputs this close to the budget as truncated.
	NearLimitRatio float64 `yaml:"near_limit_ratio"`
	// BackoffBase is the initial backoff between attempts.
	BackoffBase time.Duration `yaml:"backoff_base"`
}

// SimilarityConfig configures the similarity engine and its tiers.
type SimilarityConfig struct {
	// Threshold is the minimum link score (0-1).
	Threshold float64 `yaml:"threshold"`
	// TopN caps links returned per query.
	TopN int `yaml:"top_n"`
	// MaxCandidates caps the phase-one candidate shortlist.
	MaxCandidates int `yaml:"max_candidates"`
	// RemoteEndpoint enables the remote embedding tier when set.
	RemoteEndpoint string `yaml:"remote_endpoint"`
	RemoteModel    string `yaml:"remote_model"`
	// LocalEndpoint enables the local embedding tier when set.
	LocalEndpoint string `yaml:"local_endpoint"`
	LocalModel    string `yaml:"local_model"`
}

// CacheConfig configures the enhancement cache backend.
type CacheConfig struct {
	// Backend is "sqlite", "nats", or "memory".
	Backend string `yaml:"backend"`
	// Path is the SQLite database path.
	Path string `yaml:"path"`
	// NATSURL is the NATS server URL for the nats backend.
	NATSURL string `yaml:"nats_url"`
	// Bucket is the KV bucket name for the nats backend.
	Bucket string `yaml:"bucket"`
}

// RunConfig configures orchestration.
type RunConfig struct {
	// Workers is the number of units processed concurrently.
	Workers int `yaml:"workers"`
	// SelectionOutputTokens is the phase-one output budget.
	SelectionOutputTokens int `yaml:"selection_output_tokens"`
	// AnnotationOutputTokens is the phase-two output budget.
	AnnotationOutputTokens int `yaml:"annotation_output_tokens"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderConfig{
			Name:    "ollama",
			Model:   "qwen2.5:14b",
			Timeout: 3 * time.Minute,
		},
		Retry: RetryConfig{
			MaxRetries:        2,
			OutputShrink:      0.8,
			CardinalityShrink: 0.5,
			NearLimitRatio:    0.95,
			BackoffBase:       2 * time.Second,
		},
		Similarity: SimilarityConfig{
			Threshold:     0.7,
			TopN:          5,
			MaxCandidates: 10,
		},
		Cache: CacheConfig{
			Backend: "sqlite",
			Path:    ".docengine/cache.db",
		},
		Run: RunConfig{
			Workers:                1,
			SelectionOutputTokens:  2000,
			AnnotationOutputTokens: 8000,
		},
	}
}

// Merge overlays non-zero fields of other onto c.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}
	mergeString(&c.Provider.Name, other.Provider.Name)
	mergeString(&c.Provider.Endpoint, other.Provider.Endpoint)
	mergeString(&c.Provider.Model, other.Provider.Model)
	if other.Provider.Timeout > 0 {
		c.Provider.Timeout = other.Provider.Timeout
	}

	if other.Retry.MaxRetries > 0 {
		c.Retry.MaxRetries = other.Retry.MaxRetries
	}
	if other.Retry.OutputShrink > 0 {
		c.Retry.OutputShrink = other.Retry.OutputShrink
	}
	if other.Retry.CardinalityShrink > 0 {
		c.Retry.CardinalityShrink = other.Retry.CardinalityShrink
	}
	if other.Retry.NearLimitRatio > 0 {
		c.Retry.NearLimitRatio = other.Retry.NearLimitRatio
	}
	if other.Retry.BackoffBase > 0 {
		c.Retry.BackoffBase = other.Retry.BackoffBase
	}

	if other.Similarity.Threshold > 0 {
		c.Similarity.Threshold = other.Similarity.Threshold
	}
	if other.Similarity.TopN > 0 {
		c.Similarity.TopN = other.Similarity.TopN
	}
	if other.Similarity.MaxCandidates > 0 {
		c.Similarity.MaxCandidates = other.Similarity.MaxCandidates
	}
	mergeString(&c.Similarity.RemoteEndpoint, other.Similarity.RemoteEndpoint)
	mergeString(&c.Similarity.RemoteModel, other.Similarity.RemoteModel)
	mergeString(&c.Similarity.LocalEndpoint, other.Similarity.LocalEndpoint)
	mergeString(&c.Similarity.LocalModel, other.Similarity.LocalModel)

	mergeString(&c.Cache.Backend, other.Cache.Backend)
	mergeString(&c.Cache.Path, other.Cache.Path)
	mergeString(&c.Cache.NATSURL, other.Cache.NATSURL)
	mergeString(&c.Cache.Bucket, other.Cache.Bucket)

	if other.Run.Workers > 0 {
		c.Run.Workers = other.Run.Workers
	}
	if other.Run.SelectionOutputTokens > 0 {
		c.Run.SelectionOutputTokens = other.Run.SelectionOutputTokens
	}
	if other.Run.AnnotationOutputTokens > 0 {
		c.Run.AnnotationOutputTokens = other.Run.AnnotationOutputTokens
	}
}

func mergeString(dst *string, src string) {
	if src != "" {
		*dst = src
	}
}

// Validate checks that the configuration is usable. A failure here is a
// startup error; nothing downstream re-validates.
func (c *Config) Validate() error {
	if c.Provider.Name == "" {
		return fmt.Errorf("provider.name is required")
	}
	if c.Provider.Model == "" {
		return fmt.Errorf("provider.model is required")
	}
	switch c.Cache.Backend {
	case "sqlite", "nats", "memory":
	default:
		return fmt.Errorf("cache.backend must be sqlite, nats, or memory, got %q", c.Cache.Backend)
	}
	if c.Cache.Backend == "sqlite" && c.Cache.Path == "" {
		return fmt.Errorf("cache.path is required for the sqlite backend")
	}
	if c.Similarity.Threshold < 0 || c.Similarity.Threshold > 1 {
		return fmt.Errorf("similarity.threshold must be in [0,1], got %v", c.Similarity.Threshold)
	}
	if c.Retry.OutputShrink <= 0 || c.Retry.OutputShrink >= 1 {
		return fmt.Errorf("retry.output_shrink must be in (0,1), got %v", c.Retry.OutputShrink)
	}
	return nil
}

// Digest returns a stable digest over every setting that affects
// enhancement output. It is folded into cache fingerprints so changed
// configuration never serves stale results.
func (c *Config) Digest() string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%d|%v|%v|%v|%v|%d|%d|%d|%d",
		c.Provider.Name, c.Provider.Endpoint, c.Provider.Model,
		c.Retry.MaxRetries, c.Retry.OutputShrink, c.Retry.CardinalityShrink,
		c.Retry.NearLimitRatio,
		c.Similarity.Threshold, c.Similarity.TopN, c.Similarity.MaxCandidates,
		c.Run.SelectionOutputTokens, c.Run.AnnotationOutputTokens)
	return hex.EncodeToString(h.Sum(nil))
}

// LoadFromFile parses a YAML config file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}
