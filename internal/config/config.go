// Package config loads and validates ctxforge's YAML configuration.
package config

import (
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	cerrors "github.com/ctxforge/ctxforge/internal/errors"
)

// ConfigFileName is the YAML config file FindProjectRoot and the CLI look
// for at a project's root.
const ConfigFileName = "ctxforge.yaml"

// IndexingConfig controls the IndexingPipeline and ChunkExtractor.
type IndexingConfig struct {
	IncludePatterns []string `yaml:"include_patterns" json:"include_patterns"`
	ExcludePatterns []string `yaml:"exclude_patterns" json:"exclude_patterns"`
	MaxFileSize     int64    `yaml:"max_file_size" json:"max_file_size"`
	Incremental     bool     `yaml:"incremental" json:"incremental"`
	ChunkSize       int      `yaml:"chunk_size" json:"chunk_size"`
	Overlap         int      `yaml:"overlap" json:"overlap"`
	Parallelism     int      `yaml:"parallelism" json:"parallelism"`
	BatchSize       int      `yaml:"batch_size" json:"batch_size"`
}

// OptimizationConfig controls the RelevanceScorer, BudgetSelector and Compressor.
type OptimizationConfig struct {
	TokenBudget       int                `yaml:"token_budget" json:"token_budget"`
	MinRelevance      float64            `yaml:"min_relevance" json:"min_relevance"`
	MaxChunks         int                `yaml:"max_chunks" json:"max_chunks"`
	CompressionLevel  string             `yaml:"compression_level" json:"compression_level"`
	Weights           map[string]float64 `yaml:"weights" json:"weights"`
}

// ModelTierConfig describes one routing tier's token threshold and price.
type ModelTierConfig struct {
	Name             string  `yaml:"name" json:"name"`
	TokenThreshold   int     `yaml:"token_threshold" json:"token_threshold"`
	PricePerMillion  float64 `yaml:"price_per_million" json:"price_per_million"`
}

// ModelRouterConfig controls the ModelRouter's decision thresholds and prices.
type ModelRouterConfig struct {
	PreferLocal bool                       `yaml:"prefer_local" json:"prefer_local"`
	Thresholds  map[string]int             `yaml:"thresholds" json:"thresholds"`
	Prices      map[string]float64         `yaml:"prices" json:"prices"`
	Tiers       map[string]ModelTierConfig `yaml:"tiers,omitempty" json:"tiers,omitempty"`
}

// Config is the root configuration object, loaded from a single YAML file.
type Config struct {
	Indexing     IndexingConfig     `yaml:"indexing" json:"indexing"`
	Optimization OptimizationConfig `yaml:"optimization" json:"optimization"`
	ModelRouter  ModelRouterConfig  `yaml:"model_router" json:"model_router"`
}

// DefaultWeights matches the feature weights in spec.md §4.7.
func DefaultWeights() map[string]float64 {
	return map[string]float64{
		"semantic":  0.40,
		"symbol":    0.25,
		"proximity": 0.20,
		"recency":   0.10,
		"frequency": 0.05,
	}
}

// Default returns a Config populated with the defaults named throughout
// the component contracts (chunk size 512, overlap 128, batch size 100,
// min relevance 0.6, and so on).
func Default() *Config {
	return &Config{
		Indexing: IndexingConfig{
			IncludePatterns: []string{"**/*"},
			ExcludePatterns: []string{".git/**", "node_modules/**", "vendor/**"},
			MaxFileSize:     1 << 20,
			Incremental:     true,
			ChunkSize:       512,
			Overlap:         128,
			Parallelism:     4,
			BatchSize:       100,
		},
		Optimization: OptimizationConfig{
			TokenBudget:      10_000,
			MinRelevance:     0.6,
			MaxChunks:        50,
			CompressionLevel: "medium",
			Weights:          DefaultWeights(),
		},
		ModelRouter: ModelRouterConfig{
			PreferLocal: true,
			Thresholds: map[string]int{
				"local": 8_000,
				"tier1": 20_000,
				"tier2": 100_000,
			},
			Prices: map[string]float64{
				"local": 0,
				"tier1": 0.25,
				"tier2": 3.0,
				"tier3": 15.0,
			},
		},
	}
}

// Load reads and validates a YAML configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, cerrors.Wrap(err, cerrors.ErrCodeFileNotFound, "read config file")
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, cerrors.Wrap(err, cerrors.ErrCodeConfigInvalid, "parse config yaml")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate enforces the invariants spec.md §8 names: weights sum to 1.0,
// thresholds are in increasing order, and basic sanity bounds.
func (c *Config) Validate() error {
	sum := 0.0
	for _, w := range c.Optimization.Weights {
		sum += w
	}
	if len(c.Optimization.Weights) > 0 && (sum < 0.999 || sum > 1.001) {
		return cerrors.ConfigError("optimization.weights must sum to 1.0").
			WithDetail("sum", strconv.FormatFloat(sum, 'f', 4, 64))
	}
	if c.Optimization.MinRelevance < 0 || c.Optimization.MinRelevance > 1 {
		return cerrors.ConfigError("optimization.min_relevance must be in [0,1]")
	}
	switch c.Optimization.CompressionLevel {
	case "light", "medium", "aggressive":
	default:
		return cerrors.ConfigError("optimization.compression_level must be light|medium|aggressive")
	}
	local, hasLocal := c.ModelRouter.Thresholds["local"]
	tier1, hasTier1 := c.ModelRouter.Thresholds["tier1"]
	tier2, hasTier2 := c.ModelRouter.Thresholds["tier2"]
	if hasLocal && hasTier1 && local >= tier1 {
		return cerrors.ConfigError("model_router.thresholds.local must be below tier1")
	}
	if hasTier1 && hasTier2 && tier1 >= tier2 {
		return cerrors.ConfigError("model_router.thresholds.tier1 must be below tier2")
	}
	if c.Indexing.ChunkSize <= 0 {
		return cerrors.ConfigError("indexing.chunk_size must be positive")
	}
	if c.Indexing.MaxFileSize <= 0 {
		return cerrors.ConfigError("indexing.max_file_size must be positive")
	}
	return nil
}

// FindProjectRoot walks up from startDir looking for a .git directory or a
// ctxforge.yaml file, returning the first directory where either is found.
// Falls back to startDir's absolute path if neither is ever found.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", cerrors.Wrap(err, cerrors.ErrCodeConfigInvalid, "resolve start directory")
	}

	dir := absDir
	for {
		if dirExists(filepath.Join(dir, ".git")) || fileExists(filepath.Join(dir, ConfigFileName)) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return absDir, nil
		}
		dir = parent
	}
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
