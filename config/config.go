// Package config loads service configuration from the environment, with
// optional .env files for local development.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Defaults.
const (
	DefaultPolicyDir       = "./data/policies"
	DefaultTemplateCatalog = "./data/templates.json"
	DefaultVectorDir       = "./data/vectors"
	DefaultListenAddr      = ":8080"
)

// Config is the full service configuration.
type Config struct {
	// AnthropicAPIKey authenticates template generation and review calls.
	AnthropicAPIKey string
	// OpenAIAPIKey authenticates embedding calls. Optional: without it the
	// retriever runs sparse-only.
	OpenAIAPIKey string

	// Model is the Anthropic model name.
	Model string
	// EmbeddingModel is the OpenAI embedding model name.
	EmbeddingModel string

	// Temperature is the sampling temperature for generation and review.
	Temperature float64
	// MaxTokens is the completion budget per model call.
	MaxTokens int

	// PolicyDir holds the policy markdown corpus.
	PolicyDir string
	// TemplateCatalog is the approved template JSON file.
	TemplateCatalog string
	// VectorDir is where the vector index persists.
	VectorDir string

	// ListenAddr is the HTTP bind address.
	ListenAddr string

	// DenseWeight and SparseWeight tune hybrid search fusion.
	DenseWeight  float64
	SparseWeight float64

	// CacheTTL and CacheMaxSize tune the result cache.
	CacheTTL     time.Duration
	CacheMaxSize int

	// MaxIterations and MinComplianceScore bound the refinement loop.
	MaxIterations      int
	MinComplianceScore float64
	// AutoRefinement enables regeneration on a failing verdict.
	AutoRefinement bool
	// StrictCompliance refines while required changes remain.
	StrictCompliance bool

	// LogLevel is debug, info, warn, or error.
	LogLevel string
}

// FromEnv builds a Config from environment variables. Call LoadDotEnv
// first if .env files should participate.
func FromEnv() *Config {
	return &Config{
		AnthropicAPIKey:    envString("ANTHROPIC_API_KEY", ""),
		OpenAIAPIKey:       envString("OPENAI_API_KEY", ""),
		Model:              envString("ALIMGEN_MODEL", ""),
		EmbeddingModel:     envString("ALIMGEN_EMBEDDING_MODEL", ""),
		Temperature:        envFloat("ALIMGEN_TEMPERATURE", 0.3),
		MaxTokens:          envInt("ALIMGEN_MAX_TOKENS", 2000),
		PolicyDir:          envString("ALIMGEN_POLICY_DIR", DefaultPolicyDir),
		TemplateCatalog:    envString("ALIMGEN_TEMPLATE_CATALOG", DefaultTemplateCatalog),
		VectorDir:          envString("ALIMGEN_VECTOR_DIR", DefaultVectorDir),
		ListenAddr:         envString("ALIMGEN_LISTEN_ADDR", DefaultListenAddr),
		DenseWeight:        envFloat("ALIMGEN_DENSE_WEIGHT", 0.7),
		SparseWeight:       envFloat("ALIMGEN_SPARSE_WEIGHT", 0.3),
		CacheTTL:           time.Duration(envInt("ALIMGEN_CACHE_TTL_SECONDS", 3600)) * time.Second,
		CacheMaxSize:       envInt("ALIMGEN_CACHE_MAX_SIZE", 1000),
		MaxIterations:      envInt("ALIMGEN_MAX_ITERATIONS", 3),
		MinComplianceScore: envFloat("ALIMGEN_MIN_COMPLIANCE_SCORE", 80),
		AutoRefinement:     envBool("ALIMGEN_AUTO_REFINEMENT", true),
		StrictCompliance:   envBool("ALIMGEN_STRICT_COMPLIANCE", true),
		LogLevel:           envString("ALIMGEN_LOG_LEVEL", "info"),
	}
}

// Validate checks the settings needed to serve requests.
func (c *Config) Validate() error {
	if c.AnthropicAPIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is required")
	}
	if c.DenseWeight < 0 || c.SparseWeight < 0 {
		return fmt.Errorf("search weights must be non-negative")
	}
	if c.DenseWeight+c.SparseWeight == 0 {
		return fmt.Errorf("at least one search weight must be positive")
	}
	if c.MaxIterations <= 0 {
		return fmt.Errorf("max iterations must be positive")
	}
	if c.Temperature < 0 || c.Temperature > 1 {
		return fmt.Errorf("temperature must be between 0 and 1")
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("max tokens must be positive")
	}
	return nil
}

// SlogLevel maps the configured level name onto slog.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
