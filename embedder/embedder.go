// Package embedder converts text into dense vectors for similarity search.
package embedder

import (
	"context"
	"fmt"
	"time"
)

// Embedder converts text to vector embeddings.
type Embedder interface {
	// Embed converts a single text to a vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch converts multiple texts to vectors, preserving input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the embedding vector dimension.
	Dimension() int

	// Model returns the model name in use.
	Model() string

	// Close releases any resources.
	Close() error
}

// Config selects and configures an embedder provider.
type Config struct {
	// Provider name. Currently only "openai".
	Provider string
	// APIKey for the provider.
	APIKey string
	// BaseURL overrides the provider endpoint.
	BaseURL string
	// Model name.
	Model string
	// Dimension of the output vectors (0 = model default).
	Dimension int
	// Timeout per API request in seconds.
	Timeout int
	// BatchSize for batch embedding requests.
	BatchSize int
}

// SetDefaults applies default configuration values.
func (c *Config) SetDefaults() {
	if c.Provider == "" {
		c.Provider = "openai"
	}
	if c.Model == "" {
		c.Model = "text-embedding-3-small"
	}
	if c.Timeout <= 0 {
		c.Timeout = 30
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
}

// NewFromConfig creates an Embedder from configuration.
func NewFromConfig(cfg Config) (Embedder, error) {
	cfg.SetDefaults()

	switch cfg.Provider {
	case "openai":
		return NewOpenAIEmbedder(OpenAIConfig{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			Dimension: cfg.Dimension,
			Timeout:   time.Duration(cfg.Timeout) * time.Second,
			BatchSize: cfg.BatchSize,
		})
	default:
		return nil, fmt.Errorf("unsupported embedder provider: %s (supported: openai)", cfg.Provider)
	}
}
