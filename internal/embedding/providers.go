package embedding

import (
	"context"
	"fmt"

	"github.com/raphaelgruber/compcluster/internal/config"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Client wraps a langchaingo embedder with dimension validation.
type Client struct {
	model     embeddings.Embedder
	modelName string
	dimension int
}

// Compile-time check that Client implements Embedder.
var _ Embedder = (*Client)(nil)

// NewClient creates an embedding client for the configured provider.
func NewClient(cfg config.Pipeline) (*Client, error) {
	var model embeddings.Embedder
	var err error

	switch cfg.Provider {
	case "ollama", "":
		llm, ollamaErr := ollama.New(
			ollama.WithModel(cfg.Model),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if ollamaErr != nil {
			return nil, fmt.Errorf("create ollama client: %w", ollamaErr)
		}
		model, err = embeddings.NewEmbedder(llm)
		if err != nil {
			return nil, fmt.Errorf("create ollama embedder: %w", err)
		}

	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		llm, openaiErr := openai.New(
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithEmbeddingModel(cfg.Model),
		)
		if openaiErr != nil {
			return nil, fmt.Errorf("create openai client: %w", openaiErr)
		}
		model, err = embeddings.NewEmbedder(llm)
		if err != nil {
			return nil, fmt.Errorf("create openai embedder: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}

	return &Client{
		model:     model,
		modelName: cfg.Model,
		dimension: cfg.Dimension,
	}, nil
}

// Model returns the configured model identifier.
func (c *Client) Model() string { return c.modelName }

// Dimension returns the expected embedding width.
func (c *Client) Dimension() int { return c.dimension }

// EmbedBatch generates embeddings for multiple texts, verifying every
// vector against the expected dimension.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	vectors, err := c.model.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed batch: %w", err)
	}

	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(vectors), len(texts))
	}
	for i, v := range vectors {
		if len(v) != c.dimension {
			return nil, fmt.Errorf("%w: vector %d has width %d, want %d (model: %s)",
				ErrDimensionMismatch, i, len(v), c.dimension, c.modelName)
		}
	}

	return vectors, nil
}
