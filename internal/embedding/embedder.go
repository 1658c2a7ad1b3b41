// Package embedding turns normalized company descriptions into fused
// unit-length vectors.
package embedding

import (
	"context"
	"errors"
)

// ErrDimensionMismatch indicates the model returned vectors of an
// unexpected width. This is fatal: it means a misconfigured or swapped
// model, and no output from the run can be trusted.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Embedder is the narrow capability the pipeline needs from an embedding
// model: batched text in, vectors out. Implementations must be safe for
// concurrent use; the fuser calls EmbedBatch from multiple workers.
type Embedder interface {
	// EmbedBatch generates one embedding per text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Model returns the embedding model identifier, recorded in run metadata.
	Model() string

	// Dimension returns the model's output width. Every vector the
	// pipeline handles must have exactly this length.
	Dimension() int
}
