// Package simgraph builds the sparse similarity graph over fused
// company embeddings and category tags.
package simgraph

import (
	"errors"
	"fmt"
	"sort"

	"github.com/raphaelgruber/compcluster/internal/embedding"
)

// ErrIndexBuild indicates the nearest-neighbour index could not be
// constructed. Fatal: no partial graph is emitted.
var ErrIndexBuild = errors.New("similarity index build failed")

// Neighbor is one nearest-neighbour hit: the stored vector's position
// and its cosine similarity to the query.
type Neighbor struct {
	ID         int
	Similarity float64
}

// Index is the nearest-neighbour capability the graph builder depends
// on: given a query vector, return the k closest stored vectors by
// cosine similarity. Implementations must be deterministic for a fixed
// input set.
type Index interface {
	// Search returns up to k neighbours ordered by descending
	// similarity, ties broken by ascending ID.
	Search(query []float32, k int) ([]Neighbor, error)

	// Len reports the number of indexed vectors.
	Len() int
}

// BruteIndex is an exact cosine index over unit-length vectors. Searches
// are a full scan; exactness keeps the downstream graph byte-reproducible.
type BruteIndex struct {
	vectors [][]float32
	dim     int
}

// Compile-time check that BruteIndex implements Index.
var _ Index = (*BruteIndex)(nil)

// NewBruteIndex builds an index over the given vectors. All vectors must
// share one width; a ragged input means upstream state is corrupt.
func NewBruteIndex(vectors [][]float32) (*BruteIndex, error) {
	if len(vectors) == 0 {
		return nil, fmt.Errorf("%w: no vectors", ErrIndexBuild)
	}
	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: vector %d has width %d, want %d", ErrIndexBuild, i, len(v), dim)
		}
	}
	return &BruteIndex{vectors: vectors, dim: dim}, nil
}

// Len reports the number of indexed vectors.
func (ix *BruteIndex) Len() int { return len(ix.vectors) }

// Search scans every stored vector and returns the k most similar.
func (ix *BruteIndex) Search(query []float32, k int) ([]Neighbor, error) {
	if len(query) != ix.dim {
		return nil, fmt.Errorf("query width %d, index width %d", len(query), ix.dim)
	}
	if k <= 0 {
		return nil, nil
	}

	hits := make([]Neighbor, len(ix.vectors))
	for i, v := range ix.vectors {
		hits[i] = Neighbor{ID: i, Similarity: embedding.Dot(v, query)}
	}
	sort.Slice(hits, func(a, b int) bool {
		if hits[a].Similarity != hits[b].Similarity {
			return hits[a].Similarity > hits[b].Similarity
		}
		return hits[a].ID < hits[b].ID
	})

	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}
