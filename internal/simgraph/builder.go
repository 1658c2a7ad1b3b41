package simgraph

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/raphaelgruber/compcluster/internal/config"
)

// Builder constructs the similarity graph from fused embeddings and
// category tags.
type Builder struct {
	cfg config.Pipeline
}

// NewBuilder creates a graph builder.
func NewBuilder(cfg config.Pipeline) *Builder {
	return &Builder{cfg: cfg}
}

// pairKey encodes an unordered node pair with a < b.
type pairKey struct {
	a, b int
}

// Build queries the index for every company's k nearest neighbours,
// scores each candidate pair, resolves tau and retains the edges that
// clear it. The result is symmetric, deduplicated and self-loop free.
//
// ids, tags, vectors and the index rows are parallel: index row i holds
// vectors[i] and belongs to company ids[i] with tag set tags[i].
func (b *Builder) Build(ctx context.Context, index Index, ids []string, tags [][]string, vectors [][]float32) (*Graph, error) {
	if index.Len() != len(ids) || len(ids) != len(tags) || len(tags) != len(vectors) {
		return nil, fmt.Errorf("index rows (%d), ids (%d), tags (%d) and vectors (%d) must align",
			index.Len(), len(ids), len(tags), len(vectors))
	}

	neighbors, err := b.queryAll(ctx, index, vectors)
	if err != nil {
		return nil, err
	}

	// Union of both query directions, deduplicated. A pair found from
	// either endpoint is a candidate once; scores are identical by
	// construction, never summed.
	candidates := make(map[pairKey]float64)
	for i, hits := range neighbors {
		for _, hit := range hits {
			j := hit.ID
			if j == i {
				continue
			}
			key := pairKey{a: min(i, j), b: max(i, j)}
			if _, seen := candidates[key]; seen {
				continue
			}
			text := clamp01(hit.Similarity)
			category := jaccard(tags[key.a], tags[key.b])
			candidates[key] = b.cfg.TextWeight*text + b.cfg.CategoryWeight*category
		}
	}

	tau, err := b.resolveTau(candidates)
	if err != nil {
		return nil, err
	}

	edges := make([]Edge, 0, len(candidates))
	for key, score := range candidates {
		if score >= tau {
			edges = append(edges, Edge{A: key.a, B: key.b, Score: score})
		}
	}
	sort.Slice(edges, func(x, y int) bool {
		if edges[x].A != edges[y].A {
			return edges[x].A < edges[y].A
		}
		return edges[x].B < edges[y].B
	})

	g := &Graph{
		Nodes:   ids,
		Edges:   edges,
		Tau:     tau,
		TauMode: b.cfg.TauMode,
	}
	slog.Info("similarity graph built",
		"nodes", len(g.Nodes), "candidates", len(candidates), "edges", len(g.Edges),
		"tau", tau, "tau_mode", b.cfg.TauMode, "density", g.Density())
	return g, nil
}

// queryAll runs the k-NN queries, parallelized across workers. Results
// land in a per-node slot, so ordering stays deterministic.
func (b *Builder) queryAll(ctx context.Context, index Index, vectors [][]float32) ([][]Neighbor, error) {
	n := index.Len()
	neighbors := make([][]Neighbor, n)

	// Query k+1 and drop the self hit.
	k := b.cfg.K + 1

	g, gctx := errgroup.WithContext(ctx)
	concurrency := b.cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	g.SetLimit(concurrency)

	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			hits, err := index.Search(vectors[i], k)
			if err != nil {
				return fmt.Errorf("query node %d: %w", i, err)
			}
			neighbors[i] = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return neighbors, nil
}

// resolveTau returns the numeric threshold: the configured value in
// fixed mode, or the configured percentile of the candidate score
// distribution in adaptive mode.
func (b *Builder) resolveTau(candidates map[pairKey]float64) (float64, error) {
	if b.cfg.TauMode == config.TauFixed {
		return b.cfg.Tau, nil
	}

	if len(candidates) == 0 {
		slog.Warn("no candidate pairs for adaptive tau, falling back to fixed value", "tau", b.cfg.Tau)
		return b.cfg.Tau, nil
	}
	scores := make([]float64, 0, len(candidates))
	for _, s := range candidates {
		scores = append(scores, s)
	}
	sort.Float64s(scores)

	// Nearest-rank percentile.
	rank := int(math.Ceil(b.cfg.TauPercentile / 100 * float64(len(scores))))
	if rank < 1 {
		rank = 1
	}
	tau := scores[rank-1]
	slog.Info("adaptive tau resolved", "percentile", b.cfg.TauPercentile, "tau", tau, "candidates", len(scores))
	return tau, nil
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// jaccard is intersection over union of two tag sets; 0 when either set
// is empty.
func jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(a))
	for _, tag := range a {
		set[tag] = struct{}{}
	}
	var inter int
	for _, tag := range b {
		if _, ok := set[tag]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
