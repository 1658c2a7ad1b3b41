package simgraph

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/compcluster/internal/config"
)

func testConfig() config.Pipeline {
	cfg := config.Load()
	cfg.K = 3
	cfg.Tau = 0.5
	cfg.TauMode = config.TauFixed
	cfg.TextWeight = 0.8
	cfg.CategoryWeight = 0.2
	cfg.Concurrency = 2
	return cfg
}

// unit returns a 2-d unit vector at the given angle.
func unit(angle float64) []float32 {
	return []float32{float32(math.Cos(angle)), float32(math.Sin(angle))}
}

func buildTestGraph(t *testing.T, cfg config.Pipeline, vectors [][]float32, tags [][]string) *Graph {
	t.Helper()
	ids := make([]string, len(vectors))
	for i := range ids {
		ids[i] = string(rune('a' + i))
	}
	if tags == nil {
		tags = make([][]string, len(vectors))
	}

	index, err := NewBruteIndex(vectors)
	require.NoError(t, err)

	g, err := NewBuilder(cfg).Build(context.Background(), index, ids, tags, vectors)
	require.NoError(t, err)
	return g
}

func TestBruteIndexOrdersBySimilarityThenID(t *testing.T) {
	vectors := [][]float32{
		unit(0),
		unit(0), // identical to node 0: tie broken by id
		unit(math.Pi / 4),
		unit(math.Pi / 2),
	}
	index, err := NewBruteIndex(vectors)
	require.NoError(t, err)

	hits, err := index.Search(unit(0), 4)
	require.NoError(t, err)
	require.Len(t, hits, 4)

	assert.Equal(t, 0, hits[0].ID)
	assert.Equal(t, 1, hits[1].ID)
	assert.Equal(t, 2, hits[2].ID)
	assert.Equal(t, 3, hits[3].ID)
	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-6)
}

func TestBruteIndexRejectsRaggedVectors(t *testing.T) {
	_, err := NewBruteIndex([][]float32{{1, 0}, {1, 0, 0}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIndexBuild)

	_, err = NewBruteIndex(nil)
	assert.ErrorIs(t, err, ErrIndexBuild)
}

func TestBuildEdgesAreCanonicalAndBounded(t *testing.T) {
	vectors := [][]float32{
		unit(0),
		unit(0.1),
		unit(0.2),
		unit(math.Pi), // far from everything
	}
	tags := [][]string{{"saas"}, {"saas", "b2b"}, {"retail"}, nil}

	g := buildTestGraph(t, testConfig(), vectors, tags)
	require.NotEmpty(t, g.Edges)

	seen := make(map[[2]int]bool)
	for _, e := range g.Edges {
		assert.Less(t, e.A, e.B, "edges stored with A < B, no self-loops")
		assert.GreaterOrEqual(t, e.Score, 0.0)
		assert.LessOrEqual(t, e.Score, 1.0)
		key := [2]int{e.A, e.B}
		assert.False(t, seen[key], "duplicate edge %v", key)
		seen[key] = true
	}
}

func TestBuildCombinedScore(t *testing.T) {
	// Two identical vectors: text similarity exactly 1. Tags overlap 1 of 3.
	vectors := [][]float32{unit(0.3), unit(0.3)}
	tags := [][]string{{"saas", "b2b"}, {"saas", "hardware"}}

	cfg := testConfig()
	cfg.K = 1
	g := buildTestGraph(t, cfg, vectors, tags)

	require.Len(t, g.Edges, 1)
	// 0.8*1.0 + 0.2*(1/3)
	assert.InDelta(t, 0.8+0.2/3, g.Edges[0].Score, 1e-6)
}

func TestBuildTauMonotonicity(t *testing.T) {
	vectors := make([][]float32, 12)
	tags := make([][]string, 12)
	for i := range vectors {
		vectors[i] = unit(float64(i) * 0.25)
	}

	var prevEdges int
	for i, tau := range []float64{0.1, 0.5, 0.9} {
		cfg := testConfig()
		cfg.Tau = tau
		g := buildTestGraph(t, cfg, vectors, tags)
		if i > 0 {
			assert.LessOrEqual(t, len(g.Edges), prevEdges,
				"raising tau must not increase edge count")
		}
		prevEdges = len(g.Edges)
	}
}

func TestBuildTauAboveMaxYieldsNoEdges(t *testing.T) {
	vectors := [][]float32{unit(0), unit(0.5), unit(1)}
	cfg := testConfig()
	cfg.Tau = 1.0 // no tags, so max combined score is 0.8

	g := buildTestGraph(t, cfg, vectors, nil)
	assert.Empty(t, g.Edges)
}

func TestBuildAdaptiveTauRecordsResolvedValue(t *testing.T) {
	vectors := make([][]float32, 10)
	for i := range vectors {
		vectors[i] = unit(float64(i) * 0.1)
	}

	cfg := testConfig()
	cfg.TauMode = config.TauAdaptive
	cfg.TauPercentile = 50

	g := buildTestGraph(t, cfg, vectors, nil)

	assert.Equal(t, config.TauAdaptive, g.TauMode)
	assert.Greater(t, g.Tau, 0.0)
	assert.NotEqual(t, cfg.Tau, g.Tau, "adaptive tau should come from the score distribution")
	for _, e := range g.Edges {
		assert.GreaterOrEqual(t, e.Score, g.Tau)
	}
}

func TestBuildDeterministic(t *testing.T) {
	vectors := make([][]float32, 30)
	tags := make([][]string, 30)
	for i := range vectors {
		vectors[i] = unit(float64(i) * 0.17)
		if i%3 == 0 {
			tags[i] = []string{"manufacturing"}
		}
	}

	cfg := testConfig()
	first := buildTestGraph(t, cfg, vectors, tags)
	second := buildTestGraph(t, cfg, vectors, tags)

	assert.Equal(t, first.Edges, second.Edges)
	assert.Equal(t, first.Tau, second.Tau)
}

func TestJaccard(t *testing.T) {
	tests := []struct {
		name string
		a, b []string
		want float64
	}{
		{"identical", []string{"x", "y"}, []string{"x", "y"}, 1},
		{"disjoint", []string{"x"}, []string{"y"}, 0},
		{"partial", []string{"x", "y", "z"}, []string{"x", "w"}, 0.25},
		{"one empty", []string{"x"}, nil, 0},
		{"both empty", nil, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := jaccard(tt.a, tt.b)
			if got != tt.want {
				t.Errorf("jaccard(%v, %v) = %g, want %g", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestGraphDensity(t *testing.T) {
	g := &Graph{
		Nodes: []string{"a", "b", "c", "d"},
		Edges: []Edge{{A: 0, B: 1, Score: 1}, {A: 2, B: 3, Score: 1}},
	}
	// 2 edges of 6 possible
	assert.InDelta(t, 1.0/3.0, g.Density(), 1e-9)
}
