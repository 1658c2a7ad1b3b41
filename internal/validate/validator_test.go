package validate

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/compcluster/internal/config"
	"github.com/raphaelgruber/compcluster/internal/models"
	"github.com/raphaelgruber/compcluster/internal/simgraph"
)

func testConfig() config.Pipeline {
	cfg := config.Load()
	cfg.Seed = 42
	cfg.SampleClusters = 2
	cfg.SampleMembers = 3
	return cfg
}

// fixture: two tight groups of unit vectors, fully connected within,
// disconnected across.
func fixture() (*simgraph.Graph, [][]float32, []int, []models.Company) {
	angles := []float64{0, 0.05, 0.1, 1.5, 1.55, 1.6}
	labels := []int{0, 0, 0, 1, 1, 1}

	vectors := make([][]float32, len(angles))
	companies := make([]models.Company, len(angles))
	nodes := make([]string, len(angles))
	for i, a := range angles {
		vectors[i] = []float32{float32(math.Cos(a)), float32(math.Sin(a))}
		nodes[i] = fmt.Sprintf("c%d", i)
		companies[i] = models.Company{
			ID:        nodes[i],
			Customers: fmt.Sprintf("segment %d", i),
			Product:   fmt.Sprintf("product %d", i),
			Tags:      []string{"tag"},
		}
	}

	edges := []simgraph.Edge{
		{A: 0, B: 1, Score: 0.9}, {A: 0, B: 2, Score: 0.9}, {A: 1, B: 2, Score: 0.9},
		{A: 3, B: 4, Score: 0.9}, {A: 4, B: 5, Score: 0.9},
	}
	g := &simgraph.Graph{Nodes: nodes, Edges: edges}
	return g, vectors, labels, companies
}

func TestValidateMetrics(t *testing.T) {
	g, vectors, labels, companies := fixture()
	report := NewValidator(testConfig()).Validate(g, vectors, labels, companies)

	require.True(t, report.SilhouetteDefined)
	assert.Greater(t, report.Silhouette, 0.5, "tight well-separated groups score high")
	assert.LessOrEqual(t, report.Silhouette, 1.0)

	// 5 edges of 15 possible.
	assert.InDelta(t, 5.0/15.0, report.GraphDensity, 1e-9)

	// Cluster 0 is a triangle (3/3); cluster 1 misses one edge (2/3).
	require.Contains(t, report.IntraDensity, 0)
	require.Contains(t, report.IntraDensity, 1)
	assert.InDelta(t, 1.0, report.IntraDensity[0], 1e-9)
	assert.InDelta(t, 2.0/3.0, report.IntraDensity[1], 1e-9)

	assert.Equal(t, SizeSummary{Clusters: 2, Min: 3, Max: 3, Median: 3, Mean: 3}, report.Sizes)
}

func TestValidateSilhouetteUndefined(t *testing.T) {
	g, vectors, _, companies := fixture()

	tests := []struct {
		name   string
		labels []int
	}{
		{"single cluster", []int{0, 0, 0, 0, 0, 0}},
		{"singleton cluster present", []int{0, 0, 0, 1, 1, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := NewValidator(testConfig()).Validate(g, vectors, tt.labels, companies)
			assert.False(t, report.SilhouetteDefined)
			assert.Zero(t, report.Silhouette)
		})
	}
}

func TestValidateSamplesAreBoundedAndDetailed(t *testing.T) {
	g, vectors, labels, companies := fixture()
	cfg := testConfig()
	cfg.SampleClusters = 1
	cfg.SampleMembers = 2

	report := NewValidator(cfg).Validate(g, vectors, labels, companies)

	require.Len(t, report.Samples, 1)
	sample := report.Samples[0]
	assert.Equal(t, 3, sample.Size)
	require.Len(t, sample.Members, 2)
	for _, m := range sample.Members {
		assert.NotEmpty(t, m.CompanyID)
		assert.NotEmpty(t, m.Customers)
		assert.NotEmpty(t, m.Product)
	}
}

func TestValidateSamplingIsSeedDeterministic(t *testing.T) {
	g, vectors, labels, companies := fixture()

	first := NewValidator(testConfig()).Validate(g, vectors, labels, companies)
	second := NewValidator(testConfig()).Validate(g, vectors, labels, companies)
	assert.Equal(t, first.Samples, second.Samples)
}
