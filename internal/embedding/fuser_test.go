package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/compcluster/internal/config"
	"github.com/raphaelgruber/compcluster/internal/models"
)

// fakeEmbedder maps fixed texts to fixed vectors. Unknown texts get a
// deterministic vector derived from the text length.
type fakeEmbedder struct {
	mu       sync.Mutex
	dim      int
	fixed    map[string][]float32
	failures int
	calls    int
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		f.mu.Unlock()
		return nil, errors.New("transient upstream error")
	}
	f.mu.Unlock()

	out := make([][]float32, len(texts))
	for i, text := range texts {
		if v, ok := f.fixed[text]; ok {
			out[i] = append([]float32(nil), v...)
			continue
		}
		v := make([]float32, f.dim)
		v[len(text)%f.dim] = 1
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) Model() string  { return "fake" }
func (f *fakeEmbedder) Dimension() int { return f.dim }

func testConfig() config.Pipeline {
	cfg := config.Load()
	cfg.Dimension = 4
	cfg.Alpha = 0.6
	cfg.BatchSize = 2
	cfg.Concurrency = 2
	cfg.MaxRetries = 2
	return cfg
}

func TestFuseBothFields(t *testing.T) {
	emb := &fakeEmbedder{dim: 4, fixed: map[string][]float32{
		"dairy farmers": {1, 0, 0, 0},
		"milking robots": {0, 1, 0, 0},
	}}
	f := NewFuser(emb, testConfig())

	res, err := f.Fuse(context.Background(), []models.Company{
		{ID: "c1", Customers: "Dairy Farmers", Product: "Milking Robots"},
	})
	require.NoError(t, err)
	require.Len(t, res.Vectors, 1)
	assert.Empty(t, res.Excluded)

	// fused = 0.6*product + 0.4*customer, then unit-normalized
	v := res.Vectors[0]
	norm := math.Sqrt(0.6*0.6 + 0.4*0.4)
	assert.InDelta(t, 0.4/norm, float64(v[0]), 1e-6)
	assert.InDelta(t, 0.6/norm, float64(v[1]), 1e-6)
	assert.InDelta(t, 1.0, Norm(v), 1e-6)
}

func TestFuseAlphaBoundaries(t *testing.T) {
	fixed := map[string][]float32{
		"dairy farmers": {1, 0, 0, 0},
		"milking robots": {0, 1, 0, 0},
	}
	company := models.Company{ID: "c1", Customers: "dairy farmers", Product: "milking robots"}

	tests := []struct {
		name  string
		alpha float64
		want  []float32
	}{
		{"alpha one is product", 1, []float32{0, 1, 0, 0}},
		{"alpha zero is customer", 0, []float32{1, 0, 0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.Alpha = tt.alpha
			f := NewFuser(&fakeEmbedder{dim: 4, fixed: fixed}, cfg)

			res, err := f.Fuse(context.Background(), []models.Company{company})
			require.NoError(t, err)
			require.Len(t, res.Vectors, 1)
			assert.Equal(t, tt.want, res.Vectors[0])
		})
	}
}

func TestFuseSingleFieldIgnoresAlpha(t *testing.T) {
	fixed := map[string][]float32{"chemical plants": {0, 0, 3, 4}}

	for _, alpha := range []float64{0, 0.3, 1} {
		cfg := testConfig()
		cfg.Alpha = alpha
		f := NewFuser(&fakeEmbedder{dim: 4, fixed: fixed}, cfg)

		res, err := f.Fuse(context.Background(), []models.Company{
			{ID: "c1", Customers: "chemical plants", Product: ""},
		})
		require.NoError(t, err)
		require.Len(t, res.Vectors, 1)

		v := res.Vectors[0]
		assert.InDelta(t, 0.6, float64(v[2]), 1e-6, "alpha=%g", alpha)
		assert.InDelta(t, 0.8, float64(v[3]), 1e-6, "alpha=%g", alpha)
	}
}

func TestFuseExcludesEmptyCompanies(t *testing.T) {
	f := NewFuser(&fakeEmbedder{dim: 4}, testConfig())

	res, err := f.Fuse(context.Background(), []models.Company{
		{ID: "c1", Customers: "retailers", Product: "shelving"},
		{ID: "c2", Customers: "", Product: "  "},
		{ID: "c3", Customers: "Inc.", Product: "!?"},
		{ID: "c4", Customers: "mines", Product: ""},
	})
	require.NoError(t, err)

	assert.Len(t, res.Companies, 2)
	assert.Equal(t, "c1", res.Companies[0].ID)
	assert.Equal(t, "c4", res.Companies[1].ID)

	require.Len(t, res.Excluded, 2)
	for _, ex := range res.Excluded {
		assert.Equal(t, models.ReasonEmptyText, ex.Reason)
	}
	assert.Equal(t, "c2", res.Excluded[0].CompanyID)
	assert.Equal(t, "c3", res.Excluded[1].CompanyID)

	// Output row accounting: survivors + excluded = input.
	assert.Equal(t, 4, len(res.Companies)+len(res.Excluded))
}

func TestFuseOrderMatchesInput(t *testing.T) {
	companies := make([]models.Company, 20)
	for i := range companies {
		companies[i] = models.Company{
			ID:        fmt.Sprintf("c%02d", i),
			Customers: fmt.Sprintf("segment %d buyers", i),
			Product:   fmt.Sprintf("product line %d", i),
		}
	}

	f := NewFuser(&fakeEmbedder{dim: 4}, testConfig())
	res, err := f.Fuse(context.Background(), companies)
	require.NoError(t, err)

	require.Len(t, res.Companies, len(companies))
	for i, c := range res.Companies {
		assert.Equal(t, companies[i].ID, c.ID)
	}
}

func TestFuseRetriesTransientFailures(t *testing.T) {
	emb := &fakeEmbedder{dim: 4, failures: 1}
	cfg := testConfig()
	cfg.Concurrency = 1
	f := NewFuser(emb, cfg)

	res, err := f.Fuse(context.Background(), []models.Company{
		{ID: "c1", Customers: "growers", Product: "irrigation"},
	})
	require.NoError(t, err)
	assert.Len(t, res.Vectors, 1)
	assert.Greater(t, emb.calls, 1)
}

type wrongDimEmbedder struct{ dim int }

func (w *wrongDimEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	return nil, fmt.Errorf("vector width 7: %w", ErrDimensionMismatch)
}
func (w *wrongDimEmbedder) Model() string  { return "wrong" }
func (w *wrongDimEmbedder) Dimension() int { return w.dim }

func TestFuseDimensionMismatchIsFatal(t *testing.T) {
	f := NewFuser(&wrongDimEmbedder{dim: 4}, testConfig())

	_, err := f.Fuse(context.Background(), []models.Company{
		{ID: "c1", Customers: "growers", Product: "irrigation"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}
