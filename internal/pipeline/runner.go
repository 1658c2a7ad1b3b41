// Package pipeline sequences the clustering stages and writes the run
// artifacts.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/raphaelgruber/compcluster/internal/cluster"
	"github.com/raphaelgruber/compcluster/internal/config"
	"github.com/raphaelgruber/compcluster/internal/embedding"
	"github.com/raphaelgruber/compcluster/internal/metrics"
	"github.com/raphaelgruber/compcluster/internal/models"
	"github.com/raphaelgruber/compcluster/internal/review"
	"github.com/raphaelgruber/compcluster/internal/simgraph"
	"github.com/raphaelgruber/compcluster/internal/validate"
)

// Result bundles everything one run produces.
type Result struct {
	Assignments []models.Assignment
	Excluded    []models.Exclusion
	Companies   []models.Company // surviving, graph node order
	Vectors     [][]float32      // fused embeddings, graph node order
	Graph       *simgraph.Graph
	Labels      []int
	Report      *validate.Report
	Review      *review.Report // nil unless the LLM review pass ran
	Metadata    Metadata
}

// Metadata captures the resolved configuration and run diagnostics for
// reproducibility.
type Metadata struct {
	RunID     string    `json:"run_id"`
	Timestamp time.Time `json:"timestamp"`

	Model          string         `json:"model"`
	Dimension      int            `json:"dimension"`
	K              int            `json:"k"`
	TauMode        config.TauMode `json:"tau_mode"`
	Tau            float64        `json:"tau"` // resolved numeric value
	Alpha          float64        `json:"alpha"`
	TextWeight     float64        `json:"text_weight"`
	CategoryWeight float64        `json:"category_weight"`
	Seed           int64          `json:"seed"`

	Companies int `json:"companies"`
	Excluded  int `json:"excluded"`
	Edges     int `json:"edges"`
	Clusters  int `json:"clusters"`

	Report  *validate.Report `json:"validation"`
	Review  *review.Summary  `json:"llm_review,omitempty"`
	Runtime metrics.Snapshot `json:"runtime"`
}

// Runner wires the stage implementations together. The embedder and
// partitioner are injected so tests and alternate backends can swap them.
type Runner struct {
	cfg         config.Pipeline
	embedder    embedding.Embedder
	partitioner cluster.Partitioner
	reviewer    *review.Reviewer
	collector   *metrics.Collector
}

// NewRunner creates a pipeline runner.
func NewRunner(cfg config.Pipeline, embedder embedding.Embedder, partitioner cluster.Partitioner) *Runner {
	return &Runner{
		cfg:         cfg,
		embedder:    embedder,
		partitioner: partitioner,
		collector:   metrics.NewCollector(),
	}
}

// WithReviewer enables the optional LLM review pass over the sampled
// clusters.
func (r *Runner) WithReviewer(rev *review.Reviewer) *Runner {
	r.reviewer = rev
	return r
}

// Collector exposes the runner's stage metrics so callers can record
// stages that run outside Run, such as input loading.
func (r *Runner) Collector() *metrics.Collector {
	return r.collector
}

// Run executes the full pipeline over the input records. Data defects
// are recorded and skipped; structural failures abort with no artifacts
// written.
func (r *Runner) Run(ctx context.Context, companies []models.Company) (*Result, error) {
	slog.Info("starting clustering run",
		"companies", len(companies), "model", r.embedder.Model(),
		"k", r.cfg.K, "tau_mode", r.cfg.TauMode, "alpha", r.cfg.Alpha, "seed", r.cfg.Seed)

	// Stage 1+2: normalize and embed.
	var fused *embedding.FuseResult
	err := r.collector.Time(metrics.StageEmbed, func() (int64, error) {
		var err error
		fused, err = embedding.NewFuser(r.embedder, r.cfg).Fuse(ctx, companies)
		if err != nil {
			return 0, err
		}
		return int64(len(fused.Vectors)), nil
	})
	if err != nil {
		return nil, fmt.Errorf("embedding stage: %w", err)
	}
	if len(fused.Vectors) == 0 {
		return nil, fmt.Errorf("embedding stage: no company has usable text")
	}

	// Stage 3: similarity graph.
	var graph *simgraph.Graph
	err = r.collector.Time(metrics.StageGraph, func() (int64, error) {
		index, err := simgraph.NewBruteIndex(fused.Vectors)
		if err != nil {
			return 0, err
		}
		ids := make([]string, len(fused.Companies))
		tags := make([][]string, len(fused.Companies))
		for i, c := range fused.Companies {
			ids[i] = c.ID
			tags[i] = c.Tags
		}
		graph, err = simgraph.NewBuilder(r.cfg).Build(ctx, index, ids, tags, fused.Vectors)
		if err != nil {
			return 0, err
		}
		return int64(len(graph.Edges)), nil
	})
	if err != nil {
		return nil, fmt.Errorf("graph stage: %w", err)
	}

	// Stage 4: community detection.
	var labels []int
	err = r.collector.Time(metrics.StageCluster, func() (int64, error) {
		var err error
		labels, err = cluster.NewDetector(r.partitioner, r.cfg.Seed).Detect(graph)
		return int64(len(labels)), err
	})
	if err != nil {
		return nil, fmt.Errorf("cluster stage: %w", err)
	}

	// Stage 5: validation.
	var report *validate.Report
	_ = r.collector.Time(metrics.StageValidate, func() (int64, error) {
		report = validate.NewValidator(r.cfg).Validate(graph, fused.Vectors, labels, fused.Companies)
		return int64(report.Sizes.Clusters), nil
	})

	// Stage 6: optional LLM review of the sampled clusters.
	var rev *review.Report
	if r.reviewer != nil {
		err = r.collector.Time(metrics.StageReview, func() (int64, error) {
			var err error
			rev, err = r.reviewer.Review(ctx, report.Samples)
			if err != nil {
				return 0, err
			}
			return int64(rev.Summary.ClustersReviewed), nil
		})
		if err != nil {
			return nil, fmt.Errorf("review stage: %w", err)
		}
	}

	assignments := make([]models.Assignment, len(fused.Companies))
	for i, c := range fused.Companies {
		assignments[i] = models.Assignment{
			CompanyID: c.ID,
			Name:      c.Name,
			Customers: c.Customers,
			Product:   c.Product,
			Tags:      c.Tags,
			ClusterID: labels[i],
		}
	}

	result := &Result{
		Assignments: assignments,
		Excluded:    fused.Excluded,
		Companies:   fused.Companies,
		Vectors:     fused.Vectors,
		Graph:       graph,
		Labels:      labels,
		Report:      report,
		Review:      rev,
		Metadata: Metadata{
			RunID:          uuid.NewString(),
			Timestamp:      time.Now().UTC(),
			Model:          r.embedder.Model(),
			Dimension:      r.embedder.Dimension(),
			K:              r.cfg.K,
			TauMode:        graph.TauMode,
			Tau:            graph.Tau,
			Alpha:          r.cfg.Alpha,
			TextWeight:     r.cfg.TextWeight,
			CategoryWeight: r.cfg.CategoryWeight,
			Seed:           r.cfg.Seed,
			Companies:      len(fused.Companies),
			Excluded:       len(fused.Excluded),
			Edges:          len(graph.Edges),
			Clusters:       report.Sizes.Clusters,
			Report:         report,
			Review:         reviewSummary(rev),
			Runtime:        r.collector.Snapshot(),
		},
	}

	r.logSummary(result)
	return result, nil
}

func reviewSummary(rev *review.Report) *review.Summary {
	if rev == nil {
		return nil
	}
	return &rev.Summary
}

// logSummary mirrors the end-of-run report reviewers read first.
func (r *Runner) logSummary(res *Result) {
	slog.Info("clustering summary",
		"companies", len(res.Companies),
		"excluded", len(res.Excluded),
		"clusters", res.Report.Sizes.Clusters,
		"median_size", res.Report.Sizes.Median,
		"silhouette", res.Report.Silhouette,
		"silhouette_defined", res.Report.SilhouetteDefined,
		"graph_density", res.Report.GraphDensity,
		"tau", res.Metadata.Tau)

	sizes := make(map[int]int)
	for _, l := range res.Labels {
		sizes[l]++
	}
	type clusterSize struct{ id, size int }
	top := make([]clusterSize, 0, len(sizes))
	for id, size := range sizes {
		top = append(top, clusterSize{id, size})
	}
	sort.Slice(top, func(a, b int) bool {
		if top[a].size != top[b].size {
			return top[a].size > top[b].size
		}
		return top[a].id < top[b].id
	})
	for i := 0; i < len(top) && i < 5; i++ {
		slog.Info("largest cluster", "rank", i+1, "cluster_id", top[i].id, "size", top[i].size)
	}
}
