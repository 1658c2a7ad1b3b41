// Package validate computes clustering diagnostics and manual-review
// samples.
package validate

import (
	"log/slog"
	"math/rand"
	"sort"

	"github.com/raphaelgruber/compcluster/internal/config"
	"github.com/raphaelgruber/compcluster/internal/embedding"
	"github.com/raphaelgruber/compcluster/internal/models"
	"github.com/raphaelgruber/compcluster/internal/simgraph"
)

// Report aggregates the validation metrics for one run.
type Report struct {
	// Silhouette is only meaningful when SilhouetteDefined; degenerate
	// partitions (fewer than two clusters, or any cluster smaller than
	// two) leave it undefined rather than erroring.
	Silhouette        float64 `json:"silhouette"`
	SilhouetteDefined bool    `json:"silhouette_defined"`

	GraphDensity float64 `json:"graph_density"`

	// IntraDensity holds per-cluster intra-edge density, indexed by
	// cluster id, for clusters with at least two members.
	IntraDensity map[int]float64 `json:"intra_density"`

	Sizes SizeSummary `json:"sizes"`

	Samples []ClusterSample `json:"samples"`
}

// SizeSummary describes the cluster-size distribution.
type SizeSummary struct {
	Clusters int     `json:"clusters"`
	Min      int     `json:"min"`
	Max      int     `json:"max"`
	Median   float64 `json:"median"`
	Mean     float64 `json:"mean"`
}

// ClusterSample is one cluster drawn for manual review, with full
// member detail.
type ClusterSample struct {
	ClusterID int      `json:"cluster_id"`
	Size      int      `json:"size"`
	Members   []Member `json:"members"`
}

// Member carries the original description fields so a reviewer can judge
// whether the grouped companies actually compete.
type Member struct {
	CompanyID string   `json:"company_id"`
	Name      string   `json:"name,omitempty"`
	Customers string   `json:"customers"`
	Product   string   `json:"product"`
	Tags      []string `json:"tags,omitempty"`
}

// Validator computes the report from the embedding space, the graph and
// the final labels.
type Validator struct {
	cfg config.Pipeline
}

// NewValidator creates a validator.
func NewValidator(cfg config.Pipeline) *Validator {
	return &Validator{cfg: cfg}
}

// Validate computes all diagnostics. companies, vectors and labels are
// parallel with the graph's node order.
func (v *Validator) Validate(g *simgraph.Graph, vectors [][]float32, labels []int, companies []models.Company) *Report {
	members := membersByCluster(labels)

	report := &Report{
		GraphDensity: g.Density(),
		IntraDensity: intraDensity(g, members),
		Sizes:        sizeSummary(members),
	}
	report.Silhouette, report.SilhouetteDefined = silhouette(vectors, labels, members)
	report.Samples = v.sampleClusters(members, companies)

	slog.Info("validation complete",
		"clusters", report.Sizes.Clusters,
		"silhouette", report.Silhouette, "silhouette_defined", report.SilhouetteDefined,
		"graph_density", report.GraphDensity,
		"samples", len(report.Samples))
	return report
}

// membersByCluster inverts labels into per-cluster member lists. Node
// order inside each list is ascending, so output is stable.
func membersByCluster(labels []int) map[int][]int {
	members := make(map[int][]int)
	for node, label := range labels {
		members[label] = append(members[label], node)
	}
	return members
}

// silhouette computes the mean silhouette coefficient over cosine
// distance. Returns defined=false for degenerate partitions.
func silhouette(vectors [][]float32, labels []int, members map[int][]int) (float64, bool) {
	if len(members) < 2 || len(vectors) != len(labels) {
		return 0, false
	}
	for _, m := range members {
		if len(m) < 2 {
			return 0, false
		}
	}

	var total float64
	for i := range vectors {
		var a float64
		b := -1.0
		for label, m := range members {
			var sum float64
			for _, j := range m {
				if j == i {
					continue
				}
				sum += 1 - embedding.Dot(vectors[i], vectors[j])
			}
			if label == labels[i] {
				a = sum / float64(len(m)-1)
			} else {
				mean := sum / float64(len(m))
				if b < 0 || mean < b {
					b = mean
				}
			}
		}
		if m := max(a, b); m > 0 {
			total += (b - a) / m
		}
	}
	return total / float64(len(vectors)), true
}

// intraDensity computes, per cluster with at least two members, the
// share of possible intra-cluster edges actually present.
func intraDensity(g *simgraph.Graph, members map[int][]int) map[int]float64 {
	clusterOf := make([]int, len(g.Nodes))
	for label, m := range members {
		for _, node := range m {
			clusterOf[node] = label
		}
	}

	intraEdges := make(map[int]int)
	for _, e := range g.Edges {
		if clusterOf[e.A] == clusterOf[e.B] {
			intraEdges[clusterOf[e.A]]++
		}
	}

	density := make(map[int]float64)
	for label, m := range members {
		s := len(m)
		if s < 2 {
			continue
		}
		possible := s * (s - 1) / 2
		density[label] = float64(intraEdges[label]) / float64(possible)
	}
	return density
}

// sizeSummary computes the cluster-size distribution.
func sizeSummary(members map[int][]int) SizeSummary {
	if len(members) == 0 {
		return SizeSummary{}
	}
	sizes := make([]int, 0, len(members))
	total := 0
	for _, m := range members {
		sizes = append(sizes, len(m))
		total += len(m)
	}
	sort.Ints(sizes)

	var median float64
	mid := len(sizes) / 2
	if len(sizes)%2 == 0 {
		median = float64(sizes[mid-1]+sizes[mid]) / 2
	} else {
		median = float64(sizes[mid])
	}

	return SizeSummary{
		Clusters: len(sizes),
		Min:      sizes[0],
		Max:      sizes[len(sizes)-1],
		Median:   median,
		Mean:     float64(total) / float64(len(sizes)),
	}
}

// sampleClusters draws a bounded, seed-deterministic sample of clusters
// with full member detail.
func (v *Validator) sampleClusters(members map[int][]int, companies []models.Company) []ClusterSample {
	labels := make([]int, 0, len(members))
	for label := range members {
		labels = append(labels, label)
	}
	sort.Ints(labels)

	rng := rand.New(rand.NewSource(v.cfg.Seed))

	picked := labels
	if n := v.cfg.SampleClusters; n > 0 && n < len(labels) {
		perm := rng.Perm(len(labels))[:n]
		sort.Ints(perm)
		picked = make([]int, n)
		for i, p := range perm {
			picked[i] = labels[p]
		}
	}

	samples := make([]ClusterSample, 0, len(picked))
	for _, label := range picked {
		nodes := members[label]
		show := nodes
		if n := v.cfg.SampleMembers; n > 0 && n < len(nodes) {
			perm := rng.Perm(len(nodes))[:n]
			sort.Ints(perm)
			show = make([]int, n)
			for i, p := range perm {
				show[i] = nodes[p]
			}
		}

		sample := ClusterSample{ClusterID: label, Size: len(nodes)}
		for _, node := range show {
			c := companies[node]
			sample.Members = append(sample.Members, Member{
				CompanyID: c.ID,
				Name:      c.Name,
				Customers: c.Customers,
				Product:   c.Product,
				Tags:      c.Tags,
			})
		}
		samples = append(samples, sample)
	}
	return samples
}
