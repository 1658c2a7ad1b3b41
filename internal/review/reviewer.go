// Package review runs an optional LLM pass over the sampled clusters:
// a segment summary per cluster, a 1-10 cluster quality score and a
// 1-10 competitor-fit score per member.
package review

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/raphaelgruber/compcluster/internal/validate"
)

// Generator is the narrow capability the reviewer needs from a chat
// model.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Model() string
}

// CompanyFit is one member's competitor-fit judgement.
type CompanyFit struct {
	CompanyID   string  `json:"company_id"`
	Name        string  `json:"name,omitempty"`
	Score       float64 `json:"score"`
	Explanation string  `json:"explanation"`
}

// ClusterReview is the full judgement for one sampled cluster.
type ClusterReview struct {
	ClusterID          int          `json:"cluster_id"`
	Summary            string       `json:"summary"`
	QualityScore       float64      `json:"quality_score"`
	QualityExplanation string       `json:"quality_explanation"`
	Fits               []CompanyFit `json:"company_fits"`
}

// Summary aggregates the quality scores across reviewed clusters.
type Summary struct {
	Model            string  `json:"model"`
	ClustersReviewed int     `json:"clusters_reviewed"`
	AvgQuality       float64 `json:"avg_quality"`
	MedianQuality    float64 `json:"median_quality"`
	HighQuality      int     `json:"high_quality"` // score >= 7
	LowQuality       int     `json:"low_quality"`  // score <= 4
}

// Report is the review artifact written alongside the run outputs.
type Report struct {
	Summary  Summary         `json:"summary"`
	Clusters []ClusterReview `json:"clusters"`
}

// Reviewer judges the seeded cluster samples with a chat model.
type Reviewer struct {
	gen Generator
}

// NewReviewer creates a reviewer over the given model.
func NewReviewer(gen Generator) *Reviewer {
	return &Reviewer{gen: gen}
}

// Review judges each multi-member sample. A cluster whose prompts fail
// is logged and skipped; the pass only aborts when the context is done.
func (r *Reviewer) Review(ctx context.Context, samples []validate.ClusterSample) (*Report, error) {
	report := &Report{Summary: Summary{Model: r.gen.Model()}}

	for _, sample := range samples {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if sample.Size < 2 {
			continue
		}

		cr, err := r.reviewCluster(ctx, sample)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			slog.Warn("cluster review failed", "cluster_id", sample.ClusterID, "error", err)
			continue
		}
		report.Clusters = append(report.Clusters, cr)
	}

	report.Summary = r.summarize(report.Clusters)
	slog.Info("llm review complete",
		"clusters", report.Summary.ClustersReviewed,
		"avg_quality", report.Summary.AvgQuality,
		"low_quality", report.Summary.LowQuality)
	return report, nil
}

func (r *Reviewer) reviewCluster(ctx context.Context, sample validate.ClusterSample) (ClusterReview, error) {
	listing := memberListing(sample.Members)

	summary, err := r.gen.Generate(ctx, summaryPrompt(listing))
	if err != nil {
		return ClusterReview{}, fmt.Errorf("summary: %w", err)
	}
	summary = strings.TrimSpace(summary)

	quality, err := r.gen.Generate(ctx, qualityPrompt(listing, summary))
	if err != nil {
		return ClusterReview{}, fmt.Errorf("quality: %w", err)
	}

	cr := ClusterReview{
		ClusterID:          sample.ClusterID,
		Summary:            summary,
		QualityScore:       extractScore(quality),
		QualityExplanation: strings.TrimSpace(quality),
	}

	for _, m := range sample.Members {
		fit, err := r.gen.Generate(ctx, fitPrompt(m, summary))
		if err != nil {
			return ClusterReview{}, fmt.Errorf("fit %s: %w", m.CompanyID, err)
		}
		cr.Fits = append(cr.Fits, CompanyFit{
			CompanyID:   m.CompanyID,
			Name:        m.Name,
			Score:       extractScore(fit),
			Explanation: strings.TrimSpace(fit),
		})
	}
	return cr, nil
}

func (r *Reviewer) summarize(clusters []ClusterReview) Summary {
	s := Summary{Model: r.gen.Model(), ClustersReviewed: len(clusters)}
	if len(clusters) == 0 {
		return s
	}

	scores := make([]float64, len(clusters))
	var sum float64
	for i, c := range clusters {
		scores[i] = c.QualityScore
		sum += c.QualityScore
		if c.QualityScore >= 7 {
			s.HighQuality++
		}
		if c.QualityScore <= 4 {
			s.LowQuality++
		}
	}
	sort.Float64s(scores)

	s.AvgQuality = sum / float64(len(scores))
	mid := len(scores) / 2
	if len(scores)%2 == 1 {
		s.MedianQuality = scores[mid]
	} else {
		s.MedianQuality = (scores[mid-1] + scores[mid]) / 2
	}
	return s
}

func memberListing(members []validate.Member) string {
	var b strings.Builder
	for _, m := range members {
		name := m.Name
		if name == "" {
			name = m.CompanyID
		}
		fmt.Fprintf(&b, "- %s: %s (Customers: %s)\n", name, m.Product, m.Customers)
	}
	return b.String()
}

func summaryPrompt(listing string) string {
	return fmt.Sprintf(`Based on the following cluster of companies, provide a concise summary (2-3 sentences) of the core product-market segment this cluster represents:

Cluster Companies:
%s
Focus on:
- What type of product/service they offer
- Who their target customers are
- What market segment they serve`, listing)
}

func qualityPrompt(listing, summary string) string {
	return fmt.Sprintf(`Rate the overall quality of this cluster on a scale of 1-10:

Cluster Companies:
%s
Cluster Summary: %s

Consider:
- How cohesive are the companies?
- Do they serve the same market?
- Are they direct competitors?
- Is the cluster too broad or too narrow?

Rating Scale:
1-2: Poor cluster - companies don't belong together
3-4: Weak cluster - limited competitive relationship
5-6: Fair cluster - some competitive overlap
7-8: Good cluster - clear competitive group
9-10: Excellent cluster - strong competitive relationship

Provide your rating (1-10) and brief explanation:`, listing, summary)
}

func fitPrompt(m validate.Member, summary string) string {
	target := fmt.Sprintf("Name: %s\nProduct: %s\nCustomers: %s\nCategories: %s",
		m.Name, m.Product, m.Customers, strings.Join(m.Tags, ", "))

	return fmt.Sprintf(`For the company below, rate how well it fits the core product-market segment of this cluster on a scale of 1-10:

Target Company: %s

Cluster Summary: %s

Rating Scale:
1-2: Completely different market/product (not a competitor)
3-4: Somewhat related but different focus
5-6: Moderately related, some overlap
7-8: Good fit, clear competitor
9-10: Excellent fit, direct competitor

Provide your rating (1-10) and a brief explanation:`, target, summary)
}

var scorePattern = regexp.MustCompile(`\b([1-9]|10)\b`)

// scoreWords maps rating vocabulary to a score for responses carrying
// no usable digit. Checked in order, strongest first.
var scoreWords = []struct {
	words []string
	score float64
}{
	{[]string{"excellent", "perfect", "nine"}, 9},
	{[]string{"very good", "great", "eight"}, 8},
	{[]string{"good", "seven"}, 7},
	{[]string{"fair", "moderate", "six", "five"}, 6},
	{[]string{"weak", "poor", "four", "three"}, 4},
	{[]string{"bad", "terrible", "two", "one"}, 2},
}

// extractScore pulls a 1-10 rating out of a free-text answer. The first
// in-range number wins; with none, rating vocabulary decides; with
// neither, the neutral 5 is returned.
func extractScore(text string) float64 {
	if m := scorePattern.FindString(text); m != "" {
		score, err := strconv.ParseFloat(m, 64)
		if err == nil {
			return score
		}
	}

	lower := strings.ToLower(text)
	for _, sw := range scoreWords {
		for _, w := range sw.words {
			if strings.Contains(lower, w) {
				return sw.score
			}
		}
	}
	return 5
}
