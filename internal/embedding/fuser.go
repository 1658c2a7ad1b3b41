package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/raphaelgruber/compcluster/internal/config"
	"github.com/raphaelgruber/compcluster/internal/models"
	"github.com/raphaelgruber/compcluster/internal/textprep"
)

// FuseResult is the embedding stage output. Companies and Vectors are
// parallel slices in input order, restricted to companies that produced
// at least one non-empty normalized description.
type FuseResult struct {
	Companies []models.Company
	Vectors   [][]float32
	Excluded  []models.Exclusion
}

// Fuser produces one fused unit-length vector per company by embedding
// the customer and product descriptions separately and combining them
// with the configured alpha weight.
type Fuser struct {
	embedder Embedder
	cfg      config.Pipeline
}

// NewFuser creates a fuser around an embedding model.
func NewFuser(embedder Embedder, cfg config.Pipeline) *Fuser {
	return &Fuser{embedder: embedder, cfg: cfg}
}

// fuseJob tracks which embedded texts belong to a surviving company.
// An index of -1 means the field normalized to empty.
type fuseJob struct {
	company models.Company
	custIdx int
	prodIdx int
}

// Fuse normalizes, embeds and fuses all companies. Companies whose
// descriptions are both empty after normalization are excluded with a
// reason code; they never enter the embedding space.
func (f *Fuser) Fuse(ctx context.Context, companies []models.Company) (*FuseResult, error) {
	jobs := make([]fuseJob, 0, len(companies))
	var texts []string
	var excluded []models.Exclusion

	for _, c := range companies {
		cust := textprep.Normalize(c.Customers)
		prod := textprep.Normalize(c.Product)
		if cust == "" && prod == "" {
			excluded = append(excluded, models.Exclusion{
				CompanyID: c.ID,
				Reason:    models.ReasonEmptyText,
			})
			continue
		}

		job := fuseJob{company: c, custIdx: -1, prodIdx: -1}
		if cust != "" {
			job.custIdx = len(texts)
			texts = append(texts, cust)
		}
		if prod != "" {
			job.prodIdx = len(texts)
			texts = append(texts, prod)
		}
		jobs = append(jobs, job)
	}

	slog.Info("embedding descriptions",
		"companies", len(companies), "surviving", len(jobs),
		"excluded", len(excluded), "texts", len(texts), "model", f.embedder.Model())

	vectors, err := f.embedAll(ctx, texts)
	if err != nil {
		return nil, err
	}

	dim := f.embedder.Dimension()
	result := &FuseResult{
		Companies: make([]models.Company, 0, len(jobs)),
		Vectors:   make([][]float32, 0, len(jobs)),
		Excluded:  excluded,
	}
	for _, job := range jobs {
		fused := make([]float32, dim)
		switch {
		case job.custIdx >= 0 && job.prodIdx >= 0:
			alpha := float32(f.cfg.Alpha)
			cust := vectors[job.custIdx]
			prod := vectors[job.prodIdx]
			for i := range fused {
				fused[i] = alpha*prod[i] + (1-alpha)*cust[i]
			}
		case job.prodIdx >= 0:
			// Single-field companies get that field's unit vector,
			// independent of alpha.
			copy(fused, vectors[job.prodIdx])
		default:
			copy(fused, vectors[job.custIdx])
		}
		NormalizeInPlace(fused)
		result.Companies = append(result.Companies, job.company)
		result.Vectors = append(result.Vectors, fused)
	}

	slog.Info("fused embeddings ready", "vectors", len(result.Vectors), "dimension", dim)
	return result, nil
}

// embedAll runs batched embedding across a bounded worker pool. Each
// batch is retried with exponential backoff; a dimension mismatch is
// permanent and aborts the run immediately.
func (f *Fuser) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	batchSize := f.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 64
	}
	concurrency := f.cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	vectors := make([][]float32, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for start := 0; start < len(texts); start += batchSize {
		end := min(start+batchSize, len(texts))
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			batch, err := f.embedBatchWithRetry(gctx, texts[start:end])
			if err != nil {
				return fmt.Errorf("batch %d-%d: %w", start, end, err)
			}
			copy(vectors[start:end], batch)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

func (f *Fuser) embedBatchWithRetry(ctx context.Context, batch []string) ([][]float32, error) {
	var result [][]float32
	operation := func() error {
		vecs, err := f.embedder.EmbedBatch(ctx, batch)
		if err != nil {
			if errors.Is(err, ErrDimensionMismatch) {
				return backoff.Permanent(err)
			}
			slog.Warn("embedding batch failed, retrying", "size", len(batch), "error", err)
			return err
		}
		result = vecs
		return nil
	}

	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(f.cfg.MaxRetries)),
		ctx,
	)
	if err := backoff.Retry(operation, bo); err != nil {
		return nil, err
	}
	return result, nil
}
