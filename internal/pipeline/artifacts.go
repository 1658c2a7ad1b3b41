package pipeline

import (
	"encoding/binary"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/raphaelgruber/compcluster/internal/models"
	"github.com/raphaelgruber/compcluster/internal/review"
)

// Artifact file names within the output directory.
const (
	FileAssignments = "clustered_companies.csv"
	FileExclusions  = "excluded_companies.csv"
	FileEmbeddings  = "embeddings.f32"
	FileEdges       = "similarity_edges.csv"
	FileMetadata    = "metadata.json"
	FileReview      = "llm_review.json" // only when the review pass ran
)

// WriteArtifacts persists the run outputs into dir. Every file is
// staged under a temp name first; renames happen only after all stages
// succeed, and a failed rename rolls the already-finalized files back,
// so a failed run leaves no partial artifacts behind.
func WriteArtifacts(dir string, res *Result) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	files := map[string]func(string) error{
		FileAssignments: func(path string) error { return writeAssignments(path, res.Assignments) },
		FileExclusions:  func(path string) error { return writeExclusions(path, res.Excluded) },
		FileEmbeddings:  func(path string) error { return writeEmbeddings(path, res.Vectors) },
		FileEdges:       func(path string) error { return writeEdges(path, res) },
		FileMetadata:    func(path string) error { return writeMetadata(path, res.Metadata) },
	}
	if res.Review != nil {
		files[FileReview] = func(path string) error { return writeReview(path, res.Review) }
	}

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	tmp := make(map[string]string, len(files))
	var finalized []string
	cleanup := func() {
		for _, t := range tmp {
			os.Remove(t)
		}
		for _, f := range finalized {
			os.Remove(f)
		}
	}

	for _, name := range names {
		t := filepath.Join(dir, name+".tmp")
		if err := files[name](t); err != nil {
			cleanup()
			return fmt.Errorf("write %s: %w", name, err)
		}
		tmp[name] = t
	}
	for _, name := range names {
		final := filepath.Join(dir, name)
		if err := os.Rename(tmp[name], final); err != nil {
			cleanup()
			return fmt.Errorf("finalize %s: %w", name, err)
		}
		delete(tmp, name)
		finalized = append(finalized, final)
	}

	slog.Info("artifacts written", "dir", dir,
		"assignments", len(res.Assignments), "excluded", len(res.Excluded), "edges", len(res.Graph.Edges))
	return nil
}

func writeAssignments(path string, assignments []models.Assignment) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{
		models.ColID, models.ColName, models.ColCustomers, models.ColProduct, models.ColTags, "cluster_id",
	}); err != nil {
		return err
	}
	for _, a := range assignments {
		row := []string{
			a.CompanyID, a.Name, a.Customers, a.Product,
			models.TagString(a.Tags), strconv.Itoa(a.ClusterID),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}

func writeExclusions(path string, excluded []models.Exclusion) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{models.ColID, "reason"}); err != nil {
		return err
	}
	for _, ex := range excluded {
		if err := w.Write([]string{ex.CompanyID, string(ex.Reason)}); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}

// writeEmbeddings stores the fused vectors as row-major little-endian
// float32, one row per surviving company in graph node order. Row count
// and width are in the metadata artifact.
func writeEmbeddings(path string, vectors [][]float32) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	buf := make([]byte, 4)
	for _, row := range vectors {
		for _, x := range row {
			binary.LittleEndian.PutUint32(buf, math.Float32bits(x))
			if _, err := f.Write(buf); err != nil {
				return err
			}
		}
	}
	return f.Close()
}

func writeEdges(path string, res *Result) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"source_id", "target_id", "score"}); err != nil {
		return err
	}
	for _, e := range res.Graph.Edges {
		row := []string{
			res.Graph.Nodes[e.A],
			res.Graph.Nodes[e.B],
			strconv.FormatFloat(e.Score, 'g', -1, 64),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}

func writeMetadata(path string, meta Metadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}

func writeReview(path string, rev *review.Report) error {
	data, err := json.MarshalIndent(rev, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}
