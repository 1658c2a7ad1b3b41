package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/compcluster/internal/cluster"
	"github.com/raphaelgruber/compcluster/internal/config"
	"github.com/raphaelgruber/compcluster/internal/embedding"
	"github.com/raphaelgruber/compcluster/internal/metrics"
	"github.com/raphaelgruber/compcluster/internal/models"
	"github.com/raphaelgruber/compcluster/internal/pipeline"
	"github.com/raphaelgruber/compcluster/internal/review"
)

var (
	inputPath  string
	outputDir  string
	flagK      int
	flagTau    float64
	flagAlpha  float64
	flagSeed   int64
	flagAdapt  bool
	flagReview bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the clustering pipeline over an input table",
	Long: `Run reads the company table, executes all pipeline stages and writes
the artifacts (cluster assignments, fused embeddings, similarity edges,
run metadata) into the output directory.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		applyOverrides(cmd)
		if err := cfg.Validate(); err != nil {
			return err
		}

		embedder, err := embedding.NewClient(cfg)
		if err != nil {
			return fmt.Errorf("create embedder: %w", err)
		}
		runner := pipeline.NewRunner(cfg, embedder, cluster.NewLouvain())
		if cfg.LLMReview {
			model, err := review.NewModel(cfg)
			if err != nil {
				return fmt.Errorf("create review model: %w", err)
			}
			runner = runner.WithReviewer(review.NewReviewer(model))
		}

		var companies []models.Company
		err = runner.Collector().Time(metrics.StageLoad, func() (int64, error) {
			var err error
			companies, err = models.LoadCompanies(inputPath)
			return int64(len(companies)), err
		})
		if err != nil {
			return err
		}
		if len(companies) == 0 {
			return fmt.Errorf("input %s contains no companies", inputPath)
		}

		result, err := runner.Run(cmd.Context(), companies)
		if err != nil {
			return err
		}

		if err := pipeline.WriteArtifacts(outputDir, result); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d companies, %d clusters, artifacts in %s\n",
			result.Metadata.RunID, result.Metadata.Companies, result.Metadata.Clusters, outputDir)
		return nil
	},
}

// applyOverrides copies explicitly set flags over the loaded config.
func applyOverrides(cmd *cobra.Command) {
	if cmd.Flags().Changed("k") {
		cfg.K = flagK
	}
	if cmd.Flags().Changed("tau") {
		cfg.Tau = flagTau
	}
	if cmd.Flags().Changed("alpha") {
		cfg.Alpha = flagAlpha
	}
	if cmd.Flags().Changed("seed") {
		cfg.Seed = flagSeed
	}
	if cmd.Flags().Changed("llm-review") {
		cfg.LLMReview = flagReview
	}
	if cmd.Flags().Changed("adaptive-tau") {
		if flagAdapt {
			cfg.TauMode = config.TauAdaptive
		} else {
			cfg.TauMode = config.TauFixed
		}
	}
}

func init() {
	runCmd.Flags().StringVarP(&inputPath, "input", "i", "", "input company CSV (required)")
	runCmd.Flags().StringVarP(&outputDir, "output", "o", "out", "output directory")
	runCmd.Flags().IntVar(&flagK, "k", 0, "nearest neighbours per company")
	runCmd.Flags().Float64Var(&flagTau, "tau", 0, "edge retention threshold")
	runCmd.Flags().Float64Var(&flagAlpha, "alpha", 0, "product description weight in fusion")
	runCmd.Flags().Int64Var(&flagSeed, "seed", 0, "random seed")
	runCmd.Flags().BoolVar(&flagAdapt, "adaptive-tau", false, "resolve tau from the score distribution")
	runCmd.Flags().BoolVar(&flagReview, "llm-review", false, "score the sampled clusters with a chat model")
	_ = runCmd.MarkFlagRequired("input")

	rootCmd.AddCommand(runCmd)
}
