package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/disaster-response-pipeline/internal/cli"
	"github.com/Veraticus/disaster-response-pipeline/internal/config"
	"github.com/Veraticus/disaster-response-pipeline/internal/pipeline"
	"github.com/Veraticus/disaster-response-pipeline/internal/text"
)

func searchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <database_path>",
		Short: "Cross-validate a grid of pipeline parameters",
		Long: `Search scores every combination of the configured parameter grid with
k-fold cross validation on the whole dataset and prints the candidates
ranked by subset accuracy. It never trains or saves a model; copy the
parameters you want into the pipeline section of the config file.

The grid is read from search.grid in the config file, for example:

  search:
    grid:
      clf__n_estimators: [50, 100]
      vect__ngram_range: [[1, 1], [1, 2]]`,
		Args: cobra.ExactArgs(1),
		RunE: runSearch,
	}

	cmd.Flags().Int("folds", 3, "number of cross validation folds")
	cmd.Flags().Int("workers", 0, "concurrent trials (0 = GOMAXPROCS)")
	cmd.Flags().Int("top", 10, "ranked candidates to print (0 = all)")
	cmd.Flags().Int64("shuffle-seed", 0, "seed for shuffling rows before folding (0 = random)")

	_ = viper.BindPFlag("search.folds", cmd.Flags().Lookup("folds"))
	_ = viper.BindPFlag("search.workers", cmd.Flags().Lookup("workers"))
	_ = viper.BindPFlag("search.top", cmd.Flags().Lookup("top"))
	_ = viper.BindPFlag("search.seed", cmd.Flags().Lookup("shuffle-seed"))

	return cmd
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	tok, err := text.NewNormalizer()
	if err != nil {
		return err
	}

	var progress io.Writer
	if viper.GetBool("progress") {
		progress = cmd.ErrOrStderr()
	}

	ctx, stop := cli.NewInterruptHandler(cmd.ErrOrStderr()).HandleInterrupts(cmd.Context(), "")
	defer stop()
	return search(ctx, cfg, tok, config.ExpandPath(args[0]), cmd.OutOrStdout(), progress)
}

func search(ctx context.Context, cfg config.Config, tok pipeline.Tokenizer, dbPath string, out, progress io.Writer) error {
	ds, err := loadDataset(ctx, cfg, dbPath)
	if err != nil {
		return err
	}

	seed := cfg.Search.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
		slog.Info("Using random shuffle seed", "seed", seed)
	}
	ds = pipeline.ShuffleDataset(ds, rand.New(rand.NewSource(seed)))

	s := &pipeline.Search{
		Tokenizer: tok,
		Grid:      cfg.Search.Grid,
		Base:      cfg.Pipeline,
		Folds:     cfg.Search.Folds,
		Workers:   cfg.Search.Workers,
	}
	var bar *cli.Progress
	if progress != nil {
		bar = cli.NewProgress(progress, "Cross-validating")
		s.OnTrial = bar.Update
	}

	start := time.Now()
	results, err := s.Run(ctx, ds)
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	slog.Info("Search finished",
		"candidates", len(results),
		"folds", cfg.Search.Folds,
		"duration", time.Since(start).Round(time.Millisecond))

	if _, err := fmt.Fprintln(out, cli.StyleTitle("Grid search results")); err != nil {
		return err
	}
	if err := cli.RenderSearchResults(out, results, cfg.Search.Top); err != nil {
		return err
	}
	best := results[0].Label()
	if best == "" {
		best = "(defaults)"
	}
	_, err = fmt.Fprintf(out, "\nBest parameters: %s\n", best)
	return err
}
