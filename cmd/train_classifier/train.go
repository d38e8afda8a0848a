package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/disaster-response-pipeline/internal/cli"
	"github.com/Veraticus/disaster-response-pipeline/internal/common"
	"github.com/Veraticus/disaster-response-pipeline/internal/config"
	"github.com/Veraticus/disaster-response-pipeline/internal/evaluate"
	"github.com/Veraticus/disaster-response-pipeline/internal/model"
	"github.com/Veraticus/disaster-response-pipeline/internal/persist"
	"github.com/Veraticus/disaster-response-pipeline/internal/pipeline"
	"github.com/Veraticus/disaster-response-pipeline/internal/storage"
	"github.com/Veraticus/disaster-response-pipeline/internal/text"
	"github.com/Veraticus/disaster-response-pipeline/internal/trainer"
)

const usage = `Please provide the filepath of the disaster messages database as the first
argument and the filepath of the file to save the model to as the second
argument.

Example: train_classifier ../data/DisasterResponse.db classifier.pkl`

// trainRun is one training invocation.
type trainRun struct {
	cfg       config.Config
	fs        afero.Fs
	tokenizer pipeline.Tokenizer
	out       io.Writer
	// progress receives the fit progress bar. Nil disables it.
	progress  io.Writer
	dbPath    string
	modelPath string
}

func runTrain(cmd *cobra.Command, args []string) error {
	if len(args) != 2 {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), usage)
		return err
	}

	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	tok, err := text.NewNormalizer()
	if err != nil {
		return err
	}

	run := trainRun{
		cfg:       cfg,
		fs:        afero.NewOsFs(),
		tokenizer: tok,
		out:       cmd.OutOrStdout(),
		dbPath:    config.ExpandPath(args[0]),
		modelPath: config.ExpandPath(args[1]),
	}
	if viper.GetBool("progress") {
		run.progress = cmd.ErrOrStderr()
	}

	interrupts := cli.NewInterruptHandler(cmd.ErrOrStderr())
	ctx, stop := interrupts.HandleInterrupts(cmd.Context(), run.modelPath)
	defer stop()
	return run.execute(ctx)
}

func (r trainRun) execute(ctx context.Context) error {
	r.printf("Loading data...\n    DATABASE: %s\n", r.dbPath)
	ds, err := loadDataset(ctx, r.cfg, r.dbPath)
	if err != nil {
		return err
	}
	train, test, err := trainer.Split(ds, r.cfg.Split.TestSize, r.cfg.Split.Seed)
	if err != nil {
		return err
	}

	r.printf("Building model...\n")
	pl, err := pipeline.Build(r.cfg.Pipeline, r.tokenizer)
	if err != nil {
		return err
	}
	t := trainer.New(pl)

	r.printf("Training model...\n")
	var bar *cli.Progress
	if r.progress != nil {
		bar = cli.NewProgress(r.progress, "Fitting trees")
		pl.OnProgress(bar.Update)
	}
	err = t.Fit(ctx, train)
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		return fmt.Errorf("training failed: %w", err)
	}

	r.printf("Evaluating model...\n")
	if _, err := t.Evaluate(ctx, test, r.out, evaluate.Options{Heading: cli.StyleHeading}); err != nil {
		return fmt.Errorf("evaluation failed: %w", err)
	}

	r.printf("Saving model...\n    MODEL: %s\n", r.modelPath)
	fitted, err := t.Model()
	if err != nil {
		return err
	}
	if err := persist.Save(r.fs, r.modelPath, fitted); err != nil {
		return err
	}

	r.printf("Trained model saved!\n")
	return nil
}

func (r trainRun) printf(format string, args ...any) {
	if _, err := fmt.Fprintf(r.out, format, args...); err != nil {
		slog.Warn("Failed to write progress", "error", err)
	}
}

// loadDataset opens the database at dbPath and reads the configured table.
func loadDataset(ctx context.Context, cfg config.Config, dbPath string) (*model.Dataset, error) {
	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		if errors.Is(err, storage.ErrDatabaseNotFound) {
			return nil, common.NewUserError("cannot open the messages database", err)
		}
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			common.LogError(closeErr, "Failed to close database", common.Fields{"path": dbPath})
		}
	}()

	ds, err := store.LoadDataset(ctx, cfg.Schema(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	return ds, nil
}
