// Package trainer drives a pipeline through fitting and evaluation.
package trainer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/Veraticus/disaster-response-pipeline/internal/common"
	"github.com/Veraticus/disaster-response-pipeline/internal/evaluate"
	"github.com/Veraticus/disaster-response-pipeline/internal/model"
	"github.com/Veraticus/disaster-response-pipeline/internal/pipeline"
)

// Trainer owns one pipeline and moves it UNFIT → FITTING → FIT → EVALUATED.
type Trainer struct {
	pipeline   *pipeline.Pipeline
	categories []string
	state      State
	mu         sync.Mutex
}

// New returns a trainer for an unfitted pipeline.
func New(p *pipeline.Pipeline) *Trainer {
	return &Trainer{pipeline: p}
}

// State returns the current lifecycle state.
func (t *Trainer) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Trainer) transition(from, to State) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != from {
		return fmt.Errorf("%w: expected %s, got %s", ErrInvalidTransition, from, t.state)
	}
	if !isAllowedTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	t.state = to
	return nil
}

// Fit trains the pipeline on train and blocks until every per-category
// classifier is fitted.
func (t *Trainer) Fit(ctx context.Context, train *model.Dataset) error {
	if err := t.transition(StateUnfit, StateFitting); err != nil {
		return err
	}

	start := time.Now()
	if err := t.pipeline.Fit(ctx, train); err != nil {
		if terr := t.transition(StateFitting, StateUnfit); terr != nil {
			return fmt.Errorf("%w (and %w)", err, terr)
		}
		return err
	}
	t.categories = append([]string(nil), train.Categories...)

	slog.Info("Model fitted",
		"messages", train.Len(),
		"categories", len(train.Categories),
		"vocabulary", len(t.pipeline.Vocabulary()),
		"duration", time.Since(start).Round(time.Millisecond))
	return t.transition(StateFitting, StateFit)
}

// Evaluate predicts every held-out message and writes one classification
// report per category of test, in order. The fitted outputs must line up
// with test.Categories by count and name.
func (t *Trainer) Evaluate(ctx context.Context, test *model.Dataset, w io.Writer, opts evaluate.Options) ([]evaluate.CategoryReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	state := t.State()
	if !IsFitted(state) {
		return nil, fmt.Errorf("%w: cannot evaluate in state %s", ErrInvalidTransition, state)
	}
	if err := common.CheckAlignment("model outputs", t.pipeline.NumOutputs(), len(test.Categories)); err != nil {
		return nil, err
	}
	for j, name := range test.Categories {
		if t.categories[j] != name {
			return nil, fmt.Errorf("%w: output %d is %q but test column is %q",
				common.ErrMisaligned, j, t.categories[j], name)
		}
	}

	pred, err := t.pipeline.Predict(test.Messages)
	if err != nil {
		return nil, fmt.Errorf("predicting: %w", err)
	}
	reports, err := evaluate.Evaluate(pred, test, w, opts)
	if err != nil {
		return nil, err
	}

	s := evaluate.Summarize(reports)
	slog.Info("Model evaluated",
		"messages", test.Len(),
		"mean_accuracy", fmt.Sprintf("%.4f", s.MeanAccuracy),
		"mean_weighted_f1", fmt.Sprintf("%.4f", s.MeanWeightedF1),
		"mean_positive_f1", fmt.Sprintf("%.4f", s.MeanPositiveF1))

	if err := t.transition(state, StateEvaluated); err != nil {
		return nil, err
	}
	return reports, nil
}

// Model returns the fitted pipeline.
func (t *Trainer) Model() (*pipeline.Pipeline, error) {
	if state := t.State(); !IsFitted(state) {
		return nil, fmt.Errorf("%w: no fitted model in state %s", common.ErrNotFitted, state)
	}
	return t.pipeline, nil
}
