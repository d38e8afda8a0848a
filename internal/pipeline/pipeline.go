// Package pipeline implements the text classification pipeline: token
// counting, TF-IDF reweighting and one random forest per category.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/disaster-response-pipeline/internal/common"
	"github.com/Veraticus/disaster-response-pipeline/internal/model"
)

// ErrNotFitted is returned when predicting with an unfitted pipeline.
var ErrNotFitted = common.ErrNotFitted

// Pipeline chains a CountVectorizer, a TFIDFTransformer and a multi-output
// random forest. It is fitted once and immutable afterwards.
type Pipeline struct {
	tokenizer  Tokenizer
	vectorizer *CountVectorizer
	tfidf      *TFIDFTransformer
	progress   ProgressFunc
	forests    []*Forest
	categories []string
	params     Params
}

// Build returns an unfitted pipeline configured by p.
func Build(p Params, tok Tokenizer) (*Pipeline, error) {
	if tok == nil {
		return nil, fmt.Errorf("%w: nil tokenizer", ErrInvalidParam)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Pipeline{
		params:     p,
		tokenizer:  tok,
		vectorizer: NewCountVectorizer(p.Vectorizer, tok),
		tfidf:      NewTFIDFTransformer(p.TFIDF),
	}, nil
}

// Params returns the configuration the pipeline was built with.
func (p *Pipeline) Params() Params {
	return p.params
}

// OnProgress registers a callback invoked as trees finish fitting.
func (p *Pipeline) OnProgress(fn ProgressFunc) {
	p.progress = fn
}

// Fitted reports whether Fit has completed.
func (p *Pipeline) Fitted() bool {
	return p.forests != nil
}

// Categories returns the category names in output column order.
func (p *Pipeline) Categories() []string {
	return p.categories
}

// NumOutputs is the width of every predicted label vector.
func (p *Pipeline) NumOutputs() int {
	return len(p.forests)
}

// Vocabulary returns the fitted term→column mapping.
func (p *Pipeline) Vocabulary() map[string]int32 {
	return p.vectorizer.Vocabulary()
}

// Fit learns the vocabulary, IDF weights and one forest per category from
// the training set. It blocks until every forest is fitted.
func (p *Pipeline) Fit(ctx context.Context, train *model.Dataset) error {
	if p.Fitted() {
		return fmt.Errorf("pipeline is already fitted")
	}
	if train.Len() == 0 {
		return fmt.Errorf("fit: %w", common.ErrEmptyDataset)
	}
	if err := train.Validate(); err != nil {
		return fmt.Errorf("fit: %w", err)
	}
	if len(train.Categories) == 0 {
		return fmt.Errorf("fit: no categories")
	}

	start := time.Now()
	counts, err := p.vectorizer.FitTransform(train.Messages)
	if err != nil {
		return fmt.Errorf("vectorizing: %w", err)
	}
	features, err := p.tfidf.FitTransform(counts)
	if err != nil {
		return fmt.Errorf("tfidf: %w", err)
	}
	slog.Debug("Extracted features",
		"rows", len(features.Rows),
		"vocabulary", features.Cols,
		"duration", time.Since(start))

	columns := make([][]uint8, len(train.Categories))
	for j := range columns {
		columns[j] = train.Column(j)
	}

	forests, err := fitForests(ctx, features, columns, p.params.Forest, p.progress)
	if err != nil {
		return err
	}
	p.forests = forests
	p.categories = append([]string(nil), train.Categories...)

	slog.Debug("Fitted forests",
		"categories", len(forests),
		"trees_per_category", p.params.Forest.NEstimators,
		"duration", time.Since(start))
	return nil
}

// features runs the fitted vectorizer and TF-IDF stages over messages.
func (p *Pipeline) features(messages []string) (*Matrix, error) {
	if !p.Fitted() {
		return nil, ErrNotFitted
	}
	counts, err := p.vectorizer.Transform(messages)
	if err != nil {
		return nil, err
	}
	return p.tfidf.Transform(counts)
}

// Predict returns one label vector per message, NumOutputs wide.
func (p *Pipeline) Predict(messages []string) ([]model.LabelVector, error) {
	x, err := p.features(messages)
	if err != nil {
		return nil, err
	}
	out := make([]model.LabelVector, len(x.Rows))
	for i, row := range x.Rows {
		v := make(model.LabelVector, len(p.forests))
		for j, f := range p.forests {
			v[j] = f.Predict(row)
		}
		out[i] = v
	}
	return out, nil
}

// PredictProba returns the positive-class probability of every category
// for every message.
func (p *Pipeline) PredictProba(messages []string) ([][]float64, error) {
	x, err := p.features(messages)
	if err != nil {
		return nil, err
	}
	out := make([][]float64, len(x.Rows))
	for i, row := range x.Rows {
		probs := make([]float64, len(p.forests))
		for j, f := range p.forests {
			probs[j] = f.Proba(row)
		}
		out[i] = probs
	}
	return out, nil
}
