package pipeline

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/sourcegraph/conc/pool"

	"github.com/Veraticus/disaster-response-pipeline/internal/model"
)

// GridEntry lists the values to try for one stage parameter.
type GridEntry struct {
	Stage  Stage
	Param  string
	Values []any
}

// Grid is a set of parameters searched as a cartesian product.
type Grid []GridEntry

// DefaultGrid is the grid of the reference training script.
func DefaultGrid() Grid {
	return Grid{
		{Stage: StageVectorizer, Param: "ngram_range", Values: []any{[]int{1, 1}, []int{1, 2}}},
		{Stage: StageVectorizer, Param: "max_df", Values: []any{0.5, 0.75, 1.0}},
		{Stage: StageVectorizer, Param: "max_features", Values: []any{nil, 5000, 10000}},
		{Stage: StageTFIDF, Param: "use_idf", Values: []any{true, false}},
		{Stage: StageClassifier, Param: "n_estimators", Values: []any{50, 100, 200}},
		{Stage: StageClassifier, Param: "min_samples_split", Values: []any{2, 3, 4}},
	}
}

// Setting is one chosen value of a grid entry.
type Setting struct {
	Stage Stage
	Param string
	Value any
}

func (s Setting) String() string {
	v := "None"
	if s.Value != nil {
		v = fmt.Sprint(s.Value)
	}
	return fmt.Sprintf("%s__%s=%s", s.Stage, s.Param, v)
}

// Candidate is one point of the grid applied to the base parameters.
type Candidate struct {
	Settings []Setting
	Params   Params
}

// Label renders the settings as "stage__param=value" pairs.
func (c Candidate) Label() string {
	parts := make([]string, len(c.Settings))
	for i, s := range c.Settings {
		parts[i] = s.String()
	}
	return strings.Join(parts, " ")
}

// Expand returns every combination of grid values applied to base through
// Configure, in row-major order of the grid.
func (g Grid) Expand(base Params) ([]Candidate, error) {
	candidates := []Candidate{{Params: base}}
	for _, e := range g {
		if len(e.Values) == 0 {
			return nil, fmt.Errorf("%w: %s__%s has no values", ErrInvalidParam, e.Stage, e.Param)
		}
		next := make([]Candidate, 0, len(candidates)*len(e.Values))
		for _, c := range candidates {
			for _, v := range e.Values {
				p, err := Configure(c.Params, e.Stage, e.Param, v)
				if err != nil {
					return nil, err
				}
				if err := p.Validate(); err != nil {
					return nil, fmt.Errorf("%s__%s=%v: %w", e.Stage, e.Param, v, err)
				}
				settings := append(append([]Setting(nil), c.Settings...), Setting{Stage: e.Stage, Param: e.Param, Value: v})
				next = append(next, Candidate{Params: p, Settings: settings})
			}
		}
		candidates = next
	}
	return candidates, nil
}

// SearchResult holds the cross-validated score of one candidate.
type SearchResult struct {
	Candidate
	FoldScores []float64
	Mean       float64
	Std        float64
	Rank       int
}

// Search runs a cross-validated grid search. Its result only describes the
// candidates; it never produces the model that gets saved.
type Search struct {
	Tokenizer Tokenizer
	Grid      Grid
	Base      Params
	Folds     int
	// Workers bounds concurrent trials. Zero uses GOMAXPROCS.
	Workers int
	// OnTrial is called after each (candidate, fold) trial.
	OnTrial func(done, total int)
}

// Run scores every candidate on data with k-fold cross validation and
// returns the results ranked by mean score, best first. The score is
// subset accuracy: the share of messages whose whole label vector is right.
func (s *Search) Run(ctx context.Context, data *model.Dataset) ([]SearchResult, error) {
	if s.Folds < 2 {
		return nil, fmt.Errorf("%w: need at least 2 folds, got %d", ErrInvalidParam, s.Folds)
	}
	if data.Len() < s.Folds {
		return nil, fmt.Errorf("%w: %d rows for %d folds", ErrInvalidParam, data.Len(), s.Folds)
	}
	candidates, err := s.Grid.Expand(s.Base)
	if err != nil {
		return nil, err
	}

	workers := s.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	folds := kFold(data.Len(), s.Folds)
	results := make([]SearchResult, len(candidates))
	for i, c := range candidates {
		// Trials already run in parallel, so each fits its trees serially.
		c.Params.Forest.Workers = 1
		results[i] = SearchResult{Candidate: c, FoldScores: make([]float64, s.Folds)}
	}

	total := len(candidates) * s.Folds
	var mu sync.Mutex
	finished := 0
	report := func() {
		mu.Lock()
		defer mu.Unlock()
		finished++
		if s.OnTrial != nil {
			s.OnTrial(finished, total)
		}
	}

	trials := pool.New().WithMaxGoroutines(workers).WithContext(ctx).WithCancelOnError()
	for i := range results {
		for k, testIdx := range folds {
			trials.Go(func(ctx context.Context) error {
				score, err := s.trial(ctx, results[i].Params, data, testIdx)
				if err != nil {
					return fmt.Errorf("candidate %q fold %d: %w", results[i].Label(), k, err)
				}
				results[i].FoldScores[k] = score
				report()
				return nil
			})
		}
	}
	if err := trials.Wait(); err != nil {
		return nil, err
	}

	for i := range results {
		results[i].Mean, results[i].Std = meanStd(results[i].FoldScores)
	}
	sort.SliceStable(results, func(a, b int) bool { return results[a].Mean > results[b].Mean })
	for i := range results {
		results[i].Rank = i + 1
		if i > 0 && results[i].Mean == results[i-1].Mean {
			results[i].Rank = results[i-1].Rank
		}
	}
	return results, nil
}

func (s *Search) trial(ctx context.Context, p Params, data *model.Dataset, testIdx []int) (float64, error) {
	inTest := make(map[int]struct{}, len(testIdx))
	for _, i := range testIdx {
		inTest[i] = struct{}{}
	}
	trainIdx := make([]int, 0, data.Len()-len(testIdx))
	for i := 0; i < data.Len(); i++ {
		if _, ok := inTest[i]; !ok {
			trainIdx = append(trainIdx, i)
		}
	}

	pl, err := Build(p, s.Tokenizer)
	if err != nil {
		return 0, err
	}
	if err := pl.Fit(ctx, data.Subset(trainIdx)); err != nil {
		return 0, err
	}
	test := data.Subset(testIdx)
	pred, err := pl.Predict(test.Messages)
	if err != nil {
		return 0, err
	}
	return SubsetAccuracy(test.Labels, pred), nil
}

// SubsetAccuracy is the share of rows whose predicted vector equals the
// true vector in every column.
func SubsetAccuracy(truth, pred []model.LabelVector) float64 {
	if len(truth) == 0 {
		return 0
	}
	exact := 0
	for i := range truth {
		if equalLabels(truth[i], pred[i]) {
			exact++
		}
	}
	return float64(exact) / float64(len(truth))
}

func equalLabels(a, b model.LabelVector) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// kFold splits n rows into k contiguous, unshuffled test folds. The first
// n%k folds get one extra row.
func kFold(n, k int) [][]int {
	folds := make([][]int, k)
	start := 0
	for f := 0; f < k; f++ {
		size := n / k
		if f < n%k {
			size++
		}
		idx := make([]int, size)
		for i := range idx {
			idx[i] = start + i
		}
		folds[f] = idx
		start += size
	}
	return folds
}

func meanStd(xs []float64) (float64, float64) {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	var sq float64
	for _, x := range xs {
		sq += (x - mean) * (x - mean)
	}
	return mean, math.Sqrt(sq / float64(len(xs)))
}

// ShuffleDataset returns a copy of d with rows in random order, for callers
// that want shuffled folds.
func ShuffleDataset(d *model.Dataset, rng *rand.Rand) *model.Dataset {
	return d.Subset(rng.Perm(d.Len()))
}
