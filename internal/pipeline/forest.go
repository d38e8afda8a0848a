package pipeline

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"sync"

	"github.com/sourcegraph/conc/pool"
)

// Forest is a fitted random forest for one binary label.
type Forest struct {
	Trees []*Tree
}

// Proba averages the positive-class probability over all trees.
func (f *Forest) Proba(x SparseVector) float64 {
	var sum float64
	for _, t := range f.Trees {
		sum += t.Proba(x)
	}
	return sum / float64(len(f.Trees))
}

// Predict returns 1 when the mean probability favors the positive class.
// Ties go to 0, the lower class label.
func (f *Forest) Predict(x SparseVector) uint8 {
	if f.Proba(x) > 0.5 {
		return 1
	}
	return 0
}

// ProgressFunc is called after each tree is fitted. It may be called from
// several goroutines, but never concurrently.
type ProgressFunc func(done, total int)

// fitForests fits one forest per label column on the same feature rows.
// Trees are independent, so every (label, tree) pair is a separate job on a
// bounded pool. columns[j][i] is the label of row i for category j.
func fitForests(ctx context.Context, x *Matrix, columns [][]uint8, p ForestParams, progress ProgressFunc) ([]*Forest, error) {
	workers := p.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	nRows := len(x.Rows)
	total := len(columns) * p.NEstimators
	mtry := p.candidateFeatures(x.Cols)

	// Seeds are drawn up front so results do not depend on scheduling.
	seeder := rand.New(rand.NewSource(p.Seed))
	seeds := make([][]int64, len(columns))
	forests := make([]*Forest, len(columns))
	for j := range columns {
		seeds[j] = make([]int64, p.NEstimators)
		for t := range seeds[j] {
			seeds[j][t] = seeder.Int63()
		}
		forests[j] = &Forest{Trees: make([]*Tree, p.NEstimators)}
	}

	var mu sync.Mutex
	done := 0
	report := func() {
		mu.Lock()
		defer mu.Unlock()
		done++
		if progress != nil {
			progress(done, total)
		}
	}

	for j, y := range columns {
		if len(y) != nRows {
			return nil, fmt.Errorf("label column %d has %d rows, features have %d", j, len(y), nRows)
		}
	}

	jobs := pool.New().WithMaxGoroutines(workers).WithContext(ctx).WithCancelOnError()
	for j, y := range columns {
		for t := 0; t < p.NEstimators; t++ {
			jobs.Go(func(ctx context.Context) error {
				if err := ctx.Err(); err != nil {
					return err
				}
				rng := rand.New(rand.NewSource(seeds[j][t]))
				weight, samples := sampleWeights(nRows, p.Bootstrap, rng)
				b := &treeBuilder{
					rows:   x.Rows,
					y:      y,
					weight: weight,
					rng:    rng,
					params: p,
					mtry:   mtry,
				}
				forests[j].Trees[t] = b.build(samples)
				report()
				return nil
			})
		}
	}
	if err := jobs.Wait(); err != nil {
		return nil, fmt.Errorf("fitting forests: %w", err)
	}
	return forests, nil
}

// sampleWeights draws a bootstrap sample of n rows as per-row counts and
// returns the rows drawn at least once.
func sampleWeights(n int, bootstrap bool, rng *rand.Rand) ([]float64, []int) {
	weight := make([]float64, n)
	if !bootstrap {
		samples := make([]int, n)
		for i := range weight {
			weight[i] = 1
			samples[i] = i
		}
		return weight, samples
	}

	for i := 0; i < n; i++ {
		weight[rng.Intn(n)]++
	}
	samples := make([]int, 0, n)
	for i, w := range weight {
		if w > 0 {
			samples = append(samples, i)
		}
	}
	return weight, samples
}
