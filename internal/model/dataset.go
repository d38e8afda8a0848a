// Package model defines the core data types for the classifier trainer.
package model

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
)

// Model errors.
var (
	ErrInvalidSchema = errors.New("invalid schema")
	ErrInvalidSplit  = errors.New("invalid train/test split")
)

// LabelVector holds one 0/1 indicator per category.
type LabelVector []uint8

// Positive returns the indices set to 1.
func (l LabelVector) Positive() []int {
	var idx []int
	for i, v := range l {
		if v != 0 {
			idx = append(idx, i)
		}
	}
	return idx
}

// Dataset is an ordered collection of messages and their label vectors.
// Labels[i] belongs to Messages[i]; every vector is len(Categories) wide.
type Dataset struct {
	Messages   []string
	Labels     []LabelVector
	Categories []string
}

// Len returns the number of messages.
func (d *Dataset) Len() int {
	return len(d.Messages)
}

// Column returns label column j across all messages.
func (d *Dataset) Column(j int) []uint8 {
	col := make([]uint8, len(d.Labels))
	for i, l := range d.Labels {
		col[i] = l[j]
	}
	return col
}

// Validate checks the row count and label width invariants.
func (d *Dataset) Validate() error {
	if len(d.Messages) != len(d.Labels) {
		return fmt.Errorf("%d messages but %d label vectors", len(d.Messages), len(d.Labels))
	}
	for i, l := range d.Labels {
		if len(l) != len(d.Categories) {
			return fmt.Errorf("row %d: %d labels for %d categories", i, len(l), len(d.Categories))
		}
	}
	return nil
}

// Subset returns the rows at idx, in that order. Slices are copied.
func (d *Dataset) Subset(idx []int) *Dataset {
	out := &Dataset{
		Messages:   make([]string, len(idx)),
		Labels:     make([]LabelVector, len(idx)),
		Categories: d.Categories,
	}
	for k, i := range idx {
		out.Messages[k] = d.Messages[i]
		out.Labels[k] = d.Labels[i]
	}
	return out
}

// Split shuffles the rows with rng and partitions them into disjoint train
// and test sets. The test set holds ceil(testSize * n) rows, as in
// scikit-learn's train_test_split.
func (d *Dataset) Split(testSize float64, rng *rand.Rand) (train, test *Dataset, err error) {
	if testSize <= 0 || testSize >= 1 {
		return nil, nil, fmt.Errorf("%w: test size %.2f must be in (0, 1)", ErrInvalidSplit, testSize)
	}
	n := d.Len()
	nTest := int(math.Ceil(testSize * float64(n)))
	if nTest < 1 || n-nTest < 1 {
		return nil, nil, fmt.Errorf("%w: %d rows cannot be split with test size %.2f", ErrInvalidSplit, n, testSize)
	}

	perm := rng.Perm(n)
	return d.Subset(perm[nTest:]), d.Subset(perm[:nTest]), nil
}
