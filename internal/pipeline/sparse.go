package pipeline

import (
	"math"
	"sort"
)

// SparseVector is a row of a document-term matrix with sorted column indices.
type SparseVector struct {
	Indices []int32
	Values  []float64
}

// Get returns the value at column j, or zero.
func (v SparseVector) Get(j int32) float64 {
	i := sort.Search(len(v.Indices), func(k int) bool { return v.Indices[k] >= j })
	if i < len(v.Indices) && v.Indices[i] == j {
		return v.Values[i]
	}
	return 0
}

// Len returns the number of stored entries.
func (v SparseVector) Len() int {
	return len(v.Indices)
}

func (v SparseVector) norm() float64 {
	var sum float64
	for _, x := range v.Values {
		sum += x * x
	}
	return math.Sqrt(sum)
}

// Matrix is a row-major sparse matrix.
type Matrix struct {
	Rows []SparseVector
	Cols int
}

// fromCounts converts a column→count map into a sorted sparse row.
func fromCounts(counts map[int32]float64) SparseVector {
	v := SparseVector{
		Indices: make([]int32, 0, len(counts)),
		Values:  make([]float64, 0, len(counts)),
	}
	for j := range counts {
		v.Indices = append(v.Indices, j)
	}
	sort.Slice(v.Indices, func(a, b int) bool { return v.Indices[a] < v.Indices[b] })
	for _, j := range v.Indices {
		v.Values = append(v.Values, counts[j])
	}
	return v
}
