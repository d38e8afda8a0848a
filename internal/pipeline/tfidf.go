package pipeline

import (
	"fmt"
	"math"
)

// TFIDFTransformer rescales term counts by inverse document frequency and
// normalizes each row to unit length.
type TFIDFTransformer struct {
	idf    []float64
	params TFIDFParams
	fitted bool
}

// NewTFIDFTransformer returns an unfitted transformer.
func NewTFIDFTransformer(p TFIDFParams) *TFIDFTransformer {
	return &TFIDFTransformer{params: p}
}

// IDF returns the learned weights, or nil when UseIDF is off.
func (t *TFIDFTransformer) IDF() []float64 {
	return t.idf
}

// Fit learns document frequencies from a count matrix.
func (t *TFIDFTransformer) Fit(m *Matrix) {
	t.fitted = true
	if !t.params.UseIDF {
		t.idf = nil
		return
	}

	df := make([]float64, m.Cols)
	for _, row := range m.Rows {
		for k, j := range row.Indices {
			if row.Values[k] != 0 {
				df[j]++
			}
		}
	}

	n := float64(len(m.Rows))
	t.idf = make([]float64, m.Cols)
	for j, d := range df {
		if t.params.SmoothIDF {
			t.idf[j] = math.Log((1+n)/(1+d)) + 1
			continue
		}
		if d == 0 {
			// Unseen column. Weight it as if it appeared once.
			d = 1
		}
		t.idf[j] = math.Log(n/d) + 1
	}
}

// Transform returns a reweighted, L2-normalized copy of m.
func (t *TFIDFTransformer) Transform(m *Matrix) (*Matrix, error) {
	if !t.fitted {
		return nil, fmt.Errorf("tfidf: %w", ErrNotFitted)
	}
	if t.idf != nil && len(t.idf) != m.Cols {
		return nil, fmt.Errorf("tfidf: fitted on %d columns, got %d", len(t.idf), m.Cols)
	}

	out := &Matrix{Rows: make([]SparseVector, len(m.Rows)), Cols: m.Cols}
	for i, row := range m.Rows {
		v := SparseVector{
			Indices: append([]int32(nil), row.Indices...),
			Values:  make([]float64, len(row.Values)),
		}
		for k, x := range row.Values {
			if t.params.SublinearTF && x > 0 {
				x = 1 + math.Log(x)
			}
			if t.idf != nil {
				x *= t.idf[row.Indices[k]]
			}
			v.Values[k] = x
		}
		if n := v.norm(); n > 0 {
			for k := range v.Values {
				v.Values[k] /= n
			}
		}
		out.Rows[i] = v
	}
	return out, nil
}

// FitTransform fits on m and transforms it.
func (t *TFIDFTransformer) FitTransform(m *Matrix) (*Matrix, error) {
	t.Fit(m)
	return t.Transform(m)
}
