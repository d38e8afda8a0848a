package pipeline

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

// ErrEmptyVocabulary is returned when no term survives fitting and pruning.
var ErrEmptyVocabulary = errors.New("empty vocabulary")

// Tokenizer splits one message into normalized tokens.
type Tokenizer interface {
	Tokenize(text string) []string
}

// CountVectorizer maps messages to sparse term-count vectors over a
// vocabulary learned from the training messages.
type CountVectorizer struct {
	tokenizer  Tokenizer
	vocabulary map[string]int32
	params     VectorizerParams
}

// NewCountVectorizer returns an unfitted vectorizer.
func NewCountVectorizer(p VectorizerParams, tok Tokenizer) *CountVectorizer {
	return &CountVectorizer{params: p, tokenizer: tok}
}

// Vocabulary returns the term→column mapping. Nil before fitting.
func (v *CountVectorizer) Vocabulary() map[string]int32 {
	return v.vocabulary
}

// analyze tokenizes text and expands it into the configured n-grams.
func (v *CountVectorizer) analyze(text string) []string {
	tokens := v.tokenizer.Tokenize(text)
	lo, hi := v.params.NGramMin, v.params.NGramMax
	if lo == 1 && hi == 1 {
		return tokens
	}

	var terms []string
	if lo == 1 {
		terms = append(terms, tokens...)
		lo = 2
	}
	for n := lo; n <= hi; n++ {
		for i := 0; i+n <= len(tokens); i++ {
			terms = append(terms, strings.Join(tokens[i:i+n], " "))
		}
	}
	return terms
}

// FitTransform learns the vocabulary from docs and returns their count matrix.
func (v *CountVectorizer) FitTransform(docs []string) (*Matrix, error) {
	analyzed := make([][]string, len(docs))
	docFreq := make(map[string]int)
	termFreq := make(map[string]int)

	for i, doc := range docs {
		terms := v.analyze(doc)
		analyzed[i] = terms
		seen := make(map[string]struct{}, len(terms))
		for _, term := range terms {
			termFreq[term]++
			if _, ok := seen[term]; !ok {
				seen[term] = struct{}{}
				docFreq[term]++
			}
		}
	}
	if len(termFreq) == 0 {
		return nil, fmt.Errorf("%w: training messages produced no tokens", ErrEmptyVocabulary)
	}

	maxDocs := int(math.Floor(v.params.MaxDF * float64(len(docs))))
	terms := make([]string, 0, len(docFreq))
	for term, df := range docFreq {
		if df > maxDocs || df < v.params.MinDF {
			continue
		}
		terms = append(terms, term)
	}

	if limit := v.params.MaxFeatures; limit > 0 && len(terms) > limit {
		sort.Slice(terms, func(a, b int) bool {
			if termFreq[terms[a]] != termFreq[terms[b]] {
				return termFreq[terms[a]] > termFreq[terms[b]]
			}
			return terms[a] < terms[b]
		})
		terms = terms[:limit]
	}
	if len(terms) == 0 {
		return nil, fmt.Errorf("%w: no terms remain after pruning (max_df %.2f, min_df %d)",
			ErrEmptyVocabulary, v.params.MaxDF, v.params.MinDF)
	}

	sort.Strings(terms)
	v.vocabulary = make(map[string]int32, len(terms))
	for i, term := range terms {
		v.vocabulary[term] = int32(i)
	}

	m := &Matrix{Rows: make([]SparseVector, len(docs)), Cols: len(terms)}
	for i, doc := range analyzed {
		m.Rows[i] = v.countRow(doc)
	}
	return m, nil
}

// Transform maps docs onto the fitted vocabulary. Unknown terms are ignored.
func (v *CountVectorizer) Transform(docs []string) (*Matrix, error) {
	if v.vocabulary == nil {
		return nil, fmt.Errorf("vectorizer: %w", ErrNotFitted)
	}
	m := &Matrix{Rows: make([]SparseVector, len(docs)), Cols: len(v.vocabulary)}
	for i, doc := range docs {
		m.Rows[i] = v.countRow(v.analyze(doc))
	}
	return m, nil
}

func (v *CountVectorizer) countRow(terms []string) SparseVector {
	counts := make(map[int32]float64)
	for _, term := range terms {
		if j, ok := v.vocabulary[term]; ok {
			counts[j]++
		}
	}
	return fromCounts(counts)
}
