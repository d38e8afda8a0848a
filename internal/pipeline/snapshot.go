package pipeline

import (
	"fmt"
)

// Snapshot is the serializable state of a fitted pipeline. The tokenizer is
// code, not state, and is supplied again by Restore.
type Snapshot struct {
	Params     Params
	Categories []string
	Vocabulary map[string]int32
	IDF        []float64
	Forests    [][]Tree
}

// Snapshot captures the fitted state.
func (p *Pipeline) Snapshot() (*Snapshot, error) {
	if !p.Fitted() {
		return nil, ErrNotFitted
	}
	s := &Snapshot{
		Params:     p.params,
		Categories: append([]string(nil), p.categories...),
		Vocabulary: p.vectorizer.Vocabulary(),
		IDF:        p.tfidf.IDF(),
		Forests:    make([][]Tree, len(p.forests)),
	}
	for j, f := range p.forests {
		s.Forests[j] = make([]Tree, len(f.Trees))
		for t, tree := range f.Trees {
			s.Forests[j][t] = *tree
		}
	}
	return s, nil
}

// Restore rebuilds a fitted pipeline from a snapshot.
func Restore(s *Snapshot, tok Tokenizer) (*Pipeline, error) {
	if len(s.Categories) == 0 {
		return nil, fmt.Errorf("snapshot has no categories")
	}
	if len(s.Forests) != len(s.Categories) {
		return nil, fmt.Errorf("snapshot has %d forests for %d categories", len(s.Forests), len(s.Categories))
	}
	if len(s.Vocabulary) == 0 {
		return nil, fmt.Errorf("snapshot: %w", ErrEmptyVocabulary)
	}
	if s.Params.TFIDF.UseIDF && len(s.IDF) != len(s.Vocabulary) {
		return nil, fmt.Errorf("snapshot has %d idf weights for %d terms", len(s.IDF), len(s.Vocabulary))
	}

	p, err := Build(s.Params, tok)
	if err != nil {
		return nil, err
	}
	p.vectorizer.vocabulary = s.Vocabulary
	p.tfidf.idf = s.IDF
	p.tfidf.fitted = true
	p.categories = s.Categories
	p.forests = make([]*Forest, len(s.Forests))
	for j, trees := range s.Forests {
		if len(trees) == 0 {
			return nil, fmt.Errorf("snapshot forest %d has no trees", j)
		}
		f := &Forest{Trees: make([]*Tree, len(trees))}
		for t := range trees {
			if err := trees[t].validate(len(s.Vocabulary)); err != nil {
				return nil, fmt.Errorf("snapshot forest %d tree %d: %w", j, t, err)
			}
			f.Trees[t] = &trees[t]
		}
		p.forests[j] = f
	}
	return p, nil
}
