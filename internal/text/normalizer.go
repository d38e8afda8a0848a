// Package text turns raw message text into normalized tokens.
//
// Normalization is NFKC folding, one word per whitespace field found by
// UAX #29 segmentation, dictionary lemmatization, lowercasing and
// whitespace trimming, applied in that order.
package text

import (
	"fmt"
	"iter"
	"strings"
	"sync"
	"unicode"

	"github.com/aaaton/golem/v4"
	"github.com/aaaton/golem/v4/dicts/en"
	"github.com/rivo/uniseg"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Lemmatizer reduces a word to its dictionary base form.
type Lemmatizer interface {
	Lemma(word string) string
}

var loadLemmatizer = sync.OnceValues(func() (*golem.Lemmatizer, error) {
	lem, err := golem.New(en.New())
	if err != nil {
		return nil, fmt.Errorf("failed to load english lemma dictionary: %w", err)
	}
	return lem, nil
})

// EnsureResources loads the lemmatizer dictionary. It is safe to call any
// number of times from any goroutine; the dictionary is decoded once.
func EnsureResources() error {
	_, err := loadLemmatizer()
	return err
}

// Normalizer produces normalized tokens for a message. It holds no mutable
// state and may be shared between goroutines.
type Normalizer struct {
	lemmatizer Lemmatizer
	lang       language.Tag
}

// NewNormalizer returns a Normalizer backed by the English dictionary,
// loading it first if needed.
func NewNormalizer() (*Normalizer, error) {
	lem, err := loadLemmatizer()
	if err != nil {
		return nil, err
	}
	return NewNormalizerWith(lem), nil
}

// NewNormalizerWith returns a Normalizer using the given lemmatizer.
func NewNormalizerWith(l Lemmatizer) *Normalizer {
	return &Normalizer{lemmatizer: l, lang: language.English}
}

// Tokens returns a lazy sequence of the normalized tokens of text.
// Order is preserved and duplicates are kept. Each whitespace-separated
// field yields at most one token, so joined words such as "water-borne"
// or "e-mail" stay whole.
func (n *Normalizer) Tokens(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		// Casers are stateful, so each sequence gets its own.
		lower := cases.Lower(n.lang)
		for _, field := range strings.Fields(norm.NFKC.String(text)) {
			word := wordSpan(field)
			if word == "" {
				continue
			}
			tok := strings.TrimSpace(lower.String(n.lemmatizer.Lemma(word)))
			if tok == "" {
				continue
			}
			if !yield(tok) {
				return
			}
		}
	}
}

// wordSpan returns the part of field from the first to the last UAX #29
// word segment carrying a letter or digit, keeping the punctuation that
// joins them. Leading and trailing punctuation is dropped.
func wordSpan(field string) string {
	start, end, offset := -1, 0, 0
	state := -1
	rest := field
	var seg string
	for len(rest) > 0 {
		seg, rest, state = uniseg.FirstWordInString(rest, state)
		if isWord(seg) {
			if start < 0 {
				start = offset
			}
			end = offset + len(seg)
		}
		offset += len(seg)
	}
	if start < 0 {
		return ""
	}
	return field[start:end]
}

// Tokenize collects Tokens into a slice.
func (n *Normalizer) Tokenize(text string) []string {
	var out []string
	for tok := range n.Tokens(text) {
		out = append(out, tok)
	}
	return out
}

// isWord reports whether a segment carries a letter or digit. Whitespace and
// punctuation segments are dropped.
func isWord(seg string) bool {
	for _, r := range seg {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			return true
		}
	}
	return false
}
