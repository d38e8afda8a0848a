package text

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mapLemmatizer is a dictionary lemmatizer for tests that do not need the
// full English pack.
type mapLemmatizer map[string]string

func (m mapLemmatizer) Lemma(word string) string {
	if base, ok := m[word]; ok {
		return base
	}
	return word
}

func newTestNormalizer(t *testing.T) *Normalizer {
	t.Helper()
	n, err := NewNormalizer()
	require.NoError(t, err)
	return n
}

func TestEnsureResources_Idempotent(t *testing.T) {
	require.NoError(t, EnsureResources())
	require.NoError(t, EnsureResources())
}

func TestNormalizer_FloodScenario(t *testing.T) {
	n := newTestNormalizer(t)

	got := n.Tokenize("Water is needed in the flooded area")
	require.NotEmpty(t, got)

	assert.Contains(t, got, "water")
	assert.Contains(t, got, "area")
	assert.True(t, containsAny(got, "need", "needed"), "tokens: %v", got)
	assert.True(t, containsAny(got, "flood", "flooded"), "tokens: %v", got)
	for _, tok := range got {
		assert.Equal(t, strings.ToLower(tok), tok)
	}
}

func TestNormalizer_Order(t *testing.T) {
	n := NewNormalizerWith(mapLemmatizer{"Houses": "House", "were": "be"})

	got := n.Tokenize("Houses were destroyed, houses!")
	assert.Equal(t, []string{"house", "be", "destroyed", "houses"}, got)
}

func TestNormalizer_LemmatizeBeforeLowercase(t *testing.T) {
	// Only the capitalized form is in this dictionary, so lowercasing first
	// would miss it.
	n := NewNormalizerWith(mapLemmatizer{"Floods": "flood"})
	assert.Equal(t, []string{"flood", "floods"}, n.Tokenize("Floods floods"))
}

func TestNormalizer_Properties(t *testing.T) {
	n := newTestNormalizer(t)

	inputs := []string{
		"",
		"   ",
		"We need tents and water at Carrefour, Delmas 31.",
		"  HELP!!! The children are hungry  ",
		"Is the Hurricane over or is it not over",
		"I am a victim of Leogane commune and we need food, water and medication.",
		"Les gens ont besoin d'eau à Jacmel",
		"UN reports leave 3 million people without homes",
		"tab\tseparated\nlines\r\nhere",
		"water-borne disease",
		"e-mail 3.5kg",
		"hello,world",
		"...flood/storm!!! -- (shelter)",
	}

	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			first := n.Tokenize(in)
			second := n.Tokenize(in)
			assert.Equal(t, first, second, "normalization must be repeatable")

			assert.LessOrEqual(t, len(first), len(strings.Fields(in)))
			for _, tok := range first {
				assert.NotEmpty(t, tok)
				assert.Equal(t, strings.TrimSpace(tok), tok)
				assert.Equal(t, strings.ToLower(tok), tok)
			}
		})
	}
}

func TestNormalizer_JoinedWords(t *testing.T) {
	n := NewNormalizerWith(mapLemmatizer{})

	tests := []struct {
		in   string
		want []string
	}{
		{"water-borne disease", []string{"water-borne", "disease"}},
		{"e-mail 3.5kg", []string{"e-mail", "3.5kg"}},
		{"hello,world", []string{"hello,world"}},
		{"(shelter), -- food!!", []string{"shelter", "food"}},
		{"... --- !!!", nil},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, n.Tokenize(tt.in))
		})
	}
}

func TestNormalizer_TokensIsLazy(t *testing.T) {
	calls := 0
	n := NewNormalizerWith(countingLemmatizer{calls: &calls})

	for tok := range n.Tokens("one two three four") {
		assert.Equal(t, "one", tok)
		break
	}
	assert.Equal(t, 1, calls, "stopping early must not lemmatize the rest of the message")
}

func TestNormalizer_NFKC(t *testing.T) {
	n := NewNormalizerWith(mapLemmatizer{})
	// Fullwidth latin letters fold to ASCII.
	assert.Equal(t, []string{"water"}, n.Tokenize("ＷＡＴＥＲ"))
}

type countingLemmatizer struct {
	calls *int
}

func (c countingLemmatizer) Lemma(word string) string {
	*c.calls++
	return word
}

func containsAny(tokens []string, want ...string) bool {
	for _, tok := range tokens {
		for _, w := range want {
			if tok == w {
				return true
			}
		}
	}
	return false
}
