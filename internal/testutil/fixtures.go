package testutil

import (
	"slices"
	"strings"
	"unicode"

	"github.com/Veraticus/disaster-response-pipeline/internal/model"
)

type template struct {
	text       string
	categories []string
}

var templates = []template{
	{text: "We need clean water in the village", categories: []string{"related", "aid_related", "water"}},
	{text: "People are hungry and need food", categories: []string{"related", "aid_related", "request", "food"}},
	{text: "Please send a doctor for the injured", categories: []string{"related", "aid_related", "medical_help"}},
	{text: "The flood destroyed our houses and we need tents", categories: []string{"related", "weather_related", "floods", "shelter"}},
	{text: "Nice weather today at the beach", categories: nil},
}

// ToyDataset returns n messages labeled over model.DefaultCategories,
// cycling through a handful of message templates. Labels follow the words
// in the text, so a classifier can learn them. Most categories (child_alone
// among them) are never set.
func ToyDataset(n int) *model.Dataset {
	cats := slices.Clone(model.DefaultCategories)
	ds := &model.Dataset{Categories: cats}
	for i := 0; i < n; i++ {
		tpl := templates[i%len(templates)]
		labels := make(model.LabelVector, len(cats))
		for _, c := range tpl.categories {
			labels[slices.Index(cats, c)] = 1
		}
		ds.Messages = append(ds.Messages, tpl.text)
		ds.Labels = append(ds.Labels, labels)
	}
	return ds
}

// CategoryIndex returns the column of name in model.DefaultCategories.
func CategoryIndex(name string) int {
	return slices.Index(model.DefaultCategories, name)
}

// FieldsTokenizer splits on whitespace, strips punctuation and lowercases.
// It stands in for the dictionary-backed normalizer where the dictionary
// does not matter.
type FieldsTokenizer struct{}

// Tokenize implements pipeline.Tokenizer.
func (FieldsTokenizer) Tokenize(text string) []string {
	var out []string
	for _, f := range strings.Fields(text) {
		f = strings.ToLower(strings.TrimFunc(f, unicode.IsPunct))
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// TemplateMessages returns the distinct messages ToyDataset cycles through
// with their label vectors.
func TemplateMessages() *model.Dataset {
	return ToyDataset(len(templates))
}
