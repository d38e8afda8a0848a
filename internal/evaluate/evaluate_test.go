package evaluate

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/disaster-response-pipeline/internal/common"
	"github.com/Veraticus/disaster-response-pipeline/internal/model"
	"github.com/Veraticus/disaster-response-pipeline/internal/testutil"
)

func TestEvaluate_OneReportPerCategory(t *testing.T) {
	test := testutil.ToyDataset(10)
	var buf bytes.Buffer

	reports, err := Evaluate(test.Labels, test, &buf, Options{})
	require.NoError(t, err)
	require.Len(t, reports, model.NumCategories)

	out := buf.String()
	assert.Equal(t, model.NumCategories, strings.Count(out, "For column "))
	assert.Equal(t, model.NumCategories, strings.Count(out, "weighted avg"))

	last := -1
	for j, name := range model.DefaultCategories {
		assert.Equal(t, name, reports[j].Category)
		idx := strings.Index(out, fmt.Sprintf("For column %s:\n", name))
		require.GreaterOrEqual(t, idx, 0, "missing report for %s", name)
		assert.Greater(t, idx, last, "report for %s out of order", name)
		last = idx
		assert.InDelta(t, 1.0, reports[j].Report.Accuracy, 1e-12)
	}
}

func TestEvaluate_Heading(t *testing.T) {
	test := testutil.ToyDataset(5)
	var buf bytes.Buffer

	_, err := Evaluate(test.Labels, test, &buf, Options{Heading: strings.ToUpper})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "FOR COLUMN WATER:")
}

func TestEvaluate_Misaligned(t *testing.T) {
	test := testutil.ToyDataset(5)
	pred := make([]model.LabelVector, test.Len())
	for i := range pred {
		pred[i] = make(model.LabelVector, model.NumCategories-1)
	}
	var buf bytes.Buffer

	_, err := Evaluate(pred, test, &buf, Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrMisaligned)
	assert.Empty(t, buf.String(), "nothing may be reported for misaligned predictions")

	_, err = Evaluate(pred[:2], test, &buf, Options{})
	assert.Error(t, err)
}

func TestSummarize(t *testing.T) {
	test := testutil.ToyDataset(10)
	pred := make([]model.LabelVector, test.Len())
	for i := range pred {
		pred[i] = make(model.LabelVector, model.NumCategories)
	}

	reports, err := Evaluate(pred, test, &bytes.Buffer{}, Options{})
	require.NoError(t, err)

	s := Summarize(reports)
	assert.Equal(t, model.NumCategories, s.Categories)
	assert.Less(t, s.MeanAccuracy, 1.0)
	assert.Zero(t, s.MeanPositiveF1)
	assert.Zero(t, Summarize(nil).MeanAccuracy)
}
