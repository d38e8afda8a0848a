package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/disaster-response-pipeline/internal/model"
	"github.com/Veraticus/disaster-response-pipeline/internal/testutil"
)

func testParams() Params {
	p := DefaultParams()
	p.Forest.NEstimators = 10
	p.Forest.Seed = 42
	return p
}

func fitToy(t *testing.T, rows int) *Pipeline {
	t.Helper()
	pl, err := Build(testParams(), testutil.FieldsTokenizer{})
	require.NoError(t, err)
	require.NoError(t, pl.Fit(context.Background(), testutil.ToyDataset(rows)))
	return pl
}

func TestBuild_Errors(t *testing.T) {
	_, err := Build(DefaultParams(), nil)
	assert.ErrorIs(t, err, ErrInvalidParam)

	p := DefaultParams()
	p.Forest.NEstimators = 0
	_, err = Build(p, testutil.FieldsTokenizer{})
	assert.ErrorIs(t, err, ErrInvalidParam)
}

func TestPipeline_FitPredict(t *testing.T) {
	pl := fitToy(t, 50)

	assert.True(t, pl.Fitted())
	assert.Equal(t, model.NumCategories, pl.NumOutputs())
	assert.Equal(t, model.DefaultCategories, pl.Categories())
	assert.NotEmpty(t, pl.Vocabulary())

	templates := testutil.TemplateMessages()
	pred, err := pl.Predict(templates.Messages)
	require.NoError(t, err)
	require.Len(t, pred, len(templates.Messages))
	for i, row := range pred {
		assert.Len(t, row, model.NumCategories)
		assert.Equal(t, templates.Labels[i], row, "message %q", templates.Messages[i])
	}
}

func TestPipeline_PredictUnseenWords(t *testing.T) {
	pl := fitToy(t, 50)

	pred, err := pl.Predict([]string{"completely unrelated words", ""})
	require.NoError(t, err)
	for _, row := range pred {
		assert.Len(t, row, model.NumCategories)
	}
	assert.Equal(t, uint8(0), pred[0][testutil.CategoryIndex("child_alone")])
}

func TestPipeline_PredictProba(t *testing.T) {
	pl := fitToy(t, 50)

	probs, err := pl.PredictProba([]string{"We need clean water in the village"})
	require.NoError(t, err)
	require.Len(t, probs, 1)
	require.Len(t, probs[0], model.NumCategories)
	assert.InDelta(t, 1.0, probs[0][testutil.CategoryIndex("water")], 1e-9)
	assert.InDelta(t, 0.0, probs[0][testutil.CategoryIndex("child_alone")], 1e-9)
}

func TestPipeline_NotFitted(t *testing.T) {
	pl, err := Build(testParams(), testutil.FieldsTokenizer{})
	require.NoError(t, err)

	_, err = pl.Predict([]string{"water"})
	assert.ErrorIs(t, err, ErrNotFitted)
	_, err = pl.Snapshot()
	assert.ErrorIs(t, err, ErrNotFitted)
}

func TestPipeline_FitErrors(t *testing.T) {
	t.Run("empty dataset", func(t *testing.T) {
		pl, err := Build(testParams(), testutil.FieldsTokenizer{})
		require.NoError(t, err)
		err = pl.Fit(context.Background(), &model.Dataset{Categories: []string{"water"}})
		assert.Error(t, err)
		assert.False(t, pl.Fitted())
	})

	t.Run("empty vocabulary", func(t *testing.T) {
		pl, err := Build(testParams(), testutil.FieldsTokenizer{})
		require.NoError(t, err)
		ds := &model.Dataset{
			Messages:   []string{"...", "!!"},
			Labels:     []model.LabelVector{{0}, {1}},
			Categories: []string{"water"},
		}
		assert.ErrorIs(t, pl.Fit(context.Background(), ds), ErrEmptyVocabulary)
	})

	t.Run("refit", func(t *testing.T) {
		pl := fitToy(t, 10)
		assert.Error(t, pl.Fit(context.Background(), testutil.ToyDataset(10)))
	})

	t.Run("canceled", func(t *testing.T) {
		pl, err := Build(testParams(), testutil.FieldsTokenizer{})
		require.NoError(t, err)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, pl.Fit(ctx, testutil.ToyDataset(10)), context.Canceled)
		assert.False(t, pl.Fitted())
	})
}

func TestPipeline_SnapshotRestore(t *testing.T) {
	pl := fitToy(t, 40)
	snap, err := pl.Snapshot()
	require.NoError(t, err)

	restored, err := Restore(snap, testutil.FieldsTokenizer{})
	require.NoError(t, err)

	inputs := append(testutil.TemplateMessages().Messages, "water for the village doctor", "")
	want, err := pl.Predict(inputs)
	require.NoError(t, err)
	got, err := restored.Predict(inputs)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, pl.Params(), restored.Params())
}

func TestRestore_Invalid(t *testing.T) {
	pl := fitToy(t, 20)
	snap, err := pl.Snapshot()
	require.NoError(t, err)

	broken := *snap
	broken.Forests = broken.Forests[:3]
	_, err = Restore(&broken, testutil.FieldsTokenizer{})
	assert.Error(t, err)

	broken = *snap
	broken.IDF = broken.IDF[:1]
	_, err = Restore(&broken, testutil.FieldsTokenizer{})
	assert.Error(t, err)
}

func TestRestore_InvalidTrees(t *testing.T) {
	pl := fitToy(t, 20)
	snap, err := pl.Snapshot()
	require.NoError(t, err)

	leaf := Node{Feature: -1, Value: 1}
	tests := []struct {
		name  string
		nodes []Node
	}{
		{"no nodes", nil},
		{"self loop", []Node{{Feature: 0, Left: 0, Right: 0}}},
		{"children out of range", []Node{{Feature: 0, Left: 7, Right: 8}}},
		{"negative child", []Node{{Feature: 0, Left: -1, Right: 1}, leaf}},
		{"backward child", []Node{{Feature: 0, Left: 1, Right: 2}, {Feature: 0, Left: 0, Right: 2}, leaf}},
		{"feature out of range", []Node{{Feature: 1 << 30, Left: 1, Right: 2}, leaf, leaf}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			broken := *snap
			broken.Forests = append([][]Tree(nil), snap.Forests...)
			broken.Forests[0] = []Tree{{Nodes: tt.nodes}}

			_, err := Restore(&broken, testutil.FieldsTokenizer{})
			assert.ErrorIs(t, err, ErrInvalidTree)
		})
	}

	restored, err := Restore(snap, testutil.FieldsTokenizer{})
	require.NoError(t, err)
	assert.True(t, restored.Fitted())
}
