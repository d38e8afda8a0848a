package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultParams(t *testing.T) {
	p := DefaultParams()
	require.NoError(t, p.Validate())
	assert.Equal(t, 1, p.Vectorizer.NGramMin)
	assert.Equal(t, 1, p.Vectorizer.NGramMax)
	assert.True(t, p.TFIDF.UseIDF)
	assert.True(t, p.TFIDF.SmoothIDF)
	assert.Equal(t, 100, p.Forest.NEstimators)
	assert.Equal(t, 2, p.Forest.MinSamplesSplit)
	assert.Equal(t, MaxFeaturesSqrt, p.Forest.MaxFeatures)
}

func TestConfigure(t *testing.T) {
	tests := []struct {
		name  string
		stage Stage
		param string
		value any
		check func(*testing.T, Params)
	}{
		{
			name: "ngram range slice", stage: StageVectorizer, param: "ngram_range", value: []int{1, 2},
			check: func(t *testing.T, p Params) {
				t.Helper()
				assert.Equal(t, 1, p.Vectorizer.NGramMin)
				assert.Equal(t, 2, p.Vectorizer.NGramMax)
			},
		},
		{
			name: "ngram range yaml list", stage: StageVectorizer, param: "ngram_range", value: []any{2, 3},
			check: func(t *testing.T, p Params) {
				t.Helper()
				assert.Equal(t, 2, p.Vectorizer.NGramMin)
				assert.Equal(t, 3, p.Vectorizer.NGramMax)
			},
		},
		{
			name: "ngram range tuple string", stage: StageVectorizer, param: "ngram_range", value: "(1, 2)",
			check: func(t *testing.T, p Params) {
				t.Helper()
				assert.Equal(t, 2, p.Vectorizer.NGramMax)
			},
		},
		{
			name: "max df", stage: StageVectorizer, param: "max_df", value: 0.75,
			check: func(t *testing.T, p Params) {
				t.Helper()
				assert.InDelta(t, 0.75, p.Vectorizer.MaxDF, 1e-9)
			},
		},
		{
			name: "max features none", stage: StageVectorizer, param: "max_features", value: nil,
			check: func(t *testing.T, p Params) {
				t.Helper()
				assert.Zero(t, p.Vectorizer.MaxFeatures)
			},
		},
		{
			name: "max depth none text", stage: StageClassifier, param: "max_depth", value: "None",
			check: func(t *testing.T, p Params) {
				t.Helper()
				assert.Zero(t, p.Forest.MaxDepth)
			},
		},
		{
			name: "max features string", stage: StageVectorizer, param: "max_features", value: "5000",
			check: func(t *testing.T, p Params) {
				t.Helper()
				assert.Equal(t, 5000, p.Vectorizer.MaxFeatures)
			},
		},
		{
			name: "use idf", stage: StageTFIDF, param: "use_idf", value: false,
			check: func(t *testing.T, p Params) {
				t.Helper()
				assert.False(t, p.TFIDF.UseIDF)
			},
		},
		{
			name: "estimator prefix", stage: StageClassifier, param: "estimator__n_estimators", value: 50,
			check: func(t *testing.T, p Params) {
				t.Helper()
				assert.Equal(t, 50, p.Forest.NEstimators)
			},
		},
		{
			name: "min samples split", stage: StageClassifier, param: "min_samples_split", value: 3,
			check: func(t *testing.T, p Params) {
				t.Helper()
				assert.Equal(t, 3, p.Forest.MinSamplesSplit)
			},
		},
		{
			name: "n_jobs all cores", stage: StageClassifier, param: "n_jobs", value: -1,
			check: func(t *testing.T, p Params) {
				t.Helper()
				assert.Zero(t, p.Forest.Workers)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := DefaultParams()
			got, err := Configure(base, tt.stage, tt.param, tt.value)
			require.NoError(t, err)
			tt.check(t, got)
			assert.Equal(t, DefaultParams(), base, "Configure must not modify its input")
		})
	}
}

func TestParamNames(t *testing.T) {
	for _, stage := range Stages {
		names := ParamNames(stage)
		require.NotEmpty(t, names, stage)
		for _, name := range names {
			_, err := Configure(DefaultParams(), stage, name, sampleParamValue(name))
			require.NoError(t, err, "%s.%s", stage, name)
		}
	}
	assert.Nil(t, ParamNames(Stage("bogus")))
}

func sampleParamValue(name string) any {
	switch name {
	case "ngram_range":
		return "1,2"
	case "max_df", "min_df":
		return 1.0
	case "use_idf", "smooth_idf", "sublinear_tf", "bootstrap":
		return true
	default:
		return 2
	}
}

func TestConfigure_Errors(t *testing.T) {
	tests := []struct {
		name    string
		stage   Stage
		param   string
		value   any
		wantErr error
	}{
		{name: "unknown stage", stage: "scaler", param: "with_mean", value: true, wantErr: ErrUnknownParam},
		{name: "unknown param", stage: StageVectorizer, param: "lowercase", value: true, wantErr: ErrUnknownParam},
		{name: "bad int", stage: StageClassifier, param: "n_estimators", value: "many", wantErr: ErrInvalidParam},
		{name: "bad range", stage: StageVectorizer, param: "ngram_range", value: []int{1, 2, 3}, wantErr: ErrInvalidParam},
		{name: "bad bool", stage: StageTFIDF, param: "use_idf", value: "sometimes", wantErr: ErrInvalidParam},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Configure(DefaultParams(), tt.stage, tt.param, tt.value)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, DefaultParams(), got)
		})
	}
}

func TestParams_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Params)
	}{
		{name: "inverted ngram", mutate: func(p *Params) { p.Vectorizer.NGramMin = 2; p.Vectorizer.NGramMax = 1 }},
		{name: "max df zero", mutate: func(p *Params) { p.Vectorizer.MaxDF = 0 }},
		{name: "no trees", mutate: func(p *Params) { p.Forest.NEstimators = 0 }},
		{name: "split below two", mutate: func(p *Params) { p.Forest.MinSamplesSplit = 1 }},
		{name: "unknown max features", mutate: func(p *Params) { p.Forest.MaxFeatures = "half" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.mutate(&p)
			assert.ErrorIs(t, p.Validate(), ErrInvalidParam)
		})
	}
}

func TestCandidateFeatures(t *testing.T) {
	f := DefaultParams().Forest
	assert.Equal(t, 10, f.candidateFeatures(100))
	assert.Equal(t, 1, f.candidateFeatures(1))

	f.MaxFeatures = MaxFeaturesLog2
	assert.Equal(t, 6, f.candidateFeatures(100))

	f.MaxFeatures = MaxFeaturesAll
	assert.Equal(t, 100, f.candidateFeatures(100))
}
