package pipeline

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/spf13/cast"
)

// Parameter errors.
var (
	ErrUnknownParam = errors.New("unknown pipeline parameter")
	ErrInvalidParam = errors.New("invalid pipeline parameter")
)

// Stage names one step of the pipeline.
type Stage string

// Pipeline stages, in the order they run.
const (
	StageVectorizer Stage = "vect"
	StageTFIDF      Stage = "tfidf"
	StageClassifier Stage = "clf"
)

// Stages lists every stage in execution order.
var Stages = []Stage{StageVectorizer, StageTFIDF, StageClassifier}

// ParamNames returns the parameter names Configure accepts for stage,
// without the estimator__ aliases.
func ParamNames(stage Stage) []string {
	switch stage {
	case StageVectorizer:
		return []string{"ngram_range", "max_df", "min_df", "max_features"}
	case StageTFIDF:
		return []string{"use_idf", "smooth_idf", "sublinear_tf"}
	case StageClassifier:
		return []string{"n_estimators", "min_samples_split", "min_samples_leaf", "max_depth", "max_features", "bootstrap", "random_state", "n_jobs"}
	default:
		return nil
	}
}

// Candidate feature counts per split.
const (
	MaxFeaturesSqrt = "sqrt"
	MaxFeaturesLog2 = "log2"
	MaxFeaturesAll  = "all"
)

// VectorizerParams configures token counting.
type VectorizerParams struct {
	NGramMin int
	NGramMax int
	// MaxDF drops terms present in more than this share of documents.
	MaxDF float64
	// MinDF drops terms present in fewer than this many documents.
	MinDF int
	// MaxFeatures keeps only the most frequent terms. Zero keeps all.
	MaxFeatures int
}

// TFIDFParams configures count reweighting.
type TFIDFParams struct {
	UseIDF      bool
	SmoothIDF   bool
	SublinearTF bool
}

// ForestParams configures the per-category random forests.
type ForestParams struct {
	NEstimators     int
	MinSamplesSplit int
	MinSamplesLeaf  int
	// MaxDepth limits tree depth. Zero grows trees until leaves are pure.
	MaxDepth    int
	MaxFeatures string
	Bootstrap   bool
	// Seed drives bootstrap sampling and feature selection.
	Seed int64
	// Workers bounds concurrent tree fits. Zero uses GOMAXPROCS.
	Workers int
}

// Params enumerates every tunable parameter of the pipeline.
type Params struct {
	Vectorizer VectorizerParams
	TFIDF      TFIDFParams
	Forest     ForestParams
}

// DefaultParams mirrors scikit-learn's CountVectorizer, TfidfTransformer and
// RandomForestClassifier defaults.
func DefaultParams() Params {
	return Params{
		Vectorizer: VectorizerParams{
			NGramMin: 1,
			NGramMax: 1,
			MaxDF:    1.0,
			MinDF:    1,
		},
		TFIDF: TFIDFParams{
			UseIDF:    true,
			SmoothIDF: true,
		},
		Forest: ForestParams{
			NEstimators:     100,
			MinSamplesSplit: 2,
			MinSamplesLeaf:  1,
			MaxFeatures:     MaxFeaturesSqrt,
			Bootstrap:       true,
		},
	}
}

// Validate reports the first out-of-range parameter.
func (p Params) Validate() error {
	v := p.Vectorizer
	switch {
	case v.NGramMin < 1 || v.NGramMax < v.NGramMin:
		return fmt.Errorf("%w: ngram_range (%d, %d)", ErrInvalidParam, v.NGramMin, v.NGramMax)
	case v.MaxDF <= 0 || v.MaxDF > 1:
		return fmt.Errorf("%w: max_df %.2f must be in (0, 1]", ErrInvalidParam, v.MaxDF)
	case v.MinDF < 1:
		return fmt.Errorf("%w: min_df %d must be at least 1", ErrInvalidParam, v.MinDF)
	case v.MaxFeatures < 0:
		return fmt.Errorf("%w: max_features %d", ErrInvalidParam, v.MaxFeatures)
	}

	f := p.Forest
	switch {
	case f.NEstimators < 1:
		return fmt.Errorf("%w: n_estimators %d", ErrInvalidParam, f.NEstimators)
	case f.MinSamplesSplit < 2:
		return fmt.Errorf("%w: min_samples_split %d must be at least 2", ErrInvalidParam, f.MinSamplesSplit)
	case f.MinSamplesLeaf < 1:
		return fmt.Errorf("%w: min_samples_leaf %d", ErrInvalidParam, f.MinSamplesLeaf)
	case f.MaxDepth < 0:
		return fmt.Errorf("%w: max_depth %d", ErrInvalidParam, f.MaxDepth)
	case f.Workers < 0:
		return fmt.Errorf("%w: n_jobs %d", ErrInvalidParam, f.Workers)
	}
	switch f.MaxFeatures {
	case MaxFeaturesSqrt, MaxFeaturesLog2, MaxFeaturesAll:
	default:
		return fmt.Errorf("%w: max_features %q", ErrInvalidParam, f.MaxFeatures)
	}
	return nil
}

// Configure returns a copy of p with one stage parameter set to value.
// Parameter names follow scikit-learn (e.g. vect/ngram_range,
// clf/n_estimators). p itself is never modified.
func Configure(p Params, stage Stage, param string, value any) (Params, error) {
	orig := p
	var err error
	switch stage {
	case StageVectorizer:
		err = configureVectorizer(&p.Vectorizer, param, value)
	case StageTFIDF:
		err = configureTFIDF(&p.TFIDF, param, value)
	case StageClassifier:
		err = configureForest(&p.Forest, param, value)
	default:
		return orig, fmt.Errorf("%w: stage %q", ErrUnknownParam, stage)
	}
	if err != nil {
		return orig, fmt.Errorf("%s__%s: %w", stage, param, err)
	}
	return p, nil
}

func configureVectorizer(v *VectorizerParams, param string, value any) error {
	switch param {
	case "ngram_range":
		lo, hi, err := toRange(value)
		if err != nil {
			return err
		}
		v.NGramMin, v.NGramMax = lo, hi
	case "max_df":
		f, err := cast.ToFloat64E(value)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidParam, err)
		}
		v.MaxDF = f
	case "min_df":
		return setInt(&v.MinDF, value)
	case "max_features":
		// None means unlimited.
		if isNone(value) {
			v.MaxFeatures = 0
			return nil
		}
		return setInt(&v.MaxFeatures, value)
	default:
		return ErrUnknownParam
	}
	return nil
}

func configureTFIDF(t *TFIDFParams, param string, value any) error {
	switch param {
	case "use_idf":
		return setBool(&t.UseIDF, value)
	case "smooth_idf":
		return setBool(&t.SmoothIDF, value)
	case "sublinear_tf":
		return setBool(&t.SublinearTF, value)
	default:
		return ErrUnknownParam
	}
}

func configureForest(f *ForestParams, param string, value any) error {
	// Accept the names scikit-learn uses through MultiOutputClassifier.
	param = strings.TrimPrefix(param, "estimator__")
	switch param {
	case "n_estimators":
		return setInt(&f.NEstimators, value)
	case "min_samples_split":
		return setInt(&f.MinSamplesSplit, value)
	case "min_samples_leaf":
		return setInt(&f.MinSamplesLeaf, value)
	case "max_depth":
		if isNone(value) {
			f.MaxDepth = 0
			return nil
		}
		return setInt(&f.MaxDepth, value)
	case "max_features":
		s, err := cast.ToStringE(value)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidParam, err)
		}
		f.MaxFeatures = strings.ToLower(s)
	case "bootstrap":
		return setBool(&f.Bootstrap, value)
	case "random_state":
		s, err := cast.ToInt64E(value)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidParam, err)
		}
		f.Seed = s
	case "n_jobs":
		n, err := cast.ToIntE(value)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidParam, err)
		}
		// -1 means all cores, like scikit-learn.
		if n < 0 {
			n = 0
		}
		f.Workers = n
	default:
		return ErrUnknownParam
	}
	return nil
}

// isNone reports a nil value or the text "None", as it arrives from
// environment variables.
func isNone(value any) bool {
	if value == nil {
		return true
	}
	s, ok := value.(string)
	return ok && strings.EqualFold(strings.TrimSpace(s), "none")
}

func setInt(dst *int, value any) error {
	n, err := cast.ToIntE(value)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidParam, err)
	}
	*dst = n
	return nil
}

func setBool(dst *bool, value any) error {
	b, err := cast.ToBoolE(value)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidParam, err)
	}
	*dst = b
	return nil
}

// toRange accepts [lo, hi] as a slice, an array or a "lo,hi" / "(lo, hi)" string.
func toRange(value any) (int, int, error) {
	var parts []int
	switch v := value.(type) {
	case string:
		trimmed := strings.Trim(v, "()[] ")
		for _, s := range strings.Split(trimmed, ",") {
			n, err := cast.ToIntE(strings.TrimSpace(s))
			if err != nil {
				return 0, 0, fmt.Errorf("%w: ngram_range %q", ErrInvalidParam, v)
			}
			parts = append(parts, n)
		}
	case [2]int:
		parts = v[:]
	default:
		ints, err := cast.ToIntSliceE(value)
		if err != nil {
			return 0, 0, fmt.Errorf("%w: ngram_range: %w", ErrInvalidParam, err)
		}
		parts = ints
	}
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: ngram_range needs two values, got %d", ErrInvalidParam, len(parts))
	}
	return parts[0], parts[1], nil
}

// candidateFeatures is the number of features drawn at each split.
func (f ForestParams) candidateFeatures(nFeatures int) int {
	var k int
	switch f.MaxFeatures {
	case MaxFeaturesLog2:
		k = int(math.Log2(float64(nFeatures)))
	case MaxFeaturesAll:
		k = nFeatures
	default:
		k = int(math.Sqrt(float64(nFeatures)))
	}
	return max(k, 1)
}
