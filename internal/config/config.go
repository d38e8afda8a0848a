// Package config decodes train_classifier settings from viper.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"github.com/Veraticus/disaster-response-pipeline/internal/common"
	"github.com/Veraticus/disaster-response-pipeline/internal/model"
	"github.com/Veraticus/disaster-response-pipeline/internal/pipeline"
	"github.com/Veraticus/disaster-response-pipeline/internal/storage"
)

// EnvPrefix prefixes environment overrides, e.g. TRAIN_CLASSIFIER_SPLIT_SEED.
const EnvPrefix = "TRAIN_CLASSIFIER"

// BindEnv makes every key of v overridable from the environment, with
// dots in key names written as underscores.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// DataConfig locates the labeled messages.
type DataConfig struct {
	// Table defaults to the database file's base name.
	Table         string
	MessageColumn string
	// Categories overrides the default category column names.
	Categories      []string
	InferCategories bool
	NumCategories   int
}

// SplitConfig controls the train/test hold-out.
type SplitConfig struct {
	TestSize float64
	// Seed 0 draws a random seed.
	Seed int64
}

// SearchConfig controls the cross-validated grid search.
type SearchConfig struct {
	Folds   int
	Workers int
	// Top limits how many ranked candidates are printed. Zero prints all.
	Top  int
	Seed int64
	Grid pipeline.Grid
}

// LoggingConfig selects the slog level and handler.
type LoggingConfig struct {
	Level  string
	Format string
}

// Config is the full train_classifier configuration.
type Config struct {
	Data     DataConfig
	Split    SplitConfig
	Pipeline pipeline.Params
	Search   SearchConfig
	Logging  LoggingConfig
}

// SetDefaults registers the default of every scalar key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("data.table", "")
	v.SetDefault("data.message_column", model.DefaultMessageColumn)
	v.SetDefault("data.infer_categories", false)
	v.SetDefault("data.num_categories", model.NumCategories)

	v.SetDefault("split.test_size", 0.2)
	v.SetDefault("split.seed", 0)

	v.SetDefault("search.folds", 3)
	v.SetDefault("search.workers", 0)
	v.SetDefault("search.top", 10)
	v.SetDefault("search.seed", 0)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// Load decodes v into a Config. Pipeline parameters are read from
// pipeline.<stage>.<param> keys using scikit-learn parameter names, for
// example pipeline.clf.n_estimators.
func Load(v *viper.Viper) (Config, error) {
	SetDefaults(v)

	cfg := Config{
		Data: DataConfig{
			Table:           v.GetString("data.table"),
			MessageColumn:   v.GetString("data.message_column"),
			Categories:      v.GetStringSlice("data.categories"),
			InferCategories: v.GetBool("data.infer_categories"),
			NumCategories:   v.GetInt("data.num_categories"),
		},
		Split: SplitConfig{
			TestSize: v.GetFloat64("split.test_size"),
			Seed:     v.GetInt64("split.seed"),
		},
		Search: SearchConfig{
			Folds:   v.GetInt("search.folds"),
			Workers: v.GetInt("search.workers"),
			Top:     v.GetInt("search.top"),
			Seed:    v.GetInt64("search.seed"),
		},
		Logging: LoggingConfig{
			Level:  v.GetString("logging.level"),
			Format: v.GetString("logging.format"),
		},
	}
	if len(cfg.Data.Categories) == 0 {
		cfg.Data.Categories = slices.Clone(model.DefaultCategories)
	}

	if cfg.Split.TestSize <= 0 || cfg.Split.TestSize >= 1 {
		return Config{}, fmt.Errorf("%w: split.test_size %v must be in (0, 1)", common.ErrInvalidConfig, cfg.Split.TestSize)
	}
	if cfg.Search.Folds < 2 {
		return Config{}, fmt.Errorf("%w: search.folds %d must be at least 2", common.ErrInvalidConfig, cfg.Search.Folds)
	}

	params, err := loadParams(v)
	if err != nil {
		return Config{}, err
	}
	cfg.Pipeline = params

	grid, err := loadGrid(v)
	if err != nil {
		return Config{}, err
	}
	cfg.Search.Grid = grid

	return cfg, nil
}

// loadParams applies every pipeline.<stage>.<param> key to the defaults.
// Known parameters are also looked up one by one so that environment
// overrides, which never appear in GetStringMap, take effect.
func loadParams(v *viper.Viper) (pipeline.Params, error) {
	p := pipeline.DefaultParams()
	for _, stage := range pipeline.Stages {
		prefix := "pipeline." + string(stage)
		settings := v.GetStringMap(prefix)
		for _, param := range pipeline.ParamNames(stage) {
			if key := prefix + "." + param; v.IsSet(key) {
				settings[param] = v.Get(key)
			}
		}
		for _, param := range sortedKeys(settings) {
			next, err := pipeline.Configure(p, stage, param, settings[param])
			if err != nil {
				return pipeline.Params{}, fmt.Errorf("%w: %w", common.ErrInvalidConfig, err)
			}
			p = next
		}
	}
	if err := p.Validate(); err != nil {
		return pipeline.Params{}, fmt.Errorf("%w: %w", common.ErrInvalidConfig, err)
	}
	return p, nil
}

// loadGrid reads search.grid, a map of "stage__param" to the list of values
// to try. An absent grid is the default one.
func loadGrid(v *viper.Viper) (pipeline.Grid, error) {
	raw := v.GetStringMap("search.grid")
	if len(raw) == 0 {
		return pipeline.DefaultGrid(), nil
	}

	grid := make(pipeline.Grid, 0, len(raw))
	for _, key := range sortedKeys(raw) {
		stage, param, ok := strings.Cut(key, "__")
		if !ok {
			return nil, fmt.Errorf("%w: search.grid key %q is not stage__param", common.ErrInvalidConfig, key)
		}
		values, err := cast.ToSliceE(raw[key])
		if err != nil || len(values) == 0 {
			return nil, fmt.Errorf("%w: search.grid.%s needs a list of values", common.ErrInvalidConfig, key)
		}
		grid = append(grid, pipeline.GridEntry{Stage: pipeline.Stage(stage), Param: param, Values: values})
	}
	if _, err := grid.Expand(pipeline.DefaultParams()); err != nil {
		return nil, fmt.Errorf("%w: search.grid: %w", common.ErrInvalidConfig, err)
	}
	return grid, nil
}

// Schema returns the table layout to load from the database at dbPath.
func (c Config) Schema(dbPath string) model.Schema {
	table := c.Data.Table
	if table == "" {
		table = storage.DefaultTable(dbPath)
	}
	return model.Schema{
		Table:           table,
		MessageColumn:   c.Data.MessageColumn,
		Categories:      slices.Clone(c.Data.Categories),
		InferCategories: c.Data.InferCategories,
		NumCategories:   c.Data.NumCategories,
	}
}

// ExpandPath expands a leading ~ and $VAR references in a file path.
func ExpandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return os.ExpandEnv(path)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
