// Package config loads textexplain settings with viper.
//
// Precedence, highest first: command line flags, TEXTEXPLAIN_* environment
// variables, the YAML config file, defaults.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/textexplain/datasets"
	"github.com/YuminosukeSato/textexplain/interpret"
	"github.com/YuminosukeSato/textexplain/pkg/errors"
	"github.com/YuminosukeSato/textexplain/pkg/log"
	"github.com/YuminosukeSato/textexplain/preprocessing"
	"github.com/YuminosukeSato/textexplain/sklearn/linear_model"
	"github.com/YuminosukeSato/textexplain/sklearn/model_selection"
)

// EnvPrefix prefixes environment overrides: data.dir is TEXTEXPLAIN_DATA_DIR.
const EnvPrefix = "TEXTEXPLAIN"

// Config is the full set of run settings.
type Config struct {
	Data       DataConfig       `mapstructure:"data" yaml:"data"`
	Split      SplitConfig      `mapstructure:"split" yaml:"split"`
	Vectorizer VectorizerConfig `mapstructure:"vectorizer" yaml:"vectorizer"`
	Explainer  ExplainerConfig  `mapstructure:"explainer" yaml:"explainer"`
	Output     OutputConfig     `mapstructure:"output" yaml:"output"`
	Log        LogConfig        `mapstructure:"log" yaml:"log"`
}

// DataConfig selects the dataset split and the rows used.
type DataConfig struct {
	Dir          string `mapstructure:"dir" yaml:"dir"`
	Split        string `mapstructure:"split" yaml:"split"`
	URL          string `mapstructure:"url" yaml:"url"`
	FilterColumn string `mapstructure:"filter_column" yaml:"filter_column"`
	FilterValue  string `mapstructure:"filter_value" yaml:"filter_value"`
	TextColumn   string `mapstructure:"text_column" yaml:"text_column"`
	LabelColumn  string `mapstructure:"label_column" yaml:"label_column"`
	Sample       int    `mapstructure:"sample" yaml:"sample"` // 0 keeps all rows
}

// SplitConfig controls the train/test split.
type SplitConfig struct {
	// TrainSize 0 uses every row not in the test side.
	TrainSize float64 `mapstructure:"train_size" yaml:"train_size"`
	TestSize  float64 `mapstructure:"test_size" yaml:"test_size"`
	// RandomState < 0 draws a fresh seed on every run.
	RandomState int64 `mapstructure:"random_state" yaml:"random_state"`
}

// VectorizerConfig configures the CountVectorizer.
type VectorizerConfig struct {
	Lowercase   bool    `mapstructure:"lowercase" yaml:"lowercase"`
	StopWords   string  `mapstructure:"stop_words" yaml:"stop_words"`
	MinDF       float64 `mapstructure:"min_df" yaml:"min_df"`
	MaxFeatures int     `mapstructure:"max_features" yaml:"max_features"`
	Binary      bool    `mapstructure:"binary" yaml:"binary"`
	Tfidf       bool    `mapstructure:"tfidf" yaml:"tfidf"`
}

// ExplainerConfig holds the pass-through model parameters and the search.
type ExplainerConfig struct {
	NJobs      int           `mapstructure:"n_jobs" yaml:"n_jobs"`
	Tol        float64       `mapstructure:"tol" yaml:"tol"`
	MaxIter    int           `mapstructure:"max_iter" yaml:"max_iter"`
	CV         int           `mapstructure:"cv" yaml:"cv"`
	CGrid      []float64     `mapstructure:"c_grid" yaml:"c_grid"`
	Solver     string        `mapstructure:"solver" yaml:"solver"`
	MultiClass string        `mapstructure:"multi_class" yaml:"multi_class"`
	CacheTTL   time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"`
}

// OutputConfig names the optional artifacts of a run. Empty paths are skipped.
type OutputConfig struct {
	TopK  int    `mapstructure:"top_k" yaml:"top_k"`
	Plot  string `mapstructure:"plot" yaml:"plot"`
	Model string `mapstructure:"model" yaml:"model"`
	DB    string `mapstructure:"db" yaml:"db"`
}

// LogConfig configures the CLI logger.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Defaults returns the built-in settings.
func Defaults() *Config {
	return &Config{
		Data: DataConfig{
			Dir:          "data",
			Split:        "train",
			URL:          datasets.DefaultURL,
			FilterColumn: datasets.ColumnGoldLabel,
			FilterValue:  "neutral",
			TextColumn:   datasets.ColumnSentence1,
			LabelColumn:  datasets.ColumnGenre,
		},
		Split: SplitConfig{
			TrainSize:   0,
			TestSize:    0.2,
			RandomState: -1,
		},
		Vectorizer: VectorizerConfig{
			Lowercase: true,
			StopWords: "english",
			MinDF:     1,
		},
		Explainer: ExplainerConfig{
			NJobs:      -1,
			Tol:        1e-4,
			MaxIter:    100,
			CV:         3,
			CGrid:      append([]float64(nil), interpret.DefaultCGrid...),
			Solver:     linear_model.SolverLBFGS,
			MultiClass: linear_model.MultiClassMultinomial,
			CacheTTL:   10 * time.Minute,
		},
		Output: OutputConfig{TopK: 10},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// SetDefaults registers every key with its default so that environment
// variables are seen by Unmarshal.
func SetDefaults(v *viper.Viper) {
	d := Defaults()
	defaults := map[string]interface{}{
		"data.dir":                d.Data.Dir,
		"data.split":              d.Data.Split,
		"data.url":                d.Data.URL,
		"data.filter_column":      d.Data.FilterColumn,
		"data.filter_value":       d.Data.FilterValue,
		"data.text_column":        d.Data.TextColumn,
		"data.label_column":       d.Data.LabelColumn,
		"data.sample":             d.Data.Sample,
		"split.train_size":        d.Split.TrainSize,
		"split.test_size":         d.Split.TestSize,
		"split.random_state":      d.Split.RandomState,
		"vectorizer.lowercase":    d.Vectorizer.Lowercase,
		"vectorizer.stop_words":   d.Vectorizer.StopWords,
		"vectorizer.min_df":       d.Vectorizer.MinDF,
		"vectorizer.max_features": d.Vectorizer.MaxFeatures,
		"vectorizer.binary":       d.Vectorizer.Binary,
		"vectorizer.tfidf":        d.Vectorizer.Tfidf,
		"explainer.n_jobs":        d.Explainer.NJobs,
		"explainer.tol":           d.Explainer.Tol,
		"explainer.max_iter":      d.Explainer.MaxIter,
		"explainer.cv":            d.Explainer.CV,
		"explainer.c_grid":        d.Explainer.CGrid,
		"explainer.solver":        d.Explainer.Solver,
		"explainer.multi_class":   d.Explainer.MultiClass,
		"explainer.cache_ttl":     d.Explainer.CacheTTL,
		"output.top_k":            d.Output.TopK,
		"output.plot":             d.Output.Plot,
		"output.model":            d.Output.Model,
		"output.db":               d.Output.DB,
		"log.level":               d.Log.Level,
		"log.format":              d.Log.Format,
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}

// DefaultPath is $HOME/.textexplain/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "find home directory")
	}
	return filepath.Join(home, ".textexplain", "config.yaml"), nil
}

// Init prepares v: defaults, environment binding and the config file.
// With an empty path the default location is read when it exists.
// An explicit path that cannot be read is an error.
func Init(v *viper.Viper, path string) error {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return errors.Wrapf(err, "read config %s", path)
		}
		return nil
	}

	def, err := DefaultPath()
	if err != nil {
		return nil
	}
	if _, err := os.Stat(def); err != nil {
		return nil
	}
	v.SetConfigFile(def)
	if err := v.ReadInConfig(); err != nil {
		return errors.Wrapf(err, "read config %s", def)
	}
	log.GetLoggerWithName("config").Debug("Config file loaded", log.PathKey, def)
	return nil
}

// Load decodes the settings held by v and validates them.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting as a ValidationError.
func (c *Config) Validate() error {
	validSplit := false
	for _, s := range datasets.Splits {
		if c.Data.Split == s {
			validSplit = true
		}
	}
	switch {
	case c.Data.Dir == "":
		return errors.NewValidationError("data.dir", "must not be empty", c.Data.Dir)
	case !validSplit:
		return errors.NewValidationError("data.split", "must be one of "+strings.Join(datasets.Splits, ", "), c.Data.Split)
	case c.Data.TextColumn == "" || c.Data.LabelColumn == "":
		return errors.NewValidationError("data.text_column", "text and label columns must be set", []string{c.Data.TextColumn, c.Data.LabelColumn})
	case c.Data.Sample < 0:
		return errors.NewValidationError("data.sample", "must be non-negative", c.Data.Sample)
	case c.Split.TrainSize != 0 && !(c.Split.TrainSize > 0 && c.Split.TrainSize < 1):
		return errors.NewValidationError("split.train_size", "must be 0 (complement of test_size) or in (0, 1)", c.Split.TrainSize)
	case !(c.Split.TestSize > 0 && c.Split.TestSize < 1):
		return errors.NewValidationError("split.test_size", "must be in (0, 1)", c.Split.TestSize)
	case c.Split.TrainSize+c.Split.TestSize > 1+1e-9:
		return errors.NewValidationError("split.train_size", "train_size + test_size must not exceed 1", c.Split.TrainSize+c.Split.TestSize)
	case c.Vectorizer.MinDF < 0:
		return errors.NewValidationError("vectorizer.min_df", "must be non-negative", c.Vectorizer.MinDF)
	case c.Vectorizer.MaxFeatures < 0:
		return errors.NewValidationError("vectorizer.max_features", "must be non-negative", c.Vectorizer.MaxFeatures)
	case c.Explainer.NJobs == 0 || c.Explainer.NJobs < -1:
		return errors.NewValidationError("explainer.n_jobs", "must be -1 or positive", c.Explainer.NJobs)
	case !(c.Explainer.Tol > 0):
		return errors.NewValidationError("explainer.tol", "must be positive", c.Explainer.Tol)
	case c.Explainer.MaxIter < 1:
		return errors.NewValidationError("explainer.max_iter", "must be at least 1", c.Explainer.MaxIter)
	case c.Explainer.CV < 2:
		return errors.NewValidationError("explainer.cv", "must be at least 2", c.Explainer.CV)
	case len(c.Explainer.CGrid) == 0:
		return errors.NewValidationError("explainer.c_grid", "must not be empty", c.Explainer.CGrid)
	case c.Output.TopK < 1:
		return errors.NewValidationError("output.top_k", "must be at least 1", c.Output.TopK)
	}
	for _, cv := range c.Explainer.CGrid {
		if !(cv > 0) {
			return errors.NewValidationError("explainer.c_grid", "values must be positive", cv)
		}
	}
	switch c.Explainer.Solver {
	case linear_model.SolverLBFGS, linear_model.SolverGD:
	default:
		return errors.NewValidationError("explainer.solver", "supported solvers are 'lbfgs' and 'gd'", c.Explainer.Solver)
	}
	switch c.Explainer.MultiClass {
	case linear_model.MultiClassAuto, linear_model.MultiClassOVR, linear_model.MultiClassMultinomial:
	default:
		return errors.NewValidationError("explainer.multi_class", "must be 'auto', 'ovr' or 'multinomial'", c.Explainer.MultiClass)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return errors.NewValidationError("log.format", "must be 'json' or 'console'", c.Log.Format)
	}
	if _, err := log.ToLogLevel(c.Log.Level); err != nil {
		return errors.NewValidationError("log.level", err.Error(), c.Log.Level)
	}
	return nil
}

// YAML renders c in config file form.
func (c *Config) YAML() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, errors.Wrap(err, "encode config")
	}
	return data, nil
}

const fileHeader = `# textexplain configuration
#
# Precedence, highest first:
#   1. command line flags
#   2. environment variables (TEXTEXPLAIN_DATA_DIR, TEXTEXPLAIN_EXPLAINER_N_JOBS, ...)
#   3. this file
#   4. built-in defaults

`

// WriteFile writes c to path as YAML. An existing file is only replaced
// when overwrite is set.
func (c *Config) WriteFile(path string, overwrite bool) error {
	if _, err := os.Stat(path); err == nil && !overwrite {
		return errors.Newf("config file already exists: %s", path)
	}
	data, err := c.YAML()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "create config directory")
	}
	if err := os.WriteFile(path, append([]byte(fileHeader), data...), 0o644); err != nil {
		return errors.Wrapf(err, "write config %s", path)
	}
	return nil
}

// SplitOptions converts the split settings.
func (c *Config) SplitOptions() []model_selection.SplitOption {
	opts := []model_selection.SplitOption{
		model_selection.WithTrainSize(c.Split.TrainSize),
		model_selection.WithTestSize(c.Split.TestSize),
	}
	if c.Split.RandomState >= 0 {
		opts = append(opts, model_selection.WithRandomState(uint64(c.Split.RandomState)))
	}
	return opts
}

// NewVectorizer builds an unfitted CountVectorizer.
func (c *Config) NewVectorizer() *preprocessing.CountVectorizer {
	return preprocessing.NewCountVectorizer(
		preprocessing.WithLowercase(c.Vectorizer.Lowercase),
		preprocessing.WithStopWords(preprocessing.StopWordsByName(c.Vectorizer.StopWords)),
		preprocessing.WithMinDF(c.Vectorizer.MinDF),
		preprocessing.WithMaxFeatures(c.Vectorizer.MaxFeatures),
		preprocessing.WithBinary(c.Vectorizer.Binary),
		preprocessing.WithVectorizerJobs(c.Explainer.NJobs),
	)
}

// ModelConfig is the parameter map handed to every LogisticRegression.
func (c *Config) ModelConfig() map[string]interface{} {
	return map[string]interface{}{
		"n_jobs":      c.Explainer.NJobs,
		"tol":         c.Explainer.Tol,
		"max_iter":    c.Explainer.MaxIter,
		"solver":      c.Explainer.Solver,
		"multi_class": c.Explainer.MultiClass,
	}
}

// ParamGrid is the hyperparameter grid searched during Fit.
func (c *Config) ParamGrid() model_selection.ParamGrid {
	cs := make([]interface{}, len(c.Explainer.CGrid))
	for i, v := range c.Explainer.CGrid {
		cs[i] = v
	}
	return model_selection.ParamGrid{"C": cs}
}

// ExplainerOptions builds the explainer options for this config.
func (c *Config) ExplainerOptions() []interpret.Option {
	opts := []interpret.Option{
		interpret.WithVectorizer(c.NewVectorizer()),
		interpret.WithHyperparamRange(c.ParamGrid()),
		interpret.WithModelConfig(c.ModelConfig()),
		interpret.WithCV(c.Explainer.CV),
		interpret.WithCache(c.Explainer.CacheTTL),
	}
	if c.Vectorizer.Tfidf {
		opts = append(opts, interpret.WithTfidf(preprocessing.NewTfidfTransformerDefault()))
	}
	if c.Split.RandomState >= 0 {
		opts = append(opts, interpret.WithRandomState(uint64(c.Split.RandomState)))
	}
	return opts
}
