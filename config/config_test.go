package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/textexplain/pkg/errors"
	"github.com/YuminosukeSato/textexplain/sklearn/linear_model"
	"github.com/YuminosukeSato/textexplain/sklearn/model_selection"
)

func load(t *testing.T, path string) (*Config, error) {
	t.Helper()
	// keep a config file in the real home directory out of the tests
	t.Setenv("HOME", t.TempDir())
	v := viper.New()
	require.NoError(t, Init(v, path))
	return Load(v)
}

func TestDefaultsAreValid(t *testing.T) {
	require.NoError(t, Defaults().Validate())

	cfg, err := load(t, "")
	require.NoError(t, err)
	if diff := cmp.Diff(Defaults(), cfg); diff != "" {
		t.Errorf("loaded defaults mismatch (-want +got):\n%s", diff)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("TEXTEXPLAIN_EXPLAINER_CV", "5")
	t.Setenv("TEXTEXPLAIN_EXPLAINER_C_GRID", "0.5,5")
	t.Setenv("TEXTEXPLAIN_EXPLAINER_CACHE_TTL", "30s")
	t.Setenv("TEXTEXPLAIN_DATA_SPLIT", "dev_matched")
	t.Setenv("TEXTEXPLAIN_VECTORIZER_TFIDF", "true")

	cfg, err := load(t, "")
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Explainer.CV)
	assert.Equal(t, []float64{0.5, 5}, cfg.Explainer.CGrid)
	assert.Equal(t, 30*time.Second, cfg.Explainer.CacheTTL)
	assert.Equal(t, "dev_matched", cfg.Data.Split)
	assert.True(t, cfg.Vectorizer.Tfidf)
}

func TestFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	want := Defaults()
	want.Explainer.CV = 4
	want.Explainer.CGrid = []float64{0.5, 5}
	want.Split.RandomState = 7
	want.Output.Plot = "out.svg"
	require.NoError(t, want.WriteFile(path, false))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# textexplain configuration")

	got, err := load(t, path)
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}

	assert.Error(t, want.WriteFile(path, false))
	assert.NoError(t, want.WriteFile(path, true))
}

func TestExplicitMissingFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	err := Init(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		param string
		edit  func(c *Config)
	}{
		{"bad split", "data.split", func(c *Config) { c.Data.Split = "test" }},
		{"empty dir", "data.dir", func(c *Config) { c.Data.Dir = "" }},
		{"negative sample", "data.sample", func(c *Config) { c.Data.Sample = -1 }},
		{"train size", "split.train_size", func(c *Config) { c.Split.TrainSize = 1 }},
		{"negative train size", "split.train_size", func(c *Config) { c.Split.TrainSize = -0.1 }},
		{"sizes overflow", "split.train_size", func(c *Config) { c.Split.TrainSize, c.Split.TestSize = 0.9, 0.2 }},
		{"n_jobs zero", "explainer.n_jobs", func(c *Config) { c.Explainer.NJobs = 0 }},
		{"tol", "explainer.tol", func(c *Config) { c.Explainer.Tol = 0 }},
		{"cv", "explainer.cv", func(c *Config) { c.Explainer.CV = 1 }},
		{"empty grid", "explainer.c_grid", func(c *Config) { c.Explainer.CGrid = nil }},
		{"negative C", "explainer.c_grid", func(c *Config) { c.Explainer.CGrid = []float64{1, -1} }},
		{"solver", "explainer.solver", func(c *Config) { c.Explainer.Solver = "sag" }},
		{"multi_class", "explainer.multi_class", func(c *Config) { c.Explainer.MultiClass = "crammer" }},
		{"top_k", "output.top_k", func(c *Config) { c.Output.TopK = 0 }},
		{"log format", "log.format", func(c *Config) { c.Log.Format = "xml" }},
		{"log level", "log.level", func(c *Config) { c.Log.Level = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Defaults()
			tt.edit(c)
			err := c.Validate()
			var verr *errors.ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Equal(t, tt.param, verr.ParamName)
		})
	}
}

func TestTestSizeAloneUsesComplement(t *testing.T) {
	c := Defaults()
	assert.Zero(t, c.Split.TrainSize)
	c.Split.TestSize = 0.3
	require.NoError(t, c.Validate())

	split, err := model_selection.TrainTestSplit(10, c.SplitOptions()...)
	require.NoError(t, err)
	assert.Len(t, split.TrainIndices, 7)
	assert.Len(t, split.TestIndices, 3)
}

func TestBuilders(t *testing.T) {
	c := Defaults()

	grid := c.ParamGrid()
	assert.Len(t, grid["C"], len(c.Explainer.CGrid))

	mc := c.ModelConfig()
	assert.Equal(t, linear_model.SolverLBFGS, mc["solver"])
	assert.Equal(t, -1, mc["n_jobs"])

	assert.Len(t, c.SplitOptions(), 2)
	c.Split.RandomState = 3
	assert.Len(t, c.SplitOptions(), 3)

	v := c.NewVectorizer()
	assert.Equal(t, true, v.GetParams()["lowercase"])
	assert.NotEmpty(t, c.ExplainerOptions())
}
