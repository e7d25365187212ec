package model

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/textexplain/pkg/errors"
)

func TestStateManager(t *testing.T) {
	s := NewStateManager()

	err := s.RequireFitted("LogisticRegression", "Predict")
	var notFitted *errors.NotFittedError
	require.True(t, errors.As(err, &notFitted))
	assert.Equal(t, "Predict", notFitted.Method)

	s.SetDimensions(120, 40, 3)
	s.SetFitted()
	require.NoError(t, s.RequireFitted("LogisticRegression", "Predict"))

	nf, ns, nc := s.GetDimensions()
	assert.Equal(t, []int{120, 40, 3}, []int{nf, ns, nc})

	assert.NoError(t, s.RequireFeatures("Predict", 120))
	var dimErr *errors.DimensionError
	require.True(t, errors.As(s.RequireFeatures("Predict", 7), &dimErr))
	assert.Equal(t, 1, dimErr.Axis)

	s.Reset()
	assert.False(t, s.IsFitted())
	nf, _, nc = s.GetDimensions()
	assert.Zero(t, nf)
	assert.Zero(t, nc)
}

type snapshot struct {
	Vocabulary []string
	Coef       [][]float64
	State      *StateManager
}

func TestSaveLoadModel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "explainer.gob")

	state := NewStateManager()
	state.SetDimensions(2, 4, 2)
	state.SetFitted()
	in := snapshot{
		Vocabulary: []string{"cat", "stock"},
		Coef:       [][]float64{{0.5, -0.5}},
		State:      state,
	}
	require.NoError(t, SaveModel(&in, path))

	var out snapshot
	require.NoError(t, LoadModel(&out, path))
	assert.Equal(t, in.Vocabulary, out.Vocabulary)
	assert.Equal(t, in.Coef, out.Coef)
	assert.True(t, out.State.IsFitted())

	matches, err := filepath.Glob(filepath.Join(filepath.Dir(path), "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, matches, "temporary files must not be left behind")
}

func TestLoadModelErrors(t *testing.T) {
	var out snapshot
	assert.Error(t, LoadModel(&out, filepath.Join(t.TempDir(), "missing.gob")))
	assert.Error(t, LoadModelFromReader(&out, bytes.NewBufferString("not gob")))
}

func TestModelWeightsValidate(t *testing.T) {
	tests := []struct {
		name    string
		weights ModelWeights
		wantErr bool
	}{
		{
			name: "valid multinomial",
			weights: ModelWeights{
				ModelType: "LogisticRegression", Version: "1", IsFitted: true,
				Coefficients: [][]float64{{1, 2}, {3, 4}, {5, 6}},
				Intercepts:   []float64{0, 0, 0},
				Features:     []string{"a", "b"},
			},
		},
		{
			name:    "missing type",
			weights: ModelWeights{Version: "1"},
			wantErr: true,
		},
		{
			name: "ragged rows",
			weights: ModelWeights{
				ModelType: "LogisticRegression", Version: "1", IsFitted: true,
				Coefficients: [][]float64{{1, 2}, {3}},
				Intercepts:   []float64{0, 0},
			},
			wantErr: true,
		},
		{
			name: "feature names mismatch",
			weights: ModelWeights{
				ModelType: "LogisticRegression", Version: "1", IsFitted: true,
				Coefficients: [][]float64{{1, 2}},
				Intercepts:   []float64{0},
				Features:     []string{"a"},
			},
			wantErr: true,
		},
		{
			name: "unfitted with coefficients",
			weights: ModelWeights{
				ModelType: "LogisticRegression", Version: "1",
				Coefficients: [][]float64{{1}},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.weights.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestModelWeightsCloneAndJSON(t *testing.T) {
	mw := &ModelWeights{
		ModelType:       "LogisticRegression",
		Version:         "1",
		IsFitted:        true,
		Coefficients:    [][]float64{{1, -1}},
		Intercepts:      []float64{0.25},
		Features:        []string{"recipe", "senate"},
		Classes:         []string{"fiction", "government"},
		Hyperparameters: map[string]interface{}{"C": 1.0},
	}

	clone := mw.Clone()
	clone.Coefficients[0][0] = 99
	clone.Hyperparameters["C"] = 10.0
	assert.Equal(t, 1.0, mw.Coefficients[0][0])
	assert.Equal(t, 1.0, mw.Hyperparameters["C"])

	data, err := mw.ToJSON()
	require.NoError(t, err)

	var back ModelWeights
	require.NoError(t, back.FromJSON(data))
	assert.Equal(t, mw.Features, back.Features)
	assert.Equal(t, mw.Coefficients, back.Coefficients)
	require.NoError(t, back.Validate())
}
