// Package model provides the estimator contracts shared by the vectorizers,
// the classifier and the explainer, plus fitted-state bookkeeping and
// persistence helpers.
package model

import (
	"gonum.org/v1/gonum/mat"
)

// Scorer is the interface for models that can compute a score.
type Scorer interface {
	// Score returns the mean accuracy on the given data and labels.
	Score(X mat.Matrix, y []int) (float64, error)
}

// Estimator is any component that tracks whether it has been fitted.
type Estimator interface {
	IsFitted() bool
}

// Classifier combines interfaces for classification models.
type Classifier interface {
	Estimator
	Fitter
	Predictor
	Scorer

	// PredictProba returns probability estimates for each class.
	PredictProba(X mat.Matrix) (*mat.Dense, error)

	// Classes returns the class codes seen during fitting.
	Classes() []int
}

// ParameterGetter is the interface for models that expose their parameters.
type ParameterGetter interface {
	// GetParams returns the model's hyperparameters.
	GetParams() map[string]interface{}
}

// ParameterSetter is the interface for models that allow parameter modification.
type ParameterSetter interface {
	// SetParams sets the model's hyperparameters.
	SetParams(params map[string]interface{}) error
}

// Cloner creates an unfitted copy with the same hyperparameters.
// Model selection clones the base estimator once per candidate and fold.
type Cloner interface {
	Clone() Classifier
}

// SearchableClassifier is what GridSearchCV needs from an estimator.
type SearchableClassifier interface {
	Classifier
	ParameterGetter
	ParameterSetter
	Cloner
}

// WeightExporter exports fitted weights in the portable JSON form.
type WeightExporter interface {
	ExportWeights() (*ModelWeights, error)
}

// Persistable is the interface for models that can be saved and loaded.
type Persistable interface {
	// Save saves the model to a file.
	Save(path string) error

	// Load loads the model from a file.
	Load(path string) error
}
