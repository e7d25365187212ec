// Package log defines standard attribute keys for text classification and
// explanation runs.
//
// Keys follow a hierarchical naming convention ("model.name", "data.samples",
// "explain.terms") so that runs can be filtered and compared in log tooling.
package log

// Model and Operation Context
const (
	// ModelNameKey identifies the type of model or transformer.
	// Examples: "LogisticRegression", "CountVectorizer", "ClassicalTextExplainer"
	ModelNameKey = "model.name"

	// EstimatorIDKey provides a unique identifier for a specific model instance.
	EstimatorIDKey = "estimator.id"

	// RunIDKey identifies one end-to-end run (load, fit, evaluate, explain).
	RunIDKey = "run.id"

	// OperationKey specifies the operation being performed.
	OperationKey = "ml.operation"

	// ComponentKey identifies which package is performing the operation.
	ComponentKey = "ml.component"

	// PhaseKey indicates the phase of the run.
	PhaseKey = "ml.phase"
)

// Data Shape and Characteristics
const (
	// SamplesKey indicates the number of documents (rows).
	SamplesKey = "data.samples"

	// FeaturesKey indicates the number of features, i.e. the vocabulary size.
	FeaturesKey = "data.features"

	// ClassesKey indicates the number of distinct labels.
	ClassesKey = "data.classes"

	// PathKey is the file or directory a dataset was read from.
	PathKey = "data.path"

	// SplitKey names a dataset split ("train", "dev_matched").
	SplitKey = "data.split"

	// NonZeroKey is the number of stored entries of a sparse matrix.
	NonZeroKey = "data.nnz"
)

// Performance and Evaluation
const (
	// DurationMsKey records the execution time of an operation in milliseconds.
	DurationMsKey = "perf.duration_ms"

	// AccuracyKey records accuracy for evaluation operations.
	AccuracyKey = "metrics.accuracy"

	// PrecisionKey, RecallKey and F1Key record macro-averaged scores.
	PrecisionKey = "metrics.precision"
	RecallKey    = "metrics.recall"
	F1Key        = "metrics.f1"

	// LossKey records the training objective value.
	LossKey = "metrics.loss"

	// IterationKey records the number of optimizer iterations.
	IterationKey = "training.iteration"
)

// Hyperparameter Search
const (
	// HyperParamsKey contains a hyperparameter setting as a structured object.
	HyperParamsKey = "model.hyperparams"

	// RegularizationKey records the inverse regularization strength C.
	RegularizationKey = "hyperparams.C"

	// CandidatesKey is the number of hyperparameter settings evaluated.
	CandidatesKey = "search.candidates"

	// FoldsKey is the number of cross-validation folds.
	FoldsKey = "search.folds"

	// FoldKey is the index of the current fold.
	FoldKey = "search.fold"

	// BestScoreKey is the mean cross-validated score of the selected setting.
	BestScoreKey = "search.best_score"

	// RandomSeedKey records the random seed for reproducibility.
	RandomSeedKey = "config.random_seed"

	// WorkersKey is the degree of parallelism used.
	WorkersKey = "config.workers"
)

// Explanation Context
const (
	// DocumentHashKey identifies an explained document without logging its text.
	DocumentHashKey = "explain.doc_hash"

	// LabelKey is the class index an explanation was computed for.
	LabelKey = "explain.label"

	// TermsKey is the number of terms with non-zero importance.
	TermsKey = "explain.terms"

	// CacheHitKey reports whether an explanation came from the memo cache.
	CacheHitKey = "explain.cache_hit"

	// FormatKey is the render output format ("text", "png", "svg").
	FormatKey = "render.format"
)

// Error Context
const (
	// ErrorCodeKey provides a structured error code for programmatic handling.
	ErrorCodeKey = "error.code"

	// ErrorTypeKey categorizes the type of error encountered.
	ErrorTypeKey = "error.type"

	// SuggestionKey provides helpful suggestions for resolving issues.
	SuggestionKey = "error.suggestion"
)

// Standard attribute value constants.
const (
	OperationLoad         = "load"
	OperationSplit        = "split"
	OperationFit          = "fit"
	OperationPredict      = "predict"
	OperationTransform    = "transform"
	OperationFitTransform = "fit_transform"
	OperationScore        = "score"
	OperationExplain      = "explain"
	OperationRender       = "render"

	PhaseTraining      = "training"
	PhaseValidation    = "validation"
	PhaseTesting       = "testing"
	PhaseInference     = "inference"
	PhasePreprocessing = "preprocessing"

	ErrorNotFitted         = "NOT_FITTED"
	ErrorDimensionMismatch = "DIMENSION_MISMATCH"
	ErrorEmptyData         = "EMPTY_DATA"
	ErrorInvalidInput      = "INVALID_INPUT"
	ErrorConvergence       = "CONVERGENCE_FAILURE"
	ErrorUnknownLabel      = "UNKNOWN_LABEL"
)
