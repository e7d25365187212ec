// Package interpret fits a bag-of-words logistic regression on labeled text
// and explains its predictions with per-term importances.
package interpret

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/textexplain/core/model"
	"github.com/YuminosukeSato/textexplain/core/sparse"
	"github.com/YuminosukeSato/textexplain/metrics"
	"github.com/YuminosukeSato/textexplain/pkg/errors"
	"github.com/YuminosukeSato/textexplain/pkg/log"
	"github.com/YuminosukeSato/textexplain/preprocessing"
	"github.com/YuminosukeSato/textexplain/sklearn/linear_model"
	"github.com/YuminosukeSato/textexplain/sklearn/model_selection"
)

// DefaultCGrid is the inverse regularization strengths searched by default.
var DefaultCGrid = []float64{1e-2, 1e-1, 1, 1e1, 1e2, 1e3}

// maxCachedExplanations bounds the cache. At the bound expired entries are
// swept first; if none expired the cache is flushed.
const maxCachedExplanations = 10000

// ClassicalTextExplainer couples a CountVectorizer with a
// LogisticRegression whose coefficients explain its predictions.
type ClassicalTextExplainer struct {
	state *model.StateManager

	vectorizer  *preprocessing.CountVectorizer
	tfidf       *preprocessing.TfidfTransformer
	grid        model_selection.ParamGrid
	modelConfig map[string]interface{}
	cv          int
	randomState uint64
	classNames  []string
	logger      log.Logger

	cache      *gocache.Cache
	cacheTTL   time.Duration
	cacheLimit int

	model      *linear_model.LogisticRegression
	bestParams map[string]interface{}
	cvResults  *model_selection.CVResults
	features   []string
}

// Option configures a ClassicalTextExplainer.
type Option func(*ClassicalTextExplainer)

// WithVectorizer replaces the default CountVectorizer.
func WithVectorizer(v *preprocessing.CountVectorizer) Option {
	return func(e *ClassicalTextExplainer) { e.vectorizer = v }
}

// WithTfidf reweights the counts with a tf-idf transformer before fitting.
// Local importances then use tf-idf weights instead of raw counts.
func WithTfidf(t *preprocessing.TfidfTransformer) Option {
	return func(e *ClassicalTextExplainer) { e.tfidf = t }
}

// WithHyperparamRange sets the grid searched during Fit.
func WithHyperparamRange(grid model_selection.ParamGrid) Option {
	return func(e *ClassicalTextExplainer) { e.grid = grid }
}

// WithModelConfig passes parameters to every LogisticRegression fitted
// (n_jobs, tol, max_iter, solver, multi_class, penalty). n_jobs also bounds
// the number of concurrent fold fits.
func WithModelConfig(cfg map[string]interface{}) Option {
	return func(e *ClassicalTextExplainer) {
		for k, v := range cfg {
			e.modelConfig[k] = v
		}
	}
}

// WithCV sets the number of stratified folds.
func WithCV(k int) Option {
	return func(e *ClassicalTextExplainer) { e.cv = k }
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(e *ClassicalTextExplainer) { e.logger = l }
}

// WithCache memoizes local explanations for ttl. ttl <= 0 keeps them until
// the next Fit.
func WithCache(ttl time.Duration) Option {
	return func(e *ClassicalTextExplainer) {
		if ttl <= 0 {
			ttl = gocache.NoExpiration
		}
		e.cacheTTL = ttl
		e.cacheLimit = maxCachedExplanations
		// no janitor goroutine; expired entries are swept in ExplainLocal
		e.cache = gocache.New(ttl, 0)
	}
}

// WithRandomState seeds fold shuffling and permutation importance.
func WithRandomState(seed uint64) Option {
	return func(e *ClassicalTextExplainer) { e.randomState = seed }
}

// WithClassNames sets display names; names[k] belongs to class code k.
func WithClassNames(names []string) Option {
	return func(e *ClassicalTextExplainer) { e.classNames = append([]string(nil), names...) }
}

// NewClassicalTextExplainer creates an unfitted explainer.
func NewClassicalTextExplainer(opts ...Option) *ClassicalTextExplainer {
	cs := make([]interface{}, len(DefaultCGrid))
	for i, c := range DefaultCGrid {
		cs[i] = c
	}
	e := &ClassicalTextExplainer{
		state:      model.NewStateManager(),
		vectorizer: preprocessing.NewCountVectorizer(),
		grid:       model_selection.ParamGrid{"C": cs},
		modelConfig: map[string]interface{}{
			"solver":      linear_model.SolverLBFGS,
			"multi_class": linear_model.MultiClassMultinomial,
		},
		cv: 3,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = log.GetLoggerWithName("ClassicalTextExplainer")
	}
	return e
}

// nJobs reads the n_jobs hint from the model config. Default 1.
func (e *ClassicalTextExplainer) nJobs() int {
	switch v := e.modelConfig["n_jobs"].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 1
}

// Fit learns the vocabulary from texts, searches the hyperparameter grid with
// stratified cross-validation and refits the best setting on all of texts.
// It returns the fitted model and the chosen hyperparameters.
func (e *ClassicalTextExplainer) Fit(texts []string, labels []int) (*linear_model.LogisticRegression, map[string]interface{}, error) {
	start := time.Now()
	if len(texts) == 0 {
		return nil, nil, errors.NewModelError("ClassicalTextExplainer.Fit", "empty data", errors.ErrEmptyData)
	}
	if len(texts) != len(labels) {
		return nil, nil, errors.NewDimensionError("ClassicalTextExplainer.Fit", len(texts), len(labels), 0)
	}
	e.state.Reset()

	counts, err := e.vectorizer.FitTransform(texts)
	if err != nil {
		return nil, nil, err
	}
	X := counts
	if e.tfidf != nil {
		if X, err = e.tfidf.FitTransform(counts); err != nil {
			return nil, nil, err
		}
	}
	if e.features, err = e.vectorizer.FeatureNames(); err != nil {
		return nil, nil, err
	}

	base := linear_model.NewLogisticRegression()
	if err := base.SetParams(e.modelConfig); err != nil {
		return nil, nil, err
	}

	candidates, err := e.grid.Candidates()
	if err != nil {
		return nil, nil, err
	}
	var fitted *linear_model.LogisticRegression
	if len(candidates) == 1 {
		// nothing to compare, skip cross-validation
		if err := base.SetParams(candidates[0]); err != nil {
			return nil, nil, err
		}
		if err := base.Fit(X, labels); err != nil {
			return nil, nil, err
		}
		fitted = base
		e.bestParams = candidates[0]
		e.cvResults = nil
	} else {
		search := model_selection.NewGridSearchCV(base, e.grid,
			model_selection.WithCV(model_selection.NewStratifiedKFold(e.cv, true, e.randomState)),
			model_selection.WithSearchJobs(e.nJobs()),
			model_selection.WithSearchLogger(e.logger),
		)
		if err := search.Fit(X, labels); err != nil {
			return nil, nil, err
		}
		best, err := search.BestEstimator()
		if err != nil {
			return nil, nil, err
		}
		var ok bool
		if fitted, ok = best.(*linear_model.LogisticRegression); !ok {
			return nil, nil, errors.Newf("unexpected estimator type %T", best)
		}
		e.bestParams = search.BestParams()
		e.cvResults = search.CVResults()
	}

	e.model = fitted
	if e.cache != nil {
		e.cache.Flush()
	}
	nSamples, nFeatures := X.Dims()
	e.state.SetDimensions(nFeatures, nSamples, len(fitted.Classes()))
	e.state.SetFitted()

	e.logger.Info("Explainer fitted",
		log.OperationKey, log.OperationFit,
		log.SamplesKey, nSamples,
		log.FeaturesKey, nFeatures,
		log.ClassesKey, len(fitted.Classes()),
		log.HyperParamsKey, e.bestParams,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return fitted, e.BestParams(), nil
}

// transform maps texts to the model's feature space.
func (e *ClassicalTextExplainer) transform(texts []string) (*sparse.CSR, error) {
	counts, err := e.vectorizer.TransformCSR(texts)
	if err != nil {
		return nil, err
	}
	if e.tfidf == nil {
		return counts, nil
	}
	X, err := e.tfidf.Transform(counts)
	if err != nil {
		return nil, err
	}
	return sparse.FromDense(X), nil
}

func (e *ClassicalTextExplainer) requireFitted(method string) error {
	return e.state.RequireFitted("ClassicalTextExplainer", method)
}

// Predict returns the predicted class code of each text.
func (e *ClassicalTextExplainer) Predict(texts []string) ([]int, error) {
	if err := e.requireFitted("Predict"); err != nil {
		return nil, err
	}
	X, err := e.transform(texts)
	if err != nil {
		return nil, err
	}
	return e.model.Predict(X)
}

// PredictProba returns class probabilities, one column per Classes() entry.
func (e *ClassicalTextExplainer) PredictProba(texts []string) (*mat.Dense, error) {
	if err := e.requireFitted("PredictProba"); err != nil {
		return nil, err
	}
	X, err := e.transform(texts)
	if err != nil {
		return nil, err
	}
	return e.model.PredictProba(X)
}

// Score returns the accuracy on texts.
func (e *ClassicalTextExplainer) Score(texts []string, labels []int) (float64, error) {
	pred, err := e.Predict(texts)
	if err != nil {
		return 0, err
	}
	return metrics.AccuracyScore(labels, pred)
}

// classIndex maps a class code to its position in Classes().
func (e *ClassicalTextExplainer) classIndex(label int) (int, error) {
	for i, c := range e.model.Classes() {
		if c == label {
			return i, nil
		}
	}
	return 0, errors.NewValueError("ClassicalTextExplainer.ExplainLocal",
		fmt.Sprintf("label %d is not one of the fitted classes %v", label, e.model.Classes()))
}

// classWeights returns the signed coefficients and intercept for the class
// at position k. Binary models store one row for the positive class, so
// the negative class uses the negated row.
func (e *ClassicalTextExplainer) classWeights(k int) (w []float64, sign, intercept float64) {
	if e.model.NCoefRows() == 1 {
		sign = 1
		if k == 0 {
			sign = -1
		}
		return e.model.CoefRow(0), sign, sign * e.model.Intercept()[0]
	}
	return e.model.CoefRow(k), 1, e.model.Intercept()[k]
}

func (e *ClassicalTextExplainer) labelName(label int) string {
	if label >= 0 && label < len(e.classNames) {
		return e.classNames[label]
	}
	return strconv.Itoa(label)
}

func cacheKey(document string, label *int) string {
	h := sha256.New()
	h.Write([]byte(document))
	h.Write([]byte{0})
	if label == nil {
		h.Write([]byte("predicted"))
	} else {
		h.Write([]byte(strconv.Itoa(*label)))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ExplainLocal scores each term of document for label, or for the predicted
// label when label is nil. The importance of term j is x_j * w_j, where x_j
// is the term's feature value and w_j its signed coefficient for the label.
// Out-of-vocabulary terms are ignored, so a document without known terms
// yields an explanation with no terms.
func (e *ClassicalTextExplainer) ExplainLocal(document string, label *int) (*LocalExplanation, error) {
	if err := e.requireFitted("ExplainLocal"); err != nil {
		return nil, err
	}

	key := cacheKey(document, label)
	logger := e.logger.With(log.DocumentHashKey, key[:12])
	if e.cache != nil {
		if v, ok := e.cache.Get(key); ok {
			logger.Debug("Explanation served from cache", log.CacheHitKey, true)
			return v.(*LocalExplanation).clone(), nil
		}
	}

	X, err := e.transform([]string{document})
	if err != nil {
		return nil, err
	}
	probas, err := e.model.PredictProba(X)
	if err != nil {
		return nil, err
	}

	var k int
	if label == nil {
		k = argmax(probas.RawRowView(0))
	} else if k, err = e.classIndex(*label); err != nil {
		return nil, err
	}
	code := e.model.Classes()[k]

	w, sign, intercept := e.classWeights(k)
	exp := &LocalExplanation{
		Document:    document,
		Label:       code,
		LabelName:   e.labelName(code),
		Probability: probas.At(0, k),
		Intercept:   intercept,
	}
	X.DoRowNonZero(0, func(_, j int, v float64) {
		exp.Terms = append(exp.Terms, TermImportance{
			Term:       e.features[j],
			Feature:    j,
			Value:      v,
			Importance: v * sign * w[j],
		})
	})
	sortTerms(exp.Terms)

	if e.cache != nil {
		if e.cache.ItemCount() >= e.cacheLimit {
			e.cache.DeleteExpired()
			if e.cache.ItemCount() >= e.cacheLimit {
				e.cache.Flush()
			}
		}
		e.cache.Set(key, exp.clone(), gocache.DefaultExpiration)
	}
	logger.Debug("Local explanation computed",
		log.OperationKey, log.OperationExplain,
		log.LabelKey, code,
		log.TermsKey, len(exp.Terms),
		log.CacheHitKey, false,
	)
	return exp, nil
}

func argmax(v []float64) int {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}

// ExplainGlobal ranks terms by their coefficients: per class by signed
// weight, and overall by mean absolute weight across classes. topK <= 0
// keeps every term.
func (e *ClassicalTextExplainer) ExplainGlobal(topK int) (*GlobalExplanation, error) {
	if err := e.requireFitted("ExplainGlobal"); err != nil {
		return nil, err
	}
	classes := e.model.Classes()
	g := &GlobalExplanation{Method: MethodCoefficients}
	for k, code := range classes {
		w, sign, _ := e.classWeights(k)
		terms := make([]TermImportance, len(e.features))
		for j, name := range e.features {
			terms[j] = TermImportance{Term: name, Feature: j, Importance: sign * w[j]}
		}
		sortTerms(terms)
		g.PerClass = append(g.PerClass, ClassRanking{
			Label:     code,
			LabelName: e.labelName(code),
			Terms:     limit(terms, topK),
		})
	}
	g.Overall = limit(e.overallRanking(), topK)
	return g, nil
}

// overallRanking orders all features by mean absolute coefficient.
func (e *ClassicalTextExplainer) overallRanking() []TermImportance {
	rows := e.model.NCoefRows()
	terms := make([]TermImportance, len(e.features))
	for j, name := range e.features {
		var s float64
		for k := 0; k < rows; k++ {
			s += abs(e.model.CoefRow(k)[j])
		}
		terms[j] = TermImportance{Term: name, Feature: j, Importance: s / float64(rows)}
	}
	sortTerms(terms)
	return terms
}

// Model returns the fitted classifier.
func (e *ClassicalTextExplainer) Model() (*linear_model.LogisticRegression, error) {
	if err := e.requireFitted("Model"); err != nil {
		return nil, err
	}
	return e.model, nil
}

// BestParams returns the hyperparameters chosen by the last Fit.
func (e *ClassicalTextExplainer) BestParams() map[string]interface{} {
	out := make(map[string]interface{}, len(e.bestParams))
	for k, v := range e.bestParams {
		out[k] = v
	}
	return out
}

// CVResults returns the cross-validation scores of the last Fit, or nil
// when the grid had a single candidate.
func (e *ClassicalTextExplainer) CVResults() *model_selection.CVResults { return e.cvResults }

// Classes returns the fitted class codes.
func (e *ClassicalTextExplainer) Classes() []int {
	if e.model == nil {
		return nil
	}
	return e.model.Classes()
}

// ClassNames returns the display names set with WithClassNames.
func (e *ClassicalTextExplainer) ClassNames() []string {
	return append([]string(nil), e.classNames...)
}

// FeatureNames returns the vocabulary in column order.
func (e *ClassicalTextExplainer) FeatureNames() []string {
	return append([]string(nil), e.features...)
}

// Vectorizer returns the vectorizer, e.g. to locate terms in a document.
func (e *ClassicalTextExplainer) Vectorizer() *preprocessing.CountVectorizer { return e.vectorizer }

// IsFitted reports whether Fit or Restore has completed.
func (e *ClassicalTextExplainer) IsFitted() bool { return e.state.IsFitted() }
