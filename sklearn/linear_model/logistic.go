package linear_model

import (
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/YuminosukeSato/textexplain/core/model"
	"github.com/YuminosukeSato/textexplain/pkg/errors"
	"github.com/YuminosukeSato/textexplain/pkg/log"
)

// Solver names accepted by LogisticRegression.
const (
	SolverLBFGS = "lbfgs"
	SolverGD    = "gd"
)

// Multi-class strategies.
const (
	MultiClassAuto        = "auto"
	MultiClassOVR         = "ovr"
	MultiClassMultinomial = "multinomial"
)

// LogisticRegression implements logistic regression for classification
// Compatible with scikit-learn's LogisticRegression
//
// Binary problems use a single sigmoid model whose positive class is
// Classes()[1]. With more classes the model is either one-vs-rest or a
// multinomial softmax model, chosen by multi_class.
type LogisticRegression struct {
	state *model.StateManager // State management (composition)

	// Hyperparameters
	penalty      string  // Regularization: "l2", "none"
	C            float64 // Inverse regularization strength
	fitIntercept bool    // Whether to fit intercept
	solver       string  // Solver: "lbfgs", "gd"
	maxIter      int     // Maximum iterations
	multiClass   string  // Multi-class: "auto", "ovr", "multinomial"
	tol          float64 // Tolerance on the max absolute gradient
	nJobs        int     // accepted for parameter compatibility; fits are sequential

	// Model parameters
	coef_      [][]float64 // Coefficients (n_classes x n_features or 1 x n_features for binary)
	intercept_ []float64   // Intercept terms
	classes_   []int       // Unique class labels
	nFeatures_ int         // Number of features
	nIter_     int         // Max iterations used over all sub-problems
	loss_      float64     // Final objective value
	ovr_       bool        // Whether coef_ rows are independent one-vs-rest models
}

var (
	_ model.SearchableClassifier = (*LogisticRegression)(nil)
	_ model.LinearModel          = (*LogisticRegression)(nil)
	_ model.WeightExporter       = (*LogisticRegression)(nil)
)

// LogisticRegressionOption is a functional option for LogisticRegression
type LogisticRegressionOption func(*LogisticRegression)

// NewLogisticRegression creates a new LogisticRegression classifier
func NewLogisticRegression(opts ...LogisticRegressionOption) *LogisticRegression {
	lr := &LogisticRegression{
		state:        model.NewStateManager(),
		penalty:      "l2",
		C:            1.0,
		fitIntercept: true,
		solver:       SolverLBFGS,
		maxIter:      100,
		multiClass:   MultiClassAuto,
		tol:          1e-4,
		nJobs:        1,
	}

	for _, opt := range opts {
		opt(lr)
	}

	return lr
}

// WithLRPenalty sets the regularization type
func WithLRPenalty(penalty string) LogisticRegressionOption {
	return func(lr *LogisticRegression) { lr.penalty = penalty }
}

// WithLRC sets the inverse regularization strength
func WithLRC(c float64) LogisticRegressionOption {
	return func(lr *LogisticRegression) { lr.C = c }
}

// WithLogisticFitIntercept sets whether to fit intercept
func WithLogisticFitIntercept(fit bool) LogisticRegressionOption {
	return func(lr *LogisticRegression) { lr.fitIntercept = fit }
}

// WithLRSolver sets the optimization solver
func WithLRSolver(solver string) LogisticRegressionOption {
	return func(lr *LogisticRegression) { lr.solver = solver }
}

// WithLRMaxIter sets the maximum number of iterations
func WithLRMaxIter(maxIter int) LogisticRegressionOption {
	return func(lr *LogisticRegression) { lr.maxIter = maxIter }
}

// WithLRTol sets the tolerance for stopping criteria
func WithLRTol(tol float64) LogisticRegressionOption {
	return func(lr *LogisticRegression) { lr.tol = tol }
}

// WithLRMultiClass sets the multi-class strategy
func WithLRMultiClass(mc string) LogisticRegressionOption {
	return func(lr *LogisticRegression) { lr.multiClass = mc }
}

// WithLRNJobs records the n_jobs hint.
func WithLRNJobs(n int) LogisticRegressionOption {
	return func(lr *LogisticRegression) { lr.nJobs = n }
}

func (lr *LogisticRegression) validateParams() error {
	switch lr.penalty {
	case "l2", "none":
	default:
		return errors.NewValidationError("penalty", "supported penalties are 'l2' and 'none'", lr.penalty)
	}
	if lr.penalty == "l2" && !(lr.C > 0) {
		return errors.NewValidationError("C", "must be positive", lr.C)
	}
	switch lr.solver {
	case SolverLBFGS, SolverGD:
	default:
		return errors.NewValidationError("solver", "supported solvers are 'lbfgs' and 'gd'", lr.solver)
	}
	switch lr.multiClass {
	case MultiClassAuto, MultiClassOVR, MultiClassMultinomial:
	default:
		return errors.NewValidationError("multi_class", "must be 'auto', 'ovr' or 'multinomial'", lr.multiClass)
	}
	if lr.maxIter < 1 {
		return errors.NewValidationError("max_iter", "must be at least 1", lr.maxIter)
	}
	if !(lr.tol > 0) {
		return errors.NewValidationError("tol", "must be positive", lr.tol)
	}
	return nil
}

// Fit trains the logistic regression model.
// y holds class codes; the distinct codes become Classes() in ascending order.
func (lr *LogisticRegression) Fit(X mat.Matrix, y []int) error {
	start := time.Now()
	if err := lr.validateParams(); err != nil {
		return err
	}

	nSamples, nFeatures := X.Dims()
	if nSamples == 0 || nFeatures == 0 {
		return errors.NewModelError("LogisticRegression.Fit", "empty data", errors.ErrEmptyData)
	}
	if len(y) != nSamples {
		return errors.NewDimensionError("LogisticRegression.Fit", nSamples, len(y), 0)
	}

	lr.extractClasses(y)
	if len(lr.classes_) < 2 {
		return errors.NewValueError("LogisticRegression.Fit",
			fmt.Sprintf("this solver needs samples of at least 2 classes in the data, but the data contains only one class: %d", lr.classes_[0]))
	}
	lr.nFeatures_ = nFeatures
	lr.nIter_ = 0
	lr.loss_ = 0

	d := newDesign(X)
	codes := lr.encode(y)

	var err error
	switch {
	case len(lr.classes_) == 2:
		err = lr.fitBinary(d, codes)
	case lr.multiClass == MultiClassOVR:
		err = lr.fitOVR(d, codes)
	default:
		err = lr.fitMultinomial(d, codes)
	}
	if err != nil {
		lr.state.Reset()
		return err
	}

	lr.state.SetDimensions(nFeatures, nSamples, len(lr.classes_))
	lr.state.SetFitted()

	log.GetLoggerWithName("linear_model").Debug("LogisticRegression fitted",
		log.ModelNameKey, "LogisticRegression",
		log.OperationKey, log.OperationFit,
		log.SamplesKey, nSamples,
		log.FeaturesKey, nFeatures,
		log.ClassesKey, len(lr.classes_),
		log.RegularizationKey, lr.C,
		log.IterationKey, lr.nIter_,
		log.LossKey, lr.loss_,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

// extractClasses identifies unique class labels
func (lr *LogisticRegression) extractClasses(y []int) {
	seen := make(map[int]struct{})
	lr.classes_ = nil
	for _, v := range y {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			lr.classes_ = append(lr.classes_, v)
		}
	}
	sort.Ints(lr.classes_)
}

// encode maps labels to positions in classes_.
func (lr *LogisticRegression) encode(y []int) []int {
	pos := make(map[int]int, len(lr.classes_))
	for i, c := range lr.classes_ {
		pos[c] = i
	}
	out := make([]int, len(y))
	for i, v := range y {
		out[i] = pos[v]
	}
	return out
}

func (lr *LogisticRegression) fitBinary(d design, codes []int) error {
	y01 := make([]float64, len(codes))
	for i, c := range codes {
		if c == 1 {
			y01[i] = 1
		}
	}
	w, err := lr.solve(d, 1, y01, nil)
	if err != nil {
		return err
	}
	lr.ovr_ = false
	lr.unpack(w, 1, d.cols())
	return nil
}

// fitOVR fits one binary model per class against the rest
func (lr *LogisticRegression) fitOVR(d design, codes []int) error {
	nf := d.cols()
	lr.coef_ = make([][]float64, len(lr.classes_))
	lr.intercept_ = make([]float64, len(lr.classes_))
	for k := range lr.classes_ {
		y01 := make([]float64, len(codes))
		for i, c := range codes {
			if c == k {
				y01[i] = 1
			}
		}
		w, err := lr.solve(d, 1, y01, nil)
		if err != nil {
			return errors.Wrapf(err, "one-vs-rest class %d", lr.classes_[k])
		}
		lr.coef_[k] = append([]float64(nil), w[:nf]...)
		lr.intercept_[k] = w[nf]
	}
	lr.ovr_ = true
	return nil
}

// fitMultinomial fits a softmax model over all classes jointly
func (lr *LogisticRegression) fitMultinomial(d design, codes []int) error {
	k := len(lr.classes_)
	w, err := lr.solve(d, k, nil, codes)
	if err != nil {
		return err
	}
	lr.ovr_ = false
	lr.unpack(w, k, d.cols())
	return nil
}

func (lr *LogisticRegression) unpack(w []float64, k, nf int) {
	lr.coef_ = make([][]float64, k)
	lr.intercept_ = make([]float64, k)
	for c := 0; c < k; c++ {
		row := w[c*(nf+1) : (c+1)*(nf+1)]
		lr.coef_[c] = append([]float64(nil), row[:nf]...)
		lr.intercept_[c] = row[nf]
	}
}

// solve minimizes the penalized log-loss and returns θ.
func (lr *LogisticRegression) solve(d design, k int, y01 []float64, y []int) ([]float64, error) {
	obj := newObjective(d, k, lr.C, lr.penalty, lr.fitIntercept)
	obj.y01, obj.y = y01, y
	init := make([]float64, obj.dim())

	var (
		theta []float64
		iters int
	)
	switch lr.solver {
	case SolverGD:
		theta, iters = lr.gradientDescent(obj, init)
	default:
		var err error
		theta, iters, err = lr.lbfgs(obj, init)
		if err != nil {
			return nil, err
		}
	}
	if obj.err != nil {
		return nil, obj.err
	}

	obj.evaluate(theta)
	if g := maxAbs(obj.lastG); iters >= lr.maxIter && g >= lr.tol {
		errors.Warn(errors.NewConvergenceWarning(lr.solver, iters,
			fmt.Sprintf("max |gradient| %.3g >= tol %.3g. Increase max_iter or scale the data.", g, lr.tol)))
	}
	if iters > lr.nIter_ {
		lr.nIter_ = iters
	}
	lr.loss_ += obj.lastF
	return theta, nil
}

func (lr *LogisticRegression) lbfgs(obj *objective, init []float64) ([]float64, int, error) {
	problem := optimize.Problem{
		Func: obj.Func,
		Grad: obj.Grad,
	}
	settings := &optimize.Settings{
		GradientThreshold: lr.tol,
		MajorIterations:   lr.maxIter,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-12,
			Relative:   1e-12,
			Iterations: 20,
		},
	}
	result, err := optimize.Minimize(problem, init, settings, &optimize.LBFGS{})
	if obj.err != nil {
		return nil, 0, obj.err
	}
	if result == nil || result.X == nil {
		if err == nil {
			err = errors.New("optimizer returned no result")
		}
		return nil, 0, errors.NewModelError("LogisticRegression.Fit", "optimization failed", err)
	}
	// A line search failure close to the optimum still leaves a usable
	// point; the gradient check in solve reports it as non-convergence.
	return result.X, result.Stats.MajorIterations, nil
}

// gradientDescent is full-batch gradient descent with Armijo backtracking.
func (lr *LogisticRegression) gradientDescent(obj *objective, theta []float64) ([]float64, int) {
	step := 1.0
	cand := make([]float64, len(theta))
	grad := make([]float64, len(theta))
	iter := 0
	for ; iter < lr.maxIter; iter++ {
		f := obj.Func(theta)
		obj.Grad(grad, theta)
		if maxAbs(grad) < lr.tol || obj.err != nil {
			break
		}
		var gg float64
		for _, g := range grad {
			gg += g * g
		}
		for {
			for i := range theta {
				cand[i] = theta[i] - step*grad[i]
			}
			if obj.Func(cand) <= f-0.5*step*gg || step < 1e-12 {
				break
			}
			step *= 0.5
		}
		copy(theta, cand)
		step *= 2
	}
	return theta, iter
}

func (lr *LogisticRegression) checkInput(op string, X mat.Matrix) error {
	if err := lr.state.RequireFitted("LogisticRegression", op); err != nil {
		return err
	}
	return lr.state.RequireFeatures("LogisticRegression."+op, colsOf(X))
}

func colsOf(X mat.Matrix) int {
	_, c := X.Dims()
	return c
}

// DecisionFunction returns the raw scores: one column for binary models,
// one column per class otherwise.
func (lr *LogisticRegression) DecisionFunction(X mat.Matrix) (*mat.Dense, error) {
	if err := lr.checkInput("DecisionFunction", X); err != nil {
		return nil, err
	}
	d := newDesign(X)
	n := d.rows()
	if n == 0 {
		return &mat.Dense{}, nil
	}
	scores := mat.NewDense(n, len(lr.coef_), nil)
	for i := 0; i < n; i++ {
		for k, w := range lr.coef_ {
			scores.Set(i, k, d.dot(i, w)+lr.intercept_[k])
		}
	}
	return scores, nil
}

// PredictProba returns probability estimates for each class
func (lr *LogisticRegression) PredictProba(X mat.Matrix) (*mat.Dense, error) {
	scores, err := lr.DecisionFunction(X)
	if err != nil {
		return nil, err
	}
	n, _ := scores.Dims()
	if n == 0 {
		return &mat.Dense{}, nil
	}
	k := len(lr.classes_)
	probas := mat.NewDense(n, k, nil)
	buf := make([]float64, k)
	for i := 0; i < n; i++ {
		switch {
		case len(lr.coef_) == 1:
			p1 := errors.Sigmoid(scores.At(i, 0))
			probas.Set(i, 0, 1-p1)
			probas.Set(i, 1, p1)
		case lr.ovr_:
			var sum float64
			for c := 0; c < k; c++ {
				buf[c] = errors.Sigmoid(scores.At(i, c))
				sum += buf[c]
			}
			for c := 0; c < k; c++ {
				probas.Set(i, c, errors.SafeDivide(buf[c], sum, 1/float64(k)))
			}
		default:
			probas.SetRow(i, errors.Softmax(buf, scores.RawRowView(i)))
		}
	}
	return probas, nil
}

// Predict returns the class with the highest probability.
// Ties go to the lowest class index.
func (lr *LogisticRegression) Predict(X mat.Matrix) ([]int, error) {
	probas, err := lr.PredictProba(X)
	if err != nil {
		return nil, err
	}
	n, _ := probas.Dims()
	out := make([]int, n)
	for i := 0; i < n; i++ {
		out[i] = lr.classes_[argmax(probas.RawRowView(i))]
	}
	return out, nil
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

// Score returns the mean accuracy on the given test data and labels
func (lr *LogisticRegression) Score(X mat.Matrix, y []int) (float64, error) {
	pred, err := lr.Predict(X)
	if err != nil {
		return 0, err
	}
	if len(pred) != len(y) {
		return 0, errors.NewDimensionError("LogisticRegression.Score", len(pred), len(y), 0)
	}
	if len(y) == 0 {
		return 0, errors.NewModelError("LogisticRegression.Score", "empty data", errors.ErrEmptyData)
	}
	correct := 0
	for i := range y {
		if pred[i] == y[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(y)), nil
}

// IsFitted reports whether Fit has completed.
func (lr *LogisticRegression) IsFitted() bool { return lr.state.IsFitted() }

// Coef returns a copy of the coefficients (rows × n_features).
func (lr *LogisticRegression) Coef() *mat.Dense {
	if len(lr.coef_) == 0 {
		return &mat.Dense{}
	}
	out := mat.NewDense(len(lr.coef_), lr.nFeatures_, nil)
	for k, row := range lr.coef_ {
		out.SetRow(k, row)
	}
	return out
}

// CoefRow returns row k of the coefficients without copying. Callers must not modify it.
func (lr *LogisticRegression) CoefRow(k int) []float64 { return lr.coef_[k] }

// NCoefRows is 1 for binary models and the number of classes otherwise.
func (lr *LogisticRegression) NCoefRows() int { return len(lr.coef_) }

// Intercept returns a copy of the intercepts.
func (lr *LogisticRegression) Intercept() []float64 {
	return append([]float64(nil), lr.intercept_...)
}

// Classes returns the class codes seen during fitting in ascending order.
func (lr *LogisticRegression) Classes() []int {
	return append([]int(nil), lr.classes_...)
}

// NIter returns the number of solver iterations of the last Fit
// (the maximum over one-vs-rest sub-problems).
func (lr *LogisticRegression) NIter() int { return lr.nIter_ }

// Loss returns the final value of the training objective.
func (lr *LogisticRegression) Loss() float64 { return lr.loss_ }

// Clone returns an unfitted copy with the same hyperparameters.
func (lr *LogisticRegression) Clone() model.Classifier {
	return NewLogisticRegression(
		WithLRPenalty(lr.penalty),
		WithLRC(lr.C),
		WithLogisticFitIntercept(lr.fitIntercept),
		WithLRSolver(lr.solver),
		WithLRMaxIter(lr.maxIter),
		WithLRMultiClass(lr.multiClass),
		WithLRTol(lr.tol),
		WithLRNJobs(lr.nJobs),
	)
}

// GetParams returns the model hyperparameters
func (lr *LogisticRegression) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"penalty":       lr.penalty,
		"C":             lr.C,
		"fit_intercept": lr.fitIntercept,
		"solver":        lr.solver,
		"max_iter":      lr.maxIter,
		"multi_class":   lr.multiClass,
		"tol":           lr.tol,
		"n_jobs":        lr.nJobs,
	}
}

// SetParams sets the model hyperparameters.
// Numeric values may be given as any Go integer or float type, which is
// what YAML and JSON decoders produce.
func (lr *LogisticRegression) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		var err error
		switch key {
		case "penalty":
			lr.penalty, err = asString(key, value)
		case "C":
			lr.C, err = asFloat(key, value)
		case "fit_intercept":
			lr.fitIntercept, err = asBool(key, value)
		case "solver":
			lr.solver, err = asString(key, value)
		case "max_iter":
			lr.maxIter, err = asInt(key, value)
		case "multi_class":
			lr.multiClass, err = asString(key, value)
		case "tol":
			lr.tol, err = asFloat(key, value)
		case "n_jobs":
			lr.nJobs, err = asInt(key, value)
		default:
			return errors.NewValidationError(key, "unknown parameter", value)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// ExportWeights returns the fitted coefficients for JSON export.
func (lr *LogisticRegression) ExportWeights() (*model.ModelWeights, error) {
	if err := lr.state.RequireFitted("LogisticRegression", "ExportWeights"); err != nil {
		return nil, err
	}
	mw := &model.ModelWeights{
		ModelType:       "LogisticRegression",
		Version:         "1.0",
		Coefficients:    make([][]float64, len(lr.coef_)),
		Intercepts:      lr.Intercept(),
		Hyperparameters: lr.GetParams(),
		Metadata: map[string]interface{}{
			"classes": lr.Classes(),
			"n_iter":  lr.nIter_,
			"ovr":     lr.ovr_,
		},
		IsFitted: true,
	}
	for k, row := range lr.coef_ {
		mw.Coefficients[k] = append([]float64(nil), row...)
	}
	return mw, nil
}

// LogisticState is the gob form of a fitted model.
type LogisticState struct {
	Params    map[string]interface{}
	Coef      [][]float64
	Intercept []float64
	Classes   []int
	NFeatures int
	NIter     int
	OVR       bool
}

// State returns the fitted parameters for persistence.
func (lr *LogisticRegression) State() (*LogisticState, error) {
	mw, err := lr.ExportWeights()
	if err != nil {
		return nil, err
	}
	return &LogisticState{
		Params:    lr.GetParams(),
		Coef:      mw.Coefficients,
		Intercept: mw.Intercepts,
		Classes:   lr.Classes(),
		NFeatures: lr.nFeatures_,
		NIter:     lr.nIter_,
		OVR:       lr.ovr_,
	}, nil
}

// RestoreLogisticRegression rebuilds a fitted model from State.
func RestoreLogisticRegression(s *LogisticState) (*LogisticRegression, error) {
	if s == nil || len(s.Coef) == 0 || len(s.Coef) != len(s.Intercept) {
		return nil, errors.NewValueError("LogisticRegression.Restore", "coefficients and intercepts are inconsistent")
	}
	if len(s.Classes) < 2 || (len(s.Coef) != 1 && len(s.Coef) != len(s.Classes)) {
		return nil, errors.NewValueError("LogisticRegression.Restore",
			fmt.Sprintf("%d coefficient rows do not match %d classes", len(s.Coef), len(s.Classes)))
	}
	for _, row := range s.Coef {
		if len(row) != s.NFeatures {
			return nil, errors.NewInputShapeError("restore", []int{len(s.Coef), s.NFeatures}, []int{len(s.Coef), len(row)})
		}
	}
	lr := NewLogisticRegression()
	if err := lr.SetParams(s.Params); err != nil {
		return nil, err
	}
	// the state may still be referenced by a snapshot; later fits must not write into it
	lr.coef_ = make([][]float64, len(s.Coef))
	for k, row := range s.Coef {
		lr.coef_[k] = append([]float64(nil), row...)
	}
	lr.intercept_ = append([]float64(nil), s.Intercept...)
	lr.classes_ = append([]int(nil), s.Classes...)
	lr.nFeatures_ = s.NFeatures
	lr.nIter_ = s.NIter
	lr.ovr_ = s.OVR
	lr.state.SetDimensions(s.NFeatures, 0, len(s.Classes))
	lr.state.SetFitted()
	return lr, nil
}

// String returns a scikit-learn style representation.
func (lr *LogisticRegression) String() string {
	return fmt.Sprintf("LogisticRegression(C=%g, penalty=%q, solver=%q, multi_class=%q, max_iter=%d, tol=%g)",
		lr.C, lr.penalty, lr.solver, lr.multiClass, lr.maxIter, lr.tol)
}

func asString(key string, v interface{}) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", errors.NewValidationError(key, "must be a string", v)
	}
	return s, nil
}

func asBool(key string, v interface{}) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, errors.NewValidationError(key, "must be a bool", v)
	}
	return b, nil
}

func asFloat(key string, v interface{}) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case int32:
		return float64(x), nil
	default:
		return math.NaN(), errors.NewValidationError(key, "must be a number", v)
	}
}

func asInt(key string, v interface{}) (int, error) {
	switch x := v.(type) {
	case int:
		return x, nil
	case int64:
		return int(x), nil
	case int32:
		return int(x), nil
	case float64:
		if x != math.Trunc(x) {
			return 0, errors.NewValidationError(key, "must be an integer", v)
		}
		return int(x), nil
	default:
		return 0, errors.NewValidationError(key, "must be an integer", v)
	}
}
