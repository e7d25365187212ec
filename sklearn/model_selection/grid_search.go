package model_selection

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/textexplain/core/model"
	"github.com/YuminosukeSato/textexplain/core/parallel"
	"github.com/YuminosukeSato/textexplain/core/sparse"
	"github.com/YuminosukeSato/textexplain/pkg/errors"
	"github.com/YuminosukeSato/textexplain/pkg/log"
)

// ParamGrid maps a parameter name to the values to try.
type ParamGrid map[string][]interface{}

// Candidates expands the grid into every combination. Keys vary in sorted
// order with the last key changing fastest; values keep their given order.
func (g ParamGrid) Candidates() ([]map[string]interface{}, error) {
	keys := make([]string, 0, len(g))
	for k, vs := range g {
		if len(vs) == 0 {
			return nil, errors.NewValidationError(k, "parameter grid values must not be empty", vs)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := []map[string]interface{}{{}}
	for _, k := range keys {
		next := make([]map[string]interface{}, 0, len(out)*len(g[k]))
		for _, base := range out {
			for _, v := range g[k] {
				c := make(map[string]interface{}, len(base)+1)
				for bk, bv := range base {
					c[bk] = bv
				}
				c[k] = v
				next = append(next, c)
			}
		}
		out = next
	}
	return out, nil
}

// CVResults holds per-candidate cross-validation scores.
type CVResults struct {
	Params         []map[string]interface{}
	SplitScores    [][]float64 // candidate x fold
	MeanTestScore  []float64
	StdTestScore   []float64
	RankTestScore  []int // 1 = best
	MeanFitTimeSec []float64
}

// GridSearchCV performs an exhaustive search over a parameter grid with
// cross-validated accuracy, then refits the best setting on all data.
type GridSearchCV struct {
	estimator model.SearchableClassifier
	grid      ParamGrid
	cv        Splitter
	nJobs     int
	refit     bool
	logger    log.Logger

	state          *model.StateManager
	cvResults_     *CVResults
	bestIndex_     int
	bestParams_    map[string]interface{}
	bestScore_     float64
	bestEstimator_ model.SearchableClassifier
}

// GridSearchOption is a functional option for GridSearchCV.
type GridSearchOption func(*GridSearchCV)

// WithCV sets the cross-validation splitter. Default: StratifiedKFold(3).
func WithCV(cv Splitter) GridSearchOption {
	return func(g *GridSearchCV) { g.cv = cv }
}

// WithSearchJobs limits concurrent fold fits. Values < 1 use all CPUs.
func WithSearchJobs(n int) GridSearchOption {
	return func(g *GridSearchCV) { g.nJobs = n }
}

// WithRefit toggles refitting the best candidate on the full data.
func WithRefit(refit bool) GridSearchOption {
	return func(g *GridSearchCV) { g.refit = refit }
}

// WithSearchLogger sets the logger for progress messages.
func WithSearchLogger(l log.Logger) GridSearchOption {
	return func(g *GridSearchCV) { g.logger = l }
}

// NewGridSearchCV creates a search over grid for clones of estimator.
func NewGridSearchCV(estimator model.SearchableClassifier, grid ParamGrid, opts ...GridSearchOption) *GridSearchCV {
	g := &GridSearchCV{
		estimator: estimator,
		grid:      grid,
		cv:        NewStratifiedKFold(3, false, 0),
		nJobs:     1,
		refit:     true,
		state:     model.NewStateManager(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = log.GetLoggerWithName("GridSearchCV")
	}
	return g
}

// Fit runs the search with a background context.
func (g *GridSearchCV) Fit(X mat.Matrix, y []int) error {
	return g.FitContext(context.Background(), X, y)
}

// FitContext evaluates every candidate on every fold. Fold fits run
// concurrently up to n_jobs; the first failure cancels the rest.
func (g *GridSearchCV) FitContext(ctx context.Context, X mat.Matrix, y []int) error {
	start := time.Now()
	if g.estimator == nil {
		return errors.NewValidationError("estimator", "must not be nil", nil)
	}
	nSamples, _ := X.Dims()
	if nSamples != len(y) {
		return errors.NewDimensionError("GridSearchCV.Fit", nSamples, len(y), 0)
	}

	candidates, err := g.grid.Candidates()
	if err != nil {
		return err
	}
	folds, err := g.cv.Split(y)
	if err != nil {
		return err
	}

	workers := parallel.Workers(g.nJobs)
	g.logger.Info("Starting grid search",
		log.OperationKey, log.OperationFit,
		log.CandidatesKey, len(candidates),
		log.FoldsKey, len(folds),
		log.WorkersKey, workers,
		log.SamplesKey, nSamples,
	)

	trainX := make([]mat.Matrix, len(folds))
	testX := make([]mat.Matrix, len(folds))
	for f, fold := range folds {
		trainX[f] = SelectRows(X, fold.TrainIndices)
		testX[f] = SelectRows(X, fold.TestIndices)
	}

	scores := make([][]float64, len(candidates))
	fitTimes := make([][]float64, len(candidates))
	for c := range candidates {
		scores[c] = make([]float64, len(folds))
		fitTimes[c] = make([]float64, len(folds))
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for c := range candidates {
		for f := range folds {
			eg.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				t0 := time.Now()
				// 一つの候補のパニックで他のワーカーごと落ちないようにエラーへ変換する
				score, err := errors.SafeCall("GridSearchCV.fit", func() (float64, error) {
					est, err := g.newCandidate(candidates[c])
					if err != nil {
						return 0, err
					}
					fold := folds[f]
					if err := est.Fit(trainX[f], Take(y, fold.TrainIndices)); err != nil {
						return 0, err
					}
					return est.Score(testX[f], Take(y, fold.TestIndices))
				})
				if err != nil {
					return errors.Wrapf(err, "candidate %v, fold %d", candidates[c], f)
				}
				scores[c][f] = score
				fitTimes[c][f] = time.Since(t0).Seconds()
				g.logger.Debug("Fold evaluated",
					log.HyperParamsKey, candidates[c],
					log.FoldKey, f,
					log.AccuracyKey, score,
				)
				return nil
			})
		}
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	g.cvResults_ = summarize(candidates, scores, fitTimes)
	g.bestIndex_ = 0
	for c, rank := range g.cvResults_.RankTestScore {
		if rank == 1 {
			g.bestIndex_ = c
			break
		}
	}
	g.bestParams_ = candidates[g.bestIndex_]
	g.bestScore_ = g.cvResults_.MeanTestScore[g.bestIndex_]

	if g.refit {
		best, err := g.newCandidate(g.bestParams_)
		if err != nil {
			return err
		}
		if err := best.Fit(X, y); err != nil {
			return errors.Wrap(err, "refit best candidate")
		}
		g.bestEstimator_ = best
	}

	g.state.SetDimensions(0, nSamples, 0)
	g.state.SetFitted()
	g.logger.Info("Grid search completed",
		log.HyperParamsKey, g.bestParams_,
		log.BestScoreKey, g.bestScore_,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

func (g *GridSearchCV) newCandidate(params map[string]interface{}) (model.SearchableClassifier, error) {
	est, ok := g.estimator.Clone().(model.SearchableClassifier)
	if !ok {
		return nil, errors.NewValidationError("estimator", "Clone must return a searchable classifier", fmt.Sprintf("%T", g.estimator))
	}
	if err := est.SetParams(params); err != nil {
		return nil, err
	}
	return est, nil
}

// summarize computes mean, std and rank per candidate.
// Equal means share the lowest rank (scikit-learn "min" ranking).
func summarize(params []map[string]interface{}, scores, fitTimes [][]float64) *CVResults {
	res := &CVResults{
		Params:         params,
		SplitScores:    scores,
		MeanTestScore:  make([]float64, len(params)),
		StdTestScore:   make([]float64, len(params)),
		RankTestScore:  make([]int, len(params)),
		MeanFitTimeSec: make([]float64, len(params)),
	}
	for c := range params {
		res.MeanTestScore[c], res.StdTestScore[c] = stat.PopMeanStdDev(scores[c], nil)
		res.MeanFitTimeSec[c] = stat.Mean(fitTimes[c], nil)
	}
	for c := range params {
		rank := 1
		for o := range params {
			if res.MeanTestScore[o] > res.MeanTestScore[c] {
				rank++
			}
		}
		res.RankTestScore[c] = rank
	}
	return res
}

// SelectRows returns the rows idx of X. CSR input stays sparse.
func SelectRows(X mat.Matrix, idx []int) mat.Matrix {
	if csr, ok := X.(*sparse.CSR); ok {
		return csr.SelectRows(idx)
	}
	_, cols := X.Dims()
	if len(idx) == 0 {
		return sparse.NewBuilder(cols).Build()
	}
	out := mat.NewDense(len(idx), cols, nil)
	for i, r := range idx {
		for j := 0; j < cols; j++ {
			out.Set(i, j, X.At(r, j))
		}
	}
	return out
}

// BestParams returns the parameters of the best candidate.
func (g *GridSearchCV) BestParams() map[string]interface{} {
	out := make(map[string]interface{}, len(g.bestParams_))
	for k, v := range g.bestParams_ {
		out[k] = v
	}
	return out
}

// BestScore returns the mean cross-validated accuracy of the best candidate.
func (g *GridSearchCV) BestScore() float64 { return g.bestScore_ }

// BestIndex returns the position of the best candidate in CVResults.
func (g *GridSearchCV) BestIndex() int { return g.bestIndex_ }

// BestEstimator returns the refitted best model, or NotFittedError when the
// search has not run or refit is disabled.
func (g *GridSearchCV) BestEstimator() (model.SearchableClassifier, error) {
	if g.bestEstimator_ == nil {
		return nil, errors.NewNotFittedError("GridSearchCV", "BestEstimator")
	}
	return g.bestEstimator_, nil
}

// CVResults returns the per-candidate scores of the last search.
func (g *GridSearchCV) CVResults() *CVResults { return g.cvResults_ }

// IsFitted reports whether a search has completed.
func (g *GridSearchCV) IsFitted() bool { return g.state.IsFitted() }

// Predict delegates to the refitted best estimator.
func (g *GridSearchCV) Predict(X mat.Matrix) ([]int, error) {
	best, err := g.BestEstimator()
	if err != nil {
		return nil, err
	}
	return best.Predict(X)
}

// Score delegates to the refitted best estimator.
func (g *GridSearchCV) Score(X mat.Matrix, y []int) (float64, error) {
	best, err := g.BestEstimator()
	if err != nil {
		return 0, err
	}
	return best.Score(X, y)
}
