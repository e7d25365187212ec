package interpret

import (
	"math/rand/v2"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/textexplain/core/parallel"
	"github.com/YuminosukeSato/textexplain/metrics"
	"github.com/YuminosukeSato/textexplain/pkg/errors"
	"github.com/YuminosukeSato/textexplain/pkg/log"
)

type permutationConfig struct {
	topN    int
	repeats int
	nJobs   int
}

// PermutationOption configures PermutationImportance.
type PermutationOption func(*permutationConfig)

// WithTopN limits the evaluation to the n terms with the largest mean
// absolute coefficient. Default 20; n <= 0 evaluates every term.
func WithTopN(n int) PermutationOption {
	return func(c *permutationConfig) { c.topN = n }
}

// WithRepeats sets how many shuffles are averaged per term. Default 5.
func WithRepeats(r int) PermutationOption {
	return func(c *permutationConfig) { c.repeats = r }
}

// WithPermutationJobs sets the number of workers. Values < 1 use all CPUs.
func WithPermutationJobs(n int) PermutationOption {
	return func(c *permutationConfig) { c.nJobs = n }
}

// PermutationImportance measures how much accuracy on (texts, labels) drops
// when one term's column is shuffled across documents. Each term uses its
// own RNG derived from the random state, so results do not depend on the
// number of workers.
func (e *ClassicalTextExplainer) PermutationImportance(texts []string, labels []int, opts ...PermutationOption) (*GlobalExplanation, error) {
	cfg := &permutationConfig{topN: 20, repeats: 5, nJobs: 1}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.repeats < 1 {
		return nil, errors.NewValidationError("repeats", "must be at least 1", cfg.repeats)
	}
	if err := e.requireFitted("PermutationImportance"); err != nil {
		return nil, err
	}
	if len(texts) != len(labels) {
		return nil, errors.NewDimensionError("ClassicalTextExplainer.PermutationImportance", len(texts), len(labels), 0)
	}

	start := time.Now()
	X, err := e.transform(texts)
	if err != nil {
		return nil, err
	}
	pred, err := e.model.Predict(X)
	if err != nil {
		return nil, err
	}
	baseline, err := metrics.AccuracyScore(labels, pred)
	if err != nil {
		return nil, err
	}

	candidates := limit(e.overallRanking(), cfg.topN)
	results := make([]TermImportance, len(candidates))
	errs := make([]error, len(candidates))

	parallel.ParallelizeN(len(candidates), parallel.Workers(cfg.nJobs), func(lo, hi int) {
		for t := lo; t < hi; t++ {
			j := candidates[t].Feature
			r := rand.New(rand.NewPCG(e.randomState, uint64(j)))
			column := X.Column(j)
			drops := make([]float64, cfg.repeats)
			for rep := range drops {
				r.Shuffle(len(column), func(a, b int) {
					column[a], column[b] = column[b], column[a]
				})
				p, err := e.model.Predict(X.WithColumn(j, column))
				if err != nil {
					errs[t] = err
					return
				}
				acc, err := metrics.AccuracyScore(labels, p)
				if err != nil {
					errs[t] = err
					return
				}
				drops[rep] = baseline - acc
			}
			mean, std := stat.PopMeanStdDev(drops, nil)
			results[t] = TermImportance{
				Term:       candidates[t].Term,
				Feature:    j,
				Importance: mean,
				Std:        std,
			}
		}
	})
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	sortTerms(results)

	e.logger.Info("Permutation importance computed",
		log.OperationKey, log.OperationExplain,
		log.SamplesKey, len(texts),
		log.TermsKey, len(results),
		log.AccuracyKey, baseline,
		log.RandomSeedKey, e.randomState,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return &GlobalExplanation{
		Method:        MethodPermutation,
		Overall:       results,
		BaselineScore: baseline,
	}, nil
}
