package model_selection

import (
	"fmt"
	"math/rand/v2"
	"sort"

	"github.com/YuminosukeSato/textexplain/pkg/errors"
	"github.com/YuminosukeSato/textexplain/pkg/log"
)

// Splitter defines interface for cross-validation splitters
type Splitter interface {
	// Split returns the folds for the samples labeled y.
	Split(y []int) ([]Fold, error)
	GetNSplits() int
}

// Fold represents a single fold in cross-validation
type Fold struct {
	TrainIndices []int
	TestIndices  []int
}

// KFold implements k-fold cross-validation splitter
type KFold struct {
	NSplits    int
	Shuffle    bool
	RandomSeed uint64
}

// NewKFold creates a new k-fold splitter
func NewKFold(nSplits int, shuffle bool, randomSeed uint64) *KFold {
	return &KFold{
		NSplits:    nSplits,
		Shuffle:    shuffle,
		RandomSeed: randomSeed,
	}
}

// GetNSplits returns the number of splits
func (kf *KFold) GetNSplits() int {
	return kf.NSplits
}

func checkSplits(op string, nSplits, nSamples int) error {
	if nSplits < 2 {
		return errors.NewValidationError("n_splits", "k-fold cross-validation requires at least 2 splits", nSplits)
	}
	if nSplits > nSamples {
		return errors.NewValueError(op,
			fmt.Sprintf("cannot have number of splits n_splits=%d greater than the number of samples: n_samples=%d", nSplits, nSamples))
	}
	return nil
}

// Split generates train/test indices for each fold.
// Only len(y) is used. The first n % k folds get one extra test sample.
func (kf *KFold) Split(y []int) ([]Fold, error) {
	nSamples := len(y)
	if err := checkSplits("KFold.Split", kf.NSplits, nSamples); err != nil {
		return nil, err
	}

	// Create indices
	indices := make([]int, nSamples)
	for i := range indices {
		indices[i] = i
	}

	// Shuffle if requested
	if kf.Shuffle {
		r := newRand(&kf.RandomSeed)
		r.Shuffle(len(indices), func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})
	}

	folds := make([]Fold, kf.NSplits)
	foldSize := nSamples / kf.NSplits
	remainder := nSamples % kf.NSplits

	current := 0
	for i := range folds {
		testSize := foldSize
		if i < remainder {
			testSize++
		}
		test := append([]int(nil), indices[current:current+testSize]...)
		folds[i] = Fold{
			TrainIndices: complement(nSamples, test),
			TestIndices:  test,
		}
		current += testSize
	}
	return folds, nil
}

// StratifiedKFold implements stratified k-fold cross-validation
type StratifiedKFold struct {
	NSplits    int
	Shuffle    bool
	RandomSeed uint64
}

// NewStratifiedKFold creates a new stratified k-fold splitter
func NewStratifiedKFold(nSplits int, shuffle bool, randomSeed uint64) *StratifiedKFold {
	return &StratifiedKFold{
		NSplits:    nSplits,
		Shuffle:    shuffle,
		RandomSeed: randomSeed,
	}
}

// GetNSplits returns the number of splits
func (skf *StratifiedKFold) GetNSplits() int {
	return skf.NSplits
}

// Split generates stratified train/test indices for each fold.
//
// Samples are ordered by class and dealt to the folds round robin, so every
// fold holds each class in proportion and fold sizes differ by at most one.
func (skf *StratifiedKFold) Split(y []int) ([]Fold, error) {
	nSamples := len(y)
	if err := checkSplits("StratifiedKFold.Split", skf.NSplits, nSamples); err != nil {
		return nil, err
	}

	// Group indices by class
	byClass := groupByClass(y)
	classes := sortedKeys(byClass)

	minCount, maxCount := nSamples, 0
	for _, c := range classes {
		n := len(byClass[c])
		if n < minCount {
			minCount = n
		}
		if n > maxCount {
			maxCount = n
		}
	}
	if maxCount < skf.NSplits {
		return nil, errors.NewValueError("StratifiedKFold.Split",
			fmt.Sprintf("n_splits=%d cannot be greater than the number of members in each class", skf.NSplits))
	}
	if minCount < skf.NSplits {
		log.GetLoggerWithName("model_selection").Warn("least populated class has fewer members than n_splits",
			log.OperationKey, log.OperationSplit,
			log.FoldsKey, skf.NSplits,
			"min_class_members", minCount,
		)
	}

	var r *rand.Rand
	if skf.Shuffle {
		r = newRand(&skf.RandomSeed)
	}

	tests := make([][]int, skf.NSplits)
	pos := 0
	for _, c := range classes {
		indices := append([]int(nil), byClass[c]...)
		// Shuffle indices within each class if requested
		if r != nil {
			r.Shuffle(len(indices), func(i, j int) {
				indices[i], indices[j] = indices[j], indices[i]
			})
		}
		for _, idx := range indices {
			f := pos % skf.NSplits
			tests[f] = append(tests[f], idx)
			pos++
		}
	}

	folds := make([]Fold, skf.NSplits)
	for i, test := range tests {
		sort.Ints(test)
		folds[i] = Fold{
			TrainIndices: complement(nSamples, test),
			TestIndices:  test,
		}
	}
	return folds, nil
}

// complement returns the ascending indices of 0..n-1 not in test.
func complement(n int, test []int) []int {
	inTest := make([]bool, n)
	for _, idx := range test {
		inTest[idx] = true
	}
	train := make([]int, 0, n-len(test))
	for i := 0; i < n; i++ {
		if !inTest[i] {
			train = append(train, i)
		}
	}
	return train
}
