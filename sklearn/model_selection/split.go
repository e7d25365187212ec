// Package model_selection splits data into train and test parts and
// searches hyperparameters by cross-validation.
package model_selection

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/YuminosukeSato/textexplain/pkg/errors"
)

// Split holds the row indices of one train/test partition.
// The two sides are disjoint.
type Split struct {
	TrainIndices []int
	TestIndices  []int
}

type splitConfig struct {
	trainSize   float64 // 0 = complement of testSize
	testSize    float64 // 0 = complement of trainSize, 0.25 when both unset
	shuffle     bool
	randomState *uint64
	stratify    []int
}

// SplitOption configures TrainTestSplit.
type SplitOption func(*splitConfig)

// WithTrainSize sets the train fraction in (0, 1).
func WithTrainSize(f float64) SplitOption {
	return func(c *splitConfig) { c.trainSize = f }
}

// WithTestSize sets the test fraction in (0, 1).
func WithTestSize(f float64) SplitOption {
	return func(c *splitConfig) { c.testSize = f }
}

// WithRandomState makes the shuffle reproducible.
func WithRandomState(seed uint64) SplitOption {
	return func(c *splitConfig) { c.randomState = &seed }
}

// WithShuffle toggles shuffling. Without it the first rows form the train side.
func WithShuffle(shuffle bool) SplitOption {
	return func(c *splitConfig) { c.shuffle = shuffle }
}

// WithStratify keeps the class proportions of labels on both sides.
func WithStratify(labels []int) SplitOption {
	return func(c *splitConfig) { c.stratify = labels }
}

// newRand returns a seeded PCG source, or a randomly seeded one when seed is nil.
func newRand(seed *uint64) *rand.Rand {
	if seed == nil {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return rand.New(rand.NewPCG(*seed, *seed))
}

// splitSizes resolves the two fractions to row counts the way scikit-learn does:
// nTest = ceil(testSize*n), nTrain = floor(trainSize*n).
func splitSizes(n int, trainSize, testSize float64) (nTrain, nTest int, err error) {
	for _, p := range []struct {
		name string
		v    float64
	}{{"train_size", trainSize}, {"test_size", testSize}} {
		if p.v != 0 && !(p.v > 0 && p.v < 1) {
			return 0, 0, errors.NewValidationError(p.name, "must be a fraction in (0, 1)", p.v)
		}
	}
	if trainSize == 0 && testSize == 0 {
		testSize = 0.25
	}

	if testSize > 0 {
		nTest = int(math.Ceil(testSize * float64(n)))
	}
	if trainSize > 0 {
		nTrain = int(math.Floor(trainSize * float64(n)))
	}
	switch {
	case trainSize == 0:
		nTrain = n - nTest
	case testSize == 0:
		nTest = n - nTrain
	}

	if nTrain+nTest > n {
		return 0, 0, errors.NewValidationError("train_size",
			fmt.Sprintf("train (%d) and test (%d) sizes exceed the %d samples", nTrain, nTest, n), trainSize)
	}
	if nTrain == 0 || nTest == 0 {
		return 0, 0, errors.NewValidationError("test_size",
			fmt.Sprintf("with n_samples=%d, test_size=%v and train_size=%v one side of the split is empty", n, testSize, trainSize), testSize)
	}
	return nTrain, nTest, nil
}

// TrainTestSplit partitions the row indices 0..n-1 into a train and a test side.
//
// Shuffling is on by default. When train and test fractions sum to less
// than one the remaining rows are left out of both sides.
func TrainTestSplit(n int, opts ...SplitOption) (Split, error) {
	cfg := &splitConfig{shuffle: true}
	for _, opt := range opts {
		opt(cfg)
	}

	if n < 2 {
		return Split{}, errors.NewValueError("TrainTestSplit",
			fmt.Sprintf("need at least 2 samples to split, got %d", n))
	}
	nTrain, nTest, err := splitSizes(n, cfg.trainSize, cfg.testSize)
	if err != nil {
		return Split{}, err
	}

	if cfg.stratify != nil {
		if !cfg.shuffle {
			return Split{}, errors.NewValidationError("shuffle", "stratified splits require shuffle", false)
		}
		if len(cfg.stratify) != n {
			return Split{}, errors.NewDimensionError("TrainTestSplit", n, len(cfg.stratify), 0)
		}
		return stratifiedSplit(cfg.stratify, nTrain, nTest, newRand(cfg.randomState))
	}

	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	if !cfg.shuffle {
		return Split{
			TrainIndices: indices[:nTrain],
			TestIndices:  append([]int(nil), indices[nTrain:nTrain+nTest]...),
		}, nil
	}

	r := newRand(cfg.randomState)
	r.Shuffle(n, func(i, j int) {
		indices[i], indices[j] = indices[j], indices[i]
	})
	return Split{
		TestIndices:  append([]int(nil), indices[:nTest]...),
		TrainIndices: append([]int(nil), indices[nTest:nTest+nTrain]...),
	}, nil
}

// stratifiedSplit draws nTest and nTrain rows so that each class keeps its
// share on both sides. Per-class counts are allocated by largest remainder.
func stratifiedSplit(labels []int, nTrain, nTest int, r *rand.Rand) (Split, error) {
	byClass := groupByClass(labels)
	classes := sortedKeys(byClass)
	if len(classes) < 2 {
		return Split{}, errors.NewValueError("TrainTestSplit",
			"stratified split needs at least 2 classes")
	}
	counts := make([]int, len(classes))
	for i, c := range classes {
		counts[i] = len(byClass[c])
		if counts[i] < 2 {
			return Split{}, errors.NewValueError("TrainTestSplit",
				fmt.Sprintf("the least populated class %d has only 1 member, which is too few for a stratified split", c))
		}
	}
	if nTest < len(classes) || nTrain < len(classes) {
		return Split{}, errors.NewValueError("TrainTestSplit",
			fmt.Sprintf("train (%d) and test (%d) sizes must each be at least the number of classes (%d)", nTrain, nTest, len(classes)))
	}

	testAlloc := allocate(counts, nTest)
	remaining := make([]int, len(counts))
	for i := range counts {
		remaining[i] = counts[i] - testAlloc[i]
	}
	trainAlloc := allocate(remaining, nTrain)

	var split Split
	for i, c := range classes {
		idx := append([]int(nil), byClass[c]...)
		r.Shuffle(len(idx), func(a, b int) {
			idx[a], idx[b] = idx[b], idx[a]
		})
		split.TestIndices = append(split.TestIndices, idx[:testAlloc[i]]...)
		split.TrainIndices = append(split.TrainIndices, idx[testAlloc[i]:testAlloc[i]+trainAlloc[i]]...)
	}
	r.Shuffle(len(split.TestIndices), func(a, b int) {
		split.TestIndices[a], split.TestIndices[b] = split.TestIndices[b], split.TestIndices[a]
	})
	r.Shuffle(len(split.TrainIndices), func(a, b int) {
		split.TrainIndices[a], split.TrainIndices[b] = split.TrainIndices[b], split.TrainIndices[a]
	})
	return split, nil
}

// allocate splits total across groups in proportion to counts without
// exceeding any count. Leftover units go to the largest remainders, lowest
// group index first on ties.
func allocate(counts []int, total int) []int {
	sum := 0
	for _, c := range counts {
		sum += c
	}
	alloc := make([]int, len(counts))
	if sum == 0 {
		return alloc
	}
	type rem struct {
		i    int
		frac float64
	}
	rems := make([]rem, len(counts))
	given := 0
	for i, c := range counts {
		exact := float64(total) * float64(c) / float64(sum)
		alloc[i] = int(math.Floor(exact))
		given += alloc[i]
		rems[i] = rem{i, exact - float64(alloc[i])}
	}
	sort.SliceStable(rems, func(a, b int) bool { return rems[a].frac > rems[b].frac })
	for given < total {
		progressed := false
		for _, rm := range rems {
			if given == total {
				break
			}
			if alloc[rm.i] < counts[rm.i] {
				alloc[rm.i]++
				given++
				progressed = true
			}
		}
		if !progressed {
			break
		}
	}
	return alloc
}

func groupByClass(labels []int) map[int][]int {
	byClass := make(map[int][]int)
	for i, y := range labels {
		byClass[y] = append(byClass[y], i)
	}
	return byClass
}

func sortedKeys(m map[int][]int) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

// Take returns s[idx[0]], s[idx[1]], ...
func Take[T any](s []T, idx []int) []T {
	out := make([]T, len(idx))
	for i, j := range idx {
		out[i] = s[j]
	}
	return out
}

// SplitStrings splits parallel text and label sequences into train and test parts.
func SplitStrings(texts, labels []string, opts ...SplitOption) (trainX, testX, trainY, testY []string, err error) {
	if len(texts) != len(labels) {
		return nil, nil, nil, nil, errors.NewDimensionError("SplitStrings", len(texts), len(labels), 0)
	}
	split, err := TrainTestSplit(len(texts), opts...)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	return Take(texts, split.TrainIndices), Take(texts, split.TestIndices),
		Take(labels, split.TrainIndices), Take(labels, split.TestIndices), nil
}
