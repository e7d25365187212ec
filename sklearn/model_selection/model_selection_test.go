package model_selection

import (
	"context"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/textexplain/core/model"
	"github.com/YuminosukeSato/textexplain/core/sparse"
	"github.com/YuminosukeSato/textexplain/pkg/errors"
	"github.com/YuminosukeSato/textexplain/sklearn/linear_model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func assertPartition(t *testing.T, n int, train, test []int) {
	t.Helper()
	seen := make(map[int]int)
	for _, i := range train {
		seen[i]++
	}
	for _, i := range test {
		seen[i]++
	}
	for i, c := range seen {
		assert.Equal(t, 1, c, "index %d appears %d times", i, c)
		assert.True(t, i >= 0 && i < n, "index %d out of range", i)
	}
}

func TestTrainTestSplit_Sizes(t *testing.T) {
	tests := []struct {
		name      string
		n         int
		opts      []SplitOption
		wantTrain int
		wantTest  int
	}{
		{"default quarter", 10, nil, 7, 3},
		{"train size only", 10, []SplitOption{WithTrainSize(0.8)}, 8, 2},
		{"test size only", 10, []SplitOption{WithTestSize(0.33)}, 6, 4},
		{"both leave rows out", 10, []SplitOption{WithTrainSize(0.5), WithTestSize(0.2)}, 5, 2},
		{"no shuffle", 5, []SplitOption{WithShuffle(false), WithTestSize(0.4)}, 3, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			split, err := TrainTestSplit(tt.n, append(tt.opts, WithRandomState(42))...)
			require.NoError(t, err)
			assert.Len(t, split.TrainIndices, tt.wantTrain)
			assert.Len(t, split.TestIndices, tt.wantTest)
			assertPartition(t, tt.n, split.TrainIndices, split.TestIndices)
		})
	}
}

func TestTrainTestSplit_NoShuffleKeepsOrder(t *testing.T) {
	split, err := TrainTestSplit(5, WithShuffle(false), WithTestSize(0.4))
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, split.TrainIndices)
	assert.Equal(t, []int{3, 4}, split.TestIndices)
}

func TestTrainTestSplit_Reproducible(t *testing.T) {
	a, err := TrainTestSplit(100, WithRandomState(7))
	require.NoError(t, err)
	b, err := TrainTestSplit(100, WithRandomState(7))
	require.NoError(t, err)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("same seed gave different splits (-a +b):\n%s", diff)
	}

	c, err := TrainTestSplit(100, WithRandomState(8))
	require.NoError(t, err)
	assert.NotEqual(t, a.TestIndices, c.TestIndices)
}

func TestTrainTestSplit_Stratified(t *testing.T) {
	labels := make([]int, 0, 40)
	for i := 0; i < 32; i++ {
		labels = append(labels, 0)
	}
	for i := 0; i < 8; i++ {
		labels = append(labels, 1)
	}

	split, err := TrainTestSplit(len(labels), WithStratify(labels), WithTestSize(0.25), WithRandomState(1))
	require.NoError(t, err)
	assertPartition(t, len(labels), split.TrainIndices, split.TestIndices)
	require.Len(t, split.TestIndices, 10)

	count := map[int]int{}
	for _, i := range split.TestIndices {
		count[labels[i]]++
	}
	assert.Equal(t, map[int]int{0: 8, 1: 2}, count)
}

func TestTrainTestSplit_Errors(t *testing.T) {
	tests := []struct {
		name  string
		n     int
		opts  []SplitOption
		check func(error) bool
	}{
		{"too few samples", 1, nil, func(err error) bool {
			var ve *errors.ValueError
			return errors.As(err, &ve)
		}},
		{"fraction out of range", 10, []SplitOption{WithTestSize(1.5)}, func(err error) bool {
			var ve *errors.ValidationError
			return errors.As(err, &ve)
		}},
		{"sizes exceed samples", 10, []SplitOption{WithTrainSize(0.8), WithTestSize(0.3)}, func(err error) bool {
			var ve *errors.ValidationError
			return errors.As(err, &ve)
		}},
		{"empty train side", 2, []SplitOption{WithTestSize(0.9)}, func(err error) bool {
			var ve *errors.ValidationError
			return errors.As(err, &ve)
		}},
		{"stratify without shuffle", 4, []SplitOption{WithShuffle(false), WithStratify([]int{0, 0, 1, 1})}, func(err error) bool {
			var ve *errors.ValidationError
			return errors.As(err, &ve)
		}},
		{"stratify singleton class", 6, []SplitOption{WithStratify([]int{0, 0, 0, 0, 0, 1}), WithTestSize(0.5)}, func(err error) bool {
			var ve *errors.ValueError
			return errors.As(err, &ve)
		}},
		{"stratify length mismatch", 6, []SplitOption{WithStratify([]int{0, 1})}, func(err error) bool {
			var de *errors.DimensionError
			return errors.As(err, &de)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := TrainTestSplit(tt.n, tt.opts...)
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error type: %v", err)
		})
	}
}

func TestSplitStrings(t *testing.T) {
	texts := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	labels := []string{"A", "B", "C", "D", "E", "F", "G", "H"}

	trainX, testX, trainY, testY, err := SplitStrings(texts, labels, WithTrainSize(0.75), WithRandomState(3))
	require.NoError(t, err)
	assert.Len(t, trainX, 6)
	assert.Len(t, testX, 2)
	for i := range trainX {
		assert.Equal(t, trainX[i], string(rune(trainY[i][0]+'a'-'A')), "train pair %d stays aligned", i)
	}
	for i := range testX {
		assert.Equal(t, testX[i], string(rune(testY[i][0]+'a'-'A')), "test pair %d stays aligned", i)
	}

	all := append(append([]string(nil), trainX...), testX...)
	sort.Strings(all)
	assert.Equal(t, texts, all)

	_, _, _, _, err = SplitStrings(texts, labels[:3])
	var de *errors.DimensionError
	assert.True(t, errors.As(err, &de))
}

func TestKFold(t *testing.T) {
	y := make([]int, 10)

	for _, shuffle := range []bool{false, true} {
		kf := NewKFold(3, shuffle, 11)
		folds, err := kf.Split(y)
		require.NoError(t, err)
		require.Len(t, folds, 3)

		var sizes []int
		inTest := make(map[int]int)
		for _, f := range folds {
			assertPartition(t, len(y), f.TrainIndices, f.TestIndices)
			assert.Len(t, f.TrainIndices, len(y)-len(f.TestIndices))
			sizes = append(sizes, len(f.TestIndices))
			for _, i := range f.TestIndices {
				inTest[i]++
			}
		}
		assert.Equal(t, []int{4, 3, 3}, sizes)
		assert.Len(t, inTest, len(y), "every index is tested exactly once")
	}

	folds, err := NewKFold(2, false, 0).Split([]int{0, 0, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, folds[0].TestIndices)
	assert.Equal(t, []int{2, 3}, folds[0].TrainIndices)
}

func TestKFold_Errors(t *testing.T) {
	_, err := NewKFold(1, false, 0).Split(make([]int, 5))
	var ve *errors.ValidationError
	assert.True(t, errors.As(err, &ve))

	_, err = NewKFold(6, false, 0).Split(make([]int, 5))
	var vle *errors.ValueError
	assert.True(t, errors.As(err, &vle))
}

func TestStratifiedKFold(t *testing.T) {
	y := []int{0, 0, 0, 0, 0, 0, 1, 1, 1, 2, 2, 2}

	for _, shuffle := range []bool{false, true} {
		folds, err := NewStratifiedKFold(3, shuffle, 5).Split(y)
		require.NoError(t, err)
		require.Len(t, folds, 3)

		inTest := make(map[int]int)
		for _, f := range folds {
			assertPartition(t, len(y), f.TrainIndices, f.TestIndices)
			assert.Len(t, f.TestIndices, 4)
			perClass := map[int]int{}
			for _, i := range f.TestIndices {
				perClass[y[i]]++
				inTest[i]++
			}
			assert.Equal(t, map[int]int{0: 2, 1: 1, 2: 1}, perClass)
		}
		assert.Len(t, inTest, len(y))
	}

	_, err := NewStratifiedKFold(4, false, 0).Split([]int{0, 0, 1, 1, 2, 2})
	var ve *errors.ValueError
	assert.True(t, errors.As(err, &ve))
}

func TestParamGrid_Candidates(t *testing.T) {
	grid := ParamGrid{
		"C":      {0.1, 1.0},
		"solver": {"lbfgs", "gd"},
	}
	cands, err := grid.Candidates()
	require.NoError(t, err)
	want := []map[string]interface{}{
		{"C": 0.1, "solver": "lbfgs"},
		{"C": 0.1, "solver": "gd"},
		{"C": 1.0, "solver": "lbfgs"},
		{"C": 1.0, "solver": "gd"},
	}
	assert.Equal(t, want, cands)

	empty, err := ParamGrid{}.Candidates()
	require.NoError(t, err)
	assert.Len(t, empty, 1)

	_, err = ParamGrid{"C": {}}.Candidates()
	assert.Error(t, err)
}

// imbalancedBlobs has two classes separated along the first feature with
// twice as many class 0 rows, so a heavily regularized model predicts the
// majority class everywhere.
func imbalancedBlobs() (*mat.Dense, []int) {
	var data []float64
	var y []int
	for i := 0; i < 20; i++ {
		data = append(data, float64(i%5)*0.1, float64(i%3))
		y = append(y, 0)
	}
	for i := 0; i < 10; i++ {
		data = append(data, 1+float64(i%5)*0.1, float64(i%3))
		y = append(y, 1)
	}
	return mat.NewDense(30, 2, data), y
}

func TestGridSearchCV_PicksBest(t *testing.T) {
	X, y := imbalancedBlobs()
	base := linear_model.NewLogisticRegression()
	gs := NewGridSearchCV(base, ParamGrid{"C": {1e-4, 100.0}}, WithSearchJobs(2))

	require.NoError(t, gs.Fit(X, y))
	assert.True(t, gs.IsFitted())
	assert.Equal(t, map[string]interface{}{"C": 100.0}, gs.BestParams())
	assert.Equal(t, 1, gs.BestIndex())

	res := gs.CVResults()
	require.Len(t, res.SplitScores, 2)
	assert.Len(t, res.SplitScores[0], 3)
	assert.Equal(t, []int{2, 1}, res.RankTestScore)
	assert.Less(t, res.MeanTestScore[0], res.MeanTestScore[1])
	// one held-out fold puts a boundary row on the wrong side, so the mean is below 1
	assert.Equal(t, res.MeanTestScore[1], gs.BestScore())
	assert.Greater(t, gs.BestScore(), 0.9)

	best, err := gs.BestEstimator()
	require.NoError(t, err)
	assert.True(t, best.IsFitted())
	assert.False(t, base.IsFitted(), "base estimator is never fitted")

	score, err := gs.Score(X, y)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, score, gs.BestScore())
}

func TestGridSearchCV_SparseInput(t *testing.T) {
	X, y := imbalancedBlobs()
	gs := NewGridSearchCV(linear_model.NewLogisticRegression(), ParamGrid{"C": {1.0, 10.0}},
		WithCV(NewKFold(3, true, 1)), WithSearchJobs(-1), WithRefit(false))

	require.NoError(t, gs.Fit(sparse.FromDense(X), y))
	_, err := gs.BestEstimator()
	var nf *errors.NotFittedError
	assert.True(t, errors.As(err, &nf), "refit disabled")
}

func TestGridSearchCV_Errors(t *testing.T) {
	X, y := imbalancedBlobs()

	gs := NewGridSearchCV(linear_model.NewLogisticRegression(), ParamGrid{"penalty": {"l1"}})
	err := gs.Fit(X, y)
	var ve *errors.ValidationError
	assert.True(t, errors.As(err, &ve), "invalid candidate fails the search: %v", err)
	assert.False(t, gs.IsFitted())

	gs = NewGridSearchCV(linear_model.NewLogisticRegression(), ParamGrid{"C": {1.0}})
	err = gs.Fit(X, y[:10])
	var de *errors.DimensionError
	assert.True(t, errors.As(err, &de))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	gs = NewGridSearchCV(linear_model.NewLogisticRegression(), ParamGrid{"C": {1.0}})
	err = gs.FitContext(ctx, X, y)
	assert.ErrorIs(t, err, context.Canceled)
}

// panickyLR panics in Fit for one value of C.
type panickyLR struct {
	*linear_model.LogisticRegression
}

func (p panickyLR) Clone() model.Classifier {
	return panickyLR{p.LogisticRegression.Clone().(*linear_model.LogisticRegression)}
}

func (p panickyLR) Fit(X mat.Matrix, y []int) error {
	if p.GetParams()["C"] == 0.5 {
		panic("solver blew up")
	}
	return p.LogisticRegression.Fit(X, y)
}

func TestGridSearchCV_RecoversWorkerPanic(t *testing.T) {
	X, y := imbalancedBlobs()
	gs := NewGridSearchCV(panickyLR{linear_model.NewLogisticRegression()},
		ParamGrid{"C": {1.0, 0.5}}, WithSearchJobs(2))

	err := gs.Fit(X, y)
	var pe *errors.PanicError
	require.True(t, errors.As(err, &pe), "got %v", err)
	assert.Equal(t, "GridSearchCV.fit", pe.Operation)
	assert.Equal(t, "solver blew up", pe.PanicValue)
	assert.False(t, gs.IsFitted())
}

func TestSelectRows(t *testing.T) {
	X := mat.NewDense(3, 2, []float64{1, 2, 3, 4, 5, 6})
	got := SelectRows(X, []int{2, 0})
	assert.True(t, mat.Equal(mat.NewDense(2, 2, []float64{5, 6, 1, 2}), got))

	sp := SelectRows(sparse.FromDense(X), []int{1})
	_, ok := sp.(*sparse.CSR)
	assert.True(t, ok)
	assert.Equal(t, 3.0, sp.At(0, 0))
}
