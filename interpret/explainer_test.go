package interpret

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/YuminosukeSato/textexplain/pkg/errors"
	"github.com/YuminosukeSato/textexplain/pkg/log"
	"github.com/YuminosukeSato/textexplain/preprocessing"
	"github.com/YuminosukeSato/textexplain/sklearn/model_selection"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// toyCorpus has two categories with disjoint vocabularies.
func toyCorpus() ([]string, []int) {
	return []string{
			"cat kitten purr",
			"kitten whiskers purr",
			"stock market rally",
			"market shares fell",
		},
		[]int{0, 0, 1, 1}
}

func threeTopics() ([]string, []int) {
	return []string{
			"the cat and the kitten purr",
			"kitten whiskers and purr",
			"stock market shares rally",
			"market shares fell sharply",
			"rain and wind tonight",
			"sunny weather with light wind",
		},
		[]int{0, 0, 1, 1, 2, 2}
}

func singleC(c float64) Option {
	return WithHyperparamRange(model_selection.ParamGrid{"C": {c}})
}

func fitToy(t *testing.T, opts ...Option) *ClassicalTextExplainer {
	t.Helper()
	texts, labels := toyCorpus()
	e := NewClassicalTextExplainer(append([]Option{singleC(100)}, opts...)...)
	_, _, err := e.Fit(texts, labels)
	require.NoError(t, err)
	return e
}

func TestExplainer_ToyCorpusOverfit(t *testing.T) {
	texts, labels := toyCorpus()
	e := NewClassicalTextExplainer(singleC(100))

	lr, best, err := e.Fit(texts, labels)
	require.NoError(t, err)
	require.NotNil(t, lr)
	assert.Equal(t, map[string]interface{}{"C": 100.0}, best)
	assert.True(t, e.IsFitted())
	assert.Nil(t, e.CVResults(), "a single candidate skips cross-validation")

	pred, err := e.Predict(texts)
	require.NoError(t, err)
	assert.Equal(t, labels, pred)

	score, err := e.Score(texts, labels)
	require.NoError(t, err)
	assert.Equal(t, 1.0, score)

	probas, err := e.PredictProba(texts)
	require.NoError(t, err)
	r, c := probas.Dims()
	assert.Equal(t, 4, r)
	assert.Equal(t, 2, c)
}

func TestExplainer_GridSearch(t *testing.T) {
	texts, labels := threeTopics()
	e := NewClassicalTextExplainer(
		WithCV(2),
		WithRandomState(1),
		WithModelConfig(map[string]interface{}{"n_jobs": 2, "max_iter": 200}),
	)

	lr, best, err := e.Fit(texts, labels)
	require.NoError(t, err)
	assert.Contains(t, DefaultCGrid, best["C"])
	assert.Equal(t, 3, lr.NCoefRows(), "multinomial by default")
	require.NotNil(t, e.CVResults())
	assert.Len(t, e.CVResults().Params, len(DefaultCGrid))

	model, err := e.Model()
	require.NoError(t, err)
	assert.Same(t, lr, model)
	assert.Equal(t, 200, model.GetParams()["max_iter"])
}

func TestExplainer_FitErrors(t *testing.T) {
	e := NewClassicalTextExplainer()
	_, _, err := e.Fit(nil, nil)
	assert.ErrorIs(t, err, errors.ErrEmptyData)

	_, _, err = e.Fit([]string{"a b", "c d"}, []int{0})
	var de *errors.DimensionError
	assert.True(t, errors.As(err, &de))

	_, _, err = NewClassicalTextExplainer(singleC(1)).Fit([]string{"aa bb", "cc dd"}, []int{1, 1})
	var ve *errors.ValueError
	assert.True(t, errors.As(err, &ve), "one class cannot be fitted")

	_, _, err = NewClassicalTextExplainer(singleC(1), WithModelConfig(map[string]interface{}{"penalty": "l1"})).
		Fit([]string{"aa bb", "cc dd"}, []int{0, 1})
	var vle *errors.ValidationError
	assert.True(t, errors.As(err, &vle))
}

func TestExplainLocal(t *testing.T) {
	e := fitToy(t)

	exp, err := e.ExplainLocal("the kitten and the cat purr", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, exp.Label)
	assert.Equal(t, "0", exp.LabelName)
	assert.Greater(t, exp.Probability, 0.5)
	require.Len(t, exp.Terms, 3, "only in-vocabulary terms are scored")
	for _, term := range exp.Terms {
		assert.Greater(t, term.Importance, 0.0, term.Term)
		assert.Equal(t, 1.0, term.Value)
	}
	for i := 1; i < len(exp.Terms); i++ {
		assert.GreaterOrEqual(t, exp.Terms[i-1].Importance, exp.Terms[i].Importance)
	}
	assert.Greater(t, exp.TotalImportance(), 0.0)

	one := 1
	against, err := e.ExplainLocal("the kitten and the cat purr", &one)
	require.NoError(t, err)
	assert.Equal(t, 1, against.Label)
	assert.InDelta(t, -exp.TotalImportance(), against.TotalImportance(), 1e-12,
		"binary models use the negated weights for the other class")
	assert.InDelta(t, 1, exp.Probability+against.Probability, 1e-12)
	assert.Empty(t, against.Positive(0))
	assert.Len(t, against.Negative(2), 2)
}

func TestExplainLocal_Counts(t *testing.T) {
	e := fitToy(t)
	exp, err := e.ExplainLocal("purr purr purr cat", nil)
	require.NoError(t, err)

	var purr, cat TermImportance
	for _, term := range exp.Terms {
		switch term.Term {
		case "purr":
			purr = term
		case "cat":
			cat = term
		}
	}
	assert.Equal(t, 3.0, purr.Value)
	w, sign, _ := e.classWeights(0)
	assert.InDelta(t, 3*sign*w[purr.Feature], purr.Importance, 1e-12)
	assert.InDelta(t, sign*w[cat.Feature], cat.Importance, 1e-12)
}

func TestExplainLocal_OutOfVocabulary(t *testing.T) {
	e := fitToy(t)

	exp, err := e.ExplainLocal("zebra giraffe okapi", nil)
	require.NoError(t, err)
	assert.Empty(t, exp.Terms)
	assert.Equal(t, 0.0, exp.TotalImportance())
	assert.Empty(t, exp.Top(5))

	exp, err = e.ExplainLocal("", nil)
	require.NoError(t, err)
	assert.Empty(t, exp.Terms)
}

func TestExplainLocal_Errors(t *testing.T) {
	_, err := NewClassicalTextExplainer().ExplainLocal("cat", nil)
	var nf *errors.NotFittedError
	assert.True(t, errors.As(err, &nf))

	e := fitToy(t)
	seven := 7
	_, err = e.ExplainLocal("cat", &seven)
	var ve *errors.ValueError
	assert.True(t, errors.As(err, &ve))

	_, err = NewClassicalTextExplainer().ExplainGlobal(5)
	assert.True(t, errors.As(err, &nf))
}

func TestExplainLocal_Cache(t *testing.T) {
	logger, _ := log.NewTestLogger(log.LevelDebug)
	e := fitToy(t, WithCache(0), WithLogger(logger))

	first, err := e.ExplainLocal("cat kitten", nil)
	require.NoError(t, err)
	assert.False(t, logger.ContainsMessage("Explanation served from cache"))

	first.Terms[0].Importance = 1e9 // callers get copies

	second, err := e.ExplainLocal("cat kitten", nil)
	require.NoError(t, err)
	assert.True(t, logger.ContainsMessage("Explanation served from cache"))
	assert.NotEqual(t, 1e9, second.Terms[0].Importance)

	zero := 0
	_, err = e.ExplainLocal("cat kitten", &zero)
	require.NoError(t, err)
	assert.Equal(t, 2, e.cache.ItemCount(), "explicit and predicted labels are cached separately")

	texts, labels := toyCorpus()
	_, _, err = e.Fit(texts, labels)
	require.NoError(t, err)
	assert.Equal(t, 0, e.cache.ItemCount(), "refitting clears the cache")
}

func TestExplainLocal_CacheStaysBoundedWithoutExpiry(t *testing.T) {
	e := fitToy(t, WithCache(0))
	e.cacheLimit = 3

	for _, doc := range []string{"cat", "kitten", "stock", "market", "cat stock"} {
		_, err := e.ExplainLocal(doc, nil)
		require.NoError(t, err)
		assert.LessOrEqual(t, e.cache.ItemCount(), 3, "after %q", doc)
	}
}

func TestExplainGlobal(t *testing.T) {
	texts, labels := threeTopics()
	e := NewClassicalTextExplainer(singleC(10), WithClassNames([]string{"pets", "finance", "weather"}))
	_, _, err := e.Fit(texts, labels)
	require.NoError(t, err)

	g, err := e.ExplainGlobal(2)
	require.NoError(t, err)
	assert.Equal(t, MethodCoefficients, g.Method)
	require.Len(t, g.PerClass, 3)
	assert.Len(t, g.Overall, 2)

	top := map[string]string{}
	for _, cr := range g.PerClass {
		require.Len(t, cr.Terms, 2)
		top[cr.LabelName] = cr.Terms[0].Term
	}
	assert.Contains(t, []string{"kitten", "purr", "cat", "whiskers", "the"}, top["pets"])
	assert.Contains(t, []string{"market", "shares", "stock", "rally", "fell", "sharply"}, top["finance"])
	assert.Contains(t, []string{"wind", "rain", "tonight", "sunny", "weather", "with", "light"}, top["weather"])

	all, err := e.ExplainGlobal(0)
	require.NoError(t, err)
	assert.Len(t, all.Overall, len(e.FeatureNames()))
	for i := 1; i < len(all.Overall); i++ {
		assert.GreaterOrEqual(t, all.Overall[i-1].Importance, all.Overall[i].Importance)
	}
}

func TestPermutationImportance(t *testing.T) {
	texts, labels := threeTopics()
	e := NewClassicalTextExplainer(singleC(10), WithRandomState(3))
	_, _, err := e.Fit(texts, labels)
	require.NoError(t, err)

	seq, err := e.PermutationImportance(texts, labels, WithTopN(5), WithRepeats(4))
	require.NoError(t, err)
	assert.Equal(t, MethodPermutation, seq.Method)
	assert.Equal(t, 1.0, seq.BaselineScore)
	assert.Len(t, seq.Overall, 5)

	par, err := e.PermutationImportance(texts, labels, WithTopN(5), WithRepeats(4), WithPermutationJobs(3))
	require.NoError(t, err)
	assert.Equal(t, seq.Overall, par.Overall, "worker count does not change the result")

	_, err = e.PermutationImportance(texts, labels[:2])
	var de *errors.DimensionError
	assert.True(t, errors.As(err, &de))

	_, err = e.PermutationImportance(texts, labels, WithRepeats(0))
	var ve *errors.ValidationError
	assert.True(t, errors.As(err, &ve))
}

func TestSnapshot_SaveLoad(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
	}{
		{"counts", nil},
		{"tfidf", []Option{WithTfidf(preprocessing.NewTfidfTransformerDefault())}},
		{"stop words and bigrams", []Option{WithVectorizer(preprocessing.NewCountVectorizer(
			preprocessing.WithStopWords(preprocessing.EnglishStopWords),
			preprocessing.WithNGramRange(1, 2),
		))}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			texts, labels := threeTopics()
			e := NewClassicalTextExplainer(append([]Option{singleC(10), WithClassNames([]string{"pets", "finance", "weather"})}, tt.opts...)...)
			_, _, err := e.Fit(texts, labels)
			require.NoError(t, err)

			path := filepath.Join(t.TempDir(), "explainer.gob")
			require.NoError(t, e.Save(path))

			loaded, err := LoadExplainer(path)
			require.NoError(t, err)
			assert.True(t, loaded.IsFitted())
			assert.Equal(t, e.FeatureNames(), loaded.FeatureNames())
			assert.Equal(t, e.BestParams(), loaded.BestParams())

			want, err := e.PredictProba(texts)
			require.NoError(t, err)
			got, err := loaded.PredictProba(texts)
			require.NoError(t, err)
			assert.InDeltaSlice(t, want.RawMatrix().Data, got.RawMatrix().Data, 1e-12)

			wantExp, err := e.ExplainLocal(texts[4], nil)
			require.NoError(t, err)
			gotExp, err := loaded.ExplainLocal(texts[4], nil)
			require.NoError(t, err)
			assert.Equal(t, wantExp, gotExp)
			assert.Equal(t, "weather", gotExp.LabelName)
		})
	}
}

func TestSnapshot_Errors(t *testing.T) {
	_, err := NewClassicalTextExplainer().Snapshot()
	var nf *errors.NotFittedError
	assert.True(t, errors.As(err, &nf))

	_, err = Restore(&Snapshot{})
	var ve *errors.ValueError
	assert.True(t, errors.As(err, &ve))

	_, err = LoadExplainer(filepath.Join(t.TempDir(), "missing.gob"))
	assert.Error(t, err)
}
