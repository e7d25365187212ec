package preprocessing

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/textexplain/core/sparse"
	"github.com/YuminosukeSato/textexplain/pkg/errors"
)

var corpus = []string{
	"The cat sat on the mat.",
	"The dog chased the cat!",
	"Stocks fell as the market closed.",
	"Dogs and cats are friends",
}

func TestTokenizer(t *testing.T) {
	tok, err := NewTokenizer("", true)
	require.NoError(t, err)

	tests := []struct {
		doc  string
		want []string
	}{
		{"The cat sat.", []string{"the", "cat", "sat"}},
		{"a I x-ray", []string{"ray"}},
		{"Café naïve_test 42", []string{"café", "naïve_test", "42"}},
		{"", nil},
	}
	for _, tt := range tests {
		got := tok.Tokenize(tt.doc)
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("Tokenize(%q) mismatch (-want +got):\n%s", tt.doc, diff)
		}
	}
}

func TestTokenizerSpans(t *testing.T) {
	tok, err := NewTokenizer("", true)
	require.NoError(t, err)

	doc := "Hello, World"
	spans := tok.Spans(doc)
	require.Len(t, spans, 2)
	assert.Equal(t, "world", spans[1].Token)
	assert.Equal(t, "World", doc[spans[1].Start:spans[1].End])
}

func TestNGrams(t *testing.T) {
	got := NGrams([]string{"new", "york", "times"}, 1, 2)
	assert.Equal(t, []string{"new", "york", "times", "new york", "york times"}, got)
}

func TestCountVectorizerVocabularySorted(t *testing.T) {
	vec := NewCountVectorizer()
	X, err := vec.FitTransform(corpus)
	require.NoError(t, err)

	names, err := vec.FeatureNames()
	require.NoError(t, err)
	assert.IsIncreasing(t, names)
	assert.Contains(t, names, "the")

	r, c := X.Dims()
	assert.Equal(t, len(corpus), r)
	assert.Equal(t, len(names), c)

	the, ok := vec.VocabularyIndex("the")
	require.True(t, ok)
	assert.Equal(t, 2.0, X.At(0, the))
	assert.Equal(t, 2.0, X.At(1, the))
	assert.Equal(t, 0.0, X.At(3, the))

	_, isCSR := X.(*sparse.CSR)
	assert.True(t, isCSR)
}

func TestCountVectorizerOptions(t *testing.T) {
	tests := []struct {
		name     string
		opts     []VectorizerOption
		contains []string
		excludes []string
		size     int
	}{
		{
			name:     "english stop words",
			opts:     []VectorizerOption{WithStopWords(EnglishStopWords)},
			contains: []string{"cat", "market"},
			excludes: []string{"the", "on", "and"},
		},
		{
			name:     "min_df drops rare terms",
			opts:     []VectorizerOption{WithMinDF(2)},
			contains: []string{"the", "cat"},
			excludes: []string{"stocks", "mat"},
		},
		{
			name:     "max_df fraction drops frequent terms",
			opts:     []VectorizerOption{WithMaxDF(0.5)},
			contains: []string{"cat", "dog"},
			excludes: []string{"the"},
		},
		{
			name: "max_features keeps most frequent",
			opts: []VectorizerOption{WithMaxFeatures(2)},
			// the=5, cat=2 and the rest appear once
			contains: []string{"the", "cat"},
			size:     2,
		},
		{
			name:     "bigrams",
			opts:     []VectorizerOption{WithNGramRange(1, 2)},
			contains: []string{"the cat", "cat sat"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vec := NewCountVectorizer(tt.opts...)
			require.NoError(t, vec.Fit(corpus))
			names, err := vec.FeatureNames()
			require.NoError(t, err)
			for _, w := range tt.contains {
				assert.Contains(t, names, w)
			}
			for _, w := range tt.excludes {
				assert.NotContains(t, names, w)
			}
			if tt.size > 0 {
				assert.Len(t, names, tt.size)
			}
			assert.IsIncreasing(t, names)
		})
	}
}

func TestCountVectorizerBinaryAndOOV(t *testing.T) {
	vec := NewCountVectorizer(WithBinary(true))
	require.NoError(t, vec.Fit(corpus))

	X, err := vec.Transform([]string{"the the the cat", "zebra quantum"})
	require.NoError(t, err)

	the, _ := vec.VocabularyIndex("the")
	assert.Equal(t, 1.0, X.At(0, the))

	csr := X.(*sparse.CSR)
	idx, _ := csr.RowView(1)
	assert.Empty(t, idx, "out-of-vocabulary document must produce an empty row")
}

func TestCountVectorizerParallelTransformMatchesSequential(t *testing.T) {
	docs := make([]string, 0, 50)
	for i := 0; i < 50; i++ {
		docs = append(docs, corpus[i%len(corpus)])
	}

	seq := NewCountVectorizer()
	Xs, err := seq.FitTransform(docs)
	require.NoError(t, err)

	par := NewCountVectorizer(WithVectorizerJobs(4))
	Xp, err := par.FitTransform(docs)
	require.NoError(t, err)

	assert.True(t, mat.Equal(Xs, Xp))
}

func TestCountVectorizerErrors(t *testing.T) {
	vec := NewCountVectorizer()
	_, err := vec.Transform(corpus)
	var notFitted *errors.NotFittedError
	assert.True(t, errors.As(err, &notFitted))

	err = NewCountVectorizer(WithStopWords(EnglishStopWords)).Fit([]string{"the and of", "a an"})
	assert.True(t, errors.Is(err, errors.ErrEmptyVocabulary))

	err = NewCountVectorizer().Fit(nil)
	assert.True(t, errors.Is(err, errors.ErrEmptyData))

	var valErr *errors.ValidationError
	err = NewCountVectorizer(WithNGramRange(2, 1)).Fit(corpus)
	assert.True(t, errors.As(err, &valErr))
}

func TestCountVectorizerStateRoundTrip(t *testing.T) {
	vec := NewCountVectorizer(WithStopWords(EnglishStopWords))
	X, err := vec.FitTransform(corpus)
	require.NoError(t, err)

	state, err := vec.State()
	require.NoError(t, err)
	restored, err := RestoreCountVectorizer(state)
	require.NoError(t, err)

	X2, err := restored.Transform(corpus)
	require.NoError(t, err)
	assert.True(t, mat.Equal(X, X2))
}

func TestStopWordsByName(t *testing.T) {
	assert.Len(t, EnglishStopWords, 318)
	assert.True(t, StopWordsByName("English").Contains("the"))
	assert.Nil(t, StopWordsByName("none"))
	custom := StopWordsByName("foo, bar")
	assert.True(t, custom.Contains("bar"))
}

func TestTfidfTransformer(t *testing.T) {
	counts := mat.NewDense(3, 2, []float64{
		3, 0,
		2, 0,
		3, 2,
	})

	tfidf := NewTfidfTransformerDefault()
	out, err := tfidf.FitTransform(counts)
	require.NoError(t, err)

	// idf = ln((1+n)/(1+df)) + 1
	assert.InDelta(t, 1.0, tfidf.IDF[0], 1e-12)
	assert.InDelta(t, math.Log(4.0/2.0)+1, tfidf.IDF[1], 1e-12)

	// 各行はL2ノルム1
	for i := 0; i < 3; i++ {
		row := mat.Row(nil, i, out)
		assert.InDelta(t, 1.0, mat.Norm(mat.NewVecDense(2, row), 2), 1e-12)
	}
	assert.InDelta(t, 1.0, out.At(0, 0), 1e-12)

	raw := NewTfidfTransformer("", false, true, true)
	out, err = raw.FitTransform(counts)
	require.NoError(t, err)
	assert.InDelta(t, 1+math.Log(3), out.At(0, 0), 1e-12)

	_, err = tfidf.Transform(mat.NewDense(1, 3, nil))
	var dimErr *errors.DimensionError
	assert.True(t, errors.As(err, &dimErr))

	restored, err := RestoreTfidfTransformer("l2", false, tfidf.IDF)
	require.NoError(t, err)
	assert.True(t, restored.IsFitted())
}
