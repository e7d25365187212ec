package preprocessing

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/textexplain/core/model"
	"github.com/YuminosukeSato/textexplain/core/parallel"
	"github.com/YuminosukeSato/textexplain/core/sparse"
	"github.com/YuminosukeSato/textexplain/pkg/errors"
	"github.com/YuminosukeSato/textexplain/pkg/log"
)

// CountVectorizer はscikit-learn互換の単語出現回数ベクトライザー。
// 文書集合を（文書数 × 語彙数）の疎行列に変換する。語彙は辞書順。
type CountVectorizer struct {
	state *model.StateManager

	lowercase    bool
	tokenPattern string
	stopWords    StopWordSet
	ngramRange   [2]int
	minDF        float64 // 1以上なら文書数、1未満なら割合
	maxDF        float64 // 同上。1.0で無制限
	maxFeatures  int     // 0で無制限
	binary       bool
	nJobs        int

	tokenizer  *Tokenizer
	vocabulary map[string]int
	features   []string
}

var _ model.TextTransformer = (*CountVectorizer)(nil)

// VectorizerOption is a functional option for CountVectorizer
type VectorizerOption func(*CountVectorizer)

// WithLowercase は小文字化するかどうかを設定する（デフォルト: true）
func WithLowercase(lower bool) VectorizerOption {
	return func(v *CountVectorizer) { v.lowercase = lower }
}

// WithTokenPattern はトークンの正規表現を設定する
func WithTokenPattern(pattern string) VectorizerOption {
	return func(v *CountVectorizer) { v.tokenPattern = pattern }
}

// WithStopWords はストップワードを設定する（nilで無効）
func WithStopWords(words StopWordSet) VectorizerOption {
	return func(v *CountVectorizer) { v.stopWords = words }
}

// WithNGramRange は単語n-gramの範囲を設定する（デフォルト: 1,1）
func WithNGramRange(minN, maxN int) VectorizerOption {
	return func(v *CountVectorizer) { v.ngramRange = [2]int{minN, maxN} }
}

// WithMinDF は最小文書頻度を設定する
func WithMinDF(minDF float64) VectorizerOption {
	return func(v *CountVectorizer) { v.minDF = minDF }
}

// WithMaxDF は最大文書頻度を設定する
func WithMaxDF(maxDF float64) VectorizerOption {
	return func(v *CountVectorizer) { v.maxDF = maxDF }
}

// WithMaxFeatures は語彙数の上限を設定する（出現回数の多い順）
func WithMaxFeatures(n int) VectorizerOption {
	return func(v *CountVectorizer) { v.maxFeatures = n }
}

// WithBinary は出現回数の代わりに0/1を使うかどうかを設定する
func WithBinary(binary bool) VectorizerOption {
	return func(v *CountVectorizer) { v.binary = binary }
}

// WithVectorizerJobs はTransformの並列度を設定する（-1で全CPU）
func WithVectorizerJobs(n int) VectorizerOption {
	return func(v *CountVectorizer) { v.nJobs = n }
}

// NewCountVectorizer は新しいCountVectorizerを作成する
//
// 使用例:
//
//	vec := preprocessing.NewCountVectorizer(
//	    preprocessing.WithStopWords(preprocessing.EnglishStopWords),
//	    preprocessing.WithMinDF(2),
//	)
//	X, err := vec.FitTransform(trainTexts)
func NewCountVectorizer(opts ...VectorizerOption) *CountVectorizer {
	v := &CountVectorizer{
		state:      model.NewStateManager(),
		lowercase:  true,
		ngramRange: [2]int{1, 1},
		minDF:      1,
		maxDF:      1.0,
		nJobs:      1,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func (v *CountVectorizer) validate() error {
	if v.ngramRange[0] < 1 || v.ngramRange[1] < v.ngramRange[0] {
		return errors.NewValidationError("ngram_range", "must satisfy 1 <= min_n <= max_n", v.ngramRange)
	}
	if v.minDF < 0 || v.maxDF < 0 {
		return errors.NewValidationError("min_df/max_df", "must be non-negative", []float64{v.minDF, v.maxDF})
	}
	if v.maxFeatures < 0 {
		return errors.NewValidationError("max_features", "must be non-negative", v.maxFeatures)
	}
	if v.tokenizer == nil {
		tok, err := NewTokenizer(v.tokenPattern, v.lowercase)
		if err != nil {
			return errors.NewValidationError("token_pattern", err.Error(), v.tokenPattern)
		}
		v.tokenizer = tok
	}
	return nil
}

// Analyze は文書を語彙と同じ規則（小文字化・トークン化・ストップワード除去・n-gram）で分割する
func (v *CountVectorizer) Analyze(doc string) []string {
	if v.tokenizer == nil {
		if err := v.validate(); err != nil {
			return nil
		}
	}
	raw := v.tokenizer.Tokenize(doc)
	tokens := raw[:0]
	for _, t := range raw {
		if v.stopWords != nil && v.stopWords.Contains(t) {
			continue
		}
		tokens = append(tokens, t)
	}
	return NGrams(tokens, v.ngramRange[0], v.ngramRange[1])
}

// Spans は文書中のトークンの位置を返す（ユニグラムのみ、ストップワードも含む）
func (v *CountVectorizer) Spans(doc string) []TokenSpan {
	if v.tokenizer == nil {
		if err := v.validate(); err != nil {
			return nil
		}
	}
	return v.tokenizer.Spans(doc)
}

// dfLimits は min_df / max_df を文書数に換算する。1以上の値は文書数、1未満は割合として扱う。
func dfLimits(minDF, maxDF float64, nDocs int) (minDocs, maxDocs int) {
	minDocs = int(minDF)
	if minDF < 1 {
		minDocs = int(math.Ceil(minDF * float64(nDocs)))
	}
	maxDocs = int(maxDF)
	if maxDF <= 1 {
		maxDocs = int(math.Floor(maxDF * float64(nDocs)))
	}
	return minDocs, maxDocs
}

// Fit は文書集合から語彙を学習する
func (v *CountVectorizer) Fit(docs []string) error {
	if len(docs) == 0 {
		return errors.NewModelError("CountVectorizer.Fit", "empty data", errors.ErrEmptyData)
	}
	if err := v.validate(); err != nil {
		return err
	}

	df := make(map[string]int)
	tf := make(map[string]int)
	for _, doc := range docs {
		seen := make(map[string]struct{})
		for _, t := range v.Analyze(doc) {
			tf[t]++
			if _, ok := seen[t]; !ok {
				seen[t] = struct{}{}
				df[t]++
			}
		}
	}

	minDocs, maxDocs := dfLimits(v.minDF, v.maxDF, len(docs))
	if maxDocs < minDocs {
		return errors.NewValidationError("max_df", "max_df corresponds to < documents than min_df", v.maxDF)
	}

	terms := make([]string, 0, len(df))
	for t, n := range df {
		if n >= minDocs && n <= maxDocs {
			terms = append(terms, t)
		}
	}
	if len(terms) == 0 {
		return errors.NewModelError("CountVectorizer.Fit", "empty vocabulary", errors.ErrEmptyVocabulary)
	}
	sort.Strings(terms)

	if v.maxFeatures > 0 && len(terms) > v.maxFeatures {
		// 出現回数の降順、同数なら辞書順
		byFreq := append([]string(nil), terms...)
		sort.SliceStable(byFreq, func(i, j int) bool { return tf[byFreq[i]] > tf[byFreq[j]] })
		terms = byFreq[:v.maxFeatures]
		sort.Strings(terms)
	}

	v.setVocabulary(terms)
	v.state.SetDimensions(len(terms), len(docs), 0)
	v.state.SetFitted()

	log.GetLoggerWithName("preprocessing").Debug("Vocabulary fitted",
		log.ModelNameKey, "CountVectorizer",
		log.OperationKey, log.OperationFit,
		log.SamplesKey, len(docs),
		log.FeaturesKey, len(terms),
	)
	return nil
}

func (v *CountVectorizer) setVocabulary(terms []string) {
	v.features = terms
	v.vocabulary = make(map[string]int, len(terms))
	for i, t := range terms {
		v.vocabulary[t] = i
	}
}

// Transform は文書集合を出現回数の疎行列に変換する。語彙にないトークンは無視する。
func (v *CountVectorizer) Transform(docs []string) (mat.Matrix, error) {
	return v.TransformCSR(docs)
}

// TransformCSR はTransformの型付き版
func (v *CountVectorizer) TransformCSR(docs []string) (*sparse.CSR, error) {
	if err := v.state.RequireFitted("CountVectorizer", "Transform"); err != nil {
		return nil, err
	}

	workers := parallel.Workers(v.nJobs)
	blocks := make([]*sparse.CSR, workers)
	chunk := (len(docs) + workers - 1) / max(workers, 1)
	parallel.ParallelizeN(len(docs), workers, func(start, end int) {
		b := sparse.NewBuilder(len(v.features))
		for _, doc := range docs[start:end] {
			b.AddRow(v.countRow(doc))
		}
		blocks[start/max(chunk, 1)] = b.Build()
	})
	return sparse.Stack(len(v.features), blocks...), nil
}

func (v *CountVectorizer) countRow(doc string) map[int]float64 {
	row := make(map[int]float64)
	for _, t := range v.Analyze(doc) {
		j, ok := v.vocabulary[t]
		if !ok {
			continue
		}
		if v.binary {
			row[j] = 1
		} else {
			row[j]++
		}
	}
	return row
}

// FitTransform はFitとTransformを同時に実行する
func (v *CountVectorizer) FitTransform(docs []string) (mat.Matrix, error) {
	if err := v.Fit(docs); err != nil {
		return nil, err
	}
	return v.Transform(docs)
}

// FeatureNames は列インデックス順の語彙を返す
func (v *CountVectorizer) FeatureNames() ([]string, error) {
	if err := v.state.RequireFitted("CountVectorizer", "FeatureNames"); err != nil {
		return nil, err
	}
	return append([]string(nil), v.features...), nil
}

// VocabularyIndex は語の列インデックスを返す
func (v *CountVectorizer) VocabularyIndex(term string) (int, bool) {
	j, ok := v.vocabulary[term]
	return j, ok
}

// IsFitted は学習済みかどうかを返す
func (v *CountVectorizer) IsFitted() bool {
	return v.state.IsFitted()
}

// GetParams はハイパーパラメータを返す
func (v *CountVectorizer) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"lowercase":     v.lowercase,
		"token_pattern": v.tokenPattern,
		"stop_words":    v.stopWords != nil,
		"ngram_range":   v.ngramRange,
		"min_df":        v.minDF,
		"max_df":        v.maxDF,
		"max_features":  v.maxFeatures,
		"binary":        v.binary,
	}
}

// VectorizerState は学習済みベクトライザーの保存形式（gob用）
type VectorizerState struct {
	Lowercase    bool
	TokenPattern string
	StopWords    []string
	NGramRange   [2]int
	Binary       bool
	Features     []string
}

// State は保存用の状態を返す
func (v *CountVectorizer) State() (*VectorizerState, error) {
	if err := v.state.RequireFitted("CountVectorizer", "State"); err != nil {
		return nil, err
	}
	var stop []string
	if v.stopWords != nil {
		stop = v.stopWords.Words()
		sort.Strings(stop)
	}
	return &VectorizerState{
		Lowercase:    v.lowercase,
		TokenPattern: v.tokenPattern,
		StopWords:    stop,
		NGramRange:   v.ngramRange,
		Binary:       v.binary,
		Features:     append([]string(nil), v.features...),
	}, nil
}

// RestoreCountVectorizer は保存された状態から学習済みベクトライザーを復元する
func RestoreCountVectorizer(s *VectorizerState) (*CountVectorizer, error) {
	if s == nil || len(s.Features) == 0 {
		return nil, errors.NewModelError("CountVectorizer.Restore", "empty vocabulary", errors.ErrEmptyVocabulary)
	}
	v := NewCountVectorizer(
		WithLowercase(s.Lowercase),
		WithTokenPattern(s.TokenPattern),
		WithNGramRange(s.NGramRange[0], s.NGramRange[1]),
		WithBinary(s.Binary),
	)
	if s.StopWords != nil {
		v.stopWords = newStopWordSet(s.StopWords...)
	}
	if err := v.validate(); err != nil {
		return nil, err
	}
	if !sort.StringsAreSorted(s.Features) {
		return nil, errors.NewValueError("CountVectorizer.Restore", "features must be sorted")
	}
	v.setVocabulary(append([]string(nil), s.Features...))
	v.state.SetDimensions(len(s.Features), 0, 0)
	v.state.SetFitted()
	return v, nil
}

// String はベクトライザーの文字列表現を返す
func (v *CountVectorizer) String() string {
	return fmt.Sprintf("CountVectorizer(lowercase=%t, stop_words=%t, ngram_range=%v, min_df=%g, max_features=%d, binary=%t, vocabulary=%d)",
		v.lowercase, v.stopWords != nil, v.ngramRange, v.minDF, v.maxFeatures, v.binary, len(v.features))
}
