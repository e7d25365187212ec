package preprocessing

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/textexplain/core/model"
	"github.com/YuminosukeSato/textexplain/core/sparse"
	"github.com/YuminosukeSato/textexplain/pkg/errors"
)

// TfidfTransformer はscikit-learn互換のTF-IDF変換器。
// CountVectorizerの出現回数行列をTF-IDF重みに変換する。
type TfidfTransformer struct {
	state *model.StateManager

	// Norm は行の正規化方法 ("l2" または "")
	Norm string

	// UseIDF はIDF重み付けを行うかどうか (デフォルト: true)
	UseIDF bool

	// SmoothIDF は文書頻度に1を足してゼロ除算を防ぐかどうか (デフォルト: true)
	SmoothIDF bool

	// SublinearTF はtfを 1 + log(tf) に置き換えるかどうか
	SublinearTF bool

	// IDF は各特徴量のIDF値
	IDF []float64
}

var _ model.MatrixTransformer = (*TfidfTransformer)(nil)

// NewTfidfTransformer は新しいTfidfTransformerを作成する
//
// 使用例:
//
//	tfidf := preprocessing.NewTfidfTransformer("l2", true, true, false)
//	Xw, err := tfidf.FitTransform(counts)
func NewTfidfTransformer(norm string, useIDF, smoothIDF, sublinearTF bool) *TfidfTransformer {
	return &TfidfTransformer{
		state:       model.NewStateManager(),
		Norm:        norm,
		UseIDF:      useIDF,
		SmoothIDF:   smoothIDF,
		SublinearTF: sublinearTF,
	}
}

// NewTfidfTransformerDefault はデフォルト設定（l2, idf, smooth）で作成する
func NewTfidfTransformerDefault() *TfidfTransformer {
	return NewTfidfTransformer("l2", true, true, false)
}

// Fit は文書頻度からIDFを計算する
//
// パラメータ:
//   - X: 出現回数行列 (n_samples × n_features)
func (t *TfidfTransformer) Fit(X mat.Matrix) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError("TfidfTransformer.Fit", "empty data", errors.ErrEmptyData)
	}
	if t.Norm != "" && t.Norm != "l2" {
		return errors.NewValidationError("norm", "must be 'l2' or empty", t.Norm)
	}

	t.IDF = make([]float64, c)
	if t.UseIDF {
		df := sparse.FromDense(X).ColumnNonZeroCounts()
		n := float64(r)
		smooth := 0.0
		if t.SmoothIDF {
			smooth = 1
		}
		for j := range t.IDF {
			t.IDF[j] = math.Log((n+smooth)/(float64(df[j])+smooth)) + 1
		}
	} else {
		for j := range t.IDF {
			t.IDF[j] = 1
		}
	}

	t.state.SetDimensions(c, r, 0)
	t.state.SetFitted()
	return nil
}

// Transform は出現回数行列をTF-IDF重みに変換する
func (t *TfidfTransformer) Transform(X mat.Matrix) (mat.Matrix, error) {
	if err := t.state.RequireFitted("TfidfTransformer", "Transform"); err != nil {
		return nil, err
	}
	_, c := X.Dims()
	if err := t.state.RequireFeatures("TfidfTransformer.Transform", c); err != nil {
		return nil, err
	}

	out := sparse.FromDense(X).Map(func(_, j int, v float64) float64 {
		if t.SublinearTF && v > 0 {
			v = 1 + math.Log(v)
		}
		return v * t.IDF[j]
	})
	if t.Norm == "l2" {
		out = out.NormalizeRows()
	}
	return out, nil
}

// FitTransform はFitとTransformを同時に実行する
func (t *TfidfTransformer) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := t.Fit(X); err != nil {
		return nil, err
	}
	return t.Transform(X)
}

// IsFitted は学習済みかどうかを返す
func (t *TfidfTransformer) IsFitted() bool {
	return t.state.IsFitted()
}

// GetParams はハイパーパラメータを返す
func (t *TfidfTransformer) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"norm":         t.Norm,
		"use_idf":      t.UseIDF,
		"smooth_idf":   t.SmoothIDF,
		"sublinear_tf": t.SublinearTF,
	}
}

// String はTF-IDF変換器の文字列表現を返す
func (t *TfidfTransformer) String() string {
	return fmt.Sprintf("TfidfTransformer(norm=%q, use_idf=%t, smooth_idf=%t, sublinear_tf=%t)",
		t.Norm, t.UseIDF, t.SmoothIDF, t.SublinearTF)
}

// RestoreTfidfTransformer は保存されたIDFから学習済み変換器を復元する
func RestoreTfidfTransformer(norm string, sublinearTF bool, idf []float64) (*TfidfTransformer, error) {
	if len(idf) == 0 {
		return nil, errors.NewModelError("TfidfTransformer.Restore", "empty data", errors.ErrEmptyData)
	}
	t := NewTfidfTransformer(norm, true, true, sublinearTF)
	t.IDF = append([]float64(nil), idf...)
	t.state.SetDimensions(len(idf), 0, 0)
	t.state.SetFitted()
	return t, nil
}
