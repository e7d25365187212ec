package model

import "gonum.org/v1/gonum/mat"

// Fitter は学習可能な分類モデルのインターフェース。
// y はLabelEncoderで符号化済みのクラスコード（0..k-1）。
type Fitter interface {
	// Fit はモデルを訓練データで学習させる
	Fit(X mat.Matrix, y []int) error
}

// Predictor は予測可能なモデルのインターフェース
type Predictor interface {
	// Predict は入力データに対するクラスコードを返す
	Predict(X mat.Matrix) ([]int, error)
}

// LinearModel は線形モデルのインターフェース
type LinearModel interface {
	// Coef は学習された係数を返す（クラス数 × 特徴量数）
	Coef() *mat.Dense
	// Intercept は学習された切片を返す
	Intercept() []float64
}
