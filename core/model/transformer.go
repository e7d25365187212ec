package model

import "gonum.org/v1/gonum/mat"

// TextTransformer は文書集合を特徴量行列に変換するインターフェース
type TextTransformer interface {
	// Fit は語彙などの変換パラメータを学習する
	Fit(docs []string) error

	// Transform は文書を（文書数 × 語彙数）の行列に変換する
	Transform(docs []string) (mat.Matrix, error)

	// FitTransform はFitとTransformを同時に実行する
	FitTransform(docs []string) (mat.Matrix, error)

	// FeatureNames は列インデックス順の語彙を返す
	FeatureNames() ([]string, error)
}

// MatrixTransformer は行列を同じ形状の行列へ変換するインターフェース（TF-IDF重み付けなど）
type MatrixTransformer interface {
	Fit(X mat.Matrix) error
	Transform(X mat.Matrix) (mat.Matrix, error)
	FitTransform(X mat.Matrix) (mat.Matrix, error)
}

// LabelTransformer は文字列ラベルとクラスコードを相互変換するインターフェース
type LabelTransformer interface {
	Fit(labels []string) error
	Transform(labels []string) ([]int, error)
	FitTransform(labels []string) ([]int, error)
	InverseTransform(codes []int) ([]string, error)
}
