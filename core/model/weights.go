package model

import (
	"encoding/json"
	"fmt"
)

// ModelWeights はモデルの重みを表す構造体（JSONエクスポート用）。
// テキスト分類器では Features が語彙、Classes がクラス名になる。
type ModelWeights struct {
	// ModelType はモデルの種類（LogisticRegression等）
	ModelType string `json:"model_type"`

	// Version はモデルのバージョン（互換性チェック用）
	Version string `json:"version"`

	// Coefficients は重み係数（行: クラス、列: 特徴量）。二値分類では1行
	Coefficients [][]float64 `json:"coefficients"`

	// Intercepts は行ごとの切片
	Intercepts []float64 `json:"intercepts"`

	// Features は特徴量の名前（オプション）
	Features []string `json:"features,omitempty"`

	// Classes はクラスの名前（オプション）
	Classes []string `json:"classes,omitempty"`

	// Hyperparameters はモデルのハイパーパラメータ
	Hyperparameters map[string]interface{} `json:"hyperparameters"`

	// Metadata は追加のメタデータ（学習時の統計等）
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// IsFitted はモデルが学習済みかどうか
	IsFitted bool `json:"is_fitted"`
}

// ToJSON はModelWeightsをJSON形式にシリアライズ
func (mw *ModelWeights) ToJSON() ([]byte, error) {
	return json.MarshalIndent(mw, "", "  ")
}

// FromJSON はJSON形式からModelWeightsをデシリアライズ
func (mw *ModelWeights) FromJSON(data []byte) error {
	return json.Unmarshal(data, mw)
}

// Validate はModelWeightsの妥当性を検証
func (mw *ModelWeights) Validate() error {
	if mw.ModelType == "" {
		return fmt.Errorf("model_type is required")
	}

	if mw.Version == "" {
		return fmt.Errorf("version is required")
	}

	if !mw.IsFitted && len(mw.Coefficients) > 0 {
		return fmt.Errorf("unfitted model should not have coefficients")
	}

	if !mw.IsFitted {
		return nil
	}

	if len(mw.Coefficients) == 0 {
		return fmt.Errorf("fitted model must have coefficients")
	}

	if len(mw.Intercepts) != len(mw.Coefficients) {
		return fmt.Errorf("intercepts has %d rows, coefficients has %d", len(mw.Intercepts), len(mw.Coefficients))
	}

	width := len(mw.Coefficients[0])
	for i, row := range mw.Coefficients {
		if len(row) != width {
			return fmt.Errorf("coefficient row %d has %d columns, want %d", i, len(row), width)
		}
	}

	if len(mw.Features) > 0 && len(mw.Features) != width {
		return fmt.Errorf("features has %d names, coefficients have %d columns", len(mw.Features), width)
	}

	return nil
}

// Clone はModelWeightsのディープコピーを作成
func (mw *ModelWeights) Clone() *ModelWeights {
	clone := &ModelWeights{
		ModelType:       mw.ModelType,
		Version:         mw.Version,
		IsFitted:        mw.IsFitted,
		Coefficients:    make([][]float64, len(mw.Coefficients)),
		Intercepts:      append([]float64(nil), mw.Intercepts...),
		Features:        append([]string(nil), mw.Features...),
		Classes:         append([]string(nil), mw.Classes...),
		Hyperparameters: make(map[string]interface{}),
		Metadata:        make(map[string]interface{}),
	}

	for i, row := range mw.Coefficients {
		clone.Coefficients[i] = append([]float64(nil), row...)
	}

	for k, v := range mw.Hyperparameters {
		clone.Hyperparameters[k] = v
	}

	for k, v := range mw.Metadata {
		clone.Metadata[k] = v
	}

	return clone
}
