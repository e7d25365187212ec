package preprocessing

import (
	"fmt"
	"sort"

	"github.com/YuminosukeSato/textexplain/core/model"
	"github.com/YuminosukeSato/textexplain/pkg/errors"
)

// LabelEncoder はscikit-learn互換のラベルエンコーダー。
// 文字列ラベルを 0..k-1 のクラスコードに変換する。
// クラスは辞書順にソートされ、コードはその位置になる。
type LabelEncoder struct {
	state *model.StateManager

	// ClassesList は学習されたクラス（辞書順）。gobで保存するため公開
	ClassesList []string

	index map[string]int
}

var _ model.LabelTransformer = (*LabelEncoder)(nil)

// NewLabelEncoder は新しいLabelEncoderを作成する
//
// 使用例:
//
//	enc := preprocessing.NewLabelEncoder()
//	yTrain, err := enc.FitTransform(trainLabels)
//	yTest, err := enc.Transform(testLabels)
func NewLabelEncoder() *LabelEncoder {
	return &LabelEncoder{state: model.NewStateManager()}
}

// NewLabelEncoderFromClasses は保存済みのクラス一覧から学習済みエンコーダーを復元する
func NewLabelEncoderFromClasses(classes []string) (*LabelEncoder, error) {
	e := NewLabelEncoder()
	if err := e.Fit(classes); err != nil {
		return nil, err
	}
	if len(e.ClassesList) != len(classes) {
		return nil, errors.NewValueError("LabelEncoder.Restore", "classes contain duplicates")
	}
	return e, nil
}

// Fit はラベルの一意な値を辞書順に並べて記憶する
func (e *LabelEncoder) Fit(labels []string) error {
	if len(labels) == 0 {
		return errors.NewValueError("LabelEncoder.Fit", "y has 0 samples")
	}

	seen := make(map[string]struct{}, 16)
	classes := make([]string, 0, 16)
	for _, l := range labels {
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		classes = append(classes, l)
	}
	sort.Strings(classes)

	e.ClassesList = classes
	e.index = make(map[string]int, len(classes))
	for i, c := range classes {
		e.index[c] = i
	}
	e.state.SetDimensions(0, len(labels), len(classes))
	e.state.SetFitted()
	return nil
}

// Transform はラベルをクラスコードに変換する。
// 学習時に存在しなかったラベルが含まれる場合は UnknownCategoryError を返す。
func (e *LabelEncoder) Transform(labels []string) ([]int, error) {
	if err := e.state.RequireFitted("LabelEncoder", "Transform"); err != nil {
		return nil, err
	}

	codes := make([]int, len(labels))
	var unknown []string
	for i, l := range labels {
		code, ok := e.index[l]
		if !ok {
			unknown = append(unknown, l)
			continue
		}
		codes[i] = code
	}
	if len(unknown) > 0 {
		return nil, errors.NewUnknownCategoryError("LabelEncoder.Transform", unknown)
	}
	return codes, nil
}

// FitTransform はFitとTransformを同時に実行する
func (e *LabelEncoder) FitTransform(labels []string) ([]int, error) {
	if err := e.Fit(labels); err != nil {
		return nil, err
	}
	return e.Transform(labels)
}

// InverseTransform はクラスコードを元のラベルに戻す
func (e *LabelEncoder) InverseTransform(codes []int) ([]string, error) {
	if err := e.state.RequireFitted("LabelEncoder", "InverseTransform"); err != nil {
		return nil, err
	}

	out := make([]string, len(codes))
	for i, c := range codes {
		if c < 0 || c >= len(e.ClassesList) {
			return nil, errors.NewValueError("LabelEncoder.InverseTransform",
				fmt.Sprintf("code %d is out of range [0, %d)", c, len(e.ClassesList)))
		}
		out[i] = e.ClassesList[c]
	}
	return out, nil
}

// Classes は学習されたクラスのコピーを返す
func (e *LabelEncoder) Classes() []string {
	return append([]string(nil), e.ClassesList...)
}

// NClasses はクラス数を返す
func (e *LabelEncoder) NClasses() int {
	return len(e.ClassesList)
}

// IsFitted は学習済みかどうかを返す
func (e *LabelEncoder) IsFitted() bool {
	return e.state.IsFitted()
}

// String はエンコーダーの文字列表現を返す
func (e *LabelEncoder) String() string {
	if !e.IsFitted() {
		return "LabelEncoder()"
	}
	return fmt.Sprintf("LabelEncoder(classes=%v)", e.ClassesList)
}
