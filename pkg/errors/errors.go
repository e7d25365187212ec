// Package errors はtextexplain全体で使う型付きエラーと警告を提供します。
//
// 失敗は戻り値のエラーとして返し、処理を止めない注意事項（収束しなかった、
// 指標が定義できない等）は Warn で報告します。エラー型はいずれも
// cockroachdb/errors のスタックトレース付きで生成され、As で取り出せます。
package errors

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

var (
	warnMu sync.Mutex
	// 既定では標準ロガーに一行で出す
	warnHandler = func(w error) { log.Printf("textexplain: warning: %v", w) }
	// pkg/log が設定する。pkg/log からは import できないので関数で受け取る
	structuredWarn func(warning error)
)

// SetWarningHandler は Warn の出力先を差し替えます。テストで警告を
// 集めたいときや、完全に黙らせたいときに使います。
//
//	var got []error
//	errors.SetWarningHandler(func(w error) { got = append(got, w) })
func SetWarningHandler(handler func(w error)) {
	warnMu.Lock()
	defer warnMu.Unlock()
	warnHandler = handler
}

// SetZerologWarnFunc は構造化ログへの転送関数を登録します。nil で解除。
// 登録中は SetWarningHandler のハンドラより優先されます。
func SetZerologWarnFunc(warnFunc func(warning error)) {
	warnMu.Lock()
	defer warnMu.Unlock()
	structuredWarn = warnFunc
}

// Warn は警告を報告します。処理は継続されます。
func Warn(w error) {
	warnMu.Lock()
	defer warnMu.Unlock()
	switch {
	case structuredWarn != nil:
		structuredWarn(w)
	case warnHandler != nil:
		warnHandler(w)
	}
}

// ConvergenceWarning はソルバーが max_iter 以内に収束しなかったことを表します。
// 係数は最後の反復のものが使われます。
type ConvergenceWarning struct {
	Algorithm  string
	Iterations int
	Message    string
}

func (w *ConvergenceWarning) Error() string {
	msg := w.Message
	if msg == "" {
		msg = "increase max_iter or scale the features"
	}
	return fmt.Sprintf("%s did not converge in %d iterations: %s", w.Algorithm, w.Iterations, msg)
}

// MarshalZerologObject implements zerolog.LogObjectMarshaler.
func (w *ConvergenceWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("type", "ConvergenceWarning").
		Str("algorithm", w.Algorithm).
		Int("iterations", w.Iterations).
		Str("message", w.Message)
}

func NewConvergenceWarning(algorithm string, iterations int, message string) *ConvergenceWarning {
	return &ConvergenceWarning{Algorithm: algorithm, Iterations: iterations, Message: message}
}

// UndefinedMetricWarning は分母が0で指標が定義できず、Result で
// 置き換えたことを表します（予測が一度も出なかったクラスの precision など）。
type UndefinedMetricWarning struct {
	Metric    string
	Condition string
	Result    float64
}

func (w *UndefinedMetricWarning) Error() string {
	return fmt.Sprintf("%s is undefined (%s); using %g", w.Metric, w.Condition, w.Result)
}

// MarshalZerologObject implements zerolog.LogObjectMarshaler.
func (w *UndefinedMetricWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("type", "UndefinedMetricWarning").
		Str("metric", w.Metric).
		Str("condition", w.Condition).
		Float64("result", w.Result)
}

func NewUndefinedMetricWarning(metric, condition string, result float64) *UndefinedMetricWarning {
	return &UndefinedMetricWarning{Metric: metric, Condition: condition, Result: result}
}

// NotFittedError は Fit 前に学習済み状態が必要なメソッドを呼んだときのエラーです。
type NotFittedError struct {
	ModelName string
	Method    string
}

func (e *NotFittedError) Error() string {
	return fmt.Sprintf("textexplain: %s.%s called before Fit", e.ModelName, e.Method)
}

// MarshalZerologObject implements zerolog.LogObjectMarshaler.
func (e *NotFittedError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("type", "NotFittedError").
		Str("model_name", e.ModelName).
		Str("method", e.Method)
}

func NewNotFittedError(modelName, method string) error {
	return errors.WithStack(&NotFittedError{ModelName: modelName, Method: method})
}

// DimensionError は行数（Axis 0）または特徴量数（Axis 1）の不一致です。
type DimensionError struct {
	Op       string
	Expected int
	Got      int
	Axis     int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("textexplain: %s: expected %d %s, got %d", e.Op, e.Expected, e.axisName(), e.Got)
}

func (e *DimensionError) axisName() string {
	if e.Axis == 0 {
		return "rows"
	}
	return "features"
}

// MarshalZerologObject implements zerolog.LogObjectMarshaler.
func (e *DimensionError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("type", "DimensionError").
		Str("operation", e.Op).
		Int("expected", e.Expected).
		Int("got", e.Got).
		Str("axis", e.axisName())
}

func NewDimensionError(op string, expected, got, axis int) error {
	return errors.WithStack(&DimensionError{Op: op, Expected: expected, Got: got, Axis: axis})
}

// ValidationError は設定値やオプションが許容範囲外のときのエラーです。
// ParamName には設定キー（"split.test_size" など）かオプション名が入ります。
type ValidationError struct {
	ParamName string
	Reason    string
	Value     interface{}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("textexplain: invalid %s: %s (got %v)", e.ParamName, e.Reason, e.Value)
}

// MarshalZerologObject implements zerolog.LogObjectMarshaler.
func (e *ValidationError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("type", "ValidationError").
		Str("param_name", e.ParamName).
		Str("reason", e.Reason).
		Interface("value", e.Value)
}

func NewValidationError(param, reason string, value interface{}) error {
	return errors.WithStack(&ValidationError{ParamName: param, Reason: reason, Value: value})
}

// ValueError はデータの中身が処理できないときのエラーです
// （フィルタ後に0件、範囲外のクラスコードなど）。
type ValueError struct {
	Op      string
	Message string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("textexplain: %s: %s", e.Op, e.Message)
}

func NewValueError(op, message string) error {
	return errors.WithStack(&ValueError{Op: op, Message: message})
}

// UnknownCategoryError はエンコーダが学習していないラベルを受け取ったときのエラーです。
type UnknownCategoryError struct {
	Op      string
	Unknown []string // 重複なし・ソート済み
}

func (e *UnknownCategoryError) Error() string {
	return fmt.Sprintf("textexplain: %s: unseen labels [%s]", e.Op, strings.Join(e.Unknown, ", "))
}

// MarshalZerologObject implements zerolog.LogObjectMarshaler.
func (e *UnknownCategoryError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("type", "UnknownCategoryError").
		Str("operation", e.Op).
		Strs("unknown", e.Unknown)
}

func NewUnknownCategoryError(op string, unknown []string) error {
	set := make(map[string]struct{}, len(unknown))
	for _, u := range unknown {
		set[u] = struct{}{}
	}
	labels := make([]string, 0, len(set))
	for u := range set {
		labels = append(labels, u)
	}
	sort.Strings(labels)
	return errors.WithStack(&UnknownCategoryError{Op: op, Unknown: labels})
}

// SchemaError はデータセットの行に必要な列がない、または型が違うときのエラーです。
type SchemaError struct {
	Source string
	Line   int // 1始まり。0 はファイル全体（ヘッダなど）
	Column string
	Reason string
}

func (e *SchemaError) Error() string {
	loc := e.Source
	if e.Line > 0 {
		loc = fmt.Sprintf("%s:%d", e.Source, e.Line)
	}
	return fmt.Sprintf("textexplain: %s: column %q: %s", loc, e.Column, e.Reason)
}

// MarshalZerologObject implements zerolog.LogObjectMarshaler.
func (e *SchemaError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("type", "SchemaError").
		Str("source", e.Source).
		Int("line", e.Line).
		Str("column", e.Column).
		Str("reason", e.Reason)
}

func NewSchemaError(source string, line int, column, reason string) error {
	return errors.WithStack(&SchemaError{Source: source, Line: line, Column: column, Reason: reason})
}

// ModelError は推定器の内部処理（保存・復元・最適化）の失敗を包みます。
type ModelError struct {
	Op   string
	Kind string
	Err  error
}

func (e *ModelError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("textexplain: %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("textexplain: %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *ModelError) Unwrap() error { return e.Err }

func NewModelError(op, kind string, err error) error {
	return errors.WithStack(&ModelError{Op: op, Kind: kind, Err: err})
}

// NumericalInstabilityError は損失や勾配に NaN / Inf が現れたときのエラーです。
type NumericalInstabilityError struct {
	Operation string
	Values    []float64
	Context   map[string]interface{}
	Iteration int
}

func (e *NumericalInstabilityError) Error() string {
	shown := e.Values
	more := ""
	if len(shown) > 5 {
		shown, more = shown[:5], ", ..."
	}
	parts := make([]string, len(shown))
	for i, v := range shown {
		parts[i] = fmt.Sprintf("%.6g", v)
	}
	return fmt.Sprintf("textexplain: non-finite value in %s at iteration %d: [%s%s]",
		e.Operation, e.Iteration, strings.Join(parts, ", "), more)
}

func NewNumericalInstabilityError(operation string, values []float64, iteration int) error {
	return errors.WithStack(&NumericalInstabilityError{
		Operation: operation,
		Values:    values,
		Iteration: iteration,
		Context:   map[string]interface{}{},
	})
}

// InputShapeError は学習時と異なる形状の入力を受け取ったときのエラーです。
// Phase は "prediction" や "restore" など。
type InputShapeError struct {
	Phase    string
	Expected []int
	Got      []int
	Feature  string
}

func (e *InputShapeError) Error() string {
	where := e.Phase
	if e.Feature != "" {
		where += " (" + e.Feature + ")"
	}
	return fmt.Sprintf("textexplain: shape mismatch in %s: expected %v, got %v", where, e.Expected, e.Got)
}

func NewInputShapeError(phase string, expected, got []int) error {
	return errors.WithStack(&InputShapeError{Phase: phase, Expected: expected, Got: got})
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool { return errors.Is(err, target) }

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool { return errors.As(err, target) }

// Wrap annotates err with message and a stack trace.
func Wrap(err error, message string) error { return errors.Wrap(err, message) }

// Wrapf is Wrap with a format string.
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// New returns an error carrying a stack trace.
func New(message string) error { return errors.New(message) }

// Newf is New with a format string.
func Newf(format string, args ...interface{}) error { return errors.Newf(format, args...) }

// WithStack attaches a stack trace to err.
func WithStack(err error) error { return errors.WithStack(err) }

var (
	// ErrEmptyData は入力が0件のときに返されます。
	ErrEmptyData = New("empty data")

	// ErrEmptyVocabulary はストップワード除去や min_df の結果、語彙が空になったときに返されます。
	ErrEmptyVocabulary = New("empty vocabulary; perhaps the documents only contain stop words")
)
