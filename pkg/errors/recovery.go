package errors

import (
	"fmt"
	"runtime/debug"

	"github.com/rs/zerolog"
)

// PanicError は recover したパニックをエラーとして運びます。
// グリッドサーチのワーカーや CLI の説明処理で、一件の入力が
// プロセス全体を落とさないようにするために使います。
type PanicError struct {
	PanicValue interface{}
	StackTrace string
	Operation  string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("textexplain: panic in %s: %v", e.Operation, e.PanicValue)
}

// Unwrap exposes the panic value when it was itself an error.
func (e *PanicError) Unwrap() error {
	err, _ := e.PanicValue.(error)
	return err
}

// String includes the stack captured at recovery.
func (e *PanicError) String() string {
	return e.Error() + "\n" + e.StackTrace
}

// MarshalZerologObject implements zerolog.LogObjectMarshaler.
func (e *PanicError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("type", "PanicError").
		Str("operation", e.Operation).
		Str("panic", fmt.Sprint(e.PanicValue))
}

func NewPanicError(operation string, panicValue interface{}) *PanicError {
	return &PanicError{
		PanicValue: panicValue,
		StackTrace: string(debug.Stack()),
		Operation:  operation,
	}
}

// Recover は defer で直接呼び、パニックを名前付き戻り値 err に変換します。
//
//	func fitFold(...) (err error) {
//	    defer errors.Recover(&err, "GridSearchCV.fit")
//	    ...
//	}
//
// err に既にエラーが入っていれば、パニックと元のエラーの両方を残します。
func Recover(err *error, operation string) {
	r := recover()
	if r == nil {
		return
	}
	if *err != nil {
		*err = Wrapf(*err, "panic in %s: %v", operation, r)
		return
	}
	*err = NewPanicError(operation, r)
}

// SafeExecute は fn を実行し、パニックを *PanicError として返します。
func SafeExecute(operation string, fn func() error) (err error) {
	defer Recover(&err, operation)
	return fn()
}

// SafeCall は値も返す関数向けの SafeExecute です。パニック時は T のゼロ値を返します。
func SafeCall[T any](operation string, fn func() (T, error)) (out T, err error) {
	defer Recover(&err, operation)
	return fn()
}
