package errors

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func explainDocument(doc string) (err error) {
	defer Recover(&err, "ExplainLocal")
	var weights []float64
	_ = weights[len(doc)]
	return nil
}

func TestRecoverConvertsPanic(t *testing.T) {
	err := explainDocument("senate")

	var pe *PanicError
	require.True(t, As(err, &pe))
	assert.Equal(t, "ExplainLocal", pe.Operation)
	assert.Contains(t, pe.Error(), "textexplain: panic in ExplainLocal: runtime error: index out of range")
	assert.Contains(t, pe.String(), "explainDocument")
	assert.Error(t, pe.Unwrap(), "runtime errors are errors")
}

func TestRecoverKeepsEarlierError(t *testing.T) {
	fn := func() (err error) {
		defer Recover(&err, "Save")
		defer func() {
			err = io.ErrShortWrite
			panic("close failed")
		}()
		return nil
	}

	err := fn()
	require.Error(t, err)
	assert.True(t, Is(err, io.ErrShortWrite))
	assert.Contains(t, err.Error(), "panic in Save: close failed")
}

func TestSafeExecute(t *testing.T) {
	assert.NoError(t, SafeExecute("noop", func() error { return nil }))

	err := SafeExecute("vectorize", func() error { return ErrEmptyVocabulary })
	assert.ErrorIs(t, err, ErrEmptyVocabulary)

	err = SafeExecute("render.Plot", func() error { panic(io.EOF) })
	var pe *PanicError
	require.True(t, As(err, &pe))
	assert.Equal(t, "render.Plot", pe.Operation)
	assert.True(t, Is(err, io.EOF), "error panic values unwrap")
}

func TestSafeCall(t *testing.T) {
	score, err := SafeCall("Score", func() (float64, error) { return 0.75, nil })
	require.NoError(t, err)
	assert.Equal(t, 0.75, score)

	score, err = SafeCall("Score", func() (float64, error) { panic("NaN loss") })
	assert.Zero(t, score)
	var pe *PanicError
	require.True(t, As(err, &pe))
	assert.Equal(t, "NaN loss", pe.PanicValue)
	assert.Nil(t, pe.Unwrap())
}

func BenchmarkSafeCallNoPanic(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_, _ = SafeCall("bench", func() (int, error) { return i, nil })
	}
}
