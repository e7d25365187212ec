package preprocessing

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/textexplain/pkg/errors"
)

func TestLabelEncoderFitTransform(t *testing.T) {
	tests := []struct {
		name        string
		labels      []string
		wantClasses []string
		wantCodes   []int
	}{
		{
			name:        "genres sorted lexicographically",
			labels:      []string{"travel", "fiction", "government", "fiction", "slate"},
			wantClasses: []string{"fiction", "government", "slate", "travel"},
			wantCodes:   []int{3, 0, 1, 0, 2},
		},
		{
			name:        "case sensitive ordering",
			labels:      []string{"b", "B", "a"},
			wantClasses: []string{"B", "a", "b"},
			wantCodes:   []int{2, 0, 1},
		},
		{
			name:        "single class",
			labels:      []string{"telephone", "telephone"},
			wantClasses: []string{"telephone"},
			wantCodes:   []int{0, 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc := NewLabelEncoder()
			codes, err := enc.FitTransform(tt.labels)
			require.NoError(t, err)

			if diff := cmp.Diff(tt.wantClasses, enc.Classes()); diff != "" {
				t.Errorf("Classes() mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantCodes, codes); diff != "" {
				t.Errorf("codes mismatch (-want +got):\n%s", diff)
			}
			assert.Equal(t, len(tt.wantClasses), enc.NClasses())

			back, err := enc.InverseTransform(codes)
			require.NoError(t, err)
			assert.Equal(t, tt.labels, back)
		})
	}
}

func TestLabelEncoderUnknownLabel(t *testing.T) {
	enc := NewLabelEncoder()
	require.NoError(t, enc.Fit([]string{"fiction", "slate"}))

	_, err := enc.Transform([]string{"slate", "oup", "travel", "oup"})
	var unknown *errors.UnknownCategoryError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, []string{"oup", "travel"}, unknown.Unknown)
}

func TestLabelEncoderErrors(t *testing.T) {
	enc := NewLabelEncoder()

	_, err := enc.Transform([]string{"a"})
	var notFitted *errors.NotFittedError
	assert.True(t, errors.As(err, &notFitted))

	_, err = enc.InverseTransform([]int{0})
	assert.True(t, errors.As(err, &notFitted))

	var valErr *errors.ValueError
	assert.True(t, errors.As(enc.Fit(nil), &valErr))

	require.NoError(t, enc.Fit([]string{"a", "b"}))
	_, err = enc.InverseTransform([]int{0, 2})
	assert.True(t, errors.As(err, &valErr))
	_, err = enc.InverseTransform([]int{-1})
	assert.True(t, errors.As(err, &valErr))
}

func TestNewLabelEncoderFromClasses(t *testing.T) {
	enc, err := NewLabelEncoderFromClasses([]string{"fiction", "travel"})
	require.NoError(t, err)
	codes, err := enc.Transform([]string{"travel"})
	require.NoError(t, err)
	assert.Equal(t, []int{1}, codes)

	_, err = NewLabelEncoderFromClasses([]string{"a", "a"})
	assert.Error(t, err)
}
