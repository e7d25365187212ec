package datasets

import (
	"archive/zip"
	"bytes"
	"context"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/textexplain/pkg/errors"
)

const sampleJSONL = `{"annotator_labels": ["neutral"], "genre": "government", "gold_label": "neutral", "pairID": "31193n", "promptID": "31193", "sentence1": "Conceptually cream skimming has two basic dimensions.", "sentence2": "Product and geography are what make cream skimming work."}
{"annotator_labels": ["entailment"], "genre": "telephone", "gold_label": "entailment", "pairID": "101457e", "promptID": "101457", "sentence1": "you know during the season and i guess", "sentence2": "You lose the things to the following level."}

{"annotator_labels": ["neutral"], "genre": "fiction", "gold_label": "neutral", "pairID": "134793n", "promptID": "134793", "sentence1": "One of our number will carry out your instructions minutely.", "sentence2": "A member of my team will execute your orders."}
`

const sampleTSV = "gold_label\tsentence1\tsentence2\tpairID\tgenre\n" +
	"neutral\tConceptually cream skimming has two basic dimensions.\tProduct and geography.\t31193n\tgovernment\n" +
	"contradiction\tHe said \"no\" twice\tHe agreed.\t1n\ttravel\n"

func TestReadJSONL(t *testing.T) {
	ds, err := ReadJSONL(strings.NewReader(sampleJSONL))
	require.NoError(t, err)
	require.Equal(t, 3, ds.Len())

	first := ds.Records[0]
	assert.Equal(t, "government", first.Genre)
	assert.Equal(t, "neutral", first.GoldLabel)
	assert.Equal(t, "31193n", first.PairID)
	promptID, ok := first.Get("promptID")
	assert.True(t, ok)
	assert.Equal(t, "31193", promptID)
	_, ok = first.Get("annotator_labels")
	assert.False(t, ok, "non-string columns are not kept")
}

func TestReadJSONL_SchemaErrors(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantLine   int
		wantColumn string
	}{
		{
			name:       "missing genre",
			input:      `{"sentence1": "a", "gold_label": "neutral"}`,
			wantLine:   1,
			wantColumn: ColumnGenre,
		},
		{
			name:       "missing gold label on second line",
			input:      "{\"sentence1\": \"a\", \"genre\": \"g\", \"gold_label\": \"neutral\"}\n{\"sentence1\": \"b\", \"genre\": \"g\"}",
			wantLine:   2,
			wantColumn: ColumnGoldLabel,
		},
		{
			name:       "non string sentence",
			input:      `{"sentence1": 3, "genre": "g", "gold_label": "neutral"}`,
			wantLine:   1,
			wantColumn: ColumnSentence1,
		},
		{
			name:     "invalid json",
			input:    `{"sentence1": `,
			wantLine: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadJSONL(strings.NewReader(tt.input))
			var se *errors.SchemaError
			require.True(t, errors.As(err, &se), "got %v", err)
			assert.Equal(t, tt.wantLine, se.Line)
			assert.Equal(t, tt.wantColumn, se.Column)
		})
	}
}

func TestReadTSV(t *testing.T) {
	ds, err := ReadTSV(strings.NewReader(sampleTSV))
	require.NoError(t, err)
	require.Equal(t, 2, ds.Len())
	assert.Equal(t, "government", ds.Records[0].Genre)
	assert.Equal(t, `He said "no" twice`, ds.Records[1].Sentence1)

	_, err = ReadTSV(strings.NewReader("sentence1\tgold_label\nabc\tneutral\n"))
	var se *errors.SchemaError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, ColumnGenre, se.Column)

	_, err = ReadTSV(strings.NewReader(""))
	assert.True(t, errors.As(err, &se))

	_, err = ReadTSV(strings.NewReader("sentence1\tgenre\tgold_label\nonly\tfew\n"))
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 2, se.Line)
}

func TestDataset_FilterColumnsSample(t *testing.T) {
	ds, err := ReadJSONL(strings.NewReader(sampleJSONL))
	require.NoError(t, err)

	neutral := ds.Filter(ColumnGoldLabel, "neutral")
	require.Equal(t, 2, neutral.Len())

	texts, labels, err := neutral.Columns(ColumnSentence1, ColumnGenre)
	require.NoError(t, err)
	assert.Equal(t, []string{"government", "fiction"}, labels)
	assert.True(t, strings.HasPrefix(texts[1], "One of our number"))

	_, _, err = neutral.Columns(ColumnSentence1, "no_such_column")
	var se *errors.SchemaError
	assert.True(t, errors.As(err, &se))

	assert.Equal(t, 0, ds.Filter(ColumnGoldLabel, "nothing").Len())
	assert.Equal(t, 0, ds.Filter("no_such_column", "x").Len())

	s1 := ds.Sample(2, 9)
	s2 := ds.Sample(2, 9)
	assert.Equal(t, 2, s1.Len())
	assert.Equal(t, s1.Records, s2.Records)
	assert.Same(t, ds, ds.Sample(0, 1))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadMNLI(t *testing.T) {
	t.Run("jsonl in release subdirectory", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "multinli_1.0", "multinli_1.0_train.jsonl"), sampleJSONL)

		ds, err := LoadMNLI(dir, "train")
		require.NoError(t, err)
		assert.Equal(t, 3, ds.Len())
		assert.True(t, strings.HasSuffix(ds.Source, ".jsonl"))
	})

	t.Run("jsonl preferred over txt", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "multinli_1.0_dev_matched.txt"), sampleTSV)
		writeFile(t, filepath.Join(dir, "multinli_1.0_dev_matched.jsonl"), sampleJSONL)

		ds, err := LoadMNLI(dir, "dev_matched")
		require.NoError(t, err)
		assert.Equal(t, 3, ds.Len())
	})

	t.Run("txt fallback", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "multinli_1.0_dev_mismatched.txt"), sampleTSV)

		ds, err := LoadMNLI(dir, "dev_mismatched")
		require.NoError(t, err)
		assert.Equal(t, 2, ds.Len())
	})

	t.Run("errors", func(t *testing.T) {
		dir := t.TempDir()

		_, err := LoadMNLI(dir, "test")
		var ve *errors.ValidationError
		assert.True(t, errors.As(err, &ve))

		_, err = LoadMNLI(dir, "train")
		assert.ErrorIs(t, err, fs.ErrNotExist)

		_, err = LoadMNLI(filepath.Join(dir, "missing"), "train")
		assert.ErrorIs(t, err, fs.ErrNotExist)
	})
}

func zipArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestFetch(t *testing.T) {
	archive := zipArchive(t, map[string]string{
		"multinli_1.0/multinli_1.0_train.jsonl":            sampleJSONL,
		"multinli_1.0/multinli_1.0_dev_matched.jsonl":      sampleJSONL,
		"multinli_1.0/README.txt":                          "readme",
		"__MACOSX/multinli_1.0/._multinli_1.0_train.jsonl": "junk",
	})
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		_, _ = w.Write(archive)
	}))
	defer srv.Close()

	dir := t.TempDir()
	got, err := Fetch(context.Background(), srv.URL, dir, "train")
	require.NoError(t, err)
	assert.Equal(t, dir, got)
	assert.Equal(t, int32(1), requests.Load())

	ds, err := LoadMNLI(got, "train")
	require.NoError(t, err)
	assert.Equal(t, 3, ds.Len())
	_, err = os.Stat(filepath.Join(dir, "multinli_1.0", "README.txt"))
	assert.True(t, os.IsNotExist(err))

	_, err = Fetch(context.Background(), srv.URL, dir, "train")
	require.NoError(t, err)
	assert.Equal(t, int32(1), requests.Load(), "present data is not downloaded again")

	leftovers, err := filepath.Glob(filepath.Join(dir, "multinli-*.zip"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestFetch_MissingSplitDownloads(t *testing.T) {
	archive := zipArchive(t, map[string]string{
		"multinli_1.0/multinli_1.0_dev_matched.jsonl": sampleJSONL,
	})
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		_, _ = w.Write(archive)
	}))
	defer srv.Close()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "multinli_1.0_train.jsonl"), []byte(sampleJSONL), 0o644))

	_, err := Fetch(context.Background(), srv.URL, dir, "")
	require.NoError(t, err)
	assert.Equal(t, int32(0), requests.Load(), "any split satisfies an empty split")

	_, err = Fetch(context.Background(), srv.URL, dir, "dev_matched")
	require.NoError(t, err)
	assert.Equal(t, int32(1), requests.Load())
	ds, err := LoadMNLI(dir, "dev_matched")
	require.NoError(t, err)
	assert.Equal(t, 3, ds.Len())
}

func TestFetch_Errors(t *testing.T) {
	notFound := httptest.NewServer(http.NotFoundHandler())
	defer notFound.Close()
	_, err := Fetch(context.Background(), notFound.URL, t.TempDir(), "train")
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Fetch(ctx, notFound.URL, t.TempDir(), "")
	assert.ErrorIs(t, err, context.Canceled)
}
