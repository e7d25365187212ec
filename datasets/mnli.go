// Package datasets reads labeled sentence collections in the MultiNLI
// release layout.
package datasets

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/YuminosukeSato/textexplain/pkg/errors"
	"github.com/YuminosukeSato/textexplain/pkg/log"
)

// Column names of the MultiNLI release files.
const (
	ColumnSentence1 = "sentence1"
	ColumnSentence2 = "sentence2"
	ColumnGenre     = "genre"
	ColumnGoldLabel = "gold_label"
	ColumnPairID    = "pairID"
)

// requiredColumns must be present in every row or header.
var requiredColumns = []string{ColumnSentence1, ColumnGenre, ColumnGoldLabel}

// Splits are the split names LoadMNLI accepts.
var Splits = []string{"train", "dev_matched", "dev_mismatched"}

// Record is one sentence pair with its annotations.
// Columns other than the named ones are kept in Extra.
type Record struct {
	Sentence1 string
	Sentence2 string
	Genre     string
	GoldLabel string
	PairID    string
	Extra     map[string]string
}

// Get returns the value of column name.
func (r Record) Get(name string) (string, bool) {
	switch name {
	case ColumnSentence1:
		return r.Sentence1, true
	case ColumnSentence2:
		return r.Sentence2, true
	case ColumnGenre:
		return r.Genre, true
	case ColumnGoldLabel:
		return r.GoldLabel, true
	case ColumnPairID:
		return r.PairID, true
	}
	v, ok := r.Extra[name]
	return v, ok
}

func (r *Record) set(name, value string) {
	switch name {
	case ColumnSentence1:
		r.Sentence1 = value
	case ColumnSentence2:
		r.Sentence2 = value
	case ColumnGenre:
		r.Genre = value
	case ColumnGoldLabel:
		r.GoldLabel = value
	case ColumnPairID:
		r.PairID = value
	default:
		if r.Extra == nil {
			r.Extra = make(map[string]string)
		}
		r.Extra[name] = value
	}
}

// Dataset is an ordered collection of records.
type Dataset struct {
	Source  string
	Records []Record
}

// Len returns the number of records.
func (d *Dataset) Len() int { return len(d.Records) }

// Filter keeps the records whose column equals value.
// Records without the column are dropped.
func (d *Dataset) Filter(column, value string) *Dataset {
	out := &Dataset{Source: d.Source}
	for _, r := range d.Records {
		if v, ok := r.Get(column); ok && v == value {
			out.Records = append(out.Records, r)
		}
	}
	return out
}

// Columns extracts two parallel sequences, typically the document text and
// its category label.
func (d *Dataset) Columns(textColumn, labelColumn string) (texts, labels []string, err error) {
	texts = make([]string, len(d.Records))
	labels = make([]string, len(d.Records))
	for i, r := range d.Records {
		var ok bool
		if texts[i], ok = r.Get(textColumn); !ok {
			return nil, nil, errors.NewSchemaError(d.Source, i+1, textColumn, "column not present")
		}
		if labels[i], ok = r.Get(labelColumn); !ok {
			return nil, nil, errors.NewSchemaError(d.Source, i+1, labelColumn, "column not present")
		}
	}
	return texts, labels, nil
}

// Sample returns n records drawn without replacement using seed, keeping
// their original order. n <= 0 or n >= Len returns d unchanged.
func (d *Dataset) Sample(n int, seed uint64) *Dataset {
	if n <= 0 || n >= len(d.Records) {
		return d
	}
	r := rand.New(rand.NewPCG(seed, seed))
	picked := r.Perm(len(d.Records))[:n]
	keep := make([]bool, len(d.Records))
	for _, i := range picked {
		keep[i] = true
	}
	out := &Dataset{Source: d.Source, Records: make([]Record, 0, n)}
	for i, rec := range d.Records {
		if keep[i] {
			out.Records = append(out.Records, rec)
		}
	}
	return out
}

// ReadJSONL decodes one JSON object per line. Blank lines are skipped.
// A row lacking a required column is a SchemaError naming the line.
func ReadJSONL(r io.Reader) (*Dataset, error) {
	return readJSONL(r, "jsonl")
}

func readJSONL(r io.Reader, source string) (*Dataset, error) {
	ds := &Dataset{Source: source}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}
		var obj map[string]interface{}
		if err := json.Unmarshal([]byte(raw), &obj); err != nil {
			return nil, errors.NewSchemaError(source, line, "", fmt.Sprintf("invalid JSON: %v", err))
		}
		var rec Record
		for k, v := range obj {
			if s, ok := v.(string); ok {
				rec.set(k, s)
			}
		}
		for _, col := range requiredColumns {
			v, ok := obj[col]
			if !ok {
				return nil, errors.NewSchemaError(source, line, col, "missing required column")
			}
			if _, isString := v.(string); !isString {
				return nil, errors.NewSchemaError(source, line, col, "value is not a string")
			}
		}
		ds.Records = append(ds.Records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrapf(err, "read %s", source)
	}
	return ds, nil
}

// ReadTSV decodes a tab separated file with a header row.
func ReadTSV(r io.Reader) (*Dataset, error) {
	return readTSV(r, "tsv")
}

func readTSV(r io.Reader, source string) (*Dataset, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = false

	header, err := cr.Read()
	if err == io.EOF {
		return nil, errors.NewSchemaError(source, 1, "", "missing header row")
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read %s header", source)
	}
	present := make(map[string]bool, len(header))
	for _, h := range header {
		present[h] = true
	}
	for _, col := range requiredColumns {
		if !present[col] {
			return nil, errors.NewSchemaError(source, 1, col, "missing required column in header")
		}
	}

	ds := &Dataset{Source: source}
	line := 1
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, errors.NewSchemaError(source, line, "", err.Error())
		}
		if len(row) < len(header) {
			return nil, errors.NewSchemaError(source, line, header[len(row)],
				fmt.Sprintf("expected %d fields, got %d", len(header), len(row)))
		}
		var rec Record
		for i, h := range header {
			rec.set(h, row[i])
		}
		ds.Records = append(ds.Records, rec)
	}
	return ds, nil
}

func validSplit(split string) bool {
	for _, s := range Splits {
		if s == split {
			return true
		}
	}
	return false
}

// candidatePaths lists where a split file may live, in lookup order.
func candidatePaths(dir, split string) []string {
	base := "multinli_1.0_" + split
	var paths []string
	for _, ext := range []string{".jsonl", ".txt"} {
		paths = append(paths,
			filepath.Join(dir, base+ext),
			filepath.Join(dir, "multinli_1.0", base+ext),
		)
	}
	return paths
}

// FindSplit returns the path of the split file under dir.
func FindSplit(dir, split string) (string, error) {
	if !validSplit(split) {
		return "", errors.NewValidationError("split", "must be one of "+strings.Join(Splits, ", "), split)
	}
	if _, err := os.Stat(dir); err != nil {
		return "", errors.Wrapf(err, "data directory %s", dir)
	}
	for _, p := range candidatePaths(dir, split) {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", errors.Wrapf(fs.ErrNotExist, "no multinli_1.0_%s.jsonl or .txt under %s", split, dir)
}

// LoadMNLI reads one split of the MultiNLI corpus from dir. JSONL files are
// preferred over the tab separated .txt files.
func LoadMNLI(dir, split string) (*Dataset, error) {
	start := time.Now()
	path, err := FindSplit(dir, split)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	var ds *Dataset
	if strings.HasSuffix(path, ".jsonl") {
		ds, err = readJSONL(f, path)
	} else {
		ds, err = readTSV(f, path)
	}
	if err != nil {
		return nil, err
	}

	log.GetLoggerWithName("datasets").Info("Dataset loaded",
		log.OperationKey, log.OperationLoad,
		log.PathKey, path,
		log.SplitKey, split,
		log.SamplesKey, ds.Len(),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return ds, nil
}
