// Package tracking は実行結果（メトリクス、最適ハイパーパラメータ、説明）をSQLiteに記録する。
package tracking

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/YuminosukeSato/textexplain/interpret"
	"github.com/YuminosukeSato/textexplain/pkg/errors"
	"github.com/YuminosukeSato/textexplain/pkg/log"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	created_at TEXT NOT NULL,
	dataset TEXT NOT NULL,
	split TEXT NOT NULL,
	n_train INTEGER NOT NULL,
	n_test INTEGER NOT NULL,
	n_features INTEGER NOT NULL,
	best_params TEXT
);

CREATE TABLE IF NOT EXISTS metrics (
	run_id TEXT NOT NULL REFERENCES runs(id),
	name TEXT NOT NULL,
	value REAL NOT NULL,
	PRIMARY KEY (run_id, name)
);

CREATE TABLE IF NOT EXISTS explanations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL REFERENCES runs(id),
	doc_hash TEXT NOT NULL,
	document TEXT NOT NULL,
	label TEXT NOT NULL,
	probability REAL NOT NULL,
	intercept REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_explanations_run ON explanations(run_id);

CREATE TABLE IF NOT EXISTS explanation_terms (
	explanation_id INTEGER NOT NULL REFERENCES explanations(id),
	rank INTEGER NOT NULL,
	term TEXT NOT NULL,
	value REAL NOT NULL,
	importance REAL NOT NULL,
	PRIMARY KEY (explanation_id, rank)
);
`

// timeLayout is fixed width so that created_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Run は1回の実行のメタデータ
type Run struct {
	ID         string
	CreatedAt  time.Time
	Dataset    string
	Split      string
	NTrain     int
	NTest      int
	NFeatures  int
	BestParams map[string]interface{}
}

// StoredExplanation is a local explanation read back from the store.
type StoredExplanation struct {
	DocHash     string
	Document    string
	Label       string
	Probability float64
	Intercept   float64
	Terms       []interpret.TermImportance
}

// Store is a SQLite-backed run store. It is safe for concurrent use.
type Store struct {
	db     *sql.DB
	mu     sync.Mutex
	path   string
	logger log.Logger
}

// Open はpathのデータベースを開き、テーブルを作成する。
// 親ディレクトリが無ければ作成する。
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, errors.NewValidationError("output.db", "database path must not be empty", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "create database directory")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open database %s", path)
	}
	// one writer at a time
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "create tables")
	}
	s := &Store{db: db, path: path, logger: log.GetLoggerWithName("tracking")}
	s.logger.Debug("Run store opened", log.PathKey, path)
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateRun inserts r. CreatedAt defaults to now.
func (s *Store) CreateRun(ctx context.Context, r *Run) error {
	if r.ID == "" {
		return errors.NewValidationError("run.id", "must not be empty", r.ID)
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	params, err := json.Marshal(r.BestParams)
	if err != nil {
		return errors.Wrap(err, "encode best params")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, created_at, dataset, split, n_train, n_test, n_features, best_params)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.CreatedAt.UTC().Format(timeLayout), r.Dataset, r.Split,
		r.NTrain, r.NTest, r.NFeatures, string(params))
	if err != nil {
		return errors.Wrapf(err, "insert run %s", r.ID)
	}
	s.logger.Info("Run recorded", log.RunIDKey, r.ID, log.SamplesKey, r.NTrain+r.NTest)
	return nil
}

// UpdateBestParams replaces the best hyperparameters of a run.
func (s *Store) UpdateBestParams(ctx context.Context, runID string, params map[string]interface{}) error {
	data, err := json.Marshal(params)
	if err != nil {
		return errors.Wrap(err, "encode best params")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `UPDATE runs SET best_params = ? WHERE id = ?`, string(data), runID)
	if err != nil {
		return errors.Wrapf(err, "update run %s", runID)
	}
	return requireRow(res, runID)
}

func requireRow(res sql.Result, runID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if n == 0 {
		return errors.NewValueError("tracking", "unknown run "+runID)
	}
	return nil
}

// GetRun reads a run by id.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, created_at, dataset, split, n_train, n_test, n_features, best_params
		 FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewValueError("tracking", "unknown run "+id)
	}
	return r, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var (
		r       Run
		created string
		params  sql.NullString
	)
	if err := row.Scan(&r.ID, &created, &r.Dataset, &r.Split, &r.NTrain, &r.NTest, &r.NFeatures, &params); err != nil {
		return nil, err
	}
	t, err := time.Parse(timeLayout, created)
	if err != nil {
		return nil, errors.Wrapf(err, "parse created_at of run %s", r.ID)
	}
	r.CreatedAt = t
	if params.Valid && params.String != "" && params.String != "null" {
		if err := json.Unmarshal([]byte(params.String), &r.BestParams); err != nil {
			return nil, errors.Wrapf(err, "decode best params of run %s", r.ID)
		}
	}
	return &r, nil
}

// ListRuns returns all runs, newest first.
func (s *Store) ListRuns(ctx context.Context) ([]*Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, created_at, dataset, split, n_train, n_test, n_features, best_params
		 FROM runs ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, errors.Wrap(err, "list runs")
	}
	defer rows.Close()

	var out []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecordMetrics upserts named scores for a run.
func (s *Store) RecordMetrics(ctx context.Context, runID string, values map[string]float64) error {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	for _, name := range names {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO metrics (run_id, name, value) VALUES (?, ?, ?)
			 ON CONFLICT(run_id, name) DO UPDATE SET value = excluded.value`,
			runID, name, values[name])
		if err != nil {
			return errors.Wrapf(err, "insert metric %s", name)
		}
	}
	return errors.Wrap(tx.Commit(), "commit metrics")
}

// Metrics reads all scores of a run.
func (s *Store) Metrics(ctx context.Context, runID string) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, value FROM metrics WHERE run_id = ?`, runID)
	if err != nil {
		return nil, errors.Wrap(err, "query metrics")
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var (
			name  string
			value float64
		)
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		out[name] = value
	}
	return out, rows.Err()
}

// DocumentHash identifies a document without storing it twice in logs.
func DocumentHash(doc string) string {
	sum := sha256.Sum256([]byte(doc))
	return hex.EncodeToString(sum[:8])
}

// RecordExplanation stores exp with its terms in importance order.
func (s *Store) RecordExplanation(ctx context.Context, runID string, exp *interpret.LocalExplanation) error {
	if exp == nil {
		return errors.New("tracking: nil explanation")
	}
	hash := DocumentHash(exp.Document)

	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO explanations (run_id, doc_hash, document, label, probability, intercept)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		runID, hash, exp.Document, exp.LabelName, exp.Probability, exp.Intercept)
	if err != nil {
		return errors.Wrap(err, "insert explanation")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return errors.Wrap(err, "explanation id")
	}
	for rank, t := range exp.Terms {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO explanation_terms (explanation_id, rank, term, value, importance)
			 VALUES (?, ?, ?, ?, ?)`,
			id, rank, t.Term, t.Value, t.Importance)
		if err != nil {
			return errors.Wrapf(err, "insert term %q", t.Term)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit explanation")
	}
	s.logger.Debug("Explanation recorded",
		log.RunIDKey, runID,
		log.DocumentHashKey, hash,
		log.TermsKey, len(exp.Terms),
	)
	return nil
}

// Explanations reads the explanations of a run in insertion order.
func (s *Store) Explanations(ctx context.Context, runID string) ([]StoredExplanation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, doc_hash, document, label, probability, intercept
		 FROM explanations WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, errors.Wrap(err, "query explanations")
	}
	var (
		ids []int64
		out []StoredExplanation
	)
	for rows.Next() {
		var (
			id int64
			e  StoredExplanation
		)
		if err := rows.Scan(&id, &e.DocHash, &e.Document, &e.Label, &e.Probability, &e.Intercept); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i, id := range ids {
		terms, err := s.terms(ctx, id)
		if err != nil {
			return nil, err
		}
		out[i].Terms = terms
	}
	return out, nil
}

func (s *Store) terms(ctx context.Context, explanationID int64) ([]interpret.TermImportance, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT term, value, importance FROM explanation_terms
		 WHERE explanation_id = ? ORDER BY rank`, explanationID)
	if err != nil {
		return nil, errors.Wrap(err, "query terms")
	}
	defer rows.Close()

	var out []interpret.TermImportance
	for rows.Next() {
		var t interpret.TermImportance
		if err := rows.Scan(&t.Term, &t.Value, &t.Importance); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
