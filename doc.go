// Package textexplain trains a bag-of-words logistic regression on labeled
// sentences and explains its predictions term by term.
//
// The workflow is linear: load a MultiNLI split, filter it, split it into
// train and test sets, encode the labels, fit the explainer with a
// cross-validated search of the regularization strength, report the scores
// and explain documents. The textexplain command runs it end to end.
//
// # Installation
//
//	go install github.com/YuminosukeSato/textexplain/cmd/textexplain@latest
//
// # Quick Start
//
//	textexplain config init
//	textexplain run --data-dir ./data --fetch --sample 5000 --model model.gob
//	textexplain explain --model model.gob "the senate passed the bill"
//
// Or from Go:
//
//	package main
//
//	import (
//	    "fmt"
//	    "log"
//
//	    "github.com/YuminosukeSato/textexplain/interpret"
//	    "github.com/YuminosukeSato/textexplain/preprocessing"
//	)
//
//	func main() {
//	    texts := []string{"cat kitten purr", "kitten whiskers", "stock market rally", "market shares fell"}
//	    enc := preprocessing.NewLabelEncoder()
//	    labels, err := enc.FitTransform([]string{"pets", "pets", "finance", "finance"})
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    e := interpret.NewClassicalTextExplainer(interpret.WithClassNames(enc.Classes()), interpret.WithCV(2))
//	    if _, _, err := e.Fit(texts, labels); err != nil {
//	        log.Fatal(err)
//	    }
//
//	    exp, err := e.ExplainLocal("a kitten and the market", nil)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    for _, t := range exp.Terms {
//	        fmt.Printf("%-10s %+.3f\n", t.Term, t.Importance)
//	    }
//	}
//
// # Packages
//
//   - datasets: MultiNLI reader (JSONL and TSV) and archive download
//   - preprocessing: CountVectorizer, TfidfTransformer, LabelEncoder
//   - sklearn/linear_model: LogisticRegression (binary, one-vs-rest, multinomial)
//   - sklearn/model_selection: TrainTestSplit, KFold, StratifiedKFold, GridSearchCV
//   - interpret: ClassicalTextExplainer with local, global and permutation importance
//   - metrics: accuracy, precision, recall, F1, confusion matrix, classification report
//   - render: terminal tables and gonum/plot bar charts
//   - tracking: SQLite run store
//   - config: viper configuration
//   - core/model, core/parallel, core/sparse: estimator contracts, worker fan-out, CSR matrices
//   - pkg/errors, pkg/log: typed errors and structured logging
//
// # Configuration
//
// Settings come from flags, TEXTEXPLAIN_* environment variables,
// ~/.textexplain/config.yaml and defaults, in that order. See package config.
package textexplain
