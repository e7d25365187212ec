package main

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"math/rand/v2"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/textexplain/config"
	"github.com/YuminosukeSato/textexplain/datasets"
	"github.com/YuminosukeSato/textexplain/interpret"
	"github.com/YuminosukeSato/textexplain/metrics"
	"github.com/YuminosukeSato/textexplain/pkg/errors"
	"github.com/YuminosukeSato/textexplain/pkg/log"
	"github.com/YuminosukeSato/textexplain/preprocessing"
	"github.com/YuminosukeSato/textexplain/render"
	"github.com/YuminosukeSato/textexplain/sklearn/model_selection"
	"github.com/YuminosukeSato/textexplain/tracking"
)

type runOptions struct {
	fetch       bool
	document    string
	global      bool
	permutation bool
	globalPlot  string
}

func newRunCmd(a *app) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Load, split, fit, evaluate and explain",
		Long: `Run the whole workflow on one dataset split:

  load -> filter -> split -> encode labels -> fit with grid search
  -> report metrics -> explain one test document -> render

The explained document is the first test document unless --document is set.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := runPipeline(cmd.Context(), a.cfg, opts, a.out, a.logger, a.runID)
			return err
		},
	}

	f := cmd.Flags()
	f.String("data-dir", "", "directory holding the MultiNLI files")
	f.String("split", "", "dataset split: train, dev_matched or dev_mismatched")
	f.Int("sample", 0, "use a random subset of this many rows (0 = all)")
	f.Float64("test-size", 0, "fraction of rows held out for testing")
	f.Float64("train-size", 0, "fraction of rows used for training (default: the rest)")
	f.Int64("seed", 0, "random state for sampling, splitting and fold shuffling")
	f.Int("n-jobs", 0, "parallelism hint, -1 uses all CPUs")
	f.Int("cv", 0, "number of cross-validation folds")
	f.Bool("tfidf", false, "weight counts with tf-idf")
	f.Int("top-k", 0, "terms shown per explanation")
	f.String("plot", "", "write a bar chart of the explanation (.png, .svg or .pdf)")
	f.String("model", "", "save the fitted explainer to this file")
	f.String("db", "", "record the run in this SQLite file")
	a.bindFlags(cmd, map[string]string{
		"data-dir":   "data.dir",
		"split":      "data.split",
		"sample":     "data.sample",
		"test-size":  "split.test_size",
		"train-size": "split.train_size",
		"seed":       "split.random_state",
		"n-jobs":     "explainer.n_jobs",
		"cv":         "explainer.cv",
		"tfidf":      "vectorizer.tfidf",
		"top-k":      "output.top_k",
		"plot":       "output.plot",
		"model":      "output.model",
		"db":         "output.db",
	})
	f.BoolVar(&opts.fetch, "fetch", false, "download the dataset when the split file is missing")
	f.StringVar(&opts.document, "document", "", "document to explain instead of the first test document")
	f.BoolVar(&opts.global, "global", false, "also print the global term ranking")
	f.BoolVar(&opts.permutation, "permutation", false, "rank terms globally by permutation importance on the test set")
	f.StringVar(&opts.globalPlot, "global-plot", "", "write a bar chart of the global ranking (.png, .svg or .pdf)")
	return cmd
}

// runResult summarizes a finished run.
type runResult struct {
	NTrain      int
	NTest       int
	NFeatures   int
	BestParams  map[string]interface{}
	Accuracy    float64
	Macro       *metrics.PRFS
	Explanation *interpret.LocalExplanation
}

func loadDataset(ctx context.Context, cfg *config.Config, fetch bool, logger log.Logger) (*datasets.Dataset, error) {
	dir := cfg.Data.Dir
	ds, err := datasets.LoadMNLI(dir, cfg.Data.Split)
	if err == nil || !fetch || !errors.Is(err, fs.ErrNotExist) {
		return ds, err
	}
	logger.Info("Split file missing, downloading", log.PathKey, dir)
	dir, err = datasets.Fetch(ctx, cfg.Data.URL, dir, cfg.Data.Split)
	if err != nil {
		return nil, err
	}
	return datasets.LoadMNLI(dir, cfg.Data.Split)
}

func runPipeline(ctx context.Context, cfg *config.Config, opts *runOptions, out io.Writer, logger log.Logger, runID string) (*runResult, error) {
	start := time.Now()

	ds, err := loadDataset(ctx, cfg, opts.fetch, logger)
	if err != nil {
		return nil, err
	}
	if cfg.Data.FilterColumn != "" {
		ds = ds.Filter(cfg.Data.FilterColumn, cfg.Data.FilterValue)
		if ds.Len() == 0 {
			return nil, errors.NewValueError("filter",
				fmt.Sprintf("no rows with %s == %q in %s", cfg.Data.FilterColumn, cfg.Data.FilterValue, ds.Source))
		}
	}
	seed := rand.Uint64()
	if cfg.Split.RandomState >= 0 {
		seed = uint64(cfg.Split.RandomState)
	}
	ds = ds.Sample(cfg.Data.Sample, seed)

	texts, labels, err := ds.Columns(cfg.Data.TextColumn, cfg.Data.LabelColumn)
	if err != nil {
		return nil, err
	}
	trainX, testX, trainY, testY, err := model_selection.SplitStrings(texts, labels, cfg.SplitOptions()...)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(out, "Train: %d documents, test: %d documents\n", len(trainX), len(testX))

	enc := preprocessing.NewLabelEncoder()
	yTrain, err := enc.FitTransform(trainY)
	if err != nil {
		return nil, err
	}
	yTest, err := enc.Transform(testY)
	if err != nil {
		return nil, errors.Wrap(err, "encode test labels")
	}

	explainer := interpret.NewClassicalTextExplainer(append(cfg.ExplainerOptions(),
		interpret.WithClassNames(enc.Classes()),
		interpret.WithLogger(logger),
	)...)
	_, best, err := explainer.Fit(trainX, yTrain)
	if err != nil {
		return nil, err
	}
	res := &runResult{
		NTrain:     len(trainX),
		NTest:      len(testX),
		NFeatures:  len(explainer.FeatureNames()),
		BestParams: best,
	}
	fmt.Fprintf(out, "Vocabulary: %d terms, classes: %s\n", res.NFeatures, strings.Join(enc.Classes(), ", "))
	fmt.Fprintf(out, "Best hyperparameters: %s\n", formatParams(best))

	pred, err := explainer.Predict(testX)
	if err != nil {
		return nil, err
	}
	if res.Accuracy, err = metrics.AccuracyScore(yTest, pred); err != nil {
		return nil, err
	}
	if res.Macro, err = metrics.PrecisionRecallFScoreSupport(yTest, pred, metrics.WithAverage(metrics.AverageMacro)); err != nil {
		return nil, err
	}
	report, err := metrics.ClassificationReport(yTest, pred, enc.Classes())
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(out, "Accuracy: %.4f\n", res.Accuracy)
	fmt.Fprintf(out, "Macro precision: %.4f, recall: %.4f, F1: %.4f\n\n%s\n",
		res.Macro.Precision[0], res.Macro.Recall[0], res.Macro.F1[0], report)
	logger.Info("Evaluation finished",
		log.OperationKey, log.OperationScore,
		log.AccuracyKey, res.Accuracy,
		log.F1Key, res.Macro.F1[0],
		log.SamplesKey, len(testX),
	)

	doc := opts.document
	if doc == "" {
		doc = testX[0]
	}
	exp, err := explainer.ExplainLocal(doc, nil)
	if err != nil {
		return nil, err
	}
	res.Explanation = exp
	text := render.NewTextRenderer(out, render.WithTopK(cfg.Output.TopK), render.WithVectorizer(explainer.Vectorizer()))
	if err := text.Render(exp, doc); err != nil {
		return nil, err
	}
	if cfg.Output.Plot != "" {
		if err := renderPlot(cfg.Output.Plot, cfg.Output.TopK, exp); err != nil {
			return nil, err
		}
		fmt.Fprintf(out, "Plot written to %s\n", cfg.Output.Plot)
	}
	if opts.global || opts.permutation || opts.globalPlot != "" {
		g, err := globalExplanation(explainer, cfg, opts, testX, yTest)
		if err != nil {
			return nil, err
		}
		if opts.global || opts.permutation {
			fmt.Fprintln(out)
			if err := text.RenderGlobal(g); err != nil {
				return nil, err
			}
		}
		if opts.globalPlot != "" {
			err := errors.SafeExecute("render.GlobalPlot", func() error {
				return render.GlobalPlot(g, opts.globalPlot, cfg.Output.TopK)
			})
			if err != nil {
				return nil, err
			}
			fmt.Fprintf(out, "Global plot written to %s\n", opts.globalPlot)
		}
	}

	if cfg.Output.Model != "" {
		if err := explainer.Save(cfg.Output.Model); err != nil {
			return nil, err
		}
		fmt.Fprintf(out, "Model saved to %s\n", cfg.Output.Model)
	}
	if cfg.Output.DB != "" {
		if err := recordRun(ctx, cfg, runID, ds.Source, res); err != nil {
			return nil, err
		}
	}
	logger.Info("Run finished", log.DurationMsKey, time.Since(start).Milliseconds())
	return res, nil
}

// globalExplanation ranks terms by coefficients, or by the accuracy drop on
// the test documents when --permutation is set.
func globalExplanation(e *interpret.ClassicalTextExplainer, cfg *config.Config, opts *runOptions, testX []string, yTest []int) (*interpret.GlobalExplanation, error) {
	if !opts.permutation {
		return e.ExplainGlobal(cfg.Output.TopK)
	}
	return e.PermutationImportance(testX, yTest,
		interpret.WithTopN(2*cfg.Output.TopK),
		interpret.WithPermutationJobs(cfg.Explainer.NJobs),
	)
}

func recordRun(ctx context.Context, cfg *config.Config, runID, source string, res *runResult) error {
	store, err := tracking.Open(ctx, cfg.Output.DB)
	if err != nil {
		return err
	}
	defer store.Close()

	run := &tracking.Run{
		ID:         runID,
		Dataset:    filepath.Base(source),
		Split:      cfg.Data.Split,
		NTrain:     res.NTrain,
		NTest:      res.NTest,
		NFeatures:  res.NFeatures,
		BestParams: res.BestParams,
	}
	if err := store.CreateRun(ctx, run); err != nil {
		return err
	}
	scores := map[string]float64{
		"accuracy":        res.Accuracy,
		"precision_macro": res.Macro.Precision[0],
		"recall_macro":    res.Macro.Recall[0],
		"f1_macro":        res.Macro.F1[0],
	}
	if err := store.RecordMetrics(ctx, runID, scores); err != nil {
		return err
	}
	return store.RecordExplanation(ctx, runID, res.Explanation)
}

func formatParams(params map[string]interface{}) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, params[k])
	}
	return strings.Join(parts, " ")
}
