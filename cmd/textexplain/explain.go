package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/textexplain/interpret"
	"github.com/YuminosukeSato/textexplain/pkg/errors"
	"github.com/YuminosukeSato/textexplain/render"
)

type explainOptions struct {
	label  string
	global bool
}

func newExplainCmd(a *app) *cobra.Command {
	opts := &explainOptions{}
	cmd := &cobra.Command{
		Use:   "explain [document...]",
		Short: "Explain documents with a saved model",
		Long: `Load an explainer saved by "run --model" and explain each argument.
Without --label the predicted label is explained.`,
		Example: `  textexplain run --model model.gob
  textexplain explain --model model.gob "the stock market rallied"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.explain(args, opts)
		},
	}
	f := cmd.Flags()
	f.String("model", "", "explainer file written by run --model")
	f.String("plot", "", "write a bar chart of the last explanation")
	f.Int("top-k", 0, "terms shown per explanation")
	a.bindFlags(cmd, map[string]string{
		"model": "output.model",
		"plot":  "output.plot",
		"top-k": "output.top_k",
	})
	f.StringVar(&opts.label, "label", "", "explain this label instead of the predicted one")
	f.BoolVar(&opts.global, "global", false, "print the global term ranking")
	return cmd
}

func (a *app) explain(docs []string, opts *explainOptions) error {
	cfg := a.cfg
	if cfg.Output.Model == "" {
		return errors.NewValidationError("output.model", "a saved model is required", cfg.Output.Model)
	}
	if len(docs) == 0 && !opts.global {
		return errors.NewValueError("explain", "no documents given")
	}
	e, err := interpret.LoadExplainer(cfg.Output.Model,
		interpret.WithLogger(a.logger),
		interpret.WithCache(cfg.Explainer.CacheTTL),
	)
	if err != nil {
		return err
	}

	var label *int
	if opts.label != "" {
		code, err := labelCode(e, opts.label)
		if err != nil {
			return err
		}
		label = &code
	}

	text := render.NewTextRenderer(a.out, render.WithTopK(cfg.Output.TopK), render.WithVectorizer(e.Vectorizer()))
	var last *interpret.LocalExplanation
	for i, doc := range docs {
		if i > 0 {
			fmt.Fprintln(a.out)
		}
		exp, err := e.ExplainLocal(doc, label)
		if err != nil {
			return err
		}
		if err := text.Render(exp, doc); err != nil {
			return err
		}
		last = exp
	}
	if last != nil && cfg.Output.Plot != "" {
		if err := renderPlot(cfg.Output.Plot, cfg.Output.TopK, last); err != nil {
			return err
		}
	}
	if opts.global {
		g, err := e.ExplainGlobal(cfg.Output.TopK)
		if err != nil {
			return err
		}
		if len(docs) > 0 {
			fmt.Fprintln(a.out)
		}
		return text.RenderGlobal(g)
	}
	return nil
}

// labelCode resolves a label given by display name or by class code.
func labelCode(e *interpret.ClassicalTextExplainer, name string) (int, error) {
	for k, n := range e.ClassNames() {
		if n == name {
			return k, nil
		}
	}
	for _, c := range e.Classes() {
		if fmt.Sprint(c) == name {
			return c, nil
		}
	}
	return 0, errors.NewUnknownCategoryError("explain", []string{name})
}

// renderPlot writes the chart for exp. gonum/plot panics on some degenerate
// axis ranges, so the panic is returned as an error instead.
func renderPlot(path string, topK int, exp *interpret.LocalExplanation) error {
	return errors.SafeExecute("render.Plot", func() error {
		return render.NewPlotRenderer(path, topK).Render(exp, exp.Document)
	})
}
