// Package render turns explanations into terminal text and bar charts.
package render

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/YuminosukeSato/textexplain/interpret"
	"github.com/YuminosukeSato/textexplain/pkg/errors"
	"github.com/YuminosukeSato/textexplain/preprocessing"
)

// Renderer presents a local explanation of document.
type Renderer interface {
	Render(exp *interpret.LocalExplanation, document string) error
}

// TextRenderer writes a ranked term table followed by the document with its
// strongest terms marked: [+term] supports the label, [-term] opposes it.
type TextRenderer struct {
	w          io.Writer
	topK       int
	vectorizer *preprocessing.CountVectorizer
	tokenizer  *preprocessing.Tokenizer
}

var _ Renderer = (*TextRenderer)(nil)

// TextOption configures a TextRenderer.
type TextOption func(*TextRenderer)

// WithTopK limits the table and the marks to k terms per sign. Default 10.
func WithTopK(k int) TextOption {
	return func(r *TextRenderer) { r.topK = k }
}

// WithVectorizer locates terms with the vectorizer's own tokenization.
func WithVectorizer(v *preprocessing.CountVectorizer) TextOption {
	return func(r *TextRenderer) { r.vectorizer = v }
}

// NewTextRenderer creates a TextRenderer writing to w.
func NewTextRenderer(w io.Writer, opts ...TextOption) *TextRenderer {
	r := &TextRenderer{w: w, topK: 10}
	for _, opt := range opts {
		opt(r)
	}
	if r.vectorizer == nil {
		// default pattern always compiles
		r.tokenizer, _ = preprocessing.NewTokenizer("", true)
	}
	return r
}

func (r *TextRenderer) spans(document string) []preprocessing.TokenSpan {
	if r.vectorizer != nil {
		return r.vectorizer.Spans(document)
	}
	return r.tokenizer.Spans(document)
}

// Render implements Renderer.
func (r *TextRenderer) Render(exp *interpret.LocalExplanation, document string) error {
	if exp == nil {
		return errors.New("render: nil explanation")
	}
	fmt.Fprintf(r.w, "Explanation for label %s (p=%.3f)\n", exp.LabelName, exp.Probability)
	if len(exp.Terms) == 0 {
		fmt.Fprintln(r.w, "  no known terms in document")
	} else {
		tw := tabwriter.NewWriter(r.w, 0, 4, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintln(tw, "rank\tterm\tvalue\timportance\t")
		for i, t := range exp.Top(r.topK) {
			fmt.Fprintf(tw, "%d\t%s\t%g\t%+.4f\t\n", i+1, t.Term, t.Value, t.Importance)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(r.w, "total importance %+.4f, intercept %+.4f\n", exp.TotalImportance(), exp.Intercept)
	}
	_, err := fmt.Fprintf(r.w, "\n%s\n", r.Highlight(exp, document))
	return err
}

// Highlight returns document with the top positive and negative terms marked.
func (r *TextRenderer) Highlight(exp *interpret.LocalExplanation, document string) string {
	marks := make(map[string]byte)
	for _, t := range exp.Positive(r.topK) {
		marks[t.Term] = '+'
	}
	for _, t := range exp.Negative(r.topK) {
		marks[t.Term] = '-'
	}
	if len(marks) == 0 {
		return document
	}

	var b strings.Builder
	last := 0
	for _, s := range r.spans(document) {
		sign, ok := marks[s.Token]
		if !ok {
			continue
		}
		b.WriteString(document[last:s.Start])
		b.WriteByte('[')
		b.WriteByte(sign)
		b.WriteString(document[s.Start:s.End])
		b.WriteByte(']')
		last = s.End
	}
	b.WriteString(document[last:])
	return b.String()
}

// RenderGlobal writes the overall ranking and the per-class rankings.
func (r *TextRenderer) RenderGlobal(g *interpret.GlobalExplanation) error {
	if g == nil {
		return errors.New("render: nil explanation")
	}
	fmt.Fprintf(r.w, "Global importance (%s)\n", g.Method)
	if g.Method == interpret.MethodPermutation {
		fmt.Fprintf(r.w, "baseline accuracy %.4f\n", g.BaselineScore)
	}
	tw := tabwriter.NewWriter(r.w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "rank\tterm\timportance\tstd\t")
	for i, t := range limit(g.Overall, r.topK) {
		fmt.Fprintf(tw, "%d\t%s\t%.4f\t%.4f\t\n", i+1, t.Term, t.Importance, t.Std)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	for _, cr := range g.PerClass {
		terms := make([]string, 0, r.topK)
		for _, t := range limit(cr.Terms, r.topK) {
			terms = append(terms, fmt.Sprintf("%s(%+.2f)", t.Term, t.Importance))
		}
		if _, err := fmt.Fprintf(r.w, "%s: %s\n", cr.LabelName, strings.Join(terms, " ")); err != nil {
			return err
		}
	}
	return nil
}

func limit(terms []interpret.TermImportance, k int) []interpret.TermImportance {
	if k > 0 && len(terms) > k {
		return terms[:k]
	}
	return terms
}
