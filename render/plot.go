package render

import (
	"image/color"
	"path/filepath"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/YuminosukeSato/textexplain/interpret"
	"github.com/YuminosukeSato/textexplain/pkg/errors"
	"github.com/YuminosukeSato/textexplain/pkg/log"
)

var (
	positiveColor = color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff}
	negativeColor = color.RGBA{R: 0xd6, G: 0x27, B: 0x28, A: 0xff}
)

// supportedFormats are the extensions plot.Save understands that we allow.
var supportedFormats = map[string]bool{
	".png": true,
	".svg": true,
	".pdf": true,
}

// PlotRenderer writes a horizontal bar chart of the top signed importances
// to Path. The format follows the file extension (.png, .svg or .pdf).
type PlotRenderer struct {
	Path   string
	TopK   int
	Width  vg.Length
	Height vg.Length
}

var _ Renderer = (*PlotRenderer)(nil)

// NewPlotRenderer creates a renderer writing topK bars to path.
func NewPlotRenderer(path string, topK int) *PlotRenderer {
	return &PlotRenderer{Path: path, TopK: topK, Width: 6 * vg.Inch, Height: 4 * vg.Inch}
}

func checkFormat(path string) error {
	ext := strings.ToLower(filepath.Ext(path))
	if !supportedFormats[ext] {
		return errors.NewValidationError("output.plot", "file extension must be .png, .svg or .pdf", path)
	}
	return nil
}

// Render implements Renderer.
func (r *PlotRenderer) Render(exp *interpret.LocalExplanation, document string) error {
	if exp == nil {
		return errors.New("render: nil explanation")
	}
	title := "Local importance for " + exp.LabelName
	return savePlot(title, "importance", limit(exp.Top(r.TopK), r.TopK), r.Path, r.Width, r.Height)
}

// GlobalPlot writes the topK entries of the overall ranking to path.
func GlobalPlot(g *interpret.GlobalExplanation, path string, topK int) error {
	if g == nil {
		return errors.New("render: nil explanation")
	}
	xlabel := "mean |coefficient|"
	if g.Method == interpret.MethodPermutation {
		xlabel = "accuracy drop"
	}
	return savePlot("Global importance ("+g.Method+")", xlabel, limit(g.Overall, topK), path, 6*vg.Inch, 4*vg.Inch)
}

// savePlot draws terms top to bottom in the given order.
func savePlot(title, xlabel string, terms []interpret.TermImportance, path string, w, h vg.Length) error {
	if err := checkFormat(path); err != nil {
		return err
	}
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xlabel
	if len(terms) == 0 {
		// 語彙外の単語だけの文書。空のグラフで済ませて処理を続ける
		p.Title.Text = title + ": no known terms"
		p.HideY()
		p.Add(plotter.NewGrid())
		if err := p.Save(w, h, path); err != nil {
			return errors.Wrapf(err, "save plot %s", path)
		}
		log.GetLoggerWithName("render").Warn("Plot has no terms",
			log.OperationKey, log.OperationRender,
			log.FormatKey, strings.TrimPrefix(filepath.Ext(path), "."),
		)
		return nil
	}

	n := len(terms)
	pos := make(plotter.Values, n)
	neg := make(plotter.Values, n)
	names := make([]string, n)
	// the y axis grows upwards, so the first term goes last
	for i, t := range terms {
		k := n - 1 - i
		names[k] = t.Term
		if t.Importance >= 0 {
			pos[k] = t.Importance
		} else {
			neg[k] = t.Importance
		}
	}

	barWidth := vg.Points(12)
	posBars, err := plotter.NewBarChart(pos, barWidth)
	if err != nil {
		return errors.Wrap(err, "build bar chart")
	}
	posBars.Horizontal = true
	posBars.Color = positiveColor
	posBars.LineStyle.Width = 0

	negBars, err := plotter.NewBarChart(neg, barWidth)
	if err != nil {
		return errors.Wrap(err, "build bar chart")
	}
	negBars.Horizontal = true
	negBars.Color = negativeColor
	negBars.LineStyle.Width = 0

	p.Add(plotter.NewGrid(), posBars, negBars)
	p.NominalY(names...)

	if err := p.Save(w, h, path); err != nil {
		return errors.Wrapf(err, "save plot %s", path)
	}
	log.GetLoggerWithName("render").Debug("Plot written",
		log.OperationKey, log.OperationRender,
		log.FormatKey, strings.TrimPrefix(filepath.Ext(path), "."),
		log.TermsKey, n,
	)
	return nil
}
