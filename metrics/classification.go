// Package metrics computes classification scores in the scikit-learn manner.
package metrics

import (
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/textexplain/pkg/errors"
)

// Average はPrecisionRecallFScoreSupportの集約方法です。
type Average string

const (
	AverageNone     Average = "none"
	AverageMacro    Average = "macro"
	AverageMicro    Average = "micro"
	AverageWeighted Average = "weighted"
)

// checkLabels は長さと空入力を検証する
func checkLabels(op string, yTrue, yPred []int) error {
	if len(yTrue) == 0 {
		return errors.NewValueError(op, "empty input")
	}
	if len(yPred) != len(yTrue) {
		return errors.NewDimensionError(op, len(yTrue), len(yPred), 0)
	}
	return nil
}

// AccuracyScore は正解率を計算する
func AccuracyScore(yTrue, yPred []int) (float64, error) {
	if err := checkLabels("AccuracyScore", yTrue, yPred); err != nil {
		return 0, err
	}
	correct := 0
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(yTrue)), nil
}

// PRFS holds precision, recall, F1 and support.
// With AverageNone the slices have one entry per label in Labels; otherwise
// each holds a single averaged value and Support is the total count.
type PRFS struct {
	Labels    []int
	Precision []float64
	Recall    []float64
	F1        []float64
	Support   []int
	Average   Average
}

type prfsConfig struct {
	average      Average
	labels       []int
	zeroDivision float64
}

// Option configures PrecisionRecallFScoreSupport.
type Option func(*prfsConfig)

// WithAverage sets the aggregation. Default: AverageMacro.
func WithAverage(avg Average) Option {
	return func(c *prfsConfig) { c.average = avg }
}

// WithLabels fixes the label set and its order.
func WithLabels(labels []int) Option {
	return func(c *prfsConfig) { c.labels = labels }
}

// WithZeroDivision sets the value reported for undefined precision or recall.
func WithZeroDivision(v float64) Option {
	return func(c *prfsConfig) { c.zeroDivision = v }
}

// unionLabels は yTrue と yPred の和集合を昇順で返す
func unionLabels(yTrue, yPred []int) []int {
	seen := make(map[int]struct{})
	for _, v := range yTrue {
		seen[v] = struct{}{}
	}
	for _, v := range yPred {
		seen[v] = struct{}{}
	}
	labels := make([]int, 0, len(seen))
	for v := range seen {
		labels = append(labels, v)
	}
	sort.Ints(labels)
	return labels
}

// PrecisionRecallFScoreSupport はクラスごとの適合率・再現率・F1・サポートを計算する。
//
// The label set is the sorted union of yTrue and yPred unless WithLabels is
// given. A label never predicted has precision zero_division; a label absent
// from yTrue has recall zero_division; F1 is 0 when precision+recall is 0.
// Each of these cases emits an UndefinedMetricWarning.
func PrecisionRecallFScoreSupport(yTrue, yPred []int, opts ...Option) (*PRFS, error) {
	cfg := &prfsConfig{average: AverageMacro}
	for _, opt := range opts {
		opt(cfg)
	}
	if err := checkLabels("PrecisionRecallFScoreSupport", yTrue, yPred); err != nil {
		return nil, err
	}
	switch cfg.average {
	case AverageNone, AverageMacro, AverageMicro, AverageWeighted:
	default:
		return nil, errors.NewValidationError("average", "must be one of none, macro, micro, weighted", cfg.average)
	}

	labels := cfg.labels
	if labels == nil {
		labels = unionLabels(yTrue, yPred)
	}
	if len(labels) == 0 {
		return nil, errors.NewValidationError("labels", "must not be empty", labels)
	}
	pos := make(map[int]int, len(labels))
	for i, l := range labels {
		if _, dup := pos[l]; dup {
			return nil, errors.NewValidationError("labels", "must be unique", labels)
		}
		pos[l] = i
	}

	// tp / 予測数 / 正解数
	tp := make([]int, len(labels))
	predCount := make([]int, len(labels))
	trueCount := make([]int, len(labels))
	for i := range yTrue {
		ti, tok := pos[yTrue[i]]
		pi, pok := pos[yPred[i]]
		if tok {
			trueCount[ti]++
		}
		if pok {
			predCount[pi]++
		}
		if tok && pok && ti == pi {
			tp[ti]++
		}
	}

	if cfg.average == AverageMicro {
		var sumTP, sumPred, sumTrue int
		for i := range labels {
			sumTP += tp[i]
			sumPred += predCount[i]
			sumTrue += trueCount[i]
		}
		p := ratio("precision", "no predicted samples", sumTP, sumPred, cfg.zeroDivision)
		r := ratio("recall", "no true samples", sumTP, sumTrue, cfg.zeroDivision)
		return &PRFS{
			Labels:    labels,
			Precision: []float64{p},
			Recall:    []float64{r},
			F1:        []float64{fscore(p, r)},
			Support:   []int{sumTrue},
			Average:   cfg.average,
		}, nil
	}

	res := &PRFS{
		Labels:    labels,
		Precision: make([]float64, len(labels)),
		Recall:    make([]float64, len(labels)),
		F1:        make([]float64, len(labels)),
		Support:   trueCount,
		Average:   AverageNone,
	}
	for i, l := range labels {
		res.Precision[i] = ratio("precision", fmt.Sprintf("label %d has no predicted samples", l), tp[i], predCount[i], cfg.zeroDivision)
		res.Recall[i] = ratio("recall", fmt.Sprintf("label %d has no true samples", l), tp[i], trueCount[i], cfg.zeroDivision)
		res.F1[i] = fscore(res.Precision[i], res.Recall[i])
	}
	if cfg.average == AverageNone {
		return res, nil
	}

	return aggregate(res, cfg.average), nil
}

// ratio は num/den を返し、den==0 のときは警告を出して zeroDivision を返す
func ratio(metric, condition string, num, den int, zeroDivision float64) float64 {
	if den == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning(metric, condition, zeroDivision))
		return zeroDivision
	}
	return float64(num) / float64(den)
}

func fscore(p, r float64) float64 {
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

// PrecisionScore は集約済みの適合率を返す
func PrecisionScore(yTrue, yPred []int, opts ...Option) (float64, error) {
	res, err := PrecisionRecallFScoreSupport(yTrue, yPred, opts...)
	if err != nil {
		return 0, err
	}
	return res.Precision[0], nil
}

// RecallScore は集約済みの再現率を返す
func RecallScore(yTrue, yPred []int, opts ...Option) (float64, error) {
	res, err := PrecisionRecallFScoreSupport(yTrue, yPred, opts...)
	if err != nil {
		return 0, err
	}
	return res.Recall[0], nil
}

// F1Score は集約済みのF1スコアを返す
func F1Score(yTrue, yPred []int, opts ...Option) (float64, error) {
	res, err := PrecisionRecallFScoreSupport(yTrue, yPred, opts...)
	if err != nil {
		return 0, err
	}
	return res.F1[0], nil
}

// ConfusionMatrix は混同行列を計算する。行が正解、列が予測。
// labels が nil のときは yTrue と yPred の和集合を昇順で使う。
func ConfusionMatrix(yTrue, yPred []int, labels []int) (*mat.Dense, []int, error) {
	if err := checkLabels("ConfusionMatrix", yTrue, yPred); err != nil {
		return nil, nil, err
	}
	if labels == nil {
		labels = unionLabels(yTrue, yPred)
	}
	if len(labels) == 0 {
		return nil, nil, errors.NewValidationError("labels", "must not be empty", labels)
	}
	pos := make(map[int]int, len(labels))
	for i, l := range labels {
		pos[l] = i
	}
	cm := mat.NewDense(len(labels), len(labels), nil)
	for i := range yTrue {
		ti, tok := pos[yTrue[i]]
		pi, pok := pos[yPred[i]]
		if tok && pok {
			cm.Set(ti, pi, cm.At(ti, pi)+1)
		}
	}
	return cm, labels, nil
}

// ClassificationReport はscikit-learnと同じ体裁のテキストレポートを返す。
// names[k] はクラスコード k の表示名。nil のときはコードをそのまま表示する。
func ClassificationReport(yTrue, yPred []int, names []string) (string, error) {
	if err := checkLabels("ClassificationReport", yTrue, yPred); err != nil {
		return "", err
	}
	labels := unionLabels(yTrue, yPred)
	perClass, err := PrecisionRecallFScoreSupport(yTrue, yPred, WithLabels(labels), WithAverage(AverageNone))
	if err != nil {
		return "", err
	}
	// 集約行はクラスごとの結果から計算し、未定義警告を二重に出さない
	macro := aggregate(perClass, AverageMacro)
	weighted := aggregate(perClass, AverageWeighted)
	accuracy, err := AccuracyScore(yTrue, yPred)
	if err != nil {
		return "", err
	}

	display := make([]string, len(labels))
	width := len("weighted avg")
	for i, l := range labels {
		switch {
		case names == nil:
			display[i] = fmt.Sprint(l)
		case l >= 0 && l < len(names):
			display[i] = names[l]
		default:
			return "", errors.NewValueError("ClassificationReport",
				fmt.Sprintf("label %d has no display name among %d names", l, len(names)))
		}
		if len(display[i]) > width {
			width = len(display[i])
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%*s %9s %9s %9s %9s\n\n", width, "", "precision", "recall", "f1-score", "support")
	for i := range labels {
		fmt.Fprintf(&b, "%*s %9.2f %9.2f %9.2f %9d\n", width, display[i],
			perClass.Precision[i], perClass.Recall[i], perClass.F1[i], perClass.Support[i])
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "%*s %9s %9s %9.2f %9d\n", width, "accuracy", "", "", accuracy, len(yTrue))
	for _, row := range []struct {
		name string
		res  *PRFS
	}{{"macro avg", macro}, {"weighted avg", weighted}} {
		fmt.Fprintf(&b, "%*s %9.2f %9.2f %9.2f %9d\n", width, row.name,
			row.res.Precision[0], row.res.Recall[0], row.res.F1[0], row.res.Support[0])
	}
	return b.String(), nil
}

// aggregate はクラスごとの結果を macro / weighted で集約する
func aggregate(perClass *PRFS, avg Average) *PRFS {
	total := 0
	for _, s := range perClass.Support {
		total += s
	}
	var p, r, f float64
	for i := range perClass.Labels {
		w := 1 / float64(len(perClass.Labels))
		if avg == AverageWeighted {
			w = errors.SafeDivide(float64(perClass.Support[i]), float64(total), 0)
		}
		p += w * perClass.Precision[i]
		r += w * perClass.Recall[i]
		f += w * perClass.F1[i]
	}
	return &PRFS{
		Labels:    perClass.Labels,
		Precision: []float64{p},
		Recall:    []float64{r},
		F1:        []float64{f},
		Support:   []int{total},
		Average:   avg,
	}
}
