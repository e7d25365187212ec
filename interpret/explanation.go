package interpret

import (
	"sort"
)

// TermImportance is the contribution of one vocabulary term.
type TermImportance struct {
	Term    string
	Feature int // column in the vectorizer vocabulary
	// Value is the term's feature value in the explained document
	// (a count, or a tf-idf weight). Zero in global explanations.
	Value      float64
	Importance float64
	// Std is the spread over permutation repeats. Zero otherwise.
	Std float64
}

// LocalExplanation scores the terms of one document for one label.
// Importances are signed: positive terms push towards Label.
type LocalExplanation struct {
	Document    string
	Label       int
	LabelName   string
	Probability float64 // model probability of Label for Document
	Intercept   float64 // signed intercept of Label, not part of Terms
	Terms       []TermImportance
}

// TotalImportance sums the importances of all terms.
func (e *LocalExplanation) TotalImportance() float64 {
	var total float64
	for _, t := range e.Terms {
		total += t.Importance
	}
	return total
}

// Positive returns up to k terms with positive importance, strongest first.
// k <= 0 returns all of them.
func (e *LocalExplanation) Positive(k int) []TermImportance {
	var out []TermImportance
	for _, t := range e.Terms {
		if t.Importance > 0 {
			out = append(out, t)
		}
	}
	return limit(out, k)
}

// Negative returns up to k terms with negative importance, most negative first.
func (e *LocalExplanation) Negative(k int) []TermImportance {
	var out []TermImportance
	for i := len(e.Terms) - 1; i >= 0; i-- {
		if e.Terms[i].Importance < 0 {
			out = append(out, e.Terms[i])
		}
	}
	return limit(out, k)
}

// Top returns up to k terms ordered by absolute importance.
func (e *LocalExplanation) Top(k int) []TermImportance {
	out := append([]TermImportance(nil), e.Terms...)
	sort.SliceStable(out, func(i, j int) bool {
		return abs(out[i].Importance) > abs(out[j].Importance)
	})
	return limit(out, k)
}

func (e *LocalExplanation) clone() *LocalExplanation {
	c := *e
	c.Terms = append([]TermImportance(nil), e.Terms...)
	return &c
}

// ClassRanking lists the terms most indicative of one label.
type ClassRanking struct {
	Label     int
	LabelName string
	Terms     []TermImportance
}

// Global explanation methods.
const (
	MethodCoefficients = "coefficients"
	MethodPermutation  = "permutation"
)

// GlobalExplanation ranks vocabulary terms for the whole model.
type GlobalExplanation struct {
	Method string
	// Overall is ranked by mean absolute coefficient, or by accuracy drop
	// for permutation importance.
	Overall  []TermImportance
	PerClass []ClassRanking
	// BaselineScore is the unpermuted accuracy (permutation only).
	BaselineScore float64
}

// sortTerms orders by descending importance, then by term.
func sortTerms(terms []TermImportance) {
	sort.Slice(terms, func(i, j int) bool {
		if terms[i].Importance != terms[j].Importance {
			return terms[i].Importance > terms[j].Importance
		}
		return terms[i].Term < terms[j].Term
	})
}

func limit(terms []TermImportance, k int) []TermImportance {
	if k > 0 && len(terms) > k {
		return terms[:k]
	}
	return terms
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
