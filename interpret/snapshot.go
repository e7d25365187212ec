package interpret

import (
	"github.com/YuminosukeSato/textexplain/core/model"
	"github.com/YuminosukeSato/textexplain/pkg/errors"
	"github.com/YuminosukeSato/textexplain/preprocessing"
	"github.com/YuminosukeSato/textexplain/sklearn/linear_model"
)

// Snapshot is the gob form of a fitted explainer.
type Snapshot struct {
	Vectorizer *preprocessing.VectorizerState
	Model      *linear_model.LogisticState
	BestParams map[string]interface{}
	ClassNames []string

	TfidfIDF       []float64 // nil when no tf-idf weighting is used
	TfidfNorm      string
	TfidfSublinear bool
}

var _ model.Persistable = (*ClassicalTextExplainer)(nil)

// Snapshot captures the fitted state.
func (e *ClassicalTextExplainer) Snapshot() (*Snapshot, error) {
	if err := e.requireFitted("Snapshot"); err != nil {
		return nil, err
	}
	vs, err := e.vectorizer.State()
	if err != nil {
		return nil, err
	}
	ms, err := e.model.State()
	if err != nil {
		return nil, err
	}
	s := &Snapshot{
		Vectorizer: vs,
		Model:      ms,
		BestParams: e.BestParams(),
		ClassNames: append([]string(nil), e.classNames...),
	}
	if e.tfidf != nil {
		s.TfidfIDF = append([]float64(nil), e.tfidf.IDF...)
		s.TfidfNorm = e.tfidf.Norm
		s.TfidfSublinear = e.tfidf.SublinearTF
	}
	return s, nil
}

// Restore rebuilds a fitted explainer from a snapshot. opts may set the
// logger or the cache; model options are ignored.
func Restore(s *Snapshot, opts ...Option) (*ClassicalTextExplainer, error) {
	e := NewClassicalTextExplainer(opts...)
	if err := e.restore(s); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *ClassicalTextExplainer) restore(s *Snapshot) error {
	if s == nil || s.Vectorizer == nil || s.Model == nil {
		return errors.NewValueError("ClassicalTextExplainer.Restore", "incomplete snapshot")
	}
	v, err := preprocessing.RestoreCountVectorizer(s.Vectorizer)
	if err != nil {
		return err
	}
	m, err := linear_model.RestoreLogisticRegression(s.Model)
	if err != nil {
		return err
	}
	if s.Model.NFeatures != len(s.Vectorizer.Features) {
		return errors.NewDimensionError("ClassicalTextExplainer.Restore", len(s.Vectorizer.Features), s.Model.NFeatures, 1)
	}
	var tfidf *preprocessing.TfidfTransformer
	if s.TfidfIDF != nil {
		if tfidf, err = preprocessing.RestoreTfidfTransformer(s.TfidfNorm, s.TfidfSublinear, s.TfidfIDF); err != nil {
			return err
		}
	}

	e.vectorizer = v
	e.tfidf = tfidf
	e.model = m
	e.bestParams = s.BestParams
	e.cvResults = nil
	e.features = append([]string(nil), s.Vectorizer.Features...)
	if len(s.ClassNames) > 0 {
		e.classNames = append([]string(nil), s.ClassNames...)
	}
	if e.cache != nil {
		e.cache.Flush()
	}
	e.state.SetDimensions(len(e.features), 0, len(m.Classes()))
	e.state.SetFitted()
	return nil
}

// Save writes the fitted explainer to path in gob format.
func (e *ClassicalTextExplainer) Save(path string) error {
	s, err := e.Snapshot()
	if err != nil {
		return err
	}
	return model.SaveModel(s, path)
}

// Load replaces the explainer's state with the one saved at path.
func (e *ClassicalTextExplainer) Load(path string) error {
	var s Snapshot
	if err := model.LoadModel(&s, path); err != nil {
		return err
	}
	return e.restore(&s)
}

// LoadExplainer reads an explainer saved with Save.
func LoadExplainer(path string, opts ...Option) (*ClassicalTextExplainer, error) {
	e := NewClassicalTextExplainer(opts...)
	if err := e.Load(path); err != nil {
		return nil, err
	}
	return e, nil
}
