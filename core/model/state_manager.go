package model

import (
	"sync"

	"github.com/YuminosukeSato/textexplain/pkg/errors"
)

// StateManager は推定器の学習済みフラグと、Fit で見た形状を保持します。
// 各推定器は埋め込みではなくフィールドとして持ちます。
// エクスポートされたフィールドは gob でそのまま保存されます。
type StateManager struct {
	Fitted    bool
	NFeatures int // 語彙サイズ、または係数の列数
	NSamples  int
	NClasses  int

	mu sync.RWMutex
}

func NewStateManager() *StateManager {
	return &StateManager{}
}

func (s *StateManager) IsFitted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Fitted
}

func (s *StateManager) SetFitted() {
	s.mu.Lock()
	s.Fitted = true
	s.mu.Unlock()
}

// Reset は未学習状態に戻します。Fit の先頭で呼ばれ、失敗した Fit が
// 以前の学習結果を有効なまま残さないようにします。
func (s *StateManager) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Fitted = false
	s.NFeatures, s.NSamples, s.NClasses = 0, 0, 0
}

func (s *StateManager) SetDimensions(nFeatures, nSamples, nClasses int) {
	s.mu.Lock()
	s.NFeatures, s.NSamples, s.NClasses = nFeatures, nSamples, nClasses
	s.mu.Unlock()
}

func (s *StateManager) GetDimensions() (nFeatures, nSamples, nClasses int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.NFeatures, s.NSamples, s.NClasses
}

// RequireFitted は未学習なら modelName.method を示す NotFittedError を返します。
func (s *StateManager) RequireFitted(modelName, method string) error {
	if s.IsFitted() {
		return nil
	}
	return errors.NewNotFittedError(modelName, method)
}

// RequireFeatures は入力の列数が Fit 時の語彙サイズと一致するか確認します。
func (s *StateManager) RequireFeatures(op string, got int) error {
	nFeatures, _, _ := s.GetDimensions()
	if got != nFeatures {
		return errors.NewDimensionError(op, nFeatures, got, 1)
	}
	return nil
}
