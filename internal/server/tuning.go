package server

import (
	"sync"

	"github.com/Escorpio024/scribe-ia-aurora/internal/evidence"
)

// evidenceTuning holds the hot-reloadable retrieval knobs behind a lock so
// in-flight requests read a consistent pair.
type evidenceTuning struct {
	mu   sync.RWMutex
	topK int
	bias evidence.Bias
}

func newEvidenceTuning(topK int, bias evidence.Bias) *evidenceTuning {
	return &evidenceTuning{topK: topK, bias: bias}
}

func (t *evidenceTuning) get() (int, evidence.Bias) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.topK, t.bias
}

func (t *evidenceTuning) set(topK int, bias evidence.Bias) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if topK > 0 {
		t.topK = topK
	}
	t.bias = bias
}
