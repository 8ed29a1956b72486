package resilience

import (
	"context"

	"github.com/Escorpio024/scribe-ia-aurora/pkg/provider/stt"
)

// STTFallback implements [stt.Provider] with automatic failover across multiple
// transcription backends. Each backend has its own circuit breaker, so a
// whisper binding that keeps crashing on a malformed recording stops being
// tried after a few consecutive failures.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

// Compile-time interface assertion.
var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] with primary as the preferred backend.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	return &STTFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional STT provider as a fallback.
func (f *STTFallback) AddFallback(name string, provider stt.Provider) {
	f.group.AddFallback(name, provider)
}

// Transcribe runs recognition against the first healthy backend. The full
// sample slice is handed to each candidate in turn, so a fallback starts from
// the beginning of the recording rather than mid-stream.
func (f *STTFallback) Transcribe(ctx context.Context, samples []float32) ([]stt.Segment, error) {
	return ExecuteWithResult(f.group, func(p stt.Provider) ([]stt.Segment, error) {
		return p.Transcribe(ctx, samples)
	})
}
