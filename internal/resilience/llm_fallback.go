package resilience

import (
	"context"

	"github.com/Escorpio024/scribe-ia-aurora/pkg/provider/llm"
)

// LLMFallback implements [llm.Provider] with automatic failover across multiple
// model backends. The pipeline drafts records against the primary model and
// silently degrades to fallbacks (typically a local model) when the primary is
// unreachable or its circuit breaker is open.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

// Compile-time interface assertion.
var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an [LLMFallback] with primary as the preferred model.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional LLM provider as a fallback.
func (f *LLMFallback) AddFallback(name string, provider llm.Provider) {
	f.group.AddFallback(name, provider)
}

// Complete forwards the request to the first healthy provider.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return ExecuteWithResult(f.group, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// Model returns the model identifier of the primary provider. Drafts produced
// by a fallback still report the primary's model; callers that need per-call
// attribution should log at the provider level instead.
func (f *LLMFallback) Model() string {
	return f.group.entries[0].value.Model()
}
