package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/Escorpio024/scribe-ia-aurora/pkg/provider/llm"
	llmmock "github.com/Escorpio024/scribe-ia-aurora/pkg/provider/llm/mock"
)

func TestLLMFallback_Complete_PrimarySuccess(t *testing.T) {
	t.Parallel()

	primary := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "borrador del primario"},
	}
	secondary := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "borrador del secundario"},
	}

	fb := NewLLMFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	resp, err := fb.Complete(context.Background(), llm.CompletionRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "borrador del primario" {
		t.Fatalf("content = %q", resp.Content)
	}
	if got := len(primary.Calls()); got != 1 {
		t.Fatalf("primary called %d times, want 1", got)
	}
	if got := len(secondary.Calls()); got != 0 {
		t.Fatalf("secondary called %d times, want 0", got)
	}
}

func TestLLMFallback_Complete_Failover(t *testing.T) {
	t.Parallel()

	primary := &llmmock.Provider{
		CompleteErr: errors.New("primary down"),
	}
	secondary := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "borrador del secundario"},
	}

	fb := NewLLMFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	resp, err := fb.Complete(context.Background(), llm.CompletionRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "borrador del secundario" {
		t.Fatalf("content = %q", resp.Content)
	}
}

func TestLLMFallback_Complete_AllFail(t *testing.T) {
	t.Parallel()

	primary := &llmmock.Provider{CompleteErr: errors.New("primary down")}
	secondary := &llmmock.Provider{CompleteErr: errors.New("secondary down")}

	fb := NewLLMFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	_, err := fb.Complete(context.Background(), llm.CompletionRequest{})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestLLMFallback_ModelReportsPrimary(t *testing.T) {
	t.Parallel()

	primary := &llmmock.Provider{ModelName: "gpt-4o-mini"}
	secondary := &llmmock.Provider{ModelName: "llama3"}

	fb := NewLLMFallback(primary, "primary", FallbackConfig{})
	fb.AddFallback("secondary", secondary)

	if got := fb.Model(); got != "gpt-4o-mini" {
		t.Fatalf("model = %q, want the primary's identifier", got)
	}
}
