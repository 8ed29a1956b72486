package anyllm

import (
	"testing"

	"github.com/Escorpio024/scribe-ia-aurora/pkg/provider/llm"
)

// TestNew_Validation checks constructor argument validation.
func TestNew_Validation(t *testing.T) {
	t.Parallel()

	if _, err := New("", "llama3.1"); err == nil {
		t.Error("expected error for empty provider name")
	}
	if _, err := New("ollama", ""); err == nil {
		t.Error("expected error for empty model")
	}
	if _, err := New("not-a-provider", "m"); err == nil {
		t.Error("expected error for unsupported provider")
	}
}

// TestNewOllama checks the Ollama convenience constructor.
func TestNewOllama(t *testing.T) {
	t.Parallel()

	p, err := NewOllama("llama3.1:8b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Model() != "llama3.1:8b" {
		t.Errorf("Model() = %q, want llama3.1:8b", p.Model())
	}
}

// TestBuildParams checks request conversion into anyllm params.
func TestBuildParams(t *testing.T) {
	t.Parallel()

	p, err := NewOllama("llama3.1:8b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	params := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "Responde solo JSON.",
		Messages: []llm.Message{
			{Role: "user", Content: "TRANSCRIPCION: me duele el pecho"},
		},
		Temperature: 0.2,
		MaxTokens:   512,
	})

	if params.Model != "llama3.1:8b" {
		t.Errorf("model = %q, want llama3.1:8b", params.Model)
	}
	if len(params.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(params.Messages))
	}
	if params.Messages[0].Role != "system" {
		t.Errorf("first role = %q, want system", params.Messages[0].Role)
	}
	if params.Messages[1].Role != "user" {
		t.Errorf("second role = %q, want user", params.Messages[1].Role)
	}
	if params.Temperature == nil || *params.Temperature != 0.2 {
		t.Errorf("temperature not forwarded: %v", params.Temperature)
	}
	if params.MaxTokens == nil || *params.MaxTokens != 512 {
		t.Errorf("max tokens not forwarded: %v", params.MaxTokens)
	}
}

// TestBuildParams_NoSystemPrompt checks that no empty system message is injected.
func TestBuildParams_NoSystemPrompt(t *testing.T) {
	t.Parallel()

	p, err := NewOllama("llama3.1:8b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	params := p.buildParams(llm.CompletionRequest{
		Messages: []llm.Message{{Role: "user", Content: "hola"}},
	})
	if len(params.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(params.Messages))
	}
	if params.Temperature != nil {
		t.Error("expected nil temperature when unset")
	}
	if params.MaxTokens != nil {
		t.Error("expected nil max tokens when unset")
	}
}
