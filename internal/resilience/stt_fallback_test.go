package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/Escorpio024/scribe-ia-aurora/pkg/provider/stt"
	sttmock "github.com/Escorpio024/scribe-ia-aurora/pkg/provider/stt/mock"
)

func TestSTTFallback_Transcribe_PrimarySuccess(t *testing.T) {
	t.Parallel()

	primary := &sttmock.Provider{
		Segments: []stt.Segment{{Text: "buenos días doctora"}},
	}
	secondary := &sttmock.Provider{}

	fb := NewSTTFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	segs, err := fb.Transcribe(context.Background(), make([]float32, 1600))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(segs) != 1 || segs[0].Text != "buenos días doctora" {
		t.Fatalf("segments = %+v", segs)
	}
	if len(primary.Calls) != 1 {
		t.Fatalf("primary called %d times, want 1", len(primary.Calls))
	}
	if len(secondary.Calls) != 0 {
		t.Fatalf("secondary called %d times, want 0", len(secondary.Calls))
	}
}

func TestSTTFallback_Transcribe_Failover(t *testing.T) {
	t.Parallel()

	primary := &sttmock.Provider{Err: errors.New("primary down")}
	secondary := &sttmock.Provider{
		Segments: []stt.Segment{{Text: "me duele el pecho"}},
	}

	fb := NewSTTFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	segs, err := fb.Transcribe(context.Background(), make([]float32, 1600))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(segs) != 1 || segs[0].Text != "me duele el pecho" {
		t.Fatalf("segments = %+v", segs)
	}
	// The fallback sees the whole recording, not a resumed stream.
	if len(secondary.Calls) != 1 || secondary.Calls[0] != 1600 {
		t.Fatalf("secondary calls = %v", secondary.Calls)
	}
}

func TestSTTFallback_Transcribe_AllFail(t *testing.T) {
	t.Parallel()

	primary := &sttmock.Provider{Err: errors.New("primary down")}
	secondary := &sttmock.Provider{Err: errors.New("secondary down")}

	fb := NewSTTFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	_, err := fb.Transcribe(context.Background(), nil)
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}
