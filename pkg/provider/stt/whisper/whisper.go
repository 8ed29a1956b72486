// Package whisper implements stt.Provider with the whisper.cpp CGO bindings.
// The whisper.cpp static library (libwhisper.a) and headers (whisper.h) must
// be available at link time via LIBRARY_PATH and C_INCLUDE_PATH.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/Escorpio024/scribe-ia-aurora/pkg/provider/stt"
)

const defaultLanguage = "es"

// SampleRate is the sample rate whisper.cpp expects, in Hz.
const SampleRate = 16000

// Provider implements stt.Provider using whisper.cpp Go bindings (CGO).
// The model is loaded once at startup and shared across all Transcribe calls;
// each call creates its own inference context, so calls can run concurrently.
type Provider struct {
	model    whisperlib.Model
	language string
	threads  int
}

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithLanguage sets the recognition language code (e.g., "es", "en").
// Defaults to "es", the language of the consultations this service scribes.
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithThreads sets the number of CPU threads whisper.cpp may use per
// inference. Zero leaves the binding default in place.
func WithThreads(n int) Option {
	return func(p *Provider) { p.threads = n }
}

// New creates a Provider that loads the whisper.cpp model from the given file
// path. The caller must call Close when the provider is no longer needed.
func New(modelPath string, opts ...Option) (*Provider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	p := &Provider{
		model:    model,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the whisper model.
func (p *Provider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// Transcribe implements stt.Provider. samples must be mono float32 PCM at
// [SampleRate] Hz.
func (p *Provider) Transcribe(ctx context.Context, samples []float32) ([]stt.Segment, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: context already cancelled: %w", err)
	}
	if len(samples) == 0 {
		return nil, nil
	}

	// Each whisper context is single-use and not thread-safe; the model is
	// shareable across goroutines.
	wctx, err := p.model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("whisper: create context: %w", err)
	}

	if err := wctx.SetLanguage(p.language); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", p.language, "error", err)
	}
	if p.threads > 0 {
		wctx.SetThreads(uint(p.threads))
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return nil, fmt.Errorf("whisper: process audio: %w", err)
	}

	var segments []stt.Segment
	for {
		seg, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("whisper: read segment: %w", err)
		}
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		segments = append(segments, stt.Segment{
			Text:       text,
			Start:      seg.Start,
			End:        seg.End,
			Confidence: meanTokenProbability(seg.Tokens),
		})
	}
	return segments, nil
}

// meanTokenProbability averages per-token probabilities for a segment.
// Returns 0 when the binding reports no tokens.
func meanTokenProbability(tokens []whisperlib.Token) float64 {
	if len(tokens) == 0 {
		return 0
	}
	var sum float64
	for _, tok := range tokens {
		sum += float64(tok.P)
	}
	return sum / float64(len(tokens))
}

var _ stt.Provider = (*Provider)(nil)
