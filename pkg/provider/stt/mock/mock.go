// Package mock provides a test double for the stt.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/Escorpio024/scribe-ia-aurora/pkg/provider/stt"
)

// Provider is a mock implementation of stt.Provider. Zero value returns no
// segments and no error.
type Provider struct {
	mu sync.Mutex

	// Segments is returned by Transcribe.
	Segments []stt.Segment

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// Calls records the sample counts of every Transcribe invocation.
	Calls []int
}

// Transcribe records the call and returns the configured segments.
func (p *Provider) Transcribe(ctx context.Context, samples []float32) ([]stt.Segment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, len(samples))
	if p.Err != nil {
		return nil, p.Err
	}
	out := make([]stt.Segment, len(p.Segments))
	copy(out, p.Segments)
	return out, nil
}

var _ stt.Provider = (*Provider)(nil)
