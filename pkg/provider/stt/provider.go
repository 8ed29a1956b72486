// Package stt defines the Provider interface for Speech-to-Text backends.
//
// The scribe ingests a whole consultation recording at once, so the central
// abstraction is a batch Transcribe call: mono float32 samples in, timed
// segments out. Segment timing and confidence feed the speaker-assignment
// heuristic in the ingest layer; the provider itself knows nothing about
// speakers.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"time"
)

// Segment is a contiguous stretch of recognised speech.
type Segment struct {
	// Text is the transcribed content, whitespace-trimmed.
	Text string

	// Start is the segment's offset from the beginning of the recording.
	Start time.Duration

	// End is the segment's end offset.
	End time.Duration

	// Confidence is the mean token probability in [0.0, 1.0]. Zero when the
	// backend does not report per-token probabilities.
	Confidence float64
}

// Provider is the abstraction over any STT backend.
//
// Implementations must be safe for concurrent use; multiple recordings may be
// transcribed simultaneously.
type Provider interface {
	// Transcribe runs recognition over the full recording. samples must be
	// mono float32 PCM in [-1.0, 1.0] at 16 kHz. Segments are returned in
	// chronological order.
	//
	// Returns an error if recognition fails or ctx is cancelled.
	Transcribe(ctx context.Context, samples []float32) ([]Segment, error)
}
