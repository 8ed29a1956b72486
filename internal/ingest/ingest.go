// Package ingest turns raw STT segments into dialogue turns.
//
// The service runs without a diarization model, so speakers are assigned by
// heuristic: turns alternate between doctor and patient, and a long silence
// gap flips the speaker an extra time, since a pause usually means the other
// party started talking. Low-quality segments (too short, low confidence)
// are dropped before assignment, and every surviving segment passes through
// the misheard-term normalizer.
package ingest

import (
	"fmt"
	"math"

	"github.com/Escorpio024/scribe-ia-aurora/internal/normalize"
	"github.com/Escorpio024/scribe-ia-aurora/pkg/provider/stt"
)

// Speaker identifies who produced a turn.
type Speaker string

const (
	// Doctor is the clinician side of the dialogue. The first turn defaults
	// to the doctor, who opens the consultation.
	Doctor Speaker = "DOCTOR"
	// Patient is the patient side.
	Patient Speaker = "PACIENTE"
)

// Turn is one utterance of the consultation dialogue.
type Turn struct {
	Speaker  Speaker `json:"speaker"`
	Text     string  `json:"text"`
	T0       float64 `json:"t0"`
	T1       float64 `json:"t1"`
	Clinical bool    `json:"clinical"`
}

const (
	defaultGapSeconds    = 2.5
	defaultMinChars      = 8
	defaultMinConfidence = 0.5
)

// Diarizer assigns speakers to STT segments. Read-only after construction
// and safe for concurrent use.
type Diarizer struct {
	gapSeconds    float64
	minChars      int
	minConfidence float64
}

// Option is a functional option for configuring a [Diarizer].
type Option func(*Diarizer)

// WithGapSeconds sets the silence gap (in seconds) that flips the speaker
// assignment. Default: 2.5.
func WithGapSeconds(s float64) Option {
	return func(d *Diarizer) { d.gapSeconds = s }
}

// WithMinChars sets the minimum segment text length; shorter segments are
// treated as noise. Default: 8.
func WithMinChars(n int) Option {
	return func(d *Diarizer) { d.minChars = n }
}

// WithMinConfidence sets the confidence floor below which segments are
// dropped. Segments reporting zero confidence are kept, since zero means the
// backend did not measure it. Default: 0.5.
func WithMinConfidence(c float64) Option {
	return func(d *Diarizer) { d.minConfidence = c }
}

// NewDiarizer returns a Diarizer with the supplied options applied.
func NewDiarizer(opts ...Option) *Diarizer {
	d := &Diarizer{
		gapSeconds:    defaultGapSeconds,
		minChars:      defaultMinChars,
		minConfidence: defaultMinConfidence,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Turns converts chronological STT segments into normalized dialogue turns.
// When nothing survives the quality filter, a single non-clinical patient
// placeholder is returned so downstream stages always see one turn.
func (d *Diarizer) Turns(segments []stt.Segment) []Turn {
	var out []Turn
	toggle := 0 // 0 = doctor, 1 = patient
	lastEnd := 0.0

	for _, seg := range segments {
		if d.dropSegment(seg) {
			continue
		}
		start := seg.Start.Seconds()
		end := seg.End.Seconds()
		if end < start {
			end = start
		}

		if start-lastEnd > d.gapSeconds {
			toggle = 1 - toggle
		}
		spk := Doctor
		if toggle == 1 {
			spk = Patient
		}

		out = append(out, Turn{
			Speaker:  spk,
			Text:     normalize.Misheard(normalize.Text(seg.Text)),
			T0:       round2(start),
			T1:       round2(end),
			Clinical: true,
		})

		lastEnd = end
		toggle = 1 - toggle
	}

	if len(out) == 0 {
		return []Turn{{
			Speaker:  Patient,
			Text:     "No se entendió el audio (silencio o ruido).",
			Clinical: false,
		}}
	}
	return out
}

// dropSegment reports whether a segment is too weak to keep.
func (d *Diarizer) dropSegment(seg stt.Segment) bool {
	if len([]rune(seg.Text)) < d.minChars {
		return true
	}
	if seg.Confidence > 0 && seg.Confidence < d.minConfidence {
		return true
	}
	return false
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

// FormatTranscript renders turns as "SPEAKER: text" lines for LLM prompts
// and encounter summaries.
func FormatTranscript(turns []Turn) string {
	var out string
	for i, t := range turns {
		if i > 0 {
			out += "\n"
		}
		out += fmt.Sprintf("%s: %s", t.Speaker, t.Text)
	}
	return out
}
