// Package phonetic aligns misrecognized tokens to a canonical clinical
// vocabulary using Double Metaphone phonetic encoding combined with
// Jaro-Winkler string similarity for ranked candidate selection.
//
// It complements the exact misheard dictionary in the parent package: the
// dictionary catches confusions seen before, this matcher catches novel
// near-misses of known terms ("neumonya", "parazetamol"). The algorithm
// proceeds in two stages:
//
//  1. Phonetic candidate filtering: Double Metaphone codes are computed for
//     the input token and for each vocabulary term. Terms sharing at least one
//     code with the input become phonetic candidates.
//
//  2. Jaro-Winkler ranking: among phonetic candidates, the term with the
//     highest Jaro-Winkler similarity wins, provided it clears the phonetic
//     threshold. Without phonetic candidates, a secondary pass tests pure
//     Jaro-Winkler similarity against all terms using a stricter threshold.
//
// Vocabulary codes are computed once at construction; Matcher is read-only
// afterwards and safe for concurrent use.
package phonetic

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85

	// minTokenLen keeps short function words ("de", "la", "con") away from
	// the matcher; aligning those produces garbage.
	minTokenLen = 4
)

// DefaultVocabulary lists the canonical clinical terms worth aligning toward.
// It covers the symptoms, studies, and medications the extraction rules and
// the canonicalizer key on.
var DefaultVocabulary = []string{
	"disnea",
	"fiebre",
	"sibilancias",
	"crepitantes",
	"auscultación",
	"paracetamol",
	"ibuprofeno",
	"losartán",
	"furosemida",
	"neumonía",
	"bronquitis",
	"hemograma",
	"radiografía",
	"tórax",
	"presión",
	"frecuencia",
	"temperatura",
	"saturación",
	"cianosis",
	"síncope",
	"taquicardia",
	"hipertensión",
	"diabetes",
	"urgencias",
}

// DefaultSkipWords lists frequent Spanish dialogue words that sit close to
// vocabulary terms in edit distance ("presenta" vs "presión") but must never
// be rewritten. The parent normalize package passes this list when it builds
// its matcher.
var DefaultSkipWords = []string{
	"ahora", "antes", "ayer", "bien", "casa", "como", "cuando", "desde",
	"dice", "donde", "entonces", "estaba", "hace", "hasta", "luego", "mucho",
	"noche", "nunca", "paciente", "pacientes", "para", "pero", "poco",
	"porque", "presenta", "presentaba", "puede", "refiere", "siente",
	"siempre", "también", "tambien", "tiene", "tengo", "todavía", "todavia",
	"viene",
}

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// phonetically-matched term to be accepted. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required when no
// phonetic match is found and the matcher falls back to pure string
// similarity. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.fuzzyThreshold = threshold
	}
}

// WithSkipWords marks words the matcher must leave untouched even when they
// score above the thresholds. Comparison is case-insensitive.
func WithSkipWords(words []string) Option {
	return func(m *Matcher) {
		for _, w := range words {
			w = strings.ToLower(strings.TrimSpace(w))
			if w != "" {
				m.skip[w] = struct{}{}
			}
		}
	}
}

// term is a vocabulary entry with its precomputed phonetic codes.
type term struct {
	text  string
	codes map[string]struct{}
}

// Matcher aligns tokens to a fixed vocabulary.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
	terms             []term
	exact             map[string]struct{}
	skip              map[string]struct{}
}

// New returns a [Matcher] over the given vocabulary. Pass
// [DefaultVocabulary] for the standard clinical term list.
func New(vocabulary []string, opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
		exact:             make(map[string]struct{}, len(vocabulary)),
		skip:              make(map[string]struct{}),
	}
	for _, o := range opts {
		o(m)
	}
	for _, v := range vocabulary {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		m.terms = append(m.terms, term{text: v, codes: codesFor(v)})
		m.exact[v] = struct{}{}
	}
	return m
}

// Match attempts to find the vocabulary term most phonetically similar to
// word. When matched is false, corrected equals word unchanged and
// confidence is 0. Exact vocabulary members are returned as-is with
// confidence 1.
func (m *Matcher) Match(word string) (corrected string, confidence float64, matched bool) {
	w := strings.ToLower(strings.TrimSpace(word))
	if w == "" {
		return word, 0, false
	}
	if _, ok := m.skip[w]; ok {
		return word, 0, false
	}
	if _, ok := m.exact[w]; ok {
		return w, 1, true
	}

	inputCodes := codesFor(w)

	type candidate struct {
		text     string
		score    float64
		phonetic bool
	}
	var best candidate

	for _, t := range m.terms {
		jw := matchr.JaroWinkler(w, t.text, false)
		if codesOverlap(inputCodes, t.codes) {
			if jw >= m.phoneticThreshold && (!best.phonetic || jw > best.score) {
				best = candidate{text: t.text, score: jw, phonetic: true}
			}
		} else if !best.phonetic && jw >= m.fuzzyThreshold && jw > best.score {
			best = candidate{text: t.text, score: jw, phonetic: false}
		}
	}

	if best.text != "" {
		return best.text, best.score, true
	}
	return word, 0, false
}

// Align rewrites every alignable token of text to its matched vocabulary
// term, preserving token order and leaving everything else untouched. Tokens
// shorter than four characters or carrying punctuation are skipped.
func (m *Matcher) Align(text string) string {
	fields := strings.Fields(text)
	changed := false
	for i, f := range fields {
		if len([]rune(f)) < minTokenLen || !alphabetic(f) {
			continue
		}
		if corrected, _, ok := m.Match(f); ok && !strings.EqualFold(corrected, f) {
			fields[i] = corrected
			changed = true
		}
	}
	if !changed {
		return text
	}
	return strings.Join(fields, " ")
}

func alphabetic(s string) bool {
	for _, r := range s {
		if !('a' <= r && r <= 'z' || 'A' <= r && r <= 'Z' || strings.ContainsRune("áéíóúüñÁÉÍÓÚÜÑ", r)) {
			return false
		}
	}
	return true
}

// codesFor returns the Double Metaphone codes for a term. Empty codes are
// excluded.
func codesFor(s string) map[string]struct{} {
	codes := make(map[string]struct{}, 2)
	p, sec := matchr.DoubleMetaphone(s)
	if p != "" {
		codes[p] = struct{}{}
	}
	if sec != "" {
		codes[sec] = struct{}{}
	}
	return codes
}

// codesOverlap returns true if the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}
