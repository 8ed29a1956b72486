// Package normalize cleans raw ASR text from Spanish clinical dialogue.
//
// Recognition output arrives with stutters ("s s s sí"), repeated words
// ("tos tos tos"), broken punctuation, and a recurring set of misheard
// clinical terms ("disneya" for "disnea", "tamol" for "paracetamol"). The
// package offers two layers:
//
//   - [Text] performs generic cleanup: repetition collapse, punctuation and
//     whitespace normalisation, and soft capitalisation. It is pure and
//     idempotent, so it can run on every turn and again on merged text.
//   - [Misheard] applies the ordered misheard-term dictionary in bounded
//     repeated passes and is used both on scan buffers before rule matching
//     and by the canonicalizer on every free-text field of the record.
//   - A phonetic matcher (see the phonetic subpackage) runs after the
//     dictionary on scan buffers and aligns novel near-misses of known
//     clinical terms the dictionary has no rule for.
//
// No layer ever fails; empty input yields empty output.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/Escorpio024/scribe-ia-aurora/internal/normalize/phonetic"
)

var (
	spaceRx      = regexp.MustCompile(`\s+`)
	punctSpaceRx = regexp.MustCompile(`\s+([,.;:!?])`)
	dashSpaceRx  = regexp.MustCompile(`\s*([–—-])\s*`)
	openParenRx  = regexp.MustCompile(`([(\[]) +`)
	closeParenRx = regexp.MustCompile(` +([)\]])`)
)

// Text normalizes a single utterance: straightens quotes, collapses stutter
// and word repetitions, fixes punctuation spacing, and capitalizes the first
// letter. Applying Text to its own output returns the input unchanged.
func Text(s string) string {
	t := strings.TrimSpace(s)
	if t == "" {
		return t
	}
	t = strings.NewReplacer("“", `"`, "”", `"`).Replace(t)
	t = dashSpaceRx.ReplaceAllString(t, " $1 ")
	t = CollapseRepetitions(t)
	t = collapsePunctRuns(t)
	t = punctSpaceRx.ReplaceAllString(t, "$1")
	t = openParenRx.ReplaceAllString(t, "$1")
	t = closeParenRx.ReplaceAllString(t, "$1")
	t = spaceRx.ReplaceAllString(t, " ")
	return capitalize(strings.TrimSpace(t))
}

// CollapseRepetitions removes ASR stutter: any whitespace-separated token
// repeated three or more times in a row (case-insensitive) is reduced to a
// single occurrence. Pairs are left alone, since "muy muy fuerte" is
// legitimate Spanish emphasis.
func CollapseRepetitions(s string) string {
	fields := strings.Fields(s)
	if len(fields) < 3 {
		return s
	}
	out := make([]string, 0, len(fields))
	for i := 0; i < len(fields); {
		run := 1
		for i+run < len(fields) && strings.EqualFold(fields[i+run], fields[i]) {
			run++
		}
		if run >= 3 {
			out = append(out, fields[i])
		} else {
			out = append(out, fields[i:i+run]...)
		}
		i += run
	}
	return strings.Join(out, " ")
}

// Misheard rewrites known ASR confusions to their canonical clinical form.
// The text is lowercased, the ordered dictionary is applied whole-word in
// repeated passes until stable (bounded), whitespace is collapsed, and the
// first letter is capitalized.
func Misheard(s string) string {
	return capitalize(ScanText(s))
}

// matcher aligns tokens the dictionary has no rule for. The skip list keeps
// everyday dialogue words away from the vocabulary.
var matcher = phonetic.New(phonetic.DefaultVocabulary,
	phonetic.WithSkipWords(phonetic.DefaultSkipWords))

// ScanText is the lowercase misheard-normalized form used as the matching
// buffer by the domain router and the rule extractor. The dictionary runs
// first; the phonetic matcher then aligns leftover near-misses of known
// clinical terms.
func ScanText(s string) string {
	t := strings.TrimSpace(s)
	if t == "" {
		return t
	}
	cur := " " + strings.ToLower(t) + " "
	for range misheardPasses {
		prev := cur
		for _, r := range misheardRules {
			cur = r.rx.ReplaceAllString(cur, " "+r.canonical+" ")
		}
		if cur == prev {
			break
		}
	}
	cur = matcher.Align(cur)
	return strings.TrimSpace(spaceRx.ReplaceAllString(cur, " "))
}

// collapsePunctRuns reduces runs of the same sentence punctuation mark
// ("!!", "...") to a single mark.
func collapsePunctRuns(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	var last rune
	for _, r := range s {
		if r == last && strings.ContainsRune(",.;:!?", r) {
			continue
		}
		b.WriteRune(r)
		last = r
	}
	return b.String()
}

func capitalize(s string) string {
	runes := []rune(s)
	if len(runes) == 0 || !unicode.IsLetter(runes[0]) {
		return s
	}
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
