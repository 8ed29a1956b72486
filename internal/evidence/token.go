package evidence

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// stopwords excluded from both queries and documents: common Spanish and
// English function words plus clinical boilerplate that carries no signal.
var stopwords = map[string]struct{}{}

func init() {
	for _, w := range []string{
		"de", "la", "el", "y", "o", "en", "para", "con", "sin", "por", "del", "al",
		"los", "las", "un", "una", "que", "como", "es", "son",
		"the", "of", "and", "or", "in", "to", "for", "by", "on", "from", "at",
		"an", "a", "is", "are", "was", "were", "be", "being",
		"patient", "patients", "study", "trial", "randomized", "review", "case",
		"report", "series", "cohort", "clinic", "hospital",
		"adult", "adults", "child", "children", "pediatric", "male", "female",
		"year", "years", "aged", "data", "analysis",
	} {
		stopwords[w] = struct{}{}
	}
}

// normText lower-cases and strips accents, mapping ñ to n so Spanish and
// English spellings of shared roots collide.
func normText(s string) string {
	s = strings.ToLower(s)
	s = norm.NFD.String(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

// tokenize splits normalized text into non-stopword terms.
func tokenize(s string) []string {
	var out []string
	for _, t := range strings.FieldsFunc(normText(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	}) {
		if _, stop := stopwords[t]; stop {
			continue
		}
		out = append(out, t)
	}
	return out
}

// containsAny reports whether the normalized text contains any keyword.
func containsAny(text string, keywords []string) bool {
	t := normText(text)
	for _, kw := range keywords {
		if strings.Contains(t, kw) {
			return true
		}
	}
	return false
}
